// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
)

// ErrChannelUnavailable is returned when a timing record refers to a data
// channel whose file is not part of the recording. It is never retried.
var ErrChannelUnavailable = errors.New("recording: channel unavailable")

// channelStream is one open data file and its read cursor.
type channelStream struct {
	reader *bufio.Reader
	file   *decodedFile
	offset int64
}

// ChannelSet holds the open data channels of one recording. Each session
// opens its own set; cursors are not shared.
type ChannelSet struct {
	streams map[Channel]*channelStream
}

// OpenChannels opens every stream channel present in dir. Absent files
// are skipped; any other open failure closes what was opened and is
// returned.
func OpenChannels(dir string, options Options) (*ChannelSet, error) {
	set := &ChannelSet{streams: make(map[Channel]*channelStream)}
	for _, channel := range StreamChannels {
		file, err := openDecoded(filepath.Join(dir, channel.FileName()), options)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("opening %s channel: %w", channel, err)
		}
		set.streams[channel] = &channelStream{reader: bufio.NewReader(file), file: file}
	}
	return set, nil
}

// Has reports whether channel was opened.
func (set *ChannelSet) Has(channel Channel) bool {
	_, ok := set.streams[channel]
	return ok
}

// Offset returns the number of bytes consumed from channel so far.
func (set *ChannelSet) Offset(channel Channel) int64 {
	if stream, ok := set.streams[channel]; ok {
		return stream.offset
	}
	return 0
}

func (set *ChannelSet) stream(channel Channel) (*channelStream, error) {
	stream, ok := set.streams[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelUnavailable, channel)
	}
	return stream, nil
}

// ReadChannel reads exactly count bytes from channel. A channel that ends
// early yields io.ErrUnexpectedEOF.
func (set *ChannelSet) ReadChannel(channel Channel, count int64) ([]byte, error) {
	stream, err := set.stream(channel)
	if err != nil {
		return nil, err
	}
	data := make([]byte, count)
	read, err := io.ReadFull(stream.reader, data)
	stream.offset += int64(read)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading %d bytes from %s at offset %d: %w", count, channel, stream.offset, err)
	}
	return data, nil
}

// SeekChannel advances channel's cursor by count bytes without returning
// them. Compressed and encrypted channels are read and discarded.
func (set *ChannelSet) SeekChannel(channel Channel, count int64) error {
	stream, err := set.stream(channel)
	if err != nil {
		return err
	}
	for count > 0 {
		step := count
		if step > 1<<30 {
			step = 1 << 30
		}
		discarded, err := stream.reader.Discard(int(step))
		stream.offset += int64(discarded)
		count -= int64(discarded)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("seeking %s at offset %d: %w", channel, stream.offset, err)
		}
	}
	return nil
}

// Close closes every open channel.
func (set *ChannelSet) Close() error {
	var errs []error
	for channel, stream := range set.streams {
		if err := stream.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", channel, err))
		}
	}
	set.streams = nil
	return errors.Join(errs...)
}
