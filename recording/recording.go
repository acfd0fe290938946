// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// TimingFile is the name of the mandatory timing stream.
const TimingFile = "timing"

// Recording is one open pass over a recording directory: a timing reader
// positioned at the start, the data channels, and the metadata.
type Recording struct {
	Dir      string
	Timing   *TimingReader
	Channels *ChannelSet
	Metadata Metadata
}

// Open opens the recording in dir. The timing file must exist; data
// channels and metadata are optional.
func Open(dir string, options Options) (*Recording, error) {
	metadata, err := LoadMetadata(dir, options)
	if err != nil {
		return nil, err
	}
	timing, err := openDecoded(filepath.Join(dir, TimingFile), options)
	if err != nil {
		return nil, fmt.Errorf("opening timing stream: %w", err)
	}
	channels, err := OpenChannels(dir, options)
	if err != nil {
		timing.Close()
		return nil, err
	}
	return &Recording{
		Dir:      dir,
		Timing:   NewTimingReader(timing),
		Channels: channels,
		Metadata: metadata,
	}, nil
}

// Close releases the timing stream and every data channel.
func (recording *Recording) Close() error {
	return errors.Join(recording.Timing.Close(), recording.Channels.Close())
}

// Digest returns the BLAKE3-256 digest of the decoded timing stream in
// dir. Two recordings with the same digest replay the same event
// sequence. It opens the file independently of any Recording.
func Digest(dir string, options Options) ([]byte, error) {
	timing, err := openDecoded(filepath.Join(dir, TimingFile), options)
	if err != nil {
		return nil, fmt.Errorf("opening timing stream: %w", err)
	}
	defer timing.Close()
	hasher := blake3.New()
	if _, err := io.Copy(hasher, timing); err != nil {
		return nil, fmt.Errorf("hashing timing stream: %w", err)
	}
	return hasher.Sum(nil), nil
}
