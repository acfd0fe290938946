// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package recordingtest writes recording directories for tests.
package recordingtest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/sendlog/recording"
)

// Event is one event to record. Data is written to the channel's file and
// its length becomes the timing record's byte count.
type Event struct {
	Channel recording.Channel
	Delay   time.Duration
	Data    []byte
	Rows    int32
	Columns int32
	Signal  string
}

// Layout controls how files are written.
type Layout struct {
	// Encoding compresses every file with the given encoding.
	Encoding recording.Encoding

	// Recipient, when set, age-encrypts every file after compression.
	Recipient age.Recipient

	// Metadata is written verbatim to log.json when non-empty.
	Metadata string

	// EmptyChannels lists stream channels to create even though no
	// event writes to them.
	EmptyChannels []recording.Channel
}

// Scenario returns the three-event session used across package tests:
// "hello" on the terminal, a resize to 24x80 after 100ms, and " world"
// 50ms later.
func Scenario() []Event {
	return []Event{
		{Channel: recording.ChannelTTYOut, Delay: 0, Data: []byte("hello")},
		{Channel: recording.ChannelWindowSize, Delay: 100 * time.Millisecond, Rows: 24, Columns: 80},
		{Channel: recording.ChannelTTYOut, Delay: 50 * time.Millisecond, Data: []byte(" world")},
	}
}

// Write creates a plaintext recording of events in a new temporary
// directory and returns its path.
func Write(t testing.TB, events []Event) string {
	t.Helper()
	dir := t.TempDir()
	WriteTo(t, dir, events, Layout{})
	return dir
}

// WriteTo writes events into dir using layout.
func WriteTo(t testing.TB, dir string, events []Event, layout Layout) {
	t.Helper()
	var timing bytes.Buffer
	channels := make(map[recording.Channel]*bytes.Buffer)
	for _, channel := range layout.EmptyChannels {
		channels[channel] = &bytes.Buffer{}
	}
	for _, event := range events {
		delay := fmt.Sprintf("%d.%09d", event.Delay/time.Second, event.Delay%time.Second)
		switch {
		case event.Channel == recording.ChannelWindowSize:
			fmt.Fprintf(&timing, "%d %s %d %d\n", event.Channel.Event(), delay, event.Rows, event.Columns)
		case event.Channel == recording.ChannelSuspend:
			fmt.Fprintf(&timing, "%d %s %s\n", event.Channel.Event(), delay, event.Signal)
		default:
			fmt.Fprintf(&timing, "%d %s %d\n", event.Channel.Event(), delay, len(event.Data))
			if channels[event.Channel] == nil {
				channels[event.Channel] = &bytes.Buffer{}
			}
			channels[event.Channel].Write(event.Data)
		}
	}

	writeFile(t, filepath.Join(dir, recording.TimingFile), timing.Bytes(), layout)
	for channel, data := range channels {
		writeFile(t, filepath.Join(dir, channel.FileName()), data.Bytes(), layout)
	}
	if layout.Metadata != "" {
		writeFile(t, filepath.Join(dir, recording.MetadataFile), []byte(layout.Metadata), layout)
	}
}

func writeFile(t testing.TB, path string, data []byte, layout Layout) {
	t.Helper()
	var encoded bytes.Buffer
	var sink io.Writer = &encoded
	var finish []func() error

	if layout.Recipient != nil {
		encrypter, err := age.Encrypt(sink, layout.Recipient)
		if err != nil {
			t.Fatalf("age.Encrypt: %v", err)
		}
		sink = encrypter
		finish = append(finish, encrypter.Close)
	}

	switch layout.Encoding {
	case recording.EncodingGzip:
		writer := gzip.NewWriter(sink)
		sink = writer
		finish = append(finish, writer.Close)
	case recording.EncodingZstd:
		writer, err := zstd.NewWriter(sink)
		if err != nil {
			t.Fatalf("zstd.NewWriter: %v", err)
		}
		sink = writer
		finish = append(finish, writer.Close)
	case recording.EncodingLZ4:
		writer := lz4.NewWriter(sink)
		sink = writer
		finish = append(finish, writer.Close)
	}

	if _, err := sink.Write(data); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	for index := len(finish) - 1; index >= 0; index-- {
		if err := finish[index](); err != nil {
			t.Fatalf("finishing %s: %v", path, err)
		}
	}
	if err := os.WriteFile(path, encoded.Bytes(), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}
