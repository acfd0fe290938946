// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// newLogger returns a text logger when format is "text", or "auto" with
// a terminal on output, and a JSON logger otherwise.
func newLogger(output io.Writer, format string, level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	text := format == "text"
	if format == "auto" {
		if file, ok := output.(*os.File); ok {
			text = term.IsTerminal(int(file.Fd()))
		}
	}
	if text {
		return slog.New(slog.NewTextHandler(output, options))
	}
	return slog.New(slog.NewJSONHandler(output, options))
}
