// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// sendlog replays a recorded terminal session to a log server.
//
// It reads a recording directory (a timing file plus the stdin, stdout,
// stderr, ttyin, and ttyout data files it references) and streams every
// event to the server in order, over TCP or TLS, then waits for the
// server to commit the whole log before exiting.
//
// A log the server has already partly stored can be continued with
// --restart and --session-id: records up to the resume point are skipped
// and streaming starts from there.
//
// --test N runs N copies of the session in parallel against the same
// server, for load testing a log server.
//
// Configuration is layered: built-in defaults, then the YAML file named
// by --config or SENDLOG_CONFIG, then SENDLOG_* environment variables,
// then flags.
//
// The exit status is 0 only if every session finished with everything
// committed.
package main
