// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for sendlog.
//
// Values are layered in a fixed order:
//
//  1. [Default] -- built-in defaults
//  2. the YAML file named by --config, or by SENDLOG_CONFIG when no flag
//     is given (no file is required and there is no automatic search)
//  3. SENDLOG_* environment variables, one per field, parsed with
//     github.com/caarlos0/env
//  4. command-line flags, applied by the caller after [Load]
//
// Durations are Go duration strings ("30s", "1m30s") in both YAML and
// the environment. ${HOME} and ${VAR:-default} patterns are expanded in
// path fields after loading.
//
// [Config.Validate] returns every problem at once, joined.
//
// This package depends on no other sendlog packages.
package config
