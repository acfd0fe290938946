// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sendlog.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := Default()

	if cfg.Server.Address != "localhost:30343" {
		t.Errorf("expected address=localhost:30343, got %s", cfg.Server.Address)
	}
	if cfg.Timeouts.Idle != 30*time.Second {
		t.Errorf("expected idle timeout 30s, got %v", cfg.Timeouts.Idle)
	}
	if cfg.TLS.Enabled {
		t.Error("expected TLS disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Parallel()
	cfg, err := load("", map[string]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != Default().Server.Address {
		t.Errorf("expected default address, got %s", cfg.Server.Address)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
server:
  address: logs.example.com:30344
tls:
  enabled: true
  ca_bundle: /etc/ssl/logsrvd-ca.pem
timeouts:
  idle: 5s
  commit: 1m30s
`)
	cfg, err := load(path, map[string]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Address != "logs.example.com:30344" {
		t.Errorf("address: got %s", cfg.Server.Address)
	}
	if !cfg.TLS.Enabled || cfg.TLS.CABundle != "/etc/ssl/logsrvd-ca.pem" {
		t.Errorf("tls: got %+v", cfg.TLS)
	}
	if cfg.Timeouts.Idle != 5*time.Second {
		t.Errorf("idle: got %v, want 5s", cfg.Timeouts.Idle)
	}
	if cfg.Timeouts.Commit != 90*time.Second {
		t.Errorf("commit: got %v, want 1m30s", cfg.Timeouts.Commit)
	}
	// Unset in the file, so the default survives.
	if cfg.Timeouts.Handshake != 30*time.Second {
		t.Errorf("handshake: got %v, want 30s", cfg.Timeouts.Handshake)
	}
}

func TestLoadConfigFromEnvironmentVariable(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "server:\n  address: from-file:1\n")
	cfg, err := load("", map[string]string{ConfigEnvironmentVariable: path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != "from-file:1" {
		t.Errorf("address: got %s, want from-file:1", cfg.Server.Address)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "server:\n  address: from-file:1\ntimeouts:\n  idle: 5s\n")
	cfg, err := load(path, map[string]string{
		"SENDLOG_SERVER":       "from-env:2",
		"SENDLOG_TIMEOUT_IDLE": "250ms",
		"SENDLOG_TLS":          "true",
		"SENDLOG_TRACE":        "true",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != "from-env:2" {
		t.Errorf("address: got %s, want from-env:2", cfg.Server.Address)
	}
	if cfg.Timeouts.Idle != 250*time.Millisecond {
		t.Errorf("idle: got %v, want 250ms", cfg.Timeouts.Idle)
	}
	if !cfg.TLS.Enabled || !cfg.Observability.Trace {
		t.Errorf("booleans not applied: tls=%v trace=%v", cfg.TLS.Enabled, cfg.Observability.Trace)
	}
}

func TestEnvironmentRejectsBadDuration(t *testing.T) {
	t.Parallel()
	_, err := load("", map[string]string{"SENDLOG_TIMEOUT_IDLE": "soon"})
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := load(filepath.Join(t.TempDir(), "absent.yaml"), map[string]string{}); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "timeouts:\n  idle: [not a duration\n")
	if _, err := load(path, map[string]string{}); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestExpandVariables(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "recording:\n  identity: ${SENDLOG_TEST_UNSET_VARIABLE:-/etc/sendlog/key.txt}\n")
	cfg, err := load(path, map[string]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Recording.Identity != "/etc/sendlog/key.txt" {
		t.Errorf("identity: got %s", cfg.Recording.Identity)
	}
}

func TestValidateCollectsEveryError(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Server.Address = ""
	cfg.TLS.Certificate = "/cert.pem"
	cfg.Timeouts.Commit = 0
	cfg.Observability.LogFormat = "xml"
	cfg.Observability.LogLevel = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, fragment := range []string{
		"server.address",
		"tls.certificate and tls.key",
		"require tls.enabled",
		"timeouts.commit",
		"log_format",
		"log_level",
	} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("error %q missing %q", err, fragment)
		}
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Observability.LogLevel = "debug"
	level, err := cfg.LogLevel()
	if err != nil {
		t.Fatalf("LogLevel: %v", err)
	}
	if level != slog.LevelDebug {
		t.Errorf("got %v, want debug", level)
	}
}
