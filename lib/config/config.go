// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ConfigEnvironmentVariable names the config file when --config is not
// given.
const ConfigEnvironmentVariable = "SENDLOG_CONFIG"

// Config is the complete sendlog configuration.
type Config struct {
	// Server is the log server to connect to.
	Server ServerConfig `yaml:"server"`

	// TLS configures the secure transport.
	TLS TLSConfig `yaml:"tls"`

	// Timeouts bound each phase of a session.
	Timeouts TimeoutConfig `yaml:"timeouts"`

	// Recording configures how recording files are opened.
	Recording RecordingConfig `yaml:"recording"`

	// Observability configures logging, metrics, and tracing.
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig names the log server.
type ServerConfig struct {
	// Address is host:port. Default: localhost:30343
	Address string `yaml:"address" env:"SENDLOG_SERVER"`
}

// TLSConfig configures TLS. Every path is PEM.
type TLSConfig struct {
	// Enabled turns on TLS. Default: false
	Enabled bool `yaml:"enabled" env:"SENDLOG_TLS"`

	// CABundle verifies the server certificate. Empty means the system
	// roots.
	CABundle string `yaml:"ca_bundle" env:"SENDLOG_TLS_CA_BUNDLE"`

	// Certificate and Key are the client certificate for mutual TLS.
	// Both or neither must be set.
	Certificate string `yaml:"certificate" env:"SENDLOG_TLS_CERT"`
	Key         string `yaml:"key" env:"SENDLOG_TLS_KEY"`

	// ServerName overrides the name checked against the server
	// certificate. Default: the host part of Server.Address
	ServerName string `yaml:"server_name" env:"SENDLOG_TLS_SERVER_NAME"`

	// InsecureSkipVerify disables server certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" env:"SENDLOG_TLS_INSECURE_SKIP_VERIFY"`
}

// TimeoutConfig bounds how long a session may go without progress.
type TimeoutConfig struct {
	// Connect bounds the TCP dial. Default: 30s
	Connect time.Duration `yaml:"connect" env:"SENDLOG_TIMEOUT_CONNECT"`

	// Handshake bounds the TLS handshake and the wait for ServerHello.
	// Default: 30s
	Handshake time.Duration `yaml:"handshake" env:"SENDLOG_TIMEOUT_HANDSHAKE"`

	// Idle bounds each wait for socket readiness while streaming.
	// Default: 30s
	Idle time.Duration `yaml:"idle" env:"SENDLOG_TIMEOUT_IDLE"`

	// Commit bounds the wait for the final commit point after Exit.
	// Default: 30s
	Commit time.Duration `yaml:"commit" env:"SENDLOG_TIMEOUT_COMMIT"`
}

// RecordingConfig configures recording access.
type RecordingConfig struct {
	// Identity is an age identity file used to decrypt encrypted
	// recordings. Empty means recordings must be plaintext.
	Identity string `yaml:"identity" env:"SENDLOG_IDENTITY"`
}

// ObservabilityConfig configures logging, metrics, and tracing.
type ObservabilityConfig struct {
	// LogFormat is "auto" (text on a terminal, JSON otherwise), "text",
	// or "json". Default: auto
	LogFormat string `yaml:"log_format" env:"SENDLOG_LOG_FORMAT"`

	// LogLevel is a slog level name. Default: info
	LogLevel string `yaml:"log_level" env:"SENDLOG_LOG_LEVEL"`

	// MetricsListen, when set, serves Prometheus metrics at
	// http://<addr>/metrics for the life of the run.
	MetricsListen string `yaml:"metrics_listen" env:"SENDLOG_METRICS_LISTEN"`

	// Trace writes one OpenTelemetry span per session to stderr.
	Trace bool `yaml:"trace" env:"SENDLOG_TRACE"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Address: "localhost:30343"},
		Timeouts: TimeoutConfig{
			Connect:   30 * time.Second,
			Handshake: 30 * time.Second,
			Idle:      30 * time.Second,
			Commit:    30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogFormat: "auto",
			LogLevel:  "info",
		},
	}
}

// Load builds the configuration from defaults, the file at path (or
// SENDLOG_CONFIG when path is empty), and the process environment.
func Load(path string) (*Config, error) {
	return load(path, nil)
}

// load is Load with an explicit environment. A nil environment means the
// process environment.
func load(path string, environment map[string]string) (*Config, error) {
	if path == "" {
		if environment != nil {
			path = environment[ConfigEnvironmentVariable]
		} else {
			path = os.Getenv(ConfigEnvironmentVariable)
		}
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := parseEnv(cfg, environment); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

// loadFile merges a YAML file into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// parseEnv applies SENDLOG_* overrides. Unset variables leave fields
// untouched.
func parseEnv(target *Config, environment map[string]string) error {
	options := env.Options{}
	if environment != nil {
		options.Environment = environment
	}
	if err := env.ParseWithOptions(target, options); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	c.TLS.CABundle = expandVars(c.TLS.CABundle)
	c.TLS.Certificate = expandVars(c.TLS.Certificate)
	c.TLS.Key = expandVars(c.TLS.Key)
	c.Recording.Identity = expandVars(c.Recording.Identity)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if (c.TLS.Certificate == "") != (c.TLS.Key == "") {
		errs = append(errs, errors.New("tls.certificate and tls.key must be set together"))
	}
	if !c.TLS.Enabled && (c.TLS.CABundle != "" || c.TLS.Certificate != "") {
		errs = append(errs, errors.New("tls.ca_bundle and tls.certificate require tls.enabled"))
	}

	for name, value := range map[string]time.Duration{
		"timeouts.connect":   c.Timeouts.Connect,
		"timeouts.handshake": c.Timeouts.Handshake,
		"timeouts.idle":      c.Timeouts.Idle,
		"timeouts.commit":    c.Timeouts.Commit,
	} {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, value))
		}
	}

	switch c.Observability.LogFormat {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("observability.log_format must be one of auto, text, json; got %q", c.Observability.LogFormat))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// LogLevel parses Observability.LogLevel.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Observability.LogLevel)); err != nil {
		return 0, fmt.Errorf("observability.log_level: %w", err)
	}
	return level, nil
}
