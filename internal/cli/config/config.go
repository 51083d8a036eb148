// Package config provides configuration management for the sqlsense CLI.
package config

import (
	"time"

	"github.com/leapstack-labs/sqlsense/internal/metadata"
)

// Default configuration values.
const (
	DefaultBatchSeparator = "GO"
	DefaultMaxJoinDepth   = 2
	DefaultServeAddr      = "127.0.0.1:8725"
	DefaultHistoryFile    = ".sqlsense_history"
	DefaultConnectTimeout = 10 * time.Second
)

// Config holds all CLI configuration options.
type Config struct {
	// SchemaFile is a static YAML schema used when no live connection is
	// configured.
	SchemaFile string `koanf:"schema_file"`

	// Metadata configures a live connection; Driver empty means the
	// static schema file is used instead.
	Metadata metadata.ConnConfig `koanf:"metadata"`

	// ConnectTimeout bounds the initial metadata connection.
	ConnectTimeout time.Duration `koanf:"connect_timeout"`

	// BatchSeparator is the batch separator keyword (default GO).
	BatchSeparator string `koanf:"batch_separator"`

	// MaxJoinDepth is the FK search hop limit.
	MaxJoinDepth int `koanf:"max_join_depth"`

	// HistoryFile stores REPL input history.
	HistoryFile string `koanf:"history_file"`

	Verbose bool `koanf:"verbose"`

	Serve ServeConfig `koanf:"serve"`
}

// ServeConfig holds the HTTP service options.
type ServeConfig struct {
	Addr string `koanf:"addr"`
	// Watch reloads the static schema file when it changes on disk.
	Watch bool `koanf:"watch"`
}

// ApplyDefaults fills unset fields with default values.
func (c *Config) ApplyDefaults() {
	if c.BatchSeparator == "" {
		c.BatchSeparator = DefaultBatchSeparator
	}
	if c.MaxJoinDepth == 0 {
		c.MaxJoinDepth = DefaultMaxJoinDepth
	}
	if c.HistoryFile == "" {
		c.HistoryFile = DefaultHistoryFile
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = DefaultServeAddr
	}
}
