package types

import "time"

// HostConfig holds settings for acquiring a host session.
type HostConfig struct {
	// Bridge is the executable that drives the host's scripting interface
	// (e.g. "swbridge"). Resolved on PATH when not absolute.
	Bridge string `json:"bridge" yaml:"bridge" mapstructure:"bridge"`

	// Visible starts a new host instance with its window shown. When false
	// a new instance runs in the background without user control. Has no
	// effect when attaching to an instance that is already running.
	Visible bool `json:"visible" yaml:"visible" mapstructure:"visible"`

	// StartRetries is how many readiness pings follow a fresh start
	// before acquisition gives up (default 5).
	StartRetries int `json:"start_retries" yaml:"start_retries" mapstructure:"start_retries"`
}

// ConversionConfig holds settings for the conversion stage.
type ConversionConfig struct {
	// OutputDir receives every output when set. Otherwise each output is
	// written next to its input.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// ItemTimeout bounds a single open/export/close cycle (default 10m).
	// Zero disables the limit.
	ItemTimeout time.Duration `json:"item_timeout" yaml:"item_timeout" mapstructure:"item_timeout"`
}

// HistoryConfig holds settings for the conversion run ledger.
type HistoryConfig struct {
	// Enabled controls whether batch runs are recorded.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// DB is the SQLite database path.
	DB string `json:"db" yaml:"db" mapstructure:"db"`
}

// NotifyConfig holds settings for publishing conversion events.
type NotifyConfig struct {
	// NATSURL is the NATS server URL. Publishing is off when empty.
	NATSURL string `json:"nats_url" yaml:"nats_url" mapstructure:"nats_url"`

	// Subject is the subject prefix; events go to <subject>.progress and
	// <subject>.done.
	Subject string `json:"subject" yaml:"subject" mapstructure:"subject"`
}

// LogConfig holds console logging settings.
type LogConfig struct {
	Level string `json:"level" yaml:"level" mapstructure:"level"`
	Color bool   `json:"color" yaml:"color" mapstructure:"color"`
}

// Config groups all configuration for the CLI.
type Config struct {
	Host       HostConfig       `json:"host" yaml:"host" mapstructure:"host"`
	Conversion ConversionConfig `json:"conversion" yaml:"conversion" mapstructure:"conversion"`
	History    HistoryConfig    `json:"history" yaml:"history" mapstructure:"history"`
	Notify     NotifyConfig     `json:"notify" yaml:"notify" mapstructure:"notify"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
}
