package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version  int            `yaml:"version"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Import   ImportConfig   `yaml:"import"`
	Export   ExportConfig   `yaml:"export"`
}

// DatabaseConfig selects the backing store
type DatabaseConfig struct {
	Dialect string `yaml:"dialect"`
	Path    string `yaml:"path,omitempty"`
	// URL takes precedence over Path when set
	URL string `yaml:"url,omitempty"`
}

// SessionConfig holds the identity sessions connect with
type SessionConfig struct {
	LockSource string `yaml:"lock_source,omitempty"` // empty = generated per process
	User       string `yaml:"user,omitempty"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error, none
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// ImportConfig holds the defaults of imports and the watcher
type ImportConfig struct {
	BaseDirectory   string   `yaml:"base_directory,omitempty"`
	Overwrite       string   `yaml:"overwrite"` // always, never, ask
	ContinueOnError bool     `yaml:"continue_on_error"`
	VersionComment  string   `yaml:"version_comment,omitempty"`
	WatchPaths      []string `yaml:"watch_paths,omitempty"`
	Debounce        Duration `yaml:"debounce"`
}

// ExportConfig holds export defaults
type ExportConfig struct {
	Path      string `yaml:"path"`
	Directory string `yaml:"directory"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
