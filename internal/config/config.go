// Package config provides configuration management for etlrepo.
//
// The config file holds what a process needs before it can open the
// repository: where the backing store lives, which identity sessions use,
// and the defaults of the server, import and export commands. Everything
// else lives in the repository itself.
//
// Config file locations (priority order):
//  1. $ETLREPO_CONFIG
//  2. ./etlrepo.yaml
//  3. $XDG_CONFIG_HOME/etlrepo/config.yaml
//  4. ~/.config/etlrepo/config.yaml
//  5. /etc/etlrepo/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"etlrepo/internal/dialect"
)

const (
	defaultDatabasePath = "./etlrepo.db"
	defaultServerAddr   = ":8080"
	defaultExportPath   = "./repository.xml"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{Version: 1}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Database.Dialect == "" {
		c.Database.Dialect = string(dialect.SQLite)
	}
	if c.Database.Path == "" && c.Database.URL == "" {
		c.Database.Path = defaultDatabasePath
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultServerAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(15 * time.Second)
	}
	// Exports of large repositories stream for a while
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(5 * time.Minute)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Import.Overwrite == "" {
		c.Import.Overwrite = "never"
	}
	if c.Import.Debounce == 0 {
		c.Import.Debounce = Duration(500 * time.Millisecond)
	}
	if c.Export.Path == "" {
		c.Export.Path = defaultExportPath
	}
	if c.Export.Directory == "" {
		c.Export.Directory = "/"
	}
}

// Validate checks the values that cannot be defaulted
func (c *Config) Validate() error {
	var errs []error

	d, err := dialect.NewDialect(c.Database.Dialect)
	if err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	} else if d.Name() != string(dialect.SQLite) {
		errs = append(errs, fmt.Errorf("database: no backing store for dialect %s", d.Name()))
	}
	if _, err := c.DatabasePath(); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "none":
	default:
		errs = append(errs, fmt.Errorf("log: unknown level %q", c.Log.Level))
	}

	switch strings.ToLower(c.Import.Overwrite) {
	case "always", "never", "ask":
	default:
		errs = append(errs, fmt.Errorf("import: overwrite must be always, never or ask, got %q", c.Import.Overwrite))
	}

	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server: timeouts must not be negative"))
	}

	return errors.Join(errs...)
}

// DatabasePath returns the file the backing store opens. A URL is parsed
// with the configured dialect and wins over Path.
func (c *Config) DatabasePath() (string, error) {
	if c.Database.URL == "" {
		if c.Database.Path == "" {
			return "", fmt.Errorf("database: path or url required")
		}
		return c.Database.Path, nil
	}
	d, err := dialect.NewDialect(c.Database.Dialect)
	if err != nil {
		return "", fmt.Errorf("database: %w", err)
	}
	spec, err := d.ParseURL(c.Database.URL)
	if err != nil {
		return "", fmt.Errorf("database: %w", err)
	}
	return spec.Database, nil
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	path, err := c.DatabasePath()
	if err != nil {
		path = "(" + err.Error() + ")"
	}

	summary := fmt.Sprintf("Database: %s %s\n", c.Database.Dialect, path)
	lockSource := c.Session.LockSource
	if lockSource == "" {
		lockSource = "(generated)"
	}
	summary += fmt.Sprintf("Session: lock source %s, user %q\n", lockSource, c.Session.User)
	summary += fmt.Sprintf("Server: %s, Log: %s\n", c.Server.Addr, c.Log.Level)
	summary += fmt.Sprintf("Import: overwrite %s, continue on error %v, watching %d paths",
		c.Import.Overwrite, c.Import.ContinueOnError, len(c.Import.WatchPaths))

	return summary
}
