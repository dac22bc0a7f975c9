package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Database.Dialect != "sqlite" {
		t.Errorf("Database.Dialect = %s, want sqlite", cfg.Database.Dialect)
	}
	if cfg.Database.Path == "" {
		t.Error("Database.Path should not be empty")
	}
	if cfg.Import.Overwrite != "never" {
		t.Errorf("Import.Overwrite = %s, want never", cfg.Import.Overwrite)
	}
	if cfg.Server.WriteTimeout.Duration() < cfg.Server.ReadTimeout.Duration() {
		t.Error("WriteTimeout should allow long exports")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown dialect", func(c *Config) { c.Database.Dialect = "oracle" }, "unknown dialect"},
		{"dialect without backing store", func(c *Config) { c.Database.Dialect = "postgres" }, "no backing store"},
		{"no database", func(c *Config) { c.Database.Path = "" }, "path or url required"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "unknown level"},
		{"bad overwrite", func(c *Config) { c.Import.Overwrite = "sometimes" }, "always, never or ask"},
		{"negative timeout", func(c *Config) { c.Server.ReadTimeout = Duration(-time.Second) }, "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Path = "/var/lib/etlrepo/repo.db"

	path, err := cfg.DatabasePath()
	if err != nil {
		t.Fatalf("DatabasePath() error: %v", err)
	}
	if path != "/var/lib/etlrepo/repo.db" {
		t.Errorf("DatabasePath() = %s", path)
	}

	// URL wins over path
	cfg.Database.URL = "file:/tmp/other.db?_pragma=busy_timeout(1000)"
	path, err = cfg.DatabasePath()
	if err != nil {
		t.Fatalf("DatabasePath() error: %v", err)
	}
	if path != "/tmp/other.db" {
		t.Errorf("DatabasePath() = %s, want /tmp/other.db", path)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Session.LockSource = "build-server"
	cfg.Import.Overwrite = "always"
	cfg.Import.WatchPaths = []string{"/srv/drop"}
	cfg.Import.Debounce = Duration(2 * time.Second)

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, path, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if path != configPath {
		t.Errorf("path = %s, want %s", path, configPath)
	}

	if loaded.Session.LockSource != "build-server" {
		t.Errorf("Session.LockSource = %s, want build-server", loaded.Session.LockSource)
	}
	if loaded.Import.Overwrite != "always" {
		t.Errorf("Import.Overwrite = %s, want always", loaded.Import.Overwrite)
	}
	if len(loaded.Import.WatchPaths) != 1 || loaded.Import.WatchPaths[0] != "/srv/drop" {
		t.Errorf("Import.WatchPaths = %v, want [/srv/drop]", loaded.Import.WatchPaths)
	}
	if loaded.Import.Debounce.Duration() != 2*time.Second {
		t.Errorf("Import.Debounce = %s, want 2s", loaded.Import.Debounce.Duration())
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("database:\n  path: /data/repo.db\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if cfg.Database.Path != "/data/repo.db" {
		t.Errorf("Database.Path = %s", cfg.Database.Path)
	}
	if cfg.Server.Addr == "" || cfg.Log.Level == "" || cfg.Export.Directory != "/" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  read_timeout: soon\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := LoadFromPath(configPath); err == nil {
		t.Error("LoadFromPath() should fail on an invalid duration")
	}
}

func TestFindConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)

	cfg := DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	found := FindConfigPath()
	if found == "" {
		t.Error("FindConfigPath() should find config in working directory")
	}

	// Explicit path doesn't exist, should fall back
	t.Setenv(EnvConfigPath, "/nonexistent/path.yaml")
	found = FindConfigPath()
	if found == "" {
		t.Error("FindConfigPath() should fall back when env path doesn't exist")
	}

	// Explicit path wins when it exists
	explicit := filepath.Join(t.TempDir(), "explicit.yaml")
	if err := cfg.Save(explicit); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	t.Setenv(EnvConfigPath, explicit)
	if found = FindConfigPath(); found != explicit {
		t.Errorf("FindConfigPath() = %s, want %s", found, explicit)
	}
}

func TestSummary(t *testing.T) {
	summary := DefaultConfig().Summary()
	for _, want := range []string{"sqlite", "(generated)", "overwrite never"} {
		if !strings.Contains(summary, want) {
			t.Errorf("Summary() = %q, missing %q", summary, want)
		}
	}
}

func TestDuration(t *testing.T) {
	d := Duration(5 * time.Minute)

	if d.Duration() != 5*time.Minute {
		t.Errorf("Duration() = %s, want 5m", d.Duration())
	}

	marshaled, err := d.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML() error: %v", err)
	}
	if marshaled != "5m0s" {
		t.Errorf("MarshalYAML() = %v, want 5m0s", marshaled)
	}
}
