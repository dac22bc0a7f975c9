package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath names an explicit config file
	EnvConfigPath = "ETLREPO_CONFIG"
	// ConfigFileName is looked up in the working directory
	ConfigFileName = "etlrepo.yaml"
	// ConfigDirName is the directory below the user and system config roots
	ConfigDirName = "etlrepo"
)

// searchPaths lists the config file candidates, most specific first.
// Unset environment variables leave an empty entry.
func searchPaths() []string {
	paths := []string{os.Getenv(EnvConfigPath), ConfigFileName}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, ConfigDirName, "config.yaml"))
	}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".config", ConfigDirName, "config.yaml"))
	}
	return append(paths, filepath.Join("/etc", ConfigDirName, "config.yaml"))
}

// FindConfigPath returns the absolute path of the first existing config
// file, or "" when there is none.
func FindConfigPath() string {
	for _, path := range searchPaths() {
		if path == "" || !fileExists(path) {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	return ""
}

// EnsureConfigDir creates the directory of configPath
func EnsureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
