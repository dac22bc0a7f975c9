// Package logging builds the zap loggers used across etlrepo
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LevelDebug sets the log level to debug
	LevelDebug = "debug"

	// LevelInfo sets the log level to info
	LevelInfo = "info"

	// LevelNone disables logging
	LevelNone = "none"
)

// GetLogger returns a JSON production logger with the specified level
func GetLogger(level string) (*zap.Logger, error) {
	return build(zap.NewProductionConfig(), level)
}

// GetConsoleLogger returns a human-readable logger writing to stderr, for
// interactive CLI commands.
func GetConsoleLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return build(cfg, level)
}

// MustGetLogger returns a zap logger with the specified level or panics
func MustGetLogger(level string) *zap.Logger {
	l, err := GetLogger(level)
	if err != nil {
		panic(err)
	}
	return l
}

func build(cfg zap.Config, level string) (*zap.Logger, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == LevelNone {
		return zap.NewNop(), nil
	}
	if level == "" {
		level = LevelInfo
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
