// Package logging builds the zap logger shared by the CLI and library packages.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Formats accepted by New.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// ParseLevel converts a level name (debug, info, warn, error) to a zapcore.Level.
func ParseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// New builds a logger writing to stderr at the given level.
// verbose forces debug level regardless of level.
func New(level, format string, verbose bool) (*zap.Logger, error) {
	var config zap.Config
	switch strings.ToLower(format) {
	case FormatJSON:
		config = zap.NewProductionConfig()
	case FormatConsole, "":
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("invalid log format %q (valid: %s, %s)", format, FormatJSON, FormatConsole)
	}

	lvl := zapcore.DebugLevel
	if !verbose {
		var err error
		if lvl, err = ParseLevel(level); err != nil {
			return nil, err
		}
	}
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
