// Package logging builds the structured logger used for transport
// diagnostics: loss/buffer reports, startup warnings, and the demo
// CLI's own narration. It wraps logrus with optional lumberjack
// rotation, the way firestige-Otus wires its own logrus-backed logger
// (otus-packet/pkg/log/logrus.go) and file-output rotation
// (internal/log/logger.go's createFileWriter).
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures the logger returned by New. A zero Config yields
// a text-formatted, info-level logger writing to stderr.
type Config struct {
	Level string // "trace", "debug", "info", "warn", "error"; default "info"
	JSON  bool

	// File, if non-empty, sends output to a rotated file instead of
	// stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New builds a *logrus.Logger per cfg.
func New(cfg Config) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	logger.SetLevel(level)

	if cfg.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.File == "" {
		logger.SetOutput(os.Stderr)
		return logger, nil
	}

	logger.SetOutput(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
	return logger, nil
}

func parseLevel(s string) (logrus.Level, error) {
	if s == "" {
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(strings.ToLower(s))
	if err != nil {
		return 0, fmt.Errorf("unknown log level %q: %w", s, err)
	}
	return level, nil
}
