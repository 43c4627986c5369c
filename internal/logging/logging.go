package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Destination selects where log output goes
type Destination string

const (
	// Console writes to stderr
	Console Destination = "console"
	// File appends to Options.FilePath
	File Destination = "file"
)

// Options configures New
type Options struct {
	Debug       bool        // development encoder and debug level
	Destination Destination // defaults to Console
	FilePath    string      // required for File
}

// New builds the application logger
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch opts.Destination {
	case "", Console:
		cfg.OutputPaths = []string{"stderr"}
	case File:
		if opts.FilePath == "" {
			return nil, fmt.Errorf("log destination %q needs a file path", File)
		}
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err != nil {
			return nil, err
		}
		cfg.OutputPaths = []string{opts.FilePath}
	default:
		return nil, fmt.Errorf("unknown log destination %q", opts.Destination)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
