// Package logger configures the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"

	"himawari-desktop/internal/config"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init installs the global logger. Records go to stderr (console format when
// cfg.Log.Pretty, JSON otherwise) and are appended to cfg.Log.File when set.
// The returned closer releases the log file.
func Init(cfg *config.Config) (io.Closer, error) {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Log.Level))); err == nil && l != zerolog.NoLevel {
		level = l
	}
	zerolog.SetGlobalLevel(level)

	var console io.Writer = os.Stderr
	if cfg.Log.Pretty {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	writers := []io.Writer{console}
	var closer io.Closer = nopCloser{}

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}

	zlog.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.Telemetry.ServiceName).
		Logger()

	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)

	return closer, nil
}

// Component returns a child of the global logger tagged with the component name
func Component(name string) zerolog.Logger {
	return zlog.With().Str("component", name).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
