// Package logging sets up the process-wide zerolog logger and hands out
// per-component loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ppiankov/ranker/internal/model"
)

// Manager owns the root logger and its writers
type Manager struct {
	root       zerolog.Logger
	components map[string]zerolog.Logger
	closers    []io.Closer
	mu         sync.RWMutex
}

// NewManager builds a root logger from cfg writing to stderr and, when
// configured, to a rotated log file
func NewManager(cfg model.LogConfig) (*Manager, error) {
	return newManager(cfg, os.Stderr)
}

func newManager(cfg model.LogConfig, console io.Writer) (*Manager, error) {
	m := &Manager{components: make(map[string]zerolog.Logger)}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	var writers []io.Writer
	if cfg.Format == "console" {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        console,
			TimeFormat: "15:04:05.000",
			FormatLevel: func(i interface{}) string {
				return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
			},
		})
	} else {
		writers = append(writers, console)
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, errors.Wrap(err, "create log directory")
		}
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		m.closers = append(m.closers, file)
		writers = append(writers, file) // files always get JSON lines
	}

	m.root = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level)).
		With().Timestamp().Logger()

	return m, nil
}

// Get returns the logger for a component
func (m *Manager) Get(component string) zerolog.Logger {
	m.mu.RLock()
	logger, ok := m.components[component]
	m.mu.RUnlock()
	if ok {
		return logger
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if logger, ok := m.components[component]; ok {
		return logger
	}
	logger = m.root.With().Str("component", component).Logger()
	m.components[component] = logger
	return logger
}

// Close closes the rotated log file, if any
func (m *Manager) Close() error {
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			return err
		}
	}
	return nil
}

// ParseLevel converts a level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

var (
	global   *Manager
	globalMu sync.RWMutex
)

// Initialize installs the process-wide manager, replacing any previous one
func Initialize(cfg model.LogConfig) error {
	m, err := NewManager(cfg)
	if err != nil {
		return err
	}
	globalMu.Lock()
	previous := global
	global = m
	globalMu.Unlock()
	if previous != nil {
		_ = previous.Close()
	}
	return nil
}

// Get returns a component logger from the process-wide manager, or a
// discarding logger before Initialize
func Get(component string) zerolog.Logger {
	globalMu.RLock()
	m := global
	globalMu.RUnlock()
	if m == nil {
		return zerolog.Nop()
	}
	return m.Get(component)
}

// Close closes the process-wide manager
func Close() error {
	globalMu.RLock()
	m := global
	globalMu.RUnlock()
	if m == nil {
		return nil
	}
	return m.Close()
}
