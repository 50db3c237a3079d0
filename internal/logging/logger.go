package logging

import (
	"io"
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Options selects the shape of the process logger.
type Options struct {
	Name   string
	Level  string // trace, debug, info, warn, error
	JSON   bool
	Output io.Writer
}

var (
	mu     sync.RWMutex
	logger hclog.Logger
)

// New builds an hclog logger from options.
func New(opts Options) hclog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	name := opts.Name
	if name == "" {
		name = "rowwatch"
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		Output:     out,
		JSONFormat: opts.JSON,
	})
}

// SetLogger sets the process-wide logger
func SetLogger(l hclog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// GetLogger returns the process-wide logger, creating a default one on first use
func GetLogger() hclog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = New(Options{})
	}
	return logger
}
