// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package logging provides the structured, key-value logger used
// throughout the indexer: every indexer, pool worker, matcher consumer,
// and scheduler job gets a named child logger via New/With, mirroring
// the per-subsystem logger convention used across plugin/evm.
package logging

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	luxlog "github.com/luxfi/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logger interface used across the indexer.
// It mirrors github.com/luxfi/log.Logger so the rest of the codebase
// never imports luxlog directly.
type Logger = luxlog.Logger

// Config controls the root logger's output destinations and verbosity.
type Config struct {
	Level    string // trace, debug, info, warn, error, crit
	FilePath string // optional rotating log file; empty disables file output
}

var root = luxlog.Root()

// Init configures the process-wide root logger. It should be called once
// at startup before any component logger is created. The returned io.Writer
// is the sink callers can wire additional handlers onto (e.g. for tests
// capturing output).
func Init(cfg Config) (io.Writer, error) {
	level, err := luxlog.LvlFromString(cfg.Level)
	if err != nil {
		level = luxlog.LevelInfo
	}

	var out io.Writer
	if isatty.IsTerminal(os.Stdout.Fd()) {
		out = colorable.NewColorableStdout()
	} else {
		out = os.Stdout
	}

	if cfg.FilePath != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    100, // MB
			MaxBackups: 7,
			MaxAge:     30, // days
			Compress:   true,
		})
	}

	root = luxlog.New("sink", out, "level", level)
	return out, nil
}

// New returns a named child logger, e.g. New("indexer", "pool", 3).
func New(ctx ...interface{}) Logger {
	return root.New(ctx...)
}

// Root returns the process-wide root logger.
func Root() Logger {
	return root
}

// NoOp returns a logger that discards everything; used by tests and
// one-shot CLI tools that don't want log noise.
func NoOp() Logger {
	return luxlog.NewNoOpLogger()
}
