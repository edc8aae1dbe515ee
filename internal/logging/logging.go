// Package logging provides the process-wide structured logger, built
// on zerolog. It mirrors the teacher framework's debug.Logger
// singleton shape (Default/SetLevel/SetOutput) but delegates all
// formatting and level filtering to zerolog rather than hand-rolling
// it.
package logging

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	mu            sync.Mutex
)

func init() {
	defaultLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// Default returns the process-wide logger.
func Default() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return defaultLogger
}

// SetLevel adjusts the minimum level the default logger emits.
func SetLevel(level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = defaultLogger.Level(level)
}

// SetJSON switches the default logger to structured JSON output,
// suited to production deployments where logs are shipped to an
// aggregator rather than read on a terminal.
func SetJSON() {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(defaultLogger.GetLevel())
}

// Named returns a child logger tagged with a "component" field, the
// convention every package in this module uses to identify its log
// lines (graph, sched, device, server, diag, ...).
func Named(component string) zerolog.Logger {
	return Default().With().Str("component", component).Logger()
}
