// Package logging provides categorized zap-based logging for dirigent.
// Every engine component logs through a named child of one shared root
// logger, so origins are attributable without per-package logger plumbing.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logging subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"
	CategoryExtract  Category = "extract"
	CategorySchema   Category = "schema"
	CategoryRouter   Category = "router"
	CategoryTracker  Category = "tracker"
	CategoryEval     Category = "eval"
	CategoryLoop     Category = "loop"
	CategoryLLM      Category = "llm"
	CategoryWorker   Category = "worker"
	CategoryObserver Category = "observer"
	CategoryStore    Category = "store"
)

var (
	mu    sync.RWMutex
	root  = zap.NewNop()
	named = map[Category]*zap.Logger{}
)

// Initialize builds the process root logger. Debug mode switches to the
// development config (console encoding, debug level). Safe to call more
// than once; later calls replace the root and drop cached children.
func Initialize(debug bool) error {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	root = logger
	named = map[Category]*zap.Logger{}
	return nil
}

// L returns the logger for a category, creating and caching it on first use.
func L(cat Category) *zap.Logger {
	mu.RLock()
	if l, ok := named[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := named[cat]; ok {
		return l
	}
	l := root.Named(string(cat))
	named[cat] = l
	return l
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// SetRoot swaps in a caller-built logger. Used by tests to capture output.
func SetRoot(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = l
	named = map[Category]*zap.Logger{}
}
