// Package logging provides categorized logging for meetsense.
// Each subsystem logs under its own category so a single decision can be
// traced across the classifier, entity cache, LLM calls, and scope checks.
// Output goes through zap; debug categories are silent unless enabled.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup and configuration
	CategoryDecision Category = "decision" // Orchestrator state transitions
	CategoryPatterns Category = "patterns" // Keyword/regex matching
	CategoryEntities Category = "entities" // Entity cache refresh and lookups
	CategoryLLM      Category = "llm"      // LLM API calls
	CategoryScope    Category = "scope"    // Aggregate scope checks
)

// Logger wraps a zap sugared logger bound to a category.
type Logger struct {
	category Category
	zl       *zap.SugaredLogger
}

var (
	loggersMu sync.RWMutex
	loggers   = make(map[Category]*Logger)
	base      *zap.Logger
	level     = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Initialize builds the shared zap core. Safe to call more than once; the
// last call wins. When debug is false, Debug-level output is suppressed.
func Initialize(debug bool) error {
	cfg := zap.NewProductionConfig()
	if debug {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
	cfg.Level = level
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	loggersMu.Lock()
	base = logger
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
	return nil
}

// SetDebug toggles debug output at runtime.
func SetDebug(debug bool) {
	if debug {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
}

// Get returns the logger for a category, creating it on first use.
func Get(cat Category) *Logger {
	loggersMu.RLock()
	l, ok := loggers[cat]
	loggersMu.RUnlock()
	if ok {
		return l
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	if base == nil {
		// Nop core until Initialize is called; tests rely on this.
		base = zap.NewNop()
	}
	l = &Logger{
		category: cat,
		zl:       base.Sugar().Named(string(cat)),
	}
	loggers[cat] = l
	return l
}

// Sync flushes buffered log entries.
func Sync() {
	loggersMu.RLock()
	defer loggersMu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// Debug logs a printf-style debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.zl.Debugf(format, args...)
}

// Info logs a printf-style info message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.zl.Infof(format, args...)
}

// Warn logs a printf-style warning.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.zl.Warnf(format, args...)
}

// Error logs a printf-style error.
func (l *Logger) Error(format string, args ...interface{}) {
	l.zl.Errorf(format, args...)
}

// Convenience helpers mirroring the category constants.

func Decision(format string, args ...interface{})      { Get(CategoryDecision).Info(format, args...) }
func DecisionDebug(format string, args ...interface{}) { Get(CategoryDecision).Debug(format, args...) }
func Patterns(format string, args ...interface{})      { Get(CategoryPatterns).Info(format, args...) }
func PatternsDebug(format string, args ...interface{}) { Get(CategoryPatterns).Debug(format, args...) }
func Entities(format string, args ...interface{})      { Get(CategoryEntities).Info(format, args...) }
func EntitiesDebug(format string, args ...interface{}) { Get(CategoryEntities).Debug(format, args...) }
func LLM(format string, args ...interface{})           { Get(CategoryLLM).Info(format, args...) }
func LLMDebug(format string, args ...interface{})      { Get(CategoryLLM).Debug(format, args...) }
func Scope(format string, args ...interface{})         { Get(CategoryScope).Info(format, args...) }
func ScopeDebug(format string, args ...interface{})    { Get(CategoryScope).Debug(format, args...) }

// Timer measures operation duration for the performance-sensitive paths.
type Timer struct {
	category  Category
	operation string
	start     time.Time
}

// StartTimer begins timing an operation.
func StartTimer(cat Category, operation string) *Timer {
	return &Timer{
		category:  cat,
		operation: operation,
		start:     time.Now(),
	}
}

// Stop logs the elapsed time at debug level.
func (t *Timer) Stop() {
	Get(t.category).Debug("%s took %s", t.operation, time.Since(t.start))
}
