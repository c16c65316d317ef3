// Package logging provides config-driven categorized logging for testforge.
// Every category logs through one shared zap logger with a "category" field.
// Until SetLogger is called the root logger is a no-op, so library use is silent.
package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot         Category = "boot"         // Startup, config loading
	CategoryAPI          Category = "api"          // LLM API calls
	CategoryWorld        Category = "world"        // Structural analysis (tree-sitter)
	CategoryArticulation Category = "articulation" // LLM response extraction and repair
	CategoryTester       Category = "tester"       // Generation, interpretation, feedback
	CategoryTactile      Category = "tactile"      // Isolated execution
	CategoryStore        Category = "store"        // Artifacts and run history
	CategoryPerformance  Category = "performance"  // Slow operations
)

// Config controls which categories are emitted.
type Config struct {
	DebugMode  bool
	Categories map[string]bool
}

// Logger wraps a sugared zap logger bound to one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	rootMu  sync.RWMutex
	root    = zap.NewNop()
	cfg     Config
	loggers = make(map[Category]*Logger)
)

// SetLogger installs the root zap logger and drops cached category loggers.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	rootMu.Lock()
	defer rootMu.Unlock()
	root = l
	loggers = make(map[Category]*Logger)
}

// Configure sets the category toggles.
func Configure(c Config) {
	rootMu.Lock()
	defer rootMu.Unlock()
	cfg = c
	loggers = make(map[Category]*Logger)
}

// Root returns the installed zap logger.
func Root() *zap.Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}

func categoryEnabledLocked(category Category) bool {
	if cfg.Categories == nil {
		return true
	}
	enabled, exists := cfg.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns the logger for a category.
func Get(category Category) *Logger {
	rootMu.RLock()
	if l, ok := loggers[category]; ok {
		rootMu.RUnlock()
		return l
	}
	rootMu.RUnlock()

	rootMu.Lock()
	defer rootMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	base := root
	if !categoryEnabledLocked(category) {
		base = zap.NewNop()
	}
	l := &Logger{
		category: category,
		sugar:    base.With(zap.String("category", string(category))).Sugar(),
	}
	loggers[category] = l
	return l
}

// Debug logs at debug level. Debug output additionally requires Config.DebugMode.
func (l *Logger) Debug(format string, args ...interface{}) {
	rootMu.RLock()
	debug := cfg.DebugMode
	rootMu.RUnlock()
	if !debug {
		return
	}
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a child logger carrying structured key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// WithRunID returns a child logger tagged with a pipeline run ID.
func (l *Logger) WithRunID(runID string) *Logger {
	return l.With("run_id", runID)
}

// Sync flushes the root logger.
func Sync() {
	_ = Root().Sync()
}

// =============================================================================
// CATEGORY CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }

func API(format string, args ...interface{})      { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }
func APIWarn(format string, args ...interface{})  { Get(CategoryAPI).Warn(format, args...) }
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Error(format, args...) }

func WorldDebug(format string, args ...interface{}) { Get(CategoryWorld).Debug(format, args...) }
func WorldWarn(format string, args ...interface{})  { Get(CategoryWorld).Warn(format, args...) }

func ArticulationDebug(format string, args ...interface{}) {
	Get(CategoryArticulation).Debug(format, args...)
}
func ArticulationWarn(format string, args ...interface{}) {
	Get(CategoryArticulation).Warn(format, args...)
}

func Tester(format string, args ...interface{})      { Get(CategoryTester).Info(format, args...) }
func TesterDebug(format string, args ...interface{}) { Get(CategoryTester).Debug(format, args...) }
func TesterWarn(format string, args ...interface{})  { Get(CategoryTester).Warn(format, args...) }

func Tactile(format string, args ...interface{})      { Get(CategoryTactile).Info(format, args...) }
func TactileDebug(format string, args ...interface{}) { Get(CategoryTactile).Debug(format, args...) }
func TactileWarn(format string, args ...interface{})  { Get(CategoryTactile).Warn(format, args...) }
func TactileError(format string, args ...interface{}) { Get(CategoryTactile).Error(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreWarn(format string, args ...interface{})  { Get(CategoryStore).Warn(format, args...) }

// =============================================================================
// TIMERS
// =============================================================================

// Timer measures one operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer starts timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop logs the elapsed time at debug level and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold warns (and logs to performance) when the operation exceeded threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
		Get(CategoryPerformance).Warn("slow operation: %s/%s took %v", t.category, t.op, elapsed)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
