package logging

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func installObserver(t *testing.T, c Config) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	Configure(c)
	t.Cleanup(func() {
		SetLogger(nil)
		Configure(Config{})
	})
	return logs
}

func TestCategoryFieldAttached(t *testing.T) {
	logs := installObserver(t, Config{})

	Tester("generated %d tests", 3)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "generated 3 tests", entry.Message)
	assert.Equal(t, "tester", entry.ContextMap()["category"])
}

func TestDebugRequiresDebugMode(t *testing.T) {
	logs := installObserver(t, Config{DebugMode: false})
	TactileDebug("hidden")
	assert.Equal(t, 0, logs.Len())

	Configure(Config{DebugMode: true})
	TactileDebug("shown")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
}

func TestDisabledCategoryIsSilent(t *testing.T) {
	logs := installObserver(t, Config{
		DebugMode:  true,
		Categories: map[string]bool{"api": false},
	})

	API("should not appear")
	WorldWarn("should appear")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "world", logs.All()[0].ContextMap()["category"])
}

func TestWithRunID(t *testing.T) {
	logs := installObserver(t, Config{})

	Get(CategoryTester).WithRunID("abc-123").Info("done")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "abc-123", logs.All()[0].ContextMap()["run_id"])
}

func TestTimerThreshold(t *testing.T) {
	logs := installObserver(t, Config{DebugMode: true})

	timer := StartTimer(CategoryTactile, "run")
	time.Sleep(5 * time.Millisecond)
	elapsed := timer.StopWithThreshold(time.Millisecond)

	assert.GreaterOrEqual(t, elapsed, time.Millisecond)
	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 2)
	assert.Equal(t, "performance", warns[1].ContextMap()["category"])
}

func TestConcurrentGet(t *testing.T) {
	installObserver(t, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Get(CategoryStore).Info("x")
		}()
	}
	wg.Wait()
	assert.Same(t, Get(CategoryStore), Get(CategoryStore))
}
