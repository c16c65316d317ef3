package tactile

import (
	"sync"
	"time"

	"testforge/internal/logging"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "start"
	AuditEventComplete AuditEventType = "complete"
	AuditEventKilled   AuditEventType = "killed"
	AuditEventError    AuditEventType = "error"
)

// AuditEvent is one execution lifecycle event.
type AuditEvent struct {
	Type         AuditEventType   `json:"type"`
	Timestamp    time.Time        `json:"timestamp"`
	Command      Command          `json:"command"`
	Result       *ExecutionResult `json:"result,omitempty"`
	RunID        string           `json:"run_id,omitempty"`
	ExecutorName string           `json:"executor_name"`
}

func newAuditEvent(eventType AuditEventType, executor string, cmd Command, result *ExecutionResult) AuditEvent {
	return AuditEvent{
		Type:         eventType,
		Timestamp:    time.Now(),
		Command:      cmd,
		Result:       result,
		RunID:        cmd.RunID,
		ExecutorName: executor,
	}
}

// AuditLogger fans execution events out to the log, in-memory counters and
// any registered callbacks (the metrics exporter registers one).
type AuditLogger struct {
	mu        sync.RWMutex
	callbacks []func(AuditEvent)
	metrics   *ExecutionMetrics
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{
		metrics: NewExecutionMetrics(),
	}
}

// AddCallback adds a callback function for audit events.
func (l *AuditLogger) AddCallback(callback func(AuditEvent)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, callback)
}

// Attach registers the logger on executor when it emits events.
func (l *AuditLogger) Attach(executor Executor) {
	if a, ok := executor.(auditable); ok {
		a.SetAuditCallback(l.Log)
	}
}

// Log records an audit event.
func (l *AuditLogger) Log(event AuditEvent) {
	l.mu.RLock()
	callbacks := l.callbacks
	l.mu.RUnlock()

	l.metrics.RecordEvent(event)

	switch event.Type {
	case AuditEventStart:
		logging.TactileDebug("[audit] start run=%s executor=%s cmd=%s", event.RunID, event.ExecutorName, event.Command.CommandString())
	case AuditEventKilled:
		logging.TactileWarn("[audit] killed run=%s executor=%s reason=%s", event.RunID, event.ExecutorName, event.Result.KillReason)
	case AuditEventError:
		logging.TactileError("[audit] error run=%s executor=%s err=%s", event.RunID, event.ExecutorName, event.Result.Error)
	default:
		if event.Result != nil {
			logging.TactileDebug("[audit] complete run=%s executor=%s exit=%d duration=%s",
				event.RunID, event.ExecutorName, event.Result.ExitCode, event.Result.Duration)
		}
	}

	for _, cb := range callbacks {
		cb(event)
	}
}

// Snapshot returns the current execution counters.
func (l *AuditLogger) Snapshot() ExecutionMetricsSnapshot {
	return l.metrics.Snapshot()
}

// ExecutionMetrics tracks aggregate execution statistics.
type ExecutionMetrics struct {
	mu sync.Mutex

	total     int64
	completed int64
	nonZero   int64
	killed    int64
	failed    int64

	totalDuration time.Duration
	byExecutor    map[string]int64
}

// NewExecutionMetrics creates a new metrics tracker.
func NewExecutionMetrics() *ExecutionMetrics {
	return &ExecutionMetrics{byExecutor: make(map[string]int64)}
}

// RecordEvent updates metrics based on an audit event.
func (m *ExecutionMetrics) RecordEvent(event AuditEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch event.Type {
	case AuditEventStart:
		m.total++
		m.byExecutor[event.ExecutorName]++
	case AuditEventComplete:
		m.completed++
		if event.Result != nil {
			if event.Result.ExitCode != 0 {
				m.nonZero++
			}
			m.totalDuration += event.Result.Duration
		}
	case AuditEventKilled:
		m.killed++
		if event.Result != nil {
			m.totalDuration += event.Result.Duration
		}
	case AuditEventError:
		m.failed++
	}
}

// ExecutionMetricsSnapshot is a point-in-time snapshot of metrics.
type ExecutionMetricsSnapshot struct {
	Total       int64            `json:"total"`
	Completed   int64            `json:"completed"`
	NonZeroExit int64            `json:"non_zero_exit"`
	Killed      int64            `json:"killed"`
	Failed      int64            `json:"failed"`
	AvgDuration time.Duration    `json:"avg_duration"`
	ByExecutor  map[string]int64 `json:"by_executor"`
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *ExecutionMetrics) Snapshot() ExecutionMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	byExecutor := make(map[string]int64, len(m.byExecutor))
	for k, v := range m.byExecutor {
		byExecutor[k] = v
	}

	var avg time.Duration
	if finished := m.completed + m.killed; finished > 0 {
		avg = m.totalDuration / time.Duration(finished)
	}

	return ExecutionMetricsSnapshot{
		Total:       m.total,
		Completed:   m.completed,
		NonZeroExit: m.nonZero,
		Killed:      m.killed,
		Failed:      m.failed,
		AvgDuration: avg,
		ByExecutor:  byExecutor,
	}
}
