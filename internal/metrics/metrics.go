// Package metrics exports pipeline and sandbox counters in Prometheus format.
//
// Metrics live on a private registry so several pipelines (and tests) can
// coexist in one process. The watch command serves them over HTTP.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"testforge/internal/logging"
	"testforge/internal/shards/tester"
	"testforge/internal/tactile"
	"testforge/internal/types"
)

const (
	metricsNamespace   = "testforge"
	pipelineSubsystem  = "pipeline"
	executionSubsystem = "execution"
)

// Outcome labels for TestsTotal.
const (
	OutcomePassed = "passed"
	OutcomeFailed = "failed"
	OutcomeError  = "error"
)

// Metrics holds the collectors for pipeline runs and sandboxed executions.
type Metrics struct {
	registry *prometheus.Registry

	// RunsTotal counts finished runs.
	// Labels: feedback_source (llm, calculated), artifact_origin (llm, fallback)
	RunsTotal *prometheus.CounterVec

	// RunErrorsTotal counts runs that ended with an execution error.
	RunErrorsTotal prometheus.Counter

	// TestsTotal counts individual test results.
	// Labels: outcome (passed, failed, error)
	TestsTotal *prometheus.CounterVec

	// StageDurationSeconds measures each pipeline stage.
	// Labels: stage (analyze, generate, execute, feedback, total)
	StageDurationSeconds *prometheus.HistogramVec

	// Score observes the final 0-5 score of each run.
	Score prometheus.Histogram

	// ExecutionsTotal counts sandbox lifecycle events.
	// Labels: executor (direct, docker), event (start, complete, killed, error)
	ExecutionsTotal *prometheus.CounterVec

	// ExecutionDurationSeconds measures finished sandbox commands.
	// Labels: executor
	ExecutionDurationSeconds *prometheus.HistogramVec
}

// New creates a Metrics instance on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the collectors on reg. It panics on duplicate registration.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "runs_total",
				Help:      "Total pipeline runs by feedback source and artifact origin",
			},
			[]string{"feedback_source", "artifact_origin"},
		),

		RunErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "run_errors_total",
				Help:      "Total pipeline runs whose tests could not be executed",
			},
		),

		TestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "tests_total",
				Help:      "Total generated tests by outcome",
			},
			[]string{"outcome"},
		),

		StageDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),

		Score: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "score",
				Help:      "Final 0-5 score per run",
				Buckets:   []float64{0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4, 4.5, 5},
			},
		),

		ExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: executionSubsystem,
				Name:      "events_total",
				Help:      "Sandbox execution lifecycle events by executor",
			},
			[]string{"executor", "event"},
		),

		ExecutionDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: executionSubsystem,
				Name:      "duration_seconds",
				Help:      "Sandboxed command duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"executor"},
		),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records a finished pipeline run. Its signature matches
// TesterShard.AddObserver.
func (m *Metrics) ObserveRun(res *tester.Result, err error) {
	if res == nil {
		return
	}
	if err != nil && errors.Is(err, types.ErrExecution) {
		m.RunErrorsTotal.Inc()
	}

	source, origin := "none", "none"
	if res.Feedback != nil {
		if res.Feedback.Source != "" {
			source = string(res.Feedback.Source)
		}
		m.Score.Observe(res.Feedback.Score)
	}
	if res.Artifact != nil && res.Artifact.Origin != "" {
		origin = string(res.Artifact.Origin)
	}
	m.RunsTotal.WithLabelValues(source, origin).Inc()

	m.TestsTotal.WithLabelValues(OutcomePassed).Add(float64(res.Stats.Passed))
	m.TestsTotal.WithLabelValues(OutcomeFailed).Add(float64(res.Stats.Failed))
	m.TestsTotal.WithLabelValues(OutcomeError).Add(float64(res.Stats.Errors))

	d := res.Durations
	for stage, dur := range map[string]time.Duration{
		"analyze":  d.Analyze,
		"generate": d.Generate,
		"execute":  d.Execute,
		"feedback": d.Feedback,
		"total":    d.Total,
	} {
		if dur > 0 {
			m.StageDurationSeconds.WithLabelValues(stage).Observe(dur.Seconds())
		}
	}
}

// ObserveExecution records a sandbox audit event. Register it with
// AuditLogger.AddCallback.
func (m *Metrics) ObserveExecution(event tactile.AuditEvent) {
	executor := event.ExecutorName
	if executor == "" {
		executor = "unknown"
	}
	m.ExecutionsTotal.WithLabelValues(executor, string(event.Type)).Inc()

	if event.Result != nil && (event.Type == tactile.AuditEventComplete || event.Type == tactile.AuditEventKilled) {
		m.ExecutionDurationSeconds.WithLabelValues(executor).Observe(event.Result.Duration.Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.API("metrics listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
