// Package tester runs the test-generation pipeline for one Python module:
// analyze, generate, execute, interpret, feedback.
package tester

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"testforge/internal/config"
	"testforge/internal/logging"
	"testforge/internal/prompt"
	"testforge/internal/types"
	"testforge/internal/world"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// TesterConfig holds configuration for the tester shard.
type TesterConfig struct {
	LLMTimeout   time.Duration // Per-call LLM bound (default: 2 minutes)
	MaxRetries   int           // Extra attempts for retryable LLM errors (default: 2)
	RetryBackoff time.Duration // Base backoff, doubled per attempt (default: 500ms)
	MinTestCases int           // Suite size below which feedback asks for more tests (default: 10)
	Prompt       prompt.Options
}

// DefaultTesterConfig returns sensible defaults for testing.
func DefaultTesterConfig() TesterConfig {
	return TesterConfig{
		LLMTimeout:   2 * time.Minute,
		MaxRetries:   2,
		RetryBackoff: 500 * time.Millisecond,
		MinTestCases: MinTestCases,
		Prompt: prompt.Options{
			MaxTestCases:    prompt.DefaultMaxTestCases,
			MinTestCoverage: prompt.DefaultMinTestCoverage,
		},
	}
}

// TesterConfigFrom maps the loaded configuration onto the pipeline.
func TesterConfigFrom(cfg *config.Config) TesterConfig {
	tc := DefaultTesterConfig()
	tc.LLMTimeout = cfg.GetLLMTimeout()
	tc.MaxRetries = cfg.LLM.MaxRetries
	tc.RetryBackoff = cfg.GetRetryBackoff()
	if cfg.Generation.MinTestCases > 0 {
		tc.MinTestCases = cfg.Generation.MinTestCases
	}
	tc.Prompt = prompt.Options{
		MaxTestCases:    cfg.Generation.MaxTestCases,
		MinTestCoverage: cfg.Generation.MinTestCoverage,
	}
	return tc
}

func (c TesterConfig) withDefaults() TesterConfig {
	d := DefaultTesterConfig()
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = d.LLMTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.MinTestCases <= 0 {
		c.MinTestCases = d.MinTestCases
	}
	return c
}

// =============================================================================
// REQUEST / RESULT
// =============================================================================

// Request names the module to test: a file Path, or Source with a LogicalName.
// When both are set, Source wins and Path only supplies the name.
type Request struct {
	Path        string
	Source      string
	LogicalName string
}

// StageDurations records how long each pipeline stage took.
type StageDurations struct {
	Analyze  time.Duration `json:"analyze"`
	Generate time.Duration `json:"generate"`
	Execute  time.Duration `json:"execute"`
	Feedback time.Duration `json:"feedback"`
	Total    time.Duration `json:"total"`
}

// Result is everything one pipeline invocation produced.
type Result struct {
	RunID     string                   `json:"run_id"`
	Module    string                   `json:"module"`
	Source    string                   `json:"-"`
	Summary   types.StructuralSummary  `json:"summary"`
	Artifact  *types.GeneratedArtifact `json:"artifact,omitempty"`
	RawOutput string                   `json:"-"`
	Stats     types.RunStatistics      `json:"stats"`
	Feedback  *types.FeedbackRecord    `json:"feedback,omitempty"`
	Failures  []FailedTest             `json:"failures,omitempty"`
	StartedAt time.Time                `json:"started_at"`
	Durations StageDurations           `json:"durations"`
}

// =============================================================================
// TESTER SHARD
// =============================================================================

// TesterShard wires the pipeline stages together. It holds no per-run state:
// concurrent Run calls share only the configured collaborators.
type TesterShard struct {
	mu sync.RWMutex

	config TesterConfig

	analyzer  types.StructuralAnalyzer
	llmClient types.LLMClient
	runner    types.TestRunner

	observers []func(*Result, error)
}

// NewTesterShard creates a tester shard with default configuration.
func NewTesterShard() *TesterShard {
	return NewTesterShardWithConfig(DefaultTesterConfig())
}

// NewTesterShardWithConfig creates a tester shard with custom configuration.
func NewTesterShardWithConfig(cfg TesterConfig) *TesterShard {
	return &TesterShard{
		config:   cfg.withDefaults(),
		analyzer: world.NewPythonAnalyzer(),
	}
}

// SetLLMClient sets the LLM client. nil disables the LLM paths.
func (t *TesterShard) SetLLMClient(client types.LLMClient) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.llmClient = client
}

// SetRunner sets the isolated test runner.
func (t *TesterShard) SetRunner(runner types.TestRunner) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runner = runner
}

// SetAnalyzer replaces the structural analyzer.
func (t *TesterShard) SetAnalyzer(analyzer types.StructuralAnalyzer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.analyzer = analyzer
}

// AddObserver registers a callback invoked after every Run.
func (t *TesterShard) AddObserver(fn func(*Result, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

func (t *TesterShard) snapshot() (types.StructuralAnalyzer, types.LLMClient, types.TestRunner, []func(*Result, error)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.analyzer, t.llmClient, t.runner, append([]func(*Result, error){}, t.observers...)
}

// resolve loads the request's source and derives its logical name.
func resolve(req Request) (source, logicalName string, err error) {
	source = req.Source
	if source == "" && req.Path != "" {
		data, err := os.ReadFile(req.Path)
		if err != nil {
			return "", "", fmt.Errorf("failed to read %s: %w", req.Path, err)
		}
		source = string(data)
	}

	logicalName = req.LogicalName
	if logicalName == "" && req.Path != "" {
		logicalName = filepath.Base(req.Path)
	}
	return source, world.ImportableName(logicalName) + ".py", nil
}

// begin resolves the request and runs the analysis stage.
func (t *TesterShard) begin(req Request) (*Result, error) {
	source, logicalName, err := resolve(req)
	if err != nil {
		return nil, err
	}
	analyzer, _, _, _ := t.snapshot()

	res := &Result{
		RunID:     uuid.NewString(),
		Module:    world.ModuleName(logicalName),
		Source:    source,
		StartedAt: time.Now(),
	}
	start := time.Now()
	res.Summary = analyzer.Analyze(source, logicalName)
	res.Durations.Analyze = time.Since(start)
	return res, nil
}

// Generate runs analysis and test generation only.
func (t *TesterShard) Generate(ctx context.Context, req Request) (*Result, error) {
	res, err := t.begin(req)
	if err != nil {
		return nil, err
	}
	_, client, _, _ := t.snapshot()

	start := time.Now()
	res.Artifact = NewTestGenerator(client, t.config).Generate(ctx, res.Source, res.Summary)
	res.Durations.Generate = time.Since(start)
	res.Durations.Total = time.Since(res.StartedAt)
	return res, nil
}

// Feedback interprets existing runner output for a module without running anything.
func (t *TesterShard) Feedback(ctx context.Context, req Request, rawOutput string) (*Result, error) {
	res, err := t.begin(req)
	if err != nil {
		return nil, err
	}
	_, client, _, _ := t.snapshot()

	res.RawOutput = rawOutput
	t.interpret(ctx, client, res)
	res.Durations.Total = time.Since(res.StartedAt)
	return res, nil
}

// slowRunThreshold is the pipeline duration above which a run is logged as slow.
const slowRunThreshold = 2 * time.Minute

// Run executes the full pipeline. Every stage failure except execution is
// absorbed into fallbacks. When the runner could not produce output, Run
// returns the *types.ExecutionError together with a Result carrying zero
// statistics and calculated feedback.
func (t *TesterShard) Run(ctx context.Context, req Request) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryTester, "Pipeline run")
	defer timer.StopWithThreshold(slowRunThreshold)

	res, err := t.begin(req)
	if err != nil {
		return nil, err
	}
	_, client, runner, observers := t.snapshot()
	log := logging.Get(logging.CategoryTester).WithRunID(res.RunID)
	log.Info("run started: module=%s functions=%d classes=%d",
		res.Module, len(res.Summary.Functions), len(res.Summary.Classes))

	defer func() {
		res.Durations.Total = time.Since(res.StartedAt)
		for _, fn := range observers {
			fn(res, err)
		}
	}()

	start := time.Now()
	res.Artifact = NewTestGenerator(client, t.config).Generate(ctx, res.Source, res.Summary)
	res.Durations.Generate = time.Since(start)
	log.Info("tests generated: origin=%s cases=%d", res.Artifact.Origin, len(res.Artifact.TestCases))

	if runner == nil {
		err = &types.ExecutionError{Reason: "no test runner configured"}
		t.absorbExecutionError(res, err)
		return res, err
	}

	start = time.Now()
	output, execErr := runner.Run(ctx, res.Module, res.Source, res.Artifact.SourceText)
	res.Durations.Execute = time.Since(start)
	if execErr != nil {
		log.Error("execution failed: %v", execErr)
		err = execErr
		if !errors.Is(execErr, types.ErrExecution) {
			err = &types.ExecutionError{Reason: "runner failed", Err: execErr}
		}
		t.absorbExecutionError(res, err)
		return res, err
	}
	res.RawOutput = output

	t.interpret(ctx, client, res)
	log.Info("run finished: %s score=%.2f source=%s", res.Stats, res.Feedback.Score, res.Feedback.Source)
	return res, nil
}

// interpret parses output and builds feedback.
func (t *TesterShard) interpret(ctx context.Context, client types.LLMClient, res *Result) {
	start := time.Now()
	res.Failures = FailedTests(res.RawOutput)
	res.Feedback = NewFeedbackOrchestrator(client, t.config).GenerateFeedback(ctx, res.RawOutput, res.Source)
	res.Stats = res.Feedback.Summary
	res.Durations.Feedback = time.Since(start)
}

func (t *TesterShard) absorbExecutionError(res *Result, err error) {
	res.Stats = types.NewRunStatistics(0, 0, 0, 0)
	res.Feedback = calculatedFeedback(res.Stats, t.config.MinTestCases)
	logging.TesterWarn("execution error for %s, reporting calculated feedback: %v", res.Module, err)
}
