package tester

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"testforge/internal/config"
	"testforge/internal/tactile"
	"testforge/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const addSource = "def add(a: int, b: int) -> int:\n    return a + b\n"

func TestTesterConfigFrom(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.Timeout = "45s"
	cfg.LLM.MaxRetries = 4
	cfg.LLM.RetryBackoff = "250ms"
	cfg.Generation.MinTestCases = 6
	cfg.Generation.MaxTestCases = 8

	tc := TesterConfigFrom(cfg)

	assert.Equal(t, 45*time.Second, tc.LLMTimeout)
	assert.Equal(t, 4, tc.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, tc.RetryBackoff)
	assert.Equal(t, 6, tc.MinTestCases)
	assert.Equal(t, 8, tc.Prompt.MaxTestCases)
}

func TestRun_FallbackPipeline(t *testing.T) {
	runner := &stubRunner{output: allPassingOutput}
	shard := NewTesterShardWithConfig(testConfig())
	shard.SetRunner(runner)

	var observed []*Result
	shard.AddObserver(func(res *Result, err error) {
		assert.NoError(t, err)
		observed = append(observed, res)
	})

	res, err := shard.Run(context.Background(), Request{Source: addSource, LogicalName: "calc.py"})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "calc", res.Module)
	assert.Equal(t, types.OriginFallback, res.Artifact.Origin)
	assert.Equal(t, types.NewRunStatistics(4, 4, 0, 0), res.Stats)
	assert.InDelta(t, 5.0, res.Feedback.Score, 1e-9)
	assert.Equal(t, types.SourceCalculated, res.Feedback.Source)
	assert.Empty(t, res.Feedback.HighSeverityIssues())
	assert.Empty(t, res.Failures)
	assert.Positive(t, res.Durations.Total)

	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, "calc", runner.moduleName)
	assert.Equal(t, addSource, runner.source)
	assert.Equal(t, res.Artifact.SourceText, runner.testSource)

	require.Len(t, observed, 1)
	assert.Same(t, res, observed[0])
}

func TestRun_LLMPipeline(t *testing.T) {
	llm := newFakeLLM().
		onGenerate(llmReply{text: "```python\ndef test_add_positive(self):\n    self.assertEqual(add(2, 3), 5)\n```"}).
		onFeedback(llmReply{text: `{"score": 3, "scoring_explanation": "Good coverage of add.", "issues": [], "strengths": ["Clear"]}`})
	shard := NewTesterShardWithConfig(testConfig())
	shard.SetLLMClient(llm)
	shard.SetRunner(&stubRunner{output: mixedRunOutput})

	res, err := shard.Run(context.Background(), Request{Source: addSource, LogicalName: "calc.py"})
	require.NoError(t, err)

	assert.Equal(t, types.OriginLLM, res.Artifact.Origin)
	assert.Equal(t, types.SourceLLM, res.Feedback.Source)
	assert.Equal(t, "Good coverage of add.", res.Feedback.ScoringExplanation)
	assert.InDelta(t, 2.5, res.Feedback.Score, 1e-9)
	assert.Equal(t, types.NewRunStatistics(4, 2, 1, 1), res.Stats)
	assert.Len(t, res.Failures, 2)
}

func TestRun_ExecutionErrors(t *testing.T) {
	tests := []struct {
		name   string
		runner types.TestRunner
		reason string
	}{
		{"no runner", nil, "no test runner configured"},
		{"execution error", &stubRunner{err: &types.ExecutionError{Reason: "docker daemon unavailable"}}, "docker daemon unavailable"},
		{"plain runner error", &stubRunner{err: errors.New("boom")}, "runner failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shard := NewTesterShardWithConfig(testConfig())
			if tt.runner != nil {
				shard.SetRunner(tt.runner)
			}
			var observedErr error
			shard.AddObserver(func(_ *Result, err error) { observedErr = err })

			res, err := shard.Run(context.Background(), Request{Source: addSource, LogicalName: "calc.py"})

			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrExecution)
			var execErr *types.ExecutionError
			require.ErrorAs(t, err, &execErr)
			assert.Equal(t, tt.reason, execErr.Reason)
			assert.Equal(t, err, observedErr)

			require.NotNil(t, res)
			require.NotNil(t, res.Artifact)
			assert.Equal(t, types.NewRunStatistics(0, 0, 0, 0), res.Stats)
			assert.Equal(t, types.SourceCalculated, res.Feedback.Source)
			assert.Equal(t, 0.0, res.Feedback.Score)
			assert.Equal(t, "No tests were executed; automated evaluation could not compute statistics.", res.Feedback.ScoringExplanation)
		})
	}
}

func TestRun_PathRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "my-mod.py")
	require.NoError(t, os.WriteFile(path, []byte(addSource), 0o644))
	runner := &stubRunner{output: allPassingOutput}
	shard := NewTesterShardWithConfig(testConfig())
	shard.SetRunner(runner)

	res, err := shard.Run(context.Background(), Request{Path: path})
	require.NoError(t, err)

	assert.Equal(t, "my_mod", res.Module)
	assert.Equal(t, "my_mod", res.Summary.ModuleName)
	assert.Equal(t, addSource, res.Source)
	assert.Contains(t, runner.testSource, "import my_mod\n")
}

func TestRun_MissingPath(t *testing.T) {
	shard := NewTesterShardWithConfig(testConfig())
	res, err := shard.Run(context.Background(), Request{Path: filepath.Join(t.TempDir(), "absent.py")})

	assert.Nil(t, res)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGenerateOnly(t *testing.T) {
	shard := NewTesterShardWithConfig(testConfig())
	res, err := shard.Generate(context.Background(), Request{Source: addSource, LogicalName: "calc.py"})
	require.NoError(t, err)

	assert.Equal(t, types.OriginFallback, res.Artifact.Origin)
	require.Len(t, res.Artifact.TestCases, 1)
	assert.Equal(t, "test_add_basic", res.Artifact.TestCases[0].Name)
	assert.Nil(t, res.Feedback)
	assert.Zero(t, res.Durations.Execute)
}

func TestFeedbackOnly(t *testing.T) {
	shard := NewTesterShardWithConfig(testConfig())
	res, err := shard.Feedback(context.Background(), Request{Source: addSource, LogicalName: "calc.py"}, mixedRunOutput)
	require.NoError(t, err)

	assert.Nil(t, res.Artifact)
	assert.Equal(t, types.NewRunStatistics(4, 2, 1, 1), res.Stats)
	assert.InDelta(t, 2.5, res.Feedback.Score, 1e-9)
	assert.Len(t, res.Failures, 2)
}

func TestRun_Concurrent(t *testing.T) {
	shard := NewTesterShardWithConfig(testConfig())
	shard.SetRunner(&stubRunner{output: allPassingOutput})

	var mu sync.Mutex
	ids := map[string]bool{}
	shard.AddObserver(func(res *Result, _ error) {
		mu.Lock()
		defer mu.Unlock()
		ids[res.RunID] = true
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := shard.Run(context.Background(), Request{Source: addSource, LogicalName: "calc.py"})
			assert.NoError(t, err)
			assert.InDelta(t, 5.0, res.Feedback.Score, 1e-9)
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 8)
}

func TestRun_RealPython(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	shard := NewTesterShardWithConfig(testConfig())
	shard.SetRunner(tactile.NewIsolatedExecutor(tactile.NewDirectExecutor(), tactile.IsolatedConfig{
		Timeout:       30 * time.Second,
		WorkspaceRoot: t.TempDir(),
	}))

	res, err := shard.Run(context.Background(), Request{Source: addSource, LogicalName: "calc.py"})
	require.NoError(t, err)

	assert.Equal(t, types.NewRunStatistics(1, 1, 0, 0), res.Stats, res.RawOutput)
	assert.InDelta(t, 5.0, res.Feedback.Score, 1e-9)
}
