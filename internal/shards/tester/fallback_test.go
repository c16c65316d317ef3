package tester

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testforge/internal/tactile"
	"testforge/internal/types"
	"testforge/internal/world"
)

func calcSummary() types.StructuralSummary {
	return types.StructuralSummary{
		ModuleName: "calc",
		Functions: []types.FunctionSig{
			{Name: "add", Parameters: []types.Parameter{
				{Name: "a", Type: types.Hint("int")},
				{Name: "b", Type: types.Hint("int")},
			}, ReturnType: types.Hint("int")},
			{Name: "greet", Parameters: []types.Parameter{
				{Name: "name", Type: types.Hint("str")},
				{Name: "excited"},
				{Name: "*rest"},
			}},
		},
		Classes: []types.ClassSig{{
			Name: "Calculator",
			Methods: []types.FunctionSig{
				{Name: "scale", IsMethod: true, Parameters: []types.Parameter{
					{Name: "self"},
					{Name: "factor", Type: types.Hint("float")},
					{Name: "tags", Type: types.Hint("List[str]")},
				}},
			},
		}},
	}
}

func TestDefaultLiteral(t *testing.T) {
	tests := []struct {
		hint types.TypeHint
		want types.Literal
	}{
		{types.Unknown, "None"},
		{types.Hint("str"), "''"},
		{types.Hint("int"), "0"},
		{types.Hint("float"), "0.0"},
		{types.Hint("bool"), "False"},
		{types.Hint("list"), "[]"},
		{types.Hint("List[int]"), "[]"},
		{types.Hint("typing.Sequence[str]"), "[]"},
		{types.Hint("dict"), "{}"},
		{types.Hint("Dict[str, int]"), "{}"},
		{types.Hint("Mapping"), "{}"},
		{types.Hint("tuple"), "()"},
		{types.Hint("set"), "set()"},
		{types.Hint("Optional[int]"), "None"},
		{types.Hint("Calculator"), "None"},
	}
	for _, tt := range tests {
		t.Run(tt.hint.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, defaultLiteral(tt.hint))
		})
	}
}

func TestSynthesizeTests(t *testing.T) {
	artifact := SynthesizeTests(calcSummary())

	assert.Equal(t, types.OriginFallback, artifact.Origin)
	require.Len(t, artifact.TestCases, 3)

	add := artifact.TestCases[0]
	assert.Equal(t, "test_add_basic", add.Name)
	assert.Equal(t, types.CategoryHappyPath, add.Category)
	assert.Equal(t, types.TestTarget{Function: "add"}, add.Target)
	assert.Equal(t, map[string]types.Literal{"a": "0", "b": "0"}, add.Inputs)
	assert.Equal(t, "Basic test for add", add.Description)
	assert.Nil(t, add.ExpectedOutput)

	greet := artifact.TestCases[1]
	assert.Equal(t, map[string]types.Literal{"name": "''", "excited": "None"}, greet.Inputs)

	scale := artifact.TestCases[2]
	assert.Equal(t, "test_scale_basic", scale.Name)
	assert.Equal(t, types.TestTarget{Class: "Calculator", Method: "scale"}, scale.Target)
	assert.Equal(t, map[string]types.Literal{"factor": "0.0", "tags": "[]"}, scale.Inputs)
	assert.Equal(t, "Basic test for Calculator.scale", scale.Description)

	src := artifact.SourceText
	assert.NoError(t, world.ValidatePython(src))
	assert.Contains(t, src, "import calc\n")
	assert.Contains(t, src, "class TestCalculator(unittest.TestCase):")
	assert.Contains(t, src, "calc.add(a=0, b=0)")
	assert.Contains(t, src, "calc.greet(name='', excited=None)")
	assert.Contains(t, src, "instance = calc.Calculator()\n")
	assert.Contains(t, src, "self.skipTest('cannot construct Calculator: %s' % exc)")
	assert.NotContains(t, src, "__new__")
	assert.Contains(t, src, "instance.scale(factor=0.0, tags=[])")
	assert.Contains(t, src, "except TypeError:")
	assert.True(t, strings.HasSuffix(src, "if __name__ == '__main__':\n    unittest.main()\n"))
}

func TestSynthesizeTests_ConstructorArguments(t *testing.T) {
	summary := types.StructuralSummary{
		ModuleName: "shop",
		Classes: []types.ClassSig{{
			Name: "Cart",
			Methods: []types.FunctionSig{
				{Name: "__init__", IsMethod: true, Parameters: []types.Parameter{
					{Name: "self"},
					{Name: "owner", Type: types.Hint("str")},
					{Name: "items", Type: types.Hint("list")},
				}},
				{Name: "total", IsMethod: true, Parameters: []types.Parameter{{Name: "self"}}},
			},
		}},
	}
	src := SynthesizeTests(summary).SourceText

	assert.Contains(t, src, "instance = shop.Cart(owner='', items=[])")
	assert.Contains(t, src, "instance.total()")
	assert.NoError(t, world.ValidatePython(src))
}

func TestSynthesizeTests_SkipsNestedDefinitions(t *testing.T) {
	summary := types.StructuralSummary{
		ModuleName: "deco",
		Functions: []types.FunctionSig{
			{Name: "logged", Parameters: []types.Parameter{{Name: "fn"}}},
			{Name: "wrapper", Parameters: []types.Parameter{{Name: "*a"}, {Name: "**k"}}, Nested: true},
			{Name: "option", IsMethod: true, Parameters: []types.Parameter{{Name: "self"}}, Nested: true},
		},
		Classes: []types.ClassSig{
			{Name: "Meta", Nested: true, Methods: []types.FunctionSig{
				{Name: "option", IsMethod: true, Parameters: []types.Parameter{{Name: "self"}}, Nested: true},
			}},
		},
	}
	artifact := SynthesizeTests(summary)

	require.Len(t, artifact.TestCases, 1)
	assert.Equal(t, "test_logged_basic", artifact.TestCases[0].Name)
	assert.NotContains(t, artifact.SourceText, "wrapper")
	assert.NotContains(t, artifact.SourceText, "Meta")
	assert.Contains(t, artifact.SourceText, "class TestFunctions(unittest.TestCase):")
}

func TestSynthesizeTests_Deterministic(t *testing.T) {
	assert.Equal(t, SynthesizeTests(calcSummary()), SynthesizeTests(calcSummary()))
}

func TestSynthesizeTests_EmptySummary(t *testing.T) {
	artifact := SynthesizeTests(types.StructuralSummary{ModuleName: "empty"})

	assert.NotNil(t, artifact.TestCases)
	assert.Empty(t, artifact.TestCases)
	assert.Contains(t, artifact.SourceText, "class TestFunctions(unittest.TestCase):\n    pass\n")
	assert.NoError(t, world.ValidatePython(artifact.SourceText))
}

func TestSynthesizeTests_DuplicateNames(t *testing.T) {
	summary := types.StructuralSummary{
		ModuleName: "jobs",
		Classes: []types.ClassSig{
			{Name: "A", Methods: []types.FunctionSig{{Name: "run", IsMethod: true, Parameters: []types.Parameter{{Name: "self"}}}}},
			{Name: "B", Methods: []types.FunctionSig{{Name: "run", IsMethod: true, Parameters: []types.Parameter{{Name: "self"}}}}},
		},
	}
	artifact := SynthesizeTests(summary)

	require.Len(t, artifact.TestCases, 2)
	assert.Equal(t, "test_run_basic", artifact.TestCases[0].Name)
	assert.Equal(t, "test_run_basic_2", artifact.TestCases[1].Name)
	assert.NoError(t, world.ValidatePython(artifact.SourceText))
}

func TestSynthesizeTests_RunsWithPython(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	source := `def add(a: int, b: int) -> int:
    return a + b


class Greeter:
    def __init__(self, name: str):
        self.name = name

    def shout(self, text: str) -> str:
        return text.upper()
`
	summary := world.NewPythonAnalyzer().Analyze(source, "greeting.py")
	artifact := SynthesizeTests(summary)

	runner := tactile.NewIsolatedExecutor(tactile.NewDirectExecutor(), tactile.IsolatedConfig{
		Timeout:       30 * time.Second,
		WorkspaceRoot: t.TempDir(),
	})
	out, err := runner.Run(context.Background(), "greeting", source, artifact.SourceText)
	require.NoError(t, err)

	stats := ParseRunOutput(out)
	assert.Equal(t, types.NewRunStatistics(3, 3, 0, 0), stats, out)
}

func TestSynthesizeTests_DecoratorsAndStatefulClasses(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	source := `def logged(fn):
    def wrapper(*a, **k):
        return fn(*a, **k)
    return wrapper


@logged
def add(a: int, b: int) -> int:
    return a + b


class Counter:
    def __init__(self, start: int = 0):
        self.n = start

    def incr(self, step: int) -> int:
        self.n += step
        return self.n


class Strict:
    def __init__(self, path: str):
        if not path:
            raise ValueError("path required")
        self.path = path

    def read(self) -> str:
        return self.path
`
	summary := world.NewPythonAnalyzer().Analyze(source, "deco.py")
	artifact := SynthesizeTests(summary)
	require.Len(t, artifact.TestCases, 6)

	runner := tactile.NewIsolatedExecutor(tactile.NewDirectExecutor(), tactile.IsolatedConfig{
		Timeout:       30 * time.Second,
		WorkspaceRoot: t.TempDir(),
	})
	out, err := runner.Run(context.Background(), "deco", source, artifact.SourceText)
	require.NoError(t, err)

	// Strict cannot be built from defaults, so its two cases are skipped.
	stats := ParseRunOutput(out)
	assert.Equal(t, 6, stats.Total, out)
	assert.Equal(t, 4, stats.Passed, out)
	assert.Zero(t, stats.Failed, out)
	assert.Zero(t, stats.Errors, out)
	assert.Contains(t, out, "cannot construct Strict: path required")
	assert.NotContains(t, out, "AttributeError")
}

func TestSynthesizeFeedback_OneOfThree(t *testing.T) {
	record := SynthesizeFeedback(types.NewRunStatistics(3, 1, 2, 0))
	assert.Equal(t, 5.0*1/3, record.Score)
}

func TestSynthesizeFeedback(t *testing.T) {
	tests := []struct {
		name            string
		stats           types.RunStatistics
		score           float64
		labels          [3]string
		explanation     string
		coverage        string
		strengthContain string
		weaknessContain string
	}{
		{
			name:            "no tests",
			stats:           types.NewRunStatistics(0, 0, 0, 0),
			score:           0,
			labels:          [3]string{"high", "poor", "poor"},
			explanation:     "No tests were executed; automated evaluation could not compute statistics.",
			coverage:        "0.0%",
			weaknessContain: "No tests were executed",
		},
		{
			name:            "all pass",
			stats:           types.NewRunStatistics(5, 5, 0, 0),
			score:           5,
			labels:          [3]string{"low", "good", "good"},
			explanation:     "Basic automated evaluation based on test results. Passed 5 out of 5 tests.",
			coverage:        "100.0%",
			strengthContain: "All 5 tests passed",
			weaknessContain: "Only 5 test cases, below the minimum of 10",
		},
		{
			name:            "eighty percent",
			stats:           types.NewRunStatistics(10, 8, 1, 1),
			score:           4,
			labels:          [3]string{"low", "good", "good"},
			explanation:     "Basic automated evaluation based on test results. Passed 8 out of 10 tests.",
			coverage:        "80.0%",
			strengthContain: "8 of 10 tests passed",
			weaknessContain: "1 test(s) raised unexpected errors",
		},
		{
			name:            "seventy percent",
			stats:           types.NewRunStatistics(10, 7, 3, 0),
			score:           3.5,
			labels:          [3]string{"medium", "fair", "fair"},
			explanation:     "Basic automated evaluation based on test results. Passed 7 out of 10 tests.",
			coverage:        "70.0%",
			strengthContain: "No test raised an unexpected error",
			weaknessContain: "3 test(s) failed their assertions",
		},
		{
			name:            "half",
			stats:           types.NewRunStatistics(4, 2, 1, 1),
			score:           2.5,
			labels:          [3]string{"high", "poor", "poor"},
			explanation:     "Basic automated evaluation based on test results. Passed 2 out of 4 tests.",
			coverage:        "50.0%",
			strengthContain: "2 of 4 tests passed",
			weaknessContain: "1 test(s) failed their assertions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := SynthesizeFeedback(tt.stats)

			assert.Equal(t, "python3", record.Language)
			assert.InDelta(t, tt.score, record.Score, 1e-9)
			assert.Equal(t, tt.explanation, record.ScoringExplanation)
			assert.Equal(t, types.SourceCalculated, record.Source)
			assert.Equal(t, tt.stats, record.Summary)

			require.Len(t, record.Issues, 1)
			assert.Equal(t, types.Issue{
				Description: "Automated evaluation due to feedback generation failure.",
				Severity:    types.SeverityLow,
				Fix:         "Try running the evaluation again or check the test output manually.",
			}, record.Issues[0])
			assert.Empty(t, record.HighSeverityIssues())

			require.NotNil(t, record.CodeQuality)
			require.NotNil(t, record.PerformanceInsights)
			assert.Equal(t, tt.labels, [3]string{
				record.CodeQuality.Complexity,
				record.CodeQuality.Maintainability,
				record.PerformanceInsights.Efficiency,
			})
			assert.Equal(t, tt.coverage, record.CodeQuality.TestCoverage)

			require.NotNil(t, record.DetailedFeedback)
			assert.NotEmpty(t, record.DetailedFeedback.Recommendations)
			if tt.strengthContain != "" {
				assert.Contains(t, record.DetailedFeedback.Strengths, tt.strengthContain)
			}
			if tt.weaknessContain != "" {
				assert.Contains(t, record.DetailedFeedback.Weaknesses, tt.weaknessContain)
			}
		})
	}
}

func TestSynthesizeFeedback_LowConfidence(t *testing.T) {
	record := SynthesizeFeedback(types.NewRunStatistics(4, 1, 0, 0))

	assert.False(t, record.Summary.Consistent)
	assert.Contains(t, record.ScoringExplanation, "low confidence")
	assert.InDelta(t, 1.25, record.Score, 1e-9)
	assert.Contains(t, record.DetailedFeedback.Weaknesses, "Some runner lines could not be attributed to a result")
}

func TestSynthesizeFeedback_MinimumSuiteSize(t *testing.T) {
	record := calculatedFeedback(types.NewRunStatistics(12, 12, 0, 0), 20)
	assert.Contains(t, record.DetailedFeedback.Weaknesses, "Only 12 test cases, below the minimum of 20")

	record = SynthesizeFeedback(types.NewRunStatistics(12, 12, 0, 0))
	assert.Empty(t, record.DetailedFeedback.Weaknesses)
	assert.Equal(t, []string{"Keep the suite current as the module evolves"}, record.DetailedFeedback.Recommendations)
}
