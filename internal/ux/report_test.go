package ux

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"testforge/internal/shards/tester"
	"testforge/internal/store"
	"testforge/internal/types"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

func stripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

func reportResult() *tester.Result {
	stats := types.NewRunStatistics(4, 2, 1, 1)
	return &tester.Result{
		RunID:  "run-1",
		Module: "calc",
		Stats:  stats,
		Artifact: &types.GeneratedArtifact{
			TestCases: make([]types.TestCaseSpec, 4),
			Origin:    types.OriginLLM,
		},
		Feedback: &types.FeedbackRecord{
			Score:              2.5,
			ScoringExplanation: "Half of the suite passed.",
			Issues: []types.Issue{
				{Description: "Division by zero is unhandled", Severity: types.SeverityHigh, Fix: "Guard the divisor"},
			},
			Strengths: []string{"Readable names"},
			Summary:   stats,
			Source:    types.SourceLLM,
			DetailedFeedback: &types.DetailedFeedback{
				Recommendations: []string{"Add edge case tests"},
			},
		},
		Failures: []tester.FailedTest{
			{Name: "test_c", Kind: "FAIL", Message: "AssertionError: 2 != 3"},
			{Name: "test_d", Kind: "ERROR", Message: "AttributeError: boom"},
		},
		Durations: tester.StageDurations{Total: 1234 * time.Millisecond},
	}
}

func TestReport_Plain(t *testing.T) {
	r := NewRenderer(NewStyles(LightTheme()), ReportOptions{Width: 90, Plain: true})
	paths := store.ArtifactPaths{Feedback: "out/calc_feedback.json", TestCode: "out/calc_test.py"}

	out := stripANSI(r.Report(reportResult(), paths, nil))

	for _, want := range []string{
		"calc", "run-1",
		"2.50 / 5",
		"2 passed", "1 failed", "1 errors", "of 4",
		"4 cases (llm)",
		"1.234s",
		"FAIL test_c", "AssertionError: 2 != 3",
		"ERROR test_d",
		"out/calc_feedback.json", "out/calc_test.py",
		"## Issues",
		"- **High**: Division by zero is unhandled",
		"  - Fix: Guard the divisor",
		"- Readable names",
		"- Add edge case tests",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "counts incomplete")
	assert.NotContains(t, out, "Error ")
}

func TestReport_ExecutionError(t *testing.T) {
	r := NewRenderer(NewStyles(DarkTheme()), ReportOptions{Width: 100, Plain: true})
	res := &tester.Result{
		RunID:  "run-2",
		Module: "calc",
		Stats:  types.NewRunStatistics(3, 1, 0, 0),
	}

	out := stripANSI(r.Report(res, store.ArtifactPaths{}, errors.New("docker unavailable")))

	assert.Contains(t, out, "docker unavailable")
	assert.Contains(t, out, "counts incomplete")
	assert.NotContains(t, out, "Score")
	assert.NotContains(t, out, "Artifacts")
}

func TestReport_Glamour(t *testing.T) {
	r := NewRenderer(NewStyles(LightTheme()), ReportOptions{Width: 80})
	out := stripANSI(r.Report(reportResult(), store.ArtifactPaths{}, nil))

	assert.Contains(t, out, "Issues")
	assert.Contains(t, out, "Guard")
	assert.NotContains(t, out, "**High**", "markdown emphasis should be rendered")
}

func TestScoreBar(t *testing.T) {
	assert.Equal(t, strings.Repeat("█", 10), ScoreBar(5, 10))
	assert.Equal(t, strings.Repeat("░", 10), ScoreBar(0, 10))
	assert.Equal(t, "█████░░░░░", ScoreBar(2.5, 10))
	assert.Equal(t, strings.Repeat("█", 10), ScoreBar(7, 10))
	assert.Equal(t, strings.Repeat("░", 10), ScoreBar(-1, 10))
}

func TestFeedbackMarkdown_Minimal(t *testing.T) {
	md := FeedbackMarkdown(&types.FeedbackRecord{ScoringExplanation: "Nothing ran."})
	assert.Equal(t, "Nothing ran.\n\n", md)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "a...", truncate("abcdefgh", 1))
}

func TestDetectTheme(t *testing.T) {
	t.Setenv("FORGE_DARK_MODE", "")
	t.Setenv("COLORFGBG", "15;0")
	assert.True(t, DetectTheme().IsDark)

	t.Setenv("COLORFGBG", "0;15")
	assert.False(t, DetectTheme().IsDark)

	t.Setenv("FORGE_DARK_MODE", "1")
	assert.True(t, DetectTheme().IsDark)
}

func TestScoreStyle(t *testing.T) {
	s := NewStyles(LightTheme())
	assert.Equal(t, s.Success.GetForeground(), s.ScoreStyle(4.5).GetForeground())
	assert.Equal(t, s.Warning.GetForeground(), s.ScoreStyle(3).GetForeground())
	assert.Equal(t, s.Error.GetForeground(), s.ScoreStyle(1).GetForeground())
}
