package tester

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"testforge/internal/articulation"
	"testforge/internal/logging"
	"testforge/internal/prompt"
	"testforge/internal/types"
	"testforge/internal/world"
)

// =============================================================================
// TEST GENERATION
// =============================================================================

// TestGenerator asks the LLM for a unittest suite and falls back to a
// synthesized skeleton whenever the answer cannot be used.
type TestGenerator struct {
	client  types.LLMClient
	builder *prompt.Builder
	config  TesterConfig
}

// NewTestGenerator creates a generator. client may be nil.
func NewTestGenerator(client types.LLMClient, cfg TesterConfig) *TestGenerator {
	cfg = cfg.withDefaults()
	return &TestGenerator{
		client:  client,
		builder: prompt.NewBuilder(cfg.Prompt),
		config:  cfg,
	}
}

// Generate returns a runnable test module for source. It never returns nil
// and always returns syntactically valid Python.
func (g *TestGenerator) Generate(ctx context.Context, source string, summary types.StructuralSummary) *types.GeneratedArtifact {
	timer := logging.StartTimer(logging.CategoryTester, "Test generation")
	defer timer.Stop()

	if g.client == nil {
		logging.TesterWarn("no LLM client configured, synthesizing tests for %s", summary.ModuleName)
		return SynthesizeTests(summary)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.config.LLMTimeout)
	defer cancel()

	response, err := g.llmCompleteWithRetry(callCtx, prompt.TestGenSystemPrompt, g.builder.BuildTestPrompt(source, summary))
	if err != nil {
		logging.TesterWarn("LLM test generation failed, using fallback: %v", err)
		return SynthesizeTests(summary)
	}

	code := articulation.ExtractCode(response)
	if strings.TrimSpace(code) == "" {
		logging.TesterWarn("LLM response contained no code, using fallback")
		return SynthesizeTests(summary)
	}

	module := articulation.WrapTestModule(code, summary)
	if err := world.ValidatePython(module); err != nil {
		logging.TesterWarn("generated tests do not parse, using fallback: %v", err)
		return SynthesizeTests(summary)
	}

	cases := deriveTestCases(module, summary)
	if len(cases) == 0 {
		logging.TesterWarn("generated module defines no test methods, using fallback")
		return SynthesizeTests(summary)
	}

	logging.Tester("generated %d test cases for %s", len(cases), summary.ModuleName)
	return &types.GeneratedArtifact{
		TestCases:  cases,
		SourceText: module,
		Origin:     types.OriginLLM,
	}
}

// =============================================================================
// TEST CASE DERIVATION
// =============================================================================

var (
	errorCaseRegex = regexp.MustCompile(`error|raise|invalid|exception`)
	edgeCaseRegex  = regexp.MustCompile(`empty|zero|negative|edge|boundary|none`)
)

// inferCategory classifies a test by keywords in its name.
func inferCategory(testName string) types.TestCategory {
	name := strings.ToLower(testName)
	switch {
	case errorCaseRegex.MatchString(name):
		return types.CategoryErrorCase
	case edgeCaseRegex.MatchString(name):
		return types.CategoryEdgeCase
	default:
		return types.CategoryHappyPath
	}
}

// deriveTestCases lists the test_* methods of a generated module.
func deriveTestCases(module string, summary types.StructuralSummary) []types.TestCaseSpec {
	parsed := world.NewPythonAnalyzer().Analyze(module, "test_"+summary.ModuleName)

	var cases []types.TestCaseSpec
	add := func(fn types.FunctionSig, testClass string) {
		if !strings.HasPrefix(fn.Name, "test") {
			return
		}
		desc := fmt.Sprintf("Generated test %s", fn.Name)
		if fn.Docstring != nil && strings.TrimSpace(*fn.Docstring) != "" {
			desc = strings.TrimSpace(*fn.Docstring)
		}
		cases = append(cases, types.TestCaseSpec{
			Name:        fn.Name,
			Category:    inferCategory(fn.Name),
			Target:      matchTarget(fn.Name, testClass, summary),
			Inputs:      map[string]types.Literal{},
			Description: desc,
		})
	}

	for _, cls := range parsed.Classes {
		for _, m := range cls.Methods {
			add(m, cls.Name)
		}
	}
	return cases
}

// matchTarget finds the function or method a test name refers to. The longest
// matching name wins; methods of the class the test case is named after are
// preferred.
func matchTarget(testName, testClass string, summary types.StructuralSummary) types.TestTarget {
	rest := strings.TrimPrefix(strings.ToLower(testName), "test_")

	var best types.TestTarget
	bestScore := 0
	consider := func(name string, target types.TestTarget, preferred bool) {
		key := strings.Trim(strings.ToLower(name), "_")
		if key == "" || !containsWord(rest, key) {
			return
		}
		score := len(key)
		if preferred {
			score += 1000
		}
		if score > bestScore {
			best, bestScore = target, score
		}
	}

	for _, fn := range summary.TopLevelFunctions() {
		consider(fn.Name, types.TestTarget{Function: fn.Name}, false)
	}
	for _, cls := range summary.TopLevelClasses() {
		for _, m := range cls.Methods {
			consider(m.Name, types.TestTarget{Class: cls.Name, Method: m.Name}, testClass == "Test"+cls.Name)
		}
	}
	return best
}

// containsWord reports whether word appears in s on underscore boundaries.
func containsWord(s, word string) bool {
	return s == word ||
		strings.HasPrefix(s, word+"_") ||
		strings.HasSuffix(s, "_"+word) ||
		strings.Contains(s, "_"+word+"_")
}

// =============================================================================
// LLM HELPERS
// =============================================================================

// llmCompleteWithRetry calls the LLM with exponential backoff on retryable errors.
func (g *TestGenerator) llmCompleteWithRetry(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	attempts := g.config.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			logging.TesterDebug("LLM retry attempt %d/%d", attempt+1, attempts)

			delay := g.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		response, err := g.client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if ctx.Err() != nil || !isRetryableError(err) {
			return "", fmt.Errorf("non-retryable error: %w", err)
		}
	}

	return "", fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// isRetryableError determines if an error should be retried.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout", "deadline exceeded", "connection", "network", "temporary",
		"rate limit", "503", "502", "500", "429", "unavailable",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
