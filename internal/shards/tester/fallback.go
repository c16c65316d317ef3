package tester

import (
	"fmt"
	"strings"

	"testforge/internal/articulation"
	"testforge/internal/types"
)

// MinTestCases is the suite size below which calculated feedback asks for more tests.
const MinTestCases = 10

// =============================================================================
// SKELETON TESTS
// =============================================================================

// defaultLiteral returns the placeholder argument for a type hint.
// Generic hints ("List[int]") resolve by their base name.
func defaultLiteral(hint types.TypeHint) types.Literal {
	if hint.IsUnknown() {
		return "None"
	}
	base := hint.Name
	if i := strings.IndexByte(base, '['); i >= 0 {
		base = base[:i]
	}
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[i+1:]
	}
	switch strings.TrimSpace(base) {
	case "str":
		return "''"
	case "int":
		return "0"
	case "float":
		return "0.0"
	case "bool":
		return "False"
	case "list", "List", "Sequence":
		return "[]"
	case "dict", "Dict", "Mapping":
		return "{}"
	case "tuple", "Tuple":
		return "()"
	case "set", "Set":
		return "set()"
	default:
		return "None"
	}
}

// skeletonInputs maps every callable, non-splat parameter to its default literal.
func skeletonInputs(fn types.FunctionSig) ([]string, map[string]types.Literal) {
	var order []string
	inputs := make(map[string]types.Literal)
	for _, p := range fn.CallableParameters() {
		if p.Name == "" || strings.HasPrefix(p.Name, "*") {
			continue
		}
		order = append(order, p.Name)
		inputs[p.Name] = defaultLiteral(p.Type)
	}
	return order, inputs
}

func callArguments(order []string, inputs map[string]types.Literal) string {
	args := make([]string, 0, len(order))
	for _, name := range order {
		args = append(args, fmt.Sprintf("%s=%s", name, inputs[name]))
	}
	return strings.Join(args, ", ")
}

// constructorCall builds "module.Class(kw=...)" from the class's __init__ signature.
func constructorCall(module string, cls types.ClassSig) string {
	for _, m := range cls.Methods {
		if m.Name == "__init__" {
			order, inputs := skeletonInputs(m)
			return fmt.Sprintf("%s.%s(%s)", module, cls.Name, callArguments(order, inputs))
		}
	}
	return fmt.Sprintf("%s.%s()", module, cls.Name)
}

// SynthesizeTests builds a deterministic smoke suite from the structural summary:
// one happy-path case per module-level function and per method of a module-level
// class, each checking only that the call does not raise. Methods run on an
// instance built from default constructor arguments; when construction raises,
// the case is skipped rather than reported as an error.
func SynthesizeTests(summary types.StructuralSummary) *types.GeneratedArtifact {
	module := summary.ModuleName
	if module == "" {
		module = "module"
	}

	artifact := &types.GeneratedArtifact{
		TestCases: []types.TestCaseSpec{},
		Origin:    types.OriginFallback,
	}
	used := make(map[string]int)
	uniqueName := func(base string) string {
		used[base]++
		if n := used[base]; n > 1 {
			return fmt.Sprintf("%s_%d", base, n)
		}
		return base
	}

	var body strings.Builder
	writeTest := func(tc types.TestCaseSpec, call string, cls *types.ClassSig) {
		fmt.Fprintf(&body, "    def %s(self):\n", tc.Name)
		fmt.Fprintf(&body, "        \"\"\"%s\"\"\"\n", tc.Description)
		if cls != nil {
			body.WriteString("        try:\n")
			fmt.Fprintf(&body, "            instance = %s\n", constructorCall(module, *cls))
			body.WriteString("        except Exception as exc:\n")
			fmt.Fprintf(&body, "            self.skipTest('cannot construct %s: %%s' %% exc)\n", cls.Name)
		}
		body.WriteString("        try:\n")
		fmt.Fprintf(&body, "            %s\n", call)
		body.WriteString("        except TypeError:\n")
		body.WriteString("            pass\n")
		body.WriteString("        self.assertTrue(True)\n\n")
	}

	for _, fn := range summary.TopLevelFunctions() {
		order, inputs := skeletonInputs(fn)
		tc := types.TestCaseSpec{
			Name:        uniqueName(fmt.Sprintf("test_%s_basic", fn.Name)),
			Category:    types.CategoryHappyPath,
			Target:      types.TestTarget{Function: fn.Name},
			Inputs:      inputs,
			Description: fmt.Sprintf("Basic test for %s", fn.Name),
		}
		artifact.TestCases = append(artifact.TestCases, tc)
		writeTest(tc, fmt.Sprintf("%s.%s(%s)", module, fn.Name, callArguments(order, inputs)), nil)
	}

	for _, cls := range summary.TopLevelClasses() {
		for _, m := range cls.Methods {
			order, inputs := skeletonInputs(m)
			tc := types.TestCaseSpec{
				Name:        uniqueName(fmt.Sprintf("test_%s_basic", m.Name)),
				Category:    types.CategoryHappyPath,
				Target:      types.TestTarget{Class: cls.Name, Method: m.Name},
				Inputs:      inputs,
				Description: fmt.Sprintf("Basic test for %s.%s", cls.Name, m.Name),
			}
			artifact.TestCases = append(artifact.TestCases, tc)
			writeTest(tc, fmt.Sprintf("instance.%s(%s)", m.Name, callArguments(order, inputs)), &cls)
		}
	}

	var sb strings.Builder
	sb.WriteString("import unittest\nimport sys\nimport os\n\n")
	sb.WriteString("sys.path.insert(0, os.path.dirname(os.path.abspath(__file__)))\n")
	fmt.Fprintf(&sb, "import %s\n\n\n", module)
	fmt.Fprintf(&sb, "class %s(unittest.TestCase):\n", articulation.SuiteClassName(summary))
	if body.Len() == 0 {
		sb.WriteString("    pass\n\n")
	} else {
		sb.WriteString(body.String())
	}
	sb.WriteString("\n")
	sb.WriteString("if __name__ == '__main__':\n    unittest.main()\n")

	artifact.SourceText = sb.String()
	return artifact
}

// =============================================================================
// CALCULATED FEEDBACK
// =============================================================================

const (
	fallbackIssue = "Automated evaluation due to feedback generation failure."
	fallbackFix   = "Try running the evaluation again or check the test output manually."
	noTestsNote   = "No tests were executed; automated evaluation could not compute statistics."
	lowConfidence = " Note: the per-test results do not add up to the total, so the counts are low confidence."
)

// qualityLabels maps the pass rate onto complexity, maintainability and efficiency.
func qualityLabels(stats types.RunStatistics) (complexity, maintainability, efficiency string) {
	rate := stats.PassRate()
	switch {
	case stats.Total > 0 && rate >= 0.8:
		return "low", "good", "good"
	case stats.Total > 0 && rate >= 0.6:
		return "medium", "fair", "fair"
	default:
		return "high", "poor", "poor"
	}
}

// SynthesizeFeedback derives a feedback record from the statistics alone.
// It never fails.
func SynthesizeFeedback(stats types.RunStatistics) *types.FeedbackRecord {
	return calculatedFeedback(stats, MinTestCases)
}

func calculatedFeedback(stats types.RunStatistics, minCases int) *types.FeedbackRecord {
	if minCases <= 0 {
		minCases = MinTestCases
	}

	explanation := noTestsNote
	if stats.Total > 0 {
		explanation = fmt.Sprintf("Basic automated evaluation based on test results. Passed %d out of %d tests.",
			stats.Passed, stats.Total)
	}
	complexity, maintainability, efficiency := qualityLabels(stats)
	detailed := detailedFeedback(stats, minCases)

	record := &types.FeedbackRecord{
		Language:           "python3",
		Score:              stats.Score(),
		ScoringExplanation: withConsistencyNote(explanation, stats),
		Issues: []types.Issue{{
			Description: fallbackIssue,
			Severity:    types.SeverityLow,
			Fix:         fallbackFix,
		}},
		Strengths: detailed.Strengths,
		Summary:   stats,
		Source:    types.SourceCalculated,
		CodeQuality: &types.CodeQuality{
			Complexity:      complexity,
			Maintainability: maintainability,
			TestCoverage:    fmt.Sprintf("%.1f%%", stats.PassRate()*100),
		},
		DetailedFeedback:    detailed,
		PerformanceInsights: &types.PerformanceInsights{Efficiency: efficiency},
	}
	return record
}

func detailedFeedback(stats types.RunStatistics, minCases int) *types.DetailedFeedback {
	d := &types.DetailedFeedback{
		Strengths:       []string{},
		Weaknesses:      []string{},
		Recommendations: []string{},
	}

	if stats.Total == 0 {
		d.Weaknesses = append(d.Weaknesses, "No tests were executed")
		d.Recommendations = append(d.Recommendations,
			"Check that the test module imports the target and defines unittest.TestCase classes")
		return d
	}

	switch {
	case stats.Failed == 0 && stats.Errors == 0 && stats.Passed == stats.Total:
		d.Strengths = append(d.Strengths, fmt.Sprintf("All %d tests passed", stats.Total))
	case stats.Passed > 0:
		d.Strengths = append(d.Strengths, fmt.Sprintf("%d of %d tests passed", stats.Passed, stats.Total))
	}
	if stats.Errors == 0 {
		d.Strengths = append(d.Strengths, "No test raised an unexpected error")
	}

	if stats.Failed > 0 {
		d.Weaknesses = append(d.Weaknesses, fmt.Sprintf("%d test(s) failed their assertions", stats.Failed))
		d.Recommendations = append(d.Recommendations, "Review the failing assertions against the intended behavior")
	}
	if stats.Errors > 0 {
		d.Weaknesses = append(d.Weaknesses, fmt.Sprintf("%d test(s) raised unexpected errors", stats.Errors))
		d.Recommendations = append(d.Recommendations,
			"Fix the errors raised during the run; they usually point at wrong call signatures or missing imports")
	}
	if stats.Total < minCases {
		d.Weaknesses = append(d.Weaknesses, fmt.Sprintf("Only %d test cases, below the minimum of %d", stats.Total, minCases))
		d.Recommendations = append(d.Recommendations, "Add more test cases covering edge and error cases")
	}
	if !stats.Consistent {
		d.Weaknesses = append(d.Weaknesses, "Some runner lines could not be attributed to a result")
	}
	if len(d.Recommendations) == 0 {
		d.Recommendations = append(d.Recommendations, "Keep the suite current as the module evolves")
	}
	return d
}

// withConsistencyNote flags explanations built on counts that do not add up.
func withConsistencyNote(explanation string, stats types.RunStatistics) string {
	if stats.Consistent || strings.Contains(explanation, strings.TrimSpace(lowConfidence)) {
		return explanation
	}
	return explanation + lowConfidence
}
