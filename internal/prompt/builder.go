// Package prompt builds the natural-language instruction payloads sent to the LLM.
// Everything here is pure string templating.
package prompt

import (
	"fmt"
	"strings"

	"testforge/internal/types"
)

// Defaults used when Options fields are zero.
const (
	DefaultMaxTestCases    = 10
	DefaultMinTestCoverage = 80.0
)

// TestGenSystemPrompt is the system prompt for test generation.
const TestGenSystemPrompt = `You are an expert Python test engineer. You write complete, runnable unittest suites.
Return exactly one fenced code block tagged python and nothing else.`

// FeedbackSystemPrompt is the system prompt for feedback generation.
const FeedbackSystemPrompt = `You are a senior code reviewer evaluating a Python module from the results of its unit tests.
The score has already been computed from the test results; explain it, do not change it.
Return exactly one JSON object and nothing else.`

// Options tunes prompt content.
type Options struct {
	MaxTestCases    int
	MinTestCoverage float64
}

func (o Options) withDefaults() Options {
	if o.MaxTestCases <= 0 {
		o.MaxTestCases = DefaultMaxTestCases
	}
	if o.MinTestCoverage <= 0 {
		o.MinTestCoverage = DefaultMinTestCoverage
	}
	return o
}

// Builder renders prompts with fixed options.
type Builder struct {
	opts Options
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts.withDefaults()}
}

// BuildTestPrompt renders the test-generation prompt with default options.
func BuildTestPrompt(source string, summary types.StructuralSummary) string {
	return NewBuilder(Options{}).BuildTestPrompt(source, summary)
}

// BuildFeedbackPrompt renders the feedback prompt with default options.
func BuildFeedbackPrompt(stats types.RunStatistics, source, testOutput string) string {
	return NewBuilder(Options{}).BuildFeedbackPrompt(stats, source, testOutput)
}

// BuildTestPrompt renders the test-generation prompt: the verbatim source, the
// enumerated definitions, coverage requirements and the output contract.
func (b *Builder) BuildTestPrompt(source string, summary types.StructuralSummary) string {
	module := summary.ModuleName
	if module == "" {
		module = "module"
	}

	var sb strings.Builder
	sb.WriteString("Generate comprehensive Python unit tests for the following code.\n\n")

	sb.WriteString("Code to test:\n")
	sb.WriteString("```python\n")
	sb.WriteString(source)
	if !strings.HasSuffix(source, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("```\n\n")

	sb.WriteString(fmt.Sprintf("Module name: %s\n\n", module))
	sb.WriteString(renderDefinitions(summary))

	sb.WriteString("Requirements:\n")
	sb.WriteString("1. Use the unittest framework. Define one or more classes that inherit from unittest.TestCase.\n")
	sb.WriteString(fmt.Sprintf("2. Import the code under test with: from %s import *\n", module))
	sb.WriteString("3. Cover every function and method listed above with:\n")
	sb.WriteString("   - happy-path tests with typical inputs and exact expected outputs\n")
	sb.WriteString("   - edge-case tests with boundary values: empty strings, empty lists and dicts, zero, negative numbers, None, very large values\n")
	sb.WriteString("   - error-case tests asserting the expected exception with self.assertRaises\n")
	sb.WriteString(fmt.Sprintf("4. Write at most %d test methods; aim for %.0f%% coverage of the code paths.\n", b.opts.MaxTestCases, b.opts.MinTestCoverage))
	sb.WriteString("5. Give every test method a descriptive name starting with test_ and a one-line docstring.\n")
	sb.WriteString("6. Use setUp for shared fixtures. Do not read files, use the network, or sleep.\n")
	sb.WriteString("7. Use these assertions where appropriate:\n")
	for _, a := range []string{
		"assertEqual", "assertNotEqual", "assertTrue", "assertFalse",
		"assertIs", "assertIsNone", "assertIsNotNone", "assertIn", "assertNotIn",
		"assertIsInstance", "assertAlmostEqual", "assertRaises",
	} {
		sb.WriteString("   - ")
		sb.WriteString(a)
		sb.WriteString("\n")
	}
	sb.WriteString("8. End the module with:\n")
	sb.WriteString("   if __name__ == '__main__':\n")
	sb.WriteString("       unittest.main()\n\n")

	sb.WriteString("Output format:\n")
	sb.WriteString("Return ONLY the complete test module inside exactly one ```python fenced code block. ")
	sb.WriteString("No explanations before or after the block.\n")

	return sb.String()
}

// renderDefinitions enumerates functions and classes with their signatures.
func renderDefinitions(summary types.StructuralSummary) string {
	var sb strings.Builder

	top := summary.TopLevelFunctions()
	if len(top) > 0 {
		sb.WriteString("Functions:\n")
		for i, fn := range top {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, fn.Signature()))
			writeDoc(&sb, fn.Docstring, "   ")
		}
		sb.WriteString("\n")
	}

	if classes := summary.TopLevelClasses(); len(classes) > 0 {
		sb.WriteString("Classes:\n")
		for i, cls := range classes {
			sb.WriteString(fmt.Sprintf("%d. class %s\n", i+1, cls.Name))
			writeDoc(&sb, cls.Docstring, "   ")
			for _, m := range cls.Methods {
				sb.WriteString("   - ")
				sb.WriteString(m.Signature())
				sb.WriteString("\n")
				writeDoc(&sb, m.Docstring, "     ")
			}
		}
		sb.WriteString("\n")
	}

	if sb.Len() == 0 {
		sb.WriteString("No functions or classes were detected; test the module's top-level behavior.\n\n")
	}
	return sb.String()
}

func writeDoc(sb *strings.Builder, doc *string, indent string) {
	if doc == nil || *doc == "" {
		return
	}
	first := strings.SplitN(*doc, "\n", 2)[0]
	sb.WriteString(indent)
	sb.WriteString("Doc: ")
	sb.WriteString(first)
	sb.WriteString("\n")
}

// BuildFeedbackPrompt renders the feedback prompt. The score is computed from stats
// before the LLM sees anything, and the LLM is told to explain it rather than invent one.
func (b *Builder) BuildFeedbackPrompt(stats types.RunStatistics, source, testOutput string) string {
	var sb strings.Builder

	sb.WriteString("Analyze the test results below and provide feedback on the code quality.\n\n")

	sb.WriteString("Test Summary:\n")
	sb.WriteString(fmt.Sprintf("- Total tests: %d\n", stats.Total))
	sb.WriteString(fmt.Sprintf("- Passed: %d\n", stats.Passed))
	sb.WriteString(fmt.Sprintf("- Failed: %d\n", stats.Failed))
	sb.WriteString(fmt.Sprintf("- Errors: %d\n", stats.Errors))
	sb.WriteString(fmt.Sprintf("- Pass rate: %.1f%%\n", stats.PassRate()*100))
	sb.WriteString(fmt.Sprintf("- Score (fixed, 0-5): %.2f\n", stats.Score()))
	if !stats.Consistent {
		sb.WriteString("- Note: the per-test results do not add up to the total; treat the counts as low confidence.\n")
	}
	sb.WriteString("\n")

	sb.WriteString("Test Output:\n")
	sb.WriteString("```\n")
	sb.WriteString(strings.TrimRight(testOutput, "\n"))
	sb.WriteString("\n```\n\n")

	sb.WriteString("Code:\n")
	sb.WriteString("```python\n")
	sb.WriteString(strings.TrimRight(source, "\n"))
	sb.WriteString("\n```\n\n")

	sb.WriteString("Instructions:\n")
	sb.WriteString(fmt.Sprintf("1. The score is %.2f. Use exactly this value; explain why the results justify it.\n", stats.Score()))
	sb.WriteString("2. List concrete issues found in the code or revealed by failing tests, with a severity and a fix.\n")
	sb.WriteString("3. Severity must be one of: Low, Medium, High.\n")
	sb.WriteString("4. Optionally list strengths of the code.\n\n")

	sb.WriteString("Output format:\n")
	sb.WriteString("Return exactly one JSON object matching this schema, with no markdown and no comments:\n")
	sb.WriteString(feedbackSchema)

	return sb.String()
}

const feedbackSchema = `{
  "language": "python3",
  "score": <number>,
  "scoring_explanation": "<string>",
  "issues": [
    {"description": "<string>", "severity": "Low|Medium|High", "fix": "<string>"}
  ],
  "strengths": ["<string>"]
}
`
