// Package types provides the shared data model used across testforge packages.
// Types in this package are plain data with no dependencies on the pipeline stages,
// so analyzer, extractor, executor and orchestrator can all import it without cycles.
package types

import (
	"fmt"
	"math"
	"strings"
)

// =============================================================================
// STRUCTURAL SUMMARY
// =============================================================================

// TypeHint is a best-effort annotation name taken from source.
// The zero value is the Unknown variant: no annotation, or one that could not be expressed.
type TypeHint struct {
	Name  string `json:"name,omitempty"`
	Known bool   `json:"known"`
}

// Unknown is the explicit absent-annotation variant.
var Unknown = TypeHint{}

// Hint returns a known TypeHint for name, or Unknown when name is blank.
func Hint(name string) TypeHint {
	name = strings.TrimSpace(name)
	if name == "" {
		return Unknown
	}
	return TypeHint{Name: name, Known: true}
}

// IsUnknown reports whether the hint carries no annotation.
func (h TypeHint) IsUnknown() bool {
	return !h.Known
}

// String renders the hint the way it is shown to the LLM. Unknown renders as "Any".
func (h TypeHint) String() string {
	if !h.Known {
		return "Any"
	}
	return h.Name
}

// Parameter is one formal parameter of a function.
type Parameter struct {
	Name string   `json:"name"`
	Type TypeHint `json:"type"`
}

// FunctionSig describes a function or method definition.
type FunctionSig struct {
	Name       string      `json:"name"`
	Parameters []Parameter `json:"args"`
	ReturnType TypeHint    `json:"returns"`
	Docstring  *string     `json:"docstring,omitempty"`
	IsMethod   bool        `json:"is_method"`
	// Nested is set for definitions that are not reachable as module.name or
	// module.Class.name: functions inside functions, and nested classes' methods.
	Nested bool `json:"nested,omitempty"`
}

// Signature renders "name(a: int, b) -> str" for prompts and reports.
func (f FunctionSig) Signature() string {
	var sb strings.Builder
	sb.WriteString(f.Name)
	sb.WriteString("(")
	for i, p := range f.Parameters {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Name)
		if p.Type.Known {
			sb.WriteString(": ")
			sb.WriteString(p.Type.Name)
		}
	}
	sb.WriteString(")")
	if f.ReturnType.Known {
		sb.WriteString(" -> ")
		sb.WriteString(f.ReturnType.Name)
	}
	return sb.String()
}

// CallableParameters returns the parameters without a leading self/cls receiver.
func (f FunctionSig) CallableParameters() []Parameter {
	if f.IsMethod && len(f.Parameters) > 0 {
		first := f.Parameters[0].Name
		if first == "self" || first == "cls" {
			return f.Parameters[1:]
		}
	}
	return f.Parameters
}

// ClassSig describes a class definition and the methods declared in its body.
type ClassSig struct {
	Name      string        `json:"name"`
	Docstring *string       `json:"docstring,omitempty"`
	Methods   []FunctionSig `json:"methods"`
	Nested    bool          `json:"nested,omitempty"`
}

// StructuralSummary is the static enumeration of a module's functions and classes.
// Functions holds every function in first-seen source order, methods included.
type StructuralSummary struct {
	ModuleName string        `json:"module_name"`
	Functions  []FunctionSig `json:"functions"`
	Classes    []ClassSig    `json:"classes"`
}

// IsEmpty reports whether nothing was found.
func (s StructuralSummary) IsEmpty() bool {
	return len(s.Functions) == 0 && len(s.Classes) == 0
}

// TopLevelFunctions returns the module-level functions.
func (s StructuralSummary) TopLevelFunctions() []FunctionSig {
	var out []FunctionSig
	for _, f := range s.Functions {
		if !f.IsMethod && !f.Nested {
			out = append(out, f)
		}
	}
	return out
}

// TopLevelClasses returns the classes defined at module level.
func (s StructuralSummary) TopLevelClasses() []ClassSig {
	var out []ClassSig
	for _, c := range s.Classes {
		if !c.Nested {
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// GENERATED ARTIFACT
// =============================================================================

// TestCategory classifies a generated test case.
type TestCategory string

const (
	CategoryHappyPath TestCategory = "happy_path"
	CategoryEdgeCase  TestCategory = "edge_case"
	CategoryErrorCase TestCategory = "error_case"
)

// Literal is a Python literal rendered as source text ("0", "''", "None").
type Literal string

// TestTarget names what a test case exercises: a function, or a (class, method) pair.
type TestTarget struct {
	Function string `json:"function,omitempty"`
	Class    string `json:"class,omitempty"`
	Method   string `json:"method,omitempty"`
}

// String renders "fn" or "Class.method".
func (t TestTarget) String() string {
	if t.Class != "" {
		return t.Class + "." + t.Method
	}
	return t.Function
}

// TestCaseSpec is one structured test case of a generated suite.
type TestCaseSpec struct {
	Name           string             `json:"name"`
	Category       TestCategory       `json:"category"`
	Target         TestTarget         `json:"target"`
	Inputs         map[string]Literal `json:"inputs"`
	ExpectedOutput *Literal           `json:"expected_output,omitempty"`
	Description    string             `json:"description"`
}

// ArtifactOrigin records which path produced a generated artifact.
type ArtifactOrigin string

const (
	OriginLLM      ArtifactOrigin = "llm"
	OriginFallback ArtifactOrigin = "fallback"
)

// GeneratedArtifact is a runnable test suite plus its structured case list.
// SourceText must be syntactically valid Python.
type GeneratedArtifact struct {
	TestCases  []TestCaseSpec `json:"test_cases"`
	SourceText string         `json:"-"`
	Origin     ArtifactOrigin `json:"origin"`
}

// =============================================================================
// RUN STATISTICS
// =============================================================================

// RunStatistics are the counts parsed from textual test-run output.
// Passed+Failed+Errors may be below Total when runner lines went unparsed.
type RunStatistics struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Errors int `json:"errors"`
	// Consistent is false when the per-test markers do not add up to Total.
	Consistent bool `json:"consistent"`
}

// NewRunStatistics builds statistics and derives the consistency flag.
func NewRunStatistics(total, passed, failed, errs int) RunStatistics {
	return RunStatistics{
		Total:      total,
		Passed:     passed,
		Failed:     failed,
		Errors:     errs,
		Consistent: passed+failed+errs == total,
	}
}

// PassRate returns passed/total in [0,1], or 0 when nothing ran.
func (s RunStatistics) PassRate() float64 {
	if s.Total <= 0 {
		return 0
	}
	rate := float64(s.Passed) / float64(s.Total)
	return math.Min(rate, 1)
}

// Score is the trusted 0-5 score: 5 * passed / total, capped at 5.
// It is not rounded; renderers format it.
func (s RunStatistics) Score() float64 {
	if s.Total <= 0 {
		return 0
	}
	return math.Min(5*float64(s.Passed)/float64(s.Total), 5)
}

// String renders "2/4 passed (1 failed, 1 errors)".
func (s RunStatistics) String() string {
	return fmt.Sprintf("%d/%d passed (%d failed, %d errors)", s.Passed, s.Total, s.Failed, s.Errors)
}

// =============================================================================
// FEEDBACK RECORD
// =============================================================================

// Severity of a feedback issue.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// NormalizeSeverity maps case variants to a canonical Severity. Unrecognized input maps to Low.
func NormalizeSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "critical":
		return SeverityHigh
	case "medium", "moderate":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Issue is a single finding in a feedback record.
type Issue struct {
	Description string   `json:"description" validate:"required"`
	Severity    Severity `json:"severity" validate:"oneof=Low Medium High"`
	Fix         string   `json:"fix"`
}

// FeedbackSource records which path produced a feedback record.
type FeedbackSource string

const (
	SourceLLM        FeedbackSource = "llm"
	SourceCalculated FeedbackSource = "calculated"
)

// CodeQuality holds qualitative labels derived from the pass rate.
type CodeQuality struct {
	Complexity      string `json:"complexity"`
	Maintainability string `json:"maintainability"`
	TestCoverage    string `json:"test_coverage"`
}

// DetailedFeedback holds templated strengths/weaknesses/recommendations.
type DetailedFeedback struct {
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
}

// PerformanceInsights holds the efficiency label.
type PerformanceInsights struct {
	Efficiency string `json:"efficiency"`
}

// FeedbackRecord is the final quality report. Score is always derived from Summary.
type FeedbackRecord struct {
	Language            string               `json:"language"`
	Score               float64              `json:"score" validate:"gte=0,lte=5"`
	ScoringExplanation  string               `json:"scoring_explanation" validate:"required"`
	Issues              []Issue              `json:"issues" validate:"dive"`
	Strengths           []string             `json:"strengths,omitempty"`
	Summary             RunStatistics        `json:"summary"`
	Source              FeedbackSource       `json:"source"`
	CodeQuality         *CodeQuality         `json:"code_quality,omitempty"`
	DetailedFeedback    *DetailedFeedback    `json:"detailed_feedback,omitempty"`
	PerformanceInsights *PerformanceInsights `json:"performance_insights,omitempty"`
}

// HighSeverityIssues returns the issues marked High.
func (r *FeedbackRecord) HighSeverityIssues() []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Severity == SeverityHigh {
			out = append(out, is)
		}
	}
	return out
}
