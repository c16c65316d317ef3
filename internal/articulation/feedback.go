package articulation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"testforge/internal/logging"
	"testforge/internal/types"
)

// feedbackValidate checks decoded feedback records.
var feedbackValidate = validator.New()

// ParseFeedback extracts a feedback record from raw LLM text.
// Score and Summary are carried as the LLM wrote them; the caller replaces both
// with trusted values. Failure matches types.ErrParse.
func ParseFeedback(raw string) (*types.FeedbackRecord, error) {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	record := &types.FeedbackRecord{
		Language:           stringField(obj, "language", "python3"),
		Score:              clampScore(numberField(obj, "score")),
		ScoringExplanation: strings.TrimSpace(stringField(obj, "scoring_explanation", "")),
		Issues:             issuesField(obj["issues"]),
		Strengths:          stringsField(obj["strengths"]),
		Source:             types.SourceLLM,
	}

	if err := feedbackValidate.Struct(record); err != nil {
		logging.ArticulationWarn("ParseFeedback: record failed validation: %v", err)
		return nil, &types.ParseError{Stage: "validate", Err: err}
	}
	return record, nil
}

func stringField(obj map[string]any, key, fallback string) string {
	if s, ok := obj[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

// numberField accepts JSON numbers and numeric strings ("4.5", "4/5").
func numberField(obj map[string]any, key string) float64 {
	switch v := obj[key].(type) {
	case float64:
		return v
	case string:
		s := strings.TrimSpace(v)
		if slash := strings.IndexByte(s, '/'); slash != -1 {
			s = s[:slash]
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return 0
}

func clampScore(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(0, math.Min(5, f))
}

// issuesField accepts a list of issue objects, bare strings, or a single object.
func issuesField(v any) []types.Issue {
	issues := []types.Issue{}
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case map[string]any, string:
		items = []any{t}
	}

	for _, item := range items {
		switch it := item.(type) {
		case string:
			if strings.TrimSpace(it) == "" {
				continue
			}
			issues = append(issues, types.Issue{Description: it, Severity: types.SeverityLow})
		case map[string]any:
			issue := types.Issue{
				Description: strings.TrimSpace(stringField(it, "description", stringField(it, "issue", ""))),
				Severity:    types.NormalizeSeverity(stringField(it, "severity", "")),
				Fix:         strings.TrimSpace(stringField(it, "fix", stringField(it, "suggestion", ""))),
			}
			issues = append(issues, issue)
		}
	}
	return issues
}

func stringsField(v any) []string {
	switch t := v.(type) {
	case []any:
		var out []string
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(t) != "" {
			return []string{t}
		}
	}
	return nil
}

// MarshalFeedback renders a record as indented JSON for persistence.
func MarshalFeedback(record *types.FeedbackRecord) ([]byte, error) {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal feedback: %w", err)
	}
	return data, nil
}
