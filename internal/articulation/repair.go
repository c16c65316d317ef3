package articulation

import (
	"strings"
)

// =============================================================================
// JSON REPAIR PIPELINE
// =============================================================================
// LLMs return almost-JSON. Repair is an ordered list of pure string -> string
// stages. Every stage leaves valid JSON untouched, which makes the whole
// pipeline idempotent.

// RepairStage is one named normalization step.
type RepairStage struct {
	Name  string
	Apply func(string) string
}

// RepairStages is the ordered repair pipeline applied by ExtractJSON.
// slice_object yields "" when the text holds no object region.
var RepairStages = []RepairStage{
	{Name: "strip_language_prefix", Apply: stripLanguagePrefix},
	{Name: "unwrap_fence", Apply: unwrapFence},
	{Name: "slice_object", Apply: sliceObject},
	{Name: "strip_comments", Apply: stripComments},
	{Name: "normalize_quotes", Apply: normalizeQuotes},
	{Name: "normalize_literals", Apply: normalizeLiterals},
	{Name: "strip_trailing_commas", Apply: stripTrailingCommas},
}

// Repair runs every stage in order.
func Repair(s string) string {
	for _, stage := range RepairStages {
		s = stage.Apply(s)
	}
	return s
}

// stripLanguagePrefix removes a stray leading "JSON" label ("JSON\n{...}", "json: {...}").
func stripLanguagePrefix(s string) string {
	t := strings.TrimSpace(s)
	if len(t) < 4 || !strings.EqualFold(t[:4], "json") {
		return s
	}
	return strings.TrimLeft(t[4:], " \t\r\n:")
}

// unwrapFence returns the interior of the first ``` block. Only a fence that
// opens before the first '{' counts; later fences sit inside string values.
func unwrapFence(s string) string {
	t := strings.TrimSpace(s)
	open := strings.Index(t, "```")
	if open == -1 {
		return s
	}
	if brace := strings.IndexByte(t, '{'); brace != -1 && brace < open {
		return s
	}
	body := t[open+3:]
	// Drop the info string ("json", "JSON") on the opening line.
	if nl := strings.IndexByte(body, '\n'); nl != -1 {
		tag := strings.TrimSpace(body[:nl])
		if !strings.ContainsAny(tag, "{[\"") {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, "```"); end != -1 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// sliceObject keeps the text between the first '{' and the last '}'.
// It returns "" when no such region exists.
func sliceObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// stripComments drops //, /* */ and # comments that sit outside string literals.
func stripComments(s string) string {
	if !strings.ContainsAny(s, "/#") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	st := newStringState(`"'`)

	for i := 0; i < len(s); i++ {
		b := s[i]
		if st.inString() || b == '"' || b == '\'' {
			st.advance(b)
			sb.WriteByte(b)
			continue
		}

		switch {
		case b == '/' && i+1 < len(s) && s[i+1] == '/', b == '#':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				sb.WriteByte('\n')
			}
		case b == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end == -1 {
				i = len(s)
			} else {
				i += 2 + end + 1
			}
		default:
			sb.WriteByte(b)
		}
	}
	return sb.String()
}

// normalizeQuotes rewrites single-quoted strings as double-quoted JSON strings.
// Double-quoted strings are copied verbatim, apostrophes inside them included.
func normalizeQuotes(s string) string {
	if !strings.Contains(s, "'") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 8)

	for i := 0; i < len(s); i++ {
		b := s[i]
		switch b {
		case '"':
			end, _ := skipString(s, i)
			sb.WriteString(s[i:end])
			i = end - 1
		case '\'':
			end, closed := skipString(s, i)
			inner := s[i+1:]
			if closed {
				inner = s[i+1 : end-1]
			}
			sb.WriteByte('"')
			sb.WriteString(requote(inner))
			sb.WriteByte('"')
			i = end - 1
		default:
			sb.WriteByte(b)
		}
	}
	return sb.String()
}

// skipString returns the offset just past the string literal opening at i and
// whether it was terminated. An unterminated literal runs to the end of s.
func skipString(s string, i int) (int, bool) {
	quote := s[i]
	escape := false
	for j := i + 1; j < len(s); j++ {
		switch {
		case escape:
			escape = false
		case s[j] == '\\':
			escape = true
		case s[j] == quote:
			return j + 1, true
		}
	}
	return len(s), false
}

// requote converts the body of a single-quoted literal to a double-quoted body.
func requote(inner string) string {
	var sb strings.Builder
	for i := 0; i < len(inner); i++ {
		b := inner[i]
		switch {
		case b == '\\' && i+1 < len(inner) && inner[i+1] == '\'':
			sb.WriteByte('\'')
			i++
		case b == '\\' && i+1 < len(inner):
			sb.WriteByte(b)
			sb.WriteByte(inner[i+1])
			i++
		case b == '"':
			sb.WriteString(`\"`)
		default:
			sb.WriteByte(b)
		}
	}
	return sb.String()
}

// normalizeLiterals maps Python's True/False/None to JSON outside strings.
func normalizeLiterals(s string) string {
	if !strings.Contains(s, "True") && !strings.Contains(s, "False") && !strings.Contains(s, "None") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	st := newStringState(`"`)

	for i := 0; i < len(s); i++ {
		b := s[i]
		if st.advance(b) {
			sb.WriteByte(b)
			continue
		}
		if !isIdentStart(b) {
			sb.WriteByte(b)
			continue
		}
		j := i
		for j < len(s) && isIdentPart(s[j]) {
			j++
		}
		word := s[i:j]
		switch word {
		case "True":
			word = "true"
		case "False":
			word = "false"
		case "None":
			word = "null"
		}
		sb.WriteString(word)
		i = j - 1
	}
	return sb.String()
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

// stripTrailingCommas removes a comma that directly precedes '}' or ']' outside strings.
func stripTrailingCommas(s string) string {
	if !strings.Contains(s, ",") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	st := newStringState(`"`)

	for i := 0; i < len(s); i++ {
		b := s[i]
		if st.advance(b) {
			sb.WriteByte(b)
			continue
		}
		if b == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		sb.WriteByte(b)
	}
	return sb.String()
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
