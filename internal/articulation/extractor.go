// Package articulation turns raw LLM text into structured artifacts: test source
// pulled from markdown fences, and feedback records repaired from almost-JSON.
package articulation

import (
	"encoding/json"
	"fmt"
	"strings"

	"testforge/internal/logging"
	"testforge/internal/types"
)

// ExtractCode returns the interior of the first fenced code block, preferring a
// block tagged python. Without a complete fence raw is returned unchanged.
func ExtractCode(raw string) string {
	blocks := fencedBlocks(raw)
	if len(blocks) == 0 {
		return raw
	}
	for _, b := range blocks {
		if b.lang == "python" || b.lang == "py" || b.lang == "python3" {
			return b.body
		}
	}
	return blocks[0].body
}

type fencedBlock struct {
	lang string
	body string
}

// fencedBlocks lists every closed ``` block in order.
func fencedBlocks(raw string) []fencedBlock {
	var blocks []fencedBlock
	rest := raw
	for {
		open := strings.Index(rest, "```")
		if open == -1 {
			return blocks
		}
		after := rest[open+3:]

		lang := ""
		if nl := strings.IndexByte(after, '\n'); nl != -1 {
			// A short single-word first line is the info string, not code.
			firstLine := strings.TrimSpace(after[:nl])
			if !strings.Contains(firstLine, " ") && len(firstLine) < 20 {
				lang = strings.ToLower(firstLine)
				after = after[nl+1:]
			}
		}

		end := strings.Index(after, "```")
		if end == -1 {
			return blocks
		}
		blocks = append(blocks, fencedBlock{
			lang: lang,
			body: strings.TrimSpace(after[:end]),
		})
		rest = after[end+3:]
	}
}

// ExtractJSON repairs raw LLM text and decodes the resulting JSON object.
// It fails with a *types.ParseError (matching types.ErrParse) when no object
// region exists or the repaired text still does not decode.
func ExtractJSON(raw string) (map[string]any, error) {
	text := raw
	for _, stage := range RepairStages {
		text = stage.Apply(text)
		if stage.Name == "slice_object" && text == "" {
			return nil, &types.ParseError{Stage: stage.Name, Err: fmt.Errorf("no JSON object found")}
		}
	}

	var out map[string]any
	err := json.Unmarshal([]byte(text), &out)
	if err == nil {
		return out, nil
	}

	// The first-to-last brace slice can swallow prose between two objects.
	// Fall back to balanced candidates, last one first.
	candidates := findJSONCandidates(text)
	for i := len(candidates) - 1; i >= 0; i-- {
		var candidate map[string]any
		if json.Unmarshal([]byte(candidates[i]), &candidate) == nil {
			logging.ArticulationDebug("ExtractJSON: recovered embedded object %d/%d", i+1, len(candidates))
			return candidate, nil
		}
	}

	logging.ArticulationDebug("ExtractJSON: decode failed after repair: %v", err)
	return nil, &types.ParseError{Stage: "decode", Err: err}
}
