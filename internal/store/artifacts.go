package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"testforge/internal/logging"
	"testforge/internal/shards/tester"
	"testforge/internal/types"
)

// ArtifactPaths lists the files written for one run. Empty fields were not written.
type ArtifactPaths struct {
	Output    string `json:"output,omitempty"`
	Feedback  string `json:"feedback,omitempty"`
	TestCases string `json:"test_cases,omitempty"`
	TestCode  string `json:"test_code,omitempty"`
}

// All returns the written paths in a stable order.
func (p ArtifactPaths) All() []string {
	var out []string
	for _, path := range []string{p.Output, p.Feedback, p.TestCases, p.TestCode} {
		if path != "" {
			out = append(out, path)
		}
	}
	return out
}

// ArtifactWriter writes run artifacts under a single output directory.
type ArtifactWriter struct {
	dir string
}

// NewArtifactWriter creates a writer for dir. The directory is created on first write.
func NewArtifactWriter(dir string) *ArtifactWriter {
	return &ArtifactWriter{dir: dir}
}

// Dir returns the output directory.
func (w *ArtifactWriter) Dir() string {
	return w.dir
}

// Write persists whatever parts of res exist:
//
//	<module>_output.txt      raw runner output
//	<module>_feedback.json   feedback record
//	<module>_test_cases.json test case specs
//	<module>_test.py         generated test module
func (w *ArtifactWriter) Write(res *tester.Result) (ArtifactPaths, error) {
	var paths ArtifactPaths
	if res == nil || res.Module == "" {
		return paths, fmt.Errorf("result has no module name")
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return paths, fmt.Errorf("failed to create output directory: %w", err)
	}

	if res.Feedback != nil {
		p, err := w.writeFile(res.Module+"_output.txt", []byte(res.RawOutput))
		if err != nil {
			return paths, err
		}
		paths.Output = p

		p, err = w.writeJSON(res.Module+"_feedback.json", res.Feedback)
		if err != nil {
			return paths, err
		}
		paths.Feedback = p
	}

	if res.Artifact != nil {
		cases := res.Artifact.TestCases
		if cases == nil {
			cases = []types.TestCaseSpec{}
		}
		p, err := w.writeJSON(res.Module+"_test_cases.json", cases)
		if err != nil {
			return paths, err
		}
		paths.TestCases = p

		p, err = w.writeFile(res.Module+"_test.py", []byte(res.Artifact.SourceText))
		if err != nil {
			return paths, err
		}
		paths.TestCode = p
	}

	logging.Store("Wrote %d artifacts for %s to %s", len(paths.All()), res.Module, w.dir)
	return paths, nil
}

// ReadFeedback loads a previously written feedback record.
func (w *ArtifactWriter) ReadFeedback(module string) (*types.FeedbackRecord, error) {
	data, err := os.ReadFile(filepath.Join(w.dir, module+"_feedback.json"))
	if err != nil {
		return nil, err
	}
	var record types.FeedbackRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode feedback for %s: %w", module, err)
	}
	return &record, nil
}

func (w *ArtifactWriter) writeJSON(name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return w.writeFile(name, append(data, '\n'))
}

// writeFile writes through a temp file and rename so readers never see a partial artifact.
func (w *ArtifactWriter) writeFile(name string, data []byte) (string, error) {
	path := filepath.Join(w.dir, name)
	tmp, err := os.CreateTemp(w.dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	logging.StoreDebug("Wrote %s (%d bytes)", path, len(data))
	return path, nil
}
