package ux

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"testforge/internal/shards/tester"
	"testforge/internal/store"
	"testforge/internal/types"
)

// ReportOptions configures a Renderer.
type ReportOptions struct {
	Width int
	// Plain disables glamour and emits the issue markdown as-is.
	Plain bool
}

// Renderer draws run reports: a lipgloss summary box followed by the
// feedback prose rendered as markdown.
type Renderer struct {
	styles Styles
	md     *glamour.TermRenderer
	width  int
}

// NewRenderer creates a renderer for styles.
func NewRenderer(styles Styles, opts ReportOptions) *Renderer {
	if opts.Width <= 0 {
		opts.Width = 80
	}
	r := &Renderer{styles: styles, width: opts.Width}
	if opts.Plain {
		return r
	}

	style := "light"
	if styles.Theme.IsDark {
		style = "dark"
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithWordWrap(opts.Width),
	)
	if err == nil {
		r.md = md
	}
	return r
}

// Report renders one run. paths may be empty when nothing was written.
func (r *Renderer) Report(res *tester.Result, paths store.ArtifactPaths, runErr error) string {
	s := r.styles
	var lines []string

	title := fmt.Sprintf("%s  %s", s.Title.Render(res.Module), s.Muted.Render(res.RunID))
	lines = append(lines, title, "")

	if res.Feedback != nil {
		score := res.Feedback.Score
		lines = append(lines, r.row("Score", s.ScoreStyle(score).Render(fmt.Sprintf("%.2f / 5", score))+"  "+ScoreBar(score, 20)))
	}
	lines = append(lines, r.row("Tests", r.statsLine(res.Stats)))
	if res.Artifact != nil {
		lines = append(lines, r.row("Generated", fmt.Sprintf("%d cases (%s)", len(res.Artifact.TestCases), res.Artifact.Origin)))
	}
	if res.Feedback != nil {
		lines = append(lines, r.row("Feedback", string(res.Feedback.Source)))
	}
	lines = append(lines, r.row("Duration", res.Durations.Total.Round(time.Millisecond).String()))
	if runErr != nil {
		lines = append(lines, r.row("Error", s.Error.Render(runErr.Error())))
	}

	if len(res.Failures) > 0 {
		lines = append(lines, "", s.Bold.Render("Failures"))
		for _, f := range res.Failures {
			label := s.Error.Render(f.Kind)
			if f.Kind == "FAIL" {
				label = s.Warning.Render(f.Kind)
			}
			line := fmt.Sprintf("  %s %s", label, f.Name)
			if f.Message != "" {
				line += s.Muted.Render(": " + truncate(f.Message, r.width-len(f.Name)-12))
			}
			lines = append(lines, line)
		}
	}

	if files := paths.All(); len(files) > 0 {
		lines = append(lines, "", s.Bold.Render("Artifacts"))
		for _, f := range files {
			lines = append(lines, "  "+s.Muted.Render(f))
		}
	}

	var sb strings.Builder
	sb.WriteString(s.Box.Width(r.width - 2).Render(strings.Join(lines, "\n")))
	sb.WriteString("\n")
	if res.Feedback != nil {
		sb.WriteString(r.Markdown(FeedbackMarkdown(res.Feedback)))
	}
	return sb.String()
}

func (r *Renderer) row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, r.styles.Label.Render(label), value)
}

func (r *Renderer) statsLine(st types.RunStatistics) string {
	s := r.styles
	line := fmt.Sprintf("%s passed  %s failed  %s errors  of %d",
		s.Success.Render(fmt.Sprint(st.Passed)),
		s.Warning.Render(fmt.Sprint(st.Failed)),
		s.Error.Render(fmt.Sprint(st.Errors)),
		st.Total)
	if !st.Consistent {
		line += s.Muted.Render("  (counts incomplete)")
	}
	return line
}

// Markdown renders md through glamour, or returns it unchanged in plain mode.
func (r *Renderer) Markdown(md string) string {
	if r.md == nil {
		return md
	}
	out, err := r.md.Render(md)
	if err != nil {
		return md
	}
	return out
}

// ScoreBar draws score out of 5 as a width-cell bar.
func ScoreBar(score float64, width int) string {
	filled := int(score/5*float64(width) + 0.5)
	filled = max(0, min(filled, width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// FeedbackMarkdown renders the prose parts of a feedback record as markdown.
func FeedbackMarkdown(fb *types.FeedbackRecord) string {
	var sb strings.Builder
	if fb.ScoringExplanation != "" {
		sb.WriteString(fb.ScoringExplanation)
		sb.WriteString("\n\n")
	}

	if len(fb.Issues) > 0 {
		sb.WriteString("## Issues\n\n")
		for _, is := range fb.Issues {
			fmt.Fprintf(&sb, "- **%s**: %s\n", is.Severity, is.Description)
			if is.Fix != "" {
				fmt.Fprintf(&sb, "  - Fix: %s\n", is.Fix)
			}
		}
		sb.WriteString("\n")
	}

	if len(fb.Strengths) > 0 {
		sb.WriteString("## Strengths\n\n")
		for _, st := range fb.Strengths {
			fmt.Fprintf(&sb, "- %s\n", st)
		}
		sb.WriteString("\n")
	}

	if d := fb.DetailedFeedback; d != nil && len(d.Recommendations) > 0 {
		sb.WriteString("## Recommendations\n\n")
		for _, rec := range d.Recommendations {
			fmt.Fprintf(&sb, "- %s\n", rec)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
