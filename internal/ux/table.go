package ux

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"testforge/internal/store"
)

// SimpleTable is a simple table component for rendering static data.
type SimpleTable struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// NewSimpleTable creates a new SimpleTable with the given title and headers.
func NewSimpleTable(title string, headers []string) *SimpleTable {
	return &SimpleTable{
		Title:   title,
		Headers: headers,
		Rows:    make([][]string, 0),
	}
}

// AddRow adds a row to the table.
func (t *SimpleTable) AddRow(row ...string) {
	t.Rows = append(t.Rows, row)
}

// View renders the table using the provided styles.
func (t *SimpleTable) View(styles Styles) string {
	if len(t.Rows) == 0 {
		return ""
	}

	var sb strings.Builder
	if t.Title != "" {
		sb.WriteString(styles.Title.Render(t.Title))
		sb.WriteString("\n")
	}

	colWidths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		colWidths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(colWidths) && lipgloss.Width(cell) > colWidths[i] {
				colWidths[i] = lipgloss.Width(cell)
			}
		}
	}
	// lipgloss Width includes padding
	for i := range colWidths {
		colWidths[i] += 2
	}

	headerStyle := styles.Bold.Padding(0, 1)
	rowStyle := styles.Body.Padding(0, 1)
	sepStyle := styles.Muted

	for i, h := range t.Headers {
		sb.WriteString(headerStyle.Width(colWidths[i]).Render(h))
		if i < len(t.Headers)-1 {
			sb.WriteString(sepStyle.Render("|"))
		}
	}
	sb.WriteString("\n")

	totalWidth := len(t.Headers) - 1
	for _, w := range colWidths {
		totalWidth += w
	}
	sb.WriteString(sepStyle.Render(strings.Repeat("-", totalWidth)) + "\n")

	for _, row := range t.Rows {
		for i, cell := range row {
			if i >= len(colWidths) {
				break
			}
			sb.WriteString(rowStyle.Width(colWidths[i]).Render(cell))
			if i < len(row)-1 && i < len(colWidths)-1 {
				sb.WriteString(sepStyle.Render("|"))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderHistory lists runs, newest first as given.
func RenderHistory(styles Styles, runs []store.RunRecord) string {
	if len(runs) == 0 {
		return styles.Muted.Render("No runs recorded yet.") + "\n"
	}
	t := NewSimpleTable("Run history", []string{"Started", "Module", "Tests", "Score", "Feedback", "Tests from", "Duration"})
	for _, r := range runs {
		t.AddRow(
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Module,
			fmt.Sprintf("%d/%d", r.Passed, r.Total),
			fmt.Sprintf("%.2f", r.Score),
			string(r.FeedbackSource),
			string(r.ArtifactOrigin),
			fmt.Sprintf("%.1fs", float64(r.DurationMs)/1000),
		)
	}
	return t.View(styles)
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws 0-5 scores as block characters.
func Sparkline(scores []float64) string {
	var sb strings.Builder
	for _, s := range scores {
		idx := int(s / 5 * float64(len(sparkBlocks)-1))
		idx = max(0, min(idx, len(sparkBlocks)-1))
		sb.WriteRune(sparkBlocks[idx])
	}
	return sb.String()
}

// RenderTrend summarizes a module's score history on one line.
func RenderTrend(styles Styles, trend store.Trend) string {
	if trend.Runs == 0 {
		return styles.Muted.Render(fmt.Sprintf("%s: no runs recorded", trend.Module))
	}
	delta := trend.Delta()
	deltaStyle := styles.Muted
	switch {
	case delta > 0:
		deltaStyle = styles.Success
	case delta < 0:
		deltaStyle = styles.Error
	}
	return fmt.Sprintf("%s  %s  runs=%d mean=%.2f best=%.2f %s",
		styles.Bold.Render(trend.Module),
		Sparkline(trend.Scores),
		trend.Runs, trend.MeanScore, trend.BestScore,
		deltaStyle.Render(fmt.Sprintf("(%+.2f)", delta)),
	)
}
