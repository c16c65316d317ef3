package tester

import (
	"regexp"
	"strconv"
	"strings"

	"testforge/internal/logging"
	"testforge/internal/types"
)

// =============================================================================
// UNITTEST OUTPUT PARSING
// =============================================================================

// Patterns for the verbose unittest runner. Each is scanned independently over
// the whole output, so interleaved prints and multi-line test descriptions do
// not disturb the counts.
var (
	ranRegex    = regexp.MustCompile(`Ran (\d+) tests? in`)
	okRegex     = regexp.MustCompile(` \.\.\. ok`)
	failRegex   = regexp.MustCompile(` \.\.\. FAIL`)
	errorRegex  = regexp.MustCompile(` \.\.\. ERROR`)
	headerRegex = regexp.MustCompile(`^(FAIL|ERROR): (\S+)(?: \((.*)\))?\s*$`)
	frameRegex  = regexp.MustCompile(`^\s+File "(.+)", line (\d+), in (.+)$`)
)

// ParseRunOutput counts results in raw runner output. It never fails: text
// without a summary line yields zero counts.
func ParseRunOutput(raw string) types.RunStatistics {
	total := 0
	if m := ranRegex.FindStringSubmatch(raw); m != nil {
		total, _ = strconv.Atoi(m[1])
	}
	stats := types.NewRunStatistics(
		total,
		len(okRegex.FindAllStringIndex(raw, -1)),
		len(failRegex.FindAllStringIndex(raw, -1)),
		len(errorRegex.FindAllStringIndex(raw, -1)),
	)
	if !stats.Consistent {
		logging.TesterWarn("run output counts do not add up: %s", stats)
	}
	return stats
}

// FailedTest is one FAIL or ERROR block from the runner's report.
type FailedTest struct {
	Name      string `json:"name"`
	Location  string `json:"location,omitempty"` // module.Class as printed by the runner
	Kind      string `json:"kind"`               // FAIL or ERROR
	Message   string `json:"message"`            // final traceback line, e.g. "AssertionError: 1 != 2"
	Line      int    `json:"line,omitempty"`     // innermost frame line
	Traceback string `json:"traceback"`
}

// failureParserState is the position inside the runner's failure report.
type failureParserState int

const (
	stateIdle failureParserState = iota
	stateHeader                  // after a ==== separator
	stateTraceback               // after the ---- under a header
)

// isSeparator matches the ==== and ---- rules unittest prints around reports.
func isSeparator(line string, ch byte) bool {
	line = strings.TrimRight(line, " \r")
	if len(line) < 20 {
		return false
	}
	for i := 0; i < len(line); i++ {
		if line[i] != ch {
			return false
		}
	}
	return true
}

// FailedTests extracts the FAIL/ERROR blocks and their tracebacks, in report order.
func FailedTests(raw string) []FailedTest {
	var (
		out     []FailedTest
		current *FailedTest
		trace   []string
		state   = stateIdle
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Traceback = strings.TrimRight(strings.Join(trace, "\n"), "\n ")
		for i := len(trace) - 1; i >= 0; i-- {
			if line := strings.TrimSpace(trace[i]); line != "" {
				current.Message = line
				break
			}
		}
		for _, line := range trace {
			if m := frameRegex.FindStringSubmatch(line); m != nil {
				current.Line, _ = strconv.Atoi(m[2])
			}
		}
		out = append(out, *current)
		current, trace = nil, nil
	}

	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		switch state {
		case stateIdle:
			if isSeparator(line, '=') {
				state = stateHeader
			}

		case stateHeader:
			if m := headerRegex.FindStringSubmatch(strings.TrimRight(line, "\r")); m != nil {
				current = &FailedTest{Kind: m[1], Name: m[2], Location: m[3]}
				continue
			}
			if isSeparator(line, '-') && current != nil {
				state = stateTraceback
				continue
			}
			if !isSeparator(line, '=') {
				current = nil
				state = stateIdle
			}

		case stateTraceback:
			switch {
			case isSeparator(line, '='):
				flush()
				state = stateHeader
			case isSeparator(line, '-'):
				flush()
				state = stateIdle
			default:
				trace = append(trace, line)
			}
		}
	}
	flush()
	return out
}
