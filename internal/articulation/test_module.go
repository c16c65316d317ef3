package articulation

import (
	"fmt"
	"regexp"
	"strings"

	"testforge/internal/types"
)

const mainGuard = "if __name__ == '__main__':\n    unittest.main()\n"

var (
	testClassPattern = regexp.MustCompile(`(?m)^\s*class\s+Test\w*`)
	mainGuardPattern = regexp.MustCompile(`__name__\s*==\s*['"]__main__['"]`)
)

// WrapTestModule turns raw LLM test code into a runnable unittest module:
// it ensures the standard imports and the import of the module under test,
// wraps bare test functions in a TestCase class, and appends a main guard.
func WrapTestModule(code string, summary types.StructuralSummary) string {
	code = strings.TrimSpace(code)
	module := summary.ModuleName

	var header []string
	for _, line := range []string{"import unittest", "import sys", "import os"} {
		if !hasLine(code, line) {
			header = append(header, line)
		}
	}
	if module != "" && !importsModule(code, module) {
		header = append(header,
			"sys.path.insert(0, os.path.dirname(os.path.abspath(__file__)))",
			fmt.Sprintf("from %s import *", module),
		)
	}

	if !testClassPattern.MatchString(code) {
		code = wrapInTestCase(code, SuiteClassName(summary))
	}

	var sb strings.Builder
	if len(header) > 0 {
		sb.WriteString(strings.Join(header, "\n"))
		sb.WriteString("\n\n\n")
	}
	sb.WriteString(code)
	sb.WriteString("\n")
	if !mainGuardPattern.MatchString(code) {
		sb.WriteString("\n\n")
		sb.WriteString(mainGuard)
	}
	return sb.String()
}

// SuiteClassName is Test<FirstClass>, or TestFunctions for function-only modules.
func SuiteClassName(summary types.StructuralSummary) string {
	if classes := summary.TopLevelClasses(); len(classes) > 0 {
		return "Test" + classes[0].Name
	}
	return "TestFunctions"
}

func wrapInTestCase(code, className string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("class %s(unittest.TestCase):\n", className))
	sb.WriteString("    def setUp(self):\n        pass\n\n")
	sb.WriteString("    def tearDown(self):\n        pass\n")
	for _, line := range strings.Split(code, "\n") {
		sb.WriteString("\n")
		if strings.TrimSpace(line) != "" {
			sb.WriteString("    ")
			sb.WriteString(line)
		}
	}
	return sb.String()
}

func hasLine(code, line string) bool {
	for _, l := range strings.Split(code, "\n") {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}

func importsModule(code, module string) bool {
	pattern := regexp.MustCompile(`(?m)^\s*(from\s+` + regexp.QuoteMeta(module) + `\s+import|import\s+` + regexp.QuoteMeta(module) + `\b)`)
	return pattern.MatchString(code)
}
