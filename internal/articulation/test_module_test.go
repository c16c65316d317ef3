package articulation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testforge/internal/types"
	"testforge/internal/world"
)

func calcSummary() types.StructuralSummary {
	return types.StructuralSummary{
		ModuleName: "calc",
		Functions:  []types.FunctionSig{{Name: "add"}},
	}
}

func TestWrapTestModule_BareFunctions(t *testing.T) {
	code := "def test_add(self):\n    self.assertEqual(add(1, 2), 3)\n\ndef test_add_negative(self):\n    self.assertEqual(add(-1, -1), -2)"

	got := WrapTestModule(code, calcSummary())

	assert.True(t, strings.HasPrefix(got, "import unittest\nimport sys\nimport os\n"))
	assert.Contains(t, got, "sys.path.insert(0, os.path.dirname(os.path.abspath(__file__)))\nfrom calc import *\n")
	assert.Contains(t, got, "class TestFunctions(unittest.TestCase):\n    def setUp(self):\n        pass\n")
	assert.Contains(t, got, "\n    def test_add(self):\n        self.assertEqual(add(1, 2), 3)\n")
	assert.True(t, strings.HasSuffix(got, mainGuard))
	require.NoError(t, world.ValidatePython(got))
}

func TestWrapTestModule_ClassName(t *testing.T) {
	summary := calcSummary()
	summary.Classes = []types.ClassSig{{Name: "Calculator"}}

	got := WrapTestModule("def test_x(self):\n    pass", summary)
	assert.Contains(t, got, "class TestCalculator(unittest.TestCase):")
}

func TestWrapTestModule_CompleteModuleUnchanged(t *testing.T) {
	code := strings.Join([]string{
		"import unittest",
		"import sys",
		"import os",
		"from calc import *",
		"",
		"",
		"class TestCalc(unittest.TestCase):",
		"    def test_add(self):",
		"        self.assertEqual(add(1, 2), 3)",
		"",
		"",
		"if __name__ == \"__main__\":",
		"    unittest.main()",
	}, "\n")

	assert.Equal(t, code+"\n", WrapTestModule(code, calcSummary()))
}

func TestWrapTestModule_PartialImports(t *testing.T) {
	code := "import unittest\nimport calc\n\nclass TestCalc(unittest.TestCase):\n    def test_add(self):\n        self.assertEqual(calc.add(1, 2), 3)"

	got := WrapTestModule(code, calcSummary())

	assert.True(t, strings.HasPrefix(got, "import sys\nimport os\n\n\nimport unittest\n"))
	assert.NotContains(t, got, "from calc import *")
	assert.Equal(t, 1, strings.Count(got, "class TestCalc"))
	require.NoError(t, world.ValidatePython(got))
}

func TestImportsModule(t *testing.T) {
	assert.True(t, importsModule("from calc import add", "calc"))
	assert.True(t, importsModule("  import calc", "calc"))
	assert.False(t, importsModule("import calculator", "calc"))
	assert.False(t, importsModule("# from calc import add\nx = 1", "calc"))
}
