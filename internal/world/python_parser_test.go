package world

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testforge/internal/types"
)

func strPtr(s string) *string { return &s }

const calculatorSource = `"""Module docstring."""
import math


def add(a: int, b: int) -> int:
    """Add two numbers."""
    return a + b


class Calculator:
    """A tiny calculator."""

    def __init__(self, precision=2):
        self.precision = precision

    @staticmethod
    def scale(values: list, *args, factor: float = 1.0, **kwargs) -> list:
        return [v * factor for v in values]

    def divide(self, a, b: "Number"):
        '''
        Divide a by b.

            Raises ZeroDivisionError.
        '''
        return a / b


def outer(items: Dict[str, int]):
    def inner(x):
        return x
    return inner
`

func TestPythonAnalyzer_Calculator(t *testing.T) {
	summary := NewPythonAnalyzer().Analyze(calculatorSource, "src/calculator.py")

	initSig := types.FunctionSig{
		Name: "__init__",
		Parameters: []types.Parameter{
			{Name: "self", Type: types.Unknown},
			{Name: "precision", Type: types.Unknown},
		},
		IsMethod: true,
	}
	scaleSig := types.FunctionSig{
		Name: "scale",
		Parameters: []types.Parameter{
			{Name: "values", Type: types.Hint("list")},
			{Name: "*args", Type: types.Unknown},
			{Name: "factor", Type: types.Hint("float")},
			{Name: "**kwargs", Type: types.Unknown},
		},
		ReturnType: types.Hint("list"),
		IsMethod:   true,
	}
	divideSig := types.FunctionSig{
		Name: "divide",
		Parameters: []types.Parameter{
			{Name: "self", Type: types.Unknown},
			{Name: "a", Type: types.Unknown},
			{Name: "b", Type: types.Hint("Number")},
		},
		Docstring: strPtr("Divide a by b.\n\n    Raises ZeroDivisionError."),
		IsMethod:  true,
	}

	want := types.StructuralSummary{
		ModuleName: "calculator",
		Functions: []types.FunctionSig{
			{
				Name: "add",
				Parameters: []types.Parameter{
					{Name: "a", Type: types.Hint("int")},
					{Name: "b", Type: types.Hint("int")},
				},
				ReturnType: types.Hint("int"),
				Docstring:  strPtr("Add two numbers."),
			},
			initSig,
			scaleSig,
			divideSig,
			{
				Name:       "outer",
				Parameters: []types.Parameter{{Name: "items", Type: types.Hint("Dict[str, int]")}},
			},
			{
				Name:       "inner",
				Parameters: []types.Parameter{{Name: "x", Type: types.Unknown}},
				Nested:     true,
			},
		},
		Classes: []types.ClassSig{
			{
				Name:      "Calculator",
				Docstring: strPtr("A tiny calculator."),
				Methods:   []types.FunctionSig{initSig, scaleSig, divideSig},
			},
		},
	}

	if diff := cmp.Diff(want, summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestPythonAnalyzer_SourceOrderAcrossKinds(t *testing.T) {
	src := `
def first(): pass

class B:
    def b1(self): pass

def second(): pass

class A:
    def a1(self): pass
    def a2(self): pass
`
	summary := NewPythonAnalyzer().Analyze(src, "order")

	var names []string
	for _, f := range summary.Functions {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"first", "b1", "second", "a1", "a2"}, names)
	require.Len(t, summary.Classes, 2)
	assert.Equal(t, "B", summary.Classes[0].Name)
	assert.Equal(t, "A", summary.Classes[1].Name)
	assert.Len(t, summary.Classes[1].Methods, 2)
	assert.Len(t, summary.TopLevelFunctions(), 2)
}

func TestPythonAnalyzer_NoDeduplication(t *testing.T) {
	src := "def f(): pass\n\ndef f(x): pass\n"
	summary := NewPythonAnalyzer().Analyze(src, "dup.py")
	require.Len(t, summary.Functions, 2)
	assert.Empty(t, summary.Functions[0].Parameters)
	assert.Len(t, summary.Functions[1].Parameters, 1)
}

func TestPythonAnalyzer_ConditionalMethodsStayMethods(t *testing.T) {
	src := `
class Compat:
    if True:
        def method(self):
            pass
`
	summary := NewPythonAnalyzer().Analyze(src, "compat.py")
	require.Len(t, summary.Functions, 1)
	assert.True(t, summary.Functions[0].IsMethod)
	require.Len(t, summary.Classes, 1)
	assert.Len(t, summary.Classes[0].Methods, 1)
}

func TestPythonAnalyzer_MarksNestedDefinitions(t *testing.T) {
	src := `
def logged(fn):
    def wrapper(*a, **k):
        return fn(*a, **k)
    return wrapper


@logged
def add(a: int, b: int) -> int:
    return a + b


class Outer:
    class Meta:
        def option(self):
            pass

    def run(self):
        class Local:
            pass
`
	summary := NewPythonAnalyzer().Analyze(src, "deco.py")

	nested := make(map[string]bool)
	for _, f := range summary.Functions {
		nested[f.Name] = f.Nested
	}
	assert.Equal(t, map[string]bool{
		"logged": false, "wrapper": true, "add": false, "option": true, "run": false,
	}, nested)

	classes := make(map[string]bool)
	for _, c := range summary.Classes {
		classes[c.Name] = c.Nested
	}
	assert.Equal(t, map[string]bool{"Outer": false, "Meta": true, "Local": true}, classes)

	var top []string
	for _, f := range summary.TopLevelFunctions() {
		top = append(top, f.Name)
	}
	assert.Equal(t, []string{"logged", "add"}, top)
	require.Len(t, summary.TopLevelClasses(), 1)
	assert.Equal(t, "Outer", summary.TopLevelClasses()[0].Name)
}

func TestPythonAnalyzer_NeverPanics(t *testing.T) {
	inputs := []string{
		"",
		"def",
		"class :",
		"def f(:\n  return",
		"\x00\xff\xfe garbage ((((",
		"class A(\n    def m(self): pass",
		"@decorator\n",
		"def f(a: , b):\n    pass",
		`def f(): """unterminated`,
	}
	analyzer := NewPythonAnalyzer()
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			summary := analyzer.Analyze(in, "broken.py")
			assert.Equal(t, "broken", summary.ModuleName)
			assert.NotNil(t, summary.Functions)
			assert.NotNil(t, summary.Classes)
		}, "input %q", in)
	}
}

func TestPythonAnalyzer_EmptySource(t *testing.T) {
	summary := NewPythonAnalyzer().Analyze("", "empty.py")
	assert.True(t, summary.IsEmpty())
}

func TestTypeHintRendering(t *testing.T) {
	sig := types.FunctionSig{
		Name: "f",
		Parameters: []types.Parameter{
			{Name: "a", Type: types.Hint("int")},
			{Name: "b", Type: types.Unknown},
		},
		ReturnType: types.Hint("str"),
	}
	assert.Equal(t, "f(a: int, b) -> str", sig.Signature())
	assert.Equal(t, "Any", types.Unknown.String())
	assert.True(t, types.Hint("  ").IsUnknown())
}

func TestModuleName(t *testing.T) {
	assert.Equal(t, "calc", ModuleName("/tmp/x/calc.py"))
	assert.Equal(t, "calc", ModuleName("calc"))
	assert.Equal(t, "pkg_mod", ModuleName("pkg_mod.py"))
}

func TestImportableName(t *testing.T) {
	tests := map[string]string{
		"calc.py":          "calc",
		"my-mod.py":        "my_mod",
		"/tmp/src/util.py": "util",
		"2fast.py":         "_2fast",
		"":                 "module",
		"class.py":         "class_",
		"import":           "import_",
		"unittest.py":      "unittest_",
		"os.py":            "os_",
		"match.py":         "match",
	}
	for in, want := range tests {
		assert.Equal(t, want, ImportableName(in), in)
	}
}

func TestCleanDocstring(t *testing.T) {
	assert.Equal(t, "One line.", CleanDocstring(`"""One line."""`))
	assert.Equal(t, "raw", CleanDocstring(`r'raw'`))
	assert.Equal(t, "Title\n\nBody line", CleanDocstring("\"\"\"\n    Title\n\n    Body line\n    \"\"\""))
}

func TestValidatePython(t *testing.T) {
	require.NoError(t, ValidatePython("import unittest\n\nclass T(unittest.TestCase):\n    def test_x(self):\n        self.assertTrue(True)\n"))

	err := ValidatePython("def broken(:\n    return 1\n")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))

	err = ValidatePython("   \n")
	assert.True(t, errors.Is(err, types.ErrValidation))
}
