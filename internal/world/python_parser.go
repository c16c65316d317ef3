// Package world turns Python source into structural facts: the functions, classes
// and signatures a test generator needs to know about.
package world

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"testforge/internal/logging"
	"testforge/internal/types"
)

// PythonAnalyzer implements types.StructuralAnalyzer for Python source.
// It uses Tree-sitter, so malformed source still yields a best-effort summary.
// A PythonAnalyzer is stateless; each call allocates its own parser.
type PythonAnalyzer struct{}

// NewPythonAnalyzer creates a new Python analyzer.
func NewPythonAnalyzer() *PythonAnalyzer {
	return &PythonAnalyzer{}
}

// ModuleName strips the directory and .py suffix from a file name or logical name.
// ImportableName turns the result into a Python identifier.
func ModuleName(logicalName string) string {
	base := filepath.Base(strings.TrimSpace(logicalName))
	base = strings.TrimSuffix(base, ".py")
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return base
}

// Analyze parses source and returns its structural summary. It never fails:
// a parse failure or an internal panic yields an empty summary.
func (a *PythonAnalyzer) Analyze(source, logicalName string) (summary types.StructuralSummary) {
	start := time.Now()
	summary = types.StructuralSummary{
		ModuleName: ModuleName(logicalName),
		Functions:  []types.FunctionSig{},
		Classes:    []types.ClassSig{},
	}

	defer func() {
		if r := recover(); r != nil {
			logging.WorldWarn("PythonAnalyzer: recovered from panic analyzing %s: %v", logicalName, r)
			summary.Functions = []types.FunctionSig{}
			summary.Classes = []types.ClassSig{}
		}
	}()

	content := []byte(source)
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil || tree == nil {
		logging.WorldWarn("PythonAnalyzer: parse failed for %s: %v", logicalName, err)
		return summary
	}
	defer tree.Close()

	w := &walker{content: content, summary: &summary}
	w.walk(tree.RootNode(), -1, false)

	logging.WorldDebug("PythonAnalyzer: %s - %d functions, %d classes in %v",
		summary.ModuleName, len(summary.Functions), len(summary.Classes), time.Since(start))
	return summary
}

// walker accumulates definitions in source order.
type walker struct {
	content []byte
	summary *types.StructuralSummary
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(w.content[n.StartByte():n.EndByte()])
}

// walk visits the named children of node. classIdx is the index into summary.Classes
// of the class whose body node is, or -1 outside a class body. nested is set below
// a function body or a nested class.
func (w *walker) walk(node *sitter.Node, classIdx int, nested bool) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}

		switch child.Type() {
		case "class_definition":
			w.visitClass(child, nested || classIdx >= 0)

		case "function_definition":
			w.visitFunction(child, classIdx, nested)

		case "decorated_definition":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				inner := child.NamedChild(j)
				switch inner.Type() {
				case "class_definition":
					w.visitClass(inner, nested || classIdx >= 0)
				case "function_definition":
					w.visitFunction(inner, classIdx, nested)
				}
			}

		default:
			// Definitions nested in if/try/with/for blocks keep the enclosing class context.
			w.walk(child, classIdx, nested)
		}
	}
}

func (w *walker) visitClass(node *sitter.Node, nested bool) {
	name := w.text(node.ChildByFieldName("name"))
	if name == "" {
		return
	}
	body := node.ChildByFieldName("body")

	w.summary.Classes = append(w.summary.Classes, types.ClassSig{
		Name:      name,
		Docstring: w.docstring(body),
		Methods:   []types.FunctionSig{},
		Nested:    nested,
	})
	idx := len(w.summary.Classes) - 1

	if body != nil {
		w.walk(body, idx, nested)
	}
}

func (w *walker) visitFunction(node *sitter.Node, classIdx int, nested bool) {
	name := w.text(node.ChildByFieldName("name"))
	if name == "" {
		return
	}
	body := node.ChildByFieldName("body")

	fn := types.FunctionSig{
		Name:       name,
		Parameters: w.parameters(node.ChildByFieldName("parameters")),
		ReturnType: w.typeHint(node.ChildByFieldName("return_type")),
		Docstring:  w.docstring(body),
		IsMethod:   classIdx >= 0,
		Nested:     nested,
	}

	w.summary.Functions = append(w.summary.Functions, fn)
	if classIdx >= 0 {
		cls := &w.summary.Classes[classIdx]
		cls.Methods = append(cls.Methods, fn)
	}

	// Nested functions are recorded too, but they are not methods of any class.
	if body != nil {
		w.walk(body, -1, true)
	}
}

func (w *walker) parameters(node *sitter.Node) []types.Parameter {
	params := []types.Parameter{}
	if node == nil {
		return params
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		p := node.NamedChild(i)
		if p == nil {
			continue
		}

		switch p.Type() {
		case "identifier":
			params = append(params, types.Parameter{Name: w.text(p), Type: types.Unknown})

		case "default_parameter":
			params = append(params, types.Parameter{
				Name: w.text(p.ChildByFieldName("name")),
				Type: types.Unknown,
			})

		case "typed_default_parameter":
			params = append(params, types.Parameter{
				Name: w.text(p.ChildByFieldName("name")),
				Type: w.typeHint(p.ChildByFieldName("type")),
			})

		case "typed_parameter":
			// The name is the first named child: an identifier or a splat pattern.
			var name string
			if first := p.NamedChild(0); first != nil {
				name = w.paramName(first)
			}
			params = append(params, types.Parameter{
				Name: name,
				Type: w.typeHint(p.ChildByFieldName("type")),
			})

		case "list_splat_pattern", "dictionary_splat_pattern":
			params = append(params, types.Parameter{Name: w.paramName(p), Type: types.Unknown})
		}
	}
	return params
}

// paramName renders splat patterns with their stars: "*args", "**kwargs".
func (w *walker) paramName(n *sitter.Node) string {
	switch n.Type() {
	case "list_splat_pattern":
		if id := n.NamedChild(0); id != nil {
			return "*" + w.text(id)
		}
	case "dictionary_splat_pattern":
		if id := n.NamedChild(0); id != nil {
			return "**" + w.text(id)
		}
	}
	return w.text(n)
}

// typeHint renders an annotation node. String annotations ("Foo") lose their quotes.
func (w *walker) typeHint(n *sitter.Node) types.TypeHint {
	if n == nil {
		return types.Unknown
	}
	raw := strings.TrimSpace(w.text(n))
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		raw = raw[1 : len(raw)-1]
	}
	return types.Hint(raw)
}

// docstring returns the cleaned leading string literal of a block, if any.
func (w *walker) docstring(body *sitter.Node) *string {
	if body == nil {
		return nil
	}
	var first *sitter.Node
	for i := 0; i < int(body.NamedChildCount()); i++ {
		if n := body.NamedChild(i); n != nil && n.Type() != "comment" {
			first = n
			break
		}
	}
	if first == nil || first.Type() != "expression_statement" || first.NamedChildCount() != 1 {
		return nil
	}
	lit := first.NamedChild(0)
	if lit == nil || lit.Type() != "string" {
		return nil
	}
	doc := CleanDocstring(w.text(lit))
	return &doc
}

// CleanDocstring strips the string prefix and quotes from a Python string literal and
// normalizes indentation the way inspect.cleandoc does.
func CleanDocstring(literal string) string {
	s := strings.TrimLeft(literal, "rRuUbBfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			s = s[len(q) : len(s)-len(q)]
			break
		}
	}

	lines := strings.Split(strings.ReplaceAll(s, "\t", "        "), "\n")

	// Common indentation of all lines after the first, ignoring blank lines.
	indent := -1
	for _, line := range lines[1:] {
		trimmed := strings.TrimLeft(line, " ")
		if trimmed == "" {
			continue
		}
		n := len(line) - len(trimmed)
		if indent < 0 || n < indent {
			indent = n
		}
	}

	lines[0] = strings.TrimSpace(lines[0])
	for i := 1; i < len(lines); i++ {
		if indent > 0 && len(lines[i]) >= indent {
			lines[i] = lines[i][indent:]
		} else {
			lines[i] = strings.TrimLeft(lines[i], " ")
		}
		lines[i] = strings.TrimRight(lines[i], " ")
	}

	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
