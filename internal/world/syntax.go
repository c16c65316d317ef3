package world

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"testforge/internal/types"
)

// SyntaxError locates one ERROR or MISSING node.
type SyntaxError struct {
	Line    int
	Column  int
	Missing bool
	Near    string
}

func (e SyntaxError) String() string {
	kind := "syntax error"
	if e.Missing {
		kind = "missing token"
	}
	return fmt.Sprintf("%s at line %d col %d near %q", kind, e.Line, e.Column, e.Near)
}

// SyntaxErrors returns every syntax error tree-sitter found in source.
func SyntaxErrors(ctx context.Context, source string) ([]SyntaxError, error) {
	content := []byte(source)
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var errs []SyntaxError
	collectSyntaxErrors(tree.RootNode(), content, &errs)
	return errs, nil
}

func collectSyntaxErrors(node *sitter.Node, content []byte, errs *[]SyntaxError) {
	if node == nil {
		return
	}
	if node.IsError() || node.IsMissing() {
		start, end := node.StartByte(), node.EndByte()
		if end > uint32(len(content)) {
			end = uint32(len(content))
		}
		near := string(content[start:end])
		if len(near) > 50 {
			near = near[:50] + "..."
		}
		point := node.StartPoint()
		*errs = append(*errs, SyntaxError{
			Line:    int(point.Row) + 1,
			Column:  int(point.Column),
			Missing: node.IsMissing(),
			Near:    near,
		})
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectSyntaxErrors(node.Child(i), content, errs)
	}
}

// ValidatePython reports types.ErrValidation when source is empty or has syntax errors.
func ValidatePython(source string) error {
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("%w: empty source", types.ErrValidation)
	}
	errs, err := SyntaxErrors(context.Background(), source)
	if err != nil {
		return fmt.Errorf("%w: parse failed: %v", types.ErrValidation, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %d syntax error(s), first: %s", types.ErrValidation, len(errs), errs[0])
	}
	return nil
}
