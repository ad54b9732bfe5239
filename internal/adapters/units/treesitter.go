// Package units extracts function-level code units from source files.
// This package implements the domain.UnitExtractor interface using gotreesitter.
package units

import (
	"fmt"
	"path/filepath"
	"strings"

	gotreesitter "github.com/odvcencio/gotreesitter"
	"github.com/odvcencio/gotreesitter/grammars"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// functionTypes are the node types that open a new unit.
var functionTypes = map[string]bool{
	"function_definition": true,
}

// decisionTypes are the node types that add one path to a unit's cyclomatic complexity.
var decisionTypes = map[string]bool{
	"if_statement":           true,
	"elif_clause":            true,
	"for_statement":          true,
	"while_statement":        true,
	"except_clause":          true,
	"conditional_expression": true,
	"boolean_operator":       true,
	"for_in_clause":          true,
	"if_clause":              true,
	"case_clause":            true,
}

// TreeSitterExtractor extracts Python units using tree-sitter grammars.
type TreeSitterExtractor struct {
	extensions map[string]bool
}

// NewTreeSitterExtractor creates an extractor for the given source extensions.
// Extensions the bundled grammars cannot detect are ignored.
func NewTreeSitterExtractor(extensions []string) *TreeSitterExtractor {
	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if grammars.DetectLanguage("unit"+ext) != nil {
			exts[ext] = true
		}
	}
	return &TreeSitterExtractor{extensions: exts}
}

// Supports reports whether filename has a configured extension with a known grammar.
func (e *TreeSitterExtractor) Supports(filename string) bool {
	return e.extensions[strings.ToLower(filepath.Ext(filename))]
}

// Units parses source and returns every function definition, nested ones included.
func (e *TreeSitterExtractor) Units(filename string, source []byte) ([]domain.Unit, error) {
	if !e.Supports(filename) {
		return nil, fmt.Errorf("unsupported file type: %s", filename)
	}
	if len(source) == 0 {
		return nil, nil
	}

	bt, err := grammars.ParseFile(filename, source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	defer bt.Release()

	lines := strings.Split(string(source), "\n")

	var units []domain.Unit
	var walk func(node *gotreesitter.Node)
	walk = func(node *gotreesitter.Node) {
		if node == nil {
			return
		}
		if functionTypes[bt.NodeType(node)] {
			units = append(units, buildUnit(bt, node, lines))
		}
		for i := 0; i < node.ChildCount(); i++ {
			walk(node.Child(i))
		}
	}
	walk(bt.RootNode())

	return units, nil
}

func buildUnit(bt *gotreesitter.BoundTree, node *gotreesitter.Node, lines []string) domain.Unit {
	u := domain.Unit{
		StartLine:  int(node.StartPoint().Row) + 1,
		EndLine:    int(node.EndPoint().Row) + 1,
		Complexity: 1,
	}

	for i := 0; i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch bt.NodeType(child) {
		case "identifier":
			if u.Name == "" {
				u.Name = bt.NodeText(child)
			}
		case "parameters":
			u.Parameters = child.NamedChildCount()
		case "block":
			u.Complexity += countDecisions(bt, child)
		}
	}

	u.NLOC = countCodeLines(lines, u.StartLine, u.EndLine)
	return u
}

// countDecisions counts decision points below node without entering nested functions,
// which are units of their own.
func countDecisions(bt *gotreesitter.BoundTree, node *gotreesitter.Node) int {
	count := 0
	for i := 0; i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		nodeType := bt.NodeType(child)
		if functionTypes[nodeType] {
			continue
		}
		if decisionTypes[nodeType] {
			count++
		}
		count += countDecisions(bt, child)
	}
	return count
}

// countCodeLines counts the non-blank, non-comment lines in the 1-based inclusive range.
func countCodeLines(lines []string, start, end int) int {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	n := 0
	for i := start - 1; i < end; i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		n++
	}
	return n
}
