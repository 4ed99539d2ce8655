//go:build ignore

// Guard: production code under internal/ must not start goroutines with a
// bare `go` statement. Portal attempts and housekeeping run on the worker
// pools. A ticker loop may opt out by putting `nolint:naked-goroutine` in
// its function doc comment or on the line above the statement.
//
// Run: go run docs/design/ci/scripts/check_naked_goroutine.go

package main

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	root   = "internal"
	marker = "nolint:naked-goroutine"
)

// The pool package owns goroutine creation.
var exempt = []string{"internal/pkg/worker"}

type span struct{ from, to int }

func main() {
	if _, err := os.Stat(root); err != nil {
		fmt.Printf("[naked-goroutine] SKIP: %s/ not present\n", root)
		return
	}

	var findings []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if isExempt(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		found, err := scanFile(path)
		if err != nil {
			return err
		}
		findings = append(findings, found...)
		return nil
	})
	if err != nil {
		fmt.Printf("[naked-goroutine] FAIL: %v\n", err)
		os.Exit(1)
	}

	if len(findings) > 0 {
		fmt.Printf("[naked-goroutine] FAIL: %d naked goroutine(s)\n", len(findings))
		for _, f := range findings {
			fmt.Println(f)
		}
		os.Exit(1)
	}
	fmt.Println("[naked-goroutine] OK")
}

func isExempt(dir string) bool {
	dir = filepath.ToSlash(dir)
	for _, e := range exempt {
		if dir == e || strings.HasPrefix(dir, e+"/") {
			return true
		}
	}
	return false
}

func scanFile(path string) ([]string, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	allowed := allowedSpans(fset, file)
	var out []string
	ast.Inspect(file, func(n ast.Node) bool {
		stmt, ok := n.(*ast.GoStmt)
		if !ok {
			return true
		}
		line := fset.Position(stmt.Pos()).Line
		if !covered(allowed, line) {
			out = append(out, fmt.Sprintf(
				"%s:%d: use pools.Portal.Submit or pools.SubmitDetached instead of go",
				path, line))
		}
		return true
	})
	return out, nil
}

// allowedSpans returns the line ranges opted out by a marker: whole function
// bodies for doc-comment markers, the comment line and the next one
// otherwise.
func allowedSpans(fset *token.FileSet, file *ast.File) []span {
	var spans []span
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil || fn.Doc == nil {
			continue
		}
		for _, c := range fn.Doc.List {
			if strings.Contains(c.Text, marker) {
				spans = append(spans, span{
					from: fset.Position(fn.Body.Pos()).Line,
					to:   fset.Position(fn.Body.End()).Line,
				})
				break
			}
		}
	}
	for _, group := range file.Comments {
		for _, c := range group.List {
			if strings.Contains(c.Text, marker) {
				line := fset.Position(c.Pos()).Line
				spans = append(spans, span{line, line + 1})
			}
		}
	}
	return spans
}

func covered(spans []span, line int) bool {
	for _, s := range spans {
		if line >= s.from && line <= s.to {
			return true
		}
	}
	return false
}
