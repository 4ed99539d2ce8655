//go:build ignore

// check_route_scope_guards.go: every route registered on the authenticated
// /api/v1 group in internal/app/router.go must pass a scope middleware
// before its handler, i.e. api.METHOD(path, scope, handler).
//
// Run: go run docs/design/ci/scripts/check_route_scope_guards.go

package main

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
)

const routerFile = "internal/app/router.go"

var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

func main() {
	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, routerFile, nil, 0)
	if err != nil {
		fmt.Printf("[route-scope-guards] FAIL: parse %s: %v\n", routerFile, err)
		os.Exit(1)
	}

	var violations []string
	routes := 0
	ast.Inspect(node, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok || !httpMethods[sel.Sel.Name] {
			return true
		}
		group, ok := sel.X.(*ast.Ident)
		if !ok || group.Name != "api" {
			return true
		}
		routes++
		if len(call.Args) < 3 {
			violations = append(violations, fmt.Sprintf(
				"%s: api.%s route has no scope middleware",
				fset.Position(call.Pos()), sel.Sel.Name,
			))
		}
		return true
	})

	if routes == 0 {
		fmt.Println("[route-scope-guards] FAIL: no api routes found; router layout changed?")
		os.Exit(1)
	}
	if len(violations) > 0 {
		fmt.Println("[route-scope-guards] FAIL: unguarded routes")
		for _, v := range violations {
			fmt.Println(v)
		}
		os.Exit(1)
	}
	fmt.Printf("[route-scope-guards] OK (%d routes)\n", routes)
}
