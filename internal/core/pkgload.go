package core

import (
	"fmt"
	"go/ast"
	"go/token"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/tools/go/packages"
)

// pkgCache memoizes golang.org/x/tools/go/packages loads by directory, since
// the dependency walker repeatedly needs type-checked syntax for the same
// package while traversing a deep call graph.
type pkgCache struct {
	mu    sync.Mutex
	byDir map[string]*loadedPackage
}

type loadedPackage struct {
	pkg *packages.Package
	err error
}

var globalPkgCache = &pkgCache{byDir: make(map[string]*loadedPackage)}

const loadMode = packages.NeedName | packages.NeedFiles | packages.NeedSyntax |
	packages.NeedTypes | packages.NeedTypesInfo | packages.NeedDeps

func (c *pkgCache) load(dir string) (*packages.Package, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lp, ok := c.byDir[dir]; ok {
		return lp.pkg, lp.err
	}
	cfg := &packages.Config{Mode: loadMode, Dir: dir, Tests: true}
	pkgs, err := packages.Load(cfg, ".")
	lp := &loadedPackage{}
	if err != nil {
		lp.err = fmt.Errorf("checkpointer: loading package at %s: %w", dir, err)
	} else {
		// With Tests set the package comes back in several variants; the
		// in-package test variant also holds the _test.go files, so take the
		// clean variant with the most parsed files, skipping the external
		// "_test" package and the generated ".test" main.
		for _, p := range pkgs {
			if len(p.Errors) > 0 || strings.HasSuffix(p.PkgPath, "_test") || strings.HasSuffix(p.PkgPath, ".test") {
				continue
			}
			if lp.pkg == nil || len(p.Syntax) > len(lp.pkg.Syntax) {
				lp.pkg = p
			}
		}
		if lp.pkg == nil {
			lp.err = fmt.Errorf("checkpointer: no clean package found at %s", dir)
		}
	}
	c.byDir[dir] = lp
	return lp.pkg, lp.err
}

// funcDeclAt finds the FuncDecl or FuncLit enclosing the given position in
// pkg's parsed syntax.
func funcDeclAt(pkg *packages.Package, file string, line int) (ast.Node, *token.FileSet, error) {
	for _, f := range pkg.Syntax {
		pos := pkg.Fset.Position(f.Pos())
		if filepath.Base(pos.Filename) != filepath.Base(file) {
			continue
		}
		var found ast.Node
		ast.Inspect(f, func(n ast.Node) bool {
			switch decl := n.(type) {
			case *ast.FuncDecl:
				start := pkg.Fset.Position(decl.Pos()).Line
				end := pkg.Fset.Position(decl.End()).Line
				if line >= start && line <= end {
					found = decl
				}
			case *ast.FuncLit:
				start := pkg.Fset.Position(decl.Pos()).Line
				end := pkg.Fset.Position(decl.End()).Line
				if line >= start && line <= end {
					found = decl
				}
			}
			// Keep descending even after a match: preorder traversal visits
			// an enclosing FuncDecl/FuncLit before any FuncLit nested inside
			// it, so the innermost containing node is whichever one this
			// overwrites found with last.
			return true
		})
		if found != nil {
			return found, pkg.Fset, nil
		}
	}
	return nil, nil, fmt.Errorf("checkpointer: no function found at %s:%d", file, line)
}

// funcDeclAtPos finds the FuncDecl whose name identifier sits at pos,
// the form a *types.Func's own Pos() gives us during recursive dependency
// analysis (walker.go).
func funcDeclAtPos(pkg *packages.Package, pos token.Pos) (ast.Node, *token.FileSet, error) {
	for _, f := range pkg.Syntax {
		var found ast.Node
		ast.Inspect(f, func(n ast.Node) bool {
			if found != nil {
				return false
			}
			if decl, ok := n.(*ast.FuncDecl); ok && decl.Name.Pos() == pos {
				found = decl
			}
			return found == nil
		})
		if found != nil {
			return found, pkg.Fset, nil
		}
	}
	return nil, nil, fmt.Errorf("checkpointer: no declaration found at position")
}
