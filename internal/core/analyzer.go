package core

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/printer"
	"go/token"
	"go/types"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"

	"golang.org/x/tools/go/packages"
)

// refKind classifies a free identifier discovered inside a function body,
// standing in for spec.md §4.2's LOAD_FAST/LOAD_DEREF/LOAD_GLOBAL (see
// SPEC_FULL.md §2).
type refKind int

const (
	refFunc refKind = iota // package-level function: dependency candidate
	refVar                 // package-level var/const: capturable candidate
)

// freeRef is one captured-scope reference resolved by the analyzer. For
// refFunc, obj is kept so the walker can recurse purely through go/types —
// a Go function referenced only by name cannot, in general, be turned back
// into a callable value, but it can always be turned back into more AST via
// its *types.Func position (SPEC_FULL.md §2).
type freeRef struct {
	kind     refKind
	qualName string
	obj      *types.Func // set when kind == refFunc
	key      string       // set when kind == refVar; "<file>/<name>" (spec.md §3)
}

// analyzed is the Source Analyzer's output for a single function: its
// canonical body string and the free names it references.
type analyzed struct {
	header string // "<func-kind> <name-or-null> <param-names>"
	body   string // canonical, comment/doc-stripped source text
	refs   []freeRef
}

// analyzeFunc implements C2 for the Go function value a caller passes to
// Configure. It locates the function's source position via runtime
// reflection, then hands off to the purely AST/types-driven path shared
// with recursive dependency analysis.
func analyzeFunc(fn interface{}) (*analyzed, error) {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("checkpointer: %T is not a function", fn)
	}
	rfn := runtime.FuncForPC(rv.Pointer())
	if rfn == nil {
		return nil, fmt.Errorf("checkpointer: no runtime info for function")
	}
	file, line := rfn.FileLine(rv.Pointer())
	dir := filepath.Dir(file)

	pkg, err := globalPkgCache.load(dir)
	if err != nil {
		return nil, err
	}

	node, fset, err := funcDeclAt(pkg, file, line)
	if err != nil {
		return nil, err
	}

	return analyzeNode(pkg, fset, node)
}

// analyzeObj implements the same analysis starting from a *types.Func
// object discovered as a free reference inside some other function's body
// (the recursive case of the dependency walker, C3). It reloads (from
// cache) the package that declares obj and locates its FuncDecl by
// position.
func analyzeObj(obj *types.Func) (*analyzed, error) {
	if obj.Pkg() == nil {
		return nil, fmt.Errorf("checkpointer: %s has no owning package", obj.Name())
	}
	dir, err := packageDir(obj.Pkg().Path())
	if err != nil {
		return nil, err
	}
	pkg, err := globalPkgCache.load(dir)
	if err != nil {
		return nil, err
	}
	node, fset, err := funcDeclAtPos(pkg, obj.Pos())
	if err != nil {
		return nil, err
	}
	return analyzeNode(pkg, fset, node)
}

func analyzeNode(pkg *packages.Package, fset *token.FileSet, node ast.Node) (*analyzed, error) {
	var (
		name   string
		params *ast.FieldList
		body   *ast.BlockStmt
		kind   string
	)
	switch n := node.(type) {
	case *ast.FuncDecl:
		name = n.Name.Name
		params = n.Type.Params
		body = n.Body
		kind = "func"
	case *ast.FuncLit:
		name = ""
		params = n.Type.Params
		body = n.Body
		kind = "lambda"
	default:
		return nil, fmt.Errorf("checkpointer: unsupported node %T", node)
	}

	paramNames := paramNameList(params)
	bodyText, err := canonicalBody(fset, body)
	if err != nil {
		return nil, err
	}

	headerName := name
	if headerName == "" {
		headerName = "null"
	}
	header := fmt.Sprintf("%s %s %s", kind, headerName, strings.Join(paramNames, ","))

	refs := collectFreeRefs(pkg, body, params)

	return &analyzed{header: header, body: bodyText, refs: refs}, nil
}

// runtimeQualName derives the "<pkg-path>.<name>" form for a Go function
// value from its runtime name, splitting at the dot immediately after the
// last path separator (the boundary runtime.FuncForPC always uses between
// an import path and a plain function name).
func runtimeQualName(fn interface{}) (string, error) {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return "", fmt.Errorf("checkpointer: %T is not a function", fn)
	}
	rfn := runtime.FuncForPC(rv.Pointer())
	if rfn == nil {
		return "", fmt.Errorf("checkpointer: no runtime info for function")
	}
	full := rfn.Name()
	slash := strings.LastIndex(full, "/")
	rest := full
	prefix := ""
	if slash >= 0 {
		prefix = full[:slash+1]
		rest = full[slash+1:]
	}
	dot := strings.Index(rest, ".")
	if dot < 0 {
		return "", fmt.Errorf("checkpointer: cannot parse qualified name %q", full)
	}
	return prefix + rest[:dot] + "." + rest[dot+1:], nil
}

func paramNameList(fields *ast.FieldList) []string {
	if fields == nil {
		return nil
	}
	var names []string
	for _, f := range fields.List {
		if len(f.Names) == 0 {
			names = append(names, "_")
			continue
		}
		for _, n := range f.Names {
			names = append(names, n.Name)
		}
	}
	return names
}

// canonicalBody prints body with go/printer in raw mode, which omits
// comments by construction, after also stripping a leading bare
// string-literal expression statement (Go's closest analogue to a
// docstring), so that whitespace/comment-only edits never change a
// function's fingerprint (spec.md §4.2, §8 scenario 3).
func canonicalBody(fset *token.FileSet, body *ast.BlockStmt) (string, error) {
	if body == nil {
		return "", nil
	}
	stripped := stripLeadingDocString(body)
	var buf bytes.Buffer
	cfg := &printer.Config{Mode: printer.RawFormat}
	if err := cfg.Fprint(&buf, fset, stripped); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func stripLeadingDocString(body *ast.BlockStmt) *ast.BlockStmt {
	if len(body.List) == 0 {
		return body
	}
	if es, ok := body.List[0].(*ast.ExprStmt); ok {
		if _, ok := es.X.(*ast.BasicLit); ok {
			clone := *body
			clone.List = body.List[1:]
			return &clone
		}
	}
	return body
}

// collectFreeRefs walks body, classifying every identifier that resolves
// (via the package's type info) to a package-level function or
// var/const — the Go substitute for scanning LOAD_GLOBAL/LOAD_DEREF
// instructions (SPEC_FULL.md §2). Parameters and locally declared names are
// excluded by checking that the resolved object's parent scope is the
// package scope rather than a scope nested under params/locals.
func collectFreeRefs(pkg *packages.Package, body *ast.BlockStmt, params *ast.FieldList) []freeRef {
	if body == nil || pkg == nil || pkg.TypesInfo == nil {
		return nil
	}

	seen := make(map[string]bool)
	var refs []freeRef

	ast.Inspect(body, func(n ast.Node) bool {
		ident, ok := n.(*ast.Ident)
		if !ok {
			return true
		}
		obj := pkg.TypesInfo.Uses[ident]
		if obj == nil || obj.Pkg() == nil {
			return true
		}
		if obj.Parent() != pkg.Types.Scope() {
			// local variable, parameter, or a name declared inside the
			// function body: not a free reference.
			return true
		}
		qualName := obj.Pkg().Path() + "." + obj.Name()

		switch o := obj.(type) {
		case *types.Func:
			if !seen["fn:"+qualName] {
				seen["fn:"+qualName] = true
				refs = append(refs, freeRef{kind: refFunc, qualName: qualName, obj: o})
			}
		case *types.Var, *types.Const:
			file := pkg.Fset.Position(obj.Pos()).Filename
			key := filepath.Base(file) + "/" + obj.Name()
			if !seen["var:"+key] {
				seen["var:"+key] = true
				refs = append(refs, freeRef{kind: refVar, qualName: qualName, key: key})
			}
		}
		return true
	})
	return refs
}
