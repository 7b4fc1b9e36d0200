package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Reddan/checkpointer/internal/lib/capture"
	"github.com/Reddan/checkpointer/internal/lib/hash"
	"golang.org/x/tools/go/packages"
)

// rawIdent is the output of a single function's C2+C3 pass. fnHash already
// folds in the body text of every *plain* (non-cached) user function
// reachable through it — "inlined into fingerprint" per spec.md §3/§4.3 —
// while cached dependencies are recorded by reference in depends so their
// own composed fn_hash (not their body) is what later changes this
// function's deep fn_hash (identity.go).
type rawIdent struct {
	fnHash      []byte
	depends     []dependency
	capturables *capture.Set
}

// dependency is another cached callable reachable through the target's
// closure. Plain user functions never appear here: they are inlined
// directly into rawIdent.fnHash instead (spec.md §4.3).
type dependency struct {
	qualName string
	cached   *Identity
}

// buildRawIdent runs the source analyzer over fn and walks its
// user-authored dependency closure (C2+C3). captureAll comes from the
// owning Config's Capture flag (spec.md §4.3).
func buildRawIdent(fn interface{}, captureAll bool) (*rawIdent, error) {
	a, err := analyzeFunc(fn)
	if err != nil {
		return nil, err
	}
	return finishRawIdent(a, captureAll)
}

func finishRawIdent(a *analyzed, captureAll bool) (*rawIdent, error) {
	hh, err := hash.New(hash.Size16)
	if err != nil {
		return nil, err
	}
	hh.Header(a.header)
	hh.WriteBytes([]byte(a.body))

	caps := capture.NewSet()
	var depends []dependency
	visited := map[string]bool{}
	walkRefs(hh, a.refs, visited, &depends, caps, captureAll)

	return &rawIdent{fnHash: hh.Sum(), depends: depends, capturables: caps}, nil
}

// walkRefs performs the DFS of spec.md §4.3 over a single function's free
// references. A plain user function's header+body is written into hh
// (inlining it into the caller's own fingerprint) and its own refs are
// walked in turn; a registered cached callable stops descent and is
// recorded by reference instead.
func walkRefs(hh *hash.Hasher, refs []freeRef, visited map[string]bool, depends *[]dependency, caps *capture.Set, captureAll bool) {
	for _, ref := range refs {
		switch ref.kind {
		case refFunc:
			if visited[ref.qualName] {
				continue
			}
			visited[ref.qualName] = true

			if ident, ok := lookupRegisteredIdentity(ref.qualName); ok {
				*depends = append(*depends, dependency{qualName: ref.qualName, cached: ident})
				continue
			}
			if !isUserAuthored(ref.qualName) {
				continue
			}
			sub, err := analyzeObj(ref.obj)
			if err != nil {
				continue
			}
			hh.Header(sub.header)
			hh.WriteBytes([]byte(sub.body))
			walkRefs(hh, sub.refs, visited, depends, caps, captureAll)

		case refVar:
			c, registered := capture.Lookup(ref.key, nil)
			if captureAll || registered {
				caps.Add(c)
			}
		}
	}
}

// isUserAuthored reports whether a qualified "<pkg-path>.<name>" reference
// is defined under the current working directory and not inside a module
// cache / vendor directory — the Go substitute for spec.md §4.3's "defined
// under cwd, not .venv, not stdlib" test.
func isUserAuthored(qualName string) bool {
	if hash.IsStdlibFunc(qualName) {
		return false
	}
	idx := strings.LastIndex(qualName, ".")
	if idx < 0 {
		return false
	}
	pkgPath := qualName[:idx]
	dir, err := packageDir(pkgPath)
	if err != nil {
		return false
	}
	sep := string(filepath.Separator)
	if strings.Contains(dir, sep+"vendor"+sep) || strings.Contains(dir, sep+"pkg"+sep+"mod"+sep) {
		return false
	}
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}
	return strings.HasPrefix(dir, cwd)
}

var pkgDirCache = map[string]string{}

func packageDir(pkgPath string) (string, error) {
	if d, ok := pkgDirCache[pkgPath]; ok {
		return d, nil
	}
	pkgs, err := packages.Load(&packages.Config{Mode: packages.NeedFiles}, pkgPath)
	if err != nil || len(pkgs) == 0 || len(pkgs[0].GoFiles) == 0 {
		return "", fmt.Errorf("checkpointer: cannot locate package %s", pkgPath)
	}
	dir := filepath.Dir(pkgs[0].GoFiles[0])
	pkgDirCache[pkgPath] = dir
	return dir, nil
}
