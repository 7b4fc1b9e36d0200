package core

import "sync"

// registry maps a function's qualified "<pkg-path>.<name>" name to the
// shared Identity of the CachedFunction that wraps it, so the dependency
// walker can recognize "this is this framework's own cached-callable
// wrapper" (spec.md §4.3) purely from a *types.Func reference, without
// needing a live callable value for every dependency in the graph.
var (
	registryMu sync.RWMutex
	registry   = map[string]*Identity{}
)

// registerIdentity records ident under qualName, replacing the public
// decoration-time registration story spec.md's host language gets for free
// via module globals.
func registerIdentity(qualName string, ident *Identity) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[qualName] = ident
}

func lookupRegisteredIdentity(qualName string) (*Identity, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ident, ok := registry[qualName]
	return ident, ok
}

// qualNameOf derives the "<pkg-path>.<name>" form for fn using runtime
// reflection, the same key shape collectFreeRefs builds from go/types
// objects, so the two agree when the walker does a registry lookup.
func qualNameOf(fn interface{}) (string, error) {
	return runtimeQualName(fn)
}
