package core

import (
	"errors"

	"github.com/Reddan/checkpointer/internal/lib/errs"
	"github.com/Reddan/checkpointer/internal/lib/hooks"
	"github.com/Reddan/checkpointer/internal/lib/storage"
)

// executeCall implements C6's per-call state machine. invoke is the function
// actually run on a refresh; it is cf.fn for a plain synchronous call, or an
// awaiting adapter for CallAwaitable (engine_async.go), so the storage and
// logging machinery below is shared between both call shapes.
func (cf *CachedFunction[K, V]) executeCall(arg K, rerun bool, invoke func(K) (V, error)) (V, error) {
	var zero V

	if !cf.enabled() {
		return invoke(arg)
	}

	callHash, err := cf.computeCallHash(arg)
	if err != nil {
		return zero, err
	}
	callID, err := cf.callID(callHash)
	if err != nil {
		return zero, err
	}

	st, err := cf.storageFor()
	if err != nil {
		return zero, err
	}

	for {
		refresh := rerun
		if !refresh {
			exists, err := st.Exists(callHash)
			if err != nil {
				return zero, err
			}
			refresh = !exists
		}
		if !refresh && cf.cfg.Expiry != nil {
			expired, err := st.Expired(callHash, cf.cfg.Expiry)
			if err != nil {
				return zero, err
			}
			refresh = expired
		}

		if refresh {
			return cf.executeRefresh(callHash, callID, arg, st, invoke)
		}

		data, loadErr := st.Load(callHash)
		if loadErr == nil {
			val, decErr := decodeValue[V](data)
			if decErr == nil {
				cf.hooks.LogState(hooks.Remembered, callID)
				return val, nil
			}
			loadErr = decErr
		}
		if errors.Is(loadErr, storage.ErrNotFound) || errors.Is(loadErr, storage.ErrCorrupt) {
			loadErr = &errs.Corruption{CallID: callID, Wrapped: loadErr}
		}
		if errs.IsCorruption(loadErr) {
			cf.hooks.LogState(hooks.Corrupted, callID)
			rerun = true
			continue
		}
		return zero, loadErr
	}
}

// executeRefresh runs the EXECUTE branch with in-flight deduplication: the
// first caller for a given call_hash runs invoke and stores the result;
// concurrent callers racing on the same call_hash wait for and share that
// single result instead of recomputing (see inflightCall in wrapper.go).
func (cf *CachedFunction[K, V]) executeRefresh(callHash, callID string, arg K, st storage.Storage, invoke func(K) (V, error)) (V, error) {
	var zero V

	cf.shared.mu.Lock()
	if ic, ok := cf.shared.inflight[callHash]; ok {
		cf.shared.mu.Unlock()
		<-ic.done
		return ic.val, ic.err
	}
	ic := &inflightCall[V]{done: make(chan struct{})}
	cf.shared.inflight[callHash] = ic
	cf.shared.mu.Unlock()

	cf.hooks.LogState(hooks.Memorizing, callID)
	val, err := invoke(arg)
	if err == nil {
		data, encErr := encodeValue(val)
		if encErr != nil {
			err = encErr
		} else if _, storeErr := st.Store(callHash, data); storeErr != nil {
			err = storeErr
		}
	}
	if err != nil {
		val = zero
	}

	ic.val, ic.err = val, err
	cf.shared.mu.Lock()
	delete(cf.shared.inflight, callHash)
	cf.shared.mu.Unlock()
	close(ic.done)

	return val, err
}
