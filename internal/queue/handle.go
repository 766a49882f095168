package queue

import "sync"

// Handle is the two-state holder for the active backend: disconnected (no
// store) or connected (exactly one store). Connect and Disconnect are the
// only transitions; Store is the only place callers learn which state the
// handle is in.
type Handle struct {
	mu    sync.RWMutex
	store Store
}

// NewHandle returns a disconnected handle.
func NewHandle() *Handle { return &Handle{} }

// Connect installs s and returns the store it replaced, if any. The caller
// owns the returned store and should close it.
func (h *Handle) Connect(s Store) (previous Store) {
	h.mu.Lock()
	previous, h.store = h.store, s
	h.mu.Unlock()
	backendConnected.Set(1)
	return previous
}

// Disconnect moves the handle to the disconnected state and returns the
// store that was active, if any.
func (h *Handle) Disconnect() (previous Store) {
	h.mu.Lock()
	previous, h.store = h.store, nil
	h.mu.Unlock()
	backendConnected.Set(0)
	return previous
}

// Store returns the connected backend or ErrUnavailable.
func (h *Handle) Store() (Store, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.store == nil {
		return nil, ErrUnavailable
	}
	return h.store, nil
}

// Connected reports whether a backend is installed.
func (h *Handle) Connected() bool {
	_, err := h.Store()
	return err == nil
}
