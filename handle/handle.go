package handle

import (
	"sync"

	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/errors"
)

// Handle owns or borrows exactly one native resource.
//
// A managed handle must be released exactly once; a second Release is
// detected and reported instead of reaching the engine. A borrowed handle
// belongs to someone else and is never released through this layer.
// Handles are not copied: Clone asks the engine for a new, independently
// owned resource.
type Handle struct {
	lc       capi.Lifecycle
	tracker  *Tracker
	path     string
	ptr      capi.Ptr
	slot     Slot
	kind     Kind
	managed  bool
	released bool
	mu       sync.Mutex
}

// Option configures a managed handle.
type Option func(*Handle)

// WithTracker registers the handle in t until it is released.
func WithTracker(t *Tracker) Option {
	return func(h *Handle) { h.tracker = t }
}

// WithPath attaches the storage file path the resource keeps open.
func WithPath(path string) Option {
	return func(h *Handle) { h.path = path }
}

// New wraps a pointer returned by the engine. The caller owns the result.
func New(lc capi.Lifecycle, kind Kind, ptr capi.Ptr, opts ...Option) (*Handle, error) {
	if ptr == 0 {
		return nil, errors.InvalidHandle("engine returned a null " + kind.String())
	}
	h := &Handle{lc: lc, kind: kind, ptr: ptr, managed: true}
	for _, opt := range opts {
		opt(h)
	}
	if h.tracker != nil {
		h.slot = h.tracker.add(kind, ptr, h.path)
	}
	return h, nil
}

// Borrow wraps a pointer owned elsewhere. Release is a no-op on the result.
func Borrow(lc capi.Lifecycle, kind Kind, ptr capi.Ptr) *Handle {
	return &Handle{lc: lc, kind: kind, ptr: ptr}
}

// Ptr returns the native pointer, failing once the handle is released.
func (h *Handle) Ptr() (capi.Ptr, error) {
	if h == nil {
		return 0, errors.InvalidHandle("nil handle")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return 0, errors.InvalidHandle(h.kind.String() + " handle used after release")
	}
	if h.ptr == 0 {
		return 0, errors.InvalidHandle("null " + h.kind.String())
	}
	return h.ptr, nil
}

func (h *Handle) Kind() Kind { return h.kind }

// Managed reports whether this layer owns the resource.
func (h *Handle) Managed() bool { return h.managed }

// Path returns the storage path the handle keeps open, if any.
func (h *Handle) Path() string { return h.path }

// Released reports whether Release has been called on a managed handle.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Release frees a managed resource. Borrowed handles are left untouched.
func (h *Handle) Release() error {
	if h == nil || !h.managed {
		return nil
	}
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return errors.DoubleRelease(h.kind.String())
	}
	h.released = true
	ptr := h.ptr
	h.mu.Unlock()

	if h.lc != nil && ptr != 0 {
		h.lc.Release(ptr)
	}
	if h.tracker != nil {
		h.tracker.remove(h.slot)
	}
	return nil
}

// Clone returns a new managed handle to the same resource. The clone shares
// tracker and path but is released independently.
func (h *Handle) Clone() (*Handle, error) {
	ptr, err := h.Ptr()
	if err != nil {
		return nil, err
	}
	if h.lc == nil {
		return nil, errors.InvalidHandle(h.kind.String() + " handle has no lifecycle")
	}
	cloned, err := h.lc.Clone(ptr)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHandle, errors.KindNative, err, "clone "+h.kind.String())
	}
	return New(h.lc, h.kind, cloned, WithTracker(h.tracker), WithPath(h.path))
}

// Equals reports whether both handles refer to the same native resource.
func (h *Handle) Equals(o *Handle) bool {
	a, err := h.Ptr()
	if err != nil {
		return false
	}
	b, err := o.Ptr()
	if err != nil {
		return false
	}
	if a == b {
		return true
	}
	return h.lc != nil && h.lc.Equals(a, b)
}
