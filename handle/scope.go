package handle

import "sync"

// Scope releases the handles it owns when closed, in reverse order of
// acquisition. Borrowed and already released handles are skipped.
type Scope struct {
	handles []*Handle
	mu      sync.Mutex
}

// Own adds h to the scope and returns it.
func (s *Scope) Own(h *Handle) *Handle {
	if h == nil {
		return nil
	}
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
	return h
}

// Close releases every owned handle and returns the first error.
func (s *Scope) Close() error {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	var first error
	for i := len(handles) - 1; i >= 0; i-- {
		h := handles[i]
		if !h.Managed() || h.Released() {
			continue
		}
		if err := h.Release(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// WithScope runs fn with a fresh scope and closes it on every exit path,
// including panics. An error from fn takes precedence over a release error.
func WithScope(fn func(*Scope) error) (err error) {
	s := &Scope{}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(s)
}
