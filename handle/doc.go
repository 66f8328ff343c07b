// Package handle wraps opaque native resource pointers with ownership.
//
// Every engine call that returns a resource yields a *Handle. Managed
// handles are released exactly once, either explicitly or through a Scope;
// borrowed handles (for example a transient pointer passed into a callback)
// are never released here. A Tracker records which managed handles are
// still open so that file-level operations can refuse to run under them.
//
//	err := handle.WithScope(func(s *handle.Scope) error {
//	    realm := s.Own(h)
//	    ...
//	})
package handle
