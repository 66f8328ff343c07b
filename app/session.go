package app

import (
	"context"
	"sync"

	"github.com/wippyai/corebind/bridge"
	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/handle"
)

// ConnectionChange is one connection state transition.
type ConnectionChange struct {
	Old     capi.ConnectionState
	Current capi.ConnectionState
}

// Session is the sync session of a synced storage.
type Session struct {
	eng Engine
	h   *handle.Handle
}

// NewSession takes ownership of a session handle.
func NewSession(eng Engine, h *handle.Handle) *Session {
	return &Session{eng: eng, h: h}
}

// WaitForUpload blocks until local changes have been uploaded or ctx ends.
func (s *Session) WaitForUpload(ctx context.Context) error {
	ptr, err := s.h.Ptr()
	if err != nil {
		return err
	}
	done := bridge.NewCompletion[struct{}]()
	if err := s.eng.SessionWaitForUpload(ptr, func(err error) {
		done.Complete(struct{}{}, err)
	}); err != nil {
		return err
	}
	_, err = done.Wait(ctx)
	if errors.KindOf(err) == errors.KindCancelled {
		done.Cancel()
	}
	return err
}

// ConnectionEvents delivers connection state changes in the order the
// engine reported them.
type ConnectionEvents struct {
	stream *bridge.Stream[ConnectionChange]
	token  *handle.Handle
	once   sync.Once
}

// C returns the event channel. It is closed after Close.
func (c *ConnectionEvents) C() <-chan ConnectionChange { return c.stream.C() }

// Close deregisters the listener and drops undelivered events.
func (c *ConnectionEvents) Close() error {
	var err error
	c.once.Do(func() {
		err = c.token.Release()
		c.stream.Discard()
	})
	return err
}

// OnConnectionState registers for connection state changes.
func (s *Session) OnConnectionState() (*ConnectionEvents, error) {
	ptr, err := s.h.Ptr()
	if err != nil {
		return nil, err
	}
	stream := bridge.NewStream[ConnectionChange](8)
	tok, err := s.eng.SessionRegisterConnectionState(ptr, func(old, current capi.ConnectionState) {
		stream.Emit(ConnectionChange{Old: old, Current: current})
	})
	if err != nil {
		stream.Discard()
		return nil, err
	}
	h, err := handle.New(s.eng, handle.KindToken, tok)
	if err != nil {
		stream.Discard()
		return nil, err
	}
	return &ConnectionEvents{stream: stream, token: h}, nil
}

// Close releases the session handle.
func (s *Session) Close() error {
	return s.h.Release()
}
