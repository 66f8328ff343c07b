package bridge

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/handle"
)

// ChangeCallback returns the callback registered with the engine for change
// notifications. The change-set pointer is only valid while the engine's
// call runs, so it is cloned before returning and deliver receives a new
// managed handle that it owns.
func ChangeCallback(lc capi.Lifecycle, deliver func(*handle.Handle)) capi.ChangeCallback {
	return func(changes capi.Ptr) {
		if changes == 0 {
			return
		}
		cloned, err := lc.Clone(changes)
		if err != nil {
			Logger().Error("clone change set", zap.Error(err))
			return
		}
		h, err := handle.New(lc, handle.KindChanges, cloned)
		if err != nil {
			Logger().Error("wrap change set", zap.Error(err))
			return
		}
		deliver(h)
	}
}

// RegisterFunc registers a change callback with the engine and returns the
// notification token.
type RegisterFunc func(capi.ChangeCallback) (capi.Ptr, error)

// Subscription owns a native notification token. Closing it releases the
// token, which deregisters the callback; deliveries still queued on the
// looper are dropped and their change sets released.
type Subscription struct {
	token  *handle.Handle
	mu     sync.Mutex
	closed bool
}

// Observe registers a change callback whose deliveries run serially on
// looper. fn receives the cloned change set and must not retain it; it is
// released once fn returns. opts apply to the token handle.
func Observe(lc capi.Lifecycle, looper *Looper, register RegisterFunc, fn func(changes capi.Ptr), opts ...handle.Option) (*Subscription, error) {
	sub := &Subscription{}

	cb := ChangeCallback(lc, func(changes *handle.Handle) {
		posted := looper.Post(func() {
			defer releaseChanges(changes)
			if !sub.Active() {
				return
			}
			ptr, err := changes.Ptr()
			if err != nil {
				return
			}
			fn(ptr)
		})
		if !posted {
			releaseChanges(changes)
		}
	})

	ptr, err := register(cb)
	if err != nil {
		return nil, err
	}
	token, err := handle.New(lc, handle.KindToken, ptr, opts...)
	if err != nil {
		return nil, err
	}

	sub.mu.Lock()
	sub.token = token
	sub.mu.Unlock()
	return sub, nil
}

func releaseChanges(h *handle.Handle) {
	if err := h.Release(); err != nil {
		Logger().Warn("release change set", zap.Error(err))
	}
}

// Active reports whether the subscription still delivers.
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close deregisters the callback. Closing twice is a no-op.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	token := s.token
	s.mu.Unlock()

	return token.Release()
}
