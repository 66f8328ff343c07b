package store

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/corebind/bridge"
	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/config"
	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/handle"
)

// Progress is a download progress report of an async open.
type Progress struct {
	Transferred  uint64
	Transferable uint64
}

// AsyncOpen is a pending asynchronous open. Either Wait for it or Cancel
// it; a reference that arrives after Cancel is released.
type AsyncOpen struct {
	env      *Env
	cfg      *config.Config
	task     *handle.Handle
	token    *handle.Handle
	done     *bridge.Completion[capi.Ptr]
	progress *bridge.Stream[Progress]
	once     sync.Once
	claimed  atomic.Bool
}

// OpenAsync starts opening cfg on an engine thread.
func (e *Env) OpenAsync(ctx context.Context, cfg *config.Config) (*AsyncOpen, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseOpen, errors.KindCancelled, err, "open "+cfg.Path)
	}

	done := bridge.NewCompletion[capi.Ptr]()
	done.OnDiscard(func(ref capi.Ptr) {
		if ref != 0 {
			e.eng.Release(ref)
		}
	})
	ptr, err := e.eng.OpenAsync(cfg.Native(nil), func(ref capi.Ptr, err error) {
		done.Complete(ref, err)
	})
	if err != nil {
		return nil, err
	}
	task, err := handle.New(e.eng, handle.KindTask, ptr, handle.WithTracker(e.tracker))
	if err != nil {
		return nil, err
	}

	op := &AsyncOpen{
		env:      e,
		cfg:      cfg,
		task:     task,
		done:     done,
		progress: bridge.NewStream[Progress](16),
	}
	tok, err := e.eng.AsyncOpenTaskRegisterProgress(ptr, func(transferred, transferable uint64) {
		op.progress.Emit(Progress{Transferred: transferred, Transferable: transferable})
	})
	if err != nil {
		op.finish()
		return nil, err
	}
	if op.token, err = handle.New(e.eng, handle.KindToken, tok); err != nil {
		op.finish()
		return nil, err
	}
	return op, nil
}

// Progress returns download progress in report order. The channel is
// closed once the open completes or is cancelled.
func (a *AsyncOpen) Progress() <-chan Progress {
	return a.progress.C()
}

// Wait blocks until the storage is open and returns it bound to a new
// looper. If ctx ends first the open keeps running and Wait may be called
// again.
func (a *AsyncOpen) Wait(ctx context.Context) (*Store, error) {
	ref, err := a.done.Wait(ctx)
	if errors.KindOf(err) == errors.KindCancelled && ctx.Err() != nil {
		return nil, err
	}
	a.finish()
	if err != nil {
		return nil, err
	}
	if !a.claimed.CompareAndSwap(false, true) {
		return nil, errors.InvalidInput(errors.PhaseOpen, "async open of "+a.cfg.Path+" already resolved")
	}

	refHandle, err := handle.New(a.env.eng, handle.KindThreadSafeRef, ref)
	if err != nil {
		return nil, err
	}
	defer refHandle.Release()

	s := a.env.newStore(a.cfg)
	realm, err := a.env.eng.ResolveThreadSafeReference(ref, s.sched)
	if err != nil {
		s.abort()
		return nil, err
	}
	if err := s.adoptRealm(realm); err != nil {
		s.abort()
		return nil, err
	}
	a.env.log.Info("storage opened asynchronously",
		zap.String("path", a.cfg.Path),
		zap.Uint64("generation", s.generation))
	return s, nil
}

// Cancel abandons the open. It reports false when the open had already
// completed, in which case nothing changes and Wait returns the result.
func (a *AsyncOpen) Cancel() bool {
	if !a.done.Cancel() {
		return false
	}
	if ptr, err := a.task.Ptr(); err == nil {
		a.env.eng.AsyncOpenTaskCancel(ptr)
	}
	a.finish()
	return true
}

// finish releases the task and progress registration and closes the
// progress stream.
func (a *AsyncOpen) finish() {
	a.once.Do(func() {
		if a.token != nil {
			_ = a.token.Release()
		}
		_ = a.task.Release()
		a.progress.Close()
	})
}
