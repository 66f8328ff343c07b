package bridge

import (
	"go.uber.org/zap"

	"github.com/wippyai/corebind/capi"
)

// Pump is the engine entry point a scheduler re-enters with.
type Pump interface {
	PerformWork(work capi.Ptr)
}

// Scheduler implements capi.Scheduler on top of a Looper. The engine calls
// Notify from its own threads; each call posts one task that hands the same
// work token back to the engine's pump on the looper, in call order.
type Scheduler struct {
	looper *Looper
	pump   Pump
}

var _ capi.Scheduler = (*Scheduler)(nil)

// NewScheduler binds pump to looper.
func NewScheduler(looper *Looper, pump Pump) *Scheduler {
	return &Scheduler{looper: looper, pump: pump}
}

// Notify queues work for the looper. Safe from any goroutine.
func (s *Scheduler) Notify(work capi.Ptr) {
	if !s.looper.Post(func() { s.pump.PerformWork(work) }) {
		Logger().Debug("scheduled work dropped, looper stopped",
			zap.String("looper", s.looper.name), zap.Uint64("work", uint64(work)))
	}
}

// CanDeliverNotifications reports whether the looper still accepts work.
func (s *Scheduler) CanDeliverNotifications() bool {
	return !s.looper.Stopped()
}

// Looper returns the execution context work is delivered on.
func (s *Scheduler) Looper() *Looper {
	return s.looper
}
