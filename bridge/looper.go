package bridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/corebind/errors"
)

// Task is a unit of work run on a Looper.
type Task func()

// Looper is a single-consumer execution context. Tasks posted from any
// goroutine run one at a time, in post order, on the goroutine that calls
// Run. A store's notifications and the engine's scheduled work are
// delivered here.
type Looper struct {
	queue   *Queue[Task]
	done    chan struct{}
	name    string
	running sync.Mutex
	once    sync.Once
}

// NewLooper creates a looper. The name shows up in log fields.
func NewLooper(name string) *Looper {
	return &Looper{
		queue: NewQueue[Task](),
		done:  make(chan struct{}),
		name:  name,
	}
}

// Start runs the looper on a new goroutine until ctx is done or Stop is
// called.
func (l *Looper) Start(ctx context.Context) {
	go func() {
		if err := l.Run(ctx); err != nil && ctx.Err() == nil {
			Logger().Warn("looper exited", zap.String("looper", l.name), zap.Error(err))
		}
	}()
}

// Run consumes tasks on the calling goroutine. It returns nil after Stop
// once queued tasks have run, or ctx.Err() when ctx ends first. Only one
// Run may be active.
func (l *Looper) Run(ctx context.Context) error {
	if !l.running.TryLock() {
		return errors.InvalidInput(errors.PhaseCallback, "looper "+l.name+" already running")
	}
	defer l.running.Unlock()
	defer l.once.Do(func() { close(l.done) })

	for {
		if task, ok := l.queue.TryDequeue(); ok {
			task()
			continue
		}
		if l.queue.Drained() {
			return nil
		}

		select {
		case <-ctx.Done():
			l.queue.Close()
			Logger().Debug("looper stopping", zap.String("looper", l.name),
				zap.Int("dropped", l.queue.Len()))
			return ctx.Err()
		case <-l.queue.Wait():
		}
	}
}

// Post queues task. It returns false after the looper has been stopped.
func (l *Looper) Post(task Task) bool {
	return l.queue.Enqueue(task)
}

// Call runs fn on the looper and waits for its result. It must not be
// called from a task running on the same looper.
func (l *Looper) Call(ctx context.Context, fn func() error) error {
	c := NewCompletion[struct{}]()
	if !l.Post(func() { c.Complete(struct{}{}, fn()) }) {
		return errors.Closed(errors.PhaseCallback, "looper "+l.name)
	}
	_, err := c.Wait(ctx)
	return err
}

// Stop refuses new tasks. Run returns after draining what is queued.
func (l *Looper) Stop() {
	l.queue.Close()
}

// Stopped reports whether the looper refuses new tasks.
func (l *Looper) Stopped() bool {
	return l.queue.Closed()
}

// Done is closed when Run returns.
func (l *Looper) Done() <-chan struct{} {
	return l.done
}

// Pending returns the number of queued tasks.
func (l *Looper) Pending() int {
	return l.queue.Len()
}
