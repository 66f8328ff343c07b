package bridge

import "sync"

// Stream forwards events emitted on engine threads to a channel, in
// emission order. Emit never blocks the engine; a dedicated goroutine moves
// events from an unbounded queue to C.
type Stream[T any] struct {
	queue *Queue[T]
	out   chan T
	quit  chan struct{}
	stop  sync.Once
}

// NewStream starts a stream whose channel holds up to buffer undelivered
// events before the forwarding goroutine waits for the reader.
func NewStream[T any](buffer int) *Stream[T] {
	s := &Stream[T]{
		queue: NewQueue[T](),
		out:   make(chan T, buffer),
		quit:  make(chan struct{}),
	}
	go s.forward()
	return s
}

func (s *Stream[T]) forward() {
	defer close(s.out)
	for {
		if v, ok := s.queue.TryDequeue(); ok {
			select {
			case s.out <- v:
			case <-s.quit:
				return
			}
			continue
		}
		if s.queue.Drained() {
			return
		}
		select {
		case <-s.queue.Wait():
		case <-s.quit:
			return
		}
	}
}

// Emit queues v. It returns false once the stream is closed.
func (s *Stream[T]) Emit(v T) bool {
	return s.queue.Enqueue(v)
}

// C returns the receive side. It is closed after Close once queued events
// are delivered, or right away after Discard.
func (s *Stream[T]) C() <-chan T {
	return s.out
}

// Close ends the stream; events already emitted are still delivered.
func (s *Stream[T]) Close() {
	s.queue.Close()
}

// Discard ends the stream and drops undelivered events.
func (s *Stream[T]) Discard() {
	s.queue.Close()
	s.stop.Do(func() { close(s.quit) })
}
