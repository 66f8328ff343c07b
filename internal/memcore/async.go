package memcore

import (
	"sync"
	"time"

	"github.com/wippyai/corebind/capi"
)

// Async open simulates a download in downloadSteps chunks before the file
// is made available.
var (
	downloadSteps = 4
	downloadChunk = uint64(1 << 16)
	downloadDelay = time.Millisecond
)

type task struct {
	cb        capi.AsyncOpenCallback
	progress  map[uint64]capi.ProgressCallback
	cfg       capi.Config
	nextID    uint64
	sent      uint64
	total     uint64
	mu        sync.Mutex
	cancelled bool
	fired     bool
}

// threadSafeRef carries an opened file to the execution context that will
// resolve it into a realm.
type threadSafeRef struct {
	cfg capi.Config
}

// OpenAsync downloads and opens cfg on an engine goroutine. cb receives a
// thread-safe reference unless the task is cancelled first.
func (e *Engine) OpenAsync(cfg *capi.Config, cb capi.AsyncOpenCallback) (capi.Ptr, error) {
	t := &task{
		cb:       cb,
		cfg:      *cfg,
		progress: make(map[uint64]capi.ProgressCallback),
		total:    uint64(downloadSteps) * downloadChunk,
	}

	e.mu.Lock()
	ptr := e.put(t)
	e.mu.Unlock()

	go e.download(t)
	return ptr, nil
}

func (e *Engine) download(t *task) {
	for i := 1; i <= downloadSteps; i++ {
		time.Sleep(downloadDelay)
		if !t.report(uint64(i) * downloadChunk) {
			return
		}
	}

	e.mu.Lock()
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		e.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()

	var ref capi.Ptr
	_, err := e.loadFile(&t.cfg)
	if err == nil {
		ref = e.put(&threadSafeRef{cfg: t.cfg})
	}
	e.mu.Unlock()

	t.cb(ref, err)
}

// report publishes progress to registered callbacks. It returns false once
// the task is cancelled.
func (t *task) report(sent uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}
	t.sent = sent
	for id := uint64(1); id <= t.nextID; id++ {
		if cb, ok := t.progress[id]; ok {
			cb(sent, t.total)
		}
	}
	return true
}

// AsyncOpenTaskCancel stops a pending open. It is a no-op once the
// callback has fired.
func (e *Engine) AsyncOpenTaskCancel(p capi.Ptr) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := resolve[*task](e, p)
	if err != nil {
		return
	}
	t.cancel()
}

func (t *task) cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.fired {
		t.cancelled = true
	}
}

// AsyncOpenTaskRegisterProgress registers cb and immediately reports the
// progress made so far.
func (e *Engine) AsyncOpenTaskRegisterProgress(p capi.Ptr, cb capi.ProgressCallback) (capi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := resolve[*task](e, p)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.progress[id] = cb
	if t.sent > 0 {
		cb(t.sent, t.total)
	}
	t.mu.Unlock()

	return e.put(&token{remove: func() {
		t.mu.Lock()
		delete(t.progress, id)
		t.mu.Unlock()
	}}), nil
}

// ResolveThreadSafeReference opens the referenced file on the calling
// context, bound to sched.
func (e *Engine) ResolveThreadSafeReference(p capi.Ptr, sched capi.Scheduler) (capi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ref, err := resolve[*threadSafeRef](e, p)
	if err != nil {
		return 0, err
	}
	cfg := ref.cfg
	cfg.Scheduler = sched
	r, err := e.openRealm(&cfg)
	if err != nil {
		return 0, err
	}
	return e.put(r), nil
}
