// Package memcore is an in-process reference engine implementing
// capi.Engine.
//
// It keeps classes and objects in maps, evaluates a small predicate
// language, runs single-writer transactions with rollback, computes change
// sets on commit and delivers them through the realm's scheduler. Files
// opened with sqlite persistence are loaded from and written through to a
// SQLite database, so data survives closing and reopening. Async open,
// login and sync session callbacks run on engine-owned goroutines, as a
// real engine's would.
package memcore

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/capi/heap"
	"github.com/wippyai/corebind/errors"
)

// Native error categories reported by the engine.
const (
	CategoryLogic   = "logic"
	CategorySchema  = "schema"
	CategoryFile    = "file"
	CategoryQuery   = "query"
	CategoryAuth    = "auth"
	CategorySession = "session"
)

// Native error codes.
const (
	CodeInvalidPointer = 1 + iota
	CodeWrongThread
	CodeClosed
	CodeNotInWrite
	CodeAlreadyInWrite
	CodeNoSuchClass
	CodeNoSuchProperty
	CodeTypeMismatch
	CodeDuplicateKey
	CodeNoPrimaryKey
	CodeInvalidLink
	CodeSchemaMismatch
	CodeFileInUse
	CodeIO
	CodeQuerySyntax
	CodeBadCredentials
	CodeNoSuchApp
)

var _ capi.Engine = (*Engine)(nil)

// Engine is the reference engine. All state is guarded by one mutex and
// callbacks are never invoked while it is held.
type Engine struct {
	mem      Memory
	log      *zap.Logger
	nodes    map[capi.Ptr]*node
	files    map[string]*file
	apps     map[string]*appState
	thread   chan func()
	stopped  chan struct{}
	next     capi.Ptr
	mu       sync.Mutex
	stopOnce sync.Once
}

type node struct {
	res  any
	refs int
}

// Memory is native memory the engine shares with the binding: the default
// Go heap backend or a wazero linear memory from capi/wasmmem.
type Memory interface {
	capi.Memory
	capi.Allocator
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMemory sets the native memory shared with the binding.
func WithMemory(m Memory) Option {
	return func(e *Engine) { e.mem = m }
}

// WithApp registers an app. Email logins must match one of users
// (email to password); anonymous logins are always accepted.
func WithApp(id string, users map[string]string) Option {
	return func(e *Engine) {
		e.apps[id] = &appState{id: id, users: users}
	}
}

// New creates an engine and starts its notifier thread.
func New(opts ...Option) *Engine {
	e := &Engine{
		nodes:   make(map[capi.Ptr]*node),
		files:   make(map[string]*file),
		apps:    make(map[string]*appState),
		thread:  make(chan func(), 1024),
		stopped: make(chan struct{}),
		next:    0x1000,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.mem == nil {
		e.mem = heap.New(0)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	go e.run()
	return e
}

// run is the engine's notifier thread. Callbacks without a scheduler and
// scheduler wake-ups are issued from here, in submission order.
func (e *Engine) run() {
	for {
		select {
		case fn := <-e.thread:
			fn()
		case <-e.stopped:
			return
		}
	}
}

// post runs fn on the notifier thread. Must not be called with mu held.
func (e *Engine) post(fn func()) {
	select {
	case e.thread <- fn:
	case <-e.stopped:
	}
}

// Shutdown stops the notifier thread and closes persisted files.
func (e *Engine) Shutdown() error {
	e.stopOnce.Do(func() { close(e.stopped) })

	e.mu.Lock()
	defer e.mu.Unlock()
	var first error
	for path, f := range e.files {
		if err := f.closeStore(); err != nil && first == nil {
			first = err
		}
		delete(e.files, path)
	}
	return first
}

func (e *Engine) Memory() capi.Memory       { return e.mem }
func (e *Engine) Allocator() capi.Allocator { return e.mem }

func nativeErr(category string, code int, msg string) error {
	return errors.Native(category, code, msg)
}

func invalidPtr() error {
	return nativeErr(CategoryLogic, CodeInvalidPointer, "invalid or released pointer")
}

// put registers res under a new pointer. mu must be held.
func (e *Engine) put(res any) capi.Ptr {
	e.next++
	e.nodes[e.next] = &node{res: res, refs: 1}
	return e.next
}

// resolve returns the resource behind p as T. mu must be held.
func resolve[T any](e *Engine, p capi.Ptr) (T, error) {
	var zero T
	n, ok := e.nodes[p]
	if !ok {
		return zero, invalidPtr()
	}
	res, ok := n.res.(T)
	if !ok {
		return zero, nativeErr(CategoryLogic, CodeInvalidPointer, "pointer refers to another resource type")
	}
	return res, nil
}

// Release drops one reference. The resource is finalized when the last
// pointer to it goes away.
func (e *Engine) Release(p capi.Ptr) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.nodes[p]
	if !ok {
		return
	}
	delete(e.nodes, p)
	n.refs--
	if n.refs > 0 {
		return
	}
	switch r := n.res.(type) {
	case *realm:
		e.closeRealm(r)
	case *token:
		r.remove()
	case *task:
		r.cancel()
	}
}

// Clone returns a new pointer to the same resource.
func (e *Engine) Clone(p capi.Ptr) (capi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.nodes[p]
	if !ok {
		return 0, invalidPtr()
	}
	switch r := n.res.(type) {
	case *object:
		return e.put(&object{realm: r.realm, class: r.class, key: r.key}), nil
	default:
		n.refs++
		e.next++
		e.nodes[e.next] = n
		return e.next, nil
	}
}

// Equals reports whether a and b refer to the same resource. Objects are
// equal when they address the same row of the same file.
func (e *Engine) Equals(a, b capi.Ptr) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	na, ok := e.nodes[a]
	if !ok {
		return false
	}
	nb, ok := e.nodes[b]
	if !ok {
		return false
	}
	if na == nb {
		return true
	}
	oa, ok := na.res.(*object)
	if !ok {
		return false
	}
	ob, ok := nb.res.(*object)
	return ok && oa.realm.file == ob.realm.file && oa.class == ob.class && oa.key == ob.key
}

// Live returns the number of outstanding pointers.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.nodes)
}
