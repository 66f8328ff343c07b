package handle

import (
	"sync"

	"github.com/wippyai/corebind/capi"
)

// Slot identifies a tracked handle. Slot 0 is reserved and means untracked.
type Slot uint32

// EventType is a handle lifecycle transition.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReleased
)

func (t EventType) String() string {
	if t == EventCreated {
		return "created"
	}
	return "released"
}

// Event describes a tracked handle transition.
type Event struct {
	Path string
	Ptr  capi.Ptr
	Slot Slot
	Kind Kind
	Type EventType
}

// Observer receives handle lifecycle events. Observers are called
// synchronously and must not block.
type Observer interface {
	OnHandleEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnHandleEvent(e Event) { f(e) }

// Tracker is a slot table of live managed handles. It answers which native
// resources are still open, per file path, so destructive file operations
// can be refused while handles remain.
type Tracker struct {
	entries   []entry
	freeList  []Slot
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
}

type entry struct {
	path  string
	ptr   capi.Ptr
	kind  Kind
	valid bool
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		entries:  make([]entry, 0, 64),
		freeList: make([]Slot, 0, 16),
	}
}

func (t *Tracker) add(kind Kind, ptr capi.Ptr, path string) Slot {
	t.mu.Lock()
	e := entry{kind: kind, ptr: ptr, path: path, valid: true}

	var slot Slot
	if n := len(t.freeList); n > 0 {
		slot = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[slot-1] = e
	} else {
		t.entries = append(t.entries, e)
		slot = Slot(len(t.entries))
	}
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Slot: slot, Kind: kind, Ptr: ptr, Path: path})
	return slot
}

func (t *Tracker) remove(slot Slot) bool {
	if slot == 0 {
		return false
	}
	t.mu.Lock()
	idx := int(slot - 1)
	if idx >= len(t.entries) || !t.entries[idx].valid {
		t.mu.Unlock()
		return false
	}
	e := t.entries[idx]
	t.entries[idx] = entry{}
	t.freeList = append(t.freeList, slot)
	t.mu.Unlock()

	t.notify(Event{Type: EventReleased, Slot: slot, Kind: e.kind, Ptr: e.ptr, Path: e.path})
	return true
}

// InUse returns the number of live handles attached to path.
func (t *Tracker) InUse(path string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, e := range t.entries {
		if e.valid && e.path == path {
			n++
		}
	}
	return n
}

// Len returns the number of live tracked handles.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries) - len(t.freeList)
}

// Each iterates over live handles until fn returns false.
func (t *Tracker) Each(fn func(Slot, Kind, string) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.valid && !fn(Slot(i+1), e.kind, e.path) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Tracker) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

func (t *Tracker) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnHandleEvent(e)
	}
}
