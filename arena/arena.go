// Package arena provides scoped native buffers for the duration of one
// native call.
//
// Everything an Arena hands out, and every engine-allocated payload it
// adopts while reading values back, is freed when the scope exits:
//
//	err := arena.WithScope(mem, alloc, func(a *arena.Arena) error {
//	    pk, err := a.NewValue(value.String("apple"))
//	    if err != nil {
//	        return err
//	    }
//	    return eng.ObjectFind(realm, class, pk)
//	})
package arena

import (
	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/value"
)

// Arena is a capi.Allocator whose allocations live until Close.
// It is confined to the goroutine running the scope.
type Arena struct {
	mem   capi.Memory
	alloc capi.Allocator
	enc   *value.Encoder
	list  *allocationList
}

// New opens an arena. Callers must Close it; prefer WithScope.
func New(mem capi.Memory, alloc capi.Allocator) *Arena {
	a := &Arena{mem: mem, alloc: alloc, list: newAllocationList()}
	a.enc = value.NewEncoder(mem, a)
	return a
}

// WithScope runs fn with a fresh arena and frees everything it allocated
// on normal return, error return and panic.
func WithScope(mem capi.Memory, alloc capi.Allocator, fn func(*Arena) error) error {
	a := New(mem, alloc)
	defer a.Close()
	return fn(a)
}

// Close frees all outstanding allocations. Close is idempotent.
func (a *Arena) Close() {
	if a.list == nil {
		return
	}
	a.list.freeAndRelease(a.alloc)
	a.list = nil
}

func (a *Arena) live() error {
	if a.list == nil {
		return errors.Closed(errors.PhaseEncode, "arena")
	}
	return nil
}

// Memory returns the native memory the arena writes to.
func (a *Arena) Memory() capi.Memory { return a.mem }

// Count returns the number of allocations the arena currently owns.
func (a *Arena) Count() int {
	if a.list == nil {
		return 0
	}
	return len(a.list.allocations)
}

// Alloc allocates scoped native memory.
func (a *Arena) Alloc(size, align uint32) (uint32, error) {
	if err := a.live(); err != nil {
		return 0, err
	}
	ptr, err := a.alloc.Alloc(size, align)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size, align, err)
	}
	a.list.add(ptr, size, align)
	return ptr, nil
}

// Free releases a scoped allocation early.
func (a *Arena) Free(ptr, size, align uint32) {
	if a.list == nil || !a.list.drop(ptr) {
		return
	}
	a.alloc.Free(ptr, size, align)
}

// Adopt takes ownership of a native allocation made by someone else.
// Adopting an address the arena already owns is a no-op.
func (a *Arena) Adopt(ptr, size, align uint32) {
	if ptr == 0 || a.list == nil || a.list.contains(ptr) {
		return
	}
	a.list.add(ptr, size, align)
}

// NewValueBuffer allocates a null tagged value slot, typically an
// out-parameter for the engine.
func (a *Arena) NewValueBuffer() (uint32, error) {
	return a.Alloc(value.Size, value.Align)
}

// NewValue writes v into a scoped tagged value slot.
func (a *Arena) NewValue(v value.Value) (uint32, error) {
	addr, err := a.NewValueBuffer()
	if err != nil {
		return 0, err
	}
	if err := a.enc.Write(addr, v); err != nil {
		return 0, err
	}
	return addr, nil
}

// NewValues writes vs as a contiguous array of tagged values. An empty
// slice yields address 0.
func (a *Arena) NewValues(vs []value.Value) (uint32, error) {
	if len(vs) == 0 {
		return 0, nil
	}
	base, err := a.Alloc(uint32(len(vs))*value.Size, value.Align)
	if err != nil {
		return 0, err
	}
	for i, v := range vs {
		if err := a.enc.Write(base+uint32(i)*value.Size, v); err != nil {
			return 0, err
		}
	}
	return base, nil
}

// ReadValue decodes the tagged value at addr and adopts its out-of-line
// payload, so engine-allocated strings and blobs are freed with the scope.
func (a *Arena) ReadValue(addr uint32) (value.Value, error) {
	if err := a.live(); err != nil {
		return value.Value{}, err
	}
	v, err := value.Read(a.mem, addr)
	if err != nil {
		return value.Value{}, err
	}
	ptr, size, err := value.Payload(a.mem, addr)
	if err != nil {
		return value.Value{}, err
	}
	a.Adopt(ptr, size, 1)
	return v, nil
}
