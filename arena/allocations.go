package arena

import (
	"sync"

	"github.com/wippyai/corebind/capi"
)

type allocation struct {
	ptr   uint32
	size  uint32
	align uint32
}

// allocationList records native allocations owned by one scope.
type allocationList struct {
	allocations []allocation
}

var allocationListPool = sync.Pool{
	New: func() any {
		return &allocationList{allocations: make([]allocation, 0, 8)}
	},
}

const maxPooledCapacity = 128

func newAllocationList() *allocationList {
	return allocationListPool.Get().(*allocationList)
}

func (l *allocationList) add(ptr, size, align uint32) {
	l.allocations = append(l.allocations, allocation{ptr: ptr, size: size, align: align})
}

func (l *allocationList) contains(ptr uint32) bool {
	for _, a := range l.allocations {
		if a.ptr == ptr {
			return true
		}
	}
	return false
}

// drop forgets ptr without freeing it.
func (l *allocationList) drop(ptr uint32) bool {
	for i, a := range l.allocations {
		if a.ptr == ptr {
			l.allocations = append(l.allocations[:i], l.allocations[i+1:]...)
			return true
		}
	}
	return false
}

// freeAndRelease frees in reverse order and returns the list to the pool.
// The list is invalid afterwards.
func (l *allocationList) freeAndRelease(alloc capi.Allocator) {
	for i := len(l.allocations) - 1; i >= 0; i-- {
		if a := l.allocations[i]; a.ptr != 0 {
			alloc.Free(a.ptr, a.size, a.align)
		}
	}
	if cap(l.allocations) > maxPooledCapacity {
		return
	}
	l.allocations = l.allocations[:0]
	allocationListPool.Put(l)
}
