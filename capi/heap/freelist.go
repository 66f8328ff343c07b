package heap

import (
	"errors"
	"sort"
)

var (
	ErrOutOfMemory = errors.New("native memory exhausted")
	ErrBadAlign    = errors.New("alignment must be a power of two")
)

// GrowFunc extends the managed region so that it ends at or beyond need.
// It returns the new end of the region.
type GrowFunc func(need uint32) (uint32, error)

type block struct {
	addr uint32
	size uint32
}

// FreeList is a first-fit allocator over the address range [base, limit).
// Freed blocks are coalesced with their neighbours. It is not safe for
// concurrent use; owners serialize access.
type FreeList struct {
	grow  GrowFunc
	live  map[uint32]uint32
	free  []block
	base  uint32
	top   uint32
	limit uint32
}

// NewFreeList creates an allocator over [base, limit). base must be
// non-zero so that address 0 stays the null pointer.
func NewFreeList(base, limit uint32, grow GrowFunc) *FreeList {
	if base == 0 {
		base = 8
	}
	return &FreeList{
		grow:  grow,
		live:  make(map[uint32]uint32),
		base:  base,
		top:   base,
		limit: limit,
	}
}

// Alloc reserves size bytes aligned to align.
func (f *FreeList) Alloc(size, align uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}
	if align&(align-1) != 0 {
		return 0, ErrBadAlign
	}
	if size == 0 {
		size = 1
	}

	for i, b := range f.free {
		start := alignUp(b.addr, align)
		pad := start - b.addr
		if pad+size > b.size {
			continue
		}
		f.free = append(f.free[:i], f.free[i+1:]...)
		if pad > 0 {
			f.insertFree(block{addr: b.addr, size: pad})
		}
		if rest := b.size - pad - size; rest > 0 {
			f.insertFree(block{addr: start + size, size: rest})
		}
		f.live[start] = size
		return start, nil
	}

	start := alignUp(f.top, align)
	end := uint64(start) + uint64(size)
	if end > 0xFFFFFFFF {
		return 0, ErrOutOfMemory
	}
	if uint32(end) > f.limit {
		if f.grow == nil {
			return 0, ErrOutOfMemory
		}
		limit, err := f.grow(uint32(end))
		if err != nil {
			return 0, err
		}
		if limit < uint32(end) {
			return 0, ErrOutOfMemory
		}
		f.limit = limit
	}
	if pad := start - f.top; pad > 0 {
		f.insertFree(block{addr: f.top, size: pad})
	}
	f.top = uint32(end)
	f.live[start] = size
	return start, nil
}

// Free returns a block. Unknown addresses are ignored and reported false.
func (f *FreeList) Free(ptr uint32) bool {
	size, ok := f.live[ptr]
	if !ok {
		return false
	}
	delete(f.live, ptr)
	f.insertFree(block{addr: ptr, size: size})
	return true
}

// SizeOf returns the size of a live allocation.
func (f *FreeList) SizeOf(ptr uint32) (uint32, bool) {
	size, ok := f.live[ptr]
	return size, ok
}

// Live returns the number of outstanding allocations.
func (f *FreeList) Live() int {
	return len(f.live)
}

func (f *FreeList) insertFree(b block) {
	i := sort.Search(len(f.free), func(i int) bool { return f.free[i].addr >= b.addr })
	f.free = append(f.free, block{})
	copy(f.free[i+1:], f.free[i:])
	f.free[i] = b

	// merge with successor, then predecessor
	if i+1 < len(f.free) && f.free[i].addr+f.free[i].size == f.free[i+1].addr {
		f.free[i].size += f.free[i+1].size
		f.free = append(f.free[:i+1], f.free[i+2:]...)
	}
	if i > 0 && f.free[i-1].addr+f.free[i-1].size == f.free[i].addr {
		f.free[i-1].size += f.free[i].size
		f.free = append(f.free[:i], f.free[i+1:]...)
	}

	// give the tail back to the bump region
	if last := len(f.free) - 1; last >= 0 && f.free[last].addr+f.free[last].size == f.top {
		f.top = f.free[last].addr
		f.free = f.free[:last]
	}
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}
