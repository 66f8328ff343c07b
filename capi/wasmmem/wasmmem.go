// Package wasmmem provides a native memory backend on top of a wazero
// linear memory, for engines compiled to WebAssembly.
//
// Allocation is managed host-side with the same first-fit allocator the heap
// backend uses; the linear memory is grown page by page on demand.
package wasmmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/corebind/capi/heap"
)

const pageSize = 65536

// memoryModule is a core module with a single exported one-page memory:
//
//	(module (memory (export "memory") 1))
var memoryModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 memory, min 1 page
	0x07, 0x0a, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, // export "memory"
}

// Memory adapts a wazero api.Memory to capi.Memory and capi.Allocator.
// Reads return views into linear memory; they are invalidated by growth.
type Memory struct {
	mem   api.Memory
	alloc *heap.FreeList
	rt    wazero.Runtime
	mu    sync.RWMutex
}

// New instantiates a standalone linear memory in a fresh wazero runtime.
func New(ctx context.Context) (*Memory, error) {
	rt := wazero.NewRuntime(ctx)
	mod, err := rt.Instantiate(ctx, memoryModule)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate memory module: %w", err)
	}
	m := Wrap(mod.ExportedMemory("memory"))
	if m == nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("memory module exports no memory")
	}
	m.rt = rt
	return m, nil
}

// Wrap adapts an existing wazero memory. The allocator manages the whole
// memory, so it must not be shared with a guest allocator.
func Wrap(mem api.Memory) *Memory {
	if mem == nil {
		return nil
	}
	m := &Memory{mem: mem}
	m.alloc = heap.NewFreeList(8, mem.Size(), m.grow)
	return m
}

// Close releases the runtime created by New.
func (m *Memory) Close(ctx context.Context) error {
	if m.rt == nil {
		return nil
	}
	return m.rt.Close(ctx)
}

// grow is called with mu held for writing.
func (m *Memory) grow(need uint32) (uint32, error) {
	size := m.mem.Size()
	if need <= size {
		return size, nil
	}
	delta := (need - size + pageSize - 1) / pageSize
	if _, ok := m.mem.Grow(delta); !ok {
		return 0, heap.ErrOutOfMemory
	}
	return m.mem.Size(), nil
}

// Alloc allocates size bytes aligned to align.
func (m *Memory) Alloc(size, align uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ptr, err := m.alloc.Alloc(size, align)
	if err != nil {
		return 0, err
	}
	if size > 0 && !m.mem.Write(ptr, make([]byte, size)) {
		m.alloc.Free(ptr)
		return 0, fmt.Errorf("zero allocation out of bounds: offset=%d, length=%d", ptr, size)
	}
	return ptr, nil
}

// Free releases an allocation.
func (m *Memory) Free(ptr, size, align uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alloc.Free(ptr)
}

// Live returns the number of outstanding allocations.
func (m *Memory) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alloc.Live()
}

// Size returns the current memory size in bytes.
func (m *Memory) Size() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mem.Size()
}

// Read reads bytes from memory.
func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("memory read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

// Write writes bytes to memory.
func (m *Memory) Write(offset uint32, data []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("memory write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

// ReadU8 reads an unsigned 8-bit value.
func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

// ReadU16 reads an unsigned 16-bit little-endian value.
func (m *Memory) ReadU16(offset uint32) (uint16, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.mem.ReadUint16Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

// ReadU64 reads an unsigned 64-bit little-endian value.
func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

// WriteU8 writes an unsigned 8-bit value.
func (m *Memory) WriteU8(offset uint32, value uint8) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.mem.WriteByte(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// WriteU16 writes an unsigned 16-bit little-endian value.
func (m *Memory) WriteU16(offset uint32, value uint16) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.mem.WriteUint16Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (m *Memory) WriteU32(offset uint32, value uint32) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// WriteU64 writes an unsigned 64-bit little-endian value.
func (m *Memory) WriteU64(offset uint32, value uint64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.mem.WriteUint64Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}
