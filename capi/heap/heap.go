// Package heap provides a Go-allocated native memory backend with a
// first-fit allocator, used by in-process engines and tests.
package heap

import (
	"encoding/binary"
	"fmt"
	"sync"
)

const (
	defaultInitial = 64 << 10
	maxSize        = 1 << 31
)

// Memory is a growable byte arena addressed by uint32 offsets.
// It implements capi.Memory, capi.MemorySizer and capi.Allocator and is safe
// for concurrent use. Reads return copies because the backing slice moves
// when memory grows.
type Memory struct {
	alloc *FreeList
	data  []byte
	mu    sync.Mutex
}

// New creates a memory of initial bytes (64 KiB when zero).
func New(initial uint32) *Memory {
	if initial == 0 {
		initial = defaultInitial
	}
	m := &Memory{data: make([]byte, initial)}
	m.alloc = NewFreeList(8, initial, m.grow)
	return m
}

// grow is called with mu held.
func (m *Memory) grow(need uint32) (uint32, error) {
	size := uint64(len(m.data))
	for size < uint64(need) {
		size *= 2
	}
	if size > maxSize {
		return 0, ErrOutOfMemory
	}
	data := make([]byte, size)
	copy(data, m.data)
	m.data = data
	return uint32(size), nil
}

// Alloc allocates size bytes aligned to align.
func (m *Memory) Alloc(size, align uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ptr, err := m.alloc.Alloc(size, align)
	if err != nil {
		return 0, err
	}
	clear(m.data[ptr : ptr+size])
	return ptr, nil
}

// Free releases an allocation. size and align are accepted for interface
// compatibility; the allocator tracks sizes itself.
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
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint32(len(m.data))
}

func (m *Memory) bounds(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(m.data)) {
		return fmt.Errorf("memory access out of bounds: offset=%d, length=%d", offset, length)
	}
	return nil
}

// Read copies length bytes at offset.
func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bounds(offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, m.data[offset:offset+length])
	return out, nil
}

// Write copies data to offset.
func (m *Memory) Write(offset uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bounds(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(m.data[offset:], data)
	return nil
}

// ReadU8 reads an unsigned 8-bit value.
func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bounds(offset, 1); err != nil {
		return 0, err
	}
	return m.data[offset], nil
}

// ReadU16 reads an unsigned 16-bit little-endian value.
func (m *Memory) ReadU16(offset uint32) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bounds(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.data[offset:]), nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bounds(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.data[offset:]), nil
}

// ReadU64 reads an unsigned 64-bit little-endian value.
func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bounds(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[offset:]), nil
}

// WriteU8 writes an unsigned 8-bit value.
func (m *Memory) WriteU8(offset uint32, value uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bounds(offset, 1); err != nil {
		return err
	}
	m.data[offset] = value
	return nil
}

// WriteU16 writes an unsigned 16-bit little-endian value.
func (m *Memory) WriteU16(offset uint32, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bounds(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.data[offset:], value)
	return nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (m *Memory) WriteU32(offset uint32, value uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bounds(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[offset:], value)
	return nil
}

// WriteU64 writes an unsigned 64-bit little-endian value.
func (m *Memory) WriteU64(offset uint32, value uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bounds(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[offset:], value)
	return nil
}
