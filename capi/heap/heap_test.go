package heap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_AllocAlignment(t *testing.T) {
	m := New(0)

	a, err := m.Alloc(3, 1)
	require.NoError(t, err)
	b, err := m.Alloc(24, 8)
	require.NoError(t, err)

	assert.NotZero(t, a)
	assert.Zero(t, b%8)
	assert.GreaterOrEqual(t, b, a+3)
	assert.Equal(t, 2, m.Live())
}

func TestMemory_FreeReusesBlocks(t *testing.T) {
	m := New(0)

	a, err := m.Alloc(32, 8)
	require.NoError(t, err)
	_, err = m.Alloc(32, 8)
	require.NoError(t, err)

	m.Free(a, 32, 8)
	c, err := m.Alloc(16, 8)
	require.NoError(t, err)
	assert.Equal(t, a, c, "first fit should reuse the freed block")
}

func TestMemory_FreeUnknownIgnored(t *testing.T) {
	m := New(0)
	a, err := m.Alloc(8, 8)
	require.NoError(t, err)

	m.Free(a+1, 8, 8)
	assert.Equal(t, 1, m.Live())

	m.Free(a, 8, 8)
	m.Free(a, 8, 8)
	assert.Equal(t, 0, m.Live())
}

func TestMemory_Grows(t *testing.T) {
	m := New(64)

	ptr, err := m.Alloc(1000, 8)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, m.Size(), ptr+1000)

	require.NoError(t, m.Write(ptr, []byte("hello")))
	got, err := m.Read(ptr, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestMemory_ScalarAccess(t *testing.T) {
	m := New(0)
	ptr, err := m.Alloc(16, 8)
	require.NoError(t, err)

	require.NoError(t, m.WriteU8(ptr, 0xAB))
	require.NoError(t, m.WriteU16(ptr+2, 0xBEEF))
	require.NoError(t, m.WriteU32(ptr+4, 0xDEADBEEF))
	require.NoError(t, m.WriteU64(ptr+8, 0x0102030405060708))

	u8, _ := m.ReadU8(ptr)
	u16, _ := m.ReadU16(ptr + 2)
	u32, _ := m.ReadU32(ptr + 4)
	u64, _ := m.ReadU64(ptr + 8)
	assert.Equal(t, uint8(0xAB), u8)
	assert.Equal(t, uint16(0xBEEF), u16)
	assert.Equal(t, uint32(0xDEADBEEF), u32)
	assert.Equal(t, uint64(0x0102030405060708), u64)

	raw, _ := m.Read(ptr+8, 8)
	assert.Equal(t, []byte{8, 7, 6, 5, 4, 3, 2, 1}, raw, "little endian")
}

func TestMemory_OutOfBounds(t *testing.T) {
	m := New(64)
	_, err := m.Read(60, 8)
	assert.Error(t, err)
	assert.Error(t, m.WriteU64(m.Size()-4, 1))
}

func TestMemory_ConcurrentAlloc(t *testing.T) {
	m := New(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p, err := m.Alloc(24, 8)
				if err != nil {
					t.Error(err)
					return
				}
				m.Free(p, 24, 8)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, m.Live())
}

func TestFreeList_Coalesces(t *testing.T) {
	f := NewFreeList(8, 1024, nil)

	a, _ := f.Alloc(16, 8)
	b, _ := f.Alloc(16, 8)
	c, _ := f.Alloc(16, 8)
	_, _ = f.Alloc(16, 8)

	f.Free(a)
	f.Free(c)
	f.Free(b)

	// a..c is one 48-byte hole now
	p, err := f.Alloc(48, 8)
	require.NoError(t, err)
	assert.Equal(t, a, p)
}

func TestFreeList_Exhausted(t *testing.T) {
	f := NewFreeList(8, 64, nil)
	_, err := f.Alloc(128, 8)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	_, err = f.Alloc(8, 3)
	assert.ErrorIs(t, err, ErrBadAlign)
}
