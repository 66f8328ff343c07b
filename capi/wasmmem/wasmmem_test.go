package wasmmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"
)

func newMemory(t *testing.T) *Memory {
	t.Helper()
	ctx := context.Background()
	m, err := New(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(ctx) })
	return m
}

func TestMemory_StartsWithOnePage(t *testing.T) {
	m := newMemory(t)
	assert.Equal(t, uint32(pageSize), m.Size())
}

func TestMemory_AllocGrowsPages(t *testing.T) {
	m := newMemory(t)

	ptr, err := m.Alloc(3*pageSize, 8)
	require.NoError(t, err)
	assert.Zero(t, ptr%8)
	assert.GreaterOrEqual(t, m.Size(), ptr+3*pageSize)
	assert.Zero(t, m.Size()%pageSize)

	m.Free(ptr, 3*pageSize, 8)
	assert.Equal(t, 0, m.Live())
}

func TestMemory_ScalarRoundTrip(t *testing.T) {
	m := newMemory(t)
	ptr, err := m.Alloc(16, 8)
	require.NoError(t, err)

	require.NoError(t, m.WriteU32(ptr, 0xCAFEBABE))
	require.NoError(t, m.WriteU64(ptr+8, 1<<40))

	u32, err := m.ReadU32(ptr)
	require.NoError(t, err)
	u64, err := m.ReadU64(ptr + 8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xCAFEBABE), u32)
	assert.Equal(t, uint64(1<<40), u64)

	raw, err := m.Read(ptr, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xBE, 0xBA, 0xFE, 0xCA}, raw)
}

func TestMemory_AllocZeroesReusedBlocks(t *testing.T) {
	m := newMemory(t)
	ptr, err := m.Alloc(8, 8)
	require.NoError(t, err)
	require.NoError(t, m.WriteU64(ptr, ^uint64(0)))
	m.Free(ptr, 8, 8)

	again, err := m.Alloc(8, 8)
	require.NoError(t, err)
	require.Equal(t, ptr, again)
	v, err := m.ReadU64(again)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestMemory_OutOfBounds(t *testing.T) {
	m := newMemory(t)
	_, err := m.ReadU64(m.Size() - 4)
	assert.Error(t, err)
	assert.Error(t, m.Write(m.Size()-1, []byte{1, 2}))
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil))
}

// readOnly refuses every write, as a memory whose pages were never
// committed would.
type readOnly struct {
	api.Memory
}

func (readOnly) Write(uint32, []byte) bool { return false }

func TestMemory_AllocFailsWhenZeroingFails(t *testing.T) {
	base := newMemory(t)
	m := Wrap(readOnly{Memory: base.mem})

	_, err := m.Alloc(8, 8)
	require.Error(t, err)
	assert.Equal(t, 0, m.Live(), "the block is returned to the free list")
}
