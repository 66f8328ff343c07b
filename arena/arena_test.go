package arena

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/capi/heap"
	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/value"
)

func TestWithScope_FreesOnReturn(t *testing.T) {
	mem := heap.New(0)

	err := WithScope(mem, mem, func(a *Arena) error {
		_, err := a.NewValue(value.String("apple"))
		require.NoError(t, err)
		_, err = a.NewValue(value.Binary([]byte{1, 2, 3}))
		require.NoError(t, err)
		_, err = a.NewValueBuffer()
		require.NoError(t, err)

		assert.Equal(t, 5, a.Count(), "3 slots and 2 payloads")
		assert.Equal(t, 5, mem.Live())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, mem.Live())
}

func TestWithScope_FreesOnError(t *testing.T) {
	mem := heap.New(0)
	boom := fmt.Errorf("native call failed")

	err := WithScope(mem, mem, func(a *Arena) error {
		_, err := a.NewValue(value.String("orange"))
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, mem.Live())
}

func TestWithScope_FreesOnPanic(t *testing.T) {
	mem := heap.New(0)

	assert.Panics(t, func() {
		_ = WithScope(mem, mem, func(a *Arena) error {
			_, _ = a.NewValue(value.String("pear"))
			panic("boom")
		})
	})
	assert.Equal(t, 0, mem.Live())
}

func TestArena_ReadValueAdoptsEnginePayload(t *testing.T) {
	mem := heap.New(0)
	engine := value.NewEncoder(mem, mem)

	err := WithScope(mem, mem, func(a *Arena) error {
		out, err := a.NewValueBuffer()
		require.NoError(t, err)

		// the engine fills the out-parameter with its own allocation
		require.NoError(t, engine.Write(out, value.String("from engine")))
		assert.Equal(t, 2, mem.Live())

		v, err := a.ReadValue(out)
		require.NoError(t, err)
		s, ok := v.AsString()
		assert.True(t, ok)
		assert.Equal(t, "from engine", s)

		// reading twice adopts once
		_, err = a.ReadValue(out)
		require.NoError(t, err)
		assert.Equal(t, 2, a.Count())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, mem.Live())
}

func TestArena_ReadOwnValue(t *testing.T) {
	mem := heap.New(0)
	err := WithScope(mem, mem, func(a *Arena) error {
		addr, err := a.NewValue(value.Binary([]byte("blob")))
		require.NoError(t, err)
		before := a.Count()

		v, err := a.ReadValue(addr)
		require.NoError(t, err)
		assert.True(t, value.Binary([]byte("blob")).Equal(v))
		assert.Equal(t, before, a.Count())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, mem.Live())
}

func TestArena_EarlyFree(t *testing.T) {
	mem := heap.New(0)
	a := New(mem, mem)
	p, err := a.Alloc(16, 8)
	require.NoError(t, err)
	a.Free(p, 16, 8)
	assert.Equal(t, 0, a.Count())
	assert.Equal(t, 0, mem.Live())

	a.Close()
	a.Close()

	_, err = a.Alloc(8, 8)
	assert.ErrorIs(t, err, errors.ErrClosed)
}

func TestArena_UnsupportedValue(t *testing.T) {
	mem := heap.New(0)
	err := WithScope(mem, mem, func(a *Arena) error {
		var decimal value.Value
		addr, err := a.NewValueBuffer()
		require.NoError(t, err)
		require.NoError(t, mem.WriteU32(addr+16, uint32(value.TypeDecimal128)))
		decimal, err = a.ReadValue(addr)
		assert.True(t, decimal.IsNull())
		return err
	})
	assert.ErrorIs(t, err, errors.ErrUnsupportedType)
	assert.Equal(t, 0, mem.Live())
}

func TestArena_QueryArgs(t *testing.T) {
	mem := heap.New(0)
	err := WithScope(mem, mem, func(a *Arena) error {
		args := []QueryArg{
			{Values: []value.Value{value.String("apple")}},
			{Values: []value.Value{value.Int(1), value.Int(2), value.Int(3)}, List: true},
			{Values: nil, List: true},
		}
		addr, err := a.NewQueryArgs(args)
		require.NoError(t, err)

		count, _ := mem.ReadU32(addr + capi.QueryArgSize + capi.QueryArgCountOff)
		isList, _ := mem.ReadU8(addr + capi.QueryArgSize + capi.QueryArgIsListOff)
		assert.Equal(t, uint32(3), count)
		assert.Equal(t, uint8(1), isList)

		got, err := ReadQueryArgs(mem, addr, len(args))
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.False(t, got[0].List)
		assert.True(t, value.String("apple").Equal(got[0].Values[0]))
		assert.Len(t, got[1].Values, 3)
		assert.Empty(t, got[2].Values)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, mem.Live())
}

func TestArena_QueryArgsRejectsMultiValueScalar(t *testing.T) {
	mem := heap.New(0)
	err := WithScope(mem, mem, func(a *Arena) error {
		_, err := a.NewQueryArgs([]QueryArg{{Values: []value.Value{value.Int(1), value.Int(2)}}})
		return err
	})
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
	assert.Equal(t, 0, mem.Live())
}
