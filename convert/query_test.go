package convert

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/corebind/arena"
	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/capi/heap"
	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/value"
)

func TestQueryArgs_TwoStrings(t *testing.T) {
	reg := NewRegistry()
	mem := heap.New(0)

	args, err := QueryArgs(reg, "apple", "orange")
	require.NoError(t, err)
	require.Len(t, args, 2)

	err = arena.WithScope(mem, mem, func(a *arena.Arena) error {
		addr, err := a.NewQueryArgs(args)
		require.NoError(t, err)

		for i, want := range []string{"apple", "orange"} {
			at := addr + uint32(i)*capi.QueryArgSize
			count, err := mem.ReadU32(at + capi.QueryArgCountOff)
			require.NoError(t, err)
			isList, err := mem.ReadU8(at + capi.QueryArgIsListOff)
			require.NoError(t, err)
			values, err := mem.ReadU32(at + capi.QueryArgValuesOff)
			require.NoError(t, err)

			assert.Equal(t, uint32(1), count)
			assert.Zero(t, isList)

			// tagged value: string discriminant, payload bytes match
			disc, err := mem.ReadU32(values + 16)
			require.NoError(t, err)
			assert.Equal(t, uint32(value.TypeString), disc)
			ptr, _ := mem.ReadU32(values)
			n, _ := mem.ReadU32(values + 4)
			raw, err := mem.Read(ptr, n)
			require.NoError(t, err)
			assert.Equal(t, []byte(want), raw)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, mem.Live())
}

func TestQueryArgs_Lists(t *testing.T) {
	reg := NewRegistry()

	args, err := QueryArgs(reg, []string{"apple", "orange"}, [2]int{1, 2}, []any{})
	require.NoError(t, err)
	require.Len(t, args, 3)

	assert.True(t, args[0].List)
	require.Len(t, args[0].Values, 2)
	assert.True(t, value.String("orange").Equal(args[0].Values[1]))

	assert.True(t, args[1].List)
	assert.True(t, value.Int(2).Equal(args[1].Values[1]))

	assert.True(t, args[2].List)
	assert.Empty(t, args[2].Values)
}

func TestQueryArgs_ArrayScalars(t *testing.T) {
	reg := NewRegistry()
	id := uuid.New()
	oid := value.NewObjectID()

	args, err := QueryArgs(reg, []byte("blob"), id, oid, nil, value.Int(3))
	require.NoError(t, err)
	require.Len(t, args, 5)
	for i, a := range args {
		assert.False(t, a.List, "argument %d", i)
		assert.Len(t, a.Values, 1)
	}
	assert.Equal(t, value.TypeBinary, args[0].Values[0].Type())
	assert.True(t, value.UUID(id).Equal(args[1].Values[0]))
	assert.True(t, value.OID(oid).Equal(args[2].Values[0]))
	assert.True(t, args[3].Values[0].IsNull())
}

func TestQueryArgs_UnsupportedHasPosition(t *testing.T) {
	reg := NewRegistry()

	_, err := QueryArgs(reg, "ok", struct{}{})
	require.ErrorIs(t, err, errors.ErrUnsupportedType)

	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.PhaseQuery, e.Phase)
	assert.Equal(t, []string{"$1"}, e.Path)

	_, err = QueryArgs(reg, []any{1, complex(1, 2)})
	assert.ErrorIs(t, err, errors.ErrUnsupportedType)
}
