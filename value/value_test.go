package value

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/corebind/capi/heap"
	"github.com/wippyai/corebind/errors"
)

func allOnesUUID() uuid.UUID {
	var id uuid.UUID
	for i := range id {
		id[i] = 0xFF
	}
	return id
}

func boundaryValues(t *testing.T) map[string]Value {
	t.Helper()
	oid, err := ObjectIDFromHex("507f1f77bcf86cd799439011")
	require.NoError(t, err)
	return map[string]Value{
		"null":          Null(),
		"int min":       Int(math.MinInt64),
		"int max":       Int(math.MaxInt64),
		"int zero":      Int(0),
		"bool true":     Bool(true),
		"bool false":    Bool(false),
		"float":         Float(-1.5),
		"float max":     Float(math.MaxFloat32),
		"double":        Double(math.Pi),
		"double nan":    Double(math.NaN()),
		"double -inf":   Double(math.Inf(-1)),
		"string":        String("hello, world"),
		"string empty":  String(""),
		"string utf8":   String("日本語"),
		"binary":        Binary([]byte{0, 1, 2, 0xFE, 0xFF}),
		"binary empty":  Binary([]byte{}),
		"timestamp":     Time(FromTime(time.Date(2024, 2, 29, 12, 30, 45, 123456789, time.UTC))),
		"timestamp pre": Time(Timestamp{Seconds: -86400, Nanoseconds: 1}),
		"object id":     OID(oid),
		"uuid zero":     UUID(uuid.UUID{}),
		"uuid ones":     UUID(allOnesUUID()),
		"uuid random":   UUID(uuid.New()),
		"link":          LinkTo(Link{Class: 7, Object: math.MaxInt64}),
		"link negative": LinkTo(Link{Class: math.MaxUint32, Object: -1}),
	}
}

func TestNative_RoundTrip(t *testing.T) {
	mem := heap.New(0)
	enc := NewEncoder(mem, mem)

	for name, v := range boundaryValues(t) {
		t.Run(name, func(t *testing.T) {
			addr, err := mem.Alloc(Size, Align)
			require.NoError(t, err)

			require.NoError(t, enc.Write(addr, v))
			got, err := Read(mem, addr)
			require.NoError(t, err)
			assert.True(t, v.Equal(got), "want %s, got %s", v, got)
			assert.Equal(t, v.Type(), got.Type())

			ptr, size, err := Payload(mem, addr)
			require.NoError(t, err)
			if size > 0 {
				mem.Free(ptr, size, 1)
			}
			mem.Free(addr, Size, Align)
		})
	}
	assert.Equal(t, 0, mem.Live(), "all payloads accounted for")
}

func TestNative_Layout(t *testing.T) {
	mem := heap.New(0)
	enc := NewEncoder(mem, mem)
	addr, err := mem.Alloc(Size, Align)
	require.NoError(t, err)

	require.NoError(t, enc.Write(addr, LinkTo(Link{Class: 3, Object: 0x0102030405060708})))
	raw, err := mem.Read(addr, Size)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 0, 0, 0}, raw[0:4], "class key")
	assert.Equal(t, []byte{8, 7, 6, 5, 4, 3, 2, 1}, raw[8:16], "object key")
	assert.Equal(t, []byte{byte(TypeLink), 0, 0, 0}, raw[16:20], "discriminant")

	require.NoError(t, enc.Write(addr, String("abc")))
	raw, err = mem.Read(addr, Size)
	require.NoError(t, err)
	ptr := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	assert.Equal(t, []byte{3, 0, 0, 0}, raw[4:8], "length")
	payload, err := mem.Read(ptr, 3)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(payload))
}

func TestNative_EmptyPayloadAllocatesNothing(t *testing.T) {
	mem := heap.New(0)
	enc := NewEncoder(mem, mem)
	addr, err := mem.Alloc(Size, Align)
	require.NoError(t, err)

	require.NoError(t, enc.Write(addr, String("")))
	assert.Equal(t, 1, mem.Live())
	_, size, err := Payload(mem, addr)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestNative_Unsupported(t *testing.T) {
	mem := heap.New(0)
	enc := NewEncoder(mem, mem)
	addr, err := mem.Alloc(Size, Align)
	require.NoError(t, err)

	err = enc.Write(addr, Value{typ: TypeDecimal128})
	assert.ErrorIs(t, err, errors.ErrUnsupportedType)

	require.NoError(t, mem.WriteU32(addr+16, uint32(TypeDecimal128)))
	_, err = Read(mem, addr)
	assert.ErrorIs(t, err, errors.ErrUnsupportedType)

	require.NoError(t, mem.WriteU32(addr+16, 99))
	_, err = Read(mem, addr)
	assert.ErrorIs(t, err, errors.ErrUnsupportedType)
}

func TestObjectID_HexBytesExact(t *testing.T) {
	id, err := ObjectIDFromHex("507f1f77bcf86cd799439011")
	require.NoError(t, err)

	want := []byte{0x50, 0x7f, 0x1f, 0x77, 0xbc, 0xf8, 0x6c, 0xd7, 0x99, 0x43, 0x90, 0x11}
	assert.Equal(t, want, id.Bytes())
	assert.Equal(t, "507f1f77bcf86cd799439011", id.Hex())

	mem := heap.New(0)
	addr, err := mem.Alloc(Size, Align)
	require.NoError(t, err)
	require.NoError(t, NewEncoder(mem, mem).Write(addr, OID(id)))
	raw, err := mem.Read(addr, 12)
	require.NoError(t, err)
	assert.Equal(t, want, raw, "native bytes")

	got, err := Read(mem, addr)
	require.NoError(t, err)
	back, ok := got.AsObjectID()
	require.True(t, ok)
	assert.Equal(t, want, back.Bytes())
}

func TestObjectID_Errors(t *testing.T) {
	_, err := ObjectIDFromHex("507f")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	_, err = ObjectIDFromHex("zz7f1f77bcf86cd799439011")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	_, err = ObjectIDFromBytes([]byte{1, 2, 3})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.PhaseConvert, e.Phase)
	assert.Equal(t, []string{"object_id"}, e.Path)
}

func TestObjectID_Generate(t *testing.T) {
	at := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	a := newObjectIDAt(at)
	b := newObjectIDAt(at)

	assert.NotEqual(t, a, b)
	assert.Equal(t, a[:9], b[:9], "same second and process")
	assert.True(t, at.Equal(a.Timestamp()))
	assert.False(t, NewObjectID().IsZero())
}

func TestUUID_BytesExact(t *testing.T) {
	mem := heap.New(0)
	enc := NewEncoder(mem, mem)

	for _, id := range []uuid.UUID{{}, allOnesUUID()} {
		addr, err := mem.Alloc(Size, Align)
		require.NoError(t, err)
		require.NoError(t, enc.Write(addr, UUID(id)))

		raw, err := mem.Read(addr, 16)
		require.NoError(t, err)
		assert.Equal(t, id[:], raw)

		got, err := Read(mem, addr)
		require.NoError(t, err)
		back, ok := got.AsUUID()
		require.True(t, ok)
		assert.Equal(t, id, back)
	}
}

func TestValue_Accessors(t *testing.T) {
	i, ok := Int(42).AsInt()
	assert.True(t, ok)
	assert.Equal(t, int64(42), i)

	_, ok = Int(42).AsString()
	assert.False(t, ok)

	assert.True(t, Null().IsNull())
	assert.True(t, Value{}.IsNull())
	assert.False(t, Int(0).Equal(Null()))
	assert.False(t, Int(1).Equal(Bool(true)))

	assert.Equal(t, int64(5), Int(5).Interface())
	assert.Nil(t, Null().Interface())
	ts := time.Date(2020, 1, 2, 3, 4, 5, 6, time.UTC)
	back, ok := Time(FromTime(ts)).Interface().(time.Time)
	require.True(t, ok)
	assert.True(t, ts.Equal(back))
}

func TestValue_String(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Null(), "null"},
		{Int(-3), "int(-3)"},
		{Bool(true), "bool(true)"},
		{Float(1.5), "float(1.5)"},
		{Double(0.25), "double(0.25)"},
		{String("a\"b"), `string("a\"b")`},
		{Binary([]byte{0xCA, 0xFE}), "binary(cafe)"},
		{Time(Timestamp{Seconds: 0}), "timestamp(1970-01-01T00:00:00Z)"},
		{LinkTo(Link{Class: 1, Object: 2}), "link(1:2)"},
		{UUID(uuid.UUID{}), "uuid(00000000-0000-0000-0000-000000000000)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.v.String())
	}
	assert.Equal(t, "type(42)", Type(42).String())
}

func TestBinary_RoundTrip(t *testing.T) {
	for name, v := range boundaryValues(t) {
		t.Run(name, func(t *testing.T) {
			b, err := AppendBinary(nil, v)
			require.NoError(t, err)
			got, err := ParseBinary(b)
			require.NoError(t, err)
			assert.True(t, v.Equal(got), "want %s, got %s", v, got)
		})
	}
}

func TestBinary_Malformed(t *testing.T) {
	good, err := AppendBinary(nil, String("hello"))
	require.NoError(t, err)

	tests := map[string][]byte{
		"empty":     nil,
		"truncated": good[:len(good)-1],
		"trailing":  append(append([]byte{}, good...), 0),
		"bad tag":   {byte(TypeDecimal128)},
		"short oid": {byte(TypeObjectID), 1, 2},
	}
	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBinary(b)
			assert.Error(t, err)
		})
	}
}
