// Package value defines the tagged value union that crosses the native
// boundary, together with its fixed native layout and a compact binary form.
package value

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/wippyai/corebind/capi"
)

// Type is the tagged value discriminant. The numbering is part of the
// native layout.
type Type uint32

const (
	TypeNull Type = iota
	TypeInt
	TypeBool
	TypeString
	TypeBinary
	TypeTimestamp
	TypeFloat
	TypeDouble
	TypeDecimal128
	TypeObjectID
	TypeLink
	TypeUUID
)

var typeNames = [...]string{
	TypeNull:       "null",
	TypeInt:        "int",
	TypeBool:       "bool",
	TypeString:     "string",
	TypeBinary:     "binary",
	TypeTimestamp:  "timestamp",
	TypeFloat:      "float",
	TypeDouble:     "double",
	TypeDecimal128: "decimal128",
	TypeObjectID:   "object_id",
	TypeLink:       "link",
	TypeUUID:       "uuid",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "type(" + strconv.FormatUint(uint64(t), 10) + ")"
}

// Supported reports whether values of this type can be represented.
// Decimal128 is recognised but not bound.
func (t Type) Supported() bool {
	return t <= TypeUUID && t != TypeDecimal128
}

// Link references a managed object by class and object key.
type Link struct {
	Class  capi.ClassKey
	Object capi.ObjKey
}

func (l Link) String() string {
	return fmt.Sprintf("%d:%d", l.Class, l.Object)
}

// Value is a tagged union holding exactly one variant. The zero Value is
// null. Values are immutable once built.
type Value struct {
	bin  []byte
	str  string
	ts   Timestamp
	link Link
	raw  [16]byte // object id or uuid bytes
	bits uint64   // int, bool, float and double payloads
	typ  Type
}

// Null returns the null value.
func Null() Value { return Value{} }

// Int returns an int value.
func Int(v int64) Value { return Value{typ: TypeInt, bits: uint64(v)} }

// Bool returns a bool value.
func Bool(v bool) Value {
	var b uint64
	if v {
		b = 1
	}
	return Value{typ: TypeBool, bits: b}
}

// Float returns a 32-bit float value.
func Float(v float32) Value {
	return Value{typ: TypeFloat, bits: uint64(math.Float32bits(v))}
}

// Double returns a 64-bit float value.
func Double(v float64) Value {
	return Value{typ: TypeDouble, bits: math.Float64bits(v)}
}

// String returns a string value.
func String(v string) Value { return Value{typ: TypeString, str: v} }

// Binary returns a binary value. The slice is not copied; a nil slice
// becomes an empty blob.
func Binary(v []byte) Value {
	if v == nil {
		v = []byte{}
	}
	return Value{typ: TypeBinary, bin: v}
}

// Time returns a timestamp value.
func Time(ts Timestamp) Value { return Value{typ: TypeTimestamp, ts: ts} }

// OID returns an object id value.
func OID(id ObjectID) Value {
	v := Value{typ: TypeObjectID}
	copy(v.raw[:], id[:])
	return v
}

// UUID returns a uuid value.
func UUID(id uuid.UUID) Value {
	return Value{typ: TypeUUID, raw: id}
}

// LinkTo returns a link value.
func LinkTo(l Link) Value { return Value{typ: TypeLink, link: l} }

// Type returns the active variant.
func (v Value) Type() Type { return v.typ }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.typ == TypeNull }

func (v Value) AsInt() (int64, bool) {
	return int64(v.bits), v.typ == TypeInt
}

func (v Value) AsBool() (bool, bool) {
	return v.bits != 0, v.typ == TypeBool
}

func (v Value) AsFloat() (float32, bool) {
	return math.Float32frombits(uint32(v.bits)), v.typ == TypeFloat
}

func (v Value) AsDouble() (float64, bool) {
	return math.Float64frombits(v.bits), v.typ == TypeDouble
}

func (v Value) AsString() (string, bool) {
	return v.str, v.typ == TypeString
}

// AsBinary returns the blob without copying it.
func (v Value) AsBinary() ([]byte, bool) {
	return v.bin, v.typ == TypeBinary
}

func (v Value) AsTimestamp() (Timestamp, bool) {
	return v.ts, v.typ == TypeTimestamp
}

func (v Value) AsObjectID() (ObjectID, bool) {
	var id ObjectID
	copy(id[:], v.raw[:12])
	return id, v.typ == TypeObjectID
}

func (v Value) AsUUID() (uuid.UUID, bool) {
	return uuid.UUID(v.raw), v.typ == TypeUUID
}

func (v Value) AsLink() (Link, bool) {
	return v.link, v.typ == TypeLink
}

// Equal compares variant and payload. Floats compare by bit pattern so a
// NaN equals itself after a round trip.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeNull:
		return true
	case TypeInt, TypeBool, TypeFloat, TypeDouble:
		return v.bits == o.bits
	case TypeString:
		return v.str == o.str
	case TypeBinary:
		return bytes.Equal(v.bin, o.bin)
	case TypeTimestamp:
		return v.ts == o.ts
	case TypeObjectID, TypeUUID:
		return v.raw == o.raw
	case TypeLink:
		return v.link == o.link
	}
	return false
}

// Interface returns the payload as its natural Go type: nil, int64, bool,
// float32, float64, string, []byte, time.Time, ObjectID, uuid.UUID or Link.
func (v Value) Interface() any {
	switch v.typ {
	case TypeInt:
		i, _ := v.AsInt()
		return i
	case TypeBool:
		b, _ := v.AsBool()
		return b
	case TypeFloat:
		f, _ := v.AsFloat()
		return f
	case TypeDouble:
		d, _ := v.AsDouble()
		return d
	case TypeString:
		return v.str
	case TypeBinary:
		return v.bin
	case TypeTimestamp:
		return v.ts.Time()
	case TypeObjectID:
		id, _ := v.AsObjectID()
		return id
	case TypeUUID:
		id, _ := v.AsUUID()
		return id
	case TypeLink:
		return v.link
	}
	return nil
}

func (v Value) String() string {
	switch v.typ {
	case TypeNull:
		return "null"
	case TypeInt:
		i, _ := v.AsInt()
		return "int(" + strconv.FormatInt(i, 10) + ")"
	case TypeBool:
		b, _ := v.AsBool()
		return "bool(" + strconv.FormatBool(b) + ")"
	case TypeFloat:
		f, _ := v.AsFloat()
		return "float(" + strconv.FormatFloat(float64(f), 'g', -1, 32) + ")"
	case TypeDouble:
		d, _ := v.AsDouble()
		return "double(" + strconv.FormatFloat(d, 'g', -1, 64) + ")"
	case TypeString:
		return "string(" + strconv.Quote(v.str) + ")"
	case TypeBinary:
		return "binary(" + hex.EncodeToString(v.bin) + ")"
	case TypeTimestamp:
		return "timestamp(" + v.ts.Time().Format(time.RFC3339Nano) + ")"
	case TypeObjectID:
		id, _ := v.AsObjectID()
		return "object_id(" + id.Hex() + ")"
	case TypeUUID:
		id, _ := v.AsUUID()
		return "uuid(" + id.String() + ")"
	case TypeLink:
		return "link(" + v.link.String() + ")"
	}
	return v.typ.String()
}
