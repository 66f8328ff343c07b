package value

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"

	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/errors"
)

// AppendBinary appends the compact encoding of v to dst: one tag byte
// followed by a variant-specific payload. Integers use varints, strings and
// blobs are length-prefixed.
func AppendBinary(dst []byte, v Value) ([]byte, error) {
	if !v.typ.Supported() {
		return dst, errors.UnsupportedNativeType(errors.PhaseEncode, v.typ.String())
	}
	dst = append(dst, byte(v.typ))
	switch v.typ {
	case TypeNull:
	case TypeInt:
		dst = binary.AppendVarint(dst, int64(v.bits))
	case TypeBool:
		dst = append(dst, byte(v.bits))
	case TypeFloat:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(v.bits))
	case TypeDouble:
		dst = binary.LittleEndian.AppendUint64(dst, v.bits)
	case TypeString:
		dst = binary.AppendUvarint(dst, uint64(len(v.str)))
		dst = append(dst, v.str...)
	case TypeBinary:
		dst = binary.AppendUvarint(dst, uint64(len(v.bin)))
		dst = append(dst, v.bin...)
	case TypeTimestamp:
		dst = binary.AppendVarint(dst, v.ts.Seconds)
		dst = binary.AppendVarint(dst, int64(v.ts.Nanoseconds))
	case TypeObjectID:
		dst = append(dst, v.raw[:12]...)
	case TypeUUID:
		dst = append(dst, v.raw[:]...)
	case TypeLink:
		dst = binary.AppendUvarint(dst, uint64(v.link.Class))
		dst = binary.AppendVarint(dst, int64(v.link.Object))
	}
	return dst, nil
}

// ParseBinary decodes a value produced by AppendBinary. The input must hold
// exactly one value.
func ParseBinary(b []byte) (Value, error) {
	r := binReader{buf: b}
	v := r.value()
	if r.err == nil && r.off != len(b) {
		r.fail("trailing bytes")
	}
	if r.err != nil {
		return Value{}, r.err
	}
	return v, nil
}

type binReader struct {
	err error
	buf []byte
	off int
}

func (r *binReader) fail(detail string) {
	if r.err == nil {
		r.err = errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Detail("compact value at offset %d: %s", r.off, detail).
			Build()
	}
}

func (r *binReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.fail("truncated")
		return nil
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out
}

func (r *binReader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf[r.off:])
	if n <= 0 {
		r.fail("bad varint")
		return 0
	}
	r.off += n
	return v
}

func (r *binReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		r.fail("bad uvarint")
		return 0
	}
	r.off += n
	return v
}

func (r *binReader) length() int {
	n := r.uvarint()
	if n > uint64(len(r.buf)) {
		r.fail("length exceeds input")
		return 0
	}
	return int(n)
}

func (r *binReader) value() Value {
	tag := r.take(1)
	if tag == nil {
		return Value{}
	}
	typ := Type(tag[0])
	if !typ.Supported() {
		r.err = errors.UnsupportedNativeType(errors.PhaseDecode, typ.String())
		return Value{}
	}

	switch typ {
	case TypeNull:
		return Null()
	case TypeInt:
		return Int(r.varint())
	case TypeBool:
		if b := r.take(1); b != nil {
			return Bool(b[0] != 0)
		}
	case TypeFloat:
		if b := r.take(4); b != nil {
			return Float(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
	case TypeDouble:
		if b := r.take(8); b != nil {
			return Double(math.Float64frombits(binary.LittleEndian.Uint64(b)))
		}
	case TypeString:
		if b := r.take(r.length()); b != nil {
			return String(string(b))
		}
	case TypeBinary:
		if b := r.take(r.length()); b != nil {
			return Binary(append([]byte{}, b...))
		}
	case TypeTimestamp:
		sec := r.varint()
		nanos := r.varint()
		if nanos < math.MinInt32 || nanos > math.MaxInt32 {
			r.fail("nanoseconds out of range")
		}
		return Time(Timestamp{Seconds: sec, Nanoseconds: int32(nanos)})
	case TypeObjectID:
		if b := r.take(12); b != nil {
			var id ObjectID
			copy(id[:], b)
			return OID(id)
		}
	case TypeUUID:
		if b := r.take(16); b != nil {
			var id uuid.UUID
			copy(id[:], b)
			return UUID(id)
		}
	case TypeLink:
		class := r.uvarint()
		if class > math.MaxUint32 {
			r.fail("class key out of range")
		}
		obj := r.varint()
		return LinkTo(Link{Class: capi.ClassKey(class), Object: capi.ObjKey(obj)})
	}
	return Value{}
}
