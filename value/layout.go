package value

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"

	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/errors"
)

// Native layout of a tagged value.
//
//	offset 0   payload union (16 bytes)
//	offset 16  type discriminant (u32)
//	offset 20  padding
const (
	Size  = 24
	Align = 8

	typeOffset  = 16
	payloadSize = 16
)

// Encoder writes tagged values into native memory. String and binary
// payloads are allocated out of line with the encoder's allocator; the
// caller owns them (see Payload).
type Encoder struct {
	mem   capi.Memory
	alloc capi.Allocator
}

// NewEncoder creates an encoder over mem, allocating payloads with alloc.
func NewEncoder(mem capi.Memory, alloc capi.Allocator) *Encoder {
	return &Encoder{mem: mem, alloc: alloc}
}

// Write stores v in the Size-byte slot at addr.
func (e *Encoder) Write(addr uint32, v Value) error {
	if !v.typ.Supported() {
		return errors.UnsupportedNativeType(errors.PhaseEncode, v.typ.String())
	}
	var slot [Size]byte
	if err := e.fill(slot[:payloadSize], v); err != nil {
		return err
	}
	putU32(slot[typeOffset:], uint32(v.typ))
	if err := e.mem.Write(addr, slot[:]); err != nil {
		if p, n := payloadOf(slot[:]); n > 0 {
			e.alloc.Free(p, n, 1)
		}
		return errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "write tagged value")
	}
	return nil
}

func (e *Encoder) fill(p []byte, v Value) error {
	switch v.typ {
	case TypeNull:
	case TypeInt, TypeDouble:
		putU64(p, v.bits)
	case TypeBool:
		p[0] = byte(v.bits)
	case TypeFloat:
		putU32(p, uint32(v.bits))
	case TypeString:
		return e.fillBytes(p, []byte(v.str))
	case TypeBinary:
		return e.fillBytes(p, v.bin)
	case TypeTimestamp:
		putU64(p, uint64(v.ts.Seconds))
		putU32(p[8:], uint32(v.ts.Nanoseconds))
	case TypeObjectID:
		copy(p, v.raw[:12])
	case TypeUUID:
		copy(p, v.raw[:])
	case TypeLink:
		putU32(p, uint32(v.link.Class))
		putU64(p[8:], uint64(v.link.Object))
	}
	return nil
}

func (e *Encoder) fillBytes(p []byte, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if uint64(len(data)) > math.MaxUint32 {
		return errors.Overflow(errors.PhaseEncode, nil, len(data), "u32 length")
	}
	n := uint32(len(data))
	ptr, err := e.alloc.Alloc(n, 1)
	if err != nil {
		return errors.AllocationFailed(errors.PhaseEncode, n, 1, err)
	}
	if err := e.mem.Write(ptr, data); err != nil {
		e.alloc.Free(ptr, n, 1)
		return errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "write payload")
	}
	putU32(p, ptr)
	putU32(p[4:], n)
	return nil
}

// Read decodes the tagged value at addr. String and binary payloads are
// copied out; ownership of the native payload stays with the caller.
func Read(mem capi.Memory, addr uint32) (Value, error) {
	slot, err := mem.Read(addr, Size)
	if err != nil {
		return Value{}, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "read tagged value")
	}
	typ := Type(getU32(slot[typeOffset:]))
	if !typ.Supported() {
		return Value{}, errors.UnsupportedNativeType(errors.PhaseDecode, typ.String())
	}
	p := slot[:payloadSize]

	switch typ {
	case TypeNull:
		return Null(), nil
	case TypeInt:
		return Int(int64(getU64(p))), nil
	case TypeBool:
		return Bool(p[0] != 0), nil
	case TypeFloat:
		return Value{typ: TypeFloat, bits: uint64(getU32(p))}, nil
	case TypeDouble:
		return Value{typ: TypeDouble, bits: getU64(p)}, nil
	case TypeString:
		data, err := readPayload(mem, p)
		if err != nil {
			return Value{}, err
		}
		return String(string(data)), nil
	case TypeBinary:
		data, err := readPayload(mem, p)
		if err != nil {
			return Value{}, err
		}
		return Binary(data), nil
	case TypeTimestamp:
		return Time(Timestamp{
			Seconds:     int64(getU64(p)),
			Nanoseconds: int32(getU32(p[8:])),
		}), nil
	case TypeObjectID:
		var id ObjectID
		copy(id[:], p[:12])
		return OID(id), nil
	case TypeUUID:
		var id uuid.UUID
		copy(id[:], p)
		return UUID(id), nil
	default: // TypeLink
		return LinkTo(Link{
			Class:  capi.ClassKey(getU32(p)),
			Object: capi.ObjKey(getU64(p[8:])),
		}), nil
	}
}

func readPayload(mem capi.Memory, p []byte) ([]byte, error) {
	ptr, n := getU32(p), getU32(p[4:])
	if n == 0 {
		return []byte{}, nil
	}
	data, err := mem.Read(ptr, n)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "read payload")
	}
	// backends may return views into native memory
	out := make([]byte, n)
	copy(out, data)
	return out, nil
}

// Payload reports the out-of-line allocation referenced by the tagged value
// at addr, if any. Payloads are allocated with alignment 1.
func Payload(mem capi.Memory, addr uint32) (ptr, size uint32, err error) {
	slot, err := mem.Read(addr, Size)
	if err != nil {
		return 0, 0, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "read tagged value")
	}
	ptr, size = payloadOf(slot)
	return ptr, size, nil
}

func payloadOf(slot []byte) (uint32, uint32) {
	switch Type(getU32(slot[typeOffset:])) {
	case TypeString, TypeBinary:
		ptr, n := getU32(slot), getU32(slot[4:])
		if ptr == 0 || n == 0 {
			return 0, 0
		}
		return ptr, n
	}
	return 0, 0
}

func putU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func putU64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func getU32(b []byte) uint32    { return binary.LittleEndian.Uint32(b) }
func getU64(b []byte) uint64    { return binary.LittleEndian.Uint64(b) }
