package convert

import (
	"sync"
	"time"

	"github.com/goccy/go-reflect"
	"github.com/google/uuid"

	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/value"
)

type entry struct {
	conv      any // Converter[P]
	toValue   func(any) (value.Value, error)
	fromValue func(value.Value) (any, error)
	goType    string
}

// Registry maps public types to converters. Each conversion context owns
// its own registry; there is no process-wide instance. Static callers use
// Lookup; dynamic lookup by runtime type is for query arguments and
// reflected struct fields.
type Registry struct {
	byType map[uintptr]entry
	mu     sync.RWMutex
}

// NewRegistry returns a registry with the built-in scalar converters and
// their pointer (nullable) forms.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[uintptr]entry)}

	Register[int](r, Compose[int, int64](Signed[int]{}, IntStorage{}))
	Register[int8](r, Compose[int8, int64](Signed[int8]{}, IntStorage{}))
	Register[int16](r, Compose[int16, int64](Signed[int16]{}, IntStorage{}))
	Register[int32](r, Compose[int32, int64](Signed[int32]{}, IntStorage{}))
	Register[int64](r, Compose[int64, int64](Identity[int64]{}, IntStorage{}))
	Register[uint](r, Compose[uint, int64](Unsigned[uint]{}, IntStorage{}))
	Register[uint8](r, Compose[uint8, int64](Unsigned[uint8]{}, IntStorage{}))
	Register[uint16](r, Compose[uint16, int64](Unsigned[uint16]{}, IntStorage{}))
	Register[uint32](r, Compose[uint32, int64](Unsigned[uint32]{}, IntStorage{}))
	Register[uint64](r, Compose[uint64, int64](Unsigned[uint64]{}, IntStorage{}))

	Register[bool](r, Compose[bool, bool](Identity[bool]{}, BoolStorage{}))
	Register[float32](r, Compose[float32, float32](Identity[float32]{}, FloatStorage{}))
	Register[float64](r, Compose[float64, float64](Identity[float64]{}, DoubleStorage{}))
	Register[string](r, Compose[string, string](Identity[string]{}, StringStorage{}))
	Register[[]byte](r, Compose[[]byte, []byte](Identity[[]byte]{}, BinaryStorage{}))

	Register[value.Timestamp](r, Compose[value.Timestamp, value.Timestamp](Identity[value.Timestamp]{}, TimestampStorage{}))
	Register[time.Time](r, Compose[time.Time, value.Timestamp](TimePublic{}, TimestampStorage{}))
	Register[value.ObjectID](r, Compose[value.ObjectID, value.ObjectID](Identity[value.ObjectID]{}, ObjectIDStorage{}))
	Register[uuid.UUID](r, Compose[uuid.UUID, uuid.UUID](Identity[uuid.UUID]{}, UUIDStorage{}))
	Register[value.Link](r, Compose[value.Link, value.Link](Identity[value.Link]{}, LinkStorage{}))

	return r
}

// Register installs c for P and a nullable converter for *P, replacing any
// previous registration.
func Register[P any](r *Registry, c Converter[P]) {
	ptr := Converter[*P](Nullable[P]{Elem: c})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[typeKey[P]()] = entryFor(c)
	r.byType[typeKey[*P]()] = entryFor(ptr)
}

func entryFor[P any](c Converter[P]) entry {
	return entry{
		conv:   c,
		goType: typeName[P](),
		toValue: func(x any) (value.Value, error) {
			return c.ToValue(x.(P))
		},
		fromValue: func(v value.Value) (any, error) {
			return c.FromValue(v)
		},
	}
}

func typeKey[T any]() uintptr {
	var zero T
	return reflect.TypeID(zero)
}

// Lookup returns the converter registered for P.
func Lookup[P any](r *Registry) (Converter[P], error) {
	r.mu.RLock()
	e, ok := r.byType[typeKey[P]()]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.UnsupportedType(errors.PhaseConvert, typeName[P]())
	}
	return e.conv.(Converter[P]), nil
}

// ToValueAs converts p with the converter registered for P.
func ToValueAs[P any](r *Registry, p P) (value.Value, error) {
	c, err := Lookup[P](r)
	if err != nil {
		return value.Value{}, err
	}
	return c.ToValue(p)
}

// FromValueAs converts v to P with the converter registered for P.
func FromValueAs[P any](r *Registry, v value.Value) (P, error) {
	c, err := Lookup[P](r)
	if err != nil {
		var zero P
		return zero, err
	}
	return c.FromValue(v)
}

// Supports reports whether x's dynamic type has a converter.
func (r *Registry) Supports(x any) bool {
	if x == nil {
		return false
	}
	_, ok := r.lookup(reflect.TypeID(x))
	return ok
}

func (r *Registry) lookup(id uintptr) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byType[id]
	return e, ok
}

// ToValue converts a value whose type is only known at run time. nil and
// value.Value pass through; any other unregistered type is an
// UnsupportedType error rather than a best-effort coercion.
func (r *Registry) ToValue(x any) (value.Value, error) {
	switch t := x.(type) {
	case nil:
		return value.Null(), nil
	case value.Value:
		return t, nil
	}
	e, ok := r.lookup(reflect.TypeID(x))
	if !ok {
		return value.Value{}, errors.UnsupportedType(errors.PhaseConvert, reflect.TypeOf(x).String())
	}
	return e.toValue(x)
}

// FromValueLike converts v to the type of like, which is typically a zero
// value obtained by reflection. The result has like's dynamic type.
func (r *Registry) FromValueLike(like any, v value.Value) (any, error) {
	if like == nil {
		return v.Interface(), nil
	}
	e, ok := r.lookup(reflect.TypeID(like))
	if !ok {
		return nil, errors.UnsupportedType(errors.PhaseConvert, reflect.TypeOf(like).String())
	}
	return e.fromValue(v)
}
