package convert

import (
	"github.com/google/uuid"

	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/value"
)

func mismatch[S any](v value.Value) error {
	return errors.TypeMismatch(errors.PhaseConvert, nil, typeName[S](), v.Type().String())
}

// IntStorage stores int64 as an int value.
type IntStorage struct{}

func (IntStorage) ToValue(s int64) (value.Value, error) { return value.Int(s), nil }
func (IntStorage) FromValue(v value.Value) (int64, error) {
	if i, ok := v.AsInt(); ok {
		return i, nil
	}
	return 0, mismatch[int64](v)
}

// BoolStorage stores bool as a bool value.
type BoolStorage struct{}

func (BoolStorage) ToValue(s bool) (value.Value, error) { return value.Bool(s), nil }
func (BoolStorage) FromValue(v value.Value) (bool, error) {
	if b, ok := v.AsBool(); ok {
		return b, nil
	}
	return false, mismatch[bool](v)
}

// FloatStorage stores float32 as a float value.
type FloatStorage struct{}

func (FloatStorage) ToValue(s float32) (value.Value, error) { return value.Float(s), nil }
func (FloatStorage) FromValue(v value.Value) (float32, error) {
	if f, ok := v.AsFloat(); ok {
		return f, nil
	}
	return 0, mismatch[float32](v)
}

// DoubleStorage stores float64 as a double value.
type DoubleStorage struct{}

func (DoubleStorage) ToValue(s float64) (value.Value, error) { return value.Double(s), nil }
func (DoubleStorage) FromValue(v value.Value) (float64, error) {
	if d, ok := v.AsDouble(); ok {
		return d, nil
	}
	return 0, mismatch[float64](v)
}

// StringStorage stores string as a string value.
type StringStorage struct{}

func (StringStorage) ToValue(s string) (value.Value, error) { return value.String(s), nil }
func (StringStorage) FromValue(v value.Value) (string, error) {
	if s, ok := v.AsString(); ok {
		return s, nil
	}
	return "", mismatch[string](v)
}

// BinaryStorage stores []byte as a binary value.
type BinaryStorage struct{}

func (BinaryStorage) ToValue(s []byte) (value.Value, error) { return value.Binary(s), nil }
func (BinaryStorage) FromValue(v value.Value) ([]byte, error) {
	if b, ok := v.AsBinary(); ok {
		return b, nil
	}
	return nil, mismatch[[]byte](v)
}

// TimestampStorage stores value.Timestamp as a timestamp value.
type TimestampStorage struct{}

func (TimestampStorage) ToValue(s value.Timestamp) (value.Value, error) { return value.Time(s), nil }
func (TimestampStorage) FromValue(v value.Value) (value.Timestamp, error) {
	if ts, ok := v.AsTimestamp(); ok {
		return ts, nil
	}
	return value.Timestamp{}, mismatch[value.Timestamp](v)
}

// ObjectIDStorage stores value.ObjectID as an object id value.
type ObjectIDStorage struct{}

func (ObjectIDStorage) ToValue(s value.ObjectID) (value.Value, error) { return value.OID(s), nil }
func (ObjectIDStorage) FromValue(v value.Value) (value.ObjectID, error) {
	if id, ok := v.AsObjectID(); ok {
		return id, nil
	}
	return value.ObjectID{}, mismatch[value.ObjectID](v)
}

// UUIDStorage stores uuid.UUID as a uuid value.
type UUIDStorage struct{}

func (UUIDStorage) ToValue(s uuid.UUID) (value.Value, error) { return value.UUID(s), nil }
func (UUIDStorage) FromValue(v value.Value) (uuid.UUID, error) {
	if id, ok := v.AsUUID(); ok {
		return id, nil
	}
	return uuid.UUID{}, mismatch[uuid.UUID](v)
}

// LinkStorage stores value.Link as a link value.
type LinkStorage struct{}

func (LinkStorage) ToValue(s value.Link) (value.Value, error) { return value.LinkTo(s), nil }
func (LinkStorage) FromValue(v value.Value) (value.Link, error) {
	if l, ok := v.AsLink(); ok {
		return l, nil
	}
	return value.Link{}, mismatch[value.Link](v)
}
