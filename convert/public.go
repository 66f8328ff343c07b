package convert

import (
	"math"
	"time"

	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/value"
)

type signed interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

type unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Signed widens signed integers to int64 storage. Narrowing back is
// checked: a stored value outside P's range is an overflow error.
type Signed[P signed] struct{}

func (Signed[P]) FromPublic(p P) (int64, error) { return int64(p), nil }

func (Signed[P]) ToPublic(s int64) (P, error) {
	p := P(s)
	if int64(p) != s {
		return 0, errors.Overflow(errors.PhaseConvert, nil, s, typeName[P]())
	}
	return p, nil
}

// Unsigned maps unsigned integers onto int64 storage. Values above
// math.MaxInt64 cannot be stored; negative or too large stored values
// cannot be read back.
type Unsigned[P unsigned] struct{}

func (Unsigned[P]) FromPublic(p P) (int64, error) {
	if uint64(p) > math.MaxInt64 {
		return 0, errors.Overflow(errors.PhaseConvert, nil, uint64(p), "int64")
	}
	return int64(p), nil
}

func (Unsigned[P]) ToPublic(s int64) (P, error) {
	if s < 0 || uint64(P(s)) != uint64(s) {
		return 0, errors.Overflow(errors.PhaseConvert, nil, s, typeName[P]())
	}
	return P(s), nil
}

// TimePublic converts time.Time to timestamp storage. Read-back times are
// in UTC.
type TimePublic struct{}

func (TimePublic) FromPublic(t time.Time) (value.Timestamp, error) { return value.FromTime(t), nil }
func (TimePublic) ToPublic(ts value.Timestamp) (time.Time, error)  { return ts.Time(), nil }
