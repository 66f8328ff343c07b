package value

import "time"

// Timestamp is the engine's time representation. Nanoseconds is in
// [0, 1e9) for values built by FromTime.
type Timestamp struct {
	Seconds     int64
	Nanoseconds int32
}

// FromTime converts a time.Time. Location and monotonic reading are dropped.
func FromTime(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanoseconds: int32(t.Nanosecond())}
}

// Time returns the timestamp as a UTC time.Time.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanoseconds)).UTC()
}
