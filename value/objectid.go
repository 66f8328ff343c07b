package value

import (
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wippyai/corebind/errors"
)

// ObjectID is a 12-byte object identifier: a 4-byte big-endian creation
// time in seconds, 5 process-unique bytes and a 3-byte counter.
type ObjectID [12]byte

var (
	processUnique [5]byte
	oidCounter    atomic.Uint32
)

func init() {
	seed := uuid.New()
	copy(processUnique[:], seed[:5])
	oidCounter.Store(binary.BigEndian.Uint32(seed[8:12]))
}

// NewObjectID generates an id for the current time.
func NewObjectID() ObjectID {
	return newObjectIDAt(time.Now())
}

func newObjectIDAt(t time.Time) ObjectID {
	var id ObjectID
	binary.BigEndian.PutUint32(id[0:4], uint32(t.Unix()))
	copy(id[4:9], processUnique[:])
	c := oidCounter.Add(1)
	id[9] = byte(c >> 16)
	id[10] = byte(c >> 8)
	id[11] = byte(c)
	return id
}

// ObjectIDFromHex parses a 24-character hex string.
func ObjectIDFromHex(s string) (ObjectID, error) {
	var id ObjectID
	if len(s) != 2*len(id) {
		return id, errors.New(errors.PhaseConvert, errors.KindInvalidInput).
			Path("object_id").
			Value(s).
			Detail("want %d hex characters, got %d", 2*len(id), len(s)).
			Build()
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, errors.New(errors.PhaseConvert, errors.KindInvalidInput).
			Path("object_id").
			Value(s).
			Detail("not hex").
			Cause(err).
			Build()
	}
	return id, nil
}

// ObjectIDFromBytes copies a 12-byte slice.
func ObjectIDFromBytes(b []byte) (ObjectID, error) {
	var id ObjectID
	if len(b) != len(id) {
		return id, errors.New(errors.PhaseConvert, errors.KindInvalidInput).
			Path("object_id").
			Detail("want %d bytes, got %d", len(id), len(b)).
			Build()
	}
	copy(id[:], b)
	return id, nil
}

// Hex returns the lowercase hex encoding.
func (id ObjectID) Hex() string { return hex.EncodeToString(id[:]) }

func (id ObjectID) String() string { return id.Hex() }

// Bytes returns a copy of the raw bytes.
func (id ObjectID) Bytes() []byte {
	out := make([]byte, len(id))
	copy(out, id[:])
	return out
}

// Timestamp returns the creation time encoded in the id.
func (id ObjectID) Timestamp() time.Time {
	return time.Unix(int64(binary.BigEndian.Uint32(id[0:4])), 0).UTC()
}

// IsZero reports whether all bytes are zero.
func (id ObjectID) IsZero() bool { return id == ObjectID{} }
