// Package primitive holds the handful of BSON scalar types that do not map
// cleanly onto a Go built-in: object ids, the legacy BSON datetime, and the
// replication timestamp type used in cluster-time documents.
package primitive

import (
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
	"time"
)

// ObjectID is a 12-byte BSON object id: a 4-byte timestamp, a 5-byte random
// process identifier, and a 3-byte monotonic counter.
type ObjectID [12]byte

var objectIDCounter = newObjectIDCounter()
var processUnique = processUniqueBytes()

// NewObjectID returns a new, globally-unique ObjectID.
func NewObjectID() ObjectID {
	var id ObjectID
	binary.BigEndian.PutUint32(id[0:4], uint32(time.Now().Unix()))
	copy(id[4:9], processUnique[:])
	putUint24(id[9:12], atomic.AddUint32(&objectIDCounter, 1))
	return id
}

func (id ObjectID) String() string { return hex.EncodeToString(id[:]) }

// IsZero reports whether id is the zero value.
func (id ObjectID) IsZero() bool { return id == ObjectID{} }

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func newObjectIDCounter() uint32 {
	return uint32(time.Now().UnixNano())
}

func processUniqueBytes() [5]byte {
	var b [5]byte
	n := time.Now().UnixNano()
	b[0] = byte(n)
	b[1] = byte(n >> 8)
	b[2] = byte(n >> 16)
	b[3] = byte(n >> 24)
	b[4] = byte(n >> 32)
	return b
}

// DateTime represents the BSON datetime type: milliseconds since the Unix
// epoch, stored separately from time.Time so round-tripping through the wire
// never loses or gains precision.
type DateTime int64

// NewDateTimeFromTime truncates t to millisecond precision.
func NewDateTimeFromTime(t time.Time) DateTime {
	return DateTime(t.Unix()*1000 + int64(t.Nanosecond())/1e6)
}

// Time converts dt back to a time.Time in UTC.
func (dt DateTime) Time() time.Time {
	return time.Unix(int64(dt)/1000, int64(dt)%1000*1e6).UTC()
}

// Timestamp is the BSON timestamp type used for oplog/cluster-time
// ordering: seconds since the epoch plus an increment to disambiguate
// operations within the same second.
type Timestamp struct {
	T uint32
	I uint32
}

// Compare returns -1, 0 or 1 if ts sorts before, equal to, or after other.
func (ts Timestamp) Compare(other Timestamp) int {
	switch {
	case ts.T != other.T:
		if ts.T < other.T {
			return -1
		}
		return 1
	case ts.I != other.I:
		if ts.I < other.I {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Binary is the BSON binary subtype: an opaque byte slice tagged with a
// subtype byte (0x00 generic, 0x04 UUID, etc).
type Binary struct {
	Subtype byte
	Data    []byte
}
