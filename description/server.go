// Package description models the SDAM data the topology monitor maintains:
// a ServerDescription per known node and the aggregate TopologyDescription
// computed from them.
package description

import (
	"time"

	"github.com/nodaldb/nodal-go-driver/address"
	"github.com/nodaldb/nodal-go-driver/bson"
)

// ServerKind classifies a single server as observed by the last successful
// "hello" probe.
type ServerKind uint32

// The full set of server kinds the monitor can classify a node as.
const (
	Unknown ServerKind = iota
	Standalone
	Mongos
	RSPrimary
	RSSecondary
	RSArbiter
	RSOther
	RSGhost
	LoadBalancer
)

func (k ServerKind) String() string {
	switch k {
	case Standalone:
		return "Standalone"
	case Mongos:
		return "Mongos"
	case RSPrimary:
		return "RSPrimary"
	case RSSecondary:
		return "RSSecondary"
	case RSArbiter:
		return "RSArbiter"
	case RSOther:
		return "RSOther"
	case RSGhost:
		return "RSGhost"
	case LoadBalancer:
		return "LoadBalancer"
	default:
		return "Unknown"
	}
}

// VersionRange is an inclusive min/max wire-version window.
type VersionRange struct {
	Min int32
	Max int32
}

// Includes reports whether v falls within the range.
func (vr VersionRange) Includes(v int32) bool {
	return v >= vr.Min && v <= vr.Max
}

// TopologyVersion orders "hello" replies for streaming-heartbeat
// comparisons; a reply with a newer (or absent-vs-present) topology version
// supersedes an older one.
type TopologyVersion struct {
	ProcessID bson.ObjectID
	Counter   int64
}

// CompareTopologyVersion returns -1, 0, or 1 comparing two *TopologyVersion
// values, either of which may be nil. A nil value is considered older than
// any non-nil value; two values from different processes are incomparable
// and treated as equal (0) since they cannot be meaningfully ordered.
func CompareTopologyVersion(a, b *TopologyVersion) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.ProcessID != b.ProcessID:
		return 0
	case a.Counter < b.Counter:
		return -1
	case a.Counter > b.Counter:
		return 1
	default:
		return 0
	}
}

// Server is the driver's record of a single node's last known state. It is
// immutable once constructed: observers replace the stored description
// rather than mutating it in place.
type Server struct {
	Addr              address.Address
	Kind              ServerKind
	AverageRTT        time.Duration
	AverageRTTSet     bool
	LastUpdateTime    time.Time
	LastWriteTime     time.Time
	HeartbeatInterval time.Duration

	SetName       string
	SetVersion    uint32
	ElectionID    bson.ObjectID
	HasElectionID bool
	Primary       address.Address
	Members       []address.Address
	Tags          map[string]string

	WireVersion           *VersionRange
	MaxDocumentSize       uint32
	MaxMessageSize        uint32
	MaxWriteBatchSize     uint32
	SessionTimeoutMinutes *int64
	Compression           []string
	TopologyVersion       *TopologyVersion

	ServiceID *bson.ObjectID // load-balanced mode only

	LastError error

	// clusterTime is the $clusterTime document observed on the hello reply
	// that produced this description, if any. Unexported because only
	// Topology.Apply needs it; set via WithClusterTime.
	clusterTime bson.Raw
}

// NewDefaultServer returns the zero-value Unknown description for addr,
// used before the first heartbeat completes.
func NewDefaultServer(addr address.Address) Server {
	return Server{Addr: addr, Kind: Unknown, LastUpdateTime: time.Now()}
}

// NewServerFromError returns an Unknown description carrying err, the SDAM
// "dead" state: the description is discarded wholesale and replaced, never
// patched, by any later successful heartbeat.
func NewServerFromError(addr address.Address, err error, tv *TopologyVersion) Server {
	return Server{
		Addr:            addr,
		Kind:            Unknown,
		LastError:       err,
		LastUpdateTime:  time.Now(),
		TopologyVersion: tv,
	}
}

// SetAverageRTT returns a copy of s with the average round-trip time set.
func (s Server) SetAverageRTT(rtt time.Duration) Server {
	s.AverageRTT = rtt
	s.AverageRTTSet = true
	return s
}

// DataBearing reports whether this server type can serve reads/writes
// directly (excludes arbiters, ghosts, and unknowns).
func (s Server) DataBearing() bool {
	switch s.Kind {
	case Standalone, Mongos, RSPrimary, RSSecondary, LoadBalancer:
		return true
	default:
		return false
	}
}

// Readable reports whether the server type is eligible to serve reads at
// all (excludes arbiters and unknowns; ghosts/other may be filtered later
// by tag/read-preference rules).
func (s Server) Readable() bool {
	switch s.Kind {
	case RSArbiter, Unknown:
		return false
	default:
		return true
	}
}

// MatchesTags reports whether s satisfies every key/value pair in tagSet.
func (s Server) MatchesTags(tagSet map[string]string) bool {
	for k, v := range tagSet {
		if got, ok := s.Tags[k]; !ok || got != v {
			return false
		}
	}
	return true
}
