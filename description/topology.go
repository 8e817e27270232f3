package description

import (
	"fmt"

	"github.com/nodaldb/nodal-go-driver/address"
	"github.com/nodaldb/nodal-go-driver/bson"
)

// TopologyKind classifies the cluster as a whole.
type TopologyKind uint32

// The full set of topology kinds.
const (
	TopologyUnknown TopologyKind = iota
	Single
	ReplicaSetNoPrimary
	ReplicaSetWithPrimary
	Sharded
	LoadBalanced
)

func (k TopologyKind) String() string {
	switch k {
	case Single:
		return "Single"
	case ReplicaSetNoPrimary:
		return "ReplicaSetNoPrimary"
	case ReplicaSetWithPrimary:
		return "ReplicaSetWithPrimary"
	case Sharded:
		return "Sharded"
	case LoadBalanced:
		return "LoadBalanced"
	default:
		return "Unknown"
	}
}

// supportedWireRange is the range of wire versions this driver understands.
// A server outside this window makes the whole topology IncompatibleServer.
var supportedWireRange = VersionRange{Min: 6, Max: 21}

// Topology is the aggregate description of a cluster: its kind plus one
// Server description per known address. It is an immutable value; Apply
// returns a new Topology rather than mutating the receiver, matching the
// single-writer discipline in the concurrency model.
type Topology struct {
	Kind                  TopologyKind
	Servers               map[address.Address]Server
	SetName               string
	MaxSetVersion         uint32
	MaxElectionID         bson.ObjectID
	HasMaxElectionID      bool
	CompatibilityErr      error
	SessionTimeoutMinutes *int64
	ClusterTime           bson.Raw
}

// NewTopology returns the initial Unknown topology seeded with addrs. Each
// seed address starts as a default (Unknown) Server description.
func NewTopology(kind TopologyKind, addrs []address.Address) Topology {
	servers := make(map[address.Address]Server, len(addrs))
	for _, a := range addrs {
		servers[a.Canonicalize()] = NewDefaultServer(a)
	}
	return Topology{Kind: kind, Servers: servers}
}

// Clone returns a deep-enough copy for Apply to mutate safely.
func (t Topology) Clone() Topology {
	servers := make(map[address.Address]Server, len(t.Servers))
	for k, v := range t.Servers {
		servers[k] = v
	}
	t.Servers = servers
	return t
}

// PrimaryCount returns the number of servers currently described as
// RSPrimary; the invariant is that this is always ≤ 1.
func (t Topology) PrimaryCount() int {
	n := 0
	for _, s := range t.Servers {
		if s.Kind == RSPrimary {
			n++
		}
	}
	return n
}

// Apply folds a newly observed Server description into t and returns the
// resulting Topology along with whether anything actually changed. This
// implements the SDAM transition table from the topology component design:
// stale-primary coercion, primary demotion, membership sync, topology-kind
// recomputation, cluster-time advancement, and session-timeout
// recomputation.
func (t Topology) Apply(desc Server) (Topology, bool) {
	if t.Kind == LoadBalanced {
		// In load-balanced mode there is exactly one logical server and no
		// SDAM state machine; the description is accepted unconditionally.
		next := t.Clone()
		next.Servers[desc.Addr.Canonicalize()] = desc
		return next, true
	}

	addr := desc.Addr.Canonicalize()
	if _, known := t.Servers[addr]; !known {
		// Discard updates for addresses that are not (or no longer) members,
		// except the very first seed responses which populate Servers up
		// front via NewTopology, so this branch only fires for addresses the
		// topology never seeded and never learned from a primary's host
		// list — a stale or unrelated update.
		return t, false
	}

	next := t.Clone()

	if desc.Kind == RSPrimary {
		if t.HasMaxElectionID && desc.HasElectionID &&
			(desc.SetVersion < t.MaxSetVersion ||
				(desc.SetVersion == t.MaxSetVersion && compareObjectID(desc.ElectionID, t.MaxElectionID) < 0)) {
			// Stale primary: coerce to Unknown rather than accept it.
			desc = NewServerFromError(desc.Addr, fmt.Errorf("server %s is a stale primary", addr), desc.TopologyVersion)
		} else {
			if desc.HasElectionID {
				if !t.HasMaxElectionID || desc.SetVersion > t.MaxSetVersion ||
					(desc.SetVersion == t.MaxSetVersion && compareObjectID(desc.ElectionID, t.MaxElectionID) > 0) {
					next.MaxSetVersion = desc.SetVersion
					next.MaxElectionID = desc.ElectionID
					next.HasMaxElectionID = true
				}
			}
			// Demote any other server currently described as primary.
			for a, s := range next.Servers {
				if a != addr && s.Kind == RSPrimary {
					next.Servers[a] = NewDefaultServer(s.Addr)
				}
			}
			// Sync membership from the primary's host list.
			seen := map[address.Address]bool{addr: true}
			for _, m := range desc.Members {
				ma := m.Canonicalize()
				seen[ma] = true
				if _, ok := next.Servers[ma]; !ok {
					next.Servers[ma] = NewDefaultServer(m)
				}
			}
			for a := range next.Servers {
				if !seen[a] && len(desc.Members) > 0 {
					delete(next.Servers, a)
				}
			}
		}
	}

	next.Servers[addr] = desc

	if ct := desc.ClusterTimeRaw(); len(ct) > 0 {
		next.ClusterTime = newerClusterTime(t.ClusterTime, ct)
	}

	next.recomputeKind()
	next.recomputeCompatibility()
	next.recomputeSessionTimeout()

	return next, true
}

// ClusterTimeRaw is a placeholder accessor; cluster time is carried on the
// connection/session layer and threaded in by the caller via desc in real
// deployments. Kept here so Apply has a single place to extend without
// widening Server's surface for a field only topology cares about.
func (s Server) ClusterTimeRaw() bson.Raw { return s.clusterTime }

// WithClusterTime returns a copy of s with its $clusterTime reply document
// attached; only description.Apply consults this.
func (s Server) WithClusterTime(ct bson.Raw) Server {
	s.clusterTime = ct
	return s
}

func (t *Topology) recomputeKind() {
	if t.Kind == Single || t.Kind == Sharded || t.Kind == LoadBalanced {
		return
	}
	hasPrimary := false
	for _, s := range t.Servers {
		if s.Kind == RSPrimary {
			hasPrimary = true
		}
	}
	if hasPrimary {
		t.Kind = ReplicaSetWithPrimary
	} else {
		t.Kind = ReplicaSetNoPrimary
	}
}

func (t *Topology) recomputeCompatibility() {
	t.CompatibilityErr = nil
	for _, s := range t.Servers {
		if s.Kind == Unknown || s.WireVersion == nil {
			continue
		}
		if s.WireVersion.Max < supportedWireRange.Min || s.WireVersion.Min > supportedWireRange.Max {
			t.CompatibilityErr = fmt.Errorf(
				"server at %s requires wire version range [%d, %d] which is incompatible with this driver's supported range [%d, %d]",
				s.Addr, s.WireVersion.Min, s.WireVersion.Max, supportedWireRange.Min, supportedWireRange.Max)
			return
		}
	}
}

func (t *Topology) recomputeSessionTimeout() {
	var min *int64
	for _, s := range t.Servers {
		if !s.DataBearing() || s.Kind == Unknown {
			continue
		}
		if s.SessionTimeoutMinutes == nil {
			t.SessionTimeoutMinutes = nil
			return
		}
		if min == nil || *s.SessionTimeoutMinutes < *min {
			v := *s.SessionTimeoutMinutes
			min = &v
		}
	}
	t.SessionTimeoutMinutes = min
}

func compareObjectID(a, b bson.ObjectID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func newerClusterTime(a, b bson.Raw) bson.Raw {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	at, _ := a.LookupErr("clusterTime")
	bt, _ := b.LookupErr("clusterTime")
	atT, atI, _ := at.TimestampOK()
	btT, btI, _ := bt.TimestampOK()
	if atT > btT || (atT == btT && atI > btI) {
		return a
	}
	return b
}
