// Package session implements the session / cluster-time manager: logical
// session id allocation and pooling, monotonic cluster-time and
// operation-time advancement, and the per-session transaction state
// machine with mongos/load-balanced pinning.
package session

import (
	"sync"

	"github.com/nodaldb/nodal-go-driver/bson"
)

// ClusterClock tracks the highest $clusterTime document observed anywhere
// in the topology. It is safe for concurrent use; AdvanceClusterTime never
// regresses the stored time (§8: D'.clusterTime ≥ D.clusterTime).
type ClusterClock struct {
	mu   sync.Mutex
	time bson.Raw
}

// GetClusterTime returns the current cluster time, or nil if none has been
// observed yet.
func (c *ClusterClock) GetClusterTime() bson.Raw {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

// AdvanceClusterTime merges newTime into the clock, keeping whichever of
// the two {$clusterTime: {...}} documents has the greater
// $clusterTime.clusterTime timestamp.
func (c *ClusterClock) AdvanceClusterTime(newTime bson.Raw) {
	if len(newTime) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = maxClusterTime(c.time, newTime)
}

func maxClusterTime(a, b bson.Raw) bson.Raw {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	av, _ := a.LookupErr("$clusterTime")
	bv, _ := b.LookupErr("$clusterTime")
	ad, _ := av.DocumentOK()
	bd, _ := bv.DocumentOK()
	at, ai, _ := ad.Lookup("clusterTime").TimestampOK()
	bt, bi, _ := bd.Lookup("clusterTime").TimestampOK()
	if bt > at || (bt == at && bi > ai) {
		return b
	}
	return a
}
