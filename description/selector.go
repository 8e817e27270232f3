package description

import (
	"fmt"
	"time"

	"github.com/nodaldb/nodal-go-driver/address"
)

// ReadPreferenceMode is the mode portion of a ReadPreference.
type ReadPreferenceMode uint8

// The five standard read-preference modes.
const (
	PrimaryMode ReadPreferenceMode = iota
	PrimaryPreferredMode
	SecondaryMode
	SecondaryPreferredMode
	NearestMode
)

// ReadPreference selects which replica set members may serve a read.
type ReadPreference struct {
	Mode              ReadPreferenceMode
	TagSets           []map[string]string
	MaxStaleness      time.Duration // 0 means unset
	HeartbeatInterval time.Duration
}

// SelectionCriteria is the input to server selection: either a concrete
// ReadPreference, a direct address override (used for pinned sessions or
// cursors), or an arbitrary predicate.
type SelectionCriteria struct {
	ReadPref  *ReadPreference
	Direct    address.Address
	Predicate func(Server) bool
}

// DirectCriteria returns a SelectionCriteria that accepts only addr.
func DirectCriteria(addr address.Address) SelectionCriteria {
	return SelectionCriteria{Direct: addr}
}

// ErrIncompatibleServer is returned when the topology's compatibility error
// prevents any selection.
type ErrIncompatibleServer struct{ Err error }

func (e ErrIncompatibleServer) Error() string {
	return fmt.Sprintf("server selection failed: incompatible server: %v", e.Err)
}

// ErrServerSelectionTimeout is returned when no suitable server is found
// before the deadline.
type ErrServerSelectionTimeout struct {
	Criteria SelectionCriteria
}

func (e ErrServerSelectionTimeout) Error() string {
	return "server selection timed out without finding a suitable server"
}

const defaultLocalThreshold = 15 * time.Millisecond
const minMaxStaleness = 90 * time.Second

// SelectServer applies SelectionCriteria against t and returns the list of
// servers within the latency window, implementing §4.5's seven-step
// algorithm (suitability, tag matching, staleness, latency window). It does
// not itself block waiting for topology changes or pick randomly among
// survivors; callers (the topology's selection loop) own the waiting and
// the random pick so this function stays a pure, testable computation.
func SelectServer(t Topology, criteria SelectionCriteria, localThreshold time.Duration) ([]Server, error) {
	if t.CompatibilityErr != nil {
		return nil, ErrIncompatibleServer{Err: t.CompatibilityErr}
	}
	if localThreshold == 0 {
		localThreshold = defaultLocalThreshold
	}

	if criteria.Direct != "" {
		s, ok := t.Servers[criteria.Direct.Canonicalize()]
		if !ok || s.Kind == Unknown {
			return nil, nil
		}
		return []Server{s}, nil
	}

	var candidates []Server
	switch t.Kind {
	case Single:
		for _, s := range t.Servers {
			if s.Kind != Unknown {
				candidates = append(candidates, s)
			}
		}
	case Sharded:
		for _, s := range t.Servers {
			if s.Kind == Mongos {
				candidates = append(candidates, s)
			}
		}
	case LoadBalanced:
		for _, s := range t.Servers {
			if s.Kind == LoadBalancer {
				candidates = append(candidates, s)
			}
		}
	case ReplicaSetWithPrimary, ReplicaSetNoPrimary:
		candidates = selectReplicaSet(t, criteria.ReadPref)
	}

	if criteria.Predicate != nil {
		filtered := candidates[:0:0]
		for _, s := range candidates {
			if criteria.Predicate(s) {
				filtered = append(filtered, s)
			}
		}
		candidates = filtered
	}

	if criteria.ReadPref != nil {
		candidates = applyTagSets(candidates, criteria.ReadPref.TagSets)
		candidates = applyMaxStaleness(t, candidates, criteria.ReadPref)
	}

	return withinLatencyWindow(candidates, localThreshold), nil
}

func selectReplicaSet(t Topology, rp *ReadPreference) []Server {
	mode := PrimaryMode
	if rp != nil {
		mode = rp.Mode
	}

	var primary *Server
	var secondaries []Server
	for _, s := range t.Servers {
		switch s.Kind {
		case RSPrimary:
			cp := s
			primary = &cp
		case RSSecondary:
			secondaries = append(secondaries, s)
		}
	}

	switch mode {
	case PrimaryMode:
		if primary != nil {
			return []Server{*primary}
		}
		return nil
	case PrimaryPreferredMode:
		if primary != nil {
			return []Server{*primary}
		}
		return secondaries
	case SecondaryMode:
		return secondaries
	case SecondaryPreferredMode:
		if len(secondaries) > 0 {
			return secondaries
		}
		if primary != nil {
			return []Server{*primary}
		}
		return nil
	case NearestMode:
		all := append([]Server{}, secondaries...)
		if primary != nil {
			all = append(all, *primary)
		}
		return all
	default:
		return nil
	}
}

// applyTagSets returns the candidates matching the first tag set in order
// that has at least one match; an empty tagSets list (or one whose sole
// entry is empty) matches everything.
func applyTagSets(candidates []Server, tagSets []map[string]string) []Server {
	if len(tagSets) == 0 {
		return candidates
	}
	for _, ts := range tagSets {
		var matched []Server
		for _, s := range candidates {
			if s.Kind == RSPrimary || s.MatchesTags(ts) {
				matched = append(matched, s)
			}
		}
		if len(matched) > 0 {
			return matched
		}
	}
	return nil
}

// applyMaxStaleness drops secondaries whose estimated staleness exceeds the
// read preference's bound. maxStaleness below max(90s, heartbeatInterval +
// idleWritePeriod) is a parse-time error (enforced in connstring), not
// filtered here.
func applyMaxStaleness(t Topology, candidates []Server, rp *ReadPreference) []Server {
	if rp.MaxStaleness == 0 {
		return candidates
	}
	var primary *Server
	for _, s := range t.Servers {
		if s.Kind == RSPrimary {
			cp := s
			primary = &cp
		}
	}
	out := candidates[:0:0]
	for _, s := range candidates {
		if s.Kind != RSSecondary {
			out = append(out, s)
			continue
		}
		var staleness time.Duration
		if primary != nil {
			staleness = primary.LastWriteTime.Sub(s.LastWriteTime) + s.HeartbeatInterval
		} else {
			staleness = 0
		}
		if staleness <= rp.MaxStaleness {
			out = append(out, s)
		}
	}
	return out
}

func withinLatencyWindow(candidates []Server, localThreshold time.Duration) []Server {
	if len(candidates) == 0 {
		return nil
	}
	min := candidates[0].AverageRTT
	for _, s := range candidates[1:] {
		if s.AverageRTT < min {
			min = s.AverageRTT
		}
	}
	out := candidates[:0:0]
	for _, s := range candidates {
		if s.AverageRTT <= min+localThreshold {
			out = append(out, s)
		}
	}
	return out
}

// ParseReadPreferenceMode maps a connection-string readPreference value to
// its ReadPreferenceMode.
func ParseReadPreferenceMode(s string) (ReadPreferenceMode, error) {
	switch s {
	case "primary":
		return PrimaryMode, nil
	case "primaryPreferred":
		return PrimaryPreferredMode, nil
	case "secondary":
		return SecondaryMode, nil
	case "secondaryPreferred":
		return SecondaryPreferredMode, nil
	case "nearest":
		return NearestMode, nil
	default:
		return 0, fmt.Errorf("unrecognized read preference mode %q", s)
	}
}

// ValidateMaxStaleness enforces the §8 boundary rule: a maxStalenessSeconds
// below max(90s, heartbeatFrequency+10s) is rejected at parse time.
func ValidateMaxStaleness(maxStaleness, heartbeatFrequency time.Duration) error {
	floor := heartbeatFrequency + 10*time.Second
	if floor < minMaxStaleness {
		floor = minMaxStaleness
	}
	if maxStaleness < floor {
		return fmt.Errorf("maxStalenessSeconds must be at least %v, got %v", floor, maxStaleness)
	}
	return nil
}
