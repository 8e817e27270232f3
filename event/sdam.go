package event

import (
	"time"

	"github.com/nodaldb/nodal-go-driver/address"
	"github.com/nodaldb/nodal-go-driver/description"
)

// ServerOpeningEvent is emitted when a server is added to a topology and
// its monitor starts.
type ServerOpeningEvent struct {
	Address address.Address
}

// ServerClosedEvent is emitted when a server is removed from a topology
// and its monitor stops.
type ServerClosedEvent struct {
	Address address.Address
}

// ServerDescriptionChangedEvent is emitted whenever a server's description
// changes, including a no-op republish of an unchanged description.
type ServerDescriptionChangedEvent struct {
	Address             address.Address
	PreviousDescription description.Server
	NewDescription      description.Server
}

// TopologyOpeningEvent is emitted once when a topology is first
// constructed, before any server has been contacted.
type TopologyOpeningEvent struct {
	TopologyID string
}

// TopologyClosedEvent is emitted when a topology is shut down.
type TopologyClosedEvent struct {
	TopologyID string
}

// TopologyDescriptionChangedEvent is emitted whenever the aggregated
// topology description changes. It carries both the previous and the new
// description so a subscriber can diff them without keeping its own copy.
type TopologyDescriptionChangedEvent struct {
	TopologyID          string
	PreviousDescription description.Topology
	NewDescription      description.Topology
}

// ServerHeartbeatStartedEvent is emitted immediately before a monitor sends
// a hello/isWritablePrimary to a server.
type ServerHeartbeatStartedEvent struct {
	Address   address.Address
	Awaitable bool
}

// ServerHeartbeatSucceededEvent is emitted when a heartbeat completes
// without error.
type ServerHeartbeatSucceededEvent struct {
	Address   address.Address
	Duration  time.Duration
	Awaitable bool
}

// ServerHeartbeatFailedEvent is emitted when a heartbeat fails, whether
// from a network error or a command-level error in the hello reply.
type ServerHeartbeatFailedEvent struct {
	Address   address.Address
	Duration  time.Duration
	Awaitable bool
	Failure   error
}

// ServerMonitor receives SDAM lifecycle events. Any field may be nil.
type ServerMonitor struct {
	ServerOpening              func(ServerOpeningEvent)
	ServerClosed               func(ServerClosedEvent)
	ServerDescriptionChanged   func(ServerDescriptionChangedEvent)
	TopologyOpening            func(TopologyOpeningEvent)
	TopologyClosed             func(TopologyClosedEvent)
	TopologyDescriptionChanged func(TopologyDescriptionChangedEvent)
	ServerHeartbeatStarted     func(ServerHeartbeatStartedEvent)
	ServerHeartbeatSucceeded   func(ServerHeartbeatSucceededEvent)
	ServerHeartbeatFailed      func(ServerHeartbeatFailedEvent)
}
