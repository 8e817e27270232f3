package event

import (
	"time"

	"github.com/nodaldb/nodal-go-driver/address"
)

// PoolCreatedEvent is emitted when a connection pool is constructed for a
// server address.
type PoolCreatedEvent struct {
	Address       address.Address
	MinPoolSize   uint64
	MaxPoolSize   uint64
	MaxConnecting uint64
}

// PoolReadyEvent is emitted when a paused pool becomes ready to hand out
// connections again, normally right after a successful hello/handshake.
type PoolReadyEvent struct {
	Address address.Address
}

// PoolClearedEvent is emitted when a pool is invalidated: its generation
// counter is bumped and every connection in it becomes stale.
type PoolClearedEvent struct {
	Address   address.Address
	ServiceID string // non-empty only in load-balanced mode
	Reason    string
}

// PoolClosedEvent is emitted when a pool is torn down for good.
type PoolClosedEvent struct {
	Address address.Address
}

// ConnectionCreatedEvent is emitted when a new connection is opened within
// a pool, before its handshake completes.
type ConnectionCreatedEvent struct {
	Address      address.Address
	ConnectionID string
}

// ConnectionReadyEvent is emitted once a newly created connection's
// handshake has completed and it is available for checkout.
type ConnectionReadyEvent struct {
	Address      address.Address
	ConnectionID string
	Duration     time.Duration
}

// ConnectionClosedEvent is emitted when a connection is removed from its
// pool, whether from idle/lifetime expiry, a pool clear, or an I/O error.
type ConnectionClosedEvent struct {
	Address      address.Address
	ConnectionID string
	Reason       string
}

// ConnectionCheckOutStartedEvent is emitted when a caller begins waiting
// for a connection.
type ConnectionCheckOutStartedEvent struct {
	Address address.Address
}

// ConnectionCheckOutFailedEvent is emitted when a checkout does not
// succeed: the pool was paused, the wait timed out, or the pool was
// closed while the caller waited.
type ConnectionCheckOutFailedEvent struct {
	Address address.Address
	Reason  string
}

// ConnectionCheckedOutEvent is emitted when a connection is handed to a
// waiting caller.
type ConnectionCheckedOutEvent struct {
	Address      address.Address
	ConnectionID string
	Duration     time.Duration
}

// ConnectionCheckedInEvent is emitted when a caller returns a connection to
// its pool.
type ConnectionCheckedInEvent struct {
	Address      address.Address
	ConnectionID string
}

// PoolMonitor receives connection-pool lifecycle events, mirroring the CMAP
// specification's event list. Any field may be left nil.
type PoolMonitor struct {
	PoolCreated               func(PoolCreatedEvent)
	PoolReady                 func(PoolReadyEvent)
	PoolCleared               func(PoolClearedEvent)
	PoolClosed                func(PoolClosedEvent)
	ConnectionCreated         func(ConnectionCreatedEvent)
	ConnectionReady           func(ConnectionReadyEvent)
	ConnectionClosed          func(ConnectionClosedEvent)
	ConnectionCheckOutStarted func(ConnectionCheckOutStartedEvent)
	ConnectionCheckOutFailed  func(ConnectionCheckOutFailedEvent)
	ConnectionCheckedOut      func(ConnectionCheckedOutEvent)
	ConnectionCheckedIn       func(ConnectionCheckedInEvent)
}
