package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/nodaldb/nodal-go-driver/address"
	"github.com/nodaldb/nodal-go-driver/bson"
)

// ID is an opaque 16-byte logical session identifier, UUID-shaped but
// otherwise meaningless to the driver beyond equality.
type ID [16]byte

// TxnState is the per-session transaction state machine.
type TxnState uint8

// The five transaction states.
const (
	TxnNone TxnState = iota
	TxnStarting
	TxnInProgress
	TxnCommitted
	TxnAborted
)

// ErrTransactionInProgress is returned when a non-commit/abort operation is
// attempted on a session with a prior in-transaction failure that the
// caller has not yet explicitly aborted.
var ErrTransactionInProgress = fmt.Errorf("a transaction is in progress on this session and must be committed or aborted")

// Client is a logical session: an id, the transaction state machine, and
// the highest cluster-time / operation-time seen through it. A Client is
// exclusively owned by its holder (§5 "Session objects are exclusively
// owned by their holder; they are not shareable across tasks"); it is not
// safe for concurrent use by design, matching that ownership rule.
type Client struct {
	SessionID ID
	allocated time.Time

	Dirty bool

	txnState   TxnState
	txnNumber  int64
	txnOpts    TransactionOptions
	failedOnce bool // set when an op failed mid-transaction without abort

	PinnedServerAddress address.Address
	pinnedConnectionID  string

	clusterTime   bson.Raw
	operationTime bson.Timestamp

	causalConsistency bool

	// explicit is false for sessions the driver created and owns for the
	// lifetime of a single operation; true for sessions the caller started
	// explicitly and is responsible for ending.
	explicit bool
}

// TransactionOptions configures a transaction started on a session.
type TransactionOptions struct {
	ReadConcernLevel string
	WriteConcernW    interface{}
	MaxCommitTime    time.Duration
}

// NewClient allocates a fresh session with a random id.
func NewClient(explicit, causalConsistency bool) *Client {
	return &Client{
		SessionID:         newSessionID(),
		allocated:         time.Now(),
		causalConsistency: causalConsistency,
		explicit:          explicit,
	}
}

// IsExplicit reports whether the caller is responsible for ending this
// session (as opposed to the executor creating and discarding an implicit
// session for a single operation).
func (c *Client) IsExplicit() bool { return c.explicit }

// AdvanceClusterTime folds in a newly observed cluster time.
func (c *Client) AdvanceClusterTime(ct bson.Raw) {
	c.clusterTime = maxClusterTime(c.clusterTime, ct)
}

// ClusterTime returns the session's highest observed cluster time.
func (c *Client) ClusterTime() bson.Raw { return c.clusterTime }

// AdvanceOperationTime folds in a newly observed operation time, keeping
// the larger of the two (§8: cluster time/op time advance monotonically).
func (c *Client) AdvanceOperationTime(ts bson.Timestamp) {
	if ts.Compare(c.operationTime) > 0 {
		c.operationTime = ts
	}
}

// OperationTime returns the highest operationTime observed through this
// session, used for readConcern.afterClusterTime under causal consistency.
func (c *Client) OperationTime() bson.Timestamp { return c.operationTime }

// CausalConsistency reports whether this session was started with causal
// consistency enabled.
func (c *Client) CausalConsistency() bool { return c.causalConsistency }

// MarkDirty flags the session as dirty after any network error; a dirty
// session is discarded rather than returned to the pool.
func (c *Client) MarkDirty() { c.Dirty = true }

// TxnState returns the current transaction state.
func (c *Client) TxnState() TxnState { return c.txnState }

// TxnNumber returns the current transaction/retryable-write number.
func (c *Client) TxnNumber() int64 { return c.txnNumber }

// StartTransaction transitions the session into TxnStarting. Per §4.6, an
// explicit start is required to transition out of Committed or Aborted.
func (c *Client) StartTransaction(opts TransactionOptions) error {
	if c.txnState == TxnInProgress {
		return fmt.Errorf("cannot call StartTransaction: a transaction is already in progress")
	}
	c.txnState = TxnStarting
	c.txnNumber++
	c.txnOpts = opts
	c.PinnedServerAddress = ""
	c.pinnedConnectionID = ""
	c.failedOnce = false
	return nil
}

// TransactionOptions returns the options for the in-progress (or most
// recently started) transaction.
func (c *Client) TransactionOptions() TransactionOptions { return c.txnOpts }

// ApplyCommandStarting records that an operation is about to run with this
// session attached, advancing TxnStarting -> TxnInProgress and reporting
// whether the command must set startTransaction=true.
func (c *Client) ApplyCommandStarting() (startTransaction bool, err error) {
	if c.failedOnce && c.txnState == TxnInProgress {
		return false, ErrTransactionInProgress
	}
	if c.txnState == TxnStarting {
		c.txnState = TxnInProgress
		return true, nil
	}
	return false, nil
}

// MarkTransactionFailed records that an operation failed while a
// transaction was in progress; the next non-commit/abort call on this
// session fails until the caller explicitly aborts.
func (c *Client) MarkTransactionFailed() {
	if c.txnState == TxnInProgress {
		c.failedOnce = true
	}
}

// CommitTransaction transitions Starting/InProgress -> Committed.
func (c *Client) CommitTransaction() error {
	if c.txnState != TxnStarting && c.txnState != TxnInProgress {
		return fmt.Errorf("cannot call CommitTransaction: no transaction is in progress")
	}
	c.txnState = TxnCommitted
	return nil
}

// AbortTransaction transitions Starting/InProgress -> Aborted.
func (c *Client) AbortTransaction() error {
	if c.txnState != TxnStarting && c.txnState != TxnInProgress {
		return fmt.Errorf("cannot call AbortTransaction: no transaction is in progress")
	}
	c.txnState = TxnAborted
	c.failedOnce = false
	return nil
}

// InTransaction reports whether a transaction is currently open.
func (c *Client) InTransaction() bool {
	return c.txnState == TxnStarting || c.txnState == TxnInProgress
}

// PinToServer pins the session's transaction to addr (sharded-transaction
// mongos pinning): every subsequent operation on this session, for the
// remainder of the transaction, is routed there unconditionally.
func (c *Client) PinToServer(addr address.Address) { c.PinnedServerAddress = addr }

// PinToConnection pins the session to a specific connection id, used in
// load-balanced mode where the pool fronts many backends behind one
// address and only the connection identifies the logical backend.
func (c *Client) PinToConnection(connID string) { c.pinnedConnectionID = connID }

// PinnedConnectionID returns the pinned connection id, if any.
func (c *Client) PinnedConnectionID() string { return c.pinnedConnectionID }

// Unpin clears any server/connection pinning, called after commit/abort.
func (c *Client) Unpin() {
	c.PinnedServerAddress = ""
	c.pinnedConnectionID = ""
}

// Reusable reports whether this session may be handed out again from the
// pool: not dirty, and allocated recently enough relative to the server's
// logical session timeout.
func (c *Client) Reusable(logicalSessionTimeoutMinutes *int64, now time.Time) bool {
	if c.Dirty {
		return false
	}
	if logicalSessionTimeoutMinutes == nil {
		return true
	}
	staleAfter := time.Duration(*logicalSessionTimeoutMinutes)*time.Minute - time.Minute
	return now.Sub(c.allocated) < staleAfter
}

var idCounter struct {
	mu sync.Mutex
	n  uint64
}

func newSessionID() ID {
	idCounter.mu.Lock()
	idCounter.n++
	n := idCounter.n
	idCounter.mu.Unlock()

	var id ID
	now := time.Now().UnixNano()
	for i := 0; i < 8; i++ {
		id[i] = byte(now >> (8 * i))
	}
	for i := 0; i < 8; i++ {
		id[8+i] = byte(n >> (8 * i))
	}
	return id
}
