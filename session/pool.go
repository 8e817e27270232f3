package session

import (
	"sync"
	"time"
)

// endSessionsBatchSize is the maximum number of session ids sent in a
// single endSessions command, per §4.6.
const endSessionsBatchSize = 10000

// Pool is a LIFO pool of implicit Client sessions, keyed only by recency:
// the most recently checked-in session is the first handed back out, so
// that under steady load a small working set of sessions gets reused and
// the server doesn't have to track a long tail of near-idle ones.
//
// A session is evicted rather than reused once it is older than
// (logicalSessionTimeoutMinutes - 1 minute), and a session checked in
// dirty (marked after any network error) is discarded outright.
type Pool struct {
	mu    sync.Mutex
	stack []*Client

	// logicalSessionTimeoutMinutes mirrors the topology-wide value reported
	// by hello/isWritablePrimary; nil until the first handshake completes.
	logicalSessionTimeoutMinutes *int64
}

// NewPool creates an empty session pool.
func NewPool() *Pool {
	return &Pool{}
}

// SetLogicalSessionTimeoutMinutes updates the staleness threshold used by
// GetSession, called whenever SDAM observes a new value from the topology.
func (p *Pool) SetLogicalSessionTimeoutMinutes(minutes *int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logicalSessionTimeoutMinutes = minutes
}

// GetSession pops the most recently returned reusable session off the
// stack, discarding any stale ones it finds on top, or allocates a fresh
// implicit session if the pool is empty.
func (p *Pool) GetSession() *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for len(p.stack) > 0 {
		n := len(p.stack) - 1
		c := p.stack[n]
		p.stack = p.stack[:n]
		if c.Reusable(p.logicalSessionTimeoutMinutes, now) {
			return c
		}
	}
	return NewClient(false, false)
}

// ReturnSession checks an implicit session back into the pool. Explicit
// sessions (started by the caller via StartSession) are never pooled; the
// caller ends them directly via EndSession. A dirty session is dropped.
func (p *Pool) ReturnSession(c *Client) {
	if c == nil || c.IsExplicit() || c.InTransaction() {
		return
	}
	if c.Dirty {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stack = append(p.stack, c)
}

// Drain removes every pooled session and returns their ids batched into
// groups of at most endSessionsBatchSize, ready to be sent as the
// sessionIds field of one or more endSessions commands during client
// shutdown.
func (p *Pool) Drain() [][]ID {
	p.mu.Lock()
	ids := make([]ID, len(p.stack))
	for i, c := range p.stack {
		ids[i] = c.SessionID
	}
	p.stack = nil
	p.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	var batches [][]ID
	for len(ids) > 0 {
		n := endSessionsBatchSize
		if n > len(ids) {
			n = len(ids)
		}
		batches = append(batches, ids[:n])
		ids = ids[n:]
	}
	return batches
}

// Len reports the number of sessions currently pooled, for diagnostics and
// tests.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stack)
}
