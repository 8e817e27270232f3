// Package cursor layers document-level iteration over a driver.BatchCursor:
// Cursor walks one document at a time within a batch, pulling a new batch
// via getMore only once the current one is drained, and ChangeStream adds
// resume-token bookkeeping and automatic resumption on top of that.
package cursor

import (
	"context"
	"sync"

	"github.com/nodaldb/nodal-go-driver/bson"
	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/driver"
)

// Cursor iterates the documents of a server-side cursor one at a time,
// fetching further batches on demand. It is not safe for concurrent use.
type Cursor struct {
	bc        *driver.BatchCursor
	batch     []bsoncore.Document
	pos       int
	current   bson.Raw
	err       error
	closed    bool
	sessionMu *sync.Mutex
}

// New wraps bc for document-level iteration. sessionMu, if non-nil, is
// locked only for the duration of each getMore and released between
// iteration steps, so an explicit session can be used for other operations
// while the cursor is idle between batches.
func New(bc *driver.BatchCursor, sessionMu *sync.Mutex) *Cursor {
	return &Cursor{
		bc:        bc,
		batch:     bc.Batch(),
		sessionMu: sessionMu,
	}
}

// ID returns the server-side cursor id, 0 once exhausted.
func (c *Cursor) ID() int64 { return c.bc.ID() }

// Next advances to the next document, fetching a new batch via getMore if
// the current one is drained. It returns false on exhaustion or error; the
// caller must check Err to distinguish the two.
func (c *Cursor) Next(ctx context.Context) bool {
	if c.closed || c.err != nil {
		return false
	}
	for {
		if c.pos < len(c.batch) {
			c.current = bson.Raw(c.batch[c.pos])
			c.pos++
			return true
		}
		if c.bc.Exhausted() {
			return false
		}
		ok, err := c.fetchNextBatch(ctx)
		if err != nil {
			c.err = err
			return false
		}
		if !ok {
			return false
		}
	}
}

func (c *Cursor) fetchNextBatch(ctx context.Context) (bool, error) {
	if c.sessionMu != nil {
		c.sessionMu.Lock()
		defer c.sessionMu.Unlock()
	}
	ok, err := c.bc.Next(ctx)
	if err != nil {
		return false, err
	}
	c.batch = c.bc.Batch()
	c.pos = 0
	return ok, nil
}

// Current returns the raw document most recently produced by Next.
func (c *Cursor) Current() bson.Raw { return c.current }

// Decode unmarshals the document most recently produced by Next into out.
func (c *Cursor) Decode(out interface{}) error {
	return bson.Unmarshal(c.current, out)
}

// Err returns the first error encountered during iteration, if any.
func (c *Cursor) Err() error { return c.err }

// Close releases the cursor, sending a best-effort killCursors if it is
// not already exhausted. Safe to call more than once.
func (c *Cursor) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.bc.Close(ctx)
}
