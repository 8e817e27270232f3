package session

import (
	"testing"
	"time"
)

func TestTransactionStateMachine(t *testing.T) {
	c := NewClient(true, false)
	if c.TxnState() != TxnNone {
		t.Fatalf("expected TxnNone, got %v", c.TxnState())
	}
	if err := c.StartTransaction(TransactionOptions{}); err != nil {
		t.Fatalf("StartTransaction: %v", err)
	}
	if c.TxnState() != TxnStarting {
		t.Fatalf("expected TxnStarting, got %v", c.TxnState())
	}
	start, err := c.ApplyCommandStarting()
	if err != nil || !start {
		t.Fatalf("expected startTransaction=true, got %v, %v", start, err)
	}
	if c.TxnState() != TxnInProgress {
		t.Fatalf("expected TxnInProgress, got %v", c.TxnState())
	}
	start, err = c.ApplyCommandStarting()
	if err != nil || start {
		t.Fatalf("second command should not set startTransaction, got %v, %v", start, err)
	}
	if err := c.CommitTransaction(); err != nil {
		t.Fatalf("CommitTransaction: %v", err)
	}
	if c.TxnState() != TxnCommitted {
		t.Fatalf("expected TxnCommitted, got %v", c.TxnState())
	}
}

func TestTransactionFailureRequiresAbort(t *testing.T) {
	c := NewClient(true, false)
	_ = c.StartTransaction(TransactionOptions{})
	_, _ = c.ApplyCommandStarting()
	c.MarkTransactionFailed()

	if _, err := c.ApplyCommandStarting(); err != ErrTransactionInProgress {
		t.Fatalf("expected ErrTransactionInProgress, got %v", err)
	}
	if err := c.AbortTransaction(); err != nil {
		t.Fatalf("AbortTransaction: %v", err)
	}
	if c.TxnState() != TxnAborted {
		t.Fatalf("expected TxnAborted, got %v", c.TxnState())
	}
}

func TestPoolLIFOReuse(t *testing.T) {
	p := NewPool()
	a := NewClient(false, false)
	b := NewClient(false, false)
	p.ReturnSession(a)
	p.ReturnSession(b)

	got := p.GetSession()
	if got.SessionID != b.SessionID {
		t.Fatalf("expected LIFO order to return b first")
	}
	got2 := p.GetSession()
	if got2.SessionID != a.SessionID {
		t.Fatalf("expected a returned second")
	}
}

func TestPoolDiscardsDirtySession(t *testing.T) {
	p := NewPool()
	c := NewClient(false, false)
	c.MarkDirty()
	p.ReturnSession(c)
	if p.Len() != 0 {
		t.Fatalf("dirty session should not be pooled")
	}
}

func TestPoolDiscardsStaleSession(t *testing.T) {
	p := NewPool()
	timeout := int64(30)
	p.SetLogicalSessionTimeoutMinutes(&timeout)

	c := NewClient(false, false)
	c.allocated = time.Now().Add(-31 * time.Minute)
	p.ReturnSession(c)

	got := p.GetSession()
	if got.SessionID == c.SessionID {
		t.Fatalf("stale session should not be reused")
	}
}

func TestPoolDrainBatches(t *testing.T) {
	p := NewPool()
	for i := 0; i < 3; i++ {
		p.ReturnSession(NewClient(false, false))
	}
	batches := p.Drain()
	if len(batches) != 1 || len(batches[0]) != 3 {
		t.Fatalf("expected one batch of 3, got %+v", batches)
	}
	if p.Len() != 0 {
		t.Fatalf("pool should be empty after drain")
	}
}

func TestClusterClockStartsEmpty(t *testing.T) {
	var clock ClusterClock
	if clock.GetClusterTime() != nil {
		t.Fatalf("expected nil initial cluster time")
	}
}
