// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"context"
	"time"

	"github.com/nodaldb/nodal-go-driver/address"
	"github.com/nodaldb/nodal-go-driver/bson"
	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/description"
	"github.com/nodaldb/nodal-go-driver/event"
	"github.com/nodaldb/nodal-go-driver/session"
	"github.com/nodaldb/nodal-go-driver/topology"
)

// RetryMode selects whether an Operation may be retried once after a
// retryable failure.
type RetryMode int

// The two retry modes the executor understands; there is no "retry many"
// mode, matching the server's txnNumber-scoped retry contract.
const (
	RetryNone RetryMode = iota
	RetryOnce
)

// CommandFn builds the command document to send for one attempt, given the
// server description it was selected against (so e.g. maxWireVersion-gated
// fields can be included).
type CommandFn func(desc description.Server) (bsoncore.Document, error)

// Connection is the minimal surface Operation needs from a checked-out
// connection; *topology.pooledConnection satisfies it.
type Connection interface {
	WriteCommand(ctx context.Context, name string, cmd bsoncore.Document) (int32, error)
	ReadReply(ctx context.Context) (bsoncore.Document, error)
	Release()
	Stale() bool
	ID() string
}

// Operation describes one command execution, including its retry class and
// session/cluster-time bookkeeping. It is built fresh per logical call and
// is not reused across calls.
type Operation struct {
	CommandName    string
	Database       string
	Command        CommandFn
	Deployment     *topology.Topology
	ReadPreference *description.ReadPreference
	Session        *session.Client
	ClusterClock   *session.ClusterClock
	Retry          RetryMode
	IsWrite        bool
	CommandMonitor *event.CommandMonitor

	// ServerSelector overrides normal read-preference-based selection, used
	// for get-more (pin to the cursor's server) and transaction pinning.
	ServerSelector *description.SelectionCriteria

	// ServerUsed is set to the description of the server the (final)
	// attempt ran against, letting callers that open a cursor pin its
	// getMores to that same server.
	ServerUsed description.Server
}

// Execute runs the command to completion, retrying once if the first
// attempt fails with a retryable label and the operation's retry mode
// allows it, and folds the reply's cluster/operation time back into the
// session and cluster clock.
func (op *Operation) Execute(ctx context.Context) (bsoncore.Document, error) {
	reply, err := op.attempt(ctx, false)
	if err == nil {
		return reply, nil
	}

	if op.Retry == RetryOnce && op.isRetryable(err) {
		reply, retryErr := op.attempt(ctx, true)
		if retryErr == nil {
			return reply, nil
		}
		return nil, retryErr
	}
	return nil, err
}

func (op *Operation) isRetryable(err error) bool {
	de, ok := err.(*Error)
	if !ok {
		return false
	}
	if de.Kind == KindIo {
		return true
	}
	if op.IsWrite {
		return de.HasLabel(LabelRetryableWriteError)
	}
	return de.HasLabel(LabelRetryableWriteError) || de.Kind == KindIo
}

func (op *Operation) selectionCriteria() description.SelectionCriteria {
	if op.ServerSelector != nil {
		return *op.ServerSelector
	}
	if op.Session != nil && op.Session.PinnedServerAddress != "" {
		return description.DirectCriteria(op.Session.PinnedServerAddress)
	}
	return description.SelectionCriteria{ReadPref: op.ReadPreference}
}

func (op *Operation) attempt(ctx context.Context, isRetry bool) (bsoncore.Document, error) {
	criteria := op.selectionCriteria()
	srv, err := op.Deployment.SelectServer(ctx, criteria)
	if err != nil {
		return nil, newError(KindServerSelection, "", err.Error(), err)
	}

	conn, err := srv.Connection(ctx)
	if err != nil {
		return nil, newError(KindIo, srv.Description().Addr, "checkout failed", err)
	}
	defer conn.Release()

	desc := srv.Description()
	op.ServerUsed = desc
	cmd, err := op.Command(desc)
	if err != nil {
		return nil, newError(KindInvalidArgument, desc.Addr, err.Error(), err)
	}
	cmd = op.decorateCommand(cmd)

	startedAt, err := op.send(ctx, conn, desc.Addr, cmd)
	if err != nil {
		if op.Session != nil {
			op.Session.MarkDirty()
		}
		return nil, err
	}

	reply, err := op.receive(ctx, conn, desc.Addr, startedAt)
	if err != nil {
		if de, ok := err.(*Error); ok && de.Kind == KindIo {
			op.Deployment.MarkPoolCleared(desc.Addr, "network error")
			if op.Session != nil {
				op.Session.MarkDirty()
			}
		}
		return nil, err
	}

	op.observeReply(reply)
	return reply, nil
}

// decorateCommand stamps $db, lsid, txnNumber/startTransaction/autocommit,
// and $clusterTime onto the raw command document, matching the fields
// every OP_MSG command carries per §4.1 and §4.6.
func (op *Operation) decorateCommand(cmd bsoncore.Document) bsoncore.Document {
	b := bsoncore.NewDocumentBuilder()
	elems, _ := cmd.Elements()
	for _, e := range elems {
		b.AppendValue(e.Key(), e.Value().Type, e.Value().Data)
	}
	b.AppendString("$db", op.Database)

	if op.Session != nil {
		b.AppendBinary("lsid", 0x04, op.Session.SessionID[:])
		if op.IsWrite && op.Retry == RetryOnce {
			b.AppendInt64("txnNumber", op.Session.TxnNumber())
		}
		if op.Session.InTransaction() {
			b.AppendInt64("txnNumber", op.Session.TxnNumber())
			if start, _ := op.Session.ApplyCommandStarting(); start {
				b.AppendBoolean("startTransaction", true)
			}
			b.AppendBoolean("autocommit", false)
		}
		if ct := op.Session.ClusterTime(); len(ct) > 0 {
			if v, err := bson.Raw(ct).LookupErr("$clusterTime"); err == nil {
				if doc, ok := v.DocumentOK(); ok {
					b.AppendDocument("$clusterTime", doc)
				}
			}
		}
	} else if op.ClusterClock != nil {
		if ct := op.ClusterClock.GetClusterTime(); len(ct) > 0 {
			if v, err := bson.Raw(ct).LookupErr("$clusterTime"); err == nil {
				if doc, ok := v.DocumentOK(); ok {
					b.AppendDocument("$clusterTime", doc)
				}
			}
		}
	}
	return b.Build()
}

func (op *Operation) send(ctx context.Context, conn Connection, addr address.Address, cmd bsoncore.Document) (time.Time, error) {
	if op.CommandMonitor != nil && op.CommandMonitor.Started != nil {
		op.CommandMonitor.Started(event.CommandStartedEvent{
			Command:      redactIfNeeded(op.CommandName, cmd),
			DatabaseName: op.Database,
			CommandName:  op.CommandName,
			ConnectionID: conn.ID(),
			ServerAddr:   addr,
		})
	}
	started := time.Now()
	_, err := conn.WriteCommand(ctx, op.CommandName, cmd)
	if err != nil {
		if op.CommandMonitor != nil && op.CommandMonitor.Failed != nil {
			op.CommandMonitor.Failed(event.CommandFailedEvent{
				Duration: time.Since(started), CommandName: op.CommandName, Failure: err, ConnectionID: conn.ID(), ServerAddr: addr,
			})
		}
		return started, newError(KindIo, addr, "write failed", err)
	}
	return started, nil
}

func (op *Operation) receive(ctx context.Context, conn Connection, addr address.Address, started time.Time) (bsoncore.Document, error) {
	reply, err := conn.ReadReply(ctx)
	if err != nil {
		de := newError(KindIo, addr, "read failed", err)
		if op.CommandMonitor != nil && op.CommandMonitor.Failed != nil {
			op.CommandMonitor.Failed(event.CommandFailedEvent{
				Duration: time.Since(started), CommandName: op.CommandName, Failure: de, ConnectionID: conn.ID(), ServerAddr: addr,
			})
		}
		return nil, de
	}

	if cmdErr := extractCommandError(reply); cmdErr != nil {
		if de, ok := cmdErr.(*Error); ok {
			de.Address = addr
		}
		if op.CommandMonitor != nil && op.CommandMonitor.Failed != nil {
			op.CommandMonitor.Failed(event.CommandFailedEvent{
				Duration: time.Since(started), CommandName: op.CommandName, Failure: cmdErr, ConnectionID: conn.ID(), ServerAddr: addr,
			})
		}
		if op.Session != nil && op.Session.InTransaction() {
			op.Session.MarkTransactionFailed()
		}
		return reply, cmdErr
	}

	if op.CommandMonitor != nil && op.CommandMonitor.Succeeded != nil {
		op.CommandMonitor.Succeeded(event.CommandSucceededEvent{
			Duration: time.Since(started), Reply: redactIfNeeded(op.CommandName, reply), CommandName: op.CommandName, ConnectionID: conn.ID(),
		})
	}
	return reply, nil
}

func redactIfNeeded(commandName string, doc bsoncore.Document) bson.Raw {
	if event.Redact(commandName) {
		return bson.Raw(bsoncore.EmptyDocument)
	}
	return bson.Raw(doc)
}

// observeReply folds $clusterTime and operationTime from a successful
// reply back into the session and cluster clock, per §8's monotonicity
// invariant.
func (op *Operation) observeReply(reply bsoncore.Document) {
	if v, err := reply.LookupErr("$clusterTime"); err == nil {
		if doc, ok := v.DocumentOK(); ok {
			wrapper := bsoncore.NewDocumentBuilder().AppendDocument("$clusterTime", doc).Build()
			if op.ClusterClock != nil {
				op.ClusterClock.AdvanceClusterTime(bson.Raw(wrapper))
			}
			if op.Session != nil {
				op.Session.AdvanceClusterTime(bson.Raw(wrapper))
			}
		}
	}
	if op.Session != nil {
		if v, err := reply.LookupErr("operationTime"); err == nil {
			if t, i, ok := v.TimestampOK(); ok {
				op.Session.AdvanceOperationTime(bson.Timestamp{T: t, I: i})
			}
		}
	}
}

// extractCommandError inspects a decoded reply for a non-1 "ok" field and
// builds the corresponding *Error, including any retry labels the server
// attached.
func extractCommandError(reply bsoncore.Document) error {
	okVal, err := reply.LookupErr("ok")
	if err != nil {
		return nil
	}
	ok, _ := okVal.AsInt64()
	if ok == 1 {
		return nil
	}

	de := &Error{Kind: KindCommand}
	if v, err := reply.LookupErr("code"); err == nil {
		de.Code = v.Int32()
	}
	if v, err := reply.LookupErr("codeName"); err == nil {
		de.Name, _ = v.StringValueOK()
	}
	if v, err := reply.LookupErr("errmsg"); err == nil {
		de.Message, _ = v.StringValueOK()
	}
	if v, err := reply.LookupErr("errorLabels"); err == nil {
		if arr, ok := v.ArrayOK(); ok {
			vals, _ := arr.Values()
			for _, lv := range vals {
				if s, ok := lv.StringValueOK(); ok {
					de.Labels = append(de.Labels, s)
				}
			}
		}
	}
	return de
}
