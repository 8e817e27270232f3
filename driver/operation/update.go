// Copyright (C) MongoDB, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package operation

import (
	"context"
	"errors"

	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/description"
	"github.com/nodaldb/nodal-go-driver/driver"
	"github.com/nodaldb/nodal-go-driver/event"
	"github.com/nodaldb/nodal-go-driver/session"
	"github.com/nodaldb/nodal-go-driver/topology"
)

// UpdateResult is the result of a successful (possibly partially failed)
// update command.
type UpdateResult struct {
	N         int32
	NModified int32
	Upserted  []bsoncore.Document
}

// UpdateStatement is one entry of an update command's "updates" array.
type UpdateStatement struct {
	Filter bsoncore.Document
	Update bsoncore.Document
	Multi  bool
	Upsert bool
}

func (u UpdateStatement) encode() bsoncore.Document {
	b := bsoncore.NewDocumentBuilder().
		AppendDocument("q", u.Filter).
		AppendDocument("u", u.Update).
		AppendBoolean("multi", u.Multi).
		AppendBoolean("upsert", u.Upsert)
	return b.Build()
}

// Update performs an update command for one or more update statements.
type Update struct {
	updates      []UpdateStatement
	ordered      *bool
	writeConcern bsoncore.Document
	collection   string
	database     string
	deployment   *topology.Topology
	sess         *session.Client
	clock        *session.ClusterClock
	monitor      *event.CommandMonitor
	retry        driver.RetryMode

	result UpdateResult
}

// NewUpdate constructs an Update for the given statements.
func NewUpdate(updates ...UpdateStatement) *Update {
	return &Update{updates: updates}
}

// Collection sets the collection to update.
func (u *Update) Collection(collection string) *Update {
	if u == nil {
		u = new(Update)
	}
	u.collection = collection
	return u
}

// Database sets the database to run this operation against.
func (u *Update) Database(database string) *Update {
	if u == nil {
		u = new(Update)
	}
	u.database = database
	return u
}

// Deployment sets the deployment to use for this operation.
func (u *Update) Deployment(deployment *topology.Topology) *Update {
	if u == nil {
		u = new(Update)
	}
	u.deployment = deployment
	return u
}

// Ordered sets whether the server stops at the first write error.
func (u *Update) Ordered(ordered bool) *Update {
	if u == nil {
		u = new(Update)
	}
	u.ordered = &ordered
	return u
}

// WriteConcern sets an already-encoded writeConcern subdocument.
func (u *Update) WriteConcern(wc bsoncore.Document) *Update {
	if u == nil {
		u = new(Update)
	}
	u.writeConcern = wc
	return u
}

// Session sets the session for this operation.
func (u *Update) Session(sess *session.Client) *Update {
	if u == nil {
		u = new(Update)
	}
	u.sess = sess
	return u
}

// ClusterClock sets the cluster clock for this operation.
func (u *Update) ClusterClock(clock *session.ClusterClock) *Update {
	if u == nil {
		u = new(Update)
	}
	u.clock = clock
	return u
}

// CommandMonitor sets the monitor to use for APM events.
func (u *Update) CommandMonitor(monitor *event.CommandMonitor) *Update {
	if u == nil {
		u = new(Update)
	}
	u.monitor = monitor
	return u
}

// RetryWrite marks the update as eligible for one retry, only valid when
// every statement in the batch is single-document (multi: false), per the
// retryable-writes contract (§4.6).
func (u *Update) RetryWrite(retry bool) *Update {
	if u == nil {
		u = new(Update)
	}
	if retry {
		u.retry = driver.RetryOnce
	} else {
		u.retry = driver.RetryNone
	}
	return u
}

// Result returns the result of a successful Execute.
func (u *Update) Result() UpdateResult { return u.result }

func (u *Update) command(description.Server) (bsoncore.Document, error) {
	ab := bsoncore.NewArrayBuilder()
	for _, stmt := range u.updates {
		ab.AppendDocument(stmt.encode())
	}
	b := bsoncore.NewDocumentBuilder().
		AppendString("update", u.collection).
		AppendArray("updates", ab.Build())
	if u.ordered != nil {
		b.AppendBoolean("ordered", *u.ordered)
	}
	appendWriteConcern(b, u.writeConcern)
	return b.Build(), nil
}

// Execute runs the update command.
func (u *Update) Execute(ctx context.Context) error {
	if u.deployment == nil {
		return errors.New("the Update operation must have a Deployment set before Execute can be called")
	}

	op := &driver.Operation{
		CommandName:    "update",
		Database:       u.database,
		Command:        u.command,
		Deployment:     u.deployment,
		Session:        u.sess,
		ClusterClock:   u.clock,
		CommandMonitor: u.monitor,
		Retry:          u.retry,
		IsWrite:        true,
	}
	reply, err := op.Execute(ctx)
	if err != nil {
		return err
	}

	wr, err := parseWriteResult(reply)
	if err != nil {
		return err
	}
	u.result = UpdateResult{N: wr.N}
	if v, err := reply.LookupErr("nModified"); err == nil {
		if n, ok := v.AsInt64(); ok {
			u.result.NModified = int32(n)
		}
	}
	if v, err := reply.LookupErr("upserted"); err == nil {
		u.result.Upserted = readDocumentArray(v)
	}
	return bulkErrorOrNil(wr)
}
