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

// DeleteResult is the result of a successful delete command.
type DeleteResult struct {
	N int32
}

// DeleteStatement is one entry of a delete command's "deletes" array.
// Limit is 0 for "remove all matching" or 1 for "remove at most one".
type DeleteStatement struct {
	Filter bsoncore.Document
	Limit  int32
}

func (d DeleteStatement) encode() bsoncore.Document {
	return bsoncore.NewDocumentBuilder().
		AppendDocument("q", d.Filter).
		AppendInt32("limit", d.Limit).
		Build()
}

// Delete performs a delete command for one or more delete statements.
type Delete struct {
	deletes      []DeleteStatement
	ordered      *bool
	writeConcern bsoncore.Document
	collection   string
	database     string
	deployment   *topology.Topology
	sess         *session.Client
	clock        *session.ClusterClock
	monitor      *event.CommandMonitor
	retry        driver.RetryMode

	result DeleteResult
}

// NewDelete constructs a Delete for the given statements.
func NewDelete(deletes ...DeleteStatement) *Delete {
	return &Delete{deletes: deletes}
}

// Collection sets the collection to delete from.
func (d *Delete) Collection(collection string) *Delete {
	if d == nil {
		d = new(Delete)
	}
	d.collection = collection
	return d
}

// Database sets the database to run this operation against.
func (d *Delete) Database(database string) *Delete {
	if d == nil {
		d = new(Delete)
	}
	d.database = database
	return d
}

// Deployment sets the deployment to use for this operation.
func (d *Delete) Deployment(deployment *topology.Topology) *Delete {
	if d == nil {
		d = new(Delete)
	}
	d.deployment = deployment
	return d
}

// Ordered sets whether the server stops at the first write error.
func (d *Delete) Ordered(ordered bool) *Delete {
	if d == nil {
		d = new(Delete)
	}
	d.ordered = &ordered
	return d
}

// WriteConcern sets an already-encoded writeConcern subdocument.
func (d *Delete) WriteConcern(wc bsoncore.Document) *Delete {
	if d == nil {
		d = new(Delete)
	}
	d.writeConcern = wc
	return d
}

// Session sets the session for this operation.
func (d *Delete) Session(sess *session.Client) *Delete {
	if d == nil {
		d = new(Delete)
	}
	d.sess = sess
	return d
}

// ClusterClock sets the cluster clock for this operation.
func (d *Delete) ClusterClock(clock *session.ClusterClock) *Delete {
	if d == nil {
		d = new(Delete)
	}
	d.clock = clock
	return d
}

// CommandMonitor sets the monitor to use for APM events.
func (d *Delete) CommandMonitor(monitor *event.CommandMonitor) *Delete {
	if d == nil {
		d = new(Delete)
	}
	d.monitor = monitor
	return d
}

// RetryWrite marks the delete as eligible for one retry, only valid when
// every statement in the batch has limit 1.
func (d *Delete) RetryWrite(retry bool) *Delete {
	if d == nil {
		d = new(Delete)
	}
	if retry {
		d.retry = driver.RetryOnce
	} else {
		d.retry = driver.RetryNone
	}
	return d
}

// Result returns the result of a successful Execute.
func (d *Delete) Result() DeleteResult { return d.result }

func (d *Delete) command(description.Server) (bsoncore.Document, error) {
	ab := bsoncore.NewArrayBuilder()
	for _, stmt := range d.deletes {
		ab.AppendDocument(stmt.encode())
	}
	b := bsoncore.NewDocumentBuilder().
		AppendString("delete", d.collection).
		AppendArray("deletes", ab.Build())
	if d.ordered != nil {
		b.AppendBoolean("ordered", *d.ordered)
	}
	appendWriteConcern(b, d.writeConcern)
	return b.Build(), nil
}

// Execute runs the delete command.
func (d *Delete) Execute(ctx context.Context) error {
	if d.deployment == nil {
		return errors.New("the Delete operation must have a Deployment set before Execute can be called")
	}

	op := &driver.Operation{
		CommandName:    "delete",
		Database:       d.database,
		Command:        d.command,
		Deployment:     d.deployment,
		Session:        d.sess,
		ClusterClock:   d.clock,
		CommandMonitor: d.monitor,
		Retry:          d.retry,
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
	d.result = DeleteResult{N: wr.N}
	return bulkErrorOrNil(wr)
}
