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

// InsertResult is the result of a successful (possibly partially failed)
// insert command.
type InsertResult struct {
	N int32
}

// Insert performs an insert command for one or more documents.
type Insert struct {
	documents    []bsoncore.Document
	ordered      *bool
	writeConcern bsoncore.Document
	collection   string
	database     string
	deployment   *topology.Topology
	sess         *session.Client
	clock        *session.ClusterClock
	monitor      *event.CommandMonitor
	retry        driver.RetryMode

	result InsertResult
}

// NewInsert constructs an Insert for documents.
func NewInsert(documents ...bsoncore.Document) *Insert {
	return &Insert{documents: documents}
}

// Collection sets the collection to insert into.
func (ins *Insert) Collection(collection string) *Insert {
	if ins == nil {
		ins = new(Insert)
	}
	ins.collection = collection
	return ins
}

// Database sets the database to run this operation against.
func (ins *Insert) Database(database string) *Insert {
	if ins == nil {
		ins = new(Insert)
	}
	ins.database = database
	return ins
}

// Deployment sets the deployment to use for this operation.
func (ins *Insert) Deployment(deployment *topology.Topology) *Insert {
	if ins == nil {
		ins = new(Insert)
	}
	ins.deployment = deployment
	return ins
}

// Ordered sets whether the server stops at the first write error.
func (ins *Insert) Ordered(ordered bool) *Insert {
	if ins == nil {
		ins = new(Insert)
	}
	ins.ordered = &ordered
	return ins
}

// WriteConcern sets an already-encoded writeConcern subdocument.
func (ins *Insert) WriteConcern(wc bsoncore.Document) *Insert {
	if ins == nil {
		ins = new(Insert)
	}
	ins.writeConcern = wc
	return ins
}

// Session sets the session for this operation.
func (ins *Insert) Session(sess *session.Client) *Insert {
	if ins == nil {
		ins = new(Insert)
	}
	ins.sess = sess
	return ins
}

// ClusterClock sets the cluster clock for this operation.
func (ins *Insert) ClusterClock(clock *session.ClusterClock) *Insert {
	if ins == nil {
		ins = new(Insert)
	}
	ins.clock = clock
	return ins
}

// CommandMonitor sets the monitor to use for APM events.
func (ins *Insert) CommandMonitor(monitor *event.CommandMonitor) *Insert {
	if ins == nil {
		ins = new(Insert)
	}
	ins.monitor = monitor
	return ins
}

// RetryWrite marks the insert as eligible for one retry on a retryable
// write error, per the retryable-writes contract (§4.6).
func (ins *Insert) RetryWrite(retry bool) *Insert {
	if ins == nil {
		ins = new(Insert)
	}
	if retry {
		ins.retry = driver.RetryOnce
	} else {
		ins.retry = driver.RetryNone
	}
	return ins
}

// Result returns the result of a successful Execute.
func (ins *Insert) Result() InsertResult { return ins.result }

func (ins *Insert) command(description.Server) (bsoncore.Document, error) {
	b := bsoncore.NewDocumentBuilder().
		AppendString("insert", ins.collection).
		AppendArray("documents", documentArray(ins.documents))
	if ins.ordered != nil {
		b.AppendBoolean("ordered", *ins.ordered)
	}
	appendWriteConcern(b, ins.writeConcern)
	return b.Build(), nil
}

// Execute runs the insert command.
func (ins *Insert) Execute(ctx context.Context) error {
	if ins.deployment == nil {
		return errors.New("the Insert operation must have a Deployment set before Execute can be called")
	}

	op := &driver.Operation{
		CommandName:    "insert",
		Database:       ins.database,
		Command:        ins.command,
		Deployment:     ins.deployment,
		Session:        ins.sess,
		ClusterClock:   ins.clock,
		CommandMonitor: ins.monitor,
		Retry:          ins.retry,
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
	ins.result = InsertResult{N: wr.N}
	return bulkErrorOrNil(wr)
}
