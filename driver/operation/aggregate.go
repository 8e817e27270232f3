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

// Aggregate performs an aggregate command, producing a cursor over the
// pipeline's output. An empty collection name runs the pipeline against
// the database (aggregate: 1), used for $currentOp-style admin stages.
type Aggregate struct {
	pipeline       bsoncore.Array
	batchSize      *int32
	collection     string
	database       string
	deployment     *topology.Topology
	readPreference *description.ReadPreference
	sess           *session.Client
	clock          *session.ClusterClock
	monitor        *event.CommandMonitor

	result *driver.BatchCursor
}

// NewAggregate constructs an Aggregate for pipeline.
func NewAggregate(pipeline bsoncore.Array) *Aggregate {
	return &Aggregate{pipeline: pipeline}
}

// Collection sets the collection to aggregate against.
func (a *Aggregate) Collection(collection string) *Aggregate {
	if a == nil {
		a = new(Aggregate)
	}
	a.collection = collection
	return a
}

// Database sets the database to run this operation against.
func (a *Aggregate) Database(database string) *Aggregate {
	if a == nil {
		a = new(Aggregate)
	}
	a.database = database
	return a
}

// Deployment sets the deployment to use for this operation.
func (a *Aggregate) Deployment(deployment *topology.Topology) *Aggregate {
	if a == nil {
		a = new(Aggregate)
	}
	a.deployment = deployment
	return a
}

// ReadPreference sets the read preference used with this operation.
func (a *Aggregate) ReadPreference(rp *description.ReadPreference) *Aggregate {
	if a == nil {
		a = new(Aggregate)
	}
	a.readPreference = rp
	return a
}

// BatchSize sets the size of the first batch and subsequent getMores.
func (a *Aggregate) BatchSize(batchSize int32) *Aggregate {
	if a == nil {
		a = new(Aggregate)
	}
	a.batchSize = &batchSize
	return a
}

// Session sets the session for this operation.
func (a *Aggregate) Session(sess *session.Client) *Aggregate {
	if a == nil {
		a = new(Aggregate)
	}
	a.sess = sess
	return a
}

// ClusterClock sets the cluster clock for this operation.
func (a *Aggregate) ClusterClock(clock *session.ClusterClock) *Aggregate {
	if a == nil {
		a = new(Aggregate)
	}
	a.clock = clock
	return a
}

// CommandMonitor sets the monitor to use for APM events.
func (a *Aggregate) CommandMonitor(monitor *event.CommandMonitor) *Aggregate {
	if a == nil {
		a = new(Aggregate)
	}
	a.monitor = monitor
	return a
}

// Result returns the cursor produced by a successful Execute.
func (a *Aggregate) Result() *driver.BatchCursor { return a.result }

func (a *Aggregate) command(description.Server) (bsoncore.Document, error) {
	b := bsoncore.NewDocumentBuilder()
	if a.collection != "" {
		b.AppendString("aggregate", a.collection)
	} else {
		b.AppendInt32("aggregate", 1)
	}
	b.AppendArray("pipeline", a.pipeline)

	cursorOpts := bsoncore.NewDocumentBuilder()
	if a.batchSize != nil {
		cursorOpts.AppendInt32("batchSize", *a.batchSize)
	}
	b.AppendDocument("cursor", cursorOpts.Build())
	return b.Build(), nil
}

// Execute runs the aggregate command and builds the resulting cursor.
func (a *Aggregate) Execute(ctx context.Context) error {
	if a.deployment == nil {
		return errors.New("the Aggregate operation must have a Deployment set before Execute can be called")
	}

	op := &driver.Operation{
		CommandName:    "aggregate",
		Database:       a.database,
		Command:        a.command,
		Deployment:     a.deployment,
		ReadPreference: a.readPreference,
		Session:        a.sess,
		ClusterClock:   a.clock,
		CommandMonitor: a.monitor,
	}
	reply, err := op.Execute(ctx)
	if err != nil {
		return err
	}

	cursor, err := newCursorFromReply(reply, op, a.database, a.deployment, a.sess, a.clock, a.monitor)
	if err != nil {
		return err
	}
	if a.batchSize != nil {
		cursor.SetBatchSize(*a.batchSize)
	}
	a.result = cursor
	return nil
}
