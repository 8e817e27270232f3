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

// Find performs a find operation, producing a cursor over the matching
// documents.
type Find struct {
	filter         bsoncore.Document
	sort           bsoncore.Document
	projection     bsoncore.Document
	skip           *int64
	limit          *int64
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

// NewFind constructs a Find for filter.
func NewFind(filter bsoncore.Document) *Find {
	return &Find{filter: filter}
}

// Collection sets the collection to query.
func (f *Find) Collection(collection string) *Find {
	if f == nil {
		f = new(Find)
	}
	f.collection = collection
	return f
}

// Database sets the database to run this operation against.
func (f *Find) Database(database string) *Find {
	if f == nil {
		f = new(Find)
	}
	f.database = database
	return f
}

// Deployment sets the deployment to use for this operation.
func (f *Find) Deployment(deployment *topology.Topology) *Find {
	if f == nil {
		f = new(Find)
	}
	f.deployment = deployment
	return f
}

// ReadPreference sets the read preference used with this operation.
func (f *Find) ReadPreference(rp *description.ReadPreference) *Find {
	if f == nil {
		f = new(Find)
	}
	f.readPreference = rp
	return f
}

// Session sets the session for this operation.
func (f *Find) Session(sess *session.Client) *Find {
	if f == nil {
		f = new(Find)
	}
	f.sess = sess
	return f
}

// ClusterClock sets the cluster clock for this operation.
func (f *Find) ClusterClock(clock *session.ClusterClock) *Find {
	if f == nil {
		f = new(Find)
	}
	f.clock = clock
	return f
}

// CommandMonitor sets the monitor to use for APM events.
func (f *Find) CommandMonitor(monitor *event.CommandMonitor) *Find {
	if f == nil {
		f = new(Find)
	}
	f.monitor = monitor
	return f
}

// Sort sets the sort document.
func (f *Find) Sort(sort bsoncore.Document) *Find {
	if f == nil {
		f = new(Find)
	}
	f.sort = sort
	return f
}

// Projection sets the projection document.
func (f *Find) Projection(projection bsoncore.Document) *Find {
	if f == nil {
		f = new(Find)
	}
	f.projection = projection
	return f
}

// Skip sets the number of documents to skip.
func (f *Find) Skip(skip int64) *Find {
	if f == nil {
		f = new(Find)
	}
	f.skip = &skip
	return f
}

// Limit sets the maximum number of documents to return, negative meaning
// a single-batch hard limit per the wire protocol's sign convention.
func (f *Find) Limit(limit int64) *Find {
	if f == nil {
		f = new(Find)
	}
	f.limit = &limit
	return f
}

// BatchSize sets the size of the first batch (and, by default, of every
// subsequent getMore).
func (f *Find) BatchSize(batchSize int32) *Find {
	if f == nil {
		f = new(Find)
	}
	f.batchSize = &batchSize
	return f
}

// Result returns the cursor produced by a successful Execute.
func (f *Find) Result() *driver.BatchCursor {
	return f.result
}

func (f *Find) command(description.Server) (bsoncore.Document, error) {
	b := bsoncore.NewDocumentBuilder().
		AppendString("find", f.collection)
	if f.filter != nil {
		b.AppendDocument("filter", f.filter)
	}
	if f.sort != nil {
		b.AppendDocument("sort", f.sort)
	}
	if f.projection != nil {
		b.AppendDocument("projection", f.projection)
	}
	if f.skip != nil {
		b.AppendInt64("skip", *f.skip)
	}
	if f.limit != nil {
		b.AppendInt64("limit", *f.limit)
	}
	if f.batchSize != nil {
		b.AppendInt32("batchSize", *f.batchSize)
	}
	return b.Build(), nil
}

// Execute runs the find command and builds the resulting cursor.
func (f *Find) Execute(ctx context.Context) error {
	if f.deployment == nil {
		return errors.New("the Find operation must have a Deployment set before Execute can be called")
	}

	op := &driver.Operation{
		CommandName:    "find",
		Database:       f.database,
		Command:        f.command,
		Deployment:     f.deployment,
		ReadPreference: f.readPreference,
		Session:        f.sess,
		ClusterClock:   f.clock,
		CommandMonitor: f.monitor,
	}
	reply, err := op.Execute(ctx)
	if err != nil {
		return err
	}

	cursor, err := newCursorFromReply(reply, op, f.database, f.deployment, f.sess, f.clock, f.monitor)
	if err != nil {
		return err
	}
	if f.batchSize != nil {
		cursor.SetBatchSize(*f.batchSize)
	}
	if f.limit != nil && *f.limit > 0 {
		cursor.SetLimit(int32(*f.limit))
	}
	f.result = cursor
	return nil
}
