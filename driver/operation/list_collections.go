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

// ListCollections performs a listCollections operation, producing a
// cursor over collection metadata documents.
type ListCollections struct {
	filter         bsoncore.Document
	nameOnly       *bool
	database       string
	deployment     *topology.Topology
	readPreference *description.ReadPreference
	sess           *session.Client
	clock          *session.ClusterClock
	monitor        *event.CommandMonitor

	result *driver.BatchCursor
}

// NewListCollections constructs a ListCollections for filter.
func NewListCollections(filter bsoncore.Document) *ListCollections {
	return &ListCollections{filter: filter}
}

// NameOnly specifies whether to only return collection names.
func (lc *ListCollections) NameOnly(nameOnly bool) *ListCollections {
	if lc == nil {
		lc = new(ListCollections)
	}
	lc.nameOnly = &nameOnly
	return lc
}

// Database sets the database to run this operation against.
func (lc *ListCollections) Database(database string) *ListCollections {
	if lc == nil {
		lc = new(ListCollections)
	}
	lc.database = database
	return lc
}

// Deployment sets the deployment to use for this operation.
func (lc *ListCollections) Deployment(deployment *topology.Topology) *ListCollections {
	if lc == nil {
		lc = new(ListCollections)
	}
	lc.deployment = deployment
	return lc
}

// ReadPreference sets the read preference used with this operation.
func (lc *ListCollections) ReadPreference(rp *description.ReadPreference) *ListCollections {
	if lc == nil {
		lc = new(ListCollections)
	}
	lc.readPreference = rp
	return lc
}

// Session sets the session for this operation.
func (lc *ListCollections) Session(sess *session.Client) *ListCollections {
	if lc == nil {
		lc = new(ListCollections)
	}
	lc.sess = sess
	return lc
}

// ClusterClock sets the cluster clock for this operation.
func (lc *ListCollections) ClusterClock(clock *session.ClusterClock) *ListCollections {
	if lc == nil {
		lc = new(ListCollections)
	}
	lc.clock = clock
	return lc
}

// CommandMonitor sets the monitor to use for APM events.
func (lc *ListCollections) CommandMonitor(monitor *event.CommandMonitor) *ListCollections {
	if lc == nil {
		lc = new(ListCollections)
	}
	lc.monitor = monitor
	return lc
}

// Result returns the cursor produced by a successful Execute.
func (lc *ListCollections) Result() *driver.BatchCursor { return lc.result }

func (lc *ListCollections) command(description.Server) (bsoncore.Document, error) {
	b := bsoncore.NewDocumentBuilder().AppendInt32("listCollections", 1)
	if lc.filter != nil {
		b.AppendDocument("filter", lc.filter)
	}
	if lc.nameOnly != nil {
		b.AppendBoolean("nameOnly", *lc.nameOnly)
	}
	return b.Build(), nil
}

// Execute runs the listCollections command and builds the resulting
// cursor.
func (lc *ListCollections) Execute(ctx context.Context) error {
	if lc.deployment == nil {
		return errors.New("the ListCollections operation must have a Deployment set before Execute can be called")
	}

	op := &driver.Operation{
		CommandName:    "listCollections",
		Database:       lc.database,
		Command:        lc.command,
		Deployment:     lc.deployment,
		ReadPreference: lc.readPreference,
		Session:        lc.sess,
		ClusterClock:   lc.clock,
		CommandMonitor: lc.monitor,
	}
	reply, err := op.Execute(ctx)
	if err != nil {
		return err
	}

	cursor, err := newCursorFromReply(reply, op, lc.database, lc.deployment, lc.sess, lc.clock, lc.monitor)
	if err != nil {
		return err
	}
	lc.result = cursor
	return nil
}
