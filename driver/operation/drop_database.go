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

// DropDatabaseResult is the result of a successful dropDatabase.
type DropDatabaseResult struct {
	Dropped string
}

// DropDatabase performs a dropDatabase operation.
type DropDatabase struct {
	writeConcern bsoncore.Document
	database     string
	deployment   *topology.Topology
	sess         *session.Client
	clock        *session.ClusterClock
	monitor      *event.CommandMonitor

	result DropDatabaseResult
}

// NewDropDatabase constructs a DropDatabase.
func NewDropDatabase() *DropDatabase {
	return &DropDatabase{}
}

// Database sets the database to drop.
func (dd *DropDatabase) Database(database string) *DropDatabase {
	if dd == nil {
		dd = new(DropDatabase)
	}
	dd.database = database
	return dd
}

// Deployment sets the deployment to use for this operation.
func (dd *DropDatabase) Deployment(deployment *topology.Topology) *DropDatabase {
	if dd == nil {
		dd = new(DropDatabase)
	}
	dd.deployment = deployment
	return dd
}

// WriteConcern sets an already-encoded writeConcern subdocument.
func (dd *DropDatabase) WriteConcern(wc bsoncore.Document) *DropDatabase {
	if dd == nil {
		dd = new(DropDatabase)
	}
	dd.writeConcern = wc
	return dd
}

// Session sets the session for this operation.
func (dd *DropDatabase) Session(sess *session.Client) *DropDatabase {
	if dd == nil {
		dd = new(DropDatabase)
	}
	dd.sess = sess
	return dd
}

// ClusterClock sets the cluster clock for this operation.
func (dd *DropDatabase) ClusterClock(clock *session.ClusterClock) *DropDatabase {
	if dd == nil {
		dd = new(DropDatabase)
	}
	dd.clock = clock
	return dd
}

// CommandMonitor sets the monitor to use for APM events.
func (dd *DropDatabase) CommandMonitor(monitor *event.CommandMonitor) *DropDatabase {
	if dd == nil {
		dd = new(DropDatabase)
	}
	dd.monitor = monitor
	return dd
}

// Result returns the result of a successful Execute.
func (dd *DropDatabase) Result() DropDatabaseResult { return dd.result }

func (dd *DropDatabase) command(description.Server) (bsoncore.Document, error) {
	b := bsoncore.NewDocumentBuilder().AppendInt32("dropDatabase", 1)
	appendWriteConcern(b, dd.writeConcern)
	return b.Build(), nil
}

// Execute runs the dropDatabase command.
func (dd *DropDatabase) Execute(ctx context.Context) error {
	if dd.deployment == nil {
		return errors.New("the DropDatabase operation must have a Deployment set before Execute can be called")
	}

	op := &driver.Operation{
		CommandName:    "dropDatabase",
		Database:       dd.database,
		Command:        dd.command,
		Deployment:     dd.deployment,
		Session:        dd.sess,
		ClusterClock:   dd.clock,
		CommandMonitor: dd.monitor,
		IsWrite:        true,
	}
	reply, err := op.Execute(ctx)
	if err != nil {
		return err
	}

	if v, err := reply.LookupErr("dropped"); err == nil {
		dd.result.Dropped, _ = v.StringValueOK()
	}
	return nil
}
