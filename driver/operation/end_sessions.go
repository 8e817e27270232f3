// Copyright (C) MongoDB, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package operation

import (
	"context"

	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/description"
	"github.com/nodaldb/nodal-go-driver/driver"
	"github.com/nodaldb/nodal-go-driver/session"
	"github.com/nodaldb/nodal-go-driver/topology"
)

// EndSessions sends one endSessions command per batch drained from a
// session.Pool, best-effort: a failed batch is skipped rather than
// aborting the remaining batches, since this only runs on client
// disconnect and there is no one left to report the error to.
func EndSessions(ctx context.Context, database string, deployment *topology.Topology, batches [][]session.ID) {
	for _, batch := range batches {
		if len(batch) == 0 {
			continue
		}
		ab := bsoncore.NewArrayBuilder()
		for _, id := range batch {
			ab.AppendDocument(bsoncore.NewDocumentBuilder().AppendBinary("id", 0x04, id[:]).Build())
		}
		cmd := bsoncore.NewDocumentBuilder().AppendArray("endSessions", ab.Build()).Build()

		op := &driver.Operation{
			CommandName: "endSessions",
			Database:    database,
			Deployment:  deployment,
			Command: func(description.Server) (bsoncore.Document, error) {
				return cmd, nil
			},
		}
		_, _ = op.Execute(ctx)
	}
}
