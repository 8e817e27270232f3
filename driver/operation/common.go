// Copyright (C) MongoDB, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package operation holds the command builders the public nodal package
// drives the executor with: one type per server command, each a
// nil-receiver-safe fluent builder ending in Execute(ctx), following the
// same shape regardless of whether the command returns a single document
// or opens a cursor.
package operation

import (
	"fmt"
	"strings"

	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/description"
	"github.com/nodaldb/nodal-go-driver/driver"
	"github.com/nodaldb/nodal-go-driver/event"
	"github.com/nodaldb/nodal-go-driver/session"
	"github.com/nodaldb/nodal-go-driver/topology"
)

// appendWriteConcern appends an already-encoded writeConcern subdocument,
// a no-op when wc is empty.
func appendWriteConcern(b *bsoncore.DocumentBuilder, wc bsoncore.Document) {
	if len(wc) > 0 {
		b.AppendDocument("writeConcern", wc)
	}
}

// appendReadConcern appends an already-encoded readConcern subdocument.
func appendReadConcern(b *bsoncore.DocumentBuilder, rc bsoncore.Document) {
	if len(rc) > 0 {
		b.AppendDocument("readConcern", rc)
	}
}

// writeResult is the n/writeErrors/writeConcernError shape shared by
// insert, update, and delete command replies.
type writeResult struct {
	N    int32
	Errs []driver.WriteError
	WCE  *driver.WriteConcernError
}

func parseWriteResult(reply bsoncore.Document) (writeResult, error) {
	var wr writeResult
	if v, err := reply.LookupErr("n"); err == nil {
		if n, ok := v.AsInt64(); ok {
			wr.N = int32(n)
		}
	}
	if v, err := reply.LookupErr("writeErrors"); err == nil {
		if arr, ok := v.ArrayOK(); ok {
			vals, _ := arr.Values()
			for _, ev := range vals {
				doc, ok := ev.DocumentOK()
				if !ok {
					continue
				}
				we := driver.WriteError{}
				if iv, err := doc.LookupErr("index"); err == nil {
					if n, ok := iv.AsInt64(); ok {
						we.Index = int32(n)
					}
				}
				if cv, err := doc.LookupErr("code"); err == nil {
					we.Code = cv.Int32()
				}
				if mv, err := doc.LookupErr("errmsg"); err == nil {
					we.Message, _ = mv.StringValueOK()
				}
				wr.Errs = append(wr.Errs, we)
			}
		}
	}
	if v, err := reply.LookupErr("writeConcernError"); err == nil {
		if doc, ok := v.DocumentOK(); ok {
			wce := &driver.WriteConcernError{}
			if cv, err := doc.LookupErr("code"); err == nil {
				wce.Code = cv.Int32()
			}
			if mv, err := doc.LookupErr("errmsg"); err == nil {
				wce.Message, _ = mv.StringValueOK()
			}
			wr.WCE = wce
		}
	}
	return wr, nil
}

// bulkErrorOrNil folds a writeResult into a *driver.BulkWriteError, or nil
// if the write encountered no errors at all.
func bulkErrorOrNil(wr writeResult) error {
	if len(wr.Errs) == 0 && wr.WCE == nil {
		return nil
	}
	return &driver.BulkWriteError{WriteErrors: wr.Errs, WriteConcernError: wr.WCE}
}

// newCursorFromReply builds a driver.BatchCursor from a command reply's
// "cursor" subdocument, pinning every subsequent getMore to the exact
// server op ran against (§4.8's "issues follow-ups on the pinned ...
// connection").
func newCursorFromReply(
	reply bsoncore.Document,
	op *driver.Operation,
	database string,
	deployment *topology.Topology,
	sess *session.Client,
	clock *session.ClusterClock,
	monitor *event.CommandMonitor,
) (*driver.BatchCursor, error) {
	cv, err := reply.LookupErr("cursor")
	if err != nil {
		return nil, fmt.Errorf("reply missing cursor field: %w", err)
	}
	curDoc, ok := cv.DocumentOK()
	if !ok {
		return nil, fmt.Errorf("cursor field is not a document")
	}

	var id int64
	if v, err := curDoc.LookupErr("id"); err == nil {
		id, _ = v.AsInt64()
	}

	collection := database
	if v, err := curDoc.LookupErr("ns"); err == nil {
		if ns, ok := v.StringValueOK(); ok {
			if idx := strings.IndexByte(ns, '.'); idx >= 0 {
				collection = ns[idx+1:]
			}
		}
	}

	var firstBatch []bsoncore.Document
	if v, err := curDoc.LookupErr("firstBatch"); err == nil {
		firstBatch = readDocumentArray(v)
	}

	selector := description.DirectCriteria(op.ServerUsed.Addr)
	return driver.NewBatchCursor(id, database, collection, firstBatch, deployment, selector, sess, clock, monitor), nil
}

func readDocumentArray(v bsoncore.Value) []bsoncore.Document {
	arr, ok := v.ArrayOK()
	if !ok {
		return nil
	}
	vals, _ := arr.Values()
	out := make([]bsoncore.Document, 0, len(vals))
	for _, val := range vals {
		if d, ok := val.DocumentOK(); ok {
			out = append(out, d)
		}
	}
	return out
}

func documentArray(docs []bsoncore.Document) bsoncore.Array {
	ab := bsoncore.NewArrayBuilder()
	for _, d := range docs {
		ab.AppendDocument(d)
	}
	return ab.Build()
}
