// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"testing"
	"time"

	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/description"
)

func TestParseHelloReplyPrimary(t *testing.T) {
	reply := bsoncore.NewDocumentBuilder().
		AppendInt32("ok", 1).
		AppendString("setName", "rs0").
		AppendBoolean("isWritablePrimary", true).
		AppendInt32("minWireVersion", 6).
		AppendInt32("maxWireVersion", 17).
		AppendInt64("logicalSessionTimeoutMinutes", 30).
		Build()

	desc := parseHelloReply("h1:27017", reply, 5*time.Millisecond, true)
	if desc.Kind != description.RSPrimary {
		t.Fatalf("expected RSPrimary, got %v", desc.Kind)
	}
	if desc.SetName != "rs0" {
		t.Fatalf("unexpected set name: %q", desc.SetName)
	}
	if desc.WireVersion == nil || desc.WireVersion.Max != 17 {
		t.Fatalf("unexpected wire version: %+v", desc.WireVersion)
	}
	if desc.SessionTimeoutMinutes == nil || *desc.SessionTimeoutMinutes != 30 {
		t.Fatalf("unexpected session timeout: %+v", desc.SessionTimeoutMinutes)
	}
}

func TestParseHelloReplyMongos(t *testing.T) {
	reply := bsoncore.NewDocumentBuilder().
		AppendInt32("ok", 1).
		AppendString("msg", "isdbgrid").
		AppendInt32("minWireVersion", 6).
		AppendInt32("maxWireVersion", 17).
		Build()

	desc := parseHelloReply("h1:27017", reply, 0, false)
	if desc.Kind != description.Mongos {
		t.Fatalf("expected Mongos, got %v", desc.Kind)
	}
}

func TestBuildHelloCommandIncludesCompression(t *testing.T) {
	cmd := buildHelloCommand("myapp", []string{"snappy", "zstd"}, false)
	v, err := cmd.LookupErr("compression")
	if err != nil {
		t.Fatalf("expected compression field: %v", err)
	}
	arr, ok := v.ArrayOK()
	if !ok {
		t.Fatalf("expected compression to be an array")
	}
	vals, err := arr.Values()
	if err != nil || len(vals) != 2 {
		t.Fatalf("expected 2 compressors, got %v, err=%v", vals, err)
	}
}
