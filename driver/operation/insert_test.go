// Copyright (C) MongoDB, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package operation

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"

	"github.com/nodaldb/nodal-go-driver/bson"
	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/description"
)

func TestInsertCommandShape(t *testing.T) {
	doc := bsoncore.NewDocumentBuilder().AppendString("name", "alice").Build()
	ordered := true

	ins := NewInsert(doc).Collection("users").Ordered(ordered)

	built, err := ins.command(description.Server{})
	if err != nil {
		t.Fatalf("command() error: %v", err)
	}

	var got bson.M
	if err := bson.Unmarshal(built, &got); err != nil {
		t.Fatalf("unmarshal built command: %v", err)
	}

	want := bson.M{
		"insert":  "users",
		"ordered": true,
		"documents": bson.A{
			bson.M{"name": "alice"},
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("insert command mismatch (-want +got):\n%s\nfull document: %s", diff, spew.Sdump(got))
	}
}

func TestInsertCommandOmitsOrderedWhenUnset(t *testing.T) {
	doc := bsoncore.NewDocumentBuilder().AppendInt32("n", 1).Build()
	ins := NewInsert(doc).Collection("things")

	built, err := ins.command(description.Server{})
	if err != nil {
		t.Fatalf("command() error: %v", err)
	}

	var got bson.M
	if err := bson.Unmarshal(built, &got); err != nil {
		t.Fatalf("unmarshal built command: %v", err)
	}

	if _, ok := got["ordered"]; ok {
		t.Fatalf("expected no ordered field, got document: %s", spew.Sdump(got))
	}
}
