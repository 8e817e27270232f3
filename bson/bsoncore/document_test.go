// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDocumentBuilderRoundTrip(t *testing.T) {
	doc := NewDocumentBuilder().
		AppendString("hello", "world").
		AppendInt32("n", 7).
		AppendBoolean("ok", true).
		Build()

	if err := doc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	v, err := doc.LookupErr("hello")
	if err != nil {
		t.Fatalf("LookupErr: %v", err)
	}
	if got := v.StringValue(); got != "world" {
		t.Fatalf("got %q, want %q", got, "world")
	}

	n := doc.Lookup("n")
	if got := n.Int32(); got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}

func TestDocumentElements(t *testing.T) {
	doc := NewDocumentBuilder().
		AppendString("a", "1").
		AppendString("b", "2").
		Build()

	elems, err := doc.Elements()
	if err != nil {
		t.Fatalf("Elements: %v", err)
	}
	keys := make([]string, len(elems))
	for i, e := range elems {
		keys[i] = e.Key()
	}
	if diff := cmp.Diff([]string{"a", "b"}, keys); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestNestedDocument(t *testing.T) {
	inner := NewDocumentBuilder().AppendInt32("x", 1).Build()
	outer := NewDocumentBuilder().AppendDocument("inner", inner).Build()

	if err := outer.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	got := outer.Lookup("inner").Document()
	if !got.Equal(inner) {
		t.Fatalf("nested document mismatch: got %v, want %v", []byte(got), []byte(inner))
	}
}

func TestArrayBuilder(t *testing.T) {
	arr := NewArrayBuilder().AppendString("a").AppendString("b").Build()
	values, err := arr.Values()
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	if len(values) != 2 || values[0].StringValue() != "a" || values[1].StringValue() != "b" {
		t.Fatalf("unexpected values: %v", values)
	}
}

func TestMalformedDocumentMissingNull(t *testing.T) {
	doc := NewDocumentBuilder().AppendInt32("x", 1).Build()
	doc[len(doc)-1] = 0x01 // corrupt the terminating null
	if err := doc.Validate(); err == nil {
		t.Fatal("expected validation error for missing terminating null")
	}
}
