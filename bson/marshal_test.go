// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import "testing"

type person struct {
	Name string `bson:"name"`
	Age  int32  `bson:"age,omitempty"`
}

func TestMarshalD(t *testing.T) {
	doc := D{{"find", "widgets"}, {"limit", int32(10)}}
	data, err := Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out D
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out) != 2 || out[0].Key != "find" || out[1].Key != "limit" {
		t.Fatalf("unexpected round trip: %+v", out)
	}
}

func TestMarshalStruct(t *testing.T) {
	in := person{Name: "ada", Age: 30}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out person
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestMarshalOmitEmpty(t *testing.T) {
	in := person{Name: "grace"}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m M
	if err := Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := m["age"]; ok {
		t.Fatalf("expected age to be omitted, got %+v", m)
	}
}
