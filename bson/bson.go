// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package bson is the typed, reflection-based BSON codec consumed by the
// driver core as a library (per the core specification, BSON encoding is an
// external collaborator, not one of the core subsystems). It layers an
// ordered-document type and a small Marshal/Unmarshal pair on top of the
// byte-level github.com/nodaldb/nodal-go-driver/bson/bsoncore package.
package bson

import (
	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/bson/primitive"
)

// D is an ordered BSON document, represented as a slice of key-value pairs.
// Use D when element order matters, such as for commands.
type D []E

// E represents a single BSON element in a D.
type E struct {
	Key   string
	Value interface{}
}

// M is an unordered BSON document, represented as a map. Field order is not
// preserved; use D for commands where order matters (e.g. "find" must stay
// the first key).
type M map[string]interface{}

// A is a BSON array.
type A []interface{}

// Raw is an undecoded BSON document; it wraps bsoncore.Document and is what
// the wire layer hands back from a reply.
type Raw []byte

// Lookup finds key in the raw document.
func (r Raw) Lookup(key string) bsoncore.Value {
	return bsoncore.Document(r).Lookup(key)
}

// LookupErr is the checked form of Lookup.
func (r Raw) LookupErr(key string) (bsoncore.Value, error) {
	return bsoncore.Document(r).LookupErr(key)
}

// Validate validates the raw bytes as a well-formed BSON document.
func (r Raw) Validate() error {
	return bsoncore.Document(r).Validate()
}

// String renders r for diagnostics.
func (r Raw) String() string {
	return bsoncore.Document(r).String()
}

// emptyRaw is the canonical BSON encoding of the empty document {}.
var emptyRaw = Raw(bsoncore.EmptyDocument)

// ObjectID re-exports primitive.ObjectID so callers need not import the
// primitive package directly for the common case.
type ObjectID = primitive.ObjectID

// NewObjectID returns a fresh ObjectID.
func NewObjectID() ObjectID { return primitive.NewObjectID() }

// DateTime re-exports primitive.DateTime.
type DateTime = primitive.DateTime

// Timestamp re-exports primitive.Timestamp.
type Timestamp = primitive.Timestamp
