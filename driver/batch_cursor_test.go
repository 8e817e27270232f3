// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"context"
	"testing"
	"time"

	"github.com/nodaldb/nodal-go-driver/bson"
	"github.com/nodaldb/nodal-go-driver/description"
)

func TestBatchCursorSetBatchSize(t *testing.T) {
	bc := &BatchCursor{}
	if bc.batchSize != 0 {
		t.Fatalf("expected zero-value batchSize, got %d", bc.batchSize)
	}
	bc.SetBatchSize(4)
	if bc.batchSize != 4 {
		t.Fatalf("expected batchSize 4, got %d", bc.batchSize)
	}
}

func TestCalcGetMoreBatchSize(t *testing.T) {
	cases := []struct {
		name                               string
		size, limit, numReturned, expected int32
		ok                                 bool
	}{
		{name: "empty", expected: 0, ok: true},
		{name: "batchSize set, no limit", size: 4, expected: 4, ok: true},
		{name: "limit set, no batchSize", limit: 4, expected: 0, ok: true},
		{name: "limit set and batchSize+numReturned equal limit", size: 4, limit: 8, numReturned: 4, expected: 4, ok: true},
		{name: "limit already exceeded", numReturned: 4, limit: 2, expected: -2, ok: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			bc := BatchCursor{limit: tc.limit, batchSize: tc.size, numReturned: tc.numReturned}
			size, ok := calcGetMoreBatchSize(bc)
			if size != tc.expected || ok != tc.ok {
				t.Fatalf("calcGetMoreBatchSize() = (%d, %v), want (%d, %v)", size, ok, tc.expected, tc.ok)
			}
		})
	}
}

func TestBatchCursorSetComment(t *testing.T) {
	bc := &BatchCursor{}
	bc.SetComment(bson.D{{Key: "foo", Value: "bar"}})
	if len(bc.comment) == 0 {
		t.Fatalf("expected comment to be set")
	}
	v, err := bc.comment.LookupErr("foo")
	if err != nil {
		t.Fatalf("expected foo field in comment: %v", err)
	}
	if s, ok := v.StringValueOK(); !ok || s != "bar" {
		t.Fatalf("unexpected comment value: %+v", v)
	}

	bc.SetComment(nil)
	if bc.comment != nil {
		t.Fatalf("expected nil comment after SetComment(nil)")
	}
}

func TestBatchCursorSetMaxTime(t *testing.T) {
	cases := []struct {
		name string
		dur  time.Duration
		want int64
	}{
		{name: "zero", dur: 0, want: 0},
		{name: "ten milliseconds as nanoseconds", dur: 10_000_000, want: 10},
		{name: "ten milliseconds as microseconds", dur: 10_000 * time.Microsecond, want: 10},
		{name: "ten milliseconds", dur: 10 * time.Millisecond, want: 10},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			bc := &BatchCursor{}
			bc.SetMaxTime(tc.dur)
			if bc.maxTimeMS != tc.want {
				t.Fatalf("maxTimeMS = %d, want %d", bc.maxTimeMS, tc.want)
			}
		})
	}
}

func TestBatchCursorExhaustedOnZeroID(t *testing.T) {
	bc := NewBatchCursor(0, "db", "coll", nil, nil, description.SelectionCriteria{}, nil, nil, nil)
	if !bc.Exhausted() {
		t.Fatalf("expected cursor with id 0 to be exhausted immediately")
	}
	ok, err := bc.Next(context.Background())
	if err != nil || ok {
		t.Fatalf("Next() on exhausted cursor = (%v, %v), want (false, nil)", ok, err)
	}
}
