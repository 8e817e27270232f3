// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// Array is a raw bytes representation of a BSON array. An array is encoded
// exactly like a document whose keys are the string indices "0", "1", ...,
// so most of Array's behavior is implemented in terms of Document.
type Array []byte

// NewArrayFromReader reads an array from r. This only validates that the
// length is correct and that the array ends with a null byte.
func NewArrayFromReader(r io.Reader) (Array, error) {
	doc, err := NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return Array(doc), nil
}

// Index retrieves the element at idx. It panics if the array is invalid or
// idx is out of bounds.
func (a Array) Index(idx uint) Element {
	elem, err := a.IndexErr(idx)
	if err != nil {
		panic(err)
	}
	return elem
}

// IndexErr retrieves the element at idx.
func (a Array) IndexErr(idx uint) (Element, error) {
	return Document(a).Index(int(idx))
}

// Values returns the array's values in order.
func (a Array) Values() ([]Value, error) {
	elems, err := Document(a).Elements()
	if err != nil {
		return nil, err
	}
	values := make([]Value, len(elems))
	for i, e := range elems {
		values[i] = e.Value()
	}
	return values, nil
}

// Validate validates the array and every value within it.
func (a Array) Validate() error {
	return Document(a).Validate()
}

// String outputs a JSON-array-shaped rendering of a.
func (a Array) String() string {
	values, err := a.Values()
	if err != nil {
		return ""
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range values {
		if i != 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(v.String())
	}
	buf.WriteByte(']')
	return buf.String()
}

// DebugString is like String but tolerates malformed arrays, annotating
// where decoding broke down instead of discarding everything.
func (a Array) DebugString() string {
	if len(a) < 5 {
		return "<malformed>"
	}
	var buf bytes.Buffer
	buf.WriteString("Array")
	length, rem, _ := ReadLength(a)
	buf.WriteByte('(')
	buf.WriteString(strconv.Itoa(int(length)))
	length -= 4
	buf.WriteString(")[")
	var elem Element
	var ok bool
	for length > 1 {
		elem, rem, ok = ReadElement(rem)
		length -= int32(len(elem))
		if !ok {
			buf.WriteString(fmt.Sprintf("<malformed (%d)>", length))
			break
		}
		fmt.Fprintf(&buf, "%s ", elem.DebugString())
	}
	buf.WriteByte(']')
	return buf.String()
}

// NewArrayBuilder returns an empty Array builder.
func NewArrayBuilder() *ArrayBuilder {
	return &ArrayBuilder{buf: make([]byte, 4, 256), idx: 0}
}

// ArrayBuilder incrementally builds an Array; each Append* call
// auto-generates the next numeric key.
type ArrayBuilder struct {
	buf []byte
	idx int
}

func (b *ArrayBuilder) key() string {
	k := strconv.Itoa(b.idx)
	b.idx++
	return k
}

// AppendDocument appends a document value.
func (b *ArrayBuilder) AppendDocument(doc Document) *ArrayBuilder {
	b.buf = AppendDocumentElement(b.buf, b.key(), doc)
	return b
}

// AppendString appends a string value.
func (b *ArrayBuilder) AppendString(s string) *ArrayBuilder {
	b.buf = AppendStringElement(b.buf, b.key(), s)
	return b
}

// AppendInt32 appends an int32 value.
func (b *ArrayBuilder) AppendInt32(v int32) *ArrayBuilder {
	b.buf = AppendInt32Element(b.buf, b.key(), v)
	return b
}

// AppendInt64 appends an int64 value.
func (b *ArrayBuilder) AppendInt64(v int64) *ArrayBuilder {
	b.buf = AppendInt64Element(b.buf, b.key(), v)
	return b
}

// Build finalizes the array.
func (b *ArrayBuilder) Build() Array {
	doc := (*DocumentBuilder)(b.asDocBuilder()).Build()
	return Array(doc)
}

func (b *ArrayBuilder) asDocBuilder() *DocumentBuilder {
	return &DocumentBuilder{buf: b.buf}
}
