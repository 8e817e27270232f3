// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Document is a raw, undecoded BSON document. The first four bytes are the
// little-endian length of the document including itself; the document ends
// with a single null byte.
type Document []byte

// NewDocumentBuilder creates an empty Document builder, pre-sized for the
// length prefix.
func NewDocumentBuilder() *DocumentBuilder {
	return &DocumentBuilder{buf: make([]byte, 4, 256)}
}

// DocumentBuilder incrementally builds a Document using Append* helpers.
type DocumentBuilder struct {
	buf []byte
}

// AppendValue appends an already-encoded value under key.
func (b *DocumentBuilder) AppendValue(key string, t Type, value []byte) *DocumentBuilder {
	b.buf = AppendHeader(b.buf, t, key)
	b.buf = append(b.buf, value...)
	return b
}

// AppendDouble appends a double element.
func (b *DocumentBuilder) AppendDouble(key string, f float64) *DocumentBuilder {
	b.buf = AppendDoubleElement(b.buf, key, f)
	return b
}

// AppendString appends a string element.
func (b *DocumentBuilder) AppendString(key, val string) *DocumentBuilder {
	b.buf = AppendStringElement(b.buf, key, val)
	return b
}

// AppendDocument appends an already-built document element.
func (b *DocumentBuilder) AppendDocument(key string, doc Document) *DocumentBuilder {
	b.buf = AppendDocumentElement(b.buf, key, doc)
	return b
}

// AppendArray appends an already-built array element.
func (b *DocumentBuilder) AppendArray(key string, arr Array) *DocumentBuilder {
	b.buf = AppendArrayElement(b.buf, key, arr)
	return b
}

// AppendBoolean appends a boolean element.
func (b *DocumentBuilder) AppendBoolean(key string, v bool) *DocumentBuilder {
	b.buf = AppendBooleanElement(b.buf, key, v)
	return b
}

// AppendInt32 appends an int32 element.
func (b *DocumentBuilder) AppendInt32(key string, v int32) *DocumentBuilder {
	b.buf = AppendInt32Element(b.buf, key, v)
	return b
}

// AppendInt64 appends an int64 element.
func (b *DocumentBuilder) AppendInt64(key string, v int64) *DocumentBuilder {
	b.buf = AppendInt64Element(b.buf, key, v)
	return b
}

// AppendNull appends a null element.
func (b *DocumentBuilder) AppendNull(key string) *DocumentBuilder {
	b.buf = AppendNullElement(b.buf, key)
	return b
}

// AppendBinary appends a binary element.
func (b *DocumentBuilder) AppendBinary(key string, subtype byte, data []byte) *DocumentBuilder {
	b.buf = AppendBinaryElement(b.buf, key, subtype, data)
	return b
}

// AppendTimestamp appends a timestamp element.
func (b *DocumentBuilder) AppendTimestamp(key string, t, i uint32) *DocumentBuilder {
	b.buf = AppendTimestampElement(b.buf, key, t, i)
	return b
}

// AppendObjectID appends an object id element.
func (b *DocumentBuilder) AppendObjectID(key string, id [12]byte) *DocumentBuilder {
	b.buf = AppendObjectIDElement(b.buf, key, id)
	return b
}

// AppendDateTime appends a UTC datetime element (milliseconds since epoch).
func (b *DocumentBuilder) AppendDateTime(key string, dt int64) *DocumentBuilder {
	b.buf = AppendDateTimeElement(b.buf, key, dt)
	return b
}

// Build finalizes the document, writing the length prefix and trailing null.
func (b *DocumentBuilder) Build() Document {
	b.buf = append(b.buf, 0x00)
	binary.LittleEndian.PutUint32(b.buf[0:4], uint32(len(b.buf)))
	return Document(b.buf)
}

// BuildDocument is a convenience wrapper that finishes a document whose
// 4-byte length placeholder is the tail of dst: it appends elems and the
// trailing null byte, then writes the final length into the placeholder.
func BuildDocument(dst []byte, elems []byte) []byte {
	dst = append(dst, elems...)
	dst = append(dst, 0x00)
	binary.LittleEndian.PutUint32(dst[len(dst)-len(elems)-5:], uint32(len(elems)+5))
	return dst
}

// AppendHeader appends a BSON element header: the type byte followed by the
// NUL-terminated key.
func AppendHeader(dst []byte, t Type, key string) []byte {
	dst = append(dst, byte(t))
	dst = append(dst, key...)
	return append(dst, 0x00)
}

// ReadLength reads the 4-byte little-endian length prefix from src.
func ReadLength(src []byte) (int32, []byte, bool) {
	if len(src) < 4 {
		return 0, src, false
	}
	return int32(binary.LittleEndian.Uint32(src)), src[4:], true
}

// ReadDocument validates and returns the Document at the front of src along
// with the unread remainder.
func ReadDocument(src []byte) (Document, []byte, bool) {
	length, _, ok := ReadLength(src)
	if !ok || int(length) > len(src) || length < 5 {
		return nil, src, false
	}
	return Document(src[:length]), src[length:], true
}

// NewDocumentFromReader reads exactly one length-prefixed document from r.
func NewDocumentFromReader(r io.Reader) (Document, error) {
	return newBufferFromReader(r)
}

func newBufferFromReader(r io.Reader) ([]byte, error) {
	var lengthBytes [4]byte
	if _, err := io.ReadFull(r, lengthBytes[:]); err != nil {
		return nil, err
	}
	length := int32(binary.LittleEndian.Uint32(lengthBytes[:]))
	if length < 5 {
		return nil, fmt.Errorf("invalid document length %d", length)
	}
	buf := make([]byte, length)
	copy(buf, lengthBytes[:])
	if _, err := io.ReadFull(r, buf[4:]); err != nil {
		return nil, err
	}
	return buf, nil
}

// Len returns the document's declared length.
func (d Document) Len() int32 {
	l, _, _ := ReadLength(d)
	return l
}

// Validate walks d and checks every element for well-formedness.
func (d Document) Validate() error {
	length, rem, ok := ReadLength(d)
	if !ok {
		return NewInsufficientBytesError(d, rem)
	}
	if int(length) > len(d) {
		return lengthError("document", int(length), len(d))
	}
	if d[length-1] != 0x00 {
		return ErrMissingNull
	}

	rem = rem[:length-4]
	for len(rem) > 1 {
		var elem Element
		elem, rem, ok = ReadElement(rem)
		if !ok {
			return NewInsufficientBytesError(d, rem)
		}
		if err := elem.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Elements returns the elements of d in order.
func (d Document) Elements() ([]Element, error) {
	length, rem, ok := ReadLength(d)
	if !ok {
		return nil, NewInsufficientBytesError(d, rem)
	}
	rem = rem[:length-4]
	var elems []Element
	for len(rem) > 1 {
		elem, next, ok := ReadElement(rem)
		if !ok {
			return nil, NewInsufficientBytesError(d, rem)
		}
		elems = append(elems, elem)
		rem = next
	}
	return elems, nil
}

// Lookup finds the value for key, descending into key as a dotted path is
// not supported; only top-level lookups are.
func (d Document) Lookup(key string) Value {
	v, _ := d.LookupErr(key)
	return v
}

// LookupErr finds the value for key and reports whether it was present.
func (d Document) LookupErr(key string) (Value, error) {
	elems, err := d.Elements()
	if err != nil {
		return Value{}, err
	}
	for _, e := range elems {
		if e.Key() == key {
			return e.Value(), nil
		}
	}
	return Value{}, fmt.Errorf("key %q not found in document", key)
}

// Index returns the element at position idx.
func (d Document) Index(idx int) (Element, error) {
	elems, err := d.Elements()
	if err != nil {
		return Element{}, err
	}
	if idx < 0 || idx >= len(elems) {
		return Element{}, fmt.Errorf("index %d out of range", idx)
	}
	return elems[idx], nil
}

// String returns an extended-JSON-ish rendering of d, good enough for logs
// and debug output; it is not a spec-compliant extJSON encoder.
func (d Document) String() string {
	elems, err := d.Elements()
	if err != nil {
		return "<malformed>"
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range elems {
		if i != 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%q:%s", e.Key(), e.Value().String())
	}
	buf.WriteByte('}')
	return buf.String()
}

// Copy returns an independent copy of d's bytes.
func (d Document) Copy() Document {
	cp := make([]byte, len(d))
	copy(cp, d)
	return cp
}

// Equal reports whether d and other encode to the same bytes.
func (d Document) Equal(other Document) bool {
	return bytes.Equal(d, other)
}
