// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import "bytes"

// Element is a single key/value pair from within a Document.
type Element []byte

// ReadElement reads one element from the front of src, returning it along
// with the unread remainder. The final, lone null byte that terminates a
// document is not consumable as an element; callers stop when len(rem) <= 1.
func ReadElement(src []byte) (Element, []byte, bool) {
	if len(src) < 2 {
		return nil, src, false
	}
	t := Type(src[0])
	idx := bytes.IndexByte(src[1:], 0x00)
	if idx < 0 {
		return nil, src, false
	}
	keyEnd := 1 + idx + 1 // include the NUL
	_, rem, ok := readValueBytes(t, src[keyEnd:])
	if !ok {
		return nil, src, false
	}
	elemLen := keyEnd + (len(src[keyEnd:]) - len(rem))
	return Element(src[:elemLen]), rem, true
}

// Key returns the element's key.
func (e Element) Key() string {
	idx := bytes.IndexByte(e[1:], 0x00)
	if idx < 0 {
		return ""
	}
	return string(e[1 : 1+idx])
}

// Value returns the element's value.
func (e Element) Value() Value {
	idx := bytes.IndexByte(e[1:], 0x00)
	t := Type(e[0])
	data := e[1+idx+1:]
	return Value{Type: t, Data: data}
}

// Validate checks that the element is structurally sound.
func (e Element) Validate() error {
	return e.Value().Validate()
}

// DebugString renders e for diagnostics.
func (e Element) DebugString() string {
	return e.Key() + ": " + e.Value().String()
}

// String renders e as "key":value.
func (e Element) String() string {
	return "\"" + e.Key() + "\":" + e.Value().String()
}

func (e Element) Len() int { return len(e) }
