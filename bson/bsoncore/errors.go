// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import "fmt"

// InsufficientBytesError indicates that there were not enough bytes to read
// the next BSON value.
type InsufficientBytesError struct {
	Src      []byte
	Required int
}

// NewInsufficientBytesError constructs an InsufficientBytesError, attempting
// to infer how many more bytes were required from rem.
func NewInsufficientBytesError(src, rem []byte) InsufficientBytesError {
	return InsufficientBytesError{Src: src, Required: len(src) - len(rem) + 1}
}

func (ibe InsufficientBytesError) Error() string {
	return "not enough bytes available to read the next BSON value"
}

// ErrMissingNull is returned when a document or array is missing its
// terminating null byte.
var ErrMissingNull = fmt.Errorf("document or array is missing the terminating null byte")

func lengthError(kind string, length, dstLen int) error {
	return fmt.Errorf("invalid %s length: length=%d but dst has only %d bytes", kind, length, dstLen)
}

// ErrNilReader indicates that an operation was attempted on a nil io.Reader.
var ErrNilReader = fmt.Errorf("cannot read from a nil reader")

// ElementTypeError is returned when an element accessor is called on a
// value of the wrong type.
type ElementTypeError struct {
	Method string
	Type   Type
}

func (ete ElementTypeError) Error() string {
	return fmt.Sprintf("call of %s on %s", ete.Method, ete.Type)
}
