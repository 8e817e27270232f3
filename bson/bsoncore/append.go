// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import (
	"encoding/binary"
	"math"
)

// AppendDoubleElement appends a double element under key.
func AppendDoubleElement(dst []byte, key string, f float64) []byte {
	dst = AppendHeader(dst, TypeDouble, key)
	return AppendDouble(dst, f)
}

// AppendDouble appends a raw double value.
func AppendDouble(dst []byte, f float64) []byte {
	return appendU64(dst, math.Float64bits(f))
}

// AppendStringElement appends a string element under key.
func AppendStringElement(dst []byte, key, val string) []byte {
	dst = AppendHeader(dst, TypeString, key)
	return AppendString(dst, val)
}

// AppendString appends a raw string value.
func AppendString(dst []byte, val string) []byte {
	dst = appendU32(dst, uint32(len(val)+1))
	dst = append(dst, val...)
	return append(dst, 0x00)
}

// AppendDocumentElement appends a document element under key.
func AppendDocumentElement(dst []byte, key string, doc []byte) []byte {
	dst = AppendHeader(dst, TypeEmbeddedDocument, key)
	return append(dst, doc...)
}

// AppendArrayElement appends an array element under key.
func AppendArrayElement(dst []byte, key string, arr []byte) []byte {
	dst = AppendHeader(dst, TypeArray, key)
	return append(dst, arr...)
}

// AppendBooleanElement appends a boolean element under key.
func AppendBooleanElement(dst []byte, key string, v bool) []byte {
	dst = AppendHeader(dst, TypeBoolean, key)
	return AppendBoolean(dst, v)
}

// AppendBoolean appends a raw boolean value.
func AppendBoolean(dst []byte, v bool) []byte {
	if v {
		return append(dst, 0x01)
	}
	return append(dst, 0x00)
}

// AppendInt32Element appends an int32 element under key.
func AppendInt32Element(dst []byte, key string, v int32) []byte {
	dst = AppendHeader(dst, TypeInt32, key)
	return AppendInt32(dst, v)
}

// AppendInt32 appends a raw int32 value.
func AppendInt32(dst []byte, v int32) []byte {
	return appendU32(dst, uint32(v))
}

// AppendInt64Element appends an int64 element under key.
func AppendInt64Element(dst []byte, key string, v int64) []byte {
	dst = AppendHeader(dst, TypeInt64, key)
	return AppendInt64(dst, v)
}

// AppendInt64 appends a raw int64 value.
func AppendInt64(dst []byte, v int64) []byte {
	return appendU64(dst, uint64(v))
}

// AppendNullElement appends a null element under key.
func AppendNullElement(dst []byte, key string) []byte {
	return AppendHeader(dst, TypeNull, key)
}

// AppendDateTimeElement appends a UTC datetime element (milliseconds since
// epoch) under key.
func AppendDateTimeElement(dst []byte, key string, dt int64) []byte {
	dst = AppendHeader(dst, TypeDateTime, key)
	return AppendInt64(dst, dt)
}

// AppendObjectIDElement appends a 12-byte object id element under key.
func AppendObjectIDElement(dst []byte, key string, id [12]byte) []byte {
	dst = AppendHeader(dst, TypeObjectID, key)
	return append(dst, id[:]...)
}

// AppendBinaryElement appends a binary element under key.
func AppendBinaryElement(dst []byte, key string, subtype byte, data []byte) []byte {
	dst = AppendHeader(dst, TypeBinary, key)
	dst = appendU32(dst, uint32(len(data)))
	dst = append(dst, subtype)
	return append(dst, data...)
}

// AppendTimestampElement appends a timestamp element under key.
func AppendTimestampElement(dst []byte, key string, t, i uint32) []byte {
	dst = AppendHeader(dst, TypeTimestamp, key)
	dst = appendU32(dst, i)
	return appendU32(dst, t)
}

func appendU32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendU64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// EmptyDocument is the canonical encoding of {}.
var EmptyDocument = Document{0x05, 0x00, 0x00, 0x00, 0x00}
