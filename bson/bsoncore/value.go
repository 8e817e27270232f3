// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bsoncore

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Value holds a typed BSON value as its raw, undecoded bytes.
type Value struct {
	Type Type
	Data []byte
}

// readValueBytes consumes one value of type t from the front of src and
// returns its raw bytes plus the remainder.
func readValueBytes(t Type, src []byte) (val, rem []byte, ok bool) {
	switch t {
	case TypeDouble:
		return readFixed(src, 8)
	case TypeString, TypeJavaScript, TypeSymbol:
		return readLenEncoded(src)
	case TypeEmbeddedDocument, TypeArray:
		length, _, lok := ReadLength(src)
		if !lok || int(length) > len(src) {
			return nil, src, false
		}
		return src[:length], src[length:], true
	case TypeBinary:
		if len(src) < 5 {
			return nil, src, false
		}
		length := int32(binary.LittleEndian.Uint32(src))
		total := 4 + 1 + int(length)
		if total > len(src) {
			return nil, src, false
		}
		return src[:total], src[total:], true
	case TypeObjectID:
		return readFixed(src, 12)
	case TypeBoolean:
		return readFixed(src, 1)
	case TypeDateTime, TypeInt64, TypeTimestamp:
		return readFixed(src, 8)
	case TypeNull, TypeUndefined, TypeMinKey, TypeMaxKey:
		return src[:0], src, true
	case TypeInt32:
		return readFixed(src, 4)
	case TypeDecimal128:
		return readFixed(src, 16)
	default:
		return nil, src, false
	}
}

func readFixed(src []byte, n int) ([]byte, []byte, bool) {
	if len(src) < n {
		return nil, src, false
	}
	return src[:n], src[n:], true
}

func readLenEncoded(src []byte) ([]byte, []byte, bool) {
	if len(src) < 4 {
		return nil, src, false
	}
	length := int32(binary.LittleEndian.Uint32(src))
	total := 4 + int(length)
	if total > len(src) || length < 1 {
		return nil, src, false
	}
	return src[:total], src[total:], true
}

// Double returns the value as a float64.
func (v Value) Double() float64 {
	f, _ := v.DoubleOK()
	return f
}

// DoubleOK is the checked form of Double.
func (v Value) DoubleOK() (float64, bool) {
	if v.Type != TypeDouble || len(v.Data) < 8 {
		return 0, false
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(v.Data)), true
}

// StringValue returns the value as a string.
func (v Value) StringValue() string {
	s, _ := v.StringValueOK()
	return s
}

// StringValueOK is the checked form of StringValue.
func (v Value) StringValueOK() (string, bool) {
	if v.Type != TypeString || len(v.Data) < 4 {
		return "", false
	}
	length := int32(binary.LittleEndian.Uint32(v.Data))
	if int(4+length) > len(v.Data) || length < 1 {
		return "", false
	}
	return string(v.Data[4 : 4+length-1]), true
}

// Document returns the value as a Document.
func (v Value) Document() Document {
	d, _ := v.DocumentOK()
	return d
}

// DocumentOK is the checked form of Document.
func (v Value) DocumentOK() (Document, bool) {
	if v.Type != TypeEmbeddedDocument {
		return nil, false
	}
	return Document(v.Data), true
}

// Array returns the value as an Array.
func (v Value) Array() Array {
	a, _ := v.ArrayOK()
	return a
}

// ArrayOK is the checked form of Array.
func (v Value) ArrayOK() (Array, bool) {
	if v.Type != TypeArray {
		return nil, false
	}
	return Array(v.Data), true
}

// Binary returns the value's subtype and payload.
func (v Value) Binary() (subtype byte, data []byte) {
	subtype, data, _ = v.BinaryOK()
	return subtype, data
}

// BinaryOK is the checked form of Binary.
func (v Value) BinaryOK() (subtype byte, data []byte, ok bool) {
	if v.Type != TypeBinary || len(v.Data) < 5 {
		return 0, nil, false
	}
	length := int32(binary.LittleEndian.Uint32(v.Data))
	if int(5+length) > len(v.Data) || length < 0 {
		return 0, nil, false
	}
	return v.Data[4], v.Data[5 : 5+length], true
}

// Boolean returns the value as a bool.
func (v Value) Boolean() bool {
	b, _ := v.BooleanOK()
	return b
}

// BooleanOK is the checked form of Boolean.
func (v Value) BooleanOK() (bool, bool) {
	if v.Type != TypeBoolean || len(v.Data) < 1 {
		return false, false
	}
	return v.Data[0] == 0x01, true
}

// Int32 returns the value as an int32.
func (v Value) Int32() int32 {
	i, _ := v.Int32OK()
	return i
}

// Int32OK is the checked form of Int32.
func (v Value) Int32OK() (int32, bool) {
	if v.Type != TypeInt32 || len(v.Data) < 4 {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(v.Data)), true
}

// Int64 returns the value as an int64.
func (v Value) Int64() int64 {
	i, _ := v.Int64OK()
	return i
}

// Int64OK is the checked form of Int64.
func (v Value) Int64OK() (int64, bool) {
	if v.Type != TypeInt64 || len(v.Data) < 8 {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(v.Data)), true
}

// AsInt64 coerces any numeric BSON type to an int64, returning false for
// non-numeric types.
func (v Value) AsInt64() (int64, bool) {
	switch v.Type {
	case TypeInt32:
		i, ok := v.Int32OK()
		return int64(i), ok
	case TypeInt64:
		return v.Int64OK()
	case TypeDouble:
		f, ok := v.DoubleOK()
		return int64(f), ok
	default:
		return 0, false
	}
}

// Timestamp returns the value as (t, i).
func (v Value) Timestamp() (t, i uint32) {
	t, i, _ = v.TimestampOK()
	return t, i
}

// TimestampOK is the checked form of Timestamp.
func (v Value) TimestampOK() (t, i uint32, ok bool) {
	if v.Type != TypeTimestamp || len(v.Data) < 8 {
		return 0, 0, false
	}
	i = binary.LittleEndian.Uint32(v.Data[0:4])
	t = binary.LittleEndian.Uint32(v.Data[4:8])
	return t, i, true
}

// ObjectID returns the value as a 12-byte object id.
func (v Value) ObjectID() [12]byte {
	var id [12]byte
	if v.Type == TypeObjectID && len(v.Data) >= 12 {
		copy(id[:], v.Data[:12])
	}
	return id
}

// IsNumber reports whether the value holds a numeric BSON type.
func (v Value) IsNumber() bool {
	switch v.Type {
	case TypeDouble, TypeInt32, TypeInt64, TypeDecimal128:
		return true
	default:
		return false
	}
}

// Validate checks the value's internal structure for the declared type.
func (v Value) Validate() error {
	switch v.Type {
	case TypeEmbeddedDocument:
		return Document(v.Data).Validate()
	case TypeArray:
		return Array(v.Data).Validate()
	case TypeString, TypeJavaScript, TypeSymbol:
		if _, ok := v.StringValueOK(); !ok {
			return fmt.Errorf("invalid string value")
		}
	}
	return nil
}

// String renders v for diagnostics; not a spec-compliant extJSON encoder.
func (v Value) String() string {
	switch v.Type {
	case TypeDouble:
		return fmt.Sprintf("%v", v.Double())
	case TypeString:
		return fmt.Sprintf("%q", v.StringValue())
	case TypeEmbeddedDocument:
		return v.Document().String()
	case TypeArray:
		return v.Array().String()
	case TypeBoolean:
		return fmt.Sprintf("%v", v.Boolean())
	case TypeInt32:
		return fmt.Sprintf("%d", v.Int32())
	case TypeInt64:
		return fmt.Sprintf("%d", v.Int64())
	case TypeNull:
		return "null"
	case TypeObjectID:
		id := v.ObjectID()
		return fmt.Sprintf("ObjectID(%x)", id)
	default:
		return fmt.Sprintf("<%s>", v.Type)
	}
}

// Equal reports whether v and other have the same type and bytes.
func (v Value) Equal(other Value) bool {
	if v.Type != other.Type || len(v.Data) != len(other.Data) {
		return false
	}
	for i := range v.Data {
		if v.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}
