// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/bson/primitive"
)

// Marshaler is implemented by types that encode themselves directly to BSON
// document bytes.
type Marshaler interface {
	MarshalBSON() ([]byte, error)
}

// Marshal encodes val as a BSON document. val must be a D, M, struct,
// map[string]interface{}, or a Marshaler; anything else is an error since a
// document, unlike a value, cannot be scalar.
func Marshal(val interface{}) ([]byte, error) {
	if m, ok := val.(Marshaler); ok {
		return m.MarshalBSON()
	}

	b := bsoncore.NewDocumentBuilder()
	switch v := val.(type) {
	case D:
		for _, e := range v {
			if err := appendElement(b, e.Key, e.Value); err != nil {
				return nil, err
			}
		}
	case M:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := appendElement(b, k, v[k]); err != nil {
				return nil, err
			}
		}
	case Raw:
		return []byte(v), nil
	case nil:
		return []byte(bsoncore.EmptyDocument), nil
	default:
		rv := reflect.ValueOf(val)
		for rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				return []byte(bsoncore.EmptyDocument), nil
			}
			rv = rv.Elem()
		}
		switch rv.Kind() {
		case reflect.Struct:
			if err := marshalStruct(b, rv); err != nil {
				return nil, err
			}
		case reflect.Map:
			keys := rv.MapKeys()
			names := make([]string, len(keys))
			for i, k := range keys {
				names[i] = fmt.Sprint(k.Interface())
			}
			sort.Strings(names)
			index := map[string]reflect.Value{}
			for _, k := range keys {
				index[fmt.Sprint(k.Interface())] = rv.MapIndex(k)
			}
			for _, name := range names {
				if err := appendElement(b, name, index[name].Interface()); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("bson: cannot marshal %T as a document", val)
		}
	}
	return []byte(b.Build()), nil
}

func marshalStruct(b *bsoncore.DocumentBuilder, rv reflect.Value) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if field.PkgPath != "" { // unexported
			continue
		}
		name, omitempty, skip := parseTag(field)
		if skip {
			continue
		}
		fv := rv.Field(i)
		if omitempty && isEmptyValue(fv) {
			continue
		}
		if err := appendElement(b, name, fv.Interface()); err != nil {
			return err
		}
	}
	return nil
}

func parseTag(field reflect.StructField) (name string, omitempty, skip bool) {
	tag := field.Tag.Get("bson")
	if tag == "-" {
		return "", false, true
	}
	name = strings.ToLower(field.Name[:1]) + field.Name[1:]
	if tag == "" {
		return name, false, false
	}
	parts := strings.Split(tag, ",")
	if parts[0] != "" {
		name = parts[0]
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty, false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return v.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	case reflect.String:
		return v.Len() == 0
	default:
		z := reflect.Zero(v.Type()).Interface()
		return reflect.DeepEqual(v.Interface(), z)
	}
}

func appendElement(b *bsoncore.DocumentBuilder, key string, val interface{}) error {
	val = derefPtr(val)
	switch v := val.(type) {
	case nil:
		b.AppendNull(key)
	case bool:
		b.AppendBoolean(key, v)
	case int:
		b.AppendInt64(key, int64(v))
	case int32:
		b.AppendInt32(key, v)
	case int64:
		b.AppendInt64(key, v)
	case float64:
		b.AppendDouble(key, v)
	case string:
		b.AppendString(key, v)
	case []byte:
		b.AppendBinary(key, 0x00, v)
	case primitive.ObjectID:
		b.AppendObjectID(key, v)
	case primitive.DateTime:
		b.AppendDateTime(key, int64(v))
	case primitive.Timestamp:
		b.AppendTimestamp(key, v.T, v.I)
	case D:
		doc, err := Marshal(v)
		if err != nil {
			return err
		}
		b.AppendDocument(key, bsoncore.Document(doc))
	case M:
		doc, err := Marshal(v)
		if err != nil {
			return err
		}
		b.AppendDocument(key, bsoncore.Document(doc))
	case Raw:
		b.AppendDocument(key, bsoncore.Document(v))
	case A:
		arr, err := marshalArray(v)
		if err != nil {
			return err
		}
		b.AppendArray(key, arr)
	case Marshaler:
		doc, err := v.MarshalBSON()
		if err != nil {
			return err
		}
		b.AppendDocument(key, bsoncore.Document(doc))
	default:
		rv := reflect.ValueOf(val)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			arr, err := marshalSliceValue(rv)
			if err != nil {
				return err
			}
			b.AppendArray(key, arr)
		case reflect.Struct, reflect.Map:
			doc, err := Marshal(val)
			if err != nil {
				return err
			}
			b.AppendDocument(key, bsoncore.Document(doc))
		default:
			return fmt.Errorf("bson: unsupported type %T for key %q", val, key)
		}
	}
	return nil
}

func derefPtr(val interface{}) interface{} {
	rv := reflect.ValueOf(val)
	if rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return rv.Elem().Interface()
	}
	return val
}

func marshalArray(a A) (bsoncore.Array, error) {
	ab := bsoncore.NewArrayBuilder()
	for _, item := range a {
		if err := appendArrayItem(ab, item); err != nil {
			return nil, err
		}
	}
	return ab.Build(), nil
}

func marshalSliceValue(rv reflect.Value) (bsoncore.Array, error) {
	ab := bsoncore.NewArrayBuilder()
	for i := 0; i < rv.Len(); i++ {
		if err := appendArrayItem(ab, rv.Index(i).Interface()); err != nil {
			return nil, err
		}
	}
	return ab.Build(), nil
}

func appendArrayItem(ab *bsoncore.ArrayBuilder, item interface{}) error {
	switch v := item.(type) {
	case string:
		ab.AppendString(v)
	case int32:
		ab.AppendInt32(v)
	case int:
		ab.AppendInt32(int32(v))
	case D, M, Raw:
		doc, err := Marshal(v)
		if err != nil {
			return err
		}
		ab.AppendDocument(bsoncore.Document(doc))
	default:
		doc, err := Marshal(v)
		if err != nil {
			return fmt.Errorf("bson: unsupported array element type %T", item)
		}
		ab.AppendDocument(bsoncore.Document(doc))
	}
	return nil
}
