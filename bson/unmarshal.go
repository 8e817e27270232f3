// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"fmt"
	"reflect"

	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
)

// Unmarshaler is implemented by types that decode themselves from raw BSON
// document bytes.
type Unmarshaler interface {
	UnmarshalBSON([]byte) error
}

// Unmarshal decodes a BSON document into val, which must be a pointer to a
// D, M, map[string]interface{}, struct, or an Unmarshaler.
func Unmarshal(data []byte, val interface{}) error {
	if u, ok := val.(Unmarshaler); ok {
		return u.UnmarshalBSON(data)
	}

	doc := bsoncore.Document(data)
	elems, err := doc.Elements()
	if err != nil {
		return err
	}

	switch v := val.(type) {
	case *D:
		out := make(D, 0, len(elems))
		for _, e := range elems {
			val, err := valueToInterface(e.Value())
			if err != nil {
				return err
			}
			out = append(out, E{Key: e.Key(), Value: val})
		}
		*v = out
		return nil
	case *M:
		out := M{}
		for _, e := range elems {
			val, err := valueToInterface(e.Value())
			if err != nil {
				return err
			}
			out[e.Key()] = val
		}
		*v = out
		return nil
	case *Raw:
		*v = Raw(doc)
		return nil
	}

	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("bson: Unmarshal requires a non-nil pointer, got %T", val)
	}
	elem := rv.Elem()

	switch elem.Kind() {
	case reflect.Struct:
		return unmarshalStruct(elems, elem)
	case reflect.Map:
		if elem.IsNil() {
			elem.Set(reflect.MakeMap(elem.Type()))
		}
		for _, e := range elems {
			val, err := valueToInterface(e.Value())
			if err != nil {
				return err
			}
			elem.SetMapIndex(reflect.ValueOf(e.Key()), reflect.ValueOf(val))
		}
		return nil
	default:
		return fmt.Errorf("bson: cannot unmarshal into %T", val)
	}
}

func unmarshalStruct(elems []bsoncore.Element, rv reflect.Value) error {
	rt := rv.Type()
	byName := map[string]int{}
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if field.PkgPath != "" {
			continue
		}
		name, _, skip := parseTag(field)
		if skip {
			continue
		}
		byName[name] = i
	}
	for _, e := range elems {
		idx, ok := byName[e.Key()]
		if !ok {
			continue
		}
		if err := setFieldValue(rv.Field(idx), e.Value()); err != nil {
			return fmt.Errorf("bson: field %q: %w", e.Key(), err)
		}
	}
	return nil
}

func setFieldValue(fv reflect.Value, val bsoncore.Value) error {
	if fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		return setFieldValue(fv.Elem(), val)
	}
	switch fv.Kind() {
	case reflect.String:
		s, ok := val.StringValueOK()
		if !ok {
			return fmt.Errorf("expected string, got %s", val.Type)
		}
		fv.SetString(s)
	case reflect.Bool:
		b, ok := val.BooleanOK()
		if !ok {
			return fmt.Errorf("expected bool, got %s", val.Type)
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int32, reflect.Int64:
		i, ok := val.AsInt64()
		if !ok {
			return fmt.Errorf("expected number, got %s", val.Type)
		}
		fv.SetInt(i)
	case reflect.Float32, reflect.Float64:
		f, ok := val.DoubleOK()
		if !ok {
			i, iok := val.AsInt64()
			if !iok {
				return fmt.Errorf("expected number, got %s", val.Type)
			}
			f = float64(i)
		}
		fv.SetFloat(f)
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.Uint8 {
			if val.Type != bsoncore.TypeBinary || len(val.Data) < 5 {
				return fmt.Errorf("expected binary, got %s", val.Type)
			}
			fv.SetBytes(append([]byte(nil), val.Data[5:]...))
			return nil
		}
		arr, ok := val.ArrayOK()
		if !ok {
			return fmt.Errorf("expected array, got %s", val.Type)
		}
		values, err := arr.Values()
		if err != nil {
			return err
		}
		out := reflect.MakeSlice(fv.Type(), len(values), len(values))
		for i, v := range values {
			if err := setFieldValue(out.Index(i), v); err != nil {
				return err
			}
		}
		fv.Set(out)
	case reflect.Struct:
		doc, ok := val.DocumentOK()
		if !ok {
			return fmt.Errorf("expected document, got %s", val.Type)
		}
		elems, err := doc.Elements()
		if err != nil {
			return err
		}
		return unmarshalStruct(elems, fv)
	case reflect.Interface:
		v, err := valueToInterface(val)
		if err != nil {
			return err
		}
		fv.Set(reflect.ValueOf(v))
	default:
		return fmt.Errorf("unsupported field kind %s", fv.Kind())
	}
	return nil
}

func valueToInterface(val bsoncore.Value) (interface{}, error) {
	switch val.Type {
	case bsoncore.TypeString:
		return val.StringValue(), nil
	case bsoncore.TypeInt32:
		return val.Int32(), nil
	case bsoncore.TypeInt64:
		return val.Int64(), nil
	case bsoncore.TypeDouble:
		return val.Double(), nil
	case bsoncore.TypeBoolean:
		return val.Boolean(), nil
	case bsoncore.TypeNull, bsoncore.TypeUndefined:
		return nil, nil
	case bsoncore.TypeEmbeddedDocument:
		var m M
		if err := Unmarshal(val.Document(), &m); err != nil {
			return nil, err
		}
		return m, nil
	case bsoncore.TypeArray:
		values, err := val.Array().Values()
		if err != nil {
			return nil, err
		}
		out := make(A, len(values))
		for i, v := range values {
			item, err := valueToInterface(v)
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case bsoncore.TypeObjectID:
		return val.ObjectID(), nil
	default:
		return nil, fmt.Errorf("bson: unsupported type %s for generic decode", val.Type)
	}
}
