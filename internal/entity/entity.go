// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package entity converts decoded Gerrit JSON into typed records.
//
// A record type is a struct whose fields carry json tags naming the
// Gerrit JSON keys. Keys are matched after translation by [TranslateKey],
// so "old_path", "old-path" and "oldPath" all name the same field.
// A key that does not match any field is an error: Gerrit JSON that
// the record type does not describe is never silently dropped.
package entity

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"
)

// A Keyer is a record with a derived key.
// Collections of Keyer records are built as maps by [Keyed].
type Keyer interface {
	Key() string
}

// A MappingError reports a JSON key with no corresponding field.
type MappingError struct {
	Type     string // record type, such as "gerrit.BranchInfo"
	Key      string // key as it appeared in the JSON
	Property string // key after translation
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("entity: non-existent property (%s/%s) for type %s", e.Property, e.Key, e.Type)
}

// TranslateKey converts a hyphen or underscore separated key to camelCase.
// Every '-' or '_' followed by a lower case ASCII letter is replaced
// by the upper case form of that letter; everything else is kept.
// For example "lines_inserted" becomes "linesInserted".
func TranslateKey(key string) string {
	if !strings.ContainsAny(key, "-_") {
		return key
	}
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c == '-' || c == '_') && i+1 < len(key) && 'a' <= key[i+1] && key[i+1] <= 'z' {
			b.WriteByte(key[i+1] - 'a' + 'A')
			i++
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// fields maps translated property names to JSON names.
type fields map[string]string

var fieldCache sync.Map // reflect.Type -> fields

// fieldsOf returns the field map for the struct type t.
func fieldsOf(t reflect.Type) fields {
	if fm, ok := fieldCache.Load(t); ok {
		return fm.(fields)
	}
	fm := make(fields)
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		if n, _, _ := strings.Cut(tag, ","); n != "" {
			name = n
		}
		fm[TranslateKey(name)] = name
	}
	fieldCache.Store(t, fm)
	return fm
}

// Decode constructs a record of type T from the JSON object in data.
// It returns a [*MappingError] if the object has a key that names
// no field of T.
func Decode[T any](data json.RawMessage) (*T, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity: %v is not a struct type", t)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("entity: decoding %v: %w", t, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("entity: decoding %v: not a JSON object", t)
	}

	fm := fieldsOf(t)
	canon := make(map[string]json.RawMessage, len(obj))
	// Sorted, so that the first unknown key is always the one reported.
	for _, key := range slices.Sorted(maps.Keys(obj)) {
		prop := TranslateKey(key)
		name, ok := fm[prop]
		if !ok {
			return nil, &MappingError{Type: t.String(), Key: key, Property: prop}
		}
		canon[name] = obj[key]
	}

	js, err := json.Marshal(canon)
	if err != nil {
		// unreachable: canon holds only valid JSON values
		return nil, err
	}
	v := new(T)
	if err := json.Unmarshal(js, v); err != nil {
		return nil, fmt.Errorf("entity: decoding %v: %w", t, err)
	}
	return v, nil
}

// List constructs a record of type T from each element of the JSON array
// in data. The result preserves the order of the array.
func List[T any](data json.RawMessage) ([]*T, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("entity: decoding list of %v: %w", reflect.TypeFor[T](), err)
	}
	list := make([]*T, 0, len(elems))
	for i, elem := range elems {
		v, err := Decode[T](elem)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		list = append(list, v)
	}
	return list, nil
}

// Keyed is like [List] but returns a map from each record's key to the record.
// If two records have the same key, the later one wins.
func Keyed[T any, P interface {
	*T
	Keyer
}](data json.RawMessage) (map[string]*T, error) {
	list, err := List[T](data)
	if err != nil {
		return nil, err
	}
	m := make(map[string]*T, len(list))
	for _, v := range list {
		m[P(v).Key()] = v
	}
	return m, nil
}

// Map constructs a record of type T from each value of the JSON object
// in data, keeping the object's keys.
// Gerrit uses such objects for per-file information, keyed by path.
func Map[T any](data json.RawMessage) (map[string]*T, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("entity: decoding map of %v: %w", reflect.TypeFor[T](), err)
	}
	m := make(map[string]*T, len(obj))
	for key, val := range obj {
		v, err := Decode[T](val)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", key, err)
		}
		m[key] = v
	}
	return m, nil
}
