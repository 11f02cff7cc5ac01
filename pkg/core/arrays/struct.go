// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package arrays

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Field of a StructType.
type Field struct {
	Name string
	Type Type
}

// StructType is a record of named fields, each of them an array type, a scalar or another struct.
// Generators build structs field by field.
type StructType struct {
	Name   string
	Fields []Field
}

// TypeName implements Type.
func (t *StructType) TypeName() string {
	return t.Name
}

// FieldIndex returns the position of the named field, or -1.
func (t *StructType) FieldIndex(name string) int {
	for ii, f := range t.Fields {
		if f.Name == name {
			return ii
		}
	}
	return -1
}

// Struct is an instance of a StructType. Values holds the value of each field, in order.
type Struct struct {
	Type   *StructType
	Values []any
}

// NewStruct creates a struct with the given field values, in order.
func NewStruct(t *StructType, values ...any) (*Struct, error) {
	if len(values) != len(t.Fields) {
		return nil, errors.Errorf("%s has %d fields, got %d values", t.Name, len(t.Fields), len(values))
	}
	return &Struct{Type: t, Values: values}, nil
}

// Get returns the value of the named field.
func (s *Struct) Get(name string) (any, error) {
	idx := s.Type.FieldIndex(name)
	if idx < 0 {
		return nil, errors.Errorf("%s has no field %q", s.Type.Name, name)
	}
	return s.Values[idx], nil
}

// Set the value of the named field.
func (s *Struct) Set(name string, value any) error {
	idx := s.Type.FieldIndex(name)
	if idx < 0 {
		return errors.Errorf("%s has no field %q", s.Type.Name, name)
	}
	s.Values[idx] = value
	return nil
}

// Finalize finalizes the arrays held by the fields.
func (s *Struct) Finalize() {
	for _, v := range s.Values {
		FinalizeValue(v)
	}
}

// String implements fmt.Stringer.
func (s *Struct) String() string {
	parts := make([]string, len(s.Values))
	for ii, v := range s.Values {
		parts[ii] = fmt.Sprintf("%s=%v", s.Type.Fields[ii].Name, v)
	}
	return s.Type.Name + "[" + strings.Join(parts, ", ") + "]"
}
