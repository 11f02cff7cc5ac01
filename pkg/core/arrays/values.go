// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package arrays

import (
	"iter"
	"reflect"

	"github.com/pkg/errors"
)

// Sequence is a host value with a length and indexed access. *Array implements it.
//
// Go slices and arrays (of any element type) are also accepted wherever a Sequence is, see AsSequence.
type Sequence interface {
	Len() int
	Item(i int) (any, error)
}

// Iterable is a host value that can only be traversed once, in order. It's materialized into a list
// before being used. Values of type iter.Seq[any] are also accepted as iterables.
type Iterable interface {
	All() iter.Seq[any]
}

// List is a Sequence backed by a []any.
type List []any

// Len implements Sequence.
func (l List) Len() int { return len(l) }

// Item implements Sequence.
func (l List) Item(i int) (any, error) {
	if i < 0 || i >= len(l) {
		return nil, errors.Errorf("list index %d out of range (len %d)", i, len(l))
	}
	return l[i], nil
}

type reflectSeq struct {
	v reflect.Value
}

func (s reflectSeq) Len() int { return s.v.Len() }

func (s reflectSeq) Item(i int) (any, error) {
	if i < 0 || i >= s.v.Len() {
		return nil, errors.Errorf("index %d out of range (len %d)", i, s.v.Len())
	}
	return s.v.Index(i).Interface(), nil
}

// AsSequence returns value as a Sequence, if it is one: a Sequence implementation, or a Go slice or
// array. Strings are not sequences.
func AsSequence(value any) (Sequence, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case Sequence:
		return v, true
	case []any:
		return List(v), true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return reflectSeq{rv}, true
	}
	return nil, false
}

// AsIterable returns the elements of value if it is an Iterable or an iter.Seq[any], materialized
// into a List.
func AsIterable(value any) (List, bool) {
	var seq iter.Seq[any]
	switch v := value.(type) {
	case Iterable:
		seq = v.All()
	case iter.Seq[any]:
		seq = v
	case func(yield func(any) bool):
		seq = v
	default:
		return nil, false
	}
	var list List
	for item := range seq {
		list = append(list, item)
	}
	return list, true
}
