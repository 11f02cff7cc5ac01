// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package arrays

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/gomlx/jitarray/pkg/core/jit"
	"github.com/pkg/errors"
)

// Values are trees of host values whose nodes are *Array (nested arrays and tensors are walked into),
// *Struct, []any, List and maps with string keys (walked in sorted key order). The JIT leaves of a
// tree are the (non-empty) JIT and class arrays it holds.

// CollectIndices returns the JIT variables of the JIT leaves of value, in traversal order. The
// references are borrowed.
func CollectIndices(value any) []jit.VarID {
	var indices []jit.VarID
	walk(value, func(a *Array) {
		if a.index != 0 {
			indices = append(indices, a.index)
		}
	})
	return indices
}

func walk(value any, fn func(a *Array)) {
	switch v := value.(type) {
	case nil:
		return
	case *Array:
		switch {
		case v.desc.IsTensor:
			walk(v.flat, fn)
		case !v.desc.IsLeaf():
			for _, item := range v.items {
				walk(item, fn)
			}
		case v.desc.IsJIT():
			fn(v)
		}
		return
	case *Struct:
		for _, field := range v.Values {
			walk(field, fn)
		}
		return
	case []any:
		for _, item := range v {
			walk(item, fn)
		}
		return
	case List:
		walk([]any(v), fn)
		return
	}
	if rv := reflect.ValueOf(value); isStringMap(rv) {
		for _, key := range sortedKeys(rv) {
			walk(rv.MapIndex(key).Interface(), fn)
		}
	}
}

func isStringMap(rv reflect.Value) bool {
	return rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String
}

func sortedKeys(rv reflect.Value) []reflect.Value {
	keys := rv.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		}
		return 0
	})
	return keys
}

// UpdateIndices returns a copy of value where the JIT leaves hold the given variables, in the order of
// CollectIndices. The new arrays take their own references to the variables, and must be finalized
// (see FinalizeValue). Other leaves are copied.
func UpdateIndices(value any, indices []jit.VarID) (any, error) {
	u := updater{indices: indices}
	result, err := u.update(value)
	if err == nil && u.pos != len(indices) {
		err = errors.Errorf("arrays.UpdateIndices(): %d variables given, %d used", len(indices), u.pos)
	}
	if err != nil {
		FinalizeValue(result)
		return nil, err
	}
	return result, nil
}

type updater struct {
	indices []jit.VarID
	pos     int
}

func (u *updater) next() (jit.VarID, error) {
	if u.pos >= len(u.indices) {
		return 0, errors.Errorf("arrays.UpdateIndices(): not enough variables (%d given)", len(u.indices))
	}
	u.pos++
	return u.indices[u.pos-1], nil
}

func (u *updater) update(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *Array:
		return u.updateArray(v)
	case *Struct:
		s := &Struct{Type: v.Type, Values: make([]any, len(v.Values))}
		for ii, field := range v.Values {
			updated, err := u.update(field)
			if err != nil {
				return s, err
			}
			s.Values[ii] = updated
		}
		return s, nil
	case []any:
		out := make([]any, len(v))
		for ii, item := range v {
			updated, err := u.update(item)
			if err != nil {
				return out, err
			}
			out[ii] = updated
		}
		return out, nil
	case List:
		out, err := u.update([]any(v))
		return List(out.([]any)), err
	}
	rv := reflect.ValueOf(value)
	if !isStringMap(rv) {
		return value, nil
	}
	out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
	for _, key := range sortedKeys(rv) {
		updated, err := u.update(rv.MapIndex(key).Interface())
		if err != nil {
			return out.Interface(), err
		}
		if updated == nil {
			out.SetMapIndex(key, reflect.Zero(rv.Type().Elem()))
		} else {
			out.SetMapIndex(key, reflect.ValueOf(updated))
		}
	}
	return out.Interface(), nil
}

func (u *updater) updateArray(v *Array) (*Array, error) {
	d := v.desc
	switch {
	case d.IsTensor:
		flat, err := u.updateArray(v.flat)
		if err != nil {
			return nil, err
		}
		return &Array{desc: d, engine: v.engine, ready: true, flat: flat, shape: slices.Clone(v.shape)}, nil
	case !d.IsLeaf():
		out := &Array{desc: d, engine: v.engine, ready: true, items: make([]*Array, len(v.items))}
		for ii, item := range v.items {
			updated, err := u.updateArray(item)
			if err != nil {
				out.Finalize()
				return nil, err
			}
			out.items[ii] = updated
		}
		return out, nil
	case d.IsJIT() && v.index != 0:
		id, err := u.next()
		if err != nil {
			return nil, err
		}
		v.engine.IncRef(id)
		return &Array{desc: d, engine: v.engine, ready: true, index: id}, nil
	}
	return v.Clone()
}

// FinalizeValue finalizes every array in the value tree.
func FinalizeValue(value any) {
	walkAll(value, func(a *Array) { a.Finalize() })
}

// walkAll calls fn on the outermost arrays of the tree.
func walkAll(value any, fn func(a *Array)) {
	switch v := value.(type) {
	case nil:
		return
	case *Array:
		fn(v)
		return
	case *Struct:
		for _, field := range v.Values {
			walkAll(field, fn)
		}
		return
	case []any:
		for _, item := range v {
			walkAll(item, fn)
		}
		return
	case List:
		walkAll([]any(v), fn)
		return
	}
	if rv := reflect.ValueOf(value); isStringMap(rv) {
		for _, key := range sortedKeys(rv) {
			walkAll(rv.MapIndex(key).Interface(), fn)
		}
	}
}

// CheckCompatibility returns an ErrTypeIncompatible error if a and b don't have the same structure:
// the same array types (and tensor shapes), struct types, list lengths and map keys. JIT leaves may
// differ in value (but not in being empty), other leaves must be equal.
func CheckCompatibility(a, b any) error {
	return checkCompatibility("value", a, b)
}

func checkCompatibility(path string, a, b any) error {
	incompatible := func(format string, args ...any) error {
		return Errorf(TypeIncompatible, "incompatible results at %s: %s", path, fmt.Sprintf(format, args...))
	}
	switch va := a.(type) {
	case *Array:
		vb, ok := b.(*Array)
		if !ok {
			return incompatible("array of type %s vs %T", va.desc.Name, b)
		}
		return checkArrays(path, va, vb, incompatible)
	case *Struct:
		vb, ok := b.(*Struct)
		if !ok || va.Type != vb.Type {
			return incompatible("struct %s vs %T", va.Type.Name, b)
		}
		for ii := range va.Values {
			if err := checkCompatibility(path+"."+va.Type.Fields[ii].Name, va.Values[ii], vb.Values[ii]); err != nil {
				return err
			}
		}
		return nil
	case List:
		return checkCompatibility(path, []any(va), b)
	case []any:
		vb, ok := b.([]any)
		if l, isList := b.(List); isList {
			vb, ok = []any(l), true
		}
		if !ok || len(va) != len(vb) {
			return incompatible("list of %d elements vs %T of %s", len(va), b, lenString(b))
		}
		for ii := range va {
			if err := checkCompatibility(fmt.Sprintf("%s[%d]", path, ii), va[ii], vb[ii]); err != nil {
				return err
			}
		}
		return nil
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if isStringMap(ra) {
		if !isStringMap(rb) || ra.Len() != rb.Len() {
			return incompatible("map of %d entries vs %T of %s", ra.Len(), b, lenString(b))
		}
		for _, key := range sortedKeys(ra) {
			other := rb.MapIndex(key)
			if !other.IsValid() {
				return incompatible("key %q missing", key.String())
			}
			if err := checkCompatibility(path+"["+key.String()+"]", ra.MapIndex(key).Interface(), other.Interface()); err != nil {
				return err
			}
		}
		return nil
	}
	if !reflect.DeepEqual(a, b) {
		return incompatible("%v (%T) vs %v (%T)", a, a, b, b)
	}
	return nil
}

func lenString(v any) string {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return fmt.Sprintf("%d elements", rv.Len())
	}
	return "no elements"
}

func checkArrays(path string, a, b *Array, incompatible func(format string, args ...any) error) error {
	if a.desc != b.desc {
		return incompatible("array of type %s vs %s", a.desc.Name, b.desc.Name)
	}
	d := a.desc
	switch {
	case d.IsTensor:
		if !slices.Equal(a.shape, b.shape) {
			return incompatible("tensor of shape %v vs %v", a.shape, b.shape)
		}
		return checkArrays(path, a.flat, b.flat, incompatible)
	case !d.IsLeaf():
		for ii := range a.items {
			if err := checkArrays(fmt.Sprintf("%s[%d]", path, ii), a.items[ii], b.items[ii], incompatible); err != nil {
				return err
			}
		}
		return nil
	case d.IsJIT():
		if (a.index == 0) != (b.index == 0) {
			return incompatible("empty vs non-empty %s", d.Name)
		}
		return nil
	}
	if !reflect.DeepEqual(a.host, b.host) {
		return incompatible("%s %v vs %v", d.Name, a, b)
	}
	return nil
}
