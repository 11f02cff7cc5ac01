// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package arrays

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/gomlx/jitarray/pkg/core/dtypes"
	"github.com/gomlx/jitarray/pkg/core/jit"
	"github.com/pkg/errors"
)

// Array is an instance of an array type (see Descriptor). It's created by New, NewTensor or the
// generators, and is only observable once fully initialized.
//
// Arrays backed by the JIT engine hold references to its variables: Finalize releases them.
type Array struct {
	desc   *Descriptor
	engine *jit.Engine
	ready  bool

	// Exactly one storage form is used, depending on the type.
	host  any       // Host leaves: a flat []T.
	index jit.VarID // JIT leaves and class arrays: 0 for empty arrays.
	items []*Array  // Nested arrays.
	flat  *Array    // Tensors, along with shape.
	shape []int
}

func alloc(desc *Descriptor) *Array {
	return &Array{desc: desc, engine: jit.Default()}
}

// Type returns the descriptor of the array type.
func (a *Array) Type() *Descriptor {
	return a.desc
}

// TypeName returns the name of the array type.
func (a *Array) TypeName() string {
	return a.desc.Name
}

// Ready returns whether the array is initialized. Arrays returned by the constructors are always
// ready, until Finalize is called.
func (a *Array) Ready() bool {
	return a.ready
}

// Engine returns the JIT engine holding the variables of the array.
func (a *Array) Engine() *jit.Engine {
	return a.engine
}

// Len returns the extent of axis 0 of the array.
func (a *Array) Len() int {
	if a.desc.Caps.Len == nil {
		return 0
	}
	return a.desc.Caps.Len(a)
}

// Item implements Sequence, see Entry.
func (a *Array) Item(i int) (any, error) {
	return a.Entry(i)
}

func (a *Array) checkEntry(i int) (int, error) {
	n := a.Len()
	pos := i
	if pos < 0 {
		pos += n
	}
	if pos < 0 || pos >= n {
		return 0, Errorf(ItemAccessFailure, "entry %d is out of bounds (the array is of size %d)", i, n)
	}
	return pos, nil
}

// Entry returns the element i along axis 0: a Go scalar for leaves (an instance for class arrays), or
// a copy of the sub-array for nested arrays and tensors. Negative indices count from the end.
func (a *Array) Entry(i int) (any, error) {
	if a.desc.Caps.GetItem == nil {
		return nil, Errorf(UnsupportedDtype, "%s doesn't support item access", a.desc.Name)
	}
	pos, err := a.checkEntry(i)
	if err != nil {
		return nil, err
	}
	return a.desc.Caps.GetItem(a, pos)
}

// SetEntry sets the element i along axis 0, converting value to the element type. Negative indices
// count from the end.
func (a *Array) SetEntry(i int, value any) error {
	if a.desc.Caps.SetItem == nil {
		return Errorf(UnsupportedDtype, "%s doesn't support item assignment", a.desc.Name)
	}
	pos, err := a.checkEntry(i)
	if err != nil {
		return err
	}
	return a.desc.Caps.SetItem(a, pos, value)
}

func (a *Array) componentIndex(name string) (int, error) {
	d := a.desc
	switch name {
	case "real":
		if d.IsComplex {
			return 0, nil
		}
		if d.IsQuaternion {
			return 3, nil
		}
	case "imag":
		if d.IsComplex {
			return 1, nil
		}
	case "x", "y", "z", "w":
		pos := strings.Index("xyzw", name)
		if !d.IsComplex && !d.IsTensor && !d.IsDynamic() && d.Shape[0] <= 4 && pos < d.Shape[0] {
			return pos, nil
		}
	}
	return 0, Errorf(ItemAccessFailure, "%s: does not have a '%s' component", d.Name, name)
}

// Component returns a named component: "x", "y", "z", "w" for fixed-size arrays of up to 4 elements,
// "real" and "imag" for complex arrays, and "real" (same as "w") for quaternions.
func (a *Array) Component(name string) (any, error) {
	pos, err := a.componentIndex(name)
	if err != nil {
		return nil, err
	}
	return a.Entry(pos)
}

// SetComponent sets a named component, see Component.
func (a *Array) SetComponent(name string, value any) error {
	pos, err := a.componentIndex(name)
	if err != nil {
		return err
	}
	return a.SetEntry(pos, value)
}

// Shape returns the full shape of the array, e.g. [3] for an Array3f or [2, 2] for a Matrix2f.
func (a *Array) Shape() []int {
	if a.desc.IsTensor {
		return slices.Clone(a.shape)
	}
	shape := []int{a.Len()}
	if a.desc.IsLeaf() {
		return shape
	}
	if len(a.items) > 0 {
		return append(shape, a.items[0].Shape()...)
	}
	for _, dim := range a.desc.Shape[1:] {
		shape = append(shape, max(dim, 0))
	}
	return shape
}

// Index returns the JIT variable of a JIT leaf or class array, or 0 if it's empty or not a JIT array.
// The reference is borrowed.
func (a *Array) Index() jit.VarID {
	if a.desc.Caps.Index == nil {
		return 0
	}
	return a.desc.Caps.Index(a)
}

// Data returns a copy of the elements of a leaf array (or of the flat array of a tensor) as a Go
// slice `[]T`. For class arrays it returns the instance IDs as []uint32.
func (a *Array) Data() (any, error) {
	d := a.desc
	switch {
	case d.IsTensor:
		return a.flat.Data()
	case !d.IsLeaf():
		return nil, Errorf(UnsupportedDtype, "%s: nested arrays have no flat data", d.Name)
	case d.IsJIT():
		if a.index == 0 {
			if d.IsClass {
				return []uint32{}, nil
			}
			return d.DType.MakeSlice(0), nil
		}
		return a.engine.Data(a.index)
	default:
		return dtypes.SliceClone(a.host), nil
	}
}

// TensorShape returns the shape of a tensor.
func (a *Array) TensorShape() []int {
	if a.desc.Caps.TensorShape == nil {
		return nil
	}
	return slices.Clone(a.desc.Caps.TensorShape(a))
}

// TensorArray returns the flat array holding the elements of a tensor. It's owned by the tensor.
func (a *Array) TensorArray() *Array {
	if a.desc.Caps.TensorArray == nil {
		return nil
	}
	return a.desc.Caps.TensorArray(a)
}

// Ravel returns a copy of the elements of a tensor in row-major order, see Data.
func (a *Array) Ravel() (any, error) {
	if !a.desc.IsTensor {
		return nil, Errorf(UnsupportedDtype, "%s is not a tensor type", a.desc.Name)
	}
	return a.flat.Data()
}

// Clone returns a copy of the array.
func (a *Array) Clone() (*Array, error) {
	return New(a.desc, a)
}

// Finalize releases the JIT variables held by the array. The array is no longer ready afterwards.
// It's safe to call it more than once.
func (a *Array) Finalize() {
	if a == nil {
		return
	}
	if a.index != 0 {
		a.engine.DecRef(a.index)
		a.index = 0
	}
	for _, item := range a.items {
		item.Finalize()
	}
	a.items = nil
	a.flat.Finalize()
	a.flat = nil
	a.host = nil
	a.shape = nil
	a.ready = false
}

// copyArray initializes dst as a copy of src, of the same type.
func copyArray(dst, src *Array) error {
	d := src.desc
	dst.engine = src.engine
	switch {
	case d.IsTensor:
		flat, err := src.flat.Clone()
		if err != nil {
			return err
		}
		dst.flat, dst.shape = flat, slices.Clone(src.shape)
	case !d.IsLeaf():
		dst.items = make([]*Array, len(src.items))
		for ii, item := range src.items {
			clone, err := item.Clone()
			if err != nil {
				return err
			}
			dst.items[ii] = clone
		}
	case d.IsJIT():
		src.engine.IncRef(src.index)
		dst.index = src.index
	default:
		dst.host = dtypes.SliceClone(src.host)
	}
	return nil
}

// String implements fmt.Stringer.
func (a *Array) String() string {
	if !a.ready {
		return a.desc.Name + "(uninitialized)"
	}
	var sb strings.Builder
	if a.desc.IsTensor {
		fmt.Fprintf(&sb, "%s(shape=%v, ", a.desc.Name, a.shape)
		a.flat.format(&sb)
		sb.WriteString(")")
		return sb.String()
	}
	a.format(&sb)
	return sb.String()
}

func (a *Array) format(sb *strings.Builder) {
	sb.WriteString("[")
	defer sb.WriteString("]")
	if !a.desc.IsLeaf() {
		for ii, item := range a.items {
			if ii > 0 {
				sb.WriteString(", ")
			}
			item.format(sb)
		}
		return
	}
	data, err := a.Data()
	if err != nil {
		fmt.Fprintf(sb, "<%v>", err)
		return
	}
	rv := reflect.ValueOf(data)
	for ii := range rv.Len() {
		if ii > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprint(sb, rv.Index(ii).Interface())
	}
}

// hasElementType returns whether t is the type of the elements of d along some axis.
func (d *Descriptor) hasElementType(t *Descriptor) bool {
	for value, ok := d.Value.(*Descriptor); ok; value, ok = value.Value.(*Descriptor) {
		if value == t {
			return true
		}
	}
	return false
}

// counterType returns the type with the same structure as d, but of Uint32 elements.
func (d *Descriptor) counterType() (*Descriptor, error) {
	m := d.Meta()
	m.DType = dtypes.Uint32
	if d.registry == nil {
		return nil, errors.Errorf("type %s is not registered", d.Name)
	}
	counter := d.registry.ByMeta(m)
	if counter == nil || counter.Caps.InitCounter == nil {
		return nil, Errorf(UnsupportedDtype, "no counter type registered for %s", d.Name)
	}
	return counter, nil
}
