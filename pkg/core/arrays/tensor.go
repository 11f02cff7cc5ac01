// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package arrays

import (
	"slices"

	"github.com/gomlx/jitarray/pkg/core/shapes"
	"github.com/pkg/errors"
)

// NewTensor creates a tensor of the given type.
//
//   - array == nil and shape == nil: an empty tensor of shape [0].
//   - array is a tensor of the same type: a copy. If it's a tensor of another type, its flat array is
//     converted (see New) and its shape kept, unless shape is given.
//   - shape == nil: array is flattened in row-major order, and the shape is the one discovered. Nested
//     Go slices, sequences and arrays are accepted, but they must not be ragged.
//   - shape != nil: array must be flat, and shape is taken as is ([]int{} is a 0D tensor).
//
// The product of the shape must match the number of elements, otherwise it fails with
// ErrShapeMismatch.
func NewTensor(desc *Descriptor, array any, shape []int) (*Array, error) {
	if !desc.IsTensor {
		return nil, Errorf(UnsupportedDtype, "%s.New(): not a tensor type", desc.Name)
	}
	a := alloc(desc)
	if err := initTensor(a, array, shape); err != nil {
		a.Finalize()
		return nil, errors.WithMessagef(err, "%s.New()", desc.Name)
	}
	a.ready = true
	return a, nil
}

func initTensor(a *Array, array any, shape []int) error {
	d := a.desc
	flatType := d.Value.(*Descriptor)
	if array == nil {
		if shape != nil {
			return Errorf(ShapeMismatch, "a 'shape' requires an 'array'")
		}
		return d.Caps.InitDefault(a)
	}
	for _, dim := range shape {
		if dim < 0 {
			return Errorf(ShapeMismatch, "invalid shape %v", shape)
		}
	}

	var err error
	switch other, isArray := array.(*Array); {
	case isArray && other.desc == d && shape == nil:
		return copyArray(a, other)

	case isArray && other.desc.IsTensor:
		a.flat, err = New(flatType, other.flat)
		a.shape = slices.Clone(other.shape)

	case shape != nil:
		a.flat, err = New(flatType, array)

	default:
		r := raveler{rank: -1}
		if err = r.visit(array, 0); err == nil {
			a.shape = append([]int{}, r.shape...)
			a.flat, err = New(flatType, r.flat)
		}
	}
	if err != nil {
		return err
	}
	if shape != nil {
		a.shape = slices.Clone(shape)
	}
	if got, expected := a.flat.Len(), shapes.Product(a.shape); got != expected {
		return Errorf(ShapeMismatch, "input array has the wrong number of entries (got %d, expected %d)",
			got, expected)
	}
	return nil
}

// At returns the element of a tensor at the given indices, one per axis.
func (a *Array) At(indices ...int) (any, error) {
	if !a.desc.IsTensor {
		return nil, Errorf(UnsupportedDtype, "%s.At(): not a tensor type", a.desc.Name)
	}
	if !a.ready {
		return nil, Errorf(ItemAccessFailure, "%s.At(): array is not initialized", a.desc.Name)
	}
	flat, err := shapes.FlatIndex(a.shape, indices...)
	if err != nil {
		return nil, Wrapf(ItemAccessFailure, err, "%s.At(%v)", a.desc.Name, indices)
	}
	return a.flat.Entry(flat)
}

// raveler flattens nested host values in row-major order, discovering their shape.
type raveler struct {
	shape []int
	rank  int // Depth of the scalars, or -1 before the first one.
	flat  List
}

func (r *raveler) visit(value any, depth int) error {
	if a, ok := value.(*Array); ok && a.desc.IsLeaf() && !a.desc.IsClass {
		// Leaves are read in one pass.
		data, err := a.Data()
		if err != nil {
			return err
		}
		value = data
	}
	seq, isSeq := AsSequence(value)
	if !isSeq {
		if r.rank < 0 {
			if depth != len(r.shape) {
				return Errorf(ShapeMismatch, "ragged input: scalar found at depth %d", depth)
			}
			r.rank = depth
		} else if depth != r.rank {
			return Errorf(ShapeMismatch, "ragged input: scalar found at depth %d, expected %d", depth, r.rank)
		}
		r.flat = append(r.flat, value)
		return nil
	}
	n := seq.Len()
	switch {
	case depth < len(r.shape):
		if r.shape[depth] != n {
			return Errorf(ShapeMismatch, "ragged input: axis %d has %d and %d elements", depth, r.shape[depth], n)
		}
	case depth == len(r.shape) && r.rank < 0:
		r.shape = append(r.shape, n)
	default:
		return Errorf(ShapeMismatch, "ragged input: sequence found at depth %d", depth)
	}
	for ii := range n {
		item, err := seq.Item(ii)
		if err != nil {
			return Wrapf(ItemAccessFailure, err, "item retrieval failed")
		}
		if err := r.visit(item, depth+1); err != nil {
			return err
		}
	}
	return nil
}
