// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package arrays

import (
	"math"

	"github.com/gomlx/jitarray/pkg/core/dtypes"
	"github.com/gomlx/jitarray/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Full returns an instance of t with every element set to value, where dynamically sized axes get
// size elements if they are the last axis, 1 otherwise. A nil value leaves the elements
// uninitialized (they are zero in practice).
//
// The result is an *Array for array types, a *Struct for struct types (built field by field) and a
// Go scalar for scalar types.
func Full(t Type, value any, size int) (any, error) {
	result, err := full(t, value, shapeFor(t, size))
	return result, errors.WithMessage(err, "arrays.Full()")
}

// FullShape is like Full, but with an explicit shape, which must have the rank of t and agree with its
// fixed-size axes.
func FullShape(t Type, value any, shape []int) (any, error) {
	result, err := full(t, value, shape)
	return result, errors.WithMessage(err, "arrays.Full()")
}

// Zeros is Full with value 0.
func Zeros(t Type, size int) (any, error) { return Full(t, 0, size) }

// Ones is Full with value 1.
func Ones(t Type, size int) (any, error) { return Full(t, 1, size) }

// Empty is Full with no value: elements are left uninitialized, when the type allows it.
func Empty(t Type, size int) (any, error) { return Full(t, nil, size) }

// ZerosShape is FullShape with value 0.
func ZerosShape(t Type, shape []int) (any, error) { return FullShape(t, 0, shape) }

// OnesShape is FullShape with value 1.
func OnesShape(t Type, shape []int) (any, error) { return FullShape(t, 1, shape) }

// EmptyShape is FullShape with no value.
func EmptyShape(t Type, shape []int) (any, error) { return FullShape(t, nil, shape) }

// shapeFor derives the shape of t for the given size.
func shapeFor(t Type, size int) []int {
	switch tt := t.(type) {
	case *Descriptor:
		if tt.IsTensor {
			return []int{size}
		}
		shape := make([]int, tt.NDim())
		for axis, dim := range tt.Shape {
			switch {
			case dim != shapes.Dynamic:
				shape[axis] = dim
			case axis == tt.NDim()-1:
				shape[axis] = size
			default:
				shape[axis] = 1
			}
		}
		return shape
	case *StructType:
		return []int{size}
	}
	return nil
}

func full(t Type, value any, shape []int) (any, error) {
	switch tt := t.(type) {
	case ScalarType:
		if value == nil {
			return tt.DType.Zero(), nil
		}
		converted, err := dtypes.Convert(tt.DType, value)
		if err != nil {
			return nil, Wrapf(BroadcastFailure, err, "could not convert %v to %s", value, tt.DType)
		}
		return converted, nil

	case *StructType:
		s := &Struct{Type: tt, Values: make([]any, len(tt.Fields))}
		for ii, f := range tt.Fields {
			fieldShape := shape
			if _, isArray := f.Type.(*Descriptor); isArray && len(shape) == 1 {
				fieldShape = shapeFor(f.Type, shape[0])
			}
			v, err := full(f.Type, value, fieldShape)
			if err != nil {
				s.Finalize()
				return nil, errors.WithMessagef(err, "field %s.%s", tt.Name, f.Name)
			}
			s.Values[ii] = v
		}
		return s, nil

	case *Descriptor:
		a, err := fullArray(tt, value, shape)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, Errorf(UnsupportedDtype, "unsupported type %T", t)
}

func fullArray(d *Descriptor, value any, shape []int) (*Array, error) {
	if d.IsTensor {
		for _, dim := range shape {
			if dim < 0 {
				return nil, Errorf(ShapeMismatch, "invalid shape %v", shape)
			}
		}
		flat, err := fullArray(d.Value.(*Descriptor), value, []int{shapes.Product(shape)})
		if err != nil {
			return nil, err
		}
		defer flat.Finalize()
		return NewTensor(d, flat, shape)
	}

	if len(shape) != d.NDim() {
		return nil, Errorf(ShapeMismatch, "the provided 'shape' and 'dtype' parameters are incompatible")
	}
	for axis, dim := range shape {
		if dim < 0 || (d.Shape[axis] != shapes.Dynamic && d.Shape[axis] != dim) {
			return nil, Errorf(ShapeMismatch, "the provided 'shape' and 'dtype' parameters are incompatible")
		}
	}
	caps := &d.Caps
	a := alloc(d)
	fail := func(err error) (*Array, error) {
		a.Finalize()
		return nil, errors.WithMessagef(err, "%s", d.Name)
	}

	if value != nil && caps.InitConst != nil && d.IsDynamic() {
		if d.DType == dtypes.Bool {
			// Integers are accepted as booleans.
			if i, ok := dtypes.ToInt(value); ok {
				value = i != 0
			}
		}
		if err := caps.InitConst(a, shape[0], value); err != nil {
			return fail(wrapBroadcast(err, value, d))
		}
		a.ready = true
		return a, nil
	}

	var err error
	if d.IsDynamic() {
		err = caps.Init(a, shape[0])
	} else {
		err = caps.InitDefault(a)
	}
	if err != nil {
		return fail(err)
	}
	if value == nil && d.NDim() == 1 {
		a.ready = true
		return a, nil
	}
	for ii := range shape[0] {
		item, err := full(d.Value, value, shape[1:])
		if err != nil {
			return fail(err)
		}
		err = caps.SetItem(a, ii, item)
		FinalizeValue(item)
		if err != nil {
			return fail(Wrapf(ItemAccessFailure, err, "item assignment failed"))
		}
	}
	a.ready = true
	return a, nil
}

// Arange returns a 1D dynamically sized array with the values start, start+step, ... up to stop
// (exclusive), like Go's `for v := start; v < stop; v += step` (or `>` for negative steps).
//
// It builds a Uint32 counter (the type with the same structure registered for Uint32) and converts it
// to the target kind, applying counter*step + start unless start == 0 and step == 1.
func Arange(d *Descriptor, start, stop, step int) (*Array, error) {
	a, err := arange(d, start, stop, step)
	return a, errors.WithMessagef(err, "arrays.Arange(%s)", d.Name)
}

// ArangeSize is Arange(d, 0, size, 1).
func ArangeSize(d *Descriptor, size int) (*Array, error) {
	return Arange(d, 0, size, 1)
}

func checkRangeType(d *Descriptor, floatOnly bool) error {
	if d.NDim() != 1 || !d.IsDynamic() || !d.IsLeaf() || d.IsClass || d.IsTensor || !d.DType.IsArithmetic() {
		return Errorf(UnsupportedDtype, "unsupported type %s: must be a dynamically sized 1D numeric array", d.Name)
	}
	if floatOnly && !d.DType.IsFloat() {
		return Errorf(UnsupportedDtype, "unsupported type %s: must be a floating point array", d.Name)
	}
	return nil
}

func arange(d *Descriptor, start, stop, step int) (*Array, error) {
	if err := checkRangeType(d, false); err != nil {
		return nil, err
	}
	if step == 0 {
		return nil, Errorf(ShapeMismatch, "step cannot be zero")
	}
	sign := 1
	if step < 0 {
		sign = -1
	}
	size := (stop - start + step - sign) / step
	if size < 0 {
		return nil, Errorf(ShapeMismatch, "size cannot be negative (start=%d, stop=%d, step=%d)", start, stop, step)
	}
	if size > math.MaxUint32 {
		return nil, Errorf(ShapeMismatch, "size %d too large for a counter", size)
	}
	if size == 0 {
		return New(d)
	}
	if start == 0 && step == 1 {
		return counterAs(d, size)
	}
	return affineCounter(d, size, wrapInt(d.DType, step), wrapInt(d.DType, start))
}

// wrapInt converts negative values to unsigned kinds by wrapping around, so that the affine transform
// of the counter computes the expected values modulo 2^bits.
func wrapInt(dtype dtypes.DType, v int) any {
	if !dtype.IsUnsigned() || v >= 0 {
		return v
	}
	u := uint64(int64(v))
	if bits := dtype.Bits(); bits < 64 {
		u &= 1<<bits - 1
	}
	return u
}

// Linspace returns num values evenly spaced from start to stop, with stop included if endpoint is
// true. Only floating point dynamically sized 1D arrays are supported.
func Linspace(d *Descriptor, start, stop float64, num int, endpoint bool) (*Array, error) {
	a, err := linspace(d, start, stop, num, endpoint)
	return a, errors.WithMessagef(err, "arrays.Linspace(%s)", d.Name)
}

func linspace(d *Descriptor, start, stop float64, num int, endpoint bool) (*Array, error) {
	if err := checkRangeType(d, true); err != nil {
		return nil, err
	}
	if num < 0 {
		return nil, Errorf(ShapeMismatch, "num cannot be negative, got %d", num)
	}
	if num == 0 {
		return New(d)
	}
	divisor := num
	if endpoint {
		divisor--
	}
	var step float64
	if divisor > 0 {
		step = (stop - start) / float64(divisor)
	}
	return affineCounter(d, num, step, start)
}

// counterAs returns the counter 0..size-1 converted to d.
func counterAs(d *Descriptor, size int) (*Array, error) {
	counterType, err := d.counterType()
	if err != nil {
		return nil, err
	}
	counter := alloc(counterType)
	if err := counterType.Caps.InitCounter(counter, size); err != nil {
		counter.Finalize()
		return nil, err
	}
	counter.ready = true
	defer counter.Finalize()
	return New(d, counter)
}

// affineCounter returns counter*step + start, of type d.
func affineCounter(d *Descriptor, size int, step, start any) (*Array, error) {
	counter, err := counterAs(d, size)
	if err != nil {
		return nil, err
	}
	defer counter.Finalize()
	stepArray, err := New(d, step)
	if err != nil {
		return nil, err
	}
	defer stepArray.Finalize()
	startArray, err := New(d, start)
	if err != nil {
		return nil, err
	}
	defer startArray.Finalize()
	return Fma(counter, stepArray, startArray)
}
