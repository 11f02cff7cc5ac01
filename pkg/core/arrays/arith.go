// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package arrays

import (
	"github.com/gomlx/jitarray/pkg/core/dtypes"
	"github.com/gomlx/jitarray/pkg/core/shapes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Fma returns a*b + c computed element-wise on leaf arrays of the same type. Operands of size 1 are
// broadcast to the size of the others.
func Fma(a, b, c *Array) (*Array, error) {
	result, err := arith("Fma", a, b, c)
	return result, errors.WithMessage(err, "arrays.Fma()")
}

// Add returns a + b computed element-wise, with the same rules as Fma.
func Add(a, b *Array) (*Array, error) {
	result, err := arith("Add", a, b, nil)
	return result, errors.WithMessage(err, "arrays.Add()")
}

// AddScalar returns a + value, with value converted to the type of a.
func AddScalar(a *Array, value any) (*Array, error) {
	b, err := New(a.desc, value)
	if err != nil {
		return nil, errors.WithMessage(err, "arrays.AddScalar()")
	}
	defer b.Finalize()
	return Add(a, b)
}

func arith(op string, a, b, c *Array) (*Array, error) {
	d := a.desc
	operands := []*Array{a, b}
	if c != nil {
		operands = append(operands, c)
	}
	size := 1
	for _, x := range operands {
		if x.desc != d {
			return nil, Errorf(TypeIncompatible, "operands of different types %s and %s", d.Name, x.desc.Name)
		}
		if !x.ready {
			return nil, Errorf(ItemAccessFailure, "operand of type %s is not initialized", d.Name)
		}
		if n := x.Len(); n != 1 {
			if size != 1 && n != size {
				return nil, Errorf(ShapeMismatch, "operands have incompatible sizes %d and %d", size, n)
			}
			size = n
		}
	}
	if !d.IsLeaf() || d.IsClass || !d.DType.IsArithmetic() {
		return nil, Errorf(UnsupportedDtype, "%s doesn't support arithmetic", d.Name)
	}

	result := alloc(d)
	if d.IsJIT() {
		if a.index == 0 || b.index == 0 || (c != nil && c.index == 0) {
			// Some operand is empty.
			result.ready = true
			return result, nil
		}
		result.engine = a.engine
		var err error
		if c != nil {
			result.index, err = a.engine.Fma(a.index, b.index, c.index)
		} else {
			result.index, err = a.engine.Add(a.index, b.index)
		}
		if err != nil {
			return nil, err
		}
		result.ready = true
		return result, nil
	}

	var z any
	if c != nil {
		z = c.host
	}
	data, err := hostArith(a.host, b.host, z, size)
	if err != nil {
		return nil, err
	}
	if d.Shape[0] != shapes.Dynamic && size != d.Shape[0] {
		return nil, Errorf(ShapeMismatch, "result of size %d doesn't fit %s", size, d.Name)
	}
	result.host = data
	result.ready = true
	return result, nil
}

// hostArith computes x*y+z, or x+y if z is nil, on flat slices of the same Go type.
func hostArith(x, y, z any, size int) (any, error) {
	switch xs := x.(type) {
	case []float16.Float16:
		toF32 := func(s any) []float32 {
			if s == nil {
				return nil
			}
			f16 := s.([]float16.Float16)
			f32 := make([]float32, len(f16))
			for ii, v := range f16 {
				f32[ii] = v.Float32()
			}
			return f32
		}
		r := sliceArith(toF32(xs), toF32(y), toF32(z), size)
		out := make([]float16.Float16, size)
		for ii, v := range r {
			out[ii] = float16.Fromfloat32(v)
		}
		return out, nil
	case []float32:
		return sliceArith(xs, y.([]float32), asSlice[float32](z), size), nil
	case []float64:
		return sliceArith(xs, y.([]float64), asSlice[float64](z), size), nil
	case []int8:
		return sliceArith(xs, y.([]int8), asSlice[int8](z), size), nil
	case []int16:
		return sliceArith(xs, y.([]int16), asSlice[int16](z), size), nil
	case []int32:
		return sliceArith(xs, y.([]int32), asSlice[int32](z), size), nil
	case []int64:
		return sliceArith(xs, y.([]int64), asSlice[int64](z), size), nil
	case []uint8:
		return sliceArith(xs, y.([]uint8), asSlice[uint8](z), size), nil
	case []uint16:
		return sliceArith(xs, y.([]uint16), asSlice[uint16](z), size), nil
	case []uint32:
		return sliceArith(xs, y.([]uint32), asSlice[uint32](z), size), nil
	case []uint64:
		return sliceArith(xs, y.([]uint64), asSlice[uint64](z), size), nil
	}
	return nil, Errorf(UnsupportedDtype, "arithmetic not supported for %T", x)
}

func asSlice[T dtypes.Number](s any) []T {
	if s == nil {
		return nil
	}
	return s.([]T)
}

func sliceArith[T dtypes.Number](x, y, z []T, size int) []T {
	at := func(s []T, ii int) T {
		if len(s) == 1 {
			return s[0]
		}
		return s[ii]
	}
	out := make([]T, size)
	for ii := range out {
		if z == nil {
			out[ii] = at(x, ii) + at(y, ii)
		} else {
			out[ii] = at(x, ii)*at(y, ii) + at(z, ii)
		}
	}
	return out
}
