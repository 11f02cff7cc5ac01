// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape, the static shape of an array type: an element kind (DType) and the
// extent of each axis, where an axis may be Dynamic (sized at runtime).
//
// It also includes helpers for tensor shapes, which are plain `[]int` with no dynamic axes: Product,
// Strides and FlatIndex.
package shapes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/jitarray/pkg/core/dtypes"
)

// Dynamic marks an axis whose extent is only known at runtime.
const Dynamic = -1

// MaxDims is the maximum number of axes of an array type.
const MaxDims = 4

// Shape represents the static shape of an array type.
//
// Use Make to create a new shape.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int
}

// Make returns a Shape structure filled with the values given.
//
// Dimensions must be non-negative or Dynamic, and there can be at most MaxDims of them.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	s := Shape{Dimensions: slices.Clone(dimensions), DType: dtype}
	if len(dimensions) > MaxDims {
		exceptions.Panicf("shapes.Make(%s): at most %d axes are supported", s, MaxDims)
	}
	for _, dim := range dimensions {
		if dim < 0 && dim != Dynamic {
			exceptions.Panicf("shapes.Make(%s): cannot create a shape with an axis with negative dimension", s)
		}
	}
	return s
}

// Rank of the shape, that is, the number of axes.
func (s Shape) Rank() int { return len(s.Dimensions) }

// Dim returns the dimension of the given axis. axis can take negative numbers, in which
// case it counts as starting from the end -- so axis=-1 refers to the last axis.
// Like with a slice indexing, it panics for an out-of-bound axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjustedAxis]
}

// IsDynamic returns whether the given axis is Dynamic.
func (s Shape) IsDynamic(axis int) bool {
	return s.Dim(axis) == Dynamic
}

// HasDynamic returns whether any axis is Dynamic.
func (s Shape) HasDynamic() bool {
	return slices.Contains(s.Dimensions, Dynamic)
}

// String implements stringer, pretty-prints the shape. Dynamic axes are printed as "*".
func (s Shape) String() string {
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	return fmt.Sprintf("(%s)%s", s.DType, DimsString(s.Dimensions))
}

// DimsString pretty-prints the dimensions, with Dynamic axes as "*".
func DimsString(dims []int) string {
	parts := make([]string, len(dims))
	for ii, dim := range dims {
		if dim == Dynamic {
			parts[ii] = "*"
		} else {
			parts[ii] = fmt.Sprintf("%d", dim)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Size returns the number of elements of DType needed for this shape. It's the product of all dimensions.
// It panics if any axis is Dynamic.
func (s Shape) Size() int {
	if s.HasDynamic() {
		exceptions.Panicf("Shape.Size() undefined for shape %s with dynamic axes", s)
	}
	return Product(s.Dimensions)
}

// Memory returns the memory used to store an array of the given shape, the same as the size in bytes.
func (s Shape) Memory() uintptr {
	return s.DType.Memory() * uintptr(s.Size())
}

// Product returns the product of the dimensions. The product of an empty list is 1.
func Product(dims []int) int {
	size := 1
	for _, d := range dims {
		size *= d
	}
	return size
}
