// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import "github.com/pkg/errors"

// Strides returns the strides for each axis of a tensor shape, assuming a "row-major" layout
// in memory.
//
// Notice the strides are **not in bytes**, but in indices.
func Strides(dims []int) (strides []int) {
	rank := len(dims)
	if rank == 0 {
		return
	}
	strides = make([]int, rank)
	currentStride := 1
	for axis := rank - 1; axis >= 0; axis-- {
		strides[axis] = currentStride
		currentStride *= dims[axis]
	}
	return
}

// FlatIndex returns the row-major flat index of the given per-axis indices, or an error if the number
// of indices doesn't match the rank or some index is out of bounds.
func FlatIndex(dims []int, indices ...int) (int, error) {
	if len(indices) != len(dims) {
		return 0, errors.Errorf("got %d indices for a shape of rank %d", len(indices), len(dims))
	}
	flat := 0
	for axis, stride := range Strides(dims) {
		idx := indices[axis]
		if idx < 0 || idx >= dims[axis] {
			return 0, errors.Errorf("index %d out of bounds for axis %d with dimension %d", idx, axis, dims[axis])
		}
		flat += idx * stride
	}
	return flat, nil
}
