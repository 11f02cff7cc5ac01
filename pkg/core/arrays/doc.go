// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package arrays implements the array types of jitarray and their construction.
//
// Each array type is described by a Descriptor: its shape (with shapes.Dynamic for runtime sized
// axes), element kind, backend, structural flags and a table of Capabilities. Descriptors are
// registered in a Registry, and the builtin types (Float, UInt, Array3f, Matrix2f, TensorXf, ...)
// are registered in the DefaultRegistry.
//
// New is the single entry point to build an array of any type from host values: Go scalars,
// slices, Sequence and Iterable values, and other arrays. It picks the cheapest strategy the
// capabilities of the target type allow: a cast, a raw buffer copy, a constant broadcast, a
// sequence import, or element by element assignment.
//
// NewTensor builds tensors, and the generators (Full, Zeros, Ones, Empty, Arange, Linspace) build
// arrays, structs (StructType) and scalars of a given type.
//
// Example:
//
//	v := must.M1(arrays.New(arrays.Array3f, 1, 2, 3))
//	x := must.M1(arrays.Linspace(arrays.Float, 0, 1, 5, true))
//	defer x.Finalize()
//	t := must.M1(arrays.NewTensor(arrays.TensorXf, [][]float32{{1, 2}, {3, 4}}, nil))
//	fmt.Println(v, x, t.TensorShape())
//
// Errors are of type *Error, and can be tested with errors.Is against ErrShapeMismatch,
// ErrUnsupportedDtype, etc.
package arrays
