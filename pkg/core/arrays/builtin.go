// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package arrays

import (
	"reflect"

	"github.com/gomlx/jitarray/pkg/core/dtypes"
	"github.com/gomlx/jitarray/pkg/core/jit"
	"github.com/gomlx/jitarray/pkg/core/shapes"
)

// JITArray returns the descriptor of a dynamically sized 1D JIT array, to be registered.
func JITArray(name string, backend jit.Backend, dtype dtypes.DType) *Descriptor {
	return &Descriptor{
		Name:    name,
		Shape:   []int{shapes.Dynamic},
		DType:   dtype,
		Backend: backend,
		Value:   Scalar(dtype),
		Caps:    JITCaps(backend, dtype),
	}
}

// HostArray returns the descriptor of a 1D host array of the given size (possibly shapes.Dynamic),
// to be registered.
func HostArray(name string, dtype dtypes.DType, size int, flags Flags) *Descriptor {
	return &Descriptor{
		Name:    name,
		Shape:   []int{size},
		DType:   dtype,
		Backend: jit.None,
		Flags:   flags,
		Value:   Scalar(dtype),
		Caps:    HostCaps(dtype, size),
	}
}

// NestedArray returns the descriptor of a fixed-size array of size elements of type value, to be
// registered.
func NestedArray(name string, value *Descriptor, size int, flags Flags) *Descriptor {
	return &Descriptor{
		Name:    name,
		Shape:   append([]int{size}, value.Shape...),
		DType:   value.DType,
		Backend: value.Backend,
		Flags:   flags,
		Value:   value,
		Caps:    NestedCaps(size),
	}
}

// TensorOf returns the descriptor of a tensor whose elements are stored in a flat array of type
// flat, to be registered.
func TensorOf(name string, flat *Descriptor) *Descriptor {
	return &Descriptor{
		Name:    name,
		Shape:   []int{shapes.Dynamic},
		DType:   flat.DType,
		Backend: flat.Backend,
		Flags:   Flags{IsTensor: true},
		Value:   flat,
		Caps:    TensorCaps(),
	}
}

// ClassArray returns the descriptor of a class array whose instances are of type T (typically a
// pointer or an interface), registered in the given domain. It must be registered.
func ClassArray[T comparable](name, domain string, backend jit.Backend) *Descriptor {
	return &Descriptor{
		Name:         name,
		Shape:        []int{shapes.Dynamic},
		DType:        dtypes.Pointer,
		Backend:      backend,
		Flags:        Flags{IsClass: true},
		Value:        Scalar(dtypes.Pointer),
		Domain:       domain,
		InstanceType: reflect.TypeFor[T](),
		Caps:         ClassCaps(backend),
	}
}

// Builtin types, registered in the DefaultRegistry.
var (
	// JIT arrays of the LLVM backend.
	Bool    = Register(JITArray("Bool", jit.LLVM, dtypes.Bool))
	Float16 = Register(JITArray("Float16", jit.LLVM, dtypes.Float16))
	Float   = Register(JITArray("Float", jit.LLVM, dtypes.Float32))
	Float64 = Register(JITArray("Float64", jit.LLVM, dtypes.Float64))
	Int     = Register(JITArray("Int", jit.LLVM, dtypes.Int32))
	Int64   = Register(JITArray("Int64", jit.LLVM, dtypes.Int64))
	UInt    = Register(JITArray("UInt", jit.LLVM, dtypes.Uint32))
	UInt64  = Register(JITArray("UInt64", jit.LLVM, dtypes.Uint64))

	// JIT arrays of the CUDA backend.
	BoolC  = Register(JITArray("BoolC", jit.CUDA, dtypes.Bool))
	FloatC = Register(JITArray("FloatC", jit.CUDA, dtypes.Float32))
	IntC   = Register(JITArray("IntC", jit.CUDA, dtypes.Int32))
	UIntC  = Register(JITArray("UIntC", jit.CUDA, dtypes.Uint32))

	// Dynamically sized host arrays.
	ArrayXb = Register(HostArray("ArrayXb", dtypes.Bool, shapes.Dynamic, Flags{IsVector: true}))
	ArrayXf = Register(HostArray("ArrayXf", dtypes.Float32, shapes.Dynamic, Flags{IsVector: true}))
	ArrayXi = Register(HostArray("ArrayXi", dtypes.Int32, shapes.Dynamic, Flags{IsVector: true}))
	ArrayXu = Register(HostArray("ArrayXu", dtypes.Uint32, shapes.Dynamic, Flags{IsVector: true}))

	// Fixed-size host arrays.
	Array2f = Register(HostArray("Array2f", dtypes.Float32, 2, Flags{IsVector: true}))
	Array3f = Register(HostArray("Array3f", dtypes.Float32, 3, Flags{IsVector: true}))
	Array4f = Register(HostArray("Array4f", dtypes.Float32, 4, Flags{IsVector: true}))
	Array3i = Register(HostArray("Array3i", dtypes.Int32, 3, Flags{IsVector: true}))
	Array3u = Register(HostArray("Array3u", dtypes.Uint32, 3, Flags{IsVector: true}))

	Complex2f    = Register(HostArray("Complex2f", dtypes.Float32, 2, Flags{IsComplex: true}))
	Quaternion4f = Register(HostArray("Quaternion4f", dtypes.Float32, 4, Flags{IsQuaternion: true}))
	Matrix2f     = Register(NestedArray("Matrix2f", Array2f, 2, Flags{IsMatrix: true}))
	Matrix3f     = Register(NestedArray("Matrix3f", Array3f, 3, Flags{IsMatrix: true}))

	// Fixed-size arrays of JIT arrays.
	Array2fJ = Register(NestedArray("Array2fJ", Float, 2, Flags{IsVector: true}))
	Array3fJ = Register(NestedArray("Array3fJ", Float, 3, Flags{IsVector: true}))
	Array3uJ = Register(NestedArray("Array3uJ", UInt, 3, Flags{IsVector: true}))

	// Tensors.
	TensorXf  = Register(TensorOf("TensorXf", Float))
	TensorXi  = Register(TensorOf("TensorXi", Int))
	TensorXu  = Register(TensorOf("TensorXu", UInt))
	TensorXfH = Register(TensorOf("TensorXfH", ArrayXf))
)
