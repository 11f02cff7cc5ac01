// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes includes the DType enum for the element kinds of jitarray arrays.
//
// It includes converters to/from Go native types (and reflect.Type), the conversion of dynamically typed
// host values (any) to a given kind, and some constraint interfaces to be used with generics
// (Supported, Number).
package dtypes

import (
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// panicf panics with the formatted description.
//
// It is only used for "bugs in the code" -- when parameters are invalid.
func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}

func init() {
	if strconv.IntSize != 32 && strconv.IntSize != 64 {
		panicf("cannot use int of %d bits with jitarray -- only platforms with int32 or int64 are supported", strconv.IntSize)
	}

	// Add a mapping to the lower-case version of dtypes.
	keys := slices.Collect(maps.Keys(MapOfNames))
	for _, key := range keys {
		lowerKey := strings.ToLower(key)
		if lowerKey == key {
			continue
		}
		if _, found := MapOfNames[lowerKey]; found {
			continue
		}
		MapOfNames[lowerKey] = MapOfNames[key]
	}
}

// FromGenericsType returns the DType enum for the given type that this package knows about.
func FromGenericsType[T Supported]() DType {
	var t T
	return FromGoType(reflect.TypeOf(t))
}

// kindToDType maps the reflect.Kind of the portable Go types to their DType. int and uint depend on the
// platform and are handled separately.
var kindToDType = map[reflect.Kind]DType{
	reflect.Bool:    Bool,
	reflect.Int8:    Int8,
	reflect.Int16:   Int16,
	reflect.Int32:   Int32,
	reflect.Int64:   Int64,
	reflect.Uint8:   Uint8,
	reflect.Uint16:  Uint16,
	reflect.Uint32:  Uint32,
	reflect.Uint64:  Uint64,
	reflect.Uintptr: Pointer,
	reflect.Float32: Float32,
	reflect.Float64: Float64,
}

// FromGoType returns the DType for the given "reflect.Type".
// It returns InvalidDType for unsupported types.
//
// Named types (e.g. `type Celsius float32`) map to the DType of their underlying kind.
func FromGoType(t reflect.Type) DType {
	switch {
	case t == nil:
		return InvalidDType
	case t == float16Type:
		return Float16
	case t.Kind() == reflect.Int:
		if strconv.IntSize == 32 {
			return Int32
		}
		return Int64
	case t.Kind() == reflect.Uint:
		if strconv.IntSize == 32 {
			return Uint32
		}
		return Uint64
	}
	if dtype, found := kindToDType[t.Kind()]; found {
		return dtype
	}
	return InvalidDType
}

// FromAny introspects the underlying type of any and returns the corresponding DType.
// Non-scalar types, or unsupported types return an InvalidType.
func FromAny(value any) DType {
	return FromGoType(reflect.TypeOf(value))
}

// Size returns the number of bytes for the given DType.
func (dtype DType) Size() int {
	return int(dtype.GoType().Size())
}

// Bits returns the number of bits for the given DType.
func (dtype DType) Bits() int {
	return dtype.Size() * 8
}

// Memory returns the number of bytes for the given DType.
// It's an alias to Size, converted to uintptr.
func (dtype DType) Memory() uintptr {
	return uintptr(dtype.Size())
}

var float16Type = reflect.TypeFor[float16.Float16]()

// goTypes is indexed by DType.
var goTypes = [...]reflect.Type{
	Bool:    reflect.TypeFor[bool](),
	Int8:    reflect.TypeFor[int8](),
	Int16:   reflect.TypeFor[int16](),
	Int32:   reflect.TypeFor[int32](),
	Int64:   reflect.TypeFor[int64](),
	Uint8:   reflect.TypeFor[uint8](),
	Uint16:  reflect.TypeFor[uint16](),
	Uint32:  reflect.TypeFor[uint32](),
	Uint64:  reflect.TypeFor[uint64](),
	Float16: float16Type,
	Float32: reflect.TypeFor[float32](),
	Float64: reflect.TypeFor[float64](),
	Pointer: reflect.TypeFor[uintptr](),
}

// GoType returns the Go `reflect.Type` corresponding to the DType.
//
// It panics for InvalidDType or values beyond the defined ones: those are bugs in the code.
func (dtype DType) GoType() reflect.Type {
	if dtype < 0 || int(dtype) >= len(goTypes) || goTypes[dtype] == nil {
		panicf("unknown dtype %q (%d) in DType.GoType", dtype, dtype)
	}
	return goTypes[dtype]
}

// GoStr converts dtype to the corresponding Go type and convert that to string.
func (dtype DType) GoStr() string {
	return dtype.GoType().Name()
}

// IsFloat returns whether dtype is a supported float.
func (dtype DType) IsFloat() bool {
	return dtype == Float32 || dtype == Float64 || dtype == Float16
}

// IsInt returns whether dtype is a supported integer type.
func (dtype DType) IsInt() bool {
	return dtype == Int64 || dtype == Int32 || dtype == Int16 || dtype == Int8 ||
		dtype == Uint8 || dtype == Uint16 || dtype == Uint32 || dtype == Uint64
}

// IsUnsigned returns whether dtype is one of the unsigned integer types.
func (dtype DType) IsUnsigned() bool {
	return dtype == Uint8 || dtype == Uint16 || dtype == Uint32 || dtype == Uint64
}

// IsArithmetic returns whether dtype supports arithmetic: all integer and float kinds. Bool and Pointer
// are not arithmetic.
func (dtype DType) IsArithmetic() bool {
	return dtype.IsInt() || dtype.IsFloat()
}

// IsSupported returns whether dtype is a valid element kind.
func (dtype DType) IsSupported() bool {
	_, found := dtypeNames[dtype]
	return found && dtype != InvalidDType
}

// MakeSlice returns a zero-filled `[]T` of the given length, where T is the Go type for dtype.
// It's returned as `any`.
func (dtype DType) MakeSlice(length int) any {
	return reflect.MakeSlice(reflect.SliceOf(dtype.GoType()), length, length).Interface()
}

// Zero returns the zero value of the Go type for dtype.
func (dtype DType) Zero() any {
	return reflect.Zero(dtype.GoType()).Interface()
}

// Supported lists the Go types that jitarray knows how to convert -- there are more types that can be
// manually converted.
// Used as traits for generics.
//
// Notice Go's `int` type is not portable, since it may translate to dtypes Int32 or Int64 depending
// on the platform.
type Supported interface {
	bool | float16.Float16 | float32 | float64 | int | int8 | int16 | int32 | int64 |
		uint8 | uint16 | uint32 | uint64 | uintptr
}

// Number represents the Go numeric types corresponding to arithmetic DType's.
// It doesn't include float16.Float16 because it is not a native number type.
type Number interface {
	float32 | float64 | int | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64
}
