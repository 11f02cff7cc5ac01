// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import "strconv"

// DType is an enum that represents the element kind of an array or a scalar.
//
// The numbering of the numeric kinds follows the XLA/PJRT buffer types, so values can be exchanged
// with backends that use them. Pointer is an addition used by instance arrays.
type DType int32

const (
	// InvalidDType is the zero value, used when a kind is not known (or is not a scalar kind, like for
	// nested arrays).
	InvalidDType DType = 0

	// Bool represents two-state booleans.
	Bool DType = 1

	// Int8 is a signed integral value of 8 bits.
	Int8 DType = 2

	// Int16 is a signed integral value of 16 bits.
	Int16 DType = 3

	// Int32 is a signed integral value of 32 bits.
	Int32 DType = 4

	// Int64 is a signed integral value of 64 bits.
	Int64 DType = 5

	// Uint8 is an unsigned integral value of 8 bits.
	Uint8 DType = 6

	// Uint16 is an unsigned integral value of 16 bits.
	Uint16 DType = 7

	// Uint32 is an unsigned integral value of 32 bits. It is also the kind of counters (see InitCounter)
	// and of call indices.
	Uint32 DType = 8

	// Uint64 is an unsigned integral value of 64 bits.
	Uint64 DType = 9

	// Float16 is an IEEE half precision float, stored as github.com/x448/float16.Float16.
	Float16 DType = 10

	// Float32 is an IEEE single precision float.
	Float32 DType = 11

	// Float64 is an IEEE double precision float.
	Float64 DType = 12

	// Pointer is an opaque address, stored as uintptr.
	Pointer DType = 30
)

// Aliases, in the short form used by the JIT engine logs.
const (
	U32 = Uint32
	F16 = Float16
	F32 = Float32
	F64 = Float64
)

// MapOfNames to their dtypes. It includes also aliases to the various dtypes.
// It is later initialized to include the lower-case version of the names.
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"Bool":         Bool,
	"Int8":         Int8,
	"S8":           Int8,
	"Int16":        Int16,
	"S16":          Int16,
	"Int32":        Int32,
	"S32":          Int32,
	"Int64":        Int64,
	"S64":          Int64,
	"Uint8":        Uint8,
	"U8":           Uint8,
	"Uint16":       Uint16,
	"U16":          Uint16,
	"Uint32":       Uint32,
	"U32":          Uint32,
	"Uint64":       Uint64,
	"U64":          Uint64,
	"Float16":      Float16,
	"F16":          Float16,
	"Float32":      Float32,
	"F32":          Float32,
	"Float64":      Float64,
	"F64":          Float64,
	"Pointer":      Pointer,
}

var dtypeNames = map[DType]string{
	InvalidDType: "InvalidDType",
	Bool:         "Bool",
	Int8:         "Int8",
	Int16:        "Int16",
	Int32:        "Int32",
	Int64:        "Int64",
	Uint8:        "Uint8",
	Uint16:       "Uint16",
	Uint32:       "Uint32",
	Uint64:       "Uint64",
	Float16:      "Float16",
	Float32:      "Float32",
	Float64:      "Float64",
	Pointer:      "Pointer",
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if name, found := dtypeNames[dtype]; found {
		return name
	}
	return "DType(" + strconv.Itoa(int(dtype)) + ")"
}
