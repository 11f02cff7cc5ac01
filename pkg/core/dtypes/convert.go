// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import (
	"math"
	"reflect"

	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// ErrNotScalar is returned by Convert and ConvertStrict when the value is not a Go scalar.
var ErrNotScalar = errors.New("value is not a scalar")

// scalarClass is the normalized representation of a Go scalar used during conversion.
type scalarClass int

const (
	classInvalid scalarClass = iota
	classBool
	classSigned
	classUnsigned
	classFloat
)

type scalar struct {
	class scalarClass
	b     bool
	i     int64
	u     uint64
	f     float64
}

func normalize(value any) scalar {
	switch v := value.(type) {
	case bool:
		return scalar{class: classBool, b: v}
	case int:
		return scalar{class: classSigned, i: int64(v)}
	case int8:
		return scalar{class: classSigned, i: int64(v)}
	case int16:
		return scalar{class: classSigned, i: int64(v)}
	case int32:
		return scalar{class: classSigned, i: int64(v)}
	case int64:
		return scalar{class: classSigned, i: v}
	case uint:
		return scalar{class: classUnsigned, u: uint64(v)}
	case uint8:
		return scalar{class: classUnsigned, u: uint64(v)}
	case uint16:
		return scalar{class: classUnsigned, u: uint64(v)}
	case uint32:
		return scalar{class: classUnsigned, u: uint64(v)}
	case uint64:
		return scalar{class: classUnsigned, u: v}
	case uintptr:
		return scalar{class: classUnsigned, u: uint64(v)}
	case float16.Float16:
		return scalar{class: classFloat, f: float64(v.Float32())}
	case float32:
		return scalar{class: classFloat, f: float64(v)}
	case float64:
		return scalar{class: classFloat, f: v}
	}
	return scalar{}
}

// IsScalar returns whether value is a Go scalar that Convert knows about.
func IsScalar(value any) bool {
	return normalize(value).class != classInvalid
}

// Convert converts a dynamically typed Go scalar to the Go type of dtype, with the permissive semantics
// of "calling the type" on a value: floats are truncated when converted to integers and any numeric
// value converts to Bool by comparing it to zero.
//
// It fails for non-scalar values (wrapping ErrNotScalar), for non-finite floats converted to integers, and
// for values out of the range of the target integer type.
func Convert(dtype DType, value any) (any, error) {
	return convert(dtype, value, false)
}

// ConvertStrict converts a dynamically typed Go scalar to the Go type of dtype, without lossy
// conversions: only booleans convert to Bool, and floats don't convert to integers.
//
// It's used when ingesting whole sequences into a raw buffer.
func ConvertStrict(dtype DType, value any) (any, error) {
	return convert(dtype, value, true)
}

func convert(dtype DType, value any, strict bool) (any, error) {
	s := normalize(value)
	if s.class == classInvalid {
		return nil, errors.WithMessagef(ErrNotScalar, "cannot convert %T to %s", value, dtype)
	}
	switch {
	case dtype == Bool:
		if s.class == classBool {
			return s.b, nil
		}
		if strict {
			return nil, errors.Errorf("cannot convert %T(%v) to %s", value, value, dtype)
		}
		switch s.class {
		case classSigned:
			return s.i != 0, nil
		case classUnsigned:
			return s.u != 0, nil
		default:
			return s.f != 0, nil
		}

	case dtype.IsFloat():
		var f float64
		switch s.class {
		case classBool:
			if s.b {
				f = 1
			}
		case classSigned:
			f = float64(s.i)
		case classUnsigned:
			f = float64(s.u)
		default:
			f = s.f
		}
		switch dtype {
		case Float16:
			return float16.Fromfloat32(float32(f)), nil
		case Float32:
			return float32(f), nil
		default:
			return f, nil
		}

	case dtype.IsInt() || dtype == Pointer:
		switch s.class {
		case classBool:
			var u uint64
			if s.b {
				u = 1
			}
			return fromUnsigned(dtype, u, value)
		case classSigned:
			if s.i < 0 {
				return fromSigned(dtype, s.i, value)
			}
			return fromUnsigned(dtype, uint64(s.i), value)
		case classUnsigned:
			return fromUnsigned(dtype, s.u, value)
		default:
			if strict {
				return nil, errors.Errorf("cannot convert float %v to %s without loss", value, dtype)
			}
			if math.IsNaN(s.f) || math.IsInf(s.f, 0) {
				return nil, errors.Errorf("cannot convert %v to %s", value, dtype)
			}
			t := math.Trunc(s.f)
			if t < 0 {
				if t < math.MinInt64 {
					return nil, errors.Errorf("value %v out of range for %s", value, dtype)
				}
				return fromSigned(dtype, int64(t), value)
			}
			if t >= math.MaxUint64 {
				return nil, errors.Errorf("value %v out of range for %s", value, dtype)
			}
			return fromUnsigned(dtype, uint64(t), value)
		}
	}
	return nil, errors.Errorf("unsupported dtype %s for conversion", dtype)
}

func fromSigned(dtype DType, v int64, original any) (any, error) {
	switch dtype {
	case Int8:
		return checkedSigned[int8](v, math.MinInt8, math.MaxInt8, dtype, original)
	case Int16:
		return checkedSigned[int16](v, math.MinInt16, math.MaxInt16, dtype, original)
	case Int32:
		return checkedSigned[int32](v, math.MinInt32, math.MaxInt32, dtype, original)
	case Int64:
		return v, nil
	}
	return nil, errors.Errorf("negative value %v cannot be converted to %s", original, dtype)
}

func fromUnsigned(dtype DType, v uint64, original any) (any, error) {
	switch dtype {
	case Int8:
		return checkedUnsigned[int8](v, math.MaxInt8, dtype, original)
	case Int16:
		return checkedUnsigned[int16](v, math.MaxInt16, dtype, original)
	case Int32:
		return checkedUnsigned[int32](v, math.MaxInt32, dtype, original)
	case Int64:
		return checkedUnsigned[int64](v, math.MaxInt64, dtype, original)
	case Uint8:
		return checkedUnsigned[uint8](v, math.MaxUint8, dtype, original)
	case Uint16:
		return checkedUnsigned[uint16](v, math.MaxUint16, dtype, original)
	case Uint32:
		return checkedUnsigned[uint32](v, math.MaxUint32, dtype, original)
	case Uint64:
		return v, nil
	case Pointer:
		return uintptr(v), nil
	}
	return nil, errors.Errorf("unsupported dtype %s for conversion", dtype)
}

func checkedSigned[T constraints.Signed](v, lo, hi int64, dtype DType, original any) (any, error) {
	if v < lo || v > hi {
		return nil, errors.Errorf("value %v out of range for %s", original, dtype)
	}
	return T(v), nil
}

func checkedUnsigned[T constraints.Integer](v, hi uint64, dtype DType, original any) (any, error) {
	if v > hi {
		return nil, errors.Errorf("value %v out of range for %s", original, dtype)
	}
	return T(v), nil
}

// ToFloat64 returns the value of a Go scalar as a float64. Booleans convert to 0 or 1.
func ToFloat64(value any) (float64, bool) {
	s := normalize(value)
	switch s.class {
	case classBool:
		if s.b {
			return 1, true
		}
		return 0, true
	case classSigned:
		return float64(s.i), true
	case classUnsigned:
		return float64(s.u), true
	case classFloat:
		return s.f, true
	}
	return 0, false
}

// ToInt returns the value of a Go integer scalar as an int. Floats and booleans are not accepted.
func ToInt(value any) (int, bool) {
	s := normalize(value)
	switch s.class {
	case classSigned:
		return int(s.i), true
	case classUnsigned:
		if s.u > math.MaxInt {
			return 0, false
		}
		return int(s.u), true
	}
	return 0, false
}

// SliceGet returns the element i of a flat slice `[]T` given as any.
func SliceGet(flat any, i int) any {
	return reflect.ValueOf(flat).Index(i).Interface()
}

// SliceSet sets the element i of a flat slice `[]T` given as any. The value must already have type T.
func SliceSet(flat any, i int, value any) {
	reflect.ValueOf(flat).Index(i).Set(reflect.ValueOf(value))
}

// SliceLen returns the length of a slice given as any.
func SliceLen(flat any) int {
	return reflect.ValueOf(flat).Len()
}

// SliceClone returns a shallow copy of a slice given as any.
func SliceClone(flat any) any {
	v := reflect.ValueOf(flat)
	c := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
	reflect.Copy(c, v)
	return c.Interface()
}

// SliceDType returns the DType of the elements of a flat slice `[]T`, or InvalidDType if it's not a
// slice of a supported type.
func SliceDType(flat any) DType {
	t := reflect.TypeOf(flat)
	if t == nil || t.Kind() != reflect.Slice {
		return InvalidDType
	}
	return FromGoType(t.Elem())
}
