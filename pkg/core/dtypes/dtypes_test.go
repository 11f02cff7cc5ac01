// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestMapOfNames(t *testing.T) {
	if MapOfNames["Float16"] != Float16 {
		t.Fatalf("expected MapOfNames[\"Float16\"] to be Float16, got %v", MapOfNames["Float16"])
	}
	if MapOfNames["float16"] != Float16 {
		t.Fatalf("expected MapOfNames[\"float16\"] to be Float16, got %v", MapOfNames["float16"])
	}
	if MapOfNames["u32"] != Uint32 {
		t.Fatalf("expected MapOfNames[\"u32\"] to be Uint32, got %v", MapOfNames["u32"])
	}
	assert.Equal(t, "Float32", Float32.String())
	assert.Equal(t, "DType(99)", DType(99).String())
}

func TestGoTypes(t *testing.T) {
	assert.Equal(t, Float16, FromGenericsType[float16.Float16]())
	assert.Equal(t, Uint32, FromAny(uint32(3)))
	assert.Equal(t, Pointer, FromAny(uintptr(3)))
	assert.Equal(t, InvalidDType, FromAny("3"))
	assert.Equal(t, InvalidDType, FromAny(nil))
	assert.Equal(t, reflect.TypeOf(float32(0)), Float32.GoType())
	assert.Equal(t, 2, Float16.Size())
	assert.True(t, Int8.IsArithmetic())
	assert.False(t, Bool.IsArithmetic())
	assert.False(t, Pointer.IsArithmetic())
	assert.Equal(t, []uint32{0, 0, 0}, Uint32.MakeSlice(3))

	type celsius float32
	assert.Equal(t, Float32, FromAny(celsius(3)))
	require.Panics(t, func() { InvalidDType.GoType() })
	require.Panics(t, func() { DType(99).GoType() })
}

func TestConvert(t *testing.T) {
	v, err := Convert(Float32, 3)
	require.NoError(t, err)
	assert.Equal(t, float32(3), v)

	v, err = Convert(Int32, 2.7)
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)

	v, err = Convert(Int32, -2.7)
	require.NoError(t, err)
	assert.Equal(t, int32(-2), v)

	v, err = Convert(Bool, 2)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Convert(Float16, 0.5)
	require.NoError(t, err)
	assert.Equal(t, float16.Fromfloat32(0.5), v)

	v, err = Convert(Uint8, true)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), v)

	_, err = Convert(Uint32, -1)
	require.Error(t, err)

	_, err = Convert(Int8, 300)
	require.Error(t, err)

	_, err = Convert(Float32, "x")
	require.ErrorIs(t, err, ErrNotScalar)
}

func TestConvertStrict(t *testing.T) {
	_, err := ConvertStrict(Int32, 2.5)
	require.Error(t, err)

	_, err = ConvertStrict(Bool, 1)
	require.Error(t, err)

	v, err := ConvertStrict(Float64, int64(-4))
	require.NoError(t, err)
	assert.Equal(t, -4.0, v)

	v, err = ConvertStrict(Int64, uint16(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}

func TestSliceHelpers(t *testing.T) {
	flat := Float32.MakeSlice(2)
	SliceSet(flat, 1, float32(5))
	assert.Equal(t, float32(5), SliceGet(flat, 1))
	assert.Equal(t, 2, SliceLen(flat))
	assert.Equal(t, Float32, SliceDType(flat))
	clone := SliceClone(flat).([]float32)
	clone[0] = 1
	assert.Equal(t, float32(0), flat.([]float32)[0])
	assert.Equal(t, InvalidDType, SliceDType(3))
}
