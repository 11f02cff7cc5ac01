// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package arrays

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/jitarray/pkg/core/dtypes"
)

// asArray takes the result of a generator, which must be an *Array.
func asArray(result any, err error) *Array {
	return must.M1(result, err).(*Array)
}

func TestFull(t *testing.T) {
	z := asArray(Zeros(Float, 3))
	defer z.Finalize()
	requireData(t, []float32{0, 0, 0}, z)

	requireData(t, []float32{1, 1}, asArray(Ones(ArrayXf, 2)))

	e := asArray(Empty(Float, 4))
	defer e.Finalize()
	assert.Equal(t, 4, e.Len())

	b := asArray(Full(Bool, 1, 3))
	defer b.Finalize()
	requireData(t, []bool{true, true, true}, b)

	// Fixed-size types ignore the size.
	requireData(t, []float32{2, 2, 2}, asArray(Full(Array3f, 2, 10)))
	_, err := FullShape(Array3f, 1, []int{4})
	require.ErrorIs(t, err, ErrShapeMismatch)
	assert.Contains(t, err.Error(), "the provided 'shape' and 'dtype' parameters are incompatible")

	_, err = FullShape(Float, 1, []int{2, 2})
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Full(Float, "one", 2)
	require.ErrorIs(t, err, ErrBroadcastFailure)

	// Nested JIT arrays: the size applies to the last (dynamic) axis.
	j := asArray(Full(Array3fJ, 1, 5))
	defer j.Finalize()
	assert.Equal(t, []int{3, 5}, j.Shape())
	js := asArray(FullShape(Array3fJ, 2, []int{3, 2}))
	defer js.Finalize()
	assert.Equal(t, "[[2, 2], [2, 2], [2, 2]]", js.String())

	m := asArray(Ones(Matrix2f, 0))
	assert.Equal(t, "[[1, 1], [1, 1]]", m.String())

	// Scalars.
	assert.Equal(t, float32(2), must.M1(Full(Scalar(dtypes.Float32), 2, 0)))
	assert.Equal(t, int32(0), must.M1(Empty(Scalar(dtypes.Int32), 3)))
}

func TestFullTensor(t *testing.T) {
	x := asArray(Ones(TensorXf, 4))
	defer x.Finalize()
	assert.Equal(t, []int{4}, x.Shape())
	assert.Equal(t, []float32{1, 1, 1, 1}, must.M1(x.Ravel()))

	y := asArray(FullShape(TensorXf, 2, []int{2, 3}))
	defer y.Finalize()
	assert.Equal(t, []int{2, 3}, y.Shape())
	assert.Equal(t, []float32{2, 2, 2, 2, 2, 2}, must.M1(y.Ravel()))

	_, err := ZerosShape(TensorXf, []int{2, -1})
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestFullStruct(t *testing.T) {
	hit := &StructType{Name: "Hit", Fields: []Field{{"t", Float}, {"valid", Bool}}}
	ray := &StructType{
		Name: "Ray",
		Fields: []Field{
			{"o", Array3fJ},
			{"d", Array3fJ},
			{"maxt", Float},
			{"id", Scalar(dtypes.Int32)},
			{"hit", hit},
		},
	}
	assert.Equal(t, 4, ray.FieldIndex("hit"))
	assert.Equal(t, -1, ray.FieldIndex("missing"))

	result := must.M1(Zeros(ray, 4))
	s, ok := result.(*Struct)
	require.True(t, ok)
	defer s.Finalize()

	o := must.M1(s.Get("o")).(*Array)
	assert.Equal(t, []int{3, 4}, o.Shape())
	maxt := must.M1(s.Get("maxt")).(*Array)
	requireData(t, []float32{0, 0, 0, 0}, maxt)
	assert.Equal(t, int32(0), must.M1(s.Get("id")))

	h := must.M1(s.Get("hit")).(*Struct)
	valid := must.M1(h.Get("valid")).(*Array)
	requireData(t, []bool{false, false, false, false}, valid)

	require.NoError(t, s.Set("id", int32(7)))
	assert.Equal(t, int32(7), must.M1(s.Get("id")))
	_, err := s.Get("missing")
	require.Error(t, err)
	assert.Contains(t, s.String(), "id=7")

	_, err = NewStruct(hit, 1)
	require.Error(t, err)

	// Errors name the field.
	_, err = Full(ray, "x", 2)
	require.ErrorIs(t, err, ErrBroadcastFailure)
	assert.Contains(t, err.Error(), "field Ray.o")
}

func TestArange(t *testing.T) {
	a := must.M1(Arange(Int, 0, 10, 1))
	defer a.Finalize()
	requireData(t, []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, a)

	b := must.M1(Arange(Int, 10, 0, -1))
	defer b.Finalize()
	requireData(t, []int32{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, b)

	c := must.M1(Arange(Float64, 0, 5, 2))
	defer c.Finalize()
	requireData(t, []float64{0, 2, 4}, c)

	// Unsigned kinds with negative steps.
	u := must.M1(Arange(UInt, 10, 0, -2))
	defer u.Finalize()
	requireData(t, []uint32{10, 8, 6, 4, 2}, u)

	us := must.M1(ArangeSize(UInt, 4))
	defer us.Finalize()
	requireData(t, []uint32{0, 1, 2, 3}, us)

	// Host arrays.
	requireData(t, []float32{0, 1, 2}, must.M1(Arange(ArrayXf, 0, 3, 1)))
	requireData(t, []int32{1, 2}, must.M1(Arange(ArrayXi, 1, 3, 1)))

	empty := must.M1(Arange(Float, 0, 0, 1))
	assert.Equal(t, 0, empty.Len())

	_, err := Arange(Int, 0, 10, -1)
	require.ErrorIs(t, err, ErrShapeMismatch)
	assert.Contains(t, err.Error(), "arrays.Arange(Int)")
	_, err = Arange(Int, 0, 10, 0)
	require.ErrorIs(t, err, ErrShapeMismatch)
	_, err = Arange(Array3f, 0, 3, 1)
	require.ErrorIs(t, err, ErrUnsupportedDtype)
	_, err = Arange(Bool, 0, 3, 1)
	require.ErrorIs(t, err, ErrUnsupportedDtype)

	// The counter is a UIntC.
	fc := must.M1(Arange(FloatC, 1, 4, 1))
	defer fc.Finalize()
	requireData(t, []float32{1, 2, 3}, fc)
}

func TestLinspace(t *testing.T) {
	a := must.M1(Linspace(Float, 0, 1, 5, true))
	defer a.Finalize()
	assert.InDeltaSlice(t, []float64{0, 0.25, 0.5, 0.75, 1}, must.M1(a.Data()), 1e-6)

	b := must.M1(Linspace(Float, 0, 1, 5, false))
	defer b.Finalize()
	assert.InDeltaSlice(t, []float64{0, 0.2, 0.4, 0.6, 0.8}, must.M1(b.Data()), 1e-6)

	c := must.M1(Linspace(Float64, 2, 3, 1, true))
	defer c.Finalize()
	requireData(t, []float64{2}, c)

	h := must.M1(Linspace(ArrayXf, -1, 1, 3, true))
	assert.InDeltaSlice(t, []float64{-1, 0, 1}, must.M1(h.Data()), 1e-6)

	assert.Equal(t, 0, must.M1(Linspace(Float, 0, 1, 0, true)).Len())

	_, err := Linspace(Int, 0, 1, 3, true)
	require.ErrorIs(t, err, ErrUnsupportedDtype)
	_, err = Linspace(Float, 0, 1, -1, true)
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestArith(t *testing.T) {
	x := must.M1(New(ArrayXi, 1, 2, 3))
	two := must.M1(New(ArrayXi, 2))
	requireData(t, []int32{3, 5, 7}, must.M1(Fma(x, two, must.M1(New(ArrayXi, 1)))))
	requireData(t, []int32{11, 12, 13}, must.M1(AddScalar(x, 10)))

	f := must.M1(New(Float, 1, 2))
	defer f.Finalize()
	g := must.M1(Add(f, f))
	defer g.Finalize()
	requireData(t, []float32{2, 4}, g)

	h := must.M1(New(ArrayXf, 0.5))
	half := must.M1(New(Float16, 0.5))
	defer half.Finalize()
	_, err := Add(f, half)
	require.ErrorIs(t, err, ErrTypeIncompatible)
	_, err = Add(h, must.M1(New(ArrayXf, 1, 2, 3)))
	require.NoError(t, err)
	_, err = Add(must.M1(New(ArrayXf, 1, 2)), must.M1(New(ArrayXf, 1, 2, 3)))
	require.ErrorIs(t, err, ErrShapeMismatch)
	_, err = Add(must.M1(New(Array3f, 1)), must.M1(New(Array3f, 2)))
	require.NoError(t, err)
	_, err = Add(must.M1(New(ArrayXb, true)), must.M1(New(ArrayXb, false)))
	require.ErrorIs(t, err, ErrUnsupportedDtype)
}
