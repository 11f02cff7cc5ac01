// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/jitarray/pkg/core/dtypes"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	shape0 := Make(dtypes.Float64)
	require.Equal(t, 0, shape0.Rank())
	require.Equal(t, 1, shape0.Size())
	require.Equal(t, 8, int(shape0.Memory()))
	require.Equal(t, "(Float64)", shape0.String())

	shape1 := Make(dtypes.Float32, 3, Dynamic)
	require.Equal(t, 2, shape1.Rank())
	require.True(t, shape1.IsDynamic(-1))
	require.False(t, shape1.IsDynamic(0))
	require.True(t, shape1.HasDynamic())
	require.Equal(t, "(Float32)[3 *]", shape1.String())
	require.Panics(t, func() { _ = shape1.Size() })
	require.Panics(t, func() { _ = shape1.Dim(2) })
	require.Panics(t, func() { Make(dtypes.Float32, -2) })
	require.Panics(t, func() { Make(dtypes.Float32, 1, 1, 1, 1, 1) })

	shape2 := Make(dtypes.Int16, 2, 3)
	require.False(t, shape2.HasDynamic())
	require.Equal(t, 6, shape2.Size())
	require.Equal(t, 12, int(shape2.Memory()))
	require.Equal(t, 6, Product([]int{2, 3}))
	require.Equal(t, 1, Product(nil))
}

func TestStrides(t *testing.T) {
	require.Equal(t, []int{12, 4, 1}, Strides([]int{2, 3, 4}))
	require.Equal(t, []int{1}, Strides([]int{5}))
	require.Nil(t, Strides(nil))

	flat, err := FlatIndex([]int{2, 3}, 1, 2)
	require.NoError(t, err)
	require.Equal(t, 5, flat)
	flat, err = FlatIndex(nil)
	require.NoError(t, err)
	require.Equal(t, 0, flat)
	_, err = FlatIndex([]int{2, 3}, 2, 0)
	require.Error(t, err)
	_, err = FlatIndex([]int{2, 3}, 0)
	require.Error(t, err)
}
