// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/jitarray/pkg/core/arrays"
	"github.com/gomlx/jitarray/pkg/core/jit"
)

type shape interface {
	Side() float32
}

type square struct{ side float32 }

func (s *square) Side() float32 { return s.side }

type circle struct{ radius float32 }

const shapesDomain = "dispatch.shapes"

func addSide(self any, args ...any) (any, error) {
	return arrays.AddScalar(args[0].(*arrays.Array), self.(shape).Side())
}

func TestDispatch(t *testing.T) {
	for _, config := range []string{"symbolic", "evaluated"} {
		t.Run(config, func(t *testing.T) {
			e := withEngine(t, config)
			shapeArray := arrays.NewRegistry().Register(arrays.ClassArray[shape]("ShapeArray", shapesDomain, jit.LLVM))
			s1, s2 := &square{1}, &square{2}
			instances := must.M1(arrays.New(shapeArray, []any{s1, nil, s2, s1}))
			defer instances.Finalize()
			x := must.M1(arrays.New(arrays.Float, 1, 1, 1, 1))
			defer x.Finalize()
			numVars := e.NumVars()

			result := must.M1(Dispatch(instances, addSide, x))
			requireData(t, []float32{2, 0, 3, 2}, result)
			arrays.FinalizeValue(result)
			assert.Equal(t, numVars, e.NumVars())

			calls := e.Calls()
			last := calls[len(calls)-1]
			assert.Equal(t, "jitarray.dispatch()", last.Label)
			assert.Equal(t, shapesDomain, last.Domain)
			assert.Equal(t, 3, last.Active)

			// Masked.
			mask := must.M1(arrays.New(arrays.Bool, true, true, false, true))
			defer mask.Finalize()
			result = must.M1(Dispatch(instances, addSide, x, mask))
			requireData(t, []float32{2, 0, 0, 2}, result)
			arrays.FinalizeValue(result)
		})
	}
}

func TestDispatchErrors(t *testing.T) {
	e := withEngine(t, "symbolic")
	shapeArray := arrays.NewRegistry().Register(arrays.ClassArray[shape]("ShapeArray", shapesDomain, jit.LLVM))
	x := must.M1(arrays.New(arrays.Float, 1, 2))
	defer x.Finalize()

	_, err := Dispatch(x, addSide, x)
	require.ErrorIs(t, err, arrays.ErrTypeIncompatible)
	assert.Contains(t, err.Error(), "jitarray.dispatch(): 'instances' parameter must be an instance array")

	_, err = Dispatch(nil, addSide, x)
	require.ErrorIs(t, err, arrays.ErrTypeIncompatible)
	assert.Contains(t, err.Error(), "jitarray.dispatch(): 'instances' parameter must be an instance array, got nil")

	instances := must.M1(arrays.New(shapeArray, []any{&square{1}, &square{2}}))
	defer instances.Finalize()
	_, err = Dispatch(instances, nil, x)
	require.ErrorIs(t, err, arrays.ErrTypeIncompatible)
	_, err = Dispatch(instances, func(self any, args ...any) (any, error) {
		panic("bad shape")
	}, x)
	require.ErrorIs(t, err, arrays.ErrHostCallError)
	assert.Contains(t, err.Error(), "jitarray.dispatch(): encountered an exception")

	// Instances of other types registered in the same domain are traced too.
	must.M1(e.RegisterInstance(shapesDomain, &circle{1}))
	_, err = Dispatch(instances, addSide, x)
	require.ErrorIs(t, err, arrays.ErrTypeIncompatible)
	assert.Contains(t, err.Error(), "jitarray.dispatch(): instance of type *dispatch.circle is not a dispatch.shape")
}
