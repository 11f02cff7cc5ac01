// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/jitarray/pkg/core/arrays"
	"github.com/gomlx/jitarray/pkg/core/host"
	"github.com/gomlx/jitarray/pkg/core/jit"
)

// withEngine makes a new engine with the given configuration the default one for the duration of
// the test.
func withEngine(t *testing.T, config string) *jit.Engine {
	e := must.M1(jit.New(config))
	previous := jit.SetDefault(e)
	t.Cleanup(func() { jit.SetDefault(previous) })
	return e
}

func requireData(t *testing.T, want any, value any) {
	t.Helper()
	a, ok := value.(*arrays.Array)
	require.Truef(t, ok, "expected *arrays.Array, got %T", value)
	got, err := a.Data()
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}
}

// addOne and double are the branches used by most tests.
func addOne(args ...any) (any, error) {
	return arrays.AddScalar(args[0].(*arrays.Array), 1)
}

func double(args ...any) (any, error) {
	x := args[0].(*arrays.Array)
	return arrays.Add(x, x)
}

func TestSwitchScalarIndex(t *testing.T) {
	var calls []string
	callables := []Callable{
		func(args ...any) (any, error) {
			calls = append(calls, "f0")
			return args, nil
		},
		func(args ...any) (any, error) {
			calls = append(calls, "f1")
			return args[0], nil
		},
	}
	x := must.M1(arrays.New(arrays.ArrayXf, 1, 2))

	result := must.M1(Switch(1, callables, x))
	assert.Same(t, x, result, "result is returned as is")
	assert.Equal(t, []string{"f1"}, calls)

	// Scalar masks.
	calls = nil
	result = must.M1(Switch(uint32(1), callables, x, false))
	assert.Nil(t, result)
	assert.Empty(t, calls)
	result = must.M1(Switch(0, callables, x, Kwargs{"active": false}))
	assert.Nil(t, result)
	assert.Empty(t, calls)

	// The mask is replaced by an always-true value.
	result = must.M1(Switch(0, callables, x, true))
	assert.Equal(t, []any{x, true}, result)
	result = must.M1(Switch(0, callables, x, Kwargs{"active": 1, "scale": 2.0}))
	assert.Equal(t, []any{x, Kwargs{"active": 1, "scale": 2.0}}, result)
	assert.Equal(t, []string{"f0", "f0"}, calls)

	_, err := Switch(2, callables, x)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jitarray.switch(): callable index 2 out of bounds")

	mask := must.M1(arrays.New(arrays.Bool, true, false))
	defer mask.Finalize()
	_, err = Switch(1, callables, x, mask)
	require.ErrorIs(t, err, arrays.ErrTypeIncompatible)
	assert.Contains(t, err.Error(), "the provided 'mask' argument must be scalar if 'index' is scalar")
}

func TestSwitchErrors(t *testing.T) {
	failing := []Callable{
		func(args ...any) (any, error) { return nil, fmt.Errorf("bad input") },
		func(args ...any) (any, error) { panic("boom") },
	}
	_, err := Switch(0, failing)
	require.ErrorIs(t, err, arrays.ErrHostCallError)
	assert.Equal(t, "jitarray.switch(): encountered an exception: bad input", err.Error())

	_, err = Switch(1, failing)
	require.ErrorIs(t, err, arrays.ErrHostCallError)
	assert.Contains(t, err.Error(), "boom")

	withEngine(t, "symbolic")
	index := must.M1(arrays.New(arrays.UInt, 0, 1))
	defer index.Finalize()
	_, err = Switch(index, failing)
	require.ErrorIs(t, err, arrays.ErrHostCallError)
	assert.Contains(t, err.Error(), "jitarray.switch(): encountered an exception")

	// Index of the wrong kind.
	for _, bad := range []any{
		must.M1(arrays.New(arrays.Int, 0, 1)),
		must.M1(arrays.New(arrays.ArrayXu, 0, 1)),
		"0",
	} {
		_, err = Switch(bad, []Callable{addOne})
		require.ErrorIs(t, err, arrays.ErrTypeIncompatible)
		assert.Contains(t, err.Error(), "jitarray.switch(): the 'index' argument must be a JIT-compiled 1D 32-bit")
	}

	x := must.M1(arrays.New(arrays.Float, 1, 2))
	defer x.Finalize()
	outOfBounds := must.M1(arrays.New(arrays.UInt, 0, 3))
	defer outOfBounds.Finalize()
	_, err = Switch(outOfBounds, []Callable{addOne, double}, x)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of bounds")
}

func TestSwitchVectorized(t *testing.T) {
	for _, config := range []string{"symbolic", "evaluated"} {
		t.Run(config, func(t *testing.T) {
			e := withEngine(t, config)
			index := must.M1(arrays.New(arrays.UInt, 0, 1, 1, 0))
			defer index.Finalize()
			x := must.M1(arrays.New(arrays.Float, 1, 2, 3, 4))
			defer x.Finalize()
			mask := must.M1(arrays.New(arrays.Bool, true, false, true, true))
			defer mask.Finalize()
			numVars := e.NumVars()

			result := must.M1(Switch(index, []Callable{addOne, double}, x))
			requireData(t, []float32{2, 4, 6, 5}, result)
			result.(*arrays.Array).Finalize()
			assert.Equal(t, numVars, e.NumVars(), "all temporary variables released")

			calls := e.Calls()
			last := calls[len(calls)-1]
			assert.Equal(t, "jitarray.switch()", last.Label)
			assert.Equal(t, 4, last.Lanes)
			assert.Equal(t, 2, last.Branches)
			assert.Equal(t, config == "symbolic", last.Symbolic)

			// Positional mask: the callables get an always-true mask.
			withMask := func(args ...any) (any, error) {
				requireData(t, []bool{true}, args[1])
				return addOne(args...)
			}
			result = must.M1(Switch(index, []Callable{withMask, double}, x, mask))
			requireData(t, []float32{2, 0, 6, 5}, result)
			arrays.FinalizeValue(result)

			// Keyword mask.
			result = must.M1(Switch(index, []Callable{addOne, double}, x, Kwargs{"active": false}))
			requireData(t, []float32{0, 0, 0, 0}, result)
			arrays.FinalizeValue(result)
			assert.Equal(t, numVars, e.NumVars())
		})
	}
}

func TestSwitchStructuredResults(t *testing.T) {
	withEngine(t, "symbolic")
	index := must.M1(arrays.New(arrays.UInt, 1, 0, 1))
	defer index.Finalize()
	x := must.M1(arrays.New(arrays.Float, 1, 2, 3))
	defer x.Finalize()

	pair := func(scale float32) Callable {
		return func(args ...any) (any, error) {
			x := args[0].(*arrays.Array)
			scaled, err := arrays.AddScalar(x, scale)
			if err != nil {
				return nil, err
			}
			return map[string]any{"x": x, "scaled": scaled, "name": "pair"}, nil
		}
	}
	result := must.M1(Switch(index, []Callable{pair(10), pair(20)}, x))
	defer arrays.FinalizeValue(result)
	m := result.(map[string]any)
	requireData(t, []float32{21, 12, 23}, m["scaled"])
	requireData(t, []float32{1, 2, 3}, m["x"])
	assert.Equal(t, "pair", m["name"])

	// Results with a different structure.
	for _, callables := range [][]Callable{
		{double, func(args ...any) (any, error) { return []any{args[0]}, nil }},
		{double, func(args ...any) (any, error) { return 1, nil }},
		{
			func(args ...any) (any, error) { return []any{args[0], "a"}, nil },
			func(args ...any) (any, error) { return []any{args[0], "b"}, nil },
		},
	} {
		_, err := Switch(index, callables, x)
		require.ErrorIs(t, err, arrays.ErrTypeIncompatible)
		assert.Contains(t, err.Error(), "jitarray.switch(): incompatible results")
	}
}

func TestSwitchDeferredCleanup(t *testing.T) {
	e := withEngine(t, "symbolic,keep_call_state")
	index := must.M1(arrays.New(arrays.UInt, 0, 1))
	defer index.Finalize()
	x := must.M1(arrays.New(arrays.Float, 1, 2))
	defer x.Finalize()

	result := must.M1(Switch(index, []Callable{addOne, double}, x))
	assert.Equal(t, 1, e.PendingCalls())
	// Each traced branch holds a reference to x until the cleanup.
	assert.Equal(t, 3, e.RefCount(x.Index()))
	result.(*arrays.Array).Finalize()
	assert.Equal(t, 0, e.PendingCalls())
	assert.Equal(t, 1, e.RefCount(x.Index()))

	// Once the host runtime is shut down, the cleanup doesn't release anything.
	result = must.M1(Switch(index, []Callable{addOne, double}, x))
	host.Shutdown()
	result.(*arrays.Array).Finalize()
	host.Start()
	assert.Equal(t, 0, e.PendingCalls())
	assert.Equal(t, 3, e.RefCount(x.Index()))
}

func TestSwitchNested(t *testing.T) {
	withEngine(t, "evaluated")
	index := must.M1(arrays.New(arrays.UInt, 0, 1, 0))
	defer index.Finalize()
	x := must.M1(arrays.New(arrays.Float, 1, 2, 3))
	defer x.Finalize()

	inner := func(args ...any) (any, error) {
		x := args[0].(*arrays.Array)
		innerIndex, err := arrays.New(arrays.UInt, 1)
		if err != nil {
			return nil, err
		}
		defer innerIndex.Finalize()
		return Switch(innerIndex, []Callable{addOne, double}, x)
	}
	result := must.M1(Switch(index, []Callable{addOne, inner}, x))
	defer arrays.FinalizeValue(result)
	requireData(t, []float32{2, 4, 4}, result)
}
