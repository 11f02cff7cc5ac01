// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/jitarray/pkg/core/dtypes"
)

func TestParseConfig(t *testing.T) {
	c, err := ParseConfig("")
	require.NoError(t, err)
	assert.Equal(t, Config{Symbolic: true}, c)

	c, err = ParseConfig("evaluated, keep_call_state,memory_limit=1KiB")
	require.NoError(t, err)
	assert.Equal(t, Config{Symbolic: false, KeepCallState: true, MemoryLimit: 1024}, c)
	assert.Equal(t, "evaluated,keep_call_state,memory_limit=1024", c.String())

	_, err = ParseConfig("fast")
	require.Error(t, err)
	_, err = ParseConfig("memory_limit")
	require.Error(t, err)
	_, err = ParseConfig("memory_limit=lots")
	require.Error(t, err)

	e := must.M1(New("evaluated"))
	assert.False(t, e.Config().Symbolic)
}

func TestVariables(t *testing.T) {
	e := NewWithConfig(Config{Symbolic: true})
	_, err := e.Literal(None, dtypes.Float32, 3, 1)
	require.Error(t, err, "host backend is not a JIT backend")

	x := must.M1(e.Literal(LLVM, dtypes.Float32, 3, 2))
	assert.Equal(t, 1, e.RefCount(x))
	assert.Equal(t, 3, must.M1(e.Size(x)))
	assert.Equal(t, dtypes.Float32, must.M1(e.DType(x)))
	assert.Equal(t, LLVM, must.M1(e.Backend(x)))
	if diff := cmp.Diff([]float32{2, 2, 2}, must.M1(e.Data(x))); diff != "" {
		t.Errorf("unexpected data (-want +got):\n%s", diff)
	}

	// Write on a shared variable copies it first.
	e.IncRef(x)
	y := must.M1(e.Write(x, 1, 5))
	assert.NotEqual(t, x, y)
	assert.Equal(t, 1, e.RefCount(x))
	assert.Equal(t, []float32{2, 2, 2}, must.M1(e.Data(x)))
	assert.Equal(t, []float32{2, 5, 2}, must.M1(e.Data(y)))

	// Write on an exclusive variable is in place.
	z := must.M1(e.Write(y, 0, 7))
	assert.Equal(t, y, z)
	assert.Equal(t, float32(7), must.M1(e.Read(z, 0)))
	_, err = e.Read(z, 3)
	require.Error(t, err)

	e.DecRef(x)
	e.DecRef(z)
	assert.Equal(t, 0, e.NumVars())
	_, err = e.Size(x)
	require.Error(t, err)
}

func TestOps(t *testing.T) {
	e := NewWithConfig(Config{Symbolic: true})
	counter := must.M1(e.Counter(CUDA, 4))
	assert.Equal(t, []uint32{0, 1, 2, 3}, must.M1(e.Data(counter)))

	f := must.M1(e.Cast(counter, dtypes.Float32))
	assert.Equal(t, []float32{0, 1, 2, 3}, must.M1(e.Data(f)))
	same := must.M1(e.Cast(f, dtypes.Float32))
	assert.Equal(t, f, same)
	assert.Equal(t, 2, e.RefCount(f))
	e.DecRef(same)

	step := must.M1(e.Literal(CUDA, dtypes.Float32, 1, 0.5))
	start := must.M1(e.Literal(CUDA, dtypes.Float32, 1, 1))
	r := must.M1(e.Fma(f, step, start))
	assert.Equal(t, []float32{1, 1.5, 2, 2.5}, must.M1(e.Data(r)))

	sum := must.M1(e.Add(r, start))
	assert.Equal(t, []float32{2, 2.5, 3, 3.5}, must.M1(e.Data(sum)))

	_, err := e.Add(counter, start)
	require.Error(t, err, "dtypes differ")

	ints := must.M1(e.FromData(CUDA, []int{3, 4}))
	assert.Equal(t, dtypes.FromGenericsType[int](), must.M1(e.DType(ints)))
	g := must.M1(e.Gather(ints, []int{1, 1, 0}))
	assert.Equal(t, 3, must.M1(e.Size(g)))
	_, err = e.Gather(ints, []int{2})
	require.Error(t, err)

	flags := must.M1(e.FromData(CUDA, []bool{true, false}))
	_, err = e.Add(flags, flags)
	require.Error(t, err, "Bool doesn't support arithmetic")
}

// recordSwitch runs a 2-branch switch where branch b returns inputs[0] + b.
func recordSwitch(t *testing.T, e *Engine, index, mask VarID, input VarID, deferCleanup bool) (
	out []VarID, done bool, calls []int, cleanups *int) {
	cleanups = new(int)
	fn := func(state any, self any, inputs []VarID) ([]VarID, error) {
		branch := self.(int)
		calls = append(calls, branch)
		offset := must.M1(e.Literal(LLVM, dtypes.Float32, 1, branch*10))
		defer e.DecRef(offset)
		res, err := e.Add(inputs[0], offset)
		if err != nil {
			return nil, err
		}
		return []VarID{res}, nil
	}
	cleanup := func(state any) { *cleanups++ }
	out, done, err := e.RecordCall(LLVM, "", 2, "test", false, index, mask, []VarID{input}, "state",
		fn, cleanup, deferCleanup)
	require.NoError(t, err)
	return
}

func TestRecordCall(t *testing.T) {
	for _, symbolic := range []bool{true, false} {
		e := NewWithConfig(Config{Symbolic: symbolic})
		index := must.M1(e.FromData(LLVM, []uint32{2, 1, 0, 2}))
		input := must.M1(e.FromData(LLVM, []float32{1, 2, 3, 4}))
		out, done, calls, cleanups := recordSwitch(t, e, index, 0, input, true)
		assert.True(t, done)
		assert.Equal(t, 0, *cleanups, "cleanup is the caller's responsibility when done")
		assert.Equal(t, []int{0, 1}, calls)
		require.Len(t, out, 1)
		assert.Equal(t, []float32{11, 2, 0, 14}, must.M1(e.Data(out[0])))

		records := e.Calls()
		require.Len(t, records, 1)
		assert.Equal(t, 4, records[0].Lanes)
		assert.Equal(t, 3, records[0].Active)
		assert.Equal(t, symbolic, records[0].Symbolic)

		e.DecRef(out[0])
		e.DecRef(index)
		e.DecRef(input)
		assert.Equal(t, 0, e.NumVars(), "symbolic=%v", symbolic)
	}
}

func TestRecordCallMask(t *testing.T) {
	e := NewWithConfig(Config{Symbolic: false})
	index := must.M1(e.FromData(LLVM, []uint32{1, 2}))
	mask := must.M1(e.FromData(LLVM, []bool{false, true}))
	input := must.M1(e.FromData(LLVM, []float32{1, 2}))
	out, _, calls, _ := recordSwitch(t, e, index, mask, input, false)
	assert.Equal(t, []int{1}, calls, "only the second branch has active lanes")
	assert.Equal(t, []float32{0, 12}, must.M1(e.Data(out[0])))

	// No active lanes: the first branch is still evaluated, on empty inputs.
	allOff := must.M1(e.FromData(LLVM, []bool{false}))
	out2, _, calls, _ := recordSwitch(t, e, index, allOff, input, false)
	assert.Equal(t, []int{0}, calls)
	assert.Equal(t, []float32{0, 0}, must.M1(e.Data(out2[0])))
}

func TestRecordCallErrors(t *testing.T) {
	e := NewWithConfig(Config{Symbolic: true})
	index := must.M1(e.FromData(LLVM, []uint32{3}))
	cleanups := 0
	cleanup := func(any) { cleanups++ }
	fn := func(any, any, []VarID) ([]VarID, error) { return nil, nil }
	_, done, err := e.RecordCall(LLVM, "", 2, "oob", false, index, 0, nil, nil, fn, cleanup, false)
	require.Error(t, err)
	assert.True(t, done)
	assert.Equal(t, 1, cleanups, "failed calls clean up their state")

	floatIndex := must.M1(e.FromData(LLVM, []float32{1}))
	_, _, err = e.RecordCall(LLVM, "", 2, "float", false, floatIndex, 0, nil, nil, fn, cleanup, false)
	require.ErrorContains(t, err, "Uint32")
	assert.Equal(t, 2, cleanups)

	// Branches returning different dtypes.
	idx := must.M1(e.FromData(LLVM, []uint32{1, 2}))
	mixed := func(_ any, self any, _ []VarID) ([]VarID, error) {
		dtype := dtypes.Float32
		if self.(int) == 1 {
			dtype = dtypes.Int32
		}
		v := must.M1(e.Zeros(LLVM, dtype, 1))
		return []VarID{v}, nil
	}
	_, _, err = e.RecordCall(LLVM, "", 2, "mixed", false, idx, 0, nil, nil, mixed, cleanup, false)
	require.ErrorContains(t, err, "inconsistent types")
	assert.Equal(t, 3, cleanups)
}

func TestDeferredCleanup(t *testing.T) {
	e := NewWithConfig(Config{Symbolic: true, KeepCallState: true})
	index := must.M1(e.FromData(LLVM, []uint32{1, 2}))
	input := must.M1(e.FromData(LLVM, []float32{1, 2}))
	out, done, _, cleanups := recordSwitch(t, e, index, 0, input, true)
	assert.False(t, done)
	assert.Equal(t, 1, e.PendingCalls())
	assert.Equal(t, 0, *cleanups)
	e.DecRef(out[0])
	assert.Equal(t, 1, *cleanups)
	assert.Equal(t, 0, e.PendingCalls())

	// Without permission from the caller, the state is not kept.
	_, done, _, _ = recordSwitch(t, e, index, 0, input, false)
	assert.True(t, done)

	// Flush runs the cleanups still pending.
	_, done, _, cleanups = recordSwitch(t, e, index, 0, input, true)
	assert.False(t, done)
	require.NoError(t, e.Close())
	assert.Equal(t, 1, *cleanups)
}

type shape struct{ name string }

func TestInstanceRegistry(t *testing.T) {
	e := NewWithConfig(Config{Symbolic: true})
	a, b := &shape{"a"}, &shape{"b"}
	idA := must.M1(e.RegisterInstance("Shape", a))
	idB := must.M1(e.RegisterInstance("Shape", b))
	assert.Equal(t, uint32(1), idA)
	assert.Equal(t, uint32(2), idB)
	assert.Equal(t, idA, must.M1(e.RegisterInstance("Shape", a)))
	assert.Equal(t, b, e.Instance("Shape", idB))
	assert.Equal(t, idB, e.InstanceID("Shape", b))
	assert.Nil(t, e.Instance("Shape", 0))
	assert.Equal(t, 2, e.Instances("Shape"))

	_, err := e.RegisterInstance("Shape", []int{1})
	require.Error(t, err)
	_, err = e.RegisterInstance("", a)
	require.Error(t, err)

	// Dispatch over the registered instances.
	index := must.M1(e.FromData(LLVM, []uint32{idB, 0, idA}))
	var seen []string
	fn := func(_ any, self any, _ []VarID) ([]VarID, error) {
		seen = append(seen, self.(*shape).name)
		v := must.M1(e.Literal(LLVM, dtypes.Int32, 1, len(seen)))
		return []VarID{v}, nil
	}
	out, _, err := e.RecordCall(LLVM, "Shape", 0, "area", true, index, 0, nil, nil, fn, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, []int32{2, 0, 1}, must.M1(e.Data(out[0])))

	e.Unregister("Shape", a)
	assert.Equal(t, 1, e.Instances("Shape"))
	assert.Equal(t, uint32(0), e.InstanceID("Shape", a))
	_, _, err = e.RecordCall(LLVM, "Shape", 0, "area", true, index, 0, nil, nil, fn, nil, false)
	require.ErrorContains(t, err, "not registered")

	_, _, err = e.RecordCall(LLVM, "Empty", 0, "area", true, index, 0, nil, nil, fn, nil, false)
	require.ErrorContains(t, err, "no instances")
}

func TestDeviceMemory(t *testing.T) {
	e := must.M1(New("memory_limit=1KiB"))
	ptr := must.M1(e.MallocZeroed(512))
	require.NoError(t, e.MemcpyToDevice(ptr+8, []byte{1, 2, 3}))
	got := make([]byte, 4)
	require.NoError(t, e.MemcpyFromDevice(got, ptr+7))
	assert.Equal(t, []byte{0, 1, 2, 3}, got)
	assert.Equal(t, uint64(512), e.DeviceMemoryInUse())

	_, err := e.Malloc(1024)
	var driverErr *DriverError
	require.ErrorAs(t, err, &driverErr)
	assert.Equal(t, OutOfMemory, driverErr.Result)
	assert.Contains(t, err.Error(), "CUDA_ERROR_OUT_OF_MEMORY")

	require.ErrorAs(t, e.MemcpyToDevice(ptr+510, []byte{1, 2, 3}), &driverErr)
	assert.Equal(t, IllegalAddress, driverErr.Result)

	managed := must.M1(e.MallocManaged(16))
	require.NoError(t, e.Free(ptr))
	require.ErrorAs(t, e.Free(ptr), &driverErr)
	assert.Equal(t, InvalidValue, driverErr.Result)
	require.NoError(t, e.Free(0))

	err = e.Close()
	require.ErrorContains(t, err, "leaked device allocation of 16 B")
	_ = managed
	assert.Equal(t, uint64(0), e.DeviceMemoryInUse())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.5 KiB", MemString(1536))
	assert.Equal(t, "12 ns", TimeString(12*time.Nanosecond))
	assert.Equal(t, "1.5 ms", TimeString(1500*time.Microsecond))
	assert.Equal(t, "2.00 s", TimeString(2*time.Second))
	assert.Equal(t, "2m0s", TimeString(2*time.Minute))
}
