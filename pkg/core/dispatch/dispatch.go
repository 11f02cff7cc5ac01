// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dispatch implements polymorphic calls over JIT arrays: Switch selects, lane by lane, one
// of several callables with a JIT index array, and Dispatch calls a method on the instances held by a
// class array.
//
// With a JIT index the call is recorded by the JIT engine (see jit.Engine.RecordCall): each branch
// is traced with the JIT arrays of the arguments replaced by the ones the engine provides, and the
// JIT arrays of the results are merged lane by lane into the returned value. Results of all branches
// must have the same structure (see arrays.CheckCompatibility).
//
// Example:
//
//	// index is a UInt array, x a Float array of the same size.
//	result, err := dispatch.Switch(index, []dispatch.Callable{
//		func(args ...any) (any, error) { return arrays.AddScalar(args[0].(*arrays.Array), 1) },
//		func(args ...any) (any, error) { x := args[0].(*arrays.Array); return arrays.Add(x, x) },
//	}, x)
package dispatch

import (
	"maps"
	"reflect"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/jitarray/pkg/core/arrays"
	"github.com/gomlx/jitarray/pkg/core/dtypes"
	"github.com/gomlx/jitarray/pkg/core/jit"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Callable is one branch of Switch. It receives the arguments given to Switch, with the JIT arrays
// replaced by the ones of the traced branch, and the mask (if any) replaced by an always-true value.
type Callable func(args ...any) (any, error)

// Method is the callable of Dispatch, called with the instance of the traced branch as self.
type Method func(self any, args ...any) (any, error)

// Kwargs holds keyword arguments. If given, it must be the last argument of Switch or Dispatch, and
// it is passed along to the callables in the same position.
type Kwargs map[string]any

// MaskKey is the keyword of the mask in Kwargs.
const MaskKey = "active"

const (
	switchLabel   = "jitarray.switch()"
	dispatchLabel = "jitarray.dispatch()"
)

// Switch calls callables[index] with args.
//
// If index is a Go integer, the callable is called directly, and its result returned as is. If index
// is a JIT 1D UInt32 array, the call is recorded for all lanes (see package documentation).
//
// The mask is either given as Kwargs{MaskKey: mask}, or as the last positional argument if it is a
// JIT 1D Bool array or a bool. Lanes where it is false are inactive, and their results are zero. With
// a Go integer index, the mask must be a bool, and if it's false Switch returns nil without calling
// anything.
func Switch(index any, callables []Callable, args ...any) (any, error) {
	result, err := switchImpl(index, callables, args)
	return result, annotate(switchLabel, err)
}

func switchImpl(index any, callables []Callable, args []any) (any, error) {
	args, mask, owned, err := extractMask(args)
	if err != nil {
		return nil, err
	}

	if i, ok := dtypes.ToInt(index); ok {
		finalizeAll(owned)
		if mask != nil {
			b, ok := mask.(bool)
			if !ok {
				return nil, arrays.Errorf(arrays.TypeIncompatible,
					"the provided 'mask' argument must be scalar if 'index' is scalar")
			}
			if !b {
				klog.V(2).Infof("%s: scalar mask is false, nothing called", switchLabel)
				return nil, nil
			}
		}
		if i < 0 || i >= len(callables) {
			return nil, errors.Errorf("callable index %d out of bounds (%d callables)", i, len(callables))
		}
		klog.V(2).Infof("%s: scalar index %d, calling it directly", switchLabel, i)
		return safeCall(switchLabel, func() (any, error) { return callables[i](args...) })
	}

	idx, ok := index.(*arrays.Array)
	if !ok || !isJITVector(idx.Type(), dtypes.Uint32) {
		finalizeAll(owned)
		return nil, arrays.Errorf(arrays.TypeIncompatible,
			"the 'index' argument must be a JIT-compiled 1D 32-bit unsigned integer array, got %T", index)
	}

	// Shift the index: 0 marks inactive lanes.
	shifted, err := arrays.AddScalar(idx, 1)
	if err != nil {
		finalizeAll(owned)
		return nil, err
	}
	defer shifted.Finalize()

	s := &callState{
		label:     switchLabel,
		engine:    idx.Engine(),
		args:      args,
		owned:     owned,
		callables: callables,
	}
	return s.record(idx.Type().Backend, "", len(callables), shifted.Index(), mask)
}

// Dispatch calls method on each instance held by instances, a class array, with args.
//
// The call is recorded for all lanes (see package documentation): each instance registered in the
// domain of the class array is traced once, and lanes holding nil instances are inactive. The mask
// follows the same rules as in Switch.
func Dispatch(instances *arrays.Array, method Method, args ...any) (any, error) {
	result, err := dispatchImpl(instances, method, args)
	return result, annotate(dispatchLabel, err)
}

func dispatchImpl(instances *arrays.Array, method Method, args []any) (any, error) {
	if instances == nil {
		return nil, arrays.Errorf(arrays.TypeIncompatible, "'instances' parameter must be an instance array, got nil")
	}
	if method == nil {
		return nil, arrays.Errorf(arrays.TypeIncompatible, "'method' parameter must not be nil")
	}
	d := instances.Type()
	if !d.IsClass || d.NDim() != 1 {
		return nil, arrays.Errorf(arrays.TypeIncompatible, "'instances' parameter must be an instance array, got %s", d.Name)
	}
	if d.Domain == "" {
		return nil, arrays.Errorf(arrays.TypeIncompatible, "the instance array type (%q) lacks the 'Domain' name", d.Name)
	}
	args, mask, owned, err := extractMask(args)
	if err != nil {
		return nil, err
	}
	s := &callState{
		label:        dispatchLabel,
		engine:       instances.Engine(),
		args:         args,
		owned:        owned,
		method:       method,
		instanceType: d.InstanceType,
	}
	return s.record(d.Backend, d.Domain, 0, instances.Index(), mask)
}

// annotate prefixes err with the label of the call, except for errors of the callables, which are
// already labeled.
func annotate(label string, err error) error {
	if err == nil || errors.Is(err, arrays.ErrHostCallError) {
		return err
	}
	return errors.WithMessage(err, label)
}

// safeCall runs a callable, converting its errors and panics to HostCallError.
func safeCall(label string, call func() (any, error)) (result any, err error) {
	exception := exceptions.Try(func() { result, err = call() })
	if exception != nil {
		if e, ok := exception.(error); ok {
			err = e
		} else {
			err = errors.Errorf("panic: %v", exception)
		}
	}
	if err != nil {
		return nil, arrays.Wrapf(arrays.HostCallError, err, "%s: encountered an exception", label)
	}
	return result, nil
}

func isJITVector(d *arrays.Descriptor, dtype dtypes.DType) bool {
	return d.IsJIT() && d.NDim() == 1 && d.IsLeaf() && !d.IsClass && d.DType == dtype
}

// extractMask returns a copy of args with the mask replaced by an always-true value, the mask (nil
// if not given) and the arrays created for the replacement.
func extractMask(args []any) (newArgs []any, mask any, owned []*arrays.Array, err error) {
	newArgs = slices.Clone(args)
	n := len(newArgs)
	if n > 0 {
		if kwargs, ok := newArgs[n-1].(Kwargs); ok {
			if m, found := kwargs[MaskKey]; found {
				replacement, owned, err := alwaysTrue(m)
				if err != nil {
					return nil, nil, nil, err
				}
				kwargs = maps.Clone(kwargs)
				kwargs[MaskKey] = replacement
				newArgs[n-1] = kwargs
				return newArgs, m, owned, nil
			}
			n--
		}
	}
	if n == 0 {
		return newArgs, nil, nil, nil
	}
	last := newArgs[n-1]
	switch m := last.(type) {
	case bool:
	case *arrays.Array:
		if !isJITVector(m.Type(), dtypes.Bool) {
			return newArgs, nil, nil, nil
		}
	default:
		return newArgs, nil, nil, nil
	}
	replacement, owned, err := alwaysTrue(last)
	if err != nil {
		return nil, nil, nil, err
	}
	newArgs[n-1] = replacement
	return newArgs, last, owned, nil
}

// alwaysTrue returns the value true converted to the type of mask.
func alwaysTrue(mask any) (any, []*arrays.Array, error) {
	switch m := mask.(type) {
	case nil, bool:
		return true, nil, nil
	case *arrays.Array:
		t, err := arrays.New(m.Type(), true)
		if err != nil {
			return nil, nil, err
		}
		return t, []*arrays.Array{t}, nil
	}
	dtype := dtypes.FromAny(mask)
	if dtype == dtypes.InvalidDType {
		return nil, nil, arrays.Errorf(arrays.TypeIncompatible, "unsupported mask of type %T", mask)
	}
	t, err := dtypes.Convert(dtype, true)
	if err != nil {
		return nil, nil, err
	}
	return reflect.ValueOf(t).Convert(reflect.TypeOf(mask)).Interface(), nil, nil
}

func finalizeAll(owned []*arrays.Array) {
	for _, a := range owned {
		a.Finalize()
	}
}

// maskIndex returns the JIT variable of the mask (0 if there is no mask), and whether it's a temporary
// variable that must be released by the caller.
func maskIndex(engine *jit.Engine, backend jit.Backend, mask any) (jit.VarID, bool, error) {
	switch m := mask.(type) {
	case nil:
		return 0, false, nil
	case bool:
		id, err := engine.Literal(backend, dtypes.Bool, 1, m)
		return id, true, err
	case *arrays.Array:
		if isJITVector(m.Type(), dtypes.Bool) {
			if m.Index() == 0 {
				id, err := engine.Zeros(backend, dtypes.Bool, 0)
				return id, true, err
			}
			return m.Index(), false, nil
		}
	}
	return 0, false, arrays.Errorf(arrays.TypeIncompatible,
		"the provided 'mask' argument must be a JIT 1D Bool array or a bool, got %T", mask)
}
