// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"reflect"

	"github.com/gomlx/jitarray/pkg/core/arrays"
	"github.com/gomlx/jitarray/pkg/core/dtypes"
	"github.com/gomlx/jitarray/pkg/core/host"
	"github.com/gomlx/jitarray/pkg/core/jit"
	"k8s.io/klog/v2"
)

// callState is the state of a recorded call, owned by the JIT engine until its cleanup.
//
// Fields are only accessed with the host lock held.
type callState struct {
	label  string
	engine *jit.Engine

	// args are the arguments given by the caller (with the mask replaced). They are borrowed, except
	// for owned.
	args  []any
	owned []*arrays.Array

	// Switch.
	callables []Callable

	// Dispatch.
	method       Method
	instanceType reflect.Type

	// result of the last traced branch, hasResult is false until the first one.
	result    any
	hasResult bool

	// values created while tracing (rehydrated arguments and results), released by the cleanup.
	values []any
}

// record runs the call through the JIT engine and returns the merged result.
func (s *callState) record(backend jit.Backend, domain string, branchCount int, index jit.VarID, mask any) (any, error) {
	release := host.Acquire()
	inputs := arrays.CollectIndices(s.args)
	release()

	maskVar, tempMask, err := maskIndex(s.engine, backend, mask)
	if tempMask {
		defer s.engine.DecRef(maskVar)
	}
	if err == nil && index == 0 {
		// Empty index.
		index, err = s.engine.Zeros(backend, dtypes.Uint32, 0)
		if err == nil {
			defer s.engine.DecRef(index)
		}
	}
	if err != nil {
		s.cleanup(nil)
		return nil, err
	}

	outputs, done, err := s.engine.RecordCall(backend, domain, branchCount, s.label, domain != "",
		index, maskVar, inputs, s, s.branch, s.cleanup, true)
	if err != nil {
		return nil, err
	}
	release = host.Acquire()
	result, err := arrays.UpdateIndices(s.result, outputs)
	release()
	for _, id := range outputs {
		// The result holds its own references.
		s.engine.DecRef(id)
	}
	if done {
		s.cleanup(nil)
	}
	return result, err
}

// branch implements jit.CallFunc: it rehydrates the arguments, calls the branch selected by self, and
// returns the JIT variables of its result.
func (s *callState) branch(_ any, self any, inputs []jit.VarID) ([]jit.VarID, error) {
	release := host.Acquire()
	v, err := arrays.UpdateIndices(s.args, inputs)
	if err == nil {
		s.values = append(s.values, v)
	}
	release()
	if err != nil {
		return nil, err
	}
	args := v.([]any)

	var call func() (any, error)
	if s.method == nil {
		call = func() (any, error) { return s.callables[self.(int)](args...) }
	} else {
		if t := reflect.TypeOf(self); t == nil || !t.AssignableTo(s.instanceType) {
			return nil, arrays.Errorf(arrays.TypeIncompatible, "instance of type %T is not a %s", self, s.instanceType)
		}
		call = func() (any, error) { return s.method(self, args...) }
	}
	// The host lock is not held while the callable runs, so it may record calls of its own.
	result, err := safeCall(s.label, call)
	if err != nil {
		return nil, err
	}

	release = host.Acquire()
	defer release()
	s.values = append(s.values, result)
	if s.hasResult {
		if err := arrays.CheckCompatibility(result, s.result); err != nil {
			return nil, err
		}
	}
	s.result, s.hasResult = result, true
	outputs := arrays.CollectIndices(result)
	for _, id := range outputs {
		s.engine.IncRef(id)
	}
	return outputs, nil
}

// cleanup implements jit.CleanupFunc. It releases the values created while tracing, unless the host
// runtime was shut down.
func (s *callState) cleanup(any) {
	if !host.IsAlive() {
		klog.Warningf("%s: host runtime is shut down, call state not released", s.label)
		return
	}
	release := host.Acquire()
	values, owned := s.values, s.owned
	s.values, s.owned, s.result, s.args = nil, nil, nil, nil
	release()
	for _, v := range values {
		arrays.FinalizeValue(v)
	}
	finalizeAll(owned)
}
