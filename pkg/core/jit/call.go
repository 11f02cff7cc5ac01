// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"reflect"
	"sync"
	"time"

	"github.com/gomlx/jitarray/pkg/core/dtypes"
	"github.com/gomlx/jitarray/pkg/support/sets"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CallFunc is invoked by RecordCall once per traced branch.
//
// The branch is identified by self: for switch-style calls it is the 0-based index of the branch (an
// int), for dispatch-style calls it is the instance registered in the call's domain.
//
// It receives the variables of the inputs of the branch (borrowed), and returns the variables of its
// outputs, transferring one reference of each to the engine.
type CallFunc func(state any, self any, inputs []VarID) (outputs []VarID, err error)

// CleanupFunc releases the state given to RecordCall. It is invoked exactly once per call.
type CleanupFunc func(state any)

// CallRecord describes a call recorded with Engine.RecordCall, see Engine.Calls.
type CallRecord struct {
	ID       uuid.UUID
	Label    string
	Domain   string
	Backend  Backend
	Symbolic bool

	// Lanes is the size of the index, and Active the number of lanes that were not masked out.
	Lanes, Active int

	// Branches is the number of times the branch callback was invoked.
	Branches int

	Outputs  int
	Deferred bool
	Elapsed  time.Duration
}

type pendingCall struct {
	id        uuid.UUID
	state     any
	cleanup   CleanupFunc
	remaining sets.Set[VarID]
	once      sync.Once
}

func (p *pendingCall) run() {
	p.once.Do(func() {
		if p.cleanup != nil {
			p.cleanup(p.state)
		}
		p.state = nil
	})
}

type branchResult struct {
	branch  int
	full    bool
	outputs []VarID
}

// RecordCall records a polymorphic call: each lane of the index variable selects one of several
// branches, and the call's outputs are, lane by lane, the outputs of the selected branch.
//
//   - domain: empty for switch-style calls, where branchCount gives the number of branches and index
//     values 1..branchCount select them. For dispatch-style calls (isDispatch must be true) it names
//     the registry domain, and index values are the IDs of the instances registered there.
//   - index: Uint32 variable, where 0 marks an inactive lane.
//   - mask: optional (0 if not given) Bool variable, of size 1 or the size of index. Lanes where it is
//     false are inactive.
//   - inputs: variables passed to each branch.
//   - fn: invoked once per traced branch (see CallFunc). In symbolic mode every branch is traced on the
//     full inputs. In evaluated mode only branches with active lanes are run, on inputs gathered to
//     those lanes -- if no lane is active, the first branch is run on empty inputs to learn the type of
//     the outputs. Callbacks run one at a time, in the caller's goroutine.
//   - cleanup: releases state. It is invoked exactly once: by RecordCall itself if it fails, by the
//     engine once all outputs are released if done is false, or by the caller if done is true.
//   - deferCleanup: whether the caller allows the engine to keep the state alive (only used if the
//     engine is configured with KeepCallState).
//
// Inactive lanes of the outputs are zero. It returns the merged outputs, owned by the caller.
func (e *Engine) RecordCall(backend Backend, domain string, branchCount int, label string, isDispatch bool,
	index, mask VarID, inputs []VarID, state any, fn CallFunc, cleanup CleanupFunc, deferCleanup bool) (
	outputs []VarID, done bool, err error) {
	start := time.Now()
	fail := func(err error) ([]VarID, bool, error) {
		if cleanup != nil {
			cleanup(state)
		}
		return nil, true, err
	}
	if err := checkBackend(backend); err != nil {
		return fail(err)
	}
	if isDispatch != (domain != "") {
		return fail(errors.Errorf("jit.RecordCall(%q): dispatch calls (and only them) require a domain", label))
	}

	// Collect index, mask and branches.
	e.mu.Lock()
	config := e.config
	indices, active, selves, err := e.callLanesLocked(backend, domain, branchCount, label, index, mask)
	if err == nil {
		for _, in := range inputs {
			if _, err = e.lookupLocked(in); err != nil {
				break
			}
		}
	}
	e.mu.Unlock()
	if err != nil {
		return fail(err)
	}
	numLanes := len(indices)
	numBranches := len(selves)
	lanes := make([][]int, numBranches)
	numActive := 0
	for lane, idx := range indices {
		if idx == 0 || !active(lane) {
			continue
		}
		branch := int(idx) - 1
		if branch >= numBranches || selves[branch] == nil {
			if isDispatch {
				return fail(errors.Errorf("jit.RecordCall(%q): instance ID %d is not registered in domain %q",
					label, idx, domain))
			}
			return fail(errors.Errorf("jit.RecordCall(%q): callable index %d out of bounds (%d callables)",
				label, branch, numBranches))
		}
		lanes[branch] = append(lanes[branch], lane)
		numActive++
	}

	// Trace branches.
	var results []branchResult
	releaseResults := func() {
		for _, r := range results {
			for _, out := range r.outputs {
				e.DecRef(out)
			}
		}
	}
	invoke := func(branch int, branchLanes []int, full bool) error {
		branchInputs := inputs
		var temps []VarID
		if !full {
			branchInputs = make([]VarID, len(inputs))
			for ii, in := range inputs {
				size, err := e.Size(in)
				if err != nil {
					return err
				}
				switch {
				case size == numLanes:
					gathered, err := e.Gather(in, branchLanes)
					if err != nil {
						return err
					}
					temps = append(temps, gathered)
					branchInputs[ii] = gathered
				case size == 1:
					branchInputs[ii] = in
				default:
					return errors.Errorf("jit.RecordCall(%q): input #%d has size %d, incompatible with the "+
						"index of size %d", label, ii, size, numLanes)
				}
			}
		}
		outs, err := fn(state, selves[branch], branchInputs)
		for _, temp := range temps {
			e.DecRef(temp)
		}
		if err != nil {
			return err
		}
		results = append(results, branchResult{branch: branch, full: full, outputs: outs})
		return nil
	}
	if config.Symbolic {
		for branch := range numBranches {
			if selves[branch] == nil {
				continue
			}
			if err = invoke(branch, nil, true); err != nil {
				break
			}
		}
	} else {
		for branch := range numBranches {
			if len(lanes[branch]) == 0 {
				continue
			}
			if err = invoke(branch, lanes[branch], false); err != nil {
				break
			}
		}
		if err == nil && len(results) == 0 {
			for branch := range numBranches {
				if selves[branch] != nil {
					err = invoke(branch, []int{}, false)
					break
				}
			}
		}
	}
	if err == nil {
		outputs, err = e.mergeOutputs(label, results, lanes, numLanes)
	}
	releaseResults()
	if err != nil {
		return fail(err)
	}

	record := CallRecord{
		ID:       uuid.New(),
		Label:    label,
		Domain:   domain,
		Backend:  backend,
		Symbolic: config.Symbolic,
		Lanes:    numLanes,
		Active:   numActive,
		Branches: len(results),
		Outputs:  len(outputs),
		Elapsed:  time.Since(start),
	}
	done = true
	e.mu.Lock()
	if config.KeepCallState && deferCleanup && len(outputs) > 0 {
		done = false
		record.Deferred = true
		e.pending = append(e.pending, &pendingCall{
			id:        record.ID,
			state:     state,
			cleanup:   cleanup,
			remaining: sets.MakeWith(outputs...),
		})
	}
	e.records = append(e.records, record)
	e.mu.Unlock()
	if klog.V(1).Enabled() {
		klog.Infof("jit: recorded %s [%s] %q: %d lanes (%d active), %d branches traced, %d outputs, deferred=%v, %s",
			record.ID, backend, label, numLanes, numActive, record.Branches, record.Outputs, record.Deferred,
			TimeString(record.Elapsed))
	}
	return outputs, done, nil
}

// callLanesLocked validates the index and mask, and returns the index values, the mask accessor and the
// identity of each branch. It must be called with e.mu held.
func (e *Engine) callLanesLocked(backend Backend, domain string, branchCount int, label string, index, mask VarID) (
	indices []uint32, active func(lane int) bool, selves []any, err error) {
	indexVar, err := e.lookupLocked(index)
	if err != nil {
		return nil, nil, nil, errors.WithMessagef(err, "jit.RecordCall(%q): index", label)
	}
	if indexVar.dtype != dtypes.Uint32 || indexVar.backend != backend {
		return nil, nil, nil, errors.Errorf("jit.RecordCall(%q): index must be a %s Uint32 variable, got %s %s",
			label, backend, indexVar.backend, indexVar.dtype)
	}
	indices = dtypes.SliceClone(indexVar.data).([]uint32)
	active = func(int) bool { return true }
	if mask != 0 {
		maskVar, err := e.lookupLocked(mask)
		if err != nil {
			return nil, nil, nil, errors.WithMessagef(err, "jit.RecordCall(%q): mask", label)
		}
		maskData, ok := maskVar.data.([]bool)
		if !ok || maskVar.backend != backend {
			return nil, nil, nil, errors.Errorf("jit.RecordCall(%q): mask must be a %s Bool variable, got %s %s",
				label, backend, maskVar.backend, maskVar.dtype)
		}
		maskData = append([]bool(nil), maskData...)
		switch len(maskData) {
		case 1:
			active = func(int) bool { return maskData[0] }
		case len(indices):
			active = func(lane int) bool { return maskData[lane] }
		default:
			return nil, nil, nil, errors.Errorf("jit.RecordCall(%q): mask of size %d incompatible with index of size %d",
				label, len(maskData), len(indices))
		}
	}
	if domain != "" {
		d := e.domains[domain]
		if d == nil || d.numLive == 0 {
			return nil, nil, nil, errors.Errorf("jit.RecordCall(%q): no instances registered in domain %q", label, domain)
		}
		selves = append([]any(nil), d.instances...)
	} else {
		if branchCount <= 0 {
			return nil, nil, nil, errors.Errorf("jit.RecordCall(%q): no callables given", label)
		}
		selves = make([]any, branchCount)
		for ii := range selves {
			selves[ii] = ii
		}
	}
	return
}

// mergeOutputs combines the outputs of each traced branch lane by lane.
func (e *Engine) mergeOutputs(label string, results []branchResult, lanes [][]int, numLanes int) ([]VarID, error) {
	if len(results) == 0 {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	numOutputs := len(results[0].outputs)
	for _, r := range results {
		if len(r.outputs) != numOutputs {
			return nil, errors.Errorf("jit.RecordCall(%q): inconsistent number of outputs across branches (%d vs %d)",
				label, numOutputs, len(r.outputs))
		}
	}
	outputs := make([]VarID, 0, numOutputs)
	for k := range numOutputs {
		first, err := e.lookupLocked(results[0].outputs[k])
		if err != nil {
			return nil, err
		}
		data := first.dtype.MakeSlice(numLanes)
		dst := reflect.ValueOf(data)
		for _, r := range results {
			v, err := e.lookupLocked(r.outputs[k])
			if err != nil {
				return nil, err
			}
			if v.dtype != first.dtype || v.backend != first.backend {
				return nil, errors.Errorf("jit.RecordCall(%q): output #%d has inconsistent types across branches "+
					"(%s %s vs %s %s)", label, k, first.backend, first.dtype, v.backend, v.dtype)
			}
			branchLanes := lanes[r.branch]
			expected := len(branchLanes)
			if r.full {
				expected = numLanes
			}
			src := reflect.ValueOf(v.data)
			size := src.Len()
			if size != 1 && size != expected {
				return nil, errors.Errorf("jit.RecordCall(%q): output #%d has size %d, expected %d", label, k, size, expected)
			}
			for j, lane := range branchLanes {
				si := j
				if r.full {
					si = lane
				}
				if size == 1 {
					si = 0
				}
				dst.Index(lane).Set(src.Index(si))
			}
		}
		outputs = append(outputs, e.newVarLocked(first.backend, first.dtype, data))
	}
	return outputs, nil
}

// releaseOutputLocked is called when a variable is freed, and returns the deferred calls whose outputs
// have all been released. It must be called with e.mu held.
func (e *Engine) releaseOutputLocked(id VarID) []*pendingCall {
	var ready []*pendingCall
	kept := e.pending[:0]
	for _, p := range e.pending {
		if p.remaining.Delete(id) > 0 {
			if len(p.remaining) == 0 {
				ready = append(ready, p)
				continue
			}
		}
		kept = append(kept, p)
	}
	e.pending = kept
	return ready
}

// PendingCalls returns the number of recorded calls whose state is still kept alive by the engine.
func (e *Engine) PendingCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Flush runs the cleanup of all calls whose state is still kept alive by the engine.
func (e *Engine) Flush() {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()
	for _, p := range pending {
		p.run()
	}
}

// Calls returns the records of all calls recorded so far.
func (e *Engine) Calls() []CallRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]CallRecord(nil), e.records...)
}
