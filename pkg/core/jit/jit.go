// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package jit implements the JIT engine that backs dynamically sized arrays: reference counted
// variables with a handful of vectorized operations (constants, counters, casts, fused multiply-add),
// the symbolic call recording used by polymorphic calls, an instance registry for instance arrays, and
// device memory helpers.
//
// Variables are identified by a VarID. Every function that returns a VarID transfers one reference
// to the caller, which must eventually release it with Engine.DecRef.
//
// # Configuration
//
// The Default engine is configured from the environment variable JITARRAY_JIT, a comma-separated list
// of options (see New):
//
//   - "symbolic" (default) or "evaluated": the call recording mode, see Engine.RecordCall.
//   - "keep_call_state": the engine keeps the state of recorded calls alive until their outputs are
//     released, instead of letting the caller clean it up immediately.
//   - "memory_limit=<size>": limit for the device memory helpers, e.g. "memory_limit=512MiB".
package jit

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/jitarray/pkg/core/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Backend of a JIT variable or array type.
type Backend uint8

const (
	// None is used by host-only arrays, whose storage is plain Go memory.
	None Backend = iota

	// LLVM is the CPU JIT backend.
	LLVM

	// CUDA is the GPU JIT backend.
	CUDA

	// Invalid marks an unknown backend.
	Invalid
)

// String implements fmt.Stringer.
func (b Backend) String() string {
	switch b {
	case None:
		return "None"
	case LLVM:
		return "LLVM"
	case CUDA:
		return "CUDA"
	default:
		return "Invalid"
	}
}

// IsJIT returns whether the backend is one of the JIT backends.
func (b Backend) IsJIT() bool {
	return b == LLVM || b == CUDA
}

// VarID identifies a variable in an Engine. The zero value means "no variable".
type VarID uint32

// ConfigEnvVar is the environment variable with the configuration of the Default engine.
const ConfigEnvVar = "JITARRAY_JIT"

// Config of an Engine.
type Config struct {
	// Symbolic selects the symbolic call recording mode (the default), where every branch of a call is
	// traced once on the full inputs. Otherwise, calls are evaluated: only branches with active lanes
	// are run, on inputs gathered to those lanes.
	Symbolic bool

	// KeepCallState makes RecordCall return done=false when the caller allows it, keeping the call state
	// alive until all the outputs of the call are released.
	KeepCallState bool

	// MemoryLimit for the device memory helpers, in bytes. 0 means no limit.
	MemoryLimit uint64
}

// ParseConfig parses a comma-separated configuration string, see package documentation.
func ParseConfig(config string) (Config, error) {
	c := Config{Symbolic: true}
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, "=")
		switch key {
		case "symbolic":
			c.Symbolic = true
		case "evaluated":
			c.Symbolic = false
		case "keep_call_state":
			c.KeepCallState = true
		case "memory_limit":
			if !hasValue {
				return c, errors.Errorf("jit configuration %q: memory_limit requires a value", config)
			}
			limit, err := humanize.ParseBytes(value)
			if err != nil {
				return c, errors.Wrapf(err, "jit configuration %q: invalid memory_limit", config)
			}
			c.MemoryLimit = limit
		default:
			return c, errors.Errorf("jit configuration %q: unknown option %q", config, key)
		}
	}
	return c, nil
}

// String returns the configuration in the format accepted by ParseConfig.
func (c Config) String() string {
	parts := []string{"evaluated"}
	if c.Symbolic {
		parts[0] = "symbolic"
	}
	if c.KeepCallState {
		parts = append(parts, "keep_call_state")
	}
	if c.MemoryLimit > 0 {
		parts = append(parts, fmt.Sprintf("memory_limit=%d", c.MemoryLimit))
	}
	return strings.Join(parts, ",")
}

// Engine holds JIT variables and the state of recorded calls.
//
// It is safe for concurrent use. Callbacks given to RecordCall are invoked without holding the
// engine's internal lock, so they can use the engine freely.
type Engine struct {
	mu     sync.Mutex
	config Config

	vars   map[VarID]*variable
	nextID VarID

	domains map[string]*domain
	pending []*pendingCall
	records []CallRecord

	device deviceHeap
}

type variable struct {
	backend Backend
	dtype   dtypes.DType
	// data is always a materialized flat slice `[]T`.
	data any
	refs int
}

// New creates a new Engine with the given configuration string (see ParseConfig).
func New(config string) (*Engine, error) {
	c, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(c), nil
}

// NewWithConfig creates a new Engine with the given configuration.
func NewWithConfig(config Config) *Engine {
	return &Engine{
		config:  config,
		vars:    make(map[VarID]*variable),
		domains: make(map[string]*domain),
		device:  deviceHeap{allocs: make(map[DevicePtr]*allocation), limit: config.MemoryLimit},
	}
}

var defaultEngine atomic.Pointer[Engine]

func init() {
	config, _ := os.LookupEnv(ConfigEnvVar)
	e, err := New(config)
	if err != nil {
		klog.Errorf("Invalid $%s, using default configuration: %+v", ConfigEnvVar, err)
		e = NewWithConfig(Config{Symbolic: true})
	}
	defaultEngine.Store(e)
}

// Default returns the process-wide engine used by array types.
func Default() *Engine {
	return defaultEngine.Load()
}

// SetDefault replaces the process-wide engine and returns the previous one.
func SetDefault(e *Engine) (previous *Engine) {
	return defaultEngine.Swap(e)
}

// Config returns the configuration of the engine.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

// newVarLocked registers a new variable with one reference. It must be called with e.mu held.
func (e *Engine) newVarLocked(backend Backend, dtype dtypes.DType, data any) VarID {
	e.nextID++
	id := e.nextID
	e.vars[id] = &variable{backend: backend, dtype: dtype, data: data, refs: 1}
	return id
}

func (e *Engine) newVar(backend Backend, dtype dtypes.DType, data any) VarID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.newVarLocked(backend, dtype, data)
}

// lookupLocked returns the variable or an error. It must be called with e.mu held.
func (e *Engine) lookupLocked(id VarID) (*variable, error) {
	v, found := e.vars[id]
	if !found {
		return nil, errors.Errorf("jit: invalid variable r%d", id)
	}
	return v, nil
}

func (e *Engine) lookup(id VarID) (*variable, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lookupLocked(id)
}

// IncRef takes one more reference to the variable.
func (e *Engine) IncRef(id VarID) {
	if id == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, found := e.vars[id]; found {
		v.refs++
	}
}

// DecRef releases one reference to the variable, freeing it when no references are left.
//
// Freeing the last output of a call recorded with a deferred cleanup runs that cleanup.
func (e *Engine) DecRef(id VarID) {
	if id == 0 {
		return
	}
	var cleanups []*pendingCall
	e.mu.Lock()
	if v, found := e.vars[id]; found {
		v.refs--
		if v.refs <= 0 {
			delete(e.vars, id)
			cleanups = e.releaseOutputLocked(id)
		}
	}
	e.mu.Unlock()
	for _, p := range cleanups {
		p.run()
	}
}

// RefCount returns the number of references to the variable, or 0 if it doesn't exist.
func (e *Engine) RefCount(id VarID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, found := e.vars[id]; found {
		return v.refs
	}
	return 0
}

// NumVars returns the number of live variables.
func (e *Engine) NumVars() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.vars)
}

// Size returns the number of elements of the variable.
func (e *Engine) Size(id VarID) (int, error) {
	v, err := e.lookup(id)
	if err != nil {
		return 0, err
	}
	return dtypes.SliceLen(v.data), nil
}

// DType returns the element kind of the variable.
func (e *Engine) DType(id VarID) (dtypes.DType, error) {
	v, err := e.lookup(id)
	if err != nil {
		return dtypes.InvalidDType, err
	}
	return v.dtype, nil
}

// Backend returns the backend of the variable.
func (e *Engine) Backend(id VarID) (Backend, error) {
	v, err := e.lookup(id)
	if err != nil {
		return Invalid, err
	}
	return v.backend, nil
}

// String returns a description of the variable, for debugging.
func (e *Engine) String(id VarID) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.lookupLocked(id)
	if err != nil {
		return fmt.Sprintf("r%d(invalid)", id)
	}
	return fmt.Sprintf("r%d(%s, %s, size=%d, refs=%d)", id, v.backend, v.dtype, dtypes.SliceLen(v.data), v.refs)
}
