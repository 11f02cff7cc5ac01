// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package arrays

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/jitarray/pkg/core/dtypes"
	"github.com/gomlx/jitarray/pkg/core/jit"
	"github.com/gomlx/jitarray/pkg/core/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Type is implemented by everything that can be built by the generators: array descriptors
// (*Descriptor), scalar kinds (ScalarType) and structs (*StructType).
type Type interface {
	TypeName() string
}

// ScalarType is the Type of Go scalars of the given kind. It is the Value of leaf array descriptors.
type ScalarType struct {
	DType dtypes.DType
}

// Scalar returns the ScalarType for dtype.
func Scalar(dtype dtypes.DType) ScalarType {
	return ScalarType{DType: dtype}
}

// TypeName implements Type.
func (s ScalarType) TypeName() string {
	return s.DType.String()
}

// Flags are the structural flags of an array type.
type Flags struct {
	IsVector     bool
	IsComplex    bool
	IsQuaternion bool
	IsMatrix     bool
	IsClass      bool
	IsTensor     bool
}

// Capabilities of an array type. A nil capability means the type doesn't support it, and the
// construction strategies that need it are not used.
type Capabilities struct {
	// InitDefault default (zero) initializes the array. Dynamically sized arrays become empty.
	InitDefault func(a *Array) error

	// Init initializes a dynamically sized array with size zero elements.
	Init func(a *Array, size int) error

	// InitConst initializes a dynamically sized array with size copies of a scalar.
	InitConst func(a *Array, size int, value any) error

	// InitData initializes the array from a flat Go slice `[]T`, where T is the Go type of its DType.
	InitData func(a *Array, size int, data any) error

	// InitCounter initializes the array with 0, 1, ..., size-1.
	InitCounter func(a *Array, size int) error

	GetItem func(a *Array, i int) (any, error)
	SetItem func(a *Array, i int, value any) error

	// Cast initializes the array from src, whose type has the same structure but a different DType (from).
	Cast func(a *Array, src *Array, from dtypes.DType) error

	Len func(a *Array) int

	// Data returns the raw host buffer of the array, a flat `[]T`. It must not be modified.
	Data func(a *Array) (any, error)

	// Index returns the JIT variable that holds the array.
	Index func(a *Array) jit.VarID

	TensorShape func(a *Array) []int
	TensorArray func(a *Array) *Array
}

// Descriptor of an array type, immutable after registration (see Registry.Register).
type Descriptor struct {
	Name string

	// Shape holds the extent of each axis, or shapes.Dynamic.
	Shape []int

	DType   dtypes.DType
	Backend jit.Backend
	Flags

	// Value is the type of the elements along axis 0: another *Descriptor for nested arrays, or a
	// ScalarType for leaves.
	Value Type

	// Domain groups the instances of class arrays, and InstanceType is the Go type of the instances.
	Domain       string
	InstanceType reflect.Type

	Caps Capabilities

	registry *Registry
}

// TypeName implements Type.
func (d *Descriptor) TypeName() string {
	return d.Name
}

// StaticShape returns the shape of the type: its DType and the extent of each axis. It panics if the
// extents are invalid, which Register checks.
func (d *Descriptor) StaticShape() shapes.Shape {
	return shapes.Make(d.DType, d.Shape...)
}

// NDim returns the number of axes of the type.
func (d *Descriptor) NDim() int {
	return len(d.Shape)
}

// IsDynamic returns whether axis 0 is dynamically sized.
func (d *Descriptor) IsDynamic() bool {
	return len(d.Shape) > 0 && d.Shape[0] == shapes.Dynamic
}

// IsJIT returns whether the type is backed by a JIT backend.
func (d *Descriptor) IsJIT() bool {
	return d.Backend.IsJIT()
}

// IsLeaf returns whether the elements of the type are scalars.
func (d *Descriptor) IsLeaf() bool {
	_, ok := d.Value.(ScalarType)
	return ok
}

// Registry returns the registry where the type was registered.
func (d *Descriptor) Registry() *Registry {
	return d.registry
}

// String implements fmt.Stringer.
func (d *Descriptor) String() string {
	var flags []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{d.IsVector, "vector"}, {d.IsComplex, "complex"}, {d.IsQuaternion, "quaternion"},
		{d.IsMatrix, "matrix"}, {d.IsClass, "class"}, {d.IsTensor, "tensor"},
	} {
		if f.set {
			flags = append(flags, f.name)
		}
	}
	return fmt.Sprintf("%s(%s%s, %s, [%s])", d.Name, d.DType, shapes.DimsString(d.Shape), d.Backend,
		strings.Join(flags, ","))
}

// Meta is the projection of a Descriptor used to decide whether two types are compatible. Two types
// are compatible iff their metas are equal (==).
type Meta struct {
	DType   dtypes.DType
	Backend jit.Backend
	NDim    int
	Shape   [shapes.MaxDims]int
	Flags
}

// Meta returns the projection of the descriptor.
func (d *Descriptor) Meta() Meta {
	m := Meta{DType: d.DType, Backend: d.Backend, NDim: len(d.Shape), Flags: d.Flags}
	copy(m.Shape[:], d.Shape)
	return m
}

// Registry of array types, indexed by name and by Meta.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Descriptor
	byMeta map[Meta]*Descriptor
	order  []*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor), byMeta: make(map[Meta]*Descriptor)}
}

// DefaultRegistry holds the builtin types.
var DefaultRegistry = NewRegistry()

// Register validates d and adds it to the DefaultRegistry. See Registry.Register.
func Register(d *Descriptor) *Descriptor {
	return DefaultRegistry.Register(d)
}

// Register validates d and adds it to the registry. It returns d for convenience.
//
// Invalid descriptors are bugs in the code, and Register panics for them. Two descriptors may share
// the same Meta: ByMeta returns the first one registered.
func (r *Registry) Register(d *Descriptor) *Descriptor {
	if err := d.validate(); err != nil {
		exceptions.Panicf("arrays.Register(%q): %v", d.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.byName[d.Name]; found {
		exceptions.Panicf("arrays.Register(%q): type already registered", d.Name)
	}
	d.registry = r
	r.byName[d.Name] = d
	if _, found := r.byMeta[d.Meta()]; !found {
		r.byMeta[d.Meta()] = d
	}
	r.order = append(r.order, d)
	klog.V(2).Infof("arrays: registered %s", d)
	return d
}

func (d *Descriptor) validate() error {
	if d.Name == "" {
		return errors.Errorf("empty name")
	}
	var shape shapes.Shape
	if err := exceptions.TryCatch[error](func() { shape = d.StaticShape() }); err != nil {
		return err
	}
	ndim := shape.Rank()
	if ndim == 0 {
		return errors.Errorf("shape %s has no axes", shape)
	}
	if d.Value == nil {
		return errors.Errorf("missing Value type")
	}
	caps := &d.Caps
	if caps.InitDefault == nil {
		return errors.Errorf("missing InitDefault capability")
	}
	switch {
	case d.IsTensor:
		if caps.TensorShape == nil || caps.TensorArray == nil {
			return errors.Errorf("tensor types require the TensorShape and TensorArray capabilities")
		}
		flat, ok := d.Value.(*Descriptor)
		if !ok || flat.NDim() != 1 || !flat.IsDynamic() || !flat.IsLeaf() {
			return errors.Errorf("the Value of tensor types must be a dynamically sized 1D array type")
		}
		return nil
	case d.IsClass:
		if d.Domain == "" {
			return errors.Errorf("class types require a Domain")
		}
		if d.InstanceType == nil || !d.InstanceType.Comparable() {
			return errors.Errorf("class types require a comparable InstanceType")
		}
		if ndim != 1 || !shape.IsDynamic(0) || !d.IsJIT() {
			return errors.Errorf("class types must be dynamically sized 1D JIT arrays")
		}
	}
	if caps.Len == nil || caps.GetItem == nil || caps.SetItem == nil {
		return errors.Errorf("missing Len, GetItem or SetItem capabilities")
	}
	if shape.IsDynamic(0) && caps.Init == nil {
		return errors.Errorf("dynamically sized types require the Init capability")
	}
	switch value := d.Value.(type) {
	case ScalarType:
		if ndim != 1 {
			return errors.Errorf("leaf types must be 1D, got shape %s", shape)
		}
		if value.DType != d.DType && !d.IsClass {
			return errors.Errorf("DType %s doesn't match Value %s", d.DType, value.DType)
		}
		if d.IsJIT() && !shape.IsDynamic(0) {
			return errors.Errorf("JIT leaf types must be dynamically sized")
		}
	case *Descriptor:
		if ndim != value.NDim()+1 {
			return errors.Errorf("rank %d incompatible with Value %s of rank %d", ndim, value.Name, value.NDim())
		}
		for axis := 1; axis < ndim; axis++ {
			if d.Shape[axis] != value.Shape[axis-1] {
				return errors.Errorf("shape %v incompatible with Value %s of shape %v", d.Shape, value.Name, value.Shape)
			}
			if shape.IsDynamic(axis) && axis != ndim-1 {
				return errors.Errorf("only the last axis of nested types may be dynamically sized, got shape %s", shape)
			}
		}
		if d.DType != value.DType || d.Backend != value.Backend {
			return errors.Errorf("DType/Backend (%s, %s) don't match Value %s", d.DType, d.Backend, value)
		}
	default:
		return errors.Errorf("the Value of nested types must be a *Descriptor or ScalarType, got %T", d.Value)
	}
	if ndim > 1 && shape.IsDynamic(0) {
		return errors.Errorf("a dynamic axis 0 is only allowed for 1D types, got shape %s", shape)
	}
	if d.IsComplex && (ndim != 1 || d.Shape[0] != 2) {
		return errors.Errorf("complex types must have shape [2]")
	}
	if d.IsQuaternion && (ndim != 1 || d.Shape[0] != 4) {
		return errors.Errorf("quaternion types must have shape [4]")
	}
	if d.IsMatrix && (ndim != 2 || d.Shape[0] != d.Shape[1]) {
		return errors.Errorf("matrix types must be square, got shape %v", d.Shape)
	}
	return nil
}

// Lookup returns the type registered with the given name, or nil.
func (r *Registry) Lookup(name string) *Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// ByMeta returns the first type registered with the given projection, or nil.
func (r *Registry) ByMeta(m Meta) *Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byMeta[m]
}

// All returns the registered types, in order of registration.
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Descriptor(nil), r.order...)
}
