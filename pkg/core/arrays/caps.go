// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package arrays

import (
	"reflect"
	"slices"

	"github.com/gomlx/jitarray/pkg/core/dtypes"
	"github.com/gomlx/jitarray/pkg/core/jit"
	"github.com/gomlx/jitarray/pkg/core/shapes"
	"github.com/pkg/errors"
)

// castScalar converts value to dtype with the semantics of a Go conversion (integers wrap around,
// floats are truncated), used by the cast capabilities.
func castScalar(dtype dtypes.DType, value any) (any, error) {
	from := dtypes.FromAny(value)
	if from == dtypes.InvalidDType {
		return nil, errors.WithMessagef(dtypes.ErrNotScalar, "cannot cast %T to %s", value, dtype)
	}
	if dtype == dtypes.Bool || dtype == dtypes.Float16 || from == dtypes.Bool || from == dtypes.Float16 {
		return dtypes.Convert(dtype, value)
	}
	return reflect.ValueOf(value).Convert(dtype.GoType()).Interface(), nil
}

func checkData(a *Array, size int, data any) error {
	if dtype := dtypes.SliceDType(data); dtype != a.desc.DType || reflect.TypeOf(data).Elem() != dtype.GoType() {
		return Errorf(UnsupportedDtype, "%s: raw data of type %T is not a []%s", a.desc.Name, data, a.desc.DType.GoStr())
	}
	if n := dtypes.SliceLen(data); n != size {
		return Errorf(ShapeMismatch, "%s: raw data has %d elements, expected %d", a.desc.Name, n, size)
	}
	return nil
}

// HostCaps returns the capabilities of host leaf arrays of the given kind and size, which may be
// shapes.Dynamic. Elements are stored in a flat Go slice.
func HostCaps(dtype dtypes.DType, size int) Capabilities {
	caps := Capabilities{
		InitDefault: func(a *Array) error {
			a.host = dtype.MakeSlice(max(size, 0))
			return nil
		},
		InitData: func(a *Array, n int, data any) error {
			if size != shapes.Dynamic && n != size {
				return Errorf(ShapeMismatch, "input has the wrong size (expected %d elements, got %d)", size, n)
			}
			if err := checkData(a, n, data); err != nil {
				return err
			}
			a.host = dtypes.SliceClone(data)
			return nil
		},
		GetItem: func(a *Array, i int) (any, error) {
			return dtypes.SliceGet(a.host, i), nil
		},
		SetItem: func(a *Array, i int, value any) error {
			converted, err := dtypes.Convert(dtype, value)
			if err != nil {
				return err
			}
			dtypes.SliceSet(a.host, i, converted)
			return nil
		},
		Cast: func(a *Array, src *Array, from dtypes.DType) error {
			n := dtypes.SliceLen(src.host)
			out := dtype.MakeSlice(n)
			for ii := range n {
				converted, err := castScalar(dtype, dtypes.SliceGet(src.host, ii))
				if err != nil {
					return err
				}
				dtypes.SliceSet(out, ii, converted)
			}
			a.host = out
			return nil
		},
		Len: func(a *Array) int {
			if a.host == nil {
				return 0
			}
			return dtypes.SliceLen(a.host)
		},
		Data: func(a *Array) (any, error) {
			return a.host, nil
		},
	}
	if size == shapes.Dynamic {
		caps.Init = func(a *Array, n int) error {
			a.host = dtype.MakeSlice(n)
			return nil
		}
		caps.InitConst = func(a *Array, n int, value any) error {
			converted, err := dtypes.Convert(dtype, value)
			if err != nil {
				return err
			}
			data := dtype.MakeSlice(n)
			rv, cv := reflect.ValueOf(data), reflect.ValueOf(converted)
			for ii := range n {
				rv.Index(ii).Set(cv)
			}
			a.host = data
			return nil
		}
		if dtype == dtypes.Uint32 {
			caps.InitCounter = func(a *Array, n int) error {
				data := make([]uint32, n)
				for ii := range data {
					data[ii] = uint32(ii)
				}
				a.host = data
				return nil
			}
		}
	}
	return caps
}

// JITCaps returns the capabilities of dynamically sized JIT leaf arrays of the given kind and backend.
// Elements are stored in a variable of the array's engine.
func JITCaps(backend jit.Backend, dtype dtypes.DType) Capabilities {
	caps := Capabilities{
		InitDefault: func(a *Array) error {
			a.index = 0
			return nil
		},
		Init: func(a *Array, n int) (err error) {
			a.index, err = a.engine.Zeros(backend, dtype, n)
			return
		},
		InitConst: func(a *Array, n int, value any) (err error) {
			a.index, err = a.engine.Literal(backend, dtype, n, value)
			return
		},
		InitData: func(a *Array, n int, data any) (err error) {
			if err = checkData(a, n, data); err != nil {
				return err
			}
			a.index, err = a.engine.FromData(backend, data)
			return
		},
		GetItem: func(a *Array, i int) (any, error) {
			return a.engine.Read(a.index, i)
		},
		SetItem: func(a *Array, i int, value any) (err error) {
			a.index, err = a.engine.Write(a.index, i, value)
			return
		},
		Cast: func(a *Array, src *Array, from dtypes.DType) (err error) {
			if src.index == 0 {
				a.index = 0
				return nil
			}
			a.engine = src.engine
			a.index, err = src.engine.Cast(src.index, dtype)
			return
		},
		Len:   jitLen,
		Index: jitIndex,
	}
	if dtype == dtypes.Uint32 {
		caps.InitCounter = func(a *Array, n int) (err error) {
			a.index, err = a.engine.Counter(backend, n)
			return
		}
	}
	return caps
}

func jitLen(a *Array) int {
	if a.index == 0 {
		return 0
	}
	n, err := a.engine.Size(a.index)
	if err != nil {
		return 0
	}
	return n
}

func jitIndex(a *Array) jit.VarID {
	return a.index
}

// ClassCaps returns the capabilities of class arrays: dynamically sized JIT arrays of instances,
// stored as Uint32 instance IDs of the type's Domain (0 for nil instances).
func ClassCaps(backend jit.Backend) Capabilities {
	instanceID := func(a *Array, value any) (uint32, error) {
		if value == nil {
			return 0, nil
		}
		if t := reflect.TypeOf(value); !t.AssignableTo(a.desc.InstanceType) {
			return 0, Errorf(TypeIncompatible, "%s: instance of type %s is not a %s", a.desc.Name, t, a.desc.InstanceType)
		}
		return a.engine.RegisterInstance(a.desc.Domain, value)
	}
	return Capabilities{
		InitDefault: func(a *Array) error {
			a.index = 0
			return nil
		},
		Init: func(a *Array, n int) (err error) {
			a.index, err = a.engine.Zeros(backend, dtypes.Uint32, n)
			return
		},
		InitConst: func(a *Array, n int, value any) error {
			id, err := instanceID(a, value)
			if err != nil {
				return err
			}
			a.index, err = a.engine.Literal(backend, dtypes.Uint32, n, id)
			return err
		},
		GetItem: func(a *Array, i int) (any, error) {
			id, err := a.engine.Read(a.index, i)
			if err != nil {
				return nil, err
			}
			return a.engine.Instance(a.desc.Domain, id.(uint32)), nil
		},
		SetItem: func(a *Array, i int, value any) error {
			id, err := instanceID(a, value)
			if err != nil {
				return err
			}
			a.index, err = a.engine.Write(a.index, i, id)
			return err
		},
		Len:   jitLen,
		Index: jitIndex,
	}
}

// NestedCaps returns the capabilities of arrays of size sub-arrays of the type's Value.
func NestedCaps(size int) Capabilities {
	value := func(a *Array) *Descriptor {
		return a.desc.Value.(*Descriptor)
	}
	return Capabilities{
		InitDefault: func(a *Array) error {
			a.items = make([]*Array, size)
			for ii := range a.items {
				item, err := New(value(a))
				if err != nil {
					return err
				}
				a.items[ii] = item
			}
			return nil
		},
		GetItem: func(a *Array, i int) (any, error) {
			return a.items[i].Clone()
		},
		SetItem: func(a *Array, i int, v any) error {
			item, err := New(value(a), v)
			if err != nil {
				return err
			}
			a.items[i].Finalize()
			a.items[i] = item
			return nil
		},
		Cast: func(a *Array, src *Array, from dtypes.DType) error {
			a.items = make([]*Array, len(src.items))
			for ii, srcItem := range src.items {
				item, err := New(value(a), srcItem)
				if err != nil {
					return err
				}
				a.items[ii] = item
			}
			return nil
		},
		Len: func(a *Array) int {
			return len(a.items)
		},
	}
}

// TensorCaps returns the capabilities of tensor types: a flat array of the type's Value plus a shape.
func TensorCaps() Capabilities {
	flatType := func(a *Array) *Descriptor {
		return a.desc.Value.(*Descriptor)
	}
	return Capabilities{
		InitDefault: func(a *Array) error {
			flat, err := New(flatType(a))
			if err != nil {
				return err
			}
			a.flat, a.shape = flat, []int{0}
			return nil
		},
		GetItem: tensorGetItem,
		Cast: func(a *Array, src *Array, from dtypes.DType) error {
			flat, err := New(flatType(a), src.flat)
			if err != nil {
				return err
			}
			a.flat, a.shape = flat, slices.Clone(src.shape)
			return nil
		},
		Len: func(a *Array) int {
			if len(a.shape) == 0 {
				return 0
			}
			return a.shape[0]
		},
		TensorShape: func(a *Array) []int {
			return a.shape
		},
		TensorArray: func(a *Array) *Array {
			return a.flat
		},
	}
}

// tensorGetItem returns a scalar for 1D tensors, or a tensor with the sub-block i otherwise.
func tensorGetItem(a *Array, i int) (any, error) {
	if len(a.shape) == 1 {
		return a.flat.Entry(i)
	}
	stride := shapes.Strides(a.shape)[0]
	data, err := a.flat.Data()
	if err != nil {
		return nil, err
	}
	block := reflect.ValueOf(data).Slice(i*stride, (i+1)*stride).Interface()
	return NewTensor(a.desc, block, a.shape[1:])
}
