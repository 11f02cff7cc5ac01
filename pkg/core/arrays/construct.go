// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package arrays

import (
	"github.com/gomlx/jitarray/pkg/core/dtypes"
	"github.com/gomlx/jitarray/pkg/core/jit"
	"github.com/gomlx/jitarray/pkg/core/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// New creates an array of the given type from the arguments:
//
//   - No arguments: default (zero) initialization. Dynamically sized arrays are empty.
//   - More than one argument: the arguments are the elements along axis 0.
//   - An *Array of the same type: a copy.
//   - An *Array of another type: a cast if the types only differ in DType; a copy of the raw buffer
//     if the argument is a host array with the same layout; a broadcast if it's the type of the
//     elements of the target; otherwise it's imported as a sequence. Importing a dynamically sized
//     JIT array element by element into another one is refused (ErrInefficientImportRefused): it
//     would record one operation per element.
//   - A Sequence, Go slice or array, Iterable or iter.Seq[any]: the elements along axis 0.
//   - Anything else: a scalar broadcast to every element. Complex arrays get it as the real part,
//     quaternions as the real (last) component and matrices on the diagonal.
//
// Tensor types take the arguments of NewTensor: (array) or (array, shape []int).
//
// Errors are wrapped with the name of the type, and no partially initialized array is ever returned.
func New(desc *Descriptor, args ...any) (*Array, error) {
	if desc.IsTensor {
		switch len(args) {
		case 0:
			return NewTensor(desc, nil, nil)
		case 1:
			return NewTensor(desc, args[0], nil)
		case 2:
			shape, ok := args[1].([]int)
			if !ok {
				return nil, errors.Errorf("%s.New(): shape must be a []int, got %T", desc.Name, args[1])
			}
			return NewTensor(desc, args[0], shape)
		default:
			return nil, errors.Errorf("%s.New(): tensors take at most 2 arguments (array, shape), got %d",
				desc.Name, len(args))
		}
	}
	a := alloc(desc)
	if err := initArray(a, args); err != nil {
		a.Finalize()
		return nil, errors.WithMessagef(err, "%s.New()", desc.Name)
	}
	a.ready = true
	return a, nil
}

func initArray(a *Array, args []any) error {
	switch len(args) {
	case 0:
		return a.desc.Caps.InitDefault(a)
	case 1:
	default:
		return initSequence(a, List(args))
	}
	arg := args[0]
	if other, ok := arg.(*Array); ok {
		if !other.ready {
			return Errorf(ItemAccessFailure, "argument of type %s is not initialized", other.desc.Name)
		}
		if other.desc == a.desc {
			return copyArray(a, other)
		}
		if done, err := initFromArray(a, other); done {
			return err
		}
		if a.desc.hasElementType(other.desc) {
			return broadcast(a, other)
		}
		return initSequence(a, other)
	}
	if seq, ok := AsSequence(arg); ok {
		return initSequence(a, seq)
	}
	if list, ok := AsIterable(arg); ok {
		return initSequence(a, list)
	}
	return broadcast(a, arg)
}

// initFromArray tries the array-to-array strategies: cast, raw buffer copy and the refusal of
// element-by-element imports between dynamic JIT arrays.
func initFromArray(a, other *Array) (done bool, err error) {
	d, od := a.desc, other.desc
	target, source := d.Meta(), od.Meta()

	castable := source
	castable.DType = target.DType
	if castable == target && d.Caps.Cast != nil {
		klog.V(2).Infof("%s.New(): cast from %s", d.Name, od.Name)
		return true, d.Caps.Cast(a, other, od.DType)
	}

	hostLayout := target
	hostLayout.Backend = jit.None
	hostLayout.IsVector = true
	if hostLayout == source && d.Caps.InitData != nil && od.Caps.Data != nil {
		klog.V(2).Infof("%s.New(): raw buffer copy from %s", d.Name, od.Name)
		data, err := od.Caps.Data(other)
		if err != nil {
			return true, err
		}
		return true, d.Caps.InitData(a, dtypes.SliceLen(data), data)
	}

	if d.IsJIT() && d.NDim() == 1 && d.IsDynamic() && od.IsJIT() && od.NDim() == 1 && od.IsDynamic() {
		return true, Errorf(InefficientImportRefused,
			"refusing an element-by-element conversion from %s to %s, which would record one operation "+
				"per element; cast the array explicitly instead", od.Name, d.Name)
	}
	return false, nil
}

func initSequence(a *Array, seq Sequence) error {
	d := a.desc
	caps := &d.Caps
	size := seq.Len()
	n := d.Shape[0]
	if n != shapes.Dynamic && n != size {
		return Errorf(ShapeMismatch, "input has the wrong size (expected %d elements, got %d)", n, size)
	}

	if size == 1 && caps.InitConst != nil {
		value, err := seq.Item(0)
		if err != nil {
			return Wrapf(ItemAccessFailure, err, "item retrieval failed")
		}
		if dtypes.IsScalar(value) || d.IsClass {
			return wrapBroadcast(caps.InitConst(a, 1, value), value, d)
		}
	}

	if d.NDim() == 1 && caps.InitData != nil {
		data := d.DType.MakeSlice(size)
		for ii := range size {
			value, err := seq.Item(ii)
			if err != nil {
				return Wrapf(ItemAccessFailure, err, "item retrieval failed")
			}
			converted, err := dtypes.ConvertStrict(d.DType, value)
			if err != nil {
				return Wrapf(BroadcastFailure, err, "could not construct from sequence (invalid type in input)")
			}
			dtypes.SliceSet(data, ii, converted)
		}
		return caps.InitData(a, size, data)
	}

	var err error
	if n == shapes.Dynamic {
		err = caps.Init(a, size)
	} else {
		err = caps.InitDefault(a)
	}
	if err != nil {
		return err
	}
	for ii := range size {
		value, err := seq.Item(ii)
		if err != nil {
			return Wrapf(ItemAccessFailure, err, "item retrieval failed")
		}
		if err := caps.SetItem(a, ii, value); err != nil {
			return Wrapf(ItemAccessFailure, err, "item assignment failed")
		}
	}
	return nil
}

func wrapBroadcast(err error, value any, d *Descriptor) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != 0 {
		return err
	}
	return Wrapf(BroadcastFailure, err, "could not broadcast %T to %s", value, d.Name)
}

// broadcast initializes every element of a with value.
func broadcast(a *Array, value any) error {
	d := a.desc
	caps := &d.Caps
	n := d.Shape[0]
	if n == 0 {
		return Errorf(ShapeMismatch, "input has the wrong size (expected 0 elements, got 1)")
	}

	// Convert the value to the element type.
	element := value
	var subArray *Array
	switch valueType := d.Value.(type) {
	case ScalarType:
		if !d.IsClass {
			converted, err := dtypes.Convert(valueType.DType, value)
			if err != nil {
				return wrapBroadcast(err, value, d)
			}
			element = converted
		}
	case *Descriptor:
		if d.IsMatrix && dtypes.IsScalar(value) {
			converted, err := dtypes.Convert(d.DType, value)
			if err != nil {
				return wrapBroadcast(err, value, d)
			}
			element = converted
			break
		}
		var err error
		subArray, err = New(valueType, value)
		if err != nil {
			return wrapBroadcast(err, value, d)
		}
		defer subArray.Finalize()
		element = subArray
	}

	if n == shapes.Dynamic {
		if caps.InitConst != nil {
			return wrapBroadcast(caps.InitConst(a, 1, element), value, d)
		}
		if err := caps.Init(a, 1); err != nil {
			return err
		}
		n = 1
	} else if err := caps.InitDefault(a); err != nil {
		return err
	}

	set := func(i int, v any) error {
		return Wrapf(ItemAccessFailure, caps.SetItem(a, i, v), "item assignment failed")
	}
	switch {
	case d.IsComplex:
		return set(0, element)
	case d.IsQuaternion:
		return set(3, element)
	case d.IsMatrix && subArray == nil:
		for ii := range n {
			row, err := New(d.Value.(*Descriptor))
			if err != nil {
				return err
			}
			err = row.SetEntry(ii, element)
			if err == nil {
				err = set(ii, row)
			}
			row.Finalize()
			if err != nil {
				return err
			}
		}
		return nil
	}
	for ii := range n {
		if err := set(ii, element); err != nil {
			return err
		}
	}
	return nil
}
