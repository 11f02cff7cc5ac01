// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"reflect"

	"github.com/gomlx/jitarray/pkg/core/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

func checkBackend(backend Backend) error {
	if !backend.IsJIT() {
		return errors.Errorf("jit: backend %s is not a JIT backend", backend)
	}
	return nil
}

// Literal creates a variable of the given size with all elements set to value, converted to dtype.
func (e *Engine) Literal(backend Backend, dtype dtypes.DType, size int, value any) (VarID, error) {
	if err := checkBackend(backend); err != nil {
		return 0, err
	}
	if size < 0 {
		return 0, errors.Errorf("jit.Literal(): negative size %d", size)
	}
	converted, err := dtypes.Convert(dtype, value)
	if err != nil {
		return 0, errors.WithMessagef(err, "jit.Literal()")
	}
	data := dtype.MakeSlice(size)
	rv := reflect.ValueOf(data)
	cv := reflect.ValueOf(converted)
	for ii := range size {
		rv.Index(ii).Set(cv)
	}
	return e.newVar(backend, dtype, data), nil
}

// Zeros creates a zero-filled variable of the given size.
func (e *Engine) Zeros(backend Backend, dtype dtypes.DType, size int) (VarID, error) {
	if err := checkBackend(backend); err != nil {
		return 0, err
	}
	if size < 0 {
		return 0, errors.Errorf("jit.Zeros(): negative size %d", size)
	}
	return e.newVar(backend, dtype, dtype.MakeSlice(size)), nil
}

// FromData creates a variable by copying a flat Go slice `[]T`, where T must be the Go type of a
// supported dtype.
func (e *Engine) FromData(backend Backend, flat any) (VarID, error) {
	if err := checkBackend(backend); err != nil {
		return 0, err
	}
	dtype := dtypes.SliceDType(flat)
	if dtype == dtypes.InvalidDType {
		return 0, errors.Errorf("jit.FromData(): unsupported data type %T", flat)
	}
	data := dtypes.SliceClone(flat)
	if reflect.TypeOf(flat).Elem() != dtype.GoType() {
		// E.g.: []int is stored as []int64.
		src := reflect.ValueOf(flat)
		out := reflect.MakeSlice(reflect.SliceOf(dtype.GoType()), src.Len(), src.Len())
		for ii := range src.Len() {
			out.Index(ii).Set(src.Index(ii).Convert(dtype.GoType()))
		}
		data = out.Interface()
	}
	return e.newVar(backend, dtype, data), nil
}

// Counter creates a Uint32 variable with the values 0, 1, ..., size-1.
func (e *Engine) Counter(backend Backend, size int) (VarID, error) {
	if err := checkBackend(backend); err != nil {
		return 0, err
	}
	if size < 0 {
		return 0, errors.Errorf("jit.Counter(): negative size %d", size)
	}
	data := make([]uint32, size)
	for ii := range data {
		data[ii] = uint32(ii)
	}
	return e.newVar(backend, dtypes.Uint32, data), nil
}

// Read returns the element i of the variable, as the Go type of its dtype.
func (e *Engine) Read(id VarID, i int) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	n := dtypes.SliceLen(v.data)
	if i < 0 || i >= n {
		return nil, errors.Errorf("jit.Read(): index %d out of bounds for variable of size %d", i, n)
	}
	return dtypes.SliceGet(v.data, i), nil
}

// Write sets element i of the variable to value, converted to its dtype, and returns the variable
// that holds the result.
//
// If the variable is shared (more than one reference), it is copied first: the returned VarID is then a
// new variable, and the reference the caller held on the old one is released. Otherwise, the same
// VarID is returned.
func (e *Engine) Write(id VarID, i int, value any) (VarID, error) {
	e.mu.Lock()
	v, err := e.lookupLocked(id)
	if err != nil {
		e.mu.Unlock()
		return id, err
	}
	n := dtypes.SliceLen(v.data)
	if i < 0 || i >= n {
		e.mu.Unlock()
		return id, errors.Errorf("jit.Write(): index %d out of bounds for variable of size %d", i, n)
	}
	converted, err := dtypes.Convert(v.dtype, value)
	if err != nil {
		e.mu.Unlock()
		return id, errors.WithMessagef(err, "jit.Write()")
	}
	target := id
	if v.refs > 1 {
		target = e.newVarLocked(v.backend, v.dtype, dtypes.SliceClone(v.data))
	}
	dtypes.SliceSet(e.vars[target].data, i, converted)
	e.mu.Unlock()
	if target != id {
		e.DecRef(id)
	}
	return target, nil
}

// Data returns a copy of the contents of the variable as a flat Go slice `[]T`.
func (e *Engine) Data(id VarID) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	return dtypes.SliceClone(v.data), nil
}

// Cast converts the variable to another dtype, with the semantics of a Go conversion between numeric
// types. Casting to the same dtype returns a new reference to the same variable.
func (e *Engine) Cast(id VarID, dtype dtypes.DType) (VarID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.lookupLocked(id)
	if err != nil {
		return 0, err
	}
	if v.dtype == dtype {
		v.refs++
		return id, nil
	}
	if !dtype.IsSupported() {
		return 0, errors.Errorf("jit.Cast(): unsupported dtype %s", dtype)
	}
	n := dtypes.SliceLen(v.data)
	out := dtype.MakeSlice(n)
	for ii := range n {
		storeNumber(out, ii, loadNumber(v.data, ii))
	}
	return e.newVarLocked(v.backend, dtype, out), nil
}

// Fma returns a*b + c, computed element-wise. All operands must have the same dtype and backend, and
// each must have either size 1 (broadcast) or the common size.
func (e *Engine) Fma(a, b, c VarID) (VarID, error) {
	return e.ternary("jit.Fma()", a, b, c, fmaNumbers)
}

// Add returns a + b, computed element-wise, with the same broadcasting rules as Fma.
func (e *Engine) Add(a, b VarID) (VarID, error) {
	return e.ternary("jit.Add()", a, b, 0, func(x, y, _ number) number { return addNumbers(x, y) })
}

func (e *Engine) ternary(op string, a, b, c VarID, fn func(x, y, z number) number) (VarID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := []VarID{a, b}
	if c != 0 {
		ids = append(ids, c)
	}
	operands := make([]*variable, len(ids))
	size := 1
	for ii, id := range ids {
		v, err := e.lookupLocked(id)
		if err != nil {
			return 0, errors.WithMessage(err, op)
		}
		if ii > 0 && (v.dtype != operands[0].dtype || v.backend != operands[0].backend) {
			return 0, errors.Errorf("%s: operands have incompatible types (%s, %s) and (%s, %s)",
				op, operands[0].backend, operands[0].dtype, v.backend, v.dtype)
		}
		operands[ii] = v
		n := dtypes.SliceLen(v.data)
		if n != 1 {
			if size != 1 && n != size {
				return 0, errors.Errorf("%s: operands have incompatible sizes %d and %d", op, size, n)
			}
			size = n
		}
	}
	dtype := operands[0].dtype
	if !dtype.IsArithmetic() {
		return 0, errors.Errorf("%s: dtype %s doesn't support arithmetic", op, dtype)
	}
	out := dtype.MakeSlice(size)
	at := func(v *variable, ii int) number {
		if dtypes.SliceLen(v.data) == 1 {
			return loadNumber(v.data, 0)
		}
		return loadNumber(v.data, ii)
	}
	for ii := range size {
		x, y := at(operands[0], ii), at(operands[1], ii)
		var z number
		if len(operands) > 2 {
			z = at(operands[2], ii)
		}
		storeNumber(out, ii, fn(x, y, z))
	}
	return e.newVarLocked(operands[0].backend, dtype, out), nil
}

// Gather returns a new variable with the elements of id at the given positions.
func (e *Engine) Gather(id VarID, positions []int) (VarID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.lookupLocked(id)
	if err != nil {
		return 0, err
	}
	src := reflect.ValueOf(v.data)
	out := reflect.MakeSlice(src.Type(), len(positions), len(positions))
	for ii, pos := range positions {
		if pos < 0 || pos >= src.Len() {
			return 0, errors.Errorf("jit.Gather(): position %d out of bounds for r%d of size %d", pos, id, src.Len())
		}
		out.Index(ii).Set(src.Index(pos))
	}
	return e.newVarLocked(v.backend, v.dtype, out.Interface()), nil
}

// number is the widened representation of an element used by the arithmetic operations.
type number struct {
	kind numberKind
	f    float64
	i    int64
	u    uint64
}

type numberKind uint8

const (
	kindFloat numberKind = iota
	kindSigned
	kindUnsigned
	kindBool
)

func loadNumber(flat any, ii int) number {
	switch data := flat.(type) {
	case []bool:
		if data[ii] {
			return number{kind: kindBool, f: 1, i: 1, u: 1}
		}
		return number{kind: kindBool}
	case []float16.Float16:
		return floatNumber(float64(data[ii].Float32()))
	case []float32:
		return floatNumber(float64(data[ii]))
	case []float64:
		return floatNumber(data[ii])
	case []int8:
		return signedNumber(data[ii])
	case []int16:
		return signedNumber(data[ii])
	case []int32:
		return signedNumber(data[ii])
	case []int64:
		return signedNumber(data[ii])
	case []uint8:
		return unsignedNumber(data[ii])
	case []uint16:
		return unsignedNumber(data[ii])
	case []uint32:
		return unsignedNumber(data[ii])
	case []uint64:
		return unsignedNumber(data[ii])
	case []uintptr:
		return unsignedNumber(data[ii])
	}
	panic(errors.Errorf("jit: unsupported data type %T", flat))
}

func floatNumber(f float64) number {
	return number{kind: kindFloat, f: f, i: int64(f), u: uint64(int64(f))}
}

func signedNumber[T constraints.Signed](v T) number {
	return number{kind: kindSigned, f: float64(v), i: int64(v), u: uint64(v)}
}

func unsignedNumber[T constraints.Unsigned](v T) number {
	return number{kind: kindUnsigned, f: float64(v), i: int64(v), u: uint64(v)}
}

func storeNumber(flat any, ii int, n number) {
	switch data := flat.(type) {
	case []bool:
		data[ii] = n.f != 0
	case []float16.Float16:
		data[ii] = float16.Fromfloat32(float32(n.f))
	case []float32:
		data[ii] = float32(n.f)
	case []float64:
		data[ii] = n.f
	case []int8:
		data[ii] = int8(n.i)
	case []int16:
		data[ii] = int16(n.i)
	case []int32:
		data[ii] = int32(n.i)
	case []int64:
		data[ii] = n.i
	case []uint8:
		data[ii] = uint8(n.u)
	case []uint16:
		data[ii] = uint16(n.u)
	case []uint32:
		data[ii] = uint32(n.u)
	case []uint64:
		data[ii] = n.u
	case []uintptr:
		data[ii] = uintptr(n.u)
	default:
		panic(errors.Errorf("jit: unsupported data type %T", flat))
	}
}

func fmaNumbers(x, y, z number) number {
	switch x.kind {
	case kindFloat:
		return floatNumber(x.f*y.f + z.f)
	case kindSigned:
		return signedNumber(x.i*y.i + z.i)
	default:
		return unsignedNumber(x.u*y.u + z.u)
	}
}

func addNumbers(x, y number) number {
	switch x.kind {
	case kindFloat:
		return floatNumber(x.f + y.f)
	case kindSigned:
		return signedNumber(x.i + y.i)
	default:
		return unsignedNumber(x.u + y.u)
	}
}
