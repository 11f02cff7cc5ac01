// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"
)

// DevicePtr is the address of a device allocation. The zero value is the null pointer.
type DevicePtr uintptr

// DriverResult is a driver status code, following the CUDA driver numbering.
type DriverResult int

// Driver results reported by the device memory helpers.
const (
	Success         DriverResult = 0
	InvalidValue    DriverResult = 1
	OutOfMemory     DriverResult = 2
	NotInitialized  DriverResult = 3
	InvalidHandle   DriverResult = 400
	IllegalAddress  DriverResult = 700
	UnknownDriverOp DriverResult = 999
)

var driverResultNames = map[DriverResult]string{
	Success:         "CUDA_SUCCESS",
	InvalidValue:    "CUDA_ERROR_INVALID_VALUE",
	OutOfMemory:     "CUDA_ERROR_OUT_OF_MEMORY",
	NotInitialized:  "CUDA_ERROR_NOT_INITIALIZED",
	InvalidHandle:   "CUDA_ERROR_INVALID_HANDLE",
	IllegalAddress:  "CUDA_ERROR_ILLEGAL_ADDRESS",
	UnknownDriverOp: "CUDA_ERROR_UNKNOWN",
}

// String implements fmt.Stringer.
func (r DriverResult) String() string {
	if name, found := driverResultNames[r]; found {
		return name
	}
	return fmt.Sprintf("CUDA_ERROR(%d)", int(r))
}

// DriverError is returned by the device memory helpers.
type DriverError struct {
	Op     string
	Result DriverResult
	Detail string
}

// Error implements error.
func (e *DriverError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("jit.%s(): %s", e.Op, e.Result)
	}
	return fmt.Sprintf("jit.%s(): %s (%s)", e.Op, e.Result, e.Detail)
}

type allocation struct {
	data    []byte
	managed bool
}

// deviceHeap simulates the device memory of the CUDA backend, always in host memory.
type deviceHeap struct {
	allocs map[DevicePtr]*allocation
	next   DevicePtr
	used   uint64
	limit  uint64
}

const deviceAlignment = 256

func (e *Engine) malloc(op string, size int, managed bool) (DevicePtr, error) {
	if size < 0 {
		return 0, &DriverError{Op: op, Result: InvalidValue, Detail: fmt.Sprintf("size %d", size)}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	h := &e.device
	if h.limit > 0 && h.used+uint64(size) > h.limit {
		return 0, &DriverError{Op: op, Result: OutOfMemory,
			Detail: fmt.Sprintf("requested %s with %s in use, limit is %s",
				MemString(uint64(size)), MemString(h.used), MemString(h.limit))}
	}
	if h.next == 0 {
		h.next = deviceAlignment
	}
	ptr := h.next
	h.next += DevicePtr((size/deviceAlignment + 1) * deviceAlignment)
	h.allocs[ptr] = &allocation{data: make([]byte, size), managed: managed}
	h.used += uint64(size)
	klog.V(2).Infof("jit.%s(): %s at %#x", op, MemString(uint64(size)), uintptr(ptr))
	return ptr, nil
}

// Malloc allocates size bytes of device memory. The contents are undefined (in practice zero).
func (e *Engine) Malloc(size int) (DevicePtr, error) {
	return e.malloc("Malloc", size, false)
}

// MallocZeroed allocates size bytes of zero-initialized device memory.
func (e *Engine) MallocZeroed(size int) (DevicePtr, error) {
	return e.malloc("MallocZeroed", size, false)
}

// MallocManaged allocates size bytes of memory accessible from both the host and the device.
func (e *Engine) MallocManaged(size int) (DevicePtr, error) {
	return e.malloc("MallocManaged", size, true)
}

// Free releases a device allocation. Freeing the null pointer is a no-op.
func (e *Engine) Free(ptr DevicePtr) error {
	if ptr == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	a, found := e.device.allocs[ptr]
	if !found {
		return &DriverError{Op: "Free", Result: InvalidValue, Detail: fmt.Sprintf("unknown pointer %#x", uintptr(ptr))}
	}
	delete(e.device.allocs, ptr)
	e.device.used -= uint64(len(a.data))
	return nil
}

// findLocked returns the allocation containing [ptr, ptr+size) and the offset of ptr within it.
func (e *Engine) findLocked(op string, ptr DevicePtr, size int) ([]byte, error) {
	for base, a := range e.device.allocs {
		if ptr >= base && ptr < base+DevicePtr(len(a.data))+1 {
			offset := int(ptr - base)
			if offset+size > len(a.data) {
				break
			}
			return a.data[offset : offset+size], nil
		}
	}
	return nil, &DriverError{Op: op, Result: IllegalAddress,
		Detail: fmt.Sprintf("%d bytes at %#x", size, uintptr(ptr))}
}

// MemcpyToDevice copies src into device memory starting at dst.
func (e *Engine) MemcpyToDevice(dst DevicePtr, src []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	mem, err := e.findLocked("MemcpyToDevice", dst, len(src))
	if err != nil {
		return err
	}
	copy(mem, src)
	return nil
}

// MemcpyFromDevice copies len(dst) bytes of device memory starting at src into dst.
func (e *Engine) MemcpyFromDevice(dst []byte, src DevicePtr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	mem, err := e.findLocked("MemcpyFromDevice", src, len(dst))
	if err != nil {
		return err
	}
	copy(dst, mem)
	return nil
}

// DeviceMemoryInUse returns the number of bytes currently allocated on the device.
func (e *Engine) DeviceMemoryInUse() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.device.used
}

// Close runs the pending cleanups (see Flush) and releases the device allocations still alive.
// Each leaked allocation is reported in the returned error.
func (e *Engine) Close() error {
	e.Flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	for ptr, a := range e.device.allocs {
		err = multierr.Append(err, errors.Errorf("jit.Close(): leaked device allocation of %s at %#x",
			MemString(uint64(len(a.data))), uintptr(ptr)))
	}
	e.device.allocs = make(map[DevicePtr]*allocation)
	e.device.used = 0
	return err
}
