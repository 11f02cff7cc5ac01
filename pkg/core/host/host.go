// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package host models the process-wide state of the host runtime that owns array instances and
// callables: whether it is still alive, and the global host lock that must be held while running
// host code from inside JIT engine callbacks.
//
// Code that releases host references from a cleanup callback must first check IsAlive: once the
// runtime has been shut down, releasing becomes a no-op.
package host

import (
	"sync"
	"sync/atomic"

	"k8s.io/klog/v2"
)

var (
	alive atomic.Bool

	// lock is the global host lock.
	lock sync.Mutex
)

func init() {
	alive.Store(true)
}

// IsAlive returns whether the host runtime is alive.
func IsAlive() bool {
	return alive.Load()
}

// Shutdown marks the host runtime as finalized. After this, IsAlive returns false.
func Shutdown() {
	if alive.Swap(false) {
		klog.V(1).Infof("host runtime shut down")
	}
}

// Start marks the host runtime as alive. It is alive from program start, so this is only needed
// after a Shutdown.
func Start() {
	alive.Store(true)
}

// Acquire takes the global host lock and returns the function that releases it.
//
// Example:
//
//	release := host.Acquire()
//	defer release()
func Acquire() (release func()) {
	lock.Lock()
	var once sync.Once
	return func() { once.Do(lock.Unlock) }
}
