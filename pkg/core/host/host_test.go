// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package host

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLifecycle(t *testing.T) {
	require.True(t, IsAlive())
	Shutdown()
	require.False(t, IsAlive())
	Shutdown() // Idempotent.
	Start()
	require.True(t, IsAlive())
}

func TestAcquire(t *testing.T) {
	var wg sync.WaitGroup
	counter := 0
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := Acquire()
			defer release()
			counter++
		}()
	}
	wg.Wait()
	require.Equal(t, 10, counter)

	// Releasing twice is harmless.
	release := Acquire()
	release()
	release()
	release = Acquire()
	release()
}
