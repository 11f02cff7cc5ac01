// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// MemString returns a human-readable string of a number of bytes, e.g. "1.5 MiB".
func MemString(numBytes uint64) string {
	return humanize.IBytes(numBytes)
}

// TimeString formats a duration with a precision adequate to its magnitude.
func TimeString(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%d ns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.1f us", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.1f ms", float64(d)/float64(time.Millisecond))
	case d < time.Minute:
		return fmt.Sprintf("%.2f s", d.Seconds())
	}
	return d.Round(time.Second).String()
}
