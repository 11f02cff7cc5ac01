// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/jitarray/pkg/core/arrays"
	"github.com/gomlx/jitarray/pkg/core/dispatch"
	"github.com/gomlx/jitarray/pkg/core/jit"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
)

// demo records a switch between two callables over numLanes lanes, alternating the index, and lists
// the calls recorded by the default engine.
func demo(numLanes int) error {
	e := jit.Default()
	parity := make([]uint32, numLanes)
	for ii := range parity {
		parity[ii] = uint32(ii % 2)
	}
	index, err := arrays.New(arrays.UInt, parity)
	if err != nil {
		return err
	}
	defer index.Finalize()
	x := must.M1(arrays.Linspace(arrays.Float, 0, 1, numLanes, true))
	defer x.Finalize()

	result, err := dispatch.Switch(index, []dispatch.Callable{
		func(args ...any) (any, error) { return arrays.AddScalar(args[0].(*arrays.Array), 1) },
		func(args ...any) (any, error) {
			x := args[0].(*arrays.Array)
			return arrays.Add(x, x)
		},
	}, x)
	if err != nil {
		return errors.WithMessage(err, "demo")
	}
	defer arrays.FinalizeValue(result)

	fmt.Println(titleStyle.Render("Recorded calls"))
	table := newPlainTable(true)
	table.Row("ID", "Label", "Mode", "Lanes", "Active", "Branches", "Outputs", "Deferred", "Elapsed")
	for _, r := range e.Calls() {
		mode := "evaluated"
		if r.Symbolic {
			mode = "symbolic"
		}
		table.Row(r.ID.String(), r.Label, mode, humanize.Comma(int64(r.Lanes)), humanize.Comma(int64(r.Active)),
			fmt.Sprint(r.Branches), fmt.Sprint(r.Outputs), fmt.Sprint(r.Deferred), jit.TimeString(r.Elapsed))
	}
	fmt.Println(table.Render())
	if r, ok := result.(*arrays.Array); ok && r.Len() <= 16 {
		fmt.Printf("result: %s\n", r)
	}
	return nil
}
