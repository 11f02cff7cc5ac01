// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// jitarray_types lists the registered array types, the configuration of the default JIT engine, and
// optionally runs a small vectorized switch to show how calls are recorded.
//
// Usage:
//
//	jitarray_types [-summary] [-types] [-filter=<substring>] [-demo=<lanes>]
//
// The JIT engine is configured with the JITARRAY_JIT environment variable, e.g.
// JITARRAY_JIT=evaluated,keep_call_state.
package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/jitarray/pkg/core/arrays"
	"github.com/gomlx/jitarray/pkg/core/jit"
	"github.com/gomlx/jitarray/pkg/core/shapes"
	"k8s.io/klog/v2"
)

var (
	flagSummary = flag.Bool("summary", false, "Display a summary of the default JIT engine and of the registry.")
	flagTypes   = flag.Bool("types", true, "List the array types in the default registry.")
	flagFilter  = flag.String("filter", "", "Only list types whose name contains the given substring.")
	flagDemo    = flag.Int("demo", 0, "If > 0, records a switch over the given number of lanes and lists "+
		"the calls recorded by the engine.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if len(flag.Args()) > 0 {
		klog.Errorf("Unexpected arguments %q. See 'jitarray_types -help'.", flag.Args())
		os.Exit(1)
	}
	if *flagSummary {
		summary()
	}
	if *flagTypes {
		types(*flagFilter)
	}
	if *flagDemo > 0 {
		if err := demo(*flagDemo); err != nil {
			klog.Errorf("Demo failed: %+v", err)
			os.Exit(1)
		}
	}
}

func summary() {
	fmt.Println(titleStyle.Render("Summary"))
	e := jit.Default()
	config := e.Config()
	table := newPlainTable(false)
	table.Row("jit config", config.String())
	mode := "evaluated"
	if config.Symbolic {
		mode = "symbolic"
	}
	table.Row("call mode", mode)
	limit := "none"
	if config.MemoryLimit > 0 {
		limit = jit.MemString(config.MemoryLimit)
	}
	table.Row("memory limit", limit)
	table.Row("# variables", humanize.Comma(int64(e.NumVars())))
	table.Row("# types", humanize.Comma(int64(len(arrays.DefaultRegistry.All()))))
	fmt.Println(table.Render())
}

func types(filter string) {
	fmt.Println(titleStyle.Render("Array types"))
	table := newPlainTable(true)
	table.Row("Name", "DType", "Shape", "Backend", "Flags", "Bytes")
	descs := slices.Clone(arrays.DefaultRegistry.All())
	slices.SortFunc(descs, func(a, b *arrays.Descriptor) int { return strings.Compare(a.Name, b.Name) })
	for _, d := range descs {
		if filter != "" && !strings.Contains(d.Name, filter) {
			continue
		}
		table.Row(d.Name, d.DType.String(), shapes.DimsString(d.Shape), d.Backend.String(), flagsString(d),
			staticBytes(d))
	}
	fmt.Println(table.Render())
}

func flagsString(d *arrays.Descriptor) string {
	var parts []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{d.IsVector, "vector"}, {d.IsComplex, "complex"}, {d.IsQuaternion, "quaternion"},
		{d.IsMatrix, "matrix"}, {d.IsClass, "class"}, {d.IsTensor, "tensor"},
	} {
		if f.set {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, ",")
}

// staticBytes returns the memory used by an array of the type, or "-" if it is dynamically sized.
func staticBytes(d *arrays.Descriptor) string {
	shape := d.StaticShape()
	if shape.HasDynamic() {
		return "-"
	}
	return humanize.Bytes(uint64(shape.Memory()))
}
