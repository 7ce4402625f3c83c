// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command segheap replays a scripted allocation trace against a segheap
// Heap, for manual testing and for reproducing a trace recorded elsewhere.
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"strings"

	"github.com/kalbhor/segheap/heap"
)

var (
	oTrace    = flag.String("trace", "", "trace file to replay (mutually exclusive with -fuzz)")
	oFuzz     = flag.Int("fuzz", 0, "generate and replay a scripted coalesce-exercising trace of this many allocations, instead of reading -trace")
	oSeed     = flag.Int64("seed", 1, "PRNG seed for -fuzz")
	oFile     = flag.String("f", "", "back the heap with this file instead of memory")
	oCheck    = flag.Bool("check", true, "run CheckHeap after every trace operation")
	oVerbose  = flag.Bool("v", false, "log every trace operation")
	oCheckTag = flag.String("tag", "segheap", "tag attached to CheckHeap errors")
	oCompact  = flag.Bool("compact", false, "after replay, punch holes over every free block (requires -f)")
)

func main() {
	log.SetFlags(0)
	flag.Parse()

	if *oTrace == "" && *oFuzz == 0 {
		log.Fatal("segheap: one of -trace or -fuzz is required")
	}
	if *oTrace != "" && *oFuzz != 0 {
		log.Fatal("segheap: -trace and -fuzz are mutually exclusive")
	}
	if *oCompact && *oFile == "" {
		log.Fatal("segheap: -compact requires -f")
	}

	var src io.Reader
	if *oFuzz != 0 {
		src = strings.NewReader(generateFuzzTrace(*oSeed, *oFuzz))
	} else {
		f, err := os.Open(*oTrace)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		src = f
	}

	var provider heap.Provider
	var fp *heap.FileProvider
	if *oFile != "" {
		osf, err := os.OpenFile(*oFile, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			log.Fatal(err)
		}
		defer osf.Close()

		fp, err = heap.NewFileProvider(osf)
		if err != nil {
			log.Fatal(err)
		}
		provider = fp
	} else {
		provider = heap.NewMemProvider()
	}

	h := heap.New(provider)
	r := &replayer{
		h:       h,
		ids:     map[string]int64{},
		verbose: *oVerbose,
		check:   *oCheck,
		tag:     *oCheckTag,
	}

	n, err := r.run(src)
	if err != nil {
		log.Fatalf("segheap: line %d: %v", n, err)
	}

	st, err := h.Stats()
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("ops=%d heap=%d alloc=%d free=%d", n, st.HeapBytes, st.AllocBytes, st.FreeBytes)
	for class, count := range st.FreeCounts {
		if count > 0 {
			log.Printf("  class %d: %d free blocks", class, count)
		}
	}

	if *oCompact {
		ranges, err := h.FreeRanges()
		if err != nil {
			log.Fatal(err)
		}

		var punched int64
		for _, rg := range ranges {
			if err := fp.Discard(rg[0], rg[1]); err != nil {
				log.Fatal(err)
			}
			punched += rg[1]
		}

		log.Printf("compact: punched holes over %d free blocks (%d bytes)", len(ranges), punched)
	}
}
