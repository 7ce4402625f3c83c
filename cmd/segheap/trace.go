// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/kalbhor/segheap/heap"
)

// replayer executes a trace file against a Heap. Each non-blank,
// non-comment line is one of:
//
//	a <id> <size>        alloc(size), remembered as id
//	c <id> <n> <unit>    calloc(n, unit), remembered as id
//	f <id>               free the block remembered as id
//	r <id> <size>        resize the block remembered as id to size
//
// Lines beginning with '#' are comments. id is an arbitrary token used only
// to let later lines refer back to an earlier allocation; it is never
// written to the heap itself.
type replayer struct {
	h       *heap.Heap
	ids     map[string]int64
	verbose bool
	check   bool
	tag     string
}

// run replays every line of src, returning the number of operations executed
// and the first error encountered (paired with the 1-based line number it
// occurred on).
func (rp *replayer) run(src io.Reader) (int, error) {
	sc := bufio.NewScanner(src)
	lineNo := 0
	ops := 0

	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if err := rp.exec(line); err != nil {
			return lineNo, err
		}
		ops++

		if rp.check {
			if err := rp.h.CheckHeap(fmt.Sprintf("%s:%d", rp.tag, lineNo)); err != nil {
				return lineNo, err
			}
		}
	}

	if err := sc.Err(); err != nil {
		return lineNo, err
	}

	return ops, nil
}

func (rp *replayer) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "a":
		if len(fields) != 3 {
			return fmt.Errorf("a: want 2 args, got %d", len(fields)-1)
		}
		size, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return err
		}

		p, err := rp.h.Alloc(size)
		if err != nil {
			return err
		}
		if p == 0 {
			return fmt.Errorf("a %s: heap out of memory", fields[1])
		}

		rp.ids[fields[1]] = p
		rp.logf("alloc %s -> %#x (%d bytes)", fields[1], p, size)

	case "c":
		if len(fields) != 4 {
			return fmt.Errorf("c: want 3 args, got %d", len(fields)-1)
		}
		n, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return err
		}
		unit, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return err
		}

		p, err := rp.h.Calloc(n, unit)
		if err != nil {
			return err
		}
		if p == 0 {
			return fmt.Errorf("c %s: heap out of memory", fields[1])
		}

		rp.ids[fields[1]] = p
		rp.logf("calloc %s -> %#x (%dx%d)", fields[1], p, n, unit)

	case "f":
		if len(fields) != 2 {
			return fmt.Errorf("f: want 1 arg, got %d", len(fields)-1)
		}
		p, ok := rp.ids[fields[1]]
		if !ok {
			return fmt.Errorf("f %s: unknown id", fields[1])
		}

		if err := rp.h.Free(p); err != nil {
			return err
		}
		delete(rp.ids, fields[1])
		rp.logf("free %s (%#x)", fields[1], p)

	case "r":
		if len(fields) != 3 {
			return fmt.Errorf("r: want 2 args, got %d", len(fields)-1)
		}
		p, ok := rp.ids[fields[1]]
		if !ok {
			return fmt.Errorf("r %s: unknown id", fields[1])
		}
		size, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return err
		}

		np, err := rp.h.Resize(p, size)
		if err != nil {
			return err
		}
		if np == 0 && size != 0 {
			return fmt.Errorf("r %s: heap out of memory", fields[1])
		}

		if size == 0 {
			delete(rp.ids, fields[1])
		} else {
			rp.ids[fields[1]] = np
		}
		rp.logf("resize %s -> %#x (%d bytes)", fields[1], np, size)

	default:
		return fmt.Errorf("unknown op %q", fields[0])
	}

	return nil
}

func (rp *replayer) logf(format string, args ...interface{}) {
	if rp.verbose {
		log.Printf(format, args...)
	}
}
