// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/cznic/sortutil"
)

// generateFuzzTrace builds a deterministic scripted trace exercising the
// coalesce scenarios of spec.md's "concrete scenarios" (§8): groups of
// neighbouring-size allocations freed back in varying orders, so that every
// adjacency pattern coalesce must handle (no free neighbours, a free
// predecessor, a free successor, both) gets driven at least once.
//
// Request sizes are generated, deduplicated, and sorted via
// sortutil.Int64Slice before being grouped into triples -- the same
// sort-a-random-batch-into-a-reproducible-order technique
// falloc_test.go's stableRef helper uses to turn an unordered map of
// randomized test data into a stable iteration order.
func generateFuzzTrace(seed int64, n int) string {
	rng := rand.New(rand.NewSource(seed))

	sizes := make(sortutil.Int64Slice, 0, n)
	seen := make(map[int64]bool, n)
	for len(sizes) < n {
		s := int64(1 + rng.Intn(16384))
		if seen[s] {
			continue
		}
		seen[s] = true
		sizes = append(sizes, s)
	}
	sort.Sort(sizes)

	var b strings.Builder
	for i, size := range sizes {
		fmt.Fprintf(&b, "a t%d %d\n", i, size)
	}

	// Free every block not at a multiple-of-three index first, in
	// descending address order, then sweep up the remainder in
	// ascending order. Combined with the ascending allocation order
	// above, a block at index 3k+1 is freed next to a free successor, a
	// block at 3k+2 with both neighbours still allocated, and a block at
	// a multiple of three (index 0 aside) with both neighbours free.
	for i := len(sizes) - 1; i >= 0; i-- {
		if i%3 != 0 {
			fmt.Fprintf(&b, "f t%d\n", i)
		}
	}
	for i := 0; i < len(sizes); i++ {
		if i%3 == 0 {
			fmt.Fprintf(&b, "f t%d\n", i)
		}
	}

	return b.String()
}
