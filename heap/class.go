// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import "math/bits"

// listCount is the number of segregated size-class free lists.
const listCount = 10

// classOf maps a block size in bytes to one of the ten size classes:
//
//	[0,32) -> 0      [256,512)   -> 4      [4096,8192)  -> 8
//	[32,64) -> 1     [512,1024)  -> 5      [8192,inf)   -> 9
//	[64,128) -> 2     [1024,2048) -> 6
//	[128,256) -> 3    [2048,4096) -> 7
//
// It runs in O(1) by finding the highest set bit of size: classes below 32
// (bit index < 5) collapse to class 0, classes at or above 8192 (bit index
// >= 13) collapse to class 9, everything else is (highest bit) - 4.
func classOf(size int64) int {
	if size <= 0 {
		return 0
	}

	highBit := bits.Len64(uint64(size)) - 1
	switch {
	case highBit < 5:
		return 0
	case highBit >= 13:
		return listCount - 1
	default:
		return highBit - 4
	}
}
