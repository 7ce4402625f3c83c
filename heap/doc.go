// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package heap implements a segregated-fit dynamic memory allocator over a
fixed, contiguous, byte-addressable region supplied by a Provider.

Heap layout

A managed heap is a linear sequence of 8-byte aligned blocks, bracketed by
fixed prologue/epilogue sentinels and preceded by a small table of free
list heads:

	offset 0:   4 bytes  alignment padding (zero)
	offset 4:  40 bytes  ten 4-byte free-list head offsets (0 == empty)
	offset 44:  4 bytes  prologue header  == pack(8, alloc)
	offset 48:  4 bytes  prologue footer  == pack(8, alloc)
	offset 52:  4 bytes  epilogue header  == pack(0, alloc)
	offset 56:  ...      regular blocks, terminated by a 4-byte epilogue

Every regular block starts with a header word and, if free, ends with a
footer word that mirrors it; allocated blocks omit the footer and instead
rely on the "prev_alloc" bit stored in the header of the following block
(see block.go). This recovers 4 bytes per allocated block at the cost of
making every place/free/coalesce path responsible for keeping that bit in
sync -- the single most fragile invariant in the design.

Free blocks are kept in one of ten size-class lists (class.go), each
sorted by ascending block size so that a first-match-within-class scan is
a best-fit within that class (freelist.go). Splitting, merging, and list
bookkeeping are the job of the coalesce/place engine (engine.go); Init,
Alloc, Free, Resize, Calloc and CheckHeap are the public facade
(heap.go).

No operation in this package is safe for concurrent use; a Heap assumes
single-goroutine, single-process access, matching a classical malloc
implementation operating on a process-private arena.
*/
package heap
