// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import "fmt"

// ErrInvalid reports a bad argument to a public Heap method: a negative or
// zero-ish size where one isn't allowed, a payload address outside the
// managed heap, or similar caller error.
type ErrInvalid struct {
	Msg string
	Arg interface{}
}

func (e *ErrInvalid) Error() string {
	return fmt.Sprintf("heap: invalid argument: %s (%v)", e.Msg, e.Arg)
}

// ErrProviderLimit reports that the backing Provider refused to extend the
// heap. MemProvider and FileProvider return it from Extend, and Init
// returns it when either of its two growth steps is refused (Alloc, Free
// and Resize pass that error on when they run Init lazily). A growth
// refused later, while Alloc or Resize looks for room, is not reported as
// an error: those calls return a 0 payload instead.
type ErrProviderLimit struct {
	Requested int64
	Cause     error
}

func (e *ErrProviderLimit) Error() string {
	return fmt.Sprintf("heap: provider refused to extend by %d bytes: %v", e.Requested, e.Cause)
}

func (e *ErrProviderLimit) Unwrap() error { return e.Cause }

// CorruptKind classifies the invariant CheckHeap found broken.
type CorruptKind int

const (
	// BadAlignment: a payload address is not dword-aligned.
	BadAlignment CorruptKind = iota
	// OutOfRange: a block's payload lies below base+56, or the block runs
	// past the Provider's High().
	OutOfRange
	// BadBoundaryTag: a free block's header and footer disagree.
	BadBoundaryTag
	// BadPrevAlloc: a block's prev_alloc bit disagrees with its physical
	// predecessor's alloc bit.
	BadPrevAlloc
	// AdjacentFree: two physical neighbours are both free.
	AdjacentFree
	// BadListMembership: a free block isn't linked into any size-class
	// list, or an allocated block is.
	BadListMembership
	// BadListOrder: a size-class list isn't sorted by ascending size.
	BadListOrder
	// BadListClass: a block sits in a list whose class doesn't match its
	// size.
	BadListClass
	// BadBackLink: a free list's prev/succ links don't agree both ways.
	BadBackLink
)

func (k CorruptKind) String() string {
	switch k {
	case BadAlignment:
		return "bad alignment"
	case OutOfRange:
		return "block out of range"
	case BadBoundaryTag:
		return "header/footer mismatch"
	case BadPrevAlloc:
		return "prev_alloc bit mismatch"
	case AdjacentFree:
		return "adjacent free blocks"
	case BadListMembership:
		return "free block not in any list (or vice versa)"
	case BadListOrder:
		return "free list not sorted by size"
	case BadListClass:
		return "free block in wrong size class"
	case BadBackLink:
		return "free list back-link mismatch"
	default:
		return "unknown corruption"
	}
}

// ErrCorrupt is returned by CheckHeap for the first invariant violation it
// encounters. Off is the byte address of the offending block (or list
// head), Tag is the call-site label passed to CheckHeap.
type ErrCorrupt struct {
	Kind CorruptKind
	Off  int64
	Tag  string
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("heap: [%s] corruption at %#x: %s", e.Tag, e.Off, e.Kind)
}
