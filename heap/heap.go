// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"math"

	"github.com/cznic/mathutil"
)

// chunkSize is the minimum number of bytes requested from the Provider on
// each heap extension, matching the teacher's page-granular growth step.
const chunkSize = 4096

// Requests in [reallocLow, reallocHigh] are rounded up to reallocRoundTo
// bytes before block sizing. This absorbs a realloc workload that grows a
// buffer by small increments near a common threshold, trading a bit of
// internal fragmentation for fewer extend/copy cycles.
const (
	reallocLow     = 439
	reallocHigh    = 451
	reallocRoundTo = 512
)

// Heap is a segregated-fits allocator over a byte range supplied by a
// Provider. The zero value is not ready for use; call New.
//
// Heap is not safe for concurrent use by multiple goroutines, matching the
// single-threaded contract of the allocator it is modeled on.
type Heap struct {
	p     Provider
	base  int64
	ready bool
}

// New returns a Heap that will lay out its bookkeeping region at the start
// of whatever p next grows into. p must be otherwise empty (Size() == 0);
// Init performs the first Extend.
func New(p Provider) *Heap {
	return &Heap{p: p}
}

// Init lays down the free-list head table, prologue and epilogue sentinels,
// and the first chunkSize-byte free extension. It is called lazily by
// Alloc and Free, but callers may call it eagerly to surface provider
// failures up front.
//
// Init may be called more than once: each call resets the heap's internal
// anchors and requests a fresh initial region from the Provider, exactly
// as if the Heap were new. Since a Provider never returns memory, the
// previous region (and everything allocated in it) is simply abandoned --
// Init does not, and cannot, reclaim it.
func (h *Heap) Init() error {
	h.ready = false

	base, err := h.p.Extend(initRegionSize)
	if err != nil {
		return &ErrProviderLimit{Requested: initRegionSize, Cause: err}
	}

	h.base = base

	if err := h.writeWord(h.base+offPadding, 0); err != nil {
		return err
	}

	for class := 0; class < listCount; class++ {
		if err := h.setListHead(class, 0); err != nil {
			return err
		}
	}

	// Prologue: a single permanently-allocated dword block. Its
	// prev_alloc bit is true by convention -- it has no physical
	// predecessor to disagree with.
	prologuePayload := h.base + offPrologueHeader + wordSize
	if err := h.writeHeader(prologuePayload, prologueSize, true, true); err != nil {
		return err
	}
	if err := h.writeFooter(prologuePayload, prologueSize, true); err != nil {
		return err
	}

	// Epilogue: a zero-size allocated sentinel, prev_alloc true because
	// the prologue (its physical predecessor) is allocated.
	if err := h.writeWord(h.base+offEpilogueHeader, packWord(0, true, true)); err != nil {
		return err
	}

	h.ready = true

	payload, err := h.extendHeap(chunkSize / wordSize)
	if err != nil {
		return err
	}
	if payload == 0 {
		return &ErrProviderLimit{Requested: chunkSize}
	}

	return nil
}

func (h *Heap) ensureReady() error {
	if h.ready {
		return nil
	}
	return h.Init()
}

// blockSize computes the size-class-adjusted, dword-aligned, minimum-16
// block size that would be allocated to satisfy a size-byte request.
func blockSize(size int64) int64 {
	if size >= reallocLow && size <= reallocHigh {
		size = reallocRoundTo
	}

	asize := roundUp8(size + wordSize)
	if asize < minBlock {
		asize = minBlock
	}

	return asize
}

// Alloc returns the address of a free block of at least size usable bytes,
// or 0 if size <= 0 or the Provider cannot supply enough additional memory.
func (h *Heap) Alloc(size int64) (int64, error) {
	if size <= 0 {
		return 0, nil
	}

	if err := h.ensureReady(); err != nil {
		return 0, err
	}

	asize := blockSize(size)

	payload, err := h.findFit(asize)
	if err != nil {
		return 0, err
	}

	if payload == 0 {
		growBytes := asize
		if growBytes < chunkSize {
			growBytes = chunkSize
		}

		payload, err = h.extendHeap(growBytes / wordSize)
		if err != nil {
			return 0, err
		}
		if payload == 0 {
			return 0, nil
		}
	}

	if err := h.place(payload, asize); err != nil {
		return 0, err
	}

	return payload, nil
}

// Calloc behaves like Alloc(n*unit) but additionally zeroes the returned
// block's usable capacity. It guards against the n*unit overflow the
// original allocator left to its caller to pre-check: a negative operand
// (clamped to 0 via mathutil.MaxInt64) returns null, and a product that
// would overflow int64 returns ErrInvalid rather than wrapping silently.
func (h *Heap) Calloc(n, unit int64) (int64, error) {
	n = mathutil.MaxInt64(n, 0)
	unit = mathutil.MaxInt64(unit, 0)
	if n == 0 || unit == 0 {
		return 0, nil
	}

	if unit > math.MaxInt64/n {
		return 0, &ErrInvalid{"Calloc: n*unit overflows", [2]int64{n, unit}}
	}

	payload, err := h.Alloc(n * unit)
	if err != nil || payload == 0 {
		return payload, err
	}

	size, _, _, err := h.readHeader(payload)
	if err != nil {
		return 0, err
	}

	zeros := make([]byte, size-wordSize)
	if _, err := h.p.WriteAt(zeros, payload); err != nil {
		return 0, err
	}

	return payload, nil
}

// Free returns payload's block to the heap, coalescing it with any free
// physical neighbours. Freeing 0 is a no-op; freeing an address that is not
// currently allocated returns ErrInvalid.
func (h *Heap) Free(payload int64) error {
	if payload == 0 {
		return nil
	}

	if err := h.ensureReady(); err != nil {
		return err
	}

	size, prevAlloc, alloc, err := h.readHeader(payload)
	if err != nil {
		return err
	}

	if !alloc {
		return &ErrInvalid{"Free: block is not allocated", payload}
	}

	if err := h.writeHeader(payload, size, false, prevAlloc); err != nil {
		return err
	}
	if err := h.writeFooter(payload, size, false); err != nil {
		return err
	}
	if err := h.setPrevAlloc(nextBlockPayload(payload, size), false); err != nil {
		return err
	}
	if err := h.setPredLink(payload, 0); err != nil {
		return err
	}
	if err := h.setSuccLink(payload, 0); err != nil {
		return err
	}

	_, err = h.coalesce(payload)
	return err
}

// Resize changes the block at payload to hold size usable bytes, preserving
// its leading min(size, old usable capacity) bytes of content. It follows
// the four-way realloc contract: payload == 0 behaves as Alloc(size), size
// == 0 behaves as Free(payload) and returns 0, a smaller size shrinks the
// block in place, and a larger size always falls back to alloc-copy-free
// (growth never happens in place). It returns 0, leaving the original
// block untouched, if growth requires more memory than the Provider can
// supply.
func (h *Heap) Resize(payload, size int64) (int64, error) {
	if payload == 0 {
		return h.Alloc(size)
	}

	if size <= 0 {
		if err := h.Free(payload); err != nil {
			return 0, err
		}
		return 0, nil
	}

	if err := h.ensureReady(); err != nil {
		return 0, err
	}

	oldSize, _, alloc, err := h.readHeader(payload)
	if err != nil {
		return 0, err
	}
	if !alloc {
		return 0, &ErrInvalid{"Resize: block is not allocated", payload}
	}

	asize := blockSize(size)
	if asize == oldSize {
		return payload, nil
	}

	if asize < oldSize {
		if err := h.shrinkInPlace(payload, asize); err != nil {
			return 0, err
		}
		return payload, nil
	}

	newPayload, err := h.Alloc(size)
	if err != nil || newPayload == 0 {
		return 0, err
	}

	usable := oldSize - wordSize
	if usable > size {
		usable = size
	}

	buf := make([]byte, usable)
	if _, err := h.p.ReadAt(buf, payload); err != nil {
		return 0, err
	}
	if _, err := h.p.WriteAt(buf, newPayload); err != nil {
		return 0, err
	}

	if err := h.Free(payload); err != nil {
		return 0, err
	}

	return newPayload, nil
}

// BlockSize returns the total size in bytes (including the 4-byte header)
// of the block at payload.
func (h *Heap) BlockSize(payload int64) (int64, error) {
	size, _, _, err := h.readHeader(payload)
	return size, err
}

// FreeRanges walks the block chain and returns the byte range (header
// address and total size, including the header word) of every free
// block currently on the heap. It exists for callers that want to give
// those bytes back to the backing storage -- e.g. punching holes in a
// FileProvider's file -- without reaching into package internals.
func (h *Heap) FreeRanges() ([][2]int64, error) {
	var ranges [][2]int64
	if !h.ready {
		return ranges, nil
	}

	payload := h.base + offFirstBlock
	for {
		size, _, alloc, err := h.readHeader(payload)
		if err != nil {
			return nil, err
		}
		if size == 0 && alloc {
			break
		}

		if !alloc {
			ranges = append(ranges, [2]int64{headerAddr(payload), size})
		}

		payload = nextBlockPayload(payload, size)
	}

	return ranges, nil
}

// Stats summarizes the heap's current span and occupancy.
type Stats struct {
	HeapBytes  int64
	AllocBytes int64
	FreeBytes  int64
	FreeCounts [listCount]int
}

// Stats walks the block chain and every size-class list to report current
// occupancy. It does not validate invariants -- use CheckHeap for that.
func (h *Heap) Stats() (Stats, error) {
	var st Stats
	if !h.ready {
		return st, nil
	}

	st.HeapBytes = h.p.Size() - h.base

	payload := h.base + offFirstBlock
	for {
		size, _, alloc, err := h.readHeader(payload)
		if err != nil {
			return st, err
		}
		if size == 0 && alloc {
			break
		}

		if alloc {
			st.AllocBytes += size
		} else {
			st.FreeBytes += size
		}

		payload = nextBlockPayload(payload, size)
	}

	for class := 0; class < listCount; class++ {
		cur, err := h.listHead(class)
		if err != nil {
			return st, err
		}

		for cur != 0 {
			st.FreeCounts[class]++
			if cur, err = h.succLink(cur); err != nil {
				return st, err
			}
		}
	}

	return st, nil
}

// CheckHeap walks every physical block and every size-class list, verifying
// the invariants the allocator is required to maintain, and returns the
// first violation found as an *ErrCorrupt. tag labels the call site in the
// returned error (a caller typically passes the name of the operation it
// just performed). It is a no-op, returning nil, before the heap has been
// initialized.
func (h *Heap) CheckHeap(tag string) error {
	if !h.ready {
		return nil
	}

	low := h.base + offFirstBlock
	high := h.p.High()

	payload := low
	prevAlloc := true
	lastFree := false
	freeSet := map[int64]int64{}

	for {
		blockStart := payload - wordSize
		size, pAlloc, alloc, err := h.readHeader(payload)
		if err != nil {
			return err
		}

		if size == 0 && alloc {
			break // epilogue reached
		}

		if payload%dwordSize != 0 {
			return &ErrCorrupt{BadAlignment, payload, tag}
		}

		if payload < low || blockStart+size-1 > high {
			return &ErrCorrupt{OutOfRange, payload, tag}
		}

		if pAlloc != prevAlloc {
			return &ErrCorrupt{BadPrevAlloc, payload, tag}
		}

		if !alloc {
			fw, err := h.readWord(footerAddr(payload, size))
			if err != nil {
				return err
			}
			if wordSizeOf(fw) != size || wordAlloc(fw) {
				return &ErrCorrupt{BadBoundaryTag, payload, tag}
			}
			if lastFree {
				return &ErrCorrupt{AdjacentFree, payload, tag}
			}
			freeSet[payload] = size
		}

		lastFree = !alloc
		prevAlloc = alloc
		payload = nextBlockPayload(payload, size)
	}

	return h.checkFreeLists(tag, freeSet)
}

// checkFreeLists validates each size-class list's membership, ordering,
// class assignment, and back-links against freeSet, which was populated by
// CheckHeap's block-chain walk and maps each free block's payload to its
// size. Every list member found is deleted from freeSet; anything left over
// afterwards is a free block that no list points to.
func (h *Heap) checkFreeLists(tag string, freeSet map[int64]int64) error {
	for class := 0; class < listCount; class++ {
		cur, err := h.listHead(class)
		if err != nil {
			return err
		}

		prevNode := int64(0)
		lastSize := int64(-1)

		for cur != 0 {
			size, ok := freeSet[cur]
			if !ok {
				return &ErrCorrupt{BadListMembership, cur, tag}
			}

			if classOf(size) != class {
				return &ErrCorrupt{BadListClass, cur, tag}
			}

			if size < lastSize {
				return &ErrCorrupt{BadListOrder, cur, tag}
			}
			lastSize = size

			pred, err := h.predLink(cur)
			if err != nil {
				return err
			}
			if pred != prevNode {
				return &ErrCorrupt{BadBackLink, cur, tag}
			}

			delete(freeSet, cur)
			prevNode = cur
			if cur, err = h.succLink(cur); err != nil {
				return err
			}
		}
	}

	for addr := range freeSet {
		return &ErrCorrupt{BadListMembership, addr, tag}
	}

	return nil
}
