// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

// extendHeap grows the managed region by words 4-byte words (rounded up
// to an even count to preserve dword alignment), folds the reclaimed
// epilogue word plus all but the last word of the grown region into one
// new free block, writes a fresh epilogue into that last word, coalesces
// with the physical predecessor if it
// is free, and returns the resulting payload address.
//
// It returns payload == 0 if the Provider refuses to grow.
func (h *Heap) extendHeap(words int64) (int64, error) {
	if words%2 != 0 {
		words++
	}

	growBytes := words * wordSize
	if growBytes <= 0 {
		return 0, &ErrInvalid{"extendHeap: non-positive size", words}
	}

	epilogueAddr := h.p.Size() - wordSize
	oldEpilogueWord, err := h.readWord(epilogueAddr)
	if err != nil {
		return 0, err
	}

	prevAllocBit := wordPrevAlloc(oldEpilogueWord)

	newBase, err := h.p.Extend(growBytes)
	if err != nil {
		return 0, nil // provider refused: report via null payload, not an error
	}

	newBlockAddr := newBase - wordSize // reclaims the old epilogue word
	newBlockSize := growBytes
	payload := newBlockAddr + wordSize

	if err := h.writeHeader(payload, newBlockSize, false, prevAllocBit); err != nil {
		return 0, err
	}

	if err := h.writeFooter(payload, newBlockSize, false); err != nil {
		return 0, err
	}

	newEpilogueAddr := newBlockAddr + newBlockSize
	if err := h.writeWord(newEpilogueAddr, packWord(0, false, true)); err != nil {
		return 0, err
	}

	return h.coalesce(payload)
}

// coalesce merges a free block (not currently in any list) with whichever
// of its physical neighbours are also free, inserts the result into the
// appropriate size-class list, and fixes up the prev_alloc bit of the
// block that now follows it. It implements all four cases of the
// coalesce table uniformly: the "case" taken falls out of which of the
// two `if` branches below run.
func (h *Heap) coalesce(payload int64) (int64, error) {
	size, prevAllocBit, _, err := h.readHeader(payload)
	if err != nil {
		return 0, err
	}

	nextPayload := nextBlockPayload(payload, size)
	nextSize, _, nextAlloc, err := h.readHeader(nextPayload)
	if err != nil {
		return 0, err
	}

	mergedPayload := payload
	mergedSize := size
	keepPrevAlloc := prevAllocBit

	if !nextAlloc {
		if err := h.freelistRemove(nextPayload, nextSize); err != nil {
			return 0, err
		}

		mergedSize += nextSize
	}

	if !prevAllocBit {
		prevPayload, prevSize, prevPrevAlloc, err := h.prevBlockInfo(payload)
		if err != nil {
			return 0, err
		}

		if err := h.freelistRemove(prevPayload, prevSize); err != nil {
			return 0, err
		}

		mergedPayload = prevPayload
		mergedSize += prevSize
		keepPrevAlloc = prevPrevAlloc
	}

	if err := h.writeHeader(mergedPayload, mergedSize, false, keepPrevAlloc); err != nil {
		return 0, err
	}

	if err := h.writeFooter(mergedPayload, mergedSize, false); err != nil {
		return 0, err
	}

	if err := h.freelistInsert(mergedPayload, mergedSize); err != nil {
		return 0, err
	}

	if err := h.setPrevAlloc(nextBlockPayload(mergedPayload, mergedSize), false); err != nil {
		return 0, err
	}

	return mergedPayload, nil
}

// placeCore converts all or part of a block into an allocated block of
// exactly asize bytes. When removeFromList is true, payload is a free
// block being consumed by a fresh allocation (find_fit's result); when
// false, payload is already allocated and is being shrunk in place by
// Resize, so no free-list removal is needed.
func (h *Heap) placeCore(payload, asize int64, removeFromList bool) error {
	size, prevAlloc, _, err := h.readHeader(payload)
	if err != nil {
		return err
	}

	if removeFromList {
		if err := h.freelistRemove(payload, size); err != nil {
			return err
		}
	}

	rem := size - asize
	if rem >= minBlock {
		if err := h.writeHeader(payload, asize, true, prevAlloc); err != nil {
			return err
		}

		remPayload := nextBlockPayload(payload, asize)
		if err := h.writeHeader(remPayload, rem, false, true); err != nil {
			return err
		}

		if err := h.writeFooter(remPayload, rem, false); err != nil {
			return err
		}

		_, err := h.coalesce(remPayload)
		return err
	}

	// Remainder too small to carve off: consume the whole block. The
	// header's size field must keep reflecting the block's actual
	// physical extent, not the (smaller) requested size, or next_block
	// arithmetic and coalescing would desync from reality.
	if err := h.writeHeader(payload, size, true, prevAlloc); err != nil {
		return err
	}

	return h.setPrevAlloc(nextBlockPayload(payload, size), true)
}

func (h *Heap) place(payload, asize int64) error {
	return h.placeCore(payload, asize, true)
}

func (h *Heap) shrinkInPlace(payload, asize int64) error {
	return h.placeCore(payload, asize, false)
}
