// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

// Heap layout offsets, relative to the heap's base address (the start of
// the region the latest Init obtained from the Provider). See doc.go for
// the full picture.
const (
	offPadding        = 0
	offHeads          = 4 // ten 4-byte list heads follow here
	offPrologueHeader = offHeads + 4*listCount // 44
	offPrologueFooter = offPrologueHeader + wordSize
	offEpilogueHeader = offPrologueFooter + wordSize
	offFirstBlock     = offEpilogueHeader + wordSize // 56

	// prologue is always 8 bytes: one header + one footer word, packed
	// as a single allocated dword block of size 8.
	prologueSize = dwordSize

	// initial region requested by Init: padding + heads + prologue +
	// epilogue header.
	initRegionSize = offFirstBlock
)

func (h *Heap) headOffset(class int) int64 {
	return h.base + offHeads + 4*int64(class)
}

func (h *Heap) listHead(class int) (int64, error) {
	return h.readLink(h.headOffset(class))
}

func (h *Heap) setListHead(class int, addr int64) error {
	return h.writeLink(h.headOffset(class), addr)
}

// freelistInsert splices a free block of the given size into its
// size-class list, walking from the head to keep the list sorted by
// non-decreasing size (turns a first-match scan into a best-fit-within-
// class scan). payload must already have its header written with
// alloc == false.
func (h *Heap) freelistInsert(payload, size int64) error {
	_, _, alloc, err := h.readHeader(payload)
	if err != nil {
		return err
	}

	if alloc {
		return &ErrInvalid{"freelistInsert: block is not marked free", payload}
	}

	class := classOf(size)
	var prev int64
	cur, err := h.listHead(class)
	if err != nil {
		return err
	}

	for cur != 0 {
		curSize, _, _, err := h.readHeader(cur)
		if err != nil {
			return err
		}

		if curSize >= size {
			break
		}

		prev = cur
		if cur, err = h.succLink(cur); err != nil {
			return err
		}
	}

	next := cur

	if err := h.setPredLink(payload, prev); err != nil {
		return err
	}

	if err := h.setSuccLink(payload, next); err != nil {
		return err
	}

	if prev != 0 {
		if err := h.setSuccLink(prev, payload); err != nil {
			return err
		}
	} else if err := h.setListHead(class, payload); err != nil {
		return err
	}

	if next != 0 {
		if err := h.setPredLink(next, payload); err != nil {
			return err
		}
	}

	return nil
}

// freelistRemove unlinks a free block of the given size from its
// size-class list.
func (h *Heap) freelistRemove(payload, size int64) error {
	class := classOf(size)

	prev, err := h.predLink(payload)
	if err != nil {
		return err
	}

	next, err := h.succLink(payload)
	if err != nil {
		return err
	}

	if prev != 0 {
		if err := h.setSuccLink(prev, next); err != nil {
			return err
		}
	} else if err := h.setListHead(class, next); err != nil {
		return err
	}

	if next != 0 {
		if err := h.setPredLink(next, prev); err != nil {
			return err
		}
	}

	return nil
}

// findFit scans size classes in increasing order starting at
// classOf(asize), returning the first adequately-sized block it finds
// (which, thanks to intra-list sorting, is the smallest adequate block in
// that class). It returns payload == 0 if no class contains a fit.
func (h *Heap) findFit(asize int64) (int64, error) {
	for class := classOf(asize); class < listCount; class++ {
		cur, err := h.listHead(class)
		if err != nil {
			return 0, err
		}

		for cur != 0 {
			size, _, _, err := h.readHeader(cur)
			if err != nil {
				return 0, err
			}

			if size >= asize {
				return cur, nil
			}

			if cur, err = h.succLink(cur); err != nil {
				return 0, err
			}
		}
	}

	return 0, nil
}
