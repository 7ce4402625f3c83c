// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"encoding/binary"
	"io"
)

// Word sizes and the block size floor, per the layout this package
// implements.
const (
	wordSize  = 4 // header/footer/link word size
	dwordSize = 8 // alignment and minimum split granularity
	minBlock  = 16
)

// Header/footer bit layout within a 32 bit word: bits 31..3 are the block
// size (always a multiple of 8), bit 2 is prev_alloc (header only -- a
// footer always stores 0 there), bit 1 is reserved and always 0, bit 0 is
// alloc.
const (
	flagAlloc     = 1 << 0
	flagPrevAlloc = 1 << 2
	sizeMask      = ^uint32(0x7)
)

func packWord(size int64, prevAlloc, alloc bool) uint32 {
	w := uint32(size) & sizeMask
	if prevAlloc {
		w |= flagPrevAlloc
	}
	if alloc {
		w |= flagAlloc
	}
	return w
}

func wordSizeOf(w uint32) int64   { return int64(w & sizeMask) }
func wordAlloc(w uint32) bool     { return w&flagAlloc != 0 }
func wordPrevAlloc(w uint32) bool { return w&flagPrevAlloc != 0 }

// roundUp8 rounds n up to the next multiple of 8 (dwordSize).
func roundUp8(n int64) int64 { return (n + dwordSize - 1) &^ (dwordSize - 1) }

// headerAddr and footerAddr convert a payload address to the address of
// its header/footer word. footerAddr is only meaningful for free blocks
// -- allocated blocks have no footer.
func headerAddr(payload int64) int64            { return payload - wordSize }
func footerAddr(payload, size int64) int64      { return payload + size - 2*wordSize }
func nextBlockPayload(payload, size int64) int64 { return payload + size }

func (h *Heap) readWord(addr int64) (uint32, error) {
	var b [wordSize]byte
	n, err := h.p.ReadAt(b[:], addr)
	if n != wordSize {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}

	return binary.BigEndian.Uint32(b[:]), nil
}

func (h *Heap) writeWord(addr int64, w uint32) error {
	var b [wordSize]byte
	binary.BigEndian.PutUint32(b[:], w)
	n, err := h.p.WriteAt(b[:], addr)
	if n != wordSize {
		if err == nil {
			err = io.ErrShortWrite
		}
		return err
	}

	return nil
}

// readHeader returns a block's size and flags, reading its header word.
func (h *Heap) readHeader(payload int64) (size int64, prevAlloc, alloc bool, err error) {
	w, err := h.readWord(headerAddr(payload))
	if err != nil {
		return
	}

	return wordSizeOf(w), wordPrevAlloc(w), wordAlloc(w), nil
}

// writeHeader writes a full header word.
func (h *Heap) writeHeader(payload, size int64, alloc, prevAlloc bool) error {
	return h.writeWord(headerAddr(payload), packWord(size, prevAlloc, alloc))
}

// writeFooter writes a full footer word; bit 2 is always 0 there.
func (h *Heap) writeFooter(payload, size int64, alloc bool) error {
	return h.writeWord(footerAddr(payload, size), packWord(size, false, alloc))
}

// setPrevAllocAt sets bit 2 of the header word living at hdrAddr to bit
// without touching size or alloc. It is used on the block physically
// following any block whose own alloc state just changed.
func (h *Heap) setPrevAllocAt(hdrAddr int64, bit bool) error {
	w, err := h.readWord(hdrAddr)
	if err != nil {
		return err
	}

	if bit {
		w |= flagPrevAlloc
	} else {
		w &^= flagPrevAlloc
	}

	return h.writeWord(hdrAddr, w)
}

func (h *Heap) setPrevAlloc(payload int64, bit bool) error {
	return h.setPrevAllocAt(headerAddr(payload), bit)
}

// prevBlockInfo returns the physical predecessor of payload, which is
// only legal to call when payload's own prev_alloc bit is false (the
// predecessor is free and therefore has a footer to read).
func (h *Heap) prevBlockInfo(payload int64) (prevPayload, prevSize int64, prevPrevAlloc bool, err error) {
	w, err := h.readWord(payload - 2*wordSize)
	if err != nil {
		return
	}

	prevSize = wordSizeOf(w)
	prevPayload = payload - prevSize
	hw, err := h.readWord(headerAddr(prevPayload))
	if err != nil {
		return
	}

	prevPrevAlloc = wordPrevAlloc(hw)
	return
}

// Free-block body: a 4-byte predecessor link at offset 0, a 4-byte
// successor link at offset 4, both heap-base-relative with 0 meaning
// null (payload 0 never occurs: the lowest legal payload sits well past
// the free-list-head table).
func (h *Heap) readLink(addr int64) (int64, error) {
	var b [4]byte
	n, err := h.p.ReadAt(b[:], addr)
	if n != 4 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}

	v := binary.BigEndian.Uint32(b[:])
	if v == 0 {
		return 0, nil
	}

	return h.base + int64(v), nil
}

func (h *Heap) writeLink(addr, target int64) error {
	var v uint32
	if target != 0 {
		v = uint32(target - h.base)
	}

	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	n, err := h.p.WriteAt(b[:], addr)
	if n != 4 {
		if err == nil {
			err = io.ErrShortWrite
		}
		return err
	}

	return nil
}

func (h *Heap) predLink(payload int64) (int64, error)      { return h.readLink(payload) }
func (h *Heap) succLink(payload int64) (int64, error)      { return h.readLink(payload + 4) }
func (h *Heap) setPredLink(payload, target int64) error    { return h.writeLink(payload, target) }
func (h *Heap) setSuccLink(payload, target int64) error    { return h.writeLink(payload+4, target) }
