// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"io"

	"github.com/cznic/mathutil"
)

// A Provider supplies the page-granular, byte-addressable region a Heap
// manages. It plays the role lldb.Filer plays for the Allocator in the
// teacher package: the Heap never owns storage itself, it only ever reads
// and writes through a Provider and asks it to grow.
//
// A Provider is not safe for concurrent use, matching Heap itself.
type Provider interface {
	// Extend grows the managed region by exactly bytes (already rounded
	// to a multiple of 8 by the caller) and returns the byte address of
	// the start of the new region. An error return means the request
	// was refused; the region is left unchanged.
	Extend(bytes int64) (base int64, err error)

	// Low returns the lower byte address of the managed region. It is
	// constant once the first Extend has succeeded.
	Low() int64

	// High returns the upper (inclusive) byte address of the managed
	// region. It advances after every successful Extend.
	High() int64

	// Size returns High()-Low()+1, or 0 before the first Extend.
	Size() int64

	// ReadAt and WriteAt give the Heap direct access to the bytes of the
	// managed region, addressed exactly like an os.File. Go has no
	// portable way to hand out real pointers into an arbitrary byte
	// range, so these two methods stand in for the "byte-addressable"
	// part of the Provider contract; the bookkeeping methods above
	// (Extend/Low/High/Size) are the actual contract named in the
	// specification.
	ReadAt(b []byte, off int64) (n int, err error)
	WriteAt(b []byte, off int64) (n int, err error)
}

const memPageBits = 12
const memPageSize = 1 << memPageBits
const memPageMask = memPageSize - 1

var zeroMemPage [memPageSize]byte

// MemProvider is an in-process, page-backed Provider. It is the default
// collaborator used by Heap when no persistence is required, grounded on
// lldb.MemFiler's page-map technique: pages are allocated lazily and a
// read from an never-written page returns zeros without allocating one.
type MemProvider struct {
	pages map[int64]*[memPageSize]byte
	size  int64
	limit int64 // 0 == unbounded; otherwise Extend fails past this size
}

// NewMemProvider returns an empty MemProvider with no growth limit.
func NewMemProvider() *MemProvider {
	return &MemProvider{pages: map[int64]*[memPageSize]byte{}}
}

// NewBoundedMemProvider returns an empty MemProvider that refuses to grow
// past limit bytes. It exists so tests (and callers) can exercise the
// "provider refuses to extend" paths of Alloc/Resize deterministically.
func NewBoundedMemProvider(limit int64) *MemProvider {
	return &MemProvider{pages: map[int64]*[memPageSize]byte{}, limit: limit}
}

// Extend implements Provider.
func (p *MemProvider) Extend(bytes int64) (int64, error) {
	if bytes <= 0 || bytes%8 != 0 {
		return 0, &ErrInvalid{"Provider.Extend: bytes must be a positive multiple of 8", bytes}
	}

	if p.limit != 0 && p.size+bytes > p.limit {
		return 0, &ErrProviderLimit{Requested: bytes}
	}

	base := p.size
	p.size += bytes
	return base, nil
}

// Low implements Provider. MemProvider always starts at address 0.
func (p *MemProvider) Low() int64 { return 0 }

// High implements Provider.
func (p *MemProvider) High() int64 { return p.size - 1 }

// Size implements Provider.
func (p *MemProvider) Size() int64 { return p.size }

// ReadAt implements Provider.
func (p *MemProvider) ReadAt(b []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, &ErrInvalid{"Provider.ReadAt: negative offset", off}
	}

	avail := p.size - off
	if avail <= 0 {
		return 0, io.EOF
	}

	pgI := off >> memPageBits
	pgO := int(off & memPageMask)
	rem := len(b)
	if int64(rem) > avail {
		rem = int(avail)
		err = io.EOF
	}

	want := rem
	for rem != 0 {
		pg := p.pages[pgI]
		if pg == nil {
			pg = &zeroMemPage
		}

		nc := copy(b[:mathutil.Min(rem, memPageSize-pgO)], pg[pgO:])
		pgI++
		pgO = 0
		rem -= nc
		n += nc
		b = b[nc:]
	}

	if n == want {
		err = nil
	}
	return
}

// WriteAt implements Provider.
func (p *MemProvider) WriteAt(b []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, &ErrInvalid{"Provider.WriteAt: negative offset", off}
	}

	if off+int64(len(b)) > p.size {
		return 0, &ErrInvalid{"Provider.WriteAt: write beyond managed region", off + int64(len(b))}
	}

	pgI := off >> memPageBits
	pgO := int(off & memPageMask)
	rem := len(b)
	for rem != 0 {
		pg := p.pages[pgI]
		if pg == nil {
			pg = new([memPageSize]byte)
			p.pages[pgI] = pg
		}

		nc := copy(pg[pgO:], b)
		pgI++
		pgO = 0
		rem -= nc
		n += nc
		b = b[nc:]
	}
	return
}
