// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"os"

	"github.com/cznic/fileutil"
	"github.com/cznic/mathutil"
)

// FileProvider is an os.File backed Provider, grounded on
// lldb.SimpleFileFiler. It backs the driver's -f flag (see cmd/segheap),
// so a replayed trace leaves the heap's bytes in a real file. A Heap
// cannot be reopened over an existing heap image: Init always lays out a
// fresh region after whatever the file already holds.
//
// FileProvider carries no structural-integrity guarantees beyond what the
// OS file system itself offers; that is intentionally out of scope for
// this allocator (no cross-process shared heap, no durability contract).
type FileProvider struct {
	file *os.File
	size int64
}

// NewFileProvider returns a FileProvider backed by f. f's current size is
// treated as the provider's initial Size(); it must already be a multiple
// of 8, or High()/Extend bookkeeping would be misaligned.
func NewFileProvider(f *os.File) (*FileProvider, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	if fi.Size()%8 != 0 {
		return nil, &ErrInvalid{"NewFileProvider: file size not dword aligned", fi.Size()}
	}

	return &FileProvider{file: f, size: fi.Size()}, nil
}

// Extend implements Provider.
func (p *FileProvider) Extend(bytes int64) (int64, error) {
	if bytes <= 0 || bytes%8 != 0 {
		return 0, &ErrInvalid{"FileProvider.Extend: bytes must be a positive multiple of 8", bytes}
	}

	base := p.size
	if err := p.file.Truncate(base + bytes); err != nil {
		return 0, &ErrProviderLimit{Requested: bytes, Cause: err}
	}

	p.size += bytes
	return base, nil
}

// Low implements Provider.
func (p *FileProvider) Low() int64 { return 0 }

// High implements Provider.
func (p *FileProvider) High() int64 { return p.size - 1 }

// Size implements Provider.
func (p *FileProvider) Size() int64 { return p.size }

// ReadAt implements Provider.
func (p *FileProvider) ReadAt(b []byte, off int64) (int, error) {
	return p.file.ReadAt(b, off)
}

// WriteAt implements Provider.
func (p *FileProvider) WriteAt(b []byte, off int64) (int, error) {
	n, err := p.file.WriteAt(b, off)
	p.size = mathutil.MaxInt64(p.size, off+int64(len(b)))
	return n, err
}

// Discard punches a hole over [off, off+size) so the OS can release the
// pages backing it. A punched range reads back as zeros, so punching over
// a free block's range (as returned by Heap.FreeRanges) also zeroes its
// header, footer and list links. It is a debug affordance for the
// driver's -compact flag, run after replay, not part of the
// allocator's own contract -- CheckHeap and the five facade operations
// never call it.
func (p *FileProvider) Discard(off, size int64) error {
	return fileutil.PunchHole(p.file, off, size)
}

// Close closes the underlying file.
func (p *FileProvider) Close() error { return p.file.Close() }
