// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mmap provides word-sized access to memory-mapped device windows.
package mmap // import "github.com/go-lpc/socdif/internal/mmap"

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	errClosed = errors.New("mmap: closed")

	munmap = unix.Munmap
)

// Handle is a memory-mapped window over a device region.
type Handle struct {
	data []byte
}

// Map maps span bytes of f, starting at base, for reading and writing.
func Map(f *os.File, base, span int64) (*Handle, error) {
	if f == nil {
		return nil, os.ErrInvalid
	}
	data, err := unix.Mmap(
		int(f.Fd()),
		base, int(span),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
	if err != nil {
		return nil, fmt.Errorf("mmap: could not mmap 0x%x+0x%x: %w", base, span, err)
	}
	if data == nil || int64(len(data)) != span {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("mmap: invalid mmap'd data: %d", len(data))
	}
	return HandleFrom(data), nil
}

// HandleFrom wraps an already mapped (or plain, for tests) byte slice.
func HandleFrom(data []byte) *Handle {
	h := &Handle{data: data}
	runtime.SetFinalizer(h, (*Handle).Close)
	return h
}

// Close unmaps the window.
func (h *Handle) Close() error {
	if h == nil {
		return os.ErrInvalid
	}

	if h.data == nil {
		return nil
	}
	data := h.data
	h.data = nil
	runtime.SetFinalizer(h, nil)

	return munmap(data)
}

// Len returns the length of the mapped window.
func (h *Handle) Len() int {
	return len(h.data)
}

func (h *Handle) word(off int64) (*uint32, error) {
	if h == nil {
		return nil, os.ErrInvalid
	}
	if h.data == nil {
		return nil, errClosed
	}
	if off < 0 || off%4 != 0 || int64(len(h.data)) < off+4 {
		return nil, fmt.Errorf("mmap: invalid word offset %d", off)
	}
	return (*uint32)(unsafe.Pointer(&h.data[off])), nil
}

// Load32 performs a single 32-bit load at off.
// The load uses the host byte order, which is the bus order of the device.
func (h *Handle) Load32(off int64) (uint32, error) {
	p, err := h.word(off)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32(p), nil
}

// Store32 performs a single 32-bit store of v at off.
func (h *Handle) Store32(off int64, v uint32) error {
	p, err := h.word(off)
	if err != nil {
		return err
	}
	atomic.StoreUint32(p, v)
	return nil
}

// ReadAt implements the io.ReaderAt interface.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	if h == nil {
		return 0, os.ErrInvalid
	}

	if h.data == nil {
		return 0, errClosed
	}
	if off < 0 || int64(len(h.data)) < off {
		return 0, fmt.Errorf("mmap: invalid ReadAt offset %d", off)
	}
	n := copy(p, h.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements the io.WriterAt interface.
func (h *Handle) WriteAt(p []byte, off int64) (int, error) {
	if h == nil {
		return 0, os.ErrInvalid
	}

	if h.data == nil {
		return 0, errClosed
	}
	if off < 0 || int64(len(h.data)) < off {
		return 0, fmt.Errorf("mmap: invalid WriteAt offset %d", off)
	}
	n := copy(h.data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

var (
	_ io.ReaderAt = (*Handle)(nil)
	_ io.WriterAt = (*Handle)(nil)
	_ io.Closer   = (*Handle)(nil)
)
