// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ReadWriterAt is the interface that groups io.ReaderAt and io.WriterAt.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// RW is a Region backed by an io.ReaderAt and io.WriterAt.
// Words are little-endian, the byte order of the peripheral bus.
type RW struct {
	rw   ReadWriterAt
	base int64
	xbuf [4]byte
}

// NewRW returns a Region reading and writing rw at base+offset.
func NewRW(rw ReadWriterAt, base int64) *RW {
	return &RW{rw: rw, base: base}
}

func (r *RW) Read32(off uint32) (uint32, error) {
	err := checkAlign(off)
	if err != nil {
		return 0, err
	}
	_, err = r.rw.ReadAt(r.xbuf[:4], r.base+int64(off))
	if err != nil {
		return 0, fmt.Errorf("mmio: could not read register 0x%x: %w", off, err)
	}
	return binary.LittleEndian.Uint32(r.xbuf[:4]), nil
}

func (r *RW) Write32(off uint32, v uint32) error {
	err := checkAlign(off)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(r.xbuf[:4], v)
	_, err = r.rw.WriteAt(r.xbuf[:4], r.base+int64(off))
	if err != nil {
		return fmt.Errorf("mmio: could not write register 0x%x: %w", off, err)
	}
	return nil
}

var (
	_ Region = (*RW)(nil)
)
