// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmio

import (
	"fmt"
	"os"

	"github.com/go-lpc/socdif/internal/mmap"
)

// Mapped is a Region backed by a memory-mapped window of a physical
// memory device (typically /dev/mem).
type Mapped struct {
	fd *os.File
	h  *mmap.Handle
}

// Map maps span bytes of devmem at physical address base.
func Map(devmem string, base, span int64) (*Mapped, error) {
	f, err := os.OpenFile(devmem, os.O_RDWR|os.O_SYNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("mmio: could not open %q: %w", devmem, err)
	}

	h, err := mmap.Map(f, base, span)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmio: could not map %q at 0x%x: %w", devmem, base, err)
	}

	return &Mapped{fd: f, h: h}, nil
}

func (m *Mapped) Read32(off uint32) (uint32, error) {
	err := checkAlign(off)
	if err != nil {
		return 0, err
	}
	v, err := m.h.Load32(int64(off))
	if err != nil {
		return 0, fmt.Errorf("mmio: could not read register 0x%x: %w", off, err)
	}
	return v, nil
}

func (m *Mapped) Write32(off uint32, v uint32) error {
	err := checkAlign(off)
	if err != nil {
		return err
	}
	err = m.h.Store32(int64(off), v)
	if err != nil {
		return fmt.Errorf("mmio: could not write register 0x%x: %w", off, err)
	}
	return nil
}

// Close unmaps the window and closes the memory device.
func (m *Mapped) Close() error {
	err := m.h.Close()
	if err != nil {
		_ = m.fd.Close()
		return fmt.Errorf("mmio: could not munmap: %w", err)
	}
	err = m.fd.Close()
	if err != nil {
		return fmt.Errorf("mmio: could not close memory device: %w", err)
	}
	return nil
}

var (
	_ Region = (*Mapped)(nil)
)
