// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dif

import (
	"fmt"

	"github.com/go-lpc/socdif/bitfield"
	"github.com/go-lpc/socdif/mmio"
)

// BitArray is an array of one-bit elements packed low-to-high in
// consecutive 32-bit registers starting at Offset.
// Element i lives in bit i%32 of the register at Offset+4*(i/32).
type BitArray struct {
	Offset uint32
	Count  uint32
}

func (arr BitArray) locate(i uint32) (uint32, bitfield.Bit, error) {
	if i >= arr.Count {
		return 0, 0, fmt.Errorf("dif: index %d out of range [0, %d): %w", i, arr.Count, ErrInvalidArgument)
	}
	return arr.Offset + 4*(i/32), bitfield.Bit(i % 32), nil
}

// Get reads element i.
func (arr BitArray) Get(r mmio.Region, i uint32) (bool, error) {
	off, bit, err := arr.locate(i)
	if err != nil {
		return false, err
	}
	reg, err := r.Read32(off)
	if err != nil {
		return false, err
	}
	return bit.Read(reg), nil
}

// Set sets element i to v, with a read-modify-write of its register.
// All other bits of the register are written back unchanged.
func (arr BitArray) Set(r mmio.Region, i uint32, v bool) error {
	off, bit, err := arr.locate(i)
	if err != nil {
		return err
	}
	reg, err := r.Read32(off)
	if err != nil {
		return err
	}
	return r.Write32(off, bit.Write(reg, v))
}
