// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mmio provides access to the 32-bit registers of a peripheral.
//
// A Region is a window of registers, addressed by byte offsets from the
// peripheral base address. Offsets must be 32-bit aligned.
package mmio // import "github.com/go-lpc/socdif/mmio"

import (
	"errors"
	"fmt"
)

// Region is a word-addressed register window.
type Region interface {
	Read32(off uint32) (uint32, error)
	Write32(off uint32, v uint32) error
}

var (
	ErrMisaligned = errors.New("mmio: misaligned register offset")
)

func checkAlign(off uint32) error {
	if off%4 != 0 {
		return fmt.Errorf("mmio: offset 0x%x: %w", off, ErrMisaligned)
	}
	return nil
}

// WriteShadowed writes v twice at off.
//
// Shadowed registers only latch a value after two identical consecutive
// writes. No other access to the same shadowed register group may happen
// between the two writes. A mismatch is reported by the hardware through
// its alert/status bits, so no read-back is performed here.
func WriteShadowed(r Region, off, v uint32) error {
	err := r.Write32(off, v)
	if err != nil {
		return fmt.Errorf("mmio: could not write shadowed register 0x%x (1st): %w", off, err)
	}
	err = r.Write32(off, v)
	if err != nil {
		return fmt.Errorf("mmio: could not write shadowed register 0x%x (2nd): %w", off, err)
	}
	return nil
}
