// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regs holds the register layouts of the supported peripherals.
//
// A layout is a versioned, read-only table of register offsets and field
// positions. Drivers never hard-code numeric layouts: a hardware revision
// only requires a new table, either compiled in or loaded from YAML.
package regs // import "github.com/go-lpc/socdif/regs"

import (
	"fmt"
	"io"

	"sigs.k8s.io/yaml"

	"github.com/go-lpc/socdif/bitfield"
)

// LoadAES reads an AES layout from YAML and validates it.
func LoadAES(r io.Reader) (*AES, error) {
	var lay AES
	err := load(r, &lay)
	if err != nil {
		return nil, fmt.Errorf("regs: could not load AES layout: %w", err)
	}
	err = lay.Validate()
	if err != nil {
		return nil, err
	}
	return &lay, nil
}

// LoadClkmgr reads a clock manager layout from YAML and validates it.
func LoadClkmgr(r io.Reader) (*Clkmgr, error) {
	var lay Clkmgr
	err := load(r, &lay)
	if err != nil {
		return nil, fmt.Errorf("regs: could not load clkmgr layout: %w", err)
	}
	err = lay.Validate()
	if err != nil {
		return nil, err
	}
	return &lay, nil
}

func load(r io.Reader, ptr interface{}) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("could not read layout: %w", err)
	}
	err = yaml.UnmarshalStrict(raw, ptr)
	if err != nil {
		return fmt.Errorf("could not decode layout: %w", err)
	}
	return nil
}

type checker struct {
	name  string
	err   error
	spans []span
}

// span is the address range [beg, end) occupied by a register or a
// register array.
type span struct {
	name     string
	beg, end uint64
}

// span checks the alignment of a register array of n words at off and
// that it does not overlap any register array recorded so far.
func (c *checker) span(name string, off, n uint32) {
	c.offset(name, off)
	if c.err != nil {
		return
	}
	cur := span{name: name, beg: uint64(off), end: uint64(off) + 4*uint64(n)}
	for _, o := range c.spans {
		if cur.beg < o.end && o.beg < cur.end {
			c.err = fmt.Errorf(
				"regs: %s: register %s [0x%x, 0x%x) overlaps register %s [0x%x, 0x%x)",
				c.name, cur.name, cur.beg, cur.end, o.name, o.beg, o.end,
			)
			return
		}
	}
	c.spans = append(c.spans, cur)
}

// words returns the number of 32-bit words holding n bits.
func words(n uint32) uint32 {
	return uint32((uint64(n) + 31) / 32)
}

func (c *checker) offset(name string, off uint32) {
	if c.err != nil {
		return
	}
	if off%4 != 0 {
		c.err = fmt.Errorf("regs: %s: register %s: misaligned offset 0x%x", c.name, name, off)
	}
}

func (c *checker) bit(name string, b bitfield.Bit) {
	if c.err != nil {
		return
	}
	if b > 31 {
		c.err = fmt.Errorf("regs: %s: bit %s: invalid index %d", c.name, name, b)
	}
}

func (c *checker) field(name string, f bitfield.Field) {
	if c.err != nil {
		return
	}
	switch {
	case f.Mask == 0:
		c.err = fmt.Errorf("regs: %s: field %s: empty mask", c.name, name)
	case f.Index > 31:
		c.err = fmt.Errorf("regs: %s: field %s: invalid index %d", c.name, name, f.Index)
	case uint64(f.Mask)<<f.Index > 0xffffffff:
		c.err = fmt.Errorf("regs: %s: field %s: mask 0x%x overflows register at index %d", c.name, name, f.Mask, f.Index)
	}
}

// codes checks that the enumeration codes of a field are distinct,
// non-zero and fit within the field.
func (c *checker) codes(name string, f bitfield.Field, vs ...uint32) {
	if c.err != nil {
		return
	}
	seen := make(map[uint32]bool, len(vs))
	for _, v := range vs {
		switch {
		case v == 0:
			c.err = fmt.Errorf("regs: %s: field %s: zero code", c.name, name)
		case v&^f.Mask != 0:
			c.err = fmt.Errorf("regs: %s: field %s: code 0x%x does not fit mask 0x%x", c.name, name, v, f.Mask)
		case seen[v]:
			c.err = fmt.Errorf("regs: %s: field %s: duplicate code 0x%x", c.name, name, v)
		}
		if c.err != nil {
			return
		}
		seen[v] = true
	}
}

func (c *checker) count(name string, n uint32) {
	if c.err != nil {
		return
	}
	if n == 0 {
		c.err = fmt.Errorf("regs: %s: %s: zero count", c.name, name)
	}
}
