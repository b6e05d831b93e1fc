// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mockmmio provides a register region replaying an ordered list
// of expected register accesses.
package mockmmio // import "github.com/go-lpc/socdif/internal/mockmmio"

import (
	"errors"
	"fmt"

	"github.com/go-lpc/socdif/mmio"
)

var (
	ErrUnexpected = errors.New("mockmmio: unexpected register access")
)

type tester interface {
	Helper()
	Errorf(format string, args ...interface{})
}

type kind uint8

const (
	read kind = iota
	write
	mask
)

type expect struct {
	kind kind
	off  uint32
	val  uint32 // value returned by a read, or expected by a write
	mask uint32 // bits checked by a masked write
	err  error  // error returned by the access
}

func (e expect) String() string {
	switch e.kind {
	case read:
		return fmt.Sprintf("read32(0x%x) -> 0x%x", e.off, e.val)
	case write:
		return fmt.Sprintf("write32(0x%x, 0x%x)", e.off, e.val)
	default:
		return fmt.Sprintf("write32(0x%x, 0x%x/mask=0x%x)", e.off, e.val, e.mask)
	}
}

// Device is a mmio.Region checking accesses against expectations,
// in order.
type Device struct {
	t   tester
	exp []expect

	reads  int
	writes int
}

// New returns a new mock region reporting mismatches to t.
func New(t tester) *Device {
	return &Device{t: t}
}

// ExpectRead32 expects a read at off, returning v.
func (dev *Device) ExpectRead32(off, v uint32) {
	dev.exp = append(dev.exp, expect{kind: read, off: off, val: v})
}

// ExpectReadErr32 expects a read at off, failing with err.
func (dev *Device) ExpectReadErr32(off uint32, err error) {
	dev.exp = append(dev.exp, expect{kind: read, off: off, err: err})
}

// ExpectWrite32 expects the write of v at off.
func (dev *Device) ExpectWrite32(off, v uint32) {
	dev.exp = append(dev.exp, expect{kind: write, off: off, val: v})
}

// ExpectWriteErr32 expects the write of v at off, failing with err.
func (dev *Device) ExpectWriteErr32(off, v uint32, err error) {
	dev.exp = append(dev.exp, expect{kind: write, off: off, val: v, err: err})
}

// ExpectShadowedWrite32 expects the two identical writes of a shadowed
// register update.
func (dev *Device) ExpectShadowedWrite32(off, v uint32) {
	dev.ExpectWrite32(off, v)
	dev.ExpectWrite32(off, v)
}

// ExpectMask32 expects a read-modify-write cycle at off: the read returns
// prev, the write must carry v on the bits of m and prev everywhere else.
func (dev *Device) ExpectMask32(off, prev, m, v uint32) {
	dev.ExpectRead32(off, prev)
	dev.exp = append(dev.exp, expect{kind: mask, off: off, val: (prev &^ m) | (v & m), mask: m})
}

func (dev *Device) next(k kind, off, v uint32) (expect, error) {
	dev.t.Helper()
	if len(dev.exp) == 0 {
		dev.t.Errorf("mockmmio: unexpected access: %s (no more expectations)", describe(k, off, v))
		return expect{}, ErrUnexpected
	}
	exp := dev.exp[0]
	dev.exp = dev.exp[1:]

	ok := exp.off == off
	switch k {
	case read:
		ok = ok && exp.kind == read
	case write:
		ok = ok && exp.kind != read && exp.val == v
	}
	if !ok {
		dev.t.Errorf("mockmmio: unexpected access: %s (want %v)", describe(k, off, v), exp)
		return expect{}, ErrUnexpected
	}
	return exp, nil
}

func describe(k kind, off, v uint32) string {
	if k == read {
		return fmt.Sprintf("read32(0x%x)", off)
	}
	return fmt.Sprintf("write32(0x%x, 0x%x)", off, v)
}

func (dev *Device) Read32(off uint32) (uint32, error) {
	dev.t.Helper()
	dev.reads++
	exp, err := dev.next(read, off, 0)
	if err != nil {
		return 0, err
	}
	if exp.err != nil {
		return 0, exp.err
	}
	return exp.val, nil
}

func (dev *Device) Write32(off, v uint32) error {
	dev.t.Helper()
	dev.writes++
	exp, err := dev.next(write, off, v)
	if err != nil {
		return err
	}
	return exp.err
}

// Reads returns the number of reads performed so far.
func (dev *Device) Reads() int { return dev.reads }

// Writes returns the number of writes performed so far.
func (dev *Device) Writes() int { return dev.writes }

// Accesses returns the number of register accesses performed so far.
func (dev *Device) Accesses() int { return dev.reads + dev.writes }

// Done reports any expectation left unmet.
func (dev *Device) Done() {
	dev.t.Helper()
	for _, exp := range dev.exp {
		dev.t.Errorf("mockmmio: missing access: %v", exp)
	}
	dev.exp = dev.exp[:0]
}

var (
	_ mmio.Region = (*Device)(nil)
)
