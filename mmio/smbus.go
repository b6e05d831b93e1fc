// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmio

import (
	"fmt"

	"github.com/go-daq/smbus"
)

type smbusConn interface {
	ReadWord(addr, reg uint8) (uint16, error)
	WriteWord(addr, reg uint8, v uint16) error
	Close() error
}

var (
	smbusOpen = smbusOpenImpl
)

func smbusOpenImpl(bus int, addr uint8) (smbusConn, error) {
	return smbus.Open(bus, addr)
}

// SMBus is a Region reached through an SMBus register bridge.
//
// The bridge exposes each 32-bit register at byte offset off as two 16-bit
// SMBus words: command off/2 holds the low half and command off/2+1 the
// high half. The bridge commits a 32-bit write on the high-half write.
type SMBus struct {
	conn smbusConn
	addr uint8
}

// OpenSMBus opens the bridge at addr on the i2c bus number bus.
func OpenSMBus(bus int, addr uint8) (*SMBus, error) {
	conn, err := smbusOpen(bus, addr)
	if err != nil {
		return nil, fmt.Errorf("mmio: could not open smbus (bus=%d, addr=0x%x): %w", bus, addr, err)
	}
	return &SMBus{conn: conn, addr: addr}, nil
}

func (r *SMBus) cmds(off uint32) (lo, hi uint8, err error) {
	err = checkAlign(off)
	if err != nil {
		return 0, 0, err
	}
	cmd := off / 2
	if cmd+1 > 0xff {
		return 0, 0, fmt.Errorf("mmio: offset 0x%x out of smbus bridge range", off)
	}
	return uint8(cmd), uint8(cmd + 1), nil
}

func (r *SMBus) Read32(off uint32) (uint32, error) {
	lo, hi, err := r.cmds(off)
	if err != nil {
		return 0, err
	}
	vlo, err := r.conn.ReadWord(r.addr, lo)
	if err != nil {
		return 0, fmt.Errorf("mmio: could not read register 0x%x (lo): %w", off, err)
	}
	vhi, err := r.conn.ReadWord(r.addr, hi)
	if err != nil {
		return 0, fmt.Errorf("mmio: could not read register 0x%x (hi): %w", off, err)
	}
	return uint32(vhi)<<16 | uint32(vlo), nil
}

func (r *SMBus) Write32(off uint32, v uint32) error {
	lo, hi, err := r.cmds(off)
	if err != nil {
		return err
	}
	err = r.conn.WriteWord(r.addr, lo, uint16(v))
	if err != nil {
		return fmt.Errorf("mmio: could not write register 0x%x (lo): %w", off, err)
	}
	err = r.conn.WriteWord(r.addr, hi, uint16(v>>16))
	if err != nil {
		return fmt.Errorf("mmio: could not write register 0x%x (hi): %w", off, err)
	}
	return nil
}

// Close closes the underlying SMBus connection.
func (r *SMBus) Close() error {
	return r.conn.Close()
}

var (
	_ Region = (*SMBus)(nil)
)
