// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmio

import (
	"errors"
	"testing"
)

type fakeSMBus struct {
	addr  uint8
	words map[uint8]uint16
	err   error
	done  bool
}

func (bus *fakeSMBus) ReadWord(addr, reg uint8) (uint16, error) {
	if addr != bus.addr {
		return 0, errors.New("invalid smbus address")
	}
	return bus.words[reg], bus.err
}

func (bus *fakeSMBus) WriteWord(addr, reg uint8, v uint16) error {
	if addr != bus.addr {
		return errors.New("invalid smbus address")
	}
	if bus.err != nil {
		return bus.err
	}
	bus.words[reg] = v
	return nil
}

func (bus *fakeSMBus) Close() error {
	bus.done = true
	return nil
}

func TestSMBus(t *testing.T) {
	bus := &fakeSMBus{addr: 0x42, words: make(map[uint8]uint16)}
	smbusOpen = func(n int, addr uint8) (smbusConn, error) {
		if n != 1 {
			return nil, errors.New("no such bus")
		}
		return bus, nil
	}
	defer func() {
		smbusOpen = smbusOpenImpl
	}()

	_, err := OpenSMBus(2, 0x42)
	if err == nil {
		t.Fatalf("expected an error")
	}

	r, err := OpenSMBus(1, 0x42)
	if err != nil {
		t.Fatalf("could not open smbus bridge: %+v", err)
	}

	err = r.Write32(0x84, 0xcafe0011)
	if err != nil {
		t.Fatalf("could not write: %+v", err)
	}
	if got, want := bus.words[0x42], uint16(0x0011); got != want {
		t.Fatalf("invalid low half: got=0x%x, want=0x%x", got, want)
	}
	if got, want := bus.words[0x43], uint16(0xcafe); got != want {
		t.Fatalf("invalid high half: got=0x%x, want=0x%x", got, want)
	}

	v, err := r.Read32(0x84)
	if err != nil {
		t.Fatalf("could not read: %+v", err)
	}
	if v != 0xcafe0011 {
		t.Fatalf("invalid value: got=0x%x, want=0xcafe0011", v)
	}

	_, err = r.Read32(0x1fc)
	if err != nil {
		t.Fatalf("could not read last register: %+v", err)
	}
	_, err = r.Read32(0x200)
	if err == nil {
		t.Fatalf("expected an out-of-range error")
	}
	_, err = r.Read32(0x2)
	if !errors.Is(err, ErrMisaligned) {
		t.Fatalf("invalid error: %+v", err)
	}

	errBus := errors.New("nack")
	bus.err = errBus
	_, err = r.Read32(0x84)
	if !errors.Is(err, errBus) {
		t.Fatalf("invalid error: %+v", err)
	}
	err = r.Write32(0x84, 0)
	if !errors.Is(err, errBus) {
		t.Fatalf("invalid error: %+v", err)
	}

	err = r.Close()
	if err != nil || !bus.done {
		t.Fatalf("could not close bridge: %+v", err)
	}
}
