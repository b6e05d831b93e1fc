// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dif holds the types and helpers shared by the device interface
// drivers.
//
// Drivers translate typed requests into ordered register accesses on a
// mmio.Region. They never block, never retry and hold no locks: a device
// handle must not be used concurrently without external synchronization.
package dif // import "github.com/go-lpc/socdif/dif"

import (
	"errors"
	"fmt"

	"github.com/go-lpc/socdif/multibits"
)

var (
	// ErrInvalidArgument reports a malformed or out-of-range request.
	// It is always returned before any register access.
	ErrInvalidArgument = errors.New("dif: invalid argument")

	// ErrWrongState reports a request made while the hardware is not in
	// the state the request requires. Callers are expected to poll and retry.
	ErrWrongState = errors.New("dif: wrong hardware state")

	// ErrMalformed reports a multi-bit boolean register holding neither
	// canonical pattern, a sign of a fault or glitch.
	ErrMalformed = errors.New("dif: malformed multi-bit value")
)

// Toggle is a logical on/off state.
type Toggle uint8

const (
	Disabled Toggle = iota
	Enabled
)

// ToggleFromBool returns Enabled if v is true.
func ToggleFromBool(v bool) Toggle {
	if v {
		return Enabled
	}
	return Disabled
}

// Valid reports whether t is one of Enabled or Disabled.
func (t Toggle) Valid() bool {
	return t == Enabled || t == Disabled
}

// Bool returns true if t is Enabled.
func (t Toggle) Bool() bool { return t == Enabled }

func (t Toggle) String() string {
	switch t {
	case Enabled:
		return "enabled"
	case Disabled:
		return "disabled"
	}
	return fmt.Sprintf("Toggle(%d)", uint8(t))
}

// MultiBit4 returns the 4-bit multi-bit boolean encoding of t.
func (t Toggle) MultiBit4() uint32 {
	return multibits.Encode4(t == Enabled)
}

// ToggleFromMultiBit4 decodes a 4-bit multi-bit boolean.
// Non-canonical patterns yield ErrMalformed.
func ToggleFromMultiBit4(v uint32) (Toggle, error) {
	switch multibits.Decode4(v) {
	case multibits.True:
		return Enabled, nil
	case multibits.False:
		return Disabled, nil
	}
	return Disabled, fmt.Errorf("dif: multi-bit pattern 0x%x: %w", v, ErrMalformed)
}
