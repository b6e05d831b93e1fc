// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package clkmgr drives the clock manager: jitter control, software
// gateable clocks, hintable clocks and measurement control lock.
package clkmgr // import "github.com/go-lpc/socdif/dif/clkmgr"

import (
	"fmt"

	"github.com/go-lpc/socdif/bitfield"
	"github.com/go-lpc/socdif/dif"
	"github.com/go-lpc/socdif/mmio"
	"github.com/go-lpc/socdif/regs"
)

// GateableClock identifies a software gateable clock.
type GateableClock uint32

const (
	IoDiv4Peri GateableClock = iota
	IoDiv2Peri
	IoPeri
	UsbPeri
)

func (c GateableClock) String() string {
	switch c {
	case IoDiv4Peri:
		return "io-div4-peri"
	case IoDiv2Peri:
		return "io-div2-peri"
	case IoPeri:
		return "io-peri"
	case UsbPeri:
		return "usb-peri"
	}
	return fmt.Sprintf("GateableClock(%d)", uint32(c))
}

// HintableClock identifies a clock that may be stopped by hardware
// once its hint is cleared.
type HintableClock uint32

const (
	MainAes HintableClock = iota
	MainHmac
	MainKmac
	MainOtbn
)

func (c HintableClock) String() string {
	switch c {
	case MainAes:
		return "main-aes"
	case MainHmac:
		return "main-hmac"
	case MainKmac:
		return "main-kmac"
	case MainOtbn:
		return "main-otbn"
	}
	return fmt.Sprintf("HintableClock(%d)", uint32(c))
}

// Alert is an alert source of the clock manager.
type Alert uint8

const (
	AlertRecovFault Alert = iota
	AlertFatalFault
)

func (a Alert) String() string {
	switch a {
	case AlertRecovFault:
		return "recov-fault"
	case AlertFatalFault:
		return "fatal-fault"
	}
	return fmt.Sprintf("Alert(%d)", uint8(a))
}

// Device is a clock manager handle.
type Device struct {
	r   mmio.Region
	lay *regs.Clkmgr

	gates  dif.BitArray
	hints  dif.BitArray
	status dif.BitArray
}

type Option func(dev *Device)

// WithLayout sets the register layout of the device.
func WithLayout(lay *regs.Clkmgr) Option {
	return func(dev *Device) {
		dev.lay = lay
	}
}

// New returns a clock manager handle over r.
// New does not access the device.
func New(r mmio.Region, opts ...Option) (*Device, error) {
	if r == nil {
		return nil, fmt.Errorf("clkmgr: nil register region: %w", dif.ErrInvalidArgument)
	}

	dev := &Device{r: r, lay: &regs.EarlGreyClkmgr}
	for _, opt := range opts {
		opt(dev)
	}

	if dev.lay == nil {
		return nil, fmt.Errorf("clkmgr: nil register layout: %w", dif.ErrInvalidArgument)
	}
	err := dev.lay.Validate()
	if err != nil {
		return nil, fmt.Errorf("clkmgr: invalid register layout: %v: %w", err, dif.ErrInvalidArgument)
	}

	dev.gates = dif.BitArray{Offset: dev.lay.ClkEnables, Count: dev.lay.NumSWGateableClocks}
	dev.hints = dif.BitArray{Offset: dev.lay.ClkHints, Count: dev.lay.NumHintableClocks}
	dev.status = dif.BitArray{Offset: dev.lay.ClkHintsStatus, Count: dev.lay.NumHintableClocks}

	return dev, nil
}

var errNilDevice = fmt.Errorf("clkmgr: nil device: %w", dif.ErrInvalidArgument)

// Layout returns the register layout used by the device.
func (dev *Device) Layout() *regs.Clkmgr {
	return dev.lay
}

// JitterSetEnabled enables or disables clock jitter.
func (dev *Device) JitterSetEnabled(t dif.Toggle) error {
	if dev == nil {
		return errNilDevice
	}
	if !t.Valid() {
		return fmt.Errorf("clkmgr: invalid jitter toggle %v: %w", t, dif.ErrInvalidArgument)
	}

	jit := dev.lay.JitterEnable
	err := dev.r.Write32(jit.Offset, jit.Val.Write(0, t.MultiBit4()))
	if err != nil {
		return fmt.Errorf("clkmgr: could not write jitter enable: %w", err)
	}
	return nil
}

// JitterEnabled reports whether clock jitter is enabled.
// A register value that is neither the true nor the false pattern
// yields dif.ErrMalformed.
func (dev *Device) JitterEnabled() (dif.Toggle, error) {
	if dev == nil {
		return dif.Disabled, errNilDevice
	}

	jit := dev.lay.JitterEnable
	reg, err := dev.r.Read32(jit.Offset)
	if err != nil {
		return dif.Disabled, fmt.Errorf("clkmgr: could not read jitter enable: %w", err)
	}

	t, err := dif.ToggleFromMultiBit4(jit.Val.Read(reg))
	if err != nil {
		return dif.Disabled, fmt.Errorf("clkmgr: jitter enable: %w", err)
	}
	return t, nil
}

// JitterLocked reports whether the jitter enable register is locked
// until the next reset.
func (dev *Device) JitterLocked() (bool, error) {
	if dev == nil {
		return false, errNilDevice
	}

	wen := dev.lay.JitterRegwen
	reg, err := dev.r.Read32(wen.Offset)
	if err != nil {
		return false, fmt.Errorf("clkmgr: could not read jitter regwen: %w", err)
	}
	return !wen.En.Read(reg), nil
}

// GateableClockSetEnabled enables or disables the gateable clock c.
func (dev *Device) GateableClockSetEnabled(c GateableClock, t dif.Toggle) error {
	if dev == nil {
		return errNilDevice
	}
	if !t.Valid() {
		return fmt.Errorf("clkmgr: invalid toggle %v for clock %v: %w", t, c, dif.ErrInvalidArgument)
	}

	err := dev.gates.Set(dev.r, uint32(c), t.Bool())
	if err != nil {
		return fmt.Errorf("clkmgr: could not set gateable clock %v: %w", c, err)
	}
	return nil
}

// GateableClockEnabled reports whether the gateable clock c is enabled.
func (dev *Device) GateableClockEnabled(c GateableClock) (dif.Toggle, error) {
	if dev == nil {
		return dif.Disabled, errNilDevice
	}

	v, err := dev.gates.Get(dev.r, uint32(c))
	if err != nil {
		return dif.Disabled, fmt.Errorf("clkmgr: could not read gateable clock %v: %w", c, err)
	}
	return dif.ToggleFromBool(v), nil
}

// HintableClockSetHint sets the enable hint of the hintable clock c.
// Clearing the hint lets the hardware stop the clock once its
// consumer is idle.
func (dev *Device) HintableClockSetHint(c HintableClock, t dif.Toggle) error {
	if dev == nil {
		return errNilDevice
	}
	if !t.Valid() {
		return fmt.Errorf("clkmgr: invalid hint %v for clock %v: %w", t, c, dif.ErrInvalidArgument)
	}

	err := dev.hints.Set(dev.r, uint32(c), t.Bool())
	if err != nil {
		return fmt.Errorf("clkmgr: could not set hint of clock %v: %w", c, err)
	}
	return nil
}

// HintableClockHint reads back the enable hint of the hintable clock c.
func (dev *Device) HintableClockHint(c HintableClock) (dif.Toggle, error) {
	if dev == nil {
		return dif.Disabled, errNilDevice
	}

	v, err := dev.hints.Get(dev.r, uint32(c))
	if err != nil {
		return dif.Disabled, fmt.Errorf("clkmgr: could not read hint of clock %v: %w", c, err)
	}
	return dif.ToggleFromBool(v), nil
}

// HintableClockEnabled reports whether the hintable clock c is
// actually running.
func (dev *Device) HintableClockEnabled(c HintableClock) (dif.Toggle, error) {
	if dev == nil {
		return dif.Disabled, errNilDevice
	}

	v, err := dev.status.Get(dev.r, uint32(c))
	if err != nil {
		return dif.Disabled, fmt.Errorf("clkmgr: could not read status of clock %v: %w", c, err)
	}
	return dif.ToggleFromBool(v), nil
}

// MeasureCtrlDisable locks the measurement controls until the next
// reset.
func (dev *Device) MeasureCtrlDisable() error {
	if dev == nil {
		return errNilDevice
	}

	err := dev.r.Write32(dev.lay.MeasureCtrlRegwen.Offset, 0)
	if err != nil {
		return fmt.Errorf("clkmgr: could not write measure ctrl regwen: %w", err)
	}
	return nil
}

// MeasureCtrlEnabled reports whether the measurement controls are
// still writable.
func (dev *Device) MeasureCtrlEnabled() (dif.Toggle, error) {
	if dev == nil {
		return dif.Disabled, errNilDevice
	}

	wen := dev.lay.MeasureCtrlRegwen
	reg, err := dev.r.Read32(wen.Offset)
	if err != nil {
		return dif.Disabled, fmt.Errorf("clkmgr: could not read measure ctrl regwen: %w", err)
	}
	return dif.ToggleFromBool(wen.En.Read(reg)), nil
}

// ForceAlert fires alert a through the alert test register.
// The other alert bit is written as zero.
func (dev *Device) ForceAlert(a Alert) error {
	if dev == nil {
		return errNilDevice
	}

	at := dev.lay.AlertTest
	switch a {
	case AlertRecovFault, AlertFatalFault:
	default:
		return fmt.Errorf("clkmgr: invalid alert %v: %w", a, dif.ErrInvalidArgument)
	}

	reg := bitfield.Assemble(
		bitfield.BitValue(at.RecovFault, a == AlertRecovFault),
		bitfield.BitValue(at.FatalFault, a == AlertFatalFault),
	)
	err := dev.r.Write32(at.Offset, reg)
	if err != nil {
		return fmt.Errorf("clkmgr: could not write alert test register: %w", err)
	}
	return nil
}
