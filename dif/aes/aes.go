// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package aes drives the AES engine through its registers.
//
// A transaction is started with Start (configuration, key shares and IV),
// then blocks are moved with LoadData and ReadOutput. None of the calls
// wait for the hardware: a call made while the engine is not ready fails
// with dif.ErrWrongState and callers poll Status themselves.
package aes // import "github.com/go-lpc/socdif/dif/aes"

import (
	"fmt"

	"github.com/go-lpc/socdif/bitfield"
	"github.com/go-lpc/socdif/dif"
	"github.com/go-lpc/socdif/mmio"
	"github.com/go-lpc/socdif/regs"
)

// Device is a handle to one AES engine instance.
type Device struct {
	r   mmio.Region
	lay *regs.AES
}

// Option configures a Device.
type Option func(dev *Device)

// WithLayout sets the register layout of the engine.
// The default is regs.EarlGreyAES.
func WithLayout(lay *regs.AES) Option {
	return func(dev *Device) {
		dev.lay = lay
	}
}

// New returns a handle to the AES engine behind r.
// New performs no register access.
func New(r mmio.Region, opts ...Option) (*Device, error) {
	if r == nil {
		return nil, fmt.Errorf("aes: nil register region: %w", dif.ErrInvalidArgument)
	}

	dev := &Device{r: r, lay: &regs.EarlGreyAES}
	for _, opt := range opts {
		opt(dev)
	}

	if dev.lay == nil {
		return nil, fmt.Errorf("aes: nil register layout: %w", dif.ErrInvalidArgument)
	}
	err := dev.lay.Validate()
	if err != nil {
		return nil, fmt.Errorf("aes: invalid register layout: %v: %w", err, dif.ErrInvalidArgument)
	}

	return dev, nil
}

var errNilDevice = fmt.Errorf("aes: nil device: %w", dif.ErrInvalidArgument)

// Layout returns the register layout used by the device.
func (dev *Device) Layout() *regs.AES {
	return dev.lay
}

// legal lists the accepted key lengths and operations of each mode.
var legal = map[Mode]struct {
	keys [3]bool // indexed by KeyLen
	ops  [2]bool // indexed by Operation
}{
	ECB: {keys: [3]bool{true, true, true}, ops: [2]bool{true, true}},
	CBC: {keys: [3]bool{true, true, true}, ops: [2]bool{true, true}},
	CFB: {keys: [3]bool{true, true, true}, ops: [2]bool{true, true}},
	OFB: {keys: [3]bool{true, true, true}, ops: [2]bool{true, true}},
	CTR: {keys: [3]bool{true, true, true}, ops: [2]bool{true, true}},
}

func (dev *Device) ctrl(tx Transaction) (uint32, error) {
	var (
		ctl = dev.lay.Ctrl
		vs  = make([]bitfield.Value, 0, 5)
	)

	comb, ok := legal[tx.Mode]
	switch {
	case !ok:
		return 0, fmt.Errorf("aes: invalid mode %v: %w", tx.Mode, dif.ErrInvalidArgument)
	case int(tx.KeyLen) >= len(comb.keys) || !comb.keys[tx.KeyLen]:
		return 0, fmt.Errorf("aes: invalid key length %v for mode %v: %w", tx.KeyLen, tx.Mode, dif.ErrInvalidArgument)
	case int(tx.Operation) >= len(comb.ops) || !comb.ops[tx.Operation]:
		return 0, fmt.Errorf("aes: invalid operation %v for mode %v: %w", tx.Operation, tx.Mode, dif.ErrInvalidArgument)
	}

	switch tx.Operation {
	case Encrypt:
		vs = append(vs, bitfield.Value{Field: ctl.Operation, Value: ctl.OpEnc})
	case Decrypt:
		vs = append(vs, bitfield.Value{Field: ctl.Operation, Value: ctl.OpDec})
	}

	mode := map[Mode]uint32{
		ECB: ctl.ModeECB,
		CBC: ctl.ModeCBC,
		CFB: ctl.ModeCFB,
		OFB: ctl.ModeOFB,
		CTR: ctl.ModeCTR,
	}[tx.Mode]
	vs = append(vs, bitfield.Value{Field: ctl.Mode, Value: mode})

	klen := [...]uint32{
		Key128: ctl.KeyLen128,
		Key192: ctl.KeyLen192,
		Key256: ctl.KeyLen256,
	}[tx.KeyLen]
	vs = append(vs, bitfield.Value{Field: ctl.KeyLen, Value: klen})

	switch tx.Trigger {
	case Auto, Manual:
		vs = append(vs, bitfield.BitValue(ctl.ManualOperation, tx.Trigger == Manual))
	default:
		return 0, fmt.Errorf("aes: invalid trigger mode %v: %w", tx.Trigger, dif.ErrInvalidArgument)
	}

	switch tx.Masking {
	case MaskingPRNG, MaskingForceZero:
		vs = append(vs, bitfield.BitValue(ctl.ForceZeroMasks, tx.Masking == MaskingForceZero))
	default:
		return 0, fmt.Errorf("aes: invalid masking %v: %w", tx.Masking, dif.ErrInvalidArgument)
	}

	return bitfield.Assemble(vs...), nil
}

func (dev *Device) status(bit bitfield.Bit) (bool, error) {
	reg, err := dev.r.Read32(dev.lay.Status.Offset)
	if err != nil {
		return false, fmt.Errorf("aes: could not read status: %w", err)
	}
	return bit.Read(reg), nil
}

func (dev *Device) writeWords(name string, off uint32, ws []uint32) error {
	for i, w := range ws {
		err := dev.r.Write32(off+4*uint32(i), w)
		if err != nil {
			return fmt.Errorf("aes: could not write %s[%d]: %w", name, i, err)
		}
	}
	return nil
}

// Start configures the engine for a new transaction and loads the key
// shares and, for chaining modes, the IV.
//
// The engine must be idle. The IV is required by every mode but ECB,
// which ignores it.
func (dev *Device) Start(tx Transaction, key KeyShare, iv *IV) error {
	if dev == nil {
		return errNilDevice
	}

	ctrl, err := dev.ctrl(tx)
	if err != nil {
		return err
	}
	if tx.Mode.Chaining() && iv == nil {
		return fmt.Errorf("aes: mode %v requires an IV: %w", tx.Mode, dif.ErrInvalidArgument)
	}

	idle, err := dev.status(dev.lay.Status.Idle)
	if err != nil {
		return err
	}
	if !idle {
		return fmt.Errorf("aes: could not start transaction: engine not idle: %w", dif.ErrWrongState)
	}

	err = mmio.WriteShadowed(dev.r, dev.lay.Ctrl.Offset, ctrl)
	if err != nil {
		return fmt.Errorf("aes: could not write control register: %w", err)
	}

	// the key is only latched once both shares are fully written.
	err = dev.writeWords("key-share0", dev.lay.KeyShare0, key.Share0[:])
	if err != nil {
		return err
	}
	err = dev.writeWords("key-share1", dev.lay.KeyShare1, key.Share1[:])
	if err != nil {
		return err
	}

	if !tx.Mode.Chaining() {
		return nil
	}

	return dev.writeWords("iv", dev.lay.IV, iv[:])
}

// End closes the current transaction, clearing the key, IV and data
// registers. The engine must be idle.
func (dev *Device) End() error {
	if dev == nil {
		return errNilDevice
	}

	idle, err := dev.status(dev.lay.Status.Idle)
	if err != nil {
		return err
	}
	if !idle {
		return fmt.Errorf("aes: could not end transaction: engine not idle: %w", dif.ErrWrongState)
	}

	trig := dev.lay.Trigger
	reg := bitfield.Assemble(
		bitfield.BitValue(trig.KeyIVDataInClear, true),
		bitfield.BitValue(trig.DataOutClear, true),
	)
	err = dev.r.Write32(trig.Offset, reg)
	if err != nil {
		return fmt.Errorf("aes: could not write trigger register: %w", err)
	}
	return nil
}

// LoadData writes one input block.
// The engine must report input ready.
func (dev *Device) LoadData(b Block) error {
	if dev == nil {
		return errNilDevice
	}

	ready, err := dev.status(dev.lay.Status.InputReady)
	if err != nil {
		return err
	}
	if !ready {
		return fmt.Errorf("aes: could not load data: input not ready: %w", dif.ErrWrongState)
	}

	return dev.writeWords("data-in", dev.lay.DataIn, b[:])
}

// ReadOutput reads one output block.
// The engine must report a valid output. Reading does not clear the
// output valid flag.
func (dev *Device) ReadOutput() (Block, error) {
	var out Block
	if dev == nil {
		return out, errNilDevice
	}

	valid, err := dev.status(dev.lay.Status.OutputValid)
	if err != nil {
		return out, err
	}
	if !valid {
		return out, fmt.Errorf("aes: could not read output: no valid output: %w", dif.ErrWrongState)
	}

	for i := range out {
		out[i], err = dev.r.Read32(dev.lay.DataOut + 4*uint32(i))
		if err != nil {
			return Block{}, fmt.Errorf("aes: could not read data-out[%d]: %w", i, err)
		}
	}
	return out, nil
}

// Trigger issues the one-shot command c.
func (dev *Device) Trigger(c Cmd) error {
	if dev == nil {
		return errNilDevice
	}

	var (
		trig = dev.lay.Trigger
		bit  bitfield.Bit
	)
	switch c {
	case CmdStart:
		bit = trig.Start
	case CmdKeyIVDataInClear:
		bit = trig.KeyIVDataInClear
	case CmdDataOutClear:
		bit = trig.DataOutClear
	case CmdPRNGReseed:
		bit = trig.PRNGReseed
	default:
		return fmt.Errorf("aes: invalid trigger command %v: %w", c, dif.ErrInvalidArgument)
	}

	err := dev.r.Write32(trig.Offset, bit.Write(0, true))
	if err != nil {
		return fmt.Errorf("aes: could not write trigger register: %w", err)
	}
	return nil
}

// Status reads the status flag s.
func (dev *Device) Status(s Status) (bool, error) {
	if dev == nil {
		return false, errNilDevice
	}

	st := dev.lay.Status
	var bit bitfield.Bit
	switch s {
	case StatusIdle:
		bit = st.Idle
	case StatusStall:
		bit = st.Stall
	case StatusOutputLost:
		bit = st.OutputLost
	case StatusOutputValid:
		bit = st.OutputValid
	case StatusInputReady:
		bit = st.InputReady
	case StatusAlertFatalFault:
		bit = st.AlertFatalFault
	case StatusAlertRecovCtrlUpdateErr:
		bit = st.AlertRecovCtrlUpdateErr
	default:
		return false, fmt.Errorf("aes: invalid status flag %v: %w", s, dif.ErrInvalidArgument)
	}

	return dev.status(bit)
}

// ForceAlert fires alert a through the alert test register.
// The other alert bit is written as zero.
func (dev *Device) ForceAlert(a Alert) error {
	if dev == nil {
		return errNilDevice
	}

	at := dev.lay.AlertTest
	switch a {
	case AlertRecovCtrlUpdateErr, AlertFatalFault:
	default:
		return fmt.Errorf("aes: invalid alert %v: %w", a, dif.ErrInvalidArgument)
	}

	reg := bitfield.Assemble(
		bitfield.BitValue(at.RecovCtrlUpdateErr, a == AlertRecovCtrlUpdateErr),
		bitfield.BitValue(at.FatalFault, a == AlertFatalFault),
	)
	err := dev.r.Write32(at.Offset, reg)
	if err != nil {
		return fmt.Errorf("aes: could not write alert test register: %w", err)
	}
	return nil
}
