// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regs

import (
	"github.com/go-lpc/socdif/bitfield"
)

// AES is the register layout of the AES engine.
type AES struct {
	Version string `json:"version"`

	AlertTest AESAlertTest `json:"alert_test"`

	KeyShare0 uint32 `json:"key_share0"` // offset of KEY_SHARE0_0
	KeyShare1 uint32 `json:"key_share1"` // offset of KEY_SHARE1_0
	IV        uint32 `json:"iv"`         // offset of IV_0
	DataIn    uint32 `json:"data_in"`    // offset of DATA_IN_0
	DataOut   uint32 `json:"data_out"`   // offset of DATA_OUT_0

	Ctrl    AESCtrl    `json:"ctrl_shadowed"`
	Trigger AESTrigger `json:"trigger"`
	Status  AESStatus  `json:"status"`
}

type AESAlertTest struct {
	Offset             uint32       `json:"offset"`
	RecovCtrlUpdateErr bitfield.Bit `json:"recov_ctrl_update_err"`
	FatalFault         bitfield.Bit `json:"fatal_fault"`
}

// AESCtrl is the layout of the shadowed control register.
type AESCtrl struct {
	Offset uint32 `json:"offset"`

	Operation bitfield.Field `json:"operation"`
	OpEnc     uint32         `json:"op_enc"`
	OpDec     uint32         `json:"op_dec"`

	Mode    bitfield.Field `json:"mode"`
	ModeECB uint32         `json:"mode_ecb"`
	ModeCBC uint32         `json:"mode_cbc"`
	ModeCFB uint32         `json:"mode_cfb"`
	ModeOFB uint32         `json:"mode_ofb"`
	ModeCTR uint32         `json:"mode_ctr"`

	KeyLen    bitfield.Field `json:"key_len"`
	KeyLen128 uint32         `json:"key_len_128"`
	KeyLen192 uint32         `json:"key_len_192"`
	KeyLen256 uint32         `json:"key_len_256"`

	ManualOperation bitfield.Bit `json:"manual_operation"`
	ForceZeroMasks  bitfield.Bit `json:"force_zero_masks"`
}

type AESTrigger struct {
	Offset           uint32       `json:"offset"`
	Start            bitfield.Bit `json:"start"`
	KeyIVDataInClear bitfield.Bit `json:"key_iv_data_in_clear"`
	DataOutClear     bitfield.Bit `json:"data_out_clear"`
	PRNGReseed       bitfield.Bit `json:"prng_reseed"`
}

type AESStatus struct {
	Offset                  uint32       `json:"offset"`
	Idle                    bitfield.Bit `json:"idle"`
	Stall                   bitfield.Bit `json:"stall"`
	OutputLost              bitfield.Bit `json:"output_lost"`
	OutputValid             bitfield.Bit `json:"output_valid"`
	InputReady              bitfield.Bit `json:"input_ready"`
	AlertRecovCtrlUpdateErr bitfield.Bit `json:"alert_recov_ctrl_update_err"`
	AlertFatalFault         bitfield.Bit `json:"alert_fatal_fault"`
}

const (
	AESNumKeyRegs  = 8 // number of registers per key share
	AESNumIVRegs   = 4
	AESNumDataRegs = 4
)

// EarlGreyAES is the AES layout of the earlgrey top.
var EarlGreyAES = AES{
	Version: "earlgrey-aes-1",
	AlertTest: AESAlertTest{
		Offset:             0x00,
		RecovCtrlUpdateErr: 0,
		FatalFault:         1,
	},
	KeyShare0: 0x04,
	KeyShare1: 0x24,
	IV:        0x44,
	DataIn:    0x54,
	DataOut:   0x64,
	Ctrl: AESCtrl{
		Offset: 0x74,

		Operation: bitfield.Field{Mask: 0x3, Index: 0},
		OpEnc:     0x1,
		OpDec:     0x2,

		Mode:    bitfield.Field{Mask: 0x3f, Index: 2},
		ModeECB: 0x01,
		ModeCBC: 0x02,
		ModeCFB: 0x04,
		ModeOFB: 0x08,
		ModeCTR: 0x10,

		KeyLen:    bitfield.Field{Mask: 0x7, Index: 8},
		KeyLen128: 0x1,
		KeyLen192: 0x2,
		KeyLen256: 0x4,

		ManualOperation: 15,
		ForceZeroMasks:  16,
	},
	Trigger: AESTrigger{
		Offset:           0x78,
		Start:            0,
		KeyIVDataInClear: 1,
		DataOutClear:     2,
		PRNGReseed:       3,
	},
	Status: AESStatus{
		Offset:                  0x7c,
		Idle:                    0,
		Stall:                   1,
		OutputLost:              2,
		OutputValid:             3,
		InputReady:              4,
		AlertRecovCtrlUpdateErr: 5,
		AlertFatalFault:         6,
	},
}

// Validate checks the consistency of the layout.
func (lay *AES) Validate() error {
	c := checker{name: "aes " + lay.Version}
	c.span("alert_test", lay.AlertTest.Offset, 1)
	c.bit("alert_test.recov_ctrl_update_err", lay.AlertTest.RecovCtrlUpdateErr)
	c.bit("alert_test.fatal_fault", lay.AlertTest.FatalFault)
	c.span("key_share0", lay.KeyShare0, AESNumKeyRegs)
	c.span("key_share1", lay.KeyShare1, AESNumKeyRegs)
	c.span("iv", lay.IV, AESNumIVRegs)
	c.span("data_in", lay.DataIn, AESNumDataRegs)
	c.span("data_out", lay.DataOut, AESNumDataRegs)

	c.span("ctrl_shadowed", lay.Ctrl.Offset, 1)
	c.field("ctrl_shadowed.operation", lay.Ctrl.Operation)
	c.codes("ctrl_shadowed.operation", lay.Ctrl.Operation, lay.Ctrl.OpEnc, lay.Ctrl.OpDec)
	c.field("ctrl_shadowed.mode", lay.Ctrl.Mode)
	c.codes("ctrl_shadowed.mode", lay.Ctrl.Mode,
		lay.Ctrl.ModeECB, lay.Ctrl.ModeCBC, lay.Ctrl.ModeCFB,
		lay.Ctrl.ModeOFB, lay.Ctrl.ModeCTR,
	)
	c.field("ctrl_shadowed.key_len", lay.Ctrl.KeyLen)
	c.codes("ctrl_shadowed.key_len", lay.Ctrl.KeyLen,
		lay.Ctrl.KeyLen128, lay.Ctrl.KeyLen192, lay.Ctrl.KeyLen256,
	)
	c.bit("ctrl_shadowed.manual_operation", lay.Ctrl.ManualOperation)
	c.bit("ctrl_shadowed.force_zero_masks", lay.Ctrl.ForceZeroMasks)

	c.span("trigger", lay.Trigger.Offset, 1)
	c.bit("trigger.start", lay.Trigger.Start)
	c.bit("trigger.key_iv_data_in_clear", lay.Trigger.KeyIVDataInClear)
	c.bit("trigger.data_out_clear", lay.Trigger.DataOutClear)
	c.bit("trigger.prng_reseed", lay.Trigger.PRNGReseed)

	c.span("status", lay.Status.Offset, 1)
	c.bit("status.idle", lay.Status.Idle)
	c.bit("status.stall", lay.Status.Stall)
	c.bit("status.output_lost", lay.Status.OutputLost)
	c.bit("status.output_valid", lay.Status.OutputValid)
	c.bit("status.input_ready", lay.Status.InputReady)
	c.bit("status.alert_recov_ctrl_update_err", lay.Status.AlertRecovCtrlUpdateErr)
	c.bit("status.alert_fatal_fault", lay.Status.AlertFatalFault)
	return c.err
}
