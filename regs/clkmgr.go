// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regs

import (
	"github.com/go-lpc/socdif/bitfield"
)

// Clkmgr is the register layout of the clock manager.
type Clkmgr struct {
	Version string `json:"version"`

	NumSWGateableClocks uint32 `json:"num_sw_gateable_clocks"`
	NumHintableClocks   uint32 `json:"num_hintable_clocks"`

	AlertTest ClkmgrAlertTest `json:"alert_test"`

	JitterRegwen ClkmgrRegwen   `json:"jitter_regwen"`
	JitterEnable ClkmgrMultiBit `json:"jitter_enable"`

	ClkEnables     uint32 `json:"clk_enables"`      // offset of the first CLK_ENABLES word
	ClkHints       uint32 `json:"clk_hints"`        // offset of the first CLK_HINTS word
	ClkHintsStatus uint32 `json:"clk_hints_status"` // offset of the first CLK_HINTS_STATUS word

	MeasureCtrlRegwen ClkmgrRegwen `json:"measure_ctrl_regwen"`
}

type ClkmgrAlertTest struct {
	Offset     uint32       `json:"offset"`
	RecovFault bitfield.Bit `json:"recov_fault"`
	FatalFault bitfield.Bit `json:"fatal_fault"`
}

// ClkmgrRegwen is a register write-enable lock.
type ClkmgrRegwen struct {
	Offset uint32       `json:"offset"`
	En     bitfield.Bit `json:"en"`
}

// ClkmgrMultiBit is a register holding a 4-bit multi-bit boolean.
type ClkmgrMultiBit struct {
	Offset uint32         `json:"offset"`
	Val    bitfield.Field `json:"val"`
}

// EarlGreyClkmgr is the clock manager layout of the earlgrey top.
var EarlGreyClkmgr = Clkmgr{
	Version: "earlgrey-clkmgr-1",

	NumSWGateableClocks: 4,
	NumHintableClocks:   4,

	AlertTest: ClkmgrAlertTest{
		Offset:     0x00,
		RecovFault: 0,
		FatalFault: 1,
	},
	JitterRegwen: ClkmgrRegwen{Offset: 0x10, En: 0},
	JitterEnable: ClkmgrMultiBit{
		Offset: 0x14,
		Val:    bitfield.Field{Mask: 0xf, Index: 0},
	},
	ClkEnables:        0x18,
	ClkHints:          0x1c,
	ClkHintsStatus:    0x20,
	MeasureCtrlRegwen: ClkmgrRegwen{Offset: 0x24, En: 0},
}

// Validate checks the consistency of the layout.
func (lay *Clkmgr) Validate() error {
	c := checker{name: "clkmgr " + lay.Version}
	c.count("num_sw_gateable_clocks", lay.NumSWGateableClocks)
	c.count("num_hintable_clocks", lay.NumHintableClocks)
	c.span("alert_test", lay.AlertTest.Offset, 1)
	c.bit("alert_test.recov_fault", lay.AlertTest.RecovFault)
	c.bit("alert_test.fatal_fault", lay.AlertTest.FatalFault)
	c.span("jitter_regwen", lay.JitterRegwen.Offset, 1)
	c.bit("jitter_regwen.en", lay.JitterRegwen.En)
	c.span("jitter_enable", lay.JitterEnable.Offset, 1)
	c.field("jitter_enable.val", lay.JitterEnable.Val)
	c.span("clk_enables", lay.ClkEnables, words(lay.NumSWGateableClocks))
	c.span("clk_hints", lay.ClkHints, words(lay.NumHintableClocks))
	c.span("clk_hints_status", lay.ClkHintsStatus, words(lay.NumHintableClocks))
	c.span("measure_ctrl_regwen", lay.MeasureCtrlRegwen.Offset, 1)
	c.bit("measure_ctrl_regwen.en", lay.MeasureCtrlRegwen.En)
	return c.err
}
