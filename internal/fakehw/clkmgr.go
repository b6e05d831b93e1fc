// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fakehw

import (
	"fmt"
	"sync"

	"github.com/go-lpc/socdif/mmio"
	"github.com/go-lpc/socdif/multibits"
	"github.com/go-lpc/socdif/regs"
)

// Clkmgr models the clock manager register file.
//
// A hintable clock stops once its hint has been cleared and its
// consumer is idle. It restarts as soon as its hint is set again.
type Clkmgr struct {
	mu  sync.Mutex
	lay *regs.Clkmgr

	// Latency is the number of hint status reads a clock takes to stop
	// once its hint is cleared.
	Latency int

	jitter    uint32
	jitterWen bool
	measWen   bool

	enables []uint32
	hints   []uint32
	running []uint32
	stopIn  map[uint32]int // remaining status reads before clock i stops
	busy    map[uint32]bool

	alerts [2]int
}

// NewClkmgr returns a clock manager model out of reset, with layout lay.
func NewClkmgr(lay *regs.Clkmgr) *Clkmgr {
	if lay == nil {
		lay = &regs.EarlGreyClkmgr
	}
	hw := &Clkmgr{
		lay:       lay,
		jitter:    multibits.Bool4False,
		jitterWen: true,
		measWen:   true,
		enables:   ones(lay.NumSWGateableClocks),
		hints:     ones(lay.NumHintableClocks),
		running:   ones(lay.NumHintableClocks),
		stopIn:    make(map[uint32]int),
		busy:      make(map[uint32]bool),
	}
	return hw
}

func ones(n uint32) []uint32 {
	ws := make([]uint32, (n+31)/32)
	for i := uint32(0); i < n; i++ {
		ws[i/32] |= 1 << (i % 32)
	}
	return ws
}

func word(ws []uint32, base, off uint32) (int, bool) {
	if off < base || off >= base+4*uint32(len(ws)) {
		return 0, false
	}
	return int(off-base) / 4, true
}

// SetBusy marks the consumer of hintable clock i as busy, preventing
// the clock from stopping.
func (hw *Clkmgr) SetBusy(i uint32, busy bool) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.busy[i] = busy
}

// Alerts returns the number of forced recoverable and fatal alerts.
func (hw *Clkmgr) Alerts() (recov, fatal int) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.alerts[0], hw.alerts[1]
}

// Read32 implements mmio.Region.
func (hw *Clkmgr) Read32(off uint32) (uint32, error) {
	if off%4 != 0 {
		return 0, fmt.Errorf("fakehw: clkmgr: register 0x%x: %w", off, mmio.ErrMisaligned)
	}

	hw.mu.Lock()
	defer hw.mu.Unlock()

	lay := hw.lay
	switch off {
	case lay.JitterRegwen.Offset:
		return lay.JitterRegwen.En.Write(0, hw.jitterWen), nil
	case lay.JitterEnable.Offset:
		return lay.JitterEnable.Val.Write(0, hw.jitter), nil
	case lay.MeasureCtrlRegwen.Offset:
		return lay.MeasureCtrlRegwen.En.Write(0, hw.measWen), nil
	case lay.AlertTest.Offset:
		return 0, nil
	}

	if i, ok := word(hw.enables, lay.ClkEnables, off); ok {
		return hw.enables[i], nil
	}
	if i, ok := word(hw.hints, lay.ClkHints, off); ok {
		return hw.hints[i], nil
	}
	if i, ok := word(hw.running, lay.ClkHintsStatus, off); ok {
		hw.tick()
		return hw.running[i], nil
	}
	return 0, fmt.Errorf("fakehw: clkmgr: read from unmapped register 0x%x", off)
}

// tick advances the hint state machine by one status read.
func (hw *Clkmgr) tick() {
	for i := uint32(0); i < hw.lay.NumHintableClocks; i++ {
		w, b := i/32, uint32(1)<<(i%32)
		if hw.hints[w]&b != 0 {
			hw.running[w] |= b
			delete(hw.stopIn, i)
			continue
		}
		if hw.running[w]&b == 0 || hw.busy[i] {
			continue
		}
		n, ok := hw.stopIn[i]
		if !ok {
			n = hw.Latency
		}
		if n <= 0 {
			hw.running[w] &^= b
			delete(hw.stopIn, i)
			continue
		}
		hw.stopIn[i] = n - 1
	}
}

// Write32 implements mmio.Region.
func (hw *Clkmgr) Write32(off, v uint32) error {
	if off%4 != 0 {
		return fmt.Errorf("fakehw: clkmgr: register 0x%x: %w", off, mmio.ErrMisaligned)
	}

	hw.mu.Lock()
	defer hw.mu.Unlock()

	lay := hw.lay
	switch off {
	case lay.JitterRegwen.Offset:
		// write zero to clear.
		if !lay.JitterRegwen.En.Read(v) {
			hw.jitterWen = false
		}
		return nil
	case lay.JitterEnable.Offset:
		if hw.jitterWen {
			hw.jitter = lay.JitterEnable.Val.Read(v)
		}
		return nil
	case lay.MeasureCtrlRegwen.Offset:
		if !lay.MeasureCtrlRegwen.En.Read(v) {
			hw.measWen = false
		}
		return nil
	case lay.AlertTest.Offset:
		if lay.AlertTest.RecovFault.Read(v) {
			hw.alerts[0]++
		}
		if lay.AlertTest.FatalFault.Read(v) {
			hw.alerts[1]++
		}
		return nil
	}

	if i, ok := word(hw.enables, lay.ClkEnables, off); ok {
		hw.enables[i] = v & ones(lay.NumSWGateableClocks)[i]
		return nil
	}
	if i, ok := word(hw.hints, lay.ClkHints, off); ok {
		hw.hints[i] = v & ones(lay.NumHintableClocks)[i]
		return nil
	}
	if _, ok := word(hw.running, lay.ClkHintsStatus, off); ok {
		// read-only.
		return nil
	}
	return fmt.Errorf("fakehw: clkmgr: write to unmapped register 0x%x", off)
}
