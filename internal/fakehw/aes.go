// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakehw holds behavioral models of the AES engine and of the
// clock manager, exposed as register regions.
package fakehw // import "github.com/go-lpc/socdif/internal/fakehw"

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/go-lpc/socdif/mmio"
	"github.com/go-lpc/socdif/regs"
)

// AES models the AES engine register file.
// All modes are computed. Chaining modes update the IV registers after
// each block so that consecutive blocks chain.
type AES struct {
	mu  sync.Mutex
	lay *regs.AES

	// Latency is the number of status reads a computation takes before
	// the output becomes valid.
	Latency int

	ctrl    uint32
	pending *uint32 // first write of a shadowed control update

	key0 [regs.AESNumKeyRegs]uint32
	key1 [regs.AESNumKeyRegs]uint32
	iv   [regs.AESNumIVRegs]uint32
	din  [regs.AESNumDataRegs]uint32
	dout [regs.AESNumDataRegs]uint32

	loaded  uint32 // bitmask of written data-in words
	drained uint32 // bitmask of read data-out words
	busy    int    // remaining status reads of the current computation
	valid   bool
	lost    bool
	recov   bool

	alerts [2]int // forced recoverable and fatal alerts
}

// NewAES returns an idle AES model with layout lay.
func NewAES(lay *regs.AES) *AES {
	if lay == nil {
		lay = &regs.EarlGreyAES
	}
	return &AES{lay: lay}
}

func (hw *AES) in(off, base uint32, n int) (int, bool) {
	if off < base || off >= base+4*uint32(n) {
		return 0, false
	}
	return int(off-base) / 4, true
}

// Read32 implements mmio.Region.
func (hw *AES) Read32(off uint32) (uint32, error) {
	if off%4 != 0 {
		return 0, fmt.Errorf("fakehw: aes: register 0x%x: %w", off, mmio.ErrMisaligned)
	}

	hw.mu.Lock()
	defer hw.mu.Unlock()

	lay := hw.lay
	switch {
	case off == lay.Ctrl.Offset:
		return hw.ctrl, nil
	case off == lay.Status.Offset:
		return hw.status(), nil
	}
	if i, ok := hw.in(off, lay.DataOut, len(hw.dout)); ok {
		v := hw.dout[i]
		if hw.valid {
			hw.drained |= 1 << i
			if hw.drained == 0xf {
				hw.valid = false
				hw.drained = 0
			}
		}
		return v, nil
	}
	// key, IV and data-in registers are write-only.
	return 0, nil
}

func (hw *AES) status() uint32 {
	st := hw.lay.Status
	if hw.busy > 0 {
		hw.busy--
		if hw.busy == 0 {
			hw.compute()
		}
	}

	var reg uint32
	reg = st.Idle.Write(reg, hw.busy == 0)
	reg = st.Stall.Write(reg, false)
	reg = st.OutputLost.Write(reg, hw.lost)
	reg = st.OutputValid.Write(reg, hw.valid)
	reg = st.InputReady.Write(reg, hw.busy == 0 && hw.loaded == 0)
	reg = st.AlertRecovCtrlUpdateErr.Write(reg, hw.recov)
	return reg
}

// Write32 implements mmio.Region.
func (hw *AES) Write32(off, v uint32) error {
	if off%4 != 0 {
		return fmt.Errorf("fakehw: aes: register 0x%x: %w", off, mmio.ErrMisaligned)
	}

	hw.mu.Lock()
	defer hw.mu.Unlock()

	lay := hw.lay
	switch off {
	case lay.Ctrl.Offset:
		if hw.pending == nil {
			hw.pending = &v
			return nil
		}
		if *hw.pending == v {
			hw.ctrl = v
			hw.recov = false
		} else {
			hw.recov = true
		}
		hw.pending = nil
		return nil
	case lay.Trigger.Offset:
		hw.trigger(v)
		return nil
	case lay.AlertTest.Offset:
		if lay.AlertTest.RecovCtrlUpdateErr.Read(v) {
			hw.alerts[0]++
		}
		if lay.AlertTest.FatalFault.Read(v) {
			hw.alerts[1]++
		}
		return nil
	}

	if i, ok := hw.in(off, lay.KeyShare0, len(hw.key0)); ok {
		hw.key0[i] = v
		return nil
	}
	if i, ok := hw.in(off, lay.KeyShare1, len(hw.key1)); ok {
		hw.key1[i] = v
		return nil
	}
	if i, ok := hw.in(off, lay.IV, len(hw.iv)); ok {
		hw.iv[i] = v
		return nil
	}
	if i, ok := hw.in(off, lay.DataIn, len(hw.din)); ok {
		hw.din[i] = v
		hw.loaded |= 1 << i
		if hw.loaded == 0xf && !lay.Ctrl.ManualOperation.Read(hw.ctrl) {
			hw.start()
		}
		return nil
	}
	return fmt.Errorf("fakehw: aes: write to unmapped register 0x%x", off)
}

func (hw *AES) trigger(v uint32) {
	trig := hw.lay.Trigger
	if trig.KeyIVDataInClear.Read(v) {
		hw.key0 = [regs.AESNumKeyRegs]uint32{}
		hw.key1 = [regs.AESNumKeyRegs]uint32{}
		hw.iv = [regs.AESNumIVRegs]uint32{}
		hw.din = [regs.AESNumDataRegs]uint32{}
		hw.loaded = 0
	}
	if trig.DataOutClear.Read(v) {
		hw.dout = [regs.AESNumDataRegs]uint32{}
		hw.valid = false
		hw.lost = false
		hw.drained = 0
	}
	if trig.Start.Read(v) && hw.loaded == 0xf {
		hw.start()
	}
}

func (hw *AES) start() {
	hw.loaded = 0
	hw.busy = hw.Latency
	if hw.busy == 0 {
		hw.compute()
	}
}

func (hw *AES) compute() {
	if hw.valid {
		hw.lost = true
	}
	hw.valid = true
	hw.drained = 0
	hw.dout = [regs.AESNumDataRegs]uint32{}

	ctl := hw.lay.Ctrl
	nkey := map[uint32]int{
		ctl.KeyLen128: 4,
		ctl.KeyLen192: 6,
		ctl.KeyLen256: 8,
	}[ctl.KeyLen.Read(hw.ctrl)]
	if nkey == 0 {
		return
	}

	key := make([]byte, 4*nkey)
	for i := 0; i < nkey; i++ {
		binary.LittleEndian.PutUint32(key[4*i:], hw.key0[i]^hw.key1[i])
	}
	blk, err := aes.NewCipher(key)
	if err != nil {
		return
	}

	var (
		enc bool
		src = words2bytes(hw.din[:])
		iv  = words2bytes(hw.iv[:])
		dst = make([]byte, aes.BlockSize)
	)
	switch ctl.Operation.Read(hw.ctrl) {
	case ctl.OpEnc:
		enc = true
	case ctl.OpDec:
		enc = false
	default:
		return
	}

	// next is the IV register content after the block, as the engine
	// updates it for the following block.
	var next []byte
	switch ctl.Mode.Read(hw.ctrl) {
	case ctl.ModeECB:
		if enc {
			blk.Encrypt(dst, src)
		} else {
			blk.Decrypt(dst, src)
		}
	case ctl.ModeCBC:
		if enc {
			cipher.NewCBCEncrypter(blk, iv).CryptBlocks(dst, src)
			next = dst
		} else {
			cipher.NewCBCDecrypter(blk, iv).CryptBlocks(dst, src)
			next = src
		}
	case ctl.ModeCFB:
		if enc {
			cipher.NewCFBEncrypter(blk, iv).XORKeyStream(dst, src)
			next = dst
		} else {
			cipher.NewCFBDecrypter(blk, iv).XORKeyStream(dst, src)
			next = src
		}
	case ctl.ModeOFB:
		cipher.NewOFB(blk, iv).XORKeyStream(dst, src)
		next = make([]byte, aes.BlockSize)
		for i := range next {
			next[i] = dst[i] ^ src[i]
		}
	case ctl.ModeCTR:
		cipher.NewCTR(blk, iv).XORKeyStream(dst, src)
		next = append([]byte(nil), iv...)
		for i := len(next) - 1; i >= 0; i-- {
			next[i]++
			if next[i] != 0 {
				break
			}
		}
	default:
		return
	}

	for i := range hw.dout {
		hw.dout[i] = binary.LittleEndian.Uint32(dst[4*i:])
	}
	if next != nil {
		for i := range hw.iv {
			hw.iv[i] = binary.LittleEndian.Uint32(next[4*i:])
		}
	}
}

// words2bytes returns the little-endian byte stream of ws.
func words2bytes(ws []uint32) []byte {
	out := make([]byte, 4*len(ws))
	for i, w := range ws {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}

// Alerts returns the number of forced recoverable and fatal alerts.
func (hw *AES) Alerts() (recov, fatal int) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.alerts[0], hw.alerts[1]
}

// Key returns the unmasked key currently held by the model.
func (hw *AES) Key() [regs.AESNumKeyRegs]uint32 {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	var key [regs.AESNumKeyRegs]uint32
	for i := range key {
		key[i] = hw.key0[i] ^ hw.key1[i]
	}
	return key
}

// IV returns the IV currently held by the model.
func (hw *AES) IV() [regs.AESNumIVRegs]uint32 {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.iv
}
