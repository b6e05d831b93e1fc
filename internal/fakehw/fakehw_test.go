// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fakehw

import (
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/go-lpc/socdif/dif"
	"github.com/go-lpc/socdif/dif/aes"
	"github.com/go-lpc/socdif/dif/clkmgr"
)

func TestAESECB(t *testing.T) {
	var (
		key = [8]uint32{0x03020100, 0x07060504, 0x0b0a0908, 0x0f0e0d0c}
		msk = [8]uint32{0xdeadbeef, 0xcafebabe, 0x01234567, 0x89abcdef, 1, 2, 3, 4}
		pt  = aes.Block{0x33221100, 0x77665544, 0xbbaa9988, 0xffeeddcc}
		ct  = aes.Block{0xd8e0c469, 0x30047b6a, 0x80b7cdd8, 0x5ac5b470}
	)

	var share aes.KeyShare
	for i := range key {
		share.Share0[i] = key[i] ^ msk[i]
		share.Share1[i] = msk[i]
	}

	for _, tc := range []struct {
		name string
		op   aes.Operation
		trig aes.Trigger
		lat  int
		in   aes.Block
		want aes.Block
	}{
		{"enc-auto", aes.Encrypt, aes.Auto, 0, pt, ct},
		{"enc-manual", aes.Encrypt, aes.Manual, 0, pt, ct},
		{"dec-auto", aes.Decrypt, aes.Auto, 0, ct, pt},
		{"enc-latency", aes.Encrypt, aes.Auto, 3, pt, ct},
	} {
		t.Run(tc.name, func(t *testing.T) {
			hw := NewAES(nil)
			hw.Latency = tc.lat

			dev, err := aes.New(hw)
			if err != nil {
				t.Fatalf("could not create device: %+v", err)
			}

			tx := aes.Transaction{
				Operation: tc.op,
				Mode:      aes.ECB,
				KeyLen:    aes.Key128,
				Trigger:   tc.trig,
			}
			err = dev.Start(tx, share, nil)
			if err != nil {
				t.Fatalf("could not start: %+v", err)
			}
			if got := hw.Key(); got != key {
				t.Fatalf("invalid unmasked key: got=%x, want=%x", got, key)
			}

			err = dev.LoadData(tc.in)
			if err != nil {
				t.Fatalf("could not load data: %+v", err)
			}
			if tc.trig == aes.Manual {
				ok, err := dev.Status(aes.StatusOutputValid)
				if err != nil || ok {
					t.Fatalf("output valid before start: ok=%v, err=%+v", ok, err)
				}
				err = dev.Trigger(aes.CmdStart)
				if err != nil {
					t.Fatalf("could not trigger: %+v", err)
				}
			}

			for i := 0; ; i++ {
				ok, err := dev.Status(aes.StatusOutputValid)
				if err != nil {
					t.Fatalf("could not read status: %+v", err)
				}
				if ok {
					break
				}
				if i > tc.lat {
					t.Fatalf("output never became valid")
				}
			}

			out, err := dev.ReadOutput()
			if err != nil {
				t.Fatalf("could not read output: %+v", err)
			}
			if out != tc.want {
				t.Fatalf("invalid output: got=%x, want=%x", out, tc.want)
			}

			ok, err := dev.Status(aes.StatusOutputValid)
			if err != nil || ok {
				t.Fatalf("output still valid after drain: ok=%v, err=%+v", ok, err)
			}

			err = dev.End()
			if err != nil {
				t.Fatalf("could not end: %+v", err)
			}
			if got := hw.Key(); got != ([8]uint32{}) {
				t.Fatalf("key not cleared: %x", got)
			}
		})
	}
}

func TestAESShadowMismatch(t *testing.T) {
	hw := NewAES(nil)
	ctrl := hw.lay.Ctrl.Offset

	for _, v := range []uint32{0x105, 0x106} {
		err := hw.Write32(ctrl, v)
		if err != nil {
			t.Fatalf("could not write ctrl: %+v", err)
		}
	}
	got, err := hw.Read32(ctrl)
	if err != nil {
		t.Fatalf("could not read ctrl: %+v", err)
	}
	if got != 0 {
		t.Fatalf("mismatched shadow update committed: 0x%x", got)
	}

	dev, err := aes.New(hw)
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}
	ok, err := dev.Status(aes.StatusAlertRecovCtrlUpdateErr)
	if err != nil || !ok {
		t.Fatalf("missing update error: ok=%v, err=%+v", ok, err)
	}
}

func TestAESAlerts(t *testing.T) {
	hw := NewAES(nil)
	dev, err := aes.New(hw)
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}
	for _, a := range aes.Alerts {
		err = dev.ForceAlert(a)
		if err != nil {
			t.Fatalf("could not force %v: %+v", a, err)
		}
	}
	recov, fatal := hw.Alerts()
	if recov != 1 || fatal != 1 {
		t.Fatalf("invalid alerts: recov=%d, fatal=%d", recov, fatal)
	}
}

func TestClkmgr(t *testing.T) {
	hw := NewClkmgr(nil)
	hw.Latency = 2

	dev, err := clkmgr.New(hw)
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}

	jit, err := dev.JitterEnabled()
	if err != nil || jit != dif.Disabled {
		t.Fatalf("invalid reset jitter: %v, err=%+v", jit, err)
	}
	err = dev.JitterSetEnabled(dif.Enabled)
	if err != nil {
		t.Fatalf("could not enable jitter: %+v", err)
	}
	jit, err = dev.JitterEnabled()
	if err != nil || jit != dif.Enabled {
		t.Fatalf("invalid jitter: %v, err=%+v", jit, err)
	}

	err = dev.GateableClockSetEnabled(clkmgr.IoPeri, dif.Disabled)
	if err != nil {
		t.Fatalf("could not gate clock: %+v", err)
	}
	for _, c := range []clkmgr.GateableClock{clkmgr.IoDiv4Peri, clkmgr.IoDiv2Peri, clkmgr.IoPeri, clkmgr.UsbPeri} {
		got, err := dev.GateableClockEnabled(c)
		if err != nil {
			t.Fatalf("could not read clock %v: %+v", c, err)
		}
		if want := dif.ToggleFromBool(c != clkmgr.IoPeri); got != want {
			t.Fatalf("clock %v: got=%v, want=%v", c, got, want)
		}
	}

	hw.SetBusy(uint32(clkmgr.MainKmac), true)
	err = dev.HintableClockSetHint(clkmgr.MainKmac, dif.Disabled)
	if err != nil {
		t.Fatalf("could not clear hint: %+v", err)
	}
	for i := 0; i < 5; i++ {
		on, err := dev.HintableClockEnabled(clkmgr.MainKmac)
		if err != nil || on != dif.Enabled {
			t.Fatalf("busy clock stopped: %v, err=%+v", on, err)
		}
	}
	hw.SetBusy(uint32(clkmgr.MainKmac), false)

	var reads int
	for {
		on, err := dev.HintableClockEnabled(clkmgr.MainKmac)
		if err != nil {
			t.Fatalf("could not read clock status: %+v", err)
		}
		reads++
		if on == dif.Disabled {
			break
		}
		if reads > 10 {
			t.Fatalf("clock never stopped")
		}
	}
	if reads != hw.Latency+1 {
		t.Fatalf("invalid stop latency: got=%d reads, want=%d", reads, hw.Latency+1)
	}

	err = dev.HintableClockSetHint(clkmgr.MainKmac, dif.Enabled)
	if err != nil {
		t.Fatalf("could not set hint: %+v", err)
	}
	on, err := dev.HintableClockEnabled(clkmgr.MainKmac)
	if err != nil || on != dif.Enabled {
		t.Fatalf("clock did not restart: %v, err=%+v", on, err)
	}

	err = hw.Write32(hw.lay.JitterRegwen.Offset, 0)
	if err != nil {
		t.Fatalf("could not lock jitter: %+v", err)
	}
	locked, err := dev.JitterLocked()
	if err != nil || !locked {
		t.Fatalf("jitter not locked: %v, err=%+v", locked, err)
	}
	err = dev.JitterSetEnabled(dif.Disabled)
	if err != nil {
		t.Fatalf("could not write jitter: %+v", err)
	}
	jit, err = dev.JitterEnabled()
	if err != nil || jit != dif.Enabled {
		t.Fatalf("locked jitter changed: %v, err=%+v", jit, err)
	}

	err = dev.MeasureCtrlDisable()
	if err != nil {
		t.Fatalf("could not disable measure ctrl: %+v", err)
	}
	meas, err := dev.MeasureCtrlEnabled()
	if err != nil || meas != dif.Disabled {
		t.Fatalf("measure ctrl still enabled: %v, err=%+v", meas, err)
	}
}

// block returns the little-endian register words of a 16-byte hex string.
func block(t *testing.T, s string) aes.Block {
	t.Helper()
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 16 {
		t.Fatalf("invalid block %q: %+v", s, err)
	}
	var b aes.Block
	for i := range b {
		b[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return b
}

func TestAESChaining(t *testing.T) {
	const (
		key = "2b7e151628aed2a6abf7158809cf4f3c"
		p1  = "6bc1bee22e409f96e93d7e117393172a"
		p2  = "ae2d8a571e03ac9c9eb76fac45af8e51"
	)

	for _, tc := range []struct {
		mode aes.Mode
		iv   string
		c1   string
		c2   string
	}{
		{aes.ECB, "", "3ad77bb40d7a3660a89ecaf32466ef97", "f5d3d58503b9699de785895a96fdbaaf"},
		{aes.CBC, "000102030405060708090a0b0c0d0e0f", "7649abac8119b246cee98e9b12e9197d", "5086cb9b507219ee95db113a917678b2"},
		{aes.CFB, "000102030405060708090a0b0c0d0e0f", "3b3fd92eb72dad20333449f8e83cfb4a", "c8a64537a0b3a93fcde3cdad9f1ce58b"},
		{aes.OFB, "000102030405060708090a0b0c0d0e0f", "3b3fd92eb72dad20333449f8e83cfb4a", "7789508d16918f03f53c52dac54ed825"},
		{aes.CTR, "f0f1f2f3f4f5f6f7f8f9fafbfcfdfeff", "874d6191b620e3261bef6864990db6ce", "9806f66b7970fdff8617187bb9fffdff"},
	} {
		for _, op := range aes.Operations {
			t.Run(tc.mode.String()+"-"+op.String(), func(t *testing.T) {
				var (
					k    = block(t, key)
					ins  = []aes.Block{block(t, p1), block(t, p2)}
					outs = []aes.Block{block(t, tc.c1), block(t, tc.c2)}
				)
				if op == aes.Decrypt {
					ins, outs = outs, ins
				}

				var share aes.KeyShare
				copy(share.Share0[:], k[:])

				var iv *aes.IV
				if tc.iv != "" {
					v := aes.IV(block(t, tc.iv))
					iv = &v
				}

				hw := NewAES(nil)
				dev, err := aes.New(hw)
				if err != nil {
					t.Fatalf("could not create device: %+v", err)
				}

				tx := aes.Transaction{
					Operation: op,
					Mode:      tc.mode,
					KeyLen:    aes.Key128,
					Trigger:   aes.Auto,
				}
				err = dev.Start(tx, share, iv)
				if err != nil {
					t.Fatalf("could not start: %+v", err)
				}

				for i, in := range ins {
					err = dev.LoadData(in)
					if err != nil {
						t.Fatalf("could not load block %d: %+v", i, err)
					}
					out, err := dev.ReadOutput()
					if err != nil {
						t.Fatalf("could not read block %d: %+v", i, err)
					}
					if out != outs[i] {
						t.Fatalf("invalid block %d:\ngot= %08x\nwant=%08x", i, out, outs[i])
					}
				}
			})
		}
	}
}
