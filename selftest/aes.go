// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package selftest

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/go-lpc/socdif/dif/aes"
)

// vector is a known-answer test vector, as hex strings.
type vector struct {
	klen aes.KeyLen
	key  string
	pt   string
	ct   string
}

// FIPS-197, appendix C.
var vectors = []vector{
	{
		klen: aes.Key128,
		key:  "000102030405060708090a0b0c0d0e0f",
		pt:   "00112233445566778899aabbccddeeff",
		ct:   "69c4e0d86a7b0430d8cdb78070b4c55a",
	},
	{
		klen: aes.Key192,
		key:  "000102030405060708090a0b0c0d0e0f1011121314151617",
		pt:   "00112233445566778899aabbccddeeff",
		ct:   "dda97ca4864cdfe06eaf70a0ec0d7191",
	},
	{
		klen: aes.Key256,
		key:  "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
		pt:   "00112233445566778899aabbccddeeff",
		ct:   "8ea2b7ca516745bfeafc49904b496089",
	},
}

func words(dst []uint32, s string) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	for i := range dst {
		if 4*i >= len(raw) {
			break
		}
		dst[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
}

// maskedKey splits key in two random shares.
func maskedKey(key [8]uint32) (aes.KeyShare, error) {
	var (
		share aes.KeyShare
		raw   [32]byte
	)
	_, err := rand.Read(raw[:])
	if err != nil {
		return share, fmt.Errorf("selftest: could not generate key mask: %w", err)
	}
	for i := range key {
		m := binary.LittleEndian.Uint32(raw[4*i:])
		share.Share0[i] = key[i] ^ m
		share.Share1[i] = m
	}
	return share, nil
}

// AESKnownAnswer runs the FIPS-197 ECB known-answer tests, for every
// key length, in both directions.
func AESKnownAnswer(ctx context.Context, dev *aes.Device) error {
	for _, v := range vectors {
		var (
			key    [8]uint32
			pt, ct aes.Block
		)
		words(key[:], v.key)
		words(pt[:], v.pt)
		words(ct[:], v.ct)

		for _, tc := range []struct {
			op       aes.Operation
			in, want aes.Block
		}{
			{aes.Encrypt, pt, ct},
			{aes.Decrypt, ct, pt},
		} {
			tx := aes.Transaction{
				Operation: tc.op,
				Mode:      aes.ECB,
				KeyLen:    v.klen,
				Trigger:   aes.Manual,
				Masking:   aes.MaskingPRNG,
			}
			got, err := aesBlock(ctx, dev, tx, key, tc.in)
			if err != nil {
				return fmt.Errorf("selftest: %v %v: %w", v.klen, tc.op, err)
			}
			if got != tc.want {
				return fmt.Errorf(
					"selftest: %v %v: invalid output: got=%08x, want=%08x",
					v.klen, tc.op, got, tc.want,
				)
			}
		}
	}
	return nil
}

// aesBlock processes a single block with a manually triggered
// transaction.
func aesBlock(ctx context.Context, dev *aes.Device, tx aes.Transaction, key [8]uint32, in aes.Block) (out aes.Block, err error) {
	share, err := maskedKey(key)
	if err != nil {
		return out, err
	}

	err = poll(ctx, "aes idle", func() (bool, error) {
		return dev.Status(aes.StatusIdle)
	})
	if err != nil {
		return out, err
	}

	err = dev.Start(tx, share, nil)
	if err != nil {
		return out, err
	}
	defer func() {
		// always clear the key material.
		e := dev.End()
		if e != nil && err == nil {
			err = e
		}
	}()

	err = poll(ctx, "aes input ready", func() (bool, error) {
		return dev.Status(aes.StatusInputReady)
	})
	if err != nil {
		return out, err
	}

	err = dev.LoadData(in)
	if err != nil {
		return out, err
	}

	if tx.Trigger == aes.Manual {
		err = dev.Trigger(aes.CmdStart)
		if err != nil {
			return out, err
		}
	}

	err = poll(ctx, "aes output valid", func() (bool, error) {
		return dev.Status(aes.StatusOutputValid)
	})
	if err != nil {
		return out, err
	}

	out, err = dev.ReadOutput()
	if err != nil {
		return out, err
	}

	err = poll(ctx, "aes idle", func() (bool, error) {
		return dev.Status(aes.StatusIdle)
	})
	return out, err
}

// AESAlerts fires each alert of the engine through its alert test
// register and checks that test alerts leave the engine usable.
func AESAlerts(ctx context.Context, dev *aes.Device) error {
	for _, a := range aes.Alerts {
		err := dev.ForceAlert(a)
		if err != nil {
			return fmt.Errorf("selftest: could not force alert %v: %w", a, err)
		}
	}

	fatal, err := dev.Status(aes.StatusAlertFatalFault)
	if err != nil {
		return fmt.Errorf("selftest: could not read status: %w", err)
	}
	if fatal {
		return fmt.Errorf("selftest: test alert latched a fatal fault")
	}

	err = poll(ctx, "aes idle", func() (bool, error) {
		return dev.Status(aes.StatusIdle)
	})
	if err != nil {
		return err
	}
	return nil
}
