// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitfield

import (
	"fmt"
	"testing"
)

func TestField(t *testing.T) {
	for _, tc := range []struct {
		f    Field
		reg  uint32
		v    uint32
		want uint32
		read uint32
	}{
		{
			f:    Field{Mask: 0x3, Index: 0},
			reg:  0xffffffff,
			v:    0x1,
			want: 0xfffffffd,
			read: 0x1,
		},
		{
			f:    Field{Mask: 0x3f, Index: 2},
			reg:  0,
			v:    0x10,
			want: 0x40,
			read: 0x10,
		},
		{
			// out-of-range values are masked.
			f:    Field{Mask: 0x7, Index: 8},
			reg:  0x1,
			v:    0xff,
			want: 0x701,
			read: 0x7,
		},
		{
			f:    Field{Mask: 0xffffffff, Index: 0},
			reg:  0x12345678,
			v:    0xcafe,
			want: 0xcafe,
			read: 0xcafe,
		},
	} {
		t.Run(fmt.Sprintf("mask=0x%x-idx=%d", tc.f.Mask, tc.f.Index), func(t *testing.T) {
			got := tc.f.Write(tc.reg, tc.v)
			if got != tc.want {
				t.Fatalf("invalid write: got=0x%x, want=0x%x", got, tc.want)
			}
			if got, want := tc.f.Read(got), tc.read; got != want {
				t.Fatalf("invalid read: got=0x%x, want=0x%x", got, want)
			}
		})
	}
}

func TestBit(t *testing.T) {
	const reg = 0xa5a5a5a5
	for i := Bit(0); i < 32; i++ {
		want := (reg>>uint32(i))&1 == 1
		if got := i.Read(reg); got != want {
			t.Fatalf("bit %d: got=%v, want=%v", i, got, want)
		}

		set := i.Write(reg, true)
		if got, want := set, uint32(reg)|1<<uint32(i); got != want {
			t.Fatalf("bit %d: invalid set: got=0x%x, want=0x%x", i, got, want)
		}
		clr := i.Write(reg, false)
		if got, want := clr, uint32(reg)&^(1<<uint32(i)); got != want {
			t.Fatalf("bit %d: invalid clear: got=0x%x, want=0x%x", i, got, want)
		}
	}
}

func TestAssemble(t *testing.T) {
	got := Assemble(
		Value{Field{Mask: 0x3, Index: 0}, 1},
		Value{Field{Mask: 0x3f, Index: 2}, 0x1},
		Value{Field{Mask: 0x7, Index: 8}, 0x4},
		BitValue(15, true),
		BitValue(16, false),
	)
	if want := uint32(0x8405); got != want {
		t.Fatalf("invalid word: got=0x%x, want=0x%x", got, want)
	}
}
