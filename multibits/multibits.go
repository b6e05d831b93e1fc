// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package multibits implements the redundant multi-bit boolean encoding
// used by fault-hardened registers.
//
// A logical boolean is stored as one of two fixed 4-bit patterns.
// Any other pattern is reported as Malformed: decoding never votes.
package multibits // import "github.com/go-lpc/socdif/multibits"

import "fmt"

const (
	Bool4True  uint32 = 0x6
	Bool4False uint32 = 0x9
)

// Bool is the decoded value of a multi-bit boolean.
type Bool uint8

const (
	Malformed Bool = iota
	False
	True
)

func (b Bool) String() string {
	switch b {
	case True:
		return "true"
	case False:
		return "false"
	case Malformed:
		return "malformed"
	}
	return fmt.Sprintf("Bool(%d)", uint8(b))
}

// Encode4 returns the 4-bit pattern for v.
func Encode4(v bool) uint32 {
	if v {
		return Bool4True
	}
	return Bool4False
}

// Decode4 classifies the 4-bit pattern v.
// Bits above the lowest 4 must be clear for v to decode as True or False.
func Decode4(v uint32) Bool {
	switch v {
	case Bool4True:
		return True
	case Bool4False:
		return False
	}
	return Malformed
}
