// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bitfield maps 32-bit register words to and from named fields.
//
// All functions are pure and total: field values wider than their mask are
// truncated, as the hardware does.
package bitfield // import "github.com/go-lpc/socdif/bitfield"

// Field describes a multi-bit field within a 32-bit register.
// Mask is right-aligned (ie: before shifting by Index).
type Field struct {
	Mask  uint32 `json:"mask"`
	Index uint32 `json:"index"`
}

// Read extracts the field value from reg.
func (f Field) Read(reg uint32) uint32 {
	return (reg >> f.Index) & f.Mask
}

// Write returns reg with the field set to v.
// Bits of v outside the field mask are dropped.
func (f Field) Write(reg, v uint32) uint32 {
	reg &^= f.Mask << f.Index
	reg |= (v & f.Mask) << f.Index
	return reg
}

// Bit is the index of a single-bit field.
type Bit uint32

// Field returns the single-bit field at b.
func (b Bit) Field() Field {
	return Field{Mask: 0x1, Index: uint32(b)}
}

// Read reports whether bit b is set in reg.
func (b Bit) Read(reg uint32) bool {
	return (reg>>uint32(b))&0x1 == 1
}

// Write returns reg with bit b set to v.
func (b Bit) Write(reg uint32, v bool) uint32 {
	if v {
		return reg | (1 << uint32(b))
	}
	return reg &^ (1 << uint32(b))
}

// Assemble builds a register word from field/value pairs, starting from 0.
func Assemble(vs ...Value) uint32 {
	var reg uint32
	for _, v := range vs {
		reg = v.Field.Write(reg, v.Value)
	}
	return reg
}

// Value is a field paired with the value to store in it.
type Value struct {
	Field Field
	Value uint32
}

// BitValue pairs bit b with v.
func BitValue(b Bit, v bool) Value {
	var u uint32
	if v {
		u = 1
	}
	return Value{Field: b.Field(), Value: u}
}
