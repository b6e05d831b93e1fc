// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/dchest/siphash"
	"github.com/klauspost/compress/zstd"
)

// Op is the kind of a register access.
type Op byte

const (
	OpRead  Op = 'R'
	OpWrite Op = 'W'
)

// Access is one recorded register access.
type Access struct {
	Op  Op
	Off uint32
	Val uint32
	Err error
}

func (a Access) String() string {
	if a.Err != nil {
		return fmt.Sprintf("%c 0x%08x 0x%08x err=%v", a.Op, a.Off, a.Val, a.Err)
	}
	return fmt.Sprintf("%c 0x%08x 0x%08x", a.Op, a.Off, a.Val)
}

// Tracer is a Region recording every access made through it.
type Tracer struct {
	r    Region
	accs []Access
}

// NewTracer returns a Region recording the accesses made to r.
func NewTracer(r Region) *Tracer {
	return &Tracer{r: r}
}

func (t *Tracer) Read32(off uint32) (uint32, error) {
	v, err := t.r.Read32(off)
	t.accs = append(t.accs, Access{Op: OpRead, Off: off, Val: v, Err: err})
	return v, err
}

func (t *Tracer) Write32(off uint32, v uint32) error {
	err := t.r.Write32(off, v)
	t.accs = append(t.accs, Access{Op: OpWrite, Off: off, Val: v, Err: err})
	return err
}

// Accesses returns the accesses recorded so far.
func (t *Tracer) Accesses() []Access {
	return t.accs
}

// Reset drops all recorded accesses.
func (t *Tracer) Reset() {
	t.accs = t.accs[:0]
}

// Fingerprint returns the recorded accesses' fingerprint.
func (t *Tracer) Fingerprint() uint64 {
	return Fingerprint(t.accs)
}

// fingerprint keys.
const (
	fpKey0 = 0x736f636469662d74 // "socdif-t"
	fpKey1 = 0x726163652d763031 // "race-v01"
)

// Fingerprint returns a SipHash-2-4 digest of a sequence of accesses.
// Only the kind, offset and value of each access contribute, so a trace
// read back with LoadTrace has the fingerprint of the trace dumped.
func Fingerprint(accs []Access) uint64 {
	buf := make([]byte, 0, 9*len(accs))
	for _, acc := range accs {
		buf = append(buf, byte(acc.Op))
		buf = binary.LittleEndian.AppendUint32(buf, acc.Off)
		buf = binary.LittleEndian.AppendUint32(buf, acc.Val)
	}
	return siphash.Hash(fpKey0, fpKey1, buf)
}

// WriteTo writes the recorded accesses to w, one per line.
func (t *Tracer) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, acc := range t.accs {
		nn, err := fmt.Fprintf(w, "%v\n", acc)
		n += int64(nn)
		if err != nil {
			return n, fmt.Errorf("mmio: could not write trace: %w", err)
		}
	}
	return n, nil
}

// Dump writes a zstd-compressed trace to fname.
func (t *Tracer) Dump(fname string) error {
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("mmio: could not create trace file: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("mmio: could not create zstd encoder: %w", err)
	}

	_, err = t.WriteTo(enc)
	if err != nil {
		_ = enc.Close()
		return err
	}

	err = enc.Close()
	if err != nil {
		return fmt.Errorf("mmio: could not flush zstd encoder: %w", err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("mmio: could not close trace file: %w", err)
	}
	return nil
}

// LoadTrace reads back a trace written by Tracer.Dump.
// Failed accesses are restored without their error value.
func LoadTrace(fname string) ([]Access, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("mmio: could not open trace file: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("mmio: could not create zstd decoder: %w", err)
	}
	defer dec.Close()

	var (
		accs []Access
		scan = bufio.NewScanner(dec)
	)
	for scan.Scan() {
		var (
			acc Access
			op  rune
		)
		_, err = fmt.Sscanf(scan.Text(), "%c 0x%08x 0x%08x", &op, &acc.Off, &acc.Val)
		if err != nil {
			return nil, fmt.Errorf("mmio: could not parse trace line %q: %w", scan.Text(), err)
		}
		acc.Op = Op(op)
		accs = append(accs, acc)
	}
	err = scan.Err()
	if err != nil {
		return nil, fmt.Errorf("mmio: could not scan trace file: %w", err)
	}
	return accs, nil
}

var (
	_ Region      = (*Tracer)(nil)
	_ io.WriterTo = (*Tracer)(nil)
)
