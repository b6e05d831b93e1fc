// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package srv exposes the AES engine and the clock manager as a tdaq
// run-control process.
//
// /config opens the devices, /init runs the self-test suite, and between
// /start and /stop status snapshots are published on the /status
// output stream.
package srv // import "github.com/go-lpc/socdif/srv"

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/go-daq/tdaq"

	"github.com/go-lpc/socdif/dif"
	"github.com/go-lpc/socdif/dif/aes"
	"github.com/go-lpc/socdif/dif/clkmgr"
	"github.com/go-lpc/socdif/internal/crc16"
	"github.com/go-lpc/socdif/internal/target"
	"github.com/go-lpc/socdif/selftest"
)

// Store persists self-test reports.
type Store interface {
	Insert(ctx context.Context, rep selftest.Report) error
}

// Server is a tdaq process driving the devices of one target.
type Server struct {
	cfg  target.Config
	open func(cfg target.Config) (*target.Target, error)
	db   Store

	freq time.Duration // snapshot period

	mu   sync.Mutex
	tgt  *target.Target
	last selftest.Report
	run  bool
	n    int

	snaps chan []byte
}

type Option func(srv *Server)

// WithStore sets the store receiving self-test reports.
func WithStore(db Store) Option {
	return func(srv *Server) {
		srv.db = db
	}
}

// WithPeriod sets the period of status snapshots.
func WithPeriod(freq time.Duration) Option {
	return func(srv *Server) {
		srv.freq = freq
	}
}

// New creates a new server for the target described by cfg.
func New(cfg target.Config, opts ...Option) *Server {
	srv := &Server{
		cfg:   cfg,
		open:  target.Open,
		freq:  100 * time.Millisecond,
		snaps: make(chan []byte, 1024),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Register attaches the server handlers to the tdaq process p.
func (srv *Server) Register(p *tdaq.Server) {
	p.CmdHandle("/config", srv.OnConfig)
	p.CmdHandle("/init", srv.OnInit)
	p.CmdHandle("/reset", srv.OnReset)
	p.CmdHandle("/start", srv.OnStart)
	p.CmdHandle("/stop", srv.OnStop)
	p.CmdHandle("/quit", srv.OnQuit)

	p.OutputHandle("/status", srv.status)

	p.RunHandle(srv.loop)
}

func (srv *Server) close() error {
	if srv.tgt == nil {
		return nil
	}
	err := srv.tgt.Close()
	srv.tgt = nil
	return err
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	err := srv.close()
	if err != nil {
		ctx.Msg.Errorf("could not close previous target: %+v", err)
	}

	tgt, err := srv.open(srv.cfg)
	if err != nil {
		ctx.Msg.Errorf("could not open target: %+v", err)
		return fmt.Errorf("could not open target (mode=%q): %w", srv.cfg.Mode, err)
	}
	srv.tgt = tgt
	ctx.Msg.Infof("target opened (mode=%q)", srv.cfg.Mode)

	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.tgt == nil {
		ctx.Msg.Errorf("target not configured")
		return fmt.Errorf("could not run self-tests: target not configured")
	}

	w := &msgWriter{msg: ctx.Msg}
	run := selftest.NewRunner(selftest.WithLogger(log.New(w, "", 0)))
	rep := run.Run(ctx.Ctx, selftest.Suite(srv.tgt.AES, srv.tgt.Clk)...)
	srv.last = rep

	if srv.db != nil {
		err := srv.db.Insert(ctx.Ctx, rep)
		if err != nil {
			ctx.Msg.Errorf("could not store self-test report %s: %+v", rep.RunID, err)
			return fmt.Errorf("could not store self-test report %s: %w", rep.RunID, err)
		}
	}

	if err := rep.Err(); err != nil {
		ctx.Msg.Errorf("self-tests failed: %+v", err)
		return err
	}

	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteStr(rep.RunID)
	if err := enc.Err(); err != nil {
		return fmt.Errorf("could not encode run id: %w", err)
	}
	resp.Body = buf.Bytes()
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.run = false
	srv.n = 0
	srv.last = selftest.Report{}
	srv.drain()

	if srv.tgt == nil {
		return nil
	}

	// abort any pending transaction and wipe the key material.
	for _, cmd := range []aes.Cmd{aes.CmdKeyIVDataInClear, aes.CmdDataOutClear} {
		err := srv.tgt.AES.Trigger(cmd)
		if err != nil {
			ctx.Msg.Errorf("could not issue %v: %+v", cmd, err)
			return fmt.Errorf("could not reset AES engine: %w", err)
		}
	}
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.tgt == nil {
		return fmt.Errorf("could not start: target not configured")
	}
	srv.run = true
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	ctx.Msg.Debugf("received /stop command... -> n=%d", srv.n)
	srv.run = false
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.run = false
	err := srv.close()
	if err != nil {
		ctx.Msg.Errorf("could not close target: %+v", err)
		return fmt.Errorf("could not close target: %w", err)
	}
	return nil
}

func (srv *Server) drain() {
	for {
		select {
		case <-srv.snaps:
		default:
			return
		}
	}
}

func (srv *Server) status(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-srv.snaps:
		dst.Body = data
	}
	return nil
}

func (srv *Server) loop(ctx tdaq.Context) error {
	tck := time.NewTicker(srv.freq)
	defer tck.Stop()

	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		case <-tck.C:
			err := srv.tick(ctx)
			if err != nil {
				ctx.Msg.Errorf("could not take status snapshot: %+v", err)
			}
		}
	}
}

func (srv *Server) tick(ctx tdaq.Context) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if !srv.run || srv.tgt == nil {
		return nil
	}

	snap, err := Take(srv.tgt.AES, srv.tgt.Clk)
	if err != nil {
		return err
	}
	if snap.JitterMalformed {
		ctx.Msg.Errorf("clkmgr jitter enable register holds a malformed pattern")
	}

	buf := new(bytes.Buffer)
	err = snap.Encode(buf)
	if err != nil {
		return err
	}

	select {
	case srv.snaps <- buf.Bytes():
		srv.n++
	default:
		ctx.Msg.Infof("status snapshot dropped")
	}
	return nil
}

// Snapshot is the state of the devices at a given time.
type Snapshot struct {
	Time   time.Time
	AES    uint32 // status flags, bit i set for aes.Statuses[i]
	Gates  uint32 // enabled gateable clocks
	Clocks uint32 // running hintable clocks
	Jitter dif.Toggle

	// JitterMalformed is set when the jitter enable register holds
	// neither multi-bit pattern. Jitter is then meaningless.
	JitterMalformed bool
}

// Take reads a snapshot of the devices.
func Take(enc *aes.Device, clk *clkmgr.Device) (Snapshot, error) {
	snap := Snapshot{Time: time.Now().UTC()}

	for i, s := range aes.Statuses {
		ok, err := enc.Status(s)
		if err != nil {
			return snap, fmt.Errorf("srv: could not read AES status %v: %w", s, err)
		}
		if ok {
			snap.AES |= 1 << i
		}
	}

	lay := clk.Layout()
	for i := uint32(0); i < lay.NumSWGateableClocks && i < 32; i++ {
		t, err := clk.GateableClockEnabled(clkmgr.GateableClock(i))
		if err != nil {
			return snap, fmt.Errorf("srv: could not read gateable clock %d: %w", i, err)
		}
		if t.Bool() {
			snap.Gates |= 1 << i
		}
	}
	for i := uint32(0); i < lay.NumHintableClocks && i < 32; i++ {
		t, err := clk.HintableClockEnabled(clkmgr.HintableClock(i))
		if err != nil {
			return snap, fmt.Errorf("srv: could not read hintable clock %d: %w", i, err)
		}
		if t.Bool() {
			snap.Clocks |= 1 << i
		}
	}

	var err error
	snap.Jitter, err = clk.JitterEnabled()
	switch {
	case errors.Is(err, dif.ErrMalformed):
		snap.Jitter = dif.Disabled
		snap.JitterMalformed = true
	case err != nil:
		return snap, fmt.Errorf("srv: could not read jitter: %w", err)
	}

	return snap, nil
}

// snapshotSize is the size in bytes of an encoded snapshot payload.
const snapshotSize = 8 + 4 + 4 + 4 + 1

// jitterMalformed is the encoded jitter byte of a malformed register.
const jitterMalformed = 0xff

// ErrChecksum reports a snapshot frame whose CRC-16 trailer does not match
// its payload.
var ErrChecksum = errors.New("srv: invalid snapshot checksum")

// Encode writes the snapshot in tdaq binary form, followed by the
// big-endian CRC-16 of the payload.
func (snap Snapshot) Encode(w io.Writer) error {
	crc := crc16.New(nil)
	enc := tdaq.NewEncoder(io.MultiWriter(w, crc))
	enc.WriteU64(uint64(snap.Time.UnixNano()))
	enc.WriteU32(snap.AES)
	enc.WriteU32(snap.Gates)
	enc.WriteU32(snap.Clocks)
	jitter := uint8(snap.Jitter)
	if snap.JitterMalformed {
		jitter = jitterMalformed
	}
	enc.WriteU8(jitter)
	if err := enc.Err(); err != nil {
		return err
	}
	_, err := w.Write(crc.Sum(nil))
	return err
}

// Decode reads a snapshot in tdaq binary form and verifies its checksum.
func (snap *Snapshot) Decode(r io.Reader) error {
	var buf [snapshotSize + crc16.Size]byte
	_, err := io.ReadFull(r, buf[:])
	if err != nil {
		return fmt.Errorf("srv: could not read snapshot: %w", err)
	}

	var (
		raw = buf[:snapshotSize]
		sum = binary.BigEndian.Uint16(buf[snapshotSize:])
	)
	if got, want := sum, crc16.Checksum(raw); got != want {
		return fmt.Errorf("%w (got=0x%04x, want=0x%04x)", ErrChecksum, got, want)
	}

	dec := tdaq.NewDecoder(bytes.NewReader(raw))
	snap.Time = time.Unix(0, int64(dec.ReadU64())).UTC()
	snap.AES = dec.ReadU32()
	snap.Gates = dec.ReadU32()
	snap.Clocks = dec.ReadU32()
	switch jitter := dec.ReadU8(); jitter {
	case jitterMalformed:
		snap.Jitter = dif.Disabled
		snap.JitterMalformed = true
	default:
		snap.Jitter = dif.Toggle(jitter)
		snap.JitterMalformed = false
	}
	return dec.Err()
}

// msgWriter forwards log lines to a tdaq message stream.
type msgWriter struct {
	msg interface {
		Infof(format string, args ...interface{})
	}
}

func (w *msgWriter) Write(p []byte) (int, error) {
	w.msg.Infof("%s", bytes.TrimRight(p, "\n"))
	return len(p), nil
}
