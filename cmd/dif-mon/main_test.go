// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/go-lpc/socdif/internal/target"
	"github.com/go-lpc/socdif/regs"
)

func TestInstances(t *testing.T) {
	for _, tc := range []struct {
		name string
		mode string
		args []string
		want []instance
		err  bool
	}{
		{
			name: "default",
			mode: "mem",
			want: []instance{{name: "aes", cfg: target.Config{Mode: "mem"}}},
		},
		{
			name: "mem",
			mode: "mem",
			args: []string{"0x41100000", "0x41110000"},
			want: []instance{
				{name: "0x41100000", cfg: target.Config{Mode: "mem", AESBase: 0x41100000}},
				{name: "0x41110000", cfg: target.Config{Mode: "mem", AESBase: 0x41110000}},
			},
		},
		{
			name: "smbus",
			mode: "smbus",
			args: []string{"0x42"},
			want: []instance{
				{name: "0x42", cfg: target.Config{Mode: "smbus", AESAddr: 0x42}},
			},
		},
		{
			name: "fake",
			mode: "fake",
			args: []string{"a", "b"},
			want: []instance{
				{name: "a", cfg: target.Config{Mode: "fake"}},
				{name: "b", cfg: target.Config{Mode: "fake"}},
			},
		},
		{
			name: "invalid-mem",
			mode: "mem",
			args: []string{"xyz"},
			err:  true,
		},
		{
			name: "invalid-smbus",
			mode: "smbus",
			args: []string{"0x80"},
			err:  true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := instances(target.Config{Mode: tc.mode}, tc.args)
			switch {
			case err != nil && tc.err:
				return
			case err != nil:
				t.Fatalf("could not parse instances: %+v", err)
			case tc.err:
				t.Fatalf("expected an error")
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid instances:\ngot= %+v\nwant=%+v", got, tc.want)
			}
		})
	}
}

func TestProbe(t *testing.T) {
	tgt, err := target.Open(target.Config{Mode: "fake"})
	if err != nil {
		t.Fatalf("could not open target: %+v", err)
	}
	defer tgt.Close()

	faults, err := probe(tgt)
	if err != nil {
		t.Fatalf("could not probe target: %+v", err)
	}
	if len(faults) != 4 {
		t.Fatalf("invalid number of indicators: got=%d, want=4", len(faults))
	}
	for what, set := range faults {
		if set {
			t.Fatalf("unexpected fault %q on a fresh target", what)
		}
	}

	// a mismatched shadowed write raises the recoverable update error.
	off := regs.EarlGreyAES.Ctrl.Offset
	_ = tgt.AESRegion.Write32(off, 0x105)
	_ = tgt.AESRegion.Write32(off, 0x106)

	faults, err = probe(tgt)
	if err != nil {
		t.Fatalf("could not probe target: %+v", err)
	}
	if !faults["aes alert-recov-ctrl-update-err"] {
		t.Fatalf("missing recoverable update error: %v", faults)
	}
}

func TestMonitor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	evts := make(chan event, 16)
	mon := newMonitor(time.Millisecond, func(ev event) { evts <- ev })
	mon.open = func(cfg target.Config) (*target.Target, error) {
		tgt, err := target.Open(cfg)
		if err != nil {
			return nil, err
		}
		off := regs.EarlGreyAES.Ctrl.Offset
		_ = tgt.AESRegion.Write32(off, 0x105)
		_ = tgt.AESRegion.Write32(off, 0x205)
		return tgt, nil
	}

	done := make(chan error)
	go func() {
		done <- mon.run(ctx, []instance{
			{name: "aes-0", cfg: target.Config{Mode: "fake"}},
		})
	}()

	var ev event
	select {
	case ev = <-evts:
	case <-ctx.Done():
		t.Fatalf("timeout waiting for an alert")
	}
	cancel()

	if got, want := ev.inst, "aes-0"; got != want {
		t.Fatalf("invalid instance: got=%q, want=%q", got, want)
	}
	if got, want := ev.what, "aes alert-recov-ctrl-update-err"; got != want {
		t.Fatalf("invalid fault: got=%q, want=%q", got, want)
	}

	err := <-done
	if err != nil {
		t.Fatalf("could not run monitor: %+v", err)
	}
}

func TestMonitorOpenError(t *testing.T) {
	mon := newMonitor(time.Millisecond, func(event) {})
	err := mon.run(context.Background(), []instance{
		{name: "bad", cfg: target.Config{Mode: "carrier-pigeon"}},
	})
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestRaiseMaxAlerts(t *testing.T) {
	n := 0
	mon := newMonitor(time.Millisecond, func(event) { n++ })
	for i := 0; i < 2*maxAlerts; i++ {
		mon.raise(event{inst: "x", what: "y", time: time.Now()})
	}
	mon.raise(event{inst: "x", what: "z", time: time.Now()})
	if got, want := n, maxAlerts+1; got != want {
		t.Fatalf("invalid number of alerts: got=%d, want=%d", got, want)
	}
}
