// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package selftest

import (
	"context"
	"fmt"

	"github.com/go-lpc/socdif/dif"
	"github.com/go-lpc/socdif/dif/aes"
	"github.com/go-lpc/socdif/dif/clkmgr"
)

// ClockOffTrans clears the hint of clock c, waits for the hardware to
// stop it, then restores the hint and waits for the clock to restart.
// The consumer of the clock must be idle.
func ClockOffTrans(ctx context.Context, dev *clkmgr.Device, c clkmgr.HintableClock) error {
	state := func(want dif.Toggle) func() (bool, error) {
		return func() (bool, error) {
			got, err := dev.HintableClockEnabled(c)
			return got == want, err
		}
	}

	on, err := dev.HintableClockEnabled(c)
	if err != nil {
		return fmt.Errorf("selftest: could not read clock %v status: %w", c, err)
	}
	if on != dif.Enabled {
		return fmt.Errorf("selftest: clock %v not running before test: %w", c, dif.ErrWrongState)
	}

	err = dev.HintableClockSetHint(c, dif.Disabled)
	if err != nil {
		return fmt.Errorf("selftest: could not clear clock %v hint: %w", c, err)
	}

	errOff := poll(ctx, fmt.Sprintf("clock %v off", c), state(dif.Disabled))

	// restore the hint even if the clock did not stop.
	err = dev.HintableClockSetHint(c, dif.Enabled)
	if err != nil {
		return fmt.Errorf("selftest: could not restore clock %v hint: %w", c, err)
	}
	if errOff != nil {
		return errOff
	}

	hint, err := dev.HintableClockHint(c)
	if err != nil {
		return fmt.Errorf("selftest: could not read clock %v hint: %w", c, err)
	}
	if hint != dif.Enabled {
		return fmt.Errorf("selftest: clock %v hint not restored", c)
	}

	return poll(ctx, fmt.Sprintf("clock %v on", c), state(dif.Enabled))
}

// ClockGating toggles each software gateable clock off and on again,
// checking the read back state.
func ClockGating(ctx context.Context, dev *clkmgr.Device) error {
	n := dev.Layout().NumSWGateableClocks
	for i := uint32(0); i < n; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("selftest: clock gating: %w", err)
		}
		c := clkmgr.GateableClock(i)
		orig, err := dev.GateableClockEnabled(c)
		if err != nil {
			return fmt.Errorf("selftest: could not read clock %v: %w", c, err)
		}
		for _, t := range []dif.Toggle{dif.Disabled, dif.Enabled, orig} {
			err = dev.GateableClockSetEnabled(c, t)
			if err != nil {
				return fmt.Errorf("selftest: could not set clock %v: %w", c, err)
			}
			got, err := dev.GateableClockEnabled(c)
			if err != nil {
				return fmt.Errorf("selftest: could not read clock %v: %w", c, err)
			}
			if got != t {
				return fmt.Errorf("selftest: clock %v: got=%v, want=%v", c, got, t)
			}
		}
	}
	return nil
}

// JitterToggle enables then disables clock jitter, unless the jitter
// control is locked.
func JitterToggle(ctx context.Context, dev *clkmgr.Device) error {
	locked, err := dev.JitterLocked()
	if err != nil {
		return fmt.Errorf("selftest: could not read jitter lock: %w", err)
	}
	if locked {
		return nil
	}

	orig, err := dev.JitterEnabled()
	if err != nil {
		return fmt.Errorf("selftest: could not read jitter: %w", err)
	}
	for _, t := range []dif.Toggle{dif.Enabled, dif.Disabled, orig} {
		err = dev.JitterSetEnabled(t)
		if err != nil {
			return fmt.Errorf("selftest: could not set jitter: %w", err)
		}
		got, err := dev.JitterEnabled()
		if err != nil {
			return fmt.Errorf("selftest: could not read jitter: %w", err)
		}
		if got != t {
			return fmt.Errorf("selftest: jitter: got=%v, want=%v", got, t)
		}
	}
	return ctx.Err()
}

// Suite returns the standard self-test suite for the given devices.
// A nil device skips its tests.
func Suite(enc *aes.Device, clk *clkmgr.Device) []Test {
	var tests []Test
	if enc != nil {
		tests = append(tests,
			Test{Name: "aes-known-answer", Run: func(ctx context.Context) error { return AESKnownAnswer(ctx, enc) }},
			Test{Name: "aes-alerts", Run: func(ctx context.Context) error { return AESAlerts(ctx, enc) }},
		)
	}
	if clk != nil {
		tests = append(tests,
			Test{Name: "clk-gating", Run: func(ctx context.Context) error { return ClockGating(ctx, clk) }},
			Test{Name: "clk-jitter", Run: func(ctx context.Context) error { return JitterToggle(ctx, clk) }},
		)
		for i := uint32(0); i < clk.Layout().NumHintableClocks; i++ {
			c := clkmgr.HintableClock(i)
			tests = append(tests, Test{
				Name: "clk-off-" + c.String(),
				Run:  func(ctx context.Context) error { return ClockOffTrans(ctx, clk, c) },
			})
		}
	}
	return tests
}
