// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clkmgr

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/go-lpc/socdif/dif"
	"github.com/go-lpc/socdif/internal/mockmmio"
	"github.com/go-lpc/socdif/regs"
)

var lay = &regs.EarlGreyClkmgr

func newTestDevice(t *testing.T) (*Device, *mockmmio.Device) {
	t.Helper()
	mock := mockmmio.New(t)
	dev, err := New(mock)
	if err != nil {
		t.Fatalf("could not create clkmgr device: %+v", err)
	}
	return dev, mock
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	if !errors.Is(err, dif.ErrInvalidArgument) {
		t.Fatalf("invalid error: %+v", err)
	}

	mock := mockmmio.New(t)
	defer mock.Done()

	_, err = New(mock, WithLayout(nil))
	if !errors.Is(err, dif.ErrInvalidArgument) {
		t.Fatalf("invalid error: %+v", err)
	}

	bad := regs.EarlGreyClkmgr
	bad.NumHintableClocks = 0
	_, err = New(mock, WithLayout(&bad))
	if !errors.Is(err, dif.ErrInvalidArgument) {
		t.Fatalf("invalid error: %+v", err)
	}

	// 36 gateable clocks need 2 enable words, the second one being CLK_HINTS.
	overlap := regs.EarlGreyClkmgr
	overlap.NumSWGateableClocks = 36
	_, err = New(mock, WithLayout(&overlap))
	if !errors.Is(err, dif.ErrInvalidArgument) {
		t.Fatalf("invalid error: %+v", err)
	}

	dev, err := New(mock)
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}
	if dev.Layout() != lay {
		t.Fatalf("invalid default layout")
	}
	if got := mock.Accesses(); got != 0 {
		t.Fatalf("New performed %d register accesses", got)
	}
}

func TestNilDevice(t *testing.T) {
	var dev *Device
	for _, tc := range []struct {
		name string
		f    func() error
	}{
		{"jitter-set", func() error { return dev.JitterSetEnabled(dif.Enabled) }},
		{"jitter-get", func() error { _, err := dev.JitterEnabled(); return err }},
		{"jitter-locked", func() error { _, err := dev.JitterLocked(); return err }},
		{"gate-set", func() error { return dev.GateableClockSetEnabled(IoPeri, dif.Enabled) }},
		{"gate-get", func() error { _, err := dev.GateableClockEnabled(IoPeri); return err }},
		{"hint-set", func() error { return dev.HintableClockSetHint(MainAes, dif.Enabled) }},
		{"hint-get", func() error { _, err := dev.HintableClockHint(MainAes); return err }},
		{"hint-status", func() error { _, err := dev.HintableClockEnabled(MainAes); return err }},
		{"measure-disable", func() error { return dev.MeasureCtrlDisable() }},
		{"measure-enabled", func() error { _, err := dev.MeasureCtrlEnabled(); return err }},
		{"force-alert", func() error { return dev.ForceAlert(AlertFatalFault) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.f()
			if !errors.Is(err, dif.ErrInvalidArgument) {
				t.Fatalf("invalid error: %+v", err)
			}
		})
	}
}

func TestJitter(t *testing.T) {
	t.Run("set", func(t *testing.T) {
		dev, mock := newTestDevice(t)
		defer mock.Done()

		mock.ExpectWrite32(lay.JitterEnable.Offset, 0x6)
		mock.ExpectWrite32(lay.JitterEnable.Offset, 0x9)

		err := dev.JitterSetEnabled(dif.Enabled)
		if err != nil {
			t.Fatalf("could not enable jitter: %+v", err)
		}
		err = dev.JitterSetEnabled(dif.Disabled)
		if err != nil {
			t.Fatalf("could not disable jitter: %+v", err)
		}

		err = dev.JitterSetEnabled(dif.Toggle(2))
		if !errors.Is(err, dif.ErrInvalidArgument) {
			t.Fatalf("invalid error: %+v", err)
		}
	})

	t.Run("get", func(t *testing.T) {
		for _, tc := range []struct {
			reg  uint32
			want dif.Toggle
			err  error
		}{
			{0x6, dif.Enabled, nil},
			{0x9, dif.Disabled, nil},
			{0xfffffff6, dif.Enabled, nil},
			{0x0, dif.Disabled, dif.ErrMalformed},
			{0xf, dif.Disabled, dif.ErrMalformed},
			{0x7, dif.Disabled, dif.ErrMalformed},
		} {
			t.Run(fmt.Sprintf("0x%x", tc.reg), func(t *testing.T) {
				dev, mock := newTestDevice(t)
				defer mock.Done()

				mock.ExpectRead32(lay.JitterEnable.Offset, tc.reg)
				got, err := dev.JitterEnabled()
				switch {
				case tc.err != nil:
					if !errors.Is(err, tc.err) {
						t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.err)
					}
				case err != nil:
					t.Fatalf("could not read jitter: %+v", err)
				}
				if got != tc.want {
					t.Fatalf("invalid toggle: got=%v, want=%v", got, tc.want)
				}
			})
		}
	})

	t.Run("locked", func(t *testing.T) {
		dev, mock := newTestDevice(t)
		defer mock.Done()

		mock.ExpectRead32(lay.JitterRegwen.Offset, 0x1)
		mock.ExpectRead32(lay.JitterRegwen.Offset, 0x0)

		locked, err := dev.JitterLocked()
		if err != nil || locked {
			t.Fatalf("invalid lock state: locked=%v, err=%+v", locked, err)
		}
		locked, err = dev.JitterLocked()
		if err != nil || !locked {
			t.Fatalf("invalid lock state: locked=%v, err=%+v", locked, err)
		}
	})
}

func TestGateableClock(t *testing.T) {
	t.Run("set", func(t *testing.T) {
		dev, mock := newTestDevice(t)
		defer mock.Done()

		mock.ExpectMask32(lay.ClkEnables, 0x0, 1<<uint(IoDiv4Peri), 0xffffffff)
		mock.ExpectMask32(lay.ClkEnables, 0xf, 1<<uint(UsbPeri), 0x0)

		err := dev.GateableClockSetEnabled(IoDiv4Peri, dif.Enabled)
		if err != nil {
			t.Fatalf("could not enable clock: %+v", err)
		}
		err = dev.GateableClockSetEnabled(UsbPeri, dif.Disabled)
		if err != nil {
			t.Fatalf("could not disable clock: %+v", err)
		}
	})

	t.Run("get", func(t *testing.T) {
		dev, mock := newTestDevice(t)
		defer mock.Done()

		mock.ExpectRead32(lay.ClkEnables, 1<<uint(IoPeri))
		mock.ExpectRead32(lay.ClkEnables, ^uint32(1<<uint(IoPeri)))

		got, err := dev.GateableClockEnabled(IoPeri)
		if err != nil || got != dif.Enabled {
			t.Fatalf("invalid state: got=%v, err=%+v", got, err)
		}
		got, err = dev.GateableClockEnabled(IoPeri)
		if err != nil || got != dif.Disabled {
			t.Fatalf("invalid state: got=%v, err=%+v", got, err)
		}
	})

	t.Run("out-of-range", func(t *testing.T) {
		for _, c := range []GateableClock{
			GateableClock(lay.NumSWGateableClocks),
			GateableClock(math.MaxUint32),
		} {
			dev, mock := newTestDevice(t)

			err := dev.GateableClockSetEnabled(c, dif.Enabled)
			if !errors.Is(err, dif.ErrInvalidArgument) {
				t.Fatalf("%v: invalid error: %+v", c, err)
			}
			_, err = dev.GateableClockEnabled(c)
			if !errors.Is(err, dif.ErrInvalidArgument) {
				t.Fatalf("%v: invalid error: %+v", c, err)
			}
			if got := mock.Accesses(); got != 0 {
				t.Fatalf("%v: out-of-range clock performed %d accesses", c, got)
			}
			mock.Done()
		}
	})

	t.Run("invalid-toggle", func(t *testing.T) {
		dev, mock := newTestDevice(t)
		defer mock.Done()

		err := dev.GateableClockSetEnabled(IoPeri, dif.Toggle(3))
		if !errors.Is(err, dif.ErrInvalidArgument) {
			t.Fatalf("invalid error: %+v", err)
		}
	})
}

func TestHintableClock(t *testing.T) {
	t.Run("set-hint", func(t *testing.T) {
		dev, mock := newTestDevice(t)
		defer mock.Done()

		mock.ExpectMask32(lay.ClkHints, 0x0, 1<<uint(MainHmac), 0xffffffff)
		mock.ExpectMask32(lay.ClkHints, 0xf, 1<<uint(MainOtbn), 0x0)

		err := dev.HintableClockSetHint(MainHmac, dif.Enabled)
		if err != nil {
			t.Fatalf("could not set hint: %+v", err)
		}
		err = dev.HintableClockSetHint(MainOtbn, dif.Disabled)
		if err != nil {
			t.Fatalf("could not clear hint: %+v", err)
		}
	})

	t.Run("get-hint", func(t *testing.T) {
		dev, mock := newTestDevice(t)
		defer mock.Done()

		mock.ExpectRead32(lay.ClkHints, 1<<uint(MainKmac))
		got, err := dev.HintableClockHint(MainKmac)
		if err != nil || got != dif.Enabled {
			t.Fatalf("invalid hint: got=%v, err=%+v", got, err)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		dev, mock := newTestDevice(t)
		defer mock.Done()

		mock.ExpectRead32(lay.ClkHintsStatus, 1<<uint(MainAes))
		mock.ExpectRead32(lay.ClkHintsStatus, 0)

		got, err := dev.HintableClockEnabled(MainAes)
		if err != nil || got != dif.Enabled {
			t.Fatalf("invalid status: got=%v, err=%+v", got, err)
		}
		got, err = dev.HintableClockEnabled(MainAes)
		if err != nil || got != dif.Disabled {
			t.Fatalf("invalid status: got=%v, err=%+v", got, err)
		}
	})

	t.Run("out-of-range", func(t *testing.T) {
		for _, c := range []HintableClock{
			HintableClock(lay.NumHintableClocks),
			HintableClock(math.MaxUint32),
		} {
			dev, mock := newTestDevice(t)

			err := dev.HintableClockSetHint(c, dif.Enabled)
			if !errors.Is(err, dif.ErrInvalidArgument) {
				t.Fatalf("%v: invalid error: %+v", c, err)
			}
			_, err = dev.HintableClockHint(c)
			if !errors.Is(err, dif.ErrInvalidArgument) {
				t.Fatalf("%v: invalid error: %+v", c, err)
			}
			_, err = dev.HintableClockEnabled(c)
			if !errors.Is(err, dif.ErrInvalidArgument) {
				t.Fatalf("%v: invalid error: %+v", c, err)
			}
			if got := mock.Accesses(); got != 0 {
				t.Fatalf("%v: out-of-range clock performed %d accesses", c, got)
			}
			mock.Done()
		}
	})
}

func TestMultiWordLayout(t *testing.T) {
	rev := regs.EarlGreyClkmgr
	rev.NumSWGateableClocks = 36
	rev.ClkHints = 0x20
	rev.ClkHintsStatus = 0x24
	rev.MeasureCtrlRegwen.Offset = 0x28

	mock := mockmmio.New(t)
	defer mock.Done()

	dev, err := New(mock, WithLayout(&rev))
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}

	// clock 33 lives in bit 1 of the second word.
	mock.ExpectMask32(rev.ClkEnables+4, 0x5, 1<<1, 0xffffffff)
	mock.ExpectRead32(rev.ClkEnables+4, 0x2)

	err = dev.GateableClockSetEnabled(GateableClock(33), dif.Enabled)
	if err != nil {
		t.Fatalf("could not enable clock: %+v", err)
	}
	got, err := dev.GateableClockEnabled(GateableClock(33))
	if err != nil || got != dif.Enabled {
		t.Fatalf("invalid state: got=%v, err=%+v", got, err)
	}

	_, err = dev.GateableClockEnabled(GateableClock(36))
	if !errors.Is(err, dif.ErrInvalidArgument) {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestMeasureCtrl(t *testing.T) {
	dev, mock := newTestDevice(t)
	defer mock.Done()

	mock.ExpectWrite32(lay.MeasureCtrlRegwen.Offset, 0)
	mock.ExpectRead32(lay.MeasureCtrlRegwen.Offset, 1)
	mock.ExpectRead32(lay.MeasureCtrlRegwen.Offset, 0)

	err := dev.MeasureCtrlDisable()
	if err != nil {
		t.Fatalf("could not disable measure ctrl: %+v", err)
	}

	got, err := dev.MeasureCtrlEnabled()
	if err != nil || got != dif.Enabled {
		t.Fatalf("invalid state: got=%v, err=%+v", got, err)
	}
	got, err = dev.MeasureCtrlEnabled()
	if err != nil || got != dif.Disabled {
		t.Fatalf("invalid state: got=%v, err=%+v", got, err)
	}
}

func TestForceAlert(t *testing.T) {
	for _, tc := range []struct {
		alert Alert
		want  uint32
	}{
		{AlertRecovFault, 0x1},
		{AlertFatalFault, 0x2},
	} {
		t.Run(tc.alert.String(), func(t *testing.T) {
			dev, mock := newTestDevice(t)
			defer mock.Done()

			mock.ExpectWrite32(lay.AlertTest.Offset, tc.want)
			err := dev.ForceAlert(tc.alert)
			if err != nil {
				t.Fatalf("could not force alert: %+v", err)
			}
		})
	}

	dev, mock := newTestDevice(t)
	defer mock.Done()
	err := dev.ForceAlert(Alert(2))
	if !errors.Is(err, dif.ErrInvalidArgument) {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestBusError(t *testing.T) {
	errBus := errors.New("bus error")

	dev, mock := newTestDevice(t)
	defer mock.Done()

	mock.ExpectReadErr32(lay.ClkEnables, errBus)
	err := dev.GateableClockSetEnabled(IoPeri, dif.Enabled)
	if !errors.Is(err, errBus) {
		t.Fatalf("invalid error: %+v", err)
	}

	mock.ExpectWriteErr32(lay.JitterEnable.Offset, 0x6, errBus)
	err = dev.JitterSetEnabled(dif.Enabled)
	if !errors.Is(err, errBus) {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestStrings(t *testing.T) {
	for _, tc := range []struct {
		v    fmt.Stringer
		want string
	}{
		{IoDiv4Peri, "io-div4-peri"},
		{UsbPeri, "usb-peri"},
		{GateableClock(7), "GateableClock(7)"},
		{MainOtbn, "main-otbn"},
		{HintableClock(7), "HintableClock(7)"},
		{AlertRecovFault, "recov-fault"},
		{Alert(7), "Alert(7)"},
	} {
		if got := tc.v.String(); got != tc.want {
			t.Fatalf("got=%q, want=%q", got, tc.want)
		}
	}
}
