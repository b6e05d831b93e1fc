// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package target opens the register windows of the AES engine and of the
// clock manager, and creates their device handles.
package target // import "github.com/go-lpc/socdif/internal/target"

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-lpc/socdif/dif/aes"
	"github.com/go-lpc/socdif/dif/clkmgr"
	"github.com/go-lpc/socdif/internal/fakehw"
	"github.com/go-lpc/socdif/mmio"
	"github.com/go-lpc/socdif/regs"
)

const (
	// default physical addresses of the earlgrey top.
	aesBase = 0x41100000
	clkBase = 0x40420000
	span    = 0x1000
)

// Config describes how to reach the devices.
type Config struct {
	Mode string // mem, smbus or fake

	DevMem  string
	AESBase int64
	ClkBase int64

	Bus     int
	AESAddr uint
	ClkAddr uint

	AESLayout string // optional YAML layout file
	ClkLayout string // optional YAML layout file

	Trace bool // record register accesses
}

// Flags registers the configuration flags on fs.
func Flags(fs *flag.FlagSet) *Config {
	cfg := &Config{}
	fs.StringVar(&cfg.Mode, "mode", "mem", "access mode (mem, smbus, fake)")
	fs.StringVar(&cfg.DevMem, "devmem", "/dev/mem", "path to the physical memory device")
	fs.Int64Var(&cfg.AESBase, "aes-base", aesBase, "physical address of the AES engine")
	fs.Int64Var(&cfg.ClkBase, "clk-base", clkBase, "physical address of the clock manager")
	fs.IntVar(&cfg.Bus, "smbus", 1, "i2c bus number of the smbus bridge")
	fs.UintVar(&cfg.AESAddr, "aes-addr", 0x40, "smbus address of the AES engine bridge")
	fs.UintVar(&cfg.ClkAddr, "clk-addr", 0x41, "smbus address of the clock manager bridge")
	fs.StringVar(&cfg.AESLayout, "aes-layout", "", "path to a YAML AES register layout")
	fs.StringVar(&cfg.ClkLayout, "clk-layout", "", "path to a YAML clock manager register layout")
	return cfg
}

// Target holds the opened devices.
type Target struct {
	AES *aes.Device
	Clk *clkmgr.Device

	// raw register regions, traced when requested.
	AESRegion mmio.Region
	ClkRegion mmio.Region

	AESTrace *mmio.Tracer
	ClkTrace *mmio.Tracer

	closers []io.Closer
}

// Open opens both devices described by cfg.
func Open(cfg Config) (*Target, error) {
	alay, clay, err := layouts(cfg)
	if err != nil {
		return nil, err
	}

	tgt := &Target{}
	defer func() {
		if err != nil {
			_ = tgt.Close()
		}
	}()

	var ar, cr mmio.Region
	switch cfg.Mode {
	case "mem", "":
		ar, err = tgt.mmap(cfg.DevMem, cfg.AESBase)
		if err != nil {
			return nil, err
		}
		cr, err = tgt.mmap(cfg.DevMem, cfg.ClkBase)
		if err != nil {
			return nil, err
		}
	case "smbus":
		ar, err = tgt.smbus(cfg.Bus, cfg.AESAddr)
		if err != nil {
			return nil, err
		}
		cr, err = tgt.smbus(cfg.Bus, cfg.ClkAddr)
		if err != nil {
			return nil, err
		}
	case "fake":
		ahw := fakehw.NewAES(alay)
		ahw.Latency = 2
		chw := fakehw.NewClkmgr(clay)
		chw.Latency = 4
		ar, cr = ahw, chw
	default:
		err = fmt.Errorf("target: invalid access mode %q", cfg.Mode)
		return nil, err
	}

	if cfg.Trace {
		tgt.AESTrace = mmio.NewTracer(ar)
		tgt.ClkTrace = mmio.NewTracer(cr)
		ar, cr = tgt.AESTrace, tgt.ClkTrace
	}
	tgt.AESRegion = ar
	tgt.ClkRegion = cr

	tgt.AES, err = aes.New(ar, aes.WithLayout(alay))
	if err != nil {
		return nil, fmt.Errorf("target: could not create AES device: %w", err)
	}
	tgt.Clk, err = clkmgr.New(cr, clkmgr.WithLayout(clay))
	if err != nil {
		return nil, fmt.Errorf("target: could not create clkmgr device: %w", err)
	}

	return tgt, nil
}

func (tgt *Target) mmap(devmem string, base int64) (mmio.Region, error) {
	r, err := mmio.Map(devmem, base, span)
	if err != nil {
		return nil, fmt.Errorf("target: could not map registers at 0x%x: %w", base, err)
	}
	tgt.closers = append(tgt.closers, r)
	return r, nil
}

func (tgt *Target) smbus(bus int, addr uint) (mmio.Region, error) {
	if addr > 0x7f {
		return nil, fmt.Errorf("target: invalid smbus address 0x%x", addr)
	}
	r, err := mmio.OpenSMBus(bus, uint8(addr))
	if err != nil {
		return nil, fmt.Errorf("target: could not open smbus bridge 0x%x: %w", addr, err)
	}
	tgt.closers = append(tgt.closers, r)
	return r, nil
}

func layouts(cfg Config) (*regs.AES, *regs.Clkmgr, error) {
	var (
		alay = &regs.EarlGreyAES
		clay = &regs.EarlGreyClkmgr
	)

	if cfg.AESLayout != "" {
		f, err := os.Open(cfg.AESLayout)
		if err != nil {
			return nil, nil, fmt.Errorf("target: could not open AES layout: %w", err)
		}
		defer f.Close()
		alay, err = regs.LoadAES(f)
		if err != nil {
			return nil, nil, fmt.Errorf("target: could not load AES layout %q: %w", cfg.AESLayout, err)
		}
	}

	if cfg.ClkLayout != "" {
		f, err := os.Open(cfg.ClkLayout)
		if err != nil {
			return nil, nil, fmt.Errorf("target: could not open clkmgr layout: %w", err)
		}
		defer f.Close()
		clay, err = regs.LoadClkmgr(f)
		if err != nil {
			return nil, nil, fmt.Errorf("target: could not load clkmgr layout %q: %w", cfg.ClkLayout, err)
		}
	}

	return alay, clay, nil
}

// DumpTraces writes the recorded register accesses as zstd-compressed
// files named prefix+"-aes.zst" and prefix+"-clkmgr.zst".
func (tgt *Target) DumpTraces(prefix string) error {
	if tgt.AESTrace == nil || tgt.ClkTrace == nil {
		return fmt.Errorf("target: register tracing not enabled")
	}
	err := tgt.AESTrace.Dump(prefix + "-aes.zst")
	if err != nil {
		return fmt.Errorf("target: could not dump AES trace: %w", err)
	}
	err = tgt.ClkTrace.Dump(prefix + "-clkmgr.zst")
	if err != nil {
		return fmt.Errorf("target: could not dump clkmgr trace: %w", err)
	}
	return nil
}

// Close releases all the opened register windows.
func (tgt *Target) Close() error {
	var err error
	for i := len(tgt.closers) - 1; i >= 0; i-- {
		e := tgt.closers[i].Close()
		if e != nil && err == nil {
			err = fmt.Errorf("target: could not close region: %w", e)
		}
	}
	tgt.closers = nil
	return err
}
