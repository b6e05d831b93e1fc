// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command dif-shell is an interactive shell to inspect and drive the AES
// engine and the clock manager registers.
//
// Example:
//
//	$> dif-shell -mode=fake
//	dif> aes status idle
//	idle: true
//	dif> clk gate 3 off
//	dif> rd clk 0x18
//	0x00000007
package main // import "github.com/go-lpc/socdif/cmd/dif-shell"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/go-lpc/socdif"
	"github.com/go-lpc/socdif/dif"
	"github.com/go-lpc/socdif/dif/aes"
	"github.com/go-lpc/socdif/dif/clkmgr"
	"github.com/go-lpc/socdif/internal/target"
	"github.com/go-lpc/socdif/mmio"
)

func main() {
	log.SetPrefix("dif-shell: ")
	log.SetFlags(0)

	cfg := target.Flags(flag.CommandLine)
	flag.BoolVar(&cfg.Trace, "trace", false, "record register accesses")
	flag.Parse()

	tgt, err := target.Open(*cfg)
	if err != nil {
		log.Fatalf("could not open target: %+v", err)
	}
	defer tgt.Close()

	sh := newShell(tgt, os.Stdout)
	err = sh.loop()
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

var errQuit = errors.New("quit")

type command struct {
	help string
	run  func(sh *shell, args []string) error
}

type shell struct {
	tgt  *target.Target
	out  io.Writer
	cmds map[string]command
}

func newShell(tgt *target.Target, out io.Writer) *shell {
	sh := &shell{tgt: tgt, out: out}
	sh.cmds = map[string]command{
		"help":    {"help: list commands", (*shell).help},
		"quit":    {"quit: leave the shell", func(*shell, []string) error { return errQuit }},
		"rd":      {"rd aes|clk OFFSET: read a register", (*shell).rd},
		"wr":      {"wr aes|clk OFFSET VALUE: write a register", (*shell).wr},
		"aes":     {"aes status [FLAG] | trigger CMD | alert ALERT | end", (*shell).aes},
		"clk":     {"clk gate|hint|status N [on|off] | jitter [on|off] | measure [off] | alert ALERT", (*shell).clk},
		"trace":   {"trace [dump PREFIX | sum | reset]: manage register traces", (*shell).trace},
		"version": {"version: print the version of socdif", (*shell).version},
	}
	return sh
}

func (sh *shell) names() []string {
	names := maps.Keys(sh.cmds)
	slices.Sort(names)
	return names
}

func (sh *shell) complete(line string) []string {
	var out []string
	for _, name := range sh.names() {
		if strings.HasPrefix(name, line) {
			out = append(out, name)
		}
	}
	return out
}

func (sh *shell) loop() error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(sh.complete)

	hist := filepath.Join(os.TempDir(), ".dif-shell.history")
	if f, err := os.Open(hist); err == nil {
		_, _ = term.ReadHistory(f)
		f.Close()
	}
	defer func() {
		f, err := os.Create(hist)
		if err != nil {
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	for {
		line, err := term.Prompt("dif> ")
		switch {
		case err == nil:
		case errors.Is(err, liner.ErrPromptAborted), errors.Is(err, io.EOF):
			fmt.Fprintln(sh.out)
			return nil
		default:
			return fmt.Errorf("could not read input: %w", err)
		}

		if strings.TrimSpace(line) == "" {
			continue
		}
		term.AppendHistory(line)

		err = sh.exec(line)
		switch {
		case err == nil:
		case errors.Is(err, errQuit):
			return nil
		default:
			fmt.Fprintf(sh.out, "error: %+v\n", err)
		}
	}
}

func (sh *shell) exec(line string) error {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return nil
	}
	cmd, ok := sh.cmds[toks[0]]
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", toks[0])
	}
	return cmd.run(sh, toks[1:])
}

func (sh *shell) help(args []string) error {
	for _, name := range sh.names() {
		fmt.Fprintf(sh.out, "  %s\n", sh.cmds[name].help)
	}
	return nil
}

func (sh *shell) version(args []string) error {
	vers, sum := socdif.Version()
	if vers == "" {
		vers = "(devel)"
	}
	fmt.Fprintf(sh.out, "socdif %s %s\n", vers, sum)
	return nil
}

func (sh *shell) region(name string) (mmio.Region, error) {
	switch name {
	case "aes":
		return sh.tgt.AESRegion, nil
	case "clk":
		return sh.tgt.ClkRegion, nil
	}
	return nil, fmt.Errorf("unknown device %q", name)
}

func parseU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("could not parse %q: %w", s, err)
	}
	return uint32(v), nil
}

func parseToggle(s string) (dif.Toggle, error) {
	switch s {
	case "on", "1", "true":
		return dif.Enabled, nil
	case "off", "0", "false":
		return dif.Disabled, nil
	}
	return dif.Disabled, fmt.Errorf("invalid toggle %q", s)
}

func (sh *shell) rd(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: rd aes|clk OFFSET")
	}
	r, err := sh.region(args[0])
	if err != nil {
		return err
	}
	off, err := parseU32(args[1])
	if err != nil {
		return err
	}
	v, err := r.Read32(off)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "0x%08x\n", v)
	return nil
}

func (sh *shell) wr(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: wr aes|clk OFFSET VALUE")
	}
	r, err := sh.region(args[0])
	if err != nil {
		return err
	}
	off, err := parseU32(args[1])
	if err != nil {
		return err
	}
	v, err := parseU32(args[2])
	if err != nil {
		return err
	}
	return r.Write32(off, v)
}

func lookup[T fmt.Stringer](vs []T, name string) (T, error) {
	for _, v := range vs {
		if v.String() == name {
			return v, nil
		}
	}
	var zero T
	names := make([]string, len(vs))
	for i, v := range vs {
		names[i] = v.String()
	}
	return zero, fmt.Errorf("invalid value %q (want one of: %s)", name, strings.Join(names, ", "))
}

func (sh *shell) aes(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", sh.cmds["aes"].help)
	}
	dev := sh.tgt.AES
	switch args[0] {
	case "status":
		flags := aes.Statuses
		if len(args) > 1 {
			s, err := lookup(aes.Statuses, args[1])
			if err != nil {
				return err
			}
			flags = []aes.Status{s}
		}
		for _, s := range flags {
			v, err := dev.Status(s)
			if err != nil {
				return err
			}
			fmt.Fprintf(sh.out, "%s: %v\n", s, v)
		}
		return nil
	case "trigger":
		if len(args) != 2 {
			return fmt.Errorf("usage: aes trigger CMD")
		}
		c, err := lookup(aes.Cmds, args[1])
		if err != nil {
			return err
		}
		return dev.Trigger(c)
	case "alert":
		if len(args) != 2 {
			return fmt.Errorf("usage: aes alert ALERT")
		}
		a, err := lookup(aes.Alerts, args[1])
		if err != nil {
			return err
		}
		return dev.ForceAlert(a)
	case "end":
		return dev.End()
	}
	return fmt.Errorf("unknown aes command %q", args[0])
}

func (sh *shell) clk(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", sh.cmds["clk"].help)
	}
	dev := sh.tgt.Clk
	show := func(name string, t dif.Toggle, err error) error {
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%s: %v\n", name, t)
		return nil
	}

	switch args[0] {
	case "gate", "hint", "status":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("usage: clk %s N [on|off]", args[0])
		}
		i, err := parseU32(args[1])
		if err != nil {
			return err
		}
		if len(args) == 3 {
			t, err := parseToggle(args[2])
			if err != nil {
				return err
			}
			switch args[0] {
			case "gate":
				return dev.GateableClockSetEnabled(clkmgr.GateableClock(i), t)
			case "hint":
				return dev.HintableClockSetHint(clkmgr.HintableClock(i), t)
			default:
				return fmt.Errorf("clock status is read-only")
			}
		}
		switch args[0] {
		case "gate":
			c := clkmgr.GateableClock(i)
			t, err := dev.GateableClockEnabled(c)
			return show(c.String(), t, err)
		case "hint":
			c := clkmgr.HintableClock(i)
			t, err := dev.HintableClockHint(c)
			return show(c.String()+" hint", t, err)
		default:
			c := clkmgr.HintableClock(i)
			t, err := dev.HintableClockEnabled(c)
			return show(c.String(), t, err)
		}

	case "jitter":
		if len(args) == 2 {
			t, err := parseToggle(args[1])
			if err != nil {
				return err
			}
			return dev.JitterSetEnabled(t)
		}
		t, err := dev.JitterEnabled()
		if err != nil {
			return err
		}
		locked, err := dev.JitterLocked()
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "jitter: %v (locked=%v)\n", t, locked)
		return nil

	case "measure":
		if len(args) == 2 {
			if args[1] != "off" {
				return fmt.Errorf("measurement controls can only be disabled")
			}
			return dev.MeasureCtrlDisable()
		}
		t, err := dev.MeasureCtrlEnabled()
		return show("measure-ctrl", t, err)

	case "alert":
		if len(args) != 2 {
			return fmt.Errorf("usage: clk alert ALERT")
		}
		a, err := lookup([]clkmgr.Alert{clkmgr.AlertRecovFault, clkmgr.AlertFatalFault}, args[1])
		if err != nil {
			return err
		}
		return dev.ForceAlert(a)
	}
	return fmt.Errorf("unknown clk command %q", args[0])
}

func (sh *shell) trace(args []string) error {
	if sh.tgt.AESTrace == nil || sh.tgt.ClkTrace == nil {
		return fmt.Errorf("register tracing not enabled (use -trace)")
	}
	switch {
	case len(args) == 2 && args[0] == "dump":
		return sh.tgt.DumpTraces(args[1])
	case len(args) == 1 && args[0] == "sum":
		fmt.Fprintf(sh.out, "aes %016x (%d accesses)\n", sh.tgt.AESTrace.Fingerprint(), len(sh.tgt.AESTrace.Accesses()))
		fmt.Fprintf(sh.out, "clk %016x (%d accesses)\n", sh.tgt.ClkTrace.Fingerprint(), len(sh.tgt.ClkTrace.Accesses()))
		return nil
	case len(args) == 1 && args[0] == "reset":
		sh.tgt.AESTrace.Reset()
		sh.tgt.ClkTrace.Reset()
		return nil
	case len(args) == 0:
		for _, acc := range sh.tgt.AESTrace.Accesses() {
			fmt.Fprintf(sh.out, "aes %v\n", acc)
		}
		for _, acc := range sh.tgt.ClkTrace.Accesses() {
			fmt.Fprintf(sh.out, "clk %v\n", acc)
		}
		return nil
	}
	return fmt.Errorf("usage: trace [dump PREFIX | sum | reset]")
}
