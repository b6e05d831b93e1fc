// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command dif-mon monitors the alert flags of one or more AES engines and
// the integrity of the clock manager jitter control, and sends a mail
// when a fault shows up.
//
// Usage: dif-mon [OPTIONS] [INSTANCE...]
//
// Each instance is the physical base address (mode=mem), the smbus
// address (mode=smbus) or a name (mode=fake) of an AES engine.
//
// Mail alerts are configured through the MAIL_USERNAME, MAIL_PASSWORD,
// MAIL_SERVER, MAIL_PORT and MAIL_TGTS environment variables.
package main // import "github.com/go-lpc/socdif/cmd/dif-mon"

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	mail "gopkg.in/gomail.v2"

	"github.com/go-lpc/socdif/dif"
	"github.com/go-lpc/socdif/dif/aes"
	"github.com/go-lpc/socdif/internal/target"
)

func main() {
	log.SetPrefix("dif-mon: ")
	log.SetFlags(0)

	var (
		cfg  = target.Flags(flag.CommandLine)
		freq = flag.Duration("freq", 1*time.Second, "probing interval")
	)

	flag.Parse()

	insts, err := instances(*cfg, flag.Args())
	if err != nil {
		log.Fatalf("%+v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mon := newMonitor(*freq, mailAlert)
	err = mon.run(ctx, insts)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

type instance struct {
	name string
	cfg  target.Config
}

func instances(cfg target.Config, args []string) ([]instance, error) {
	if len(args) == 0 {
		return []instance{{name: "aes", cfg: cfg}}, nil
	}

	insts := make([]instance, 0, len(args))
	for _, arg := range args {
		inst := instance{name: arg, cfg: cfg}
		switch cfg.Mode {
		case "mem", "":
			v, err := strconv.ParseInt(arg, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("could not parse base address %q: %w", arg, err)
			}
			inst.cfg.AESBase = v
		case "smbus":
			v, err := strconv.ParseUint(arg, 0, 7)
			if err != nil {
				return nil, fmt.Errorf("could not parse smbus address %q: %w", arg, err)
			}
			inst.cfg.AESAddr = uint(v)
		}
		insts = append(insts, inst)
	}
	return insts, nil
}

// event is a fault observed on an instance.
type event struct {
	inst string
	what string
	time time.Time
}

func (ev event) String() string {
	return fmt.Sprintf("%s: %s (%s)", ev.inst, ev.what, ev.time.UTC().Format(time.RFC3339))
}

type monitor struct {
	freq  time.Duration
	alert func(ev event)
	open  func(cfg target.Config) (*target.Target, error)

	mu     sync.Mutex
	alerts map[string]int // number of alerts sent per instance and fault
}

const maxAlerts = 5

func newMonitor(freq time.Duration, alert func(ev event)) *monitor {
	return &monitor{
		freq:   freq,
		alert:  alert,
		open:   target.Open,
		alerts: make(map[string]int),
	}
}

func (mon *monitor) run(ctx context.Context, insts []instance) error {
	grp, ctx := errgroup.WithContext(ctx)
	for i := range insts {
		inst := insts[i]
		grp.Go(func() error {
			return mon.watch(ctx, inst)
		})
	}

	err := grp.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("could not monitor devices: %w", err)
	}
	return nil
}

func (mon *monitor) watch(ctx context.Context, inst instance) error {
	tgt, err := mon.open(inst.cfg)
	if err != nil {
		return fmt.Errorf("could not open instance %q: %w", inst.name, err)
	}
	defer tgt.Close()

	log.Printf("monitoring %q...", inst.name)
	tck := time.NewTicker(mon.freq)
	defer tck.Stop()

	prev := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tck.C:
			cur, err := probe(tgt)
			if err != nil {
				log.Printf("could not probe %q: %+v", inst.name, err)
				continue
			}
			for what, set := range cur {
				if set && !prev[what] {
					mon.raise(event{inst: inst.name, what: what, time: time.Now()})
				}
			}
			prev = cur
		}
	}
}

// probe reads the fault indicators of a target.
func probe(tgt *target.Target) (map[string]bool, error) {
	faults := make(map[string]bool)
	for _, s := range []aes.Status{
		aes.StatusAlertFatalFault,
		aes.StatusAlertRecovCtrlUpdateErr,
		aes.StatusOutputLost,
	} {
		v, err := tgt.AES.Status(s)
		if err != nil {
			return nil, err
		}
		faults["aes "+s.String()] = v
	}

	_, err := tgt.Clk.JitterEnabled()
	switch {
	case errors.Is(err, dif.ErrMalformed):
		faults["clkmgr jitter-malformed"] = true
	case err != nil:
		return nil, err
	default:
		faults["clkmgr jitter-malformed"] = false
	}

	return faults, nil
}

func (mon *monitor) raise(ev event) {
	log.Printf("fault: %v", ev)

	mon.mu.Lock()
	key := ev.inst + "|" + ev.what
	mon.alerts[key]++
	n := mon.alerts[key]
	mon.mu.Unlock()

	if n <= maxAlerts {
		mon.alert(ev)
	}
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = strings.Split(os.Getenv("MAIL_TGTS"), ",")
)

func mailAlert(ev event) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 || alertMailTgts[0] == "" {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[dif-mon] %s: %s", ev.inst, ev.what))
	msg.SetBody("text/plain", fmt.Sprintf("instance: %s\nfault:    %s\ntime:     %s\n",
		ev.inst, ev.what, ev.time.UTC().Format(time.RFC3339),
	))

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(msg)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
