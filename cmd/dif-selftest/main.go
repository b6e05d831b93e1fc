// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command dif-selftest runs the on-target self-tests of the AES engine
// and of the clock manager.
//
// Usage: dif-selftest [OPTIONS]
//
// Example:
//
//	$> dif-selftest -mode=fake
//	$> dif-selftest -devmem=/dev/mem -aes-base=0x41100000 -trace=run42
//	$> dif-selftest -mode=smbus -smbus=1 -db=socdif
package main // import "github.com/go-lpc/socdif/cmd/dif-selftest"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-lpc/socdif"
	"github.com/go-lpc/socdif/internal/resdb"
	"github.com/go-lpc/socdif/internal/target"
	"github.com/go-lpc/socdif/selftest"
)

func main() {
	log.SetPrefix("dif-selftest: ")
	log.SetFlags(0)

	var (
		cfg     = target.Flags(flag.CommandLine)
		trace   = flag.String("trace", "", "prefix of zstd register trace files to write")
		dbname  = flag.String("db", "", "name of the results database to store the report into")
		timeout = flag.Duration("timeout", 5*time.Second, "timeout of each test")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: dif-selftest [OPTIONS]

Example:

 $> dif-selftest -mode=fake
 $> dif-selftest -devmem=/dev/mem -aes-base=0x41100000 -trace=run42

Options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg.Trace = *trace != ""

	if vers, _ := socdif.Version(); vers != "" {
		log.Printf("socdif %s", vers)
	}

	err := run(context.Background(), *cfg, *trace, *dbname, *timeout)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(ctx context.Context, cfg target.Config, trace, dbname string, timeout time.Duration) error {
	tgt, err := target.Open(cfg)
	if err != nil {
		return fmt.Errorf("could not open target: %w", err)
	}
	defer tgt.Close()

	var db *resdb.DB
	if dbname != "" {
		db, err = resdb.Open(dbname)
		if err != nil {
			return fmt.Errorf("could not open results db: %w", err)
		}
		defer db.Close()

		err = db.Init(ctx)
		if err != nil {
			return fmt.Errorf("could not initialize results db: %w", err)
		}
	}

	msg := log.New(os.Stdout, "dif-selftest: ", 0)
	rep := selftest.NewRunner(
		selftest.WithLogger(msg),
		selftest.WithTimeout(timeout),
	).Run(ctx, selftest.Suite(tgt.AES, tgt.Clk)...)

	_, err = rep.WriteTo(os.Stdout)
	if err != nil {
		return fmt.Errorf("could not write report: %w", err)
	}

	if trace != "" {
		err = tgt.DumpTraces(trace)
		if err != nil {
			return fmt.Errorf("could not dump register traces: %w", err)
		}
		msg.Printf("register traces written to %s-*.zst (aes=%016x, clkmgr=%016x)",
			trace, tgt.AESTrace.Fingerprint(), tgt.ClkTrace.Fingerprint(),
		)
	}

	if db != nil {
		err = db.Insert(ctx, rep)
		if err != nil {
			return fmt.Errorf("could not store report: %w", err)
		}
		msg.Printf("report %s stored in %q", rep.RunID, dbname)
	}

	return rep.Err()
}
