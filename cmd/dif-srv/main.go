// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command dif-srv starts a TDAQ server driving the AES engine and the
// clock manager of a target.
//
// Usage: dif-srv [OPTIONS] NAME
//
// The /init command runs the self-test suite. When -db is set, the
// self-test reports are stored into the results database.
package main // import "github.com/go-lpc/socdif/cmd/dif-srv"

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"

	"github.com/go-lpc/socdif/internal/resdb"
	"github.com/go-lpc/socdif/internal/target"
	"github.com/go-lpc/socdif/srv"
)

func main() {
	var (
		cfg    = target.Flags(flag.CommandLine)
		dbname = flag.String("db", "", "name of the results database to store reports into")
		freq   = flag.Duration("freq", 1*time.Second, "status publication interval")
	)

	cmd := flags.New()

	opts := []srv.Option{srv.WithPeriod(*freq)}
	if *dbname != "" {
		db, err := resdb.Open(*dbname)
		if err != nil {
			log.Panicf("could not open results db: %+v", err)
		}
		defer db.Close()

		err = db.Init(context.Background())
		if err != nil {
			log.Panicf("could not initialize results db: %+v", err)
		}
		opts = append(opts, srv.WithStore(db))
	}

	dev := srv.New(*cfg, opts...)

	p := tdaq.New(cmd, os.Stdout)
	dev.Register(p)

	err := p.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
