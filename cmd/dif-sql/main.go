// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command dif-sql inspects the self-test reports stored in the results
// database.
//
// Usage: dif-sql [OPTIONS]
//
// Example:
//
//	$> dif-sql -db=socdif
//	$> dif-sql -db=socdif -run=5b8d6c1e-46f0-4d0b-8a3c-5b3a8c3f4e1a
package main // import "github.com/go-lpc/socdif/cmd/dif-sql"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/go-lpc/socdif/internal/resdb"
)

func main() {
	log.SetPrefix("dif-sql: ")
	log.SetFlags(0)

	var (
		dbname = flag.String("db", "socdif", "name of the results database")
		run    = flag.String("run", "", "run ID to inspect (default: last run)")
	)

	flag.Parse()

	db, err := resdb.Open(*dbname)
	if err != nil {
		log.Fatalf("could not open results db: %+v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = doQuery(ctx, db, *run, os.Stdout)
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}
}

type querier interface {
	LastRun(ctx context.Context) (string, error)
	Results(ctx context.Context, id string) ([]resdb.Row, error)
}

func doQuery(ctx context.Context, db querier, run string, w io.Writer) error {
	if run == "" {
		v, err := db.LastRun(ctx)
		if err != nil {
			return fmt.Errorf("could not get last run: %w", err)
		}
		if v == "" {
			return fmt.Errorf("no run in results db")
		}
		run = v
	}

	rows, err := db.Results(ctx, run)
	if err != nil {
		return fmt.Errorf("could not get results of run %s: %w", run, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("no results for run %s", run)
	}

	fmt.Fprintf(w, "run:  %s\nhost: %s\ndate: %s\n\n",
		run, rows[0].Host, rows[0].Start.UTC().Format(time.RFC3339),
	)

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "TEST\tSTATUS\tDURATION\tERROR\n")
	pass := 0
	for _, row := range rows {
		status := "FAIL"
		if row.OK {
			status = "ok"
			pass++
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\n", row.Test, status, row.Duration, row.Error)
	}
	err = tw.Flush()
	if err != nil {
		return fmt.Errorf("could not flush results table: %w", err)
	}

	fmt.Fprintf(w, "\npassed: %d/%d\n", pass, len(rows))
	return nil
}
