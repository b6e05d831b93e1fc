// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package resdb stores self-test reports in a MySQL database.
package resdb // import "github.com/go-lpc/socdif/internal/resdb"

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/go-lpc/socdif/selftest"
	"github.com/go-sql-driver/mysql"
)

var (
	drvName = "mysql"
)

// Schema creates the table holding self-test results.
const Schema = `
CREATE TABLE IF NOT EXISTS selftests (
	run_id   CHAR(36)     NOT NULL,
	host     VARCHAR(255) NOT NULL,
	start    DATETIME(6)  NOT NULL,
	test     VARCHAR(64)  NOT NULL,
	duration BIGINT       NOT NULL,
	ok       BOOLEAN      NOT NULL,
	error    TEXT,
	PRIMARY KEY (run_id, test)
)`

// DB is a connection to the self-test results database.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the results database dbname.
// Credentials and server address are read from the RESDB_USR,
// RESDB_PWD and RESDB_HOST environment variables.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("resdb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(dbname string) string {
	cfg := mysql.NewConfig()
	cfg.User = getenv("RESDB_USR", "socdif")
	cfg.Passwd = os.Getenv("RESDB_PWD")
	cfg.Net = "tcp"
	cfg.Addr = getenv("RESDB_HOST", "localhost:3306")
	cfg.DBName = dbname
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("resdb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Init creates the results table if needed.
func (db *DB) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(ctx, Schema)
	if err != nil {
		return fmt.Errorf("resdb: could not create schema: %w", err)
	}
	return nil
}

// Insert stores all the results of rep, in a single transaction.
func (db *DB) Insert(ctx context.Context, rep selftest.Report) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("resdb: could not start transaction: %w", err)
	}
	defer tx.Rollback()

	for _, res := range rep.Results {
		var msg sql.NullString
		if res.Err != nil {
			msg = sql.NullString{String: res.Err.Error(), Valid: true}
		}
		_, err = tx.ExecContext(
			ctx,
			"INSERT INTO selftests (run_id, host, start, test, duration, ok, error) VALUES (?, ?, ?, ?, ?, ?, ?)",
			rep.RunID, rep.Host, res.Start, res.Name,
			res.Duration.Microseconds(), res.OK(), msg,
		)
		if err != nil {
			return fmt.Errorf("resdb: could not insert result %q of run %s: %w", res.Name, rep.RunID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("resdb: could not commit run %s: %w", rep.RunID, err)
	}
	return nil
}

// Row is a stored self-test result.
type Row struct {
	RunID    string
	Host     string
	Start    time.Time
	Test     string
	Duration time.Duration
	OK       bool
	Error    string
}

// LastRun returns the identifier of the most recent run.
func (db *DB) LastRun(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	id := ""
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT run_id FROM selftests ORDER BY start DESC LIMIT 1",
	)
	if err != nil {
		return id, fmt.Errorf("resdb: could not query last run: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&id)
		if err != nil {
			return id, fmt.Errorf("resdb: could not get last run value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return id, fmt.Errorf("resdb: could not scan db for last run: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return id, fmt.Errorf("resdb: context error while retrieving last run: %w", err)
	}

	return id, nil
}

// Results returns the stored results of run id.
func (db *DB) Results(ctx context.Context, id string) ([]Row, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var out []Row
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT run_id, host, start, test, duration, ok, error FROM selftests WHERE run_id=? ORDER BY start",
		id,
	)
	if err != nil {
		return out, fmt.Errorf("resdb: could not query results of run %s: %w", id, err)
	}
	defer rows.Close()

	for i := 0; rows.Next(); i++ {
		var (
			row Row
			dt  int64
			msg sql.NullString
		)
		err = rows.Scan(&row.RunID, &row.Host, &row.Start, &row.Test, &dt, &row.OK, &msg)
		if err != nil {
			return out, fmt.Errorf("resdb: could not scan row %d of run %s: %w", i, id, err)
		}
		row.Duration = time.Duration(dt) * time.Microsecond
		row.Error = msg.String
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("resdb: could not scan db for run %s: %w", id, err)
	}

	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("resdb: context error while retrieving run %s: %w", id, err)
	}

	return out, nil
}
