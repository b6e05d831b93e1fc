// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package selftest holds on-target self-tests exercising the AES engine
// and the clock manager through their device interfaces.
package selftest // import "github.com/go-lpc/socdif/selftest"

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// Test is a named self-test.
type Test struct {
	Name string
	Run  func(ctx context.Context) error
}

// Result is the outcome of a single self-test.
type Result struct {
	Name     string
	Start    time.Time
	Duration time.Duration
	Err      error
}

// OK reports whether the test passed.
func (res Result) OK() bool { return res.Err == nil }

// Report is the outcome of a self-test run.
type Report struct {
	RunID   string // unique identifier of the run
	Host    string
	Start   time.Time
	Results []Result
}

// Failed returns the number of failed tests.
func (rep Report) Failed() int {
	n := 0
	for _, res := range rep.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}

// Err returns an error summarizing the failed tests, if any.
func (rep Report) Err() error {
	var names []string
	for _, res := range rep.Results {
		if !res.OK() {
			names = append(names, res.Name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return fmt.Errorf("selftest: run %s: %d/%d tests failed: %s",
		rep.RunID, len(names), len(rep.Results), strings.Join(names, ", "),
	)
}

// Durations returns the mean and the standard deviation of the test durations.
func (rep Report) Durations() (mean, std time.Duration) {
	if len(rep.Results) == 0 {
		return 0, 0
	}
	xs := make([]float64, len(rep.Results))
	for i, res := range rep.Results {
		xs[i] = float64(res.Duration)
	}
	m, s := stat.MeanStdDev(xs, nil)
	if len(xs) == 1 {
		s = 0
	}
	return time.Duration(m), time.Duration(s)
}

// WriteTo writes a human readable summary of the report to w.
func (rep Report) WriteTo(w io.Writer) (int64, error) {
	var o strings.Builder
	fmt.Fprintf(&o, "run:   %s\nhost:  %s\nstart: %s\n", rep.RunID, rep.Host, rep.Start.UTC().Format(time.RFC3339))
	for _, res := range rep.Results {
		status := "ok"
		if !res.OK() {
			status = "FAIL: " + res.Err.Error()
		}
		fmt.Fprintf(&o, "  %-20s %-10v %s\n", res.Name, res.Duration.Round(time.Microsecond), status)
	}
	fmt.Fprintf(&o, "passed: %d/%d\n", len(rep.Results)-rep.Failed(), len(rep.Results))
	if len(rep.Results) > 1 {
		mean, std := rep.Durations()
		fmt.Fprintf(&o, "duration: mean=%v std=%v\n", mean.Round(time.Microsecond), std.Round(time.Microsecond))
	}

	n, err := io.WriteString(w, o.String())
	return int64(n), err
}

// Runner runs self-tests and collects their results.
type Runner struct {
	msg     *log.Logger
	timeout time.Duration
}

type Option func(r *Runner)

// WithLogger sets the logger used to report progress.
func WithLogger(msg *log.Logger) Option {
	return func(r *Runner) {
		r.msg = msg
	}
}

// WithTimeout bounds the duration of each test.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		r.timeout = timeout
	}
}

// NewRunner returns a new self-test runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		msg:     log.New(os.Stdout, "selftest: ", 0),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run runs all tests in order, stopping early only if ctx is done.
func (r *Runner) Run(ctx context.Context, tests ...Test) Report {
	host, _ := os.Hostname()
	rep := Report{
		RunID: uuid.New().String(),
		Host:  host,
		Start: time.Now().UTC(),
	}
	r.msg.Printf("run %s: %d tests", rep.RunID, len(tests))

	for _, tst := range tests {
		if err := ctx.Err(); err != nil {
			rep.Results = append(rep.Results, Result{
				Name:  tst.Name,
				Start: time.Now().UTC(),
				Err:   fmt.Errorf("selftest: %s: not run: %w", tst.Name, err),
			})
			continue
		}

		res := r.run(ctx, tst)
		if res.OK() {
			r.msg.Printf("%-20s ok (%v)", res.Name, res.Duration)
		} else {
			r.msg.Printf("%-20s FAIL: %+v", res.Name, res.Err)
		}
		rep.Results = append(rep.Results, res)
	}

	r.msg.Printf("run %s: %d/%d passed", rep.RunID, len(rep.Results)-rep.Failed(), len(rep.Results))
	return rep
}

func (r *Runner) run(ctx context.Context, tst Test) Result {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res := Result{Name: tst.Name, Start: time.Now().UTC()}
	res.Err = tst.Run(ctx)
	res.Duration = time.Since(res.Start)
	return res
}

// pollInterval is the delay between two status reads while polling.
var pollInterval = 10 * time.Microsecond

// poll calls cond until it reports true, fails, or ctx is done.
func poll(ctx context.Context, what string, cond func() (bool, error)) error {
	tck := time.NewTicker(pollInterval)
	defer tck.Stop()

	for {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("selftest: timeout waiting for %s: %w", what, ctx.Err())
		case <-tck.C:
		}
	}
}
