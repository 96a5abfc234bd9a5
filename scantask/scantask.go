// Package scantask resolves sets of signatures across modules and memory
// pages of a process, polling until every enabled target is found.
package scantask

import (
	"context"
	"fmt"
	"time"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"

	"memkit/process"
	"memkit/sigscan"
	"memkit/taskrunner"
)

// DefaultPollInterval is the pause between passes while targets are missing
const DefaultPollInterval = taskrunner.DefaultPollInterval

// DefaultMaxParallel bounds FindAll when no WithMaxParallel option is given
const DefaultMaxParallel = 4

type Option func(*ScanTask)

func WithPollInterval(d time.Duration) Option {
	return func(t *ScanTask) {
		if d > 0 {
			t.pollInterval = d
		}
	}
}

// WithAllPages includes shared, file backed and guarded pages in whole
// memory scans
func WithAllPages(allPages bool) Option {
	return func(t *ScanTask) {
		t.allPages = allPages
	}
}

// WithAlignment sets the scan stride
func WithAlignment(alignment int) Option {
	return func(t *ScanTask) {
		if alignment > 0 {
			t.alignment = alignment
		}
	}
}

// WithMaxParallel bounds the number of pages FindAll scans at once
func WithMaxParallel(n int) Option {
	return func(t *ScanTask) {
		if n > 0 {
			t.maxParallel = n
		}
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(t *ScanTask) {
		t.log = log
	}
}

// ScanTask runs at most one scan at a time against proc
type ScanTask struct {
	proc         process.Process
	log          *logger.Logger
	runner       *taskrunner.Runner
	pollInterval time.Duration
	allPages     bool
	alignment    int
	maxParallel  int
}

func New(proc process.Process, opts ...Option) *ScanTask {
	t := &ScanTask{
		proc:         proc,
		pollInterval: DefaultPollInterval,
		alignment:    1,
		maxParallel:  DefaultMaxParallel,
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.log == nil {
		t.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("scan-task-%d", proc.GetPID())))
	}

	t.runner = taskrunner.New(fmt.Sprintf("scan-runner-%d", proc.GetPID()))
	t.runner.PollInterval = t.pollInterval

	return t
}

// Run starts scanning data in the background, cancelling a scan already in
// progress. The returned results fill in while the scan runs. onComplete is
// called with the same results once every enabled target is found; it is
// not called when the scan is cancelled.
func (t *ScanTask) Run(data *sigscan.ScanData, onComplete func(*sigscan.ScanResults)) *sigscan.ScanResults {
	results := sigscan.NewScanResults(data)

	t.runner.Run(func(ctx context.Context) error {
		if err := t.scan(ctx, results); err != nil {
			return err
		}
		if onComplete != nil {
			onComplete(results)
		}
		return nil
	})

	return results
}

// ScanMemory scans data until every enabled target is found or ctx is done
func (t *ScanTask) ScanMemory(ctx context.Context, data *sigscan.ScanData) (*sigscan.ScanResults, error) {
	results := sigscan.NewScanResults(data)
	if err := t.scan(ctx, results); err != nil {
		return results, err
	}
	return results, nil
}

// Cancel stops a running scan and waits for it
func (t *ScanTask) Cancel() {
	t.runner.Cancel()
}

// Wait blocks until the running scan ends. It returns context.Canceled when
// the scan was cancelled.
func (t *ScanTask) Wait() error {
	return t.runner.Wait()
}

func (t *ScanTask) IsCompleted() bool {
	return t.runner.IsCompleted()
}

func (t *ScanTask) scan(ctx context.Context, results *sigscan.ScanResults) error {
	t.log.Infoln("Scanning memory.")

	for pass := 1; ; pass++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := t.pass(ctx, results); err != nil {
			return err
		}

		if results.AllFound() {
			t.log.Infoln("Scan completed!", "passes:", pass)
			return nil
		}

		if err := taskrunner.Sleep(ctx, t.pollInterval); err != nil {
			return err
		}
	}
}

// pass visits every module key once, stopping early when everything is found
func (t *ScanTask) pass(ctx context.Context, results *sigscan.ScanResults) error {
	data := results.Data()

	for _, module := range data.Modules() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if len(results.Pending(module)) == 0 {
			continue
		}

		if module == sigscan.AllPages {
			if err := t.scanPages(ctx, results); err != nil {
				return err
			}
		} else {
			mod, err := process.FindModule(t.proc, module)
			if err != nil {
				t.log.Debugln("Module lookup failed", module, err)
				continue
			}

			scanner := sigscan.NewProcessScanner(t.proc, mod)
			if err := t.scanGroups(ctx, scanner, module, results); err != nil {
				return err
			}
		}

		if results.AllFound() {
			return nil
		}
	}

	return nil
}

func (t *ScanTask) scanPages(ctx context.Context, results *sigscan.ScanResults) error {
	for page := range t.proc.MemoryPages(t.allPages) {
		if err := ctx.Err(); err != nil {
			return err
		}

		scanner := sigscan.NewProcessScannerRange(t.proc, page.Address, page.Size)
		if err := t.scanGroups(ctx, scanner, sigscan.AllPages, results); err != nil {
			return err
		}

		if len(results.Pending(sigscan.AllPages)) == 0 {
			return nil
		}
	}
	return nil
}

func (t *ScanTask) scanGroups(ctx context.Context, scanner *sigscan.Scanner, module string, results *sigscan.ScanResults) error {
	data := results.Data()

	for _, group := range results.Pending(module) {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, _ := data.Target(module, group)
		if target.Len() == 0 || target.MaxLen() > int(scanner.Size()) {
			continue
		}

		addr, ok, err := scanner.Scan(target, t.alignment)
		if err != nil {
			t.log.Debugln("Scan failed at", scanner.Start().ToString(), err)
			continue
		}
		if !ok {
			continue
		}

		results.Set(module, group, addr)
		t.log.Infoln(fmt.Sprintf("Found target '%s' at %s", group, addr.ToString()))
	}

	return nil
}
