package scantask

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"memkit/process"
	"memkit/sigscan"
)

// FindAll returns every match of target across the memory pages of the
// process in ascending order, scanning pages in parallel. Unreadable pages
// are skipped.
func (t *ScanTask) FindAll(ctx context.Context, target *sigscan.ScanTarget) ([]process.ProcessMemoryAddress, error) {
	t.log.Infoln("Starting parallel memory scan with maxParallel=", t.maxParallel)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.maxParallel)

	var mu sync.Mutex
	var results []process.ProcessMemoryAddress

	for page := range t.proc.MemoryPages(t.allPages) {
		if gctx.Err() != nil {
			break
		}
		if target.MaxLen() > int(page.Size) {
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			scanner := sigscan.NewProcessScannerRange(t.proc, page.Address, page.Size)
			seq, err := scanner.ScanAll(target, t.alignment)
			if err != nil {
				t.log.Debugln("Failed to scan memory region at", page.Address.ToString(), err)
				return nil
			}

			var found []process.ProcessMemoryAddress
			for addr := range seq {
				if err := gctx.Err(); err != nil {
					return err
				}
				found = append(found, addr)
			}

			mu.Lock()
			results = append(results, found...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.Sort(results)
	t.log.Infoln("Parallel scan complete, found", len(results), "matches")
	return results, nil
}

// FindAll scans every page of proc for target once
func FindAll(ctx context.Context, proc process.Process, target *sigscan.ScanTarget, opts ...Option) ([]process.ProcessMemoryAddress, error) {
	return New(proc, opts...).FindAll(ctx, target)
}
