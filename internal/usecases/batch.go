package usecases

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// ScanFunc opens the repository at url and harvests it.
type ScanFunc func(ctx context.Context, url string) (*domain.ScanSummary, error)

// BatchReport summarizes a batch run.
type BatchReport struct {
	Listed    int
	Scanned   int
	Skipped   int
	Failed    int
	Summaries []*domain.ScanSummary
}

// BatchScheduler harvests every repository of a RepositoryList that is not yet
// computed, flagging each as computed once its scan returns.
type BatchScheduler struct {
	scan     ScanFunc
	parallel int
	logger   Logger
}

// NewBatchScheduler creates a scheduler running up to parallel scans at once.
func NewBatchScheduler(scan ScanFunc, parallel int, log Logger) *BatchScheduler {
	if parallel < 1 {
		parallel = 1
	}
	return &BatchScheduler{scan: scan, parallel: parallel, logger: log}
}

// Run drives list. Entries with an empty URL are flagged computed without a scan.
// A failed scan is logged and its entry left uncomputed so that a later run
// retries it. Only reading the list, updating it, or cancellation stops the run.
func (b *BatchScheduler) Run(ctx context.Context, list domain.RepositoryList) (*BatchReport, error) {
	entries, err := list.Entries()
	if err != nil {
		return nil, err
	}

	report := &BatchReport{Listed: len(entries)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallel)

	for i, entry := range entries {
		if entry.Computed {
			report.Skipped++
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			if entry.URL == "" {
				b.logger.Warn(gctx, "batch entry has no repository URL", map[string]interface{}{
					"index": i,
					"name":  entry.Name,
				})
				return list.MarkComputed(i)
			}

			summary, err := b.scan(gctx, entry.URL)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				b.logger.Error(gctx, "repository scan failed", err, map[string]interface{}{
					"name": entry.Name,
					"url":  entry.URL,
				})
				mu.Lock()
				report.Failed++
				mu.Unlock()
				return nil
			}

			mu.Lock()
			report.Scanned++
			report.Summaries = append(report.Summaries, summary)
			mu.Unlock()

			return list.MarkComputed(i)
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	b.logger.Info(ctx, "batch finished", map[string]interface{}{
		"listed":  report.Listed,
		"scanned": report.Scanned,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	})
	return report, nil
}
