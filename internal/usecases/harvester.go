// Package usecases contains the application business logic.
// This package orchestrates domain entities and interfaces to fulfill use cases.
package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// Logger defines the logging interface required by the use cases.
// This abstracts the logger dependency to avoid coupling to a specific implementation.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// ResumeMode selects how a scan treats an existing result table.
type ResumeMode string

// Resume modes.
const (
	// ResumeBounded visits only commits newer than the newest persisted one.
	ResumeBounded ResumeMode = "bounded"

	// ResumeFull visits the whole history and relies on merge de-duplication.
	ResumeFull ResumeMode = "full"
)

// HarvestOptions configures a Harvester.
type HarvestOptions struct {
	// DataDir is the root of the default result table location.
	DataDir string

	// Extensions restricts traversal to commits touching these source files.
	Extensions []string

	// NewestFirst visits commits from the branch head backwards.
	NewestFirst bool

	// Resume selects bounded or full traversal. Empty means bounded.
	Resume ResumeMode

	// Policy holds the circuit-breaker thresholds.
	Policy PolicyConfig

	// MessageMaxLen bounds commit messages in log lines.
	MessageMaxLen int
}

// StoreFactory opens the result store for a table path.
type StoreFactory func(path string) domain.ResultStore

// Harvester computes metrics for every relevant commit of one repository and
// persists them into the repository's result table.
type Harvester struct {
	analyzer domain.SnapshotAnalyzer
	newStore StoreFactory
	opts     HarvestOptions
	logger   Logger
	now      func() time.Time
}

// NewHarvester creates a new Harvester with the given dependencies.
func NewHarvester(
	analyzer domain.SnapshotAnalyzer,
	newStore StoreFactory,
	opts HarvestOptions,
	log Logger,
) *Harvester {
	if opts.Resume == "" {
		opts.Resume = ResumeBounded
	}
	if opts.MessageMaxLen <= 0 {
		opts.MessageMaxLen = domain.DefaultMessageMaxLen
	}
	return &Harvester{
		analyzer: analyzer,
		newStore: newStore,
		opts:     opts,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock replaces the clock used to time commits. Used by tests.
func (h *Harvester) WithClock(now func() time.Time) *Harvester {
	h.now = now
	return h
}

// SaveMetricsForEachCommit walks the repository's commits, analyzes the
// snapshot at each one and merges the successful rows into the result table at
// outputPath (the default table under DataDir when empty).
//
// Per-commit failures never surface as errors: they are classified, logged and
// fed to the abort policy. The returned error is reserved for failures that make
// the scan impossible (lease, traversal, unreadable result table, persistence)
// and for context cancellation, in which case nothing is written.
func (h *Harvester) SaveMetricsForEachCommit(
	ctx context.Context,
	repo domain.Repository,
	outputPath string,
) (*domain.ScanSummary, error) {
	info := repo.Info()
	if outputPath == "" {
		outputPath = domain.ResultPath(h.opts.DataDir, info.Name)
	}
	store := h.newStore(outputPath)

	resumeAfter := ""
	if h.opts.Resume == ResumeBounded {
		newest, err := store.NewestHash()
		if err != nil {
			return nil, fmt.Errorf("failed to read result table: %w", err)
		}
		resumeAfter = newest
	}

	h.logger.Info(ctx, "starting metric harvest", map[string]interface{}{
		"repository":   info.Name,
		"main_branch":  info.MainBranch,
		"output":       outputPath,
		"resume":       string(h.opts.Resume),
		"resume_after": resumeAfter,
		"newest_first": h.opts.NewestFirst,
	})

	wc, err := repo.Acquire()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire working copy of %s: %w", info.Name, err)
	}
	defer wc.Release()

	seq, err := repo.Commits(ctx, domain.SequenceOptions{
		Extensions:  h.opts.Extensions,
		NewestFirst: h.opts.NewestFirst,
		ResumeAfter: resumeAfter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list commits of %s: %w", info.Name, err)
	}

	summary := &domain.ScanSummary{
		Repository:  info.Name,
		Termination: domain.TerminationCompleted,
	}
	policy := NewAbortPolicy(h.opts.Policy)
	total := seq.Total()
	var rows []domain.MetricRow

scan:
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, ok, err := seq.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read next commit of %s: %w", info.Name, err)
		}
		if !ok {
			break
		}
		summary.Visited++

		start := h.now()
		metrics, analyzeErr := h.analyzeAt(ctx, wc, record.Hash)
		took := h.now().Sub(start)
		outcome := ClassifyAnalysis(metrics, analyzeErr)
		shortMsg := ShortenMessage(record.Message, h.opts.MessageMaxLen)

		h.logger.Info(ctx, "processed commit", map[string]interface{}{
			"repository":    info.Name,
			"commit":        summary.Visited,
			"total":         total,
			"author":        record.Author,
			"date":          record.Date.UTC().Format(time.RFC3339),
			"lines_changed": fmt.Sprintf("%d (+%d -%d)", record.LinesChanged, record.Insertions, record.Deletions),
			"time_taken":    fmt.Sprintf("%.2fs", took.Seconds()),
			"message":       shortMsg,
			"outcome":       outcome.Kind.String(),
		})

		if reason := policy.ObserveOutcome(outcome.Failed()); reason != "" {
			summary.Termination = domain.TerminationAborted
			summary.AbortReason = reason
			break
		}
		if reason := policy.CheckLatency(took, seq.Remaining()); reason != "" {
			summary.Termination = domain.TerminationAborted
			summary.AbortReason = reason
			break
		}

		switch outcome.Kind {
		case domain.OutcomeSuccess:
			rows = append(rows, domain.NewMetricRow(*record, *outcome.Metrics))

		case domain.OutcomeIncompatibleSource:
			h.logger.Info(ctx, "incompatible source, stopped for repository", map[string]interface{}{
				"repository": info.Name,
				"message":    shortMsg,
				"hash":       record.Hash,
				"error":      outcome.Err.Error(),
			})
			summary.Termination = domain.TerminationStopped
			break scan

		default:
			h.logger.Info(ctx, "error computing metrics, skipped commit", map[string]interface{}{
				"repository": info.Name,
				"message":    shortMsg,
				"hash":       record.Hash,
				"outcome":    outcome.Kind.String(),
				"error":      outcome.Err.Error(),
			})
			summary.Skipped++
		}
	}

	summary.Buffered = len(rows)
	return summary, h.finish(ctx, store, summary, rows)
}

// analyzeAt checks out hash and analyzes the resulting snapshot.
func (h *Harvester) analyzeAt(ctx context.Context, wc domain.WorkingCopy, hash string) (*domain.SnapshotMetrics, error) {
	if err := wc.Checkout(ctx, hash); err != nil {
		return nil, err
	}
	return h.analyzer.Analyze(ctx, wc.Root())
}

// finish applies the termination policy to the result table.
func (h *Harvester) finish(
	ctx context.Context,
	store domain.ResultStore,
	summary *domain.ScanSummary,
	rows []domain.MetricRow,
) error {
	fields := map[string]interface{}{
		"repository":  summary.Repository,
		"termination": string(summary.Termination),
		"visited":     summary.Visited,
		"buffered":    summary.Buffered,
		"skipped":     summary.Skipped,
	}

	switch {
	case summary.Termination == domain.TerminationAborted:
		fields["reason"] = summary.AbortReason
		h.logger.Warn(ctx, "aborted repository, discarding results", fields)
		if err := store.Discard(); err != nil {
			return fmt.Errorf("failed to discard result table: %w", err)
		}
		return nil

	case len(rows) == 0:
		h.logger.Warn(ctx, "found zero computable commits", fields)
		return nil
	}

	n, err := store.MergeAndPersist(rows)
	if err != nil {
		return fmt.Errorf("failed to persist results of %s: %w", summary.Repository, err)
	}
	summary.PersistedTo = store.Path()

	fields["rows"] = n
	fields["output"] = summary.PersistedTo
	h.logger.Info(ctx, "successfully processed repository", fields)
	return nil
}
