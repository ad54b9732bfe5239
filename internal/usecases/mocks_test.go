package usecases

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// logEntry is one call recorded by mockLogger.
type logEntry struct {
	level  string
	msg    string
	fields map[string]interface{}
}

// mockLogger implements the Logger interface and records every call.
type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (m *mockLogger) record(level, msg string, fields map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (m *mockLogger) Info(_ context.Context, msg string, fields map[string]interface{}) {
	m.record("info", msg, fields)
}

func (m *mockLogger) Debug(_ context.Context, msg string, fields map[string]interface{}) {
	m.record("debug", msg, fields)
}

func (m *mockLogger) Warn(_ context.Context, msg string, fields map[string]interface{}) {
	m.record("warn", msg, fields)
}

func (m *mockLogger) Error(_ context.Context, msg string, _ error, fields map[string]interface{}) {
	m.record("error", msg, fields)
}

func (m *mockLogger) has(level, msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

// fakeClock advances only when told to.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// mockSequence implements domain.CommitSequence over a fixed slice.
type mockSequence struct {
	records []domain.CommitRecord
	pos     int
	nextErr error
}

func (s *mockSequence) Next(_ context.Context) (*domain.CommitRecord, bool, error) {
	if s.nextErr != nil {
		return nil, false, s.nextErr
	}
	if s.pos >= len(s.records) {
		return nil, false, nil
	}
	rec := s.records[s.pos]
	s.pos++
	return &rec, true, nil
}

func (s *mockSequence) Total() int     { return len(s.records) }
func (s *mockSequence) Remaining() int { return len(s.records) - s.pos }

// mockWorkingCopy records checkouts.
type mockWorkingCopy struct {
	checkouts   []string
	checkoutErr map[string]error
	released    bool
}

func (w *mockWorkingCopy) Root() string { return "/work/repo" }

func (w *mockWorkingCopy) Checkout(_ context.Context, hash string) error {
	w.checkouts = append(w.checkouts, hash)
	return w.checkoutErr[hash]
}

func (w *mockWorkingCopy) Release() { w.released = true }

// mockRepository implements domain.Repository.
type mockRepository struct {
	info       domain.RepositoryInfo
	records    []domain.CommitRecord
	wc         *mockWorkingCopy
	acquireErr error
	commitsErr error
	nextErr    error
	gotOpts    domain.SequenceOptions
}

func newMockRepository(name string, records []domain.CommitRecord) *mockRepository {
	return &mockRepository{
		info:    domain.RepositoryInfo{Name: name, URL: "https://example.com/org/" + name, MainBranch: "main"},
		records: records,
		wc:      &mockWorkingCopy{checkoutErr: map[string]error{}},
	}
}

func (r *mockRepository) Info() domain.RepositoryInfo { return r.info }

func (r *mockRepository) Acquire() (domain.WorkingCopy, error) {
	if r.acquireErr != nil {
		return nil, r.acquireErr
	}
	return r.wc, nil
}

func (r *mockRepository) Commits(_ context.Context, opts domain.SequenceOptions) (domain.CommitSequence, error) {
	r.gotOpts = opts
	if r.commitsErr != nil {
		return nil, r.commitsErr
	}
	records := r.records
	if opts.ResumeAfter != "" {
		for i, rec := range records {
			if rec.Hash == opts.ResumeAfter {
				records = records[i+1:]
				break
			}
		}
	}
	return &mockSequence{records: records, nextErr: r.nextErr}, nil
}

func (r *mockRepository) Close() error { return nil }

// analysisResult is the canned result for one commit.
type analysisResult struct {
	metrics *domain.SnapshotMetrics
	err     error
	took    time.Duration
}

// mockAnalyzer returns canned results keyed by the hash last checked out.
type mockAnalyzer struct {
	wc      *mockWorkingCopy
	clock   *fakeClock
	results map[string]analysisResult
}

func (a *mockAnalyzer) Analyze(_ context.Context, _ string) (*domain.SnapshotMetrics, error) {
	hash := a.wc.checkouts[len(a.wc.checkouts)-1]
	res, ok := a.results[hash]
	if !ok {
		res = analysisResult{took: time.Second}
	}
	a.clock.Advance(res.took)
	if res.err != nil {
		return nil, res.err
	}
	if res.metrics == nil {
		return &domain.SnapshotMetrics{LOC: 10, LLOC: 8, SLOC: 8, Comments: 1}, nil
	}
	return res.metrics, nil
}

// commits builds n records with ascending dates and hashes c01, c02, ...
func commits(n int) []domain.CommitRecord {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.CommitRecord, n)
	for i := range out {
		out[i] = domain.CommitRecord{
			Hash:         fmt.Sprintf("c%02d", i+1),
			Author:       "Grace Hopper",
			Date:         base.Add(time.Duration(i) * time.Hour),
			Message:      fmt.Sprintf("commit number %d\n\nwith body", i+1),
			LinesChanged: 2,
			Insertions:   1,
			Deletions:    1,
		}
	}
	return out
}

var (
	errIncompatible = &domain.AnalysisError{
		File:    "legacy.py",
		Message: domain.IncompatibleSourceSignature + " (<unknown>, line 4)",
	}
	errInvalid = &domain.AnalysisError{File: "broken.py", Message: "invalid syntax (<unknown>, line 1)"}
)
