// Package domain defines the core business entities and interfaces for metric-harvest.
package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// RepositoryInfo describes a repository whose history is being harvested.
type RepositoryInfo struct {
	// URL is the remote URL the working copy was cloned from.
	URL string

	// Name is the short name derived from the last URL path segment.
	// It names both the working copy directory and the result file.
	Name string

	// Path is the local working copy directory.
	Path string

	// MainBranch is the resolved integration branch (e.g. "main", "origin/master").
	MainBranch string
}

// CommitRecord holds the version-control facts of one visited commit.
type CommitRecord struct {
	Hash         string
	Author       string
	Date         time.Time
	Message      string
	IsMerge      bool
	LinesChanged int
	Insertions   int
	Deletions    int

	// Delta maintainability measures. Nil when the commit changes no unit.
	DMMUnitSize        *float64
	DMMUnitComplexity  *float64
	DMMUnitInterfacing *float64
}

// SnapshotMetrics holds the static-analysis measures of one checked-out snapshot.
// Raw size measures are totals across all files; the remaining fields are
// arithmetic means and are nil when no unit produced a measurement.
type SnapshotMetrics struct {
	LOC      int
	LLOC     int
	SLOC     int
	Comments int

	AvgCC         *float64
	AvgMI         *float64
	AvgVocabulary *float64
	AvgLength     *float64
	AvgVolume     *float64
	AvgDifficulty *float64
	AvgEffort     *float64
	AvgTime       *float64
	AvgBugs       *float64
}

// MetricRow is one row of the persisted result table.
type MetricRow struct {
	// ID is the dense, zero-based row index. It is re-derived on every persist.
	ID int

	CommitRecord
	SnapshotMetrics
}

// ResultPath returns the default result table of a repository: <dataDir>/results/<name>.csv.
func ResultPath(dataDir, repoName string) string {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	return filepath.Join(dataDir, "results", repoName+".csv")
}

// NormalizeLineEndings turns every CRLF into LF, including pairs formed by
// earlier replacements, so the result contains no "\r\n".
func NormalizeLineEndings(s string) string {
	for strings.Contains(s, "\r\n") {
		s = strings.ReplaceAll(s, "\r\n", "\n")
	}
	return s
}

// BatchEntry is one repository listed in a batch table.
type BatchEntry struct {
	Name     string
	URL      string
	Computed bool
}

// RepoMetricRow is one row of the merged cross-repository table.
type RepoMetricRow struct {
	RepoName string
	MetricRow
}

// NewMetricRow merges a commit record with the metrics of its snapshot.
func NewMetricRow(record CommitRecord, metrics SnapshotMetrics) MetricRow {
	return MetricRow{CommitRecord: record, SnapshotMetrics: metrics}
}

// OutcomeKind tags the result of one snapshot analysis.
type OutcomeKind int

// Outcome kinds.
const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeIncompatibleSource
	OutcomeInvalidCode
	OutcomeUnknownFailure
)

// String returns the log-friendly name of the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeIncompatibleSource:
		return "incompatible_source"
	case OutcomeInvalidCode:
		return "invalid_code"
	case OutcomeUnknownFailure:
		return "unknown_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// HarvestOutcome is the classified result of analyzing one commit.
// Metrics is set only for OutcomeSuccess; Err only for the other kinds.
type HarvestOutcome struct {
	Kind    OutcomeKind
	Metrics *SnapshotMetrics
	Err     error
}

// Failed reports whether the outcome counts as a failure for the error-rate breaker.
func (o HarvestOutcome) Failed() bool {
	return o.Kind != OutcomeSuccess
}

// Unit is a function-level code unit used by the delta maintainability model.
type Unit struct {
	Name       string
	StartLine  int
	EndLine    int
	NLOC       int
	Complexity int
	Parameters int
}

// Termination describes how a repository scan ended.
type Termination string

// Termination kinds. Completed and Stopped are natural ends whose rows are
// persisted; Aborted discards all output.
const (
	TerminationCompleted Termination = "completed"
	TerminationStopped   Termination = "stopped"
	TerminationAborted   Termination = "aborted"
)

// ScanSummary reports the result of one repository scan.
type ScanSummary struct {
	Repository  string
	Termination Termination
	Visited     int
	Buffered    int
	Skipped     int
	PersistedTo string
	AbortReason string
}

// Default values shared by the adapters and the use cases.
const (
	DefaultDataDir          = "data"
	DefaultSourceExtension  = ".py"
	DefaultWindowCapacity   = 100
	DefaultMaxWindowErrors  = 5
	DefaultMaxCommitLatency = 60 * time.Second
	DefaultTailLatency      = 20 * time.Second
	DefaultTailThreshold    = 1000
	DefaultMessageMaxLen    = 100
)
