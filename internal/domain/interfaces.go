// Package domain defines the core business entities and interfaces for metric-harvest.
// This package contains no external dependencies and represents the innermost layer
// of the CLEAN architecture.
package domain

import (
	"context"
	"errors"
	"strings"
)

// Domain errors for repository access, traversal and persistence.
var (
	// ErrInvalidRepositoryURL indicates the remote URL is empty or has no path segment.
	ErrInvalidRepositoryURL = errors.New("invalid repository URL")

	// ErrCloneFailure indicates the remote could not be cloned. Fatal for the scan.
	ErrCloneFailure = errors.New("failed to clone repository")

	// ErrRepositoryNotFound indicates an existing working copy is not a valid Git repository.
	ErrRepositoryNotFound = errors.New("git repository not found at specified path")

	// ErrNoMainBranch indicates no integration branch candidate could be resolved. Fatal for the scan.
	ErrNoMainBranch = errors.New("no main branch found")

	// ErrWorkingCopyBusy indicates another task already holds the checkout lease.
	ErrWorkingCopyBusy = errors.New("working copy is already checked out by another task")

	// ErrResultTableCorrupt indicates the persisted result table could not be parsed.
	ErrResultTableCorrupt = errors.New("result table is corrupt")
)

// IncompatibleSourceSignature is the diagnostic prefix reported by the analyzer for
// sources written in a dialect current tooling can no longer parse.
const IncompatibleSourceSignature = "Missing parentheses in call to 'print'. Did you mean print(...)?"

// AnalysisError is a file-level failure reported by a SnapshotAnalyzer.
type AnalysisError struct {
	File    string
	Message string
}

func (e *AnalysisError) Error() string {
	return "analysis failed for " + e.File + ": " + e.Message
}

// Incompatible reports whether the failure carries the incompatible-source signature.
func (e *AnalysisError) Incompatible() bool {
	return strings.HasPrefix(e.Message, IncompatibleSourceSignature)
}

// WorkingCopy is an exclusive handle on a repository's checked-out tree.
// Only one WorkingCopy may be held per repository at a time.
type WorkingCopy interface {
	// Root returns the directory the snapshot is checked out into.
	Root() string

	// Checkout force-checks-out the given commit into Root.
	Checkout(ctx context.Context, hash string) error

	// Release returns the lease. Further calls to Checkout fail.
	Release()
}

// CommitSequence is a lazy, finite, forward-only sequence of commits to visit.
type CommitSequence interface {
	// Next returns the next commit record, or false when the sequence is exhausted.
	Next(ctx context.Context) (*CommitRecord, bool, error)

	// Total returns the number of commits in the sequence.
	Total() int

	// Remaining returns the number of commits not yet returned by Next.
	Remaining() int
}

// SequenceOptions controls commit traversal.
type SequenceOptions struct {
	// Extensions restricts the sequence to commits touching at least one such file.
	Extensions []string

	// NewestFirst reverses the default oldest-first order.
	NewestFirst bool

	// ResumeAfter, when non-empty, bounds the traversal to commits newer than this hash.
	ResumeAfter string
}

// Repository is an opened, checked-out working copy of a remote repository.
type Repository interface {
	// Info returns the repository description including the resolved main branch.
	Info() RepositoryInfo

	// Acquire takes the exclusive checkout lease. Returns ErrWorkingCopyBusy when held.
	Acquire() (WorkingCopy, error)

	// Commits lists the commits to visit on the main branch.
	Commits(ctx context.Context, opts SequenceOptions) (CommitSequence, error)

	// Close releases any resources held by the repository.
	Close() error
}

// SnapshotAnalyzer computes metrics for the snapshot checked out at root.
// File-level failures are returned as *AnalysisError.
type SnapshotAnalyzer interface {
	Analyze(ctx context.Context, root string) (*SnapshotMetrics, error)
}

// UnitExtractor extracts function-level units from one source file.
type UnitExtractor interface {
	// Supports reports whether the extractor understands the given file name.
	Supports(filename string) bool

	// Units parses source and returns its units.
	Units(filename string, source []byte) ([]Unit, error)
}

// ResultStore persists the result table of one repository.
type ResultStore interface {
	// Path returns the backing file path.
	Path() string

	// Load reads the persisted rows. Returns nil rows when the table does not exist.
	Load() ([]MetricRow, error)

	// NewestHash returns the hash of the newest persisted commit, or "" when none.
	NewestHash() (string, error)

	// MergeAndPersist merges rows into the persisted table and rewrites it.
	MergeAndPersist(rows []MetricRow) (int, error)

	// Discard deletes the persisted table if it exists.
	Discard() error
}

// ResultExporter ships the merged cross-repository table to an external sink.
type ResultExporter interface {
	// Name identifies the sink in logs.
	Name() string

	// Export writes rows to the sink, replacing what a previous export wrote.
	Export(ctx context.Context, rows []RepoMetricRow) error
}

// ResultCatalog gives access to every per-repository result table of a data directory.
type ResultCatalog interface {
	// RepositoryTables returns each per-repository table keyed by repository name.
	// The merged table itself is not included.
	RepositoryTables() (map[string][]MetricRow, error)

	// WriteMerged replaces the merged table and returns its path.
	WriteMerged(rows []RepoMetricRow) (string, error)
}

// RepositoryList is the table of repositories driven by a batch run.
type RepositoryList interface {
	// Entries returns the listed repositories in table order.
	Entries() ([]BatchEntry, error)

	// MarkComputed flags the entry at index as computed and persists the table.
	MarkComputed(index int) error
}

// SummaryWriter writes command results to an output destination.
type SummaryWriter interface {
	WriteSummary(summary *ScanSummary) error
	WritePath(path string) error
}
