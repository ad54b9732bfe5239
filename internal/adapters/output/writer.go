// Package output provides adapters for writing application output.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// Writer writes command results to the configured output destination.
// By default, it writes to stdout. Logs go to stderr, so stdout carries only results.
type Writer struct {
	out io.Writer
}

// NewWriter creates a new Writer that writes to stdout.
func NewWriter() *Writer {
	return &Writer{out: os.Stdout}
}

// NewWriterWithOutput creates a new Writer with a custom output destination.
// This is useful for testing.
func NewWriterWithOutput(out io.Writer) *Writer {
	return &Writer{out: out}
}

// WriteSummary writes one tab-separated line per scan:
// repository, termination, visited, buffered, skipped and the persisted path
// ("-" when nothing was written).
func (w *Writer) WriteSummary(summary *domain.ScanSummary) error {
	path := summary.PersistedTo
	if path == "" {
		path = "-"
	}
	_, err := fmt.Fprintf(w.out, "%s\t%s\t%d\t%d\t%d\t%s\n",
		summary.Repository,
		summary.Termination,
		summary.Visited,
		summary.Buffered,
		summary.Skipped,
		path,
	)
	return err
}

// WritePath writes a single file path on its own line.
func (w *Writer) WritePath(path string) error {
	_, err := fmt.Fprintln(w.out, path)
	return err
}
