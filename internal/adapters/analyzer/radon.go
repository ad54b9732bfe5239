// Package analyzer provides the SnapshotAnalyzer backed by the radon command-line tool.
package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// DefaultCommand is the radon executable looked up on PATH.
const DefaultCommand = "radon"

// Logger defines the logging interface for the analyzer.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
}

// CommandRunner runs an external command in dir and returns its standard output.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// pass identifies one radon subcommand.
type pass int

const (
	passRaw pass = iota
	passCC
	passMI
	passHal
)

func (p pass) args() []string {
	switch p {
	case passRaw:
		return []string{"raw", "-j", "."}
	case passCC:
		return []string{"cc", "-j", "--no-assert", "."}
	case passMI:
		return []string{"mi", "-j", "."}
	default:
		return []string{"hal", "-j", "."}
	}
}

func (p pass) String() string {
	return [...]string{"raw", "cc", "mi", "hal"}[p]
}

// Radon implements domain.SnapshotAnalyzer by running radon's raw, cc, mi and hal
// passes over the checked-out tree.
type Radon struct {
	command string
	run     CommandRunner
	logger  Logger
}

// NewRadon creates a radon analyzer. An empty command uses DefaultCommand.
func NewRadon(command string, log Logger) *Radon {
	if command == "" {
		command = DefaultCommand
	}
	return &Radon{command: command, run: execCommand, logger: log}
}

// WithRunner replaces the process runner. Used by tests.
func (r *Radon) WithRunner(run CommandRunner) *Radon {
	r.run = run
	return r
}

// Analyze runs the four passes concurrently over root and aggregates their output.
// The first file-level failure, in pass order raw, cc, mi, hal, is returned as
// *domain.AnalysisError. Process failures are returned as plain errors.
func (r *Radon) Analyze(ctx context.Context, root string) (*domain.SnapshotMetrics, error) {
	passes := []pass{passRaw, passCC, passMI, passHal}
	outputs := make([][]byte, len(passes))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range passes {
		g.Go(func() error {
			out, err := r.run(gctx, root, r.command, p.args()...)
			if err != nil {
				return fmt.Errorf("radon %s failed: %w", p, err)
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var acc accumulator
	for i, p := range passes {
		if err := acc.consume(p, outputs[i]); err != nil {
			return nil, err
		}
	}

	r.logger.Debug(ctx, "analyzed snapshot", map[string]interface{}{
		"root":        root,
		"cc_blocks":   len(acc.cc),
		"mi_files":    len(acc.mi),
		"halstead":    len(acc.halstead.volume),
		"raw_loc_sum": acc.raw.LOC,
	})

	return acc.metrics(), nil
}

type rawFile struct {
	LOC      int `json:"loc"`
	LLOC     int `json:"lloc"`
	SLOC     int `json:"sloc"`
	Comments int `json:"comments"`
}

type ccBlock struct {
	Complexity float64 `json:"complexity"`
}

type miFile struct {
	MI float64 `json:"mi"`
}

type halFile struct {
	Total halstead `json:"total"`
}

type halstead struct {
	Vocabulary float64 `json:"vocabulary"`
	Length     float64 `json:"length"`
	Volume     float64 `json:"volume"`
	Difficulty float64 `json:"difficulty"`
	Effort     float64 `json:"effort"`
	Time       float64 `json:"time"`
	Bugs       float64 `json:"bugs"`
}

type fileError struct {
	Error *string `json:"error"`
}

// decodePass splits one pass's output into files sorted by path and surfaces
// the first file error.
func decodePass(p pass, out []byte) ([]string, map[string]json.RawMessage, error) {
	files := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(out)) > 0 {
		if err := json.Unmarshal(out, &files); err != nil {
			return nil, nil, fmt.Errorf("failed to decode radon %s output: %w", p, err)
		}
	}

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		body := bytes.TrimSpace(files[path])
		if len(body) == 0 || body[0] != '{' {
			continue
		}
		var fe fileError
		if err := json.Unmarshal(body, &fe); err != nil {
			return nil, nil, fmt.Errorf("failed to decode radon %s entry for %s: %w", p, path, err)
		}
		if fe.Error != nil {
			return nil, nil, &domain.AnalysisError{File: cleanPath(path), Message: *fe.Error}
		}
	}
	return paths, files, nil
}

func execCommand(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	return out, nil
}

func cleanPath(path string) string {
	return strings.TrimPrefix(path, "./")
}
