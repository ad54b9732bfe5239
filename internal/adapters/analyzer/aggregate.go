package analyzer

import (
	"fmt"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/stat"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// accumulator collects the per-pass measures of one snapshot.
type accumulator struct {
	raw      rawFile
	cc       []float64
	mi       []float64
	halstead struct {
		vocabulary, length, volume, difficulty, effort, time, bugs []float64
	}
}

func (a *accumulator) consume(p pass, out []byte) error {
	paths, files, err := decodePass(p, out)
	if err != nil {
		return err
	}

	for _, path := range paths {
		body := files[path]
		switch p {
		case passRaw:
			var f rawFile
			if err := json.Unmarshal(body, &f); err != nil {
				return fmt.Errorf("failed to decode raw metrics for %s: %w", path, err)
			}
			a.raw.LOC += f.LOC
			a.raw.LLOC += f.LLOC
			a.raw.SLOC += f.SLOC
			a.raw.Comments += f.Comments

		case passCC:
			var blocks []ccBlock
			if err := json.Unmarshal(body, &blocks); err != nil {
				return fmt.Errorf("failed to decode complexity blocks for %s: %w", path, err)
			}
			for _, b := range blocks {
				a.cc = append(a.cc, b.Complexity)
			}

		case passMI:
			var f miFile
			if err := json.Unmarshal(body, &f); err != nil {
				return fmt.Errorf("failed to decode maintainability index for %s: %w", path, err)
			}
			a.mi = append(a.mi, f.MI)

		case passHal:
			var f halFile
			if err := json.Unmarshal(body, &f); err != nil {
				return fmt.Errorf("failed to decode halstead metrics for %s: %w", path, err)
			}
			h := &a.halstead
			h.vocabulary = append(h.vocabulary, f.Total.Vocabulary)
			h.length = append(h.length, f.Total.Length)
			h.volume = append(h.volume, f.Total.Volume)
			h.difficulty = append(h.difficulty, f.Total.Difficulty)
			h.effort = append(h.effort, f.Total.Effort)
			h.time = append(h.time, f.Total.Time)
			h.bugs = append(h.bugs, f.Total.Bugs)
		}
	}
	return nil
}

func (a *accumulator) metrics() *domain.SnapshotMetrics {
	h := a.halstead
	return &domain.SnapshotMetrics{
		LOC:           a.raw.LOC,
		LLOC:          a.raw.LLOC,
		SLOC:          a.raw.SLOC,
		Comments:      a.raw.Comments,
		AvgCC:         mean(a.cc),
		AvgMI:         mean(a.mi),
		AvgVocabulary: mean(h.vocabulary),
		AvgLength:     mean(h.length),
		AvgVolume:     mean(h.volume),
		AvgDifficulty: mean(h.difficulty),
		AvgEffort:     mean(h.effort),
		AvgTime:       mean(h.time),
		AvgBugs:       mean(h.bugs),
	}
}

// mean returns the arithmetic mean of xs, or nil when xs is empty.
func mean(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	m := stat.Mean(xs, nil)
	return &m
}
