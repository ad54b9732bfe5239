// Package dmm implements the delta maintainability model: the proportion of a
// commit's unit-level changes that moved code towards low-risk units.
package dmm

import (
	"context"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// Risk thresholds. A unit at or below the threshold is low risk.
const (
	UnitSizeThreshold        = 15
	UnitComplexityThreshold  = 5
	UnitInterfacingThreshold = 2
)

// Property is one of the three unit properties the model measures.
type Property int

// Measured properties.
const (
	UnitSize Property = iota
	UnitComplexity
	UnitInterfacing
)

var properties = []Property{UnitSize, UnitComplexity, UnitInterfacing}

// LowRisk reports whether u is low risk for the property.
func (p Property) LowRisk(u domain.Unit) bool {
	switch p {
	case UnitSize:
		return u.NLOC <= UnitSizeThreshold
	case UnitComplexity:
		return u.Complexity <= UnitComplexityThreshold
	case UnitInterfacing:
		return u.Parameters <= UnitInterfacingThreshold
	default:
		return false
	}
}

// FileChange is the content of one modified file before and after a commit.
// Before is nil for added files and After is nil for deleted files.
type FileChange struct {
	Path   string
	Before []byte
	After  []byte
}

// Result holds the three proportions. A nil field means the commit changed no
// unit for that property.
type Result struct {
	UnitSize        *float64
	UnitComplexity  *float64
	UnitInterfacing *float64
}

// Logger defines the logging interface for the calculator.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
}

// Calculator computes delta maintainability for a set of file changes.
type Calculator struct {
	extractor domain.UnitExtractor
	logger    Logger
}

// NewCalculator creates a Calculator backed by the given unit extractor.
func NewCalculator(extractor domain.UnitExtractor, log Logger) *Calculator {
	return &Calculator{extractor: extractor, logger: log}
}

// riskDelta is the change in low-risk and high-risk NLOC.
type riskDelta struct {
	low  int
	high int
}

// Compute returns the delta maintainability of the given changes. Files the
// extractor does not support are ignored; files that fail to parse are skipped.
func (c *Calculator) Compute(ctx context.Context, changes []FileChange) Result {
	deltas := make(map[Property]*riskDelta, len(properties))
	supported := false

	for _, change := range changes {
		if !c.extractor.Supports(change.Path) {
			continue
		}

		before, err := c.units(change.Path, change.Before)
		if err != nil {
			c.logger.Debug(ctx, "skipping unparseable file for dmm", map[string]interface{}{
				"path":  change.Path,
				"side":  "before",
				"error": err.Error(),
			})
			continue
		}
		after, err := c.units(change.Path, change.After)
		if err != nil {
			c.logger.Debug(ctx, "skipping unparseable file for dmm", map[string]interface{}{
				"path":  change.Path,
				"side":  "after",
				"error": err.Error(),
			})
			continue
		}

		supported = true
		for _, p := range properties {
			lowBefore, highBefore := riskProfile(before, p)
			lowAfter, highAfter := riskProfile(after, p)
			d := deltas[p]
			if d == nil {
				d = &riskDelta{}
				deltas[p] = d
			}
			d.low += lowAfter - lowBefore
			d.high += highAfter - highBefore
		}
	}

	if !supported {
		return Result{}
	}

	return Result{
		UnitSize:        goodChangeProportion(*deltas[UnitSize]),
		UnitComplexity:  goodChangeProportion(*deltas[UnitComplexity]),
		UnitInterfacing: goodChangeProportion(*deltas[UnitInterfacing]),
	}
}

func (c *Calculator) units(path string, source []byte) ([]domain.Unit, error) {
	if source == nil {
		return nil, nil
	}
	return c.extractor.Units(path, source)
}

// riskProfile sums unit NLOC into low-risk and high-risk buckets.
func riskProfile(units []domain.Unit, p Property) (low, high int) {
	for _, u := range units {
		if p.LowRisk(u) {
			low += u.NLOC
		} else {
			high += u.NLOC
		}
	}
	return low, high
}

// goodChangeProportion returns good / (good + bad) change. Growth of low-risk
// code and shrinkage of high-risk code are good; the opposite is bad.
func goodChangeProportion(d riskDelta) *float64 {
	var good, bad int
	if d.low >= 0 {
		good = d.low
	} else {
		bad = -d.low
	}
	if d.high >= 0 {
		bad += d.high
	} else {
		good += -d.high
	}

	total := good + bad
	if total == 0 {
		return nil
	}
	proportion := float64(good) / float64(total)
	return &proportion
}
