package usecases

import (
	"fmt"
	"time"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// OutcomeWindow is a fixed-capacity FIFO of failure flags over the most
// recently attempted commits.
type OutcomeWindow struct {
	flags    []bool
	next     int
	size     int
	failures int
}

// NewOutcomeWindow creates an empty window. A non-positive capacity uses the default.
func NewOutcomeWindow(capacity int) *OutcomeWindow {
	if capacity <= 0 {
		capacity = domain.DefaultWindowCapacity
	}
	return &OutcomeWindow{flags: make([]bool, capacity)}
}

// Push appends a flag, evicting the oldest one when the window is full.
func (w *OutcomeWindow) Push(failed bool) {
	if w.size == len(w.flags) {
		if w.flags[w.next] {
			w.failures--
		}
	} else {
		w.size++
	}
	w.flags[w.next] = failed
	if failed {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.flags)
}

// Failures returns the number of failure flags in the window.
func (w *OutcomeWindow) Failures() int {
	return w.failures
}

// Len returns the number of flags in the window.
func (w *OutcomeWindow) Len() int {
	return w.size
}

// Cap returns the window capacity.
func (w *OutcomeWindow) Cap() int {
	return len(w.flags)
}

// PolicyConfig holds the circuit-breaker thresholds.
type PolicyConfig struct {
	WindowCapacity   int           `yaml:"window_capacity"`
	MaxWindowErrors  int           `yaml:"max_window_errors"`
	MaxCommitLatency time.Duration `yaml:"max_commit_latency"`
	TailLatency      time.Duration `yaml:"tail_latency"`
	TailThreshold    int           `yaml:"tail_threshold"`
}

// DefaultPolicyConfig returns the default thresholds.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		WindowCapacity:   domain.DefaultWindowCapacity,
		MaxWindowErrors:  domain.DefaultMaxWindowErrors,
		MaxCommitLatency: domain.DefaultMaxCommitLatency,
		TailLatency:      domain.DefaultTailLatency,
		TailThreshold:    domain.DefaultTailThreshold,
	}
}

// withDefaults fills zero fields from DefaultPolicyConfig.
func (c PolicyConfig) withDefaults() PolicyConfig {
	d := DefaultPolicyConfig()
	if c.WindowCapacity <= 0 {
		c.WindowCapacity = d.WindowCapacity
	}
	if c.MaxWindowErrors <= 0 {
		c.MaxWindowErrors = d.MaxWindowErrors
	}
	if c.MaxCommitLatency <= 0 {
		c.MaxCommitLatency = d.MaxCommitLatency
	}
	if c.TailLatency <= 0 {
		c.TailLatency = d.TailLatency
	}
	if c.TailThreshold <= 0 {
		c.TailThreshold = d.TailThreshold
	}
	return c
}

// AbortPolicy decides when a repository scan is abandoned. It is owned by one
// scan and is not safe for concurrent use.
type AbortPolicy struct {
	cfg    PolicyConfig
	window *OutcomeWindow
}

// NewAbortPolicy creates a policy with an empty window.
func NewAbortPolicy(cfg PolicyConfig) *AbortPolicy {
	cfg = cfg.withDefaults()
	return &AbortPolicy{cfg: cfg, window: NewOutcomeWindow(cfg.WindowCapacity)}
}

// ObserveOutcome checks the error-rate breaker and then records failed.
// The window is inspected before the current flag is added, so a run of
// failures trips the breaker one commit after the threshold is exceeded.
// It returns a non-empty reason when the scan must abort.
func (p *AbortPolicy) ObserveOutcome(failed bool) string {
	prior := p.window.Failures()
	p.window.Push(failed)

	if prior > p.cfg.MaxWindowErrors {
		return fmt.Sprintf("%d of the last %d commits failed (limit %d)",
			prior, p.window.Cap(), p.cfg.MaxWindowErrors)
	}
	return ""
}

// CheckLatency checks the latency breaker for one commit's checkout and analysis.
// It returns a non-empty reason when the scan must abort.
func (p *AbortPolicy) CheckLatency(took time.Duration, remaining int) string {
	if took > p.cfg.MaxCommitLatency {
		return fmt.Sprintf("commit took %s (limit %s)", took.Round(time.Millisecond), p.cfg.MaxCommitLatency)
	}
	if took > p.cfg.TailLatency && remaining > p.cfg.TailThreshold {
		return fmt.Sprintf("commit took %s with %d commits remaining (limit %s above %d remaining)",
			took.Round(time.Millisecond), remaining, p.cfg.TailLatency, p.cfg.TailThreshold)
	}
	return ""
}

// Failures returns the number of failures currently in the window.
func (p *AbortPolicy) Failures() int {
	return p.window.Failures()
}
