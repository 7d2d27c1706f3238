// Package metrics keeps the bounded resource-sample history and derives
// short-window growth trends from it.
package metrics

import (
	"github.com/psantana5/svcguard/internal/store"
	"github.com/psantana5/svcguard/pkg/models"
)

const (
	// trendWindow is how many samples back the growth comparison reaches
	trendWindow = 30
	// growthFlagPct is the relative RSS increase treated as suspicious
	growthFlagPct = 20.0
)

// Growth is the result of a leak-heuristic comparison
type Growth struct {
	Pct     float64 // relative RSS change vs. trendWindow samples ago
	Flagged bool    // true when the increase exceeds growthFlagPct
}

// Trend records samples and computes growth over the retained window
type Trend struct {
	store store.Store
}

// NewTrend creates a Trend over the given store
func NewTrend(st store.Store) *Trend {
	return &Trend{store: st}
}

// Record appends a sample; the store evicts beyond its retention cap
func (t *Trend) Record(sample models.MetricSample) error {
	return t.store.RecordSample(sample)
}

// DetectGrowth compares the current service RSS against the sample
// recorded trendWindow samples ago. Returns nil when there is not
// enough history or the old value is unusable. This is a heuristic
// leak detector: load spikes can false-positive, slow leaks are the
// risk it exists to catch.
func (t *Trend) DetectGrowth(currentRSSMB float64) (*Growth, error) {
	samples, err := t.store.Samples()
	if err != nil {
		return nil, err
	}
	if len(samples) < trendWindow {
		return nil, nil
	}

	old := samples[len(samples)-trendWindow].ServiceRSSMB
	if old <= 0 {
		return nil, nil
	}

	pct := (currentRSSMB - old) / old * 100
	return &Growth{Pct: pct, Flagged: pct > growthFlagPct}, nil
}

// Latest returns the most recent sample, nil if none recorded
func (t *Trend) Latest() (*models.MetricSample, error) {
	samples, err := t.store.Samples()
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}
	s := samples[len(samples)-1]
	return &s, nil
}
