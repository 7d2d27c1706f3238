package store

import (
	"github.com/psantana5/svcguard/pkg/models"
)

// Store defines durable persistence for the watchdog: the singleton
// state record, the append-only event log, and the ring-capped metric
// samples. SQLite is the production implementation; MemoryStore backs
// tests.
type Store interface {
	// State record
	LoadState() (*models.WatchdogState, error)
	SaveState(state *models.WatchdogState) error

	// Event log (append-only)
	AppendEvent(kind, message string) error
	RecentEvents(limit int) ([]models.Event, error)

	// Metric samples (oldest evicted beyond the retention cap)
	RecordSample(sample models.MetricSample) error
	Samples() ([]models.MetricSample, error)
	SampleCount() (int, error)

	// Lifecycle
	Close() error
}
