package store

import (
	"sync"
	"time"

	"github.com/psantana5/svcguard/pkg/models"
)

// MemoryStore is an in-memory implementation of Store for tests
type MemoryStore struct {
	mu         sync.Mutex
	state      *models.WatchdogState
	events     []models.Event
	samples    []models.MetricSample
	maxSamples int
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(maxSamples int) *MemoryStore {
	if maxSamples <= 0 {
		maxSamples = 1440
	}
	return &MemoryStore{maxSamples: maxSamples}
}

func (m *MemoryStore) LoadState() (*models.WatchdogState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return models.NewWatchdogState(), nil
	}
	st := *m.state
	st.LastIssues = append([]models.IssueCode(nil), m.state.LastIssues...)
	return &st, nil
}

func (m *MemoryStore) SaveState(state *models.WatchdogState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := *state
	st.LastIssues = append([]models.IssueCode(nil), state.LastIssues...)
	m.state = &st
	return nil
}

func (m *MemoryStore) AppendEvent(kind, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, models.Event{
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Message:   message,
	})
	return nil
}

func (m *MemoryStore) RecentEvents(limit int) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	// newest first
	var out []models.Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

func (m *MemoryStore) RecordSample(sample models.MetricSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, sample)
	if len(m.samples) > m.maxSamples {
		m.samples = m.samples[len(m.samples)-m.maxSamples:]
	}
	return nil
}

func (m *MemoryStore) Samples() ([]models.MetricSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.MetricSample(nil), m.samples...), nil
}

func (m *MemoryStore) SampleCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples), nil
}

func (m *MemoryStore) Close() error {
	return nil
}
