package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/psantana5/svcguard/pkg/models"
)

// SQLiteStore is the SQLite-backed implementation of the data store
type SQLiteStore struct {
	db         *sql.DB
	mu         sync.Mutex
	maxSamples int
}

// NewSQLiteStore opens (creating if needed) the watchdog database inside
// stateDir. maxSamples caps the metric sample ring.
func NewSQLiteStore(stateDir string, maxSamples int) (*SQLiteStore, error) {
	if maxSamples <= 0 {
		maxSamples = 1440
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir %s: %w", stateDir, err)
	}

	// WAL for concurrency-tolerant reads, busy timeout for the rare
	// overlap between a check run and a status query
	dbPath := filepath.Join(stateDir, "watchdog.db")
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, maxSamples: maxSamples}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		kind TEXT NOT NULL,
		message TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		mem_used_pct REAL NOT NULL,
		mem_avail_mb REAL NOT NULL,
		disk_used_pct REAL NOT NULL,
		service_rss_mb REAL NOT NULL,
		aux_proc_mb REAL NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// LoadState returns the singleton state record, creating the default on
// first use.
func (s *SQLiteStore) LoadState() (*models.WatchdogState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data string
	err := s.db.QueryRow("SELECT data FROM state WHERE id = 1").Scan(&data)
	if err == sql.ErrNoRows {
		return models.NewWatchdogState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	var state models.WatchdogState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return &state, nil
}

// SaveState persists the full state record
func (s *SQLiteStore) SaveState(state *models.WatchdogState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT INTO state (id, data) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET data = excluded.data",
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// AppendEvent writes one durable event log entry
func (s *SQLiteStore) AppendEvent(kind, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO events (timestamp, kind, message) VALUES (?, ?, ?)",
		time.Now().UTC(), kind, message,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first
func (s *SQLiteStore) RecentEvents(limit int) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		"SELECT timestamp, kind, message FROM events ORDER BY id DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.Timestamp, &e.Kind, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecordSample appends a metric sample, evicting the oldest rows beyond
// the retention cap.
func (s *SQLiteStore) RecordSample(sample models.MetricSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO metrics (ts, mem_used_pct, mem_avail_mb, disk_used_pct, service_rss_mb, aux_proc_mb)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sample.TimestampSec, sample.MemUsedPct, sample.MemAvailMB,
		sample.DiskUsedPct, sample.ServiceRSSMB, sample.AuxProcMB,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}

	_, err = tx.Exec(
		"DELETE FROM metrics WHERE id NOT IN (SELECT id FROM metrics ORDER BY id DESC LIMIT ?)",
		s.maxSamples,
	)
	if err != nil {
		return fmt.Errorf("failed to evict old samples: %w", err)
	}

	return tx.Commit()
}

// Samples returns all retained samples, oldest first
func (s *SQLiteStore) Samples() ([]models.MetricSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT ts, mem_used_pct, mem_avail_mb, disk_used_pct, service_rss_mb, aux_proc_mb
		 FROM metrics ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []models.MetricSample
	for rows.Next() {
		var m models.MetricSample
		if err := rows.Scan(&m.TimestampSec, &m.MemUsedPct, &m.MemAvailMB,
			&m.DiskUsedPct, &m.ServiceRSSMB, &m.AuxProcMB); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, m)
	}
	return samples, rows.Err()
}

// SampleCount returns the number of retained samples
func (s *SQLiteStore) SampleCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM metrics").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return count, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
