package store

import (
	"context"
	"sync"

	"github.com/jaipatel248/cric-alert/server/internal/monitor"
)

// Memory is a thread-safe in-memory Store, keyed by monitor id.
type Memory struct {
	mu      sync.RWMutex
	records map[string]monitor.Record
	alerts  map[string][]monitor.Alert
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]monitor.Record),
		alerts:  make(map[string][]monitor.Alert),
	}
}

// Put stores or replaces the record for rec.ID.
func (s *Memory) Put(_ context.Context, rec monitor.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

// Get returns the record for id.
func (s *Memory) Get(_ context.Context, id string) (monitor.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

// GetAll returns a copy of every record.
func (s *Memory) GetAll(_ context.Context) (map[string]monitor.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]monitor.Record, len(s.records))
	for id, rec := range s.records {
		out[id] = rec
	}
	return out, nil
}

// Delete removes id and its alerts.
func (s *Memory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	delete(s.alerts, id)
	return nil
}

// AppendAlert adds a to id's history.
func (s *Memory) AppendAlert(_ context.Context, id string, a monitor.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[id] = append(s.alerts[id], a)
	return nil
}

// ListAlerts returns a copy of id's history.
func (s *Memory) ListAlerts(_ context.Context, id string) ([]monitor.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.alerts[id]
	out := make([]monitor.Alert, len(src))
	copy(out, src)
	return out, nil
}

// Count returns the number of stored records.
func (s *Memory) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op.
func (s *Memory) Close() error { return nil }
