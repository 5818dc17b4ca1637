package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jaipatel248/cric-alert/server/internal/monitor"
)

// fileDoc is the on-disk layout of a File store.
type fileDoc struct {
	Monitors map[string]monitor.Record  `json:"monitors"`
	Alerts   map[string][]monitor.Alert `json:"alerts"`
}

// File is a Store backed by a single JSON file. Every mutation rewrites the
// file through a temp file and rename, so a crash leaves either the old or
// the new document on disk.
type File struct {
	path string

	mu  sync.Mutex // serialises mutate+flush
	mem *Memory
}

// OpenFile loads path if it exists, or starts empty.
func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("store: file backend needs a path")
	}
	f := &File{path: path, mem: NewMemory()}
	if !fileExists(path) {
		return f, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: read %q: %w", path, err)
	}
	if len(data) == 0 {
		return f, nil
	}
	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("store: parse %q: %w", path, err)
	}
	for id, rec := range doc.Monitors {
		f.mem.records[id] = rec
	}
	for id, alerts := range doc.Alerts {
		f.mem.alerts[id] = alerts
	}
	return f, nil
}

// Put stores rec and flushes the file.
func (f *File) Put(ctx context.Context, rec monitor.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had, _ := f.mem.Get(ctx, rec.ID)
	_ = f.mem.Put(ctx, rec)
	if err := f.flush(); err != nil {
		if had {
			_ = f.mem.Put(ctx, prev)
		} else {
			f.mem.mu.Lock()
			delete(f.mem.records, rec.ID)
			f.mem.mu.Unlock()
		}
		return err
	}
	return nil
}

// Get returns the record for id.
func (f *File) Get(ctx context.Context, id string) (monitor.Record, bool, error) {
	return f.mem.Get(ctx, id)
}

// GetAll returns every record.
func (f *File) GetAll(ctx context.Context) (map[string]monitor.Record, error) {
	return f.mem.GetAll(ctx)
}

// Delete removes id and flushes the file. A failed flush restores the
// record and its alerts.
func (f *File) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mem.mu.RLock()
	rec, hadRec := f.mem.records[id]
	alerts, hadAlerts := f.mem.alerts[id]
	f.mem.mu.RUnlock()

	if err := f.mem.Delete(ctx, id); err != nil {
		return err
	}
	if err := f.flush(); err != nil {
		f.mem.mu.Lock()
		if hadRec {
			f.mem.records[id] = rec
		}
		if hadAlerts {
			f.mem.alerts[id] = alerts
		}
		f.mem.mu.Unlock()
		return err
	}
	return nil
}

// AppendAlert appends a and flushes the file.
func (f *File) AppendAlert(ctx context.Context, id string, a monitor.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = f.mem.AppendAlert(ctx, id, a)
	if err := f.flush(); err != nil {
		f.mem.mu.Lock()
		if n := len(f.mem.alerts[id]); n > 0 {
			f.mem.alerts[id] = f.mem.alerts[id][:n-1]
		}
		f.mem.mu.Unlock()
		return err
	}
	return nil
}

// ListAlerts returns id's history.
func (f *File) ListAlerts(ctx context.Context, id string) ([]monitor.Alert, error) {
	return f.mem.ListAlerts(ctx, id)
}

// Close is a no-op; every mutation is already on disk.
func (f *File) Close() error { return nil }

// flush writes the full document. Caller holds f.mu.
func (f *File) flush() error {
	f.mem.mu.RLock()
	data, err := json.MarshalIndent(fileDoc{Monitors: f.mem.records, Alerts: f.mem.alerts}, "", "  ")
	f.mem.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create dir %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("store: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: rename: %w", err)
	}
	return nil
}
