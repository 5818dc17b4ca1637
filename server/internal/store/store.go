package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jaipatel248/cric-alert/server/internal/config"
	"github.com/jaipatel248/cric-alert/server/internal/monitor"
)

// ErrNotFound is returned by Delete for an unknown monitor id.
var ErrNotFound = errors.New("store: monitor not found")

// Store is the persistence contract used by the engine.
type Store interface {
	// Put stores or replaces the record for rec.ID.
	Put(ctx context.Context, rec monitor.Record) error

	// Get returns the record for id and whether it exists.
	Get(ctx context.Context, id string) (monitor.Record, bool, error)

	// GetAll returns every stored record keyed by id.
	GetAll(ctx context.Context) (map[string]monitor.Record, error)

	// Delete removes the record and its alert history.
	Delete(ctx context.Context, id string) error

	// AppendAlert adds a to the end of id's alert history.
	AppendAlert(ctx context.Context, id string, a monitor.Alert) error

	// ListAlerts returns id's alert history, oldest first.
	ListAlerts(ctx context.Context, id string) ([]monitor.Alert, error)

	// Close releases backend resources.
	Close() error
}

// Open returns the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return OpenFile(cfg.Path)
	case "redis":
		url := cfg.URL()
		if url == "" {
			return nil, fmt.Errorf("store: redis backend needs %s set", cfg.URLEnv)
		}
		return OpenRedis(ctx, url)
	case "postgres":
		url := cfg.URL()
		if url == "" {
			return nil, fmt.Errorf("store: postgres backend needs %s set", cfg.URLEnv)
		}
		return OpenPostgres(ctx, url)
	default:
		return nil, fmt.Errorf("store: unsupported backend %q", cfg.Backend)
	}
}

// LoadAll reads every record and its alert history. It is the boot-time
// restore path; a monitor whose alerts cannot be read is skipped with an
// error in errs rather than failing the whole load.
func LoadAll(ctx context.Context, st Store) (monitors []monitor.Monitor, errs []error, err error) {
	records, err := st.GetAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("store: load records: %w", err)
	}
	for id, rec := range records {
		alerts, aerr := st.ListAlerts(ctx, id)
		if aerr != nil {
			errs = append(errs, fmt.Errorf("store: load alerts for %s: %w", id, aerr))
			continue
		}
		monitors = append(monitors, monitor.Monitor{Record: rec, Alerts: alerts})
	}
	return monitors, errs, nil
}

// fileExists reports whether path names an existing file.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
