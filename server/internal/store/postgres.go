package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/jaipatel248/cric-alert/server/internal/monitor"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS monitors (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS monitor_alerts (
	seq        BIGSERIAL PRIMARY KEY,
	monitor_id TEXT NOT NULL,
	doc        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS monitor_alerts_monitor_id_seq ON monitor_alerts (monitor_id, seq);`

// Postgres is a Store backed by two jsonb tables. Alert order is the
// insertion sequence.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to dsn, applies the schema and returns the store.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: postgres ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Put upserts the record.
func (s *Postgres) Put(ctx context.Context, rec monitor.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode record %s: %w", rec.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO monitors (id, doc, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		rec.ID, string(data))
	if err != nil {
		return fmt.Errorf("store: postgres put %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record for id.
func (s *Postgres) Get(ctx context.Context, id string) (monitor.Record, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM monitors WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return monitor.Record{}, false, nil
	}
	if err != nil {
		return monitor.Record{}, false, fmt.Errorf("store: postgres get %s: %w", id, err)
	}
	var rec monitor.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return monitor.Record{}, false, fmt.Errorf("store: decode record %s: %w", id, err)
	}
	return rec, true, nil
}

// GetAll returns every record.
func (s *Postgres) GetAll(ctx context.Context) (map[string]monitor.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, doc FROM monitors`)
	if err != nil {
		return nil, fmt.Errorf("store: postgres list: %w", err)
	}
	defer rows.Close()

	out := make(map[string]monitor.Record)
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("store: postgres scan: %w", err)
		}
		var rec monitor.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("store: decode record %s: %w", id, err)
		}
		out[id] = rec
	}
	return out, rows.Err()
}

// Delete removes the record and its alerts in one transaction.
func (s *Postgres) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: postgres begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM monitors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: postgres delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM monitor_alerts WHERE monitor_id = $1`, id); err != nil {
		return fmt.Errorf("store: postgres delete alerts %s: %w", id, err)
	}
	return tx.Commit()
}

// AppendAlert inserts a as the newest alert for id.
func (s *Postgres) AppendAlert(ctx context.Context, id string, a monitor.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("store: encode alert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO monitor_alerts (monitor_id, doc) VALUES ($1, $2)`, id, string(data)); err != nil {
		return fmt.Errorf("store: postgres append alert %s: %w", id, err)
	}
	return nil
}

// ListAlerts returns id's alerts in insertion order.
func (s *Postgres) ListAlerts(ctx context.Context, id string) ([]monitor.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM monitor_alerts WHERE monitor_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("store: postgres list alerts %s: %w", id, err)
	}
	defer rows.Close()

	out := []monitor.Alert{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("store: postgres scan alert: %w", err)
		}
		var a monitor.Alert
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("store: decode alert %s: %w", id, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close closes the connection pool.
func (s *Postgres) Close() error { return s.db.Close() }
