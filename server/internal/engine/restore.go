package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jaipatel248/cric-alert/server/internal/monitor"
	"github.com/jaipatel248/cric-alert/server/internal/store"
)

// RestoreResult summarises a boot-time restore.
type RestoreResult struct {
	Loaded   int
	Resumed  int
	Repaired int
	Reparsed int
	Skipped  int
}

// Restore loads every persisted monitor into the registry with running
// cleared, then resumes exactly those whose persisted record was running in
// an active status. A record torn by a crash after its terminal alert was
// written is repaired first. INITIALIZING monitors are parsed again.
func (e *Engine) Restore(ctx context.Context) (RestoreResult, error) {
	var res RestoreResult
	monitors, errs, err := store.LoadAll(ctx, e.store)
	if err != nil {
		return res, fmt.Errorf("engine: restore: %w", err)
	}
	for _, err := range errs {
		slog.Warn("engine: restore skipped a monitor", "err", err)
		res.Skipped++
	}

	for i := range monitors {
		m := monitors[i]
		if m.Alerts == nil {
			m.Alerts = []monitor.Alert{}
		}
		if !m.Status.Valid() {
			slog.Warn("engine: restore skipped a monitor with unknown status",
				"monitor", m.ID, "status", m.Status)
			res.Skipped++
			continue
		}

		repaired := false
		if to, ok := monitor.Repair(&m); ok {
			slog.Info("engine: repaired torn monitor state", "monitor", m.ID, "status", to)
			repaired = true
			res.Repaired++
		}
		wasRunning := m.Running
		resume := monitor.ShouldResume(m.Record) && m.HasRules()
		m.Running = false

		en := &entry{m: m}
		e.mu.Lock()
		if _, exists := e.entries[m.ID]; exists {
			e.mu.Unlock()
			continue
		}
		e.entries[m.ID] = en
		e.mu.Unlock()
		res.Loaded++

		switch {
		case resume:
			en.mu.Lock()
			en.setStatus(en.m.Status, true, en.m.UpdatedAt)
			e.launchLocked(en)
			en.mu.Unlock()
			res.Resumed++
		case m.Status == monitor.StatusInitializing && !m.HasRules():
			e.goParse(en, m.AlertText)
			res.Reparsed++
		}
		if repaired || (wasRunning && !resume) {
			// Persist the cleared running flag and any repair.
			e.persist(ctx, en, nil)
		}
	}

	slog.Info("engine: restore complete",
		"loaded", res.Loaded,
		"resumed", res.Resumed,
		"repaired", res.Repaired,
		"reparsed", res.Reparsed,
		"skipped", res.Skipped,
	)
	return res, nil
}
