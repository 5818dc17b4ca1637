package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Run starts the reconcile job and blocks until ctx is cancelled, then
// stops every task.
func (e *Engine) Run(ctx context.Context) error {
	c := cron.New()
	spec := e.config().ReconcileSchedule
	if _, err := c.AddFunc(spec, func() { e.Reconcile(e.ctx) }); err != nil {
		return fmt.Errorf("engine: reconcile schedule %q: %w", spec, err)
	}
	c.Start()
	slog.Info("engine: running", "reconcile_schedule", spec)

	<-ctx.Done()
	<-c.Stop().Done()
	e.Close()
	slog.Info("engine: stopped")
	return nil
}

// ReconcileResult summarises one reconcile pass.
type ReconcileResult struct {
	Monitors int
	Running  int
	Flushed  int
	Failed   int
}

// Reconcile retries writes that failed during cycles and logs registry
// totals.
func (e *Engine) Reconcile(ctx context.Context) ReconcileResult {
	var res ReconcileResult
	for _, en := range e.snapshot() {
		res.Monitors++
		en.mu.Lock()
		if en.m.Running {
			res.Running++
		}
		en.mu.Unlock()

		if !en.needsFlush() {
			continue
		}
		e.persist(ctx, en, nil)
		if en.needsFlush() {
			res.Failed++
		} else {
			res.Flushed++
		}
	}
	lvl := slog.LevelDebug
	if res.Flushed > 0 || res.Failed > 0 {
		lvl = slog.LevelInfo
	}
	slog.Log(ctx, lvl, "engine: reconcile",
		"monitors", res.Monitors,
		"running", res.Running,
		"flushed", res.Flushed,
		"failed", res.Failed,
	)
	return res
}
