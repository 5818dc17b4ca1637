package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jaipatel248/cric-alert/server/internal/monitor"
	"github.com/jaipatel248/cric-alert/server/internal/notify"
	"github.com/jaipatel248/cric-alert/server/internal/scheduler"
)

// entry is one registered monitor.
type entry struct {
	pmu     sync.Mutex      // serialises store writes; taken before mu
	pending []monitor.Alert // alerts not yet in the store, oldest first; under pmu
	dirty   bool            // last record write failed; under pmu

	mu      sync.Mutex
	m       monitor.Monitor
	task    *task
	sched   *scheduler.Scheduler
	removed bool
}

// task is one evaluation cycle goroutine.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (en *entry) clone() monitor.Monitor {
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.m.Clone()
}

// setStatus changes status and running together. Caller holds en.mu.
func (en *entry) setStatus(s monitor.Status, running bool, at time.Time) {
	if s != en.m.Status {
		slog.Info("engine: status change", "monitor", en.m.ID, "from", en.m.Status, "to", s)
	}
	en.m.Status = s
	en.m.Running = running && s.Active()
	en.m.UpdatedAt = at
}

// cancelTask signals the current task to exit. Caller holds en.mu.
func (en *entry) cancelTask() {
	if en.task != nil {
		en.task.cancel()
	}
}

// current reports whether t is still the task that owns en. Caller holds en.mu.
func (en *entry) current(t *task) bool {
	return en.task == t && en.m.Running && en.m.Status.Active() && !en.removed
}

// statusChange builds the notify payload for a transition from prev.
// Caller holds en.mu.
func (en *entry) statusChange(prev monitor.Status) notify.StatusChange {
	return notify.StatusChange{
		MonitorID: en.m.ID,
		TargetID:  en.m.TargetID,
		Previous:  prev,
		Status:    en.m.Status,
		Running:   en.m.Running,
	}
}

func (e *Engine) lookup(id string) (*entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return en, nil
}

// snapshot returns the registered entries without holding e.mu afterwards.
func (e *Engine) snapshot() []*entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*entry, 0, len(e.entries))
	for _, en := range e.entries {
		out = append(out, en)
	}
	return out
}

// launchLocked starts a fresh cycle for en with a new scheduler. A previous
// task, already cancelled, is waited for before the new one polls.
// Caller holds en.mu and has set Running.
func (e *Engine) launchLocked(en *entry) {
	prev := en.task
	if prev != nil {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(e.ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}
	en.task = t
	en.sched = scheduler.NewWithClock(e.bounds(), e.now)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(t.done)
		defer cancel()
		if prev != nil {
			select {
			case <-prev.done:
			case <-ctx.Done():
				return
			}
		}
		e.cycle(ctx, en, t)
	}()
}

// goParse runs rule parsing for en in the background.
func (e *Engine) goParse(en *entry, text string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.parse(en, text)
	}()
}

func (e *Engine) parse(en *entry, text string) {
	ctx, cancel := context.WithTimeout(e.ctx, e.config().ParseTimeout)
	rules, err := e.interp.ParseRule(ctx, text)
	cancel()
	if err != nil && e.ctx.Err() != nil {
		// Shutting down; the monitor stays INITIALIZING and is re-parsed on boot.
		return
	}

	en.mu.Lock()
	if en.removed {
		en.mu.Unlock()
		return
	}
	from := en.m.Status
	var alerts []monitor.Alert
	if err != nil {
		slog.Error("engine: rule parse failed", "monitor", en.m.ID, "err", err)
		e.count(func(r metricsCounter) { r.IncInterpreterFailures() })
		a := monitor.Alert{
			Kind:       monitor.KindInfo,
			EntityType: entityInterpreter,
			Message:    "Failed to parse alert rule: " + err.Error(),
			Timestamp:  e.now(),
		}
		en.m.Alerts = append(en.m.Alerts, a)
		alerts = append(alerts, a)
		if to, ok := monitor.Next(from, monitor.InputParseFailed); ok {
			en.setStatus(to, false, e.now())
		}
	} else {
		if !en.m.HasRules() {
			en.m.Rules = rules
		}
		if to, ok := monitor.Next(from, monitor.InputParseSucceeded); ok {
			en.setStatus(to, true, e.now())
			e.launchLocked(en)
		} else {
			en.m.UpdatedAt = e.now()
		}
	}
	changed := en.m.Status != from
	change := en.statusChange(from)
	en.mu.Unlock()

	bg := context.Background()
	e.persist(bg, en, alerts)
	for _, a := range alerts {
		e.publishAlert(en, a)
	}
	if changed {
		e.publishStatus(en, change)
	}
}

// persist appends alerts and writes en's latest record. Failures are kept
// for Reconcile and never returned.
func (e *Engine) persist(ctx context.Context, en *entry, alerts []monitor.Alert) {
	en.pmu.Lock()
	defer en.pmu.Unlock()

	en.mu.Lock()
	removed := en.removed
	rec := en.m.Record
	en.mu.Unlock()
	if removed {
		return
	}

	queue := append(en.pending, alerts...)
	en.pending = nil
	for i, a := range queue {
		if err := e.store.AppendAlert(ctx, rec.ID, a); err != nil {
			slog.Error("engine: persist alert failed, will retry",
				"monitor", rec.ID, "pending", len(queue)-i, "err", err)
			en.pending = append([]monitor.Alert(nil), queue[i:]...)
			break
		}
	}

	if err := e.store.Put(ctx, rec); err != nil {
		slog.Error("engine: persist record failed, will retry", "monitor", rec.ID, "err", err)
		en.dirty = true
		return
	}
	en.dirty = false
}

// needsFlush reports whether en has writes waiting for Reconcile.
func (en *entry) needsFlush() bool {
	en.pmu.Lock()
	defer en.pmu.Unlock()
	return en.dirty || len(en.pending) > 0
}

func (e *Engine) publish(en *entry, t notify.Type, data any) {
	en.mu.Lock()
	id := en.m.ID
	en.mu.Unlock()
	e.pub.Publish(e.ctx, notify.New(t, id, data, e.now()))
}

func (e *Engine) publishStatus(en *entry, change notify.StatusChange) {
	e.publish(en, notify.TypeStatusChange, change)
}

func (e *Engine) publishAlert(en *entry, a monitor.Alert) {
	en.mu.Lock()
	data := notify.AlertData{MonitorID: en.m.ID, TargetID: en.m.TargetID, Alert: a}
	en.mu.Unlock()
	e.publish(en, notify.TypeNewAlert, data)
}

// metricsCounter is the subset of metrics.Registry the engine calls.
type metricsCounter interface {
	IncPolls()
	IncFetchFailures()
	IncEvaluations()
	IncInterpreterFailures()
	IncAlert(monitor.AlertKind)
}

func (e *Engine) count(f func(metricsCounter)) {
	if e.metrics != nil {
		f(e.metrics)
	}
}
