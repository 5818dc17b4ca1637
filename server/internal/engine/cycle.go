package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jaipatel248/cric-alert/server/internal/config"
	"github.com/jaipatel248/cric-alert/server/internal/interpreter"
	"github.com/jaipatel248/cric-alert/server/internal/monitor"
	"github.com/jaipatel248/cric-alert/server/internal/notify"
)

// Entity types of the INFO alerts the engine records on its own behalf.
const (
	entityInterpreter = "interpreter"
	entityEngine      = "engine"
)

// cycle is the evaluation loop of one task. It returns when the monitor
// leaves the active states, when t is superseded, or when ctx ends.
func (e *Engine) cycle(ctx context.Context, en *entry, t *task) {
	en.mu.Lock()
	id := en.m.ID
	en.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine: cycle panic", "monitor", id, "panic", r)
			e.fail(en, t, entityEngine, fmt.Sprintf("Monitoring stopped after an internal error: %v", r))
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		en.mu.Lock()
		if !en.current(t) {
			en.mu.Unlock()
			return
		}
		target := en.m.TargetID
		req := interpreter.Request{
			Rules:   en.m.Rules,
			State:   en.m.WatcherState,
			Alerted: en.m.Messages(),
		}
		sched := en.sched
		en.mu.Unlock()

		cfg := e.config()
		if !sched.ShouldPoll() {
			if !e.sleep(ctx, cfg.IdleDelay) {
				return
			}
			continue
		}

		e.count(func(r metricsCounter) { r.IncPolls() })
		fctx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
		snap, err := e.provider.Fetch(fctx, target)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.count(func(r metricsCounter) { r.IncFetchFailures() })
			slog.Warn("engine: fetch failed, backing off",
				"monitor", id, "target", target, "backoff", cfg.FetchBackoff, "err", err)
			if !e.sleep(ctx, cfg.FetchBackoff) {
				return
			}
			continue
		}

		if snap.Concluded {
			e.conclude(en, t)
			return
		}

		req.Payload = snap.Payload
		ectx, cancel := context.WithTimeout(ctx, cfg.EvaluateTimeout)
		dec, err := e.interp.Evaluate(ectx, req)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("engine: evaluation failed", "monitor", id, "err", err)
			e.count(func(r metricsCounter) { r.IncInterpreterFailures() })
			e.fail(en, t, entityInterpreter, "Evaluation failed: "+err.Error())
			return
		}
		e.count(func(r metricsCounter) { r.IncEvaluations() })

		done := e.apply(en, t, dec, cfg)

		sched.MarkPolled()
		var hint *float64
		if dec.NextCheck != nil {
			m := dec.NextCheck.EstimatedMinutes
			hint = &m
		}
		sched.SetNextInterval(hint)
		if done {
			return
		}
	}
}

// apply records the outcome of one successful evaluation and reports
// whether the cycle must end.
func (e *Engine) apply(en *entry, t *task, dec *interpreter.Decision, cfg config.MonitorConfig) bool {
	en.mu.Lock()
	if !en.current(t) {
		// Stopped or deleted while the call was in flight.
		en.mu.Unlock()
		return true
	}
	now := e.now()
	from := en.m.Status
	if dec.State != nil {
		en.m.WatcherState = dec.State
	}
	if dec.NextCheck != nil {
		nc := *dec.NextCheck
		en.m.ExpectedNextCheck = &nc
	}

	var recorded []monitor.Alert
	if dec.Alert != nil {
		a := *dec.Alert
		a.Timestamp = now
		if cfg.Dedup == config.DedupMessage && en.m.HasAlert(a.Kind, a.Message) {
			slog.Debug("engine: duplicate alert suppressed", "monitor", en.m.ID, "kind", a.Kind)
		} else {
			en.m.Alerts = append(en.m.Alerts, a)
			recorded = append(recorded, a)
		}
		if in, ok := monitor.InputForKind(a.Kind); ok {
			if to, ok := monitor.Next(from, in); ok {
				en.setStatus(to, !to.Terminal(), now)
			}
		}
	}
	en.m.UpdatedAt = now
	changed := en.m.Status != from
	change := en.statusChange(from)
	done := !en.m.Status.Active()
	var nextCheck *monitor.NextCheck
	if en.m.ExpectedNextCheck != nil && dec.NextCheck != nil {
		nc := *en.m.ExpectedNextCheck
		nextCheck = &nc
	}
	en.mu.Unlock()

	e.persist(context.Background(), en, recorded)
	if nextCheck != nil {
		e.publish(en, notify.TypeNextCheck, *nextCheck)
	}
	for _, a := range recorded {
		e.count(func(r metricsCounter) { r.IncAlert(a.Kind) })
		slog.Info("engine: alert", "monitor", change.MonitorID, "kind", a.Kind, "message", a.Message)
		e.publishAlert(en, a)
	}
	if changed {
		e.publishStatus(en, change)
	}
	return done
}

// conclude records the end of the event and completes the monitor.
func (e *Engine) conclude(en *entry, t *task) {
	en.mu.Lock()
	if !en.current(t) {
		en.mu.Unlock()
		return
	}
	from := en.m.Status
	a := monitor.ConcludedAlert(e.now())
	en.m.Alerts = append(en.m.Alerts, a)
	to, _ := monitor.Next(from, monitor.InputConcluded)
	en.setStatus(to, false, a.Timestamp)
	change := en.statusChange(from)
	en.mu.Unlock()

	e.persist(context.Background(), en, []monitor.Alert{a})
	e.count(func(r metricsCounter) { r.IncAlert(a.Kind) })
	e.publishAlert(en, a)
	e.publishStatus(en, change)
}

// fail records an INFO alert explaining the failure and moves the monitor
// to ERROR.
func (e *Engine) fail(en *entry, t *task, entity, message string) {
	en.mu.Lock()
	if !en.current(t) {
		en.mu.Unlock()
		return
	}
	from := en.m.Status
	a := monitor.FailureAlert(entity, message, e.now())
	en.m.Alerts = append(en.m.Alerts, a)
	to, _ := monitor.Next(from, monitor.InputCycleFailed)
	en.setStatus(to, false, a.Timestamp)
	change := en.statusChange(from)
	en.mu.Unlock()

	e.persist(context.Background(), en, []monitor.Alert{a})
	e.publishAlert(en, a)
	e.publishStatus(en, change)
}
