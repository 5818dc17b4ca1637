package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jaipatel248/cric-alert/server/internal/config"
	"github.com/jaipatel248/cric-alert/server/internal/interpreter"
	"github.com/jaipatel248/cric-alert/server/internal/metrics"
	"github.com/jaipatel248/cric-alert/server/internal/monitor"
	"github.com/jaipatel248/cric-alert/server/internal/notify"
	"github.com/jaipatel248/cric-alert/server/internal/provider"
	"github.com/jaipatel248/cric-alert/server/internal/scheduler"
	"github.com/jaipatel248/cric-alert/server/internal/store"
)

var (
	// ErrNotFound is returned for an unknown monitor id.
	ErrNotFound = errors.New("engine: monitor not found")

	// ErrInvalidTransition is returned when the monitor's current status
	// does not permit the requested action.
	ErrInvalidTransition = errors.New("engine: invalid transition")

	// ErrTargetNotFound is returned by Create when the target cannot be
	// fetched from the provider.
	ErrTargetNotFound = errors.New("engine: target not found")

	// ErrInvalidRequest is returned by Create for an empty target or text.
	ErrInvalidRequest = errors.New("engine: invalid request")
)

// Provider fetches the current state of a target.
type Provider interface {
	Fetch(ctx context.Context, targetID string) (*provider.Snapshot, error)
}

// Interpreter parses alert text into rules and evaluates rules.
type Interpreter interface {
	ParseRule(ctx context.Context, text string) (json.RawMessage, error)
	Evaluate(ctx context.Context, req interpreter.Request) (*interpreter.Decision, error)
}

// Options are the optional collaborators of an Engine.
type Options struct {
	// Sinks receive every event after the in-process broker.
	Sinks []notify.Publisher

	// Metrics, when set, counts polls, failures and alerts.
	Metrics *metrics.Registry

	// Now and Sleep replace the wall clock in tests. Sleep returns false
	// if ctx ended before d elapsed.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) bool
}

// Engine is the orchestration root. Create it with New, call Restore once,
// then Run until shutdown.
type Engine struct {
	store    store.Store
	provider Provider
	interp   Interpreter
	broker   *notify.Broker
	pub      notify.Publisher
	metrics  *metrics.Registry
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) bool

	cfgMu sync.RWMutex
	cfg   config.MonitorConfig

	mu      sync.Mutex
	entries map[string]*entry

	ctx    context.Context // parent of every task; cancelled by Close
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns an Engine. cfg is validated by config.Load; zero durations
// fall back to the package defaults.
func New(st store.Store, p Provider, in Interpreter, cfg config.MonitorConfig, opts Options) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	broker := notify.NewBroker(notify.DefaultBuffer)
	e := &Engine{
		store:    st,
		provider: p,
		interp:   in,
		broker:   broker,
		pub:      append(notify.Fanout{broker}, opts.Sinks...),
		metrics:  opts.Metrics,
		now:      opts.Now,
		sleep:    opts.Sleep,
		cfg:      withDefaults(cfg),
		entries:  make(map[string]*entry),
		ctx:      ctx,
		cancel:   cancel,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.sleep == nil {
		e.sleep = sleepCtx
	}
	if e.metrics != nil {
		e.metrics.SetStatusSource(e)
	}
	return e
}

func withDefaults(c config.MonitorConfig) config.MonitorConfig {
	def := config.Default().Monitor
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = def.DefaultInterval
	}
	if c.MinInterval <= 0 {
		c.MinInterval = def.MinInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = def.MaxInterval
	}
	if c.IdleDelay <= 0 {
		c.IdleDelay = def.IdleDelay
	}
	if c.FetchBackoff <= 0 {
		c.FetchBackoff = def.FetchBackoff
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = def.FetchTimeout
	}
	if c.EvaluateTimeout <= 0 {
		c.EvaluateTimeout = def.EvaluateTimeout
	}
	if c.ParseTimeout <= 0 {
		c.ParseTimeout = def.ParseTimeout
	}
	if c.Dedup == "" {
		c.Dedup = def.Dedup
	}
	if c.ReconcileSchedule == "" {
		c.ReconcileSchedule = def.ReconcileSchedule
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (e *Engine) config() config.MonitorConfig {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

func (e *Engine) bounds() scheduler.Bounds {
	c := e.config()
	return scheduler.Bounds{Default: c.DefaultInterval, Min: c.MinInterval, Max: c.MaxInterval}
}

// Reconfigure applies new monitor tunables. Running schedulers take the new
// bounds from their next interval update.
func (e *Engine) Reconfigure(cfg config.MonitorConfig) {
	e.cfgMu.Lock()
	e.cfg = withDefaults(cfg)
	e.cfgMu.Unlock()

	b := e.bounds()
	for _, en := range e.snapshot() {
		en.mu.Lock()
		if en.sched != nil {
			en.sched.SetBounds(b)
		}
		en.mu.Unlock()
	}
	slog.Info("engine: reconfigured",
		"default_interval", cfg.DefaultInterval,
		"min_interval", cfg.MinInterval,
		"max_interval", cfg.MaxInterval,
		"dedup", cfg.Dedup,
	)
}

// Create registers a monitor for targetID in INITIALIZING and returns it.
// Rule parsing and the first cycle run in the background.
func (e *Engine) Create(ctx context.Context, targetID, alertText string) (monitor.Monitor, error) {
	targetID, alertText = strings.TrimSpace(targetID), strings.TrimSpace(alertText)
	if targetID == "" || alertText == "" {
		return monitor.Monitor{}, fmt.Errorf("%w: target and alert text are required", ErrInvalidRequest)
	}

	cfg := e.config()
	if cfg.ShouldVerifyTarget() {
		fctx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
		_, err := e.provider.Fetch(fctx, targetID)
		cancel()
		if err != nil {
			return monitor.Monitor{}, fmt.Errorf("%w: %s: %v", ErrTargetNotFound, targetID, err)
		}
	}

	now := e.now()
	en := &entry{}
	e.mu.Lock()
	id := monitor.NewID(targetID, now)
	for _, taken := e.entries[id]; taken; _, taken = e.entries[id] {
		now = now.Add(time.Millisecond)
		id = monitor.NewID(targetID, now)
	}
	en.m = monitor.Monitor{
		Record: monitor.Record{
			ID:        id,
			TargetID:  targetID,
			AlertText: alertText,
			Status:    monitor.StatusInitializing,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Alerts: []monitor.Alert{},
	}
	e.entries[id] = en
	e.mu.Unlock()

	if err := e.store.Put(ctx, en.m.Record); err != nil {
		e.mu.Lock()
		delete(e.entries, id)
		e.mu.Unlock()
		return monitor.Monitor{}, fmt.Errorf("engine: persist new monitor: %w", err)
	}

	slog.Info("engine: monitor created", "monitor", id, "target", targetID)
	e.goParse(en, alertText)
	return en.clone(), nil
}

// Get returns a copy of monitor id.
func (e *Engine) Get(id string) (monitor.Monitor, error) {
	en, err := e.lookup(id)
	if err != nil {
		return monitor.Monitor{}, err
	}
	return en.clone(), nil
}

// List returns every monitor, newest first.
func (e *Engine) List() []monitor.Monitor {
	return e.filter(func(monitor.Monitor) bool { return true })
}

// ListByTarget returns the monitors watching targetID, newest first.
func (e *Engine) ListByTarget(targetID string) []monitor.Monitor {
	return e.filter(func(m monitor.Monitor) bool { return m.TargetID == targetID })
}

func (e *Engine) filter(keep func(monitor.Monitor) bool) []monitor.Monitor {
	var out []monitor.Monitor
	for _, en := range e.snapshot() {
		if m := en.clone(); keep(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Stop halts a monitor's cycle and moves it to STOPPED. Stopping a monitor
// that is already STOPPED or ERROR succeeds without change.
func (e *Engine) Stop(ctx context.Context, id string) error {
	en, err := e.lookup(id)
	if err != nil {
		return err
	}

	en.mu.Lock()
	from := en.m.Status
	if from == monitor.StatusStopped || from == monitor.StatusError {
		en.mu.Unlock()
		return nil
	}
	to, ok := monitor.Next(from, monitor.InputStop)
	if !ok {
		en.mu.Unlock()
		return fmt.Errorf("%w: cannot stop a %s monitor", ErrInvalidTransition, from)
	}
	en.setStatus(to, false, e.now())
	en.cancelTask()
	change := en.statusChange(from)
	en.mu.Unlock()

	e.persist(ctx, en, nil)
	e.publishStatus(en, change)
	return nil
}

// Start resumes a STOPPED or ERROR monitor that has rules.
func (e *Engine) Start(ctx context.Context, id string) error {
	en, err := e.lookup(id)
	if err != nil {
		return err
	}

	en.mu.Lock()
	from := en.m.Status
	if !monitor.CanStart(en.m.Record) {
		en.mu.Unlock()
		if !en.m.HasRules() {
			return fmt.Errorf("%w: monitor %s has no rules yet", ErrInvalidTransition, id)
		}
		return fmt.Errorf("%w: cannot start a %s monitor", ErrInvalidTransition, from)
	}
	to, _ := monitor.Next(from, monitor.InputStart)
	en.setStatus(to, true, e.now())
	e.launchLocked(en)
	change := en.statusChange(from)
	en.mu.Unlock()

	e.persist(ctx, en, nil)
	e.publishStatus(en, change)
	return nil
}

// Delete stops and removes a monitor from the registry and the store.
func (e *Engine) Delete(ctx context.Context, id string) error {
	en, err := e.lookup(id)
	if err != nil {
		return err
	}

	en.pmu.Lock()
	en.mu.Lock()
	gone := en.removed
	en.mu.Unlock()
	if gone {
		en.pmu.Unlock()
		return ErrNotFound
	}
	if err := e.store.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		en.pmu.Unlock()
		return fmt.Errorf("engine: delete %s: %w", id, err)
	}
	en.mu.Lock()
	from := en.m.Status
	to, _ := monitor.Next(from, monitor.InputDelete)
	en.setStatus(to, false, e.now())
	en.removed = true
	en.cancelTask()
	change := en.statusChange(from)
	en.mu.Unlock()
	en.pmu.Unlock()

	e.mu.Lock()
	if e.entries[id] == en {
		delete(e.entries, id)
	}
	e.mu.Unlock()

	e.publishStatus(en, change)
	e.broker.CloseMonitor(id)
	slog.Info("engine: monitor deleted", "monitor", id)
	return nil
}

// Subscribe opens a live event stream for monitor id. The caller must
// Close the subscription.
func (e *Engine) Subscribe(id string) (*notify.Subscription, error) {
	if _, err := e.lookup(id); err != nil {
		return nil, err
	}
	return e.broker.Subscribe(id), nil
}

// CountByStatus reports how many monitors are in each status.
func (e *Engine) CountByStatus() map[monitor.Status]int {
	out := make(map[monitor.Status]int)
	for _, en := range e.snapshot() {
		en.mu.Lock()
		out[en.m.Status]++
		en.mu.Unlock()
	}
	return out
}

// Running returns how many monitors have an active cycle.
func (e *Engine) Running() int {
	n := 0
	for _, en := range e.snapshot() {
		en.mu.Lock()
		if en.m.Running {
			n++
		}
		en.mu.Unlock()
	}
	return n
}

// Close cancels every task and waits for them to exit. Persisted records
// keep their running flag so Restore resumes them.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
	e.broker.Close()
}
