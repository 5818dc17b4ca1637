package metrics

import (
	"io"
	"net/http"
	"sort"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/jaipatel248/cric-alert/server/internal/monitor"
)

// StatusCounter reports how many monitors are in each status.
type StatusCounter interface {
	CountByStatus() map[monitor.Status]int
}

// Registry holds the process counters. The zero value is not usable; call New.
type Registry struct {
	mu                  sync.Mutex
	polls               float64
	fetchFailures       float64
	evaluations         float64
	interpreterFailures float64
	alerts              map[monitor.AlertKind]float64

	statuses StatusCounter
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{alerts: make(map[monitor.AlertKind]float64)}
}

// SetStatusSource installs the gauge source for cricalert_monitors.
func (r *Registry) SetStatusSource(sc StatusCounter) {
	r.mu.Lock()
	r.statuses = sc
	r.mu.Unlock()
}

func (r *Registry) IncPolls()               { r.add(&r.polls) }
func (r *Registry) IncFetchFailures()       { r.add(&r.fetchFailures) }
func (r *Registry) IncEvaluations()         { r.add(&r.evaluations) }
func (r *Registry) IncInterpreterFailures() { r.add(&r.interpreterFailures) }

// IncAlert counts one recorded alert of kind.
func (r *Registry) IncAlert(kind monitor.AlertKind) {
	r.mu.Lock()
	r.alerts[kind]++
	r.mu.Unlock()
}

func (r *Registry) add(v *float64) {
	r.mu.Lock()
	*v++
	r.mu.Unlock()
}

// Gather snapshots every family, sorted by name.
func (r *Registry) Gather() []*dto.MetricFamily {
	r.mu.Lock()
	fams := []*dto.MetricFamily{
		counter("cricalert_polls_total", "Provider fetches attempted.", r.polls),
		counter("cricalert_fetch_failures_total", "Provider fetches that failed.", r.fetchFailures),
		counter("cricalert_evaluations_total", "Successful interpreter evaluations.", r.evaluations),
		counter("cricalert_interpreter_failures_total", "Interpreter parse or evaluate failures.", r.interpreterFailures),
	}
	alerts := &dto.MetricFamily{
		Name: proto.String("cricalert_alerts_total"),
		Help: proto.String("Alerts recorded, by kind."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, k := range sortedKinds(r.alerts) {
		alerts.Metric = append(alerts.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{label("kind", string(k))},
			Counter: &dto.Counter{Value: proto.Float64(r.alerts[k])},
		})
	}
	if len(alerts.Metric) > 0 {
		fams = append(fams, alerts)
	}
	sc := r.statuses
	r.mu.Unlock()

	if sc != nil {
		counts := sc.CountByStatus()
		gauge := &dto.MetricFamily{
			Name: proto.String("cricalert_monitors"),
			Help: proto.String("Registered monitors, by status."),
			Type: dto.MetricType_GAUGE.Enum(),
		}
		statuses := make([]string, 0, len(counts))
		for s := range counts {
			statuses = append(statuses, string(s))
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			gauge.Metric = append(gauge.Metric, &dto.Metric{
				Label: []*dto.LabelPair{label("status", s)},
				Gauge: &dto.Gauge{Value: proto.Float64(float64(counts[monitor.Status(s)]))},
			})
		}
		if len(gauge.Metric) > 0 {
			fams = append(fams, gauge)
		}
	}

	sort.Slice(fams, func(i, j int) bool { return fams[i].GetName() < fams[j].GetName() })
	return fams
}

// Write encodes every family to w in the text format.
func (r *Registry) Write(w io.Writer) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range r.Gather() {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// ServeHTTP implements http.Handler.
func (r *Registry) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	if err := r.Write(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(v)}}},
	}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}

func sortedKinds(m map[monitor.AlertKind]float64) []monitor.AlertKind {
	out := make([]monitor.AlertKind, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
