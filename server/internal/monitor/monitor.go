package monitor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AlertKind is the closed set of alert decisions the engine understands.
type AlertKind string

const (
	KindSoft    AlertKind = "SOFT_ALERT"
	KindHard    AlertKind = "HARD_ALERT"
	KindTrigger AlertKind = "TRIGGER"
	KindAborted AlertKind = "ABORTED"
	KindInfo    AlertKind = "INFO"
)

// ParseKind maps an interpreter-supplied kind onto AlertKind.
// "SOFT" and "HARD" are accepted as aliases; matching is case-insensitive.
func ParseKind(s string) (AlertKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SOFT_ALERT", "SOFT":
		return KindSoft, nil
	case "HARD_ALERT", "HARD":
		return KindHard, nil
	case "TRIGGER":
		return KindTrigger, nil
	case "ABORTED":
		return KindAborted, nil
	case "INFO":
		return KindInfo, nil
	default:
		return "", fmt.Errorf("unknown alert kind %q", s)
	}
}

// Alert is one immutable entry in a monitor's alert history.
type Alert struct {
	Kind       AlertKind `json:"type"`
	EntityType string    `json:"entity_type"`
	Message    string    `json:"message"`
	// Context is whatever structured payload the interpreter attached.
	// The engine never inspects it.
	Context   json.RawMessage `json:"context,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Engine-generated INFO alerts carry a reason in their context so a restore
// can recognise them.
const (
	EntityMatch       = "match"
	ReasonConcluded   = "event_concluded"
	ReasonCycleFailed = "cycle_failed"
)

// ConcludedAlert builds the INFO alert appended when the provider reports
// the event as finished.
func ConcludedAlert(at time.Time) Alert {
	return Alert{
		Kind:       KindInfo,
		EntityType: EntityMatch,
		Message:    "Match has ended",
		Context:    json.RawMessage(`{"reason":"` + ReasonConcluded + `"}`),
		Timestamp:  at,
	}
}

// FailureAlert builds the INFO alert appended when a cycle fails and the
// monitor moves to ERROR.
func FailureAlert(entity, message string, at time.Time) Alert {
	return Alert{
		Kind:       KindInfo,
		EntityType: entity,
		Message:    message,
		Context:    json.RawMessage(`{"reason":"` + ReasonCycleFailed + `"}`),
		Timestamp:  at,
	}
}

// IsConcluded reports whether a was produced by ConcludedAlert.
func (a Alert) IsConcluded() bool {
	return a.EntityType == EntityMatch && a.reason() == ReasonConcluded
}

// IsFailure reports whether a was produced by FailureAlert.
func (a Alert) IsFailure() bool {
	return a.reason() == ReasonCycleFailed
}

// reason returns the context reason of an INFO alert, or "".
func (a Alert) reason() string {
	if a.Kind != KindInfo || len(a.Context) == 0 {
		return ""
	}
	var ctx struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(a.Context, &ctx); err != nil {
		return ""
	}
	return ctx.Reason
}

// NextCheck is the interpreter's estimate of when the next poll is useful.
type NextCheck struct {
	EstimatedMinutes float64 `json:"estimatedMinutes"`
	Reason           string  `json:"reason,omitempty"`
}

// Record is the persisted document for one monitor. Alerts live in a
// separate append-only collection and are not part of the record.
type Record struct {
	ID        string `json:"monitor_id"`
	TargetID  string `json:"match_id"`
	AlertText string `json:"alert_text"`

	// Rules is the interpreter's structured rule document. Nil until
	// parsing completes; never replaced once set.
	Rules json.RawMessage `json:"rules,omitempty"`

	Status            Status     `json:"status"`
	Running           bool       `json:"running"`
	ExpectedNextCheck *NextCheck `json:"expectedNextCheck,omitempty"`

	// WatcherState is the interpreter's opaque state carried between
	// evaluations.
	WatcherState json.RawMessage `json:"watcher_state,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasRules reports whether the rule document has been set.
func (r Record) HasRules() bool { return len(r.Rules) > 0 }

// Monitor is a Record together with its alert history, in insertion order.
type Monitor struct {
	Record
	Alerts []Alert `json:"alerts"`
}

// NewID derives a monitor id from the target and creation time.
func NewID(targetID string, createdAt time.Time) string {
	return fmt.Sprintf("%s_%d", targetID, createdAt.UnixMilli())
}

// Clone returns a deep copy so callers can read it without holding locks.
func (m *Monitor) Clone() Monitor {
	cp := Monitor{Record: m.Record}
	cp.Rules = cloneRaw(m.Rules)
	cp.WatcherState = cloneRaw(m.WatcherState)
	if m.ExpectedNextCheck != nil {
		nc := *m.ExpectedNextCheck
		cp.ExpectedNextCheck = &nc
	}
	cp.Alerts = make([]Alert, len(m.Alerts))
	copy(cp.Alerts, m.Alerts)
	return cp
}

// LastAlert returns the most recent alert, if any.
func (m *Monitor) LastAlert() (Alert, bool) {
	if len(m.Alerts) == 0 {
		return Alert{}, false
	}
	return m.Alerts[len(m.Alerts)-1], true
}

// Messages returns the messages of all recorded alerts, oldest first.
func (m *Monitor) Messages() []string {
	out := make([]string, 0, len(m.Alerts))
	for _, a := range m.Alerts {
		out = append(out, a.Message)
	}
	return out
}

// HasAlert reports whether an alert with the same kind and message was
// already recorded.
func (m *Monitor) HasAlert(kind AlertKind, message string) bool {
	for _, a := range m.Alerts {
		if a.Kind == kind && a.Message == message {
			return true
		}
	}
	return false
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}
