package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jaipatel248/cric-alert/server/internal/monitor"
)

// Type names an event on the wire.
type Type string

const (
	TypeMonitorUpdate Type = "monitor_update"
	TypeNewAlert      Type = "new_alert"
	TypeStatusChange  Type = "status_change"
	TypeNextCheck     Type = "expected_next_check_update"
)

// Event is one notification about a single monitor.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	MonitorID string    `json:"monitor_id"`
	Data      any       `json:"data"`
	At        time.Time `json:"at"`
}

// StatusChange is the Data of a status_change event.
type StatusChange struct {
	MonitorID string         `json:"monitor_id"`
	TargetID  string         `json:"match_id"`
	Previous  monitor.Status `json:"previous_status"`
	Status    monitor.Status `json:"status"`
	Running   bool           `json:"running"`
}

// AlertData is the Data of a new_alert event.
type AlertData struct {
	MonitorID string        `json:"monitor_id"`
	TargetID  string        `json:"match_id"`
	Alert     monitor.Alert `json:"alert"`
}

// New returns an event with a fresh id.
func New(t Type, monitorID string, data any, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: t, MonitorID: monitorID, Data: data, At: at}
}

// Publisher accepts events. Publish must not block on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Fanout publishes every event to each Publisher in order.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, ev Event) {
	for _, p := range f {
		p.Publish(ctx, ev)
	}
}
