package engine

import (
	"encoding/json"
	"time"

	"github.com/jaipatel248/cric-alert/server/internal/monitor"
)

// RecentAlerts is how many alerts a Detail carries.
const RecentAlerts = 10

// Summary is the list view of a monitor.
type Summary struct {
	ID               string         `json:"monitor_id"`
	TargetID         string         `json:"match_id"`
	AlertText        string         `json:"alert_text"`
	Status           monitor.Status `json:"status"`
	Running          bool           `json:"running"`
	CreatedAt        time.Time      `json:"created_at"`
	AlertsCount      int            `json:"alerts_count"`
	LastAlertMessage string         `json:"last_alert_message,omitempty"`
}

// Detail is the single-monitor view.
type Detail struct {
	Summary
	Rules             json.RawMessage    `json:"rules,omitempty"`
	ExpectedNextCheck *monitor.NextCheck `json:"expectedNextCheck,omitempty"`
	UpdatedAt         time.Time          `json:"updated_at"`
	RecentAlerts      []monitor.Alert    `json:"recent_alerts"`
}

// SummaryOf builds the list view of m.
func SummaryOf(m monitor.Monitor) Summary {
	s := Summary{
		ID:          m.ID,
		TargetID:    m.TargetID,
		AlertText:   m.AlertText,
		Status:      m.Status,
		Running:     m.Running,
		CreatedAt:   m.CreatedAt,
		AlertsCount: len(m.Alerts),
	}
	if last, ok := m.LastAlert(); ok {
		s.LastAlertMessage = last.Message
	}
	return s
}

// DetailOf builds the single-monitor view of m with its last RecentAlerts alerts.
func DetailOf(m monitor.Monitor) Detail {
	recent := m.Alerts
	if len(recent) > RecentAlerts {
		recent = recent[len(recent)-RecentAlerts:]
	}
	out := make([]monitor.Alert, len(recent))
	copy(out, recent)
	return Detail{
		Summary:           SummaryOf(m),
		Rules:             m.Rules,
		ExpectedNextCheck: m.ExpectedNextCheck,
		UpdatedAt:         m.UpdatedAt,
		RecentAlerts:      out,
	}
}
