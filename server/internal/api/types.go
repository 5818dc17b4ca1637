package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jaipatel248/cric-alert/server/internal/monitor"
)

// MatchID accepts a match identifier as either a JSON number or a string.
type MatchID string

// UnmarshalJSON implements json.Unmarshaler.
func (m *MatchID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = MatchID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("match_id must be a number or string")
	}
	*m = MatchID(n.String())
	return nil
}

// CreateAlertRequest is the body of POST /api/v1/alerts.
type CreateAlertRequest struct {
	MatchID   MatchID `json:"match_id" binding:"required"`
	AlertText string  `json:"alert_text" binding:"required"`
}

// CreateAlertResponse is returned by POST /api/v1/alerts.
type CreateAlertResponse struct {
	MonitorID string          `json:"monitor_id"`
	MatchID   string          `json:"match_id"`
	AlertText string          `json:"alert_text"`
	Rules     json.RawMessage `json:"rules,omitempty"`
	Status    monitor.Status  `json:"status"`
	Message   string          `json:"message"`
	CreatedAt time.Time       `json:"created_at"`
}

// ActionResponse is returned by the stop, start and delete endpoints.
type ActionResponse struct {
	MonitorID string         `json:"monitor_id"`
	Status    monitor.Status `json:"status"`
	Message   string         `json:"message"`
}

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"` // RFC3339
	ActiveMonitors int    `json:"active_monitors"`
	Version        string `json:"version"`
}

// MatchActiveResponse is the payload for GET /api/v1/matches/:id/active.
type MatchActiveResponse struct {
	MatchID  string `json:"match_id"`
	IsActive bool   `json:"is_active"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
