package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jaipatel248/cric-alert/server/internal/config"
	"github.com/jaipatel248/cric-alert/server/internal/monitor"
)

// Webhook posts new_alert and status_change events to slack, teams or
// generic http endpoints. Delivery runs in its own goroutine per event.
type Webhook struct {
	targets []config.WebhookConfig
	client  *http.Client
}

// NewWebhook returns a Webhook for targets.
func NewWebhook(targets []config.WebhookConfig) *Webhook {
	return &Webhook{targets: targets, client: &http.Client{Timeout: 10 * time.Second}}
}

// Publish implements Publisher.
func (w *Webhook) Publish(_ context.Context, ev Event) {
	if ev.Type != TypeNewAlert && ev.Type != TypeStatusChange {
		return
	}
	go w.deliver(ev)
}

// deliver sends ev to all configured targets.
// Errors are logged but do not affect the caller.
func (w *Webhook) deliver(ev Event) {
	for _, wh := range w.targets {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = w.sendSlack(url, ev)
		case "teams":
			err = w.sendTeams(url, ev)
		case "http":
			err = w.sendHTTP(url, ev)
		default:
			slog.Warn("notify: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("notify: webhook delivery failed",
				"type", wh.Type,
				"monitor", ev.MonitorID,
				"event", ev.Type,
				"err", err,
			)
		} else {
			slog.Debug("notify: webhook delivered",
				"type", wh.Type,
				"monitor", ev.MonitorID,
				"event", ev.Type,
			)
		}
	}
}

func (w *Webhook) sendSlack(url string, ev Event) error {
	title, text := summarize(ev)
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s", title, text),
	})
	return w.post(url, body)
}

func (w *Webhook) sendTeams(url string, ev Event) error {
	title, text := summarize(ev)
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": eventColor(ev),
		"summary":    title,
		"title":      "Cricket Alert: " + title,
		"text":       text,
	}
	body, _ := json.Marshal(payload)
	return w.post(url, body)
}

func (w *Webhook) sendHTTP(url string, ev Event) error {
	body, _ := json.Marshal(ev)
	return w.post(url, body)
}

func (w *Webhook) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// summarize renders ev as a title and a line of text.
func summarize(ev Event) (title, text string) {
	switch d := ev.Data.(type) {
	case AlertData:
		return fmt.Sprintf("[%s] match %s", d.Alert.Kind, d.TargetID), d.Alert.Message
	case StatusChange:
		return fmt.Sprintf("[%s] match %s", upper(d.Status), d.TargetID),
			fmt.Sprintf("Monitor %s: %s -> %s", d.MonitorID, d.Previous, d.Status)
	default:
		return string(ev.Type), ev.MonitorID
	}
}

func eventColor(ev Event) string {
	var kind monitor.AlertKind
	switch d := ev.Data.(type) {
	case AlertData:
		kind = d.Alert.Kind
	case StatusChange:
		switch d.Status {
		case monitor.StatusTriggered:
			kind = monitor.KindTrigger
		case monitor.StatusAborted, monitor.StatusError:
			kind = monitor.KindAborted
		}
	}
	switch kind {
	case monitor.KindTrigger:
		return "00C853"
	case monitor.KindAborted:
		return "FF4F6A"
	case monitor.KindHard:
		return "FFAB40"
	default:
		return "00D4FF"
	}
}

func upper(s monitor.Status) string { return strings.ToUpper(string(s)) }
