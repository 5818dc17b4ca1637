package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/jaipatel248/cric-alert/server/internal/config"
	"github.com/jaipatel248/cric-alert/server/internal/monitor"
)

// Email sends a SendGrid mail for every TRIGGER and ABORTED alert.
type Email struct {
	from *mail.Email
	to   []*mail.Email
	send func(*mail.SGMailV3) error
}

// NewEmail builds an Email sink from cfg using the key in cfg.KeyEnv.
func NewEmail(cfg config.EmailConfig) *Email {
	client := sendgrid.NewSendClient(cfg.Key())
	return newEmail(cfg, func(m *mail.SGMailV3) error {
		resp, err := client.Send(m)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("sendgrid returned HTTP %d: %s", resp.StatusCode, resp.Body)
		}
		return nil
	})
}

func newEmail(cfg config.EmailConfig, send func(*mail.SGMailV3) error) *Email {
	e := &Email{from: mail.NewEmail("Cricket Alert", cfg.From), send: send}
	for _, addr := range cfg.To {
		e.to = append(e.to, mail.NewEmail("", addr))
	}
	return e
}

// Publish implements Publisher.
func (e *Email) Publish(_ context.Context, ev Event) {
	d, ok := ev.Data.(AlertData)
	if !ok || ev.Type != TypeNewAlert {
		return
	}
	if d.Alert.Kind != monitor.KindTrigger && d.Alert.Kind != monitor.KindAborted {
		return
	}
	go e.deliver(ev.MonitorID, d)
}

func (e *Email) deliver(monitorID string, d AlertData) {
	if err := e.send(e.message(d)); err != nil {
		slog.Error("notify: email delivery failed", "monitor", monitorID, "err", err)
		return
	}
	slog.Debug("notify: email delivered", "monitor", monitorID, "kind", d.Alert.Kind)
}

func (e *Email) message(d AlertData) *mail.SGMailV3 {
	subject := fmt.Sprintf("[%s] match %s", d.Alert.Kind, d.TargetID)
	text := fmt.Sprintf("%s\n\nMonitor: %s\nAt: %s\n", d.Alert.Message, d.MonitorID,
		d.Alert.Timestamp.Format("2006-01-02 15:04:05 MST"))

	m := mail.NewV3Mail()
	m.SetFrom(e.from)
	m.Subject = subject
	p := mail.NewPersonalization()
	p.AddTos(e.to...)
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/plain", text))
	return m
}
