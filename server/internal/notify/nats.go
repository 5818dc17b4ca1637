package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS mirrors every event onto <prefix>.<monitor>.<type>. The event id is
// sent as the Nats-Msg-Id header so a JetStream stream can dedupe replays.
type NATS struct {
	conn   *nats.Conn
	prefix string
}

// DialNATS connects to url. The connection reconnects on its own; publishes
// while disconnected are buffered by the client.
func DialNATS(url, prefix string) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("cric-alert"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("notify: nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("notify: nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: connect nats: %w", err)
	}
	return &NATS{conn: conn, prefix: prefix}, nil
}

// Subject returns the subject ev is published on.
func (n *NATS) Subject(ev Event) string {
	return Subject(n.prefix, ev)
}

// Subject builds <prefix>.<monitor>.<type>, replacing characters that are
// not valid in a subject token.
func Subject(prefix string, ev Event) string {
	if prefix == "" {
		prefix = "cricalert"
	}
	return prefix + "." + token(ev.MonitorID) + "." + token(string(ev.Type))
}

func token(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// Publish implements Publisher.
func (n *NATS) Publish(_ context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("notify: encode event", "monitor", ev.MonitorID, "err", err)
		return
	}
	msg := nats.NewMsg(n.Subject(ev))
	msg.Header.Set(nats.MsgIdHdr, ev.ID)
	msg.Data = data
	if err := n.conn.PublishMsg(msg); err != nil {
		slog.Error("notify: nats publish failed", "subject", msg.Subject, "err", err)
	}
}

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() {
	if n.conn != nil {
		n.conn.Drain() //nolint:errcheck
		n.conn.Close()
	}
}
