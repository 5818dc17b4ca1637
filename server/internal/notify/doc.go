// Package notify carries engine events to live subscribers and outbound sinks.
//
// Event types:
//   - monitor_update: full monitor view (sent on connect and refresh)
//   - new_alert: one appended alert
//   - status_change: status and running flag after a transition
//   - expected_next_check_update: the interpreter's latest delay hint
//
// Broker is the in-process per-monitor multicast behind Engine.Subscribe. A
// subscriber whose buffer is full is dropped. Webhook, NATS and Email are
// fire-and-forget sinks; their failures are logged and never reach the
// engine. Fanout combines any number of Publishers.
package notify
