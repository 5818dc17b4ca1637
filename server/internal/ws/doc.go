// Package ws implements the WebSocket hub for cric-alert.
//
// Each client attaches to one monitor. Hub.ServeMonitor answers 404 for an
// unknown monitor, otherwise upgrades the connection, sends the current
// monitor state, then relays every engine event for that monitor until the
// client disconnects or the monitor is deleted.
//
// Hub.Run(ctx) blocks until ctx is cancelled, then closes all connections.
//
// Message format sent to clients:
//
//	{
//	  "type": "monitor_update" | "new_alert" | "status_change" |
//	          "expected_next_check_update" | "pong",
//	  "data": { ... }
//	}
//
// Clients may send the text frames "ping" (answered with a pong message)
// and "refresh" (answered with monitor_update). The server mounts the hub at
// /ws/:id. Origins are checked against server.allowed_origins.
package ws
