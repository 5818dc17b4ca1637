// Package api implements the HTTP REST API for cric-alert.
//
// New(opts) returns a gin router that serves:
//
//	GET    /health                       status, timestamp, running monitors, version
//	GET    /ping                         {"message":"pong"}
//	GET    /metrics                      Prometheus text exposition (when configured)
//	GET    /ws/:id                       per-monitor WebSocket stream (when configured)
//	POST   /api/v1/alerts                create a monitor; 201, 404 if the match is unknown
//	GET    /api/v1/alerts                monitor summaries, newest first; ?match_id= filters
//	GET    /api/v1/alerts/:id            monitor detail with the last 10 alerts
//	PUT    /api/v1/alerts/:id/stop       409 if the monitor already finished
//	PUT    /api/v1/alerts/:id/start      400 unless STOPPED or ERROR with rules
//	DELETE /api/v1/alerts/:id/delete     remove the monitor, its alerts and subscribers
//	GET    /api/v1/matches/:id           score summary
//	GET    /api/v1/matches/:id/detail    description, format, teams, raw miniscore
//	GET    /api/v1/matches/:id/active    {"is_active": bool}
//
// Errors are JSON bodies of the form {"error": "..."}. CORS follows
// server.allowed_origins. When Options.Auth is set it runs in front of every
// /api/v1 route; /health, /ping, /metrics and /ws stay open. JSON types are
// defined in types.go.
package api
