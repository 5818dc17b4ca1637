// Package store persists monitor records and their append-only alert
// history. Store is the interface the engine depends on; Open selects a
// backend by name:
//
//	memory  : process-local maps, lost on restart (tests, development)
//	file    : one JSON document on disk, rewritten atomically on every change
//	redis   : monitor:<id> JSON string, monitor:<id>:alerts list, monitors set
//	postgres: monitors and monitor_alerts tables holding jsonb documents
//
// Every backend is safe for concurrent use. Records of different monitors
// are written independently; there are no cross-monitor transactions.
package store
