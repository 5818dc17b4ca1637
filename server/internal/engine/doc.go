// Package engine is the monitor orchestration engine. It owns the registry
// of monitors, runs one evaluation cycle goroutine per running monitor,
// applies lifecycle transitions, persists every change through a
// store.Store and publishes every change through notify.
//
// Concurrency:
//   - Engine.mu guards the registry map only.
//   - entry.mu guards one monitor's in-memory state. It is never held across
//     a provider, interpreter, store or notify call.
//   - entry.pmu serialises that monitor's store writes. Each write persists
//     the latest in-memory record, so a slow writer can never overwrite a
//     newer state with an older one.
//   - Each cycle runs under its own context. A replacement task waits for
//     the previous one to exit, so at most one poller exists per monitor.
//
// Stop and Delete cancel the task's context; the task observes it at the top
// of its loop or when its in-flight call returns, and discards any result
// that arrives after the stop.
//
// Store failures inside a cycle never fail the monitor. The entry is marked
// dirty (or its alerts queued) and the reconcile job started by Run retries
// the write.
package engine
