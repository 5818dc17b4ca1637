// Package metrics keeps the engine's counters and renders them in the
// Prometheus text exposition format for GET /metrics.
//
// Families:
//   - cricalert_polls_total
//   - cricalert_fetch_failures_total
//   - cricalert_evaluations_total
//   - cricalert_interpreter_failures_total
//   - cricalert_alerts_total{kind}
//   - cricalert_monitors{status} (gauge, read from the engine at scrape time)
package metrics
