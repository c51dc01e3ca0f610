// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Stream connection state, attempts and reconnects by reason
//   - Failures by kind and status, dropped duplicate failures
//   - Frames by channel and parse errors
//   - Backoff delays per strategy
//   - Archive writer inserts, updates and errors
//
// A nil *Metrics is valid and records nothing.
package metrics
