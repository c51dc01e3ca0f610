// Package backoff implements the reconnect delay schedules required by the
// streaming service's operational guidelines:
//
//   - Network: linear, 250ms per attempt, capped at 16s. For TCP/IP level
//     failures, which tend to clear quickly.
//   - HTTP: exponential from 5s, doubling, capped at 320s. For retryable HTTP
//     status codes (403, 404, 503).
//   - RateLimit: exponential from 60s, doubling, never capped. For HTTP 420;
//     every additional 420 extends the time the account stays limited.
//
// A Strategy is created fresh for every failure episode and is never reused.
package backoff
