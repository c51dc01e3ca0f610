// Package writer archives stream events to PostgreSQL in batches.
//
// Writers:
//   - Tweet writer: inserts tweets (ON CONFLICT DO NOTHING)
//   - Compliance writer: applies delete and scrub_geo notices
//
// Each writer drains one router buffer, flushing when the batch is full or
// the flush interval elapses, and once more on shutdown.
package writer
