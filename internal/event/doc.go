// Package event defines the events a stream delivers to its consumer and the
// classifier that maps decoded frames onto them.
//
// Conventions:
//   - Payloads stay as raw JSON until a consumer decodes them with Event.Decode.
//   - Status and user IDs are int64; the *_str twins are kept for consumers
//     that cannot represent 64-bit integers.
//   - Every event carries the session ID of the connection attempt that
//     produced it.
package event
