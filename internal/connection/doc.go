// Package connection implements the streaming connection and its manager.
//
// A Client owns one physical attempt: it POSTs the signed request, applies
// the idle timeout to the header wait and to every gap between chunks, feeds
// the body to a frame.Parser and sends Reports to its Manager.
//
// The Manager owns the current Client plus at most one backoff timer:
//   - network failures reconnect on a linear schedule (250ms steps, 16s cap)
//   - HTTP 403/404/503 reconnect exponentially from 5s, capped at 320s
//   - HTTP 420 reconnects exponentially from 60s with no cap
//   - any other status is fatal and surfaces a terminal error event
//
// Only one recovery episode runs at a time; failures reported while one is
// active are dropped. The episode ends when an attempt opens. All manager
// state is owned by a single goroutine, so Stop never races a reconnect.
package connection
