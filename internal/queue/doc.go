// Package queue provides the unbounded FIFO used between pipeline stages.
//
// Producers never block: the stream must keep draining the socket during
// reconnect storms or slow consumers, so the buffer doubles instead of
// applying backpressure.
package queue
