// Package router fans the connection manager's ordered event queue out to
// one buffer per channel: tweet, limit, delete, scrub_geo and notice
// (error, reconnect and destroy). Buffers grow instead of blocking, so a
// slow consumer never stalls the stream.
package router
