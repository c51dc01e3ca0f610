// Package frame decodes the streaming feed's wire format.
//
// The feed is an unbounded sequence of UTF-8 JSON objects separated by CR LF.
// Chunks arrive with arbitrary boundaries: a chunk may hold several frames, a
// fraction of one, or split the delimiter itself. Empty frames are keep-alive
// heartbeats and produce nothing. A malformed frame yields a Frame with Err set
// and scanning continues with the next one.
package frame
