package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Delimiter separates frames on the wire.
var Delimiter = []byte("\r\n")

var (
	// ErrClosed is returned by Receive after Close.
	ErrClosed = errors.New("frame parser closed")

	// ErrNotObject is the DecodeError cause for valid JSON that is not an object.
	ErrNotObject = errors.New("frame is not a JSON object")
)

// DecodeError reports a frame that is not a valid JSON object.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid JSON frame (%d bytes): %v", len(e.Raw), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Frame is one decoded frame. Exactly one of Fields or Err is set.
type Frame struct {
	Fields map[string]json.RawMessage
	Raw    []byte
	Err    error
}

// Parser accumulates chunks and splits them into frames.
// A Parser is owned by a single connection and is not safe for concurrent use.
type Parser struct {
	buf    []byte
	off    int // start of the unconsumed tail
	scan   int // bytes before this index hold no delimiter start
	closed bool
}

// NewParser creates an empty Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Receive appends chunk to the buffer and returns every frame completed by it,
// in arrival order. Heartbeats are dropped.
func (p *Parser) Receive(chunk []byte) ([]Frame, error) {
	if p.closed {
		return nil, ErrClosed
	}
	p.buf = append(p.buf, chunk...)

	var frames []Frame
	for {
		start := p.scan
		if start < p.off {
			start = p.off
		}
		idx := bytes.Index(p.buf[start:], Delimiter)
		if idx < 0 {
			// The last byte may be the first half of a split delimiter.
			p.scan = len(p.buf) - len(Delimiter) + 1
			break
		}

		end := start + idx
		line := p.buf[p.off:end]
		p.off = end + len(Delimiter)
		p.scan = p.off

		if len(line) == 0 {
			continue
		}
		frames = append(frames, decode(line))
	}

	p.compact()
	return frames, nil
}

// Buffered returns the size of the pending partial frame.
func (p *Parser) Buffered() int {
	return len(p.buf) - p.off
}

// Close discards buffered state. Receive must not be used afterwards.
func (p *Parser) Close() {
	p.closed = true
	p.buf = nil
	p.off = 0
	p.scan = 0
}

// compact moves the unconsumed tail to the front of the buffer.
func (p *Parser) compact() {
	if p.off == 0 {
		return
	}
	n := copy(p.buf, p.buf[p.off:])
	p.buf = p.buf[:n]
	p.scan -= p.off
	if p.scan < 0 {
		p.scan = 0
	}
	p.off = 0
}

func decode(line []byte) Frame {
	raw := append([]byte(nil), line...)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		if json.Valid(raw) {
			err = ErrNotObject
		}
		return Frame{Raw: raw, Err: &DecodeError{Raw: raw, Err: err}}
	}
	if fields == nil {
		return Frame{Raw: raw, Err: &DecodeError{Raw: raw, Err: ErrNotObject}}
	}
	return Frame{Fields: fields, Raw: raw}
}
