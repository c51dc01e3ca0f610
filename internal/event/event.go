package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the channel an event is delivered on.
type Kind int

const (
	KindTweet Kind = iota
	KindLimit
	KindDelete
	KindScrubGeo
	KindError
	KindReconnect
	KindDestroy
)

// String returns the wire name of the channel.
func (k Kind) String() string {
	switch k {
	case KindTweet:
		return "tweet"
	case KindLimit:
		return "limit"
	case KindDelete:
		return "delete"
	case KindScrubGeo:
		return "scrub_geo"
	case KindError:
		return "error"
	case KindReconnect:
		return "reconnect"
	case KindDestroy:
		return "destroy"
	default:
		return "unknown"
	}
}

// ErrorKind classifies an Error event.
type ErrorKind string

const (
	ErrorParse   ErrorKind = "parse"
	ErrorHTTP    ErrorKind = "http"
	ErrorNetwork ErrorKind = "network"
)

// ErrNoPayload is returned by Decode for events that carry no payload.
var ErrNoPayload = errors.New("event has no payload")

// Event is a tagged union; Kind says which fields are meaningful.
type Event struct {
	Kind Kind

	// Data channels (tweet, limit, delete, scrub_geo)
	Payload json.RawMessage

	// Error
	ErrKind    ErrorKind
	StatusCode int // HTTP status for ErrorHTTP
	Info       string
	Err        error

	// Reconnect
	Reason  string
	Attempt int
	Delay   time.Duration

	SessionID  uuid.UUID // Connection attempt that produced the event
	ReceivedAt time.Time
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return ErrNoPayload
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return nil
}

// String summarizes the event for logs.
func (e Event) String() string {
	switch e.Kind {
	case KindError:
		if e.ErrKind == ErrorHTTP {
			return fmt.Sprintf("error(http, %d)", e.StatusCode)
		}
		return fmt.Sprintf("error(%s, %s)", e.ErrKind, e.Info)
	case KindReconnect:
		return fmt.Sprintf("reconnect(%s, attempt=%d)", e.Reason, e.Attempt)
	case KindDestroy:
		return fmt.Sprintf("destroy(%s)", e.Info)
	default:
		return fmt.Sprintf("%s(%d bytes)", e.Kind, len(e.Payload))
	}
}

// NewError builds an Error event.
func NewError(kind ErrorKind, info string, err error) Event {
	return Event{Kind: KindError, ErrKind: kind, Info: info, Err: err, ReceivedAt: time.Now()}
}

// NewHTTPError builds a terminal Error(http, code) event.
func NewHTTPError(code int) Event {
	return Event{
		Kind:       KindError,
		ErrKind:    ErrorHTTP,
		StatusCode: code,
		Info:       fmt.Sprintf("HTTP %d", code),
		ReceivedAt: time.Now(),
	}
}

// NewReconnect builds a Reconnect event.
func NewReconnect(reason string, attempt int, delay time.Duration) Event {
	return Event{Kind: KindReconnect, Reason: reason, Attempt: attempt, Delay: delay, ReceivedAt: time.Now()}
}

// NewDestroy builds a Destroy event.
func NewDestroy(info string) Event {
	return Event{Kind: KindDestroy, Info: info, ReceivedAt: time.Now()}
}
