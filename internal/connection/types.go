package connection

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/tweetstream/internal/frame"
)

// Errors
var (
	ErrAlreadyClosed  = errors.New("already closed")
	ErrAlreadyStarted = errors.New("manager already started")
	ErrNotStarted     = errors.New("manager not started")
	ErrIdleTimeout    = errors.New("timeout")
	ErrStreamEnded    = errors.New("stream ended by server")
	ErrSocketClosed   = errors.New("socket closed")
)

// DefaultIdleTimeout is the longest the stream may stay silent, including
// the wait for response headers.
const DefaultIdleTimeout = 90 * time.Second

// FailureKind is the coarse class of a failed attempt.
type FailureKind string

const (
	FailureNetwork FailureKind = "network"
	FailureHTTP    FailureKind = "http"
)

// Failure describes why a connection attempt failed.
type Failure struct {
	Kind       FailureKind
	StatusCode int    // set for FailureHTTP
	Info       string // "timeout", transport error text, ...
	Err        error
}

func (f *Failure) Error() string {
	if f.Kind == FailureHTTP {
		return fmt.Sprintf("http error: status %d", f.StatusCode)
	}
	return fmt.Sprintf("network error: %s", f.Info)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func networkFailure(info string, err error) *Failure {
	return &Failure{Kind: FailureNetwork, Info: info, Err: err}
}

// ReportKind identifies a Report.
type ReportKind int

const (
	ReportOpen      ReportKind = iota // response headers with a 2xx status
	ReportFrame                       // one decoded (or undecodable) frame
	ReportFailed                      // attempt failed, see Failure
	ReportEnd                         // server ended the body normally
	ReportDestroyed                   // socket closed without a normal end
)

func (k ReportKind) String() string {
	switch k {
	case ReportOpen:
		return "open"
	case ReportFrame:
		return "frame"
	case ReportFailed:
		return "failed"
	case ReportEnd:
		return "end"
	case ReportDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Report is sent from a Client to the Manager that owns it.
type Report struct {
	Kind       ReportKind
	Generation uint64    // attempt number assigned by the manager
	SessionID  uuid.UUID // Client.ID() of the sender
	Frame      frame.Frame
	Failure    *Failure
	ReceivedAt time.Time
}

// ClientState is the state of a single connection attempt.
type ClientState int

const (
	ClientConnecting ClientState = iota
	ClientOpen
	ClientFailed
	ClientClosed
)

func (s ClientState) String() string {
	switch s {
	case ClientConnecting:
		return "connecting"
	case ClientOpen:
		return "open"
	case ClientFailed:
		return "failed"
	case ClientClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// State is the manager's connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateBackoff
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateBackoff:
		return "backoff"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// ClientConfig configures one streaming request.
type ClientConfig struct {
	URL         string        // Full endpoint URL, e.g. https://stream.twitter.com/1.1/statuses/filter.json
	Params      url.Values    // Form-encoded request body
	IdleTimeout time.Duration // Max silence before the attempt fails with "timeout"
	UserAgent   string
	ReadSize    int // Body read buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		IdleTimeout: DefaultIdleTimeout,
		ReadSize:    32 * 1024,
	}
}

// ManagerConfig configures the Manager.
type ManagerConfig struct {
	Client     ClientConfig
	BufferSize int // Initial capacity of the event queue
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:     DefaultClientConfig(),
		BufferSize: 10000,
	}
}

// ManagerStats provides statistics about the manager.
type ManagerStats struct {
	State           State
	SessionID       uuid.UUID // current attempt
	Attempts        int64     // connection attempts started
	Reconnects      int64
	Failures        int64
	DroppedFailures int64 // failures ignored during an active episode
	StaleReports    int64 // reports from discarded attempts
	Frames          int64
	ParseErrors     int64
	QueueDepth      int
}
