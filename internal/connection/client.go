package connection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/tweetstream/internal/frame"
)

// Doer sends HTTP requests. A signing *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client represents a single streaming connection attempt.
type Client interface {
	// Connect issues the request. The outcome arrives as Reports.
	Connect(ctx context.Context) error

	// Close aborts the request and stops all reporting. Idempotent.
	Close() error

	// ID identifies this attempt in logs and events.
	ID() uuid.UUID

	// State returns the attempt's current state.
	State() ClientState
}

// client implements the Client interface over a chunked HTTP response.
type client struct {
	cfg        ClientConfig
	doer       Doer
	reports    chan<- Report
	generation uint64
	id         uuid.UUID
	logger     *slog.Logger
	parser     *frame.Parser

	cancel   context.CancelFunc
	stop     chan struct{}
	timedOut atomic.Bool

	mu      sync.Mutex
	state   ClientState
	started bool
	closed  bool
}

// NewClient creates a connection attempt that sends its reports to reports,
// tagged with generation.
func NewClient(cfg ClientConfig, doer Doer, reports chan<- Report, generation uint64, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = 32 * 1024
	}

	id := uuid.New()
	return &client{
		cfg:        cfg,
		doer:       doer,
		reports:    reports,
		generation: generation,
		id:         id,
		logger:     logger.With("session_id", id, "generation", generation),
		parser:     frame.NewParser(),
		stop:       make(chan struct{}),
		state:      ClientConnecting,
	}
}

// Connect issues the POST and returns once the request is in flight.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, strings.NewReader(c.cfg.Params.Encode()))
	if err != nil {
		c.cancel()
		c.setState(ClientFailed)
		return err
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	c.logger.Debug("connecting", "url", c.cfg.URL)
	go c.run(req)
	return nil
}

// Close aborts the in-flight request.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = ClientClosed
	cancel := c.cancel
	c.mu.Unlock()

	close(c.stop)
	if cancel != nil {
		cancel()
	}
	return nil
}

// ID returns the attempt's session ID.
func (c *client) ID() uuid.UUID {
	return c.id
}

// State returns the attempt's current state.
func (c *client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// run performs the request and pumps the body through the parser.
func (c *client) run(req *http.Request) {
	idle := time.AfterFunc(c.cfg.IdleTimeout, func() {
		c.timedOut.Store(true)
		c.cancel()
	})
	defer idle.Stop()
	defer c.parser.Close()

	resp, err := c.doer.Do(req)
	if err != nil {
		c.fail(c.transportFailure(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.fail(&Failure{Kind: FailureHTTP, StatusCode: resp.StatusCode, Info: resp.Status})
		return
	}

	idle.Reset(c.cfg.IdleTimeout)
	c.setState(ClientOpen)
	c.logger.Debug("stream open", "status", resp.StatusCode)
	if !c.report(Report{Kind: ReportOpen}) {
		return
	}

	buf := make([]byte, c.cfg.ReadSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			idle.Reset(c.cfg.IdleTimeout)
			receivedAt := time.Now()

			frames, perr := c.parser.Receive(buf[:n])
			if perr != nil {
				return
			}
			for _, f := range frames {
				if !c.report(Report{Kind: ReportFrame, Frame: f, ReceivedAt: receivedAt}) {
					return
				}
			}
		}
		if err == nil {
			continue
		}

		switch {
		case c.isClosed():
		case c.timedOut.Load():
			c.fail(networkFailure("timeout", ErrIdleTimeout))
		case errors.Is(err, io.EOF):
			c.setState(ClientFailed)
			c.logger.Debug("stream ended by server")
			c.report(Report{Kind: ReportEnd})
		case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
			// The transport dropped without a normal end; make sure it is gone.
			c.cancel()
			c.setState(ClientFailed)
			c.logger.Debug("socket closed", "error", err)
			c.report(Report{Kind: ReportDestroyed, Failure: networkFailure(err.Error(), ErrSocketClosed)})
		default:
			c.fail(networkFailure(err.Error(), err))
		}
		return
	}
}

// transportFailure classifies an error returned by Do.
func (c *client) transportFailure(err error) *Failure {
	if c.timedOut.Load() {
		return networkFailure("timeout", ErrIdleTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return networkFailure("timeout", err)
	}
	return networkFailure(err.Error(), err)
}

func (c *client) fail(f *Failure) {
	if c.isClosed() {
		return
	}
	c.setState(ClientFailed)
	c.logger.Debug("attempt failed", "kind", f.Kind, "status", f.StatusCode, "info", f.Info)
	c.report(Report{Kind: ReportFailed, Failure: f})
}

// report delivers r to the manager unless the client has been closed.
func (c *client) report(r Report) bool {
	r.Generation = c.generation
	r.SessionID = c.id
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = time.Now()
	}

	select {
	case c.reports <- r:
		return true
	case <-c.stop:
		return false
	}
}

func (c *client) setState(s ClientState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ClientClosed {
		c.state = s
	}
}

func (c *client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
