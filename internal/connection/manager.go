package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/tweetstream/internal/backoff"
	"github.com/rickgao/tweetstream/internal/event"
	"github.com/rickgao/tweetstream/internal/metrics"
	"github.com/rickgao/tweetstream/internal/queue"
)

// Reconnect reasons.
const (
	ReasonNetwork   = "Network Error"
	ReasonHTTP      = "HTTP Error"
	ReasonRateLimit = "Rate Limited"
)

// retryableHTTP lists statuses retried with the http strategy. 420 is
// handled separately by the rate-limit strategy.
var retryableHTTP = map[int]bool{
	403: true,
	404: true,
	503: true,
}

// StatusRateLimited is the upstream's "enhance your calm" status.
const StatusRateLimited = 420

// Manager keeps one logical stream subscription alive.
type Manager interface {
	// Start connects and begins recovery supervision.
	Start(ctx context.Context) error

	// Stop cancels any pending reconnect, closes the connection and closes
	// the event queue.
	Stop(ctx context.Context) error

	// Events returns the ordered output queue.
	Events() *queue.GrowableBuffer[event.Event]

	// State returns the current connection state.
	State() State

	// Stats returns current statistics.
	Stats() ManagerStats
}

// ClientFactory creates the connection attempt for generation.
type ClientFactory func(generation uint64, reports chan<- Report) Client

// timerFunc arms a one-shot timer and returns its channel and stop function.
type timerFunc func(d time.Duration) (<-chan time.Time, func() bool)

func realTimer(d time.Duration) (<-chan time.Time, func() bool) {
	t := time.NewTimer(d)
	return t.C, t.Stop
}

// manager implements the Manager interface. All fields below the mutex
// comment are owned by the run goroutine.
type manager struct {
	cfg       ManagerConfig
	newClient ClientFactory
	newTimer  timerFunc
	logger    *slog.Logger
	metrics   *metrics.Metrics

	events  *queue.GrowableBuffer[event.Event]
	reports chan Report

	lifecycleMu sync.Mutex
	started     bool
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}

	state     atomic.Int32
	sessionID atomic.Value // uuid.UUID

	// Loop-owned state
	client     Client
	generation uint64
	strategy   *backoff.Strategy
	reason     string
	delay      time.Duration
	timerC     <-chan time.Time
	timerStop  func() bool

	// Stats
	attempts        atomic.Int64
	reconnects      atomic.Int64
	failures        atomic.Int64
	droppedFailures atomic.Int64
	staleReports    atomic.Int64
	frames          atomic.Int64
	parseErrors     atomic.Int64
}

// NewManager creates a Manager that streams through doer, which must sign
// its requests.
func NewManager(cfg ManagerConfig, doer Doer, m *metrics.Metrics, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	factory := func(generation uint64, reports chan<- Report) Client {
		return NewClient(cfg.Client, doer, reports, generation, logger)
	}
	return newManager(cfg, factory, realTimer, m, logger)
}

// NewManagerWithFactory creates a Manager with a custom client factory.
func NewManagerWithFactory(cfg ManagerConfig, factory ClientFactory, m *metrics.Metrics, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return newManager(cfg, factory, realTimer, m, logger)
}

func newManager(cfg ManagerConfig, factory ClientFactory, timer timerFunc, m *metrics.Metrics, logger *slog.Logger) *manager {
	if cfg.BufferSize < 1 {
		cfg.BufferSize = DefaultManagerConfig().BufferSize
	}
	mgr := &manager{
		cfg:       cfg,
		newClient: factory,
		newTimer:  timer,
		logger:    logger,
		metrics:   m,
		events:    queue.NewGrowableBuffer[event.Event](cfg.BufferSize),
		reports:   make(chan Report, 64),
		ctx:       context.Background(),
	}
	mgr.sessionID.Store(uuid.Nil)
	return mgr
}

// Start connects and launches the event loop.
func (m *manager) Start(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	m.logger.Info("starting stream", "url", m.cfg.Client.URL)
	m.connect()

	go m.run()
	return nil
}

// Stop shuts down the event loop and waits for it, bounded by ctx.
func (m *manager) Stop(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if !m.started {
		return ErrNotStarted
	}

	m.logger.Info("stopping stream")
	m.cancel()

	var err error
	select {
	case <-m.done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
		err = ctx.Err()
	}

	m.events.Close()
	m.logger.Info("stream stopped", "attempts", m.attempts.Load(), "reconnects", m.reconnects.Load())
	return err
}

// Events returns the output queue.
func (m *manager) Events() *queue.GrowableBuffer[event.Event] {
	return m.events
}

// State returns the current connection state.
func (m *manager) State() State {
	return State(m.state.Load())
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	return ManagerStats{
		State:           m.State(),
		SessionID:       m.sessionID.Load().(uuid.UUID),
		Attempts:        m.attempts.Load(),
		Reconnects:      m.reconnects.Load(),
		Failures:        m.failures.Load(),
		DroppedFailures: m.droppedFailures.Load(),
		StaleReports:    m.staleReports.Load(),
		Frames:          m.frames.Load(),
		ParseErrors:     m.parseErrors.Load(),
		QueueDepth:      m.events.Len(),
	}
}

// run is the only goroutine that touches loop-owned state after Start.
func (m *manager) run() {
	defer close(m.done)

	for {
		select {
		case <-m.ctx.Done():
			m.shutdown()
			return
		case r := <-m.reports:
			m.handleReport(r)
		case <-m.timerC:
			m.handleTimer()
		}
	}
}

// shutdown cancels the pending reconnect and closes the current attempt.
func (m *manager) shutdown() {
	m.stopTimer()
	m.closeClient()
	m.strategy = nil
	m.setState(StateDestroyed)
}

// connect starts a new attempt and makes it current.
func (m *manager) connect() {
	m.generation++
	c := m.newClient(m.generation, m.reports)
	m.client = c
	m.sessionID.Store(c.ID())
	m.attempts.Add(1)
	m.metrics.ConnectAttempt()

	if m.State() != StateBackoff {
		m.setState(StateConnecting)
	}

	if err := c.Connect(m.ctx); err != nil {
		m.logger.Warn("connect failed", "error", err)
		m.handleFailure(networkFailure(err.Error(), err))
	}
}

func (m *manager) closeClient() {
	if m.client != nil {
		_ = m.client.Close()
		m.client = nil
	}
}

// handleReport dispatches a report from the current attempt.
func (m *manager) handleReport(r Report) {
	if r.Generation != m.generation || m.State() == StateDestroyed {
		m.staleReports.Add(1)
		m.logger.Debug("ignoring stale report", "kind", r.Kind, "generation", r.Generation)
		return
	}

	switch r.Kind {
	case ReportOpen:
		m.handleOpen(r)
	case ReportFrame:
		m.handleFrame(r)
	case ReportFailed:
		m.handleFailure(r.Failure)
	case ReportEnd:
		if m.ctx.Err() != nil {
			return
		}
		m.handleFailure(networkFailure("stream ended", ErrStreamEnded))
	case ReportDestroyed:
		if m.ctx.Err() != nil {
			return
		}
		f := r.Failure
		if f == nil {
			f = networkFailure("socket closed", ErrSocketClosed)
		}
		m.emit(event.NewDestroy(f.Info), r.SessionID)
		m.handleFailure(f)
	}
}

// handleOpen ends any recovery episode.
func (m *manager) handleOpen(r Report) {
	if m.State() == StateBackoff {
		m.logger.Info("stream reconnected",
			"session_id", r.SessionID,
			"reason", m.reason,
			"attempts", m.strategy.Attempts(),
		)
	} else {
		m.logger.Info("stream connected", "session_id", r.SessionID)
	}

	m.stopTimer()
	m.strategy = nil
	m.reason = ""
	m.setState(StateOpen)
}

// handleFrame classifies a frame and queues it for the consumer.
func (m *manager) handleFrame(r Report) {
	if r.Frame.Err != nil {
		m.parseErrors.Add(1)
		m.metrics.ParseError()
		ev := event.NewError(event.ErrorParse, r.Frame.Err.Error(), r.Frame.Err)
		ev.Payload = r.Frame.Raw
		ev.ReceivedAt = r.ReceivedAt
		m.emit(ev, r.SessionID)
		return
	}

	kind, payload := event.Classify(r.Frame.Fields, r.Frame.Raw)
	m.frames.Add(1)
	m.metrics.Frame(kind.String())
	m.emit(event.Event{
		Kind:       kind,
		Payload:    payload,
		ReceivedAt: r.ReceivedAt,
	}, r.SessionID)
}

// handleFailure starts a recovery episode, or drops f if one is running.
func (m *manager) handleFailure(f *Failure) {
	if f == nil || m.State() == StateDestroyed {
		return
	}

	m.failures.Add(1)
	m.metrics.Failure(string(f.Kind), f.StatusCode)

	// At most one recovery episode runs; fatal statuses included.
	if m.State() == StateBackoff {
		m.droppedFailures.Add(1)
		m.metrics.DroppedFailure()
		m.logger.Debug("recovery in progress, dropping failure", "kind", f.Kind, "status", f.StatusCode, "info", f.Info)
		return
	}

	kind, reason, retry := policyFor(f)
	if !retry {
		m.logger.Error("fatal http status, not reconnecting", "status", f.StatusCode)
		m.stopTimer()
		m.closeClient()
		m.strategy = nil
		m.setState(StateDestroyed)
		m.emit(event.NewHTTPError(f.StatusCode), uuid.Nil)
		return
	}

	m.logger.Warn("stream failed", "kind", f.Kind, "status", f.StatusCode, "info", f.Info)
	m.strategy = backoff.New(kind)
	m.reason = reason
	m.setState(StateBackoff)
	m.schedule()
}

// handleTimer runs one step of the recovery chain: replace the attempt and
// immediately arm the next timer with the same strategy.
func (m *manager) handleTimer() {
	m.timerC = nil
	m.timerStop = nil
	if m.State() != StateBackoff || m.strategy == nil || m.ctx.Err() != nil {
		return
	}

	attempt := m.strategy.Attempts()
	m.closeClient()
	m.reconnects.Add(1)
	m.metrics.Reconnect(m.reason)
	m.emit(event.NewReconnect(m.reason, attempt, m.delay), uuid.Nil)

	m.logger.Info("reconnecting", "reason", m.reason, "attempt", attempt)
	m.connect()
	if m.State() == StateBackoff && m.strategy != nil {
		m.schedule()
	}
}

// schedule arms the timer with the strategy's next delay.
func (m *manager) schedule() {
	m.delay = m.strategy.NextDelay()
	m.metrics.Backoff(m.strategy.Kind().String(), m.delay)
	m.logger.Info("reconnect scheduled",
		"reason", m.reason,
		"strategy", m.strategy.Kind(),
		"attempt", m.strategy.Attempts(),
		"delay", m.delay,
	)

	m.stopTimer()
	m.timerC, m.timerStop = m.newTimer(m.delay)
}

func (m *manager) stopTimer() {
	if m.timerStop != nil {
		m.timerStop()
	}
	m.timerC = nil
	m.timerStop = nil
}

// emit queues ev, tagging it with sessionID or the current attempt's ID.
func (m *manager) emit(ev event.Event, sessionID uuid.UUID) {
	if sessionID == uuid.Nil {
		sessionID = m.sessionID.Load().(uuid.UUID)
	}
	ev.SessionID = sessionID
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	if !m.events.Send(ev) {
		m.logger.Debug("event queue closed, dropping event", "event", ev.String())
	}
}

func (m *manager) setState(s State) {
	m.state.Store(int32(s))
	m.metrics.SetState(int(s))
}

// policyFor maps a failure to its backoff strategy and reconnect reason.
// retry is false for fatal HTTP statuses.
func policyFor(f *Failure) (kind backoff.Kind, reason string, retry bool) {
	if f.Kind != FailureHTTP {
		return backoff.Network, ReasonNetwork, true
	}
	if f.StatusCode == StatusRateLimited {
		return backoff.RateLimit, ReasonRateLimit, true
	}
	if retryableHTTP[f.StatusCode] {
		return backoff.HTTP, ReasonHTTP, true
	}
	return 0, "", false
}

// IsFatal reports whether err carries an HTTP status that is never retried.
func IsFatal(err error) bool {
	var f *Failure
	if !errors.As(err, &f) {
		return false
	}
	_, _, retry := policyFor(f)
	return !retry
}
