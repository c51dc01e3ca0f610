package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/tweetstream/internal/event"
	"github.com/rickgao/tweetstream/internal/metrics"
	"github.com/rickgao/tweetstream/internal/queue"
)

// Router fans the manager's ordered event queue out to per-channel buffers.
type Router interface {
	// Start begins routing events from the input queue.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the router and closes the output buffers.
	Stop(ctx context.Context) error

	// Buffers returns output buffers for consumers.
	Buffers() RouterBuffers

	// Stats returns current router statistics.
	Stats() RouterStats
}

// router is the internal implementation.
type router struct {
	cfg     RouterConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	input *queue.GrowableBuffer[event.Event]

	tweetBuf    *queue.GrowableBuffer[event.Event]
	limitBuf    *queue.GrowableBuffer[event.Event]
	deleteBuf   *queue.GrowableBuffer[event.Event]
	scrubGeoBuf *queue.GrowableBuffer[event.Event]
	noticeBuf   *queue.GrowableBuffer[event.Event]

	// Lifecycle
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	// Stats
	received     atomic.Int64
	routed       atomic.Int64
	tweets       atomic.Int64
	limits       atomic.Int64
	deletes      atomic.Int64
	scrubGeos    atomic.Int64
	notices      atomic.Int64
	limitTrack   atomic.Int64
	decodeErrors atomic.Int64
}

// NewRouter creates a Router reading from input.
func NewRouter(cfg RouterConfig, input *queue.GrowableBuffer[event.Event], m *metrics.Metrics, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &router{
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		input:       input,
		tweetBuf:    queue.NewGrowableBuffer[event.Event](cfg.TweetBufferSize),
		limitBuf:    queue.NewGrowableBuffer[event.Event](cfg.LimitBufferSize),
		deleteBuf:   queue.NewGrowableBuffer[event.Event](cfg.DeleteBufferSize),
		scrubGeoBuf: queue.NewGrowableBuffer[event.Event](cfg.ScrubGeoBufferSize),
		noticeBuf:   queue.NewGrowableBuffer[event.Event](cfg.NoticeBufferSize),
	}
}

// Start begins routing events.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("event router started",
		"tweet_buffer", r.cfg.TweetBufferSize,
		"delete_buffer", r.cfg.DeleteBufferSize,
	)

	return nil
}

// Stop gracefully shuts down the router.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping event router")

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// Route whatever is still queued so consumers see it before close.
		for {
			ev, ok := r.input.TryReceive()
			if !ok {
				break
			}
			r.route(ev)
		}
		r.logger.Info("event router stopped")
	case <-ctx.Done():
		r.logger.Warn("event router stop timed out")
	}

	r.closeOutputs()
	return nil
}

// Buffers returns output buffers.
func (r *router) Buffers() RouterBuffers {
	return RouterBuffers{
		Tweet:    r.tweetBuf,
		Limit:    r.limitBuf,
		Delete:   r.deleteBuf,
		ScrubGeo: r.scrubGeoBuf,
		Notice:   r.noticeBuf,
	}
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	return RouterStats{
		EventsReceived: r.received.Load(),
		EventsRouted:   r.routed.Load(),
		Tweets:         r.tweets.Load(),
		Limits:         r.limits.Load(),
		Deletes:        r.deletes.Load(),
		ScrubGeos:      r.scrubGeos.Load(),
		Notices:        r.notices.Load(),
		LimitTrack:     r.limitTrack.Load(),
		DecodeErrors:   r.decodeErrors.Load(),
		TweetBuffer:    r.tweetBuf.Stats(),
		LimitBuffer:    r.limitBuf.Stats(),
		DeleteBuffer:   r.deleteBuf.Stats(),
		ScrubGeoBuffer: r.scrubGeoBuf.Stats(),
		NoticeBuffer:   r.noticeBuf.Stats(),
	}
}

// routeLoop is the main routing goroutine. It exits when ctx is done or the
// input queue is closed and drained; in the latter case outputs are closed
// so consumers see end of stream.
func (r *router) routeLoop() {
	defer r.wg.Done()

	for {
		ev, err := r.input.ReceiveContext(r.ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				r.logger.Info("input queue closed")
				r.closeOutputs()
			}
			return
		}
		r.route(ev)
	}
}

// route delivers one event to its channel buffer.
func (r *router) route(ev event.Event) {
	r.received.Add(1)

	var (
		buf     *queue.GrowableBuffer[event.Event]
		name    string
		counter *atomic.Int64
	)

	switch ev.Kind {
	case event.KindTweet:
		buf, name, counter = r.tweetBuf, "tweet", &r.tweets
	case event.KindLimit:
		buf, name, counter = r.limitBuf, "limit", &r.limits
		r.recordLimit(ev)
	case event.KindDelete:
		buf, name, counter = r.deleteBuf, "delete", &r.deletes
	case event.KindScrubGeo:
		buf, name, counter = r.scrubGeoBuf, "scrub_geo", &r.scrubGeos
	case event.KindError, event.KindReconnect, event.KindDestroy:
		buf, name, counter = r.noticeBuf, "notice", &r.notices
		r.logNotice(ev)
	default:
		r.logger.Debug("skipping unknown event kind", "kind", ev.Kind)
		return
	}

	if buf.Send(ev) {
		r.routed.Add(1)
		counter.Add(1)
	}
	r.metrics.SetQueueDepth(name, buf.Len())
}

// recordLimit tracks the latest undelivered count from limit notices.
func (r *router) recordLimit(ev event.Event) {
	var notice event.LimitNotice
	if err := ev.Decode(&notice); err != nil {
		r.decodeErrors.Add(1)
		r.logger.Warn("failed to decode limit notice", "error", err)
		return
	}
	r.limitTrack.Store(notice.Track)
	r.logger.Debug("limit notice", "track", notice.Track)
}

func (r *router) logNotice(ev event.Event) {
	switch ev.Kind {
	case event.KindError:
		r.logger.Warn("stream error", "event", ev.String(), "session_id", ev.SessionID)
	case event.KindReconnect:
		r.logger.Info("stream reconnect", "reason", ev.Reason, "attempt", ev.Attempt, "delay", ev.Delay)
	case event.KindDestroy:
		r.logger.Info("stream destroyed", "info", ev.Info, "session_id", ev.SessionID)
	}
}

func (r *router) closeOutputs() {
	r.closeOnce.Do(func() {
		r.tweetBuf.Close()
		r.limitBuf.Close()
		r.deleteBuf.Close()
		r.scrubGeoBuf.Close()
		r.noticeBuf.Close()
	})
}
