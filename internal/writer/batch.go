package writer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/tweetstream/internal/event"
	"github.com/rickgao/tweetstream/internal/metrics"
	"github.com/rickgao/tweetstream/internal/queue"
)

// flushResult is what one batch write changed.
type flushResult struct {
	inserts   int64
	conflicts int64
	updates   int64
}

// batcher holds the consume/flush machinery shared by all writers.
type batcher[R any] struct {
	name    string // table label for logs and metrics
	cfg     WriterConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Input from the router
	input *queue.GrowableBuffer[event.Event]

	transform func(event.Event) (R, error)
	write     func(ctx context.Context, rows []R) (flushResult, error)

	// Batching
	batch   []R
	batchMu sync.Mutex
	stats   WriterMetrics

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (b *batcher[R]) start(ctx context.Context) {
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(2)
	go b.consumeLoop()
	go b.flushLoop()

	b.logger.Info("writer started",
		"table", b.name,
		"batch_size", b.cfg.BatchSize,
		"flush_interval", b.cfg.FlushInterval,
	)
}

func (b *batcher[R]) stop(ctx context.Context) error {
	b.logger.Info("stopping writer", "table", b.name)

	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("writer stopped", "table", b.name)
	case <-ctx.Done():
		b.logger.Warn("writer stop timed out", "table", b.name)
	}

	// Drain what the router already delivered, then write it out.
	for {
		ev, ok := b.input.TryReceive()
		if !ok {
			break
		}
		b.add(ev)
	}
	return b.flush(ctx)
}

func (b *batcher[R]) metricsSnapshot() WriterMetrics {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()
	return b.stats
}

// consumeLoop reads from the input buffer and accumulates batches.
func (b *batcher[R]) consumeLoop() {
	defer b.wg.Done()

	for {
		ev, err := b.input.ReceiveContext(b.ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				b.logger.Debug("input closed", "table", b.name)
			}
			return
		}
		if b.add(ev) {
			_ = b.flush(b.ctx)
		}
	}
}

// flushLoop periodically flushes the batch.
func (b *batcher[R]) flushLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			_ = b.flush(b.ctx)
		}
	}
}

// add transforms ev into a row and reports whether the batch is full.
func (b *batcher[R]) add(ev event.Event) bool {
	row, err := b.transform(ev)

	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if err != nil {
		b.stats.Skipped++
		b.logger.Warn("skipping event", "table", b.name, "event", ev.String(), "error", err)
		return false
	}
	b.batch = append(b.batch, row)
	return len(b.batch) >= b.cfg.BatchSize
}

// flush writes the current batch.
func (b *batcher[R]) flush(ctx context.Context) error {
	b.batchMu.Lock()
	if len(b.batch) == 0 {
		b.batchMu.Unlock()
		return nil
	}

	// Take ownership of current batch
	rows := b.batch
	b.batch = make([]R, 0, b.cfg.BatchSize)
	b.batchMu.Unlock()

	// Shutdown flushes run after the writer context is canceled.
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}

	start := time.Now()
	res, err := b.write(ctx, rows)
	b.metrics.WriterFlush(b.name, res.inserts, res.updates, err)

	b.batchMu.Lock()
	b.stats.Flushes++
	if err != nil {
		b.stats.Errors++
	} else {
		b.stats.Inserts += res.inserts
		b.stats.Conflicts += res.conflicts
		b.stats.Updates += res.updates
	}
	b.batchMu.Unlock()

	if err != nil {
		b.logger.Error("batch write failed", "table", b.name, "error", err, "count", len(rows))
		return err
	}

	b.logger.Debug("flushed batch",
		"table", b.name,
		"count", len(rows),
		"inserts", res.inserts,
		"conflicts", res.conflicts,
		"updates", res.updates,
		"duration", time.Since(start),
	)
	return nil
}
