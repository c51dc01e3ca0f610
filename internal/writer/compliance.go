package writer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/tweetstream/internal/event"
	"github.com/rickgao/tweetstream/internal/metrics"
	"github.com/rickgao/tweetstream/internal/queue"
)

const (
	recordDeletionSQL = `
		INSERT INTO tweet_deletions (tweet_id, user_id, received_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tweet_id) DO NOTHING
	`
	applyDeletionSQL = `
		UPDATE tweets
		SET deleted_at = $2, text = '', payload = jsonb_build_object('id_str', tweet_id::text)
		WHERE tweet_id = $1 AND deleted_at IS NULL
	`
	recordScrubGeoSQL = `
		INSERT INTO geo_scrubs (user_id, up_to_status_id, received_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, up_to_status_id) DO NOTHING
	`
	applyScrubGeoSQL = `
		UPDATE tweets
		SET payload = payload - 'geo' - 'coordinates' - 'place', geo_scrubbed_at = $3
		WHERE user_id = $1 AND tweet_id <= $2
	`
)

// ComplianceWriter applies delete and scrub_geo notices to the archive.
// It accepts both kinds; run one per router buffer.
type ComplianceWriter struct {
	b  *batcher[complianceRow]
	db DB
}

// NewComplianceWriter creates a new ComplianceWriter.
func NewComplianceWriter(
	cfg WriterConfig,
	input *queue.GrowableBuffer[event.Event],
	db DB,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ComplianceWriter {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = withDefaults(cfg)

	w := &ComplianceWriter{db: db}
	w.b = &batcher[complianceRow]{
		name:      "compliance",
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		input:     input,
		transform: transformNotice,
		write:     w.batchApply,
		batch:     make([]complianceRow, 0, cfg.BatchSize),
	}
	return w
}

// Start begins consuming notices.
func (w *ComplianceWriter) Start(ctx context.Context) error {
	w.b.start(ctx)
	return nil
}

// Stop drains pending notices, flushes and shuts down.
func (w *ComplianceWriter) Stop(ctx context.Context) error {
	return w.b.stop(ctx)
}

// Stats returns current metrics.
func (w *ComplianceWriter) Stats() WriterMetrics {
	return w.b.metricsSnapshot()
}

// transformNotice converts a delete or scrub_geo event to a complianceRow.
func transformNotice(ev event.Event) (complianceRow, error) {
	switch ev.Kind {
	case event.KindDelete:
		var n event.DeleteNotice
		if err := ev.Decode(&n); err != nil {
			return complianceRow{}, err
		}
		tweetID, err := pickID(n.Status.ID, n.Status.IDStr)
		if err != nil {
			return complianceRow{}, fmt.Errorf("status id: %w", err)
		}
		userID, err := pickID(n.Status.UserID, n.Status.UserIDStr)
		if err != nil {
			return complianceRow{}, fmt.Errorf("user id: %w", err)
		}
		return complianceRow{Kind: noticeDelete, TweetID: tweetID, UserID: userID, ReceivedAt: ev.ReceivedAt}, nil

	case event.KindScrubGeo:
		var n event.ScrubGeoNotice
		if err := ev.Decode(&n); err != nil {
			return complianceRow{}, err
		}
		userID, err := pickID(n.UserID, n.UserIDStr)
		if err != nil {
			return complianceRow{}, fmt.Errorf("user id: %w", err)
		}
		upTo, err := pickID(n.UpToStatusID, n.UpToStatusIDStr)
		if err != nil {
			return complianceRow{}, fmt.Errorf("up_to_status_id: %w", err)
		}
		return complianceRow{Kind: noticeScrubGeo, UserID: userID, UpToStatusID: upTo, ReceivedAt: ev.ReceivedAt}, nil

	default:
		return complianceRow{}, fmt.Errorf("unexpected event kind %s", ev.Kind)
	}
}

// queueNotices adds two statements per row: record the notice, then apply it.
func queueNotices(rows []complianceRow) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, r := range rows {
		switch r.Kind {
		case noticeDelete:
			batch.Queue(recordDeletionSQL, r.TweetID, r.UserID, r.ReceivedAt)
			batch.Queue(applyDeletionSQL, r.TweetID, r.ReceivedAt)
		case noticeScrubGeo:
			batch.Queue(recordScrubGeoSQL, r.UserID, r.UpToStatusID, r.ReceivedAt)
			batch.Queue(applyScrubGeoSQL, r.UserID, r.UpToStatusID, r.ReceivedAt)
		}
	}
	return batch
}

// batchApply records and applies notices in one round trip.
func (w *ComplianceWriter) batchApply(ctx context.Context, rows []complianceRow) (flushResult, error) {
	batch := queueNotices(rows)

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	var res flushResult
	for range rows {
		recorded, err := results.Exec()
		if err != nil {
			return flushResult{}, err
		}
		applied, err := results.Exec()
		if err != nil {
			return flushResult{}, err
		}
		if recorded.RowsAffected() == 0 {
			res.conflicts++
		} else {
			res.inserts++
		}
		res.updates += applied.RowsAffected()
	}
	return res, nil
}
