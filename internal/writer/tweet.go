package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/tweetstream/internal/event"
	"github.com/rickgao/tweetstream/internal/metrics"
	"github.com/rickgao/tweetstream/internal/queue"
)

// Insert skips tweets whose deletion notice arrived first.
const insertTweetSQL = `
	INSERT INTO tweets (tweet_id, user_id, screen_name, text, created_at, received_at, session_id, payload)
	SELECT $1::bigint, $2::bigint, $3::text, $4::text, $5::timestamptz, $6::timestamptz, $7::uuid, $8::jsonb
	WHERE NOT EXISTS (SELECT 1 FROM tweet_deletions WHERE tweet_id = $1::bigint)
	ON CONFLICT (tweet_id) DO NOTHING
`

// TweetWriter consumes tweet events from the router and writes to the tweets table.
type TweetWriter struct {
	b  *batcher[tweetRow]
	db DB
}

// NewTweetWriter creates a new TweetWriter.
func NewTweetWriter(
	cfg WriterConfig,
	input *queue.GrowableBuffer[event.Event],
	db DB,
	m *metrics.Metrics,
	logger *slog.Logger,
) *TweetWriter {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = withDefaults(cfg)

	w := &TweetWriter{db: db}
	w.b = &batcher[tweetRow]{
		name:      "tweets",
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		input:     input,
		transform: transformTweet,
		write:     w.batchInsert,
		batch:     make([]tweetRow, 0, cfg.BatchSize),
	}
	return w
}

// Start begins consuming events and writing to the database.
func (w *TweetWriter) Start(ctx context.Context) error {
	w.b.start(ctx)
	return nil
}

// Stop drains pending events, flushes and shuts down.
func (w *TweetWriter) Stop(ctx context.Context) error {
	return w.b.stop(ctx)
}

// Stats returns current metrics.
func (w *TweetWriter) Stats() WriterMetrics {
	return w.b.metricsSnapshot()
}

// transformTweet converts a tweet event to a tweetRow.
func transformTweet(ev event.Event) (tweetRow, error) {
	if ev.Kind != event.KindTweet {
		return tweetRow{}, fmt.Errorf("unexpected event kind %s", ev.Kind)
	}

	var t event.Tweet
	if err := ev.Decode(&t); err != nil {
		return tweetRow{}, err
	}

	tweetID, err := pickID(t.ID, t.IDStr)
	if err != nil {
		return tweetRow{}, fmt.Errorf("tweet id: %w", err)
	}
	userID, err := pickID(t.User.ID, t.User.IDStr)
	if err != nil {
		return tweetRow{}, fmt.Errorf("user id: %w", err)
	}

	row := tweetRow{
		TweetID:    tweetID,
		UserID:     userID,
		ScreenName: t.User.ScreenName,
		Text:       t.Text,
		ReceivedAt: ev.ReceivedAt,
		SessionID:  ev.SessionID,
		Payload:    []byte(ev.Payload),
	}
	if created, err := t.CreatedTime(); err == nil {
		row.CreatedAt = &created
	}
	return row, nil
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *TweetWriter) batchInsert(ctx context.Context, rows []tweetRow) (flushResult, error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertTweetSQL,
			r.TweetID, r.UserID, r.ScreenName, r.Text, r.CreatedAt, r.ReceivedAt, r.SessionID, r.Payload)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	var res flushResult
	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return flushResult{}, err
		}
		if ct.RowsAffected() == 0 {
			res.conflicts++
		} else {
			res.inserts++
		}
	}
	return res, nil
}

var errMissingID = errors.New("missing id")

// pickID prefers the string form of an ID, which never loses precision.
func pickID(id int64, idStr string) (int64, error) {
	if idStr != "" {
		v, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", idStr, err)
		}
		return v, nil
	}
	if id == 0 {
		return 0, errMissingID
	}
	return id, nil
}

func withDefaults(cfg WriterConfig) WriterConfig {
	def := DefaultWriterConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	return cfg
}
