package writer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/tweetstream/internal/config"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     config.DefaultBatchSize,
		FlushInterval: config.DefaultFlushInterval,
	}
}

// WriterConfigFromConfig converts the writers config section.
func WriterConfigFromConfig(cfg config.WritersConfig) WriterConfig {
	return WriterConfig{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts   int64 // rows inserted
	Conflicts int64 // rows skipped by ON CONFLICT
	Updates   int64 // archived rows changed by compliance notices
	Skipped   int64 // events that could not be transformed
	Errors    int64 // failed flushes
	Flushes   int64
}

// DB sends a batch of statements. *pgxpool.Pool satisfies it.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// tweetRow represents a row to be inserted into the tweets table.
type tweetRow struct {
	TweetID    int64
	UserID     int64
	ScreenName string
	Text       string
	CreatedAt  *time.Time // nil when created_at is missing or malformed
	ReceivedAt time.Time
	SessionID  uuid.UUID
	Payload    []byte // JSONB
}

// noticeKind distinguishes compliance rows.
type noticeKind int

const (
	noticeDelete noticeKind = iota
	noticeScrubGeo
)

// complianceRow is one delete or scrub_geo notice.
type complianceRow struct {
	Kind         noticeKind
	TweetID      int64 // delete only
	UserID       int64
	UpToStatusID int64 // scrub_geo only
	ReceivedAt   time.Time
}
