package router

import (
	"github.com/rickgao/tweetstream/internal/event"
	"github.com/rickgao/tweetstream/internal/queue"
)

// RouterConfig configures the initial capacity of each output buffer.
type RouterConfig struct {
	TweetBufferSize    int
	LimitBufferSize    int
	DeleteBufferSize   int
	ScrubGeoBufferSize int
	NoticeBufferSize   int
}

// DefaultRouterConfig returns sensible defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		TweetBufferSize:    5000,
		LimitBufferSize:    100,
		DeleteBufferSize:   1000,
		ScrubGeoBufferSize: 100,
		NoticeBufferSize:   100,
	}
}

// RouterBuffers provides access to the per-channel output buffers.
type RouterBuffers struct {
	Tweet    *queue.GrowableBuffer[event.Event]
	Limit    *queue.GrowableBuffer[event.Event]
	Delete   *queue.GrowableBuffer[event.Event]
	ScrubGeo *queue.GrowableBuffer[event.Event]
	Notice   *queue.GrowableBuffer[event.Event] // error, reconnect, destroy
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	EventsReceived int64
	EventsRouted   int64
	Tweets         int64
	Limits         int64
	Deletes        int64
	ScrubGeos      int64
	Notices        int64
	LimitTrack     int64 // latest undelivered-count from a limit notice
	DecodeErrors   int64

	TweetBuffer    queue.BufferStats
	LimitBuffer    queue.BufferStats
	DeleteBuffer   queue.BufferStats
	ScrubGeoBuffer queue.BufferStats
	NoticeBuffer   queue.BufferStats
}
