package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/tweetstream/internal/event"
	"github.com/rickgao/tweetstream/internal/metrics"
)

func TestManager_ReconnectsAfterNetworkFailure(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			// Drop the first attempt before any response.
			conn, _, err := w.(http.Hijacker).Hijack()
			if assert.NoError(t, err) {
				conn.Close()
			}
			return
		}

		flusher := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{\"limit\":{\"track\":5}}\r\n"))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	cfg := DefaultManagerConfig()
	cfg.Client.URL = server.URL
	m := NewManager(cfg, http.DefaultClient, metrics.New(nil), testLogger)

	require.NoError(t, m.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, m.Stop(ctx))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ev, err := m.Events().ReceiveContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, event.KindReconnect, ev.Kind)
	assert.Equal(t, ReasonNetwork, ev.Reason)
	assert.Equal(t, 1, ev.Attempt)

	ev, err = m.Events().ReceiveContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, event.KindLimit, ev.Kind)
	assert.JSONEq(t, `{"track":5}`, string(ev.Payload))

	var limit event.LimitNotice
	require.NoError(t, ev.Decode(&limit))
	assert.Equal(t, int64(5), limit.Track)

	assert.Eventually(t, func() bool { return m.State() == StateOpen }, 2*time.Second, 10*time.Millisecond)
	stats := m.Stats()
	assert.Equal(t, int64(2), stats.Attempts)
	assert.Equal(t, int64(1), stats.Reconnects)
	assert.Equal(t, ev.SessionID, stats.SessionID)
}

func TestManager_FatalStatusStopsReconnecting(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	cfg := DefaultManagerConfig()
	cfg.Client.URL = server.URL
	m := NewManager(cfg, http.DefaultClient, nil, testLogger)
	require.NoError(t, m.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ev, err := m.Events().ReceiveContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, event.KindError, ev.Kind)
	assert.Equal(t, http.StatusUnauthorized, ev.StatusCode)
	assert.Equal(t, StateDestroyed, m.State())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), requests.Load())
	require.NoError(t, m.Stop(ctx))
}
