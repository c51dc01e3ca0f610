package connection

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/tweetstream/internal/event"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testClientConfig(u string) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.URL = u
	cfg.Params = url.Values{"track": {"golang,rust"}}
	cfg.UserAgent = "tweetstream/test"
	return cfg
}

func startClient(t *testing.T, cfg ClientConfig) (Client, chan Report) {
	t.Helper()
	reports := make(chan Report, 16)
	c := NewClient(cfg, http.DefaultClient, reports, 7, testLogger)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c, reports
}

func nextReport(t *testing.T, reports <-chan Report) Report {
	t.Helper()
	select {
	case r := <-reports:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for report")
		return Report{}
	}
}

func TestClient_StreamsFrames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "*/*", r.Header.Get("Accept"))
		assert.Equal(t, "tweetstream/test", r.Header.Get("User-Agent"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "golang,rust", r.PostForm.Get("track"))

		flusher := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		// A frame split across two writes, then a heartbeat.
		_, _ = w.Write([]byte(`{"limit":{"tr`))
		flusher.Flush()
		_, _ = w.Write([]byte("ack\":5}}\r\n\r\n"))
		flusher.Flush()
		_, _ = w.Write([]byte("{\"id_str\":\"1\"}\r\n"))
		flusher.Flush()
	}))
	defer server.Close()

	c, reports := startClient(t, testClientConfig(server.URL))

	r := nextReport(t, reports)
	assert.Equal(t, ReportOpen, r.Kind)
	assert.Equal(t, uint64(7), r.Generation)
	assert.Equal(t, c.ID(), r.SessionID)

	r = nextReport(t, reports)
	require.Equal(t, ReportFrame, r.Kind)
	kind, payload := event.Classify(r.Frame.Fields, r.Frame.Raw)
	assert.Equal(t, event.KindLimit, kind)
	assert.JSONEq(t, `{"track":5}`, string(payload))

	r = nextReport(t, reports)
	require.Equal(t, ReportFrame, r.Kind)
	assert.JSONEq(t, `{"id_str":"1"}`, string(r.Frame.Raw))

	// The handler returned: the server ended the body.
	r = nextReport(t, reports)
	assert.Equal(t, ReportEnd, r.Kind)
	assert.Equal(t, ClientFailed, c.State())
}

func TestClient_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c, reports := startClient(t, testClientConfig(server.URL))

	r := nextReport(t, reports)
	require.Equal(t, ReportFailed, r.Kind)
	assert.Equal(t, FailureHTTP, r.Failure.Kind)
	assert.Equal(t, http.StatusNotFound, r.Failure.StatusCode)
	assert.Equal(t, ClientFailed, c.State())
}

func TestClient_IdleTimeoutWaitingForHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	cfg := testClientConfig(server.URL)
	cfg.IdleTimeout = 50 * time.Millisecond
	_, reports := startClient(t, cfg)

	r := nextReport(t, reports)
	require.Equal(t, ReportFailed, r.Kind)
	assert.Equal(t, FailureNetwork, r.Failure.Kind)
	assert.Equal(t, "timeout", r.Failure.Info)
	assert.ErrorIs(t, r.Failure, ErrIdleTimeout)
}

func TestClient_IdleTimeoutBetweenChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("\r\n"))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	cfg := testClientConfig(server.URL)
	cfg.IdleTimeout = 100 * time.Millisecond
	_, reports := startClient(t, cfg)

	assert.Equal(t, ReportOpen, nextReport(t, reports).Kind)

	r := nextReport(t, reports)
	require.Equal(t, ReportFailed, r.Kind)
	assert.Equal(t, "timeout", r.Failure.Info)
}

func TestClient_SocketClosedMidStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := w.(http.Hijacker).Hijack()
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		writeRaw(t, buf, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n")
		writeRaw(t, buf, "10\r\n{\"id_str\":\"1\"}\r\n\r\n")
		// Close without the terminating chunk.
	}))
	defer server.Close()

	_, reports := startClient(t, testClientConfig(server.URL))

	assert.Equal(t, ReportOpen, nextReport(t, reports).Kind)
	assert.Equal(t, ReportFrame, nextReport(t, reports).Kind)

	r := nextReport(t, reports)
	require.Equal(t, ReportDestroyed, r.Kind)
	require.NotNil(t, r.Failure)
	assert.ErrorIs(t, r.Failure, ErrSocketClosed)
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	u := server.URL
	server.Close()

	_, reports := startClient(t, testClientConfig(u))

	r := nextReport(t, reports)
	require.Equal(t, ReportFailed, r.Kind)
	assert.Equal(t, FailureNetwork, r.Failure.Kind)
	assert.NotEmpty(t, r.Failure.Info)
}

func TestClient_CloseStopsReporting(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	c, reports := startClient(t, testClientConfig(server.URL))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, ClientClosed, c.State())

	select {
	case r := <-reports:
		t.Fatalf("unexpected report after close: %v", r.Kind)
	case <-time.After(200 * time.Millisecond):
	}

	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyClosed)
}

func TestClient_BadURL(t *testing.T) {
	reports := make(chan Report, 1)
	c := NewClient(ClientConfig{URL: "://bad"}, http.DefaultClient, reports, 1, nil)
	assert.Error(t, c.Connect(context.Background()))
}

func writeRaw(t *testing.T, w *bufio.ReadWriter, s string) {
	t.Helper()
	_, err := w.WriteString(s)
	assert.NoError(t, err)
	assert.NoError(t, w.Flush())
}
