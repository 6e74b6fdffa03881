package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hession/mentorjournal/internal/background"
	"github.com/hession/mentorjournal/internal/llm"
)

var (
	_ llm.Observer               = (*Metrics)(nil)
	_ background.FailureRecorder = (*Metrics)(nil)
)

func TestObserveModelCall(t *testing.T) {
	m := New()

	m.ObserveModelCall("smart", "llama3.1:8b", 2*time.Second, nil)
	m.ObserveModelCall("fast", "llama3.2:1b", time.Second, errors.New("boom"))
	m.ObserveModelChunk("smart")
	m.ObserveModelChunk("smart")

	if got := testutil.ToFloat64(m.ModelCalls.WithLabelValues("smart", "llama3.1:8b")); got != 1 {
		t.Errorf("smart calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ModelFailures.WithLabelValues("fast")); got != 1 {
		t.Errorf("fast failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ModelFailures.WithLabelValues("smart")); got != 0 {
		t.Errorf("smart failures = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.ModelChunks.WithLabelValues("smart")); got != 2 {
		t.Errorf("smart chunks = %v, want 2", got)
	}
}

func TestGauges(t *testing.T) {
	m := New()

	m.StreamStarted()
	m.StreamStarted()
	m.StreamFinished()
	m.RecordWebSocketConnect()

	if got := testutil.ToFloat64(m.ActiveStreams); got != 1 {
		t.Errorf("active streams = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.WebSocketConnections); got != 1 {
		t.Errorf("websocket connections = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordBackgroundFailure("summarize")
	m.RecordHTTPRequest(http.MethodGet, "/api/chats", http.StatusOK)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		`mentorjournal_background_task_failures_total{task="summarize"} 1`,
		`mentorjournal_http_requests_total{method="GET",route="/api/chats",status="OK"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewIsIsolated(t *testing.T) {
	// Each instance owns its registry, so creating two must not panic
	a, b := New(), New()
	a.RecordBackgroundFailure("persist-reply")

	if got := testutil.ToFloat64(b.BackgroundFailures.WithLabelValues("persist-reply")); got != 0 {
		t.Errorf("second instance saw %v failures", got)
	}
}
