package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.UpstreamCall("list_games", "ok")
	m.GovernorDenied("quota")
	m.SetBreakerState("open")
	m.EventStoreWrite("stored", 1)
	if m.Registry() != nil {
		t.Fatalf("expected nil registry for nil metrics")
	}
}

func TestMetrics_HandlerExposesPipelineSeries(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.UpstreamCall("list_games", "ok")
	m.GovernorDenied("rate_limited")
	m.SetBreakerState("half_open")
	m.EventDetected("receiving_td")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`livefeed_upstream_calls_total{operation="list_games",outcome="ok"} 1`,
		`livefeed_governor_denials_total{reason="rate_limited"} 1`,
		`livefeed_governor_breaker_state 1`,
		`livefeed_detector_events_total{kind="receiving_td"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected metrics output to contain %q", want)
		}
	}
}
