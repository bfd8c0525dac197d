package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riskibarqy/fantasy-livefeed/internal/config"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"github.com/riskibarqy/fantasy-livefeed/internal/usecase"
)

func newStatsServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	var liveCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/games/live":
			liveCalls.Add(1)
			_, _ = w.Write([]byte(`{"games":[]}`))
		case "/players":
			_, _ = w.Write([]byte(`{"players":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &liveCalls
}

func testConfig(statsURL string) config.Config {
	return config.Config{
		AppEnv:                  config.EnvDev,
		ServiceName:             "fantasy-livefeed",
		CORSAllowedOrigins:      []string{"*"},
		OperatorToken:           "op",
		MetricsEnabled:          true,
		StatsAPIBaseURL:         statsURL,
		StatsAPITimeout:         2 * time.Second,
		GovernorQuotaLocation:   time.UTC,
		PollInterval:            time.Minute,
		PollMinInterval:         time.Minute,
		PollMinSpacing:          time.Second,
		KVBackend:               config.KVBackendMemory,
		EventStoreSweepSchedule: "@every 5m",
		RosterRefreshSchedule:   "@every 30m",
		PlatformTimeout:         2 * time.Second,
	}
}

func TestApp_StartPollsAndStops(t *testing.T) {
	t.Parallel()

	srv, liveCalls := newStatsServer(t)
	a, err := New(context.Background(), testConfig(srv.URL), logging.NewNop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if err := a.Start(context.Background()); !errors.Is(err, usecase.ErrAlreadyRunning) {
		t.Fatalf("expected already running on second start, got %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for liveCalls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected an immediate poll after start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics endpoint, got %d", rec.Code)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	if a.scheduler.Status().Running {
		t.Fatalf("expected polling stopped")
	}
}

func TestApp_EmergencyStopAndResume(t *testing.T) {
	t.Parallel()

	srv, _ := newStatsServer(t)
	a, err := New(context.Background(), testConfig(srv.URL), logging.NewNop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	t.Cleanup(func() { _ = a.Stop(context.Background()) })

	a.EmergencyStop(context.Background(), "quota audit")
	if !a.scheduler.EmergencyStopped() {
		t.Fatalf("expected emergency stop engaged")
	}
	if _, err := a.PollNow(context.Background()); !errors.Is(err, usecase.ErrEmergencyStopped) {
		t.Fatalf("expected manual poll rejected while stopped, got %v", err)
	}

	if err := a.Resume(context.Background()); err != nil {
		t.Fatalf("Resume error: %v", err)
	}
	if a.scheduler.EmergencyStopped() {
		t.Fatalf("expected emergency stop cleared")
	}
	deadline := time.Now().Add(5 * time.Second)
	for !a.scheduler.Status().Running {
		if time.Now().After(deadline) {
			t.Fatalf("expected polling restarted after resume")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := a.Resume(context.Background()); err != nil {
		t.Fatalf("expected idempotent resume, got %v", err)
	}
}

func TestApp_ReloadRostersWithoutLeagues(t *testing.T) {
	t.Parallel()

	srv, _ := newStatsServer(t)
	a, err := New(context.Background(), testConfig(srv.URL), logging.NewNop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { _ = a.Stop(context.Background()) })

	result, err := a.ReloadRosters(context.Background())
	if err != nil || result.LoadedCount != 0 || result.FailedCount != 0 {
		t.Fatalf("unexpected reload result %+v, %v", result, err)
	}
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1:1")
	cfg.RosterRefreshSchedule = "every now and then"
	if _, err := New(context.Background(), cfg, logging.NewNop()); err == nil {
		t.Fatalf("expected invalid cron schedule error")
	}
}
