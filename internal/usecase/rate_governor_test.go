package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riskibarqy/fantasy-livefeed/internal/domain/kvstore"
	"github.com/riskibarqy/fantasy-livefeed/internal/infrastructure/kvstore/memory"
	kvstoremock "github.com/riskibarqy/fantasy-livefeed/internal/mocks/domain/kvstore"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/resilience"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestGovernor(t *testing.T, kv kvstore.Repository, clock *testClock) *RateGovernor {
	t.Helper()

	g := NewRateGovernor(DefaultRateGovernorConfig(), kv, logging.NewNop(), nil)
	g.now = clock.Now
	return g
}

func TestRateGovernor_BreakerOpensAfterThresholdAndAllowsSingleTrialCall(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)}
	g := newTestGovernor(t, memory.NewStore(), clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := g.TryAcquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		g.RecordFailure(ctx)
	}

	if err := g.TryAcquire(ctx); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit open after 3 failures, got %v", err)
	}
	if got := g.Status().Breaker.State; got != resilience.CircuitStateOpen {
		t.Fatalf("expected open breaker, got %s", got)
	}

	clock.Advance(2 * time.Minute)
	if err := g.TryAcquire(ctx); err != nil {
		t.Fatalf("expected half-open trial call to be admitted, got %v", err)
	}
	if err := g.TryAcquire(ctx); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected second trial call to be refused, got %v", err)
	}

	g.RecordSuccess()
	if got := g.Status().Breaker.State; got != resilience.CircuitStateClosed {
		t.Fatalf("expected closed after successful trial call, got %s", got)
	}
}

func TestRateGovernor_PerMinuteCeilingDoesNotConsumeQuota(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)}
	g := newTestGovernor(t, memory.NewStore(), clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := g.TryAcquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		g.RecordSuccess()
	}
	if err := g.TryAcquire(ctx); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected per-minute limit, got %v", err)
	}
	if used := g.Status().Quota.Used; used != 5 {
		t.Fatalf("denied request must not count against quota, used=%d", used)
	}

	clock.Advance(time.Minute)
	if err := g.TryAcquire(ctx); err != nil {
		t.Fatalf("expected new window to admit, got %v", err)
	}
}

func TestRateGovernor_HardQuotaDeniesAndResetsNextDay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := memory.NewStore()
	if err := kvstore.SetJSON(ctx, kv, kvstore.KeyQuotaTracker, QuotaTracker{Day: "2026-09-13", Count: 424}); err != nil {
		t.Fatalf("seed tracker: %v", err)
	}

	clock := &testClock{now: time.Date(2026, 9, 13, 20, 0, 0, 0, time.UTC)}
	g := newTestGovernor(t, kv, clock)
	if err := g.Restore(ctx); err != nil {
		t.Fatalf("Restore error: %v", err)
	}

	if err := g.TryAcquire(ctx); err != nil {
		t.Fatalf("expected request 425 to be admitted, got %v", err)
	}
	g.RecordSuccess()

	status := g.Status()
	if !status.Quota.Exhausted || status.Quota.HardAt != 425 {
		t.Fatalf("expected exhausted quota at 425, got %+v", status.Quota)
	}
	if !status.Breaker.Forced || status.Breaker.State != resilience.CircuitStateOpen {
		t.Fatalf("expected breaker forced open, got %+v", status.Breaker)
	}

	clock.Advance(2 * time.Hour)
	if err := g.TryAcquire(ctx); !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected quota denial regardless of breaker cooldown, got %v", err)
	}

	var persisted QuotaTracker
	if ok, err := kvstore.GetJSON(ctx, kv, kvstore.KeyQuotaTracker, &persisted); err != nil || !ok || persisted.Count != 425 {
		t.Fatalf("expected persisted count 425, got %+v ok=%v err=%v", persisted, ok, err)
	}

	clock.now = time.Date(2026, 9, 14, 0, 0, 5, 0, time.UTC)
	if err := g.TryAcquire(ctx); err != nil {
		t.Fatalf("expected new day to admit, got %v", err)
	}
	if used := g.Status().Quota.Used; used != 1 {
		t.Fatalf("expected counter reset on new day, used=%d", used)
	}
}

func TestRateGovernor_WarnThresholdLoggedOncePerDay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	clock := &testClock{now: time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)}

	cfg := DefaultRateGovernorConfig()
	cfg.DailyQuota = 10
	cfg.PerMinuteLimit = 100
	g := NewRateGovernor(cfg, memory.NewStore(), logging.FromZap(zap.New(core)), nil)
	g.now = clock.Now

	for i := 0; i < 8; i++ {
		if err := g.TryAcquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		g.RecordSuccess()
	}

	if n := logs.FilterMessage("daily quota warn threshold crossed").Len(); n != 1 {
		t.Fatalf("expected one warn log, got %d", n)
	}
}

func TestRateGovernor_QuotaExceededForcesExtendedCooldown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &testClock{now: time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)}
	g := newTestGovernor(t, memory.NewStore(), clock)

	if err := g.TryAcquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	g.RecordQuotaExceeded(ctx)

	clock.Advance(30 * time.Minute)
	if err := g.TryAcquire(ctx); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected breaker open during quota cooldown, got %v", err)
	}

	clock.Advance(31 * time.Minute)
	if err := g.TryAcquire(ctx); err != nil {
		t.Fatalf("expected trial call after quota cooldown, got %v", err)
	}
}

func TestRateGovernor_RestoreClearsCorruptTracker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := memory.NewStore()
	_ = kv.Set(ctx, kvstore.KeyQuotaTracker, []byte("{broken"))

	clock := &testClock{now: time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)}
	g := newTestGovernor(t, kv, clock)
	if err := g.Restore(ctx); err != nil {
		t.Fatalf("Restore error: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, kvstore.KeyQuotaTracker); ok {
		t.Fatalf("expected corrupt tracker to be deleted")
	}
	if used := g.Status().Quota.Used; used != 0 {
		t.Fatalf("expected zero usage after reset, got %d", used)
	}
}

func TestRateGovernor_StoreFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storeErr := errors.New("connection refused")

	kv := kvstoremock.NewRepository(t)
	kv.On("Get", mock.Anything, kvstore.KeyQuotaTracker).Return(nil, false, storeErr).Once()
	kv.On("Set", mock.Anything, kvstore.KeyQuotaTracker, mock.Anything).Return(storeErr).Once()
	kv.On("Set", mock.Anything, kvstore.KeyQuotaTracker, mock.Anything).Return(nil).Once()

	clock := &testClock{now: time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)}
	g := newTestGovernor(t, kv, clock)

	if err := g.Restore(ctx); !errors.Is(err, storeErr) {
		t.Fatalf("expected restore to surface store error, got %v", err)
	}

	// A failed write does not refuse the request and is retried on the next one.
	for i := 0; i < 2; i++ {
		if err := g.TryAcquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		g.RecordSuccess()
	}
	if used := g.Status().Quota.Used; used != 2 {
		t.Fatalf("expected 2 used, got %d", used)
	}
}

func TestRateGovernor_CanceledCallDoesNotWedgeBreaker(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)}
	cfg := DefaultRateGovernorConfig()
	cfg.Breaker.FailureThreshold = 1
	g := NewRateGovernor(cfg, memory.NewStore(), logging.NewNop(), nil)
	g.now = clock.Now
	ctx := context.Background()

	if err := g.TryAcquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	g.RecordFailure(ctx)

	clock.Advance(2 * time.Minute)
	if err := g.TryAcquire(ctx); err != nil {
		t.Fatalf("expected half-open trial call, got %v", err)
	}
	g.RecordCanceled()

	clock.Advance(time.Minute)
	if err := g.TryAcquire(ctx); err != nil {
		t.Fatalf("expected a new trial call after the canceled one, got %v", err)
	}
	g.RecordSuccess()
	if got := g.Status().Breaker.State; got != resilience.CircuitStateClosed {
		t.Fatalf("expected closed after the new trial call succeeded, got %s", got)
	}
}
