package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/riskibarqy/fantasy-livefeed/internal/domain/kvstore"
	"github.com/riskibarqy/fantasy-livefeed/internal/observability"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/resilience"
)

type RateGovernorConfig struct {
	Breaker        resilience.CircuitBreakerConfig
	QuotaCooldown  time.Duration
	PerMinuteLimit int
	DailyQuota     int
	QuotaWarnRatio float64
	QuotaHardRatio float64
	Location       *time.Location
}

func DefaultRateGovernorConfig() RateGovernorConfig {
	return RateGovernorConfig{
		Breaker:        resilience.DefaultCircuitBreakerConfig(),
		QuotaCooldown:  time.Hour,
		PerMinuteLimit: 5,
		DailyQuota:     500,
		QuotaWarnRatio: 0.70,
		QuotaHardRatio: 0.85,
		Location:       time.UTC,
	}
}

func normalizeRateGovernorConfig(cfg RateGovernorConfig) RateGovernorConfig {
	defaults := DefaultRateGovernorConfig()
	cfg.Breaker = resilience.NormalizeCircuitBreakerConfig(cfg.Breaker)
	if cfg.QuotaCooldown <= 0 {
		cfg.QuotaCooldown = defaults.QuotaCooldown
	}
	if cfg.PerMinuteLimit <= 0 {
		cfg.PerMinuteLimit = defaults.PerMinuteLimit
	}
	if cfg.DailyQuota <= 0 {
		cfg.DailyQuota = defaults.DailyQuota
	}
	if cfg.QuotaWarnRatio <= 0 || cfg.QuotaWarnRatio > 1 {
		cfg.QuotaWarnRatio = defaults.QuotaWarnRatio
	}
	if cfg.QuotaHardRatio <= 0 || cfg.QuotaHardRatio > 1 {
		cfg.QuotaHardRatio = defaults.QuotaHardRatio
	}
	if cfg.Location == nil {
		cfg.Location = defaults.Location
	}
	return cfg
}

// QuotaTracker is the persisted daily counter.
type QuotaTracker struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

type QuotaStatus struct {
	Day       string  `json:"day"`
	Used      int     `json:"used"`
	Limit     int     `json:"limit"`
	WarnAt    int     `json:"warn_at"`
	HardAt    int     `json:"hard_at"`
	UsedRatio float64 `json:"used_ratio"`
	Exhausted bool    `json:"exhausted"`
}

type GovernorStatus struct {
	Breaker        resilience.CircuitSnapshot `json:"breaker"`
	Quota          QuotaStatus                `json:"quota"`
	MinuteUsed     int                        `json:"minute_used"`
	MinuteLimit    int                        `json:"minute_limit"`
	MinuteResetsAt time.Time                  `json:"minute_resets_at"`
}

// RateGovernor decides whether an upstream request may be made. All three
// gates (daily quota, per-minute window, circuit breaker) are evaluated under
// one mutex and counters move only when every gate allows.
type RateGovernor struct {
	mu sync.Mutex

	cfg     RateGovernorConfig
	breaker *resilience.CircuitBreaker
	kv      kvstore.Repository
	logger  *logging.Logger
	metrics *observability.Metrics
	now     func() time.Time

	persistMu     sync.Mutex
	lastPersisted QuotaTracker

	quota        QuotaTracker
	warnedDay    string
	quotaTripped bool
	minuteStart  time.Time
	minuteCount  int
}

func NewRateGovernor(cfg RateGovernorConfig, kv kvstore.Repository, logger *logging.Logger, metrics *observability.Metrics) *RateGovernor {
	if logger == nil {
		logger = logging.Default()
	}
	cfg = normalizeRateGovernorConfig(cfg)

	g := &RateGovernor{
		cfg:     cfg,
		kv:      kv,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
	g.breaker = cfg.Breaker.Build(func() time.Time { return g.now() })
	return g
}

// Restore loads today's quota counter from the durable store. A corrupt
// counter is deleted and counting restarts at zero.
func (g *RateGovernor) Restore(ctx context.Context) error {
	if g.kv == nil {
		return nil
	}

	var tracker QuotaTracker
	ok, err := kvstore.GetJSON(ctx, g.kv, kvstore.KeyQuotaTracker, &tracker)
	if err != nil {
		if errors.Is(err, kvstore.ErrCorrupt) {
			g.logger.WarnContext(ctx, "quota tracker corrupt, resetting", "error", err)
			return g.kv.Delete(ctx, kvstore.KeyQuotaTracker)
		}
		return fmt.Errorf("restore quota tracker: %w", err)
	}
	if !ok {
		return nil
	}

	g.mu.Lock()
	g.quota = tracker
	g.rollDayLocked(g.now())
	used := g.quota.Count
	g.mu.Unlock()

	g.metrics.SetQuotaUsed(used)
	g.logger.InfoContext(ctx, "quota tracker restored", "day", tracker.Day, "used", used)
	return nil
}

// TryAcquire admits one upstream request or returns ErrQuotaExhausted,
// ErrRateLimited or ErrCircuitOpen. In half-open the single trial slot is
// consumed here.
func (g *RateGovernor) TryAcquire(ctx context.Context) error {
	g.mu.Lock()

	now := g.now()
	g.rollDayLocked(now)

	hardAt := g.hardLimit()
	if g.quota.Count >= hardAt {
		if !g.breaker.Forced() {
			g.breaker.ForceOpen(g.cfg.QuotaCooldown)
		}
		g.quotaTripped = true
		used := g.quota.Count
		g.mu.Unlock()

		g.metrics.GovernorDenied("quota")
		g.metrics.SetBreakerState(string(resilience.CircuitStateOpen))
		g.logger.DebugContext(ctx, "upstream request denied", "reason", "quota", "used", used, "hard_at", hardAt)
		return ErrQuotaExhausted
	}

	if g.minuteStart.IsZero() || now.Sub(g.minuteStart) >= time.Minute {
		g.minuteStart = now
		g.minuteCount = 0
	}
	if g.minuteCount >= g.cfg.PerMinuteLimit {
		g.mu.Unlock()
		g.metrics.GovernorDenied("rate_limited")
		return ErrRateLimited
	}

	if err := g.breaker.Allow(); err != nil {
		state := g.breaker.State()
		g.mu.Unlock()
		g.metrics.GovernorDenied("circuit_open")
		g.metrics.SetBreakerState(string(state))
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}

	g.minuteCount++
	g.quota.Count++
	tracker := g.quota

	crossedWarn := tracker.Count >= g.warnLimit() && g.warnedDay != tracker.Day
	if crossedWarn {
		g.warnedDay = tracker.Day
	}
	crossedHard := tracker.Count >= hardAt
	if crossedHard {
		g.breaker.ForceOpen(g.cfg.QuotaCooldown)
		g.quotaTripped = true
	}
	state := g.breaker.State()
	g.mu.Unlock()

	g.metrics.SetQuotaUsed(tracker.Count)
	g.metrics.SetBreakerState(string(state))
	if crossedWarn {
		g.logger.WarnContext(ctx, "daily quota warn threshold crossed",
			"used", tracker.Count,
			"limit", g.cfg.DailyQuota,
			"warn_at", g.warnLimit(),
		)
	}
	if crossedHard {
		g.logger.ErrorContext(ctx, "daily quota hard threshold reached, breaker forced open",
			"used", tracker.Count,
			"limit", g.cfg.DailyQuota,
			"cooldown", g.cfg.QuotaCooldown.String(),
		)
	}
	g.persist(ctx, tracker)
	return nil
}

func (g *RateGovernor) RecordSuccess() {
	g.breaker.RecordSuccess()
	g.metrics.SetBreakerState(string(g.breaker.State()))
}

// RecordCanceled releases an admission whose call was canceled before the
// upstream answered. It neither counts as success nor as failure.
func (g *RateGovernor) RecordCanceled() {
	g.breaker.Release()
}

// RecordFailure counts a transient upstream failure (network error, 5xx).
func (g *RateGovernor) RecordFailure(ctx context.Context) {
	before := g.breaker.State()
	g.breaker.RecordFailure()
	after := g.breaker.State()
	g.metrics.SetBreakerState(string(after))

	if before != after && after == resilience.CircuitStateOpen {
		snap := g.breaker.Snapshot()
		g.logger.WarnContext(ctx, "upstream circuit opened",
			"consecutive_failures", snap.ConsecutiveFailures,
			"next_retry_at", snap.NextRetryAt,
		)
	}
}

// RecordQuotaExceeded handles an upstream quota overrun (HTTP 429): the
// breaker is forced open for the extended quota cooldown.
func (g *RateGovernor) RecordQuotaExceeded(ctx context.Context) {
	g.mu.Lock()
	g.breaker.ForceOpen(g.cfg.QuotaCooldown)
	g.quotaTripped = true
	used := g.quota.Count
	g.mu.Unlock()

	g.metrics.SetBreakerState(string(resilience.CircuitStateOpen))
	g.logger.ErrorContext(ctx, "upstream reported quota exceeded, breaker forced open",
		"used", used,
		"cooldown", g.cfg.QuotaCooldown.String(),
	)
}

func (g *RateGovernor) Status() GovernorStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rollDayLocked(now)

	minuteUsed := g.minuteCount
	resetsAt := g.minuteStart.Add(time.Minute)
	if g.minuteStart.IsZero() || !now.Before(resetsAt) {
		minuteUsed = 0
		resetsAt = now
	}

	hardAt := g.hardLimit()
	return GovernorStatus{
		Breaker: g.breaker.Snapshot(),
		Quota: QuotaStatus{
			Day:       g.quota.Day,
			Used:      g.quota.Count,
			Limit:     g.cfg.DailyQuota,
			WarnAt:    g.warnLimit(),
			HardAt:    hardAt,
			UsedRatio: float64(g.quota.Count) / float64(g.cfg.DailyQuota),
			Exhausted: g.quota.Count >= hardAt,
		},
		MinuteUsed:     minuteUsed,
		MinuteLimit:    g.cfg.PerMinuteLimit,
		MinuteResetsAt: resetsAt,
	}
}

// rollDayLocked resets the counter when the calendar day (in the configured
// zone) changes, and clears a quota-forced breaker.
func (g *RateGovernor) rollDayLocked(now time.Time) {
	day := now.In(g.cfg.Location).Format(time.DateOnly)
	if g.quota.Day == day {
		return
	}
	g.quota = QuotaTracker{Day: day}
	if g.quotaTripped {
		g.breaker.Reset()
		g.quotaTripped = false
	}
}

func (g *RateGovernor) warnLimit() int {
	return ratioLimit(g.cfg.DailyQuota, g.cfg.QuotaWarnRatio)
}

func (g *RateGovernor) hardLimit() int {
	return ratioLimit(g.cfg.DailyQuota, g.cfg.QuotaHardRatio)
}

func ratioLimit(quota int, ratio float64) int {
	return int(math.Ceil(float64(quota)*ratio - 1e-9))
}

func (g *RateGovernor) persist(ctx context.Context, tracker QuotaTracker) {
	if g.kv == nil {
		return
	}

	g.persistMu.Lock()
	defer g.persistMu.Unlock()
	if tracker.Day == g.lastPersisted.Day && tracker.Count <= g.lastPersisted.Count {
		return
	}
	if err := kvstore.SetJSON(ctx, g.kv, kvstore.KeyQuotaTracker, tracker); err != nil {
		g.logger.WarnContext(ctx, "persist quota tracker failed", "error", err)
		return
	}
	g.lastPersisted = tracker
}
