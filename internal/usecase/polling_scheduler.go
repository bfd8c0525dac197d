package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riskibarqy/fantasy-livefeed/internal/domain/gameevent"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/impact"
	"github.com/riskibarqy/fantasy-livefeed/internal/observability"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"go.opentelemetry.io/otel/attribute"
)

// UpstreamGate admits upstream requests and learns from their outcome.
type UpstreamGate interface {
	TryAcquire(ctx context.Context) error
	RecordSuccess()
	RecordCanceled()
	RecordFailure(ctx context.Context)
	RecordQuotaExceeded(ctx context.Context)
}

type PlayDetector interface {
	Detect(ctx context.Context, gameID string, plays []gameevent.Play) []gameevent.ScoringEvent
	MarkInactive(ctx context.Context, liveGameIDs []string)
}

type PlayerDirectory interface {
	SetDirectory(ctx context.Context, players []gameevent.ProviderPlayer)
	DirectoryAge() (time.Duration, bool)
}

type EventAttributor interface {
	Attribute(ctx context.Context, ev gameevent.ScoringEvent) []impact.FantasyImpact
}

type PollingSchedulerConfig struct {
	DefaultInterval   time.Duration
	MinInterval       time.Duration
	MinSpacing        time.Duration
	DirectoryRefresh  time.Duration
	AutoEmergencyStop bool
}

func DefaultPollingSchedulerConfig() PollingSchedulerConfig {
	return PollingSchedulerConfig{
		DefaultInterval:   90 * time.Second,
		MinInterval:       60 * time.Second,
		MinSpacing:        30 * time.Second,
		DirectoryRefresh:  6 * time.Hour,
		AutoEmergencyStop: true,
	}
}

type PollResult struct {
	StartedAt          time.Time        `json:"started_at"`
	DurationMs         int64            `json:"duration_ms"`
	LiveGames          []gameevent.Game `json:"live_games"`
	GamesPolled        int              `json:"games_polled"`
	EventsDetected     int              `json:"events_detected"`
	ImpactsAttributed  int              `json:"impacts_attributed"`
	DirectoryRefreshed bool             `json:"directory_refreshed"`
	Errors             []string         `json:"errors,omitempty"`
}

type SchedulerStatus struct {
	Running            bool       `json:"running"`
	IntervalSeconds    int64      `json:"interval_seconds"`
	EmergencyStopped   bool       `json:"emergency_stopped"`
	EmergencyReason    string     `json:"emergency_reason,omitempty"`
	EmergencyStoppedAt *time.Time `json:"emergency_stopped_at,omitempty"`
	LastPollAt         *time.Time `json:"last_poll_at,omitempty"`
	LastPollDurationMs int64      `json:"last_poll_duration_ms"`
	LastError          string     `json:"last_error,omitempty"`
	ActiveGames        int        `json:"active_games"`
}

// PollingScheduler drives the pipeline: one poll fetches live games and,
// per live game, new plays which flow through detection and attribution.
// Every upstream request passes through the gate first.
type PollingScheduler struct {
	feed       gameevent.Feed
	gate       UpstreamGate
	detector   PlayDetector
	directory  PlayerDirectory
	attributor EventAttributor
	cfg        PollingSchedulerConfig
	logger     *logging.Logger
	metrics    *observability.Metrics
	now        func() time.Time

	pollMu      sync.Mutex
	lastFetched map[string]time.Time // guarded by pollMu
	emergency   atomic.Bool

	mu               sync.Mutex
	running          bool
	stopCh           chan struct{}
	done             chan struct{}
	interval         time.Duration
	lastPollAt       time.Time
	lastPollDuration time.Duration
	lastErr          string
	activeGames      int
	emergencyReason  string
	emergencyAt      time.Time
}

func NewPollingScheduler(
	feed gameevent.Feed,
	gate UpstreamGate,
	detector PlayDetector,
	directory PlayerDirectory,
	attributor EventAttributor,
	cfg PollingSchedulerConfig,
	logger *logging.Logger,
	metrics *observability.Metrics,
) *PollingScheduler {
	if logger == nil {
		logger = logging.Default()
	}
	defaults := DefaultPollingSchedulerConfig()
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaults.MinInterval
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = defaults.DefaultInterval
	}
	if cfg.DefaultInterval < cfg.MinInterval {
		cfg.DefaultInterval = cfg.MinInterval
	}
	if cfg.MinSpacing <= 0 {
		cfg.MinSpacing = defaults.MinSpacing
	}
	if cfg.DirectoryRefresh <= 0 {
		cfg.DirectoryRefresh = defaults.DirectoryRefresh
	}

	return &PollingScheduler{
		feed:       feed,
		gate:       gate,
		detector:   detector,
		directory:  directory,
		attributor: attributor,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
		interval:   cfg.DefaultInterval,
	}
}

// EffectiveInterval applies the default and the floor to a requested interval.
func (s *PollingScheduler) EffectiveInterval(requested time.Duration) time.Duration {
	if requested <= 0 {
		return s.cfg.DefaultInterval
	}
	if requested < s.cfg.MinInterval {
		return s.cfg.MinInterval
	}
	return requested
}

// Start launches the polling loop. The first poll runs immediately.
func (s *PollingScheduler) Start(ctx context.Context, interval time.Duration) error {
	if s.emergency.Load() {
		return ErrEmergencyStopped
	}
	interval = s.EffectiveInterval(interval)

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.running = true
	s.stopCh = stop
	s.done = done
	s.interval = interval
	s.mu.Unlock()

	go s.loop(ctx, interval, stop, done)
	s.logger.InfoContext(ctx, "polling started", "interval", interval.String())
	return nil
}

// Stop prevents any further tick and waits (bounded by ctx) for an in-flight
// poll to finish.
func (s *PollingScheduler) Stop(ctx context.Context) error {
	done := s.signalStop()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		s.logger.InfoContext(ctx, "polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EmergencyStop halts polling until ClearEmergencyStop is called. It does
// not wait for an in-flight poll.
func (s *PollingScheduler) EmergencyStop(ctx context.Context, reason string) {
	if !s.emergency.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	s.emergencyReason = reason
	s.emergencyAt = s.now()
	s.mu.Unlock()

	s.signalStop()
	s.logger.ErrorContext(ctx, "polling emergency stop engaged", "reason", reason)
}

func (s *PollingScheduler) ClearEmergencyStop(ctx context.Context) {
	if !s.emergency.CompareAndSwap(true, false) {
		return
	}
	s.mu.Lock()
	s.emergencyReason = ""
	s.emergencyAt = time.Time{}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "polling emergency stop cleared")
}

func (s *PollingScheduler) EmergencyStopped() bool {
	return s.emergency.Load()
}

func (s *PollingScheduler) signalStop() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	close(s.stopCh)
	s.running = false
	return s.done
}

func (s *PollingScheduler) loop(ctx context.Context, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.markLoopExited(stop)
			return
		case <-stop:
			return
		case <-timer.C:
		}

		s.tick(ctx)

		select {
		case <-stop:
			return
		default:
		}
		timer.Reset(interval)
	}
}

// markLoopExited clears the running flag when the loop ends on ctx cancel,
// unless a newer Start already replaced it.
func (s *PollingScheduler) markLoopExited(stop <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running && s.stopCh == stop {
		close(s.stopCh)
		s.running = false
	}
}

func (s *PollingScheduler) tick(ctx context.Context) {
	result, err := s.PollOnce(ctx)
	switch {
	case err == nil:
		s.logger.DebugContext(ctx, "poll completed",
			"live_games", len(result.LiveGames),
			"events", result.EventsDetected,
			"impacts", result.ImpactsAttributed,
		)
	case errors.Is(err, ErrPollInFlight), errors.Is(err, ErrPollTooSoon):
		s.logger.DebugContext(ctx, "scheduled poll skipped", "reason", err.Error())
	case IsGovernorDenial(err):
		s.logger.WarnContext(ctx, "poll deferred by rate governor", "error", err)
	default:
		s.logger.WarnContext(ctx, "poll failed", "error", err)
	}
}

// PollOnce runs one poll. Upstream failures are returned after the partial
// result; refusals issued before any request stop the poll early.
func (s *PollingScheduler) PollOnce(ctx context.Context) (PollResult, error) {
	if s.emergency.Load() {
		return PollResult{}, ErrEmergencyStopped
	}
	if !s.pollMu.TryLock() {
		return PollResult{}, ErrPollInFlight
	}
	defer s.pollMu.Unlock()

	start := s.now()
	s.mu.Lock()
	if !s.lastPollAt.IsZero() && start.Sub(s.lastPollAt) < s.cfg.MinSpacing {
		s.mu.Unlock()
		return PollResult{}, ErrPollTooSoon
	}
	s.lastPollAt = start
	s.mu.Unlock()

	ctx, span := startUsecaseSpan(ctx, "usecase.PollingScheduler.PollOnce")
	result, err := s.poll(ctx, start)
	span.SetAttributes(
		attribute.Int("live_games", len(result.LiveGames)),
		attribute.Int("events", result.EventsDetected),
	)
	finishSpan(span, err)

	elapsed := s.now().Sub(start)
	result.StartedAt = start
	result.DurationMs = elapsed.Milliseconds()
	s.metrics.ObservePoll(elapsed.Seconds(), len(result.LiveGames))

	s.mu.Lock()
	s.lastPollDuration = elapsed
	s.activeGames = len(result.LiveGames)
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil && errors.Is(err, ErrQuotaExhausted) && s.cfg.AutoEmergencyStop {
		s.EmergencyStop(ctx, "daily quota exhausted")
	}
	return result, err
}

func (s *PollingScheduler) poll(ctx context.Context, start time.Time) (PollResult, error) {
	result := PollResult{}
	var errs []error
	fail := func(err error) {
		errs = append(errs, err)
		result.Errors = append(result.Errors, err.Error())
	}

	if s.directoryStale() {
		players, err := callUpstream(ctx, s, "players", s.feed.Players)
		switch {
		case err == nil:
			s.directory.SetDirectory(ctx, players)
			result.DirectoryRefreshed = true
		case IsGovernorDenial(err):
			fail(err)
			return result, errors.Join(errs...)
		default:
			s.logger.WarnContext(ctx, "player directory refresh failed", "error", err)
			fail(err)
		}
	}

	games, err := callUpstream(ctx, s, "live_games", s.feed.LiveGames)
	if err != nil {
		fail(err)
		return result, errors.Join(errs...)
	}

	liveIDs := make([]string, 0, len(games))
	for _, game := range games {
		if game.ID == "" || !game.IsLive() {
			continue
		}
		result.LiveGames = append(result.LiveGames, game)
		liveIDs = append(liveIDs, game.ID)
	}
	s.detector.MarkInactive(ctx, liveIDs)

	for _, game := range s.pollOrder(result.LiveGames) {
		if err := ctx.Err(); err != nil {
			fail(err)
			break
		}

		gameID := game.ID
		plays, err := callUpstream(ctx, s, "plays", func(ctx context.Context) ([]gameevent.Play, error) {
			return s.feed.Plays(ctx, gameID)
		})
		if err != nil {
			fail(fmt.Errorf("game %s: %w", gameID, err))
			if IsGovernorDenial(err) {
				break
			}
			continue
		}
		result.GamesPolled++
		s.lastFetched[gameID] = s.now()

		for _, ev := range s.detector.Detect(ctx, gameID, plays) {
			result.EventsDetected++
			if s.attributor == nil {
				continue
			}
			result.ImpactsAttributed += len(s.attributor.Attribute(ctx, ev))
		}
	}

	if result.EventsDetected > 0 {
		s.logger.InfoContext(ctx, "poll produced scoring events",
			"live_games", len(result.LiveGames),
			"events", result.EventsDetected,
			"impacts", result.ImpactsAttributed,
			"elapsed_ms", s.now().Sub(start).Milliseconds(),
		)
	}
	return result, errors.Join(errs...)
}

// pollOrder puts the games fetched longest ago first, so a governor refusal
// part way through a large slate defers different games on each poll.
// Games no longer live are forgotten.
func (s *PollingScheduler) pollOrder(games []gameevent.Game) []gameevent.Game {
	seen := make(map[string]time.Time, len(games))
	for _, game := range games {
		seen[game.ID] = s.lastFetched[game.ID]
	}
	s.lastFetched = seen

	ordered := append([]gameevent.Game(nil), games...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return seen[ordered[i].ID].Before(seen[ordered[j].ID])
	})
	return ordered
}

func (s *PollingScheduler) directoryStale() bool {
	if s.directory == nil {
		return false
	}
	age, ok := s.directory.DirectoryAge()
	return !ok || age >= s.cfg.DirectoryRefresh
}

// callUpstream gates fn behind the governor and reports its outcome. Only
// transient failures count against the breaker; a quota overrun forces it
// open.
func callUpstream[T any](ctx context.Context, s *PollingScheduler, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := s.gate.TryAcquire(ctx); err != nil {
		s.metrics.UpstreamCall(op, "denied")
		return zero, fmt.Errorf("%s: %w", op, err)
	}

	out, err := fn(ctx)
	switch {
	case err == nil:
		s.gate.RecordSuccess()
		s.metrics.UpstreamCall(op, "ok")
		return out, nil
	case errors.Is(err, ErrUpstreamQuotaExceeded):
		s.gate.RecordQuotaExceeded(ctx)
		s.metrics.UpstreamCall(op, "quota_exceeded")
		return zero, fmt.Errorf("%s: %w: %w", op, ErrQuotaExhausted, err)
	case errors.Is(err, ErrUpstreamTransient):
		s.gate.RecordFailure(ctx)
		s.metrics.UpstreamCall(op, "transient")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.gate.RecordCanceled()
		s.metrics.UpstreamCall(op, "canceled")
	default:
		// The upstream answered; a payload it sent us is not a health failure.
		s.gate.RecordSuccess()
		s.metrics.UpstreamCall(op, "invalid")
	}
	return zero, fmt.Errorf("%s: %w", op, err)
}

func (s *PollingScheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := SchedulerStatus{
		Running:            s.running,
		IntervalSeconds:    int64(s.interval / time.Second),
		EmergencyStopped:   s.emergency.Load(),
		EmergencyReason:    s.emergencyReason,
		LastPollDurationMs: s.lastPollDuration.Milliseconds(),
		LastError:          s.lastErr,
		ActiveGames:        s.activeGames,
	}
	if !s.emergencyAt.IsZero() {
		at := s.emergencyAt
		out.EmergencyStoppedAt = &at
	}
	if !s.lastPollAt.IsZero() {
		at := s.lastPollAt
		out.LastPollAt = &at
	}
	return out
}
