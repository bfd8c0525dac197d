package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/riskibarqy/fantasy-livefeed/internal/domain/gameevent"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/impact"
	gameeventmock "github.com/riskibarqy/fantasy-livefeed/internal/mocks/domain/gameevent"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"github.com/stretchr/testify/mock"
)

type stubGate struct {
	mu        sync.Mutex
	denyAfter int
	acquired  int
	successes int
	failures  int
	canceled  int
	quota     int
}

func (g *stubGate) TryAcquire(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.denyAfter > 0 && g.acquired >= g.denyAfter {
		return ErrRateLimited
	}
	g.acquired++
	return nil
}

func (g *stubGate) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.successes++
}

func (g *stubGate) RecordCanceled() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canceled++
}

func (g *stubGate) RecordFailure(context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
}

func (g *stubGate) RecordQuotaExceeded(context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quota++
}

type countingAttributor struct {
	mu     sync.Mutex
	events []gameevent.ScoringEvent
}

func (a *countingAttributor) Attribute(_ context.Context, ev gameevent.ScoringEvent) []impact.FantasyImpact {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return []impact.FantasyImpact{{LeagueID: "L1", Points: 6}}
}

type schedulerFixture struct {
	feed       *gameeventmock.Feed
	gate       *stubGate
	detector   *GameEventDetector
	resolver   *PlayerIdentityResolver
	attributor *countingAttributor
	clock      *testClock
	scheduler  *PollingScheduler
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	f := &schedulerFixture{
		feed:       gameeventmock.NewFeed(t),
		gate:       &stubGate{},
		detector:   NewGameEventDetector(nil, logging.NewNop(), nil),
		resolver:   NewPlayerIdentityResolver(nil, logging.NewNop(), nil),
		attributor: &countingAttributor{},
		clock:      &testClock{now: time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)},
	}
	f.resolver.now = f.clock.Now
	f.scheduler = NewPollingScheduler(f.feed, f.gate, f.detector, f.resolver, f.attributor,
		DefaultPollingSchedulerConfig(), logging.NewNop(), nil)
	f.scheduler.now = f.clock.Now
	return f
}

func liveGames() []gameevent.Game {
	return []gameevent.Game{
		{ID: "g1", Status: "in_progress"},
		{ID: "g2", Status: "final"},
		{ID: "g3", Status: "live"},
	}
}

func TestPollingScheduler_PollOnceRunsPipeline(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.feed.On("Players", mock.Anything).Return([]gameevent.ProviderPlayer{{ID: "p-hill", Name: "Tyreek Hill", Team: "MIA", Position: "WR"}}, nil).Once()
	f.feed.On("LiveGames", mock.Anything).Return(liveGames(), nil).Once()
	f.feed.On("Plays", mock.Anything, "g1").Return(samplePlays(), nil).Once()
	f.feed.On("Plays", mock.Anything, "g3").Return([]gameevent.Play{}, nil).Once()

	result, err := f.scheduler.PollOnce(ctx)
	if err != nil {
		t.Fatalf("PollOnce error: %v", err)
	}
	if len(result.LiveGames) != 2 || result.GamesPolled != 2 || !result.DirectoryRefreshed {
		t.Fatalf("unexpected poll result: %+v", result)
	}
	if result.EventsDetected != 2 || result.ImpactsAttributed != 2 || len(f.attributor.events) != 2 {
		t.Fatalf("expected 2 events attributed, got %+v", result)
	}
	if f.gate.acquired != 4 || f.gate.successes != 4 {
		t.Fatalf("expected every upstream call gated, got %+v", f.gate)
	}

	status := f.scheduler.Status()
	if status.ActiveGames != 2 || status.LastPollAt == nil || status.LastError != "" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestPollingScheduler_EnforcesMinimumSpacing(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.resolver.SetDirectory(ctx, []gameevent.ProviderPlayer{{ID: "x", Name: "X"}})
	f.feed.On("LiveGames", mock.Anything).Return([]gameevent.Game{}, nil).Twice()

	if _, err := f.scheduler.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce error: %v", err)
	}
	f.clock.Advance(10 * time.Second)
	if _, err := f.scheduler.PollOnce(ctx); !errors.Is(err, ErrPollTooSoon) {
		t.Fatalf("expected ErrPollTooSoon, got %v", err)
	}
	f.clock.Advance(20 * time.Second)
	if _, err := f.scheduler.PollOnce(ctx); err != nil {
		t.Fatalf("expected poll after spacing, got %v", err)
	}
}

func TestPollingScheduler_TransientFailureContinuesOtherGames(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.resolver.SetDirectory(ctx, []gameevent.ProviderPlayer{{ID: "x", Name: "X"}})
	f.feed.On("LiveGames", mock.Anything).Return(liveGames(), nil).Once()
	f.feed.On("Plays", mock.Anything, "g1").Return(nil, fmt.Errorf("%w: status 503", ErrUpstreamTransient)).Once()
	f.feed.On("Plays", mock.Anything, "g3").Return(samplePlays(), nil).Once()

	result, err := f.scheduler.PollOnce(ctx)
	if err == nil || !errors.Is(err, ErrUpstreamTransient) {
		t.Fatalf("expected transient failure to propagate, got %v", err)
	}
	if result.GamesPolled != 1 || result.EventsDetected != 2 || len(result.Errors) != 1 {
		t.Fatalf("expected g3 processed despite g1 failure, got %+v", result)
	}
	if f.gate.failures != 1 {
		t.Fatalf("expected one recorded failure, got %d", f.gate.failures)
	}
	if f.scheduler.EmergencyStopped() {
		t.Fatalf("transient failures must not stop polling")
	}
}

func TestPollingScheduler_GovernorDenialStopsPoll(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.resolver.SetDirectory(ctx, []gameevent.ProviderPlayer{{ID: "x", Name: "X"}})
	f.gate.denyAfter = 2
	f.feed.On("LiveGames", mock.Anything).Return(liveGames(), nil).Once()
	f.feed.On("Plays", mock.Anything, "g1").Return(samplePlays(), nil).Once()

	result, err := f.scheduler.PollOnce(ctx)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit denial, got %v", err)
	}
	if result.GamesPolled != 1 {
		t.Fatalf("expected poll to stop at the denial, got %+v", result)
	}
	f.feed.AssertNotCalled(t, "Plays", mock.Anything, "g3")
}

func TestPollingScheduler_RotatesGamesAcrossDeniedPolls(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.resolver.SetDirectory(ctx, []gameevent.ProviderPlayer{{ID: "x", Name: "X"}})

	var slate []gameevent.Game
	for i := 1; i <= 6; i++ {
		slate = append(slate, gameevent.Game{ID: fmt.Sprintf("g%d", i), Status: "in_progress"})
	}
	fetched := map[string]int{}
	var fetchedMu sync.Mutex
	f.feed.On("LiveGames", mock.Anything).Return(slate, nil).Twice()
	f.feed.On("Plays", mock.Anything, mock.AnythingOfType("string")).Run(func(args mock.Arguments) {
		fetchedMu.Lock()
		fetched[args.String(1)]++
		fetchedMu.Unlock()
	}).Return([]gameevent.Play{}, nil)

	// One live-games call plus four plays calls fit in each minute.
	f.gate.denyAfter = 5
	first, err := f.scheduler.PollOnce(ctx)
	if !errors.Is(err, ErrRateLimited) || first.GamesPolled != 4 {
		t.Fatalf("expected first poll to stop after 4 games, got polled=%d err=%v", first.GamesPolled, err)
	}

	f.gate.acquired = 0
	f.clock.Advance(90 * time.Second)
	second, err := f.scheduler.PollOnce(ctx)
	if !errors.Is(err, ErrRateLimited) || second.GamesPolled != 4 {
		t.Fatalf("expected second poll to stop after 4 games, got polled=%d err=%v", second.GamesPolled, err)
	}

	for _, game := range slate {
		if fetched[game.ID] == 0 {
			t.Fatalf("game %s was never fetched across two polls: %v", game.ID, fetched)
		}
	}
	if fetched["g5"] != 1 || fetched["g6"] != 1 {
		t.Fatalf("expected deferred games fetched first on the next poll, got %v", fetched)
	}
}

func TestPollingScheduler_CanceledCallReleasesGate(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.resolver.SetDirectory(ctx, []gameevent.ProviderPlayer{{ID: "x", Name: "X"}})
	f.feed.On("LiveGames", mock.Anything).Return(nil, context.Canceled).Once()

	if _, err := f.scheduler.PollOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled poll, got %v", err)
	}
	if f.gate.canceled != 1 || f.gate.successes != 0 || f.gate.failures != 0 {
		t.Fatalf("expected canceled call released without an outcome, got %+v", f.gate)
	}
}

func TestPollingScheduler_QuotaExceededTriggersEmergencyStop(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.resolver.SetDirectory(ctx, []gameevent.ProviderPlayer{{ID: "x", Name: "X"}})
	f.feed.On("LiveGames", mock.Anything).Return(nil, fmt.Errorf("%w: status 429", ErrUpstreamQuotaExceeded)).Once()

	_, err := f.scheduler.PollOnce(ctx)
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected quota exhaustion, got %v", err)
	}
	if f.gate.quota != 1 || f.gate.failures != 0 {
		t.Fatalf("expected quota overrun recorded separately, got %+v", f.gate)
	}
	if !f.scheduler.EmergencyStopped() {
		t.Fatalf("expected automatic emergency stop")
	}
	status := f.scheduler.Status()
	if status.EmergencyReason == "" || status.EmergencyStoppedAt == nil {
		t.Fatalf("expected emergency details in status, got %+v", status)
	}

	f.clock.Advance(time.Minute)
	if _, err := f.scheduler.PollOnce(ctx); !errors.Is(err, ErrEmergencyStopped) {
		t.Fatalf("expected ErrEmergencyStopped, got %v", err)
	}
	if err := f.scheduler.Start(ctx, time.Minute); !errors.Is(err, ErrEmergencyStopped) {
		t.Fatalf("expected Start to fail fast, got %v", err)
	}

	f.scheduler.ClearEmergencyStop(ctx)
	if f.scheduler.EmergencyStopped() {
		t.Fatalf("expected emergency stop cleared")
	}
}

func TestPollingScheduler_StartStop(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.resolver.SetDirectory(ctx, []gameevent.ProviderPlayer{{ID: "x", Name: "X"}})

	polled := make(chan struct{}, 1)
	f.feed.On("LiveGames", mock.Anything).Run(func(mock.Arguments) {
		polled <- struct{}{}
	}).Return([]gameevent.Game{}, nil).Once()

	if err := f.scheduler.Start(ctx, time.Hour); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if err := f.scheduler.Start(ctx, time.Hour); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	select {
	case <-polled:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected an immediate first poll")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := f.scheduler.Stop(stopCtx); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	if f.scheduler.Status().Running {
		t.Fatalf("expected scheduler stopped")
	}
}

func TestPollingScheduler_EffectiveIntervalFloor(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	cases := map[time.Duration]time.Duration{
		0:                90 * time.Second,
		5 * time.Second:  60 * time.Second,
		2 * time.Minute:  2 * time.Minute,
		-1 * time.Second: 90 * time.Second,
	}
	for requested, want := range cases {
		if got := f.scheduler.EffectiveInterval(requested); got != want {
			t.Fatalf("EffectiveInterval(%s) = %s, want %s", requested, got, want)
		}
	}
}
