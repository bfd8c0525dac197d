package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/gameevent"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/impact"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/kvstore"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/roster"
	"github.com/riskibarqy/fantasy-livefeed/internal/infrastructure/kvstore/memory"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/id"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
)

func sampleImpact(leagueID, action string, points float64, ts time.Time) impact.FantasyImpact {
	return impact.FantasyImpact{
		LeagueID:    leagueID,
		TeamID:      "t-" + leagueID,
		Player:      gameevent.PlayerRef{Name: "A. Player", Team: "KC", Position: "RB"},
		Kind:        gameevent.KindRushingTouchdown,
		Points:      points,
		Description: action,
		Event:       gameevent.ScoringEvent{ID: "g1:" + action, GameID: "g1", DetectedAt: ts},
	}
}

func newTestEventStore(cfg EventStoreConfig, now *time.Time) *EventStore {
	s := NewEventStore(cfg, &id.Sequence{Prefix: "ev-"}, memory.NewStore(), logging.NewNop(), nil)
	s.now = func() time.Time { return *now }
	return s
}

func TestEventStore_SaveDeduplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)
	s := newTestEventStore(EventStoreConfig{}, &now)

	in := sampleImpact("L1", "6yd TD run", 6, now)
	added, err := s.Save(ctx, in)
	if err != nil || !added {
		t.Fatalf("expected first save to add, added=%v err=%v", added, err)
	}
	added, err = s.Save(ctx, in)
	if err != nil || added {
		t.Fatalf("expected duplicate save to be a no-op, added=%v err=%v", added, err)
	}

	if added, _ := s.Save(ctx, sampleImpact("L2", "6yd TD run", 6, now)); !added {
		t.Fatalf("expected identical event in another league to be stored")
	}

	recent := s.Recent(time.Hour)
	if len(recent) != 2 {
		t.Fatalf("expected 2 stored events, got %d", len(recent))
	}
	if recent[0].ID == recent[1].ID || recent[0].Hash == recent[1].Hash {
		t.Fatalf("expected distinct ids and hashes, got %+v", recent)
	}
}

func TestEventStore_WindowsAndLeagueFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)
	s := newTestEventStore(EventStoreConfig{}, &now)

	_ = s.SaveBatch(ctx, []impact.FantasyImpact{
		sampleImpact("L1", "old", 6, now.Add(-90*time.Minute)),
		sampleImpact("L1", "new", 6, now.Add(-5*time.Minute)),
		sampleImpact("L2", "other", 3, now.Add(-1*time.Minute)),
	})

	recent := s.Recent(30 * time.Minute)
	if len(recent) != 2 || recent[0].Action != "other" || recent[1].Action != "new" {
		t.Fatalf("expected newest-first events within window, got %+v", recent)
	}
	if got := s.ByLeague("", "L1", 0); len(got) != 2 {
		t.Fatalf("expected both L1 events without a window, got %d", len(got))
	}
	if got := s.ByLeague("", "L1", 30*time.Minute); len(got) != 1 || got[0].Action != "new" {
		t.Fatalf("unexpected L1 window result: %+v", got)
	}
}

func TestEventStore_ReplayedPlayIsNotStoredTwice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)
	s := newTestEventStore(EventStoreConfig{}, &now)

	if added, _ := s.Save(ctx, sampleImpact("L1", "6yd TD run", 6, now)); !added {
		t.Fatalf("expected first detection to be stored")
	}
	// Same play detected again after the game cursor was rebuilt.
	now = now.Add(4 * time.Minute)
	if added, _ := s.Save(ctx, sampleImpact("L1", "6yd TD run", 6, now)); added {
		t.Fatalf("expected replayed play to be deduplicated")
	}
	if got := s.Stats().Count; got != 1 {
		t.Fatalf("expected one stored event, got %d", got)
	}
}

func TestEventStore_SameLeagueIDOnTwoPlatforms(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)
	s := newTestEventStore(EventStoreConfig{}, &now)

	sleeper := sampleImpact("123", "6yd TD run", 6, now)
	sleeper.Platform = roster.PlatformSleeper
	espn := sampleImpact("123", "6yd TD run", 6, now)
	espn.Platform = roster.PlatformESPN
	if err := s.SaveBatch(ctx, []impact.FantasyImpact{sleeper, espn}); err != nil {
		t.Fatalf("SaveBatch error: %v", err)
	}
	if got := s.Stats().Count; got != 2 {
		t.Fatalf("expected both platforms' events stored, got %d", got)
	}

	if got := s.ByLeague("", "123", 0); len(got) != 2 {
		t.Fatalf("expected both events without a platform filter, got %d", len(got))
	}
	got := s.ByLeague(roster.PlatformESPN, "123", 0)
	if len(got) != 1 || got[0].Platform != roster.PlatformESPN {
		t.Fatalf("unexpected espn result: %+v", got)
	}
}

func TestEventStore_TTLAndCapacity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)
	s := newTestEventStore(EventStoreConfig{TTL: time.Hour, Capacity: 3}, &now)

	for i := 0; i < 5; i++ {
		ts := now.Add(time.Duration(i) * time.Second)
		if _, err := s.Save(ctx, sampleImpact("L1", fmt.Sprintf("play-%d", i), 6, ts)); err != nil {
			t.Fatalf("Save error: %v", err)
		}
	}
	stats := s.Stats()
	if stats.Count != 3 || stats.Capacity != 3 {
		t.Fatalf("expected capacity to hold 3, got %+v", stats)
	}
	if !stats.Oldest.Equal(now.Add(2*time.Second)) {
		t.Fatalf("expected oldest entries evicted first, oldest=%v", stats.Oldest)
	}

	if _, err := s.Save(ctx, sampleImpact("L1", "play-0", 6, now)); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if got := s.Stats().Count; got != 3 {
		t.Fatalf("expected count to stay at capacity, count=%d", got)
	}

	now = now.Add(time.Hour)
	if removed := s.EvictExpired(ctx); removed != 3 {
		t.Fatalf("expected 3 expired entries removed, got %d", removed)
	}
	if got := s.Recent(0); len(got) != 0 {
		t.Fatalf("expected empty store, got %d", len(got))
	}
}

func TestEventStore_PersistRestoreAndClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)
	kv := memory.NewStore()
	first := NewEventStore(EventStoreConfig{}, &id.Sequence{Prefix: "a-"}, kv, logging.NewNop(), nil)
	first.now = func() time.Time { return now }
	_, _ = first.Save(ctx, sampleImpact("L1", "6yd TD run", 6, now))

	second := NewEventStore(EventStoreConfig{}, &id.Sequence{Prefix: "b-"}, kv, logging.NewNop(), nil)
	second.now = func() time.Time { return now.Add(time.Minute) }
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("Restore error: %v", err)
	}
	if added, _ := second.Save(ctx, sampleImpact("L1", "6yd TD run", 6, now)); added {
		t.Fatalf("expected restored hash to dedup after restart")
	}

	raw, err := second.Export()
	if err != nil {
		t.Fatalf("Export error: %v", err)
	}
	var exported []impact.StoredEvent
	if err := sonic.Unmarshal(raw, &exported); err != nil || len(exported) != 1 || exported[0].ID != "a-1" {
		t.Fatalf("unexpected export: %s err=%v", raw, err)
	}

	if err := second.Clear(ctx); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, kvstore.KeyStoredEvents); ok {
		t.Fatalf("expected persisted events removed on clear")
	}

	_ = kv.Set(ctx, kvstore.KeyStoredEvents, []byte("{broken"))
	third := NewEventStore(EventStoreConfig{}, nil, kv, logging.NewNop(), nil)
	if err := third.Restore(ctx); err != nil {
		t.Fatalf("Restore with corrupt blob error: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, kvstore.KeyStoredEvents); ok {
		t.Fatalf("expected corrupt blob cleared")
	}
}
