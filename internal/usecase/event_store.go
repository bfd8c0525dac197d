package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/impact"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/kvstore"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/roster"
	"github.com/riskibarqy/fantasy-livefeed/internal/observability"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/id"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"go.opentelemetry.io/otel/attribute"
)

type EventStoreConfig struct {
	TTL      time.Duration
	Capacity int
}

func DefaultEventStoreConfig() EventStoreConfig {
	return EventStoreConfig{
		TTL:      24 * time.Hour,
		Capacity: 1000,
	}
}

type EventStoreStats struct {
	Count      int        `json:"count"`
	Capacity   int        `json:"capacity"`
	TTLSeconds int64      `json:"ttl_seconds"`
	Oldest     *time.Time `json:"oldest,omitempty"`
	Newest     *time.Time `json:"newest,omitempty"`
}

// EventStore keeps recent stored events for pull APIs. Entries are unique by
// dedup hash, expire after TTL and are capped at Capacity (oldest by event
// timestamp evicted first).
type EventStore struct {
	mu     sync.Mutex
	events []impact.StoredEvent
	hashes map[string]struct{}

	cfg     EventStoreConfig
	ids     id.Generator
	kv      kvstore.Repository
	logger  *logging.Logger
	metrics *observability.Metrics
	now     func() time.Time

	version          uint64
	persistMu        sync.Mutex
	persistedVersion uint64
}

func NewEventStore(cfg EventStoreConfig, ids id.Generator, kv kvstore.Repository, logger *logging.Logger, metrics *observability.Metrics) *EventStore {
	if logger == nil {
		logger = logging.Default()
	}
	if ids == nil {
		ids = id.NewUUIDGenerator()
	}
	defaults := DefaultEventStoreConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaults.Capacity
	}
	return &EventStore{
		hashes:  make(map[string]struct{}),
		cfg:     cfg,
		ids:     ids,
		kv:      kv,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Restore reloads persisted events, dropping expired ones. A corrupt blob is
// deleted and the store starts empty.
func (s *EventStore) Restore(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}

	var stored []impact.StoredEvent
	ok, err := kvstore.GetJSON(ctx, s.kv, kvstore.KeyStoredEvents, &stored)
	if err != nil {
		if errors.Is(err, kvstore.ErrCorrupt) {
			s.logger.WarnContext(ctx, "stored events corrupt, clearing", "error", err)
			return s.kv.Delete(ctx, kvstore.KeyStoredEvents)
		}
		return fmt.Errorf("restore stored events: %w", err)
	}
	if !ok {
		return nil
	}

	s.mu.Lock()
	now := s.now()
	s.events = s.events[:0]
	s.hashes = make(map[string]struct{}, len(stored))
	for _, ev := range stored {
		if ev.Hash == "" || ev.Expired(now) {
			continue
		}
		if _, dup := s.hashes[ev.Hash]; dup {
			continue
		}
		s.hashes[ev.Hash] = struct{}{}
		s.events = append(s.events, ev)
	}
	s.enforceCapacityLocked()
	count := len(s.events)
	s.mu.Unlock()

	s.metrics.SetStoredEvents(count)
	s.logger.InfoContext(ctx, "stored events restored", "count", count)
	return nil
}

// Save stores one impact. It reports false when an identical event is
// already held.
func (s *EventStore) Save(ctx context.Context, in impact.FantasyImpact) (bool, error) {
	added, err := s.save(ctx, []impact.FantasyImpact{in})
	return added == 1, err
}

// SaveBatch stores impacts, skipping duplicates. Its signature matches
// ImpactSubscriber.
func (s *EventStore) SaveBatch(ctx context.Context, impacts []impact.FantasyImpact) error {
	_, err := s.save(ctx, impacts)
	return err
}

func (s *EventStore) save(ctx context.Context, impacts []impact.FantasyImpact) (int, error) {
	if len(impacts) == 0 {
		return 0, nil
	}
	ctx, span := startUsecaseSpan(ctx, "usecase.EventStore.Save", attribute.Int("impacts", len(impacts)))
	var err error
	defer func() { finishSpan(span, err) }()

	s.mu.Lock()
	now := s.now()
	s.evictExpiredLocked(now)

	added, duplicates := 0, 0
	for _, in := range impacts {
		var eventID string
		eventID, err = s.ids.NewID()
		if err != nil {
			s.mu.Unlock()
			return added, fmt.Errorf("generate stored event id: %w", err)
		}
		ev := impact.Project(in, eventID, now, s.cfg.TTL)
		if _, dup := s.hashes[ev.Hash]; dup {
			duplicates++
			continue
		}
		s.hashes[ev.Hash] = struct{}{}
		s.events = append(s.events, ev)
		added++
	}
	evicted := s.enforceCapacityLocked()
	count := len(s.events)
	var snapshot []impact.StoredEvent
	var version uint64
	if added > 0 || evicted > 0 {
		snapshot, version = s.copyLocked()
	}
	s.mu.Unlock()

	s.metrics.EventStoreWrite("stored", added)
	s.metrics.EventStoreWrite("duplicate", duplicates)
	s.metrics.SetStoredEvents(count)
	if evicted > 0 {
		s.logger.DebugContext(ctx, "event store over capacity, evicted oldest", "evicted", evicted)
	}
	if snapshot != nil {
		s.persist(ctx, snapshot, version)
	}
	return added, nil
}

// Recent returns events whose timestamp falls within window, newest first.
// A non-positive window returns every live event.
func (s *EventStore) Recent(window time.Duration) []impact.StoredEvent {
	return s.filter(window, func(impact.StoredEvent) bool { return true })
}

// ByLeague filters by league ID. An empty platform matches the league on
// every platform.
func (s *EventStore) ByLeague(platform roster.Platform, leagueID string, window time.Duration) []impact.StoredEvent {
	return s.filter(window, func(ev impact.StoredEvent) bool {
		return ev.LeagueID == leagueID && (platform == "" || ev.Platform == platform)
	})
}

func (s *EventStore) filter(window time.Duration, keep func(impact.StoredEvent) bool) []impact.StoredEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var cutoff time.Time
	if window > 0 {
		cutoff = now.Add(-window)
	}

	out := make([]impact.StoredEvent, 0, len(s.events))
	for _, ev := range s.events {
		if ev.Expired(now) || !keep(ev) {
			continue
		}
		if !cutoff.IsZero() && eventTime(ev).Before(cutoff) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return eventTime(out[i]).After(eventTime(out[j]))
	})
	return out
}

// EvictExpired drops expired entries and returns how many were removed.
func (s *EventStore) EvictExpired(ctx context.Context) int {
	s.mu.Lock()
	removed := s.evictExpiredLocked(s.now())
	count := len(s.events)
	var snapshot []impact.StoredEvent
	var version uint64
	if removed > 0 {
		snapshot, version = s.copyLocked()
	}
	s.mu.Unlock()

	s.metrics.SetStoredEvents(count)
	if removed > 0 {
		s.logger.InfoContext(ctx, "expired events evicted", "removed", removed, "remaining", count)
		s.persist(ctx, snapshot, version)
	}
	return removed
}

func (s *EventStore) Stats() EventStoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := EventStoreStats{
		Count:      len(s.events),
		Capacity:   s.cfg.Capacity,
		TTLSeconds: int64(s.cfg.TTL / time.Second),
	}
	for _, ev := range s.events {
		ts := eventTime(ev)
		if out.Oldest == nil || ts.Before(*out.Oldest) {
			t := ts
			out.Oldest = &t
		}
		if out.Newest == nil || ts.After(*out.Newest) {
			t := ts
			out.Newest = &t
		}
	}
	return out
}

// Export encodes every live event as a JSON array, newest first.
func (s *EventStore) Export() ([]byte, error) {
	events := s.Recent(0)
	raw, err := sonic.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("encode stored events: %w", err)
	}
	return raw, nil
}

func (s *EventStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.events = nil
	s.hashes = make(map[string]struct{})
	s.version++
	s.mu.Unlock()

	s.metrics.SetStoredEvents(0)
	if s.kv == nil {
		return nil
	}
	if err := s.kv.Delete(ctx, kvstore.KeyStoredEvents); err != nil {
		return fmt.Errorf("clear stored events: %w", err)
	}
	return nil
}

func (s *EventStore) evictExpiredLocked(now time.Time) int {
	kept := s.events[:0]
	removed := 0
	for _, ev := range s.events {
		if ev.Expired(now) {
			delete(s.hashes, ev.Hash)
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	clear(s.events[len(kept):])
	s.events = kept
	return removed
}

func (s *EventStore) enforceCapacityLocked() int {
	over := len(s.events) - s.cfg.Capacity
	if over <= 0 {
		return 0
	}
	sort.SliceStable(s.events, func(i, j int) bool {
		return eventTime(s.events[i]).Before(eventTime(s.events[j]))
	})
	for _, ev := range s.events[:over] {
		delete(s.hashes, ev.Hash)
	}
	s.events = append(s.events[:0:0], s.events[over:]...)
	return over
}

func (s *EventStore) copyLocked() ([]impact.StoredEvent, uint64) {
	s.version++
	out := make([]impact.StoredEvent, len(s.events))
	copy(out, s.events)
	return out, s.version
}

// persist writes a snapshot unless a newer one already landed.
func (s *EventStore) persist(ctx context.Context, events []impact.StoredEvent, version uint64) {
	if s.kv == nil {
		return
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if version <= s.persistedVersion {
		return
	}
	if err := kvstore.SetJSON(ctx, s.kv, kvstore.KeyStoredEvents, events); err != nil {
		s.logger.WarnContext(ctx, "persist stored events failed", "error", err)
		return
	}
	s.persistedVersion = version
}

// eventTime orders by the event timestamp, falling back to the store time.
func eventTime(ev impact.StoredEvent) time.Time {
	if ev.Timestamp.IsZero() {
		return ev.StoredAt
	}
	return ev.Timestamp
}
