package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/roster"
	"github.com/riskibarqy/fantasy-livefeed/internal/observability"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/resilience"
	"go.opentelemetry.io/otel/attribute"
)

// IdentityIndexer is rebuilt from the full owned-player set after each load.
type IdentityIndexer interface {
	BuildIndex(ctx context.Context, owned []roster.OwnedPlayer)
}

type RosterCacheConfig struct {
	StaleAfter time.Duration
	Workers    int
}

func DefaultRosterCacheConfig() RosterCacheConfig {
	return RosterCacheConfig{
		StaleAfter: time.Hour,
		Workers:    4,
	}
}

const (
	rosterLoadStatusLoaded  = "loaded"
	rosterLoadStatusSkipped = "skipped"
	rosterLoadStatusFailed  = "failed"
)

type RosterLoadTaskResult struct {
	LeagueID   string `json:"league_id"`
	Platform   string `json:"platform"`
	Status     string `json:"status"`
	Players    int    `json:"players"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

type RosterLoadResult struct {
	LoadedCount  int                    `json:"loaded_count"`
	SkippedCount int                    `json:"skipped_count"`
	FailedCount  int                    `json:"failed_count"`
	Tasks        []RosterLoadTaskResult `json:"tasks"`
}

// RosterCache holds one snapshot (roster + scoring settings) per league,
// keyed by platform and league ID.
// Snapshots are replaced whole so readers never see a roster paired with
// another load's settings.
type RosterCache struct {
	mu        sync.RWMutex
	snapshots map[string]roster.Snapshot

	providers map[roster.Platform]roster.Provider
	indexer   IdentityIndexer
	flight    resilience.SingleFlight[roster.Snapshot]
	cfg       RosterCacheConfig
	logger    *logging.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewRosterCache(providers []roster.Provider, indexer IdentityIndexer, cfg RosterCacheConfig, logger *logging.Logger, metrics *observability.Metrics) *RosterCache {
	if logger == nil {
		logger = logging.Default()
	}
	defaults := DefaultRosterCacheConfig()
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaults.StaleAfter
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}

	byPlatform := make(map[roster.Platform]roster.Provider, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		byPlatform[p.Platform()] = p
	}

	return &RosterCache{
		snapshots: make(map[string]roster.Snapshot),
		providers: byPlatform,
		indexer:   indexer,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Load refreshes every stale league (or all of them when force is set) in
// parallel. A failing league keeps its previous snapshot and does not abort
// the others. The identity index is rebuilt afterwards.
func (c *RosterCache) Load(ctx context.Context, leagues []roster.LeagueConfig, force bool) (RosterLoadResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.RosterCache.Load",
		attribute.Int("leagues", len(leagues)),
		attribute.Bool("force", force),
	)
	defer span.End()

	result := RosterLoadResult{}
	if len(leagues) == 0 {
		c.rebuildIndex(ctx)
		return result, nil
	}

	workerCount := min(c.cfg.Workers, len(leagues))
	pool, err := ants.NewPool(workerCount)
	if err != nil {
		return RosterLoadResult{}, fmt.Errorf("create roster worker pool: %w", err)
	}
	defer pool.Release()

	results := make(chan RosterLoadTaskResult, len(leagues))
	var loaded, skipped, failed atomic.Int32
	var workers sync.WaitGroup

	for _, league := range leagues {
		league := league
		if !force && !c.IsStale(league.Platform, league.LeagueID) {
			skipped.Add(1)
			results <- RosterLoadTaskResult{
				LeagueID: league.LeagueID,
				Platform: string(league.Platform),
				Status:   rosterLoadStatusSkipped,
				Message:  "fresh",
			}
			continue
		}

		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()

			start := time.Now()
			row := RosterLoadTaskResult{LeagueID: league.LeagueID, Platform: string(league.Platform)}
			snap, loadErr, _ := c.flight.Do(league.Key(), func() (roster.Snapshot, error) {
				return c.loadOne(ctx, league)
			})
			row.DurationMs = time.Since(start).Milliseconds()

			if loadErr != nil {
				failed.Add(1)
				row.Status = rosterLoadStatusFailed
				row.Message = loadErr.Error()
				c.metrics.RosterLoad(string(league.Platform), rosterLoadStatusFailed)
				c.logger.WarnContext(ctx, "roster load failed",
					"league_id", league.LeagueID,
					"platform", string(league.Platform),
					"error", loadErr,
				)
				results <- row
				return
			}

			c.mu.Lock()
			c.snapshots[league.Key()] = snap
			c.mu.Unlock()

			loaded.Add(1)
			row.Status = rosterLoadStatusLoaded
			row.Players = len(snap.Roster.Players)
			c.metrics.RosterLoad(string(league.Platform), rosterLoadStatusLoaded)
			results <- row
		}); err != nil {
			workers.Done()
			workers.Wait()
			return RosterLoadResult{}, fmt.Errorf("submit roster load to worker pool: %w", err)
		}
	}

	workers.Wait()
	close(results)

	for row := range results {
		result.Tasks = append(result.Tasks, row)
	}
	sort.SliceStable(result.Tasks, func(i, j int) bool {
		if result.Tasks[i].LeagueID != result.Tasks[j].LeagueID {
			return result.Tasks[i].LeagueID < result.Tasks[j].LeagueID
		}
		return result.Tasks[i].Platform < result.Tasks[j].Platform
	})
	result.LoadedCount = int(loaded.Load())
	result.SkippedCount = int(skipped.Load())
	result.FailedCount = int(failed.Load())

	c.rebuildIndex(ctx)
	c.logger.InfoContext(ctx, "rosters loaded",
		"loaded", result.LoadedCount,
		"skipped", result.SkippedCount,
		"failed", result.FailedCount,
	)
	return result, nil
}

func (c *RosterCache) loadOne(ctx context.Context, league roster.LeagueConfig) (roster.Snapshot, error) {
	provider, ok := c.providers[league.Platform]
	if !ok {
		return roster.Snapshot{}, fmt.Errorf("%w: no provider for platform %q", ErrInvalidInput, league.Platform)
	}

	// Platform roster APIs are not metered by the stats governor; loads run
	// on the hourly refresh and at startup only.
	r, err := provider.LoadRoster(ctx, league)
	if err != nil {
		return roster.Snapshot{}, fmt.Errorf("load roster: %w", err)
	}
	settings, err := provider.LoadScoringSettings(ctx, league)
	if err != nil {
		return roster.Snapshot{}, fmt.Errorf("load scoring settings: %w", err)
	}

	now := c.now()
	if r.LeagueID == "" {
		r.LeagueID = league.LeagueID
	}
	if r.TeamID == "" {
		r.TeamID = league.TeamID
	}
	r.Platform = league.Platform
	r.LoadedAt = now
	if err := r.ValidateBasic(); err != nil {
		return roster.Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	settings.LeagueID = league.LeagueID
	settings.Platform = league.Platform
	settings.LoadedAt = now

	return roster.Snapshot{Config: league, Roster: r, Settings: settings, LoadedAt: now}, nil
}

func (c *RosterCache) rebuildIndex(ctx context.Context) {
	if c.indexer == nil {
		return
	}
	c.indexer.BuildIndex(ctx, c.OwnedPlayers())
}

func (c *RosterCache) Get(platform roster.Platform, leagueID string) (roster.FantasyRoster, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.snapshots[roster.LeagueKey(platform, leagueID)]
	return snap.Roster, ok
}

func (c *RosterCache) Snapshot(platform roster.Platform, leagueID string) (roster.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.snapshots[roster.LeagueKey(platform, leagueID)]
	return snap, ok
}

// FindLeague returns every cached league with this ID, ordered by platform.
func (c *RosterCache) FindLeague(leagueID string) []roster.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []roster.Snapshot
	for _, snap := range c.snapshots {
		if snap.Config.LeagueID == leagueID {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Config.Platform < out[j].Config.Platform })
	return out
}

func (c *RosterCache) Settings(platform roster.Platform, leagueID string) (roster.LeagueScoringSettings, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.snapshots[roster.LeagueKey(platform, leagueID)]
	return snap.Settings, ok
}

// IsStale reports whether a league is missing or older than StaleAfter.
func (c *RosterCache) IsStale(platform roster.Platform, leagueID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.snapshots[roster.LeagueKey(platform, leagueID)]
	if !ok {
		return true
	}
	return c.now().Sub(snap.LoadedAt) >= c.cfg.StaleAfter
}

func (c *RosterCache) OwnedPlayers() []roster.OwnedPlayer {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.snapshots))
	for key := range c.snapshots {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []roster.OwnedPlayer
	for _, key := range keys {
		out = append(out, c.snapshots[key].Owned()...)
	}
	return out
}

func (c *RosterCache) Leagues() []roster.LeagueConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]roster.LeagueConfig, 0, len(c.snapshots))
	for _, snap := range c.snapshots {
		out = append(out, snap.Config)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
