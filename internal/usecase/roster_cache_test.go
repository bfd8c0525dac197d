package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/riskibarqy/fantasy-livefeed/internal/domain/roster"
	rostermock "github.com/riskibarqy/fantasy-livefeed/internal/mocks/domain/roster"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"github.com/stretchr/testify/mock"
)

type recordingIndexer struct {
	mu    sync.Mutex
	calls int
	last  []roster.OwnedPlayer
}

func (r *recordingIndexer) BuildIndex(_ context.Context, owned []roster.OwnedPlayer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = owned
}

func sleeperLeague(id string) roster.LeagueConfig {
	return roster.LeagueConfig{LeagueID: id, Platform: roster.PlatformSleeper, TeamID: "7"}
}

func sleeperProvider(t *testing.T) *rostermock.Provider {
	t.Helper()

	p := rostermock.NewProvider(t)
	p.On("Platform").Return(roster.PlatformSleeper).Maybe()
	return p
}

func TestRosterCache_PartialFailureKeepsOthers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := sleeperProvider(t)
	provider.On("LoadRoster", mock.Anything, sleeperLeague("L1")).Return(roster.FantasyRoster{
		TeamName: "Hill Street",
		Players:  []roster.FantasyPlayer{{PlatformPlayerID: "4035", Name: "Tyreek Hill", Team: "MIA", Position: "WR", IsStarter: true}},
	}, nil).Once()
	provider.On("LoadScoringSettings", mock.Anything, sleeperLeague("L1")).Return(roster.LeagueScoringSettings{
		Coefficients: map[string]float64{"rec_td": 6, "rec": 1},
	}, nil).Once()
	provider.On("LoadRoster", mock.Anything, sleeperLeague("L2")).Return(roster.FantasyRoster{}, errors.New("sleeper down")).Once()

	indexer := &recordingIndexer{}
	cache := NewRosterCache([]roster.Provider{provider}, indexer, RosterCacheConfig{}, logging.NewNop(), nil)

	result, err := cache.Load(ctx, []roster.LeagueConfig{sleeperLeague("L1"), sleeperLeague("L2")}, false)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if result.LoadedCount != 1 || result.FailedCount != 1 {
		t.Fatalf("unexpected load result: %+v", result)
	}
	if result.Tasks[0].LeagueID != "L1" || result.Tasks[1].Status != "failed" {
		t.Fatalf("expected tasks sorted by league id, got %+v", result.Tasks)
	}

	got, ok := cache.Get(roster.PlatformSleeper, "L1")
	if !ok || got.LeagueID != "L1" || got.TeamID != "7" || got.Platform != roster.PlatformSleeper {
		t.Fatalf("expected L1 roster filled from config, got %+v ok=%v", got, ok)
	}
	snap, _ := cache.Snapshot(roster.PlatformSleeper, "L1")
	if snap.Settings.LeagueID != "L1" || !snap.Settings.LoadedAt.Equal(snap.Roster.LoadedAt) {
		t.Fatalf("expected roster and settings from the same load, got %+v", snap)
	}
	if _, ok := cache.Get(roster.PlatformSleeper, "L2"); ok {
		t.Fatalf("expected failed league to stay absent")
	}

	if indexer.calls != 1 || len(indexer.last) != 1 || indexer.last[0].TeamName != "Hill Street" {
		t.Fatalf("expected index rebuilt from loaded rosters, got %+v", indexer)
	}
}

func TestRosterCache_SkipsFreshUnlessForced(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)
	provider := sleeperProvider(t)
	provider.On("LoadRoster", mock.Anything, mock.Anything).Return(roster.FantasyRoster{}, nil).Times(3)
	provider.On("LoadScoringSettings", mock.Anything, mock.Anything).Return(roster.LeagueScoringSettings{}, nil).Times(3)

	cache := NewRosterCache([]roster.Provider{provider}, nil, RosterCacheConfig{StaleAfter: time.Hour}, logging.NewNop(), nil)
	cache.now = func() time.Time { return now }
	leagues := []roster.LeagueConfig{sleeperLeague("L1")}

	if _, err := cache.Load(ctx, leagues, false); err != nil {
		t.Fatalf("Load error: %v", err)
	}

	result, _ := cache.Load(ctx, leagues, false)
	if result.SkippedCount != 1 || result.LoadedCount != 0 {
		t.Fatalf("expected fresh league skipped, got %+v", result)
	}

	result, _ = cache.Load(ctx, leagues, true)
	if result.LoadedCount != 1 {
		t.Fatalf("expected forced reload, got %+v", result)
	}

	now = now.Add(time.Hour)
	if !cache.IsStale(roster.PlatformSleeper, "L1") {
		t.Fatalf("expected league stale after an hour")
	}
	result, _ = cache.Load(ctx, leagues, false)
	if result.LoadedCount != 1 {
		t.Fatalf("expected stale reload, got %+v", result)
	}
}

func TestRosterCache_UnknownPlatformFails(t *testing.T) {
	t.Parallel()

	cache := NewRosterCache(nil, nil, RosterCacheConfig{}, logging.NewNop(), nil)
	result, err := cache.Load(context.Background(), []roster.LeagueConfig{
		{LeagueID: "Y1", Platform: roster.PlatformYahoo, TeamID: "1"},
	}, false)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if result.FailedCount != 1 {
		t.Fatalf("expected missing provider to fail the league, got %+v", result)
	}
	if !cache.IsStale(roster.PlatformYahoo, "Y1") {
		t.Fatalf("expected missing league to report stale")
	}
}

func TestRosterCache_SettingsFailureKeepsPreviousSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := sleeperProvider(t)
	provider.On("LoadRoster", mock.Anything, mock.Anything).Return(roster.FantasyRoster{
		Players: []roster.FantasyPlayer{{PlatformPlayerID: "1", Name: "A. Player"}},
	}, nil).Twice()
	provider.On("LoadScoringSettings", mock.Anything, mock.Anything).Return(roster.LeagueScoringSettings{
		Coefficients: map[string]float64{"rush_td": 6},
	}, nil).Once()
	provider.On("LoadScoringSettings", mock.Anything, mock.Anything).Return(roster.LeagueScoringSettings{}, errors.New("timeout")).Once()

	cache := NewRosterCache([]roster.Provider{provider}, nil, RosterCacheConfig{}, logging.NewNop(), nil)
	leagues := []roster.LeagueConfig{sleeperLeague("L1")}
	if _, err := cache.Load(ctx, leagues, true); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	result, _ := cache.Load(ctx, leagues, true)
	if result.FailedCount != 1 {
		t.Fatalf("expected second load to fail, got %+v", result)
	}

	settings, ok := cache.Settings(roster.PlatformSleeper, "L1")
	if !ok || settings.Coefficients["rush_td"] != 6 {
		t.Fatalf("expected previous settings kept, got %+v", settings)
	}
	if owned := cache.OwnedPlayers(); len(owned) != 1 {
		t.Fatalf("expected previous roster kept, got %d players", len(owned))
	}
	if leagues := cache.Leagues(); len(leagues) != 1 || leagues[0].LeagueID != "L1" {
		t.Fatalf("unexpected leagues: %+v", leagues)
	}
}

func TestRosterCache_SameLeagueIDOnTwoPlatforms(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sleeper := sleeperProvider(t)
	sleeper.On("LoadRoster", mock.Anything, sleeperLeague("123")).Return(roster.FantasyRoster{
		Players: []roster.FantasyPlayer{{PlatformPlayerID: "4035", Name: "Tyreek Hill"}},
	}, nil).Once()
	sleeper.On("LoadScoringSettings", mock.Anything, sleeperLeague("123")).Return(roster.LeagueScoringSettings{
		Coefficients: map[string]float64{"rec": 1},
	}, nil).Once()

	espnLeague := roster.LeagueConfig{LeagueID: "123", Platform: roster.PlatformESPN, TeamID: "2"}
	espn := rostermock.NewProvider(t)
	espn.On("Platform").Return(roster.PlatformESPN).Maybe()
	espn.On("LoadRoster", mock.Anything, espnLeague).Return(roster.FantasyRoster{
		Players: []roster.FantasyPlayer{{PlatformPlayerID: "3116406", Name: "Tyreek Hill"}},
	}, nil).Once()
	espn.On("LoadScoringSettings", mock.Anything, espnLeague).Return(roster.LeagueScoringSettings{
		Coefficients: map[string]float64{"rec": 0.5},
	}, nil).Once()

	indexer := &recordingIndexer{}
	cache := NewRosterCache([]roster.Provider{sleeper, espn}, indexer, RosterCacheConfig{}, logging.NewNop(), nil)
	result, err := cache.Load(ctx, []roster.LeagueConfig{sleeperLeague("123"), espnLeague}, false)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if result.LoadedCount != 2 {
		t.Fatalf("expected both leagues loaded, got %+v", result)
	}

	if leagues := cache.Leagues(); len(leagues) != 2 {
		t.Fatalf("expected two cached leagues, got %+v", leagues)
	}
	if owned := cache.OwnedPlayers(); len(owned) != 2 || len(indexer.last) != 2 {
		t.Fatalf("expected an owner per platform, got %+v", owned)
	}

	sleeperSettings, _ := cache.Settings(roster.PlatformSleeper, "123")
	espnSettings, _ := cache.Settings(roster.PlatformESPN, "123")
	if sleeperSettings.Coefficients["rec"] != 1 || espnSettings.Coefficients["rec"] != 0.5 {
		t.Fatalf("expected per-platform settings, got sleeper=%+v espn=%+v", sleeperSettings, espnSettings)
	}

	found := cache.FindLeague("123")
	if len(found) != 2 || found[0].Config.Platform != roster.PlatformESPN || found[1].Config.Platform != roster.PlatformSleeper {
		t.Fatalf("unexpected FindLeague result: %+v", found)
	}
	if _, ok := cache.Snapshot(roster.PlatformYahoo, "123"); ok {
		t.Fatalf("expected no yahoo snapshot")
	}
}
