package usecase

import (
	"context"
	"testing"

	"github.com/riskibarqy/fantasy-livefeed/internal/domain/gameevent"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/kvstore"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/roster"
	"github.com/riskibarqy/fantasy-livefeed/internal/infrastructure/kvstore/memory"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
)

func owned(leagueID string, platform roster.Platform, id, name, team, pos string) roster.OwnedPlayer {
	return roster.OwnedPlayer{
		LeagueID: leagueID,
		TeamID:   "t-" + leagueID,
		Platform: platform,
		Player:   roster.FantasyPlayer{PlatformPlayerID: id, Name: name, Team: team, Position: pos, IsStarter: true},
	}
}

func TestPlayerIdentityResolver_ExactMatchAcrossLeagues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewPlayerIdentityResolver(nil, logging.NewNop(), nil)
	r.BuildIndex(ctx, []roster.OwnedPlayer{
		owned("L1", roster.PlatformSleeper, "4035", "Tyreek Hill", "MIA", "WR"),
		owned("L2", roster.PlatformESPN, "3116406", "Tyreek Hill", "MIA", "WR"),
	})

	got := r.Resolve(ctx, gameevent.PlayerRef{Name: "Tyreek Hill", Team: "MIA", Position: "WR"})
	if len(got) != 2 {
		t.Fatalf("expected owners in both leagues, got %d", len(got))
	}

	m, ok := r.FindByNameTeamPosition("tyreek hill", "mia", "wr")
	if !ok || m.PlatformIDs[roster.PlatformSleeper] != "4035" || m.PlatformIDs[roster.PlatformESPN] != "3116406" {
		t.Fatalf("expected merged platform ids, got %+v ok=%v", m, ok)
	}
}

func TestPlayerIdentityResolver_FuzzyThresholds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewPlayerIdentityResolver(nil, logging.NewNop(), nil)
	r.BuildIndex(ctx, []roster.OwnedPlayer{
		owned("L1", roster.PlatformSleeper, "1", "Robert Griffin", "WAS", "QB"),
	})

	match, ok := r.Lookup(ctx, gameevent.PlayerRef{Name: "Rob Griffin", Team: "WSH", Position: "QB"})
	if !ok || match.Method != "fuzzy" || match.Confidence < 0.7 {
		t.Fatalf("expected fuzzy match for nickname, got %+v ok=%v", match, ok)
	}

	if _, ok := r.Lookup(ctx, gameevent.PlayerRef{Name: "Robert Green", Team: "WAS", Position: "QB"}); ok {
		t.Fatalf("expected no match below accept threshold")
	}

	if _, ok := r.Lookup(ctx, gameevent.PlayerRef{Name: "Rob Griffin", Team: "DAL", Position: "QB"}); ok {
		t.Fatalf("expected no match when team differs")
	}
}

func TestPlayerIdentityResolver_DirectoryFillsProviderID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := memory.NewStore()
	r := NewPlayerIdentityResolver(kv, logging.NewNop(), nil)
	r.BuildIndex(ctx, []roster.OwnedPlayer{
		owned("L1", roster.PlatformYahoo, "nfl.p.33536", "Justin Jefferson", "MIN", "WR"),
	})
	r.SetDirectory(ctx, []gameevent.ProviderPlayer{{ID: "up-18", Name: "Justin Jefferson", Team: "MIN", Position: "WR"}})

	got := r.ResolveProviderID(ctx, "up-18")
	if len(got) != 1 || got[0].LeagueID != "L1" {
		t.Fatalf("expected provider id to resolve through directory, got %+v", got)
	}
	if _, ok := r.DirectoryAge(); !ok {
		t.Fatalf("expected directory age to be known")
	}

	restored := NewPlayerIdentityResolver(kv, logging.NewNop(), nil)
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("Restore error: %v", err)
	}
	restored.BuildIndex(ctx, []roster.OwnedPlayer{
		owned("L1", roster.PlatformYahoo, "nfl.p.33536", "Justin Jefferson", "MIN", "WR"),
	})
	if got := restored.ResolveProviderID(ctx, "up-18"); len(got) != 1 {
		t.Fatalf("expected restored directory to resolve, got %+v", got)
	}
}

func TestPlayerIdentityResolver_RebuildDropsTradedPlayers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := memory.NewStore()
	r := NewPlayerIdentityResolver(kv, logging.NewNop(), nil)
	r.BuildIndex(ctx, []roster.OwnedPlayer{
		owned("L1", roster.PlatformSleeper, "1", "Davante Adams", "LV", "WR"),
	})
	if got := r.Resolve(ctx, gameevent.PlayerRef{ProviderID: "up-1", Name: "Davante Adams", Team: "OAK", Position: "WR"}); len(got) != 1 {
		t.Fatalf("expected alias team to match, got %d", len(got))
	}

	r.BuildIndex(ctx, []roster.OwnedPlayer{
		owned("L1", roster.PlatformSleeper, "2", "Jakobi Meyers", "LV", "WR"),
	})
	if got := r.Resolve(ctx, gameevent.PlayerRef{ProviderID: "up-1", Name: "Davante Adams", Team: "LV", Position: "WR"}); len(got) != 0 {
		t.Fatalf("expected traded player to no longer resolve, got %+v", got)
	}

	var links map[string]providerLink
	if ok, err := kvstore.GetJSON(ctx, kv, kvstore.KeyPlayerLinks, &links); err != nil || !ok {
		t.Fatalf("expected persisted links, ok=%v err=%v", ok, err)
	}
	if _, ok := links["up-1"]; ok {
		t.Fatalf("expected stale link to be dropped on rebuild")
	}
}

func TestPlayerIdentityResolver_ConflictingPlatformIDKeepsFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewPlayerIdentityResolver(nil, logging.NewNop(), nil)
	r.BuildIndex(ctx, []roster.OwnedPlayer{
		owned("L1", roster.PlatformSleeper, "111", "Josh Allen", "BUF", "QB"),
		owned("L2", roster.PlatformSleeper, "222", "Josh Allen", "BUF", "QB"),
	})

	m, ok := r.FindByNameTeamPosition("Josh Allen", "BUF", "QB")
	if !ok || m.PlatformIDs[roster.PlatformSleeper] != "111" {
		t.Fatalf("expected first platform id to be kept, got %+v", m)
	}
}
