package roster

import "testing"

func TestParsePlatform(t *testing.T) {
	t.Parallel()

	if p, err := ParsePlatform(" ESPN "); err != nil || p != PlatformESPN {
		t.Fatalf("ParsePlatform(ESPN)=%q,%v", p, err)
	}
	if _, err := ParsePlatform("mfl"); err == nil {
		t.Fatalf("expected error for unsupported platform")
	}
}

func TestSnapshotOwned(t *testing.T) {
	t.Parallel()

	snap := Snapshot{Roster: FantasyRoster{
		LeagueID: "L1",
		TeamID:   "7",
		TeamName: "Gridiron Gang",
		Platform: PlatformSleeper,
		Players: []FantasyPlayer{
			{PlatformPlayerID: "4046", Name: "Patrick Mahomes", Position: "QB", Team: "KC", IsStarter: true},
			{PlatformPlayerID: "6794", Name: "Justin Jefferson", Position: "WR", Team: "MIN"},
		},
	}}

	owned := snap.Owned()
	if len(owned) != 2 {
		t.Fatalf("expected 2 owned players, got %d", len(owned))
	}
	if owned[0].LeagueID != "L1" || owned[0].TeamName != "Gridiron Gang" || !owned[0].Player.IsStarter {
		t.Fatalf("unexpected owned player: %+v", owned[0])
	}
}
