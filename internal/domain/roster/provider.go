package roster

import "context"

// Provider loads one platform's rosters and scoring settings.
type Provider interface {
	Platform() Platform
	LoadRoster(ctx context.Context, league LeagueConfig) (FantasyRoster, error)
	LoadScoringSettings(ctx context.Context, league LeagueConfig) (LeagueScoringSettings, error)
}
