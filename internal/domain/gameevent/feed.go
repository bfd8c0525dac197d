package gameevent

import "context"

// Feed is the upstream statistics provider as the pipeline consumes it.
type Feed interface {
	LiveGames(ctx context.Context) ([]Game, error)
	Plays(ctx context.Context, gameID string) ([]Play, error)
	Players(ctx context.Context) ([]ProviderPlayer, error)
}
