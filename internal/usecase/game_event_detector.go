package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/riskibarqy/fantasy-livefeed/internal/domain/gameevent"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/kvstore"
	"github.com/riskibarqy/fantasy-livefeed/internal/observability"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"go.opentelemetry.io/otel/attribute"
)

// GameEventDetector turns play batches into scoring events exactly once per
// play, tracking a monotonic cursor per game.
type GameEventDetector struct {
	mu     sync.Mutex
	states map[string]gameevent.GameState

	kv      kvstore.Repository
	logger  *logging.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewGameEventDetector(kv kvstore.Repository, logger *logging.Logger, metrics *observability.Metrics) *GameEventDetector {
	if logger == nil {
		logger = logging.Default()
	}
	return &GameEventDetector{
		states:  make(map[string]gameevent.GameState),
		kv:      kv,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Restore reloads game cursors so a restart does not replay plays.
func (d *GameEventDetector) Restore(ctx context.Context) error {
	if d.kv == nil {
		return nil
	}

	var states []gameevent.GameState
	ok, err := kvstore.GetJSON(ctx, d.kv, kvstore.KeyGameStates, &states)
	if err != nil {
		if errors.Is(err, kvstore.ErrCorrupt) {
			d.logger.WarnContext(ctx, "game states corrupt, clearing", "error", err)
			return d.kv.Delete(ctx, kvstore.KeyGameStates)
		}
		return fmt.Errorf("restore game states: %w", err)
	}
	if !ok {
		return nil
	}

	d.mu.Lock()
	for _, state := range states {
		if state.GameID == "" {
			continue
		}
		d.states[state.GameID] = state
	}
	count := len(d.states)
	d.mu.Unlock()

	d.logger.InfoContext(ctx, "game states restored", "games", count)
	return nil
}

// Detect processes one batch of plays for gameID. Plays are handled in
// sequence order; anything at or below the game's cursor is skipped.
func (d *GameEventDetector) Detect(ctx context.Context, gameID string, plays []gameevent.Play) []gameevent.ScoringEvent {
	if gameID == "" || len(plays) == 0 {
		return nil
	}
	ctx, span := startUsecaseSpan(ctx, "usecase.GameEventDetector.Detect", attribute.String("game_id", gameID))
	defer span.End()

	ordered := make([]gameevent.Play, 0, len(plays))
	for _, play := range plays {
		if play.Sequence <= 0 {
			seq, err := strconv.ParseInt(play.ID, 10, 64)
			if err != nil || seq <= 0 {
				d.logger.WarnContext(ctx, "play without usable sequence skipped", "game_id", gameID, "play_id", play.ID)
				d.metrics.PlaysSeen("malformed", 1)
				continue
			}
			play.Sequence = seq
		}
		ordered = append(ordered, play)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Sequence < ordered[j].Sequence
	})

	now := d.now()
	var (
		events     []gameevent.ScoringEvent
		duplicates int
		fresh      int
	)

	d.mu.Lock()
	state, ok := d.states[gameID]
	if !ok {
		state = gameevent.GameState{GameID: gameID}
	}
	startSeq := state.LastSequence
	for _, play := range ordered {
		if play.Sequence <= state.LastSequence {
			duplicates++
			continue
		}
		state.LastSequence = play.Sequence
		state.LastPlayID = play.ID
		fresh++

		classified, ok := gameevent.Classify(play)
		if !ok {
			continue
		}
		if play.PlayerID == "" && play.PlayerName == "" {
			d.logger.WarnContext(ctx, "scoring play without player skipped",
				"game_id", gameID,
				"play_id", play.ID,
				"kind", string(classified.Kind),
			)
			continue
		}

		events = append(events, gameevent.ScoringEvent{
			ID:       gameevent.EventID(gameID, play.ID),
			GameID:   gameID,
			PlayID:   play.ID,
			Sequence: play.Sequence,
			Player: gameevent.PlayerRef{
				ProviderID: play.PlayerID,
				Name:       play.PlayerName,
				Position:   play.Position,
				Team:       play.Team,
			},
			Kind:        classified.Kind,
			Stats:       classified.Stats,
			Quarter:     play.Quarter,
			Clock:       play.Clock,
			ScoringPlay: play.Scoring || classified.Kind.IsTouchdown() || classified.Kind == gameevent.KindFieldGoal || classified.Kind == gameevent.KindSafety,
			Description: play.Description,
			DetectedAt:  now,
		})
	}
	state.Active = true
	state.UpdatedAt = now
	d.states[gameID] = state
	advanced := state.LastSequence > startSeq
	snapshot := d.snapshotLocked()
	d.mu.Unlock()

	d.metrics.PlaysSeen("new", fresh)
	d.metrics.PlaysSeen("duplicate", duplicates)
	for _, ev := range events {
		d.metrics.EventDetected(string(ev.Kind))
	}
	if len(events) > 0 {
		d.logger.InfoContext(ctx, "scoring events detected", "game_id", gameID, "events", len(events), "last_sequence", state.LastSequence)
	}
	if advanced {
		d.persist(ctx, snapshot)
	}
	return events
}

// MarkInactive flags games missing from the live list as finished.
func (d *GameEventDetector) MarkInactive(ctx context.Context, liveGameIDs []string) {
	live := make(map[string]struct{}, len(liveGameIDs))
	for _, id := range liveGameIDs {
		live[id] = struct{}{}
	}

	d.mu.Lock()
	changed := false
	for id, state := range d.states {
		if _, ok := live[id]; ok || !state.Active {
			continue
		}
		state.Active = false
		state.UpdatedAt = d.now()
		d.states[id] = state
		changed = true
	}
	var snapshot []gameevent.GameState
	if changed {
		snapshot = d.snapshotLocked()
	}
	d.mu.Unlock()

	if changed {
		d.persist(ctx, snapshot)
	}
}

func (d *GameEventDetector) State(gameID string) (gameevent.GameState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.states[gameID]
	return state, ok
}

// ActiveGames counts games currently marked live.
func (d *GameEventDetector) ActiveGames() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, state := range d.states {
		if state.Active {
			n++
		}
	}
	return n
}

func (d *GameEventDetector) snapshotLocked() []gameevent.GameState {
	out := make([]gameevent.GameState, 0, len(d.states))
	for _, state := range d.states {
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out
}

func (d *GameEventDetector) persist(ctx context.Context, states []gameevent.GameState) {
	if d.kv == nil {
		return
	}
	if err := kvstore.SetJSON(ctx, d.kv, kvstore.KeyGameStates, states); err != nil {
		d.logger.WarnContext(ctx, "persist game states failed", "error", err)
	}
}
