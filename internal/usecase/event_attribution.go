package usecase

import (
	"context"
	"strconv"
	"sync"

	"github.com/riskibarqy/fantasy-livefeed/internal/domain/fantasy"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/gameevent"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/impact"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/roster"
	"github.com/riskibarqy/fantasy-livefeed/internal/observability"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"github.com/sourcegraph/conc/panics"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/otel/attribute"
)

// OwnerResolver finds every rostered player an upstream reference maps to.
type OwnerResolver interface {
	Resolve(ctx context.Context, ref gameevent.PlayerRef) []roster.OwnedPlayer
}

// SettingsSource returns the cached scoring settings of a league on a platform.
type SettingsSource interface {
	Settings(platform roster.Platform, leagueID string) (roster.LeagueScoringSettings, bool)
}

// ImpactSubscriber receives the impact batch of one scoring event.
type ImpactSubscriber func(ctx context.Context, impacts []impact.FantasyImpact) error

type subscription struct {
	id   uint64
	name string
	fn   ImpactSubscriber
}

// EventAttributionService maps scoring events to per-league fantasy impacts
// and fans each batch out to subscribers.
type EventAttributionService struct {
	resolver OwnerResolver
	settings SettingsSource
	logger   *logging.Logger
	metrics  *observability.Metrics

	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
}

func NewEventAttributionService(resolver OwnerResolver, settings SettingsSource, logger *logging.Logger, metrics *observability.Metrics) *EventAttributionService {
	if logger == nil {
		logger = logging.Default()
	}
	return &EventAttributionService{
		resolver: resolver,
		settings: settings,
		logger:   logger,
		metrics:  metrics,
	}
}

// OnImpact registers fn and returns a func that removes it. Subscribers run
// synchronously in registration order.
func (s *EventAttributionService) OnImpact(name string, fn ImpactSubscriber) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, name: name, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *EventAttributionService) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Attribute returns nil when the event touches no rostered player or every
// owner's league scores it at zero. Otherwise the non-empty batch is
// delivered to subscribers before returning.
func (s *EventAttributionService) Attribute(ctx context.Context, ev gameevent.ScoringEvent) []impact.FantasyImpact {
	ctx, span := startUsecaseSpan(ctx, "usecase.EventAttributionService.Attribute",
		attribute.String("event_id", ev.ID),
		attribute.String("kind", string(ev.Kind)),
	)
	defer span.End()

	if err := ev.ValidateBasic(); err != nil {
		s.logger.WarnContext(ctx, "invalid scoring event skipped", "event_id", ev.ID, "error", err)
		return nil
	}

	owners := s.resolver.Resolve(ctx, ev.Player)
	if len(owners) == 0 {
		s.logger.DebugContext(ctx, "scoring event not rostered", "event_id", ev.ID, "player", ev.Player.Name)
		return nil
	}

	description := describeEvent(ev)
	var impacts []impact.FantasyImpact
	for _, owner := range owners {
		settings, ok := s.settings.Settings(owner.Platform, owner.LeagueID)
		if !ok {
			s.logger.WarnContext(ctx, "scoring settings missing for league",
				"league_id", owner.LeagueID,
				"platform", string(owner.Platform),
			)
			continue
		}
		points := fantasy.PointsFor(ev.Kind, ev.Stats, settings)
		if points == 0 {
			continue
		}

		player := ev.Player
		if player.Name == "" {
			player.Name = owner.Player.Name
		}
		if player.Position == "" {
			player.Position = owner.Player.Position
		}
		if player.Team == "" {
			player.Team = owner.Player.Team
		}

		impacts = append(impacts, impact.FantasyImpact{
			LeagueID:         owner.LeagueID,
			TeamID:           owner.TeamID,
			TeamName:         owner.TeamName,
			Platform:         owner.Platform,
			PlatformPlayerID: owner.Player.PlatformPlayerID,
			Player:           player,
			Kind:             ev.Kind,
			Points:           points,
			IsStarter:        owner.Player.IsStarter,
			Description:      description,
			Event:            ev,
		})
		s.metrics.ImpactAttributed(owner.LeagueID)
	}
	if len(impacts) == 0 {
		return nil
	}

	span.SetAttributes(attribute.Int("impacts", len(impacts)))
	s.logger.InfoContext(ctx, "scoring event attributed",
		"event_id", ev.ID,
		"player", ev.Player.Name,
		"impacts", len(impacts),
	)
	s.deliver(ctx, impacts)
	return impacts
}

// deliver isolates each subscriber so a panic or error in one never stops
// the rest.
func (s *EventAttributionService) deliver(ctx context.Context, impacts []impact.FantasyImpact) {
	s.mu.RLock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()

	for _, sub := range subs {
		var err error
		var pc panics.Catcher
		pc.Try(func() { err = sub.fn(ctx, impacts) })

		if recovered := pc.Recovered(); recovered != nil {
			s.metrics.SubscriberFailed("panic")
			s.logger.ErrorContext(ctx, "impact subscriber panicked",
				"subscriber", sub.name,
				"panic", recovered.Value,
			)
			continue
		}
		if err != nil {
			s.metrics.SubscriberFailed("error")
			s.logger.WarnContext(ctx, "impact subscriber failed",
				"subscriber", sub.name,
				"error", err,
			)
		}
	}
}

// describeEvent renders the short action text shown next to an impact, for
// example "12-yd TD reception".
func describeEvent(ev gameevent.ScoringEvent) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	yards := int64(ev.Stats.Get(gameevent.StatYards))
	if ev.Kind == gameevent.KindFieldGoal {
		yards = int64(ev.Stats.Get(gameevent.StatFieldGoalYards))
	}
	writeYards := func() {
		if yards > 0 {
			buf.B = strconv.AppendInt(buf.B, yards, 10)
			_, _ = buf.WriteString("-yd ")
		}
	}

	switch ev.Kind {
	case gameevent.KindPassingTouchdown:
		writeYards()
		_, _ = buf.WriteString("TD pass")
	case gameevent.KindRushingTouchdown:
		writeYards()
		_, _ = buf.WriteString("TD run")
	case gameevent.KindReceivingTouchdown:
		writeYards()
		_, _ = buf.WriteString("TD reception")
	case gameevent.KindPassingYards:
		writeYards()
		_, _ = buf.WriteString("pass")
	case gameevent.KindRushingYards:
		writeYards()
		_, _ = buf.WriteString("run")
	case gameevent.KindReceivingYards:
		writeYards()
		_, _ = buf.WriteString("reception")
	case gameevent.KindFieldGoal:
		writeYards()
		_, _ = buf.WriteString("field goal")
	case gameevent.KindSafety:
		_, _ = buf.WriteString("Safety")
	case gameevent.KindFumble:
		_, _ = buf.WriteString("Fumble lost")
	case gameevent.KindInterception:
		_, _ = buf.WriteString("Interception thrown")
	default:
		_, _ = buf.WriteString(ev.Description)
	}
	return buf.String()
}
