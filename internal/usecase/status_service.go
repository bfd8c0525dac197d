package usecase

import (
	"time"

	"github.com/riskibarqy/fantasy-livefeed/internal/platform/resilience"
)

type RosterLeagueStatus struct {
	LeagueID string    `json:"league_id"`
	Platform string    `json:"platform"`
	Players  int       `json:"players"`
	LoadedAt time.Time `json:"loaded_at"`
	Stale    bool      `json:"stale"`
}

type IdentityStatus struct {
	Mappings            int   `json:"mappings"`
	DirectoryLoaded     bool  `json:"directory_loaded"`
	DirectoryAgeSeconds int64 `json:"directory_age_seconds"`
}

// PipelineStatus is the diagnostics snapshot behind GET /v1/status. UI
// layers derive "live updates paused" and "data may be stale" from it.
type PipelineStatus struct {
	Healthy         bool                 `json:"healthy"`
	UpdatesPaused   bool                 `json:"updates_paused"`
	DataMayBeStale  bool                 `json:"data_may_be_stale"`
	Governor        GovernorStatus       `json:"governor"`
	Scheduler       SchedulerStatus      `json:"scheduler"`
	ActiveGames     int                  `json:"active_games"`
	Events          EventStoreStats      `json:"events"`
	Rosters         []RosterLeagueStatus `json:"rosters"`
	Identity        IdentityStatus       `json:"identity"`
	ImpactListeners int                  `json:"impact_listeners"`
	GeneratedAt     time.Time            `json:"generated_at"`
}

type StatusService struct {
	governor    *RateGovernor
	scheduler   *PollingScheduler
	detector    *GameEventDetector
	resolver    *PlayerIdentityResolver
	rosters     *RosterCache
	store       *EventStore
	attribution *EventAttributionService
	now         func() time.Time
}

func NewStatusService(
	governor *RateGovernor,
	scheduler *PollingScheduler,
	detector *GameEventDetector,
	resolver *PlayerIdentityResolver,
	rosters *RosterCache,
	store *EventStore,
	attribution *EventAttributionService,
) *StatusService {
	return &StatusService{
		governor:    governor,
		scheduler:   scheduler,
		detector:    detector,
		resolver:    resolver,
		rosters:     rosters,
		store:       store,
		attribution: attribution,
		now:         time.Now,
	}
}

func (s *StatusService) Status() PipelineStatus {
	out := PipelineStatus{GeneratedAt: s.now().UTC()}

	if s.governor != nil {
		out.Governor = s.governor.Status()
	}
	if s.scheduler != nil {
		out.Scheduler = s.scheduler.Status()
	}
	if s.detector != nil {
		out.ActiveGames = s.detector.ActiveGames()
	}
	if s.store != nil {
		out.Events = s.store.Stats()
	}
	if s.attribution != nil {
		out.ImpactListeners = s.attribution.SubscriberCount()
	}
	if s.resolver != nil {
		out.Identity.Mappings = s.resolver.MappingCount()
		if age, ok := s.resolver.DirectoryAge(); ok {
			out.Identity.DirectoryLoaded = true
			out.Identity.DirectoryAgeSeconds = int64(age / time.Second)
		}
	}

	anyStale := false
	if s.rosters != nil {
		for _, league := range s.rosters.Leagues() {
			snap, _ := s.rosters.Snapshot(league.Platform, league.LeagueID)
			stale := s.rosters.IsStale(league.Platform, league.LeagueID)
			anyStale = anyStale || stale
			out.Rosters = append(out.Rosters, RosterLeagueStatus{
				LeagueID: league.LeagueID,
				Platform: string(league.Platform),
				Players:  len(snap.Roster.Players),
				LoadedAt: snap.LoadedAt,
				Stale:    stale,
			})
		}
	}

	out.UpdatesPaused = out.Scheduler.EmergencyStopped ||
		(s.governor != nil && out.Governor.Breaker.State != resilience.CircuitStateClosed) ||
		out.Governor.Quota.Exhausted
	out.DataMayBeStale = anyStale || out.Scheduler.LastError != ""
	out.Healthy = !out.UpdatesPaused && !out.DataMayBeStale
	return out
}
