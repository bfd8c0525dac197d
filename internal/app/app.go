package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/riskibarqy/fantasy-livefeed/external/fantasyplatform"
	"github.com/riskibarqy/fantasy-livefeed/external/statsapi"
	"github.com/riskibarqy/fantasy-livefeed/internal/config"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/roster"
	"github.com/riskibarqy/fantasy-livefeed/internal/infrastructure/feed"
	"github.com/riskibarqy/fantasy-livefeed/internal/interfaces/httpapi"
	"github.com/riskibarqy/fantasy-livefeed/internal/observability"
	idgen "github.com/riskibarqy/fantasy-livefeed/internal/platform/id"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/resilience"
	"github.com/riskibarqy/fantasy-livefeed/internal/usecase"
	"github.com/robfig/cron/v3"
	"github.com/sourcegraph/conc"
)

// App owns the pipeline services and their background work.
type App struct {
	cfg     config.Config
	logger  *logging.Logger
	metrics *observability.Metrics
	storage *storage

	governor    *usecase.RateGovernor
	detector    *usecase.GameEventDetector
	resolver    *usecase.PlayerIdentityResolver
	rosters     *usecase.RosterCache
	attribution *usecase.EventAttributionService
	store       *usecase.EventStore
	scheduler   *usecase.PollingScheduler
	status      *usecase.StatusService
	stream      *httpapi.StreamHub
	cron        *cron.Cron
	handler     http.Handler

	mu      sync.Mutex
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc
}

var _ httpapi.OperatorControl = (*App)(nil)

func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger, metrics: metrics, storage: st}

	statsFeed := statsapi.NewClient(statsapi.ClientConfig{
		BaseURL: cfg.StatsAPIBaseURL,
		APIKey:  cfg.StatsAPIKey,
		Timeout: cfg.StatsAPITimeout,
		Logger:  logger.Named("statsapi"),
	})
	providers := []roster.Provider{
		fantasyplatform.NewSleeper(fantasyplatform.SleeperConfig{
			BaseURL: cfg.SleeperBaseURL,
			Timeout: cfg.PlatformTimeout,
			Logger:  logger.Named("sleeper"),
		}),
		fantasyplatform.NewESPN(fantasyplatform.ESPNConfig{
			BaseURL: cfg.ESPNBaseURL,
			S2:      cfg.ESPNS2,
			SWID:    cfg.ESPNSWID,
			Timeout: cfg.PlatformTimeout,
			Logger:  logger.Named("espn"),
		}),
		fantasyplatform.NewYahoo(fantasyplatform.YahooConfig{
			BaseURL:     cfg.YahooBaseURL,
			AccessToken: cfg.YahooAccessToken,
			Timeout:     cfg.PlatformTimeout,
			Logger:      logger.Named("yahoo"),
		}),
	}

	a.governor = usecase.NewRateGovernor(usecase.RateGovernorConfig{
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.GovernorFailureThreshold,
			OpenTimeout:      cfg.GovernorCooldown,
			HalfOpenMaxReq:   1,
		},
		QuotaCooldown:  cfg.GovernorQuotaCooldown,
		PerMinuteLimit: cfg.GovernorPerMinuteLimit,
		DailyQuota:     cfg.GovernorDailyQuota,
		QuotaWarnRatio: cfg.GovernorQuotaWarnRatio,
		QuotaHardRatio: cfg.GovernorQuotaHardRatio,
		Location:       cfg.GovernorQuotaLocation,
	}, st.kv, logger.Named("governor"), metrics)
	a.detector = usecase.NewGameEventDetector(st.kv, logger.Named("detector"), metrics)
	a.resolver = usecase.NewPlayerIdentityResolver(st.kv, logger.Named("identity"), metrics)
	a.rosters = usecase.NewRosterCache(providers, a.resolver, usecase.RosterCacheConfig{
		StaleAfter: cfg.RosterStaleAfter,
		Workers:    cfg.RosterLoadWorkers,
	}, logger.Named("rosters"), metrics)
	a.attribution = usecase.NewEventAttributionService(a.resolver, a.rosters, logger.Named("attribution"), metrics)
	a.store = usecase.NewEventStore(usecase.EventStoreConfig{
		TTL:      cfg.EventStoreTTL,
		Capacity: cfg.EventStoreCapacity,
	}, idgen.NewUUIDGenerator(), st.kv, logger.Named("events"), metrics)
	a.scheduler = usecase.NewPollingScheduler(statsFeed, a.governor, a.detector, a.resolver, a.attribution, usecase.PollingSchedulerConfig{
		DefaultInterval:   cfg.PollInterval,
		MinInterval:       cfg.PollMinInterval,
		MinSpacing:        cfg.PollMinSpacing,
		DirectoryRefresh:  cfg.PollDirectoryRefresh,
		AutoEmergencyStop: cfg.PollAutoEmergencyStop,
	}, logger.Named("scheduler"), metrics)
	a.status = usecase.NewStatusService(a.governor, a.scheduler, a.detector, a.resolver, a.rosters, a.store, a.attribution)
	a.stream = httpapi.NewStreamHub(cfg.CORSAllowedOrigins, logger.Named("stream"), metrics)

	// Delivery order: persist first, then the durable feed, then live clients.
	a.attribution.OnImpact("event_store", a.store.SaveBatch)
	if cfg.FeedRedisStreamEnabled {
		publisher := feed.NewRedisStreamPublisher(st.redis, cfg.FeedRedisStreamName, cfg.FeedRedisStreamMaxLen, logger.Named("feed"))
		a.attribution.OnImpact("redis_stream", publisher.Publish)
	}
	a.attribution.OnImpact("websocket", a.stream.Publish)

	a.cron, err = a.newCron()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var metricsHandler http.Handler
	if metrics != nil {
		metricsHandler = metrics.Handler()
	}
	handler := httpapi.NewHandler(a.status, a.store, a.rosters, a, logger.Named("httpapi"))
	a.handler = httpapi.NewRouter(handler, a.stream, metricsHandler, logger, cfg.CORSAllowedOrigins, cfg.OperatorToken)

	return a, nil
}

func (a *App) backgroundContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runCtx == nil {
		return context.Background()
	}
	return a.runCtx
}

func (a *App) Handler() http.Handler {
	return a.handler
}

// Start restores persisted state, loads rosters and begins polling. ctx only
// bounds the warm-up; background work runs until Stop.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return usecase.ErrAlreadyRunning
	}
	a.started = true
	a.runCtx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
	a.mu.Unlock()

	a.restoreState(ctx)

	if _, err := a.rosters.Load(ctx, a.cfg.Leagues, true); err != nil {
		a.logger.ErrorContext(ctx, "initial roster load failed", "error", err)
	}

	a.cron.Start()
	if err := a.scheduler.Start(a.runCtx, a.cfg.PollInterval); err != nil {
		return fmt.Errorf("start polling: %w", err)
	}

	a.logger.InfoContext(ctx, "pipeline started",
		"leagues", len(a.cfg.Leagues),
		"kv_backend", a.cfg.KVBackend,
		"poll_interval", a.scheduler.EffectiveInterval(a.cfg.PollInterval).String(),
	)
	return nil
}

// restoreState reloads every persisted service concurrently. A failed
// restore is logged and the service starts empty.
func (a *App) restoreState(ctx context.Context) {
	restorers := map[string]func(context.Context) error{
		"governor": a.governor.Restore,
		"detector": a.detector.Restore,
		"identity": a.resolver.Restore,
		"events":   a.store.Restore,
	}

	var wg conc.WaitGroup
	for name, restore := range restorers {
		wg.Go(func() {
			if err := restore(ctx); err != nil {
				a.logger.WarnContext(ctx, "state restore failed", "component", name, "error", err)
			}
		})
	}
	wg.Wait()
}

// Stop halts polling and scheduled jobs, then closes the stream hub and storage.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return a.storage.Close()
	}
	a.started = false
	cancel := a.cancel
	a.mu.Unlock()

	var errs []error
	if err := a.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop polling: %w", err))
	}

	cronDone := a.cron.Stop()
	select {
	case <-cronDone.Done():
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("stop scheduled jobs: %w", ctx.Err()))
	}

	cancel()
	a.stream.Close()
	if err := a.storage.Close(); err != nil {
		errs = append(errs, err)
	}

	a.logger.InfoContext(ctx, "pipeline stopped")
	return errors.Join(errs...)
}

func (a *App) PollNow(ctx context.Context) (usecase.PollResult, error) {
	return a.scheduler.PollOnce(context.WithoutCancel(ctx))
}

func (a *App) EmergencyStop(ctx context.Context, reason string) {
	a.scheduler.EmergencyStop(ctx, reason)
}

// Resume clears an emergency stop and restarts the polling loop.
func (a *App) Resume(ctx context.Context) error {
	a.mu.Lock()
	runCtx := a.runCtx
	started := a.started
	a.mu.Unlock()

	a.scheduler.ClearEmergencyStop(ctx)
	if !started {
		return nil
	}
	err := a.scheduler.Start(runCtx, a.cfg.PollInterval)
	if errors.Is(err, usecase.ErrAlreadyRunning) {
		return nil
	}
	return err
}

func (a *App) ReloadRosters(ctx context.Context) (usecase.RosterLoadResult, error) {
	return a.rosters.Load(context.WithoutCancel(ctx), a.cfg.Leagues, true)
}
