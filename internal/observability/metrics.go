package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "livefeed"

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records
// nothing, so services can be built without a registry in tests.
type Metrics struct {
	registry *prometheus.Registry

	upstreamCalls     *prometheus.CounterVec
	governorDenials   *prometheus.CounterVec
	breakerState      prometheus.Gauge
	quotaUsed         prometheus.Gauge
	pollDuration      prometheus.Histogram
	activeGames       prometheus.Gauge
	playsSeen         *prometheus.CounterVec
	eventsDetected    *prometheus.CounterVec
	impactsAttributed *prometheus.CounterVec
	subscriberErrors  *prometheus.CounterVec
	eventsStored      *prometheus.CounterVec
	storedEvents      prometheus.Gauge
	rosterLoads       *prometheus.CounterVec
	identityLookups   *prometheus.CounterVec
	streamClients     prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		upstreamCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Stats upstream calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		governorDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "governor",
			Name:      "denials_total",
			Help:      "Upstream calls denied by the rate governor, by reason.",
		}, []string{"reason"}),
		breakerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "governor",
			Name:      "breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),
		quotaUsed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "governor",
			Name:      "daily_quota_used",
			Help:      "Upstream calls consumed from today's quota.",
		}),
		pollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "poll_duration_seconds",
			Help:      "Wall time of one polling cycle.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		activeGames: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "active_games",
			Help:      "Live games seen in the last poll.",
		}),
		playsSeen: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "detector",
			Name:      "plays_total",
			Help:      "Plays examined by the detector, by result.",
		}, []string{"result"}),
		eventsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "detector",
			Name:      "events_total",
			Help:      "Scoring events emitted, by kind.",
		}, []string{"kind"}),
		impactsAttributed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "attribution",
			Name:      "impacts_total",
			Help:      "Fantasy impacts produced, by league.",
		}, []string{"league_id"}),
		subscriberErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "attribution",
			Name:      "subscriber_failures_total",
			Help:      "Impact subscriber failures, by kind (error|panic).",
		}, []string{"kind"}),
		eventsStored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "event_store",
			Name:      "writes_total",
			Help:      "Event store writes, by result (stored|duplicate|evicted).",
		}, []string{"result"}),
		storedEvents: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "event_store",
			Name:      "entries",
			Help:      "Entries currently held by the event store.",
		}),
		rosterLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "roster",
			Name:      "loads_total",
			Help:      "Roster loads by platform and outcome.",
		}, []string{"platform", "outcome"}),
		identityLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "identity",
			Name:      "lookups_total",
			Help:      "Player identity lookups by match type (exact|link|fuzzy|miss).",
		}, []string{"match"}),
		streamClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected websocket feed clients.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) UpstreamCall(operation, outcome string) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) GovernorDenied(reason string) {
	if m == nil {
		return
	}
	m.governorDenials.WithLabelValues(reason).Inc()
}

// SetBreakerState accepts "closed", "half_open" or "open".
func (m *Metrics) SetBreakerState(state string) {
	if m == nil {
		return
	}
	switch state {
	case "open":
		m.breakerState.Set(2)
	case "half_open":
		m.breakerState.Set(1)
	default:
		m.breakerState.Set(0)
	}
}

func (m *Metrics) SetQuotaUsed(n int) {
	if m == nil {
		return
	}
	m.quotaUsed.Set(float64(n))
}

func (m *Metrics) ObservePoll(seconds float64, activeGames int) {
	if m == nil {
		return
	}
	m.pollDuration.Observe(seconds)
	m.activeGames.Set(float64(activeGames))
}

func (m *Metrics) PlaysSeen(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.playsSeen.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) EventDetected(kind string) {
	if m == nil {
		return
	}
	m.eventsDetected.WithLabelValues(kind).Inc()
}

func (m *Metrics) ImpactAttributed(leagueID string) {
	if m == nil {
		return
	}
	m.impactsAttributed.WithLabelValues(leagueID).Inc()
}

func (m *Metrics) SubscriberFailed(kind string) {
	if m == nil {
		return
	}
	m.subscriberErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) EventStoreWrite(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsStored.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) SetStoredEvents(n int) {
	if m == nil {
		return
	}
	m.storedEvents.Set(float64(n))
}

func (m *Metrics) RosterLoad(platform, outcome string) {
	if m == nil {
		return
	}
	m.rosterLoads.WithLabelValues(platform, outcome).Inc()
}

func (m *Metrics) IdentityLookup(match string) {
	if m == nil {
		return
	}
	m.identityLookups.WithLabelValues(match).Inc()
}

func (m *Metrics) SetStreamClients(n int) {
	if m == nil {
		return
	}
	m.streamClients.Set(float64(n))
}
