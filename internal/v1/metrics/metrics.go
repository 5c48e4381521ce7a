package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the huddle realtime platform.
// Declared centrally so the gateway and both engines share one registry
// and naming scheme.
//
// Naming convention: namespace_subsystem_name
// - namespace: huddle (application-level grouping)
// - subsystem: session, room, signal, store, cache, gateway (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, subscribers)
// - Counter: Cumulative events (events processed, drops, errors)
// - Histogram: Latency distributions (handler and store op time)

var (
	// ActiveSessions tracks the current number of connected duplex sessions (Gauge - current state)
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "huddle",
		Subsystem: "session",
		Name:      "connections_active",
		Help:      "Current number of active duplex sessions",
	})

	// ActiveRooms tracks the current number of rooms with at least one subscriber (Gauge - current state)
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "huddle",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of rooms with live subscribers",
	})

	// RoomSubscribers tracks the number of subscribed sessions per room (GaugeVec with room_id label)
	RoomSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "huddle",
		Subsystem: "room",
		Name:      "subscribers_count",
		Help:      "Number of subscribed sessions in each room",
	}, []string{"room_id"})

	// Events tracks the total number of duplex events processed (CounterVec - cumulative)
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Subsystem: "session",
		Name:      "events_total",
		Help:      "Total duplex events processed",
	}, []string{"event", "status"})

	// EventProcessingDuration tracks the time spent handling duplex events (HistogramVec - latency distribution)
	EventProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "huddle",
		Subsystem: "session",
		Name:      "event_processing_seconds",
		Help:      "Time spent processing duplex events",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event"})

	// FanoutDrops counts messages dropped because a subscriber's send buffer was full (CounterVec - cumulative)
	FanoutDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Subsystem: "session",
		Name:      "fanout_drops_total",
		Help:      "Messages dropped due to full subscriber buffers",
	}, []string{"event"})

	// SignalsRelayed counts WebRTC signals relayed between peers (CounterVec - cumulative)
	SignalsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Subsystem: "signal",
		Name:      "relayed_total",
		Help:      "Total WebRTC signals relayed",
	}, []string{"kind", "status"})

	// StoreOpDuration tracks durable store operation latency (HistogramVec - latency distribution)
	StoreOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "huddle",
		Subsystem: "store",
		Name:      "op_duration_seconds",
		Help:      "Durable store operation latency",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"collection", "op"})

	// StoreRetries counts transient store errors that triggered a retry (CounterVec - cumulative)
	StoreRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Subsystem: "store",
		Name:      "retries_total",
		Help:      "Store operations retried after transient errors",
	}, []string{"op"})

	// CacheHits counts room cache hits (CounterVec - cumulative)
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Room cache hits",
	}, []string{"cache"})

	// CacheMisses counts room cache misses (CounterVec - cumulative)
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Room cache misses",
	}, []string{"cache"})

	// GatewayRequests counts proxied requests per backend and status class (CounterVec - cumulative)
	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Requests proxied per backend",
	}, []string{"backend", "status"})

	// GatewayBackendErrors counts proxy failures per backend (CounterVec - cumulative)
	GatewayBackendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Subsystem: "gateway",
		Name:      "backend_errors_total",
		Help:      "Proxy failures per backend",
	}, []string{"backend"})

	// GatewayDuplexActive tracks currently bridged duplex connections (Gauge - current state)
	GatewayDuplexActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "huddle",
		Subsystem: "gateway",
		Name:      "duplex_active",
		Help:      "Currently bridged duplex connections",
	})

	// CircuitBreakerState reports breaker state per dependency: 0=closed, 1=half-open, 2=open (GaugeVec)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "huddle",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Circuit breaker state: 0=closed 1=half-open 2=open",
	}, []string{"name"})

	// CircuitBreakerFailures counts operations rejected or failed through a breaker (CounterVec - cumulative)
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Subsystem: "breaker",
		Name:      "failures_total",
		Help:      "Operations failed or rejected by a circuit breaker",
	}, []string{"name"})

	// RateLimitRequests counts requests evaluated by the rate limiter (CounterVec - cumulative)
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Subsystem: "ratelimit",
		Name:      "requests_total",
		Help:      "Requests evaluated by the rate limiter",
	}, []string{"endpoint"})

	// RateLimitExceeded counts requests rejected by the rate limiter (CounterVec - cumulative)
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Requests rejected by the rate limiter",
	}, []string{"endpoint", "limit_type"})
)

func IncConnection() {
	ActiveSessions.Inc()
}

func DecConnection() {
	ActiveSessions.Dec()
}
