package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/weather-desk/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate by route and status class.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP latency per request. Watch for: p95 above the upstream timeout.
	HTTPRequestDuration *prometheus.HistogramVec

	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeatherMap calls by endpoint (weather, forecast) and status.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Upstream latency. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Upstream failures by stable category (see client.CategorizeError).
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Cache lookups by kind (current, forecast).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheErrorsTotal *prometheus.CounterVec

	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Controller actions by action (search, location, toggle, history) and outcome.
	WeatherSearchesTotal *prometheus.CounterVec

	// Per-city searches (allow-list; others go to "other").
	WeatherSearchesByCityTotal *prometheus.CounterVec

	// Fetch sequences whose result was dropped because a newer one started.
	StaleResultsDiscardedTotal prometheus.Counter

	HistoryWritesTotal *prometheus.CounterVec

	// IP location lookups by outcome (resolved, empty, error).
	LocationLookupsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: a client hammering the action endpoints.
	RateLimitDeniedTotal prometheus.Counter

	CircuitBreakerTransitionsTotal *prometheus.CounterVec
	CircuitBreakerState            *prometheus.GaugeVec

	// Login attempts by outcome (success, invalid, rejected, error).
	LoginAttemptsTotal *prometheus.CounterVec

	// Contact store operations by operation and status.
	ContactOperationsTotal *prometheus.CounterVec

	trackedCitiesMu sync.RWMutex
	trackedCities   map[string]struct{}

	trafficGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "OpenWeatherMap failures by category",
		},
		[]string{"category"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of weather cache hits",
		},
		[]string{"kind"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of weather cache misses",
		},
		[]string{"kind"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation",
		},
		[]string{"operation"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Number of cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Number of cache warming runs with at least one failed city",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of cache warming runs",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30},
		},
	)
	WeatherSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherSearchesTotal",
			Help: "Weather actions by action and outcome",
		},
		[]string{"action", "outcome"},
	)
	WeatherSearchesByCityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherSearchesByCityTotal",
			Help: "Weather searches by city (allow-list; others use city=other)",
		},
		[]string{"city"},
	)
	StaleResultsDiscardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staleResultsDiscardedTotal",
			Help: "Fetch results dropped because a newer search had started",
		},
	)
	HistoryWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "historyWritesTotal",
			Help: "Search history file writes by status",
		},
		[]string{"status"},
	)
	LocationLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationLookupsTotal",
			Help: "IP location lookups by outcome",
		},
		[]string{"outcome"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0=closed, 1=half_open, 2=open)",
		},
		[]string{"component"},
	)
	LoginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loginAttemptsTotal",
			Help: "Credential checks by outcome",
		},
		[]string{"outcome"},
	)
	ContactOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactOperationsTotal",
			Help: "Contact store operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIErrorsTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		WeatherSearchesTotal, WeatherSearchesByCityTotal, StaleResultsDiscardedTotal,
		HistoryWritesTotal, LocationLookupsTotal, RateLimitDeniedTotal,
		CircuitBreakerTransitionsTotal, CircuitBreakerState,
		LoginAttemptsTotal, ContactOperationsTotal,
	)
}

// RegisterTrafficGauges registers sliding-window gauges over the traffic tracker.
// Call from main after config load; window matches the health error-rate window.
func RegisterTrafficGauges(window time.Duration) {
	trafficGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "lookupsInWindow",
					Help: "Weather lookups (success + error + denied) in the sliding window",
				},
				func() float64 { return float64(traffic.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in the sliding window",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// SetTrackedCities sets the allow-list for per-city metrics. Other cities count as "other".
func SetTrackedCities(cities []string) {
	trackedCitiesMu.Lock()
	defer trackedCitiesMu.Unlock()
	trackedCities = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		trackedCities[normalizeCityForMetrics(c)] = struct{}{}
	}
}

// RecordSearch records a controller action outcome and, for searches, the city.
func RecordSearch(action, outcome, city string) {
	WeatherSearchesTotal.WithLabelValues(action, outcome).Inc()
	if city == "" {
		return
	}
	WeatherSearchesByCityTotal.WithLabelValues(MetricCityLabel(city)).Inc()
}

// MetricCityLabel returns the normalized city if tracked, otherwise "other".
func MetricCityLabel(city string) string {
	c := normalizeCityForMetrics(city)
	trackedCitiesMu.RLock()
	_, ok := trackedCities[c]
	trackedCitiesMu.RUnlock()
	if ok {
		return c
	}
	return "other"
}

// CircuitBreakerStateValue maps a state name to the gauge value.
func CircuitBreakerStateValue(state string) float64 {
	switch state {
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(CircuitBreakerStateValue(to))
}

func normalizeCityForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
