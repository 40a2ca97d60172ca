package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsefeed_cache_hits_total",
		Help: "Cache hits per namespace",
	}, []string{"namespace"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsefeed_cache_misses_total",
		Help: "Cache misses per namespace",
	}, []string{"namespace"})

	CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pulsefeed_cache_entries",
		Help: "Live cache entries per namespace",
	}, []string{"namespace"})

	// 0 = closed, 1 = half-open, 2 = open
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pulsefeed_breaker_state",
		Help: "Circuit breaker state per service",
	}, []string{"service"})

	BreakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsefeed_breaker_rejections_total",
		Help: "Calls rejected while the breaker was open",
	}, []string{"service"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsefeed_stream_sessions",
		Help: "Active stream subscriber sessions",
	})

	ProviderFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsefeed_provider_fetch_failures_total",
		Help: "Provider fetch failures after retries",
	}, []string{"provider"})
)
