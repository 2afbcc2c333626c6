// Package metrics records offline controller and storage outcomes in Prometheus.
package metrics

import (
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/offline"
	"github.com/prometheus/client_golang/prometheus"
)

// OfflineMetrics implements ports.OfflineMetrics.
type OfflineMetrics struct {
	fetchTotal       *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	cacheWriteFailed *prometheus.CounterVec
	storageFallbacks *prometheus.CounterVec
}

// NewOfflineMetrics creates the collectors and registers them with reg.
func NewOfflineMetrics(reg prometheus.Registerer) (*OfflineMetrics, error) {
	m := &OfflineMetrics{
		fetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "offline_fetch_total",
				Help: "Intercepted requests by strategy and the source that answered them",
			},
			[]string{"strategy", "source"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "offline_fetch_duration_seconds",
				Help: "Latency of intercepted requests in seconds",
			},
			[]string{"strategy"},
		),
		cacheWriteFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "offline_cache_write_failures_total",
				Help: "Best-effort cache writes that failed",
			},
			[]string{"strategy"},
		),
		storageFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunked_store_fallbacks_total",
				Help: "Chunked store operations served from the in-memory copy",
			},
			[]string{"op"},
		),
	}
	for _, c := range []prometheus.Collector{m.fetchTotal, m.fetchDuration, m.cacheWriteFailed, m.storageFallbacks} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *OfflineMetrics) ObserveFetch(strategy offline.Strategy, source string, d time.Duration) {
	m.fetchTotal.WithLabelValues(string(strategy), source).Inc()
	m.fetchDuration.WithLabelValues(string(strategy)).Observe(d.Seconds())
}

func (m *OfflineMetrics) CacheWriteFailed(strategy offline.Strategy) {
	m.cacheWriteFailed.WithLabelValues(string(strategy)).Inc()
}

func (m *OfflineMetrics) StorageFallback(op string) {
	m.storageFallbacks.WithLabelValues(op).Inc()
}
