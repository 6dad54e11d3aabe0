package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ricirt/adpromo/internal/service"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	EntriesRegistered prometheus.Counter
	PublishFailures   prometheus.Counter
	MediaResolutions  *prometheus.CounterVec
	Promotions        *prometheus.CounterVec
	SocialPostLatency prometheus.Histogram
	PendingEntries    prometheus.Gauge
}

// New registers all instruments with the given registerer. A custom
// registry keeps tests isolated from the global default.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EntriesRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adpromo_entries_registered_total",
			Help: "Entries published to the backend and appended to the queue.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adpromo_publish_failures_total",
			Help: "Post creations rejected or failed at the backend.",
		}),
		MediaResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adpromo_media_resolutions_total",
			Help: "Thumbnail and video resolution outcomes.",
		}, []string{"result"}),
		Promotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adpromo_promotions_total",
			Help: "Promotion cycles by outcome.",
		}, []string{"result"}),
		SocialPostLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "adpromo_social_post_seconds",
			Help:    "Latency of social post calls.",
			Buckets: prometheus.DefBuckets,
		}),
		PendingEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adpromo_pending_entries",
			Help: "Unpromoted entries after the latest promotion cycle.",
		}),
	}

	reg.MustRegister(
		m.EntriesRegistered,
		m.PublishFailures,
		m.MediaResolutions,
		m.Promotions,
		m.SocialPostLatency,
		m.PendingEntries,
	)

	return m
}

// ServiceHooks returns the callbacks the service layer reports through.
func (m *Metrics) ServiceHooks() service.MetricHooks {
	return service.MetricHooks{
		OnRegistered:    m.EntriesRegistered.Inc,
		OnPublishFailed: m.PublishFailures.Inc,
		OnMedia: func(result string) {
			m.MediaResolutions.WithLabelValues(result).Inc()
		},
		OnPromotion: func(result string, latency time.Duration) {
			m.Promotions.WithLabelValues(result).Inc()
			if result != service.PromotionEmpty {
				m.SocialPostLatency.Observe(latency.Seconds())
			}
		},
		OnPending: func(n int) {
			m.PendingEntries.Set(float64(n))
		},
	}
}
