package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedemptionsTotal tracks connect calls by outcome kind ("success", "state", "authorization", ...)
	RedemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keypanel_redemptions_total",
		Help: "Total number of key redemption requests by outcome",
	}, []string{"outcome"})

	// RedemptionDuration tracks end-to-end redemption latency
	RedemptionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keypanel_redemption_duration_seconds",
		Help:    "Histogram of redemption processing duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	// Activations counts pending -> active transitions
	Activations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keypanel_key_activations_total",
		Help: "Total number of keys activated on first redemption",
	})

	// DeviceBindings counts device ledger commits by kind ("new" or "returning")
	DeviceBindings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keypanel_device_bindings_total",
		Help: "Total number of device ledger commits",
	}, []string{"kind"})

	// SettingsCache tracks settings cache hits and misses per tier
	SettingsCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keypanel_settings_cache_operations_total",
		Help: "Total number of settings cache hits and misses",
	}, []string{"level", "result"})

	// RateLimited counts requests rejected by the per-IP limiter
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keypanel_rate_limited_total",
		Help: "Total number of requests rejected by rate limiting",
	})
)
