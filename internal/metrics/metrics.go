package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peerchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Session metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peerchat_connections_active",
			Help: "Currently connected websocket clients",
		},
	)

	RosterBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peerchat_roster_broadcasts_total",
			Help: "Total presence roster broadcasts",
		},
	)

	// Delivery metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerchat_messages_sent_total",
			Help: "Total messages accepted for delivery",
		},
		[]string{"outcome"}, // "pushed" or "queued"
	)

	MessagesDrained = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "peerchat_messages_drained_total",
			Help: "Total queued messages drained to receivers",
		},
	)

	// Signaling metrics
	SignalsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerchat_signals_relayed_total",
			Help: "Total WebRTC signals relayed",
		},
		[]string{"outcome"}, // "delivered" or "dropped"
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerchat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
