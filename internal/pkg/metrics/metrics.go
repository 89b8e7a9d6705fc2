package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solvergate_settlements_total",
		Help: "Settlement attempts by outcome",
	}, []string{"outcome"})

	SettledVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solvergate_settled_volume_base_units",
		Help: "Sum of settled order amounts in base units (float, approximate)",
	})

	WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solvergate_withdrawals_total",
		Help: "Withdrawal attempts by outcome",
	}, []string{"outcome"})

	RescuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solvergate_rescues_total",
		Help: "Rescue attempts by outcome",
	}, []string{"outcome"})

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solvergate_http_requests_total",
		Help: "HTTP responses by route, method and status",
	}, []string{"route", "method", "status"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solvergate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	PolicyRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solvergate_policy_rejects_total",
		Help: "Total policy hook rejections",
	}, []string{"reason"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solvergate_events_published_total",
		Help: "Events delivered to sinks",
	}, []string{"kind"})

	AuditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solvergate_audit_dropped_total",
		Help: "Audit entries dropped because the writer queue was full",
	})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solvergate_ws_clients",
		Help: "Connected event feed clients",
	})
)
