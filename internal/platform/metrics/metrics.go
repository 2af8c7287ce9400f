package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	HTTPRequests   *prometheus.CounterVec
	BackendCalls   *prometheus.CounterVec
	BackendLatency *prometheus.HistogramVec
	ChatMessages   *prometheus.CounterVec
	StaleResponses *prometheus.CounterVec
	Searches       *prometheus.CounterVec
	HistoryWrites  prometheus.Counter
	ActiveSessions prometheus.Gauge
	ActiveMapViews prometheus.Gauge
	StatIncrements *prometheus.CounterVec
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "caniparkhere",
				Name:      "http_requests_total",
				Help:      "HTTP requests served, by route and status class",
			}, []string{"route", "status"}),
			BackendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "caniparkhere",
				Name:      "backend_calls_total",
				Help:      "Calls to the parking backend, by endpoint and outcome",
			}, []string{"endpoint", "outcome"}),
			BackendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "caniparkhere",
				Name:      "backend_call_seconds",
				Help:      "Latency of parking backend calls",
				Buckets:   prometheus.DefBuckets,
			}, []string{"endpoint"}),
			ChatMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "caniparkhere",
				Name:      "chat_messages_total",
				Help:      "Chat messages appended, by kind",
			}, []string{"kind"}),
			StaleResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "caniparkhere",
				Name:      "stale_responses_total",
				Help:      "Backend responses discarded because a newer request was issued",
			}, []string{"component"}),
			Searches: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "caniparkhere",
				Name:      "map_searches_total",
				Help:      "Map searches, by outcome",
			}, []string{"outcome"}),
			HistoryWrites: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "caniparkhere",
				Name:      "parking_history_writes_total",
				Help:      "Parking history entries written",
			}),
			ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "caniparkhere",
				Name:      "chat_sessions_active",
				Help:      "Chat sessions currently held in memory",
			}),
			ActiveMapViews: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "caniparkhere",
				Name:      "map_views_active",
				Help:      "Map views currently held in memory",
			}),
			StatIncrements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "caniparkhere",
				Name:      "user_stat_increments_total",
				Help:      "User stat increments, by stat",
			}, []string{"stat"}),
		}
		prometheus.MustRegister(
			global.HTTPRequests,
			global.BackendCalls,
			global.BackendLatency,
			global.ChatMessages,
			global.StaleResponses,
			global.Searches,
			global.HistoryWrites,
			global.ActiveSessions,
			global.ActiveMapViews,
			global.StatIncrements,
		)
	})
	return global
}
