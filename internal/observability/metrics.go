package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequestLatency records backend REST latency by method, route and status class.
	APIRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bundlebooth_api_request_latency_seconds",
		Help:    "Backend REST request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// APIErrors counts failed backend REST calls by route and error code.
	APIErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundlebooth_api_errors_total",
		Help: "Total number of failed backend REST calls",
	}, []string{"route", "code"})

	// PollTicks counts applied poll ticks by widget phase.
	PollTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundlebooth_poll_ticks_total",
		Help: "Total number of inbox poll ticks by widget phase",
	}, []string{"phase"})

	// PollErrors counts swallowed poll failures by operation.
	PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundlebooth_poll_errors_total",
		Help: "Total number of failed background polls",
	}, []string{"operation"})

	// UnreadMessages is the unread count from the most recently applied poll.
	UnreadMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bundlebooth_unread_messages",
		Help: "Unread message count from the last applied conversation list",
	})

	// VotesSent counts vote requests by target kind and effective vote.
	VotesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundlebooth_votes_sent_total",
		Help: "Total number of vote requests sent",
	}, []string{"target", "vote"})

	// BusEvents counts page events by name and transport.
	BusEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundlebooth_bus_events_total",
		Help: "Total page events published",
	}, []string{"name", "transport"})

	// ActiveWebSockets is the number of connected syncd WebSocket clients.
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bundlebooth_active_websockets",
		Help: "Number of connected WebSocket clients",
	})

	// WebSocketDrops counts messages dropped for slow or closed clients.
	WebSocketDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundlebooth_websocket_drops_total",
		Help: "Total WebSocket messages dropped by reason",
	}, []string{"reason"})

	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundlebooth_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})
)

// TrackAPICall returns a function that records latency for the call when invoked.
func TrackAPICall(method, route string) func(status int) {
	start := time.Now()
	return func(status int) {
		APIRequestLatency.WithLabelValues(method, route, statusClass(status)).Observe(time.Since(start).Seconds())
	}
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
