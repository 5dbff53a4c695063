// Package metrics holds the Prometheus collectors for the A2A client paths:
// discovery, send, and notification processing, plus webhook HTTP metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	alDiscoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentlink_discoveries_total",
		Help: "Total agent card discoveries by outcome.",
	}, []string{"outcome"})

	alSendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentlink_sends_total",
		Help: "Total message sends by outcome.",
	}, []string{"outcome"})

	alNotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentlink_notifications_total",
		Help: "Total inbound task notifications by processing result.",
	}, []string{"result"})

	alPendingTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentlink_pending_tasks",
		Help: "Number of tasks awaiting a push notification.",
	})

	alWebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentlink_webhook_requests_total",
		Help: "Total webhook HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	alWebhookRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentlink_webhook_request_duration_seconds",
		Help:    "Webhook request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	alAgentProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentlink_agent_probes_total",
		Help: "Total agent availability probes by result.",
	}, []string{"result"})
)

// RecordDiscovery counts one card discovery attempt.
func RecordDiscovery(success bool) {
	alDiscoveriesTotal.WithLabelValues(outcome(success)).Inc()
}

// RecordSend counts one message send attempt.
func RecordSend(success bool) {
	alSendsTotal.WithLabelValues(outcome(success)).Inc()
}

// RecordNotification counts one processed notification by result.
func RecordNotification(result string) {
	alNotificationsTotal.WithLabelValues(result).Inc()
}

// SetPendingTasks publishes the current pending-registration count.
func SetPendingTasks(n int) {
	alPendingTasks.Set(float64(n))
}

// RecordProbe counts one agent availability probe.
func RecordProbe(success bool) {
	alAgentProbesTotal.WithLabelValues(outcome(success)).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// GinMiddleware returns a Gin middleware that records per-request metrics
// for the webhook receiver.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		alWebhookRequestsTotal.WithLabelValues(method, path, status).Inc()
		alWebhookRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// Handler returns a Gin handler that serves the Prometheus metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
