package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connect_http_requests_total",
			Help: "Total number of HTTP requests processed by the service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "connect_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "connect_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connect_ws_events_total",
			Help: "Total number of websocket events by type.",
		},
		[]string{"event"},
	)
	wsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "connect_ws_dropped_frames_total",
			Help: "Frames dropped because a client send buffer was full.",
		},
	)
	pushSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "connect_push_sent_total",
			Help: "Web-push notifications dispatched successfully.",
		},
	)
	pushErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "connect_push_errors_total",
			Help: "Web-push dispatch failures (swallowed).",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "connect_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		wsDroppedTotal,
		pushSentTotal,
		pushErrorsTotal,
		amqpPublishErrorsTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latencies per route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive()            { wsActiveConnections.Inc() }
func DecWSActive()            { wsActiveConnections.Dec() }
func IncWSEvent(event string) { wsEventsTotal.WithLabelValues(event).Inc() }
func IncWSDropped()           { wsDroppedTotal.Inc() }
func IncPushSent()            { pushSentTotal.Inc() }
func IncPushError()           { pushErrorsTotal.Inc() }
func IncAMQPPublishError()    { amqpPublishErrorsTotal.Inc() }
