package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insurai/compliance-engine/internal/compliance"
)

const namespace = "insurai"

// StatisticsSource exposes live record counts for gauges
type StatisticsSource interface {
	Statistics() compliance.Statistics
}

// Collector manages Prometheus metrics for the compliance service
type Collector struct {
	registry *prometheus.Registry

	recordsSubmitted *prometheus.CounterVec
	statusUpdates    *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	emailsSent       *prometheus.CounterVec
	reportsGenerated *prometheus.CounterVec

	tasksExecuted *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a collector backed by its own registry.
// Record gauges are read from stats at scrape time.
func NewCollector(stats StatisticsSource) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	c := &Collector{registry: registry}

	c.recordsSubmitted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_submitted_total",
			Help:      "Total number of compliance records submitted",
		},
		[]string{"severity", "issue_type"},
	)
	c.statusUpdates = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_updates_total",
			Help:      "Total number of record status changes",
		},
		[]string{"status"},
	)
	c.notifications = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_generated_total",
			Help:      "Total number of notifications generated",
		},
		[]string{"urgency"},
	)
	c.emailsSent = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Total number of email delivery attempts",
		},
		[]string{"result"},
	)
	c.reportsGenerated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_generated_total",
			Help:      "Total number of compliance reports exported",
		},
		[]string{"format"},
	)
	c.tasksExecuted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_task_runs_total",
			Help:      "Total number of scheduled task executions",
		},
		[]string{"task", "result"},
	)
	c.taskDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduled_task_duration_seconds",
			Help:      "Scheduled task execution duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"task"},
	)
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Expose zero-valued series for every known label value
	for _, status := range compliance.Statuses {
		c.statusUpdates.WithLabelValues(string(status))
	}
	for _, severity := range compliance.Severities {
		c.notifications.WithLabelValues(string(severity))
	}

	if stats != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_pending",
			Help:      "Number of compliance records awaiting review",
		}, func() float64 { return float64(stats.Statistics().Pending) })
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_action_required",
			Help:      "Pending plus critical compliance records",
		}, func() float64 { return float64(stats.Statistics().ActionRequired) })
	}

	return c
}

// RecordSubmission counts a new compliance record
func (c *Collector) RecordSubmission(r compliance.ComplianceRecord) {
	c.recordsSubmitted.WithLabelValues(string(r.Severity), string(r.IssueType)).Inc()
}

// RecordStatusUpdate counts a status transition
func (c *Collector) RecordStatusUpdate(status compliance.Status) {
	c.statusUpdates.WithLabelValues(string(status)).Inc()
}

// RecordNotification counts a generated notification
func (c *Collector) RecordNotification(urgency compliance.Severity) {
	c.notifications.WithLabelValues(string(urgency)).Inc()
}

// RecordEmail counts an email delivery attempt
func (c *Collector) RecordEmail(result string) {
	c.emailsSent.WithLabelValues(result).Inc()
}

// RecordReport counts an exported report
func (c *Collector) RecordReport(format string) {
	c.reportsGenerated.WithLabelValues(format).Inc()
}

// RecordTask records a scheduled task execution
func (c *Collector) RecordTask(task string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.tasksExecuted.WithLabelValues(task, result).Inc()
	c.taskDuration.WithLabelValues(task).Observe(duration.Seconds())
}

// Middleware records request counts and latency per route
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		c.httpRequestsTotal.WithLabelValues(ctx.Request.Method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpRequestDuration.WithLabelValues(ctx.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
