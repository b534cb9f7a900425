// Package metrics exposes posting, queue and API counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes.
const (
	RunPosted = "posted"
	RunEmpty  = "empty"
	RunFailed = "failed"
)

type Metrics struct {
	reg *prometheus.Registry

	// Posting
	PostsTotal   *prometheus.CounterVec
	PostDuration *prometheus.HistogramVec
	RunsTotal    *prometheus.CounterVec

	// Queue monitor
	QueueVideos *prometheus.GaugeVec

	// HTTP API
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New builds the collectors on a private registry together with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		PostsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "publisher_posts_total",
			Help: "Platform post attempts by result",
		}, []string{"concept", "platform", "status"}),

		PostDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "publisher_post_duration_seconds",
			Help:    "Duration of one platform upload",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"platform"}),

		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "publisher_runs_total",
			Help: "Orchestrator runs by outcome",
		}, []string{"concept", "outcome"}),

		QueueVideos: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "publisher_queue_videos",
			Help: "Videos per concept folder",
		}, []string{"concept", "folder"}),

		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "publisher_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "publisher_http_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.PostsTotal, m.PostDuration, m.RunsTotal, m.QueueVideos,
		m.HTTPRequestTotal, m.HTTPRequestDuration,
	)
	return m
}

// Register adds an extra collector, returning the existing one if it is already registered.
func (m *Metrics) Register(c prometheus.Collector) prometheus.Collector {
	if err := m.reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
	}
	return c
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObservePost(concept, platform string, success bool, took time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.PostsTotal.WithLabelValues(concept, platform, status).Inc()
	m.PostDuration.WithLabelValues(platform).Observe(took.Seconds())
}

func (m *Metrics) ObserveRun(concept, outcome string) {
	m.RunsTotal.WithLabelValues(concept, outcome).Inc()
}

func (m *Metrics) SetQueue(concept, folder string, n int) {
	m.QueueVideos.WithLabelValues(concept, folder).Set(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	m.HTTPRequestTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
