// Package metrics holds the relay's Prometheus series and serves them on
// /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mediarelay"

// Registry is the process-wide registry. It is separate from the default
// registerer so tests can gather it without global collectors leaking in.
var Registry = prometheus.NewRegistry()

var (
	factory   = promauto.With(Registry)
	startTime = time.Now()
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Time since start in seconds",
	}, func() float64 { return time.Since(startTime).Seconds() })
}

func counter(name, help string) prometheus.Counter {
	return factory.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
}

func gauge(name, help string) prometheus.Gauge {
	return factory.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
}

var (
	UpdatesTotal    = counter("updates_total", "Total updates received")
	CommandsTotal   = counter("commands_total", "Start commands answered")
	IgnoredTotal    = counter("ignored_total", "Updates without a usable attachment")
	FetchFailures   = counter("fetch_failures_total", "Media fetches that failed")
	SubmitFailures  = counter("submit_failures_total", "Submissions that failed at transport level")
	ServiceReported = counter("service_reported_errors_total", "Submissions the service reported as failed")
	AnalysisTotal   = counter("analysis_total", "Recognized texts sent for analysis")
	RelaysTotal     = counter("relays_total", "Replies sent to chats")
	RelayFailures   = counter("relay_failures_total", "Replies that could not be delivered")
	WebhookRejected = counter("webhook_rejected_total", "Webhook requests rejected")
	QueueDropped    = counter("queue_dropped_total", "Updates dropped because the queue stayed full")
	InFlight        = gauge("in_flight_updates", "Updates currently being processed")
	QueueDepth      = gauge("queue_depth", "Updates waiting for a worker")

	FetchLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_latency_seconds",
		Help:      "Media fetch latency in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
	SubmitLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "submit_latency_seconds",
		Help:      "Service submission latency in seconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	mediaUpdates = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "media_updates_total",
		Help:      "Updates carrying a usable attachment",
	}, []string{"kind"})
)

// MediaCounter returns the per-kind counter of media updates.
func MediaCounter(kind string) prometheus.Counter {
	return mediaUpdates.WithLabelValues(kind)
}

// Since records the seconds elapsed since start into h.
func Since(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
