// Package metrics exposes Prometheus collectors for the resolution pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the service metrics on its own registry. All methods are
// safe on a nil Collector, which records nothing.
type Collector struct {
	registry *prometheus.Registry

	resolutions      *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	checksTotal      *prometheus.CounterVec
	historyFailures  *prometheus.CounterVec
	votesTotal       prometheus.Counter
	eventsPublished  *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	subscribers      prometheus.Gauge
}

// NewCollector creates a Collector with Go runtime and process metrics registered.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcwatch_resolutions_total",
				Help: "Resolutions by edition and outcome (fresh, stale, error code)",
			},
			[]string{"edition", "outcome"},
		),

		upstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcwatch_upstream_request_duration_seconds",
				Help:    "Duration of upstream status requests in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"edition", "outcome"},
		),

		checksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcwatch_checks_total",
				Help: "Checks appended to the history by source",
			},
			[]string{"source"},
		),

		historyFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcwatch_history_failures_total",
				Help: "Checks that could not be recorded after a successful resolution",
			},
			[]string{"code"},
		),

		votesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mcwatch_votes_total",
				Help: "Votes appended",
			},
		),

		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcwatch_events_delivered_total",
				Help: "Events handed to subscriber buffers",
			},
			[]string{"event"},
		),

		eventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcwatch_events_dropped_total",
				Help: "Events dropped because a subscriber buffer was full",
			},
			[]string{"event"},
		),

		subscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcwatch_event_subscribers",
				Help: "Open event stream subscriptions",
			},
		),
	}
}

// Handler returns the HTTP handler that exposes the registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordResolution counts one finished resolution.
func (c *Collector) RecordResolution(edition, outcome string) {
	if c == nil {
		return
	}
	c.resolutions.WithLabelValues(edition, outcome).Inc()
}

// ObserveUpstream records the duration of an upstream request.
func (c *Collector) ObserveUpstream(edition, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.upstreamDuration.WithLabelValues(edition, outcome).Observe(d.Seconds())
}

// RecordCheck counts an appended check.
func (c *Collector) RecordCheck(source string) {
	if c == nil {
		return
	}
	c.checksTotal.WithLabelValues(source).Inc()
}

// RecordHistoryFailure counts a check that could not be recorded.
func (c *Collector) RecordHistoryFailure(code string) {
	if c == nil {
		return
	}
	c.historyFailures.WithLabelValues(code).Inc()
}

// RecordVote counts an appended vote.
func (c *Collector) RecordVote() {
	if c == nil {
		return
	}
	c.votesTotal.Inc()
}

// RecordPublish counts the outcome of one publish.
func (c *Collector) RecordPublish(event string, delivered, dropped int) {
	if c == nil {
		return
	}
	c.eventsPublished.WithLabelValues(event).Add(float64(delivered))
	c.eventsDropped.WithLabelValues(event).Add(float64(dropped))
}

// SubscriberAdded increments the open subscriptions gauge.
func (c *Collector) SubscriberAdded() {
	if c == nil {
		return
	}
	c.subscribers.Inc()
}

// SubscriberRemoved decrements the open subscriptions gauge.
func (c *Collector) SubscriberRemoved() {
	if c == nil {
		return
	}
	c.subscribers.Dec()
}
