package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bustrack/internal/models"
)

type Collector struct {
	reg *prometheus.Registry

	LocationsAccepted *prometheus.CounterVec // source: driver|admin
	LocationsRejected *prometheus.CounterVec // code: forbidden|rate_limited|...
	SubscribersDrop   prometheus.Counter
	Connections       *prometheus.GaugeVec // role

	RoutesResolved  *prometheus.CounterVec // fallback: true|false
	RouteDuration   prometheus.Histogram
	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	HistoryEnqueued prometheus.Counter
	HistoryStored   prometheus.Counter
	HistoryPruned   prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		LocationsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bustrack_locations_accepted_total",
			Help: "Location updates persisted and broadcast.",
		}, []string{"source"}),
		LocationsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bustrack_locations_rejected_total",
			Help: "Location updates refused, by error code.",
		}, []string{"code"}),
		SubscribersDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustrack_subscribers_dropped_total",
			Help: "Room members removed after a failed send.",
		}),
		Connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bustrack_websocket_connections",
			Help: "Open websocket connections by role.",
		}, []string{"role"}),
		RoutesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bustrack_routes_resolved_total",
			Help: "Routes resolved, split by whether the straight-line fallback was used.",
		}, []string{"fallback"}),
		RouteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bustrack_route_resolve_duration_seconds",
			Help:    "Time spent resolving a route including fallback.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustrack_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustrack_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bustrack_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		HistoryEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustrack_history_enqueued_total",
			Help: "Location records appended to the history stream.",
		}),
		HistoryStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustrack_history_stored_total",
			Help: "Location records written to the history table.",
		}),
		HistoryPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustrack_history_pruned_total",
			Help: "History rows deleted by retention.",
		}),
	}

	reg.MustRegister(
		c.LocationsAccepted, c.LocationsRejected, c.SubscribersDrop, c.Connections,
		c.RoutesResolved, c.RouteDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.HistoryEnqueued, c.HistoryStored, c.HistoryPruned,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Live location channel.

func (c *Collector) LocationAccepted(source string)         { c.LocationsAccepted.WithLabelValues(source).Inc() }
func (c *Collector) LocationRejected(code string)           { c.LocationsRejected.WithLabelValues(code).Inc() }
func (c *Collector) SubscribersDropped(n int)               { c.SubscribersDrop.Add(float64(n)) }
func (c *Collector) ConnectionOpened(role models.RiderRole) { c.Connections.WithLabelValues(string(role)).Inc() }
func (c *Collector) ConnectionClosed(role models.RiderRole) { c.Connections.WithLabelValues(string(role)).Dec() }

// Route resolver.

func (c *Collector) RouteResolved(fallback bool, elapsed time.Duration) {
	c.RoutesResolved.WithLabelValues(strconv.FormatBool(fallback)).Inc()
	c.RouteDuration.Observe(elapsed.Seconds())
}

// NATS publisher.

func (c *Collector) NATSPublishedInc()  { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }
func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

// Location history pipeline.

func (c *Collector) HistoryEnqueuedInc()      { c.HistoryEnqueued.Inc() }
func (c *Collector) HistoryStoredInc()        { c.HistoryStored.Inc() }
func (c *Collector) HistoryPrunedAdd(n int64) { c.HistoryPruned.Add(float64(n)) }
