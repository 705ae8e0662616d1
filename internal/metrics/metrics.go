// Package metrics exposes the daemon's Prometheus instrumentation:
// ingestion data quality, window lifecycle, selector performance, and
// catalog freshness.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	samplesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skylock_samples_dropped_total",
			Help: "Obstruction samples dropped for arriving before the open window.",
		},
	)

	windowCloses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skylock_window_closes_total",
			Help: "Timeslot closes by cause.",
		},
		[]string{"cause"}, // reset, timeout
	)

	propagationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skylock_propagation_failures_total",
			Help: "Per-satellite propagation failures absorbed during candidate filtering.",
		},
	)

	estimates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skylock_estimates_total",
			Help: "Serving estimates emitted by outcome.",
		},
		[]string{"outcome"}, // resolved, unresolved
	)

	selectorDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skylock_selector_duration_seconds",
			Help:    "Wall time to resolve one closed timeslot.",
			Buckets: prometheus.DefBuckets,
		},
	)

	catalogSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skylock_catalog_satellites",
			Help: "Satellites in the loaded catalog snapshot.",
		},
	)

	catalogAge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skylock_catalog_age_seconds",
			Help: "Seconds since the catalog snapshot was loaded.",
		},
	)

	dishPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skylock_dish_polls_total",
			Help: "Terminal polls by result.",
		},
		[]string{"result"}, // ok, error
	)

	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skylock_ws_clients",
			Help: "Connected websocket clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(samplesDropped)
	prometheus.MustRegister(windowCloses)
	prometheus.MustRegister(propagationFailures)
	prometheus.MustRegister(estimates)
	prometheus.MustRegister(selectorDuration)
	prometheus.MustRegister(catalogSize)
	prometheus.MustRegister(catalogAge)
	prometheus.MustRegister(dishPolls)
	prometheus.MustRegister(wsClients)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func SampleDropped()            { samplesDropped.Inc() }
func WindowClosed(cause string) { windowCloses.WithLabelValues(cause).Inc() }
func PropagationFailed()        { propagationFailures.Inc() }

func EstimateEmitted(resolved bool) {
	if resolved {
		estimates.WithLabelValues("resolved").Inc()
	} else {
		estimates.WithLabelValues("unresolved").Inc()
	}
}

func ObserveSelector(d time.Duration) { selectorDuration.Observe(d.Seconds()) }

func SetCatalog(size int, loadedAt time.Time) {
	catalogSize.Set(float64(size))
	catalogAge.Set(time.Since(loadedAt).Seconds())
}

func DishPoll(err error) {
	if err != nil {
		dishPolls.WithLabelValues("error").Inc()
	} else {
		dishPolls.WithLabelValues("ok").Inc()
	}
}

func SetWSClients(n int) { wsClients.Set(float64(n)) }
