package sbmark

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "s3bench"

// Metrics holds the run's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	buckets        prometheus.Gauge
	initialObjects prometheus.Gauge
	putObjectSize  prometheus.Gauge

	seedObjectsCreated prometheus.Counter
	clientErrors       *prometheus.CounterVec
	serverErrors       *prometheus.CounterVec
	criticalErrors     *prometheus.CounterVec
	iterations         prometheus.Counter
	droppedIterations  prometheus.Counter
	checks             *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		buckets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "buckets",
			Help:      "Number of buckets the run targets.",
		}),
		initialObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "initial_objects",
			Help:      "Size of the object pool at the start of the run.",
		}),
		putObjectSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "put_object_size",
			Help:      "Payload size of PUT requests in bytes.",
		}),
		seedObjectsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "seed_objects_created",
			Help:      "Objects uploaded while seeding.",
		}),
		clientErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_client_errors",
			Help:      "Responses with status 407-499.",
		}, []string{"status"}),
		serverErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_server_errors",
			Help:      "Responses with status 500-599.",
		}, []string{"status"}),
		criticalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_critical_errors",
			Help:      "Responses with status 400-406.",
		}, []string{"status"}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "iterations",
			Help:      "Completed iterations.",
		}),
		droppedIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_iterations",
			Help:      "Iterations not started because all VUs were busy.",
		}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "checks",
			Help:      "Status checks by result.",
		}, []string{"result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_req_duration_seconds",
			Help:      "Time to last byte of object requests.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"operation", "class"}),
	}
	m.registry.MustRegister(
		m.buckets,
		m.initialObjects,
		m.putObjectSize,
		m.seedObjectsCreated,
		m.clientErrors,
		m.serverErrors,
		m.criticalErrors,
		m.iterations,
		m.droppedIterations,
		m.checks,
		m.requestDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetRunInfo publishes the setup gauges.
func (m *Metrics) SetRunInfo(buckets int, initialObjects int, putObjectSize uint64) {
	if m == nil {
		return
	}
	m.buckets.Set(float64(buckets))
	m.initialObjects.Set(float64(initialObjects))
	m.putObjectSize.Set(float64(putObjectSize))
}

func (m *Metrics) SeedObjectCreated() {
	if m == nil {
		return
	}
	m.seedObjectsCreated.Inc()
}

func (m *Metrics) IterationDropped() {
	if m == nil {
		return
	}
	m.droppedIterations.Inc()
}

// Observe records one finished iteration.
func (m *Metrics) Observe(o Outcome) {
	if m == nil {
		return
	}
	m.iterations.Inc()

	status := strconv.Itoa(o.Status)
	switch o.Class {
	case ClientError:
		m.clientErrors.WithLabelValues(status).Inc()
	case ServerError:
		m.serverErrors.WithLabelValues(status).Inc()
	case CriticalError:
		m.criticalErrors.WithLabelValues(status).Inc()
	}

	if o.Check {
		m.checks.WithLabelValues("pass").Inc()
	} else {
		m.checks.WithLabelValues("fail").Inc()
	}

	m.requestDuration.WithLabelValues(string(o.Operation), o.Class.String()).Observe(o.Latency.LastByte.Seconds())
}
