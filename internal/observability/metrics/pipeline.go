package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PipelineMetrics struct {
	registry *prometheus.Registry
	service  string

	runTotal     *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	runsInFlight prometheus.Gauge
	pollTimeouts prometheus.Counter
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	runTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docuflow",
			Subsystem: "pipeline",
			Name:      "run_total",
			Help:      "Total pipeline runs by outcome code.",
		},
		[]string{"service", "code"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docuflow",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds by outcome code.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "code"},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docuflow",
			Subsystem: "pipeline",
			Name:      "runs_in_flight",
			Help:      "Number of in-flight pipeline runs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	pollTimeouts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docuflow",
			Subsystem: "pipeline",
			Name:      "poll_timeouts_total",
			Help:      "Remote jobs abandoned after the polling deadline.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(runTotal, runDuration, runsInFlight, pollTimeouts)

	return &PipelineMetrics{
		registry:     registry,
		service:      service,
		runTotal:     runTotal,
		runDuration:  runDuration,
		runsInFlight: runsInFlight,
		pollTimeouts: pollTimeouts,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) RunStarted() {
	m.runsInFlight.Inc()
}

func (m *PipelineMetrics) RunFinished(code string, duration time.Duration) {
	m.runsInFlight.Dec()
	m.runTotal.WithLabelValues(m.service, code).Inc()
	m.runDuration.WithLabelValues(m.service, code).Observe(duration.Seconds())
}

func (m *PipelineMetrics) PollTimedOut() {
	m.pollTimeouts.Inc()
}
