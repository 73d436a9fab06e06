package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry           *prometheus.Registry
	conversionsTotal   *prometheus.CounterVec
	conversionDuration *prometheus.HistogramVec
	activeJobs         prometheus.Gauge
	outputBytesTotal   *prometheus.CounterVec
	bytesSavedTotal    prometheus.Counter
	computeTimeMSTotal prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		conversionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelconvert_worker_conversions_total",
			Help: "Total conversion jobs by backend, formats and final status.",
		}, []string{"backend", "input_format", "target_format", "status"}),
		conversionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelconvert_worker_conversion_duration_seconds",
			Help:    "Total processing duration for each conversion job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_type", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelconvert_worker_active_jobs",
			Help: "Current number of conversions running in the worker.",
		}),
		outputBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelconvert_worker_output_bytes_total",
			Help: "Total bytes written by each backend.",
		}, []string{"backend"}),
		bytesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelconvert_usage_bytes_saved_total",
			Help: "Total bytes saved across all successful jobs.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelconvert_usage_compute_time_ms_total",
			Help: "Total compute time in milliseconds across successful jobs.",
		}),
	}

	registry.MustRegister(
		m.conversionsTotal,
		m.conversionDuration,
		m.activeJobs,
		m.outputBytesTotal,
		m.bytesSavedTotal,
		m.computeTimeMSTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
