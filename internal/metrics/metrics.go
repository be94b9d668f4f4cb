package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solo",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of launches that reached a running state.",
		}, []string{"service"},
	)
	serviceStartFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solo",
			Subsystem: "service",
			Name:      "start_failures_total",
			Help:      "Number of launches that failed to spawn or failed readiness.",
		}, []string{"service"},
	)
	serviceStartTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solo",
			Subsystem: "service",
			Name:      "start_timeouts_total",
			Help:      "Number of launches that exhausted the readiness budget.",
		}, []string{"service"},
	)
	serviceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solo",
			Subsystem: "service",
			Name:      "stops_total",
			Help:      "Number of completed stops.",
		}, []string{"service"},
	)
	serviceKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solo",
			Subsystem: "service",
			Name:      "kills_total",
			Help:      "Number of forceful kills after the grace window.",
		}, []string{"service"},
	)
	serviceRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solo",
			Subsystem: "service",
			Name:      "restarts_total",
			Help:      "Number of restart cycles.",
		}, []string{"service"},
	)
	serviceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "solo",
			Subsystem: "service",
			Name:      "up",
			Help:      "Whether the managed service is currently running.",
		}, []string{"service"},
	)
	startDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "solo",
			Subsystem: "service",
			Name:      "start_duration_seconds",
			Help:      "Time from spawn until readiness resolved.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"},
	)
	serviceCPUPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "solo",
			Subsystem: "service",
			Name:      "cpu_percent",
			Help:      "CPU usage percentage of the managed service.",
		}, []string{"service"},
	)
	serviceMemoryPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "solo",
			Subsystem: "service",
			Name:      "memory_percent",
			Help:      "Memory usage percentage of the managed service.",
		}, []string{"service"},
	)
	serviceMemoryMB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "solo",
			Subsystem: "service",
			Name:      "memory_mb",
			Help:      "Resident memory of the managed service in MB.",
		}, []string{"service"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		serviceStarts, serviceStartFailures, serviceStartTimeouts,
		serviceStops, serviceKills, serviceRestarts,
		serviceUp, startDuration,
		serviceCPUPercent, serviceMemoryPercent, serviceMemoryMB,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(service string) {
	if regOK.Load() {
		serviceStarts.WithLabelValues(service).Inc()
	}
}
func IncStartFailure(service string) {
	if regOK.Load() {
		serviceStartFailures.WithLabelValues(service).Inc()
	}
}
func IncStartTimeout(service string) {
	if regOK.Load() {
		serviceStartTimeouts.WithLabelValues(service).Inc()
	}
}
func IncStop(service string) {
	if regOK.Load() {
		serviceStops.WithLabelValues(service).Inc()
	}
}
func IncKill(service string) {
	if regOK.Load() {
		serviceKills.WithLabelValues(service).Inc()
	}
}
func IncRestart(service string) {
	if regOK.Load() {
		serviceRestarts.WithLabelValues(service).Inc()
	}
}
func SetUp(service string, up bool) {
	if regOK.Load() {
		var v float64
		if up {
			v = 1
		}
		serviceUp.WithLabelValues(service).Set(v)
	}
}
func ObserveStartDuration(service string, seconds float64) {
	if regOK.Load() {
		startDuration.WithLabelValues(service).Observe(seconds)
	}
}
func SetUsage(service string, cpuPercent float64, memoryPercent float32, memoryMB float64) {
	if regOK.Load() {
		serviceCPUPercent.WithLabelValues(service).Set(cpuPercent)
		serviceMemoryPercent.WithLabelValues(service).Set(float64(memoryPercent))
		serviceMemoryMB.WithLabelValues(service).Set(memoryMB)
	}
}
