package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "toystudio"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "operations_total",
			Help:      "Number of lifecycle operations by outcome.",
		}, []string{"op", "result"},
	)
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of lifecycle operations.",
			Buckets:   []float64{.05, .25, 1, 5, 15, 60, 300, 900},
		}, []string{"op"},
	)
	productStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "product",
			Name:      "starts_total",
			Help:      "Number of successful product launches.",
		}, []string{"product"},
	)
	productStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "product",
			Name:      "stops_total",
			Help:      "Number of product shutdowns.",
		}, []string{"product"},
	)
	runningProducts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "product",
			Name:      "running",
			Help:      "Products with a live process.",
		},
	)
	installedProducts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "product",
			Name:      "installed",
			Help:      "Products present in the installation registry.",
		},
	)
	productCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "product",
			Name:      "cpu_percent",
			Help:      "CPU usage of the product process.",
		}, []string{"product"},
	)
	productRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "product",
			Name:      "rss_bytes",
			Help:      "Resident memory of the product process.",
		}, []string{"product"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{operations, operationDuration, productStarts, productStops,
		runningProducts, installedProducts, productCPU, productRSS}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
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
func Handler() http.Handler { return promhttp.Handler() }

// Enabled reports whether Register has succeeded.
func Enabled() bool { return regOK.Load() }

// The helpers below no-op until Register has been called.

func ObserveOperation(op string, started time.Time, err error) {
	if !regOK.Load() {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	operations.WithLabelValues(op, result).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func IncStart(product string) {
	if regOK.Load() {
		productStarts.WithLabelValues(product).Inc()
	}
}

func IncStop(product string) {
	if regOK.Load() {
		productStops.WithLabelValues(product).Inc()
	}
}

func SetCounts(installed, running int) {
	if regOK.Load() {
		installedProducts.Set(float64(installed))
		runningProducts.Set(float64(running))
	}
}

func SetUsage(product string, cpuPercent float64, rssBytes uint64) {
	if regOK.Load() {
		productCPU.WithLabelValues(product).Set(cpuPercent)
		productRSS.WithLabelValues(product).Set(float64(rssBytes))
	}
}

func DeleteUsage(product string) {
	if regOK.Load() {
		productCPU.DeleteLabelValues(product)
		productRSS.DeleteLabelValues(product)
	}
}
