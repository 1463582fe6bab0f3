// Package metrics exposes request-level Prometheus metrics on a dedicated
// registry with its own exposition server, kept off the application port.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"

	"github.com/peelkit/peel/types"
)

type Metrics struct {
	config   *types.MetricsConfig
	logger   types.Logger
	registry *prometheus.Registry
	server   *http.Server
	running  int32

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	PanicsTotal      prometheus.Counter
}

func New(cfg *types.MetricsConfig, logger types.Logger) (*Metrics, error) {
	if cfg == nil {
		cfg = &types.MetricsConfig{Host: "localhost", Port: 9090, Path: "/metrics"}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		config:   cfg,
		logger:   logger,
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "peel",
				Name:      "requests_total",
				Help:      "Requests processed, by method and status.",
			},
			[]string{"method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "peel",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds, by method.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "peel",
				Name:      "requests_in_flight",
				Help:      "Requests currently being dispatched.",
			},
		),
		PanicsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "peel",
				Name:      "panics_recovered_total",
				Help:      "Panics recovered by the recovery middleware.",
			},
		),
	}

	registry.MustRegister(m.RequestsTotal, m.RequestDuration, m.RequestsInFlight, m.PanicsTotal)

	return m, nil
}

// Registry returns the dedicated registry; useful for registering
// application-specific collectors alongside the built-in ones.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Start serves the exposition endpoint until Stop is called.
func (m *Metrics) Start() error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return types.ErrAppAlreadyRunning
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	m.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", m.config.Host, m.config.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", zap.Error(err))
			atomic.StoreInt32(&m.running, 0)
		}
	}()

	m.logger.Info("Metrics server started",
		zap.String("address", m.server.Addr),
		zap.String("path", path))

	return nil
}

func (m *Metrics) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return types.ErrAppNotRunning
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return m.server.Shutdown(ctx)
}

// RequestCount reads the current value of the requests counter for a
// method/status pair from the gathered state.
func (m *Metrics) RequestCount(method, status string) float64 {
	counter, err := m.RequestsTotal.GetMetricWithLabelValues(method, status)
	if err != nil {
		return 0
	}

	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		return 0
	}
	return metric.GetCounter().GetValue()
}
