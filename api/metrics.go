package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraTime-Engine/engine"
)

// Status label for successful calls. Failed calls are labelled with their
// wire error code.
const StatusLabelOK = "ok"

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Kernel metrics
	KernelCalls   *prometheus.CounterVec
	KernelLatency *prometheus.HistogramVec
	RowsProcessed *prometheus.CounterVec

	// Transport metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Worker pool metrics
	WorkerPoolActive    prometheus.Gauge
	WorkerPoolPending   prometheus.Gauge
	WorkerPoolCompleted prometheus.Gauge
	WorkerPoolFailed    prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with the given namespace and
// registers it with reg. A nil reg leaves the metrics unregistered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		KernelCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kernel_calls_total",
			Help:      "Total temporal kernel calls by operation and status",
		}, []string{"op", "status"}),
		KernelLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kernel_latency_seconds",
			Help:      "Temporal kernel latency in seconds by operation",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),
		RowsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_processed_total",
			Help:      "Total output rows produced by operation",
		}, []string{"op"}),

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total requests by transport and status",
		}, []string{"transport", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request duration by transport",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport"}),

		WorkerPoolActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_active",
			Help:      "Number of active workers",
		}),
		WorkerPoolPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_pending",
			Help:      "Number of pending tasks in worker pool",
		}),
		WorkerPoolCompleted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_completed",
			Help:      "Number of tasks completed by the worker pool",
		}),
		WorkerPoolFailed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_failed",
			Help:      "Number of tasks failed by the worker pool",
		}),
	}
}

// RecordKernel records one kernel call.
func (m *Metrics) RecordKernel(op, status string, rows int, duration time.Duration) {
	m.KernelCalls.WithLabelValues(op, status).Inc()
	m.KernelLatency.WithLabelValues(op).Observe(duration.Seconds())
	if status == StatusLabelOK {
		m.RowsProcessed.WithLabelValues(op).Add(float64(rows))
	}
}

// RecordRequest records a transport request.
func (m *Metrics) RecordRequest(transport, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(transport, status).Inc()
	m.RequestDuration.WithLabelValues(transport).Observe(duration.Seconds())
}

// UpdateWorkerPool updates worker pool gauges.
func (m *Metrics) UpdateWorkerPool(stats engine.PoolStats) {
	m.WorkerPoolActive.Set(float64(stats.Active))
	m.WorkerPoolPending.Set(float64(stats.Pending))
	m.WorkerPoolCompleted.Set(float64(stats.Completed))
	m.WorkerPoolFailed.Set(float64(stats.Failed))
}

// MetricsServer runs an HTTP server exposing /metrics and /health.
type MetricsServer struct {
	server   *http.Server
	logger   *zap.Logger
	listener net.Listener
	mu       sync.Mutex
}

// NewMetricsServer creates a new metrics server on the given address
// serving metrics from gatherer.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer, logger *zap.Logger) *MetricsServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the HTTP handler serving /metrics and /health.
func (s *MetricsServer) Handler() http.Handler {
	return s.server.Handler
}

// StartAsync binds the listener and serves in a goroutine.
func (s *MetricsServer) StartAsync() error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before StartAsync.
func (s *MetricsServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the metrics server.
func (s *MetricsServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
