package service

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
	cascadeTotal    prometheus.Counter
	reaperSweeps    prometheus.Counter
	reaperExpired   prometheus.Counter
	reaperErrors    prometheus.Counter
	reaperLastSweep prometheus.Gauge

	requestCount  uint64
	cascadeCount  uint64
	expiredCount  uint64
	lastSweepUnix int64
}

// NewMetricsService registers the engine's Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	transitionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appointment_transitions_total",
		Help: "Lifecycle transitions applied, labelled by target status",
	}, []string{"to"})

	cascadeTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quote_invalidation_cascades_total",
		Help: "Edit-invalidation cascades fired",
	})

	reaperSweeps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reaper_sweeps_total",
		Help: "Expiry sweeps executed",
	})

	reaperExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reaper_expired_total",
		Help: "Appointments expired by the reaper",
	})

	reaperErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reaper_errors_total",
		Help: "Storage failures surfaced by expiry sweeps",
	})

	reaperLastSweep := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reaper_last_sweep_timestamp_seconds",
		Help: "Unix time of the last successful sweep",
	})

	registry.MustRegister(requestDuration, requestTotal, transitionTotal, cascadeTotal,
		reaperSweeps, reaperExpired, reaperErrors, reaperLastSweep)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		transitionTotal: transitionTotal,
		cascadeTotal:    cascadeTotal,
		reaperSweeps:    reaperSweeps,
		reaperExpired:   reaperExpired,
		reaperErrors:    reaperErrors,
		reaperLastSweep: reaperLastSweep,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records a request observation.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if s == nil {
		return
	}
	labels := prometheus.Labels{"method": method, "path": path, "status": statusLabel(status)}
	s.requestDuration.With(labels).Observe(duration.Seconds())
	s.requestTotal.With(labels).Inc()
	atomic.AddUint64(&s.requestCount, 1)
}

// ObserveTransition records a committed lifecycle transition.
func (s *MetricsService) ObserveTransition(to string) {
	if s == nil {
		return
	}
	s.transitionTotal.WithLabelValues(to).Inc()
}

// ObserveCascade records an edit-invalidation cascade.
func (s *MetricsService) ObserveCascade() {
	if s == nil {
		return
	}
	s.cascadeTotal.Inc()
	atomic.AddUint64(&s.cascadeCount, 1)
}

// ObserveSweep records the outcome of an expiry sweep.
func (s *MetricsService) ObserveSweep(expired int, storageErr bool, at time.Time) {
	if s == nil {
		return
	}
	s.reaperSweeps.Inc()
	if expired > 0 {
		s.reaperExpired.Add(float64(expired))
		atomic.AddUint64(&s.expiredCount, uint64(expired))
	}
	if storageErr {
		s.reaperErrors.Inc()
		return
	}
	s.reaperLastSweep.Set(float64(at.Unix()))
	atomic.StoreInt64(&s.lastSweepUnix, at.Unix())
}

// Snapshot is a lightweight JSON view for the operator endpoint.
type Snapshot struct {
	Requests      uint64 `json:"requests"`
	Cascades      uint64 `json:"cascades"`
	Expired       uint64 `json:"expired"`
	LastSweepUnix int64  `json:"last_sweep_unix"`
}

// SnapshotValues returns current counter values.
func (s *MetricsService) SnapshotValues() Snapshot {
	return Snapshot{
		Requests:      atomic.LoadUint64(&s.requestCount),
		Cascades:      atomic.LoadUint64(&s.cascadeCount),
		Expired:       atomic.LoadUint64(&s.expiredCount),
		LastSweepUnix: atomic.LoadInt64(&s.lastSweepUnix),
	}
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
