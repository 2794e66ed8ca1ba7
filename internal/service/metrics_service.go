package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the grade
// sheet sessions it hosts.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	sessionsOpened  prometheus.Counter
	sessionsClosed  prometheus.Counter
	activeSessions  prometheus.Gauge
	saves           *prometheus.CounterVec
	skippedCells    prometheus.Counter
	attendanceSyncs *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	pastedCells     prometheus.Counter
	exports         *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
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

	sessionsOpened := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gradesheet_sessions_opened_total",
		Help: "Grade sheet editing sessions opened",
	})

	sessionsClosed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gradesheet_sessions_closed_total",
		Help: "Grade sheet editing sessions discarded or expired",
	})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gradesheet_sessions_active",
		Help: "Sessions currently held by the session store",
	})

	saves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gradesheet_saves_total",
		Help: "Save attempts by outcome",
	}, []string{"outcome"})

	skippedCells := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gradesheet_save_skipped_cells_total",
		Help: "Non-blank cells left out of saves because they were not valid grades",
	})

	attendanceSyncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gradesheet_attendance_syncs_total",
		Help: "Attendance synchronisations by outcome",
	}, []string{"outcome"})

	backendLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gradesheet_backend_request_seconds",
		Help:    "Latency of calls to the grade backend",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	pastedCells := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gradesheet_pasted_cells_total",
		Help: "Grade cells written by clipboard paste",
	})

	exports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gradesheet_exports_total",
		Help: "Generated table exports by format",
	}, []string{"format"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, sessionsOpened, sessionsClosed, activeSessions,
		saves, skippedCells, attendanceSyncs, backendLatency, pastedCells, exports, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		sessionsOpened:  sessionsOpened,
		sessionsClosed:  sessionsClosed,
		activeSessions:  activeSessions,
		saves:           saves,
		skippedCells:    skippedCells,
		attendanceSyncs: attendanceSyncs,
		backendLatency:  backendLatency,
		pastedCells:     pastedCells,
		exports:         exports,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// SessionOpened counts a new session.
func (m *MetricsService) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsOpened.Inc()
}

// SessionsClosed counts discarded or purged sessions.
func (m *MetricsService) SessionsClosed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsClosed.Add(float64(n))
}

// SetActiveSessions publishes the session store size.
func (m *MetricsService) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// RecordSave counts a finished save and the cells it left out.
func (m *MetricsService) RecordSave(outcome string, skipped int) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(outcome).Inc()
	if skipped > 0 {
		m.skippedCells.Add(float64(skipped))
	}
}

// RecordAttendanceSync counts a finished attendance synchronisation.
func (m *MetricsService) RecordAttendanceSync(outcome string) {
	if m == nil {
		return
	}
	m.attendanceSyncs.WithLabelValues(outcome).Inc()
}

// ObserveBackendCall records the latency of a grade backend call.
func (m *MetricsService) ObserveBackendCall(operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.backendLatency.WithLabelValues(operation, fmt.Sprintf("%d", status)).Observe(duration.Seconds())
}

// RecordPaste counts cells written by a paste.
func (m *MetricsService) RecordPaste(cells int) {
	if m == nil || cells <= 0 {
		return
	}
	m.pastedCells.Add(float64(cells))
}

// RecordExport counts a generated export.
func (m *MetricsService) RecordExport(format string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(format).Inc()
}
