package service

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nickaq/tg-bot-schedule/internal/portal"
)

// MetricsService encapsulates Prometheus instrumentation for the poll loop
// and provides a lightweight snapshot for the status endpoint.
type MetricsService struct {
	registry       *prometheus.Registry
	handler        http.Handler
	ticksTotal     prometheus.Counter
	tickDuration   prometheus.Histogram
	attemptsTotal  *prometheus.CounterVec
	portalLatency  prometheus.Histogram
	eventsTotal    *prometheus.CounterVec
	usersScheduled prometheus.Gauge

	tickCount         uint64
	tickDurationTotal uint64
	markedCount       uint64
}

// NewMetricsService registers the poll-loop collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	ticksTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_ticks_total",
		Help: "Total number of completed scheduler ticks",
	})

	tickDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_tick_duration_seconds",
		Help:    "Duration of one full scheduler tick",
		Buckets: prometheus.DefBuckets,
	})

	attemptsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_attempts_total",
		Help: "Marking attempts by portal outcome",
	}, []string{"outcome"})

	portalLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "portal_request_duration_seconds",
		Help:    "Duration of one full portal marking round",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	eventsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notifications emitted by event kind",
	}, []string{"kind"})

	usersScheduled := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_users",
		Help: "Users visited by the most recent tick",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(ticksTotal, tickDuration, attemptsTotal, portalLatency, eventsTotal, usersScheduled, goroutines)

	return &MetricsService{
		registry:       registry,
		handler:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ticksTotal:     ticksTotal,
		tickDuration:   tickDuration,
		attemptsTotal:  attemptsTotal,
		portalLatency:  portalLatency,
		eventsTotal:    eventsTotal,
		usersScheduled: usersScheduled,
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

// ObserveTick records one completed scheduler round.
func (m *MetricsService) ObserveTick(users int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ticksTotal.Inc()
	m.tickDuration.Observe(duration.Seconds())
	m.usersScheduled.Set(float64(users))
	atomic.AddUint64(&m.tickCount, 1)
	atomic.AddUint64(&m.tickDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveAttempt records one portal marking round.
func (m *MetricsService) ObserveAttempt(outcome portal.Outcome, duration time.Duration) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(string(outcome)).Inc()
	m.portalLatency.Observe(duration.Seconds())
	if outcome == portal.OutcomeMarked {
		atomic.AddUint64(&m.markedCount, 1)
	}
}

// ObserveEvent records one emitted notification.
func (m *MetricsService) ObserveEvent(kind string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(kind).Inc()
}

// EngineSnapshot is the aggregate served by the status endpoint.
type EngineSnapshot struct {
	Ticks             uint64  `json:"ticks"`
	AverageTickMs     float64 `json:"average_tick_ms"`
	AttendancesMarked uint64  `json:"attendances_marked"`
	Goroutines        int     `json:"goroutines"`
}

// Snapshot returns aggregated counters for lightweight inspection.
func (m *MetricsService) Snapshot() EngineSnapshot {
	if m == nil {
		return EngineSnapshot{}
	}
	ticks := atomic.LoadUint64(&m.tickCount)
	total := atomic.LoadUint64(&m.tickDurationTotal)

	var avgMs float64
	if ticks > 0 {
		avgMs = float64(total) / float64(ticks) / float64(time.Millisecond)
	}
	return EngineSnapshot{
		Ticks:             ticks,
		AverageTickMs:     avgMs,
		AttendancesMarked: atomic.LoadUint64(&m.markedCount),
		Goroutines:        runtime.NumGoroutine(),
	}
}
