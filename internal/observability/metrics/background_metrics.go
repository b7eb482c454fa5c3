package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	TaskReasonDeadlineExceeded = "deadline_exceeded"
	TaskReasonUniqueViolation  = "unique_violation"
	TaskReasonDBLockTimeout    = "db_lock_timeout"
	TaskReasonUnknown          = "unknown"
)

// BackgroundMetrics tracks detached work that runs after a response has
// already been produced: remote lookups, backfills, fallback saves.
type BackgroundMetrics struct {
	runs     *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

var (
	backgroundOnce    sync.Once
	backgroundMetrics *BackgroundMetrics
)

// Background returns the process-wide registry registered on the default
// prometheus registerer.
func Background(cfg Config) *BackgroundMetrics {
	backgroundOnce.Do(func() {
		backgroundMetrics = NewBackgroundMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return backgroundMetrics
}

func NewBackgroundMetrics(registerer prometheus.Registerer, cfg Config) *BackgroundMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "facesaju"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &BackgroundMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "facesaju_background_task_runs_total",
			Help:        "Detached background task runs by task name.",
			ConstLabels: constLabels,
		}, []string{"task"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "facesaju_background_task_errors_total",
			Help:        "Background task failures by task and reason.",
			ConstLabels: constLabels,
		}, []string{"task", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "facesaju_background_task_duration_seconds",
			Help:        "Background task latency.",
			ConstLabels: constLabels,
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"task"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "facesaju_background_tasks_in_flight",
			Help:        "Background tasks currently running.",
			ConstLabels: constLabels,
		}),
	}
	m.runs = registerOrExisting(registerer, m.runs)
	m.errors = registerOrExisting(registerer, m.errors)
	m.duration = registerOrExisting(registerer, m.duration)
	m.inFlight = registerOrExisting(registerer, m.inFlight)
	return m
}

func registerOrExisting[T prometheus.Collector](registerer prometheus.Registerer, c T) T {
	if err := registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

// Start marks a task as running and returns the func that records its end.
func (m *BackgroundMetrics) Start(task string) func(err error) {
	if m == nil {
		return func(error) {}
	}
	started := time.Now()
	m.runs.WithLabelValues(task).Inc()
	m.inFlight.Inc()
	return func(err error) {
		m.inFlight.Dec()
		m.duration.WithLabelValues(task).Observe(time.Since(started).Seconds())
		if err != nil {
			m.errors.WithLabelValues(task, ClassifyTaskError(err)).Inc()
		}
	}
}

// ClassifyTaskError maps an error onto a low-cardinality reason label.
func ClassifyTaskError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return TaskReasonDeadlineExceeded
	case hasPGCode(err, "23505"):
		return TaskReasonUniqueViolation
	case hasPGCode(err, "55P03"):
		return TaskReasonDBLockTimeout
	default:
		return TaskReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
