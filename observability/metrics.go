package observability

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type apiMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	apiMetricsOnce sync.Once
	apiRegistry    *apiMetrics

	streakdMetricsOnce sync.Once
	streakdRegistry    *StreakdMetrics
)

// API returns the lazily-initialised registry used to record admin API
// activity.
func API() *apiMetrics {
	apiMetricsOnce.Do(func() {
		apiRegistry = &apiMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "streakd",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total admin API requests segmented by route, method, and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "streakd",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total admin API errors segmented by route, method, and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "streakd",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for admin API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "streakd",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of admin API requests rejected by the rate limiter.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			apiRegistry.requests,
			apiRegistry.errors,
			apiRegistry.latency,
			apiRegistry.throttles,
		)
	})
	return apiRegistry
}

// Observe records the outcome of an admin request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *apiMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route and
// reason.
func (m *apiMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// StreakdMetrics wraps collectors tracking the streak processor.
type StreakdMetrics struct {
	runs          *prometheus.CounterVec
	runLatency    prometheus.Histogram
	activeStreaks prometheus.Gauge
	lostStreaks   *prometheus.CounterVec
	milestones    *prometheus.CounterVec
	bonuses       prometheus.Counter
	overrides     *prometheus.CounterVec
	recordErrors  prometheus.Counter
	slotFallbacks prometheus.Counter
	lastRun       prometheus.Gauge
}

// Streakd exposes the metrics registry for the streak daemon.
func Streakd() *StreakdMetrics {
	streakdMetricsOnce.Do(func() {
		streakdRegistry = &StreakdMetrics{
			runs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "streakd",
				Name:      "runs_total",
				Help:      "Daily batch runs segmented by outcome.",
			}, []string{"outcome"}),
			runLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "streakd",
				Name:      "run_duration_seconds",
				Help:      "Time spent loading, processing, and persisting a daily batch.",
				Buckets:   prometheus.DefBuckets,
			}),
			activeStreaks: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "streakd",
				Name:      "active_streaks",
				Help:      "Participants holding a streak after the latest run.",
			}),
			lostStreaks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "streakd",
				Name:      "lost_streaks_total",
				Help:      "Streaks lost segmented by loss class.",
			}, []string{"class"}),
			milestones: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "streakd",
				Name:      "milestone_wins_total",
				Help:      "Wheel milestones reached segmented by wheel number.",
			}, []string{"wheel"}),
			bonuses: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "streakd",
				Name:      "referral_bonuses_total",
				Help:      "Referral bonuses emitted.",
			}),
			overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "streakd",
				Name:      "overrides_total",
				Help:      "Manual streak overrides segmented by outcome.",
			}, []string{"outcome"}),
			recordErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "streakd",
				Name:      "record_errors_total",
				Help:      "Activity records skipped because they were malformed.",
			}),
			slotFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "streakd",
				Name:      "wheel_slot_placeholders_total",
				Help:      "Milestone winners that received the placeholder wheel slot.",
			}),
			lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "streakd",
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix timestamp of the last successful run.",
			}),
		}
		prometheus.MustRegister(
			streakdRegistry.runs,
			streakdRegistry.runLatency,
			streakdRegistry.activeStreaks,
			streakdRegistry.lostStreaks,
			streakdRegistry.milestones,
			streakdRegistry.bonuses,
			streakdRegistry.overrides,
			streakdRegistry.recordErrors,
			streakdRegistry.slotFallbacks,
			streakdRegistry.lastRun,
		)
	})
	return streakdRegistry
}

// RecordRun increments the run counter for outcome and observes latency.
func (m *StreakdMetrics) RecordRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runLatency.Observe(d.Seconds())
}

// RunSummary carries the figures of a completed run.
type RunSummary struct {
	ActiveStreaks   int
	LostSignificant int
	LostMinor       int
	Wheels          []int64
	Bonuses         int
	RecordErrors    int
	Placeholders    int
	CompletedAt     time.Time
}

// ObserveRun records the figures of a completed run.
func (m *StreakdMetrics) ObserveRun(s RunSummary) {
	if m == nil {
		return
	}
	m.activeStreaks.Set(float64(s.ActiveStreaks))
	m.lostStreaks.WithLabelValues("significant").Add(float64(s.LostSignificant))
	m.lostStreaks.WithLabelValues("minor").Add(float64(s.LostMinor))
	for _, wheel := range s.Wheels {
		m.milestones.WithLabelValues(strconv.FormatInt(wheel, 10)).Inc()
	}
	m.bonuses.Add(float64(s.Bonuses))
	m.recordErrors.Add(float64(s.RecordErrors))
	m.slotFallbacks.Add(float64(s.Placeholders))
	if !s.CompletedAt.IsZero() {
		m.lastRun.Set(float64(s.CompletedAt.Unix()))
	}
}

// RecordOverride increments the override counter for outcome.
func (m *StreakdMetrics) RecordOverride(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.overrides.WithLabelValues(outcome).Inc()
}

// SetActiveStreaks updates the active streak gauge outside of a run.
func (m *StreakdMetrics) SetActiveStreaks(n int) {
	if m == nil {
		return
	}
	m.activeStreaks.Set(float64(n))
}
