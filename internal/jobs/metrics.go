// Package jobmetrics instruments the worker's order deletion and key cleanup runs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes recorded on odyssey_jobs_total.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds the collectors shared by every job handler. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	items       *prometheus.CounterVec
	backlog     *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
	now         func() time.Time
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors. A nil registerer means the default
// Prometheus registerer, registered once per process.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker times one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	t := &Tracker{job: job, start: time.Now()}
	if m != nil {
		t.metrics = m
		t.start = m.now()
	}
	return t
}

// End records the run's outcome and duration and returns err unchanged, so
// handlers can defer it over their named error.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	m := t.metrics
	now := m.now()
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	} else {
		m.lastSuccess.WithLabelValues(t.job).Set(float64(now.Unix()))
	}
	m.runs.WithLabelValues(t.job, status).Inc()
	m.duration.WithLabelValues(t.job).Observe(now.Sub(t.start).Seconds())
	return err
}

// AddItems counts records a run handled, such as finished deletions or
// pruned idempotency keys.
func (m *Metrics) AddItems(job, outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.items.WithLabelValues(job, outcome).Add(float64(count))
}

// SetBacklog records how much work a run left behind, such as orders still
// partially deleted after a reconcile sweep.
func (m *Metrics) SetBacklog(job string, count int) {
	if m == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	m.backlog.WithLabelValues(job).Set(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_total",
		Help: "Job runs by job name and status.",
	}, []string{"job", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_job_duration_seconds",
		Help:    "Duration in seconds of job runs.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_job_items_total",
		Help: "Records handled by job runs by outcome.",
	}, []string{"job", "outcome"})
	backlog := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_job_backlog",
		Help: "Work left pending after the latest run.",
	}, []string{"job"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_job_last_success_timestamp_seconds",
		Help: "Unix time of the latest successful run.",
	}, []string{"job"})
	registerer.MustRegister(runs, duration, items, backlog, lastSuccess)
	return &Metrics{
		runs:        runs,
		duration:    duration,
		items:       items,
		backlog:     backlog,
		lastSuccess: lastSuccess,
		now:         time.Now,
	}
}
