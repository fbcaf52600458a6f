package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	enqueued *prometheus.CounterVec
	pruned   prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// Enqueue outcomes.
const (
	OutcomeEnqueued  = "enqueued"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// AddEnqueued counts tasks handed to the queue by outcome.
func (m *Metrics) AddEnqueued(job, outcome string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(job, outcome).Inc()
}

// AddPruned counts expired login sessions removed by the prune job.
func (m *Metrics) AddPruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.pruned.Add(float64(n))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assetdesk_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assetdesk_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assetdesk_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	enqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assetdesk_jobs_enqueued_total",
		Help: "Tasks handed to the queue partitioned by job name and outcome.",
	}, []string{"job", "outcome"})
	pruned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assetdesk_sessions_pruned_total",
		Help: "Expired login sessions deleted by the prune job.",
	})
	registerer.MustRegister(runs, failures, duration, enqueued, pruned)
	return &Metrics{runs: runs, failures: failures, duration: duration, enqueued: enqueued, pruned: pruned}
}
