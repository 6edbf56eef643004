package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	schedulerTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_scheduler_ticks_total",
			Help: "Scheduler ticks by outcome",
		},
		[]string{"result"},
	)

	stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_steps_total",
			Help: "Backup steps executed by step name and outcome",
		},
		[]string{"step", "result"},
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backup_step_duration_seconds",
			Help:    "Backup step duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	jobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_jobs_finished_total",
			Help: "Backup jobs that reached a terminal status",
		},
		[]string{"status"},
	)

	jobsPrunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backup_jobs_pruned_total",
		Help: "Scheduled backup jobs removed by retention",
	})
)

// ObserveTick records one scheduler tick. result is a short reason such as
// "ran", "cooldown" or "busy".
func ObserveTick(result string) {
	schedulerTicksTotal.WithLabelValues(result).Inc()
}

// ObserveStep records one step execution.
func ObserveStep(step, result string, d time.Duration) {
	stepsTotal.WithLabelValues(step, result).Inc()
	stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// ObserveJobFinished records a job reaching status.
func ObserveJobFinished(status string) {
	jobsFinishedTotal.WithLabelValues(status).Inc()
}

// ObservePruned records n jobs deleted by retention.
func ObservePruned(n int) {
	jobsPrunedTotal.Add(float64(n))
}
