package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce       sync.Once
	jobsProcessedTotal *prometheus.CounterVec
	jobDurationSeconds prometheus.Histogram
	judgePollRounds    prometheus.Histogram
	gradeRecalcsTotal  *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for the judging pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		jobsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_jobs_total",
			Help: "Total judging jobs by terminal outcome.",
		}, []string{"outcome"})

		jobDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "judge_job_duration_seconds",
			Help:    "End-to-end duration of one judging job.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		})

		judgePollRounds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "judge_poll_rounds",
			Help:    "Poll rounds needed before a batch reached terminal verdicts.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 30},
		})

		gradeRecalcsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_grade_recalcs_total",
			Help: "Grade recalculations by outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(jobsProcessedTotal, jobDurationSeconds, judgePollRounds, gradeRecalcsTotal)
	})
}

// JobsProcessed exposes the job outcome counter.
func JobsProcessed() *prometheus.CounterVec {
	RegisterMetrics()
	return jobsProcessedTotal
}

// JobDuration exposes the job duration histogram.
func JobDuration() prometheus.Histogram {
	RegisterMetrics()
	return jobDurationSeconds
}

// PollRounds exposes the batch poll-round histogram.
func PollRounds() prometheus.Histogram {
	RegisterMetrics()
	return judgePollRounds
}

// GradeRecalcs exposes the grade recalculation counter.
func GradeRecalcs() *prometheus.CounterVec {
	RegisterMetrics()
	return gradeRecalcsTotal
}
