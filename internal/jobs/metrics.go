package jobs

import "github.com/prometheus/client_golang/prometheus"

var (
	jobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_jobs_submitted_total",
			Help: "Refresh job submissions by kind and result (enqueued, deduplicated, error).",
		},
		[]string{"kind", "result"},
	)

	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_jobs_finished_total",
			Help: "Refresh job executions by kind and result (ok, dropped).",
		},
		[]string{"kind", "result"},
	)

	jobsDelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_jobs_delayed_total",
			Help: "Times a job waited for its upstream rate-limit window.",
		},
		[]string{"upstream"},
	)
)

func init() {
	prometheus.MustRegister(jobsSubmitted, jobsFinished, jobsDelayed)
}

func countSubmit(kind Kind, h Handle, err error) {
	switch {
	case err != nil:
		jobsSubmitted.WithLabelValues(string(kind), "error").Inc()
	case h.Enqueued:
		jobsSubmitted.WithLabelValues(string(kind), "enqueued").Inc()
	default:
		jobsSubmitted.WithLabelValues(string(kind), "deduplicated").Inc()
	}
}
