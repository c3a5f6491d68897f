package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_total",
			Help: "Proof submissions by verification method and resulting status",
		},
		[]string{"method", "status"},
	)
	pointsAwardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "points_awarded_total",
			Help: "Points credited to users",
		},
	)
	badgesAwardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "badges_awarded_total",
			Help: "Badges granted to users",
		},
	)
	assignmentsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assignments_created_total",
			Help: "Assignments created by gap filling",
		},
		[]string{"frequency"},
	)
	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Periodic job runs by outcome",
		},
		[]string{"job", "outcome"},
	)
	leaderboardRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leaderboard_refresh_duration_seconds",
			Help:    "Duration of leaderboard computations",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RegisterMetrics registers the engine collectors with reg. Call once from main.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		submissionsTotal,
		pointsAwardedTotal,
		badgesAwardedTotal,
		assignmentsCreatedTotal,
		jobRunsTotal,
		leaderboardRefreshDuration,
	)
}

func recordJobRun(job string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	jobRunsTotal.WithLabelValues(job, outcome).Inc()
}
