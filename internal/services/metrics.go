package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// checkRuns counts persisted check outcomes by portal and result.
	checkRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refund_checks_total",
			Help: "Total number of completed refund checks.",
		},
		[]string{"portal", "result"},
	)

	// checkStatusChanges counts detected status transitions by portal.
	checkStatusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refund_check_status_changes_total",
			Help: "Total number of checks that detected a status change.",
		},
		[]string{"portal"},
	)
)

func init() {
	prometheus.MustRegister(checkRuns, checkStatusChanges)
}
