package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails sent",
		},
	)

	EmailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_failures_total",
			Help: "Total failed emails",
		},
	)

	SendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "email_send_duration_seconds",
			Help:    "Time spent handing one email to the relay",
			Buckets: prometheus.DefBuckets,
		},
	)

	Batches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batches_total",
			Help: "Bulk-send batches by outcome",
		},
		[]string{"status"},
	)

	RowsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "csv_rows_skipped_total",
			Help: "CSV rows dropped for a missing or malformed email",
		},
	)
)

func Init() {
	prometheus.MustRegister(EmailsSent)
	prometheus.MustRegister(EmailFailures)
	prometheus.MustRegister(SendDuration)
	prometheus.MustRegister(Batches)
	prometheus.MustRegister(RowsSkipped)
}
