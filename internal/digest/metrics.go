package digest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shiftdigest"

var (
	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "entries",
			Help:      "Number of queue entries by status",
		},
		[]string{"status"},
	)

	eventsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "events_enqueued_total",
			Help:      "Total business events appended to digest entries",
		},
		[]string{"notification_type"},
	)

	entriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "entries_total",
			Help:      "Total queue entries processed by outcome",
		},
		[]string{"notification_type", "outcome"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "send_duration_seconds",
			Help:      "Time to render and send one digest",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"notification_type"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "run_duration_seconds",
			Help:      "Duration of one full dispatch invocation",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	runsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "runs_total",
			Help:      "Total dispatch invocations",
		},
	)
)

func recordEnqueued(notificationType string) {
	eventsEnqueued.WithLabelValues(notificationType).Inc()
}

func recordEntryOutcome(notificationType, outcome string) {
	entriesProcessed.WithLabelValues(notificationType, outcome).Inc()
}

func recordSendDuration(notificationType string, d time.Duration) {
	sendDuration.WithLabelValues(notificationType).Observe(d.Seconds())
}

func recordRun(d time.Duration) {
	runsTotal.Inc()
	runDuration.Observe(d.Seconds())
}

// RecordQueueStats updates queue size metrics.
func RecordQueueStats(stats *QueueStats) {
	queueSize.WithLabelValues("pending").Set(float64(stats.Pending))
	queueSize.WithLabelValues("processing").Set(float64(stats.Processing))
	queueSize.WithLabelValues("sent").Set(float64(stats.Sent))
	queueSize.WithLabelValues("failed").Set(float64(stats.Failed))
}
