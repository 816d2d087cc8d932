package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	probesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "upmon",
		Subsystem: "probe",
		Name:      "checks_total",
		Help:      "Probe outcomes by final status.",
	}, []string{"status"})

	probeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "upmon",
		Subsystem: "probe",
		Name:      "errors_total",
		Help:      "Probe transport failures by error kind.",
	}, []string{"kind"})

	probeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "upmon",
		Subsystem: "probe",
		Name:      "duration_seconds",
		Help:      "Wall time of a full probe cycle including retries.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	probesInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "upmon",
		Subsystem: "probe",
		Name:      "inflight",
		Help:      "Probes currently holding a concurrency slot.",
	})

	leasesAcquired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "upmon",
		Subsystem: "scheduler",
		Name:      "leases_acquired_total",
		Help:      "Scheduler entries leased by this process.",
	})

	completeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "upmon",
		Subsystem: "scheduler",
		Name:      "complete_retries_total",
		Help:      "Completion transactions retried after store contention.",
	})

	incidentsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "upmon",
		Subsystem: "incident",
		Name:      "opened_total",
		Help:      "Incidents opened by this process.",
	})

	incidentsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "upmon",
		Subsystem: "incident",
		Name:      "resolved_total",
		Help:      "Incidents resolved by this process.",
	})
)
