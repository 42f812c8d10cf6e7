package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	migrationExecutor = "migration_executor"

	// Import metrics
	diskBytesWrittenTotal = "disk_bytes_written_total"
	diskImportsTotal      = "disk_imports_total"
	phaseDurationSeconds  = "phase_duration_seconds"

	// Migration metrics
	migrationsTotal = "migrations_total"

	// Labels
	wireFormatLabel = "format"
	phaseLabel      = "phase"
	modeLabel       = "mode"
	outcomeLabel    = "outcome"
)

/**
* Metrics definition
**/
var diskBytesWrittenTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: migrationExecutor,
		Name:      diskBytesWrittenTotal,
		Help:      "number of bytes pushed into destination disks, by wire format",
	},
	[]string{wireFormatLabel},
)

var diskImportsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: migrationExecutor,
		Name:      diskImportsTotal,
		Help:      "number of completed disk imports, by wire format",
	},
	[]string{wireFormatLabel},
)

var phaseDurationSecondsMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: migrationExecutor,
		Name:      phaseDurationSeconds,
		Help:      "duration of migration phases",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	},
	[]string{phaseLabel},
)

var migrationsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: migrationExecutor,
		Name:      migrationsTotal,
		Help:      "number of migration attempts, by mode and outcome",
	},
	[]string{modeLabel, outcomeLabel},
)

func AddDiskBytesWritten(format string, n int64) {
	diskBytesWrittenTotalMetric.With(prometheus.Labels{wireFormatLabel: format}).Add(float64(n))
}

func IncreaseDiskImportsTotal(format string) {
	diskImportsTotalMetric.With(prometheus.Labels{wireFormatLabel: format}).Inc()
}

func ObservePhaseDuration(phase string, d time.Duration) {
	phaseDurationSecondsMetric.With(prometheus.Labels{phaseLabel: phase}).Observe(d.Seconds())
}

func IncreaseMigrationsTotal(mode string, outcome string) {
	migrationsTotalMetric.With(prometheus.Labels{modeLabel: mode, outcomeLabel: outcome}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(diskBytesWrittenTotalMetric)
	prometheus.MustRegister(diskImportsTotalMetric)
	prometheus.MustRegister(phaseDurationSecondsMetric)
	prometheus.MustRegister(migrationsTotalMetric)
}
