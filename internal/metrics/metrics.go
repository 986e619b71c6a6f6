package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	signalDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "signal_deliveries_total",
		Help:      "Signal delivery attempts by outcome (delivered, not_found, failed).",
	}, []string{"outcome"})

	crashInjections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "crash_injections_total",
		Help:      "Deliberate crash injections by mode (panic, fatal).",
	}, []string{"mode"})

	workerRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "worker_restarts_total",
		Help:      "Total number of restarts initiated for each worker.",
	}, []string{"worker"})

	journalRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "journal_records_total",
		Help:      "Records appended to or applied by the local journal.",
	})

	journalTimeline = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden",
		Name:      "journal_timeline",
		Help:      "Timeline identifier the journal is currently writing on.",
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "warden",
		Name:      "build_info",
		Help:      "Build metadata for the running warden binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(signalDeliveries, crashInjections, workerRestarts, journalRecords, journalTimeline, buildInfo)
}

// Registry returns the Prometheus registry containing all warden metrics.
func Registry() *prometheus.Registry {
	return registry
}

// Signal delivery outcomes recorded by AddSignalDelivery.
const (
	OutcomeDelivered = "delivered"
	OutcomeNotFound  = "not_found"
	OutcomeFailed    = "failed"
)

// AddSignalDelivery records one signal delivery attempt.
func AddSignalDelivery(outcome string) {
	if outcome == "" {
		return
	}
	signalDeliveries.WithLabelValues(outcome).Inc()
}

// Crash modes recorded by AddCrashInjection.
const (
	CrashModePanic = "panic"
	CrashModeFatal = "fatal"
)

// AddCrashInjection records a deliberate crash request.
func AddCrashInjection(mode string) {
	if mode == "" {
		return
	}
	crashInjections.WithLabelValues(mode).Inc()
}

// IncWorkerRestart increments the restart counter for a worker.
func IncWorkerRestart(worker string) {
	if worker == "" {
		return
	}
	workerRestarts.WithLabelValues(worker).Inc()
}

// AddJournalRecord counts one record written to the local journal.
func AddJournalRecord() {
	journalRecords.Inc()
}

// SetJournalTimeline publishes the timeline the journal writes on.
func SetJournalTimeline(timeline uint32) {
	journalTimeline.Set(float64(timeline))
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
