package metrics

import (
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/thomcc/miri-tools/types"
)

const (
	MetricsNamespace = "mtw"
)

var (
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of infrastructure errors",
	}, []string{
		"error",
	})

	packagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "packages_total",
		Help:      "Count of packages processed",
	}, []string{
		"variant",
		"run_id",
	})

	phaseOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "phase_outcomes_total",
		Help:      "Per-phase outcomes across the corpus",
	}, []string{
		"variant",
		"run_id",
		"phase",
		"outcome",
	})

	corpusProgress = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "corpus_progress",
		Help:      "Packages completed so far in the current run",
	}, []string{
		"variant",
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of the corpus run",
	}, []string{
		"variant",
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

// RecordError increments the infrastructure error counter.
func RecordError(err error) {
	errorsTotal.WithLabelValues(errToLabel(err)).Inc()
}

// RecordPackage records one finished package's per-phase outcomes.
func RecordPackage(variant types.ToolVariant, runID string, rec *types.RunRecord) {
	packagesTotal.WithLabelValues(variant.String(), runID).Inc()
	corpusProgress.WithLabelValues(variant.String(), runID).Inc()
	for _, p := range types.OrderedPhases {
		o := rec.Result(p).Outcome
		if !o.Known() {
			continue
		}
		phaseOutcomes.WithLabelValues(variant.String(), runID, string(p), string(o.Kind)).Inc()
	}
}

// RecordRunDuration records the total wall-clock time of a corpus run.
func RecordRunDuration(variant types.ToolVariant, runID string, d time.Duration) {
	runDuration.WithLabelValues(variant.String(), runID).Set(d.Seconds())
}
