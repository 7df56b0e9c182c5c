package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/verdantlabs/landchange/internal/models"
)

const (
	// OutcomeSuccess labels successful runs and calls.
	OutcomeSuccess = "success"
	// OutcomeError labels failed runs (pipeline or dependency issues).
	OutcomeError = "error"
	// OutcomeInvalid labels runs rejected during input validation.
	OutcomeInvalid = "invalid"
	// OutcomeAuth labels archive calls rejected for credentials.
	OutcomeAuth = "auth"
	// OutcomeEmpty labels composites with no matching imagery.
	OutcomeEmpty = "empty"
)

const (
	OperationAuthenticate = "authenticate"
	OperationComposite    = "composite"
	OperationExport       = "export"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "landchange",
			Name:      "runs_total",
			Help:      "Total number of change detection runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "landchange",
			Name:      "run_seconds",
			Help:      "Change detection run latency in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 180},
		},
	)

	archiveRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "landchange",
			Name:      "archive_requests_total",
			Help:      "Imagery archive calls, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "landchange",
			Name:      "exports_total",
			Help:      "Export submissions, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	changedFraction = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "landchange",
			Name:      "changed_fraction",
			Help:      "Fraction of defined pixels classified as changed per run.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
)

// Register attaches landchange collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		archiveRequestsTotal,
		exportsTotal,
		changedFraction,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a run duration and outcome label. fraction is recorded
// only for successful runs.
func ObserveRun(duration time.Duration, outcome string, fraction float64) {
	switch outcome {
	case OutcomeError, OutcomeInvalid:
	default:
		outcome = OutcomeSuccess
	}
	runsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.Observe(duration.Seconds())
	if outcome == OutcomeSuccess {
		changedFraction.Observe(fraction)
	}
}

// ObserveArchiveRequest counts an archive call by operation and error class.
func ObserveArchiveRequest(operation string, err error) {
	archiveRequestsTotal.WithLabelValues(operation, Outcome(err)).Inc()
}

// ObserveExport counts an export submission.
func ObserveExport(err error) {
	exportsTotal.WithLabelValues(Outcome(err)).Inc()
}

// Outcome maps an error to a label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, models.ErrInvalidGeometry), errors.Is(err, models.ErrUnsupportedYear):
		return OutcomeInvalid
	case errors.Is(err, models.ErrAuthentication):
		return OutcomeAuth
	case errors.Is(err, models.ErrNoMatchingImages):
		return OutcomeEmpty
	default:
		return OutcomeError
	}
}
