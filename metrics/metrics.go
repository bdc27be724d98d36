package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "testrun"
)

var (
	Debug                bool = false
	validOutcomes             = []string{"pass", "fail", "fatal"}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	linesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "lines_total",
		Help:      "Count of child output lines captured",
	}, []string{
		"stream",
	})

	sinkFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "sink_failures_total",
		Help:      "Count of lines the live sink failed to deliver",
	})

	joinTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "join_timeouts_total",
		Help:      "Count of executions whose stream readers did not finish in time",
	})

	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "executions_total",
		Help:      "Count of executions by final state",
	}, []string{
		"state",
	})

	executionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "execution_duration_seconds",
		Help:      "Wall time of child executions",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
	})

	suiteResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_results_total",
		Help:      "Count of suite results by outcome",
	}, []string{
		"suite",
		"outcome",
	})

	runStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_status",
		Help:      "Status of test runs",
	}, []string{
		"run_id",
		"status",
	})

	liveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "live_clients",
		Help:      "Number of connected live stream clients",
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

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordLines(stream string, n int) {
	if n <= 0 {
		return
	}
	linesTotal.WithLabelValues(stream).Add(float64(n))
}

func RecordSinkFailures(n int) {
	if n <= 0 {
		return
	}
	if Debug {
		log.Debug("metric inc", "m", "sink_failures_total", "count", n)
	}
	sinkFailuresTotal.Add(float64(n))
}

func RecordJoinTimeout() {
	joinTimeoutsTotal.Inc()
}

func RecordExecution(state string, duration time.Duration) {
	executionsTotal.WithLabelValues(state).Inc()
	executionDuration.Observe(duration.Seconds())
}

func RecordSuiteResult(suite string, outcome string) {
	if !slices.Contains(validOutcomes, outcome) {
		log.Error("RecordSuiteResult - invalid outcome", "outcome", outcome)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "suite_results_total",
			"suite", suite,
			"outcome", outcome)
	}
	suiteResultsTotal.WithLabelValues(suite, outcome).Inc()
}

func RecordRunStatus(runID string, status string) {
	runStatus.WithLabelValues(runID, status).Set(1)
}

func SetLiveClients(n int) {
	liveClients.Set(float64(n))
}
