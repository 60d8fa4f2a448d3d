package metrics

import (
	"time"

	"github.com/scenegraph/sgeval/internal/evaluation"
	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
)

// Run outcomes used as the "outcome" label.
const (
	OutcomeCompleted   = "completed"
	OutcomeConflict    = "conflict"
	OutcomeConfig      = "configuration"
	OutcomeInference   = "inference"
	OutcomeValidation  = "validation"
	OutcomePersistence = "persistence"
	OutcomeOther       = "error"
)

// Metrics holds every series the service exports.
type Metrics struct {
	Runs        *CounterVec
	RunDuration *Histogram
	Samples     *Counter
	Edges       *Counter
	ReportValue *GaugeVec
	BusEvents   *CounterVec

	HTTPRequests         *CounterVec
	HTTPDuration         *Histogram
	HTTPRequestsInFlight *Gauge
}

// New creates an empty metric set.
func New() *Metrics {
	return &Metrics{
		Runs: NewCounterVec("sgeval_runs_total",
			"Evaluation passes by outcome", []string{"outcome"}),
		RunDuration: NewHistogram("sgeval_run_duration_seconds",
			"Wall time of evaluation passes", []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600}),
		Samples: NewCounter("sgeval_samples_total",
			"Scans evaluated by completed passes", nil),
		Edges: NewCounter("sgeval_edges_total",
			"Candidate edges evaluated by completed passes", nil),
		ReportValue: NewGaugeVec("sgeval_report_value",
			"Metric values of the latest report per dataset and split", []string{"dataset", "split", "metric"}),
		BusEvents: NewCounterVec("sgeval_bus_events_total",
			"Run events received from the bus by topic and outcome", []string{"topic", "outcome"}),

		HTTPRequests: NewCounterVec("sgeval_http_requests_total",
			"HTTP requests by method, path and status", []string{"method", "path", "status"}),
		HTTPDuration: NewHistogram("sgeval_http_request_duration_seconds",
			"HTTP request latency", []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}),
		HTTPRequestsInFlight: NewGauge("sgeval_http_requests_in_flight",
			"HTTP requests currently being served", nil),
	}
}

// ObserveRun records the outcome of one evaluation pass.
func (m *Metrics) ObserveRun(report *evaluation.Report, err error, elapsed time.Duration) {
	outcome := Outcome(err)
	m.Runs.WithLabels(outcome).Inc()
	if outcome == OutcomeConflict {
		return
	}
	m.RunDuration.Observe(elapsed.Seconds())

	if err != nil || report == nil {
		return
	}
	m.Samples.Add(int64(report.SampleCount))
	m.Edges.Add(int64(report.EdgeCount))
	for _, key := range report.Keys() {
		m.ReportValue.WithLabels(report.Dataset, report.Split, key).Set(report.Metrics[key])
	}
}

// Outcome classifies a run error.
func Outcome(err error) string {
	if err == nil {
		return OutcomeCompleted
	}
	if o, ok := outcomes[apperrors.CodeOf(err)]; ok {
		return o
	}
	return OutcomeOther
}

var outcomes = map[string]string{
	apperrors.CodeConflict:         OutcomeConflict,
	apperrors.CodeConfiguration:    OutcomeConfig,
	apperrors.CodeInferenceFailure: OutcomeInference,
	apperrors.CodeValidation:       OutcomeValidation,
	apperrors.CodePersistence:      OutcomePersistence,
}
