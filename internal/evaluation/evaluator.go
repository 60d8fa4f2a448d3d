package evaluation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/scenegraph/sgeval/internal/dataset"
	"github.com/scenegraph/sgeval/internal/inference"
	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
	"github.com/scenegraph/sgeval/internal/pkg/logger"
)

// State is the lifecycle stage of an evaluator.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateAggregating
	StateReported
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateAggregating:
		return "aggregating"
	case StateReported:
		return "reported"
	default:
		return "idle"
	}
}

// ReportWriter archives a finished report.
type ReportWriter interface {
	Write(ctx context.Context, r *Report) error
}

// RunObserver is told about every finished pass, successful or not.
type RunObserver interface {
	ObserveRun(report *Report, err error, elapsed time.Duration)
}

// Evaluator drives full passes over a dataset split.
type Evaluator struct {
	model    inference.Model
	settings Settings
	writer   ReportWriter
	observer RunObserver
	log      *logger.Logger
	every    time.Duration
	now      func() time.Time

	state atomic.Int32
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithWriter archives every report through w.
func WithWriter(w ReportWriter) Option {
	return func(e *Evaluator) { e.writer = w }
}

// WithObserver reports pass outcomes and durations to o.
func WithObserver(o RunObserver) Option {
	return func(e *Evaluator) { e.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Evaluator) { e.log = l }
}

// WithProgressInterval sets the minimum time between progress log lines.
func WithProgressInterval(d time.Duration) Option {
	return func(e *Evaluator) { e.every = d }
}

// NewEvaluator creates an evaluator around model.
func NewEvaluator(model inference.Model, settings Settings, opts ...Option) (*Evaluator, error) {
	if model == nil {
		return nil, apperrors.ConfigurationError("evaluator requires a model")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	e := &Evaluator{
		model:    model,
		settings: settings,
		log:      logger.Discard(),
		every:    10 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// State returns the current lifecycle stage.
func (e *Evaluator) State() State {
	return State(e.state.Load())
}

// Settings returns the pass settings.
func (e *Evaluator) Settings() Settings {
	return e.settings
}

// Run evaluates every sample of ds in loader order and returns the report.
// The first inference or shape error aborts the pass without a report.
// A second Run while one is in flight is rejected.
func (e *Evaluator) Run(ctx context.Context, ds *dataset.Dataset) (*Report, error) {
	start := e.now()
	report, err := e.run(ctx, ds)
	if e.observer != nil {
		e.observer.ObserveRun(report, err, e.now().Sub(start))
	}
	return report, err
}

func (e *Evaluator) run(ctx context.Context, ds *dataset.Dataset) (*Report, error) {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, apperrors.New(apperrors.CodeConflict, "evaluation already in progress")
	}
	defer e.state.Store(int32(StateIdle))

	runID := uuid.NewString()
	log := e.log.WithRun(runID).WithDataset(string(ds.Kind), string(ds.Split))

	if err := ds.Loader.Reset(); err != nil {
		return nil, apperrors.InternalError("reset loader", err)
	}

	numObj := len(ds.Vocabulary.Objects)
	numRel := len(ds.Vocabulary.Relations)
	acc := NewAccumulator(e.settings)
	progress := rate.Sometimes{Interval: e.every}
	start := e.now()

	log.Info("Evaluation started",
		"dataset", ds.Kind,
		"split", ds.Split,
		"samples", ds.Loader.Len(),
		"cal_recall", e.settings.CalRecall,
	)

	for {
		sample, err := ds.Loader.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := sample.Validate(numObj, numRel); err != nil {
			return nil, err
		}

		out, err := e.model.Infer(ctx, sample)
		if err != nil {
			log.WithScan(sample.ScanID).WithError(err).Error("Inference failed, aborting pass")
			if apperrors.IsInferenceFailure(err) {
				return nil, err
			}
			return nil, apperrors.InferenceFailure(fmt.Sprintf("scan %s", sample.ScanID), err).WithScan(sample.ScanID)
		}
		if out == nil {
			return nil, apperrors.InferenceFailure(fmt.Sprintf("scan %s: model returned no output", sample.ScanID), nil).WithScan(sample.ScanID)
		}
		if err := out.CheckShape(sample, numObj, numRel); err != nil {
			log.WithScan(sample.ScanID).WithError(err).Error("Malformed model output, aborting pass")
			return nil, err
		}
		if err := acc.Add(sample, out); err != nil {
			return nil, apperrors.InternalError("accumulate sample", err)
		}

		progress.Do(func() {
			log.Info("Evaluation progress",
				"done", acc.Samples(),
				"total", ds.Loader.Len(),
				"rel_acc@1", acc.RelationAccuracy(1),
			)
		})
	}

	e.state.Store(int32(StateAggregating))
	report, err := acc.Finalize()
	if err != nil {
		return nil, apperrors.InternalError("finalize report", err)
	}
	report.RunID = runID
	report.Dataset = string(ds.Kind)
	report.Split = string(ds.Split)
	report.CreatedAt = e.now().UTC()

	for _, key := range report.Undefined() {
		log.Debug("Metric undefined", "key", key)
	}

	if e.writer != nil {
		if err := e.writer.Write(ctx, report); err != nil {
			log.WithError(err).Error("Failed to write report")
			if apperrors.HasCode(err, apperrors.CodePersistence) {
				return nil, err
			}
			return nil, apperrors.PersistenceError("write report", err)
		}
	}
	e.state.Store(int32(StateReported))

	log.Info("Evaluation completed",
		"samples", report.SampleCount,
		"edges", report.EdgeCount,
		PrimaryKey, report.Primary(),
		"duration", e.now().Sub(start).String(),
	)
	return report, nil
}
