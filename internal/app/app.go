// Package app assembles the evaluation pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scenegraph/sgeval/internal/bus"
	"github.com/scenegraph/sgeval/internal/config"
	"github.com/scenegraph/sgeval/internal/dataset"
	"github.com/scenegraph/sgeval/internal/evaluation"
	"github.com/scenegraph/sgeval/internal/inference"
	"github.com/scenegraph/sgeval/internal/metrics"
	"github.com/scenegraph/sgeval/internal/persistence"
	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
	"github.com/scenegraph/sgeval/internal/pkg/logger"
	"github.com/scenegraph/sgeval/internal/pkg/security"
)

// App owns the long-lived components shared by the CLI and the server.
type App struct {
	cfg      *config.Config
	log      *logger.Logger
	dataset  *dataset.Dataset
	settings evaluation.Settings
	bus      bus.Bus
	sinks    *persistence.FanOut
	metrics  *metrics.Metrics
}

// New opens the dataset and reference files, then the bus and report sinks.
// Every failure is reported before any sample is read.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Discard()
	}

	ds, err := dataset.Build(dataset.Options{
		Kind:              cfg.Dataset.Kind,
		Split:             cfg.Dataset.Split,
		Root:              cfg.Dataset.Root,
		ObjectVocabPath:   cfg.Dataset.ObjectVocab,
		RelationVocabPath: cfg.Dataset.RelationVocab,
	})
	if err != nil {
		return nil, err
	}

	settings, err := BuildSettings(cfg, ds.Vocabulary)
	if err != nil {
		return nil, err
	}

	b, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		return nil, err
	}

	sinks, err := persistence.NewFromConfig(cfg, b, log)
	if err != nil {
		b.Close()
		return nil, err
	}

	log.Info("Evaluation pipeline ready",
		"dataset", ds.Kind,
		"split", ds.Split,
		"samples", ds.Loader.Len(),
		"objects", len(ds.Vocabulary.Objects),
		"relations", len(ds.Vocabulary.Relations),
		"sinks", sinks.Len(),
		"zero_shot", settings.Cooccurrence != nil,
	)

	return &App{
		cfg:      cfg,
		log:      log,
		dataset:  ds,
		settings: settings,
		bus:      b,
		sinks:    sinks,
		metrics:  metrics.New(),
	}, nil
}

// BuildSettings turns the eval, bucket and reference-file configuration into
// evaluation settings resolved against vocab.
func BuildSettings(cfg *config.Config, vocab *dataset.Vocabulary) (evaluation.Settings, error) {
	s := evaluation.DefaultSettings()
	s.ObjectKs = cfg.Eval.ObjectKs
	s.RelationKs = cfg.Eval.RelationKs
	s.TripletKs = cfg.Eval.TripletKs
	s.RecallKs = cfg.Eval.RecallKs
	s.TripletBranch = cfg.Eval.TripletBranch
	s.CalRecall = cfg.Eval.CalRecall
	s.KeepArtifacts = cfg.Output.SaveArtifacts

	combination, err := evaluation.ParseCombination(cfg.Eval.Combination)
	if err != nil {
		return s, err
	}
	s.Combination = combination

	s.NoneClass = -1
	if name := cfg.Dataset.NoneClass; name != "" {
		idx, ok := vocab.RelationIndex(name)
		if !ok {
			return s, apperrors.ConfigurationError(fmt.Sprintf("none class %q is not in the relation vocabulary", name))
		}
		s.NoneClass = idx
	}

	switch cfg.Buckets.Mode {
	case "frequency":
		if len(cfg.Buckets.Counts) != len(vocab.Relations) {
			return s, apperrors.ConfigurationError(fmt.Sprintf("buckets.counts has %d entries for %d predicates",
				len(cfg.Buckets.Counts), len(vocab.Relations)))
		}
		s.Buckets = evaluation.BucketsByFrequency(cfg.Buckets.Counts, s.NoneClass)
	default:
		s.Buckets, err = evaluation.BucketsFromNames(vocab.Relations, cfg.Buckets.Head, cfg.Buckets.Body, cfg.Buckets.Tail)
		if err != nil {
			return s, err
		}
	}

	if path := cfg.Dataset.Cooccurrence; path != "" {
		table, err := evaluation.LoadCooccurrence(path, vocab)
		if err != nil {
			return s, err
		}
		s.Cooccurrence = table
	}

	return s, s.Validate()
}

// Settings returns the resolved evaluation settings.
func (a *App) Settings() evaluation.Settings {
	return a.settings
}

// Dataset returns the configured dataset.
func (a *App) Dataset() *dataset.Dataset {
	return a.dataset
}

// Metrics returns the process metric set.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Bus returns the event bus.
func (a *App) Bus() bus.Bus {
	return a.bus
}

// EvaluatorOptions are the options every evaluator built by the app shares.
func (a *App) EvaluatorOptions() []evaluation.Option {
	return []evaluation.Option{
		evaluation.WithWriter(a.sinks),
		evaluation.WithObserver(a.metrics),
		evaluation.WithLogger(a.log),
		evaluation.WithProgressInterval(time.Duration(a.cfg.Eval.ProgressInterval) * time.Second),
	}
}

// NewEvaluator wraps model in an evaluator that archives through the app sinks.
func (a *App) NewEvaluator(model inference.Model) (*evaluation.Evaluator, error) {
	return evaluation.NewEvaluator(model, a.settings, a.EvaluatorOptions()...)
}

// ReplayModel loads the recorded model outputs named in the configuration.
func (a *App) ReplayModel() (*inference.Replay, error) {
	if a.cfg.Dataset.Outputs == "" {
		return nil, apperrors.ConfigurationError("dataset.outputs is required to evaluate recorded predictions")
	}
	return inference.OpenReplay(a.cfg.Dataset.Outputs)
}

// Evaluate runs one full pass over the configured split with model. Failures
// are announced on the bus before being returned.
func (a *App) Evaluate(ctx context.Context, model inference.Model) (*evaluation.Report, error) {
	ev, err := a.NewEvaluator(model)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx, ev)
}

// Run runs ev over the configured split. Failed passes are announced on the
// bus; a run rejected because ev is busy is not a failed pass.
func (a *App) Run(ctx context.Context, ev *evaluation.Evaluator) (*evaluation.Report, error) {
	report, err := ev.Run(ctx, a.dataset)
	if err != nil {
		if !apperrors.HasCode(err, apperrors.CodeConflict) {
			a.announceFailure(ctx, err)
		}
		return nil, err
	}
	return report, nil
}

func (a *App) announceFailure(ctx context.Context, runErr error) {
	payload := map[string]string{
		"dataset": string(a.dataset.Kind),
		"split":   string(a.dataset.Split),
		"outcome": metrics.Outcome(runErr),
		"error":   security.SanitizeForLog(runErr.Error()),
	}
	event, err := bus.NewEvent(bus.TopicEvalFailed, "sgeval", "", payload)
	if err == nil {
		err = a.bus.Publish(ctx, event)
	}
	if err != nil {
		a.log.WithError(err).Warn("Failed to announce evaluation failure")
	}
}

// Close releases the sinks and the bus.
func (a *App) Close() error {
	return errors.Join(a.sinks.Close(), a.bus.Close())
}
