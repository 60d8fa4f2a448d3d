package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scenegraph/sgeval/internal/app"
	"github.com/scenegraph/sgeval/internal/config"
	"github.com/scenegraph/sgeval/internal/evaluation"
	"github.com/scenegraph/sgeval/internal/pkg/logger"
)

func evalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate recorded predictions over one dataset split",
		Long: `Run one full evaluation pass over the configured dataset split using
recorded model outputs (one JSON object per scan), print the report and
archive it through the configured sinks.

Examples:
  sgeval eval --kind ws --split validation_scans --outputs preds.jsonl
  sgeval eval -c sgeval.yaml --cal-recall --save-artifacts
  sgeval eval -c sgeval.yaml --format json`,
		RunE: runEval,
	}

	cmd.Flags().String("kind", "", "dataset kind (ws, transformer, origin, scannet)")
	cmd.Flags().String("split", "", "split (train_scans, validation_scans, test_scans)")
	cmd.Flags().String("root", "", "dataset root directory")
	cmd.Flags().String("outputs", "", "recorded model outputs (JSONL)")
	cmd.Flags().String("cooccurrence", "", "training triplet table for zero-shot metrics")
	cmd.Flags().Bool("cal-recall", false, "also compute recall with and without graph constraint")
	cmd.Flags().Bool("save-artifacts", false, "write per-edge rank and score arrays")
	cmd.Flags().String("output-dir", "", "results directory")
	cmd.Flags().String("format", "text", "report format on stdout (text, json)")

	return cmd
}

// applyEvalFlags overrides config values with flags the user actually set.
func applyEvalFlags(cmd *cobra.Command, cfg *config.Config) error {
	stringFlags := []struct {
		flag   string
		target *string
	}{
		{"kind", &cfg.Dataset.Kind},
		{"split", &cfg.Dataset.Split},
		{"root", &cfg.Dataset.Root},
		{"outputs", &cfg.Dataset.Outputs},
		{"cooccurrence", &cfg.Dataset.Cooccurrence},
		{"output-dir", &cfg.Output.Dir},
	}
	for _, s := range stringFlags {
		if cmd.Flags().Changed(s.flag) {
			*s.target, _ = cmd.Flags().GetString(s.flag)
		}
	}
	if cmd.Flags().Changed("cal-recall") {
		cfg.Eval.CalRecall, _ = cmd.Flags().GetBool("cal-recall")
	}
	if cmd.Flags().Changed("save-artifacts") {
		cfg.Output.SaveArtifacts, _ = cmd.Flags().GetBool("save-artifacts")
	}
	return cfg.Validate()
}

func runEval(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyEvalFlags(cmd, cfg); err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown format %q (must be text or json)", format)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := evaluate(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("Evaluation failed")
		return err
	}
	return printReport(cmd.OutOrStdout(), report, format)
}

func evaluate(ctx context.Context, cfg *config.Config, log *logger.Logger) (*evaluation.Report, error) {
	a, err := app.New(cfg, log)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	model, err := a.ReplayModel()
	if err != nil {
		return nil, err
	}
	return a.Evaluate(ctx, model)
}

func printReport(w io.Writer, report *evaluation.Report, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return report.WriteText(w)
}
