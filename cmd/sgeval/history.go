package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/scenegraph/sgeval/internal/dataset"
	"github.com/scenegraph/sgeval/internal/evaluation"
	"github.com/scenegraph/sgeval/internal/persistence"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [metric]",
		Short: "Show stored values of a metric across runs",
		Long: `List the values a metric took in past runs, as stored by the redis sink.
The metric defaults to ` + evaluation.PrimaryKey + `.

Examples:
  sgeval history
  sgeval history "Acc@1/rel_cls_acc" --since 168h --kind scannet
  sgeval history "Acc@1/rel_cls_acc" --delete`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}

	cmd.Flags().Duration("since", 30*24*time.Hour, "how far back to look")
	cmd.Flags().String("kind", "", "dataset kind (defaults to the configured one)")
	cmd.Flags().Bool("delete", false, "drop the stored history of the metric instead of listing it")

	return cmd
}

// historyKind resolves the dataset kind the way reports are stored.
func historyKind(configured string, cmd *cobra.Command) (dataset.Kind, error) {
	raw := configured
	if cmd.Flags().Changed("kind") {
		raw, _ = cmd.Flags().GetString("kind")
	}
	return dataset.ParseKind(raw)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	metric := evaluation.PrimaryKey
	if len(args) == 1 {
		metric = args[0]
	}
	since, _ := cmd.Flags().GetDuration("since")
	kind, err := historyKind(cfg.Dataset.Kind, cmd)
	if err != nil {
		return err
	}

	sink, err := persistence.NewRedisSink(cfg.Sink.RedisURL, cfg.Sink.RedisPrefix, 0)
	if err != nil {
		return err
	}
	defer sink.Close()

	if del, _ := cmd.Flags().GetBool("delete"); del {
		if err := sink.DeleteMetric(cmd.Context(), string(kind), metric); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s history for %s\n", metric, kind)
		return nil
	}

	points, err := sink.LoadHistory(cmd.Context(), string(kind), metric, time.Now().Add(-since))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "TIME\tRUN\t%s\n", metric)
	for _, p := range points {
		fmt.Fprintf(tw, "%s\t%s\t%.4f\n", p.Timestamp.Format(time.RFC3339), p.RunID, p.Value)
	}
	return tw.Flush()
}
