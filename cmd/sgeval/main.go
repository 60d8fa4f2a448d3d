// Package main provides the sgeval binary: scene-graph prediction evaluation
// from the command line or over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scenegraph/sgeval/internal/config"
	"github.com/scenegraph/sgeval/internal/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sgeval",
		Short: "sgeval - scene graph prediction evaluation",
		Long: `sgeval scores scene-graph predictions (objects, predicates and
subject-predicate-object triplets) against ground truth and reports
top-K accuracy, recall with and without graph constraint, head/body/tail
predicate accuracy and zero-shot recall.

Run 'sgeval eval' to evaluate recorded predictions once.
Run 'sgeval serve' to expose evaluation over HTTP.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "config file path")
	root.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")

	root.AddCommand(
		evalCmd(),
		serveCmd(),
		historyCmd(),
		eventsCmd(),
		versionCmd(),
	)
	return root
}

// loadConfig reads the config file named by --config and applies --verbose.
func loadConfig(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, logger.New(cfg.Log.Level, cfg.Log.Format), nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sgeval %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
		},
	}
}
