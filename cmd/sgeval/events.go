package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/scenegraph/sgeval/internal/bus"
	"github.com/scenegraph/sgeval/internal/config"
	"github.com/scenegraph/sgeval/internal/pkg/logger"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List, follow or replay evaluation events",
		Long: `Print the completion and failure events recorded in the bus journal
(bus.journal in the config file).

With --follow, subscribe to the configured bus and print events as they
are published until interrupted. With --replay, republish the matching
journal entries onto the configured bus, e.g. to backfill a Kafka topic.

Examples:
  sgeval events -c sgeval.yaml
  sgeval events --run 0b6c... --payload
  sgeval events --topic ` + bus.TopicEvalFailed + ` --since 24h
  sgeval events --follow -c kafka.yaml
  sgeval events --replay --since 168h --limit 0 -c kafka.yaml`,
		RunE: runEvents,
	}

	cmd.Flags().String("journal", "", "journal file (defaults to bus.journal)")
	cmd.Flags().String("run", "", "only events of this run")
	cmd.Flags().String("topic", "", "only events on this topic")
	cmd.Flags().Duration("since", 0, "only events recorded within this window (0 = all)")
	cmd.Flags().Int("limit", 50, "most recent events to show or replay (0 = all)")
	cmd.Flags().Bool("payload", false, "print event payloads")
	cmd.Flags().Bool("follow", false, "print events published on the configured bus until interrupted")
	cmd.Flags().Bool("replay", false, "republish the matching journal events onto the configured bus")

	return cmd
}

func runEvents(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var q bus.JournalQuery
	q.RunID, _ = cmd.Flags().GetString("run")
	q.Topic, _ = cmd.Flags().GetString("topic")
	q.Limit, _ = cmd.Flags().GetInt("limit")
	if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
		q.Since = time.Now().Add(-since)
	}
	showPayload, _ := cmd.Flags().GetBool("payload")
	follow, _ := cmd.Flags().GetBool("follow")
	replay, _ := cmd.Flags().GetBool("replay")

	if follow && replay {
		return fmt.Errorf("--follow and --replay cannot be combined")
	}
	if follow {
		return runFollow(cmd, cfg, log, q, showPayload)
	}

	path := cfg.Bus.Journal
	if cmd.Flags().Changed("journal") {
		path, _ = cmd.Flags().GetString("journal")
	}
	if path == "" {
		return fmt.Errorf("no journal configured (set bus.journal or --journal)")
	}

	if replay {
		return runReplay(cmd, cfg, log, path, q)
	}

	entries, err := bus.ReadJournal(path, q)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tTOPIC\tRUN\tEVENT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Recorded.Format(time.RFC3339), e.Event.Topic, e.Event.RunID, e.Event.ID)
		if showPayload && len(e.Event.Payload) > 0 {
			fmt.Fprintf(tw, "\t%s\n", e.Event.Payload)
		}
	}
	return tw.Flush()
}

// liveBus opens the configured bus without its journal, so reading or
// replaying never appends to the file being read.
func liveBus(cfg *config.Config, log *logger.Logger) (bus.Bus, error) {
	bc := cfg.Bus
	bc.Journal = ""
	return bus.NewBus(bc, log)
}

func runFollow(cmd *cobra.Command, cfg *config.Config, log *logger.Logger, q bus.JournalQuery, showPayload bool) error {
	b, err := liveBus(cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	topics := []string{bus.TopicEvalCompleted, bus.TopicEvalFailed}
	if q.Topic != "" {
		topics = []string{q.Topic}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := subscribePrinter(b, topics, q.RunID, cmd.OutOrStdout(), showPayload); err != nil {
		return err
	}
	log.Info("Following events", "topics", topics, "bus", cfg.Bus.Type)
	<-ctx.Done()
	return nil
}

// subscribePrinter prints each event published on topics to w, one line per
// event. A non-empty runID filters to that run.
func subscribePrinter(b bus.Bus, topics []string, runID string, w io.Writer, showPayload bool) error {
	out := &lockedWriter{w: w}
	printEvent := func(_ context.Context, e bus.Event) error {
		if runID != "" && e.RunID != runID {
			return nil
		}
		line := fmt.Sprintf("%s  %s  %s  %s\n", e.Time.Format(time.RFC3339), e.Topic, e.RunID, e.ID)
		if showPayload && len(e.Payload) > 0 {
			line += fmt.Sprintf("  %s\n", e.Payload)
		}
		_, err := io.WriteString(out, line)
		return err
	}
	for _, topic := range topics {
		if err := b.Subscribe(topic, printEvent); err != nil {
			return err
		}
	}
	return nil
}

func runReplay(cmd *cobra.Command, cfg *config.Config, log *logger.Logger, path string, q bus.JournalQuery) error {
	journal, err := bus.OpenJournal(path)
	if err != nil {
		return err
	}
	defer journal.Close()

	target, err := liveBus(cfg, log)
	if err != nil {
		return err
	}
	defer target.Close()

	n, err := journal.Replay(cmd.Context(), target, q)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "replayed %d events from %s\n", n, path)
	return nil
}

// lockedWriter serializes writes from handlers running on separate
// subscriber goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
