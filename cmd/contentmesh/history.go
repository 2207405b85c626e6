package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aristath/contentmesh/internal/persistence"
)

func historyCmd(g *globalOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show archived runs",
		Long: `Show runs archived with 'contentmesh run --db'.

Without arguments every run is listed, newest first. With a run id the
run's pages, tasks and message log are shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cfg, err := g.loadConfig()
				if err != nil {
					return err
				}
				dbPath = cfg.Store.DBPath
			}
			if dbPath == "" {
				return fmt.Errorf("no archive configured: pass --db or set store.db_path")
			}

			store, err := persistence.NewSQLiteStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				return showRun(cmd, store, args[0])
			}
			return listRuns(cmd, store)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite archive (default from config)")
	return cmd
}

func listRuns(cmd *cobra.Command, store persistence.Store) error {
	runs, err := store.ListRuns(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No archived runs")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(out, "%s  %-9s  %-32s  %s  %s\n",
			r.ID, r.Status, r.ProductName, humanize.Time(r.StartedAt), runDuration(r))
	}
	return nil
}

func showRun(cmd *cobra.Command, store persistence.Store, id string) error {
	ctx := cmd.Context()
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return fmt.Errorf("run %s: %w", id, err)
	}
	outputs, err := store.GetOutputs(ctx, id)
	if err != nil {
		return err
	}
	tasks, err := store.ListTasks(ctx, id)
	if err != nil {
		return err
	}
	history, err := store.GetHistory(ctx, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Product:  %s\n", run.ProductName)
	fmt.Fprintf(out, "Status:   %s\n", run.Status)
	if run.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", run.Error)
	}
	fmt.Fprintf(out, "Started:  %s (%s)\n", run.StartedAt.Format(time.RFC3339), humanize.Time(run.StartedAt))
	fmt.Fprintf(out, "Duration: %s\n", runDuration(run))

	fmt.Fprintf(out, "\nPages (%d):\n", len(outputs))
	for _, o := range outputs {
		fmt.Fprintf(out, "  %-20s %s\n", o.Name, humanize.Bytes(uint64(len(o.Page))))
	}

	fmt.Fprintf(out, "\nTasks (%d):\n", len(tasks))
	for _, t := range tasks {
		fmt.Fprintf(out, "  %s  %-16s %-10s retries=%d\n", t.ID, t.Type, t.Status, t.RetryCount)
	}

	writeLog(out, history)
	return nil
}

func writeLog(out io.Writer, history []persistence.MessageRecord) {
	fmt.Fprintf(out, "\nMessages (%d):\n", len(history))
	for _, m := range history {
		target := ""
		if m.Target != "" {
			target = " -> " + m.Target
		}
		fmt.Fprintf(out, "  %s  %-22s %s%s\n", m.Timestamp.Format("15:04:05.000"), m.Topic, m.Source, target)
	}
}

func runDuration(r persistence.RunRecord) string {
	if r.FinishedAt.IsZero() {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}
