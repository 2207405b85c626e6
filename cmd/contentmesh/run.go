package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aristath/contentmesh/internal/config"
	"github.com/aristath/contentmesh/internal/content"
	"github.com/aristath/contentmesh/internal/orchestrator"
	"github.com/aristath/contentmesh/internal/output"
	"github.com/aristath/contentmesh/internal/persistence"
	"github.com/aristath/contentmesh/internal/tui"
)

// tuiLogFile receives log output while the TUI owns the terminal.
const tuiLogFile = "contentmesh.log"

type runOptions struct {
	products    []string
	compare     string
	outDir      string
	dbPath      string
	concurrency int
	tui         bool
}

func runCmd(g *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate pages for one or more products",
		Long: `Run the content pipeline once per product file.

Each product file holds one JSON object with the product fields. Without
--product the built-in sample product is used. Pages and an
execution_summary.json are written per run; with several products each run
gets its own subdirectory named after the run id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			opts.apply(cfg)
			if opts.tui {
				redirectConsoleLogs(&cfg.Log)
			}
			logger, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			inputs, err := loadInputs(opts.products, opts.compare)
			if err != nil {
				return err
			}

			if opts.tui {
				global, project, err := g.configPaths()
				if err != nil {
					return err
				}
				return runWithTUI(cmd.Context(), cfg, logger, inputs, global, project, cmd.OutOrStdout())
			}
			return runPipelines(cmd.Context(), cfg, logger, inputs, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringArrayVarP(&opts.products, "product", "p", nil, "Product JSON file (repeatable)")
	cmd.Flags().StringVarP(&opts.compare, "compare", "c", "", "Comparison product JSON file used for every run")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "Output directory (default from config)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite file to archive runs into")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Maximum concurrent runs (default from config)")
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "Show live worker activity")

	return cmd
}

// apply overlays command-line flags onto the loaded config.
func (o *runOptions) apply(cfg *config.Config) {
	if o.outDir != "" {
		cfg.Pipeline.OutputDir = o.outDir
	}
	if o.dbPath != "" {
		cfg.Store.DBPath = o.dbPath
	}
	if o.concurrency > 0 {
		cfg.Pipeline.Concurrency = o.concurrency
	}
}

// redirectConsoleLogs moves terminal log outputs to a file.
func redirectConsoleLogs(c *config.LogConfig) {
	outputs := make([]string, 0, len(c.Outputs))
	for _, out := range c.Outputs {
		if out == "stderr" || out == "stdout" {
			out = tuiLogFile
		}
		if !slices.Contains(outputs, out) {
			outputs = append(outputs, out)
		}
	}
	c.Outputs = outputs
}

// loadInputs reads one input per product file, or the sample product when no
// file is given.
func loadInputs(products []string, comparePath string) ([]orchestrator.Input, error) {
	var comparison map[string]any
	if comparePath != "" {
		rec, err := readRecord(comparePath)
		if err != nil {
			return nil, err
		}
		comparison = rec
	}

	if len(products) == 0 {
		return []orchestrator.Input{{Record: content.SampleProduct(), Comparison: comparison}}, nil
	}

	inputs := make([]orchestrator.Input, 0, len(products))
	for _, path := range products {
		rec, err := readRecord(path)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, orchestrator.Input{Record: rec, Comparison: comparison})
	}
	return inputs, nil
}

func readRecord(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading product file: %w", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing product file %s: %w", path, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("product file %s: expected a JSON object", path)
	}
	return rec, nil
}

// runPipelines builds a runtime, runs every input and writes the results.
func runPipelines(ctx context.Context, cfg *config.Config, logger *zap.Logger, inputs []orchestrator.Input, stdout io.Writer) error {
	rt, err := orchestrator.NewRuntime(cfg, logger)
	if err != nil {
		return err
	}
	return runOn(ctx, rt, cfg, logger, inputs, nil, stdout)
}

// runOn starts rt, runs every input, writes and archives the results and
// stops rt. onDone, when set, is called once all runs have finished.
func runOn(ctx context.Context, rt *orchestrator.Runtime, cfg *config.Config, logger *zap.Logger, inputs []orchestrator.Input, onDone func(error), stdout io.Writer) error {
	if err := rt.Start(ctx); err != nil {
		rt.Stop(context.Background()) //nolint:errcheck
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Stop(stopCtx); err != nil {
			logger.Warn("runtime stop", zap.Error(err))
		}
	}()

	runs, runErr := rt.RunAll(ctx, inputs, cfg.Pipeline.Concurrency)
	if onDone != nil {
		onDone(runErr)
	}

	// Results of cancelled runs are still written
	actx := context.WithoutCancel(ctx)
	var store persistence.Store
	if cfg.Store.DBPath != "" {
		s, err := persistence.NewSQLiteStore(actx, cfg.Store.DBPath)
		if err != nil {
			return errors.Join(runErr, err)
		}
		defer s.Close()
		store = s
	}

	order, err := rt.Queue.Order()
	if err != nil {
		return errors.Join(runErr, err)
	}
	tasks := rt.Queue.Tasks()
	history := rt.Bus.History(0)

	var errs []error
	for _, run := range runs {
		report := output.NewReport(run, tasks, history)
		dir := cfg.Pipeline.OutputDir
		if len(runs) > 1 {
			dir = filepath.Join(dir, run.ID)
		}
		written, err := output.Export(dir, report)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		printRun(stdout, run, written)

		if store != nil {
			if err := archive(actx, store, report, order); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(append([]error{runErr}, errs...)...)
}

// runWithTUI runs the pipelines while the TUI shows worker activity. The
// summary is printed once the TUI exits.
func runWithTUI(ctx context.Context, cfg *config.Config, logger *zap.Logger, inputs []orchestrator.Input, globalPath, projectPath string, stdout io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rt, err := orchestrator.NewRuntime(cfg, logger)
	if err != nil {
		return err
	}
	// Tap the bus before Start so registrations show up
	model, stopTap := tui.New(rt.Bus, cfg, globalPath, projectPath)
	p := tea.NewProgram(model, tea.WithAltScreen())

	var report strings.Builder
	result := make(chan error, 1)
	go func() {
		result <- runOn(ctx, rt, cfg, logger, inputs, func(err error) { p.Send(tui.DoneMsg{Err: err}) }, &report)
	}()

	_, tuiErr := p.Run()
	stopTap()
	// Quitting the TUI early cancels the remaining runs
	cancel()
	runErr := <-result

	if tuiErr != nil {
		return errors.Join(tuiErr, runErr)
	}
	fmt.Fprint(stdout, report.String())
	return runErr
}

func printRun(w io.Writer, run orchestrator.Run, written map[string]string) {
	name := run.ID
	if run.Product != nil {
		name = run.Product.Name
	}
	switch run.Status {
	case orchestrator.RunCompleted:
		fmt.Fprintf(w, "✓ %s completed in %s\n", name, run.Duration().Round(time.Millisecond))
	default:
		fmt.Fprintf(w, "✗ %s %s: %s\n", name, run.Status, run.Error)
	}

	keys := make([]string, 0, len(written))
	for k := range written {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		path := written[k]
		size := "?"
		if info, err := os.Stat(path); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		fmt.Fprintf(w, "  %-40s %s\n", path, size)
	}
}

// archive stores a run with its pages, tasks and message log. Tasks are saved
// in dependency order so every dependency row exists first.
func archive(ctx context.Context, store persistence.Store, r output.Report, order []string) error {
	rec := persistence.RunRecord{
		ID:         r.Run.ID,
		Status:     string(r.Run.Status),
		Expected:   r.Run.Expected,
		Error:      r.Run.Error,
		StartedAt:  r.Run.StartedAt,
		FinishedAt: r.Run.FinishedAt,
	}
	if r.Run.Product != nil {
		rec.ProductName = r.Run.Product.Name
	}
	if err := store.SaveRun(ctx, rec); err != nil {
		return fmt.Errorf("archiving run %s: %w", r.Run.ID, err)
	}

	for _, name := range r.Run.OutputNames() {
		if err := store.SaveOutput(ctx, r.Run.ID, name, r.Run.Outputs[name]); err != nil {
			return fmt.Errorf("archiving run %s: %w", r.Run.ID, err)
		}
	}

	byID := make(map[string]int, len(r.Tasks))
	for i, t := range r.Tasks {
		byID[t.ID] = i
	}
	for _, id := range order {
		i, ok := byID[id]
		if !ok {
			continue
		}
		if err := store.SaveTask(ctx, r.Run.ID, r.Tasks[i]); err != nil {
			return fmt.Errorf("archiving run %s: %w", r.Run.ID, err)
		}
	}

	if err := store.SaveMessages(ctx, r.Run.ID, r.History); err != nil {
		return fmt.Errorf("archiving run %s: %w", r.Run.ID, err)
	}
	return nil
}
