package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/contentmesh/internal/agent"
	"github.com/aristath/contentmesh/internal/config"
	"github.com/aristath/contentmesh/internal/events"
	"github.com/aristath/contentmesh/internal/registry"
	"github.com/aristath/contentmesh/internal/scheduler"
)

// Worker is the lifecycle every runtime member implements.
type Worker interface {
	ID() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Runtime owns one bus, registry and queue plus the worker set and the
// coordinator built on them.
type Runtime struct {
	Bus         *events.Bus
	Registry    *registry.Registry
	Queue       *scheduler.Queue
	Coordinator *Coordinator

	cfg     *config.Config
	workers []Worker // creation order; stopped in reverse
	logger  *zap.Logger
	cancel  context.CancelFunc
}

// NewRuntime builds every component from cfg. Nothing runs until Start.
func NewRuntime(cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := events.NewBus(events.Options{
		HistoryLimit:   cfg.Bus.HistoryLimit,
		RequestTimeout: cfg.Bus.RequestTimeout(),
		Logger:         logger,
	})
	reg := registry.New(bus, logger)
	queue := scheduler.NewQueue(bus, reg, scheduler.Options{
		MaxRetries: cfg.Queue.MaxRetries,
		Retry: scheduler.RetryPolicy{
			InitialInterval: cfg.Queue.RetryInitialInterval(),
			MaxInterval:     cfg.Queue.RetryMaxInterval(),
			Multiplier:      cfg.Queue.RetryMultiplier,
		},
		LeaseTimeout:     cfg.Queue.LeaseTimeout(),
		WaitPollInterval: cfg.Queue.WaitPollInterval(),
		WaitTimeout:      cfg.Queue.WaitTimeout(),
		Logger:           logger,
	})

	rt := &Runtime{
		Bus:      bus,
		Registry: reg,
		Queue:    queue,
		cfg:      cfg,
		logger:   logger.Named("runtime"),
	}
	deps := agent.Deps{Bus: bus, Registry: reg, Queue: queue, Logger: logger}

	constructors := []struct {
		id  string
		new func(agent.Deps, agent.BreakerSettings) (Worker, error)
	}{
		{agent.NormalizerID, func(d agent.Deps, s agent.BreakerSettings) (Worker, error) { return agent.NewNormalizer(d, s) }},
		{agent.QuestionGeneratorID, func(d agent.Deps, s agent.BreakerSettings) (Worker, error) { return agent.NewQuestionGenerator(d, s) }},
		{agent.BlockGeneratorID, func(d agent.Deps, s agent.BreakerSettings) (Worker, error) { return agent.NewBlockGenerator(d, s) }},
		{agent.TemplateProviderID, func(d agent.Deps, s agent.BreakerSettings) (Worker, error) { return agent.NewTemplateProvider(d, s) }},
		{agent.PageAssemblerID, func(d agent.Deps, s agent.BreakerSettings) (Worker, error) { return agent.NewPageAssembler(d, s) }},
	}
	for _, c := range constructors {
		w, err := c.new(deps, rt.breakerFor(c.id))
		if err != nil {
			bus.Close()
			return nil, fmt.Errorf("build runtime: %w", err)
		}
		rt.workers = append(rt.workers, w)
	}

	coord, err := NewCoordinator(deps)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("build runtime: %w", err)
	}
	rt.Coordinator = coord
	rt.workers = append(rt.workers, coord)
	return rt, nil
}

func (rt *Runtime) breakerFor(id string) agent.BreakerSettings {
	wc := rt.cfg.Workers[id]
	return agent.BreakerSettings{Threshold: wc.BreakerThreshold, Timeout: wc.BreakerTimeout()}
}

// Workers returns the ids of every runtime member in creation order.
func (rt *Runtime) Workers() []string {
	ids := make([]string, len(rt.workers))
	for i, w := range rt.workers {
		ids[i] = w.ID()
	}
	return ids
}

// Start starts the queue and then every worker concurrently. The queue's lease
// watchdog lives until Stop.
func (rt *Runtime) Start(ctx context.Context) error {
	qctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	rt.Queue.Start(qctx)

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range rt.workers {
		w := w
		g.Go(func() error {
			return w.Start(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}
	rt.logger.Info("runtime started", zap.Strings("workers", rt.Workers()))
	return nil
}

// Stop stops workers in reverse creation order, then the queue, then closes
// the bus. Errors are joined.
func (rt *Runtime) Stop(ctx context.Context) error {
	var errs []error
	for i := len(rt.workers) - 1; i >= 0; i-- {
		if err := rt.workers[i].Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.Queue.Stop()
	if rt.cancel != nil {
		rt.cancel()
	}
	rt.Bus.Close()
	rt.logger.Info("runtime stopped")
	return errors.Join(errs...)
}

// Run executes one pipeline run with the configured expected outputs.
func (rt *Runtime) Run(ctx context.Context, in Input) (Run, error) {
	return rt.Coordinator.RunPipeline(ctx, in, rt.cfg.Pipeline.ExpectedOutputs)
}

// RunAll executes several runs concurrently, at most limit at a time. Results
// follow the order of inputs; the first failure is returned after every run
// has finished.
func (rt *Runtime) RunAll(ctx context.Context, inputs []Input, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 1
	}
	runs := make([]Run, len(inputs))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			run, err := rt.Run(ctx, in)
			runs[i] = run
			return err
		})
	}
	return runs, g.Wait()
}
