// Package agent implements the autonomous worker contract and the concrete
// pipeline workers built on it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/aristath/contentmesh/internal/events"
	"github.com/aristath/contentmesh/internal/registry"
	"github.com/aristath/contentmesh/internal/scheduler"
)

// ErrNoTaskHandler is returned for assignments to a worker without ProcessTask.
var ErrNoTaskHandler = errors.New("worker does not process tasks")

// Deps are the shared services every worker is wired to.
type Deps struct {
	Bus      *events.Bus
	Registry *registry.Registry
	Queue    *scheduler.Queue
	Logger   *zap.Logger
}

// Spec declares a worker's identity, capabilities and subscriptions.
type Spec struct {
	ID           string
	Type         string
	Capabilities []registry.Capability
	Topics       []string
	Metadata     map[string]string
	Breaker      BreakerSettings
}

// Assignment is a task handed to a worker.
type Assignment struct {
	TaskID        string
	Type          string
	Payload       any
	Metadata      map[string]string
	CorrelationID string
}

// Behavior supplies a worker's logic. Every field is optional.
type Behavior struct {
	OnStart     func(ctx context.Context) error
	OnStop      func(ctx context.Context) error
	OnMessage   func(ctx context.Context, msg events.Message) error
	ProcessTask func(ctx context.Context, a Assignment) (any, error)
}

// Base runs a Behavior: it registers the worker, wires its subscriptions,
// executes assignments and turns handler failures into agent.error events.
type Base struct {
	deps     Deps
	spec     Spec
	behavior Behavior
	breaker  *gobreaker.CircuitBreaker // nil when disabled
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
}

// New registers the worker and subscribes it to its declared topics plus
// task.assigned messages targeted at its id.
func New(deps Deps, spec Spec, behavior Behavior) (*Base, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	logger := deps.Logger.Named("agent").With(zap.String("agent", spec.ID))

	if _, err := deps.Registry.Register(spec.ID, spec.Type, spec.Capabilities, spec.Metadata); err != nil {
		return nil, fmt.Errorf("create agent %s: %w", spec.ID, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Base{
		deps:     deps,
		spec:     spec,
		behavior: behavior,
		breaker:  newBreaker(spec.ID, spec.Breaker, logger),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, topic := range spec.Topics {
		deps.Bus.Subscribe(spec.ID, topic, b.handleMessage)
	}
	deps.Bus.Subscribe(spec.ID, events.TopicTaskAssigned, b.handleAssignment)
	return b, nil
}

// ID returns the worker id.
func (b *Base) ID() string { return b.spec.ID }

// Bus returns the bus the worker publishes on.
func (b *Base) Bus() *events.Bus { return b.deps.Bus }

// Queue returns the task queue.
func (b *Base) Queue() *scheduler.Queue { return b.deps.Queue }

// Logger returns the worker's named logger.
func (b *Base) Logger() *zap.Logger { return b.logger }

// Status returns the worker's registry status.
func (b *Base) Status() registry.Status {
	rec, ok := b.deps.Registry.Get(b.spec.ID)
	if !ok {
		return registry.StatusOffline
	}
	return rec.Status
}

// Publish sends a message from this worker.
func (b *Base) Publish(topic string, payload events.Payload, opts ...events.PublishOption) events.Message {
	return b.deps.Bus.Publish(b.spec.ID, topic, payload, opts...)
}

// Start runs OnStart and marks the worker READY.
func (b *Base) Start(ctx context.Context) error {
	if b.behavior.OnStart != nil {
		if err := b.behavior.OnStart(ctx); err != nil {
			if serr := b.deps.Registry.UpdateStatus(b.spec.ID, registry.StatusError); serr != nil {
				b.logger.Debug("mark errored", zap.Error(serr))
			}
			return fmt.Errorf("start %s: %w", b.spec.ID, err)
		}
	}
	if err := b.deps.Registry.UpdateStatus(b.spec.ID, registry.StatusReady); err != nil {
		return fmt.Errorf("start %s: %w", b.spec.ID, err)
	}
	b.logger.Debug("started")
	return nil
}

// Stop runs OnStop, removes the worker's subscriptions and marks it OFFLINE.
// Safe to call multiple times.
func (b *Base) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.mu.Unlock()

	var stopErr error
	if b.behavior.OnStop != nil {
		stopErr = b.behavior.OnStop(ctx)
	}
	b.deps.Bus.UnsubscribeWorker(b.spec.ID)
	b.cancel()
	if err := b.deps.Registry.UpdateStatus(b.spec.ID, registry.StatusOffline); err != nil && stopErr == nil {
		stopErr = err
	}
	if stopErr != nil {
		return fmt.Errorf("stop %s: %w", b.spec.ID, stopErr)
	}
	b.logger.Debug("stopped")
	return nil
}

func (b *Base) heartbeat() {
	if err := b.deps.Registry.Heartbeat(b.spec.ID); err != nil {
		b.logger.Debug("heartbeat", zap.Error(err))
	}
}

func (b *Base) handleMessage(msg events.Message) {
	b.heartbeat()
	if b.behavior.OnMessage == nil {
		return
	}
	if err := b.safely(func() error { return b.behavior.OnMessage(b.ctx, msg) }); err != nil {
		b.ReportError(msg, err)
	}
}

// ReportError publishes an agent.error for a failure while handling msg.
func (b *Base) ReportError(msg events.Message, err error) {
	b.logger.Warn("message handler failed",
		zap.String("topic", msg.Topic),
		zap.String("correlation", msg.CorrelationID),
		zap.Error(err))
	b.Publish(events.TopicAgentError, events.AgentError{
		AgentID: b.spec.ID,
		Topic:   msg.Topic,
		Error:   err.Error(),
	}, events.WithCorrelationID(msg.CorrelationID))
}

func (b *Base) handleAssignment(msg events.Message) {
	b.heartbeat()
	assigned, ok := msg.Payload.(events.TaskAssigned)
	if !ok {
		return
	}
	a := Assignment{
		TaskID:        assigned.TaskID,
		Type:          assigned.TaskType,
		Payload:       assigned.Payload,
		Metadata:      assigned.Metadata,
		CorrelationID: msg.CorrelationID,
	}
	log := b.logger.With(zap.String("task", a.TaskID), zap.String("type", a.Type))

	// The queue marked this worker BUSY when it handed out the task
	defer b.deps.Queue.ReleaseWorker(b.spec.ID)

	if err := b.deps.Queue.StartTask(a.TaskID); err != nil {
		log.Warn("cannot start assigned task", zap.Error(err))
		return
	}

	result, err := b.execute(a)
	if breakerRefused(err) {
		// The task never ran, so it keeps its retry budget
		log.Debug("breaker refused task", zap.Error(err))
		if rerr := b.deps.Queue.RequeueTask(a.TaskID, b.spec.ID, b.spec.Breaker.withDefaults().Timeout); rerr != nil {
			log.Warn("requeue refused task", zap.Error(rerr))
		}
		return
	}
	if err != nil {
		log.Warn("task failed", zap.Error(err))
		if ferr := b.deps.Queue.FailTask(a.TaskID, b.spec.ID, err); ferr != nil {
			log.Warn("report failure", zap.Error(ferr))
		}
		return
	}
	if cerr := b.deps.Queue.CompleteTask(a.TaskID, b.spec.ID, result); cerr != nil {
		log.Warn("report completion", zap.Error(cerr))
	}
}

func (b *Base) execute(a Assignment) (any, error) {
	if b.breaker == nil {
		return b.process(a)
	}
	return b.breaker.Execute(func() (interface{}, error) {
		return b.process(a)
	})
}

func (b *Base) process(a Assignment) (result any, err error) {
	if b.behavior.ProcessTask == nil {
		return nil, fmt.Errorf("%s: %w", b.spec.ID, ErrNoTaskHandler)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", a.TaskID, r)
		}
	}()
	return b.behavior.ProcessTask(b.ctx, a)
}

func (b *Base) safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return fn()
}
