// Package orchestrator drives pipeline runs across the worker set and owns
// the runtime that wires bus, registry, queue and workers together.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aristath/contentmesh/internal/agent"
	"github.com/aristath/contentmesh/internal/content"
	"github.com/aristath/contentmesh/internal/events"
	"github.com/aristath/contentmesh/internal/registry"
)

// CoordinatorID is the coordinator's worker id.
const CoordinatorID = "coordinator"

// ErrRunFailed is returned by RunPipeline when a run ends in failure.
var ErrRunFailed = errors.New("pipeline run failed")

// RunStatus is the state of a pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// Input seeds a run. Comparison is optional.
type Input struct {
	Record     map[string]any
	Comparison map[string]any
}

// Run is a snapshot of one pipeline run. Failed runs keep the outputs that
// arrived before the failure.
type Run struct {
	ID            string
	Status        RunStatus
	Expected      []string
	Outputs       map[string]content.Page
	Product       *content.Product
	QuestionCount int
	BlocksReady   bool
	Error         string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Duration returns how long the run took, or has taken so far.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// OutputNames returns the received page names, sorted.
func (r Run) OutputNames() []string {
	names := make([]string, 0, len(r.Outputs))
	for name := range r.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type runState struct {
	run  Run
	done chan struct{}
}

// Coordinator starts pipeline runs and tracks them to completion by watching
// the events workers publish. Every message of a run carries the run id as
// its correlation id.
type Coordinator struct {
	*agent.Base

	mu    sync.Mutex
	runs  map[string]*runState
	order []string
}

// NewCoordinator creates the coordinator worker.
func NewCoordinator(deps agent.Deps) (*Coordinator, error) {
	c := &Coordinator{runs: make(map[string]*runState)}
	b, err := agent.New(deps, agent.Spec{
		ID:   CoordinatorID,
		Type: "coordinator",
		Capabilities: []registry.Capability{{
			Name:        "coordinate-pipeline",
			Description: "Start pipeline runs and track their completion",
		}},
		Topics: []string{
			events.TopicProductReady,
			events.TopicQuestionsGenerated,
			events.TopicBlocksGenerated,
			events.TopicOutputProduced,
			events.TopicAgentError,
		},
	}, agent.Behavior{OnMessage: c.onMessage})
	if err != nil {
		return nil, err
	}
	c.Base = b
	return c, nil
}

// RunPipeline starts a run and blocks until it completes, fails or ctx ends.
// An empty expected set defaults to every known template.
func (c *Coordinator) RunPipeline(ctx context.Context, in Input, expected []string) (Run, error) {
	if len(expected) == 0 {
		expected = content.Names()
	}
	id := uuid.NewString()
	st := &runState{
		run: Run{
			ID:        id,
			Status:    RunRunning,
			Expected:  append([]string(nil), expected...),
			Outputs:   make(map[string]content.Page),
			StartedAt: time.Now(),
		},
		done: make(chan struct{}),
	}

	c.mu.Lock()
	c.runs[id] = st
	c.order = append(c.order, id)
	c.mu.Unlock()

	log := c.Logger().With(zap.String("run", id))
	log.Info("pipeline started", zap.Strings("expected", expected))

	c.Publish(events.TopicPipelineStart, events.PipelineStart{RunID: id, Expected: st.run.Expected},
		events.WithCorrelationID(id))
	c.Publish(events.TopicRawReceived, events.RawReceived{Record: in.Record, Comparison: in.Comparison},
		events.WithCorrelationID(id))

	select {
	case <-st.done:
	case <-ctx.Done():
		c.fail(id, fmt.Sprintf("run cancelled: %v", ctx.Err()))
	}

	run, _ := c.State(id)
	if run.Status == RunFailed {
		return run, fmt.Errorf("run %s: %s: %w", id, run.Error, ErrRunFailed)
	}
	return run, nil
}

// State returns a snapshot of a run.
func (c *Coordinator) State(runID string) (Run, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.runs[runID]
	if !ok {
		return Run{}, false
	}
	return cloneRun(st.run), true
}

// Runs returns snapshots of every run in start order.
func (c *Coordinator) Runs() []Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Run, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, cloneRun(c.runs[id].run))
	}
	return out
}

func (c *Coordinator) onMessage(_ context.Context, msg events.Message) error {
	switch p := msg.Payload.(type) {
	case events.ProductReady:
		c.update(msg.CorrelationID, func(r *Run) {
			product := p.Product
			r.Product = &product
		})
	case events.QuestionsGenerated:
		c.update(msg.CorrelationID, func(r *Run) { r.QuestionCount = len(p.Questions) })
	case events.BlocksGenerated:
		c.update(msg.CorrelationID, func(r *Run) { r.BlocksReady = true })
	case events.OutputProduced:
		c.output(msg.CorrelationID, p)
	case events.AgentError:
		reason := fmt.Sprintf("%s: %s", p.AgentID, p.Error)
		if c.known(msg.CorrelationID) {
			c.fail(msg.CorrelationID, reason)
			return nil
		}
		// Uncorrelated, or correlated to something other than a run, such as
		// a Bus.Request exchange
		for _, id := range c.running() {
			c.fail(id, reason)
		}
	}
	return nil
}

func (c *Coordinator) update(runID string, fn func(*Run)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.runs[runID]; ok && st.run.Status == RunRunning {
		fn(&st.run)
	}
}

func (c *Coordinator) output(runID string, out events.OutputProduced) {
	c.mu.Lock()
	st, ok := c.runs[runID]
	if !ok || st.run.Status != RunRunning {
		c.mu.Unlock()
		return
	}
	st.run.Outputs[out.Name] = out.Page
	for _, name := range st.run.Expected {
		if _, got := st.run.Outputs[name]; !got {
			c.mu.Unlock()
			return
		}
	}
	st.run.Status = RunCompleted
	st.run.FinishedAt = time.Now()
	done := events.PipelineComplete{
		RunID:    runID,
		Outputs:  st.run.OutputNames(),
		Duration: st.run.FinishedAt.Sub(st.run.StartedAt),
	}
	c.mu.Unlock()
	defer close(st.done)

	c.Logger().Info("pipeline complete",
		zap.String("run", runID),
		zap.Strings("outputs", done.Outputs),
		zap.Duration("duration", done.Duration))
	c.Publish(events.TopicPipelineComplete, done, events.WithCorrelationID(runID))
}

func (c *Coordinator) fail(runID, reason string) {
	c.mu.Lock()
	st, ok := c.runs[runID]
	if !ok || st.run.Status != RunRunning {
		c.mu.Unlock()
		return
	}
	st.run.Status = RunFailed
	st.run.Error = reason
	st.run.FinishedAt = time.Now()
	c.mu.Unlock()
	defer close(st.done)

	c.Logger().Error("pipeline failed", zap.String("run", runID), zap.String("error", reason))
	c.Publish(events.TopicPipelineError, events.PipelineError{RunID: runID, Error: reason},
		events.WithCorrelationID(runID))
}

func (c *Coordinator) known(runID string) bool {
	if runID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.runs[runID]
	return ok
}

func (c *Coordinator) running() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for _, id := range c.order {
		if c.runs[id].run.Status == RunRunning {
			ids = append(ids, id)
		}
	}
	return ids
}

func cloneRun(r Run) Run {
	r.Expected = append([]string(nil), r.Expected...)
	outputs := make(map[string]content.Page, len(r.Outputs))
	for k, v := range r.Outputs {
		outputs[k] = v
	}
	r.Outputs = outputs
	if r.Product != nil {
		p := *r.Product
		r.Product = &p
	}
	return r
}
