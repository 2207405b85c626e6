package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aristath/contentmesh/internal/agent"
	"github.com/aristath/contentmesh/internal/config"
	"github.com/aristath/contentmesh/internal/content"
	"github.com/aristath/contentmesh/internal/events"
	"github.com/aristath/contentmesh/internal/registry"
	"github.com/aristath/contentmesh/internal/scheduler"
)

// coordinatorOnly builds a coordinator with no other workers so tests can
// play the workers' part by publishing directly.
func coordinatorOnly(t *testing.T) (*Coordinator, *events.Bus, <-chan string) {
	t.Helper()
	bus := events.NewBus(events.Options{})
	reg := registry.New(bus, nil)
	q := scheduler.NewQueue(bus, reg, scheduler.Options{})
	c, err := NewCoordinator(agent.Deps{Bus: bus, Registry: reg, Queue: q})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	started := make(chan string, 8)
	bus.Subscribe("test", events.TopicPipelineStart, func(msg events.Message) {
		started <- msg.Payload.(events.PipelineStart).RunID
	})
	t.Cleanup(func() {
		c.Stop(context.Background())
		bus.Close()
	})
	return c, bus, started
}

type outcome struct {
	run Run
	err error
}

func runAsync(c *Coordinator, ctx context.Context, expected []string) <-chan outcome {
	ch := make(chan outcome, 1)
	go func() {
		run, err := c.RunPipeline(ctx, Input{Record: content.SampleProduct()}, expected)
		ch <- outcome{run, err}
	}()
	return ch
}

func nextRun(t *testing.T, started <-chan string) string {
	t.Helper()
	select {
	case id := <-started:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline.start not observed")
		return ""
	}
}

func await(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(3 * time.Second):
		t.Fatal("run did not finish")
		return outcome{}
	}
}

func produce(bus *events.Bus, runID, name string) {
	bus.Publish("test", events.TopicOutputProduced, events.OutputProduced{
		Name: name,
		Page: content.Page{Type: name},
	}, events.WithCorrelationID(runID))
}

func TestRunCompletesWhenExpectedOutputsArrive(t *testing.T) {
	c, bus, started := coordinatorOnly(t)
	done := runAsync(c, context.Background(), []string{"a", "b"})
	id := nextRun(t, started)

	produce(bus, id, "a")
	produce(bus, "other-run", "b")
	time.Sleep(20 * time.Millisecond)
	if run, _ := c.State(id); run.Status != RunRunning {
		t.Fatalf("status after one output = %s, want RUNNING", run.Status)
	}

	produce(bus, id, "b")
	o := await(t, done)
	if o.err != nil {
		t.Fatalf("RunPipeline: %v", o.err)
	}
	if o.run.Status != RunCompleted {
		t.Fatalf("status = %s", o.run.Status)
	}
	if got := strings.Join(o.run.OutputNames(), ","); got != "a,b" {
		t.Fatalf("outputs = %s", got)
	}
	if o.run.FinishedAt.IsZero() || o.run.Duration() <= 0 {
		t.Fatalf("finish not recorded: %+v", o.run)
	}
}

func TestCorrelatedErrorFailsOnlyThatRun(t *testing.T) {
	c, bus, started := coordinatorOnly(t)
	first := runAsync(c, context.Background(), []string{"a", "b"})
	id1 := nextRun(t, started)
	second := runAsync(c, context.Background(), []string{"a"})
	id2 := nextRun(t, started)

	produce(bus, id1, "a")
	bus.Publish("data-normalizer", events.TopicAgentError, events.AgentError{
		AgentID: "data-normalizer",
		Error:   "missing product name",
	}, events.WithCorrelationID(id1))

	o := await(t, first)
	if !errors.Is(o.err, ErrRunFailed) {
		t.Fatalf("err = %v, want ErrRunFailed", o.err)
	}
	if o.run.Status != RunFailed || !strings.Contains(o.run.Error, "data-normalizer: missing product name") {
		t.Fatalf("run = %+v", o.run)
	}
	if _, ok := o.run.Outputs["a"]; !ok {
		t.Fatal("partial output lost on failure")
	}

	produce(bus, id1, "b")
	time.Sleep(20 * time.Millisecond)
	run, _ := c.State(id1)
	if run.Status != RunFailed {
		t.Fatalf("failed run moved to %s after its last output arrived", run.Status)
	}
	if _, ok := run.Outputs["b"]; ok {
		t.Fatal("output recorded on a failed run")
	}

	if run, _ := c.State(id2); run.Status != RunRunning {
		t.Fatalf("unrelated run status = %s", run.Status)
	}
	produce(bus, id2, "a")
	if o := await(t, second); o.err != nil {
		t.Fatalf("second run: %v", o.err)
	}
}

func TestUncorrelatedErrorFailsEveryRunningRun(t *testing.T) {
	c, bus, started := coordinatorOnly(t)
	first := runAsync(c, context.Background(), []string{"a"})
	nextRun(t, started)
	second := runAsync(c, context.Background(), []string{"a"})
	nextRun(t, started)

	bus.Publish("template-provider", events.TopicAgentError, events.AgentError{
		AgentID: "template-provider",
		Error:   "store offline",
	})

	for _, ch := range []<-chan outcome{first, second} {
		if o := await(t, ch); !errors.Is(o.err, ErrRunFailed) {
			t.Fatalf("err = %v, want ErrRunFailed", o.err)
		}
	}
}

// TestErrorFromRequestExchangeFailsRunningRun covers an agent.error whose
// correlation id belongs to a request/response exchange rather than a run.
func TestErrorFromRequestExchangeFailsRunningRun(t *testing.T) {
	c, bus, started := coordinatorOnly(t)
	done := runAsync(c, context.Background(), []string{"a", "b"})
	id := nextRun(t, started)

	bus.Publish(agent.TemplateProviderID, events.TopicAgentError, events.AgentError{
		AgentID: agent.TemplateProviderID,
		Topic:   events.TopicTemplatesRequested,
		Error:   "unknown template",
	}, events.WithCorrelationID("request-correlation-xyz"))

	o := await(t, done)
	if !errors.Is(o.err, ErrRunFailed) || !strings.Contains(o.run.Error, "unknown template") {
		t.Fatalf("err = %v run = %+v", o.err, o.run)
	}

	produce(bus, id, "a")
	produce(bus, id, "b")
	time.Sleep(20 * time.Millisecond)
	if run, _ := c.State(id); run.Status != RunFailed {
		t.Fatalf("status = %s after the outputs arrived, want FAILED", run.Status)
	}
}

// TestFailedPageTaskFailsRun verifies a page task that runs out of retries
// rejects the run instead of leaving it waiting for the page.
func TestFailedPageTaskFailsRun(t *testing.T) {
	bus := events.NewBus(events.Options{})
	reg := registry.New(bus, nil)
	q := scheduler.NewQueue(bus, reg, scheduler.Options{MaxRetries: 2})
	deps := agent.Deps{Bus: bus, Registry: reg, Queue: q}

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	c, err := NewCoordinator(deps)
	if err != nil {
		t.Fatal(err)
	}
	pa, err := agent.NewPageAssembler(deps, agent.BreakerSettings{})
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range []Worker{c, pa} {
		if err := w.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	started := make(chan string, 1)
	bus.Subscribe("test", events.TopicPipelineStart, func(msg events.Message) {
		started <- msg.Payload.(events.PipelineStart).RunID
	})
	t.Cleanup(func() {
		pa.Stop(context.Background())
		c.Stop(context.Background())
		cancel()
		q.Stop()
		bus.Close()
	})

	done := runAsync(c, context.Background(), []string{"brochure"})
	id := nextRun(t, started)

	task, err := q.Submit(agent.TaskAssemble, agent.CapAssemble, agent.PageJob{
		Template: content.Template{Name: "brochure"},
	}, scheduler.SubmitOptions{CorrelationID: id})
	if err != nil {
		t.Fatal(err)
	}
	q.ProcessQueue()

	o := await(t, done)
	if !errors.Is(o.err, ErrRunFailed) {
		t.Fatalf("err = %v, want ErrRunFailed", o.err)
	}
	if !strings.Contains(o.run.Error, agent.PageAssemblerID) || !strings.Contains(o.run.Error, "unknown template") {
		t.Fatalf("error = %q", o.run.Error)
	}
	if got, _ := q.Get(task.ID); got.Status != scheduler.TaskFailed || got.RetryCount != 2 {
		t.Fatalf("task status=%s retry=%d", got.Status, got.RetryCount)
	}
}

func TestContextCancellationFailsRun(t *testing.T) {
	c, _, started := coordinatorOnly(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(c, ctx, []string{"a"})
	id := nextRun(t, started)
	cancel()

	o := await(t, done)
	if !errors.Is(o.err, ErrRunFailed) || !strings.Contains(o.run.Error, "cancelled") {
		t.Fatalf("err = %v run = %+v", o.err, o.run)
	}
	if run, _ := c.State(id); run.Status != RunFailed {
		t.Fatalf("state = %s", run.Status)
	}
}

func TestLateEventsIgnoredAfterCompletion(t *testing.T) {
	c, bus, started := coordinatorOnly(t)
	done := runAsync(c, context.Background(), []string{"a"})
	id := nextRun(t, started)
	produce(bus, id, "a")
	await(t, done)

	bus.Publish("x", events.TopicAgentError, events.AgentError{AgentID: "x", Error: "late"},
		events.WithCorrelationID(id))
	produce(bus, id, "b")
	time.Sleep(20 * time.Millisecond)

	run, _ := c.State(id)
	if run.Status != RunCompleted || len(run.Outputs) != 1 {
		t.Fatalf("run changed after completion: %+v", run)
	}
	if len(c.Runs()) != 1 {
		t.Fatalf("runs = %d", len(c.Runs()))
	}
}

func startRuntime(t *testing.T, cfg *config.Config) *Runtime {
	t.Helper()
	rt, err := NewRuntime(cfg, nil)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { rt.Stop(context.Background()) })
	return rt
}

func TestRuntimeProducesAllPages(t *testing.T) {
	rt := startRuntime(t, config.DefaultConfig())

	want := []string{
		agent.NormalizerID, agent.QuestionGeneratorID, agent.BlockGeneratorID,
		agent.TemplateProviderID, agent.PageAssemblerID, CoordinatorID,
	}
	if got := strings.Join(rt.Workers(), ","); got != strings.Join(want, ",") {
		t.Fatalf("workers = %s", got)
	}
	for _, rec := range rt.Registry.List() {
		if rec.Status != registry.StatusReady {
			t.Fatalf("%s status = %s after Start", rec.ID, rec.Status)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := rt.Run(ctx, Input{Record: content.SampleProduct()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Join(run.OutputNames(), ","); got != "comparison_page,faq,product_page" {
		t.Fatalf("outputs = %s", got)
	}
	if run.Product == nil || run.QuestionCount == 0 || !run.BlocksReady {
		t.Fatalf("progress not tracked: %+v", run)
	}

	var completes int
	for _, msg := range rt.Bus.History(0) {
		if msg.Topic == events.TopicPipelineComplete && msg.CorrelationID == run.ID {
			completes++
		}
	}
	if completes != 1 {
		t.Fatalf("pipeline.complete messages = %d", completes)
	}
}

func TestRuntimeInvalidRecordFailsFast(t *testing.T) {
	rt := startRuntime(t, config.DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	run, err := rt.Run(ctx, Input{Record: map[string]any{"price": "₹699"}})
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("err = %v, want ErrRunFailed", err)
	}
	if !strings.Contains(run.Error, agent.NormalizerID) {
		t.Fatalf("error = %q", run.Error)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("failure was not short-circuited")
	}
}

func TestRuntimeRunAll(t *testing.T) {
	rt := startRuntime(t, config.DefaultConfig())

	second := content.SampleProduct()
	second["Product Name"] = "Glow Niacinamide Serum"
	inputs := []Input{{Record: content.SampleProduct()}, {Record: second}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	runs, err := rt.RunAll(ctx, inputs, 2)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(runs) != 2 || runs[0].ID == runs[1].ID {
		t.Fatalf("runs = %+v", runs)
	}
	for _, run := range runs {
		if run.Status != RunCompleted || len(run.Outputs) != 3 {
			t.Fatalf("run %s: status=%s outputs=%v", run.ID, run.Status, run.OutputNames())
		}
	}
	if runs[1].Product.Name != "Glow Niacinamide Serum" {
		t.Fatalf("second product = %q", runs[1].Product.Name)
	}
}

func TestRuntimeStopMarksWorkersOffline(t *testing.T) {
	rt, err := NewRuntime(config.DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := rt.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	for _, rec := range rt.Registry.List() {
		if rec.Status != registry.StatusOffline {
			t.Fatalf("%s status = %s after Stop", rec.ID, rec.Status)
		}
	}
}
