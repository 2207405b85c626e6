package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aristath/contentmesh/internal/events"
	"github.com/aristath/contentmesh/internal/registry"
)

type harness struct {
	bus   *events.Bus
	reg   *registry.Registry
	queue *Queue
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	bus := events.NewBus(events.Options{})
	reg := registry.New(bus, nil)
	q := NewQueue(bus, reg, opts)

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	t.Cleanup(func() {
		cancel()
		q.Stop()
		bus.Close()
	})
	return &harness{bus: bus, reg: reg, queue: q}
}

func (h *harness) worker(t *testing.T, id string, capabilities ...string) {
	t.Helper()
	caps := make([]registry.Capability, len(capabilities))
	for i, c := range capabilities {
		caps[i] = registry.Capability{Name: c}
	}
	if _, err := h.reg.Register(id, "test", caps, nil); err != nil {
		t.Fatalf("Register %s: %v", id, err)
	}
	if err := h.reg.UpdateStatus(id, registry.StatusReady); err != nil {
		t.Fatalf("UpdateStatus %s: %v", id, err)
	}
	h.idle(t)
}

// idle waits until every queued bus message has been handled.
func (h *harness) idle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.bus.WaitIdle(ctx); err != nil {
		t.Fatalf("bus did not go idle: %v", err)
	}
}

func (h *harness) task(t *testing.T, id string) *Task {
	t.Helper()
	task, ok := h.queue.Get(id)
	if !ok {
		t.Fatalf("task %s not found", id)
	}
	return task
}

// recordAssignments captures task.assigned messages in publish order.
func (h *harness) recordAssignments() func() []events.TaskAssigned {
	var mu sync.Mutex
	var got []events.TaskAssigned
	h.bus.SubscribeAll("recorder", func(msg events.Message) {
		if a, ok := msg.Payload.(events.TaskAssigned); ok {
			mu.Lock()
			got = append(got, a)
			mu.Unlock()
		}
	})
	return func() []events.TaskAssigned {
		mu.Lock()
		defer mu.Unlock()
		return append([]events.TaskAssigned(nil), got...)
	}
}

func TestSubmitDefaults(t *testing.T) {
	h := newHarness(t, Options{})

	task, err := h.queue.Submit("render", "cap", "payload", SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if task.Status != TaskPending {
		t.Errorf("expected PENDING, got %s", task.Status)
	}
	if task.Priority != PriorityNormal {
		t.Errorf("expected normal priority, got %d", task.Priority)
	}
	if task.MaxRetries != DefaultMaxRetries {
		t.Errorf("expected default max retries, got %d", task.MaxRetries)
	}
	if task.ID == "" {
		t.Error("expected generated id")
	}
}

func TestSubmitDoesNotAssign(t *testing.T) {
	h := newHarness(t, Options{})
	h.worker(t, "w1", "cap")

	task, _ := h.queue.Submit("render", "cap", nil, SubmitOptions{})
	h.idle(t)

	if got := h.task(t, task.ID).Status; got != TaskPending {
		t.Errorf("expected PENDING before ProcessQueue, got %s", got)
	}
	if n := h.queue.ProcessQueue(); n != 1 {
		t.Errorf("expected 1 assignment, got %d", n)
	}
}

func TestSubmitUnknownDependency(t *testing.T) {
	h := newHarness(t, Options{})

	_, err := h.queue.Submit("render", "cap", nil, SubmitOptions{Dependencies: []string{"ghost"}})
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

// TestPriorityOrdering verifies [LOW, HIGH, NORMAL] is assigned HIGH, NORMAL, LOW.
func TestPriorityOrdering(t *testing.T) {
	h := newHarness(t, Options{})
	for _, id := range []string{"w1", "w2", "w3"} {
		h.worker(t, id, "cap")
	}
	assignments := h.recordAssignments()

	low, _ := h.queue.Submit("low", "cap", nil, SubmitOptions{Priority: PriorityLow})
	high, _ := h.queue.Submit("high", "cap", nil, SubmitOptions{Priority: PriorityHigh})
	normal, _ := h.queue.Submit("normal", "cap", nil, SubmitOptions{Priority: PriorityNormal})

	if n := h.queue.ProcessQueue(); n != 3 {
		t.Fatalf("expected 3 assignments, got %d", n)
	}
	h.idle(t)

	got := assignments()
	want := []string{high.ID, normal.ID, low.ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d assignments, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].TaskID != want[i] {
			t.Errorf("assignment %d: expected %s, got %s (%s)", i, want[i], got[i].TaskID, got[i].TaskType)
		}
	}

	if a := h.task(t, high.ID).AssignedTo; a != "w1" {
		t.Errorf("expected high priority task on first registered worker, got %s", a)
	}
}

func TestFIFOAmongEqualPriority(t *testing.T) {
	h := newHarness(t, Options{})
	h.worker(t, "w1", "cap")

	first, _ := h.queue.Submit("first", "cap", nil, SubmitOptions{})
	h.queue.Submit("second", "cap", nil, SubmitOptions{})

	h.queue.ProcessQueue()
	if got := h.task(t, first.ID).Status; got != TaskAssigned {
		t.Errorf("expected first submitted task to be assigned, got %s", got)
	}
}

// TestDependencyGating verifies a dependent task waits for its dependency.
func TestDependencyGating(t *testing.T) {
	h := newHarness(t, Options{})
	h.worker(t, "w1", "cap")
	h.worker(t, "w2", "cap")

	dep, _ := h.queue.Submit("dep", "cap", nil, SubmitOptions{})
	child, _ := h.queue.Submit("child", "cap", nil, SubmitOptions{Dependencies: []string{dep.ID}})

	if n := h.queue.ProcessQueue(); n != 1 {
		t.Fatalf("expected only the dependency to be assigned, got %d", n)
	}
	if got := h.task(t, child.ID).Status; got != TaskPending {
		t.Fatalf("dependent task assigned early: %s", got)
	}

	if err := h.queue.StartTask(dep.ID); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	if err := h.queue.CompleteTask(dep.ID, "w1", "done"); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	h.idle(t)
	h.queue.ProcessQueue()

	if got := h.task(t, dep.ID); got.Status != TaskCompleted || got.Result != "done" || got.CompletedAt == nil {
		t.Errorf("dependency not recorded as completed: %+v", got)
	}
	if got := h.task(t, child.ID).Status; got != TaskAssigned {
		t.Errorf("expected dependent task to be assigned, got %s", got)
	}
}

// TestRetryExhaustion verifies maxRetries=2 failing 3 times ends FAILED with retryCount 2.
func TestRetryExhaustion(t *testing.T) {
	h := newHarness(t, Options{})
	h.worker(t, "w1", "cap")

	task, _ := h.queue.Submit("flaky", "cap", nil, SubmitOptions{MaxRetries: 2})

	for i := 0; i < 3; i++ {
		h.queue.ProcessQueue()
		_ = h.queue.FailTask(task.ID, "w1", errors.New("boom"))
		h.idle(t)
	}

	got := h.task(t, task.ID)
	if got.Status != TaskFailed {
		t.Errorf("expected FAILED, got %s", got.Status)
	}
	if got.RetryCount != 2 {
		t.Errorf("expected retryCount 2, got %d", got.RetryCount)
	}
	if got.Error != "boom" {
		t.Errorf("expected error to be recorded, got %q", got.Error)
	}
	if rec, _ := h.reg.Get("w1"); rec.Status != registry.StatusReady {
		t.Errorf("expected worker released to READY, got %s", rec.Status)
	}
}

func TestFailureRequeuesAndReassigns(t *testing.T) {
	h := newHarness(t, Options{})
	h.worker(t, "w1", "cap")

	task, _ := h.queue.Submit("flaky", "cap", nil, SubmitOptions{})
	h.queue.ProcessQueue()
	h.queue.FailTask(task.ID, "w1", errors.New("transient"))
	h.idle(t)

	got := h.task(t, task.ID)
	if got.RetryCount != 1 {
		t.Errorf("expected retryCount 1, got %d", got.RetryCount)
	}
	if got.Status != TaskAssigned {
		t.Errorf("expected retried task to be reassigned, got %s", got.Status)
	}
}

func TestRetryBackoffDelaysReassignment(t *testing.T) {
	h := newHarness(t, Options{Retry: RetryPolicy{InitialInterval: 300 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2}})
	h.worker(t, "w1", "cap")

	task, _ := h.queue.Submit("flaky", "cap", nil, SubmitOptions{})
	h.queue.ProcessQueue()
	h.queue.FailTask(task.ID, "w1", errors.New("transient"))
	h.idle(t)

	got := h.task(t, task.ID)
	if got.Status != TaskPending {
		t.Fatalf("expected task to wait out its backoff, got %s", got.Status)
	}
	if got.NotBefore.IsZero() {
		t.Fatal("expected NotBefore to be set")
	}

	deadline := time.After(2 * time.Second)
	for h.task(t, task.ID).Status != TaskAssigned {
		select {
		case <-deadline:
			t.Fatal("task was not reassigned after backoff")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2}

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.retry); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.retry, got, tt.want)
		}
	}

	if d := DefaultRetryPolicy().Delay(3); d != 0 {
		t.Errorf("expected default policy to have no delay, got %s", d)
	}
}

func TestStartTaskTransitions(t *testing.T) {
	h := newHarness(t, Options{})
	h.worker(t, "w1", "cap")

	task, _ := h.queue.Submit("x", "cap", nil, SubmitOptions{})
	if err := h.queue.StartTask(task.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for pending task, got %v", err)
	}
	if err := h.queue.StartTask("ghost"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}

	h.queue.ProcessQueue()
	if err := h.queue.StartTask(task.ID); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	if got := h.task(t, task.ID); got.Status != TaskInProgress || got.StartedAt == nil {
		t.Errorf("expected IN_PROGRESS with start time, got %+v", got)
	}
	if err := h.queue.CompleteTask("ghost", "w1", nil); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

// TestReleaseWorkerKeepsBusyWhileAssigned verifies a worker holding an active
// task is not freed.
func TestReleaseWorkerKeepsBusyWhileAssigned(t *testing.T) {
	h := newHarness(t, Options{})
	h.worker(t, "w1", "cap")

	task, _ := h.queue.Submit("x", "cap", nil, SubmitOptions{})
	h.queue.ProcessQueue()

	h.queue.ReleaseWorker("w1")
	if rec, _ := h.reg.Get("w1"); rec.Status != registry.StatusBusy {
		t.Fatalf("expected BUSY while task is assigned, got %s", rec.Status)
	}

	h.queue.CompleteTask(task.ID, "w1", nil)
	h.idle(t)
	if rec, _ := h.reg.Get("w1"); rec.Status != registry.StatusReady {
		t.Errorf("expected READY after completion, got %s", rec.Status)
	}
}

func TestStaleOutcomeIgnored(t *testing.T) {
	h := newHarness(t, Options{})
	h.worker(t, "w1", "cap")

	task, _ := h.queue.Submit("x", "cap", nil, SubmitOptions{})
	h.queue.ProcessQueue()

	h.bus.Publish("w2", events.TopicTaskCompleted, events.TaskCompleted{TaskID: task.ID, AgentID: "w2", Success: true})
	h.idle(t)

	if got := h.task(t, task.ID).Status; got != TaskAssigned {
		t.Errorf("outcome from a worker not holding the task was applied: %s", got)
	}
}

func TestCancel(t *testing.T) {
	h := newHarness(t, Options{})
	h.worker(t, "w1", "cap")

	task, _ := h.queue.Submit("x", "cap", nil, SubmitOptions{})
	if err := h.queue.Cancel(task.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if n := h.queue.ProcessQueue(); n != 0 {
		t.Errorf("cancelled task was assigned")
	}
	if err := h.queue.Cancel(task.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition cancelling twice, got %v", err)
	}
}

func TestSubmitAll(t *testing.T) {
	h := newHarness(t, Options{})

	tasks, err := h.queue.SubmitAll([]TaskSpec{
		{ID: "page", Type: "assemble", Capability: "cap", SubmitOptions: SubmitOptions{Dependencies: []string{"blocks"}}},
		{ID: "blocks", Type: "generate", Capability: "cap"},
	})
	if err != nil {
		t.Fatalf("SubmitAll: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != "page" || tasks[1].ID != "blocks" {
		t.Fatalf("expected tasks in input order, got %v", tasks)
	}

	order, err := h.queue.Order()
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if len(order) != 2 || order[0] != "blocks" || order[1] != "page" {
		t.Errorf("expected [blocks page], got %v", order)
	}
}

func TestSubmitAllRejectsInvalidBatches(t *testing.T) {
	tests := []struct {
		name  string
		specs []TaskSpec
	}{
		{
			name: "cycle",
			specs: []TaskSpec{
				{ID: "a", SubmitOptions: SubmitOptions{Dependencies: []string{"b"}}},
				{ID: "b", SubmitOptions: SubmitOptions{Dependencies: []string{"a"}}},
			},
		},
		{
			name:  "self dependency",
			specs: []TaskSpec{{ID: "a", SubmitOptions: SubmitOptions{Dependencies: []string{"a"}}}},
		},
		{
			name:  "unknown dependency",
			specs: []TaskSpec{{ID: "a", SubmitOptions: SubmitOptions{Dependencies: []string{"ghost"}}}},
		},
		{
			name:  "duplicate id",
			specs: []TaskSpec{{ID: "a"}, {ID: "a"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			if _, err := h.queue.SubmitAll(tt.specs); err == nil {
				t.Fatal("expected error")
			}
			if n := h.queue.Stats().Total; n != 0 {
				t.Errorf("rejected batch left %d tasks behind", n)
			}
		})
	}
}

// TestLeaseExpiry verifies a stranded task is failed and its worker marked ERROR.
func TestLeaseExpiry(t *testing.T) {
	h := newHarness(t, Options{LeaseTimeout: time.Minute})
	h.worker(t, "w1", "cap")
	h.worker(t, "w2", "cap")

	now := time.Now()
	var mu sync.Mutex
	h.queue.mu.Lock()
	h.queue.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	h.queue.mu.Unlock()

	task, _ := h.queue.Submit("x", "cap", nil, SubmitOptions{})
	h.queue.ProcessQueue()
	if expired := h.queue.ExpireLeases(); len(expired) != 0 {
		t.Fatalf("lease expired early: %v", expired)
	}

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	expired := h.queue.ExpireLeases()
	if len(expired) != 1 || expired[0] != task.ID {
		t.Fatalf("expected %s to expire, got %v", task.ID, expired)
	}
	h.idle(t)

	if rec, _ := h.reg.Get("w1"); rec.Status != registry.StatusError {
		t.Errorf("expected stranded worker marked ERROR, got %s", rec.Status)
	}
	got := h.task(t, task.ID)
	if got.RetryCount != 1 || got.Error != leaseExpired {
		t.Errorf("expected one lease failure recorded, got retry=%d error=%q", got.RetryCount, got.Error)
	}
	if got.AssignedTo != "w2" {
		t.Errorf("expected task reassigned to w2, got %q", got.AssignedTo)
	}
}

// TestLateReportFromExpiredHolderRejected verifies a worker whose lease
// expired cannot report for a task now held by another worker.
func TestLateReportFromExpiredHolderRejected(t *testing.T) {
	h := newHarness(t, Options{LeaseTimeout: time.Minute})
	h.worker(t, "w1", "cap")
	h.worker(t, "w2", "cap")

	now := time.Now()
	var mu sync.Mutex
	h.queue.mu.Lock()
	h.queue.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	h.queue.mu.Unlock()

	task, _ := h.queue.Submit("x", "cap", nil, SubmitOptions{})
	h.queue.ProcessQueue()
	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	h.queue.ExpireLeases()
	h.idle(t)
	if got := h.task(t, task.ID).AssignedTo; got != "w2" {
		t.Fatalf("expected task reassigned to w2, got %q", got)
	}

	if err := h.queue.CompleteTask(task.ID, "w1", "stale result from w1"); !errors.Is(err, ErrNotAssignee) {
		t.Fatalf("expected ErrNotAssignee, got %v", err)
	}
	if err := h.queue.FailTask(task.ID, "w1", errors.New("late")); !errors.Is(err, ErrNotAssignee) {
		t.Fatalf("expected ErrNotAssignee, got %v", err)
	}
	h.idle(t)

	got := h.task(t, task.ID)
	if got.Status != TaskAssigned || got.AssignedTo != "w2" || got.Result != nil {
		t.Errorf("late report changed the task: status=%s assignedTo=%s result=%v", got.Status, got.AssignedTo, got.Result)
	}
	if rec, _ := h.reg.Get("w2"); rec.Status != registry.StatusBusy {
		t.Errorf("expected w2 to stay BUSY, got %s", rec.Status)
	}

	if err := h.queue.CompleteTask(task.ID, "w2", "fresh"); err != nil {
		t.Fatalf("CompleteTask from holder: %v", err)
	}
	h.idle(t)
	if got := h.task(t, task.ID); got.Status != TaskCompleted || got.Result != "fresh" {
		t.Errorf("expected holder's result, got status=%s result=%v", got.Status, got.Result)
	}
}

func TestFailedTaskPublishesAgentError(t *testing.T) {
	h := newHarness(t, Options{})
	h.worker(t, "w1", "cap")

	var mu sync.Mutex
	var got []events.Message
	h.bus.Subscribe("listener", events.TopicAgentError, func(msg events.Message) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	})
	errs := func() []events.Message {
		mu.Lock()
		defer mu.Unlock()
		return append([]events.Message(nil), got...)
	}

	task, _ := h.queue.Submit("assemble", "cap", nil, SubmitOptions{MaxRetries: 2, CorrelationID: "run-1"})
	h.queue.ProcessQueue()
	h.queue.FailTask(task.ID, "w1", errors.New("boom"))
	h.idle(t)
	if n := len(errs()); n != 0 {
		t.Fatalf("retryable failure published %d agent.error messages", n)
	}

	h.queue.FailTask(task.ID, "w1", errors.New("boom"))
	h.idle(t)

	msgs := errs()
	if len(msgs) != 1 {
		t.Fatalf("expected one agent.error, got %d", len(msgs))
	}
	if msgs[0].CorrelationID != "run-1" || msgs[0].Source != Source {
		t.Errorf("unexpected envelope: source=%s correlation=%s", msgs[0].Source, msgs[0].CorrelationID)
	}
	payload := msgs[0].Payload.(events.AgentError)
	if payload.AgentID != "w1" || payload.Topic != "assemble" || !strings.Contains(payload.Error, "boom") {
		t.Errorf("unexpected payload %+v", payload)
	}
}

func TestRequeueTaskKeepsRetryBudget(t *testing.T) {
	h := newHarness(t, Options{})
	h.worker(t, "w1", "cap")

	task, _ := h.queue.Submit("x", "cap", nil, SubmitOptions{})
	h.queue.ProcessQueue()

	if err := h.queue.RequeueTask(task.ID, "w2", 0); !errors.Is(err, ErrNotAssignee) {
		t.Fatalf("expected ErrNotAssignee, got %v", err)
	}
	if err := h.queue.RequeueTask(task.ID, "w1", time.Minute); err != nil {
		t.Fatalf("RequeueTask: %v", err)
	}

	got := h.task(t, task.ID)
	if got.Status != TaskPending || got.RetryCount != 0 || got.NotBefore.IsZero() {
		t.Errorf("expected PENDING with delay and no retry spent, got status=%s retry=%d notBefore=%v",
			got.Status, got.RetryCount, got.NotBefore)
	}
	if rec, _ := h.reg.Get("w1"); rec.Status != registry.StatusReady {
		t.Errorf("expected worker released, got %s", rec.Status)
	}
}

// TestSubmitAllKeepsBatchOrder verifies equal priority tasks of one batch are
// assigned in submission order, not id order.
func TestSubmitAllKeepsBatchOrder(t *testing.T) {
	h := newHarness(t, Options{})
	for _, id := range []string{"w1", "w2", "w3"} {
		h.worker(t, id, "cap")
	}
	assignments := h.recordAssignments()

	if _, err := h.queue.SubmitAll([]TaskSpec{
		{ID: "c", Type: "third-by-name", Capability: "cap"},
		{ID: "a", Type: "first-by-name", Capability: "cap"},
		{ID: "b", Type: "second-by-name", Capability: "cap"},
	}); err != nil {
		t.Fatalf("SubmitAll: %v", err)
	}
	h.queue.ProcessQueue()
	h.idle(t)

	got := assignments()
	want := []string{"c", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("expected %d assignments, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].TaskID != want[i] {
			t.Errorf("assignment %d: expected %s, got %s", i, want[i], got[i].TaskID)
		}
	}
}

func TestBackoffRescanUsesOneTimerAndStops(t *testing.T) {
	h := newHarness(t, Options{Retry: RetryPolicy{InitialInterval: 150 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2}})
	h.worker(t, "w1", "cap")

	task, _ := h.queue.Submit("flaky", "cap", nil, SubmitOptions{})
	h.queue.ProcessQueue()
	h.queue.FailTask(task.ID, "w1", errors.New("transient"))
	h.idle(t)

	timer := func() *time.Timer {
		h.queue.mu.Lock()
		defer h.queue.mu.Unlock()
		return h.queue.retryTimer
	}
	first := timer()
	if first == nil {
		t.Fatal("expected a backoff timer")
	}
	for i := 0; i < 5; i++ {
		h.queue.ProcessQueue()
	}
	if timer() != first {
		t.Error("expected repeated scans to reuse the backoff timer")
	}

	h.queue.Stop()
	time.Sleep(300 * time.Millisecond)
	if got := h.task(t, task.ID).Status; got != TaskPending {
		t.Errorf("backoff rescan fired after Stop: %s", got)
	}
}

func TestWaitForTask(t *testing.T) {
	h := newHarness(t, Options{WaitPollInterval: 5 * time.Millisecond, WaitTimeout: 50 * time.Millisecond})
	h.worker(t, "w1", "cap")
	ctx := context.Background()

	done, _ := h.queue.Submit("x", "cap", nil, SubmitOptions{})
	h.queue.ProcessQueue()
	go func() {
		time.Sleep(10 * time.Millisecond)
		h.queue.CompleteTask(done.ID, "w1", 42)
	}()
	got, err := h.queue.WaitForTask(ctx, done.ID)
	if err != nil {
		t.Fatalf("WaitForTask: %v", err)
	}
	if got.Result != 42 {
		t.Errorf("expected result 42, got %v", got.Result)
	}
	h.idle(t)

	stuck, _ := h.queue.Submit("y", "other-cap", nil, SubmitOptions{})
	if _, err := h.queue.WaitForTask(ctx, stuck.ID); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	failing, _ := h.queue.Submit("z", "cap", nil, SubmitOptions{MaxRetries: 1})
	h.queue.ProcessQueue()
	h.queue.FailTask(failing.ID, "w1", errors.New("nope"))
	if _, err := h.queue.WaitForTask(ctx, failing.ID); !errors.Is(err, ErrTaskFailed) {
		t.Errorf("expected ErrTaskFailed, got %v", err)
	}

	if _, err := h.queue.WaitForTask(ctx, "ghost"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestStatsAndReset(t *testing.T) {
	h := newHarness(t, Options{})

	h.queue.Submit("a", "cap", nil, SubmitOptions{})
	h.queue.Submit("b", "cap", nil, SubmitOptions{})

	s := h.queue.Stats()
	if s.Total != 2 || s.Backlog != 2 || s.ByStatus[TaskPending] != 2 {
		t.Errorf("unexpected stats %+v", s)
	}

	h.queue.Reset()
	if n := len(h.queue.Tasks()); n != 0 {
		t.Errorf("expected empty queue after reset, got %d", n)
	}
}
