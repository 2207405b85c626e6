// Package scheduler holds the task queue: a priority ordered backlog gated by
// dependencies and capability availability, with retry bookkeeping.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aristath/contentmesh/internal/events"
	"github.com/aristath/contentmesh/internal/registry"
)

// Source is the worker id the queue uses on the bus.
const Source = "task-queue"

// Default values applied by NewQueue.
const (
	DefaultMaxRetries       = 3
	DefaultWaitPollInterval = 100 * time.Millisecond
	DefaultWaitTimeout      = 30 * time.Second
)

// Options configures a Queue.
type Options struct {
	MaxRetries int
	Retry      RetryPolicy
	// LeaseTimeout fails tasks held by a worker longer than this. Zero
	// disables the watchdog.
	LeaseTimeout     time.Duration
	WaitPollInterval time.Duration
	WaitTimeout      time.Duration
	Logger           *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.WaitPollInterval <= 0 {
		o.WaitPollInterval = DefaultWaitPollInterval
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = DefaultWaitTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Stats summarizes the queue.
type Stats struct {
	Total    int
	Backlog  int
	ByStatus map[TaskStatus]int
}

// Queue is the sole mutator of task state. Workers report outcomes through
// CompleteTask and FailTask; the queue applies them from its own task.completed
// subscription.
type Queue struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	backlog []string // pending task ids, high to low priority, FIFO among equals

	bus      *events.Bus
	registry *registry.Registry
	opts     Options
	logger   *zap.Logger

	subs    []*events.Subscription
	stopped chan struct{}
	now     func() time.Time

	// retryTimer rescans the backlog when the earliest backoff ends.
	retryTimer *time.Timer
	retryAt    time.Time
	halted     bool
}

// NewQueue creates a queue assigning work to workers known to reg.
func NewQueue(bus *events.Bus, reg *registry.Registry, opts Options) *Queue {
	opts = opts.withDefaults()
	return &Queue{
		tasks:    make(map[string]*Task),
		bus:      bus,
		registry: reg,
		opts:     opts,
		logger:   opts.Logger.Named("queue"),
		now:      time.Now,
	}
}

// Start subscribes the queue to outcome and readiness events and starts the
// lease watchdog when configured. The watchdog stops with ctx.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.subs != nil {
		q.mu.Unlock()
		return
	}
	q.subs = []*events.Subscription{
		q.bus.Subscribe(Source, events.TopicTaskCompleted, q.handleCompleted),
		q.bus.Subscribe(Source, events.TopicAgentReady, func(events.Message) { q.ProcessQueue() }),
	}
	q.stopped = make(chan struct{})
	q.halted = false
	stopped := q.stopped
	q.mu.Unlock()

	if q.opts.LeaseTimeout > 0 {
		go q.watchLeases(ctx, stopped)
	}
}

// Stop removes the queue's subscriptions and stops the watchdog and the
// backoff timer.
func (q *Queue) Stop() {
	q.mu.Lock()
	subs := q.subs
	q.subs = nil
	if q.stopped != nil {
		close(q.stopped)
		q.stopped = nil
	}
	q.halted = true
	q.stopRetryTimerLocked()
	q.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}

// Submit adds a PENDING task to the backlog. It does not trigger assignment;
// call ProcessQueue.
func (q *Queue) Submit(taskType, capability string, payload any, opts SubmitOptions) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, depID := range opts.Dependencies {
		if _, ok := q.tasks[depID]; !ok {
			return nil, fmt.Errorf("submit %s: dependency %q: %w", taskType, depID, ErrTaskNotFound)
		}
	}

	t := q.newTaskLocked(TaskSpec{
		ID:            uuid.NewString(),
		Type:          taskType,
		Capability:    capability,
		Payload:       payload,
		SubmitOptions: opts,
	})
	return cloneTask(t), nil
}

// SubmitAll adds a batch of tasks whose dependencies may reference each other.
// The whole batch is rejected on unknown dependencies, duplicate ids or cycles.
// Tasks enter the backlog, and are returned, in the order of specs.
func (q *Queue) SubmitAll(specs []TaskSpec) ([]*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	specs = append([]TaskSpec(nil), specs...)
	for i := range specs {
		if specs[i].ID == "" {
			specs[i].ID = uuid.NewString()
		}
	}

	if _, err := validateBatch(specs, func(id string) bool {
		_, ok := q.tasks[id]
		return ok
	}); err != nil {
		return nil, fmt.Errorf("submit batch: %w", err)
	}

	// ProcessQueue gates on dependencies, so insertion keeps submission order
	out := make([]*Task, len(specs))
	for i, s := range specs {
		out[i] = cloneTask(q.newTaskLocked(s))
	}
	return out, nil
}

func (q *Queue) newTaskLocked(s TaskSpec) *Task {
	priority := s.Priority
	if priority == 0 {
		priority = PriorityNormal
	}
	maxRetries := s.MaxRetries
	if maxRetries <= 0 {
		maxRetries = q.opts.MaxRetries
	}

	t := &Task{
		ID:                 s.ID,
		Type:               s.Type,
		RequiredCapability: s.Capability,
		Payload:            s.Payload,
		Priority:           priority,
		Status:             TaskPending,
		CorrelationID:      s.CorrelationID,
		CreatedAt:          q.now(),
		MaxRetries:         maxRetries,
		Dependencies:       append([]string(nil), s.Dependencies...),
		Metadata:           map[string]string{},
	}
	for k, v := range s.Metadata {
		t.Metadata[k] = v
	}

	q.tasks[t.ID] = t
	q.enqueueLocked(t)

	q.logger.Debug("task submitted",
		zap.String("task", t.ID),
		zap.String("type", t.Type),
		zap.Int("priority", int(t.Priority)))
	return t
}

// enqueueLocked inserts t before the first backlog entry of lower priority.
func (q *Queue) enqueueLocked(t *Task) {
	pos := len(q.backlog)
	for i, id := range q.backlog {
		if q.tasks[id].Priority < t.Priority {
			pos = i
			break
		}
	}
	q.backlog = append(q.backlog, "")
	copy(q.backlog[pos+1:], q.backlog[pos:])
	q.backlog[pos] = t.ID
}

// ProcessQueue scans the backlog once and assigns every task whose
// dependencies are complete to the first READY worker advertising its
// capability. Returns the number of tasks assigned.
func (q *Queue) ProcessQueue() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	assigned := 0
	kept := q.backlog[:0]
	var retryAt time.Time

	for _, id := range q.backlog {
		t := q.tasks[id]
		if t == nil || t.Status != TaskPending {
			continue
		}
		if !q.dependenciesMetLocked(t) {
			kept = append(kept, id)
			continue
		}
		if !t.NotBefore.IsZero() && now.Before(t.NotBefore) {
			if retryAt.IsZero() || t.NotBefore.Before(retryAt) {
				retryAt = t.NotBefore
			}
			kept = append(kept, id)
			continue
		}

		worker, ok := q.registry.AcquireFirstReady(t.RequiredCapability)
		if !ok {
			kept = append(kept, id)
			continue
		}

		assignedAt := now
		t.Status = TaskAssigned
		t.AssignedTo = worker.ID
		t.AssignedAt = &assignedAt
		assigned++

		q.logger.Debug("task assigned",
			zap.String("task", t.ID),
			zap.String("type", t.Type),
			zap.String("agent", worker.ID))

		q.bus.Publish(Source, events.TopicTaskAssigned, events.TaskAssigned{
			TaskID:   t.ID,
			TaskType: t.Type,
			Payload:  t.Payload,
			Metadata: cloneTask(t).Metadata,
		}, events.WithTarget(worker.ID), events.WithCorrelationID(t.CorrelationID))
	}
	q.backlog = kept

	if !retryAt.IsZero() {
		q.armRetryLocked(retryAt, now)
	}
	return assigned
}

// armRetryLocked makes sure a rescan runs no later than at. One timer serves
// every delayed task.
func (q *Queue) armRetryLocked(at, now time.Time) {
	if q.halted {
		return
	}
	if !q.retryAt.IsZero() && q.retryAt.After(now) && !q.retryAt.After(at) {
		return
	}
	q.retryAt = at
	d := at.Sub(now)
	if q.retryTimer == nil {
		q.retryTimer = time.AfterFunc(d, q.retryFired)
		return
	}
	q.retryTimer.Reset(d)
}

func (q *Queue) retryFired() {
	q.mu.Lock()
	q.retryAt = time.Time{}
	q.mu.Unlock()
	q.ProcessQueue()
}

func (q *Queue) stopRetryTimerLocked() {
	if q.retryTimer != nil {
		q.retryTimer.Stop()
	}
	q.retryAt = time.Time{}
}

func (q *Queue) dependenciesMetLocked(t *Task) bool {
	for _, depID := range t.Dependencies {
		dep, ok := q.tasks[depID]
		if !ok || dep.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// StartTask moves an ASSIGNED task to IN_PROGRESS.
func (q *Queue) StartTask(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("start %q: %w", id, ErrTaskNotFound)
	}
	if t.Status != TaskAssigned {
		return fmt.Errorf("start %q from %s: %w", id, t.Status, ErrInvalidTransition)
	}
	started := q.now()
	t.Status = TaskInProgress
	t.StartedAt = &started
	return nil
}

// CompleteTask reports success on behalf of agentID, which must hold the
// task. The outcome is applied asynchronously when the queue receives its own
// task.completed message.
func (q *Queue) CompleteTask(id, agentID string, result any) error {
	return q.report(id, agentID, events.TaskCompleted{TaskID: id, Success: true, Result: result})
}

// FailTask reports a failure on behalf of agentID. The queue retries the task
// until MaxRetries.
func (q *Queue) FailTask(id, agentID string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return q.report(id, agentID, events.TaskCompleted{TaskID: id, Success: false, Error: msg})
}

func (q *Queue) report(id, agentID string, outcome events.TaskCompleted) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("report %q: %w", id, ErrTaskNotFound)
	}
	if !t.Status.Active() {
		status := t.Status
		q.mu.Unlock()
		return fmt.Errorf("report %q in %s: %w", id, status, ErrInvalidTransition)
	}
	if t.AssignedTo != agentID {
		holder := t.AssignedTo
		q.mu.Unlock()
		return fmt.Errorf("report %q from %s, held by %q: %w", id, agentID, holder, ErrNotAssignee)
	}
	outcome.AgentID = agentID
	correlationID := t.CorrelationID
	q.mu.Unlock()

	q.bus.Publish(outcome.AgentID, events.TopicTaskCompleted, outcome, events.WithCorrelationID(correlationID))
	return nil
}

func (q *Queue) handleCompleted(msg events.Message) {
	outcome, ok := msg.Payload.(events.TaskCompleted)
	if !ok {
		return
	}
	q.apply(outcome)
}

// apply records an outcome, frees the worker and rescans the backlog. Stale
// outcomes (task no longer held by the reporting worker) are ignored.
func (q *Queue) apply(outcome events.TaskCompleted) {
	q.mu.Lock()
	t, ok := q.tasks[outcome.TaskID]
	if !ok || !t.Status.Active() || t.AssignedTo != outcome.AgentID {
		q.mu.Unlock()
		q.logger.Debug("ignoring stale outcome", zap.String("task", outcome.TaskID), zap.String("agent", outcome.AgentID))
		return
	}

	worker := t.AssignedTo
	now := q.now()
	var failed *events.AgentError
	if outcome.Success {
		t.Status = TaskCompleted
		t.Result = outcome.Result
		t.CompletedAt = &now
		q.logger.Debug("task completed", zap.String("task", t.ID), zap.String("agent", worker))
	} else {
		t.RetryCount++
		t.Error = outcome.Error
		if t.RetryCount >= t.MaxRetries {
			t.Status = TaskFailed
			t.CompletedAt = &now
			q.logger.Warn("task failed",
				zap.String("task", t.ID),
				zap.Int("retries", t.RetryCount),
				zap.String("error", t.Error))
			failed = &events.AgentError{
				AgentID: worker,
				Topic:   t.Type,
				Error:   fmt.Sprintf("task %s failed after %d attempts: %s", t.ID, t.RetryCount, t.Error),
			}
		} else {
			t.Status = TaskPending
			t.AssignedTo = ""
			t.AssignedAt = nil
			t.StartedAt = nil
			t.NotBefore = time.Time{}
			if d := q.opts.Retry.Delay(t.RetryCount); d > 0 {
				t.NotBefore = now.Add(d)
			}
			q.enqueueLocked(t)
			q.logger.Info("task will be retried",
				zap.String("task", t.ID),
				zap.Int("retry", t.RetryCount),
				zap.Time("not_before", t.NotBefore),
				zap.String("error", t.Error))
		}
	}
	correlationID := t.CorrelationID
	q.mu.Unlock()

	// A run waiting on this task's output learns it will never arrive
	if failed != nil {
		q.bus.Publish(Source, events.TopicAgentError, *failed, events.WithCorrelationID(correlationID))
	}
	q.ReleaseWorker(worker)
	q.ProcessQueue()
}

// RequeueTask returns a task held by agentID to the backlog without spending
// a retry. It becomes assignable again after delay. Workers use this when they
// refuse work for reasons unrelated to the task itself.
func (q *Queue) RequeueTask(id, agentID string, delay time.Duration) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("requeue %q: %w", id, ErrTaskNotFound)
	}
	if !t.Status.Active() {
		status := t.Status
		q.mu.Unlock()
		return fmt.Errorf("requeue %q in %s: %w", id, status, ErrInvalidTransition)
	}
	if t.AssignedTo != agentID {
		holder := t.AssignedTo
		q.mu.Unlock()
		return fmt.Errorf("requeue %q from %s, held by %q: %w", id, agentID, holder, ErrNotAssignee)
	}
	t.Status = TaskPending
	t.AssignedTo = ""
	t.AssignedAt = nil
	t.StartedAt = nil
	t.NotBefore = time.Time{}
	if delay > 0 {
		t.NotBefore = q.now().Add(delay)
	}
	q.enqueueLocked(t)
	q.mu.Unlock()

	q.logger.Info("task requeued",
		zap.String("task", id),
		zap.String("agent", agentID),
		zap.Duration("delay", delay))
	q.ReleaseWorker(agentID)
	q.ProcessQueue()
	return nil
}

// ReleaseWorker marks a BUSY worker READY unless it still holds an active
// task. Both the worker and the queue call this after an assignment ends.
func (q *Queue) ReleaseWorker(agentID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.tasks {
		if t.AssignedTo == agentID && t.Status.Active() {
			return
		}
	}
	rec, ok := q.registry.Get(agentID)
	if !ok || rec.Status != registry.StatusBusy {
		return
	}
	if err := q.registry.UpdateStatus(agentID, registry.StatusReady); err != nil {
		q.logger.Warn("release worker", zap.String("agent", agentID), zap.Error(err))
	}
}

// Cancel withdraws a task that has not finished.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("cancel %q: %w", id, ErrTaskNotFound)
	}
	if t.Status.Terminal() {
		status := t.Status
		q.mu.Unlock()
		return fmt.Errorf("cancel %q in %s: %w", id, status, ErrInvalidTransition)
	}
	worker := t.AssignedTo
	now := q.now()
	t.Status = TaskCancelled
	t.CompletedAt = &now
	q.backlog = without(q.backlog, id)
	q.mu.Unlock()

	if worker != "" {
		q.ReleaseWorker(worker)
	}
	return nil
}

// Get returns a copy of a task.
func (q *Queue) Get(id string) (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return nil, false
	}
	return cloneTask(t), true
}

// Tasks returns copies of every task, oldest first.
func (q *Queue) Tasks() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, cloneTask(t))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Order returns every task id in dependency order.
func (q *Queue) Order() ([]string, error) {
	q.mu.Lock()
	deps := make(map[string][]string, len(q.tasks))
	for id, t := range q.tasks {
		deps[id] = t.Dependencies
	}
	q.mu.Unlock()
	return topoOrder(deps)
}

// Stats returns counts by status.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{
		Total:    len(q.tasks),
		Backlog:  len(q.backlog),
		ByStatus: make(map[TaskStatus]int),
	}
	for _, t := range q.tasks {
		s.ByStatus[t.Status]++
	}
	return s
}

// WaitForTask polls until the task is terminal. A FAILED or CANCELLED task is
// returned together with an error.
func (q *Queue) WaitForTask(ctx context.Context, id string) (*Task, error) {
	ctx, cancel := context.WithTimeout(ctx, q.opts.WaitTimeout)
	defer cancel()

	ticker := time.NewTicker(q.opts.WaitPollInterval)
	defer ticker.Stop()

	for {
		t, ok := q.Get(id)
		if !ok {
			return nil, fmt.Errorf("wait for %q: %w", id, ErrTaskNotFound)
		}
		switch t.Status {
		case TaskCompleted:
			return t, nil
		case TaskFailed:
			return t, fmt.Errorf("task %s: %s: %w", id, t.Error, ErrTaskFailed)
		case TaskCancelled:
			return t, fmt.Errorf("task %s: %w", id, ErrTaskCancelled)
		}

		select {
		case <-ctx.Done():
			return t, fmt.Errorf("wait for %q: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Reset drops every task and any pending backoff rescan.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tasks = make(map[string]*Task)
	q.backlog = nil
	q.stopRetryTimerLocked()
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
