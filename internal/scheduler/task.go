package scheduler

import (
	"errors"
	"time"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task transition")
	ErrTaskFailed        = errors.New("task failed")
	ErrTaskCancelled     = errors.New("task cancelled")
	ErrDuplicateTask     = errors.New("duplicate task id")
	ErrNotAssignee       = errors.New("task is not assigned to this worker")
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"     // Waiting for dependencies or a worker
	TaskAssigned   TaskStatus = "ASSIGNED"    // Handed to a worker
	TaskInProgress TaskStatus = "IN_PROGRESS" // Worker acknowledged and is running it
	TaskCompleted  TaskStatus = "COMPLETED"   // Finished successfully
	TaskFailed     TaskStatus = "FAILED"      // Retries exhausted
	TaskCancelled  TaskStatus = "CANCELLED"   // Withdrawn by a caller
)

// Terminal reports whether the task can no longer change state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Active reports whether a worker currently holds the task.
func (s TaskStatus) Active() bool {
	return s == TaskAssigned || s == TaskInProgress
}

// Priority orders the backlog. Higher runs first.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 5
	PriorityHigh     Priority = 10
	PriorityCritical Priority = 20
)

// Task represents a unit of work routed to a worker by capability.
type Task struct {
	ID                 string
	Type               string
	RequiredCapability string
	Payload            any
	Priority           Priority
	Status             TaskStatus
	AssignedTo         string
	CorrelationID      string
	CreatedAt          time.Time
	AssignedAt         *time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	NotBefore          time.Time // zero means no retry delay
	Result             any
	Error              string
	RetryCount         int
	MaxRetries         int
	Dependencies       []string
	Metadata           map[string]string
}

// SubmitOptions holds the optional fields of a submission. Zero values take
// the queue defaults.
type SubmitOptions struct {
	Priority      Priority
	Dependencies  []string
	MaxRetries    int
	Metadata      map[string]string
	CorrelationID string
}

// TaskSpec is one entry of a batch submission. ID is chosen by the caller so
// that entries can depend on each other; empty IDs are generated.
type TaskSpec struct {
	ID         string
	Type       string
	Capability string
	Payload    any
	SubmitOptions
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.Dependencies != nil {
		cp.Dependencies = append([]string(nil), task.Dependencies...)
	}
	if task.Metadata != nil {
		cp.Metadata = make(map[string]string, len(task.Metadata))
		for k, v := range task.Metadata {
			cp.Metadata[k] = v
		}
	}
	cp.AssignedAt = cloneTime(task.AssignedAt)
	cp.StartedAt = cloneTime(task.StartedAt)
	cp.CompletedAt = cloneTime(task.CompletedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
