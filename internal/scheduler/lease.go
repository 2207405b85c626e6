package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aristath/contentmesh/internal/events"
	"github.com/aristath/contentmesh/internal/registry"
)

const leaseExpired = "lease expired"

func (q *Queue) watchLeases(ctx context.Context, stopped <-chan struct{}) {
	interval := q.opts.LeaseTimeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopped:
			return
		case <-ticker.C:
			q.ExpireLeases()
		}
	}
}

// ExpireLeases fails every task held longer than the lease timeout. The
// holding worker is marked ERROR so it receives no further work. Returns the
// ids of the expired tasks.
func (q *Queue) ExpireLeases() []string {
	if q.opts.LeaseTimeout <= 0 {
		return nil
	}

	q.mu.Lock()
	now := q.now()
	var expired []events.TaskCompleted
	for _, t := range q.tasks {
		if !t.Status.Active() || t.AssignedAt == nil {
			continue
		}
		if now.Sub(*t.AssignedAt) < q.opts.LeaseTimeout {
			continue
		}
		expired = append(expired, events.TaskCompleted{
			TaskID:  t.ID,
			AgentID: t.AssignedTo,
			Success: false,
			Error:   leaseExpired,
		})
	}
	q.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, outcome := range expired {
		q.logger.Warn("lease expired",
			zap.String("task", outcome.TaskID),
			zap.String("agent", outcome.AgentID),
			zap.Duration("lease", q.opts.LeaseTimeout))
		if err := q.registry.UpdateStatus(outcome.AgentID, registry.StatusError); err != nil {
			q.logger.Warn("mark worker errored", zap.String("agent", outcome.AgentID), zap.Error(err))
		}
		q.apply(outcome)
		ids = append(ids, outcome.TaskID)
	}
	return ids
}
