package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gammazero/toposort"
)

// topoOrder sorts ids so that every dependency precedes its dependents.
// deps maps each id to the ids it depends on; dependencies outside the map
// are treated as already satisfied. Returns an error if a cycle is found.
func topoOrder(deps map[string][]string) ([]string, error) {
	ids := make([]string, 0, len(deps))
	for id := range deps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var edges []toposort.Edge
	for _, id := range ids {
		inGraph := 0
		for _, depID := range deps[id] {
			if _, ok := deps[depID]; !ok {
				continue
			}
			// Edge (depID, id) means depID must come before id
			edges = append(edges, toposort.Edge{depID, id})
			inGraph++
		}
		if inGraph == 0 {
			edges = append(edges, toposort.Edge{nil, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	// Tasks that only sit on a cycle never reach the sorted output
	if len(order) != len(deps) {
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		missing := []string{}
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return nil, fmt.Errorf("dependency cycle among %s", strings.Join(missing, ", "))
	}
	return order, nil
}

// validateBatch checks a batch submission against itself and the tasks the
// queue already knows, returning the specs' ids in dependency order.
func validateBatch(specs []TaskSpec, known func(id string) bool) ([]string, error) {
	deps := make(map[string][]string, len(specs))
	for _, s := range specs {
		if _, dup := deps[s.ID]; dup || known(s.ID) {
			return nil, fmt.Errorf("task %q: %w", s.ID, ErrDuplicateTask)
		}
		deps[s.ID] = s.Dependencies
	}

	for _, s := range specs {
		for _, depID := range s.Dependencies {
			if depID == s.ID {
				return nil, fmt.Errorf("task %q depends on itself", s.ID)
			}
			if _, inBatch := deps[depID]; !inBatch && !known(depID) {
				return nil, fmt.Errorf("task %q depends on non-existent task %q: %w", s.ID, depID, ErrTaskNotFound)
			}
		}
	}

	return topoOrder(deps)
}
