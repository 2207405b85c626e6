// Package output writes a finished run to disk as JSON documents.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/contentmesh/internal/events"
	"github.com/aristath/contentmesh/internal/orchestrator"
	"github.com/aristath/contentmesh/internal/scheduler"
)

// SummaryFile is the name of the run summary document.
const SummaryFile = "execution_summary.json"

// Report is everything exported for one run.
type Report struct {
	Run     orchestrator.Run
	Tasks   []*scheduler.Task // queue tasks of the run
	History []events.Message  // message log of the run
}

// NewReport collects the tasks and messages correlated with run.
func NewReport(run orchestrator.Run, tasks []*scheduler.Task, history []events.Message) Report {
	r := Report{Run: run}
	for _, t := range tasks {
		if t.CorrelationID == run.ID {
			r.Tasks = append(r.Tasks, t)
		}
	}
	for _, msg := range history {
		if msg.CorrelationID == run.ID {
			r.History = append(r.History, msg)
		}
	}
	return r
}

// Summary is the pipeline section of execution_summary.json.
type Summary struct {
	RunID           string         `json:"run_id"`
	Product         string         `json:"product,omitempty"`
	Status          string         `json:"status"`
	Expected        []string       `json:"expected_outputs"`
	Outputs         []string       `json:"outputs"`
	TotalTasks      int            `json:"total_tasks"`
	StatusBreakdown map[string]int `json:"status_breakdown"`
	IsComplete      bool           `json:"is_complete"`
	HasFailures     bool           `json:"has_failures"`
	Error           string         `json:"error,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	DurationMS      int64          `json:"duration_ms"`
}

// LogEntry is one line of the execution log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Topic     string    `json:"topic"`
	Source    string    `json:"source"`
	Target    string    `json:"target,omitempty"`
}

type summaryDoc struct {
	Pipeline     Summary    `json:"pipeline"`
	ExecutionLog []LogEntry `json:"execution_log"`
}

// Summarize builds the pipeline summary of a report.
func Summarize(r Report) Summary {
	s := Summary{
		RunID:           r.Run.ID,
		Status:          string(r.Run.Status),
		Expected:        r.Run.Expected,
		Outputs:         r.Run.OutputNames(),
		TotalTasks:      len(r.Tasks),
		StatusBreakdown: make(map[string]int),
		IsComplete:      r.Run.Status == orchestrator.RunCompleted,
		Error:           r.Run.Error,
		StartedAt:       r.Run.StartedAt,
		DurationMS:      r.Run.Duration().Milliseconds(),
	}
	if r.Run.Product != nil {
		s.Product = r.Run.Product.Name
	}
	if !r.Run.FinishedAt.IsZero() {
		finished := r.Run.FinishedAt
		s.CompletedAt = &finished
	}
	for _, t := range r.Tasks {
		s.StatusBreakdown[string(t.Status)]++
		if t.Status == scheduler.TaskFailed {
			s.HasFailures = true
		}
	}
	if r.Run.Status == orchestrator.RunFailed {
		s.HasFailures = true
	}
	return s
}

// Export writes one <page>.json per output plus execution_summary.json into
// dir, creating it if needed. Returns the written paths keyed by page name,
// with the summary under "summary".
func Export(dir string, r Report) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory %s: %w", dir, err)
	}

	written := make(map[string]string, len(r.Run.Outputs)+1)
	for _, name := range r.Run.OutputNames() {
		path := filepath.Join(dir, name+".json")
		if err := writeJSON(path, r.Run.Outputs[name]); err != nil {
			return written, err
		}
		written[name] = path
	}

	doc := summaryDoc{Pipeline: Summarize(r), ExecutionLog: make([]LogEntry, 0, len(r.History))}
	for _, msg := range r.History {
		doc.ExecutionLog = append(doc.ExecutionLog, LogEntry{
			Timestamp: msg.Timestamp,
			Topic:     msg.Topic,
			Source:    msg.Source,
			Target:    msg.Target,
		})
	}
	path := filepath.Join(dir, SummaryFile)
	if err := writeJSON(path, doc); err != nil {
		return written, err
	}
	written["summary"] = path
	return written, nil
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
