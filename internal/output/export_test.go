package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/contentmesh/internal/content"
	"github.com/aristath/contentmesh/internal/events"
	"github.com/aristath/contentmesh/internal/orchestrator"
	"github.com/aristath/contentmesh/internal/scheduler"
)

func sampleRun(t *testing.T) orchestrator.Run {
	t.Helper()
	product, err := content.Normalize(content.SampleProduct())
	require.NoError(t, err)

	started := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	return orchestrator.Run{
		ID:       "run-1",
		Status:   orchestrator.RunCompleted,
		Expected: []string{content.PageFAQ, content.PageProduct},
		Outputs: map[string]content.Page{
			content.PageFAQ:     {Type: content.PageFAQ, Title: "FAQ", Template: content.PageFAQ},
			content.PageProduct: {Type: content.PageProduct, Title: "Serum & Co", Template: content.PageProduct},
		},
		Product:    &product,
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
	}
}

func TestNewReportFiltersByRun(t *testing.T) {
	run := sampleRun(t)
	tasks := []*scheduler.Task{
		{ID: "a", CorrelationID: "run-1", Status: scheduler.TaskCompleted},
		{ID: "b", CorrelationID: "run-2", Status: scheduler.TaskCompleted},
	}
	history := []events.Message{
		{ID: "m1", Topic: events.TopicPipelineStart, CorrelationID: "run-1"},
		{ID: "m2", Topic: events.TopicAgentReady},
	}

	r := NewReport(run, tasks, history)
	require.Len(t, r.Tasks, 1)
	assert.Equal(t, "a", r.Tasks[0].ID)
	require.Len(t, r.History, 1)
	assert.Equal(t, "m1", r.History[0].ID)
}

func TestSummarize(t *testing.T) {
	run := sampleRun(t)
	r := Report{Run: run, Tasks: []*scheduler.Task{
		{ID: "a", Status: scheduler.TaskCompleted},
		{ID: "b", Status: scheduler.TaskCompleted},
	}}

	s := Summarize(r)
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, "GlowBoost Vitamin C Serum", s.Product)
	assert.True(t, s.IsComplete)
	assert.False(t, s.HasFailures)
	assert.Equal(t, 2, s.StatusBreakdown[string(scheduler.TaskCompleted)])
	assert.Equal(t, int64(1500), s.DurationMS)
	require.NotNil(t, s.CompletedAt)
	assert.Equal(t, []string{content.PageFAQ, content.PageProduct}, s.Outputs)
}

func TestSummarizeFailedRun(t *testing.T) {
	run := sampleRun(t)
	run.Status = orchestrator.RunFailed
	run.Error = "data-normalizer: missing product name"

	s := Summarize(Report{Run: run, Tasks: []*scheduler.Task{{ID: "a", Status: scheduler.TaskFailed}}})
	assert.False(t, s.IsComplete)
	assert.True(t, s.HasFailures)
	assert.Equal(t, 1, s.StatusBreakdown[string(scheduler.TaskFailed)])
	assert.Equal(t, run.Error, s.Error)
}

func TestExportWritesPagesAndSummary(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	run := sampleRun(t)
	r := Report{
		Run: run,
		History: []events.Message{
			{Topic: events.TopicPipelineStart, Source: "coordinator", Timestamp: run.StartedAt},
			{Topic: events.TopicTaskAssigned, Source: "task-queue", Target: "page-assembler", Timestamp: run.StartedAt},
		},
	}

	written, err := Export(dir, r)
	require.NoError(t, err)
	assert.Len(t, written, 3)
	assert.Equal(t, filepath.Join(dir, SummaryFile), written["summary"])

	data, err := os.ReadFile(written[content.PageProduct])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title": "Serum & Co"`, "HTML characters stay unescaped")

	var page content.Page
	require.NoError(t, json.Unmarshal(data, &page))
	assert.Equal(t, content.PageProduct, page.Template)

	raw, err := os.ReadFile(written["summary"])
	require.NoError(t, err)
	var doc struct {
		Pipeline     Summary    `json:"pipeline"`
		ExecutionLog []LogEntry `json:"execution_log"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "COMPLETED", doc.Pipeline.Status)
	require.Len(t, doc.ExecutionLog, 2)
	assert.Equal(t, "page-assembler", doc.ExecutionLog[1].Target)
}

func TestExportFullPages(t *testing.T) {
	product, err := content.Normalize(content.SampleProduct())
	require.NoError(t, err)
	other := content.DefaultComparisonProduct()
	in := content.Inputs{
		Product:   product,
		Questions: content.GenerateQuestions(product),
		Blocks:    content.GenerateBlocks(product, &other),
	}

	run := orchestrator.Run{ID: "run-2", Status: orchestrator.RunCompleted, Outputs: map[string]content.Page{}, StartedAt: time.Now()}
	for _, tmpl := range content.Templates() {
		page, err := content.Assemble(tmpl, in)
		require.NoError(t, err)
		run.Outputs[tmpl.Name] = page
	}

	written, err := Export(t.TempDir(), Report{Run: run})
	require.NoError(t, err)
	for _, name := range content.Names() {
		info, err := os.Stat(written[name])
		require.NoError(t, err, name)
		assert.Greater(t, info.Size(), int64(100), name)
	}
}
