package events

import (
	"time"

	"github.com/aristath/contentmesh/internal/content"
)

// AgentRegistered is published when a worker joins the registry.
type AgentRegistered struct {
	AgentID      string
	Type         string
	Capabilities []string
}

func (AgentRegistered) PayloadType() string { return TopicAgentRegistered }

// AgentReady is published whenever a worker transitions to READY.
type AgentReady struct {
	AgentID string
}

func (AgentReady) PayloadType() string { return TopicAgentReady }

// AgentError reports a worker failure outside task processing, or a task that
// ran out of retries.
type AgentError struct {
	AgentID string
	Topic   string // topic of the message being handled, if any
	Error   string
}

func (AgentError) PayloadType() string { return TopicAgentError }

// RawReceived seeds a pipeline run. Comparison is optional.
type RawReceived struct {
	Record     map[string]any
	Comparison map[string]any
}

func (RawReceived) PayloadType() string { return TopicRawReceived }

// ProductReady carries the normalized product.
type ProductReady struct {
	Product    content.Product
	Comparison *content.Product
}

func (ProductReady) PayloadType() string { return TopicProductReady }

// QuestionsRequested asks for questions about a product.
type QuestionsRequested struct {
	Product content.Product
}

func (QuestionsRequested) PayloadType() string { return TopicQuestionsRequested }

// QuestionsGenerated carries a generated question set.
type QuestionsGenerated struct {
	Product   content.Product
	Questions []content.Question
}

func (QuestionsGenerated) PayloadType() string { return TopicQuestionsGenerated }

// BlocksRequested asks for content blocks about a product.
type BlocksRequested struct {
	Product    content.Product
	Comparison *content.Product
}

func (BlocksRequested) PayloadType() string { return TopicBlocksRequested }

// BlocksGenerated carries the generated content blocks.
type BlocksGenerated struct {
	Product content.Product
	Blocks  content.Blocks
}

func (BlocksGenerated) PayloadType() string { return TopicBlocksGenerated }

// TemplatesRequested asks for page templates. Empty Names means all.
type TemplatesRequested struct {
	Names []string
}

func (TemplatesRequested) PayloadType() string { return TopicTemplatesRequested }

// TemplatesReady answers a TemplatesRequested.
type TemplatesReady struct {
	Templates []content.Template
}

func (TemplatesReady) PayloadType() string { return TopicTemplatesReady }

// OutputProduced announces one finished page.
type OutputProduced struct {
	Name string
	Page content.Page
}

func (OutputProduced) PayloadType() string { return TopicOutputProduced }

// TaskAssigned hands a task to the targeted worker.
type TaskAssigned struct {
	TaskID   string
	TaskType string
	Payload  any
	Metadata map[string]string
}

func (TaskAssigned) PayloadType() string { return TopicTaskAssigned }

// TaskCompleted reports the outcome of a task, successful or not.
type TaskCompleted struct {
	TaskID  string
	AgentID string
	Success bool
	Result  any
	Error   string
}

func (TaskCompleted) PayloadType() string { return TopicTaskCompleted }

// PipelineStart is published when a run begins.
type PipelineStart struct {
	RunID    string
	Expected []string
}

func (PipelineStart) PayloadType() string { return TopicPipelineStart }

// PipelineComplete is published when every expected output has arrived.
type PipelineComplete struct {
	RunID    string
	Outputs  []string
	Duration time.Duration
}

func (PipelineComplete) PayloadType() string { return TopicPipelineComplete }

// PipelineError is published when a run fails.
type PipelineError struct {
	RunID string
	Error string
}

func (PipelineError) PayloadType() string { return TopicPipelineError }
