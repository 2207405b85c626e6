package events

import (
	"errors"
	"time"
)

// Topic constants. Topics are stable identifiers shared by every worker.
const (
	TopicAgentRegistered = "agent.registered"
	TopicAgentReady      = "agent.ready"
	TopicAgentError      = "agent.error"

	TopicRawReceived  = "data.raw_received"
	TopicProductReady = "data.product_ready"

	TopicQuestionsRequested = "questions.requested"
	TopicQuestionsGenerated = "questions.generated"
	TopicBlocksRequested    = "blocks.requested"
	TopicBlocksGenerated    = "blocks.generated"
	TopicTemplatesRequested = "templates.requested"
	TopicTemplatesReady     = "templates.ready"
	TopicOutputProduced     = "output.produced"

	TopicTaskAssigned  = "task.assigned"
	TopicTaskCompleted = "task.completed"

	TopicPipelineStart    = "pipeline.start"
	TopicPipelineComplete = "pipeline.complete"
	TopicPipelineError    = "pipeline.error"
)

// Topics lists the full topic vocabulary.
var Topics = []string{
	TopicAgentRegistered, TopicAgentReady, TopicAgentError,
	TopicRawReceived, TopicProductReady,
	TopicQuestionsRequested, TopicQuestionsGenerated,
	TopicBlocksRequested, TopicBlocksGenerated,
	TopicTemplatesRequested, TopicTemplatesReady,
	TopicOutputProduced,
	TopicTaskAssigned, TopicTaskCompleted,
	TopicPipelineStart, TopicPipelineComplete, TopicPipelineError,
}

// ErrRequestTimeout is returned by Request when no response arrives in time.
var ErrRequestTimeout = errors.New("request timed out")

// Payload is the closed set of message bodies. Each topic has exactly one
// payload type; see payloads.go.
type Payload interface {
	PayloadType() string
}

// Message is one published event. Messages are immutable once published.
type Message struct {
	ID            string
	Topic         string
	Source        string
	Target        string // empty for broadcast
	Payload       Payload
	Timestamp     time.Time
	CorrelationID string
	ReplyTo       string
}

// Broadcast reports whether the message has no target.
func (m Message) Broadcast() bool { return m.Target == "" }

// PublishOption sets optional message fields.
type PublishOption func(*Message)

// WithTarget directs the message at a single worker id.
func WithTarget(id string) PublishOption {
	return func(m *Message) { m.Target = id }
}

// WithCorrelationID links the message to a request or a pipeline run.
func WithCorrelationID(id string) PublishOption {
	return func(m *Message) { m.CorrelationID = id }
}

// WithReplyTo names the topic a response is expected on.
func WithReplyTo(topic string) PublishOption {
	return func(m *Message) { m.ReplyTo = topic }
}
