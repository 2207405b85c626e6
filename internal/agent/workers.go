package agent

import (
	"context"
	"fmt"

	"github.com/aristath/contentmesh/internal/content"
	"github.com/aristath/contentmesh/internal/events"
	"github.com/aristath/contentmesh/internal/registry"
)

// Worker ids.
const (
	NormalizerID        = "data-normalizer"
	QuestionGeneratorID = "question-generator"
	BlockGeneratorID    = "content-block-generator"
	TemplateProviderID  = "template-provider"
	PageAssemblerID     = "page-assembler"
)

// Capabilities advertised by the workers. Task types share the names with
// underscores.
const (
	CapNormalize = "normalize-product"
	CapQuestions = "generate-questions"
	CapBlocks    = "generate-blocks"
	CapTemplates = "page-templates"
	CapAssemble  = "assemble-page"

	TaskNormalize = "normalize_product"
	TaskQuestions = "generate_questions"
	TaskBlocks    = "generate_blocks"
	TaskTemplates = "get_templates"
	TaskAssemble  = "assemble_page"
)

// ProductJob is the payload of a generate_blocks task.
type ProductJob struct {
	Product    content.Product
	Comparison *content.Product
}

// NewNormalizer validates raw product records and publishes the normalized
// product. Runs without a comparison record are paired with the built-in
// comparison product.
func NewNormalizer(deps Deps, breaker BreakerSettings) (*Base, error) {
	var self *Base
	b, err := New(deps, Spec{
		ID:   NormalizerID,
		Type: "normalizer",
		Capabilities: []registry.Capability{{
			Name:        CapNormalize,
			Description: "Validate and normalize raw product records",
			InputTypes:  []string{"raw_record"},
			OutputTypes: []string{"product"},
		}},
		Topics:  []string{events.TopicRawReceived},
		Breaker: breaker,
	}, Behavior{
		OnMessage: func(_ context.Context, msg events.Message) error {
			raw, ok := msg.Payload.(events.RawReceived)
			if !ok {
				return nil
			}
			ready, err := normalizeRun(raw)
			if err != nil {
				return err
			}
			self.Publish(events.TopicProductReady, ready, events.WithCorrelationID(msg.CorrelationID))
			return nil
		},
		ProcessTask: func(_ context.Context, a Assignment) (any, error) {
			record, ok := a.Payload.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s expects a raw record, got %T", content.ErrInvalidInput, a.Type, a.Payload)
			}
			return content.Normalize(record)
		},
	})
	self = b
	return b, err
}

func normalizeRun(raw events.RawReceived) (events.ProductReady, error) {
	product, err := content.Normalize(raw.Record)
	if err != nil {
		return events.ProductReady{}, err
	}
	comparison := content.DefaultComparisonProduct()
	if raw.Comparison != nil {
		comparison, err = content.Normalize(raw.Comparison)
		if err != nil {
			return events.ProductReady{}, fmt.Errorf("comparison product: %w", err)
		}
	}
	return events.ProductReady{Product: product, Comparison: &comparison}, nil
}

// NewQuestionGenerator answers product_ready with a categorized question set.
// It also serves questions.requested through Reply.
func NewQuestionGenerator(deps Deps, breaker BreakerSettings) (*Base, error) {
	var self *Base
	b, err := New(deps, Spec{
		ID:   QuestionGeneratorID,
		Type: "generator",
		Capabilities: []registry.Capability{{
			Name:        CapQuestions,
			Description: "Generate categorized user questions",
			InputTypes:  []string{"product"},
			OutputTypes: []string{"questions"},
		}},
		Topics:  []string{events.TopicProductReady, events.TopicQuestionsRequested},
		Breaker: breaker,
	}, Behavior{
		OnMessage: func(_ context.Context, msg events.Message) error {
			switch p := msg.Payload.(type) {
			case events.ProductReady:
				self.Publish(events.TopicQuestionsGenerated, events.QuestionsGenerated{
					Product:   p.Product,
					Questions: content.GenerateQuestions(p.Product),
				}, events.WithCorrelationID(msg.CorrelationID))
			case events.QuestionsRequested:
				self.Bus().Reply(self.ID(), msg, events.TopicQuestionsGenerated, events.QuestionsGenerated{
					Product:   p.Product,
					Questions: content.GenerateQuestions(p.Product),
				})
			}
			return nil
		},
		ProcessTask: func(_ context.Context, a Assignment) (any, error) {
			p, ok := a.Payload.(content.Product)
			if !ok {
				return nil, fmt.Errorf("%w: %s expects a product, got %T", content.ErrInvalidInput, a.Type, a.Payload)
			}
			return content.GenerateQuestions(p), nil
		},
	})
	self = b
	return b, err
}

// NewBlockGenerator answers product_ready with the content blocks.
func NewBlockGenerator(deps Deps, breaker BreakerSettings) (*Base, error) {
	var self *Base
	b, err := New(deps, Spec{
		ID:   BlockGeneratorID,
		Type: "generator",
		Capabilities: []registry.Capability{{
			Name:        CapBlocks,
			Description: "Generate reusable content blocks",
			InputTypes:  []string{"product"},
			OutputTypes: []string{"blocks"},
		}},
		Topics:  []string{events.TopicProductReady, events.TopicBlocksRequested},
		Breaker: breaker,
	}, Behavior{
		OnMessage: func(_ context.Context, msg events.Message) error {
			switch p := msg.Payload.(type) {
			case events.ProductReady:
				self.Publish(events.TopicBlocksGenerated, events.BlocksGenerated{
					Product: p.Product,
					Blocks:  content.GenerateBlocks(p.Product, p.Comparison),
				}, events.WithCorrelationID(msg.CorrelationID))
			case events.BlocksRequested:
				self.Bus().Reply(self.ID(), msg, events.TopicBlocksGenerated, events.BlocksGenerated{
					Product: p.Product,
					Blocks:  content.GenerateBlocks(p.Product, p.Comparison),
				})
			}
			return nil
		},
		ProcessTask: func(_ context.Context, a Assignment) (any, error) {
			job, ok := a.Payload.(ProductJob)
			if !ok {
				return nil, fmt.Errorf("%w: %s expects a product job, got %T", content.ErrInvalidInput, a.Type, a.Payload)
			}
			return content.GenerateBlocks(job.Product, job.Comparison), nil
		},
	})
	self = b
	return b, err
}

// NewTemplateProvider serves page templates by request.
func NewTemplateProvider(deps Deps, breaker BreakerSettings) (*Base, error) {
	var self *Base
	b, err := New(deps, Spec{
		ID:   TemplateProviderID,
		Type: "provider",
		Capabilities: []registry.Capability{{
			Name:        CapTemplates,
			Description: "Provide page templates",
			OutputTypes: []string{"templates"},
		}},
		Topics:  []string{events.TopicTemplatesRequested},
		Breaker: breaker,
	}, Behavior{
		OnMessage: func(_ context.Context, msg events.Message) error {
			req, ok := msg.Payload.(events.TemplatesRequested)
			if !ok {
				return nil
			}
			tmpls, err := selectTemplates(req.Names)
			if err != nil {
				return err
			}
			self.Bus().Reply(self.ID(), msg, events.TopicTemplatesReady, events.TemplatesReady{Templates: tmpls})
			return nil
		},
		ProcessTask: func(_ context.Context, a Assignment) (any, error) {
			names, _ := a.Payload.([]string)
			return selectTemplates(names)
		},
	})
	self = b
	return b, err
}

func selectTemplates(names []string) ([]content.Template, error) {
	if len(names) == 0 {
		return content.Templates(), nil
	}
	out := make([]content.Template, 0, len(names))
	for _, name := range names {
		t, err := content.TemplateByName(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
