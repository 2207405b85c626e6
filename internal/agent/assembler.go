package agent

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/aristath/contentmesh/internal/content"
	"github.com/aristath/contentmesh/internal/events"
	"github.com/aristath/contentmesh/internal/registry"
	"github.com/aristath/contentmesh/internal/scheduler"
)

// PageJob is the payload of an assemble_page task.
type PageJob struct {
	Template content.Template
	Inputs   content.Inputs
}

// join collects the generated inputs of one run.
type join struct {
	product   content.Product
	questions []content.Question
	blocks    *content.Blocks
}

func (j *join) complete() bool {
	return j.questions != nil && j.blocks != nil
}

// Assembler waits for both questions and blocks of a run, fetches the page
// templates and queues one assemble_page task per template. It processes
// those tasks itself and announces each page with output.produced.
type Assembler struct {
	*Base

	mu    sync.Mutex
	joins map[string]*join
}

// NewPageAssembler creates the page assembler.
func NewPageAssembler(deps Deps, breaker BreakerSettings) (*Assembler, error) {
	a := &Assembler{joins: make(map[string]*join)}
	b, err := New(deps, Spec{
		ID:   PageAssemblerID,
		Type: "assembler",
		Capabilities: []registry.Capability{{
			Name:        CapAssemble,
			Description: "Render pages from templates, questions and blocks",
			InputTypes:  []string{"template", "questions", "blocks"},
			OutputTypes: []string{"page"},
		}},
		Topics:  []string{events.TopicQuestionsGenerated, events.TopicBlocksGenerated},
		Breaker: breaker,
	}, Behavior{
		OnMessage:   a.onMessage,
		ProcessTask: a.processTask,
	})
	if err != nil {
		return nil, err
	}
	a.Base = b
	return a, nil
}

// Pending returns the number of runs still waiting for inputs.
func (a *Assembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.joins)
}

func (a *Assembler) onMessage(ctx context.Context, msg events.Message) error {
	// Replies to other requesters are not ours to join
	if !msg.Broadcast() {
		return nil
	}

	a.mu.Lock()
	j, ok := a.joins[msg.CorrelationID]
	if !ok {
		j = &join{}
		a.joins[msg.CorrelationID] = j
	}
	switch p := msg.Payload.(type) {
	case events.QuestionsGenerated:
		j.product = p.Product
		j.questions = append([]content.Question{}, p.Questions...)
	case events.BlocksGenerated:
		j.product = p.Product
		blocks := p.Blocks
		j.blocks = &blocks
	}
	if !j.complete() {
		a.mu.Unlock()
		return nil
	}
	delete(a.joins, msg.CorrelationID)
	a.mu.Unlock()

	return a.schedule(ctx, msg.CorrelationID, content.Inputs{
		Product:   j.product,
		Questions: j.questions,
		Blocks:    *j.blocks,
	})
}

func (a *Assembler) schedule(ctx context.Context, correlationID string, in content.Inputs) error {
	reply, err := a.Bus().Request(ctx, a.ID(),
		events.TopicTemplatesRequested, events.TopicTemplatesReady,
		events.TemplatesRequested{}, TemplateProviderID, 0)
	if err != nil {
		return fmt.Errorf("fetch templates: %w", err)
	}
	ready, ok := reply.Payload.(events.TemplatesReady)
	if !ok {
		return fmt.Errorf("fetch templates: unexpected payload %T", reply.Payload)
	}

	specs := make([]scheduler.TaskSpec, 0, len(ready.Templates))
	for _, t := range ready.Templates {
		specs = append(specs, scheduler.TaskSpec{
			Type:       TaskAssemble,
			Capability: CapAssemble,
			Payload:    PageJob{Template: t, Inputs: in},
			SubmitOptions: scheduler.SubmitOptions{
				Priority:      scheduler.Priority(t.Priority),
				CorrelationID: correlationID,
				Metadata:      map[string]string{"template": t.Name},
			},
		})
	}
	if _, err := a.Queue().SubmitAll(specs); err != nil {
		return fmt.Errorf("queue pages: %w", err)
	}
	a.Logger().Debug("pages queued",
		zap.String("correlation", correlationID),
		zap.Int("pages", len(specs)))
	a.Queue().ProcessQueue()
	return nil
}

func (a *Assembler) processTask(_ context.Context, as Assignment) (any, error) {
	job, ok := as.Payload.(PageJob)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects a page job, got %T", content.ErrInvalidInput, as.Type, as.Payload)
	}
	page, err := content.Assemble(job.Template, job.Inputs)
	if err != nil {
		return nil, err
	}
	a.Publish(events.TopicOutputProduced, events.OutputProduced{
		Name: job.Template.Name,
		Page: page,
	}, events.WithCorrelationID(as.CorrelationID))
	return page, nil
}
