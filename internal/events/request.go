package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Request publishes payload on requestTopic and waits for the first message on
// responseTopic carrying the same correlation id. Responders should reply with
// Reply so the response is targeted back at source.
//
// A timeout <= 0 uses the bus default. The one-shot listener is always removed
// before Request returns.
func (b *Bus) Request(ctx context.Context, source, requestTopic, responseTopic string, payload Payload, target string, timeout time.Duration) (Message, error) {
	if timeout <= 0 {
		timeout = b.requestTimeout
	}

	correlationID := uuid.NewString()
	responseCh := make(chan Message, 1)

	sub := b.Subscribe(source, responseTopic, func(msg Message) {
		if msg.CorrelationID != correlationID {
			return
		}
		select {
		case responseCh <- msg:
		default:
		}
	})
	defer sub.Unsubscribe()

	opts := []PublishOption{WithCorrelationID(correlationID), WithReplyTo(responseTopic)}
	if target != "" {
		opts = append(opts, WithTarget(target))
	}
	b.Publish(source, requestTopic, payload, opts...)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-responseCh:
		return msg, nil
	case <-timer.C:
		return Message{}, fmt.Errorf("request %s after %s: %w", requestTopic, timeout, ErrRequestTimeout)
	case <-ctx.Done():
		return Message{}, fmt.Errorf("request %s: %w", requestTopic, ctx.Err())
	}
}

// Reply answers req on its ReplyTo topic (or fallback when ReplyTo is empty),
// targeted at the requester and carrying the request's correlation id.
func (b *Bus) Reply(source string, req Message, fallback string, payload Payload) Message {
	topic := req.ReplyTo
	if topic == "" {
		topic = fallback
	}
	return b.Publish(source, topic, payload,
		WithTarget(req.Source),
		WithCorrelationID(req.CorrelationID))
}
