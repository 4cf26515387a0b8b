package messaging

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher sends envelopes to a single channel of a Broker.
type Publisher struct {
	broker  Broker
	channel string
}

func NewPublisher(broker Broker, channel string) *Publisher {
	return &Publisher{broker: broker, channel: channel}
}

func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message %s: %w", msg.ID, err)
	}
	return p.broker.Publish(ctx, p.channel, data)
}

// Subscribe decodes envelopes from the channel and hands them to handler
// until ctx is cancelled. Undecodable messages go to onError and are skipped.
func (p *Publisher) Subscribe(ctx context.Context, handler func(Message), onError func(error)) error {
	msgChan, err := p.broker.Subscribe(ctx, p.channel)
	if err != nil {
		return err
	}

	for raw := range msgChan {
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			if onError != nil {
				onError(fmt.Errorf("failed to decode message: %w", err))
			}
			continue
		}
		handler(msg)
	}
	return ctx.Err()
}

func (p *Publisher) Close() error {
	return p.broker.Close()
}
