package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"fwdefense/core"
	"fwdefense/engine"

	"github.com/redis/go-redis/v9"
)

// GlobalUpdatesChannel is the pub/sub channel carrying every broadcast
// message. The API server publishes here; push relays subscribe and fan
// out to their websocket clients.
const GlobalUpdatesChannel = "global_updates"

// Publisher sends broadcast messages over Redis pub/sub so every push
// relay instance sees them, not just the one colocated with the API.
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client, channel: GlobalUpdatesChannel}
}

func (p *Publisher) Publish(ctx context.Context, msg core.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", msg.MessageType(), err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s message: %w", msg.MessageType(), err)
	}
	return nil
}

var _ engine.Publisher = (*Publisher)(nil)

// Subscriber receives broadcast payloads from Redis pub/sub and hands the
// raw JSON to a delivery callback. Payloads are forwarded verbatim; the
// relay never re-encodes what the API server published.
type Subscriber struct {
	client  *redis.Client
	channel string
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client, channel: GlobalUpdatesChannel}
}

// Run blocks delivering messages until the context is cancelled or the
// subscription is torn down.
func (s *Subscriber) Run(ctx context.Context, deliver func(payload []byte)) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	// Force the SUBSCRIBE round-trip so callers know the stream is live.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			deliver([]byte(m.Payload))
		}
	}
}
