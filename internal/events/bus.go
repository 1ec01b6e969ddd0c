// Package events carries conversation change notifications between the
// repository and the views that display it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"
)

// TopicConversationsChanged is the topic every ChangeEvent is published on.
const TopicConversationsChanged = "conversations.changed"

// Kind identifies what changed
type Kind string

const (
	KindSaved    Kind = "saved"
	KindDeleted  Kind = "deleted"
	KindPointer  Kind = "pointer"
	KindExternal Kind = "external" // another process wrote the store
)

// ChangeEvent describes one change to the stored conversations
type ChangeEvent struct {
	Kind           Kind      `json:"kind"`
	ConversationID string    `json:"conversation_id,omitempty"`
	At             time.Time `json:"at"`
}

// Bus is an in-process pub/sub for ChangeEvents
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// BusOption configures a Bus
type BusOption func(*Bus)

// WithLogger sets the watermill logger
func WithLogger(logger watermill.LoggerAdapter) BusOption {
	return func(b *Bus) {
		b.logger = logger
	}
}

// NewBus creates a Bus
func NewBus(options ...BusOption) *Bus {
	b := &Bus{logger: watermill.NopLogger{}}
	for _, o := range options {
		o(b)
	}

	b.pubsub = gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, b.logger)
	return b
}

// Publish sends ev to every current subscriber. Events published with no
// subscriber are dropped.
func (b *Bus) Publish(ctx context.Context, ev ChangeEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := b.pubsub.Publish(TopicConversationsChanged, msg); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// Subscribe returns a channel of events that is closed when ctx is done or
// the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan ChangeEvent, error) {
	msgs, err := b.pubsub.Subscribe(ctx, TopicConversationsChanged)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan ChangeEvent, 16)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev ChangeEvent
			err := json.Unmarshal(msg.Payload, &ev)
			msg.Ack()
			if err != nil {
				log.Error().Err(err).Str("message_id", msg.UUID).Msg("Failed to decode change event")
				continue
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the bus down and closes every subscription channel
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
