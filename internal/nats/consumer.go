package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// HandlerFunc processes one message. Returning an error Naks it for redelivery.
type HandlerFunc func(ctx context.Context, data []byte) error

// ConsumerManager handles durable consumer creation and the fetch loop.
type ConsumerManager struct {
	js jetstream.JetStream
}

// NewConsumerManager creates a new ConsumerManager.
func NewConsumerManager(js jetstream.JetStream) *ConsumerManager {
	return &ConsumerManager{js: js}
}

// EnsureConsumer creates or updates a durable consumer on the given stream.
func (cm *ConsumerManager) EnsureConsumer(ctx context.Context, stream, name, filterSubject string) (jetstream.Consumer, error) {
	cfg := jetstream.ConsumerConfig{
		Durable:       name,
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}

	consumer, err := cm.js.CreateOrUpdateConsumer(ctx, stream, cfg)
	if err != nil {
		return nil, fmt.Errorf("ensuring consumer %s on %s: %w", name, stream, err)
	}
	return consumer, nil
}

// Run fetches batches from the durable consumer and hands each message to handle.
// Blocks until ctx is cancelled.
func (cm *ConsumerManager) Run(ctx context.Context, stream, name, filterSubject string, handle HandlerFunc) error {
	consumer, err := cm.EnsureConsumer(ctx, stream, name, filterSubject)
	if err != nil {
		return err
	}

	slog.Info("nats consumer started", "consumer", name, "subject", filterSubject)

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("fetching messages", "consumer", name, "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			if err := handle(ctx, msg.Data()); err != nil {
				slog.Error("handling message", "consumer", name, "subject", msg.Subject(), "error", err)
				_ = msg.Nak()
				continue
			}
			_ = msg.Ack()
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}
