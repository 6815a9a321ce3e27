package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/asierbarrena/oficios/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
// Each consumer gets its own durable name so independent workers track
// their own position in the stream.
type Subscriber struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	durable string
	subs    []*nats.Subscription
}

// NewSubscriber creates a subscriber sharing a NATS connection.
func NewSubscriber(url, durable string) (*Subscriber, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js, durable: durable}, nil
}

// SubscribeChanges consumes the full entity-change stream with a durable
// consumer, so a restarting projector resumes where it left off. Handler
// failures nack for redelivery; delivery stays at-least-once and the
// projector's versioned state absorbs duplicates.
func (s *Subscriber) SubscribeChanges(ctx context.Context, handler func(ctx context.Context, event *domain.ChangeEvent) error) error {
	sub, err := s.js.Subscribe("oficios.changes.>", func(msg *nats.Msg) {
		var event domain.ChangeEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			_ = msg.Nak()
			return
		}
		if err := handler(ctx, &event); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable(s.durable),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
