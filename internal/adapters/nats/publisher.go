package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/asierbarrena/oficios/internal/core/domain"
)

// Publisher implements ports.EventPublisher and ports.DeltaPublisher
// using NATS. Entity-change events go through JetStream for at-least-once
// delivery to the projector; viewer deltas ride plain core NATS, since the
// WebSocket relay only cares about currently-connected clients.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and ensures the change stream exists.
func NewPublisher(url string) (*Publisher, error) {
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

	cfg := nats.StreamConfig{
		Name:      "OFICIOS_CHANGES",
		Subjects:  []string{"oficios.changes.>"},
		Retention: nats.InterestPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist — try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishChange publishes one entity-change event. The subject carries the
// entity type and id so consumers get per-key ordering from the stream.
func (p *Publisher) PublishChange(ctx context.Context, event *domain.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("oficios.changes.%s.%s", event.Entity, event.EntityID)
	_, err = p.js.Publish(subject, data)
	return err
}

// PublishDelta fans a viewer-scoped delta out on that viewer's subject.
func (p *Publisher) PublishDelta(ctx context.Context, viewerID string, delta *domain.Delta) error {
	data, err := json.Marshal(delta)
	if err != nil {
		return err
	}
	return p.conn.Publish("oficios.user."+viewerID+".updates", data)
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
