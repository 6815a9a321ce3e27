package ports

import (
	"context"

	"github.com/asierbarrena/oficios/internal/core/domain"
)

// EventPublisher publishes entity-change events to a message broker.
type EventPublisher interface {
	PublishChange(ctx context.Context, event *domain.ChangeEvent) error
}

// EventSubscriber subscribes to entity-change events from a message broker.
type EventSubscriber interface {
	SubscribeChanges(ctx context.Context, handler func(ctx context.Context, event *domain.ChangeEvent) error) error
}

// DeltaPublisher fans viewer-scoped deltas out to their transport
// (per-user subjects consumed by the WebSocket relay).
type DeltaPublisher interface {
	PublishDelta(ctx context.Context, viewerID string, delta *domain.Delta) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// NotificationService sends notifications (push, email, etc.).
type NotificationService interface {
	SendPush(ctx context.Context, userID, title, body string) error
}
