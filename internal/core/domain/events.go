package domain

import "time"

// EntityType identifies which table a change event belongs to.
type EntityType string

const (
	EntityRequest     EntityType = "request"
	EntityApplication EntityType = "application"
	EntityZone        EntityType = "zone"
)

// ChangeOp is the store-level operation behind a change event.
type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeEvent is one entry of the entity-change feed. Exactly one of the
// payload pointers is set, matching Entity. Delivery is at-least-once;
// consumers key on EntityID + Version, never on arrival order.
type ChangeEvent struct {
	Entity      EntityType      `json:"entity"`
	Op          ChangeOp        `json:"op"`
	EntityID    string          `json:"entity_id"`
	Version     int64           `json:"version"`
	Request     *ServiceRequest `json:"request,omitempty"`
	Application *Application    `json:"application,omitempty"`
	Zone        *CoverageZone   `json:"zone,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// DeltaKind classifies a viewer-facing delta.
type DeltaKind string

const (
	DeltaAdded   DeltaKind = "added"
	DeltaUpdated DeltaKind = "updated"
	DeltaRemoved DeltaKind = "removed"
)

// Delta is the typed event a feed subscriber receives. Applying the same
// delta twice leaves the consumer's projection unchanged.
type Delta struct {
	Kind        DeltaKind       `json:"kind"`
	Entity      EntityType      `json:"entity"`
	EntityID    string          `json:"entity_id"`
	Version     int64           `json:"version"`
	Request     *ServiceRequest `json:"request,omitempty"`
	Application *Application    `json:"application,omitempty"`
}
