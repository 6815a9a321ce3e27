package domain

import (
	"time"
)

// RequestStatus is the lifecycle state of a service request.
type RequestStatus string

const (
	RequestOpen   RequestStatus = "open"
	RequestClosed RequestStatus = "closed"
)

// ApplicationStatus is the lifecycle state of a provider's application.
type ApplicationStatus string

const (
	ApplicationPending     ApplicationStatus = "pending"
	ApplicationShortlisted ApplicationStatus = "shortlisted"
	ApplicationAccepted    ApplicationStatus = "accepted"
	ApplicationRejected    ApplicationStatus = "rejected"
	ApplicationDiscarded   ApplicationStatus = "discarded"
)

// Terminal reports whether the status admits no further transitions.
func (s ApplicationStatus) Terminal() bool {
	switch s {
	case ApplicationAccepted, ApplicationRejected, ApplicationDiscarded:
		return true
	}
	return false
}

// Valid reports whether the status is one of the known values.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationPending, ApplicationShortlisted, ApplicationAccepted,
		ApplicationRejected, ApplicationDiscarded:
		return true
	}
	return false
}

// CoverageZone is a circular area a provider is willing to work in.
// Zones are never mutated in place: a radius or center change is a
// delete + recreate, so concurrent matchers only ever see whole zones.
type CoverageZone struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	Center     GeoPoint  `json:"center"`
	RadiusKm   float64   `json:"radius_km"`
	CreatedAt  time.Time `json:"created_at"`
}

// ServiceRequest is a job posted by a requester. Version increments on
// every write and is what feed consumers key idempotency on.
type ServiceRequest struct {
	ID                 string        `json:"id"`
	RequesterID        string        `json:"requester_id"`
	CategoryID         string        `json:"category_id"`
	Location           GeoPoint      `json:"location"`
	Description        string        `json:"description"`
	RequiresCredential bool          `json:"requires_credential"`
	Status             RequestStatus `json:"status"`
	Version            int64         `json:"version"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Application is a provider's bid against a specific request.
// At most one per (RequestID, ProviderID) pair.
type Application struct {
	ID         string            `json:"id"`
	RequestID  string            `json:"request_id"`
	ProviderID string            `json:"provider_id"`
	Message    string            `json:"message,omitempty"`
	Status     ApplicationStatus `json:"status"`
	Version    int64             `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// CanTransitionTo reports whether the status change is legal.
// pending|shortlisted may move to shortlisted, rejected, or accepted;
// nothing leaves a terminal state.
func (a Application) CanTransitionTo(next ApplicationStatus) bool {
	if a.Status.Terminal() {
		return false
	}
	switch next {
	case ApplicationShortlisted:
		return a.Status == ApplicationPending || a.Status == ApplicationShortlisted
	case ApplicationRejected:
		return true
	case ApplicationAccepted:
		return a.Status == ApplicationPending || a.Status == ApplicationShortlisted
	}
	return false
}

// ProviderProfile carries a provider's declared category interests and
// credential flag, used to gate request visibility.
type ProviderProfile struct {
	ProviderID   string    `json:"provider_id"`
	CategoryIDs  []string  `json:"category_ids"`
	Credentialed bool      `json:"credentialed"`
	CreatedAt    time.Time `json:"created_at"`
}

// InterestedIn reports whether the provider declared the category.
func (p ProviderProfile) InterestedIn(categoryID string) bool {
	for _, c := range p.CategoryIDs {
		if c == categoryID {
			return true
		}
	}
	return false
}
