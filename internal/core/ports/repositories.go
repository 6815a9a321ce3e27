package ports

import (
	"context"

	"github.com/asierbarrena/oficios/internal/core/domain"
)

// ZoneRepository persists coverage zones.
type ZoneRepository interface {
	Create(ctx context.Context, zone *domain.CoverageZone) error
	Delete(ctx context.Context, id, providerID string) error
	GetByID(ctx context.Context, id string) (*domain.CoverageZone, error)
	ListByProvider(ctx context.Context, providerID string) ([]domain.CoverageZone, error)
}

// RequestRepository persists service requests.
type RequestRepository interface {
	Create(ctx context.Context, req *domain.ServiceRequest) error
	GetByID(ctx context.Context, id string) (*domain.ServiceRequest, error)
	// Update applies the mutation only while the request version matches
	// and no application on it is accepted; a miss is a ConcurrencyConflict.
	Update(ctx context.Context, req *domain.ServiceRequest) error
	// Close removes the request from the open set. Fails with
	// ErrRequestClosed when an application has been accepted, unless the
	// closing actor is the store itself (acceptance cascade).
	Close(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	ListOpen(ctx context.Context) ([]domain.ServiceRequest, error)
	ListOpenByCategories(ctx context.Context, categoryIDs []string) ([]domain.ServiceRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]domain.ServiceRequest, error)
}

// AcceptResult is what a successful acceptance transaction yields: the
// accepted application, the siblings that were cascade-discarded with it,
// and the now-closed parent request.
type AcceptResult struct {
	Accepted  *domain.Application
	Discarded []domain.Application
	Request   *domain.ServiceRequest
}

// ApplicationRepository persists applications.
type ApplicationRepository interface {
	// Create inserts a pending application. A (requestID, providerID)
	// collision surfaces as ErrDuplicateApplication.
	Create(ctx context.Context, app *domain.Application) error
	GetByID(ctx context.Context, id string) (*domain.Application, error)
	ListByRequest(ctx context.Context, requestID string) ([]domain.Application, error)
	ListByProvider(ctx context.Context, providerID string) ([]domain.Application, error)
	// UpdateStatus is a conditional write keyed on the expected version;
	// a miss surfaces as ErrConcurrencyConflict.
	UpdateStatus(ctx context.Context, id string, status domain.ApplicationStatus, expectedVersion int64) (*domain.Application, error)
	// AcceptAndDiscard performs the acceptance cascade as one atomic
	// multi-row write: accept the application, discard every other
	// pending/shortlisted sibling on the same request, and close the
	// parent request. Guarded on "no accepted application exists for this
	// request"; losing that guard surfaces as ErrConcurrencyConflict.
	AcceptAndDiscard(ctx context.Context, requestID, applicationID string) (*AcceptResult, error)
	// HasAccepted reports whether the request already has an accepted
	// application.
	HasAccepted(ctx context.Context, requestID string) (bool, error)
}

// ProviderRepository persists provider matching profiles.
type ProviderRepository interface {
	GetProfile(ctx context.Context, providerID string) (*domain.ProviderProfile, error)
	UpsertProfile(ctx context.Context, profile *domain.ProviderProfile) error
}
