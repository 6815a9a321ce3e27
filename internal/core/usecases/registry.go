package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asierbarrena/oficios/internal/core/domain"
	"github.com/asierbarrena/oficios/internal/core/ports"
)

// acceptRetries bounds the internal retry loop against transient store
// failures during acceptance. A genuine lost race is never retried.
const acceptRetries = 3

// keyedMutex serializes callers per request id. Entries are reference
// counted and removed once the last holder releases, so the map does not
// grow with the request table.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) lock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
}

func (k *keyedMutex) unlock(key string) {
	k.mu.Lock()
	l := k.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	l.mu.Unlock()
}

// ApplicationService owns the application lifecycle: submission, status
// transitions, and the exclusivity cascade on acceptance. All status
// mutations for one request are serialized through a per-request lock;
// operations on different requests proceed in parallel. The store-level
// conditional transaction stays authoritative, so the invariant holds
// even with multiple processes behind the same database.
type ApplicationService struct {
	apps      ports.ApplicationRepository
	requests  ports.RequestRepository
	publisher ports.EventPublisher
	locks     *keyedMutex
}

// NewApplicationService creates a new ApplicationService.
func NewApplicationService(
	apps ports.ApplicationRepository,
	requests ports.RequestRepository,
	publisher ports.EventPublisher,
) *ApplicationService {
	return &ApplicationService{
		apps:      apps,
		requests:  requests,
		publisher: publisher,
		locks:     newKeyedMutex(),
	}
}

// Submit records a pending application by the provider against the
// request. A second application for the same (request, provider) pair is
// rejected with ErrDuplicateApplication regardless of the first one's
// status; a request that is not open, or that already has an accepted
// application, rejects with ErrRequestClosed.
func (s *ApplicationService) Submit(ctx context.Context, requestID, providerID, message string) (*domain.Application, error) {
	s.locks.lock(requestID)
	defer s.locks.unlock(requestID)

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", requestID, err)
	}
	if req.Status != domain.RequestOpen {
		return nil, fmt.Errorf("request %s: %w", requestID, domain.ErrRequestClosed)
	}
	accepted, err := s.apps.HasAccepted(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("check accepted: %w", err)
	}
	if accepted {
		return nil, fmt.Errorf("request %s: %w", requestID, domain.ErrRequestClosed)
	}

	now := time.Now().UTC()
	app := &domain.Application{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		ProviderID: providerID,
		Message:    message,
		Status:     domain.ApplicationPending,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.apps.Create(ctx, app); err != nil {
		if errors.Is(err, domain.ErrDuplicateApplication) {
			return nil, fmt.Errorf("provider %s on request %s: %w", providerID, requestID, domain.ErrDuplicateApplication)
		}
		return nil, fmt.Errorf("create application: %w", err)
	}

	s.publishApplication(ctx, domain.OpInsert, app)
	return app, nil
}

// SetStatus transitions an application. Only the owning requester may
// mutate status. Accepting cascades: every other pending or shortlisted
// application on the same request is discarded and the request leaves the
// open set as part of the same atomic operation. The returned slice holds
// the cascade-discarded applications so callers can notify their owners.
func (s *ApplicationService) SetStatus(ctx context.Context, applicationID string, newStatus domain.ApplicationStatus, actingUserID string) (*domain.Application, []domain.Application, error) {
	probe, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return nil, nil, fmt.Errorf("get application %s: %w", applicationID, err)
	}

	s.locks.lock(probe.RequestID)
	defer s.locks.unlock(probe.RequestID)

	// Re-read under the lock; the probe may be stale.
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return nil, nil, fmt.Errorf("get application %s: %w", applicationID, err)
	}
	req, err := s.requests.GetByID(ctx, app.RequestID)
	if err != nil {
		return nil, nil, fmt.Errorf("get request %s: %w", app.RequestID, err)
	}

	if actingUserID != req.RequesterID {
		return nil, nil, fmt.Errorf("user %s is not the requester: %w", actingUserID, domain.ErrUnauthorized)
	}
	if !newStatus.Valid() || newStatus == domain.ApplicationPending || newStatus == domain.ApplicationDiscarded {
		return nil, nil, fmt.Errorf("to %q: %w", newStatus, domain.ErrIllegalTransition)
	}
	if !app.CanTransitionTo(newStatus) {
		return nil, nil, fmt.Errorf("%q -> %q: %w", app.Status, newStatus, domain.ErrIllegalTransition)
	}

	if newStatus == domain.ApplicationAccepted {
		return s.accept(ctx, req, app)
	}

	updated, err := s.apps.UpdateStatus(ctx, app.ID, newStatus, app.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("update status: %w", err)
	}
	s.publishApplication(ctx, domain.OpUpdate, updated)
	return updated, nil, nil
}

// accept runs the acceptance cascade. The store transaction is guarded on
// "no accepted application exists for this request"; concurrent acceptors
// produce exactly one winner and the losers observe ErrConcurrencyConflict.
func (s *ApplicationService) accept(ctx context.Context, req *domain.ServiceRequest, app *domain.Application) (*domain.Application, []domain.Application, error) {
	var result *ports.AcceptResult
	var err error

	for attempt := 0; attempt < acceptRetries; attempt++ {
		result, err = s.apps.AcceptAndDiscard(ctx, req.ID, app.ID)
		if err == nil {
			break
		}
		// A lost race is final; only transient store failures retry.
		if errors.Is(err, domain.ErrConcurrencyConflict) ||
			errors.Is(err, domain.ErrIllegalTransition) ||
			errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("accept application %s: %w", app.ID, err)
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("accept application %s: %w", app.ID, domain.ErrConcurrencyConflict)
	}

	s.publishApplication(ctx, domain.OpUpdate, result.Accepted)
	for i := range result.Discarded {
		s.publishApplication(ctx, domain.OpUpdate, &result.Discarded[i])
	}
	if result.Request != nil {
		s.publishRequest(ctx, domain.OpUpdate, result.Request)
	}

	return result.Accepted, result.Discarded, nil
}

// ListForRequest returns all applications on a request, newest first.
func (s *ApplicationService) ListForRequest(ctx context.Context, requestID string) ([]domain.Application, error) {
	return s.apps.ListByRequest(ctx, requestID)
}

// ListForProvider returns all of a provider's applications, newest first.
func (s *ApplicationService) ListForProvider(ctx context.Context, providerID string) ([]domain.Application, error) {
	return s.apps.ListByProvider(ctx, providerID)
}

func (s *ApplicationService) publishApplication(ctx context.Context, op domain.ChangeOp, app *domain.Application) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.PublishChange(ctx, &domain.ChangeEvent{
		Entity:      domain.EntityApplication,
		Op:          op,
		EntityID:    app.ID,
		Version:     app.Version,
		Application: app,
		OccurredAt:  time.Now().UTC(),
	})
}

func (s *ApplicationService) publishRequest(ctx context.Context, op domain.ChangeOp, req *domain.ServiceRequest) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.PublishChange(ctx, &domain.ChangeEvent{
		Entity:     domain.EntityRequest,
		Op:         op,
		EntityID:   req.ID,
		Version:    req.Version,
		Request:    req,
		OccurredAt: time.Now().UTC(),
	})
}
