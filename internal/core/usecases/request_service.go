package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/asierbarrena/oficios/internal/core/domain"
	"github.com/asierbarrena/oficios/internal/core/ports"
)

// RequestService handles the requester side: posting, editing, and
// withdrawing service requests. Edits and withdrawal are blocked once an
// application has been accepted.
type RequestService struct {
	requests  ports.RequestRepository
	apps      ports.ApplicationRepository
	publisher ports.EventPublisher
}

// NewRequestService creates a new RequestService.
func NewRequestService(
	requests ports.RequestRepository,
	apps ports.ApplicationRepository,
	publisher ports.EventPublisher,
) *RequestService {
	return &RequestService{requests: requests, apps: apps, publisher: publisher}
}

// Create posts a new open request.
func (s *RequestService) Create(ctx context.Context, requesterID, categoryID, description string, location domain.GeoPoint, requiresCredential bool) (*domain.ServiceRequest, error) {
	if err := location.Validate(); err != nil {
		return nil, err
	}
	if categoryID == "" {
		return nil, fmt.Errorf("category is required")
	}

	now := time.Now().UTC()
	req := &domain.ServiceRequest{
		ID:                 uuid.NewString(),
		RequesterID:        requesterID,
		CategoryID:         categoryID,
		Location:           location,
		Description:        description,
		RequiresCredential: requiresCredential,
		Status:             domain.RequestOpen,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.publish(ctx, domain.OpInsert, req)
	return req, nil
}

// GetByID returns a single request.
func (s *RequestService) GetByID(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	return s.requests.GetByID(ctx, id)
}

// ListForRequester returns the requester's own requests.
func (s *RequestService) ListForRequester(ctx context.Context, requesterID string) ([]domain.ServiceRequest, error) {
	return s.requests.ListByRequester(ctx, requesterID)
}

// Update edits a request. Only the owner may edit, and only while no
// application on it is accepted.
func (s *RequestService) Update(ctx context.Context, id, actingUserID, categoryID, description string, location domain.GeoPoint, requiresCredential bool) (*domain.ServiceRequest, error) {
	if err := location.Validate(); err != nil {
		return nil, err
	}

	req, err := s.editable(ctx, id, actingUserID)
	if err != nil {
		return nil, err
	}

	req.CategoryID = categoryID
	req.Description = description
	req.Location = location
	req.RequiresCredential = requiresCredential
	req.UpdatedAt = time.Now().UTC()

	if err := s.requests.Update(ctx, req); err != nil {
		return nil, fmt.Errorf("update request %s: %w", id, err)
	}

	s.publish(ctx, domain.OpUpdate, req)
	return req, nil
}

// Withdraw logically deletes a request: it leaves the open set and stops
// matching. Blocked once an application is accepted.
func (s *RequestService) Withdraw(ctx context.Context, id, actingUserID string) error {
	req, err := s.editable(ctx, id, actingUserID)
	if err != nil {
		return err
	}

	if err := s.requests.Delete(ctx, req.ID); err != nil {
		return fmt.Errorf("delete request %s: %w", id, err)
	}

	if s.publisher != nil {
		_ = s.publisher.PublishChange(ctx, &domain.ChangeEvent{
			Entity:     domain.EntityRequest,
			Op:         domain.OpDelete,
			EntityID:   req.ID,
			Version:    req.Version + 1,
			Request:    req,
			OccurredAt: time.Now().UTC(),
		})
	}
	return nil
}

// editable loads the request and checks ownership and the accepted guard.
func (s *RequestService) editable(ctx context.Context, id, actingUserID string) (*domain.ServiceRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}
	if req.RequesterID != actingUserID {
		return nil, fmt.Errorf("user %s does not own request %s: %w", actingUserID, id, domain.ErrUnauthorized)
	}
	accepted, err := s.apps.HasAccepted(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("check accepted: %w", err)
	}
	if accepted {
		return nil, fmt.Errorf("request %s has an accepted application: %w", id, domain.ErrRequestClosed)
	}
	return req, nil
}

func (s *RequestService) publish(ctx context.Context, op domain.ChangeOp, req *domain.ServiceRequest) {
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
