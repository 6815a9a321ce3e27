package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/asierbarrena/oficios/internal/core/domain"
	"github.com/asierbarrena/oficios/internal/core/ports"
)

// ZoneService handles provider coverage zones. Zones are whole-value:
// changing a radius or center is a delete + recreate, never an in-place
// mutation, so the matcher can't observe a half-updated zone.
type ZoneService struct {
	zones     ports.ZoneRepository
	cache     ports.CacheService
	publisher ports.EventPublisher
}

// NewZoneService creates a new ZoneService.
func NewZoneService(zones ports.ZoneRepository, cache ports.CacheService, publisher ports.EventPublisher) *ZoneService {
	return &ZoneService{zones: zones, cache: cache, publisher: publisher}
}

// Create declares a new coverage zone for the provider.
func (s *ZoneService) Create(ctx context.Context, providerID string, center domain.GeoPoint, radiusKm float64) (*domain.CoverageZone, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		return nil, fmt.Errorf("%w: must be positive, got %v", domain.ErrInvalidRadius, radiusKm)
	}

	zone := &domain.CoverageZone{
		ID:         uuid.NewString(),
		ProviderID: providerID,
		Center:     center,
		RadiusKm:   radiusKm,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.zones.Create(ctx, zone); err != nil {
		return nil, fmt.Errorf("create zone: %w", err)
	}

	s.invalidate(ctx, providerID)
	s.publish(ctx, domain.OpInsert, zone)
	return zone, nil
}

// Delete removes a zone. Only the owning provider may delete it.
func (s *ZoneService) Delete(ctx context.Context, id, providerID string) error {
	if err := s.zones.Delete(ctx, id, providerID); err != nil {
		return fmt.Errorf("delete zone %s: %w", id, err)
	}
	s.invalidate(ctx, providerID)
	s.publish(ctx, domain.OpDelete, &domain.CoverageZone{ID: id, ProviderID: providerID})
	return nil
}

// Replace swaps a zone for a new center/radius as delete + recreate.
func (s *ZoneService) Replace(ctx context.Context, id, providerID string, center domain.GeoPoint, radiusKm float64) (*domain.CoverageZone, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		return nil, fmt.Errorf("%w: must be positive, got %v", domain.ErrInvalidRadius, radiusKm)
	}

	if err := s.zones.Delete(ctx, id, providerID); err != nil {
		return nil, fmt.Errorf("delete zone %s: %w", id, err)
	}
	return s.Create(ctx, providerID, center, radiusKm)
}

// ListByProvider returns all of the provider's zones.
func (s *ZoneService) ListByProvider(ctx context.Context, providerID string) ([]domain.CoverageZone, error) {
	return s.zones.ListByProvider(ctx, providerID)
}

func (s *ZoneService) invalidate(ctx context.Context, providerID string) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, "feed:provider:"+providerID)
	}
}

func (s *ZoneService) publish(ctx context.Context, op domain.ChangeOp, zone *domain.CoverageZone) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.PublishChange(ctx, &domain.ChangeEvent{
		Entity:     domain.EntityZone,
		Op:         op,
		EntityID:   zone.ID,
		Zone:       zone,
		OccurredAt: time.Now().UTC(),
	})
}
