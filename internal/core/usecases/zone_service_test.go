package usecases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/asierbarrena/oficios/internal/core/domain"
	"github.com/asierbarrena/oficios/internal/core/usecases"
)

// memoryCache is a trivial CacheService used to observe invalidation.
type memoryCache struct {
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := c.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.data[key] = value
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func TestCreateZone(t *testing.T) {
	var created *domain.CoverageZone
	repo := &mockZoneRepo{
		createFn: func(ctx context.Context, zone *domain.CoverageZone) error {
			created = zone
			return nil
		},
	}
	pub := &recordingPublisher{}
	svc := usecases.NewZoneService(repo, nil, pub)

	zone, err := svc.Create(context.Background(), "p1", bilbao, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil || created.ID != zone.ID {
		t.Fatal("zone not persisted")
	}
	if zone.ProviderID != "p1" || zone.RadiusKm != 10 {
		t.Errorf("zone fields wrong: %+v", zone)
	}

	events := pub.all()
	if len(events) != 1 || events[0].Entity != domain.EntityZone || events[0].Op != domain.OpInsert {
		t.Errorf("expected one zone insert event, got %v", events)
	}
}

func TestCreateZoneValidation(t *testing.T) {
	svc := usecases.NewZoneService(&mockZoneRepo{}, nil, nil)

	_, err := svc.Create(context.Background(), "p1", domain.GeoPoint{Lat: 95, Lon: 0}, 10)
	if !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Errorf("expected ErrInvalidCoordinate, got %v", err)
	}

	if _, err := svc.Create(context.Background(), "p1", bilbao, 0); err == nil {
		t.Error("zero radius should be rejected")
	}
	if _, err := svc.Create(context.Background(), "p1", bilbao, -3); err == nil {
		t.Error("negative radius should be rejected")
	}
}

func TestDeleteZoneInvalidatesFeedCache(t *testing.T) {
	cache := newMemoryCache()
	cache.data["feed:provider:p1"] = []byte("[]")

	repo := &mockZoneRepo{}
	svc := usecases.NewZoneService(repo, cache, nil)

	if err := svc.Delete(context.Background(), "z1", "p1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := cache.data["feed:provider:p1"]; ok {
		t.Error("feed cache entry should be invalidated on zone delete")
	}
}

func TestReplaceZoneIsDeleteThenCreate(t *testing.T) {
	var deleted, createdID string
	repo := &mockZoneRepo{
		deleteFn: func(ctx context.Context, id, providerID string) error {
			deleted = id
			return nil
		},
		createFn: func(ctx context.Context, zone *domain.CoverageZone) error {
			createdID = zone.ID
			return nil
		},
	}
	svc := usecases.NewZoneService(repo, nil, nil)

	zone, err := svc.Replace(context.Background(), "z1", "p1", bilbao, 25)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if deleted != "z1" {
		t.Errorf("old zone not deleted, got %q", deleted)
	}
	if createdID == "" || createdID == "z1" {
		t.Errorf("replacement should be a fresh zone, got %q", createdID)
	}
	if zone.RadiusKm != 25 {
		t.Errorf("new radius not applied: %v", zone.RadiusKm)
	}
}

func TestReplaceZoneMissing(t *testing.T) {
	repo := &mockZoneRepo{
		deleteFn: func(ctx context.Context, id, providerID string) error {
			return domain.ErrNotFound
		},
	}
	svc := usecases.NewZoneService(repo, nil, nil)

	_, err := svc.Replace(context.Background(), "ghost", "p1", bilbao, 10)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
