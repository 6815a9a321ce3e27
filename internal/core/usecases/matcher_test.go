package usecases_test

import (
	"context"
	"testing"

	"github.com/asierbarrena/oficios/internal/core/domain"
	"github.com/asierbarrena/oficios/internal/core/usecases"
)

var bilbao = domain.GeoPoint{Lat: 43.2630, Lon: -2.9350}

func openRequest(id, category string, loc domain.GeoPoint) domain.ServiceRequest {
	return domain.ServiceRequest{
		ID:         id,
		CategoryID: category,
		Location:   loc,
		Status:     domain.RequestOpen,
		Version:    1,
	}
}

func TestFilterVisibleBasicMatch(t *testing.T) {
	zones := []domain.CoverageZone{
		{ID: "z1", ProviderID: "p1", Center: bilbao, RadiusKm: 10},
	}
	profile := domain.ProviderProfile{ProviderID: "p1", CategoryIDs: []string{"plumbing"}}

	inZone := openRequest("r1", "plumbing", domain.GeoPoint{Lat: 43.270, Lon: -2.940})
	outOfZone := openRequest("r2", "plumbing", domain.GeoPoint{Lat: 44.300, Lon: -2.935})
	wrongCategory := openRequest("r3", "carpentry", domain.GeoPoint{Lat: 43.270, Lon: -2.940})

	visible := usecases.FilterVisible(zones, []domain.ServiceRequest{inZone, outOfZone, wrongCategory}, profile)
	if len(visible) != 1 {
		t.Fatalf("expected 1 visible request, got %d", len(visible))
	}
	if visible[0].ID != "r1" {
		t.Errorf("expected r1, got %s", visible[0].ID)
	}
}

func TestFilterVisibleZeroZonesMatchesNothing(t *testing.T) {
	profile := domain.ProviderProfile{CategoryIDs: []string{"plumbing"}}
	reqs := []domain.ServiceRequest{openRequest("r1", "plumbing", bilbao)}

	if got := usecases.FilterVisible(nil, reqs, profile); got != nil {
		t.Errorf("zero zones must match nothing, got %d requests", len(got))
	}
}

func TestFilterVisibleOverlappingZonesDeduplicate(t *testing.T) {
	zones := []domain.CoverageZone{
		{ID: "z1", Center: bilbao, RadiusKm: 10},
		{ID: "z2", Center: domain.GeoPoint{Lat: 43.270, Lon: -2.940}, RadiusKm: 10},
	}
	profile := domain.ProviderProfile{CategoryIDs: []string{"plumbing"}}
	req := openRequest("r1", "plumbing", bilbao)

	visible := usecases.FilterVisible(zones, []domain.ServiceRequest{req}, profile)
	if len(visible) != 1 {
		t.Errorf("request inside two zones must appear once, got %d", len(visible))
	}
}

func TestFilterVisiblePreservesOrder(t *testing.T) {
	zones := []domain.CoverageZone{{ID: "z1", Center: bilbao, RadiusKm: 50}}
	profile := domain.ProviderProfile{CategoryIDs: []string{"plumbing"}}

	reqs := []domain.ServiceRequest{
		openRequest("r3", "plumbing", bilbao),
		openRequest("r1", "plumbing", bilbao),
		openRequest("r2", "plumbing", bilbao),
	}
	visible := usecases.FilterVisible(zones, reqs, profile)
	if len(visible) != 3 {
		t.Fatalf("expected 3, got %d", len(visible))
	}
	for i, want := range []string{"r3", "r1", "r2"} {
		if visible[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, visible[i].ID)
		}
	}
}

func TestFilterVisibleMadridScenario(t *testing.T) {
	// One 10 km zone centered at (40.0, -3.0). R1 sits ~6 km away in the
	// right category; R2 is a degree of latitude (~111 km) away; R3 is in
	// range but the wrong trade.
	zones := []domain.CoverageZone{
		{ID: "z1", ProviderID: "p1", Center: domain.GeoPoint{Lat: 40.0, Lon: -3.0}, RadiusKm: 10},
	}
	profile := domain.ProviderProfile{ProviderID: "p1", CategoryIDs: []string{"plumbing"}}

	r1 := openRequest("r1", "plumbing", domain.GeoPoint{Lat: 40.05, Lon: -3.02})
	r2 := openRequest("r2", "plumbing", domain.GeoPoint{Lat: 41.0, Lon: -3.0})
	r3 := openRequest("r3", "electrical", domain.GeoPoint{Lat: 40.05, Lon: -3.02})

	visible := usecases.FilterVisible(zones, []domain.ServiceRequest{r1, r2, r3}, profile)
	if len(visible) != 1 || visible[0].ID != "r1" {
		t.Fatalf("expected exactly [r1], got %v", visible)
	}
}

func TestAppliesToCredentialGate(t *testing.T) {
	zones := []domain.CoverageZone{{ID: "z1", Center: bilbao, RadiusKm: 10}}

	req := openRequest("r1", "electrical", bilbao)
	req.RequiresCredential = true

	uncredentialed := domain.ProviderProfile{CategoryIDs: []string{"electrical"}}
	if usecases.AppliesTo(zones, req, uncredentialed) {
		t.Error("uncredentialed provider must not see a credential-gated request")
	}

	credentialed := domain.ProviderProfile{CategoryIDs: []string{"electrical"}, Credentialed: true}
	if !usecases.AppliesTo(zones, req, credentialed) {
		t.Error("credentialed provider should see the request")
	}
}

func TestAppliesToClosedRequest(t *testing.T) {
	zones := []domain.CoverageZone{{ID: "z1", Center: bilbao, RadiusKm: 10}}
	profile := domain.ProviderProfile{CategoryIDs: []string{"plumbing"}}

	req := openRequest("r1", "plumbing", bilbao)
	req.Status = domain.RequestClosed

	if usecases.AppliesTo(zones, req, profile) {
		t.Error("closed request must not match")
	}
}

func TestAppliesToZoneBoundary(t *testing.T) {
	// 43.263 + 0.09 degrees is right around 10 km north
	zones := []domain.CoverageZone{{ID: "z1", Center: bilbao, RadiusKm: 10}}
	profile := domain.ProviderProfile{CategoryIDs: []string{"plumbing"}}

	justInside := openRequest("r1", "plumbing", domain.GeoPoint{Lat: 43.3470, Lon: -2.9350})
	if !usecases.AppliesTo(zones, justInside, profile) {
		t.Error("point just inside the radius should match")
	}

	justOutside := openRequest("r2", "plumbing", domain.GeoPoint{Lat: 43.3580, Lon: -2.9350})
	if usecases.AppliesTo(zones, justOutside, profile) {
		t.Error("point just outside the radius should not match")
	}
}

func TestVisibleRequests(t *testing.T) {
	zoneRepo := &mockZoneRepo{
		listByProviderFn: func(ctx context.Context, providerID string) ([]domain.CoverageZone, error) {
			return []domain.CoverageZone{{ID: "z1", ProviderID: providerID, Center: bilbao, RadiusKm: 10}}, nil
		},
	}
	reqRepo := &mockRequestRepo{
		listOpenByCategoriesFn: func(ctx context.Context, categoryIDs []string) ([]domain.ServiceRequest, error) {
			return []domain.ServiceRequest{
				openRequest("r1", "plumbing", domain.GeoPoint{Lat: 43.270, Lon: -2.940}),
				openRequest("r2", "plumbing", domain.GeoPoint{Lat: 44.500, Lon: -2.940}),
			}, nil
		},
	}
	provRepo := &mockProviderRepo{
		getProfileFn: func(ctx context.Context, providerID string) (*domain.ProviderProfile, error) {
			return &domain.ProviderProfile{ProviderID: providerID, CategoryIDs: []string{"plumbing"}}, nil
		},
	}

	svc := usecases.NewMatchService(zoneRepo, reqRepo, provRepo, nil)
	visible, err := svc.VisibleRequests(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != "r1" {
		t.Fatalf("expected only r1 visible, got %v", visible)
	}
}

func TestVisibleRequestsNoZones(t *testing.T) {
	zoneRepo := &mockZoneRepo{
		listByProviderFn: func(ctx context.Context, providerID string) ([]domain.CoverageZone, error) {
			return nil, nil
		},
	}
	provRepo := &mockProviderRepo{
		getProfileFn: func(ctx context.Context, providerID string) (*domain.ProviderProfile, error) {
			return &domain.ProviderProfile{ProviderID: providerID, CategoryIDs: []string{"plumbing"}}, nil
		},
	}

	svc := usecases.NewMatchService(zoneRepo, &mockRequestRepo{}, provRepo, nil)
	visible, err := svc.VisibleRequests(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if visible != nil {
		t.Errorf("provider without zones must see nothing, got %v", visible)
	}
}
