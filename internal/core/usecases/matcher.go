package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/asierbarrena/oficios/internal/core/domain"
	"github.com/asierbarrena/oficios/internal/core/ports"
)

// FilterVisible returns the subset of requests visible to a provider with
// the given zones and profile: open, category declared, credential gate
// satisfied, and inside at least one zone. Output preserves the relative
// order of requests and is de-duplicated by request id, so overlapping
// zones never produce the same request twice. Zero zones means zero
// matches, never "match everything".
func FilterVisible(zones []domain.CoverageZone, requests []domain.ServiceRequest, profile domain.ProviderProfile) []domain.ServiceRequest {
	if len(zones) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(requests))
	var visible []domain.ServiceRequest
	for _, r := range requests {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		if AppliesTo(zones, r, profile) {
			seen[r.ID] = struct{}{}
			visible = append(visible, r)
		}
	}
	return visible
}

// AppliesTo is the single-request visibility test. The change-feed path
// uses it to avoid re-scanning the full request set on every event.
func AppliesTo(zones []domain.CoverageZone, request domain.ServiceRequest, profile domain.ProviderProfile) bool {
	if request.Status != domain.RequestOpen {
		return false
	}
	if !profile.InterestedIn(request.CategoryID) {
		return false
	}
	if request.RequiresCredential && !profile.Credentialed {
		return false
	}
	for _, z := range zones {
		if z.Contains(request.Location) {
			return true
		}
	}
	return false
}

// MatchService resolves which open requests a provider can see.
type MatchService struct {
	zones     ports.ZoneRepository
	requests  ports.RequestRepository
	providers ports.ProviderRepository
	cache     ports.CacheService
}

// NewMatchService creates a new MatchService.
func NewMatchService(
	zones ports.ZoneRepository,
	requests ports.RequestRepository,
	providers ports.ProviderRepository,
	cache ports.CacheService,
) *MatchService {
	return &MatchService{zones: zones, requests: requests, providers: providers, cache: cache}
}

// VisibleRequests returns the requests currently visible to the provider.
func (s *MatchService) VisibleRequests(ctx context.Context, providerID string) ([]domain.ServiceRequest, error) {
	cacheKey := "feed:provider:" + providerID
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var reqs []domain.ServiceRequest
			if err := json.Unmarshal(data, &reqs); err == nil {
				return reqs, nil
			}
		}
	}

	profile, err := s.providers.GetProfile(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", providerID, err)
	}

	zones, err := s.zones.ListByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	if len(zones) == 0 {
		return nil, nil
	}

	requests, err := s.requests.ListOpenByCategories(ctx, profile.CategoryIDs)
	if err != nil {
		return nil, fmt.Errorf("list open requests: %w", err)
	}

	visible := FilterVisible(zones, requests, *profile)

	// Short TTL: the feed worker invalidates on zone changes, but open
	// requests churn constantly.
	if s.cache != nil {
		if data, err := json.Marshal(visible); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 30)
		}
	}

	return visible, nil
}

// AppliesTo tests a single request against the provider's current zones
// and profile.
func (s *MatchService) AppliesTo(ctx context.Context, providerID string, request domain.ServiceRequest) (bool, error) {
	profile, err := s.providers.GetProfile(ctx, providerID)
	if err != nil {
		return false, fmt.Errorf("get profile %s: %w", providerID, err)
	}
	zones, err := s.zones.ListByProvider(ctx, providerID)
	if err != nil {
		return false, fmt.Errorf("list zones: %w", err)
	}
	return AppliesTo(zones, request, *profile), nil
}
