package postgres

import (
	"context"

	"github.com/asierbarrena/oficios/internal/core/domain"
)

// ProviderRepo implements ports.ProviderRepository.
type ProviderRepo struct {
	db *DB
}

func NewProviderRepo(db *DB) *ProviderRepo {
	return &ProviderRepo{db: db}
}

func (r *ProviderRepo) GetProfile(ctx context.Context, providerID string) (*domain.ProviderProfile, error) {
	p := &domain.ProviderProfile{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT provider_id, category_ids, credentialed, created_at
		FROM provider_profiles WHERE provider_id = $1
	`, providerID).Scan(&p.ProviderID, &p.CategoryIDs, &p.Credentialed, &p.CreatedAt)
	if err != nil {
		return nil, mapError("get provider profile", err)
	}
	return p, nil
}

func (r *ProviderRepo) UpsertProfile(ctx context.Context, profile *domain.ProviderProfile) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO provider_profiles (provider_id, category_ids, credentialed, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (provider_id) DO UPDATE
		SET category_ids = EXCLUDED.category_ids, credentialed = EXCLUDED.credentialed
	`, profile.ProviderID, profile.CategoryIDs, profile.Credentialed)
	return mapError("upsert provider profile", err)
}
