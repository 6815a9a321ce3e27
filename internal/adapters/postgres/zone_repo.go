package postgres

import (
	"context"
	"fmt"

	"github.com/asierbarrena/oficios/internal/core/domain"
)

// ZoneRepo implements ports.ZoneRepository.
type ZoneRepo struct {
	db *DB
}

func NewZoneRepo(db *DB) *ZoneRepo {
	return &ZoneRepo{db: db}
}

func (r *ZoneRepo) Create(ctx context.Context, zone *domain.CoverageZone) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO coverage_zones (id, provider_id, center_lat, center_lon, radius_km, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, zone.ID, zone.ProviderID, zone.Center.Lat, zone.Center.Lon, zone.RadiusKm, zone.CreatedAt)
	return mapError("create zone", err)
}

func (r *ZoneRepo) Delete(ctx context.Context, id, providerID string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		DELETE FROM coverage_zones WHERE id = $1 AND provider_id = $2
	`, id, providerID)
	if err != nil {
		return mapError("delete zone", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("zone %s for provider %s: %w", id, providerID, domain.ErrNotFound)
	}
	return nil
}

func (r *ZoneRepo) GetByID(ctx context.Context, id string) (*domain.CoverageZone, error) {
	z := &domain.CoverageZone{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, provider_id, center_lat, center_lon, radius_km, created_at
		FROM coverage_zones WHERE id = $1
	`, id).Scan(&z.ID, &z.ProviderID, &z.Center.Lat, &z.Center.Lon, &z.RadiusKm, &z.CreatedAt)
	if err != nil {
		return nil, mapError("get zone", err)
	}
	return z, nil
}

func (r *ZoneRepo) ListByProvider(ctx context.Context, providerID string) ([]domain.CoverageZone, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, provider_id, center_lat, center_lon, radius_km, created_at
		FROM coverage_zones WHERE provider_id = $1 ORDER BY created_at
	`, providerID)
	if err != nil {
		return nil, mapError("list zones", err)
	}
	defer rows.Close()

	var zones []domain.CoverageZone
	for rows.Next() {
		var z domain.CoverageZone
		if err := rows.Scan(&z.ID, &z.ProviderID, &z.Center.Lat, &z.Center.Lon, &z.RadiusKm, &z.CreatedAt); err != nil {
			return nil, mapError("scan zone", err)
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}
