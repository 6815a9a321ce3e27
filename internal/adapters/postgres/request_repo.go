package postgres

import (
	"context"
	"fmt"

	"github.com/asierbarrena/oficios/internal/core/domain"
)

// RequestRepo implements ports.RequestRepository.
type RequestRepo struct {
	db *DB
}

func NewRequestRepo(db *DB) *RequestRepo {
	return &RequestRepo{db: db}
}

const requestColumns = `id, requester_id, category_id, lat, lon, description, requires_credential, status, version, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (*domain.ServiceRequest, error) {
	r := &domain.ServiceRequest{}
	err := row.Scan(&r.ID, &r.RequesterID, &r.CategoryID, &r.Location.Lat, &r.Location.Lon,
		&r.Description, &r.RequiresCredential, &r.Status, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RequestRepo) Create(ctx context.Context, req *domain.ServiceRequest) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO service_requests (id, requester_id, category_id, lat, lon, description, requires_credential, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, req.ID, req.RequesterID, req.CategoryID, req.Location.Lat, req.Location.Lon,
		req.Description, req.RequiresCredential, req.Status, req.Version, req.CreatedAt, req.UpdatedAt)
	return mapError("create request", err)
}

func (r *RequestRepo) GetByID(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	req, err := scanRequest(r.db.Pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM service_requests WHERE id = $1`, id))
	if err != nil {
		return nil, mapError("get request", err)
	}
	return req, nil
}

// Update is a version-guarded conditional write; it also refuses to touch
// a request that already has an accepted application.
func (r *RequestRepo) Update(ctx context.Context, req *domain.ServiceRequest) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE service_requests
		SET category_id = $1, lat = $2, lon = $3, description = $4,
		    requires_credential = $5, version = version + 1, updated_at = $6
		WHERE id = $7
		  AND version = $8
		  AND NOT EXISTS (
			SELECT 1 FROM applications WHERE request_id = $7 AND status = 'accepted'
		  )
	`, req.CategoryID, req.Location.Lat, req.Location.Lon, req.Description,
		req.RequiresCredential, req.UpdatedAt, req.ID, req.Version)
	if err != nil {
		return mapError("update request", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %s at version %d: %w", req.ID, req.Version, domain.ErrConcurrencyConflict)
	}
	req.Version++
	return nil
}

func (r *RequestRepo) Close(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE service_requests SET status = 'closed', version = version + 1, updated_at = now()
		WHERE id = $1 AND status = 'open'
	`, id)
	if err != nil {
		return mapError("close request", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %s: %w", id, domain.ErrRequestClosed)
	}
	return nil
}

func (r *RequestRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		DELETE FROM service_requests
		WHERE id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM applications WHERE request_id = $1 AND status = 'accepted'
		  )
	`, id)
	if err != nil {
		return mapError("delete request", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %s: %w", id, domain.ErrRequestClosed)
	}
	return nil
}

func (r *RequestRepo) ListOpen(ctx context.Context) ([]domain.ServiceRequest, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+requestColumns+` FROM service_requests WHERE status = 'open' ORDER BY created_at DESC`)
	if err != nil {
		return nil, mapError("list open requests", err)
	}
	return collectRequests(rows)
}

func (r *RequestRepo) ListOpenByCategories(ctx context.Context, categoryIDs []string) ([]domain.ServiceRequest, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+requestColumns+` FROM service_requests
		 WHERE status = 'open' AND category_id = ANY($1)
		 ORDER BY created_at DESC`, categoryIDs)
	if err != nil {
		return nil, mapError("list open requests by category", err)
	}
	return collectRequests(rows)
}

func (r *RequestRepo) ListByRequester(ctx context.Context, requesterID string) ([]domain.ServiceRequest, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+requestColumns+` FROM service_requests WHERE requester_id = $1 ORDER BY created_at DESC`,
		requesterID)
	if err != nil {
		return nil, mapError("list requests by requester", err)
	}
	return collectRequests(rows)
}

type pgxRows interface {
	Next() bool
	Scan(...any) error
	Close()
	Err() error
}

func collectRequests(rows pgxRows) ([]domain.ServiceRequest, error) {
	defer rows.Close()
	var out []domain.ServiceRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, mapError("scan request", err)
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}
