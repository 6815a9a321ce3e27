package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/asierbarrena/oficios/internal/core/domain"
	"github.com/asierbarrena/oficios/internal/core/ports"
)

// ApplicationRepo implements ports.ApplicationRepository. The uniqueness
// of (request_id, provider_id) and the single-accepted guard live in the
// schema and in AcceptAndDiscard's transaction, so they hold across
// processes, not just within one registry instance.
type ApplicationRepo struct {
	db *DB
}

func NewApplicationRepo(db *DB) *ApplicationRepo {
	return &ApplicationRepo{db: db}
}

const applicationColumns = `id, request_id, provider_id, message, status, version, created_at, updated_at`

func scanApplication(row interface{ Scan(...any) error }) (*domain.Application, error) {
	a := &domain.Application{}
	err := row.Scan(&a.ID, &a.RequestID, &a.ProviderID, &a.Message, &a.Status,
		&a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *ApplicationRepo) Create(ctx context.Context, app *domain.Application) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO applications (id, request_id, provider_id, message, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, app.ID, app.RequestID, app.ProviderID, app.Message, app.Status, app.Version, app.CreatedAt, app.UpdatedAt)
	return mapError("create application", err)
}

func (r *ApplicationRepo) GetByID(ctx context.Context, id string) (*domain.Application, error) {
	app, err := scanApplication(r.db.Pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if err != nil {
		return nil, mapError("get application", err)
	}
	return app, nil
}

func (r *ApplicationRepo) ListByRequest(ctx context.Context, requestID string) ([]domain.Application, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE request_id = $1 ORDER BY created_at DESC`,
		requestID)
	if err != nil {
		return nil, mapError("list applications by request", err)
	}
	return collectApplications(rows)
}

func (r *ApplicationRepo) ListByProvider(ctx context.Context, providerID string) ([]domain.Application, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE provider_id = $1 ORDER BY created_at DESC`,
		providerID)
	if err != nil {
		return nil, mapError("list applications by provider", err)
	}
	return collectApplications(rows)
}

// UpdateStatus is a version-guarded conditional write.
func (r *ApplicationRepo) UpdateStatus(ctx context.Context, id string, status domain.ApplicationStatus, expectedVersion int64) (*domain.Application, error) {
	app, err := scanApplication(r.db.Pool.QueryRow(ctx, `
		UPDATE applications
		SET status = $1, version = version + 1, updated_at = now()
		WHERE id = $2 AND version = $3
		RETURNING `+applicationColumns, status, id, expectedVersion))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("application %s at version %d: %w", id, expectedVersion, domain.ErrConcurrencyConflict)
		}
		return nil, mapError("update application status", err)
	}
	return app, nil
}

// AcceptAndDiscard runs the acceptance cascade in one transaction:
//
//  1. close the parent request, guarded on "still open and nothing
//     accepted yet" — the compare-and-swap that picks the single winner;
//  2. flip the chosen application to accepted, guarded on it still being
//     pending or shortlisted;
//  3. discard every other pending/shortlisted sibling.
//
// Either all three land or none do.
func (r *ApplicationRepo) AcceptAndDiscard(ctx context.Context, requestID, applicationID string) (*ports.AcceptResult, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, mapError("begin accept tx", err)
	}
	defer tx.Rollback(ctx)

	req, err := scanRequest(tx.QueryRow(ctx, `
		UPDATE service_requests
		SET status = 'closed', version = version + 1, updated_at = now()
		WHERE id = $1
		  AND status = 'open'
		  AND NOT EXISTS (
			SELECT 1 FROM applications WHERE request_id = $1 AND status = 'accepted'
		  )
		RETURNING `+requestColumns, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("request %s already decided: %w", requestID, domain.ErrConcurrencyConflict)
		}
		return nil, mapError("close request for acceptance", err)
	}

	accepted, err := scanApplication(tx.QueryRow(ctx, `
		UPDATE applications
		SET status = 'accepted', version = version + 1, updated_at = now()
		WHERE id = $1 AND request_id = $2 AND status IN ('pending', 'shortlisted')
		RETURNING `+applicationColumns, applicationID, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("application %s not acceptable: %w", applicationID, domain.ErrIllegalTransition)
		}
		return nil, mapError("accept application", err)
	}

	rows, err := tx.Query(ctx, `
		UPDATE applications
		SET status = 'discarded', version = version + 1, updated_at = now()
		WHERE request_id = $1 AND id <> $2 AND status IN ('pending', 'shortlisted')
		RETURNING `+applicationColumns, requestID, applicationID)
	if err != nil {
		return nil, mapError("discard siblings", err)
	}
	discarded, err := collectApplications(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapError("commit accept tx", err)
	}

	return &ports.AcceptResult{Accepted: accepted, Discarded: discarded, Request: req}, nil
}

func (r *ApplicationRepo) HasAccepted(ctx context.Context, requestID string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM applications WHERE request_id = $1 AND status = 'accepted')`,
		requestID).Scan(&exists)
	if err != nil {
		return false, mapError("check accepted", err)
	}
	return exists, nil
}

func collectApplications(rows pgxRows) ([]domain.Application, error) {
	defer rows.Close()
	var out []domain.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, mapError("scan application", err)
		}
		out = append(out, *app)
	}
	return out, rows.Err()
}
