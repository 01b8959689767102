package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"estateflow/auth"
	"estateflow/fault"
)

func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

// Repository handles data access for permission grants.
type Repository interface {
	IsGranted(ctx context.Context, role auth.Role, resource Resource, action Action) (bool, error)
	ListAll(ctx context.Context) ([]Entry, error)
	ReplaceAll(ctx context.Context, entries []Entry) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed permission repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// IsGranted looks up a single grant. A missing row means deny.
func (r *PGRepository) IsGranted(ctx context.Context, role auth.Role, resource Resource, action Action) (bool, error) {
	const query = `
		SELECT granted
		FROM permissions
		WHERE role = $1 AND resource = $2 AND action = $3
	`

	var granted bool
	err := r.pool.QueryRow(ctx, query, role, resource, action).Scan(&granted)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("permission: lookup grant: %w", fault.FromPG(err))
	}
	return granted, nil
}

// ListAll returns every stored grant ordered by (role, resource, action).
func (r *PGRepository) ListAll(ctx context.Context) ([]Entry, error) {
	const query = `
		SELECT role, resource, action, granted, updated_at
		FROM permissions
		ORDER BY role, resource, action
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("permission: list grants: %w", fault.FromPG(err))
	}
	defer rows.Close()

	entries := make([]Entry, 0, 32)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Role, &e.Resource, &e.Action, &e.Granted, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("permission: scan grant: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("permission: iterate grants: %w", err)
	}
	return entries, nil
}

// ReplaceAll swaps the stored grant set for entries in one transaction.
// Callers validate entries first; a failure anywhere leaves the table as it was.
func (r *PGRepository) ReplaceAll(ctx context.Context, entries []Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("permission: begin tx: %w", fault.FromPG(err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM permissions`); err != nil {
		return fmt.Errorf("permission: clear grants: %w", fault.FromPG(err))
	}

	const insertSQL = `
		INSERT INTO permissions (role, resource, action, granted, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (role, resource, action)
		DO UPDATE SET granted = EXCLUDED.granted, updated_at = now()
	`
	for _, e := range entries {
		if _, err := tx.Exec(ctx, insertSQL, e.Role, e.Resource, e.Action, e.Granted); err != nil {
			return fmt.Errorf("permission: upsert grant %s/%s/%s: %w", e.Role, e.Resource, e.Action, fault.FromPG(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("permission: commit grants: %w", fault.FromPG(err))
	}
	return nil
}
