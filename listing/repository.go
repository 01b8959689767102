package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"estateflow/fault"
)

// CreateParams enumerates the fields an agent supplies when filing a listing.
type CreateParams struct {
	ClientID string
	StaffID  string
	Address  string
	Price    int64
}

// Repository provides CRUD access plus the append-only price history.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a listing in status created and seeds its price history.
func (r *Repository) Create(ctx context.Context, params CreateParams) (Listing, error) {
	if params.ClientID == "" {
		return Listing{}, fault.Validation("client_id", "required")
	}
	if params.StaffID == "" {
		return Listing{}, fault.Validation("staff_id", "required")
	}
	if params.Price <= 0 {
		return Listing{}, fault.Validation("price", "must be positive")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("listing: begin tx: %w", fault.FromPG(err))
	}
	defer tx.Rollback(ctx)

	const insertSQL = `
		INSERT INTO listings (client_id, staff_id, address, price, status)
		VALUES ($1, $2, $3, $4, 'created')
		RETURNING id, client_id, staff_id, address, price, status, created_at, updated_at
	`
	var rec Listing
	if err := tx.QueryRow(ctx, insertSQL, params.ClientID, params.StaffID, params.Address, params.Price).Scan(
		&rec.ID, &rec.ClientID, &rec.StaffID, &rec.Address, &rec.Price, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return Listing{}, fmt.Errorf("listing: insert: %w", fault.FromPG(err))
	}

	const historySQL = `
		INSERT INTO price_history (listing_id, old_price, new_price, changed_by)
		VALUES ($1, $2, $2, $3)
	`
	if _, err := tx.Exec(ctx, historySQL, rec.ID, params.Price, params.StaffID); err != nil {
		return Listing{}, fmt.Errorf("listing: seed price history: %w", fault.FromPG(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return Listing{}, fmt.Errorf("listing: commit create: %w", fault.FromPG(err))
	}
	return rec, nil
}

// GetByID fetches a listing by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Listing, error) {
	const query = `
		SELECT id, client_id, staff_id, address, price, status, created_at, updated_at
		FROM listings
		WHERE id = $1
	`
	var rec Listing
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.ClientID, &rec.StaffID, &rec.Address, &rec.Price, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, fault.NotFound("listing", id)
		}
		return Listing{}, fmt.Errorf("listing: query by id: %w", fault.FromPG(err))
	}
	return rec, nil
}

// UpdatePrice changes the asking price and appends the immutable history
// record in the same transaction.
func (r *Repository) UpdatePrice(ctx context.Context, listingID, actorID string, newPrice int64) (Listing, error) {
	if newPrice <= 0 {
		return Listing{}, fault.Validation("price", "must be positive")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("listing: begin tx: %w", fault.FromPG(err))
	}
	defer tx.Rollback(ctx)

	var oldPrice int64
	if err := tx.QueryRow(ctx, `SELECT price FROM listings WHERE id=$1 FOR UPDATE`, listingID).Scan(&oldPrice); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, fault.NotFound("listing", listingID)
		}
		return Listing{}, fmt.Errorf("listing: lock for price update: %w", fault.FromPG(err))
	}

	const updateSQL = `
		UPDATE listings SET price = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, client_id, staff_id, address, price, status, created_at, updated_at
	`
	var rec Listing
	if err := tx.QueryRow(ctx, updateSQL, listingID, newPrice).Scan(
		&rec.ID, &rec.ClientID, &rec.StaffID, &rec.Address, &rec.Price, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return Listing{}, fmt.Errorf("listing: update price: %w", fault.FromPG(err))
	}

	const historySQL = `
		INSERT INTO price_history (listing_id, old_price, new_price, changed_by)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(ctx, historySQL, listingID, oldPrice, newPrice, actorID); err != nil {
		return Listing{}, fmt.Errorf("listing: append price history: %w", fault.FromPG(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return Listing{}, fmt.Errorf("listing: commit price update: %w", fault.FromPG(err))
	}
	return rec, nil
}

// PriceHistory lists a listing's price changes, oldest first.
func (r *Repository) PriceHistory(ctx context.Context, listingID string) ([]PriceChange, error) {
	const query = `
		SELECT id, listing_id, old_price, new_price, changed_by, created_at
		FROM price_history
		WHERE listing_id = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("listing: list price history: %w", fault.FromPG(err))
	}
	defer rows.Close()

	out := make([]PriceChange, 0, 8)
	for rows.Next() {
		var pc PriceChange
		if err := rows.Scan(&pc.ID, &pc.ListingID, &pc.OldPrice, &pc.NewPrice, &pc.ChangedBy, &pc.CreatedAt); err != nil {
			return nil, fmt.Errorf("listing: scan price change: %w", err)
		}
		out = append(out, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing: iterate price history: %w", err)
	}
	return out, nil
}

// StatusHistory lists a listing's status transitions, oldest first.
func (r *Repository) StatusHistory(ctx context.Context, listingID string) ([]StatusChange, error) {
	const query = `
		SELECT id, listing_id, old_status, new_status, reason, changed_by, created_at
		FROM listing_status_history
		WHERE listing_id = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("listing: list status history: %w", fault.FromPG(err))
	}
	defer rows.Close()

	out := make([]StatusChange, 0, 8)
	for rows.Next() {
		var sc StatusChange
		if err := rows.Scan(&sc.ID, &sc.ListingID, &sc.OldStatus, &sc.NewStatus, &sc.Reason, &sc.ChangedBy, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("listing: scan status change: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing: iterate status history: %w", err)
	}
	return out, nil
}
