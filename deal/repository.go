package deal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"estateflow/appointment"
	"estateflow/fault"
	"estateflow/listing"
	"estateflow/machine"
	"estateflow/outbox"
)

// Transitions is the deal lifecycle. pending_contract exits into contract
// creation; both it and cancelled are terminal here.
var Transitions = machine.Table{
	string(StatusNegotiating): {string(StatusPendingContract), string(StatusCancelled)},
}

// Repository executes deal mutations inside the caller's transaction so the
// orchestrator controls atomicity and retries.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a deal by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Deal, error) {
	const query = `
		SELECT id, listing_id, client_id, staff_id, offer_price, terms, status,
		       cancel_reason, created_by, created_at, updated_at
		FROM deals
		WHERE id = $1
	`
	rec, err := scanDeal(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deal{}, fault.NotFound("deal", id)
		}
		return Deal{}, fmt.Errorf("deal: query by id: %w", fault.FromPG(err))
	}
	return rec, nil
}

// CreateTx opens a deal for a listing. Inside the caller's transaction it
// flips the listing to negotiating (locking its row, which serializes
// concurrent deal creations for the same listing), verifies the completed
// viewing precondition, and inserts the deal.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, params CreateParams) (Deal, error) {
	if params.ListingID == "" {
		return Deal{}, fault.Validation("real_estate_id", "required")
	}
	if params.ClientID == "" {
		return Deal{}, fault.Validation("client_id", "required")
	}
	if params.OfferPrice <= 0 {
		return Deal{}, fault.Validation("offer_price", "must be positive")
	}

	// Listed -> negotiating; anything else is a stale view and fails here.
	if _, err := listing.ApplyTransitionTx(ctx, tx, listing.TransitionParams{
		ListingID:  params.ListingID,
		ActorID:    params.ActorID,
		NextStatus: listing.StatusNegotiating,
		Reason:     "deal opened",
	}); err != nil {
		return Deal{}, err
	}

	viewed, err := appointment.HasCompletedForTx(ctx, tx, params.ClientID, params.ListingID)
	if err != nil {
		return Deal{}, err
	}
	if !viewed {
		return Deal{}, fault.Validation("client_id", "no completed appointment links this client and listing")
	}

	const insertSQL = `
		INSERT INTO deals (listing_id, client_id, staff_id, offer_price, terms, status, created_by)
		VALUES ($1, $2, $3, $4, $5, 'negotiating', $6)
		RETURNING id, listing_id, client_id, staff_id, offer_price, terms, status,
		          cancel_reason, created_by, created_at, updated_at
	`
	rec, err := scanDeal(tx.QueryRow(ctx, insertSQL,
		params.ListingID, params.ClientID, params.StaffID,
		params.OfferPrice, params.Terms, params.ActorID,
	))
	if err != nil {
		return Deal{}, fmt.Errorf("deal: insert: %w", fault.FromPG(err))
	}

	if err := outbox.Enqueue(ctx, tx, "deal.created", map[string]any{
		"deal_id":     rec.ID,
		"listing_id":  rec.ListingID,
		"offer_price": rec.OfferPrice,
	}); err != nil {
		return Deal{}, err
	}
	return rec, nil
}

// FinalizeTx moves a deal to pending_contract inside the caller's
// transaction. Contract creation happens alongside in the same tx.
func (r *Repository) FinalizeTx(ctx context.Context, tx pgx.Tx, dealID, actorID string) (Deal, error) {
	current, err := lockDeal(ctx, tx, dealID)
	if err != nil {
		return Deal{}, err
	}
	if err := Transitions.Check("deal", string(current), string(StatusPendingContract)); err != nil {
		return Deal{}, err
	}

	const updateSQL = `
		UPDATE deals
		SET status = 'pending_contract', updated_at = now()
		WHERE id = $1
		RETURNING id, listing_id, client_id, staff_id, offer_price, terms, status,
		          cancel_reason, created_by, created_at, updated_at
	`
	rec, err := scanDeal(tx.QueryRow(ctx, updateSQL, dealID))
	if err != nil {
		return Deal{}, fmt.Errorf("deal: finalize: %w", fault.FromPG(err))
	}

	if err := outbox.Enqueue(ctx, tx, "deal.finalized", map[string]any{
		"deal_id":  rec.ID,
		"actor_id": actorID,
	}); err != nil {
		return Deal{}, err
	}
	return rec, nil
}

// CancelTx cancels a deal and returns its listing to listed, as one unit so
// the listing can never stay negotiating with no live deal.
func (r *Repository) CancelTx(ctx context.Context, tx pgx.Tx, dealID, actorID, reason string) (Deal, error) {
	if reason == "" {
		return Deal{}, fault.Validation("reason", "cancellation reason is required")
	}

	current, err := lockDeal(ctx, tx, dealID)
	if err != nil {
		return Deal{}, err
	}
	if err := Transitions.Check("deal", string(current), string(StatusCancelled)); err != nil {
		return Deal{}, err
	}

	const updateSQL = `
		UPDATE deals
		SET status = 'cancelled', cancel_reason = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, listing_id, client_id, staff_id, offer_price, terms, status,
		          cancel_reason, created_by, created_at, updated_at
	`
	rec, err := scanDeal(tx.QueryRow(ctx, updateSQL, dealID, reason))
	if err != nil {
		return Deal{}, fmt.Errorf("deal: cancel: %w", fault.FromPG(err))
	}

	if _, err := listing.ApplyTransitionTx(ctx, tx, listing.TransitionParams{
		ListingID:  rec.ListingID,
		ActorID:    actorID,
		NextStatus: listing.StatusListed,
		Reason:     "deal cancelled: " + reason,
	}); err != nil {
		return Deal{}, err
	}

	if err := outbox.Enqueue(ctx, tx, "deal.cancelled", map[string]any{
		"deal_id":  rec.ID,
		"reason":   reason,
		"actor_id": actorID,
	}); err != nil {
		return Deal{}, err
	}
	return rec, nil
}

func lockDeal(ctx context.Context, tx pgx.Tx, dealID string) (Status, error) {
	var current Status
	if err := tx.QueryRow(ctx, `SELECT status FROM deals WHERE id=$1 FOR UPDATE`, dealID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fault.NotFound("deal", dealID)
		}
		return "", fmt.Errorf("deal: lock: %w", fault.FromPG(err))
	}
	return current, nil
}

func scanDeal(row pgx.Row) (Deal, error) {
	var d Deal
	err := row.Scan(
		&d.ID, &d.ListingID, &d.ClientID, &d.StaffID, &d.OfferPrice, &d.Terms,
		&d.Status, &d.CancelReason, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return Deal{}, err
	}
	return d, nil
}
