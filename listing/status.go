package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"estateflow/fault"
	"estateflow/machine"
	"estateflow/outbox"
)

// Transitions is the listing lifecycle. The pending_legal_check
// self-transition records a legal-check rejection without changing state.
var Transitions = machine.Table{
	string(StatusCreated):           {string(StatusPendingLegalCheck)},
	string(StatusPendingLegalCheck): {string(StatusListed), string(StatusPendingLegalCheck)},
	string(StatusListed):            {string(StatusNegotiating), string(StatusSuspended)},
	string(StatusNegotiating):       {string(StatusListed), string(StatusTransacted)},
	string(StatusSuspended):         {string(StatusListed)},
}

// TransitionParams carries one requested listing status change.
type TransitionParams struct {
	ListingID  string
	ActorID    string
	NextStatus Status
	Reason     string
}

// CheckTransition validates the requested change against the table and the
// per-transition field requirements, without touching the store.
func CheckTransition(current Status, params TransitionParams) error {
	if err := Transitions.Check("listing", string(current), string(params.NextStatus)); err != nil {
		return err
	}
	// A legal-check rejection keeps the status but must record why.
	if current == StatusPendingLegalCheck && params.NextStatus == StatusPendingLegalCheck && params.Reason == "" {
		return fault.Validation("reason", "legal check rejection requires a note")
	}
	return nil
}

// StatusService applies listing transitions, appending status history and an
// outbox message in the same transaction.
type StatusService struct {
	pool *pgxpool.Pool
}

func NewStatusService(pool *pgxpool.Pool) *StatusService {
	return &StatusService{pool: pool}
}

// Transition runs the full check-then-write sequence as one atomic unit.
func (s *StatusService) Transition(ctx context.Context, params TransitionParams) (Listing, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("listing: begin tx: %w", fault.FromPG(err))
	}
	defer tx.Rollback(ctx)

	updated, err := ApplyTransitionTx(ctx, tx, params)
	if err != nil {
		return Listing{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Listing{}, fmt.Errorf("listing: commit transition: %w", fault.FromPG(err))
	}
	return updated, nil
}

// ApplyTransitionTx locks the listing row, validates the transition and
// writes the new status plus history inside the caller's transaction. The
// deal workflow reuses it so listing flips commit atomically with the deal.
func ApplyTransitionTx(ctx context.Context, tx pgx.Tx, params TransitionParams) (Listing, error) {
	var current Status
	if err := tx.QueryRow(ctx, `SELECT status FROM listings WHERE id=$1 FOR UPDATE`, params.ListingID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, fault.NotFound("listing", params.ListingID)
		}
		return Listing{}, fmt.Errorf("listing: lock for transition: %w", fault.FromPG(err))
	}

	if err := CheckTransition(current, params); err != nil {
		return Listing{}, err
	}

	const updateSQL = `
		UPDATE listings
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, client_id, staff_id, address, price, status, created_at, updated_at
	`
	var updated Listing
	if err := tx.QueryRow(ctx, updateSQL, params.ListingID, params.NextStatus).Scan(
		&updated.ID, &updated.ClientID, &updated.StaffID, &updated.Address,
		&updated.Price, &updated.Status, &updated.CreatedAt, &updated.UpdatedAt,
	); err != nil {
		return Listing{}, fmt.Errorf("listing: update status: %w", fault.FromPG(err))
	}

	if err := appendStatusHistory(ctx, tx, params.ListingID, current, params.NextStatus, params.Reason, params.ActorID); err != nil {
		return Listing{}, err
	}

	if err := outbox.Enqueue(ctx, tx, "listing.status_changed", map[string]any{
		"listing_id": params.ListingID,
		"previous":   current,
		"next":       params.NextStatus,
		"actor_id":   params.ActorID,
	}); err != nil {
		return Listing{}, err
	}

	return updated, nil
}

func appendStatusHistory(ctx context.Context, tx pgx.Tx, listingID string, old, next Status, reason, actorID string) error {
	var reasonArg any
	if reason != "" {
		reasonArg = reason
	}
	const q = `
		INSERT INTO listing_status_history (listing_id, old_status, new_status, reason, changed_by)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, q, listingID, old, next, reasonArg, actorID); err != nil {
		return fmt.Errorf("listing: append status history: %w", fault.FromPG(err))
	}
	return nil
}
