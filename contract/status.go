package contract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"estateflow/fault"
	"estateflow/machine"
	"estateflow/outbox"
)

// Transitions is the contract lifecycle. Finalized and cancelled are terminal.
var Transitions = machine.Table{
	string(StatusDraft):            {string(StatusPendingSignature), string(StatusCancelled)},
	string(StatusPendingSignature): {string(StatusSigned), string(StatusCancelled)},
	string(StatusSigned):           {string(StatusNotarized)},
	string(StatusNotarized):        {string(StatusFinalized)},
}

// TransitionParams carries one requested contract status change.
type TransitionParams struct {
	ContractID         string
	ActorID            string
	NextStatus         Status
	SignedDate         *time.Time
	CancellationReason string
}

// CheckTransition validates the table entry and the per-target field
// requirements without touching the store.
func CheckTransition(current Status, params TransitionParams) error {
	if err := Transitions.Check("contract", string(current), string(params.NextStatus)); err != nil {
		return err
	}
	switch params.NextStatus {
	case StatusSigned:
		if params.SignedDate == nil || params.SignedDate.IsZero() {
			return fault.Validation("signed_date", "required when signing")
		}
	case StatusCancelled:
		if params.CancellationReason == "" {
			return fault.Validation("cancellation_reason", "required when cancelling")
		}
	}
	return nil
}

// StatusService applies contract transitions atomically.
type StatusService struct {
	pool *pgxpool.Pool
}

func NewStatusService(pool *pgxpool.Pool) *StatusService {
	return &StatusService{pool: pool}
}

// Transition locks the row, validates and writes in one transaction.
func (s *StatusService) Transition(ctx context.Context, params TransitionParams) (Contract, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Contract{}, fmt.Errorf("contract: begin tx: %w", fault.FromPG(err))
	}
	defer tx.Rollback(ctx)

	var current Status
	if err := tx.QueryRow(ctx, `SELECT status FROM contracts WHERE id=$1 FOR UPDATE`, params.ContractID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, fault.NotFound("contract", params.ContractID)
		}
		return Contract{}, fmt.Errorf("contract: lock for transition: %w", fault.FromPG(err))
	}

	if err := CheckTransition(current, params); err != nil {
		return Contract{}, err
	}

	var (
		signedDate   any
		cancelReason any
	)
	if params.NextStatus == StatusSigned {
		signedDate = *params.SignedDate
	}
	if params.NextStatus == StatusCancelled {
		cancelReason = params.CancellationReason
	}

	const updateSQL = `
		UPDATE contracts
		SET status = $2,
		    signed_date = COALESCE($3, signed_date),
		    cancellation_reason = COALESCE($4, cancellation_reason),
		    updated_at = now()
		WHERE id = $1
		RETURNING id, deal_id, party_a_client_id, party_b_client_id, total_value,
		          deposit_amount, paid_amount, remaining_amount, terms, signed_date,
		          cancellation_reason, status, created_by, created_at, updated_at
	`
	updated, err := scanContract(tx.QueryRow(ctx, updateSQL, params.ContractID, params.NextStatus, signedDate, cancelReason))
	if err != nil {
		return Contract{}, fmt.Errorf("contract: update status: %w", fault.FromPG(err))
	}

	if err := outbox.Enqueue(ctx, tx, "contract.status_changed", map[string]any{
		"contract_id": params.ContractID,
		"previous":    current,
		"next":        params.NextStatus,
		"actor_id":    params.ActorID,
	}); err != nil {
		return Contract{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Contract{}, fmt.Errorf("contract: commit transition: %w", fault.FromPG(err))
	}
	return updated, nil
}

func scanContract(row pgx.Row) (Contract, error) {
	var c Contract
	err := row.Scan(
		&c.ID, &c.DealID, &c.PartyAClientID, &c.PartyBClientID, &c.TotalValue,
		&c.DepositAmount, &c.PaidAmount, &c.RemainingAmount, &c.Terms, &c.SignedDate,
		&c.CancellationReason, &c.Status, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Contract{}, err
	}
	return c, nil
}
