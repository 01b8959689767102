package contract

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"estateflow/fault"
	"estateflow/outbox"
)

// Repository provides contract access. Drafts are created inside the
// deal-finalize transaction via CreateTx.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a contract by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Contract, error) {
	const query = `
		SELECT id, deal_id, party_a_client_id, party_b_client_id, total_value,
		       deposit_amount, paid_amount, remaining_amount, terms, signed_date,
		       cancellation_reason, status, created_by, created_at, updated_at
		FROM contracts
		WHERE id = $1
	`
	rec, err := scanContract(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, fault.NotFound("contract", id)
		}
		return Contract{}, fmt.Errorf("contract: query by id: %w", fault.FromPG(err))
	}
	return rec, nil
}

// CreateTx inserts a draft contract inside the caller's transaction. The
// ledger starts with the deposit already paid: paid_amount = deposit_amount,
// remaining_amount = total_value - deposit_amount.
func CreateTx(ctx context.Context, tx pgx.Tx, params CreateParams) (Contract, error) {
	if params.DealID == "" {
		return Contract{}, fault.Validation("deal_id", "required")
	}
	if params.PartyAClientID == "" || params.PartyBClientID == "" {
		return Contract{}, fault.Validation("parties", "both client parties are required")
	}
	if params.TotalValue <= 0 {
		return Contract{}, fault.Validation("total_value", "must be positive")
	}
	if params.DepositAmount < 0 || params.DepositAmount > params.TotalValue {
		return Contract{}, fault.Validation("deposit_amount", "must be between 0 and total_value")
	}

	const insertSQL = `
		INSERT INTO contracts (deal_id, party_a_client_id, party_b_client_id, total_value,
		                       deposit_amount, paid_amount, remaining_amount, terms, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $5, $4 - $5, $6, 'draft', $7)
		RETURNING id, deal_id, party_a_client_id, party_b_client_id, total_value,
		          deposit_amount, paid_amount, remaining_amount, terms, signed_date,
		          cancellation_reason, status, created_by, created_at, updated_at
	`
	rec, err := scanContract(tx.QueryRow(ctx, insertSQL,
		params.DealID, params.PartyAClientID, params.PartyBClientID,
		params.TotalValue, params.DepositAmount, params.Terms, params.ActorID,
	))
	if err != nil {
		return Contract{}, fmt.Errorf("contract: insert draft: %w", fault.FromPG(err))
	}

	if err := outbox.Enqueue(ctx, tx, "contract.created", map[string]any{
		"contract_id": rec.ID,
		"deal_id":     rec.DealID,
		"total_value": rec.TotalValue,
	}); err != nil {
		return Contract{}, err
	}
	return rec, nil
}

// UpdateDraftTerms mutates total_value and terms. Legal only while draft;
// the ledger is recomputed against the paid amount so remaining never goes
// negative.
func (r *Repository) UpdateDraftTerms(ctx context.Context, contractID, actorID string, totalValue int64, terms []string) (Contract, error) {
	if totalValue <= 0 {
		return Contract{}, fault.Validation("total_value", "must be positive")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Contract{}, fmt.Errorf("contract: begin tx: %w", fault.FromPG(err))
	}
	defer tx.Rollback(ctx)

	var (
		current Status
		paid    int64
	)
	if err := tx.QueryRow(ctx, `SELECT status, paid_amount FROM contracts WHERE id=$1 FOR UPDATE`, contractID).Scan(&current, &paid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, fault.NotFound("contract", contractID)
		}
		return Contract{}, fmt.Errorf("contract: lock draft: %w", fault.FromPG(err))
	}
	if current != StatusDraft {
		return Contract{}, fault.Validation("status", "contract terms are mutable only while draft")
	}
	if totalValue < paid {
		return Contract{}, fault.Validation("total_value", "must not drop below the paid amount")
	}

	const updateSQL = `
		UPDATE contracts
		SET total_value = $2, remaining_amount = $2 - paid_amount, terms = $3, updated_at = now()
		WHERE id = $1
		RETURNING id, deal_id, party_a_client_id, party_b_client_id, total_value,
		          deposit_amount, paid_amount, remaining_amount, terms, signed_date,
		          cancellation_reason, status, created_by, created_at, updated_at
	`
	rec, err := scanContract(tx.QueryRow(ctx, updateSQL, contractID, totalValue, terms))
	if err != nil {
		return Contract{}, fmt.Errorf("contract: update draft: %w", fault.FromPG(err))
	}

	if err := outbox.Enqueue(ctx, tx, "contract.terms_updated", map[string]any{
		"contract_id": rec.ID,
		"total_value": rec.TotalValue,
		"actor_id":    actorID,
	}); err != nil {
		return Contract{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Contract{}, fmt.Errorf("contract: commit draft update: %w", fault.FromPG(err))
	}
	return rec, nil
}
