package voucher

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"estateflow/fault"
	"estateflow/outbox"
)

// Service creates vouchers and applies confirmations to the contract ledger.
// Confirmation is the only code path that mutates a contract's paid_amount.
type Service struct {
	pool  *pgxpool.Pool
	idGen func() string
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{
		pool:  pool,
		idGen: func() string { return uuid.NewString() },
	}
}

// WithIDGenerator overrides voucher id generation, for deterministic tests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

// Create inserts a voucher in status created.
func (s *Service) Create(ctx context.Context, params CreateParams) (Voucher, error) {
	if params.ContractID == "" {
		return Voucher{}, fault.Validation("contract_id", "required")
	}
	if params.Type != TypeReceipt && params.Type != TypePayment {
		return Voucher{}, fault.Validation("type", fmt.Sprintf("unknown voucher type %q", params.Type))
	}
	if params.Amount <= 0 {
		return Voucher{}, fault.Validation("amount", "must be positive")
	}

	const insertSQL = `
		INSERT INTO vouchers (id, contract_id, type, amount, note, status, created_by)
		VALUES ($1, $2, $3, $4, $5, 'created', $6)
		RETURNING id, contract_id, type, amount, note, status, created_by, created_at, updated_at
	`
	rec, err := scanVoucher(s.pool.QueryRow(ctx, insertSQL,
		s.idGen(), params.ContractID, params.Type, params.Amount, params.Note, params.ActorID,
	))
	if err != nil {
		return Voucher{}, fmt.Errorf("voucher: insert: %w", fault.FromPG(err))
	}
	return rec, nil
}

// GetByID fetches a voucher by its primary key.
func (s *Service) GetByID(ctx context.Context, id string) (Voucher, error) {
	const query = `
		SELECT id, contract_id, type, amount, note, status, created_by, created_at, updated_at
		FROM vouchers
		WHERE id = $1
	`
	rec, err := scanVoucher(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, fault.NotFound("voucher", id)
		}
		return Voucher{}, fmt.Errorf("voucher: query by id: %w", fault.FromPG(err))
	}
	return rec, nil
}

// Confirm flips the voucher to confirmed and, for receipts, moves the owning
// contract's ledger by exactly the voucher amount, exactly once. Confirming
// an already-confirmed voucher fails and leaves the ledger untouched.
func (s *Service) Confirm(ctx context.Context, voucherID, actorID string) (Voucher, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Voucher{}, fmt.Errorf("voucher: begin tx: %w", fault.FromPG(err))
	}
	defer tx.Rollback(ctx)

	var (
		contractID string
		vType      Type
		amount     int64
		current    Status
	)
	const lockSQL = `
		SELECT contract_id, type, amount, status
		FROM vouchers
		WHERE id = $1
		FOR UPDATE
	`
	if err := tx.QueryRow(ctx, lockSQL, voucherID).Scan(&contractID, &vType, &amount, &current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, fault.NotFound("voucher", voucherID)
		}
		return Voucher{}, fmt.Errorf("voucher: lock for confirm: %w", fault.FromPG(err))
	}
	if current != StatusCreated {
		return Voucher{}, fault.InvalidTransition("voucher", string(current), string(StatusConfirmed))
	}

	const confirmSQL = `
		UPDATE vouchers
		SET status = 'confirmed', updated_at = now()
		WHERE id = $1
		RETURNING id, contract_id, type, amount, note, status, created_by, created_at, updated_at
	`
	rec, err := scanVoucher(tx.QueryRow(ctx, confirmSQL, voucherID))
	if err != nil {
		return Voucher{}, fmt.Errorf("voucher: confirm: %w", fault.FromPG(err))
	}

	// Only receipts move the ledger; payment vouchers record money out
	// without touching the contract balance.
	if vType == TypeReceipt {
		if err := applyReceipt(ctx, tx, contractID, amount); err != nil {
			return Voucher{}, err
		}
	}

	if err := outbox.Enqueue(ctx, tx, "voucher.confirmed", map[string]any{
		"voucher_id":  rec.ID,
		"contract_id": contractID,
		"type":        vType,
		"amount":      amount,
		"actor_id":    actorID,
	}); err != nil {
		return Voucher{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Voucher{}, fmt.Errorf("voucher: commit confirm: %w", fault.FromPG(err))
	}
	return rec, nil
}

func applyReceipt(ctx context.Context, tx pgx.Tx, contractID string, amount int64) error {
	var totalValue, paid int64
	if err := tx.QueryRow(ctx, `SELECT total_value, paid_amount FROM contracts WHERE id=$1 FOR UPDATE`, contractID).Scan(&totalValue, &paid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fault.NotFound("contract", contractID)
		}
		return fmt.Errorf("voucher: lock contract ledger: %w", fault.FromPG(err))
	}
	if paid+amount > totalValue {
		return fault.Validation("amount", "receipt would push paid_amount past total_value")
	}

	const ledgerSQL = `
		UPDATE contracts
		SET paid_amount = paid_amount + $2,
		    remaining_amount = total_value - (paid_amount + $2),
		    updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, ledgerSQL, contractID, amount); err != nil {
		return fmt.Errorf("voucher: apply receipt to ledger: %w", fault.FromPG(err))
	}
	return nil
}

func scanVoucher(row pgx.Row) (Voucher, error) {
	var v Voucher
	err := row.Scan(
		&v.ID, &v.ContractID, &v.Type, &v.Amount, &v.Note, &v.Status,
		&v.CreatedBy, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return Voucher{}, err
	}
	return v, nil
}
