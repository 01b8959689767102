// Package workflow is the single entry point for mutating actions. Every
// operation is authorized against the permission matrix and then checked for
// row ownership before the underlying service runs. The deal flows (open,
// finalize into a draft contract, cancel) run here as single transactions
// retried whole on transient storage failures; booking, status transitions
// and voucher confirmation delegate to their services after the same gate.
package workflow

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"estateflow/auth"
	"estateflow/contract"
	"estateflow/db"
	"estateflow/deal"
	"estateflow/fault"
	"estateflow/listing"
	"estateflow/permission"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Authorizer answers permission-matrix queries.
type Authorizer interface {
	IsGranted(ctx context.Context, role auth.Role, resource permission.Resource, action permission.Action) (bool, error)
}

// Directory resolves an actor id to the user record carrying its role.
type Directory interface {
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
}

// DealStore is the deal data access the orchestrator drives.
type DealStore interface {
	GetByID(ctx context.Context, id string) (deal.Deal, error)
	CreateTx(ctx context.Context, tx pgx.Tx, params deal.CreateParams) (deal.Deal, error)
	FinalizeTx(ctx context.Context, tx pgx.Tx, dealID, actorID string) (deal.Deal, error)
	CancelTx(ctx context.Context, tx pgx.Tx, dealID, actorID, reason string) (deal.Deal, error)
}

// ListingStore reads listings for ownership checks and contract parties.
type ListingStore interface {
	GetByID(ctx context.Context, id string) (listing.Listing, error)
}

// ContractCreator inserts the draft contract inside the finalize transaction.
type ContractCreator interface {
	CreateTx(ctx context.Context, tx pgx.Tx, params contract.CreateParams) (contract.Contract, error)
}

type contractCreator struct{}

func (contractCreator) CreateTx(ctx context.Context, tx pgx.Tx, params contract.CreateParams) (contract.Contract, error) {
	return contract.CreateTx(ctx, tx, params)
}

type Orchestrator struct {
	pool      TxBeginner
	perms     Authorizer
	users     Directory
	deals     DealStore
	listings  ListingStore
	contracts ContractCreator
	attempts  int

	// wired through the With* methods in guard.go
	calendar       Calendar
	apptStatus     AppointmentTransitioner
	listingStatus  ListingTransitioner
	contractRead   ContractReader
	contractStatus ContractTransitioner
	vouchers       VoucherConfirmer
}

func NewOrchestrator(pool TxBeginner, perms Authorizer, users Directory, deals DealStore, listings ListingStore, contracts ContractCreator) *Orchestrator {
	if contracts == nil {
		contracts = contractCreator{}
	}
	return &Orchestrator{
		pool:      pool,
		perms:     perms,
		users:     users,
		deals:     deals,
		listings:  listings,
		contracts: contracts,
		attempts:  db.DefaultAttempts,
	}
}

// FinalizeParams carries the finalize-deal input. TotalValue defaults to the
// deal's offer price when zero.
type FinalizeParams struct {
	DealID        string   `json:"transaction_id"`
	TotalValue    int64    `json:"total_value"`
	DepositAmount int64    `json:"deposit_amount"`
	Terms         []string `json:"terms"`
	ActorID       string   `json:"-"`
}

// CancelParams carries the cancel-deal input.
type CancelParams struct {
	DealID  string `json:"transaction_id"`
	Reason  string `json:"reason"`
	ActorID string `json:"-"`
}

// CreateDeal opens a deal against a listed listing. The actor needs the
// deal/add grant and must own the listing unless privileged.
func (o *Orchestrator) CreateDeal(ctx context.Context, params deal.CreateParams) (deal.Deal, error) {
	if params.ListingID == "" {
		return deal.Deal{}, fault.Validation("real_estate_id", "required")
	}
	actor, err := o.authorize(ctx, params.ActorID, permission.ResourceDeal, permission.ActionAdd)
	if err != nil {
		return deal.Deal{}, err
	}

	lst, err := o.listings.GetByID(ctx, params.ListingID)
	if err != nil {
		return deal.Deal{}, err
	}
	if err := o.requireOwnership(actor, lst.StaffID); err != nil {
		return deal.Deal{}, err
	}
	if params.StaffID == "" {
		params.StaffID = lst.StaffID
	}

	var created deal.Deal
	err = db.WithRetry(ctx, o.attempts, func(ctx context.Context) error {
		tx, err := o.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("workflow: begin tx: %w", fault.FromPG(err))
		}
		defer tx.Rollback(ctx)

		created, err = o.deals.CreateTx(ctx, tx, params)
		if err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("workflow: commit tx: %w", fault.FromPG(err))
		}
		return nil
	})
	if err != nil {
		return deal.Deal{}, err
	}
	return created, nil
}

// FinalizeDeal moves a deal to pending_contract and creates its draft
// contract in the same transaction. The seller is the listing's client, the
// buyer is the deal's client, and the deposit seeds the paid ledger.
func (o *Orchestrator) FinalizeDeal(ctx context.Context, params FinalizeParams) (deal.Deal, contract.Contract, error) {
	if params.DealID == "" {
		return deal.Deal{}, contract.Contract{}, fault.Validation("transaction_id", "required")
	}
	actor, err := o.authorize(ctx, params.ActorID, permission.ResourceDeal, permission.ActionEdit)
	if err != nil {
		return deal.Deal{}, contract.Contract{}, err
	}

	existing, err := o.deals.GetByID(ctx, params.DealID)
	if err != nil {
		return deal.Deal{}, contract.Contract{}, err
	}
	if err := o.requireOwnership(actor, existing.CreatedBy); err != nil {
		return deal.Deal{}, contract.Contract{}, err
	}

	lst, err := o.listings.GetByID(ctx, existing.ListingID)
	if err != nil {
		return deal.Deal{}, contract.Contract{}, err
	}

	var (
		finalized deal.Deal
		draft     contract.Contract
	)
	err = db.WithRetry(ctx, o.attempts, func(ctx context.Context) error {
		tx, err := o.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("workflow: begin tx: %w", fault.FromPG(err))
		}
		defer tx.Rollback(ctx)

		finalized, err = o.deals.FinalizeTx(ctx, tx, params.DealID, params.ActorID)
		if err != nil {
			return err
		}

		total := params.TotalValue
		if total == 0 {
			total = finalized.OfferPrice
		}
		terms := params.Terms
		if len(terms) == 0 {
			terms = finalized.Terms
		}
		draft, err = o.contracts.CreateTx(ctx, tx, contract.CreateParams{
			DealID:         finalized.ID,
			PartyAClientID: lst.ClientID,
			PartyBClientID: finalized.ClientID,
			TotalValue:     total,
			DepositAmount:  params.DepositAmount,
			Terms:          terms,
			ActorID:        params.ActorID,
		})
		if err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("workflow: commit tx: %w", fault.FromPG(err))
		}
		return nil
	})
	if err != nil {
		return deal.Deal{}, contract.Contract{}, err
	}
	return finalized, draft, nil
}

// CancelDeal cancels a deal and returns its listing to listed as one unit.
func (o *Orchestrator) CancelDeal(ctx context.Context, params CancelParams) (deal.Deal, error) {
	if params.DealID == "" {
		return deal.Deal{}, fault.Validation("transaction_id", "required")
	}
	if params.Reason == "" {
		return deal.Deal{}, fault.Validation("reason", "cancellation reason is required")
	}
	actor, err := o.authorize(ctx, params.ActorID, permission.ResourceDeal, permission.ActionEdit)
	if err != nil {
		return deal.Deal{}, err
	}

	existing, err := o.deals.GetByID(ctx, params.DealID)
	if err != nil {
		return deal.Deal{}, err
	}
	if err := o.requireOwnership(actor, existing.CreatedBy); err != nil {
		return deal.Deal{}, err
	}

	var cancelled deal.Deal
	err = db.WithRetry(ctx, o.attempts, func(ctx context.Context) error {
		tx, err := o.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("workflow: begin tx: %w", fault.FromPG(err))
		}
		defer tx.Rollback(ctx)

		cancelled, err = o.deals.CancelTx(ctx, tx, params.DealID, params.ActorID, params.Reason)
		if err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("workflow: commit tx: %w", fault.FromPG(err))
		}
		return nil
	})
	if err != nil {
		return deal.Deal{}, err
	}
	return cancelled, nil
}

// authorize resolves the actor and checks the matrix grant. Ownership is a
// separate predicate because it needs the target row.
func (o *Orchestrator) authorize(ctx context.Context, actorID string, res permission.Resource, act permission.Action) (*auth.User, error) {
	if actorID == "" {
		return nil, fault.Forbidden("missing actor")
	}
	actor, err := o.users.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	granted, err := o.perms.IsGranted(ctx, actor.Role, res, act)
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, fault.Forbidden(fmt.Sprintf("role %s lacks %s on %s", actor.Role, act, res))
	}
	return actor, nil
}

func (o *Orchestrator) requireOwnership(actor *auth.User, ownerID string) error {
	if actor.Role.Privileged() || actor.ID == ownerID {
		return nil
	}
	return fault.Forbidden("not the owner of the target record")
}
