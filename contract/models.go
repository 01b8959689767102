package contract

import "time"

type Status string

const (
	StatusDraft            Status = "draft"
	StatusPendingSignature Status = "pending_signature"
	StatusSigned           Status = "signed"
	StatusNotarized        Status = "notarized"
	StatusFinalized        Status = "finalized"
	StatusCancelled        Status = "cancelled"
)

// Contract mirrors the contracts table. Amounts are in currency minor units.
// RemainingAmount is always TotalValue minus PaidAmount and never negative;
// PaidAmount is mutated exclusively by voucher confirmation.
type Contract struct {
	ID                 string
	DealID             string
	PartyAClientID     string
	PartyBClientID     string
	TotalValue         int64
	DepositAmount      int64
	PaidAmount         int64
	RemainingAmount    int64
	Terms              []string
	SignedDate         *time.Time
	CancellationReason *string
	Status             Status
	CreatedBy          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CreateParams enumerates the draft-contract input produced when a deal is
// finalized.
type CreateParams struct {
	DealID         string
	PartyAClientID string
	PartyBClientID string
	TotalValue     int64
	DepositAmount  int64
	Terms          []string
	ActorID        string
}
