package voucher

import "time"

type Type string

const (
	TypeReceipt Type = "receipt"
	TypePayment Type = "payment"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusConfirmed Status = "confirmed"
)

// Voucher mirrors the vouchers table. A confirmed voucher is immutable.
type Voucher struct {
	ID         string
	ContractID string
	Type       Type
	Amount     int64
	Note       *string
	Status     Status
	CreatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CreateParams enumerates the voucher-creation input.
type CreateParams struct {
	ContractID string  `json:"contract_id"`
	Type       Type    `json:"type"`
	Amount     int64   `json:"amount"`
	Note       *string `json:"note,omitempty"`
	ActorID    string  `json:"-"`
}
