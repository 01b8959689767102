// Package deal implements the negotiated-transaction lifecycle that sits
// between a completed viewing and a contract. It is named deal to keep it
// apart from database transactions.
package deal

import "time"

type Status string

const (
	StatusNegotiating     Status = "negotiating"
	StatusPendingContract Status = "pending_contract"
	StatusCancelled       Status = "cancelled"
)

// Deal mirrors the deals table.
type Deal struct {
	ID           string
	ListingID    string
	ClientID     string
	StaffID      string
	OfferPrice   int64
	Terms        []string
	Status       Status
	CancelReason *string
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateParams enumerates the deal-creation input.
type CreateParams struct {
	ListingID  string   `json:"real_estate_id"`
	ClientID   string   `json:"client_id"`
	OfferPrice int64    `json:"offer_price"`
	Terms      []string `json:"terms"`
	StaffID    string   `json:"-"`
	ActorID    string   `json:"-"`
}
