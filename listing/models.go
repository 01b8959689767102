package listing

import "time"

type Status string

const (
	StatusCreated           Status = "created"
	StatusPendingLegalCheck Status = "pending_legal_check"
	StatusListed            Status = "listed"
	StatusNegotiating       Status = "negotiating"
	StatusTransacted        Status = "transacted"
	StatusSuspended         Status = "suspended"
)

// Listing mirrors the listings table columns touched by the services.
type Listing struct {
	ID        string
	ClientID  string
	StaffID   string
	Address   string
	Price     int64
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PriceChange is one append-only price history record owned by a listing.
type PriceChange struct {
	ID        int64
	ListingID string
	OldPrice  int64
	NewPrice  int64
	ChangedBy string
	CreatedAt time.Time
}

// StatusChange is one append-only status history record.
type StatusChange struct {
	ID        int64
	ListingID string
	OldStatus Status
	NewStatus Status
	Reason    *string
	ChangedBy string
	CreatedAt time.Time
}
