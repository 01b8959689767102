package appointment

import "time"

type Status string

const (
	StatusCreated   Status = "created"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Appointment mirrors the appointments table. The [StartTime, EndTime)
// interval is half-open: an appointment ending at 11:00 does not clash with
// one starting at 11:00.
type Appointment struct {
	ID         string
	ListingID  string
	ClientID   string
	StaffID    string
	StartTime  time.Time
	EndTime    time.Time
	Location   *string
	Note       *string
	ResultNote *string
	Status     Status
	CreatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CreateParams enumerates the booking input.
type CreateParams struct {
	ListingID string    `json:"real_estate_id"`
	ClientID  string    `json:"client_id"`
	StaffID   string    `json:"staff_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Location  *string   `json:"location,omitempty"`
	Note      *string   `json:"note,omitempty"`
	ActorID   string    `json:"-"`
}
