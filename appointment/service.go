package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"estateflow/fault"
	"estateflow/outbox"
)

// scheduleConflictMsg is the exact message the HTTP layer surfaces.
const scheduleConflictMsg = "Schedule conflict detected"

// Service books and reschedules appointments. The conflict check and the
// write happen inside one transaction guarded by a per-staff advisory lock,
// so two concurrent bookings for the same calendar serialize instead of both
// observing a stale "no conflict" state.
type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Book creates an appointment after the atomic conflict check.
func (s *Service) Book(ctx context.Context, params CreateParams) (Appointment, error) {
	if err := validateSlot(params.StartTime, params.EndTime); err != nil {
		return Appointment{}, err
	}
	if params.ListingID == "" {
		return Appointment{}, fault.Validation("real_estate_id", "required")
	}
	if params.ClientID == "" {
		return Appointment{}, fault.Validation("client_id", "required")
	}
	if params.StaffID == "" {
		return Appointment{}, fault.Validation("staff_id", "required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Appointment{}, fmt.Errorf("appointment: begin tx: %w", fault.FromPG(err))
	}
	defer tx.Rollback(ctx)

	if err := lockCalendar(ctx, tx, params.StaffID); err != nil {
		return Appointment{}, err
	}

	detector := NewDetector(NewPGCalendar(tx))
	conflict, err := detector.HasConflict(ctx, params.StaffID, params.StartTime, params.EndTime, "")
	if err != nil {
		return Appointment{}, err
	}
	if conflict {
		return Appointment{}, fault.Conflict(scheduleConflictMsg)
	}

	const insertSQL = `
		INSERT INTO appointments (listing_id, client_id, staff_id, start_time, end_time, location, note, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'created', $8)
		RETURNING id, listing_id, client_id, staff_id, start_time, end_time,
		          location, note, result_note, status, created_by, created_at, updated_at
	`
	createdBy := params.ActorID
	if createdBy == "" {
		createdBy = params.StaffID
	}
	rec, err := scanAppointment(tx.QueryRow(ctx, insertSQL,
		params.ListingID, params.ClientID, params.StaffID,
		params.StartTime, params.EndTime, params.Location, params.Note, createdBy,
	))
	if err != nil {
		return Appointment{}, fmt.Errorf("appointment: insert: %w", fault.FromPG(err))
	}

	if err := outbox.Enqueue(ctx, tx, "appointment.created", map[string]any{
		"appointment_id": rec.ID,
		"staff_id":       rec.StaffID,
		"listing_id":     rec.ListingID,
	}); err != nil {
		return Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Appointment{}, fmt.Errorf("appointment: commit booking: %w", fault.FromPG(err))
	}
	return rec, nil
}

// Reschedule moves an existing appointment to a new slot. The appointment's
// own interval is excluded from the conflict comparison set.
func (s *Service) Reschedule(ctx context.Context, appointmentID, actorID string, start, end time.Time) (Appointment, error) {
	if err := validateSlot(start, end); err != nil {
		return Appointment{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Appointment{}, fmt.Errorf("appointment: begin tx: %w", fault.FromPG(err))
	}
	defer tx.Rollback(ctx)

	var (
		staffID string
		current Status
	)
	if err := tx.QueryRow(ctx, `SELECT staff_id, status FROM appointments WHERE id=$1 FOR UPDATE`, appointmentID).Scan(&staffID, &current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, fault.NotFound("appointment", appointmentID)
		}
		return Appointment{}, fmt.Errorf("appointment: lock for reschedule: %w", fault.FromPG(err))
	}
	if current == StatusCompleted || current == StatusCancelled {
		return Appointment{}, fault.Validation("status", fmt.Sprintf("cannot reschedule a %s appointment", current))
	}

	if err := lockCalendar(ctx, tx, staffID); err != nil {
		return Appointment{}, err
	}

	detector := NewDetector(NewPGCalendar(tx))
	conflict, err := detector.HasConflict(ctx, staffID, start, end, appointmentID)
	if err != nil {
		return Appointment{}, err
	}
	if conflict {
		return Appointment{}, fault.Conflict(scheduleConflictMsg)
	}

	const updateSQL = `
		UPDATE appointments
		SET start_time = $2, end_time = $3, updated_at = now()
		WHERE id = $1
		RETURNING id, listing_id, client_id, staff_id, start_time, end_time,
		          location, note, result_note, status, created_by, created_at, updated_at
	`
	rec, err := scanAppointment(tx.QueryRow(ctx, updateSQL, appointmentID, start, end))
	if err != nil {
		return Appointment{}, fmt.Errorf("appointment: update slot: %w", fault.FromPG(err))
	}

	if err := outbox.Enqueue(ctx, tx, "appointment.rescheduled", map[string]any{
		"appointment_id": rec.ID,
		"staff_id":       rec.StaffID,
		"actor_id":       actorID,
	}); err != nil {
		return Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Appointment{}, fmt.Errorf("appointment: commit reschedule: %w", fault.FromPG(err))
	}
	return rec, nil
}

// GetByID fetches an appointment by its primary key.
func (s *Service) GetByID(ctx context.Context, id string) (Appointment, error) {
	const query = `
		SELECT id, listing_id, client_id, staff_id, start_time, end_time,
		       location, note, result_note, status, created_by, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`
	rec, err := scanAppointment(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, fault.NotFound("appointment", id)
		}
		return Appointment{}, fmt.Errorf("appointment: query by id: %w", fault.FromPG(err))
	}
	return rec, nil
}

// HasCompletedFor reports whether a completed appointment links the client
// and listing. The deal workflow uses the tx-scoped variant.
func (s *Service) HasCompletedFor(ctx context.Context, clientID, listingID string) (bool, error) {
	return hasCompletedFor(ctx, s.pool, clientID, listingID)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HasCompletedForTx is the precondition check run inside the deal-creation
// transaction.
func HasCompletedForTx(ctx context.Context, tx pgx.Tx, clientID, listingID string) (bool, error) {
	return hasCompletedFor(ctx, tx, clientID, listingID)
}

func hasCompletedFor(ctx context.Context, q rowQuerier, clientID, listingID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE client_id = $1 AND listing_id = $2 AND status = 'completed'
		)
	`
	var exists bool
	if err := q.QueryRow(ctx, query, clientID, listingID).Scan(&exists); err != nil {
		return false, fmt.Errorf("appointment: check completed viewing: %w", fault.FromPG(err))
	}
	return exists, nil
}

// lockCalendar serializes bookings per staff member for the rest of the
// transaction. hashtextextended folds the uuid into the bigint advisory key
// space.
func lockCalendar(ctx context.Context, tx pgx.Tx, staffID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, staffID); err != nil {
		return fmt.Errorf("appointment: lock calendar: %w", fault.FromPG(err))
	}
	return nil
}

func validateSlot(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fault.Validation("start_time", "start_time and end_time are required")
	}
	if !start.Before(end) {
		return fault.Validation("end_time", "end_time must be after start_time")
	}
	return nil
}
