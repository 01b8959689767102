package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"estateflow/fault"
	"estateflow/machine"
	"estateflow/outbox"
)

// Transitions is the appointment lifecycle. Completed and cancelled are
// terminal.
var Transitions = machine.Table{
	string(StatusCreated):   {string(StatusConfirmed), string(StatusCancelled)},
	string(StatusConfirmed): {string(StatusCompleted), string(StatusCancelled)},
}

// TransitionParams carries one requested appointment status change.
// ResultNote is optional and only stored when completing.
type TransitionParams struct {
	AppointmentID string
	ActorID       string
	NextStatus    Status
	ResultNote    *string
}

// StatusService applies appointment transitions atomically.
type StatusService struct {
	pool *pgxpool.Pool
}

func NewStatusService(pool *pgxpool.Pool) *StatusService {
	return &StatusService{pool: pool}
}

// Transition locks the row, validates against the table and writes the new
// status in one transaction.
func (s *StatusService) Transition(ctx context.Context, params TransitionParams) (Appointment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Appointment{}, fmt.Errorf("appointment: begin tx: %w", fault.FromPG(err))
	}
	defer tx.Rollback(ctx)

	var current Status
	if err := tx.QueryRow(ctx, `SELECT status FROM appointments WHERE id=$1 FOR UPDATE`, params.AppointmentID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, fault.NotFound("appointment", params.AppointmentID)
		}
		return Appointment{}, fmt.Errorf("appointment: lock for transition: %w", fault.FromPG(err))
	}

	if err := Transitions.Check("appointment", string(current), string(params.NextStatus)); err != nil {
		return Appointment{}, err
	}

	var resultNote any
	if params.NextStatus == StatusCompleted && params.ResultNote != nil {
		resultNote = *params.ResultNote
	}

	const updateSQL = `
		UPDATE appointments
		SET status = $2,
		    result_note = COALESCE($3, result_note),
		    updated_at = now()
		WHERE id = $1
		RETURNING id, listing_id, client_id, staff_id, start_time, end_time,
		          location, note, result_note, status, created_by, created_at, updated_at
	`
	updated, err := scanAppointment(tx.QueryRow(ctx, updateSQL, params.AppointmentID, params.NextStatus, resultNote))
	if err != nil {
		return Appointment{}, fmt.Errorf("appointment: update status: %w", fault.FromPG(err))
	}

	if err := outbox.Enqueue(ctx, tx, "appointment.status_changed", map[string]any{
		"appointment_id": params.AppointmentID,
		"previous":       current,
		"next":           params.NextStatus,
		"actor_id":       params.ActorID,
	}); err != nil {
		return Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Appointment{}, fmt.Errorf("appointment: commit transition: %w", fault.FromPG(err))
	}
	return updated, nil
}

func scanAppointment(row pgx.Row) (Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.ListingID, &a.ClientID, &a.StaffID, &a.StartTime, &a.EndTime,
		&a.Location, &a.Note, &a.ResultNote, &a.Status, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return Appointment{}, err
	}
	return a, nil
}
