package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"estateflow/fault"
)

// Overlaps reports whether two half-open intervals [s1,e1) and [s2,e2)
// intersect. Touching endpoints do not conflict.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && e1.After(s2)
}

// Calendar is the query capability the detector needs: every non-cancelled
// appointment of a staff member, optionally excluding one id (the appointment
// being rescheduled).
type Calendar interface {
	ActiveIntervals(ctx context.Context, staffID, excludeID string) ([]Interval, error)
}

// Interval is one booked slot on a staff calendar.
type Interval struct {
	AppointmentID string
	Start         time.Time
	End           time.Time
}

// Detector answers the schedule-conflict question for a staff calendar.
// Callers must hold the per-staff booking lock for the answer to stay true
// until their insert or update commits.
type Detector struct {
	cal Calendar
}

func NewDetector(cal Calendar) *Detector {
	return &Detector{cal: cal}
}

// HasConflict reports whether [start, end) overlaps any non-cancelled
// appointment of staffID other than excludeID.
func (d *Detector) HasConflict(ctx context.Context, staffID string, start, end time.Time, excludeID string) (bool, error) {
	intervals, err := d.cal.ActiveIntervals(ctx, staffID, excludeID)
	if err != nil {
		return false, err
	}
	for _, iv := range intervals {
		if Overlaps(start, end, iv.Start, iv.End) {
			return true, nil
		}
	}
	return false, nil
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the calendar can
// run inside a booking transaction.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGCalendar reads staff intervals from the appointments table.
type PGCalendar struct {
	q Querier
}

func NewPGCalendar(q Querier) *PGCalendar {
	return &PGCalendar{q: q}
}

// ActiveIntervals returns every non-cancelled slot of the staff member.
func (c *PGCalendar) ActiveIntervals(ctx context.Context, staffID, excludeID string) ([]Interval, error) {
	const query = `
		SELECT id, start_time, end_time
		FROM appointments
		WHERE staff_id = $1
		  AND status <> 'cancelled'
		  AND ($2 = '' OR id::text <> $2)
	`
	rows, err := c.q.Query(ctx, query, staffID, excludeID)
	if err != nil {
		return nil, fmt.Errorf("appointment: query calendar: %w", fault.FromPG(err))
	}
	defer rows.Close()

	out := make([]Interval, 0, 8)
	for rows.Next() {
		var iv Interval
		if err := rows.Scan(&iv.AppointmentID, &iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("appointment: scan interval: %w", err)
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointment: iterate calendar: %w", err)
	}
	return out, nil
}
