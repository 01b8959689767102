// Package actors holds the concurrent workloads of the stress suite. Each
// actor loops until stopped, driving the real service code against the shared
// database. Domain errors (conflicts, invalid transitions, validation) are
// expected under contention and swallowed; only context cancellation ends an
// actor early. Every actor owns its rand.Rand, derived from the run seed, so
// runs replay deterministically without sharing a source across goroutines.
package actors

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"estateflow/appointment"
	"estateflow/deal"
	"estateflow/outbox"
	"estateflow/voucher"
)

func paused(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	case <-time.After(d):
		return false
	}
}

// randomSlot picks a half-hour or full-hour slot inside a two-week business
// window so bookers collide often but not always.
func randomSlot(rng *rand.Rand, base time.Time) (time.Time, time.Time) {
	day := rng.Intn(14)
	hour := 8 + rng.Intn(10)
	half := rng.Intn(2)
	start := base.AddDate(0, 0, day).Add(time.Duration(hour)*time.Hour + time.Duration(half*30)*time.Minute)
	dur := 30 * time.Minute
	if rng.Intn(2) == 0 {
		dur = time.Hour
	}
	return start, start.Add(dur)
}

// Booker hammers one staff calendar with competing bookings.
func Booker(ctx context.Context, pool *pgxpool.Pool, rng *rand.Rand, staffID, clientID, listingID string, base time.Time, stop <-chan struct{}) error {
	svc := appointment.NewService(pool)
	for {
		start, end := randomSlot(rng, base)
		_, _ = svc.Book(ctx, appointment.CreateParams{
			ListingID: listingID,
			ClientID:  clientID,
			StaffID:   staffID,
			StartTime: start,
			EndTime:   end,
			ActorID:   staffID,
		})
		if paused(ctx, stop, time.Duration(10+rng.Intn(30))*time.Millisecond) {
			return nil
		}
	}
}

// Rescheduler moves random live appointments to new slots.
func Rescheduler(ctx context.Context, pool *pgxpool.Pool, rng *rand.Rand, staffID string, base time.Time, stop <-chan struct{}) error {
	svc := appointment.NewService(pool)
	for {
		var id string
		err := pool.QueryRow(ctx,
			`SELECT id FROM appointments WHERE staff_id = $1 AND status IN ('created','confirmed') ORDER BY random() LIMIT 1`,
			staffID).Scan(&id)
		if err == nil {
			start, end := randomSlot(rng, base)
			_, _ = svc.Reschedule(ctx, id, staffID, start, end)
		}
		if paused(ctx, stop, time.Duration(30+rng.Intn(50))*time.Millisecond) {
			return nil
		}
	}
}

// Completer walks appointments through created -> confirmed -> completed so
// the deal precondition keeps getting fresh material.
func Completer(ctx context.Context, pool *pgxpool.Pool, rng *rand.Rand, staffID string, stop <-chan struct{}) error {
	svc := appointment.NewStatusService(pool)
	for {
		var id, status string
		err := pool.QueryRow(ctx,
			`SELECT id, status FROM appointments WHERE staff_id = $1 AND status IN ('created','confirmed') ORDER BY random() LIMIT 1`,
			staffID).Scan(&id, &status)
		if err == nil {
			next := appointment.StatusConfirmed
			if status == string(appointment.StatusConfirmed) {
				next = appointment.StatusCompleted
			}
			_, _ = svc.Transition(ctx, appointment.TransitionParams{
				AppointmentID: id,
				ActorID:       staffID,
				NextStatus:    next,
			})
		}
		if paused(ctx, stop, time.Duration(20+rng.Intn(40))*time.Millisecond) {
			return nil
		}
	}
}

// DealOpener races to open deals on the shared listing. Only one can win at a
// time; the rest fail on the listed -> negotiating transition.
func DealOpener(ctx context.Context, pool *pgxpool.Pool, rng *rand.Rand, listingID, clientID, staffID string, stop <-chan struct{}) error {
	repo := deal.NewRepository(pool)
	for {
		func() {
			tx, err := pool.Begin(ctx)
			if err != nil {
				return
			}
			defer tx.Rollback(ctx)
			if _, err := repo.CreateTx(ctx, tx, deal.CreateParams{
				ListingID:  listingID,
				ClientID:   clientID,
				OfferPrice: int64(100000 + rng.Intn(900000)),
				StaffID:    staffID,
				ActorID:    staffID,
			}); err != nil {
				return
			}
			_ = tx.Commit(ctx)
		}()
		if paused(ctx, stop, time.Duration(20+rng.Intn(40))*time.Millisecond) {
			return nil
		}
	}
}

// DealCanceller closes live deals so the listing cycles back to listed and
// the openers get another shot.
func DealCanceller(ctx context.Context, pool *pgxpool.Pool, rng *rand.Rand, listingID, staffID string, stop <-chan struct{}) error {
	repo := deal.NewRepository(pool)
	for {
		var dealID string
		err := pool.QueryRow(ctx,
			`SELECT id FROM deals WHERE listing_id = $1 AND status = 'negotiating' LIMIT 1`,
			listingID).Scan(&dealID)
		if err == nil {
			func() {
				tx, err := pool.Begin(ctx)
				if err != nil {
					return
				}
				defer tx.Rollback(ctx)
				if _, err := repo.CancelTx(ctx, tx, dealID, staffID, "stress churn"); err != nil {
					return
				}
				_ = tx.Commit(ctx)
			}()
		}
		if paused(ctx, stop, time.Duration(60+rng.Intn(80))*time.Millisecond) {
			return nil
		}
	}
}

// VoucherConfirmer creates receipts against the seeded contract and confirms
// them, pushing the ledger toward full payment. Overdrafts are rejected by
// the service and simply retried smaller next round.
func VoucherConfirmer(ctx context.Context, pool *pgxpool.Pool, rng *rand.Rand, contractID, staffID string, stop <-chan struct{}) error {
	svc := voucher.NewService(pool)
	for {
		created, err := svc.Create(ctx, voucher.CreateParams{
			ContractID: contractID,
			Type:       voucher.TypeReceipt,
			Amount:     int64(1000 + rng.Intn(50000)),
			ActorID:    staffID,
		})
		if err == nil {
			_, _ = svc.Confirm(ctx, created.ID, staffID)
		}
		if paused(ctx, stop, time.Duration(40+rng.Intn(60))*time.Millisecond) {
			return nil
		}
	}
}

type flakyPublisher struct {
	rng *rand.Rand
}

func (p flakyPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if p.rng.Intn(10) == 0 {
		return errors.New("broker flake")
	}
	return nil
}

// OutboxWorker drains the outbox through the relay with a publisher that
// fails one call in ten, exercising the retry and dead-letter accounting.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, rng *rand.Rand, stop <-chan struct{}) error {
	relay := outbox.NewRelay(pool, flakyPublisher{rng: rng}, time.Second)
	for {
		_, _ = relay.DrainOnce(ctx)
		if paused(ctx, stop, 100*time.Millisecond) {
			return nil
		}
	}
}
