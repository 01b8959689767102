package deal

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"estateflow/fault"
	"estateflow/listing"
)

// TestDealLifecycle_Integration walks a deal from creation against a listed
// listing through cancellation, checking the listing flips with it.
func TestDealLifecycle_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	var schemaReady bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'deals')`).Scan(&schemaReady); err != nil || !schemaReady {
		t.Skip("database schema missing; apply migrations first")
	}

	nonce := time.Now().UnixNano()
	var staffID, sellerID, buyerID, listingID string
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, password_hash, role) VALUES ($1, 'Dana Staff', 'x', 'agent') RETURNING id`,
		fmt.Sprintf("dana+%d@example.com", nonce)).Scan(&staffID); err != nil {
		t.Fatalf("seed staff: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO clients (full_name, created_by) VALUES ('Serena Seller', $1) RETURNING id`, staffID).Scan(&sellerID); err != nil {
		t.Fatalf("seed seller: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO clients (full_name, created_by) VALUES ('Basil Buyer', $1) RETURNING id`, staffID).Scan(&buyerID); err != nil {
		t.Fatalf("seed buyer: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO listings (client_id, staff_id, address, price, status) VALUES ($1, $2, '9 Pine Rd', 750000, 'listed') RETURNING id`,
		sellerID, staffID).Scan(&listingID); err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO appointments (listing_id, client_id, staff_id, start_time, end_time, status, created_by)
		VALUES ($1, $2, $3, now() - interval '7 days', now() - interval '7 days' + interval '1 hour', 'completed', $3)
	`, listingID, buyerID, staffID); err != nil {
		t.Fatalf("seed completed viewing: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM deals WHERE listing_id = $1`, listingID)
		pool.Exec(ctx2, `DELETE FROM appointments WHERE listing_id = $1`, listingID)
		pool.Exec(ctx2, `DELETE FROM listing_status_history WHERE listing_id = $1`, listingID)
		pool.Exec(ctx2, `DELETE FROM listings WHERE id = $1`, listingID)
		pool.Exec(ctx2, `DELETE FROM clients WHERE id IN ($1, $2)`, sellerID, buyerID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id = $1`, staffID)
	})

	repo := NewRepository(pool)

	inTx := func(t *testing.T, fn func(tx pgx.Tx) error) error {
		t.Helper()
		tx, err := pool.Begin(ctx)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		defer tx.Rollback(ctx)
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	var created Deal
	if err := inTx(t, func(tx pgx.Tx) error {
		var err error
		created, err = repo.CreateTx(ctx, tx, CreateParams{
			ListingID:  listingID,
			ClientID:   buyerID,
			OfferPrice: 720000,
			StaffID:    staffID,
			ActorID:    staffID,
		})
		return err
	}); err != nil {
		t.Fatalf("create deal: %v", err)
	}
	if created.Status != StatusNegotiating {
		t.Fatalf("expected negotiating, got %s", created.Status)
	}

	var listingStatus string
	if err := pool.QueryRow(ctx, `SELECT status FROM listings WHERE id=$1`, listingID).Scan(&listingStatus); err != nil {
		t.Fatalf("read listing: %v", err)
	}
	if listingStatus != string(listing.StatusNegotiating) {
		t.Fatalf("expected listing negotiating, got %s", listingStatus)
	}

	// A second deal on the same listing fails on the listing transition.
	err = inTx(t, func(tx pgx.Tx) error {
		_, err := repo.CreateTx(ctx, tx, CreateParams{
			ListingID:  listingID,
			ClientID:   buyerID,
			OfferPrice: 700000,
			StaffID:    staffID,
			ActorID:    staffID,
		})
		return err
	})
	if !fault.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransitionError for second deal, got %v", err)
	}

	// Cancellation needs a reason and returns the listing to listed.
	err = inTx(t, func(tx pgx.Tx) error {
		_, err := repo.CancelTx(ctx, tx, created.ID, staffID, "")
		return err
	})
	if !fault.IsValidation(err) {
		t.Fatalf("expected ValidationError for empty reason, got %v", err)
	}

	var cancelled Deal
	if err := inTx(t, func(tx pgx.Tx) error {
		var err error
		cancelled, err = repo.CancelTx(ctx, tx, created.ID, staffID, "buyer withdrew")
		return err
	}); err != nil {
		t.Fatalf("cancel deal: %v", err)
	}
	if cancelled.Status != StatusCancelled || cancelled.CancelReason == nil || *cancelled.CancelReason != "buyer withdrew" {
		t.Fatalf("unexpected cancelled deal: %+v", cancelled)
	}
	if err := pool.QueryRow(ctx, `SELECT status FROM listings WHERE id=$1`, listingID).Scan(&listingStatus); err != nil {
		t.Fatalf("read listing: %v", err)
	}
	if listingStatus != string(listing.StatusListed) {
		t.Fatalf("expected listing back to listed, got %s", listingStatus)
	}

	// Cancelled is terminal.
	err = inTx(t, func(tx pgx.Tx) error {
		_, err := repo.FinalizeTx(ctx, tx, created.ID, staffID)
		return err
	})
	if !fault.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransitionError finalizing a cancelled deal, got %v", err)
	}
}
