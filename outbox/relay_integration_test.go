package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type capturingPublisher struct {
	topics   []string
	payloads [][]byte
	fail     bool
}

func (p *capturingPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return nil
}

func TestRelayDrain_Integration(t *testing.T) {
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

	if _, err := pool.Exec(ctx, `DELETE FROM outbox`); err != nil {
		t.Skipf("outbox table unavailable: %v", err)
	}
	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM outbox`)
	})

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := Enqueue(ctx, tx, "listing.status_changed", map[string]any{"listing_id": "l1", "new_status": "listed"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := Enqueue(ctx, tx, "deal.created", map[string]any{"deal_id": "d1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	pub := &capturingPublisher{}
	relay := NewRelay(pool, pub, time.Second)

	n, err := relay.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 published, got %d", n)
	}
	if len(pub.topics) != 2 || pub.topics[0] != "listing.status_changed" || pub.topics[1] != "deal.created" {
		t.Fatalf("wrong topics: %v", pub.topics)
	}
	var body map[string]any
	if err := json.Unmarshal(pub.payloads[1], &body); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if body["deal_id"] != "d1" {
		t.Fatalf("payload not preserved: %v", body)
	}

	var pending int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE status = 'pending'`).Scan(&pending); err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected all rows processed, %d still pending", pending)
	}

	// Draining again is a no-op; processed rows are never re-published.
	if n, err := relay.DrainOnce(ctx); err != nil || n != 0 {
		t.Fatalf("expected empty drain, got n=%d err=%v", n, err)
	}
}

func TestRelayDeadLetters_Integration(t *testing.T) {
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

	if _, err := pool.Exec(ctx, `DELETE FROM outbox`); err != nil {
		t.Skipf("outbox table unavailable: %v", err)
	}
	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM outbox`)
	})

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := Enqueue(ctx, tx, "voucher.confirmed", map[string]any{"voucher_id": "v1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	relay := NewRelay(pool, &capturingPublisher{fail: true}, time.Second)
	for i := 0; i < maxAttempts; i++ {
		if _, err := relay.DrainOnce(ctx); err != nil {
			t.Fatalf("drain %d: %v", i, err)
		}
	}

	var status string
	var attempts int
	if err := pool.QueryRow(ctx, `SELECT status, attempts FROM outbox WHERE topic = 'voucher.confirmed'`).Scan(&status, &attempts); err != nil {
		t.Fatalf("read row: %v", err)
	}
	if status != "dead" {
		t.Fatalf("expected dead after %d failures, got %s", maxAttempts, status)
	}
	if attempts != maxAttempts {
		t.Fatalf("expected %d attempts recorded, got %d", maxAttempts, attempts)
	}
}
