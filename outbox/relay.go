package outbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
)

// maxAttempts before a message is parked as dead.
const maxAttempts = 5

// Publisher ships one message to the broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// AMQPPublisher publishes to a RabbitMQ topic exchange.
type AMQPPublisher struct {
	channel  *amqp.Channel
	exchange string
}

// NewAMQPPublisher dials the broker and declares a durable topic exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("outbox: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("outbox: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("outbox: declare exchange: %w", err)
	}
	closer := func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return &AMQPPublisher{channel: ch, exchange: exchange}, closer, nil
}

// Publish sends a persistent JSON message keyed by topic.
func (p *AMQPPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	return p.channel.PublishWithContext(ctx, p.exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
}

// Relay drains pending outbox rows and publishes them.
type Relay struct {
	pool      *pgxpool.Pool
	publisher Publisher
	interval  time.Duration
}

// NewRelay wires a relay polling at the given interval.
func NewRelay(pool *pgxpool.Pool, publisher Publisher, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{pool: pool, publisher: publisher, interval: interval}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := r.DrainOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				log.Printf("outbox relay: drain: %v", err)
			} else if n > 0 {
				log.Printf("outbox relay: published %d messages", n)
			}
		}
	}
}

// DrainOnce claims a batch of pending rows with SKIP LOCKED so concurrent
// relays never double-publish, ships them, and records the outcome.
func (r *Relay) DrainOnce(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox: begin drain tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const claimSQL = `
		SELECT id, topic, payload, attempts
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT 50
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.Query(ctx, claimSQL)
	if err != nil {
		return 0, fmt.Errorf("outbox: claim pending: %w", err)
	}
	batch := make([]Message, 0, 50)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Attempts); err != nil {
			rows.Close()
			return 0, fmt.Errorf("outbox: scan pending: %w", err)
		}
		batch = append(batch, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("outbox: iterate pending: %w", err)
	}

	published := 0
	for _, m := range batch {
		if err := r.publisher.Publish(ctx, m.Topic, m.Payload); err != nil {
			if err := r.recordFailure(ctx, tx, m); err != nil {
				return published, err
			}
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox SET status = 'processed', attempts = attempts + 1 WHERE id = $1`, m.ID); err != nil {
			return published, fmt.Errorf("outbox: mark processed: %w", err)
		}
		published++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("outbox: commit drain: %w", err)
	}
	return published, nil
}

func (r *Relay) recordFailure(ctx context.Context, tx pgx.Tx, m Message) error {
	status := "pending"
	if m.Attempts+1 >= maxAttempts {
		status = "dead"
	}
	if _, err := tx.Exec(ctx, `UPDATE outbox SET status = $2, attempts = attempts + 1 WHERE id = $1`, m.ID, status); err != nil {
		return fmt.Errorf("outbox: record failure: %w", err)
	}
	return nil
}
