package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"estateflow/appointment"
	"estateflow/auth"
	"estateflow/contract"
	"estateflow/db"
	"estateflow/deal"
	"estateflow/listing"
	"estateflow/outbox"
	"estateflow/permission"
	"estateflow/voucher"
	"estateflow/workflow"
)

// services is the wired application graph. The HTTP layer is mounted on top
// of this in the gateway deployment; the binary here runs the background
// relay and keeps the graph alive for embedding.
type services struct {
	auth          *auth.Service
	permissions   *permission.Service
	listings      *listing.Repository
	listingStatus *listing.StatusService
	appointments  *appointment.Service
	apptStatus    *appointment.StatusService
	contracts     *contract.Repository
	contractSts   *contract.StatusService
	vouchers      *voucher.Service
	deals         *deal.Repository
	orchestrator  *workflow.Orchestrator
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	svcs := &services{
		auth:          auth.NewService(auth.NewRepository(pool), jwtSecret),
		permissions:   permission.NewService(permission.NewRepository(pool)),
		listings:      listing.NewRepository(pool),
		listingStatus: listing.NewStatusService(pool),
		appointments:  appointment.NewService(pool),
		apptStatus:    appointment.NewStatusService(pool),
		contracts:     contract.NewRepository(pool),
		contractSts:   contract.NewStatusService(pool),
		vouchers:      voucher.NewService(pool),
		deals:         deal.NewRepository(pool),
	}
	svcs.orchestrator = workflow.NewOrchestrator(pool, svcs.permissions, svcs.auth, svcs.deals, svcs.listings, nil).
		WithCalendar(svcs.appointments, svcs.apptStatus).
		WithListingStatus(svcs.listingStatus).
		WithContractFlow(svcs.contracts, svcs.contractSts).
		WithVouchers(svcs.vouchers)

	g, ctx := errgroup.WithContext(ctx)

	if amqpURL := os.Getenv("AMQP_URL"); amqpURL != "" {
		exchange := os.Getenv("AMQP_EXCHANGE")
		if exchange == "" {
			exchange = "estateflow.events"
		}
		publisher, closePub, err := outbox.NewAMQPPublisher(amqpURL, exchange)
		if err != nil {
			log.Fatalf("bootstrap amqp publisher: %v", err)
		}
		defer closePub()

		relay := outbox.NewRelay(pool, publisher, 2*time.Second)
		g.Go(func() error {
			return relay.Run(ctx)
		})
		log.Printf("outbox relay started against exchange %s", exchange)
	} else {
		log.Print("AMQP_URL empty, outbox relay disabled")
	}

	log.Printf("workflow services ready: %v", svcs.orchestrator != nil)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("shutdown: %v", err)
	}
}
