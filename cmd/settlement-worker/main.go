// The settlement worker consumes normalized gateway events from the queue
// and drives the reconciler. Redelivery is safe: the reconciler treats the
// booking's payment status as the idempotency boundary.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ramzeth/bookslot/internal/adapters/crdb"
	"github.com/ramzeth/bookslot/internal/adapters/rabbit"
	"github.com/ramzeth/bookslot/internal/config"
	"github.com/ramzeth/bookslot/internal/domain"
	"github.com/ramzeth/bookslot/internal/observability"
	"github.com/ramzeth/bookslot/internal/reconcile"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	pub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	notifier := rabbit.NewNotifier(pub)

	consumer, err := rabbit.NewConsumer(conn, "settlement.q", "payment.settled", "payment.refunded")
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}

	reconciler := reconcile.NewReconciler(repo, notifier, cfg.RefundTable(), cfg.MeetingBaseURL, cfg.ReleaseSlotOnRefund, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go consume(ctx, consumer, reconciler, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown settlement worker")
}

func consume(ctx context.Context, consumer *rabbit.Consumer, reconciler *reconcile.Reconciler, logger observability.Logger) {
	msgs, err := consumer.Consume(ctx)
	if err != nil {
		logger.Error("start consuming", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				return
			}
			handle(ctx, d, reconciler, logger)
		}
	}
}

func handle(ctx context.Context, d amqp.Delivery, reconciler *reconcile.Reconciler, logger observability.Logger) {
	switch d.RoutingKey {
	case "payment.settled":
		var ev domain.SettlementConfirmed
		if err := json.Unmarshal(d.Body, &ev); err != nil {
			logger.Error("unmarshal settlement event", err)
			_ = d.Nack(false, false)
			return
		}
		if err := reconciler.ApplySettlement(ctx, ev); err != nil {
			logger.WithField("booking_id", ev.BookingID.String()).Error("apply settlement", err)
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)

	case "payment.refunded":
		var ev domain.RefundConfirmed
		if err := json.Unmarshal(d.Body, &ev); err != nil {
			logger.Error("unmarshal refund event", err)
			_ = d.Nack(false, false)
			return
		}
		if _, err := reconciler.ApplyRefund(ctx, ev); err != nil {
			logger.WithField("booking_id", ev.BookingID.String()).Error("apply refund", err)
			// Rejected refunds are terminal for this delivery; only
			// transient failures are worth redelivering.
			requeue := !isTerminal(err)
			_ = d.Nack(false, requeue)
			return
		}
		_ = d.Ack(false)

	default:
		_ = d.Ack(false)
	}
}

func isTerminal(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrNoPaidPayment)
}
