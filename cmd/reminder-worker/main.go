// The reminder worker runs the periodic sweeps: reminder dispatch for
// upcoming confirmed bookings, and release of expired holds back to open.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ramzeth/bookslot/internal/adapters/crdb"
	"github.com/ramzeth/bookslot/internal/adapters/rabbit"
	"github.com/ramzeth/bookslot/internal/config"
	"github.com/ramzeth/bookslot/internal/notify"
	"github.com/ramzeth/bookslot/internal/observability"
	"github.com/ramzeth/bookslot/internal/reminder"
	"github.com/ramzeth/bookslot/internal/reservation"
)

const releaseBatch = 100

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

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.RabbitURL != "" {
		conn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer conn.Close()
		pub, err := rabbit.NewPublisher(conn)
		if err != nil {
			log.Fatalf("failed to create publisher: %v", err)
		}
		notifier = rabbit.NewNotifier(pub)
	}

	scanner := reminder.NewScanner(repo, notifier, logger)
	coordinator := reservation.NewCoordinator(repo, cfg.HoldTTL, cfg.LookAhead, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go run(ctx, cfg.SweepInterval, scanner, coordinator, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown reminder worker")
}

func run(ctx context.Context, interval time.Duration, scanner *reminder.Scanner, coordinator *reservation.Coordinator, logger observability.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := scanner.Sweep(ctx)
			if err != nil {
				logger.Error("reminder sweep", err)
			} else {
				logger.
					WithField("sent_24h", counts.Sent24h).
					WithField("sent_2h", counts.Sent2h).
					Info("reminder sweep complete")
			}

			released, err := coordinator.ReleaseExpired(ctx, releaseBatch)
			if err != nil {
				logger.Error("release expired holds", err)
			} else if released > 0 {
				logger.WithField("released", released).Info("expired holds released")
			}
		}
	}
}
