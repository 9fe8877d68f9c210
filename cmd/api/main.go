package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ramzeth/bookslot/internal/adapters/crdb"
	mongoadapter "github.com/ramzeth/bookslot/internal/adapters/mongo"
	"github.com/ramzeth/bookslot/internal/adapters/rabbit"
	redisadapter "github.com/ramzeth/bookslot/internal/adapters/redis"
	"github.com/ramzeth/bookslot/internal/config"
	httphandler "github.com/ramzeth/bookslot/internal/http"
	"github.com/ramzeth/bookslot/internal/idempotency"
	"github.com/ramzeth/bookslot/internal/notify"
	"github.com/ramzeth/bookslot/internal/observability"
	"github.com/ramzeth/bookslot/internal/rateLimit"
	"github.com/ramzeth/bookslot/internal/reconcile"
	"github.com/ramzeth/bookslot/internal/reminder"
	"github.com/ramzeth/bookslot/internal/reservation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), time.Hour)
	rl := rateLimit.NewRateLimiter(cache)

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.RabbitURL != "" {
		rabbitConn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer rabbitConn.Close()
		rabbitPub, err := rabbit.NewPublisher(rabbitConn)
		if err != nil {
			log.Fatalf("failed to create publisher: %v", err)
		}
		notifier = rabbit.NewNotifier(rabbitPub)
	}

	var audit *mongoadapter.AuditLogger
	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		defer mongoClient.Disconnect(context.Background())
		audit = mongoadapter.NewAuditLogger(mongoClient.Database("bookslot"), logger)
	}

	coordinator := reservation.NewCoordinator(repo, cfg.HoldTTL, cfg.LookAhead, logger)
	reconciler := reconcile.NewReconciler(repo, notifier, cfg.RefundTable(), cfg.MeetingBaseURL, cfg.ReleaseSlotOnRefund, logger)
	scanner := reminder.NewScanner(repo, notifier, logger)

	handlers := httphandler.NewHandlers(cfg, coordinator, reconciler, scanner, repo, cache, idemp, audit)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
