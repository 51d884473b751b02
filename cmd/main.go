/**
 * @description
 * This is the main entry point for the credits-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, message brokers, the Redis dedupe cache, repositories, the core
 * application services, the payout scheduler, and the HTTP server. It wires
 * everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/pantrychef/credits-service/internal/api"
	"github.com/pantrychef/credits-service/internal/app"
	"github.com/pantrychef/credits-service/internal/config"
	"github.com/pantrychef/credits-service/internal/domain"
	"github.com/pantrychef/credits-service/internal/store"
	"github.com/pantrychef/credits-service/pkg/rabbitmq"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env for local development; production uses real environment variables.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment variables\"")
	}

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting credits-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Configure connection pool for high-traffic scenarios
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish ledger and payout events.
	var producer rabbitmq.Publisher
	rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Redis backs the webhook dedupe fast path. The service boots and stays
	// correct without it; the database event marker is authoritative.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; webhook dedupe fast path disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; webhook dedupe fast path disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; webhook dedupe fast path disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application services with their dependencies.
	ledgerService := app.NewLedgerService(repository, producer)

	schedule := domain.CheckoutRewardSchedule{
		FirstReward:  cfg.CheckoutRewardFirst,
		SecondReward: cfg.CheckoutRewardSecond,
		SteadyReward: cfg.CheckoutRewardSteady,
	}
	loyaltyService := app.NewLoyaltyService(repository, schedule, producer)

	var deduper app.EventDeduper
	if redisClient != nil {
		deduper = app.NewRedisEventDeduper(redisClient, cfg.EventDedupePrefix, time.Duration(cfg.EventDedupeTTLMinutes)*time.Minute)
	}
	eventProcessor := app.NewEntitlementEventProcessor(repository, deduper)

	payoutBatcher := app.NewPayoutBatcher(repository, cfg.PayoutThreshold(), producer)

	// Start the payout cron scheduler.
	scheduler := app.NewScheduler(payoutBatcher, cfg.PayoutCronSchedule)
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	// Initialize the API handlers.
	creditHandlers := api.NewCreditHandlers(ledgerService, loyaltyService, payoutBatcher)
	webhookHandler := api.NewEntitlementWebhookHandler(eventProcessor, cfg.WebhookAuthToken)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.CreditRoutes(creditHandlers, webhookHandler, cfg.AuthJWKSURL, cfg.InternalAPIKey))

	// Wire up the checkout consumer: bind retail checkout events and ensure
	// graceful shutdown.
	checkoutConsumer := loyaltyService.CheckoutConsumer()

	rabbitConsumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; checkout events limited to http\" err=%v", err)
	} else {
		defer rabbitConsumer.Close()

		checkoutBindings := map[string]func([]byte) bool{
			"retail.checkout.completed": checkoutConsumer.HandleCompleted,
			"retail.checkout.eligible":  checkoutConsumer.HandleEligible,
		}
		if err := rabbitConsumer.ConsumeWithBindings(rabbitmq.EventsExchange, cfg.CheckoutEventQueue, checkoutBindings); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"checkout consumer start failed\" err=%v", err)
		}
		log.Println("level=info component=bootstrap msg=\"checkout consumer started\"")
	}

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
