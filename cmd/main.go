/**
 * @description
 * This is the main entry point for the transfer-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * external API clients, message brokers, repositories, the core application service,
 * and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/robfig/cron/v3: Scheduler for the refund reconciliation sweep.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/feeclient, pkg/gatewayclient, pkg/profileclient: Clients for sibling services.
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
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/payvault/transfer-service/internal/api"
	"github.com/payvault/transfer-service/internal/app"
	"github.com/payvault/transfer-service/internal/config"
	"github.com/payvault/transfer-service/internal/store"
	"github.com/payvault/transfer-service/pkg/feeclient"
	"github.com/payvault/transfer-service/pkg/gatewayclient"
	"github.com/payvault/transfer-service/pkg/profileclient"
	"github.com/payvault/transfer-service/pkg/rabbitmq"
)

func main() {
	// Load the optional .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment variables\"")
	}

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.GatewayAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"gateway api key must be configured\" env=GATEWAY_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting transfer-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Pool sizing aligned with the other money-movement services.
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

	// Initialize the RabbitMQ producer to publish events. The broker being
	// down must never block money movement, so fall back to a no-op publisher.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the clients for the payment gateway and sibling services.
	gatewayClient := gatewayclient.NewClient(cfg.GatewayAPIBaseURL, cfg.GatewayAPIKey)
	feeClient := feeclient.NewClient(cfg.FeeServiceURL, cfg.FeeServiceInternalAPIKey)
	profileClient := profileclient.NewClient(cfg.AccountServiceURL, cfg.AccountServiceInternalAPIKey)

	// Redis backs the advisory resolved-name cache; the service degrades to
	// live lookups without it.
	var nameCache app.NameCache = app.NoopNameCache{}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; resolver name cache disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; resolver name cache disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; resolver name cache disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				nameCache = app.NewRedisNameCache(redisClient, cfg.RedisCachePrefix, time.Duration(cfg.ResolverCacheTTLMinutes)*time.Minute)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	validator := app.NewValidator(cfg.MinTransferAmountMinor, cfg.NarrationMaxLength, cfg.AccountNumberLength)
	gatewayTimeout := time.Duration(cfg.GatewayTimeoutSeconds) * time.Second

	// Initialize the core application service with its dependencies.
	transferService := app.NewService(
		repository,
		gatewayClient,
		feeClient,
		producer,
		validator,
		cfg.EventExchange,
		gatewayTimeout,
		cfg.TransactionPINLength,
	)

	resolver := app.NewResolver(
		gatewayClient,
		nameCache,
		time.Duration(cfg.ResolverDebounceMS)*time.Millisecond,
		gatewayTimeout,
	)

	// Schedule the refund reconciliation sweep so no failed transfer is left
	// holding the user's money.
	reconciler := app.NewRefundReconciler(repository, gatewayClient, producer, cfg.EventExchange, cfg.RefundReconcileBatchSize, gatewayTimeout)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.RefundReconcileSchedule, func() {
		reconciler.Sweep(context.Background())
	}); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid refund reconcile schedule\" schedule=%q err=%v", cfg.RefundReconcileSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()
	log.Printf("level=info component=bootstrap msg=\"refund reconciler scheduled\" schedule=%q batch_size=%d", cfg.RefundReconcileSchedule, cfg.RefundReconcileBatchSize)

	// Initialize the API handlers.
	transferHandlers := api.NewTransferHandlers(transferService, resolver, profileClient)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.TransferRoutes(transferHandlers, cfg.JWKSURL))

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
