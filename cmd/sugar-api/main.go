package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vasiliy-maslov/sugar-marketplace/internal/auth"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/cart"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/config"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/db"
	apihttp "github.com/vasiliy-maslov/sugar-marketplace/internal/handler/http"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/idempotency"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/order"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/outbox"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/storage/memory"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/telemetry"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/user"
)

type repositories struct {
	users     user.Repository
	foodItems catalog.Repository
	carts     cart.Repository
	orders    order.Repository
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	if cfg.IsDevelopment() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.With().Str("service", cfg.App.Name).Logger()

	log.Info().Str("env", cfg.App.Env).Str("storage", cfg.Storage.Driver).Msg("Sugar API starting...")

	shutdownTracing, err := telemetry.Setup(cfg.App.Name, cfg.Tracing.Enabled, os.Stdout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up tracing")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		repos     repositories
		dbConn    *db.Postgres
		relayDone = make(chan struct{})
	)

	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		store := memory.NewStore()
		repos = repositories{
			users:     store.Users(),
			foodItems: store.FoodItems(),
			carts:     store.Carts(),
			orders:    store.Orders(),
		}
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
	default:
		if err := db.Migrate(cfg.Postgres); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply database migrations")
		}
		dbConn, err = db.New(ctx, cfg.Postgres)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		repos = repositories{
			users:     user.NewRepository(dbConn.Pool),
			foodItems: catalog.NewRepository(dbConn.Pool),
			carts:     cart.NewRepository(dbConn.Pool),
			orders:    order.NewRepository(dbConn.Pool),
		}
	}

	userSvc := user.NewService(repos.users)
	if cfg.Auth.AdminEmail != "" {
		if _, err := userSvc.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			log.Fatal().Err(err).Msg("Failed to provision admin account")
		}
	}

	var (
		dedup       order.Deduplicator
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled() {
		redisClient = idempotency.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to redis")
		}
		dedup = idempotency.NewStore(redisClient, cfg.Redis.IdempotencyTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Checkout idempotency keys enabled")
	}

	relayCtx, cancelRelay := context.WithCancel(context.Background())
	defer cancelRelay()
	if cfg.Kafka.Enabled() && dbConn != nil {
		writer := outbox.NewKafkaWriter(cfg.Kafka.Brokers)
		defer func() {
			if err := writer.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close kafka writer")
			}
		}()

		hostname, _ := os.Hostname()
		relay := outbox.NewRelay(
			outbox.NewPostgresStore(dbConn.Pool),
			outbox.NewDispatcher(writer, cfg.Kafka.Topic),
			hostname+"-"+uuid.Must(uuid.NewV4()).String()[:8],
			cfg.Kafka.BatchSize,
			cfg.Kafka.RelayInterval,
		)
		go func() {
			defer close(relayDone)
			if err := relay.Run(relayCtx); err != nil {
				log.Error().Err(err).Msg("Outbox relay exited")
			}
		}()
	} else {
		close(relayDone)
		if cfg.Kafka.Enabled() {
			log.Warn().Msg("Kafka brokers configured but outbox relay needs postgres storage, skipping")
		}
	}

	catalogSvc := catalog.NewService(repos.foodItems)
	cartSvc := cart.NewService(repos.carts, repos.foodItems)
	orderSvc := order.NewService(repos.orders, dedup)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	router := apihttp.NewRouter(log.Logger, tokens,
		apihttp.NewAuthHandler(userSvc, tokens),
		apihttp.NewCatalogHandler(catalogSvc),
		apihttp.NewCartHandler(cartSvc),
		apihttp.NewOrderHandler(orderSvc),
	)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      otelhttp.NewHandler(router, "http.server"),
		ReadTimeout:  cfg.App.ReadTimeout,
		WriteTimeout: cfg.App.WriteTimeout,
		IdleTimeout:  cfg.App.IdleTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancelRelay()
	<-relayDone

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close redis client")
		}
	}
	if dbConn != nil {
		dbConn.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to flush traces")
	}

	log.Info().Msg("Sugar API stopped")
}
