package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/newrelic"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"campusride/internal/app"
	"campusride/internal/auth"
	"campusride/internal/config"
	"campusride/internal/events"
	"campusride/internal/handler"
	"campusride/internal/lock"
	"campusride/internal/logging"
	"campusride/internal/redis"
	"campusride/internal/repository"
	"campusride/internal/repository/memory"
	"campusride/internal/repository/postgres"
	"campusride/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.IsProduction(), cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", zap.Error(err))
		} else {
			logger.Info("New Relic enabled", zap.String("app", cfg.NewRelic.AppName))
		}
	}

	stores, db, err := openStores(ctx, cfg, nrApp)
	if err != nil {
		logger.Fatal("failed to open stores", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	if db != nil {
		defer db.Close()
		logger.Info("connected to PostgreSQL")
	}

	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = app.NewRedisClient(ctx, cfg.Redis, nrApp)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	bus := events.NewBus()
	if cfg.Kafka.Enabled {
		forwarder := events.NewKafkaForwarder(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer forwarder.Close()
		bus.SubscribeAll(forwarder.Handle)
		logger.Info("forwarding events to Kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	server, err := wireServer(cfg, stores, redisClient, bus, nrApp, logger)
	if err != nil {
		logger.Fatal("failed to wire server", zap.Error(err))
	}

	// Start server in goroutine.
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Driver), zap.String("locks", cfg.Store.LockDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Info("server exited")
}

// storeSet holds one repository per entity.
type storeSet struct {
	profiles     repository.ProfileRepository
	rides        repository.RideRepository
	bookings     repository.BookingRepository
	transactions repository.TransactionRepository
	ledger       repository.LedgerStore
	ratings      repository.RatingRepository
}

// openStores builds the repositories for the configured driver. db is nil for
// the memory driver.
func openStores(ctx context.Context, cfg *config.Config, nrApp *newrelic.Application) (storeSet, *sql.DB, error) {
	if cfg.Store.Driver != "postgres" {
		profiles := memory.NewProfileRepository()
		transactions := memory.NewTransactionRepository()
		return storeSet{
			profiles:     profiles,
			rides:        memory.NewRideRepository(),
			bookings:     memory.NewBookingRepository(),
			transactions: transactions,
			ledger:       memory.NewLedgerStore(transactions, profiles),
			ratings:      memory.NewRatingRepository(),
		}, nil, nil
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		return storeSet{}, nil, err
	}
	return storeSet{
		profiles:     postgres.NewProfileRepository(db),
		rides:        postgres.NewRideRepository(db),
		bookings:     postgres.NewBookingRepository(db),
		transactions: postgres.NewTransactionRepository(db),
		ledger:       postgres.NewLedgerStore(db),
		ratings:      postgres.NewRatingRepository(db),
	}, db, nil
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	cfg *config.Config,
	stores storeSet,
	redisClient *goredis.Client,
	bus *events.Bus,
	nrApp *newrelic.Application,
	logger *zap.Logger,
) (*http.Server, error) {
	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Store.LockDriver == "redis" {
		locker = redis.NewLockStore(redisClient)
	}

	// Interfaces stay nil without Redis so the services and middleware skip them.
	var trustCache redis.TrustCacheInterface
	var idempotency redis.IdempotencyStoreInterface
	if redisClient != nil {
		trustCache = redis.NewCacheStore(redisClient)
		idempotency = redis.NewIdempotencyStore(redisClient)
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = randomSecret()
		logger.Warn("JWT_SECRET is not set; using a random secret, tokens will not survive a restart")
	}
	issuer, err := auth.NewIssuer(secret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	backoff := service.Backoff{Attempts: cfg.Booking.ReserveAttempts, BaseDelay: cfg.Booking.RetryBaseDelay}

	// Initialize services.
	profileService := service.NewProfileService(stores.profiles, logger)
	catalog := service.NewRideCatalog(stores.rides, stores.profiles, locker, bus, logger, cfg.Booking.SeatLockTTL)
	ledger := service.NewWalletLedger(stores.transactions, stores.ledger, stores.profiles, locker, bus, logger, backoff)
	coordinator := service.NewBookingCoordinator(stores.bookings, stores.profiles, catalog, ledger, bus, logger, cfg.Booking.FarePerSeat, backoff)
	trust := service.NewTrustScoreAggregator(stores.ratings, stores.profiles, stores.rides, trustCache, locker, bus, logger, backoff)
	match := service.NewMatchEngine(cfg.Match.Campus, cfg.Match.MinLead, cfg.Match.MaxLead)

	// Cancelling a ride settles its bookings before UpdateStatus returns.
	bus.Subscribe(events.RideCancelled, coordinator.HandleRideCancelled)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		ProfileHandler:    handler.NewProfileHandler(profileService, issuer),
		RideHandler:       handler.NewRideHandler(catalog, coordinator, trust, match),
		BookingHandler:    handler.NewBookingHandler(coordinator, catalog),
		WalletHandler:     handler.NewWalletHandler(ledger),
		RatingHandler:     handler.NewRatingHandler(trust),
		Issuer:            issuer,
		IdempotencyStore:  idempotency,
		NewRelicApp:       nrApp,
		Logger:            logger,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
