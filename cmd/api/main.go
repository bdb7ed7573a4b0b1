package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/slotkeeper/server/internal/activity"
	"github.com/slotkeeper/server/internal/auth"
	"github.com/slotkeeper/server/internal/channel"
	"github.com/slotkeeper/server/internal/config"
	"github.com/slotkeeper/server/internal/db"
	httphandler "github.com/slotkeeper/server/internal/http"
	"github.com/slotkeeper/server/internal/middleware"
	"github.com/slotkeeper/server/internal/notify"
	"github.com/slotkeeper/server/internal/pool"
	"github.com/slotkeeper/server/internal/repo"
	"github.com/slotkeeper/server/internal/repo/memory"
	"github.com/slotkeeper/server/internal/repo/sqlite"
	"github.com/slotkeeper/server/internal/sealed"
)

func main() {
	// Load .env from CWD (env vars override)
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level := slog.LevelInfo
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Create context for startup operations
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	box, err := sealed.New(cfg.SealingIdentity)
	if err != nil {
		log.Fatalf("Failed to load sealing identity: %v", err)
	}
	if !box.Enabled() {
		log.Printf("SEALING_IDENTITY not set, credential secrets are stored in plaintext")
	}

	channels, err := channel.Load(cfg.ChannelsFile)
	if err != nil {
		log.Fatalf("Failed to load channels: %v", err)
	}

	bus := activity.NewBus(500)
	defer bus.Close()

	svc := pool.NewService(store,
		pool.WithChannels(channels),
		pool.WithActivity(bus),
		pool.WithSealing(box),
		pool.WithLogger(logger.With("component", "pool")),
		pool.WithMaxAttempts(cfg.AllocateMaxAttempts),
	)
	checker := notify.NewChecker(svc, cfg.LowStockThreshold)

	// Create router
	router := httphandler.NewRouter(httphandler.Deps{
		Pool:         svc,
		Channels:     channels,
		Warnings:     checker,
		Activity:     bus,
		Tokens:       auth.NewJWTService(cfg.JWTSecret),
		AllocLimiter: middleware.NewRateLimiter(cfg.AllocateRatePerMin, max(1, cfg.AllocateRatePerMin/6)),
		AllowOrigins: cfg.AllowOrigins,
	})

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	smtp := notify.SMTPSettings{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.NotifyFrom,
		To:       cfg.NotifyTo,
	}
	if smtp.Enabled() {
		digest := notify.NewDigest(checker, notify.NewSMTPSender(smtp), cfg.NotifyInterval, logger.With("component", "notify"))
		go digest.Run(bgCtx)
		log.Printf("Warning digest enabled, every %s to %v", cfg.NotifyInterval, cfg.NotifyTo)
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s (storage=%s)", cfg.Port, cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopBackground()
	// Close the bus first so activity streams end and Shutdown does not wait on them
	bus.Close()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// openStore opens the configured storage backend and applies migrations
func openStore(ctx context.Context, cfg *config.Config) (repo.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		database, err := db.OpenPostgres(ctx, cfg.DatabaseURL, db.DefaultPoolOptions())
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(database, db.DialectPostgres); err != nil {
			_ = database.Close()
			return nil, err
		}
		return repo.NewPostgresStore(database), nil
	case config.DriverSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case config.DriverMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}
