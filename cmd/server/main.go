package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ride-hailing/internal/config"
	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/fares"
	"github.com/example/ride-hailing/internal/geo"
	httpapi "github.com/example/ride-hailing/internal/http"
	"github.com/example/ride-hailing/internal/ingest"
	"github.com/example/ride-hailing/internal/logging"
	"github.com/example/ride-hailing/internal/payments"
	"github.com/example/ride-hailing/internal/presence"
	"github.com/example/ride-hailing/internal/rides"
	"github.com/example/ride-hailing/internal/search"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	grid := geo.NewGrid(cfg.CellResolution, cfg.CellEdgeKm)

	var locStore presence.Store
	if cfg.RedisAddr != "" {
		locStore = presence.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.PresenceTTL)
	} else {
		locStore = presence.NewMemoryStore(cfg.PresenceTTL)
	}

	var producer presence.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		producer = kp
	}
	tracker := presence.NewTracker(grid, locStore, producer)

	var rideStore rides.Store
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			runMigrations(cfg.PGDSN, logger)
		}
		ps, err := rides.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		rideStore = ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory ride store")
		rideStore = rides.NewMemoryStore()
	}

	fareProvider := &fares.Provider{Cache: fares.NewCache(cfg.FareCacheTTL)}
	if cfg.FareEndpoint != "" {
		fareProvider.Remote = fares.NewHTTPQuoter(cfg.FareEndpoint)
	}

	wsReg := dispatch.NewRegistry()
	var push *dispatch.PushClient
	if cfg.PushEndpoint != "" {
		push = dispatch.NewPushClient(cfg.PushEndpoint, cfg.PushKey)
	}
	notifier := dispatch.NewNotifier(wsReg, push, logger)

	rideSvc := &rides.Service{
		Store:  rideStore,
		Search: &search.Service{Grid: grid, Store: locStore, MaxK: cfg.SearchMaxK},
		Fares:  fareProvider,
		Notify: notifier,
		Logger: logger,
	}
	if cfg.StripeAPIKey != "" {
		rideSvc.Payments = payments.NewStripeSettler(cfg.StripeAPIKey)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(rideSvc, tracker, wsReg, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ride-hailing api listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func runMigrations(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open error", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_rides.sql"))
	if err != nil {
		logger.Error("migration read error", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec error", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_create_rides.sql")
}
