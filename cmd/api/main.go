package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/asierbarrena/oficios/internal/adapters/http"
	natsadapter "github.com/asierbarrena/oficios/internal/adapters/nats"
	"github.com/asierbarrena/oficios/internal/adapters/postgres"
	"github.com/asierbarrena/oficios/internal/adapters/valkey"
	"github.com/asierbarrena/oficios/internal/core/ports"
	"github.com/asierbarrena/oficios/internal/core/usecases"
	"github.com/asierbarrena/oficios/internal/pkg/config"
	"github.com/asierbarrena/oficios/internal/pkg/logging"
	"github.com/asierbarrena/oficios/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("oficios-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("oficios-api", logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache. Optional: services fall through to Postgres when absent.
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, running without cache", "error", err)
		cache = nil
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	// NATS change-event publisher (JetStream). The feed pipeline hangs off
	// these events, so the API refuses to start without it.
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer pub.Close()

	// Raw NATS connection for the WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Repos
	zoneRepo := postgres.NewZoneRepo(db)
	requestRepo := postgres.NewRequestRepo(db)
	appRepo := postgres.NewApplicationRepo(db)
	providerRepo := postgres.NewProviderRepo(db)

	// Use cases
	zoneSvc := usecases.NewZoneService(zoneRepo, cacheSvc, pub)
	requestSvc := usecases.NewRequestService(requestRepo, appRepo, pub)
	appSvc := usecases.NewApplicationService(appRepo, requestRepo, pub)
	matchSvc := usecases.NewMatchService(zoneRepo, requestRepo, providerRepo, cacheSvc)

	deps := &http.Dependencies{
		Zones:        zoneSvc,
		Requests:     requestSvc,
		Applications: appSvc,
		Match:        matchSvc,
		Providers:    providerRepo,
		NATS:         natsConn,
		DB:           db,
		Cache:        cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Oficios API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.oficios.eus",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
