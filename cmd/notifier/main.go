package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/asierbarrena/oficios/internal/adapters/nats"
	"github.com/asierbarrena/oficios/internal/adapters/postgres"
	"github.com/asierbarrena/oficios/internal/adapters/valkey"
	"github.com/asierbarrena/oficios/internal/core/domain"
	"github.com/asierbarrena/oficios/internal/core/ports"
	"github.com/asierbarrena/oficios/internal/pkg/config"
	"github.com/asierbarrena/oficios/internal/pkg/logging"
	"github.com/asierbarrena/oficios/internal/workflows"
)

const taskQueue = "acceptance-queue"

// The notifier watches the change feed for accepted applications and runs
// the acceptance notification workflow for each one. Temporal gives the
// notification fan-out retries and durability independent of this process.
func main() {
	cfg, err := config.Load("oficios-notifier")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("oficios-notifier", logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	requestRepo := postgres.NewRequestRepo(db)
	appRepo := postgres.NewApplicationRepo(db)

	// Cache for parking undelivered notifications
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	// Temporal
	tc, err := client.Dial(client.Options{
		HostPort: cfg.Temporal.HostPort,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer tc.Close()

	w := worker.New(tc, taskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.AcceptanceWorkflow)
	w.RegisterActivity(&workflows.AcceptanceActivities{
		Requests: requestRepo,
		Apps:     appRepo,
		Cache:    cacheSvc,
		// Notifier is nil until a push provider is wired in; pushes are
		// logged instead of sent.
	})

	// Watch the change feed for acceptances
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL, "notifier")
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer sub.Close()

	err = sub.SubscribeChanges(ctx, func(ctx context.Context, event *domain.ChangeEvent) error {
		if event.Entity != domain.EntityApplication || event.Application == nil {
			return nil
		}
		app := event.Application
		if app.Status != domain.ApplicationAccepted {
			return nil
		}

		req, err := requestRepo.GetByID(ctx, app.RequestID)
		if err != nil {
			return err
		}

		// Collect the losers the cascade discarded
		siblings, err := appRepo.ListByRequest(ctx, app.RequestID)
		if err != nil {
			return err
		}
		var discarded []string
		for _, s := range siblings {
			if s.Status == domain.ApplicationDiscarded {
				discarded = append(discarded, s.ProviderID)
			}
		}

		input := workflows.AcceptanceInput{
			RequestID:           req.ID,
			RequesterID:         req.RequesterID,
			AcceptedAppID:       app.ID,
			AcceptedProviderID:  app.ProviderID,
			DiscardedProviderID: discarded,
		}
		// Workflow ID keyed on the application makes duplicate events
		// harmless: Temporal rejects the second start.
		_, err = tc.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
			ID:        "acceptance-" + app.ID,
			TaskQueue: taskQueue,
		}, workflows.AcceptanceWorkflow, input)
		if err != nil {
			slog.Warn("start acceptance workflow", "application", app.ID, "error", err)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("subscribe changes: %v", err)
	}

	slog.Info("notifier worker started", "queue", taskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
