package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"

	natsadapter "github.com/asierbarrena/oficios/internal/adapters/nats"
	"github.com/asierbarrena/oficios/internal/adapters/postgres"
	"github.com/asierbarrena/oficios/internal/core/domain"
	"github.com/asierbarrena/oficios/internal/core/usecases"
	"github.com/asierbarrena/oficios/internal/pkg/config"
	"github.com/asierbarrena/oficios/internal/pkg/logging"
	"github.com/asierbarrena/oficios/internal/pkg/metrics"
)

// The feed worker owns the projection side of the change feed: it consumes
// entity-change events from JetStream, keeps per-viewer visible-set state,
// and fans the derived deltas out to per-user subjects the API's WebSocket
// relay listens on. Viewers come and go via feed control messages published
// by the API on connect and disconnect.
func main() {
	cfg, err := config.Load("oficios-feedworker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("oficios-feedworker", logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Delta fan-out
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats publisher: %v", err)
	}
	defer pub.Close()

	// Change-event intake
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL, "feed-projector")
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer sub.Close()

	projector := usecases.NewFeedProjector(
		postgres.NewRequestRepo(db),
		postgres.NewApplicationRepo(db),
		postgres.NewZoneRepo(db),
		postgres.NewProviderRepo(db),
		pub,
	)

	// Viewer registry driven by API attach/detach announcements. Deltas
	// leave through the publisher, so each subscription's channel is
	// drained and discarded here.
	var mu sync.Mutex
	attached := make(map[string]*usecases.Subscription)

	controlConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats control conn: %v", err)
	}
	defer controlConn.Drain()

	_, err = controlConn.Subscribe(natsadapter.FeedControlSubject, func(msg *nats.Msg) {
		var fc natsadapter.FeedControl
		if err := json.Unmarshal(msg.Data, &fc); err != nil {
			slog.Warn("bad feed control message", "error", err)
			return
		}
		role := usecases.ViewerRole(fc.Role)
		if role != usecases.RoleProvider && role != usecases.RoleRequester {
			slog.Warn("bad feed control role", "role", fc.Role)
			return
		}
		key := fc.Role + ":" + fc.ViewerID

		mu.Lock()
		defer mu.Unlock()
		switch fc.Action {
		case "attach":
			if _, ok := attached[key]; ok {
				return
			}
			s := projector.Subscribe(fc.ViewerID, role)
			attached[key] = s
			go func() {
				for range s.C {
				}
			}()
			metrics.FeedResyncs.Inc()
			if err := projector.Resync(ctx, fc.ViewerID, role); err != nil {
				slog.Warn("initial resync failed", "viewer", fc.ViewerID, "error", err)
			}
			slog.Info("viewer attached", "viewer", fc.ViewerID, "role", fc.Role)
		case "detach":
			if s, ok := attached[key]; ok {
				s.Close()
				delete(attached, key)
				slog.Info("viewer detached", "viewer", fc.ViewerID, "role", fc.Role)
			}
		default:
			slog.Warn("unknown feed control action", "action", fc.Action)
		}
	})
	if err != nil {
		log.Fatalf("subscribe feed control: %v", err)
	}

	// Change-event consumption
	err = sub.SubscribeChanges(ctx, func(ctx context.Context, event *domain.ChangeEvent) error {
		if err := projector.HandleEvent(ctx, event); err != nil {
			return err
		}
		metrics.FeedEventsProcessed.WithLabelValues(string(event.Entity), string(event.Op)).Inc()
		return nil
	})
	if err != nil {
		log.Fatalf("subscribe changes: %v", err)
	}

	slog.Info("feed worker started", "stream", "OFICIOS_CHANGES")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())
	cancel()
}
