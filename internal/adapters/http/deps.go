package http

import (
	"github.com/nats-io/nats.go"

	"github.com/asierbarrena/oficios/internal/adapters/postgres"
	"github.com/asierbarrena/oficios/internal/adapters/valkey"
	"github.com/asierbarrena/oficios/internal/core/ports"
	"github.com/asierbarrena/oficios/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Zones        *usecases.ZoneService
	Requests     *usecases.RequestService
	Applications *usecases.ApplicationService
	Match        *usecases.MatchService
	Providers    ports.ProviderRepository

	// NATS is the raw connection the WebSocket relay subscribes on.
	NATS  *nats.Conn
	DB    *postgres.DB
	Cache *valkey.Cache
}
