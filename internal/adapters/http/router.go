package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/asierbarrena/oficios/internal/pkg/metrics"
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(429).JSON(fiber.Map{
				"error":   "rate limit exceeded",
				"message": "too many requests, please try again later",
			})
		},
		SkipFailedRequests: false,
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout — fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// REST API v1 — 15s per-request timeout
	v1 := app.Group("/v1")

	// Provider side
	v1.Post("/zones", timeout.NewWithContext(CreateZoneHandler(deps), 15*time.Second))
	v1.Put("/zones/:id", timeout.NewWithContext(ReplaceZoneHandler(deps), 15*time.Second))
	v1.Delete("/zones/:id", timeout.NewWithContext(DeleteZoneHandler(deps), 15*time.Second))
	v1.Get("/zones", timeout.NewWithContext(ListZonesHandler(deps), 15*time.Second))
	v1.Put("/profile", timeout.NewWithContext(UpsertProfileHandler(deps), 15*time.Second))
	v1.Get("/feed", timeout.NewWithContext(ProviderFeedHandler(deps), 15*time.Second))
	v1.Get("/applications", timeout.NewWithContext(ListOwnApplicationsHandler(deps), 15*time.Second))

	// Requester side
	v1.Post("/requests", timeout.NewWithContext(CreateRequestHandler(deps), 15*time.Second))
	v1.Get("/requests", timeout.NewWithContext(ListOwnRequestsHandler(deps), 15*time.Second))
	v1.Get("/requests/:id", timeout.NewWithContext(GetRequestHandler(deps), 15*time.Second))
	v1.Put("/requests/:id", timeout.NewWithContext(UpdateRequestHandler(deps), 15*time.Second))
	v1.Delete("/requests/:id", timeout.NewWithContext(WithdrawRequestHandler(deps), 15*time.Second))
	v1.Get("/requests/:id/applications", timeout.NewWithContext(ListRequestApplicationsHandler(deps), 15*time.Second))

	// Application lifecycle
	v1.Post("/requests/:id/applications", timeout.NewWithContext(SubmitApplicationHandler(deps), 15*time.Second))
	v1.Patch("/applications/:id/status", timeout.NewWithContext(SetApplicationStatusHandler(deps), 15*time.Second))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
