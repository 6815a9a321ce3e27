package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

var errNATSDisconnected = errors.New("nats connection lost")

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).String(),
			"version": "dev",
		})
	}
}

// ReadyHandler probes the hard dependencies (Postgres, NATS). The cache is
// optional at boot, so a Valkey outage only degrades the report without
// failing readiness.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string)
		ready := true

		probe := func(name string, required bool, fn func() error) {
			if fn == nil {
				checks[name] = "not configured"
				if required {
					ready = false
				}
				return
			}
			if err := fn(); err != nil {
				checks[name] = "error: " + err.Error()
				if required {
					ready = false
				}
				return
			}
			checks[name] = "ok"
		}

		var dbCheck func() error
		if deps.DB != nil {
			dbCheck = func() error { return deps.DB.Pool.Ping(ctx) }
		}
		probe("postgres", true, dbCheck)

		var natsCheck func() error
		if deps.NATS != nil {
			natsCheck = func() error {
				if !deps.NATS.IsConnected() {
					return errNATSDisconnected
				}
				return nil
			}
		}
		probe("nats", true, natsCheck)

		var cacheCheck func() error
		if deps.Cache != nil {
			cacheCheck = func() error {
				_, err := deps.Cache.Get(ctx, "oficios:ready:probe")
				// a missing probe key is a healthy miss
				if err != nil && err.Error() != "valkey nil message" {
					return err
				}
				return nil
			}
		}
		probe("valkey", false, cacheCheck)

		status, code := "ready", 200
		if !ready {
			status, code = "not ready", 503
		}
		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
