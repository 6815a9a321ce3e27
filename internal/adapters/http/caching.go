package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers on GET responses based on
// endpoint. Most of the API is per-user state, so private/no-store dominates.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		// Only set on GET requests
		if c.Method() != "GET" {
			return err
		}

		// Don't override if already set
		if existing := c.Get("Cache-Control"); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10" // Very short for system checks

		case path == "/metrics":
			ttl = "no-cache" // Metrics are real-time

		case path == "/graphql":
			ttl = "private, max-age=0" // GraphQL varies wildly

		case path == "/v1/feed":
			ttl = "private, max-age=30" // Matches the server-side projection TTL

		case strings.HasPrefix(path, "/v1/zones"):
			ttl = "private, max-age=60" // Zones change rarely, but are per-provider

		case strings.HasPrefix(path, "/v1/requests") || strings.HasPrefix(path, "/v1/applications"):
			ttl = "private, no-store" // Live negotiation state, never cache

		case strings.HasPrefix(path, "/v1/"):
			ttl = "private, max-age=30"
		}

		if ttl != "" {
			c.Set("Cache-Control", ttl)
		}

		return err
	}
}
