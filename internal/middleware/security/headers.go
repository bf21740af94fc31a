// Package security sets the response headers a JSON API should always carry.
package security

import (
	"github.com/gofiber/fiber/v2"
)

type Config struct {
	// EnableHSTS should be set once the service terminates TLS itself or
	// sits behind a proxy that always does.
	EnableHSTS bool
}

func Headers(cfg Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "no-referrer")
		c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Set("Cache-Control", "no-store")

		if cfg.EnableHSTS {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		return c.Next()
	}
}
