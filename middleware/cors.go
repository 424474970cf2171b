package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	corsMethods = "GET,POST,DELETE,OPTIONS"
	corsHeaders = "Origin,Content-Type,Accept,X-Requested-With"
	// Preflight results may be cached for a day.
	corsMaxAge = "86400"
)

// CORS lets the browser dashboard call the email and word-list API. An empty
// origin list or a "*" entry allows any origin; otherwise a listed origin is
// echoed back and anything else gets no Allow-Origin header.
func CORS(allowedOrigins []string) fiber.Handler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	anyOrigin := len(allowedOrigins) == 0
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			anyOrigin = true
		}
		origins[o] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if anyOrigin {
			c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
		} else if origin := c.Get(fiber.HeaderOrigin); origin != "" {
			if _, ok := origins[origin]; ok {
				c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
			}
			c.Vary(fiber.HeaderOrigin)
		}

		if c.Method() != fiber.MethodOptions {
			return c.Next()
		}
		c.Set(fiber.HeaderAccessControlAllowMethods, corsMethods)
		c.Set(fiber.HeaderAccessControlAllowHeaders, corsHeaders)
		c.Set(fiber.HeaderAccessControlMaxAge, corsMaxAge)
		return c.SendStatus(fiber.StatusNoContent)
	}
}
