package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// VersionMiddleware advertises the build version and stores it in context
func VersionMiddleware(version string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Support version aliases
		if version == "1.0" {
			version = "1.0.0"
		}

		c.Locals("appVersion", version)
		c.Set("X-App-Version", version)

		return c.Next()
	}
}
