package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// Identity reads the caller identity from the X-User-ID header into the
// request context. Real authentication is handled upstream of this
// service; absent the header, the request runs as an anonymous session
// owner.
func Identity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if uid := c.Get("X-User-ID"); uid != "" {
			c.Locals("user_id", uid)
		}
		return c.Next()
	}
}
