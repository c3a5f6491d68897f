// middleware/user_context.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	localUserID    = "user_id"
	localUserRoles = "user_roles"
)

// UserContextMiddleware extracts user identity and roles set by Gateway.
// Secured routes (/s/...) require X-User-ID.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		rolesStr := c.Get("X-User-Roles")

		path := c.Path()
		if strings.HasPrefix(path, "/s/") && userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID required but missing on secured route: %s", path)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID: request must come through gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(rolesStr, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, strings.ToLower(r))
			}
		}

		c.Locals(localUserID, userID)
		c.Locals(localUserRoles, roles)
		return c.Next()
	}
}

// RequireRole rejects requests whose gateway roles do not include role.
func RequireRole(role string) fiber.Handler {
	role = strings.ToLower(role)
	return func(c *fiber.Ctx) error {
		if !HasRole(c, role) {
			log.Printf("❌ [USER_CTX] %s lacks role %q for %s", UserID(c), role, c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "insufficient role",
			})
		}
		return c.Next()
	}
}

// UserID returns the caller set by UserContextMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

func HasRole(c *fiber.Ctx, role string) bool {
	roles, _ := c.Locals(localUserRoles).([]string)
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
