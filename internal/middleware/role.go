package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RoleTenant is the only role tokens are issued with today.
const RoleTenant = "TENANT"

// RequireRole rejects requests whose token role is not in roles with 403.
// JWTAuth must run first.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(ctxRole).(string)
			if !ok || !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
