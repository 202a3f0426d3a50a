package middleware

import "github.com/labstack/echo/v4"

// Context keys set by JWTAuth.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// TenantID returns the authenticated tenant, or "" on public routes.
func TenantID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok {
		return s
	}
	return ""
}

// userKey is the identity used in rate-limit and cache keys.
func userKey(c echo.Context) string {
	if id := TenantID(c); id != "" {
		return id
	}
	return "anon"
}
