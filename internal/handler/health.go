package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/senhas/internal/repository"
)

// Health is the liveness probe used by load balancers.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// CheckConnection reports whether the store answers. The API answers 200
// either way so a client can tell "server up, database down" apart from
// "server unreachable".
func CheckConnection(db repository.Pinger, log *slog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		status := "connected"
		if err := db.Ping(ctx); err != nil {
			log.Warn("database ping failed", "err", err)
			status = "unavailable"
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "database": status})
	}
}
