package handler // handler defines the HTTP handlers of the ticketing API

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/senhas/internal/repository"
	"github.com/iliyamo/senhas/internal/service"
	"github.com/iliyamo/senhas/internal/ticket"
)

const defaultTimeout = 5 * time.Second

// requestCtx bounds store calls made on behalf of one request.
func requestCtx(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = defaultTimeout
	}
	return context.WithTimeout(c.Request().Context(), d)
}

// writeError maps domain errors onto status codes. Anything unrecognised is
// logged and answered with a generic 500.
func writeError(c echo.Context, log *slog.Logger, err error) error {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, ticket.ErrValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		status, msg = http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, ticket.ErrPermissionDenied):
		status, msg = http.StatusForbidden, "operation not permitted for this account"
	case errors.Is(err, repository.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, ticket.ErrInvalidTransition):
		status, msg = http.StatusConflict, "invalid status transition"
	case errors.Is(err, repository.ErrEmailExists):
		status, msg = http.StatusConflict, "email already exists"
	default:
		log.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"tenant_id", c.Get("user_id"),
			"ticket_id", c.Param("id"),
			"err", err)
	}
	return c.JSON(status, echo.Map{"error": msg})
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
}
