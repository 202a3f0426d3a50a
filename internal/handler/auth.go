package handler

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/senhas/internal/config"
	"github.com/iliyamo/senhas/internal/middleware"
	"github.com/iliyamo/senhas/internal/model"
	"github.com/iliyamo/senhas/internal/service"
	"github.com/iliyamo/senhas/internal/utils"
)

// AuthHandler serves registration, login and the tenant's own account.
type AuthHandler struct {
	Cfg     config.Config
	Tenants *service.TenantService
	Log     *slog.Logger
}

func NewAuthHandler(cfg config.Config, tenants *service.TenantService, log *slog.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Tenants: tenants, Log: log}
}

// ----- DTOs -----

type registerReq struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	CompanyName string `json:"company_name"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type authResp struct {
	Token   string       `json:"token"`
	Expires time.Time    `json:"expires"`
	User    model.Tenant `json:"user"`
}

// Register creates the tenant and returns a token right away.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := requestCtx(c, h.Cfg.RequestTimeout)
	defer cancel()

	t, err := h.Tenants.Register(ctx, req.Email, req.Password, req.CompanyName)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return h.issue(c, http.StatusCreated, t)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := requestCtx(c, h.Cfg.RequestTimeout)
	defer cancel()

	t, err := h.Tenants.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	t, err = h.Tenants.Get(ctx, t.ID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return h.issue(c, http.StatusOK, t)
}

func (h *AuthHandler) issue(c echo.Context, status int, t model.Tenant) error {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, t.ID, middleware.RoleTenant, h.Cfg.AccessTTLMin)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(status, authResp{Token: access.Token, Expires: access.Exp, User: t})
}

// Me returns the authenticated tenant with permissions filled in.
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := requestCtx(c, h.Cfg.RequestTimeout)
	defer cancel()
	t, err := h.Tenants.Get(ctx, middleware.TenantID(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, t)
}

// UpdateConfig replaces the display configuration with the request body.
func (h *AuthHandler) UpdateConfig(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return badBody(c)
	}
	ctx, cancel := requestCtx(c, h.Cfg.RequestTimeout)
	defer cancel()
	t, err := h.Tenants.UpdateDisplayConfig(ctx, middleware.TenantID(c), body)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, t)
}
