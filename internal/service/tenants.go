package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/senhas/internal/model"
	"github.com/iliyamo/senhas/internal/repository"
	"github.com/iliyamo/senhas/internal/utils"
)

// TenantService manages tenant accounts.
type TenantService struct {
	repo       repository.TenantRepository
	bcryptCost int
	log        *slog.Logger
}

func NewTenantService(repo repository.TenantRepository, bcryptCost int, log *slog.Logger) *TenantService {
	return &TenantService{repo: repo, bcryptCost: bcryptCost, log: log}
}

// Register creates a tenant with default permissions and display config.
func (s *TenantService) Register(ctx context.Context, email, password, companyName string) (model.Tenant, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	companyName = strings.TrimSpace(companyName)
	if email == "" || password == "" {
		return model.Tenant{}, invalid("email/password required")
	}
	if !strings.Contains(email, "@") {
		return model.Tenant{}, invalid("invalid email")
	}
	if companyName == "" {
		return model.Tenant{}, invalid("company_name required")
	}

	hash, err := utils.HashPassword(password, s.bcryptCost)
	if err != nil {
		return model.Tenant{}, err
	}
	perms := model.DefaultPermissions()
	now := time.Now().UTC()
	t := model.Tenant{
		ID:            uuid.NewString(),
		Email:         email,
		PasswordHash:  hash,
		CompanyName:   companyName,
		Permissions:   &perms,
		DisplayConfig: model.DefaultDisplayConfig(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return model.Tenant{}, err
	}
	s.log.Info("tenant registered", "tenant_id", t.ID)
	return t, nil
}

// Authenticate checks credentials and returns the tenant.
func (s *TenantService) Authenticate(ctx context.Context, email, password string) (model.Tenant, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return model.Tenant{}, invalid("email/password required")
	}
	t, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Tenant{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.Tenant{}, err
	}
	if !utils.VerifyPassword(t.PasswordHash, password) {
		return model.Tenant{}, ErrInvalidCredentials
	}
	return t, nil
}

// Get loads a tenant and backfills missing permissions with the defaults.
func (s *TenantService) Get(ctx context.Context, id string) (model.Tenant, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return model.Tenant{}, err
	}
	if t.Permissions == nil {
		perms := model.DefaultPermissions()
		if err := s.repo.UpdatePermissions(ctx, id, perms); err != nil {
			return model.Tenant{}, err
		}
		s.log.Info("tenant permissions backfilled", "tenant_id", id)
		t.Permissions = &perms
	}
	return t, nil
}

// Permissions returns the tenant's (backfilled) permission flags.
func (s *TenantService) Permissions(ctx context.Context, id string) (model.Permissions, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return model.Permissions{}, err
	}
	return *t.Permissions, nil
}

// UpdateDisplayConfig replaces the opaque display configuration. The body
// must be a JSON object.
func (s *TenantService) UpdateDisplayConfig(ctx context.Context, id string, raw json.RawMessage) (model.Tenant, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' || !json.Valid(raw) {
		return model.Tenant{}, invalid("config must be a JSON object")
	}
	if err := s.repo.UpdateDisplayConfig(ctx, id, raw); err != nil {
		return model.Tenant{}, err
	}
	return s.Get(ctx, id)
}

func (s *TenantService) RecordService(ctx context.Context, id string, at time.Time) error {
	return s.repo.RecordService(ctx, id, at)
}

func (s *TenantService) ResetCounters(ctx context.Context, id string) error {
	return s.repo.ResetCounters(ctx, id)
}

func (s *TenantService) List(ctx context.Context) ([]model.Tenant, error) {
	return s.repo.List(ctx)
}
