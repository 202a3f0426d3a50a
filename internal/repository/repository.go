package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iliyamo/senhas/internal/model"
)

// TicketRepository persists tickets. Every read and write that takes a
// tenantID is scoped by it.
type TicketRepository interface {
	Create(ctx context.Context, t model.Ticket) error
	GetByID(ctx context.Context, id string) (model.Ticket, error)
	FindByRequestID(ctx context.Context, tenantID, requestID string) (model.Ticket, error)
	// LastByType returns the ticket with the highest sequence for the pair,
	// or ErrNotFound.
	LastByType(ctx context.Context, tenantID string, typ model.TicketType) (model.Ticket, error)
	// ListByStatus returns the tenant's tickets in any of statuses, all of
	// them when statuses is empty, ordered by generation time.
	ListByStatus(ctx context.Context, tenantID string, statuses []model.Status) ([]model.Ticket, error)
	// UpdateByID applies patch only while the ticket matches id, tenantID
	// and patch.From.
	UpdateByID(ctx context.Context, id, tenantID string, patch model.TicketPatch) (model.Ticket, error)
	DeleteByTenant(ctx context.Context, tenantID string) (int64, error)
}

// TenantRepository persists tenant accounts.
type TenantRepository interface {
	Create(ctx context.Context, t model.Tenant) error
	GetByID(ctx context.Context, id string) (model.Tenant, error)
	GetByEmail(ctx context.Context, email string) (model.Tenant, error)
	List(ctx context.Context) ([]model.Tenant, error)
	UpdatePermissions(ctx context.Context, id string, p model.Permissions) error
	UpdateDisplayConfig(ctx context.Context, id string, cfg json.RawMessage) error
	// RecordService bumps the served-ticket aggregates.
	RecordService(ctx context.Context, id string, at time.Time) error
	// ResetCounters clears the served-ticket aggregates.
	ResetCounters(ctx context.Context, id string) error
}

// Pinger is implemented by backends that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
