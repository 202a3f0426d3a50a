// Package postgres implements the repository interfaces on PostgreSQL with a
// pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iliyamo/senhas/internal/model"
	"github.com/iliyamo/senhas/internal/repository"
)

const uniqueViolation = "23505"

// Store holds the pool shared by the ticket and tenant repositories.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Tickets() *TicketRepo { return &TicketRepo{pool: s.pool} }
func (s *Store) Tenants() *TenantRepo { return &TenantRepo{pool: s.pool} }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func uniqueConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

type TicketRepo struct {
	pool *pgxpool.Pool
}

const ticketColumns = "id, tenant_id, type, seq, display_number, status, created_at, generated_at, called_at, finished_at, counter, request_id"

func (r *TicketRepo) Create(ctx context.Context, t model.Ticket) error {
	var requestID *string
	if t.RequestID != "" {
		requestID = &t.RequestID
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tickets (`+ticketColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.TenantID, string(t.Type), t.Sequence, t.DisplayNumber, string(t.Status),
		t.CreatedAt.UTC(), t.GeneratedAt.UTC(), t.CalledAt, t.FinishedAt, t.Counter, requestID)
	if err != nil {
		if name, ok := uniqueConstraint(err); ok {
			if name == "uq_tickets_request" {
				return repository.ErrDuplicateRequest
			}
			return repository.ErrDuplicateNumber
		}
		return repository.Storage("insert ticket", err)
	}
	return nil
}

func (r *TicketRepo) GetByID(ctx context.Context, id string) (model.Ticket, error) {
	return oneTicket(r.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
}

func (r *TicketRepo) FindByRequestID(ctx context.Context, tenantID, requestID string) (model.Ticket, error) {
	return oneTicket(r.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE tenant_id = $1 AND request_id = $2`, tenantID, requestID))
}

func (r *TicketRepo) LastByType(ctx context.Context, tenantID string, typ model.TicketType) (model.Ticket, error) {
	return oneTicket(r.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets
		  WHERE tenant_id = $1 AND type = $2
		  ORDER BY seq DESC, created_at DESC
		  LIMIT 1`, tenantID, string(typ)))
}

func (r *TicketRepo) ListByStatus(ctx context.Context, tenantID string, statuses []model.Status) ([]model.Ticket, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets
		  WHERE tenant_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		  ORDER BY generated_at, created_at, id`, tenantID, names)
	if err != nil {
		return nil, repository.Storage("list tickets", err)
	}
	defer rows.Close()
	out := make([]model.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, repository.Storage("scan ticket", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.Storage("list tickets", err)
	}
	return out, nil
}

func (r *TicketRepo) UpdateByID(ctx context.Context, id, tenantID string, patch model.TicketPatch) (model.Ticket, error) {
	t, err := oneTicket(r.pool.QueryRow(ctx,
		`UPDATE tickets
		    SET status = $1,
		        called_at = COALESCE($2, called_at),
		        finished_at = COALESCE($3, finished_at),
		        counter = COALESCE($4, counter)
		  WHERE id = $5 AND tenant_id = $6 AND status = $7
		  RETURNING `+ticketColumns,
		string(patch.Status), patch.CalledAt, patch.FinishedAt, patch.Counter,
		id, tenantID, string(patch.From)))
	if !errors.Is(err, repository.ErrNotFound) {
		return t, err
	}

	var owner string
	err = r.pool.QueryRow(ctx, `SELECT tenant_id FROM tickets WHERE id = $1`, id).Scan(&owner)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return model.Ticket{}, repository.ErrNotFound
	case err != nil:
		return model.Ticket{}, repository.Storage("probe ticket", err)
	case owner != tenantID:
		return model.Ticket{}, repository.ErrNotFound
	}
	return model.Ticket{}, repository.ErrStatusConflict
}

func (r *TicketRepo) DeleteByTenant(ctx context.Context, tenantID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return 0, repository.Storage("delete tickets", err)
	}
	return tag.RowsAffected(), nil
}

func oneTicket(row pgx.Row) (model.Ticket, error) {
	t, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Ticket{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Ticket{}, repository.Storage("get ticket", err)
	}
	return t, nil
}

func scanTicket(row pgx.Row) (model.Ticket, error) {
	var (
		t           model.Ticket
		typ, status string
		requestID   *string
	)
	err := row.Scan(&t.ID, &t.TenantID, &typ, &t.Sequence, &t.DisplayNumber, &status,
		&t.CreatedAt, &t.GeneratedAt, &t.CalledAt, &t.FinishedAt, &t.Counter, &requestID)
	if err != nil {
		return model.Ticket{}, err
	}
	t.Type = model.TicketType(typ)
	t.Status = model.Status(status)
	if requestID != nil {
		t.RequestID = *requestID
	}
	return t, nil
}

type TenantRepo struct {
	pool *pgxpool.Pool
}

const tenantColumns = "id, email, password_hash, company_name, permissions, display_config, total_served, last_served_at, created_at, updated_at"

func (r *TenantRepo) Create(ctx context.Context, t model.Tenant) error {
	var perms []byte
	if t.Permissions != nil {
		b, err := json.Marshal(t.Permissions)
		if err != nil {
			return err
		}
		perms = b
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tenants (id, email, password_hash, company_name, permissions, display_config)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, strings.ToLower(strings.TrimSpace(t.Email)), t.PasswordHash, t.CompanyName,
		nullJSON(perms), nullJSON(t.DisplayConfig))
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return repository.ErrEmailExists
		}
		return repository.Storage("insert tenant", err)
	}
	return nil
}

func (r *TenantRepo) GetByID(ctx context.Context, id string) (model.Tenant, error) {
	return oneTenant(r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
}

func (r *TenantRepo) GetByEmail(ctx context.Context, email string) (model.Tenant, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return oneTenant(r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE email = $1`, email))
}

func (r *TenantRepo) List(ctx context.Context) ([]model.Tenant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY id`)
	if err != nil {
		return nil, repository.Storage("list tenants", err)
	}
	defer rows.Close()
	var out []model.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, repository.Storage("scan tenant", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.Storage("list tenants", err)
	}
	return out, nil
}

func (r *TenantRepo) UpdatePermissions(ctx context.Context, id string, p model.Permissions) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.exec(ctx, "update permissions",
		`UPDATE tenants SET permissions = $1, updated_at = now() WHERE id = $2`, b, id)
}

func (r *TenantRepo) UpdateDisplayConfig(ctx context.Context, id string, cfg json.RawMessage) error {
	return r.exec(ctx, "update display config",
		`UPDATE tenants SET display_config = $1, updated_at = now() WHERE id = $2`, []byte(cfg), id)
}

func (r *TenantRepo) RecordService(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "record service",
		`UPDATE tenants SET total_served = total_served + 1, last_served_at = $1, updated_at = now() WHERE id = $2`,
		at.UTC(), id)
}

func (r *TenantRepo) ResetCounters(ctx context.Context, id string) error {
	return r.exec(ctx, "reset counters",
		`UPDATE tenants SET total_served = 0, last_served_at = NULL, updated_at = now() WHERE id = $1`, id)
}

func (r *TenantRepo) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return repository.Storage(op, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func oneTenant(row pgx.Row) (model.Tenant, error) {
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Tenant{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Tenant{}, repository.Storage("get tenant", err)
	}
	return t, nil
}

func scanTenant(row pgx.Row) (model.Tenant, error) {
	var (
		t          model.Tenant
		perms, cfg []byte
	)
	err := row.Scan(&t.ID, &t.Email, &t.PasswordHash, &t.CompanyName, &perms, &cfg,
		&t.TotalServed, &t.LastServedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return model.Tenant{}, err
	}
	if len(perms) > 0 {
		var p model.Permissions
		if err := json.Unmarshal(perms, &p); err != nil {
			return model.Tenant{}, err
		}
		t.Permissions = &p
	}
	if len(cfg) > 0 {
		t.DisplayConfig = json.RawMessage(cfg)
	}
	return t, nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

var (
	_ repository.TicketRepository = (*TicketRepo)(nil)
	_ repository.TenantRepository = (*TenantRepo)(nil)
	_ repository.Pinger           = (*Store)(nil)
)
