// Package mysql implements the repository interfaces on MySQL through
// database/sql and go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/senhas/internal/model"
	"github.com/iliyamo/senhas/internal/repository"
)

const errDuplicateKey = 1062

func isDuplicate(err error) (*mysql.MySQLError, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == errDuplicateKey {
		return me, true
	}
	return nil, false
}

// TenantRepo mirrors the 'tenants' table.
type TenantRepo struct{ DB *sql.DB }

func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{DB: db} }

const tenantColumns = "id,email,password_hash,company_name,permissions,display_config,total_served,last_served_at,created_at,updated_at"

// Create inserts a tenant. Permissions are written as given; a nil value
// stays NULL until backfilled.
func (r *TenantRepo) Create(ctx context.Context, t model.Tenant) error {
	var perms any
	if t.Permissions != nil {
		b, err := json.Marshal(t.Permissions)
		if err != nil {
			return err
		}
		perms = b
	}
	var cfg any
	if len(t.DisplayConfig) > 0 {
		cfg = []byte(t.DisplayConfig)
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO tenants (id,email,password_hash,company_name,permissions,display_config) VALUES (?,?,?,?,?,?)",
		t.ID, strings.ToLower(strings.TrimSpace(t.Email)), t.PasswordHash, t.CompanyName, perms, cfg)
	if err != nil {
		if _, ok := isDuplicate(err); ok {
			return repository.ErrEmailExists
		}
		return repository.Storage("insert tenant", err)
	}
	return nil
}

// GetByID fetches a tenant by id.
func (r *TenantRepo) GetByID(ctx context.Context, id string) (model.Tenant, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+tenantColumns+" FROM tenants WHERE id=? LIMIT 1", id))
}

// GetByEmail fetches a tenant by normalized email.
func (r *TenantRepo) GetByEmail(ctx context.Context, email string) (model.Tenant, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+tenantColumns+" FROM tenants WHERE email=? LIMIT 1", email))
}

func (r *TenantRepo) List(ctx context.Context) ([]model.Tenant, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+tenantColumns+" FROM tenants ORDER BY id")
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
	return r.exec(ctx, "update permissions", "UPDATE tenants SET permissions=? WHERE id=?", b, id)
}

func (r *TenantRepo) UpdateDisplayConfig(ctx context.Context, id string, cfg json.RawMessage) error {
	return r.exec(ctx, "update display config", "UPDATE tenants SET display_config=? WHERE id=?", []byte(cfg), id)
}

func (r *TenantRepo) RecordService(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "record service",
		"UPDATE tenants SET total_served=total_served+1, last_served_at=? WHERE id=?", at.UTC(), id)
}

func (r *TenantRepo) ResetCounters(ctx context.Context, id string) error {
	return r.exec(ctx, "reset counters",
		"UPDATE tenants SET total_served=0, last_served_at=NULL WHERE id=?", id)
}

// exec runs an UPDATE and reports ErrNotFound when no tenant matched. MySQL
// reports affected rows as "changed", so a no-op update is checked against
// an existence probe.
func (r *TenantRepo) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return repository.Storage(op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	id := args[len(args)-1]
	var one int
	err = r.DB.QueryRowContext(ctx, "SELECT 1 FROM tenants WHERE id=?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return repository.Storage(op, err)
	}
	return nil
}

func (r *TenantRepo) scanOne(row *sql.Row) (model.Tenant, error) {
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Tenant{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Tenant{}, repository.Storage("get tenant", err)
	}
	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(s scanner) (model.Tenant, error) {
	var (
		t          model.Tenant
		perms, cfg []byte
		lastServed sql.NullTime
	)
	err := s.Scan(&t.ID, &t.Email, &t.PasswordHash, &t.CompanyName, &perms, &cfg,
		&t.TotalServed, &lastServed, &t.CreatedAt, &t.UpdatedAt)
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
	if lastServed.Valid {
		at := lastServed.Time
		t.LastServedAt = &at
	}
	return t, nil
}

var _ repository.TenantRepository = (*TenantRepo)(nil)
