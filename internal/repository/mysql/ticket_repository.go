package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/senhas/internal/model"
	"github.com/iliyamo/senhas/internal/repository"
)

// TicketRepo mirrors the 'tickets' table.
type TicketRepo struct{ DB *sql.DB }

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{DB: db} }

const ticketColumns = "id,tenant_id,type,seq,display_number,status,created_at,generated_at,called_at,finished_at,counter,request_id"

// Create inserts a ticket. Unique-key violations are reported as
// ErrDuplicateRequest or ErrDuplicateNumber depending on the index hit.
func (r *TicketRepo) Create(ctx context.Context, t model.Ticket) error {
	var requestID any
	if t.RequestID != "" {
		requestID = t.RequestID
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO tickets ("+ticketColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?,?)",
		t.ID, t.TenantID, string(t.Type), t.Sequence, t.DisplayNumber, string(t.Status),
		t.CreatedAt.UTC(), t.GeneratedAt.UTC(), nullTime(t.CalledAt), nullTime(t.FinishedAt),
		nullString(t.Counter), requestID)
	if err != nil {
		if me, ok := isDuplicate(err); ok {
			if strings.Contains(me.Message, "uq_tickets_request") {
				return repository.ErrDuplicateRequest
			}
			return repository.ErrDuplicateNumber
		}
		return repository.Storage("insert ticket", err)
	}
	return nil
}

// GetByID fetches a ticket regardless of tenant; callers compare TenantID.
func (r *TicketRepo) GetByID(ctx context.Context, id string) (model.Ticket, error) {
	return scanOneTicket(r.DB.QueryRowContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets WHERE id=? LIMIT 1", id))
}

func (r *TicketRepo) FindByRequestID(ctx context.Context, tenantID, requestID string) (model.Ticket, error) {
	return scanOneTicket(r.DB.QueryRowContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets WHERE tenant_id=? AND request_id=? LIMIT 1", tenantID, requestID))
}

func (r *TicketRepo) LastByType(ctx context.Context, tenantID string, typ model.TicketType) (model.Ticket, error) {
	return scanOneTicket(r.DB.QueryRowContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets WHERE tenant_id=? AND type=? ORDER BY seq DESC, created_at DESC LIMIT 1",
		tenantID, string(typ)))
}

// ListByStatus returns the tenant's tickets filtered to statuses.
func (r *TicketRepo) ListByStatus(ctx context.Context, tenantID string, statuses []model.Status) ([]model.Ticket, error) {
	query := "SELECT " + ticketColumns + " FROM tickets WHERE tenant_id=?"
	args := []any{tenantID}
	if len(statuses) > 0 {
		query += " AND status IN (?" + strings.Repeat(",?", len(statuses)-1) + ")"
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += " ORDER BY generated_at, created_at, id"

	rows, err := r.DB.QueryContext(ctx, query, args...)
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

// UpdateByID applies patch with a single conditional UPDATE. A miss is
// resolved into ErrNotFound or ErrStatusConflict by probing the row.
func (r *TicketRepo) UpdateByID(ctx context.Context, id, tenantID string, patch model.TicketPatch) (model.Ticket, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE tickets
		    SET status=?,
		        called_at=COALESCE(?, called_at),
		        finished_at=COALESCE(?, finished_at),
		        counter=COALESCE(?, counter)
		  WHERE id=? AND tenant_id=? AND status=?`,
		string(patch.Status), nullTime(patch.CalledAt), nullTime(patch.FinishedAt), nullString(patch.Counter),
		id, tenantID, string(patch.From))
	if err != nil {
		return model.Ticket{}, repository.Storage("update ticket", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Ticket{}, repository.Storage("update ticket", err)
	}
	if n == 0 {
		var owner string
		err := r.DB.QueryRowContext(ctx, "SELECT tenant_id FROM tickets WHERE id=?", id).Scan(&owner)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return model.Ticket{}, repository.ErrNotFound
		case err != nil:
			return model.Ticket{}, repository.Storage("probe ticket", err)
		case owner != tenantID:
			return model.Ticket{}, repository.ErrNotFound
		}
		return model.Ticket{}, repository.ErrStatusConflict
	}
	return r.GetByID(ctx, id)
}

func (r *TicketRepo) DeleteByTenant(ctx context.Context, tenantID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM tickets WHERE tenant_id=?", tenantID)
	if err != nil {
		return 0, repository.Storage("delete tickets", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, repository.Storage("delete tickets", err)
	}
	return n, nil
}

// Ping checks the connection for the connectivity endpoint.
func (r *TicketRepo) Ping(ctx context.Context) error { return r.DB.PingContext(ctx) }

func scanOneTicket(row *sql.Row) (model.Ticket, error) {
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Ticket{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Ticket{}, repository.Storage("get ticket", err)
	}
	return t, nil
}

func scanTicket(s scanner) (model.Ticket, error) {
	var (
		t                  model.Ticket
		typ, status        string
		calledAt, finished sql.NullTime
		counter, requestID sql.NullString
	)
	err := s.Scan(&t.ID, &t.TenantID, &typ, &t.Sequence, &t.DisplayNumber, &status,
		&t.CreatedAt, &t.GeneratedAt, &calledAt, &finished, &counter, &requestID)
	if err != nil {
		return model.Ticket{}, err
	}
	t.Type = model.TicketType(typ)
	t.Status = model.Status(status)
	if calledAt.Valid {
		at := calledAt.Time
		t.CalledAt = &at
	}
	if finished.Valid {
		at := finished.Time
		t.FinishedAt = &at
	}
	if counter.Valid {
		c := counter.String
		t.Counter = &c
	}
	t.RequestID = requestID.String
	return t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

var (
	_ repository.TicketRepository = (*TicketRepo)(nil)
	_ repository.Pinger           = (*TicketRepo)(nil)
)
