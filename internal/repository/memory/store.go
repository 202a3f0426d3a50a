// Package memory is an in-process backend for development and tests. It
// enforces the same uniqueness rules as the SQL schemas.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/senhas/internal/model"
	"github.com/iliyamo/senhas/internal/repository"
	"github.com/iliyamo/senhas/internal/ticket"
)

// Store implements both repository interfaces. Use Tickets and Tenants to
// get views typed for each.
type Store struct {
	mu      sync.RWMutex
	tickets map[string]model.Ticket
	tenants map[string]model.Tenant
	now     func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tickets: make(map[string]model.Ticket),
		tenants: make(map[string]model.Tenant),
		now:     time.Now,
	}
}

// Tickets returns the ticket repository view.
func (s *Store) Tickets() *TicketRepo { return &TicketRepo{s} }

// Tenants returns the tenant repository view.
func (s *Store) Tenants() *TenantRepo { return &TenantRepo{s} }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

type TicketRepo struct{ s *Store }

func (r *TicketRepo) Create(_ context.Context, t model.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.tickets {
		if o.TenantID != t.TenantID {
			continue
		}
		if o.Type == t.Type && o.Sequence == t.Sequence {
			return repository.ErrDuplicateNumber
		}
		if t.RequestID != "" && o.RequestID == t.RequestID {
			return repository.ErrDuplicateRequest
		}
	}
	r.s.tickets[t.ID] = clone(t)
	return nil
}

func (r *TicketRepo) GetByID(_ context.Context, id string) (model.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return model.Ticket{}, repository.ErrNotFound
	}
	return clone(t), nil
}

func (r *TicketRepo) FindByRequestID(_ context.Context, tenantID, requestID string) (model.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.tickets {
		if t.TenantID == tenantID && requestID != "" && t.RequestID == requestID {
			return clone(t), nil
		}
	}
	return model.Ticket{}, repository.ErrNotFound
}

func (r *TicketRepo) LastByType(_ context.Context, tenantID string, typ model.TicketType) (model.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var (
		last  model.Ticket
		found bool
	)
	for _, t := range r.s.tickets {
		if t.TenantID != tenantID || t.Type != typ {
			continue
		}
		if !found || t.Sequence > last.Sequence {
			last, found = t, true
		}
	}
	if !found {
		return model.Ticket{}, repository.ErrNotFound
	}
	return clone(last), nil
}

func (r *TicketRepo) ListByStatus(_ context.Context, tenantID string, statuses []model.Status) ([]model.Ticket, error) {
	want := make(map[model.Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	r.s.mu.RLock()
	out := make([]model.Ticket, 0)
	for _, t := range r.s.tickets {
		if t.TenantID != tenantID {
			continue
		}
		if len(want) > 0 && !want[t.Status] {
			continue
		}
		out = append(out, clone(t))
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.GeneratedAt.Equal(b.GeneratedAt) {
			return a.GeneratedAt.Before(b.GeneratedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (r *TicketRepo) UpdateByID(_ context.Context, id, tenantID string, patch model.TicketPatch) (model.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok || t.TenantID != tenantID {
		return model.Ticket{}, repository.ErrNotFound
	}
	if t.Status != patch.From {
		return model.Ticket{}, repository.ErrStatusConflict
	}
	t = ticket.Apply(t, patch)
	r.s.tickets[id] = t
	return clone(t), nil
}

func (r *TicketRepo) DeleteByTenant(_ context.Context, tenantID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, t := range r.s.tickets {
		if t.TenantID == tenantID {
			delete(r.s.tickets, id)
			n++
		}
	}
	return n, nil
}

type TenantRepo struct{ s *Store }

func (r *TenantRepo) Create(_ context.Context, t model.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(t.Email))
	for _, o := range r.s.tenants {
		if o.Email == email {
			return repository.ErrEmailExists
		}
	}
	t.Email = email
	now := r.s.now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	r.s.tenants[t.ID] = cloneTenant(t)
	return nil
}

func (r *TenantRepo) GetByID(_ context.Context, id string) (model.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return model.Tenant{}, repository.ErrNotFound
	}
	return cloneTenant(t), nil
}

func (r *TenantRepo) GetByEmail(_ context.Context, email string) (model.Tenant, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.tenants {
		if t.Email == email {
			return cloneTenant(t), nil
		}
	}
	return model.Tenant{}, repository.ErrNotFound
}

func (r *TenantRepo) List(context.Context) ([]model.Tenant, error) {
	r.s.mu.RLock()
	out := make([]model.Tenant, 0, len(r.s.tenants))
	for _, t := range r.s.tenants {
		out = append(out, cloneTenant(t))
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *TenantRepo) UpdatePermissions(_ context.Context, id string, p model.Permissions) error {
	return r.update(id, func(t *model.Tenant) { t.Permissions = &p })
}

func (r *TenantRepo) UpdateDisplayConfig(_ context.Context, id string, cfg json.RawMessage) error {
	return r.update(id, func(t *model.Tenant) { t.DisplayConfig = append(json.RawMessage(nil), cfg...) })
}

func (r *TenantRepo) RecordService(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(t *model.Tenant) {
		t.TotalServed++
		at := at.UTC()
		t.LastServedAt = &at
	})
}

func (r *TenantRepo) ResetCounters(_ context.Context, id string) error {
	return r.update(id, func(t *model.Tenant) {
		t.TotalServed = 0
		t.LastServedAt = nil
	})
}

func (r *TenantRepo) update(id string, fn func(*model.Tenant)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&t)
	t.UpdatedAt = r.s.now().UTC()
	r.s.tenants[id] = t
	return nil
}

func clone(t model.Ticket) model.Ticket {
	if t.CalledAt != nil {
		v := *t.CalledAt
		t.CalledAt = &v
	}
	if t.FinishedAt != nil {
		v := *t.FinishedAt
		t.FinishedAt = &v
	}
	if t.Counter != nil {
		v := *t.Counter
		t.Counter = &v
	}
	return t
}

func cloneTenant(t model.Tenant) model.Tenant {
	if t.Permissions != nil {
		p := *t.Permissions
		t.Permissions = &p
	}
	if t.LastServedAt != nil {
		v := *t.LastServedAt
		t.LastServedAt = &v
	}
	t.DisplayConfig = append(json.RawMessage(nil), t.DisplayConfig...)
	return t
}

var (
	_ repository.TicketRepository = (*TicketRepo)(nil)
	_ repository.TenantRepository = (*TenantRepo)(nil)
	_ repository.Pinger           = (*Store)(nil)
)
