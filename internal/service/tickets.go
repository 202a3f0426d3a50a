package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/senhas/internal/model"
	"github.com/iliyamo/senhas/internal/numbering"
	q "github.com/iliyamo/senhas/internal/queue"
	"github.com/iliyamo/senhas/internal/repository"
	"github.com/iliyamo/senhas/internal/ticket"
)

const (
	maxNumberAttempts = 3
	maxCallAttempts   = 5
	publishTimeout    = 2 * time.Second
)

// TenantDirectory is the tenant functionality ticket operations rely on.
type TenantDirectory interface {
	Get(ctx context.Context, id string) (model.Tenant, error)
	RecordService(ctx context.Context, id string, at time.Time) error
	ResetCounters(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.Tenant, error)
}

// TicketOptions tunes estimates and statistics.
type TicketOptions struct {
	PerTicket   time.Duration
	ExpireAfter time.Duration
	Location    *time.Location
	Now         func() time.Time
}

// TicketService implements generation, listing, calling, finishing,
// statistics and purge for a tenant's tickets.
type TicketService struct {
	tickets repository.TicketRepository
	tenants TenantDirectory
	numbers numbering.Allocator
	events  EventPublisher
	log     *slog.Logger
	opts    TicketOptions
}

func NewTicketService(tickets repository.TicketRepository, tenants TenantDirectory, numbers numbering.Allocator,
	events EventPublisher, log *slog.Logger, opts TicketOptions) *TicketService {
	if events == nil {
		events = NopPublisher{}
	}
	if opts.PerTicket <= 0 {
		opts.PerTicket = ticket.DefaultPerTicket
	}
	if opts.ExpireAfter <= 0 {
		opts.ExpireAfter = ticket.DefaultExpireAfter
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TicketService{tickets: tickets, tenants: tenants, numbers: numbers, events: events, log: log, opts: opts}
}

func (s *TicketService) now() time.Time { return s.opts.Now().UTC() }

func (s *TicketService) permissions(ctx context.Context, tenantID string) (model.Permissions, error) {
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return model.Permissions{}, err
	}
	return *t.Permissions, nil
}

// Generate issues the next ticket of typ. With a non-empty requestID a
// repeated call returns the ticket already issued for it and created=false.
func (s *TicketService) Generate(ctx context.Context, tenantID string, typ model.TicketType, requestID string) (model.Ticket, bool, error) {
	if !typ.Valid() {
		return model.Ticket{}, false, ticket.ErrInvalidType
	}
	perms, err := s.permissions(ctx, tenantID)
	if err != nil {
		return model.Ticket{}, false, err
	}
	if !perms.Generate {
		return model.Ticket{}, false, ticket.ErrPermissionDenied
	}

	requestID = strings.TrimSpace(requestID)
	if requestID != "" {
		existing, err := s.tickets.FindByRequestID(ctx, tenantID, requestID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return model.Ticket{}, false, err
		}
	}

	var created model.Ticket
	for attempt := 1; ; attempt++ {
		err = s.numbers.Allocate(ctx, tenantID, typ, func(seq int) error {
			now := s.now()
			t := model.Ticket{
				ID:            uuid.NewString(),
				TenantID:      tenantID,
				Type:          typ,
				Sequence:      seq,
				DisplayNumber: ticket.FormatDisplayNumber(typ, seq),
				Status:        model.StatusWaiting,
				CreatedAt:     now,
				GeneratedAt:   now,
				RequestID:     requestID,
			}
			if err := s.tickets.Create(ctx, t); err != nil {
				return err
			}
			created = t
			return nil
		})
		if errors.Is(err, repository.ErrDuplicateNumber) && attempt < maxNumberAttempts {
			s.log.Warn("ticket number taken, retrying", "tenant_id", tenantID, "type", typ, "attempt", attempt)
			continue
		}
		break
	}
	if errors.Is(err, repository.ErrDuplicateRequest) {
		existing, ferr := s.tickets.FindByRequestID(ctx, tenantID, requestID)
		if ferr != nil {
			return model.Ticket{}, false, ferr
		}
		return existing, false, nil
	}
	if err != nil {
		return model.Ticket{}, false, err
	}

	s.log.Info("ticket generated", "tenant_id", tenantID, "ticket_id", created.ID, "number", created.DisplayNumber)
	s.publish(ctx, q.NewTicketEvent(q.EventCreated, created, created.CreatedAt))
	return created, true, nil
}

// List returns the tenant's tickets in statuses, all of them when empty.
func (s *TicketService) List(ctx context.Context, tenantID string, statuses []model.Status) ([]model.Ticket, error) {
	return s.tickets.ListByStatus(ctx, tenantID, statuses)
}

// Get returns one ticket. Another tenant's ticket is reported as not found.
func (s *TicketService) Get(ctx context.Context, tenantID, id string) (model.Ticket, error) {
	t, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return model.Ticket{}, err
	}
	if t.TenantID != tenantID {
		return model.Ticket{}, repository.ErrNotFound
	}
	return t, nil
}

// Update moves a ticket to CALLED (counter required) or FINISHED.
func (s *TicketService) Update(ctx context.Context, tenantID, id string, to model.Status, counter string) (model.Ticket, error) {
	if to != model.StatusCalled && to != model.StatusFinished {
		if to == model.StatusWaiting {
			return model.Ticket{}, ticket.ErrInvalidTransition
		}
		return model.Ticket{}, ticket.ErrInvalidStatus
	}
	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return model.Ticket{}, err
	}
	perms, err := s.permissions(ctx, tenantID)
	if err != nil {
		return model.Ticket{}, err
	}

	var patch model.TicketPatch
	switch to {
	case model.StatusCalled:
		if !perms.Call {
			return model.Ticket{}, ticket.ErrPermissionDenied
		}
		patch, err = ticket.Call(current, counter, s.now())
	case model.StatusFinished:
		if !perms.Finish {
			return model.Ticket{}, ticket.ErrPermissionDenied
		}
		patch, err = ticket.Finish(current, s.now())
	}
	if err != nil {
		return model.Ticket{}, err
	}
	return s.apply(ctx, tenantID, id, patch)
}

func (s *TicketService) apply(ctx context.Context, tenantID, id string, patch model.TicketPatch) (model.Ticket, error) {
	updated, err := s.tickets.UpdateByID(ctx, id, tenantID, patch)
	if errors.Is(err, repository.ErrStatusConflict) {
		return model.Ticket{}, ticket.ErrInvalidTransition
	}
	if err != nil {
		return model.Ticket{}, err
	}

	kind := q.EventCalled
	at := updated.CalledAt
	if patch.Status == model.StatusFinished {
		kind = q.EventFinished
		at = updated.FinishedAt
		if err := s.tenants.RecordService(ctx, tenantID, *at); err != nil {
			s.log.Error("record service failed", "tenant_id", tenantID, "ticket_id", id, "err", err)
		}
	}
	s.log.Info("ticket updated", "tenant_id", tenantID, "ticket_id", id, "status", updated.Status)
	s.publish(ctx, q.NewTicketEvent(kind, updated, *at))
	return updated, nil
}

// CallNext calls the ticket the selection rule picks for typ ("" for any)
// at counter. It reports false when nobody is waiting.
func (s *TicketService) CallNext(ctx context.Context, tenantID string, typ model.TicketType, counter string) (model.Ticket, bool, error) {
	if typ != "" && !typ.Valid() {
		return model.Ticket{}, false, ticket.ErrInvalidType
	}
	if strings.TrimSpace(counter) == "" {
		return model.Ticket{}, false, ticket.ErrCounterRequired
	}
	perms, err := s.permissions(ctx, tenantID)
	if err != nil {
		return model.Ticket{}, false, err
	}
	if !perms.Call {
		return model.Ticket{}, false, ticket.ErrPermissionDenied
	}

	for attempt := 0; attempt < maxCallAttempts; attempt++ {
		waiting, err := s.tickets.ListByStatus(ctx, tenantID, []model.Status{model.StatusWaiting})
		if err != nil {
			return model.Ticket{}, false, err
		}
		next, ok := ticket.SelectNext(waiting, typ)
		if !ok {
			return model.Ticket{}, false, nil
		}
		patch, err := ticket.Call(next, counter, s.now())
		if err != nil {
			return model.Ticket{}, false, err
		}
		updated, err := s.apply(ctx, tenantID, next.ID, patch)
		if errors.Is(err, ticket.ErrInvalidTransition) {
			// another counter called it first
			continue
		}
		if err != nil {
			return model.Ticket{}, false, err
		}
		return updated, true, nil
	}
	return model.Ticket{}, false, fmt.Errorf("call next: %w", ticket.ErrInvalidTransition)
}

// Position reports where a waiting ticket stands. For a ticket that is no
// longer waiting it returns the ticket and false.
func (s *TicketService) Position(ctx context.Context, tenantID, id string) (model.Ticket, ticket.Position, bool, error) {
	t, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return model.Ticket{}, ticket.Position{}, false, err
	}
	if t.Status != model.StatusWaiting {
		return t, ticket.Position{}, false, nil
	}
	waiting, err := s.tickets.ListByStatus(ctx, tenantID, []model.Status{model.StatusWaiting})
	if err != nil {
		return model.Ticket{}, ticket.Position{}, false, err
	}
	pos, ok := ticket.PositionOf(waiting, id, s.opts.PerTicket)
	return t, pos, ok, nil
}

// Stats is the tenant summary plus the served aggregates.
type Stats struct {
	ticket.Summary
	TotalServed  int64
	LastServedAt *time.Time
}

// Stats summarizes the tenant's tickets generated in [from, to).
func (s *TicketService) Stats(ctx context.Context, tenantID string, from, to time.Time) (Stats, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return Stats{}, err
	}
	all, err := s.tickets.ListByStatus(ctx, tenantID, nil)
	if err != nil {
		return Stats{}, err
	}
	sum := ticket.Summarize(all, s.now(), ticket.StatsOptions{
		From:        from,
		To:          to,
		ExpireAfter: s.opts.ExpireAfter,
		Location:    s.opts.Location,
	})
	return Stats{Summary: sum, TotalServed: tenant.TotalServed, LastServedAt: tenant.LastServedAt}, nil
}

// PurgeResult reports what a purge removed.
type PurgeResult struct {
	TenantID string `json:"tenant_id"`
	Deleted  int64  `json:"deleted"`
}

// Purge deletes every ticket of the tenant and resets its numbering and
// served aggregates. Purging an empty tenant succeeds with Deleted 0.
func (s *TicketService) Purge(ctx context.Context, tenantID string) (PurgeResult, error) {
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return PurgeResult{}, err
	}
	n, err := s.tickets.DeleteByTenant(ctx, tenantID)
	if err != nil {
		return PurgeResult{}, err
	}
	if err := s.tenants.ResetCounters(ctx, tenantID); err != nil {
		return PurgeResult{}, err
	}
	if err := s.numbers.Reset(ctx, tenantID); err != nil {
		return PurgeResult{}, fmt.Errorf("reset numbering: %w", err)
	}
	s.log.Info("tickets purged", "tenant_id", tenantID, "deleted", n)
	s.publish(ctx, q.TicketEvent{Kind: q.EventPurged, TenantID: tenantID, Deleted: n, OccurredAt: s.now()})
	return PurgeResult{TenantID: tenantID, Deleted: n}, nil
}

// PurgeAll purges every tenant, continuing past failures.
func (s *TicketService) PurgeAll(ctx context.Context) ([]PurgeResult, error) {
	tenants, err := s.tenants.List(ctx)
	if err != nil {
		return nil, err
	}
	var (
		results []PurgeResult
		errs    []error
	)
	for _, t := range tenants {
		r, err := s.Purge(ctx, t.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", t.ID, err))
			continue
		}
		results = append(results, r)
	}
	return results, errors.Join(errs...)
}

func (s *TicketService) publish(ctx context.Context, ev q.TicketEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("event not published", "kind", ev.Kind, "tenant_id", ev.TenantID, "err", err)
	}
}
