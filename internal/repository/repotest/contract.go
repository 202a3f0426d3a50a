// Package repotest holds the behaviour every repository backend must share.
// Backend packages call Run from their own tests.
package repotest

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/senhas/internal/model"
	"github.com/iliyamo/senhas/internal/repository"
	"github.com/iliyamo/senhas/internal/ticket"
)

// Run exercises tickets and tenants against a clean or shared database.
// Every record it creates uses fresh ids, so it never collides with data
// already present.
func Run(t *testing.T, tickets repository.TicketRepository, tenants repository.TenantRepository) {
	t.Run("tenants", func(t *testing.T) { tenantContract(t, tenants) })
	t.Run("tickets", func(t *testing.T) { ticketContract(t, tickets, tenants) })
}

func newTenant(t *testing.T, repo repository.TenantRepository) model.Tenant {
	t.Helper()
	id := uuid.NewString()
	tn := model.Tenant{
		ID:           id,
		Email:        "Owner-" + id + "@Example.com",
		PasswordHash: "hash",
		CompanyName:  "Clinic " + id[:8],
	}
	if err := repo.Create(context.Background(), tn); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return tn
}

func tenantContract(t *testing.T, repo repository.TenantRepository) {
	ctx := context.Background()
	tn := newTenant(t, repo)

	dup := tn
	dup.ID = uuid.NewString()
	if err := repo.Create(ctx, dup); !errors.Is(err, repository.ErrEmailExists) {
		t.Fatalf("duplicate email err=%v, want ErrEmailExists", err)
	}

	got, err := repo.GetByEmail(ctx, "  "+tn.Email)
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got.ID != tn.ID || got.Permissions != nil || got.TotalServed != 0 {
		t.Fatalf("unexpected tenant %+v", got)
	}

	if err := repo.UpdatePermissions(ctx, tn.ID, model.Permissions{Generate: true}); err != nil {
		t.Fatalf("update permissions: %v", err)
	}
	// Writing the same value again must not look like a missing row.
	if err := repo.UpdatePermissions(ctx, tn.ID, model.Permissions{Generate: true}); err != nil {
		t.Fatalf("repeat update permissions: %v", err)
	}
	cfg := json.RawMessage(`{"fontSize": 90, "theme": "dark"}`)
	if err := repo.UpdateDisplayConfig(ctx, tn.ID, cfg); err != nil {
		t.Fatalf("update display config: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 2; i++ {
		if err := repo.RecordService(ctx, tn.ID, at); err != nil {
			t.Fatalf("record service: %v", err)
		}
	}
	got, err = repo.GetByID(ctx, tn.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Permissions == nil || *got.Permissions != (model.Permissions{Generate: true}) {
		t.Fatalf("permissions=%+v", got.Permissions)
	}
	var want, have map[string]any
	_ = json.Unmarshal(cfg, &want)
	if err := json.Unmarshal(got.DisplayConfig, &have); err != nil || !reflect.DeepEqual(want, have) {
		t.Fatalf("display config=%s", got.DisplayConfig)
	}
	if got.TotalServed != 2 || got.LastServedAt == nil || !got.LastServedAt.Equal(at) {
		t.Fatalf("served=%d last=%v", got.TotalServed, got.LastServedAt)
	}

	if err := repo.ResetCounters(ctx, tn.ID); err != nil {
		t.Fatalf("reset counters: %v", err)
	}
	got, _ = repo.GetByID(ctx, tn.ID)
	if got.TotalServed != 0 || got.LastServedAt != nil {
		t.Fatalf("counters not reset: %+v", got)
	}

	missing := uuid.NewString()
	if _, err := repo.GetByID(ctx, missing); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("get missing err=%v", err)
	}
	if err := repo.RecordService(ctx, missing, at); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("record missing err=%v", err)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := false
	for _, o := range all {
		found = found || o.ID == tn.ID
	}
	if !found {
		t.Fatalf("list is missing %s", tn.ID)
	}
}

func makeTicket(tenantID string, typ model.TicketType, seq int, at time.Time) model.Ticket {
	return model.Ticket{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		Type:          typ,
		Sequence:      seq,
		DisplayNumber: ticket.FormatDisplayNumber(typ, seq),
		Status:        model.StatusWaiting,
		CreatedAt:     at,
		GeneratedAt:   at,
	}
}

func ticketContract(t *testing.T, repo repository.TicketRepository, tenants repository.TenantRepository) {
	ctx := context.Background()
	a := newTenant(t, tenants).ID
	b := newTenant(t, tenants).ID
	base := time.Now().UTC().Truncate(time.Second)

	first := makeTicket(a, model.TypeNormal, 1, base)
	first.RequestID = "req-1"
	second := makeTicket(a, model.TypeNormal, 2, base.Add(time.Second))
	prio := makeTicket(a, model.TypePriority, 1, base.Add(2*time.Second))
	other := makeTicket(b, model.TypeNormal, 1, base)
	other.RequestID = "req-1"
	for _, tk := range []model.Ticket{first, second, prio, other} {
		if err := repo.Create(ctx, tk); err != nil {
			t.Fatalf("create %s: %v", tk.DisplayNumber, err)
		}
	}

	clash := makeTicket(a, model.TypeNormal, 2, base)
	if err := repo.Create(ctx, clash); !errors.Is(err, repository.ErrDuplicateNumber) {
		t.Fatalf("duplicate number err=%v", err)
	}
	replay := makeTicket(a, model.TypeQuick, 1, base)
	replay.RequestID = "req-1"
	if err := repo.Create(ctx, replay); !errors.Is(err, repository.ErrDuplicateRequest) {
		t.Fatalf("duplicate request err=%v", err)
	}

	got, err := repo.FindByRequestID(ctx, a, "req-1")
	if err != nil || got.ID != first.ID {
		t.Fatalf("find by request id: %v %+v", err, got)
	}
	last, err := repo.LastByType(ctx, a, model.TypeNormal)
	if err != nil || last.Sequence != 2 {
		t.Fatalf("last by type: %v seq=%d", err, last.Sequence)
	}
	if _, err := repo.LastByType(ctx, a, model.TypeQuick); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("last by type on empty pair err=%v", err)
	}

	list, err := repo.ListByStatus(ctx, a, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].ID != first.ID || list[2].ID != prio.ID {
		t.Fatalf("list order: %+v", list)
	}

	counter := "3"
	calledAt := base.Add(time.Minute)
	patch := model.TicketPatch{From: model.StatusWaiting, Status: model.StatusCalled, CalledAt: &calledAt, Counter: &counter}
	if _, err := repo.UpdateByID(ctx, first.ID, b, patch); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("foreign update err=%v", err)
	}
	called, err := repo.UpdateByID(ctx, first.ID, a, patch)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if called.Status != model.StatusCalled || called.Counter == nil || *called.Counter != "3" ||
		called.CalledAt == nil || !called.CalledAt.Equal(calledAt) {
		t.Fatalf("called ticket %+v", called)
	}
	if _, err := repo.UpdateByID(ctx, first.ID, a, patch); !errors.Is(err, repository.ErrStatusConflict) {
		t.Fatalf("stale update err=%v", err)
	}
	if _, err := repo.UpdateByID(ctx, uuid.NewString(), a, patch); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing update err=%v", err)
	}

	waiting, err := repo.ListByStatus(ctx, a, []model.Status{model.StatusWaiting})
	if err != nil || len(waiting) != 2 {
		t.Fatalf("waiting list: %v %d", err, len(waiting))
	}

	n, err := repo.DeleteByTenant(ctx, a)
	if err != nil || n != 3 {
		t.Fatalf("delete: %v n=%d", err, n)
	}
	if n, _ := repo.DeleteByTenant(ctx, a); n != 0 {
		t.Fatalf("second delete removed %d", n)
	}
	if _, err := repo.GetByID(ctx, other.ID); err != nil {
		t.Fatalf("other tenant's ticket gone: %v", err)
	}
	_, _ = repo.DeleteByTenant(ctx, b)
}
