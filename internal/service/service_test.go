package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/senhas/internal/model"
	"github.com/iliyamo/senhas/internal/numbering"
	q "github.com/iliyamo/senhas/internal/queue"
	"github.com/iliyamo/senhas/internal/repository"
	"github.com/iliyamo/senhas/internal/repository/memory"
	"github.com/iliyamo/senhas/internal/ticket"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []q.TicketEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev q.TicketEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

type fixture struct {
	store   *memory.Store
	tenants *TenantService
	tickets *TicketService
	events  *recordingPublisher
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		store:  memory.New(),
		events: &recordingPublisher{},
		clock:  time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC),
	}
	f.tenants = NewTenantService(f.store.Tenants(), bcrypt.MinCost, log)
	f.tickets = NewTicketService(f.store.Tickets(), f.tenants, numbering.NewLocal(f.store.Tickets()), f.events, log,
		TicketOptions{Now: func() time.Time { return f.clock }})
	return f
}

func (f *fixture) tick(d time.Duration) { f.clock = f.clock.Add(d) }

func (f *fixture) register(t *testing.T, email string) model.Tenant {
	t.Helper()
	tn, err := f.tenants.Register(context.Background(), email, "secret", "Clinic")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return tn
}

func (f *fixture) generate(t *testing.T, tenantID string, typ model.TicketType) model.Ticket {
	t.Helper()
	tk, created, err := f.tickets.Generate(context.Background(), tenantID, typ, "")
	if err != nil || !created {
		t.Fatalf("generate %s: created=%v err=%v", typ, created, err)
	}
	f.tick(time.Second)
	return tk
}

func TestRegisterAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.register(t, "Owner@Example.com")
	if tn.Email != "owner@example.com" {
		t.Fatalf("email not normalized: %q", tn.Email)
	}
	if tn.Permissions == nil || *tn.Permissions != model.DefaultPermissions() {
		t.Fatalf("permissions=%v", tn.Permissions)
	}
	if _, err := f.tenants.Register(ctx, "owner@example.com", "x", "Other"); !errors.Is(err, repository.ErrEmailExists) {
		t.Fatalf("duplicate email err=%v", err)
	}
	if _, err := f.tenants.Register(ctx, "", "x", "Other"); !errors.Is(err, ticket.ErrValidation) {
		t.Fatalf("empty email err=%v", err)
	}

	got, err := f.tenants.Authenticate(ctx, "owner@example.com", "secret")
	if err != nil || got.ID != tn.ID {
		t.Fatalf("authenticate: %v %v", got.ID, err)
	}
	if _, err := f.tenants.Authenticate(ctx, "owner@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err=%v", err)
	}
	if _, err := f.tenants.Authenticate(ctx, "nobody@example.com", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email err=%v", err)
	}
}

func TestGetBackfillsPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	err := f.store.Tenants().Create(ctx, model.Tenant{ID: "legacy", Email: "old@example.com", CompanyName: "Old"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	tn, err := f.tenants.Get(ctx, "legacy")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tn.Permissions == nil || !tn.Permissions.Generate {
		t.Fatalf("permissions not backfilled: %v", tn.Permissions)
	}
	stored, _ := f.store.Tenants().GetByID(ctx, "legacy")
	if stored.Permissions == nil {
		t.Fatalf("backfill not persisted")
	}
}

func TestUpdateDisplayConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.register(t, "a@example.com")
	got, err := f.tenants.UpdateDisplayConfig(ctx, tn.ID, []byte(` {"theme":"dark"}`))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if string(got.DisplayConfig) != `{"theme":"dark"}` {
		t.Fatalf("config=%s", got.DisplayConfig)
	}
	for _, bad := range []string{``, `[1]`, `{"a":`} {
		if _, err := f.tenants.UpdateDisplayConfig(ctx, tn.ID, []byte(bad)); !errors.Is(err, ticket.ErrValidation) {
			t.Fatalf("config %q err=%v", bad, err)
		}
	}
}

func TestGenerateNumbersPerType(t *testing.T) {
	f := newFixture(t)
	tn := f.register(t, "a@example.com")
	want := []struct {
		typ  model.TicketType
		disp string
	}{
		{model.TypeNormal, "N001"},
		{model.TypeNormal, "N002"},
		{model.TypePriority, "P001"},
		{model.TypeQuick, "R001"},
		{model.TypeNormal, "N003"},
	}
	for _, w := range want {
		tk := f.generate(t, tn.ID, w.typ)
		if tk.DisplayNumber != w.disp || tk.Status != model.StatusWaiting {
			t.Fatalf("got %s %s, want %s WAITING", tk.DisplayNumber, tk.Status, w.disp)
		}
		if !tk.CreatedAt.Equal(tk.GeneratedAt) {
			t.Fatalf("created_at and generated_at differ")
		}
	}
	other := f.register(t, "b@example.com")
	if tk := f.generate(t, other.ID, model.TypeNormal); tk.DisplayNumber != "N001" {
		t.Fatalf("second tenant got %s", tk.DisplayNumber)
	}
	if _, _, err := f.tickets.Generate(context.Background(), tn.ID, "VIP", ""); !errors.Is(err, ticket.ErrInvalidType) {
		t.Fatalf("invalid type err=%v", err)
	}
}

func TestGenerateConcurrentIsUnique(t *testing.T) {
	f := newFixture(t)
	tn := f.register(t, "a@example.com")
	const n = 30
	var wg sync.WaitGroup
	nums := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk, _, err := f.tickets.Generate(context.Background(), tn.ID, model.TypeNormal, "")
			if err != nil {
				t.Errorf("generate: %v", err)
				return
			}
			nums <- tk.DisplayNumber
		}()
	}
	wg.Wait()
	close(nums)
	seen := map[string]bool{}
	for d := range nums {
		if seen[d] {
			t.Fatalf("%s issued twice", d)
		}
		seen[d] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d numbers, want %d", len(seen), n)
	}
}

func TestGenerateIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.register(t, "a@example.com")
	first, created, err := f.tickets.Generate(ctx, tn.ID, model.TypeNormal, "req-1")
	if err != nil || !created {
		t.Fatalf("first: %v %v", created, err)
	}
	again, created, err := f.tickets.Generate(ctx, tn.ID, model.TypeNormal, "req-1")
	if err != nil || created || again.ID != first.ID {
		t.Fatalf("replay: id=%s created=%v err=%v", again.ID, created, err)
	}
	all, _ := f.tickets.List(ctx, tn.ID, nil)
	if len(all) != 1 {
		t.Fatalf("replay created a ticket: %d", len(all))
	}
}

func TestGenerateRespectsPermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.register(t, "a@example.com")
	if err := f.store.Tenants().UpdatePermissions(ctx, tn.ID, model.Permissions{Call: true, Finish: true}); err != nil {
		t.Fatalf("permissions: %v", err)
	}
	if _, _, err := f.tickets.Generate(ctx, tn.ID, model.TypeNormal, ""); !errors.Is(err, ticket.ErrPermissionDenied) {
		t.Fatalf("err=%v, want ErrPermissionDenied", err)
	}
	all, _ := f.tickets.List(ctx, tn.ID, nil)
	if len(all) != 0 {
		t.Fatalf("ticket created despite denial")
	}
}

func TestUpdateLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.register(t, "a@example.com")
	tk := f.generate(t, tn.ID, model.TypeNormal)

	if _, err := f.tickets.Update(ctx, tn.ID, tk.ID, model.StatusFinished, ""); !errors.Is(err, ticket.ErrInvalidTransition) {
		t.Fatalf("finish waiting err=%v", err)
	}
	if _, err := f.tickets.Update(ctx, tn.ID, tk.ID, model.StatusCalled, " "); !errors.Is(err, ticket.ErrCounterRequired) {
		t.Fatalf("missing counter err=%v", err)
	}
	called, err := f.tickets.Update(ctx, tn.ID, tk.ID, model.StatusCalled, "3")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if called.Status != model.StatusCalled || called.Counter == nil || *called.Counter != "3" || called.CalledAt == nil {
		t.Fatalf("called ticket: %+v", called)
	}
	if _, err := f.tickets.Update(ctx, tn.ID, tk.ID, model.StatusCalled, "4"); !errors.Is(err, ticket.ErrInvalidTransition) {
		t.Fatalf("recall err=%v", err)
	}
	f.tick(2 * time.Minute)
	done, err := f.tickets.Update(ctx, tn.ID, tk.ID, model.StatusFinished, "")
	if err != nil || done.FinishedAt == nil {
		t.Fatalf("finish: %v", err)
	}
	if _, err := f.tickets.Update(ctx, tn.ID, tk.ID, model.StatusWaiting, ""); !errors.Is(err, ticket.ErrInvalidTransition) {
		t.Fatalf("back to waiting err=%v", err)
	}
	if _, err := f.tickets.Update(ctx, tn.ID, tk.ID, "LOST", ""); !errors.Is(err, ticket.ErrInvalidStatus) {
		t.Fatalf("unknown status err=%v", err)
	}

	tenant, _ := f.tenants.Get(ctx, tn.ID)
	if tenant.TotalServed != 1 || tenant.LastServedAt == nil {
		t.Fatalf("served aggregates: %d %v", tenant.TotalServed, tenant.LastServedAt)
	}
	want := []string{q.EventCreated, q.EventCalled, q.EventFinished}
	if got := f.events.kinds(); len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("events=%v, want %v", got, want)
	}
}

func TestCrossTenantAccessIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com")
	b := f.register(t, "b@example.com")
	tk := f.generate(t, a.ID, model.TypeNormal)

	if _, err := f.tickets.Get(ctx, b.ID, tk.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("get err=%v", err)
	}
	if _, err := f.tickets.Update(ctx, b.ID, tk.ID, model.StatusCalled, "1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("update err=%v", err)
	}
	got, _ := f.tickets.Get(ctx, a.ID, tk.ID)
	if got.Status != model.StatusWaiting {
		t.Fatalf("foreign update changed the ticket")
	}
}

func TestCallNext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.register(t, "a@example.com")
	n1 := f.generate(t, tn.ID, model.TypeNormal)
	r1 := f.generate(t, tn.ID, model.TypeQuick)
	p1 := f.generate(t, tn.ID, model.TypePriority)

	got, ok, err := f.tickets.CallNext(ctx, tn.ID, "", "1")
	if err != nil || !ok || got.ID != p1.ID {
		t.Fatalf("first call: %v %v %v", got.DisplayNumber, ok, err)
	}
	got, ok, err = f.tickets.CallNext(ctx, tn.ID, model.TypeQuick, "2")
	if err != nil || !ok || got.ID != r1.ID {
		t.Fatalf("quick call: %v %v %v", got.DisplayNumber, ok, err)
	}
	// no more QUICK, falls back to the oldest remaining
	got, ok, err = f.tickets.CallNext(ctx, tn.ID, model.TypeQuick, "2")
	if err != nil || !ok || got.ID != n1.ID {
		t.Fatalf("fallback call: %v %v %v", got.DisplayNumber, ok, err)
	}
	if _, ok, err := f.tickets.CallNext(ctx, tn.ID, "", "1"); err != nil || ok {
		t.Fatalf("empty queue: ok=%v err=%v", ok, err)
	}
	if _, _, err := f.tickets.CallNext(ctx, tn.ID, "", ""); !errors.Is(err, ticket.ErrCounterRequired) {
		t.Fatalf("no counter err=%v", err)
	}
}

func TestCallNextConcurrentCallsEachTicketOnce(t *testing.T) {
	f := newFixture(t)
	tn := f.register(t, "a@example.com")
	const n = 10
	for i := 0; i < n; i++ {
		f.generate(t, tn.ID, model.TypeNormal)
	}
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				tk, ok, err := f.tickets.CallNext(context.Background(), tn.ID, "", "1")
				if errors.Is(err, ticket.ErrInvalidTransition) {
					continue
				}
				if err != nil {
					t.Errorf("call next: %v", err)
					return
				}
				if !ok {
					return
				}
				ids <- tk.ID
			}
		}()
	}
	wg.Wait()
	close(ids)
	seen := map[string]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("ticket %s called twice", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("called %d tickets, want %d", len(seen), n)
	}
}

func TestPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.register(t, "a@example.com")
	n1 := f.generate(t, tn.ID, model.TypeNormal)
	n2 := f.generate(t, tn.ID, model.TypeNormal)
	p1 := f.generate(t, tn.ID, model.TypePriority)

	_, pos, ok, err := f.tickets.Position(ctx, tn.ID, n2.ID)
	if err != nil || !ok {
		t.Fatalf("position: %v %v", ok, err)
	}
	if pos.Place != 3 || pos.Ahead != 2 || pos.EstimatedWait != 6*time.Minute {
		t.Fatalf("position=%+v", pos)
	}
	_, pos, _, _ = f.tickets.Position(ctx, tn.ID, p1.ID)
	if pos.Place != 1 {
		t.Fatalf("priority place=%d", pos.Place)
	}
	if _, err := f.tickets.Update(ctx, tn.ID, n1.ID, model.StatusCalled, "1"); err != nil {
		t.Fatalf("call: %v", err)
	}
	got, _, ok, err := f.tickets.Position(ctx, tn.ID, n1.ID)
	if err != nil || ok || got.Status != model.StatusCalled {
		t.Fatalf("called ticket position: ok=%v err=%v", ok, err)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tn := f.register(t, "a@example.com")
	a := f.generate(t, tn.ID, model.TypeNormal)
	f.generate(t, tn.ID, model.TypePriority)
	f.tick(time.Minute)
	if _, err := f.tickets.Update(ctx, tn.ID, a.ID, model.StatusCalled, "1"); err != nil {
		t.Fatalf("call: %v", err)
	}
	f.tick(time.Minute)
	if _, err := f.tickets.Update(ctx, tn.ID, a.ID, model.StatusFinished, ""); err != nil {
		t.Fatalf("finish: %v", err)
	}
	st, err := f.tickets.Stats(ctx, tn.ID, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 2 || st.Waiting != 1 || st.Finished != 1 || st.TotalServed != 1 {
		t.Fatalf("stats=%+v", st)
	}
	if st.ByType[model.TypeQuick] != 0 || st.ByType[model.TypeNormal] != 1 {
		t.Fatalf("by type=%v", st.ByType)
	}
	if st.Service.Count != 1 || st.Service.Average != time.Minute {
		t.Fatalf("service=%+v", st.Service)
	}
}

func TestPurge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com")
	b := f.register(t, "b@example.com")
	for i := 0; i < 3; i++ {
		f.generate(t, a.ID, model.TypeNormal)
	}
	kept := f.generate(t, b.ID, model.TypeNormal)
	called, _, _ := f.tickets.CallNext(ctx, a.ID, "", "1")
	if _, err := f.tickets.Update(ctx, a.ID, called.ID, model.StatusFinished, ""); err != nil {
		t.Fatalf("finish: %v", err)
	}

	res, err := f.tickets.Purge(ctx, a.ID)
	if err != nil || res.Deleted != 3 {
		t.Fatalf("purge: %+v %v", res, err)
	}
	res, err = f.tickets.Purge(ctx, a.ID)
	if err != nil || res.Deleted != 0 {
		t.Fatalf("second purge: %+v %v", res, err)
	}
	tenant, _ := f.tenants.Get(ctx, a.ID)
	if tenant.TotalServed != 0 || tenant.LastServedAt != nil {
		t.Fatalf("aggregates not reset")
	}
	if tk := f.generate(t, a.ID, model.TypeNormal); tk.DisplayNumber != "N001" {
		t.Fatalf("numbering not restarted: %s", tk.DisplayNumber)
	}
	if _, err := f.tickets.Get(ctx, b.ID, kept.ID); err != nil {
		t.Fatalf("other tenant affected: %v", err)
	}
	if _, err := f.tickets.Purge(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("purge unknown tenant err=%v", err)
	}
}

func TestPurgeAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com")
	b := f.register(t, "b@example.com")
	f.generate(t, a.ID, model.TypeNormal)
	f.generate(t, b.ID, model.TypeQuick)
	f.generate(t, b.ID, model.TypeQuick)

	results, err := f.tickets.PurgeAll(ctx)
	if err != nil || len(results) != 2 {
		t.Fatalf("purge all: %v %v", results, err)
	}
	var total int64
	for _, r := range results {
		total += r.Deleted
	}
	if total != 3 {
		t.Fatalf("deleted %d, want 3", total)
	}
}
