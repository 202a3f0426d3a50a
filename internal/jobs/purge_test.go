package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/iliyamo/senhas/internal/service"
)

type fakePurger struct {
	tenants []string
	all     int
	err     error
}

func (f *fakePurger) Purge(_ context.Context, tenantID string) (service.PurgeResult, error) {
	f.tenants = append(f.tenants, tenantID)
	return service.PurgeResult{TenantID: tenantID, Deleted: 2}, f.err
}

func (f *fakePurger) PurgeAll(context.Context) ([]service.PurgeResult, error) {
	f.all++
	return []service.PurgeResult{{TenantID: "a", Deleted: 1}}, f.err
}

func handlers(p Purger) *Handlers {
	return &Handlers{Purger: p, Log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestNewPurgeTask(t *testing.T) {
	task, err := NewPurgeTask("tenant-1")
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	if task.Type() != TypePurgeTickets {
		t.Fatalf("type=%q", task.Type())
	}
	var p PurgePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil || p.TenantID != "tenant-1" {
		t.Fatalf("payload=%s err=%v", task.Payload(), err)
	}
}

func TestHandlePurge(t *testing.T) {
	ctx := context.Background()

	one := &fakePurger{}
	task, _ := NewPurgeTask("tenant-1")
	if err := handlers(one).HandlePurge(ctx, task); err != nil {
		t.Fatalf("single purge: %v", err)
	}
	if len(one.tenants) != 1 || one.tenants[0] != "tenant-1" || one.all != 0 {
		t.Fatalf("single purge routed wrong: %+v", one)
	}

	all := &fakePurger{}
	task, _ = NewPurgeTask("")
	if err := handlers(all).HandlePurge(ctx, task); err != nil {
		t.Fatalf("purge all: %v", err)
	}
	if all.all != 1 || len(all.tenants) != 0 {
		t.Fatalf("purge all routed wrong: %+v", all)
	}

	boom := errors.New("boom")
	failing := &fakePurger{err: boom}
	if err := handlers(failing).HandlePurge(ctx, task); !errors.Is(err, boom) {
		t.Fatalf("err=%v, want boom", err)
	}
}

func TestHandlePurgeBadPayloadSkipsRetry(t *testing.T) {
	err := handlers(&fakePurger{}).HandlePurge(context.Background(), asynq.NewTask(TypePurgeTickets, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err=%v, want SkipRetry", err)
	}
}
