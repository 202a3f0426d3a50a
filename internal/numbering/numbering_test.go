package numbering

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/senhas/internal/model"
	"github.com/iliyamo/senhas/internal/repository/memory"
	"github.com/iliyamo/senhas/internal/ticket"
)

func persistInto(repo *memory.TicketRepo, tenantID string, typ model.TicketType, got chan<- int) func(int) error {
	return func(seq int) error {
		now := time.Now().UTC()
		err := repo.Create(context.Background(), model.Ticket{
			ID:            uuid.NewString(),
			TenantID:      tenantID,
			Type:          typ,
			Sequence:      seq,
			DisplayNumber: ticket.FormatDisplayNumber(typ, seq),
			Status:        model.StatusWaiting,
			CreatedAt:     now,
			GeneratedAt:   now,
		})
		if err == nil && got != nil {
			got <- seq
		}
		return err
	}
}

func TestLocalAllocateConcurrentUnique(t *testing.T) {
	repo := memory.New().Tickets()
	alloc := NewLocal(repo)

	const n = 50
	got := make(chan int, n)
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := alloc.Allocate(context.Background(), "tenant-a", model.TypeNormal, persistInto(repo, "tenant-a", model.TypeNormal, got)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(got)
	close(errs)
	for err := range errs {
		t.Fatalf("allocate: %v", err)
	}

	seen := make(map[int]bool)
	for seq := range got {
		if seen[seq] {
			t.Fatalf("sequence %d issued twice", seq)
		}
		seen[seq] = true
	}
	for i := 1; i <= n; i++ {
		if !seen[i] {
			t.Fatalf("sequence %d missing; issued %v", i, seen)
		}
	}
}

func TestLocalAllocateScopesByTenantAndType(t *testing.T) {
	repo := memory.New().Tickets()
	alloc := NewLocal(repo)
	ctx := context.Background()

	next := func(tenantID string, typ model.TicketType) int {
		got := make(chan int, 1)
		if err := alloc.Allocate(ctx, tenantID, typ, persistInto(repo, tenantID, typ, got)); err != nil {
			t.Fatalf("allocate: %v", err)
		}
		return <-got
	}

	for i := 1; i <= 3; i++ {
		if seq := next("tenant-a", model.TypeNormal); seq != i {
			t.Fatalf("tenant-a NORMAL #%d got %d", i, seq)
		}
	}
	if seq := next("tenant-a", model.TypePriority); seq != 1 {
		t.Fatalf("PRIORITY should start at 1, got %d", seq)
	}
	if seq := next("tenant-b", model.TypeNormal); seq != 1 {
		t.Fatalf("tenant-b should start at 1, got %d", seq)
	}
}

func TestLocalAllocateInvalidType(t *testing.T) {
	alloc := NewLocal(memory.New().Tickets())
	err := alloc.Allocate(context.Background(), "tenant-a", "VIP", func(int) error {
		t.Fatalf("persist must not run for an invalid type")
		return nil
	})
	if !errors.Is(err, ticket.ErrInvalidType) {
		t.Fatalf("err=%v, want ErrInvalidType", err)
	}
}

func TestLocalAllocatePropagatesPersistError(t *testing.T) {
	alloc := NewLocal(memory.New().Tickets())
	boom := errors.New("boom")
	err := alloc.Allocate(context.Background(), "tenant-a", model.TypeQuick, func(int) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want boom", err)
	}
}

func TestRedisAllocateSeedsFromStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	repo := memory.New().Tickets()
	tenantID := uuid.NewString()
	for i := 0; i < 4; i++ {
		if err := persistInto(repo, tenantID, model.TypeNormal, nil)(i + 1); err != nil {
			t.Fatalf("seed ticket: %v", err)
		}
	}

	alloc := NewRedis(rdb, repo, "test-seq")
	defer alloc.Reset(ctx, tenantID)

	got := make(chan int, 2)
	for i := 0; i < 2; i++ {
		if err := alloc.Allocate(ctx, tenantID, model.TypeNormal, persistInto(repo, tenantID, model.TypeNormal, got)); err != nil {
			t.Fatalf("allocate: %v", err)
		}
	}
	if a, b := <-got, <-got; a != 5 || b != 6 {
		t.Fatalf("got %d, %d; want 5, 6", a, b)
	}

	if err := alloc.Reset(ctx, tenantID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, _ := rdb.Exists(ctx, "test-seq:"+tenantID+":NORMAL").Result(); n != 0 {
		t.Fatalf("reset left the counter behind")
	}
}
