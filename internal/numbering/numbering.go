// Package numbering assigns per-(tenant, type) ticket sequences.
//
// Two allocators exist. Local serializes allocation for a key inside this
// process and reads the last persisted ticket under the lock. Redis keeps an
// atomic counter per key, seeded from the store on first use, so several
// server processes can share one sequence.
package numbering

import (
	"context"
	"errors"
	"sync"

	"github.com/iliyamo/senhas/internal/model"
	"github.com/iliyamo/senhas/internal/repository"
	"github.com/iliyamo/senhas/internal/ticket"
)

// Allocator hands out sequences. Allocate calls persist with the reserved
// sequence and returns its error; implementations decide whether the
// reservation is held across persist.
type Allocator interface {
	Allocate(ctx context.Context, tenantID string, typ model.TicketType, persist func(seq int) error) error
	Reset(ctx context.Context, tenantID string) error
}

// LastTicketFinder is the part of the ticket store numbering reads.
type LastTicketFinder interface {
	LastByType(ctx context.Context, tenantID string, typ model.TicketType) (model.Ticket, error)
}

func key(tenantID string, typ model.TicketType) string {
	return tenantID + ":" + string(typ)
}

// lastSequence reads the highest stored sequence for the pair; 0 if none.
func lastSequence(ctx context.Context, f LastTicketFinder, tenantID string, typ model.TicketType) (int, error) {
	last, err := f.LastByType(ctx, tenantID, typ)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ticket.NextSequence(last, true) - 1, nil
}

// Local serializes allocation per key within the process.
type Local struct {
	finder LastTicketFinder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocal(f LastTicketFinder) *Local {
	return &Local{finder: f, locks: make(map[string]*sync.Mutex)}
}

func (l *Local) lock(k string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[k]
	if !ok {
		m = &sync.Mutex{}
		l.locks[k] = m
	}
	return m
}

// Allocate holds the key lock from reading the last sequence until persist
// returns, so two requests in this process never compute the same number.
func (l *Local) Allocate(ctx context.Context, tenantID string, typ model.TicketType, persist func(seq int) error) error {
	if !typ.Valid() {
		return ticket.ErrInvalidType
	}
	m := l.lock(key(tenantID, typ))
	m.Lock()
	defer m.Unlock()

	last, err := lastSequence(ctx, l.finder, tenantID, typ)
	if err != nil {
		return err
	}
	return persist(last + 1)
}

// Reset is a no-op: sequences restart from the store, which a purge empties.
func (l *Local) Reset(context.Context, string) error { return nil }
