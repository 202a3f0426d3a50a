// Package queuecache keeps a client-side copy of one tenant's queue between
// polls so a display can keep showing the last good state when the server is
// unreachable.
package queuecache

import (
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/senhas/internal/model"
	"github.com/iliyamo/senhas/internal/ticket"
)

// Cache is owned by one client session and bound to one tenant.
type Cache struct {
	tenantID  string
	perTicket time.Duration

	mu       sync.RWMutex
	tickets  map[string]model.Ticket
	lastSync time.Time
	lastErr  error
}

func New(tenantID string, perTicket time.Duration) *Cache {
	return &Cache{tenantID: tenantID, perTicket: perTicket, tickets: make(map[string]model.Ticket)}
}

// Merge folds a poll result into the cache and returns the new snapshot.
//
// A polled ticket replaces the local copy unless the local copy is further
// along the lifecycle. Local FINISHED tickets missing from the poll are
// kept; any other local ticket missing from the poll is dropped. Tickets of
// other tenants are ignored.
func (c *Cache) Merge(polled []model.Ticket, at time.Time) []model.Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[string]model.Ticket, len(polled))
	for _, p := range polled {
		if p.TenantID != c.tenantID {
			continue
		}
		if local, ok := c.tickets[p.ID]; ok && local.Status.Rank() > p.Status.Rank() {
			p = local
		}
		if cur, ok := next[p.ID]; ok && cur.Status.Rank() >= p.Status.Rank() {
			continue
		}
		next[p.ID] = p
	}
	for id, local := range c.tickets {
		if _, ok := next[id]; !ok && local.Status == model.StatusFinished {
			next[id] = local
		}
	}
	c.tickets = next
	c.lastSync = at
	c.lastErr = nil
	return c.snapshotLocked()
}

func (c *Cache) snapshotLocked() []model.Ticket {
	out := make([]model.Ticket, 0, len(c.tickets))
	for _, t := range c.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return ticket.Earlier(out[i], out[j]) })
	return out
}

// Snapshot returns every cached ticket by generation time.
func (c *Cache) Snapshot() []model.Ticket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Cache) ByStatus(st model.Status) []model.Ticket {
	var out []model.Ticket
	for _, t := range c.Snapshot() {
		if t.Status == st {
			out = append(out, t)
		}
	}
	return out
}

// Next is the ticket the server would call for typ ("" for any).
func (c *Cache) Next(typ model.TicketType) (model.Ticket, bool) {
	return ticket.SelectNext(c.Snapshot(), typ)
}

func (c *Cache) Position(id string) (ticket.Position, bool) {
	return ticket.PositionOf(c.Snapshot(), id, c.perTicket)
}

// Current is the most recently called ticket still on CALLED.
func (c *Cache) Current() (model.Ticket, bool) {
	var (
		cur   model.Ticket
		found bool
	)
	for _, t := range c.Snapshot() {
		if t.Status != model.StatusCalled || t.CalledAt == nil {
			continue
		}
		if !found || t.CalledAt.After(*cur.CalledAt) {
			cur, found = t, true
		}
	}
	return cur, found
}

// MarkFailed records a failed poll; the snapshot is left as it was.
func (c *Cache) MarkFailed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}

// Stale reports whether the last poll failed. lastSync is the time of the
// last successful merge.
func (c *Cache) Stale() (stale bool, lastSync time.Time, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr != nil, c.lastSync, c.lastErr
}

// Reset empties the cache, as after a purge.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickets = make(map[string]model.Ticket)
	c.lastErr = nil
}
