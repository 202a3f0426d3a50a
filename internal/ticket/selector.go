package ticket

import (
	"sort"

	"github.com/iliyamo/senhas/internal/model"
)

// Earlier orders tickets by generation time, then creation time, then id.
func Earlier(a, b model.Ticket) bool {
	if !a.GeneratedAt.Equal(b.GeneratedAt) {
		return a.GeneratedAt.Before(b.GeneratedAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func earliest(tickets []model.Ticket, match func(model.Ticket) bool) (model.Ticket, bool) {
	var (
		best  model.Ticket
		found bool
	)
	for _, t := range tickets {
		if t.Status != model.StatusWaiting || !match(t) {
			continue
		}
		if !found || Earlier(t, best) {
			best, found = t, true
		}
	}
	return best, found
}

// SelectNext picks the ticket to call next among the WAITING tickets given.
//
// With a requested type, the earliest ticket of that type wins. When none of
// that type is waiting, or no type was requested, the earliest PRIORITY
// ticket wins, and failing that the earliest ticket of any type. It returns
// false only when nothing is waiting.
func SelectNext(tickets []model.Ticket, requested model.TicketType) (model.Ticket, bool) {
	if requested != "" {
		if t, ok := earliest(tickets, func(t model.Ticket) bool { return t.Type == requested }); ok {
			return t, true
		}
	}
	if t, ok := earliest(tickets, func(t model.Ticket) bool { return t.Type == model.TypePriority }); ok {
		return t, true
	}
	return earliest(tickets, func(model.Ticket) bool { return true })
}

// QueueOrder returns the WAITING tickets in the order repeated calls to
// SelectNext without a requested type would call them: PRIORITY tickets
// first, then everything else, each by generation time.
func QueueOrder(tickets []model.Ticket) []model.Ticket {
	out := make([]model.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.Status == model.StatusWaiting {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Type == model.TypePriority, out[j].Type == model.TypePriority
		if pi != pj {
			return pi
		}
		return Earlier(out[i], out[j])
	})
	return out
}
