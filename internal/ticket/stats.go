package ticket

import (
	"time"

	"github.com/iliyamo/senhas/internal/model"
)

// DefaultExpireAfter is how long a ticket may wait before it counts as expired.
const DefaultExpireAfter = 30 * time.Minute

// DurationStats aggregates a set of valid durations.
type DurationStats struct {
	Count   int
	Average time.Duration
	Min     time.Duration
	Max     time.Duration

	total time.Duration
}

func (d *DurationStats) add(v time.Duration) {
	if d.Count == 0 || v < d.Min {
		d.Min = v
	}
	if v > d.Max {
		d.Max = v
	}
	d.Count++
	d.total += v
	d.Average = d.total / time.Duration(d.Count)
}

// StatsOptions narrows and tunes Summarize. From and To bound generation
// time as [From, To); zero values leave the side open.
type StatsOptions struct {
	From        time.Time
	To          time.Time
	ExpireAfter time.Duration
	Location    *time.Location
}

// Summary is the read-only view over one tenant's tickets.
type Summary struct {
	Total    int
	Today    int
	Waiting  int
	Called   int
	Finished int
	Expired  int
	ByType   map[model.TicketType]int
	Wait     DurationStats
	Service  DurationStats
}

// Summarize computes counts and timing aggregates. Wait and service times
// come only from tickets whose timestamp pairs are present and ordered.
func Summarize(tickets []model.Ticket, now time.Time, opts StatsOptions) Summary {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	expire := opts.ExpireAfter
	if expire <= 0 {
		expire = DefaultExpireAfter
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	s := Summary{ByType: make(map[model.TicketType]int, len(model.TicketTypes))}
	for _, t := range model.TicketTypes {
		s.ByType[t] = 0
	}
	for _, t := range tickets {
		if !opts.From.IsZero() && t.GeneratedAt.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && !t.GeneratedAt.Before(opts.To) {
			continue
		}
		s.Total++
		s.ByType[t.Type]++
		if !t.GeneratedAt.Before(midnight) {
			s.Today++
		}
		switch t.Status {
		case model.StatusWaiting:
			s.Waiting++
			if now.Sub(t.GeneratedAt) > expire {
				s.Expired++
			}
		case model.StatusCalled:
			s.Called++
		case model.StatusFinished:
			s.Finished++
		}
		if d, ok := WaitTime(t); ok {
			s.Wait.add(d)
		}
		if d, ok := ServiceTime(t); ok {
			s.Service.add(d)
		}
	}
	return s
}
