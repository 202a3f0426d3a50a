package ticket

import (
	"strings"
	"time"

	"github.com/iliyamo/senhas/internal/model"
)

// transitions maps a target status to the statuses it may be reached from.
var transitions = map[model.Status][]model.Status{
	model.StatusCalled:   {model.StatusWaiting},
	model.StatusFinished: {model.StatusCalled},
}

// ValidTransition reports whether a ticket in from may move to to.
func ValidTransition(from, to model.Status) bool {
	allowed, ok := transitions[to]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == from {
			return true
		}
	}
	return false
}

// Call builds the WAITING→CALLED patch for t at counter.
func Call(t model.Ticket, counter string, now time.Time) (model.TicketPatch, error) {
	counter = strings.TrimSpace(counter)
	if counter == "" {
		return model.TicketPatch{}, ErrCounterRequired
	}
	if !ValidTransition(t.Status, model.StatusCalled) {
		return model.TicketPatch{}, ErrInvalidTransition
	}
	at := now.UTC()
	return model.TicketPatch{
		From:     model.StatusWaiting,
		Status:   model.StatusCalled,
		CalledAt: &at,
		Counter:  &counter,
	}, nil
}

// Finish builds the CALLED→FINISHED patch for t.
func Finish(t model.Ticket, now time.Time) (model.TicketPatch, error) {
	if !ValidTransition(t.Status, model.StatusFinished) {
		return model.TicketPatch{}, ErrInvalidTransition
	}
	at := now.UTC()
	return model.TicketPatch{
		From:       model.StatusCalled,
		Status:     model.StatusFinished,
		FinishedAt: &at,
	}, nil
}

// Apply returns t with the patch fields written. It does not check From.
func Apply(t model.Ticket, p model.TicketPatch) model.Ticket {
	t.Status = p.Status
	if p.CalledAt != nil {
		at := *p.CalledAt
		t.CalledAt = &at
	}
	if p.FinishedAt != nil {
		at := *p.FinishedAt
		t.FinishedAt = &at
	}
	if p.Counter != nil {
		c := *p.Counter
		t.Counter = &c
	}
	return t
}

// WaitTime is calledAt − generatedAt. It reports false when either stamp is
// missing or the pair is out of order.
func WaitTime(t model.Ticket) (time.Duration, bool) {
	if t.CalledAt == nil || t.GeneratedAt.IsZero() || t.CalledAt.Before(t.GeneratedAt) {
		return 0, false
	}
	return t.CalledAt.Sub(t.GeneratedAt), true
}

// ServiceTime is finishedAt − calledAt, under the same rules as WaitTime.
func ServiceTime(t model.Ticket) (time.Duration, bool) {
	if t.CalledAt == nil || t.FinishedAt == nil || t.FinishedAt.Before(*t.CalledAt) {
		return 0, false
	}
	return t.FinishedAt.Sub(*t.CalledAt), true
}
