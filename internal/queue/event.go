// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/iliyamo/senhas/internal/model"
)

// TicketQueueName is the durable queue lifecycle events are published to.
const TicketQueueName = "tickets.lifecycle"

// Event kinds.
const (
	EventCreated  = "ticket.created"
	EventCalled   = "ticket.called"
	EventFinished = "ticket.finished"
	EventPurged   = "tickets.purged"
)

// TicketEvent is published on every lifecycle change. It carries enough of
// the ticket for consumers to log or notify without querying the database.
type TicketEvent struct {
	Kind          string           `json:"kind"`
	TenantID      string           `json:"tenant_id"`
	TicketID      string           `json:"ticket_id,omitempty"`
	Type          model.TicketType `json:"type,omitempty"`
	DisplayNumber string           `json:"display_number,omitempty"`
	Status        model.Status     `json:"status,omitempty"`
	Counter       string           `json:"counter,omitempty"`
	Deleted       int64            `json:"deleted,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// NewTicketEvent builds an event of kind from t.
func NewTicketEvent(kind string, t model.Ticket, at time.Time) TicketEvent {
	ev := TicketEvent{
		Kind:          kind,
		TenantID:      t.TenantID,
		TicketID:      t.ID,
		Type:          t.Type,
		DisplayNumber: t.DisplayNumber,
		Status:        t.Status,
		OccurredAt:    at.UTC(),
	}
	if t.Counter != nil {
		ev.Counter = *t.Counter
	}
	return ev
}
