package model

import (
	"strings"
	"time"
)

// TicketType is the priority class of a ticket. The set is closed: only the
// three constants below are valid.
type TicketType string

const (
	TypePriority TicketType = "PRIORITY"
	TypeNormal   TicketType = "NORMAL"
	TypeQuick    TicketType = "QUICK"
)

// TicketTypes lists every valid type in display order.
var TicketTypes = []TicketType{TypePriority, TypeNormal, TypeQuick}

var typeCodes = map[TicketType]string{
	TypePriority: "P",
	TypeNormal:   "N",
	TypeQuick:    "R",
}

// Code returns the one-letter prefix used in display numbers (P, N, R).
func (t TicketType) Code() string { return typeCodes[t] }

// Valid reports whether t is one of the known types.
func (t TicketType) Valid() bool {
	_, ok := typeCodes[t]
	return ok
}

// ParseTicketType accepts a type name or its display code, case-insensitive.
func ParseTicketType(s string) (TicketType, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for t, code := range typeCodes {
		if s == string(t) || s == code {
			return t, true
		}
	}
	return "", false
}

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusWaiting  Status = "WAITING"
	StatusCalled   Status = "CALLED"
	StatusFinished Status = "FINISHED"
)

// Rank orders statuses along the lifecycle. Unknown statuses rank 0.
func (s Status) Rank() int {
	switch s {
	case StatusWaiting:
		return 1
	case StatusCalled:
		return 2
	case StatusFinished:
		return 3
	}
	return 0
}

// ParseStatus normalizes a status name.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if st.Rank() == 0 {
		return "", false
	}
	return st, true
}

// Ticket mirrors the `tickets` table.
//
// Fields:
//
//	ID            – uuid assigned at creation, immutable.
//	TenantID      – owning tenant, never reassigned.
//	Type          – priority class.
//	Sequence      – numeric counter behind DisplayNumber, per (tenant, type).
//	DisplayNumber – human label such as P007.
//	Status        – WAITING, CALLED or FINISHED.
//	CreatedAt     – insertion time.
//	GeneratedAt   – generation time, kept equal to CreatedAt.
//	CalledAt      – set once on WAITING→CALLED.
//	FinishedAt    – set once on CALLED→FINISHED.
//	Counter       – service point (guichê) handling the ticket.
//	RequestID     – client idempotency key, unique per tenant.
type Ticket struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Type          TicketType `json:"type"`
	Sequence      int        `json:"sequence"`
	DisplayNumber string     `json:"display_number"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	GeneratedAt   time.Time  `json:"generated_at"`
	CalledAt      *time.Time `json:"called_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	Counter       *string    `json:"counter"`
	RequestID     string     `json:"-"`
}

// TicketPatch is a conditional update: it only applies while the stored
// ticket is still in From.
type TicketPatch struct {
	From       Status
	Status     Status
	CalledAt   *time.Time
	FinishedAt *time.Time
	Counter    *string
}
