// Package repository defines the storage contracts for tenants and tickets
// and the sentinel errors every backend returns. Handlers and services
// distinguish failures with errors.Is; backend-specific errors are wrapped
// in ErrStorage so their details can be logged but never leak to clients.
package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist or belongs to a
	// different tenant. Callers cannot tell the two apart.
	ErrNotFound = errors.New("not found")

	// ErrEmailExists is returned when registering an email already in use.
	ErrEmailExists = errors.New("email already exists")

	// ErrDuplicateNumber is returned when a (tenant, type, sequence) triple
	// is already taken. Numbering retries on it.
	ErrDuplicateNumber = errors.New("duplicate ticket number")

	// ErrDuplicateRequest is returned when a request id was already used by
	// the same tenant.
	ErrDuplicateRequest = errors.New("duplicate request id")

	// ErrStatusConflict is returned by a conditional update when the ticket
	// exists for the tenant but is no longer in the expected status.
	ErrStatusConflict = errors.New("ticket status changed")

	// ErrStorage wraps failures of the underlying database.
	ErrStorage = errors.New("storage failure")
)

// Storage wraps err as an ErrStorage while keeping the original in the chain.
func Storage(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
