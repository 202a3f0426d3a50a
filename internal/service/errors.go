// Package service holds the ticket and tenant use cases. Handlers call into
// it; it coordinates repositories, numbering, lifecycle rules and events.
package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/senhas/internal/ticket"
)

// ErrInvalidCredentials is returned by Authenticate for an unknown email or
// a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ticket.ErrValidation, msg)
}
