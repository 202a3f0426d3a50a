package ticket

import (
	"time"

	"github.com/iliyamo/senhas/internal/model"
)

// DefaultPerTicket is the service time assumed for every ticket ahead.
const DefaultPerTicket = 3 * time.Minute

// Position describes where a waiting ticket stands in line.
type Position struct {
	Place         int
	Ahead         int
	EstimatedWait time.Duration
}

// PositionOf locates id in the QueueOrder of tickets. It reports false when
// id is not among the waiting tickets.
func PositionOf(tickets []model.Ticket, id string, perTicket time.Duration) (Position, bool) {
	if perTicket <= 0 {
		perTicket = DefaultPerTicket
	}
	for i, t := range QueueOrder(tickets) {
		if t.ID == id {
			return Position{
				Place:         i + 1,
				Ahead:         i,
				EstimatedWait: time.Duration(i) * perTicket,
			}, true
		}
	}
	return Position{}, false
}
