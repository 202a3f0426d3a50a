package ticket

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iliyamo/senhas/internal/model"
)

// FormatDisplayNumber renders the type code followed by n zero-padded to at
// least three digits. Larger numbers are never truncated: P1000.
func FormatDisplayNumber(t model.TicketType, n int) string {
	return fmt.Sprintf("%s%03d", t.Code(), n)
}

// ParseSequence extracts the numeric suffix of a display number.
func ParseSequence(display string) (int, bool) {
	i := len(display)
	for i > 0 && display[i-1] >= '0' && display[i-1] <= '9' {
		i--
	}
	if i == len(display) {
		return 0, false
	}
	n, err := strconv.Atoi(display[i:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// NextSequence returns the sequence that follows last. A missing last ticket
// or an unparseable legacy number restarts at 1.
func NextSequence(last model.Ticket, found bool) int {
	if !found {
		return 1
	}
	if last.Sequence > 0 {
		return last.Sequence + 1
	}
	if n, ok := ParseSequence(last.DisplayNumber); ok {
		return n + 1
	}
	return 1
}

// Label returns the display number to show for t. Records written without a
// display number get a repair label; this never assigns a number.
func Label(t model.Ticket) string {
	if t.DisplayNumber != "" {
		return t.DisplayNumber
	}
	if t.Sequence > 0 {
		return FormatDisplayNumber(t.Type, t.Sequence)
	}
	id := strings.ReplaceAll(t.ID, "-", "")
	if len(id) > 4 {
		id = id[:4]
	}
	return t.Type.Code() + "-" + strings.ToUpper(id)
}
