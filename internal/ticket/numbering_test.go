package ticket

import (
	"testing"

	"github.com/iliyamo/senhas/internal/model"
)

func TestFormatDisplayNumber(t *testing.T) {
	cases := []struct {
		typ  model.TicketType
		n    int
		want string
	}{
		{model.TypePriority, 7, "P007"},
		{model.TypeNormal, 1, "N001"},
		{model.TypeQuick, 42, "R042"},
		{model.TypeNormal, 999, "N999"},
		{model.TypeNormal, 1000, "N1000"},
		{model.TypePriority, 123456, "P123456"},
	}
	for _, tt := range cases {
		if got := FormatDisplayNumber(tt.typ, tt.n); got != tt.want {
			t.Fatalf("FormatDisplayNumber(%s, %d)=%q, want %q", tt.typ, tt.n, got, tt.want)
		}
	}
}

func TestNextSequence(t *testing.T) {
	cases := []struct {
		name  string
		last  model.Ticket
		found bool
		want  int
	}{
		{"no prior ticket", model.Ticket{}, false, 1},
		{"sequence column", model.Ticket{Sequence: 41, DisplayNumber: "N041"}, true, 42},
		{"legacy display number", model.Ticket{DisplayNumber: "P1009"}, true, 1010},
		{"unparseable", model.Ticket{DisplayNumber: "PX"}, true, 1},
	}
	for _, tt := range cases {
		if got := NextSequence(tt.last, tt.found); got != tt.want {
			t.Fatalf("%s: NextSequence=%d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestLabelRepairsOnlyMissingNumbers(t *testing.T) {
	if got := Label(model.Ticket{DisplayNumber: "N010", Sequence: 3}); got != "N010" {
		t.Fatalf("stored number must win, got %q", got)
	}
	if got := Label(model.Ticket{Type: model.TypeNormal, Sequence: 3}); got != "N003" {
		t.Fatalf("sequence repair: got %q", got)
	}
	got := Label(model.Ticket{Type: model.TypeQuick, ID: "ab12cd34-0000"})
	if got != "R-AB12" {
		t.Fatalf("id repair: got %q", got)
	}
}

func TestParseTicketType(t *testing.T) {
	cases := map[string]model.TicketType{
		"PRIORITY": model.TypePriority,
		"p":        model.TypePriority,
		"normal":   model.TypeNormal,
		" R ":      model.TypeQuick,
		"quick":    model.TypeQuick,
	}
	for in, want := range cases {
		got, ok := model.ParseTicketType(in)
		if !ok || got != want {
			t.Fatalf("ParseTicketType(%q)=(%q,%v), want %q", in, got, ok, want)
		}
	}
	if _, ok := model.ParseTicketType("VIP"); ok {
		t.Fatalf("unknown type accepted")
	}
}
