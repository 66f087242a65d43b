package store

import (
	"testing"
	"time"

	"github.com/albertogalvez-dev/queue/internal/models"
)

func ticketAt(id, triage string, preferente bool, offset time.Duration) models.Ticket {
	base := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	return models.Ticket{
		TicketID:   id,
		Status:     models.StatusWaiting,
		Triage:     triage,
		Preferente: preferente,
		EnqueuedAt: base.Add(offset),
	}
}

func TestSortQueueTriageBeforeFIFO(t *testing.T) {
	tickets := []models.Ticket{
		ticketAt("g1", models.TriageGreen, false, 0),
		ticketAt("g2", models.TriageGreen, false, time.Minute),
		ticketAt("r1", models.TriageRed, false, 2*time.Minute),
	}

	sorted := SortQueue(tickets)
	want := []string{"r1", "g1", "g2"}
	for i, id := range want {
		if sorted[i].TicketID != id {
			t.Fatalf("position %d: got %s, want %s", i, sorted[i].TicketID, id)
		}
	}
}

func TestSortQueuePreferenteBreaksTriageTie(t *testing.T) {
	tickets := []models.Ticket{
		ticketAt("a", models.TriageYellow, false, 0),
		ticketAt("b", models.TriageYellow, true, time.Minute),
	}

	sorted := SortQueue(tickets)
	if sorted[0].TicketID != "b" {
		t.Fatalf("preferente ticket should sort first, got %s", sorted[0].TicketID)
	}
}

func TestSortQueueUntriagedLast(t *testing.T) {
	tickets := []models.Ticket{
		ticketAt("none", "", false, 0),
		ticketAt("blue", models.TriageBlue, false, time.Minute),
	}

	sorted := SortQueue(tickets)
	if sorted[0].TicketID != "blue" {
		t.Fatalf("triaged ticket should sort before untriaged, got %s", sorted[0].TicketID)
	}
}

func TestSortQueueStable(t *testing.T) {
	base := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	tickets := make([]models.Ticket, 0, 6)
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5", "t6"} {
		ticket := ticketAt(id, models.TriageGreen, false, 0)
		ticket.EnqueuedAt = base
		tickets = append(tickets, ticket)
	}

	sorted := SortQueue(tickets)
	for i, ticket := range sorted {
		if ticket.TicketID != tickets[i].TicketID {
			t.Fatalf("equal keys must keep insertion order: position %d got %s", i, ticket.TicketID)
		}
	}

	if SortQueue(sorted)[0].TicketID != sorted[0].TicketID {
		t.Fatal("resorting must not reshuffle equal keys")
	}
}

func TestNormalizeCode(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"a-014", "A-014"},
		{" A-014 ", "A-014"},
		{"A - 014", "A-014"},
		{"\te-101\n", "E-101"},
	}
	for _, tt := range cases {
		if got := NormalizeCode(tt.input); got != tt.want {
			t.Fatalf("NormalizeCode(%q)=%q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidCode(t *testing.T) {
	cases := []struct {
		code  string
		valid bool
	}{
		{"A-014", true},
		{"V-999", true},
		{"A-1000", true},
		{"a-014", false},
		{"A014", false},
		{"A-01", false},
		{"AB-014", false},
		{"", false},
	}
	for _, tt := range cases {
		if got := ValidCode(tt.code); got != tt.valid {
			t.Fatalf("ValidCode(%q)=%v, want %v", tt.code, got, tt.valid)
		}
	}
}
