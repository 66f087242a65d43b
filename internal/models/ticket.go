package models

import "time"

type Ticket struct {
	TicketID      string     `json:"ticket_id"`
	Code          string     `json:"code"`
	ServiceID     string     `json:"service_id"`
	Status        string     `json:"status"`
	Triage        string     `json:"triage,omitempty"`
	Preferente    bool       `json:"preferente"`
	CounterID     *string    `json:"counter_id,omitempty"`
	EnqueuedAt    time.Time  `json:"enqueued_at"`
	CalledAt      *time.Time `json:"called_at,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Note          string     `json:"note,omitempty"`
	DocValue      string     `json:"doc_value,omitempty"`
	AppointmentID string     `json:"appointment_id,omitempty"`
}

const (
	StatusWaiting = "waiting"
	StatusCalled  = "called"
	StatusServing = "serving"
	StatusDone    = "done"
	StatusNoShow  = "no_show"
)

const (
	TriageRed    = "RED"
	TriageOrange = "ORANGE"
	TriageYellow = "YELLOW"
	TriageGreen  = "GREEN"
	TriageBlue   = "BLUE"
)

// Lower rank is called earlier. Untriaged tickets sort last.
var triageRanks = map[string]int{
	TriageRed:    0,
	TriageOrange: 1,
	TriageYellow: 2,
	TriageGreen:  3,
	TriageBlue:   4,
}

const untriagedRank = 5

func TriageRank(level string) int {
	rank, ok := triageRanks[level]
	if !ok {
		return untriagedRank
	}
	return rank
}

func ValidTriage(level string) bool {
	_, ok := triageRanks[level]
	return ok
}

func IsTerminal(status string) bool {
	return status == StatusDone || status == StatusNoShow
}

func IsActive(status string) bool {
	return status == StatusWaiting || status == StatusCalled || status == StatusServing
}
