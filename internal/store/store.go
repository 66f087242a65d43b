package store

import (
	"context"
	"time"

	"github.com/albertogalvez-dev/queue/internal/models"
)

type CreateTicketInput struct {
	ServiceID     string
	Triage        string
	Preferente    bool
	DocValue      string
	AppointmentID string
	Actor         string
	EnqueuedAt    time.Time
}

type CallNextInput struct {
	ServiceID string
	CounterID string
	Actor     string
	CalledAt  time.Time
}

type TicketActionInput struct {
	TicketID    string
	CounterID   string
	ToServiceID string
	Actor       string
	OccurredAt  time.Time
}

type ServiceUpdate struct {
	Name     *string
	IsActive *bool
}

type CounterUpdate struct {
	Name     *string
	IsActive *bool
}

// TicketStore is the dispatch engine contract. Implementations own the
// ticket records and their synchronization; every committed mutation bumps
// the store revision and lifecycle transitions append to the event feed.
type TicketStore interface {
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	GetTicketByCode(ctx context.Context, code string) (models.Ticket, error)
	GetActiveTicketByDoc(ctx context.Context, docValue string) (models.Ticket, bool, error)
	ListByStatus(ctx context.Context, serviceID string, statuses []string) ([]models.Ticket, error)
	ListQueue(ctx context.Context, serviceID string) ([]models.Ticket, error)
	QueuePosition(ctx context.Context, ticketID string) (int, error)

	CallNext(ctx context.Context, input CallNextInput) (models.Ticket, error)
	CallTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	StartServing(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	FinishTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	NoShowTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	RecallTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	TransferTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	AutoNoShow(ctx context.Context, grace time.Duration, batchSize int) (int, error)

	SetTriage(ctx context.Context, ticketID, level, actor string) (models.Ticket, error)
	SetPreferente(ctx context.Context, ticketID string, value bool, actor string) (models.Ticket, error)
	SetNote(ctx context.Context, ticketID, note, actor string) (models.Ticket, error)

	Display(ctx context.Context) (DisplayBoard, error)
	Revision(ctx context.Context) (uint64, error)
	ListEvents(ctx context.Context, since uint64, limit int) ([]Event, error)
	Summary(ctx context.Context) (AnalyticsSummary, error)

	ListServices(ctx context.Context) ([]models.Service, error)
	CreateService(ctx context.Context, service models.Service) (models.Service, error)
	UpdateService(ctx context.Context, serviceID string, update ServiceUpdate) (models.Service, error)
	ListCounters(ctx context.Context, serviceID string) ([]models.Counter, error)
	CreateCounter(ctx context.Context, counter models.Counter) (models.Counter, error)
	UpdateCounter(ctx context.Context, counterID string, update CounterUpdate) (models.Counter, error)

	ListAppointments(ctx context.Context, docValue string) ([]models.Appointment, error)
	CheckInAppointment(ctx context.Context, appointmentID, actor string) (models.Ticket, error)
}

const (
	EventCreated     = "CREATED"
	EventCalled      = "CALLED"
	EventStarted     = "STARTED"
	EventFinished    = "FINISHED"
	EventNoShow      = "NOSHOW"
	EventTransferred = "TRANSFERRED"
)

// Event sequence numbers come from the store revision counter, so they are
// strictly increasing but not contiguous: mutations that are not lifecycle
// transitions bump the revision without appending an event.
type Event struct {
	Seq        uint64    `json:"seq"`
	Type       string    `json:"type"`
	TicketID   string    `json:"ticket_id"`
	TicketCode string    `json:"ticket_code"`
	ServiceID  string    `json:"service_id"`
	CounterID  string    `json:"counter_id,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type DisplayRow struct {
	TicketCode  string `json:"ticket_code"`
	ServiceName string `json:"service_name"`
	CounterName string `json:"counter_name"`
	Status      string `json:"status"`
}

type DisplayBoard struct {
	NowServing []DisplayRow `json:"now_serving"`
	Next       []DisplayRow `json:"next"`
	Revision   uint64       `json:"revision"`
}

type ServiceSummary struct {
	ServiceID string `json:"service_id"`
	Name      string `json:"name"`
	Total     int    `json:"total"`
	Waiting   int    `json:"waiting"`
	Served    int    `json:"served"`
}

type AnalyticsSummary struct {
	TotalTickets      int              `json:"total_tickets"`
	WaitingCount      int              `json:"waiting_count"`
	ServedCount       int              `json:"served_count"`
	NoShowCount       int              `json:"no_show_count"`
	AvgWaitSeconds    float64          `json:"avg_wait_seconds"`
	AvgServiceSeconds float64          `json:"avg_service_seconds"`
	ByService         []ServiceSummary `json:"by_service"`
}
