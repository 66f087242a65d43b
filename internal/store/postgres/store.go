package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/albertogalvez-dev/queue/internal/models"
	"github.com/albertogalvez-dev/queue/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ticketNumberPad = 3

const ticketColumns = `ticket_id, code, service_id, status, triage, preferente, counter_id,
	enqueued_at, called_at, started_at, finished_at, note, doc_value, appointment_id`

// Dispatch order baked into SQL; must match store.SortQueue.
const dispatchOrder = `
	CASE triage WHEN 'RED' THEN 0 WHEN 'ORANGE' THEN 1 WHEN 'YELLOW' THEN 2
		WHEN 'GREEN' THEN 3 WHEN 'BLUE' THEN 4 ELSE 5 END,
	preferente DESC,
	enqueued_at`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var prefix string
	var isActive bool
	err = tx.QueryRow(ctx, `SELECT prefix, is_active FROM services WHERE service_id = $1`, input.ServiceID).Scan(&prefix, &isActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, store.ErrServiceNotFound
	}
	if err != nil {
		return models.Ticket{}, err
	}
	if !isActive {
		return models.Ticket{}, store.ErrServiceInactive
	}

	enqueuedAt := input.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now().UTC()
	}

	var seq int
	err = tx.QueryRow(ctx, `
		INSERT INTO ticket_numbers (service_id, day, seq) VALUES ($1, $2, 1)
		ON CONFLICT (service_id, day) DO UPDATE SET seq = ticket_numbers.seq + 1
		RETURNING seq
	`, input.ServiceID, enqueuedAt.UTC().Format("2006-01-02")).Scan(&seq)
	if err != nil {
		return models.Ticket{}, err
	}

	ticket := models.Ticket{
		TicketID:      uuid.NewString(),
		Code:          fmt.Sprintf("%s-%0*d", prefix, ticketNumberPad, seq),
		ServiceID:     input.ServiceID,
		Status:        models.StatusWaiting,
		Triage:        input.Triage,
		Preferente:    input.Preferente,
		EnqueuedAt:    enqueuedAt,
		DocValue:      strings.ToUpper(strings.TrimSpace(input.DocValue)),
		AppointmentID: input.AppointmentID,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tickets (ticket_id, code, service_id, status, triage, preferente, enqueued_at, doc_value, appointment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ticket.TicketID, ticket.Code, ticket.ServiceID, ticket.Status, nullIfEmpty(ticket.Triage), ticket.Preferente, ticket.EnqueuedAt, ticket.DocValue, ticket.AppointmentID)
	if err != nil {
		return models.Ticket{}, err
	}

	if err = insertEvent(ctx, tx, store.EventCreated, ticket, input.Actor, enqueuedAt); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1`, ticketID)
	ticket, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return ticket, err
}

func (s *Store) GetTicketByCode(ctx context.Context, code string) (models.Ticket, error) {
	normalized := store.NormalizeCode(code)
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+` FROM tickets WHERE code = $1
		ORDER BY enqueued_at DESC LIMIT 1
	`, normalized)
	ticket, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return ticket, err
}

func (s *Store) GetActiveTicketByDoc(ctx context.Context, docValue string) (models.Ticket, bool, error) {
	doc := strings.ToUpper(strings.TrimSpace(docValue))
	if doc == "" {
		return models.Ticket{}, false, nil
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE doc_value = $1 AND status IN ('waiting', 'called', 'serving')
		ORDER BY enqueued_at DESC LIMIT 1
	`, doc)
	ticket, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, false, nil
	}
	if err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) ListByStatus(ctx context.Context, serviceID string, statuses []string) ([]models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1=1`
	args := make([]interface{}, 0, 2)
	if serviceID != "" {
		args = append(args, serviceID)
		query += fmt.Sprintf(" AND service_id = $%d", len(args))
	}
	if len(statuses) > 0 {
		args = append(args, statuses)
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	query += " ORDER BY enqueued_at, ticket_id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (s *Store) ListQueue(ctx context.Context, serviceID string) ([]models.Ticket, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM services WHERE service_id = $1)`, serviceID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrServiceNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE service_id = $1 AND status IN ('waiting', 'called', 'serving')
		ORDER BY `+dispatchOrder, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (s *Store) QueuePosition(ctx context.Context, ticketID string) (int, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return 0, err
	}
	if ticket.Status != models.StatusWaiting {
		return 0, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT ticket_id FROM tickets
		WHERE service_id = $1 AND status = 'waiting'
		ORDER BY `+dispatchOrder, ticket.ServiceID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	position := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		position++
		if id == ticketID {
			return position, nil
		}
	}
	return 0, rows.Err()
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err = checkService(ctx, tx, input.ServiceID); err != nil {
		return models.Ticket{}, err
	}
	if err = checkCounter(ctx, tx, input.CounterID, input.ServiceID); err != nil {
		return models.Ticket{}, err
	}

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	// SKIP LOCKED keeps concurrent dispatches from contending on the same
	// head row: each caller claims the first unclaimed ticket.
	row := tx.QueryRow(ctx, `
		SELECT ticket_id FROM tickets
		WHERE service_id = $1 AND status = 'waiting'
		ORDER BY `+dispatchOrder+`
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, input.ServiceID)
	var ticketID string
	if err = row.Scan(&ticketID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrNoTicket
		}
		return models.Ticket{}, err
	}

	ticket, err := updateTicket(ctx, tx, ticketID,
		`status = 'called', counter_id = $2, called_at = $3`, input.CounterID, calledAt)
	if err != nil {
		return models.Ticket{}, err
	}

	if err = insertEvent(ctx, tx, store.EventCalled, ticket, input.Actor, calledAt); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) CallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	occurredAt := occurredOrNow(input.OccurredAt)
	return s.transition(ctx, input, "call", store.EventCalled, func(tx pgx.Tx) error {
		var isActive bool
		err := tx.QueryRow(ctx, `SELECT is_active FROM counters WHERE counter_id = $1`, input.CounterID).Scan(&isActive)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrCounterNotFound
		}
		if err != nil {
			return err
		}
		if !isActive {
			return store.ErrCounterUnavailable
		}
		return nil
	}, `status = 'called', counter_id = $2, called_at = $3`, input.CounterID, occurredAt)
}

func (s *Store) StartServing(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	occurredAt := occurredOrNow(input.OccurredAt)
	return s.transition(ctx, input, "start_serving", store.EventStarted, nil,
		`status = 'serving', started_at = $2`, occurredAt)
}

func (s *Store) FinishTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	occurredAt := occurredOrNow(input.OccurredAt)
	return s.transition(ctx, input, "finish", store.EventFinished, nil,
		`status = 'done', finished_at = $2`, occurredAt)
}

func (s *Store) NoShowTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	return s.transition(ctx, input, "no_show", store.EventNoShow, nil, `status = 'no_show'`)
}

func (s *Store) RecallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	occurredAt := occurredOrNow(input.OccurredAt)
	return s.transition(ctx, input, "recall", store.EventCalled, nil, `called_at = $2`, occurredAt)
}

func (s *Store) TransferTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err = checkService(ctx, tx, input.ToServiceID); err != nil {
		return models.Ticket{}, err
	}

	row := tx.QueryRow(ctx, `SELECT status FROM tickets WHERE ticket_id = $1 FOR UPDATE`, input.TicketID)
	var status string
	if err = row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	if !store.ValidTransition("transfer", status) {
		return models.Ticket{}, store.ErrInvalidState
	}

	ticket, err := updateTicket(ctx, tx, input.TicketID,
		`service_id = $2, status = 'waiting', counter_id = NULL, called_at = NULL, started_at = NULL`, input.ToServiceID)
	if err != nil {
		return models.Ticket{}, err
	}

	if err = insertEvent(ctx, tx, store.EventTransferred, ticket, input.Actor, occurredOrNow(input.OccurredAt)); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) AutoNoShow(ctx context.Context, grace time.Duration, batchSize int) (int, error) {
	if grace <= 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT ticket_id FROM tickets
		WHERE status = 'called' AND called_at < $1
		ORDER BY called_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, time.Now().UTC().Add(-grace), batchSize)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, batchSize)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for _, id := range ids {
		ticket, err := updateTicket(ctx, tx, id, `status = 'no_show'`)
		if err != nil {
			return 0, err
		}
		if err = insertEvent(ctx, tx, store.EventNoShow, ticket, "system", now); err != nil {
			return 0, err
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *Store) SetTriage(ctx context.Context, ticketID, level, actor string) (models.Ticket, error) {
	if !models.ValidTriage(level) {
		return models.Ticket{}, store.ErrInvalidState
	}
	return s.edit(ctx, ticketID, `triage = $2`, level)
}

func (s *Store) SetPreferente(ctx context.Context, ticketID string, value bool, actor string) (models.Ticket, error) {
	return s.edit(ctx, ticketID, `preferente = $2`, value)
}

func (s *Store) SetNote(ctx context.Context, ticketID, note, actor string) (models.Ticket, error) {
	return s.edit(ctx, ticketID, `note = $2`, note)
}

func (s *Store) Display(ctx context.Context) (store.DisplayBoard, error) {
	board := store.DisplayBoard{}

	rows, err := s.pool.Query(ctx, `
		SELECT t.code, s.name, COALESCE(c.name, '-'), t.status
		FROM tickets t
		JOIN services s ON s.service_id = t.service_id
		LEFT JOIN counters c ON c.counter_id = t.counter_id
		WHERE t.status IN ('called', 'serving')
		ORDER BY t.called_at DESC NULLS LAST
		LIMIT 4`)
	if err != nil {
		return store.DisplayBoard{}, err
	}
	board.NowServing, err = scanDisplayRows(rows)
	if err != nil {
		return store.DisplayBoard{}, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT t.code, s.name, '-', t.status
		FROM tickets t
		JOIN services s ON s.service_id = t.service_id
		WHERE t.status = 'waiting'
		ORDER BY `+dispatchOrder+`
		LIMIT 8`)
	if err != nil {
		return store.DisplayBoard{}, err
	}
	board.Next, err = scanDisplayRows(rows)
	if err != nil {
		return store.DisplayBoard{}, err
	}

	revision, err := s.Revision(ctx)
	if err != nil {
		return store.DisplayBoard{}, err
	}
	board.Revision = revision
	return board, nil
}

func (s *Store) Revision(ctx context.Context) (uint64, error) {
	var revision uint64
	err := s.pool.QueryRow(ctx, `SELECT last_value FROM store_revision`).Scan(&revision)
	return revision, err
}

func (s *Store) ListEvents(ctx context.Context, since uint64, limit int) ([]store.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT seq, type, ticket_id, ticket_code, service_id, counter_id, actor, created_at
		FROM events WHERE seq > $1 ORDER BY seq LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]store.Event, 0)
	for rows.Next() {
		var event store.Event
		if err := rows.Scan(&event.Seq, &event.Type, &event.TicketID, &event.TicketCode, &event.ServiceID, &event.CounterID, &event.Actor, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *Store) Summary(ctx context.Context) (store.AnalyticsSummary, error) {
	summary := store.AnalyticsSummary{}
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'waiting'),
			COUNT(*) FILTER (WHERE status = 'done'),
			COUNT(*) FILTER (WHERE status = 'no_show'),
			COALESCE(EXTRACT(EPOCH FROM AVG(called_at - enqueued_at)), 0),
			COALESCE(EXTRACT(EPOCH FROM AVG(finished_at - started_at)), 0)
		FROM tickets`).Scan(
		&summary.TotalTickets, &summary.WaitingCount, &summary.ServedCount, &summary.NoShowCount,
		&summary.AvgWaitSeconds, &summary.AvgServiceSeconds)
	if err != nil {
		return store.AnalyticsSummary{}, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT t.service_id, s.name, COUNT(*),
			COUNT(*) FILTER (WHERE t.status = 'waiting'),
			COUNT(*) FILTER (WHERE t.status = 'done')
		FROM tickets t
		JOIN services s ON s.service_id = t.service_id
		GROUP BY t.service_id, s.name
		ORDER BY t.service_id`)
	if err != nil {
		return store.AnalyticsSummary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var entry store.ServiceSummary
		if err := rows.Scan(&entry.ServiceID, &entry.Name, &entry.Total, &entry.Waiting, &entry.Served); err != nil {
			return store.AnalyticsSummary{}, err
		}
		summary.ByService = append(summary.ByService, entry)
	}
	return summary, rows.Err()
}

func (s *Store) ListServices(ctx context.Context) ([]models.Service, error) {
	rows, err := s.pool.Query(ctx, `SELECT service_id, name, prefix, is_active FROM services ORDER BY service_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]models.Service, 0)
	for rows.Next() {
		var service models.Service
		if err := rows.Scan(&service.ServiceID, &service.Name, &service.Prefix, &service.IsActive); err != nil {
			return nil, err
		}
		services = append(services, service)
	}
	return services, rows.Err()
}

func (s *Store) CreateService(ctx context.Context, service models.Service) (models.Service, error) {
	if service.ServiceID == "" {
		service.ServiceID = uuid.NewString()
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Service{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO services (service_id, name, prefix, is_active) VALUES ($1, $2, $3, $4)
	`, service.ServiceID, service.Name, service.Prefix, service.IsActive)
	if isUniqueViolation(err) {
		return models.Service{}, store.ErrDuplicatePrefix
	}
	if err != nil {
		return models.Service{}, err
	}
	if err = bumpRevision(ctx, tx); err != nil {
		return models.Service{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Service{}, err
	}
	return service, nil
}

func (s *Store) UpdateService(ctx context.Context, serviceID string, update store.ServiceUpdate) (models.Service, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Service{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE services SET
			name = COALESCE($2, name),
			is_active = COALESCE($3, is_active)
		WHERE service_id = $1
		RETURNING service_id, name, prefix, is_active
	`, serviceID, update.Name, update.IsActive)
	var service models.Service
	if err = row.Scan(&service.ServiceID, &service.Name, &service.Prefix, &service.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.ErrServiceNotFound
		}
		return models.Service{}, err
	}
	if err = bumpRevision(ctx, tx); err != nil {
		return models.Service{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Service{}, err
	}
	return service, nil
}

func (s *Store) ListCounters(ctx context.Context, serviceID string) ([]models.Counter, error) {
	query := `SELECT counter_id, name, service_id, is_active FROM counters`
	args := make([]interface{}, 0, 1)
	if serviceID != "" {
		query += ` WHERE service_id = $1`
		args = append(args, serviceID)
	}
	query += ` ORDER BY counter_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counters := make([]models.Counter, 0)
	for rows.Next() {
		var counter models.Counter
		if err := rows.Scan(&counter.CounterID, &counter.Name, &counter.ServiceID, &counter.IsActive); err != nil {
			return nil, err
		}
		counters = append(counters, counter)
	}
	return counters, rows.Err()
}

func (s *Store) CreateCounter(ctx context.Context, counter models.Counter) (models.Counter, error) {
	if counter.CounterID == "" {
		counter.CounterID = uuid.NewString()
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Counter{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO counters (counter_id, name, service_id, is_active) VALUES ($1, $2, $3, $4)
	`, counter.CounterID, counter.Name, counter.ServiceID, counter.IsActive)
	if isForeignKeyViolation(err) {
		return models.Counter{}, store.ErrServiceNotFound
	}
	if err != nil {
		return models.Counter{}, err
	}
	if err = bumpRevision(ctx, tx); err != nil {
		return models.Counter{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Counter{}, err
	}
	return counter, nil
}

func (s *Store) UpdateCounter(ctx context.Context, counterID string, update store.CounterUpdate) (models.Counter, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Counter{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE counters SET
			name = COALESCE($2, name),
			is_active = COALESCE($3, is_active)
		WHERE counter_id = $1
		RETURNING counter_id, name, service_id, is_active
	`, counterID, update.Name, update.IsActive)
	var counter models.Counter
	if err = row.Scan(&counter.CounterID, &counter.Name, &counter.ServiceID, &counter.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Counter{}, store.ErrCounterNotFound
		}
		return models.Counter{}, err
	}
	if err = bumpRevision(ctx, tx); err != nil {
		return models.Counter{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Counter{}, err
	}
	return counter, nil
}

func (s *Store) ListAppointments(ctx context.Context, docValue string) ([]models.Appointment, error) {
	doc := strings.ToUpper(strings.TrimSpace(docValue))
	rows, err := s.pool.Query(ctx, `
		SELECT appointment_id, doc_value, service_id, title, slot, doctor, room
		FROM appointments WHERE doc_value = $1 ORDER BY slot
	`, doc)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	appointments := make([]models.Appointment, 0)
	for rows.Next() {
		var appointment models.Appointment
		if err := rows.Scan(&appointment.AppointmentID, &appointment.DocValue, &appointment.ServiceID,
			&appointment.Title, &appointment.Time, &appointment.Doctor, &appointment.Room); err != nil {
			return nil, err
		}
		appointments = append(appointments, appointment)
	}
	return appointments, rows.Err()
}

func (s *Store) CheckInAppointment(ctx context.Context, appointmentID, actor string) (models.Ticket, error) {
	var docValue, serviceID string
	err := s.pool.QueryRow(ctx, `
		SELECT doc_value, service_id FROM appointments WHERE appointment_id = $1
	`, appointmentID).Scan(&docValue, &serviceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, store.ErrAppointmentNotFound
	}
	if err != nil {
		return models.Ticket{}, err
	}
	return s.CreateTicket(ctx, store.CreateTicketInput{
		ServiceID:     serviceID,
		DocValue:      docValue,
		AppointmentID: appointmentID,
		Actor:         actor,
		EnqueuedAt:    time.Now().UTC(),
	})
}

// transition locks the ticket row, validates the state machine, applies the
// update clause, and appends the lifecycle event in one transaction.
func (s *Store) transition(ctx context.Context, input store.TicketActionInput, action, eventType string, precheck func(pgx.Tx) error, setClause string, args ...interface{}) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if precheck != nil {
		if err = precheck(tx); err != nil {
			return models.Ticket{}, err
		}
	}

	row := tx.QueryRow(ctx, `SELECT status FROM tickets WHERE ticket_id = $1 FOR UPDATE`, input.TicketID)
	var status string
	if err = row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	if !store.ValidTransition(action, status) {
		return models.Ticket{}, store.ErrInvalidState
	}

	ticket, err := updateTicket(ctx, tx, input.TicketID, setClause, args...)
	if err != nil {
		return models.Ticket{}, err
	}

	if err = insertEvent(ctx, tx, eventType, ticket, input.Actor, occurredOrNow(input.OccurredAt)); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) edit(ctx context.Context, ticketID, setClause string, arg interface{}) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT status FROM tickets WHERE ticket_id = $1 FOR UPDATE`, ticketID)
	var status string
	if err = row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	if models.IsTerminal(status) {
		return models.Ticket{}, store.ErrInvalidState
	}

	ticket, err := updateTicket(ctx, tx, ticketID, setClause, arg)
	if err != nil {
		return models.Ticket{}, err
	}
	// Revision must move even without a lifecycle event.
	if err = bumpRevision(ctx, tx); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func updateTicket(ctx context.Context, tx pgx.Tx, ticketID, setClause string, args ...interface{}) (models.Ticket, error) {
	query := `UPDATE tickets SET ` + setClause + ` WHERE ticket_id = $1 RETURNING ` + ticketColumns
	row := tx.QueryRow(ctx, query, append([]interface{}{ticketID}, args...)...)
	return scanTicket(row)
}

func insertEvent(ctx context.Context, tx pgx.Tx, eventType string, ticket models.Ticket, actor string, createdAt time.Time) error {
	counterID := ""
	if ticket.CounterID != nil {
		counterID = *ticket.CounterID
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO events (seq, type, ticket_id, ticket_code, service_id, counter_id, actor, created_at)
		VALUES (nextval('store_revision'), $1, $2, $3, $4, $5, $6, $7)
	`, eventType, ticket.TicketID, ticket.Code, ticket.ServiceID, counterID, actor, createdAt)
	return err
}

func checkService(ctx context.Context, tx pgx.Tx, serviceID string) error {
	var isActive bool
	err := tx.QueryRow(ctx, `SELECT is_active FROM services WHERE service_id = $1`, serviceID).Scan(&isActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrServiceNotFound
	}
	if err != nil {
		return err
	}
	if !isActive {
		return store.ErrServiceInactive
	}
	return nil
}

func checkCounter(ctx context.Context, tx pgx.Tx, counterID, serviceID string) error {
	var boundService string
	var isActive bool
	err := tx.QueryRow(ctx, `SELECT service_id, is_active FROM counters WHERE counter_id = $1`, counterID).Scan(&boundService, &isActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrCounterNotFound
	}
	if err != nil {
		return err
	}
	if !isActive {
		return store.ErrCounterUnavailable
	}
	if boundService != serviceID {
		return store.ErrCounterMismatch
	}
	return nil
}

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var ticket models.Ticket
	var triage, counterID sql.NullString
	var calledAt, startedAt, finishedAt sql.NullTime
	err := row.Scan(&ticket.TicketID, &ticket.Code, &ticket.ServiceID, &ticket.Status,
		&triage, &ticket.Preferente, &counterID,
		&ticket.EnqueuedAt, &calledAt, &startedAt, &finishedAt,
		&ticket.Note, &ticket.DocValue, &ticket.AppointmentID)
	if err != nil {
		return models.Ticket{}, err
	}
	if triage.Valid {
		ticket.Triage = triage.String
	}
	if counterID.Valid {
		ticket.CounterID = &counterID.String
	}
	if calledAt.Valid {
		ticket.CalledAt = &calledAt.Time
	}
	if startedAt.Valid {
		ticket.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		ticket.FinishedAt = &finishedAt.Time
	}
	return ticket, nil
}

func scanTickets(rows pgx.Rows) ([]models.Ticket, error) {
	tickets := make([]models.Ticket, 0)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

func scanDisplayRows(rows pgx.Rows) ([]store.DisplayRow, error) {
	defer rows.Close()
	display := make([]store.DisplayRow, 0)
	for rows.Next() {
		var row store.DisplayRow
		if err := rows.Scan(&row.TicketCode, &row.ServiceName, &row.CounterName, &row.Status); err != nil {
			return nil, err
		}
		display = append(display, row)
	}
	return display, rows.Err()
}

// bumpRevision advances store_revision for mutations that emit no event,
// so Revision still reflects every committed write.
func bumpRevision(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `SELECT nextval('store_revision')`)
	return err
}

func occurredOrNow(occurredAt time.Time) time.Time {
	if occurredAt.IsZero() {
		return time.Now().UTC()
	}
	return occurredAt
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
