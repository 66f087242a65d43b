package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/albertogalvez-dev/queue/internal/models"
	"github.com/albertogalvez-dev/queue/internal/store"

	"github.com/google/uuid"
)

const ticketNumberPad = 3

// Store is the in-process dispatch engine. Dispatch decisions for a service
// serialize on that service's lock; the store-wide RWMutex only guards the
// maps, so operations on distinct services proceed independently and reads
// never wait on a dispatch in flight.
//
// Lock order: service lock(s) first (sorted by service ID when two are
// needed), then mu. Never acquire a service lock while holding mu.
type Store struct {
	mu           sync.RWMutex
	services     map[string]models.Service
	counters     map[string]models.Counter
	appointments map[string]models.Appointment
	tickets      map[string]models.Ticket
	order        []string
	byCode       map[string]string

	queuesMu sync.Mutex
	queues   map[string]*serviceQueue

	revision atomic.Uint64
	events   *eventRing
}

type Options struct {
	EventBufferSize int
}

func NewStore(options Options) *Store {
	size := options.EventBufferSize
	if size <= 0 {
		size = 1024
	}
	return &Store{
		services:     make(map[string]models.Service),
		counters:     make(map[string]models.Counter),
		appointments: make(map[string]models.Appointment),
		tickets:      make(map[string]models.Ticket),
		byCode:       make(map[string]string),
		queues:       make(map[string]*serviceQueue),
		events:       newEventRing(size),
	}
}

// serviceQueue serializes dispatch for one service and owns its daily
// ticket-number sequence. The semaphore form keeps lock acquisition
// cancellable so a slow dispatch cannot pile callers up past their deadline.
type serviceQueue struct {
	sem chan struct{}
	day string
	seq int
}

func (q *serviceQueue) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *serviceQueue) unlock() {
	<-q.sem
}

func (s *Store) queue(serviceID string) *serviceQueue {
	s.queuesMu.Lock()
	defer s.queuesMu.Unlock()
	q, ok := s.queues[serviceID]
	if !ok {
		q = &serviceQueue{sem: make(chan struct{}, 1)}
		s.queues[serviceID] = q
	}
	return q
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	s.mu.RLock()
	service, ok := s.services[input.ServiceID]
	s.mu.RUnlock()
	if !ok {
		return models.Ticket{}, store.ErrServiceNotFound
	}
	if !service.IsActive {
		return models.Ticket{}, store.ErrServiceInactive
	}

	enqueuedAt := input.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now().UTC()
	}

	q := s.queue(input.ServiceID)
	if err := q.lock(ctx); err != nil {
		return models.Ticket{}, err
	}
	defer q.unlock()

	day := enqueuedAt.UTC().Format("2006-01-02")
	if q.day != day {
		q.day = day
		q.seq = 0
	}
	q.seq++
	code := fmt.Sprintf("%s-%0*d", service.Prefix, ticketNumberPad, q.seq)

	ticket := models.Ticket{
		TicketID:      uuid.NewString(),
		Code:          code,
		ServiceID:     input.ServiceID,
		Status:        models.StatusWaiting,
		Triage:        input.Triage,
		Preferente:    input.Preferente,
		EnqueuedAt:    enqueuedAt,
		DocValue:      normalizeDoc(input.DocValue),
		AppointmentID: input.AppointmentID,
	}

	s.mu.Lock()
	s.tickets[ticket.TicketID] = ticket
	s.order = append(s.order, ticket.TicketID)
	s.byCode[code] = ticket.TicketID
	rev := s.revision.Add(1)
	s.events.append(store.Event{
		Seq:        rev,
		Type:       store.EventCreated,
		TicketID:   ticket.TicketID,
		TicketCode: ticket.Code,
		ServiceID:  ticket.ServiceID,
		Actor:      input.Actor,
		CreatedAt:  enqueuedAt,
	})
	s.mu.Unlock()
	return ticket, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return ticket, nil
}

func (s *Store) GetTicketByCode(ctx context.Context, code string) (models.Ticket, error) {
	normalized := store.NormalizeCode(code)
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticketID, ok := s.byCode[normalized]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return ticket, nil
}

func (s *Store) GetActiveTicketByDoc(ctx context.Context, docValue string) (models.Ticket, bool, error) {
	doc := normalizeDoc(docValue)
	if doc == "" {
		return models.Ticket{}, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest models.Ticket
	found := false
	for _, id := range s.order {
		ticket := s.tickets[id]
		if ticket.DocValue != doc || !models.IsActive(ticket.Status) {
			continue
		}
		if !found || ticket.EnqueuedAt.After(latest.EnqueuedAt) {
			latest = ticket
			found = true
		}
	}
	return latest, found, nil
}

func (s *Store) ListByStatus(ctx context.Context, serviceID string, statuses []string) ([]models.Ticket, error) {
	wanted := make(map[string]bool, len(statuses))
	for _, status := range statuses {
		wanted[status] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	tickets := make([]models.Ticket, 0)
	for _, id := range s.order {
		ticket := s.tickets[id]
		if serviceID != "" && ticket.ServiceID != serviceID {
			continue
		}
		if len(wanted) > 0 && !wanted[ticket.Status] {
			continue
		}
		tickets = append(tickets, ticket)
	}
	return tickets, nil
}

func (s *Store) ListQueue(ctx context.Context, serviceID string) ([]models.Ticket, error) {
	s.mu.RLock()
	_, ok := s.services[serviceID]
	s.mu.RUnlock()
	if !ok {
		return nil, store.ErrServiceNotFound
	}

	active, err := s.ListByStatus(ctx, serviceID, []string{models.StatusWaiting, models.StatusCalled, models.StatusServing})
	if err != nil {
		return nil, err
	}
	return store.SortQueue(active), nil
}

func (s *Store) QueuePosition(ctx context.Context, ticketID string) (int, error) {
	s.mu.RLock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		s.mu.RUnlock()
		return 0, store.ErrTicketNotFound
	}
	if ticket.Status != models.StatusWaiting {
		s.mu.RUnlock()
		return 0, nil
	}
	waiting := make([]models.Ticket, 0)
	for _, id := range s.order {
		candidate := s.tickets[id]
		if candidate.ServiceID == ticket.ServiceID && candidate.Status == models.StatusWaiting {
			waiting = append(waiting, candidate)
		}
	}
	s.mu.RUnlock()

	for i, candidate := range store.SortQueue(waiting) {
		if candidate.TicketID == ticketID {
			return i + 1, nil
		}
	}
	return 0, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, error) {
	s.mu.RLock()
	_, serviceOK := s.services[input.ServiceID]
	counter, counterOK := s.counters[input.CounterID]
	s.mu.RUnlock()
	if !serviceOK {
		return models.Ticket{}, store.ErrServiceNotFound
	}
	if !counterOK {
		return models.Ticket{}, store.ErrCounterNotFound
	}
	if !counter.IsActive {
		return models.Ticket{}, store.ErrCounterUnavailable
	}
	if counter.ServiceID != input.ServiceID {
		return models.Ticket{}, store.ErrCounterMismatch
	}

	q := s.queue(input.ServiceID)
	if err := q.lock(ctx); err != nil {
		return models.Ticket{}, err
	}
	defer q.unlock()

	s.mu.RLock()
	waiting := make([]models.Ticket, 0)
	for _, id := range s.order {
		ticket := s.tickets[id]
		if ticket.ServiceID == input.ServiceID && ticket.Status == models.StatusWaiting {
			waiting = append(waiting, ticket)
		}
	}
	s.mu.RUnlock()

	if len(waiting) == 0 {
		return models.Ticket{}, store.ErrNoTicket
	}
	head := store.SortQueue(waiting)[0]

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	s.mu.Lock()
	ticket, ok := s.tickets[head.TicketID]
	if !ok || ticket.Status != models.StatusWaiting || ticket.ServiceID != input.ServiceID {
		s.mu.Unlock()
		return models.Ticket{}, store.ErrConflict
	}
	ticket.Status = models.StatusCalled
	ticket.CounterID = &input.CounterID
	ticket.CalledAt = &calledAt
	s.tickets[ticket.TicketID] = ticket
	rev := s.revision.Add(1)
	s.events.append(store.Event{
		Seq:        rev,
		Type:       store.EventCalled,
		TicketID:   ticket.TicketID,
		TicketCode: ticket.Code,
		ServiceID:  ticket.ServiceID,
		CounterID:  input.CounterID,
		Actor:      input.Actor,
		CreatedAt:  calledAt,
	})
	s.mu.Unlock()
	return ticket, nil
}

func (s *Store) CallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	s.mu.RLock()
	counter, ok := s.counters[input.CounterID]
	s.mu.RUnlock()
	if !ok {
		return models.Ticket{}, store.ErrCounterNotFound
	}
	if !counter.IsActive {
		return models.Ticket{}, store.ErrCounterUnavailable
	}

	occurredAt := occurredOrNow(input.OccurredAt)
	return s.applyTransition(ctx, input.TicketID, "call", store.EventCalled, input.Actor, func(ticket *models.Ticket) {
		ticket.Status = models.StatusCalled
		ticket.CounterID = &input.CounterID
		ticket.CalledAt = &occurredAt
	})
}

func (s *Store) StartServing(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	occurredAt := occurredOrNow(input.OccurredAt)
	return s.applyTransition(ctx, input.TicketID, "start_serving", store.EventStarted, input.Actor, func(ticket *models.Ticket) {
		ticket.Status = models.StatusServing
		ticket.StartedAt = &occurredAt
	})
}

func (s *Store) FinishTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	occurredAt := occurredOrNow(input.OccurredAt)
	return s.applyTransition(ctx, input.TicketID, "finish", store.EventFinished, input.Actor, func(ticket *models.Ticket) {
		ticket.Status = models.StatusDone
		ticket.FinishedAt = &occurredAt
	})
}

func (s *Store) NoShowTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	return s.applyTransition(ctx, input.TicketID, "no_show", store.EventNoShow, input.Actor, func(ticket *models.Ticket) {
		ticket.Status = models.StatusNoShow
	})
}

func (s *Store) RecallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	occurredAt := occurredOrNow(input.OccurredAt)
	return s.applyTransition(ctx, input.TicketID, "recall", store.EventCalled, input.Actor, func(ticket *models.Ticket) {
		ticket.CalledAt = &occurredAt
	})
}

func (s *Store) TransferTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	s.mu.RLock()
	target, ok := s.services[input.ToServiceID]
	s.mu.RUnlock()
	if !ok {
		return models.Ticket{}, store.ErrServiceNotFound
	}
	if !target.IsActive {
		return models.Ticket{}, store.ErrServiceInactive
	}

	for {
		s.mu.RLock()
		ticket, ok := s.tickets[input.TicketID]
		s.mu.RUnlock()
		if !ok {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		fromServiceID := ticket.ServiceID

		locks := []*serviceQueue{s.queue(fromServiceID)}
		if input.ToServiceID != fromServiceID {
			other := s.queue(input.ToServiceID)
			if input.ToServiceID < fromServiceID {
				locks = []*serviceQueue{other, locks[0]}
			} else {
				locks = append(locks, other)
			}
		}
		if err := lockAll(ctx, locks); err != nil {
			return models.Ticket{}, err
		}

		s.mu.Lock()
		current, ok := s.tickets[input.TicketID]
		if !ok {
			s.mu.Unlock()
			unlockAll(locks)
			return models.Ticket{}, store.ErrTicketNotFound
		}
		if current.ServiceID != fromServiceID {
			s.mu.Unlock()
			unlockAll(locks)
			continue
		}
		if !store.ValidTransition("transfer", current.Status) {
			s.mu.Unlock()
			unlockAll(locks)
			return models.Ticket{}, store.ErrInvalidState
		}

		current.ServiceID = input.ToServiceID
		current.Status = models.StatusWaiting
		current.CounterID = nil
		current.CalledAt = nil
		current.StartedAt = nil
		s.tickets[current.TicketID] = current
		rev := s.revision.Add(1)
		s.events.append(store.Event{
			Seq:        rev,
			Type:       store.EventTransferred,
			TicketID:   current.TicketID,
			TicketCode: current.Code,
			ServiceID:  current.ServiceID,
			Actor:      input.Actor,
			CreatedAt:  occurredOrNow(input.OccurredAt),
		})
		s.mu.Unlock()
		unlockAll(locks)
		return current, nil
	}
}

func (s *Store) AutoNoShow(ctx context.Context, grace time.Duration, batchSize int) (int, error) {
	if grace <= 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	cutoff := time.Now().UTC().Add(-grace)

	s.mu.RLock()
	candidates := make([]string, 0)
	for _, id := range s.order {
		ticket := s.tickets[id]
		if ticket.Status == models.StatusCalled && ticket.CalledAt != nil && ticket.CalledAt.Before(cutoff) {
			candidates = append(candidates, id)
			if len(candidates) >= batchSize {
				break
			}
		}
	}
	s.mu.RUnlock()

	count := 0
	for _, id := range candidates {
		_, err := s.NoShowTicket(ctx, store.TicketActionInput{TicketID: id, Actor: "system", OccurredAt: time.Now().UTC()})
		if err != nil {
			if err == store.ErrInvalidState || err == store.ErrTicketNotFound {
				continue
			}
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *Store) SetTriage(ctx context.Context, ticketID, level, actor string) (models.Ticket, error) {
	if !models.ValidTriage(level) {
		return models.Ticket{}, store.ErrInvalidState
	}
	return s.editTicket(ctx, ticketID, func(ticket *models.Ticket) {
		ticket.Triage = level
	})
}

func (s *Store) SetPreferente(ctx context.Context, ticketID string, value bool, actor string) (models.Ticket, error) {
	return s.editTicket(ctx, ticketID, func(ticket *models.Ticket) {
		ticket.Preferente = value
	})
}

func (s *Store) SetNote(ctx context.Context, ticketID, note, actor string) (models.Ticket, error) {
	return s.editTicket(ctx, ticketID, func(ticket *models.Ticket) {
		ticket.Note = note
	})
}

func (s *Store) Display(ctx context.Context) (store.DisplayBoard, error) {
	s.mu.RLock()
	called := make([]models.Ticket, 0)
	waiting := make([]models.Ticket, 0)
	for _, id := range s.order {
		ticket := s.tickets[id]
		switch ticket.Status {
		case models.StatusCalled, models.StatusServing:
			called = append(called, ticket)
		case models.StatusWaiting:
			waiting = append(waiting, ticket)
		}
	}
	services := make(map[string]models.Service, len(s.services))
	for id, service := range s.services {
		services[id] = service
	}
	counters := make(map[string]models.Counter, len(s.counters))
	for id, counter := range s.counters {
		counters[id] = counter
	}
	s.mu.RUnlock()

	sort.SliceStable(called, func(i, j int) bool {
		a, b := called[i].CalledAt, called[j].CalledAt
		if a == nil || b == nil {
			return b == nil
		}
		return a.After(*b)
	})
	if len(called) > 4 {
		called = called[:4]
	}

	next := store.SortQueue(waiting)
	if len(next) > 8 {
		next = next[:8]
	}

	board := store.DisplayBoard{Revision: s.revision.Load()}
	for _, ticket := range called {
		counterName := "-"
		if ticket.CounterID != nil {
			if counter, ok := counters[*ticket.CounterID]; ok {
				counterName = counter.Name
			}
		}
		board.NowServing = append(board.NowServing, store.DisplayRow{
			TicketCode:  ticket.Code,
			ServiceName: services[ticket.ServiceID].Name,
			CounterName: counterName,
			Status:      ticket.Status,
		})
	}
	for _, ticket := range next {
		board.Next = append(board.Next, store.DisplayRow{
			TicketCode:  ticket.Code,
			ServiceName: services[ticket.ServiceID].Name,
			CounterName: "-",
			Status:      ticket.Status,
		})
	}
	return board, nil
}

func (s *Store) Revision(ctx context.Context) (uint64, error) {
	return s.revision.Load(), nil
}

func (s *Store) ListEvents(ctx context.Context, since uint64, limit int) ([]store.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.events.list(since, limit), nil
}

func (s *Store) Summary(ctx context.Context) (store.AnalyticsSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := store.AnalyticsSummary{}
	perService := make(map[string]*store.ServiceSummary)
	var waitTotal, serviceTotal time.Duration
	var waitCount, serviceCount int

	for _, id := range s.order {
		ticket := s.tickets[id]
		summary.TotalTickets++
		entry, ok := perService[ticket.ServiceID]
		if !ok {
			entry = &store.ServiceSummary{
				ServiceID: ticket.ServiceID,
				Name:      s.services[ticket.ServiceID].Name,
			}
			perService[ticket.ServiceID] = entry
		}
		entry.Total++

		switch ticket.Status {
		case models.StatusWaiting:
			summary.WaitingCount++
			entry.Waiting++
		case models.StatusDone:
			summary.ServedCount++
			entry.Served++
		case models.StatusNoShow:
			summary.NoShowCount++
		}
		if ticket.CalledAt != nil {
			waitTotal += ticket.CalledAt.Sub(ticket.EnqueuedAt)
			waitCount++
		}
		if ticket.StartedAt != nil && ticket.FinishedAt != nil {
			serviceTotal += ticket.FinishedAt.Sub(*ticket.StartedAt)
			serviceCount++
		}
	}

	if waitCount > 0 {
		summary.AvgWaitSeconds = waitTotal.Seconds() / float64(waitCount)
	}
	if serviceCount > 0 {
		summary.AvgServiceSeconds = serviceTotal.Seconds() / float64(serviceCount)
	}

	ids := make([]string, 0, len(perService))
	for id := range perService {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		summary.ByService = append(summary.ByService, *perService[id])
	}
	return summary, nil
}

func (s *Store) ListServices(ctx context.Context) ([]models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	services := make([]models.Service, 0, len(s.services))
	for _, service := range s.services {
		services = append(services, service)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].ServiceID < services[j].ServiceID })
	return services, nil
}

func (s *Store) CreateService(ctx context.Context, service models.Service) (models.Service, error) {
	if service.ServiceID == "" {
		service.ServiceID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.services {
		if existing.Prefix == service.Prefix && existing.ServiceID != service.ServiceID {
			return models.Service{}, store.ErrDuplicatePrefix
		}
	}
	s.services[service.ServiceID] = service
	s.revision.Add(1)
	return service, nil
}

func (s *Store) UpdateService(ctx context.Context, serviceID string, update store.ServiceUpdate) (models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	service, ok := s.services[serviceID]
	if !ok {
		return models.Service{}, store.ErrServiceNotFound
	}
	if update.Name != nil {
		service.Name = *update.Name
	}
	if update.IsActive != nil {
		service.IsActive = *update.IsActive
	}
	s.services[serviceID] = service
	s.revision.Add(1)
	return service, nil
}

func (s *Store) ListCounters(ctx context.Context, serviceID string) ([]models.Counter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counters := make([]models.Counter, 0, len(s.counters))
	for _, counter := range s.counters {
		if serviceID != "" && counter.ServiceID != serviceID {
			continue
		}
		counters = append(counters, counter)
	}
	sort.Slice(counters, func(i, j int) bool { return counters[i].CounterID < counters[j].CounterID })
	return counters, nil
}

func (s *Store) CreateCounter(ctx context.Context, counter models.Counter) (models.Counter, error) {
	if counter.CounterID == "" {
		counter.CounterID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[counter.ServiceID]; !ok {
		return models.Counter{}, store.ErrServiceNotFound
	}
	s.counters[counter.CounterID] = counter
	s.revision.Add(1)
	return counter, nil
}

func (s *Store) UpdateCounter(ctx context.Context, counterID string, update store.CounterUpdate) (models.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter, ok := s.counters[counterID]
	if !ok {
		return models.Counter{}, store.ErrCounterNotFound
	}
	if update.Name != nil {
		counter.Name = *update.Name
	}
	if update.IsActive != nil {
		counter.IsActive = *update.IsActive
	}
	s.counters[counterID] = counter
	s.revision.Add(1)
	return counter, nil
}

func (s *Store) ListAppointments(ctx context.Context, docValue string) ([]models.Appointment, error) {
	doc := normalizeDoc(docValue)
	s.mu.RLock()
	defer s.mu.RUnlock()
	appointments := make([]models.Appointment, 0)
	for _, appointment := range s.appointments {
		if appointment.DocValue == doc {
			appointments = append(appointments, appointment)
		}
	}
	sort.Slice(appointments, func(i, j int) bool { return appointments[i].Time < appointments[j].Time })
	return appointments, nil
}

func (s *Store) CheckInAppointment(ctx context.Context, appointmentID, actor string) (models.Ticket, error) {
	s.mu.RLock()
	appointment, ok := s.appointments[appointmentID]
	s.mu.RUnlock()
	if !ok {
		return models.Ticket{}, store.ErrAppointmentNotFound
	}
	return s.CreateTicket(ctx, store.CreateTicketInput{
		ServiceID:     appointment.ServiceID,
		DocValue:      appointment.DocValue,
		AppointmentID: appointment.AppointmentID,
		Actor:         actor,
		EnqueuedAt:    time.Now().UTC(),
	})
}

// applyTransition serializes on the ticket's current service lock, then
// re-reads under mu. A transfer can move the ticket between the read and
// the lock, in which case the loop retries against the new owner.
func (s *Store) applyTransition(ctx context.Context, ticketID, action, eventType, actor string, apply func(*models.Ticket)) (models.Ticket, error) {
	for {
		s.mu.RLock()
		ticket, ok := s.tickets[ticketID]
		s.mu.RUnlock()
		if !ok {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		serviceID := ticket.ServiceID

		q := s.queue(serviceID)
		if err := q.lock(ctx); err != nil {
			return models.Ticket{}, err
		}

		s.mu.Lock()
		current, ok := s.tickets[ticketID]
		if !ok {
			s.mu.Unlock()
			q.unlock()
			return models.Ticket{}, store.ErrTicketNotFound
		}
		if current.ServiceID != serviceID {
			s.mu.Unlock()
			q.unlock()
			continue
		}
		if !store.ValidTransition(action, current.Status) {
			s.mu.Unlock()
			q.unlock()
			return models.Ticket{}, store.ErrInvalidState
		}

		apply(&current)
		s.tickets[ticketID] = current
		rev := s.revision.Add(1)
		counterID := ""
		if current.CounterID != nil {
			counterID = *current.CounterID
		}
		s.events.append(store.Event{
			Seq:        rev,
			Type:       eventType,
			TicketID:   current.TicketID,
			TicketCode: current.Code,
			ServiceID:  current.ServiceID,
			CounterID:  counterID,
			Actor:      actor,
			CreatedAt:  time.Now().UTC(),
		})
		s.mu.Unlock()
		q.unlock()
		return current, nil
	}
}

// editTicket mutates priority metadata without a lifecycle transition.
// Edits on terminal tickets are rejected.
func (s *Store) editTicket(ctx context.Context, ticketID string, apply func(*models.Ticket)) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if models.IsTerminal(ticket.Status) {
		return models.Ticket{}, store.ErrInvalidState
	}
	apply(&ticket)
	s.tickets[ticketID] = ticket
	s.revision.Add(1)
	return ticket, nil
}

func lockAll(ctx context.Context, locks []*serviceQueue) error {
	for i, q := range locks {
		if err := q.lock(ctx); err != nil {
			unlockAll(locks[:i])
			return err
		}
	}
	return nil
}

func unlockAll(locks []*serviceQueue) {
	for _, q := range locks {
		q.unlock()
	}
}

func occurredOrNow(occurredAt time.Time) time.Time {
	if occurredAt.IsZero() {
		return time.Now().UTC()
	}
	return occurredAt
}

func normalizeDoc(docValue string) string {
	return strings.ToUpper(strings.TrimSpace(docValue))
}
