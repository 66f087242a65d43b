package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/albertogalvez-dev/queue/internal/models"
	"github.com/albertogalvez-dev/queue/internal/store"
)

type fakeStore struct {
	createFn        func(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error)
	getTicketFn     func(ctx context.Context, ticketID string) (models.Ticket, error)
	byCodeFn        func(ctx context.Context, code string) (models.Ticket, error)
	activeByDocFn   func(ctx context.Context, docValue string) (models.Ticket, bool, error)
	listByStatusFn  func(ctx context.Context, serviceID string, statuses []string) ([]models.Ticket, error)
	listQueueFn     func(ctx context.Context, serviceID string) ([]models.Ticket, error)
	positionFn      func(ctx context.Context, ticketID string) (int, error)
	callNextFn      func(ctx context.Context, input store.CallNextInput) (models.Ticket, error)
	callFn          func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	startFn         func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	finishFn        func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	noShowFn        func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	recallFn        func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	transferFn      func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	autoNoShowFn    func(ctx context.Context, grace time.Duration, batchSize int) (int, error)
	setTriageFn     func(ctx context.Context, ticketID, level, actor string) (models.Ticket, error)
	setPreferenteFn func(ctx context.Context, ticketID string, value bool, actor string) (models.Ticket, error)
	setNoteFn       func(ctx context.Context, ticketID, note, actor string) (models.Ticket, error)
	displayFn       func(ctx context.Context) (store.DisplayBoard, error)
	revisionFn      func(ctx context.Context) (uint64, error)
	eventsFn        func(ctx context.Context, since uint64, limit int) ([]store.Event, error)
	summaryFn       func(ctx context.Context) (store.AnalyticsSummary, error)
	servicesFn      func(ctx context.Context) ([]models.Service, error)
	createSvcFn     func(ctx context.Context, service models.Service) (models.Service, error)
	updateSvcFn     func(ctx context.Context, serviceID string, update store.ServiceUpdate) (models.Service, error)
	countersFn      func(ctx context.Context, serviceID string) ([]models.Counter, error)
	createCtrFn     func(ctx context.Context, counter models.Counter) (models.Counter, error)
	updateCtrFn     func(ctx context.Context, counterID string, update store.CounterUpdate) (models.Counter, error)
	appointmentsFn  func(ctx context.Context, docValue string) ([]models.Appointment, error)
	checkInFn       func(ctx context.Context, appointmentID, actor string) (models.Ticket, error)
}

func (f fakeStore) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	if f.createFn == nil {
		return models.Ticket{}, nil
	}
	return f.createFn(ctx, input)
}

func (f fakeStore) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	if f.getTicketFn == nil {
		return models.Ticket{}, nil
	}
	return f.getTicketFn(ctx, ticketID)
}

func (f fakeStore) GetTicketByCode(ctx context.Context, code string) (models.Ticket, error) {
	if f.byCodeFn == nil {
		return models.Ticket{}, nil
	}
	return f.byCodeFn(ctx, code)
}

func (f fakeStore) GetActiveTicketByDoc(ctx context.Context, docValue string) (models.Ticket, bool, error) {
	if f.activeByDocFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.activeByDocFn(ctx, docValue)
}

func (f fakeStore) ListByStatus(ctx context.Context, serviceID string, statuses []string) ([]models.Ticket, error) {
	if f.listByStatusFn == nil {
		return nil, nil
	}
	return f.listByStatusFn(ctx, serviceID, statuses)
}

func (f fakeStore) ListQueue(ctx context.Context, serviceID string) ([]models.Ticket, error) {
	if f.listQueueFn == nil {
		return nil, nil
	}
	return f.listQueueFn(ctx, serviceID)
}

func (f fakeStore) QueuePosition(ctx context.Context, ticketID string) (int, error) {
	if f.positionFn == nil {
		return 0, nil
	}
	return f.positionFn(ctx, ticketID)
}

func (f fakeStore) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, error) {
	if f.callNextFn == nil {
		return models.Ticket{}, nil
	}
	return f.callNextFn(ctx, input)
}

func (f fakeStore) CallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	if f.callFn == nil {
		return models.Ticket{}, nil
	}
	return f.callFn(ctx, input)
}

func (f fakeStore) StartServing(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	if f.startFn == nil {
		return models.Ticket{}, nil
	}
	return f.startFn(ctx, input)
}

func (f fakeStore) FinishTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	if f.finishFn == nil {
		return models.Ticket{}, nil
	}
	return f.finishFn(ctx, input)
}

func (f fakeStore) NoShowTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	if f.noShowFn == nil {
		return models.Ticket{}, nil
	}
	return f.noShowFn(ctx, input)
}

func (f fakeStore) RecallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	if f.recallFn == nil {
		return models.Ticket{}, nil
	}
	return f.recallFn(ctx, input)
}

func (f fakeStore) TransferTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	if f.transferFn == nil {
		return models.Ticket{}, nil
	}
	return f.transferFn(ctx, input)
}

func (f fakeStore) AutoNoShow(ctx context.Context, grace time.Duration, batchSize int) (int, error) {
	if f.autoNoShowFn == nil {
		return 0, nil
	}
	return f.autoNoShowFn(ctx, grace, batchSize)
}

func (f fakeStore) SetTriage(ctx context.Context, ticketID, level, actor string) (models.Ticket, error) {
	if f.setTriageFn == nil {
		return models.Ticket{}, nil
	}
	return f.setTriageFn(ctx, ticketID, level, actor)
}

func (f fakeStore) SetPreferente(ctx context.Context, ticketID string, value bool, actor string) (models.Ticket, error) {
	if f.setPreferenteFn == nil {
		return models.Ticket{}, nil
	}
	return f.setPreferenteFn(ctx, ticketID, value, actor)
}

func (f fakeStore) SetNote(ctx context.Context, ticketID, note, actor string) (models.Ticket, error) {
	if f.setNoteFn == nil {
		return models.Ticket{}, nil
	}
	return f.setNoteFn(ctx, ticketID, note, actor)
}

func (f fakeStore) Display(ctx context.Context) (store.DisplayBoard, error) {
	if f.displayFn == nil {
		return store.DisplayBoard{}, nil
	}
	return f.displayFn(ctx)
}

func (f fakeStore) Revision(ctx context.Context) (uint64, error) {
	if f.revisionFn == nil {
		return 0, nil
	}
	return f.revisionFn(ctx)
}

func (f fakeStore) ListEvents(ctx context.Context, since uint64, limit int) ([]store.Event, error) {
	if f.eventsFn == nil {
		return nil, nil
	}
	return f.eventsFn(ctx, since, limit)
}

func (f fakeStore) Summary(ctx context.Context) (store.AnalyticsSummary, error) {
	if f.summaryFn == nil {
		return store.AnalyticsSummary{}, nil
	}
	return f.summaryFn(ctx)
}

func (f fakeStore) ListServices(ctx context.Context) ([]models.Service, error) {
	if f.servicesFn == nil {
		return nil, nil
	}
	return f.servicesFn(ctx)
}

func (f fakeStore) CreateService(ctx context.Context, service models.Service) (models.Service, error) {
	if f.createSvcFn == nil {
		return service, nil
	}
	return f.createSvcFn(ctx, service)
}

func (f fakeStore) UpdateService(ctx context.Context, serviceID string, update store.ServiceUpdate) (models.Service, error) {
	if f.updateSvcFn == nil {
		return models.Service{}, nil
	}
	return f.updateSvcFn(ctx, serviceID, update)
}

func (f fakeStore) ListCounters(ctx context.Context, serviceID string) ([]models.Counter, error) {
	if f.countersFn == nil {
		return nil, nil
	}
	return f.countersFn(ctx, serviceID)
}

func (f fakeStore) CreateCounter(ctx context.Context, counter models.Counter) (models.Counter, error) {
	if f.createCtrFn == nil {
		return counter, nil
	}
	return f.createCtrFn(ctx, counter)
}

func (f fakeStore) UpdateCounter(ctx context.Context, counterID string, update store.CounterUpdate) (models.Counter, error) {
	if f.updateCtrFn == nil {
		return models.Counter{}, nil
	}
	return f.updateCtrFn(ctx, counterID, update)
}

func (f fakeStore) ListAppointments(ctx context.Context, docValue string) ([]models.Appointment, error) {
	if f.appointmentsFn == nil {
		return nil, nil
	}
	return f.appointmentsFn(ctx, docValue)
}

func (f fakeStore) CheckInAppointment(ctx context.Context, appointmentID, actor string) (models.Ticket, error) {
	if f.checkInFn == nil {
		return models.Ticket{}, nil
	}
	return f.checkInFn(ctx, appointmentID, actor)
}

func TestCreateTicketSuccess(t *testing.T) {
	st := fakeStore{
		createFn: func(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
			if input.ServiceID != "admision" || input.Triage != models.TriageRed {
				t.Fatalf("unexpected input %+v", input)
			}
			return models.Ticket{
				TicketID:   "ticket-1",
				Code:       "A-001",
				ServiceID:  input.ServiceID,
				Status:     models.StatusWaiting,
				Triage:     input.Triage,
				EnqueuedAt: time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	h := NewHandler(st)

	body, _ := json.Marshal(map[string]interface{}{
		"service_id": "admision",
		"triage":     "red",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var ticket models.Ticket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ticket.Code != "A-001" || ticket.Status != models.StatusWaiting {
		t.Fatalf("unexpected ticket response: %+v", ticket)
	}
}

func TestCreateTicketInvalidTriage(t *testing.T) {
	h := NewHandler(fakeStore{})

	body, _ := json.Marshal(map[string]string{
		"service_id": "admision",
		"triage":     "PURPLE",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestCreateTicketUnknownField(t *testing.T) {
	h := NewHandler(fakeStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/tickets", strings.NewReader(`{"service_id":"admision","bogus":true}`))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestCallNextQueueEmpty(t *testing.T) {
	st := fakeStore{
		callNextFn: func(ctx context.Context, input store.CallNextInput) (models.Ticket, error) {
			return models.Ticket{}, store.ErrNoTicket
		},
	}
	h := NewHandler(st)

	body, _ := json.Marshal(map[string]string{
		"service_id": "admision",
		"counter_id": "adm-1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/tickets/actions/call-next", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	var payload errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Error.Code != "queue_empty" {
		t.Fatalf("expected queue_empty, got %s", payload.Error.Code)
	}
}

func TestTicketActionRouting(t *testing.T) {
	var gotAction string
	record := func(action string) func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
		return func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
			gotAction = action
			return models.Ticket{TicketID: input.TicketID}, nil
		}
	}
	st := fakeStore{
		startFn:  record("start"),
		finishFn: record("finish"),
		noShowFn: record("no-show"),
		recallFn: record("recall"),
	}
	h := NewHandler(st)

	for _, action := range []string{"start", "finish", "no-show", "recall"} {
		gotAction = ""
		req := httptest.NewRequest(http.MethodPost, "/api/tickets/ticket-1/actions/"+action, strings.NewReader(`{}`))
		resp := httptest.NewRecorder()
		h.Routes().ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", action, resp.Code)
		}
		if gotAction != action {
			t.Fatalf("expected %s to be dispatched, got %q", action, gotAction)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/ticket-1/actions/explode", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown action, got %d", resp.Code)
	}
}

func TestTransferRequiresTargetService(t *testing.T) {
	h := NewHandler(fakeStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/ticket-1/actions/transfer", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestNoteLengthLimit(t *testing.T) {
	h := NewHandler(fakeStore{})

	note := strings.Repeat("x", 121)
	body, _ := json.Marshal(map[string]string{"note": note})
	req := httptest.NewRequest(http.MethodPost, "/api/tickets/ticket-1/actions/note", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestInvalidStateMapsToConflict(t *testing.T) {
	st := fakeStore{
		startFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
			return models.Ticket{}, store.ErrInvalidState
		},
	}
	h := NewHandler(st)

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/ticket-1/actions/start", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestTicketByCodeMalformed(t *testing.T) {
	h := NewHandler(fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/by-code/banana", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestTicketByCodeNormalized(t *testing.T) {
	st := fakeStore{
		byCodeFn: func(ctx context.Context, code string) (models.Ticket, error) {
			return models.Ticket{Code: store.NormalizeCode(code), Status: models.StatusWaiting}, nil
		},
	}
	h := NewHandler(st)

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/by-code/a-001", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var ticket models.Ticket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ticket.Code != "A-001" {
		t.Fatalf("expected normalized code A-001, got %s", ticket.Code)
	}
}

func TestActiveByDocNoContent(t *testing.T) {
	h := NewHandler(fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/active-by-doc?doc=12345678A", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}
}

func TestEventsBadSince(t *testing.T) {
	h := NewHandler(fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/events?since=abc", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestEventsPassesParams(t *testing.T) {
	st := fakeStore{
		eventsFn: func(ctx context.Context, since uint64, limit int) ([]store.Event, error) {
			if since != 42 || limit != 5 {
				t.Fatalf("unexpected params since=%d limit=%d", since, limit)
			}
			return []store.Event{{Seq: 43, Type: store.EventCalled}}, nil
		},
	}
	h := NewHandler(st)

	req := httptest.NewRequest(http.MethodGet, "/api/events?since=42&limit=5", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestCreateServiceValidation(t *testing.T) {
	h := NewHandler(fakeStore{})

	body, _ := json.Marshal(map[string]string{"name": "Radiología", "prefix": "RX"})
	req := httptest.NewRequest(http.MethodPost, "/api/services", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for two-letter prefix, got %d", resp.Code)
	}
}

func TestAuthMiddlewareAdminToken(t *testing.T) {
	h := AuthMiddleware(AuthConfig{OperatorToken: "op-secret", AdminToken: "admin-secret"}, NewHandler(fakeStore{}).Routes())

	body, _ := json.Marshal(map[string]string{"name": "Radiología", "prefix": "R"})
	req := httptest.NewRequest(http.MethodPost, "/api/services", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/services", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer admin-secret")
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 with admin token, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/services", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer op-secret")
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with operator token on admin route, got %d", resp.Code)
	}
}

func TestAuthMiddlewareOperatorToken(t *testing.T) {
	h := AuthMiddleware(AuthConfig{OperatorToken: "op-secret"}, NewHandler(fakeStore{}).Routes())

	body, _ := json.Marshal(map[string]string{"service_id": "admision", "counter_id": "adm-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/tickets/actions/call-next", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/tickets/actions/call-next", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer op-secret")
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with operator token, got %d", resp.Code)
	}

	// Kiosk ticket creation stays open.
	createBody, _ := json.Marshal(map[string]string{"service_id": "admision"})
	req = httptest.NewRequest(http.MethodPost, "/api/tickets", bytes.NewReader(createBody))
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 without token on ticket creation, got %d", resp.Code)
	}
}

func TestRateLimiterBlocks(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{PerMinute: 60, Burst: 2})
	h := limiter.Middleware(NewHandler(fakeStore{}).Routes())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/display", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/display", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", resp.Code)
	}

	// A different client keeps its own bucket.
	req = httptest.NewRequest(http.MethodGet, "/api/display", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for other client, got %d", resp.Code)
	}
}
