package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/albertogalvez-dev/queue/internal/models"
	"github.com/albertogalvez-dev/queue/internal/store"
)

const maxNoteLength = 120

type Handler struct {
	store store.TicketStore
}

func NewHandler(st store.TicketStore) *Handler {
	return &Handler{store: st}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/tickets", h.handleTickets)
	mux.HandleFunc("/api/tickets/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/tickets/by-code/", h.handleTicketByCode)
	mux.HandleFunc("/api/tickets/active-by-doc", h.handleActiveByDoc)
	mux.HandleFunc("/api/tickets/", h.handleTicketSubtree)
	mux.HandleFunc("/api/queues/", h.handleQueue)
	mux.HandleFunc("/api/display", h.handleDisplay)
	mux.HandleFunc("/api/events", h.handleEvents)
	mux.HandleFunc("/api/services", h.handleServices)
	mux.HandleFunc("/api/services/", h.handleServiceUpdate)
	mux.HandleFunc("/api/counters", h.handleCounters)
	mux.HandleFunc("/api/counters/", h.handleCounterUpdate)
	mux.HandleFunc("/api/appointments", h.handleAppointments)
	mux.HandleFunc("/api/appointments/checkin", h.handleAppointmentCheckin)
	mux.HandleFunc("/api/analytics/summary", h.handleSummary)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type createTicketRequest struct {
	ServiceID  string `json:"service_id"`
	Triage     string `json:"triage"`
	Preferente bool   `json:"preferente"`
	Doc        string `json:"doc"`
}

func (h *Handler) handleTickets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createTicketRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.Triage = strings.ToUpper(strings.TrimSpace(req.Triage))
	req.Doc = strings.TrimSpace(req.Doc)

	if req.ServiceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id is required")
		return
	}
	if req.Triage != "" && !models.ValidTriage(req.Triage) {
		writeError(w, http.StatusBadRequest, "invalid_request", "triage must be RED, ORANGE, YELLOW, GREEN, or BLUE")
		return
	}

	ticket, err := h.store.CreateTicket(r.Context(), store.CreateTicketInput{
		ServiceID:  req.ServiceID,
		Triage:     req.Triage,
		Preferente: req.Preferente,
		DocValue:   req.Doc,
		Actor:      actorFromRequest(r),
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	ticketsIssued.Add(1)
	writeJSON(w, http.StatusCreated, ticket)
}

type callNextRequest struct {
	ServiceID string `json:"service_id"`
	CounterID string `json:"counter_id"`
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req callNextRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.CounterID = strings.TrimSpace(req.CounterID)
	if req.ServiceID == "" || req.CounterID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id and counter_id are required")
		return
	}

	ticket, err := h.store.CallNext(r.Context(), store.CallNextInput{
		ServiceID: req.ServiceID,
		CounterID: req.CounterID,
		Actor:     actorFromRequest(r),
		CalledAt:  time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTicketByCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	code := strings.TrimPrefix(r.URL.Path, "/api/tickets/by-code/")
	if !store.ValidCode(store.NormalizeCode(code)) {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed ticket code")
		return
	}

	ticket, err := h.store.GetTicketByCode(r.Context(), code)
	if err != nil {
		status, errCode, msg := mapError(err)
		writeError(w, status, errCode, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleActiveByDoc(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	doc := strings.TrimSpace(r.URL.Query().Get("doc"))
	if doc == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "doc is required")
		return
	}

	ticket, found, err := h.store.GetActiveTicketByDoc(r.Context(), doc)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// handleTicketSubtree dispatches /api/tickets/{id}, /api/tickets/{id}/position,
// and /api/tickets/{id}/actions/{action}.
func (h *Handler) handleTicketSubtree(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		h.handleGetTicket(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "position":
		h.handleQueuePosition(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "actions":
		h.handleTicketAction(w, r, parts[0], parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ticket, err := h.store.GetTicket(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleQueuePosition(w http.ResponseWriter, r *http.Request, ticketID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	position, err := h.store.QueuePosition(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"position": position})
}

type ticketActionRequest struct {
	CounterID   string  `json:"counter_id"`
	ToServiceID string  `json:"to_service_id"`
	Triage      string  `json:"triage"`
	Preferente  *bool   `json:"preferente"`
	Note        *string `json:"note"`
}

func (h *Handler) handleTicketAction(w http.ResponseWriter, r *http.Request, ticketID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ticketActionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.CounterID = strings.TrimSpace(req.CounterID)
	req.ToServiceID = strings.TrimSpace(req.ToServiceID)
	req.Triage = strings.ToUpper(strings.TrimSpace(req.Triage))

	input := store.TicketActionInput{
		TicketID:    ticketID,
		CounterID:   req.CounterID,
		ToServiceID: req.ToServiceID,
		Actor:       actorFromRequest(r),
		OccurredAt:  time.Now().UTC(),
	}

	var ticket models.Ticket
	var err error
	switch action {
	case "call":
		if req.CounterID == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "counter_id is required")
			return
		}
		ticket, err = h.store.CallTicket(r.Context(), input)
	case "start":
		ticket, err = h.store.StartServing(r.Context(), input)
	case "finish":
		ticket, err = h.store.FinishTicket(r.Context(), input)
	case "no-show":
		ticket, err = h.store.NoShowTicket(r.Context(), input)
	case "recall":
		ticket, err = h.store.RecallTicket(r.Context(), input)
	case "transfer":
		if req.ToServiceID == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "to_service_id is required")
			return
		}
		ticket, err = h.store.TransferTicket(r.Context(), input)
	case "triage":
		if !models.ValidTriage(req.Triage) {
			writeError(w, http.StatusBadRequest, "invalid_request", "triage must be RED, ORANGE, YELLOW, GREEN, or BLUE")
			return
		}
		ticket, err = h.store.SetTriage(r.Context(), ticketID, req.Triage, input.Actor)
	case "preferente":
		if req.Preferente == nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "preferente is required")
			return
		}
		ticket, err = h.store.SetPreferente(r.Context(), ticketID, *req.Preferente, input.Actor)
	case "note":
		if req.Note == nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "note is required")
			return
		}
		note := strings.TrimSpace(*req.Note)
		if len([]rune(note)) > maxNoteLength {
			writeError(w, http.StatusBadRequest, "invalid_request", "note must be at most 120 characters")
			return
		}
		ticket, err = h.store.SetNote(r.Context(), ticketID, note, input.Actor)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	serviceID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/queues/"), "/")
	if serviceID == "" || strings.Contains(serviceID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	tickets, err := h.store.ListQueue(r.Context(), serviceID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleDisplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	board, err := h.store.Display(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var since uint64
	if sinceRaw := strings.TrimSpace(r.URL.Query().Get("since")); sinceRaw != "" {
		parsed, err := strconv.ParseUint(sinceRaw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "since must be a non-negative integer")
			return
		}
		since = parsed
	}

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.store.ListEvents(r.Context(), since, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type createServiceRequest struct {
	ServiceID string `json:"service_id"`
	Name      string `json:"name"`
	Prefix    string `json:"prefix"`
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		services, err := h.store.ListServices(r.Context())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, services)
	case http.MethodPost:
		var req createServiceRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.ServiceID = strings.TrimSpace(req.ServiceID)
		req.Name = strings.TrimSpace(req.Name)
		req.Prefix = strings.ToUpper(strings.TrimSpace(req.Prefix))
		if req.Name == "" || len(req.Prefix) != 1 || req.Prefix[0] < 'A' || req.Prefix[0] > 'Z' {
			writeError(w, http.StatusBadRequest, "invalid_request", "name and a single-letter prefix are required")
			return
		}
		service, err := h.store.CreateService(r.Context(), models.Service{
			ServiceID: req.ServiceID,
			Name:      req.Name,
			Prefix:    req.Prefix,
			IsActive:  true,
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusCreated, service)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type registryUpdateRequest struct {
	Name     *string `json:"name"`
	IsActive *bool   `json:"is_active"`
}

func (h *Handler) handleServiceUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	serviceID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/services/"), "/")
	if serviceID == "" || strings.Contains(serviceID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var req registryUpdateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	service, err := h.store.UpdateService(r.Context(), serviceID, store.ServiceUpdate{
		Name:     req.Name,
		IsActive: req.IsActive,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, service)
}

type createCounterRequest struct {
	CounterID string `json:"counter_id"`
	Name      string `json:"name"`
	ServiceID string `json:"service_id"`
}

func (h *Handler) handleCounters(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
		counters, err := h.store.ListCounters(r.Context(), serviceID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, counters)
	case http.MethodPost:
		var req createCounterRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.CounterID = strings.TrimSpace(req.CounterID)
		req.Name = strings.TrimSpace(req.Name)
		req.ServiceID = strings.TrimSpace(req.ServiceID)
		if req.Name == "" || req.ServiceID == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name and service_id are required")
			return
		}
		counter, err := h.store.CreateCounter(r.Context(), models.Counter{
			CounterID: req.CounterID,
			Name:      req.Name,
			ServiceID: req.ServiceID,
			IsActive:  true,
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusCreated, counter)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCounterUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	counterID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/counters/"), "/")
	if counterID == "" || strings.Contains(counterID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var req registryUpdateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	counter, err := h.store.UpdateCounter(r.Context(), counterID, store.CounterUpdate{
		Name:     req.Name,
		IsActive: req.IsActive,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, counter)
}

func (h *Handler) handleAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	doc := strings.TrimSpace(r.URL.Query().Get("doc"))
	if doc == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "doc is required")
		return
	}

	appointments, err := h.store.ListAppointments(r.Context(), doc)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, appointments)
}

func (h *Handler) handleAppointmentCheckin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		AppointmentID string `json:"appointment_id"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	payload.AppointmentID = strings.TrimSpace(payload.AppointmentID)
	if payload.AppointmentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "appointment_id is required")
		return
	}

	ticket, err := h.store.CheckInAppointment(r.Context(), payload.AppointmentID, actorFromRequest(r))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	ticketsIssued.Add(1)
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	summary, err := h.store.Summary(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func actorFromRequest(r *http.Request) string {
	if actor := strings.TrimSpace(r.Header.Get("X-Actor")); actor != "" {
		return actor
	}
	return "anonymous"
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrServiceNotFound):
		return http.StatusNotFound, "service_not_found", "service not found"
	case errors.Is(err, store.ErrServiceInactive):
		return http.StatusConflict, "service_inactive", "service is not accepting tickets"
	case errors.Is(err, store.ErrCounterNotFound):
		return http.StatusNotFound, "counter_not_found", "counter not found"
	case errors.Is(err, store.ErrCounterUnavailable):
		return http.StatusConflict, "counter_unavailable", "counter is not active"
	case errors.Is(err, store.ErrCounterMismatch):
		return http.StatusConflict, "counter_mismatch", "counter serves a different service"
	case errors.Is(err, store.ErrAppointmentNotFound):
		return http.StatusNotFound, "appointment_not_found", "appointment not found"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrNoTicket):
		return http.StatusConflict, "queue_empty", "no tickets available"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "ticket state does not allow this action"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict", "concurrent update, retry the request"
	case errors.Is(err, store.ErrDuplicatePrefix):
		return http.StatusConflict, "duplicate_prefix", "service prefix already in use"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "request timed out"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
