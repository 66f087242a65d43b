package store

import "errors"

var (
	ErrServiceNotFound     = errors.New("service not found")
	ErrServiceInactive     = errors.New("service inactive")
	ErrCounterNotFound     = errors.New("counter not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrCounterMismatch     = errors.New("counter serves a different service")
	ErrCounterUnavailable  = errors.New("counter unavailable")
	ErrNoTicket            = errors.New("no ticket available")
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrInvalidState        = errors.New("invalid ticket state")
	ErrConflict            = errors.New("concurrent update conflict")
	ErrDuplicatePrefix     = errors.New("service prefix already in use")
)
