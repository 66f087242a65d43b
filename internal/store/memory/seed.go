package memory

import "github.com/albertogalvez-dev/queue/internal/models"

var demoServices = []models.Service{
	{ServiceID: "admision", Name: "Admisión", Prefix: "A", IsActive: true},
	{ServiceID: "extracciones", Name: "Extracciones", Prefix: "E", IsActive: true},
	{ServiceID: "consulta", Name: "Consulta General", Prefix: "C", IsActive: true},
	{ServiceID: "vacunacion", Name: "Vacunación", Prefix: "V", IsActive: true},
}

var demoCounters = []models.Counter{
	{CounterID: "adm-1", Name: "Ventanilla 1", ServiceID: "admision", IsActive: true},
	{CounterID: "adm-2", Name: "Ventanilla 2", ServiceID: "admision", IsActive: true},
	{CounterID: "ext-1", Name: "Box Extracciones 1", ServiceID: "extracciones", IsActive: true},
	{CounterID: "ext-2", Name: "Box Extracciones 2", ServiceID: "extracciones", IsActive: true},
	{CounterID: "con-1", Name: "Consulta 1", ServiceID: "consulta", IsActive: true},
	{CounterID: "con-2", Name: "Consulta 2", ServiceID: "consulta", IsActive: true},
	{CounterID: "con-3", Name: "Consulta 3", ServiceID: "consulta", IsActive: true},
	{CounterID: "vac-1", Name: "Sala Vacunación", ServiceID: "vacunacion", IsActive: true},
}

var demoAppointments = []models.Appointment{
	{AppointmentID: "apt-1", DocValue: "12345678A", ServiceID: "consulta", Title: "Consulta General", Time: "10:30", Doctor: "Dr. García", Room: "Consulta 1"},
	{AppointmentID: "apt-2", DocValue: "12345678A", ServiceID: "extracciones", Title: "Extracciones", Time: "11:15", Doctor: "Enfermera López", Room: "Box 2"},
	{AppointmentID: "apt-3", DocValue: "87654321B", ServiceID: "admision", Title: "Admisión", Time: "09:00", Doctor: "Administrativo", Room: "Ventanilla 1"},
	{AppointmentID: "apt-4", DocValue: "87654321B", ServiceID: "consulta", Title: "Consulta General", Time: "09:30", Doctor: "Dra. Martínez", Room: "Consulta 2"},
	{AppointmentID: "apt-5", DocValue: "87654321B", ServiceID: "vacunacion", Title: "Vacunación", Time: "10:00", Doctor: "Enfermero Ruiz", Room: "Sala Vacunación"},
	{AppointmentID: "apt-6", DocValue: "11111111C", ServiceID: "consulta", Title: "Consulta General", Time: "11:00", Doctor: "Dr. Pérez", Room: "Consulta 3"},
}

// SeedDemoData loads the demo registries: four services with their counters
// and a handful of appointments keyed by document number.
func (s *Store) SeedDemoData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, service := range demoServices {
		s.services[service.ServiceID] = service
	}
	for _, counter := range demoCounters {
		s.counters[counter.CounterID] = counter
	}
	for _, appointment := range demoAppointments {
		s.appointments[appointment.AppointmentID] = appointment
	}
}
