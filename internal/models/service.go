package models

type Service struct {
	ServiceID string `json:"service_id"`
	Name      string `json:"name"`
	Prefix    string `json:"prefix"`
	IsActive  bool   `json:"is_active"`
}

type Counter struct {
	CounterID string `json:"counter_id"`
	Name      string `json:"name"`
	ServiceID string `json:"service_id"`
	IsActive  bool   `json:"is_active"`
}

type Appointment struct {
	AppointmentID string `json:"appointment_id"`
	DocValue      string `json:"doc_value"`
	ServiceID     string `json:"service_id"`
	Title         string `json:"title"`
	Time          string `json:"time"`
	Doctor        string `json:"doctor"`
	Room          string `json:"room"`
}
