package session

import (
	"time"
)

// Step identifies the point a conversation has reached.
type Step string

const (
	StepInitial         Step = "initial"
	StepPatientDetails  Step = "patient_details"
	StepAwaitingEmail   Step = "awaiting_email"
	StepDateSelection   Step = "date_selection"
	StepTimeSelection   Step = "time_selection"
	StepDoctorSelection Step = "doctor_selection"
	StepConfirmation    Step = "confirmation"
	StepLearnAboutUs    Step = "learn_about_us"
)

// PatientDetails is collected one field per turn.
type PatientDetails struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Session is the conversation state held between messages from one sender.
// The transport is stateless per message, so every turn round-trips
// through the store.
type Session struct {
	Sender      string         `json:"sender"`
	Step        Step           `json:"step"`
	Patient     PatientDetails `json:"patient"`
	VisitDate   string         `json:"visit_date,omitempty"` // YYYY-MM-DD
	VisitTime   string         `json:"visit_time,omitempty"` // HH:MM
	DoctorID    string         `json:"doctor_id,omitempty"`
	Attempts    int            `json:"attempts"`
	CreatedAt   time.Time      `json:"created_at"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Expired reports whether the session has been idle longer than timeout.
func (s *Session) Expired(now time.Time, timeout time.Duration) bool {
	if s == nil {
		return true
	}
	return now.Sub(s.LastUpdated) > timeout
}
