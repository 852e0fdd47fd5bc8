// Package notify records the confirmation messages sent to patients so
// front-desk staff can review what each patient was told.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/booking-engine/internal/appointments"
	"github.com/clinicflow/booking-engine/pkg/logging"
)

// Log writes notification records to the notifications table.
type Log struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewLog creates a notification log.
func NewLog(db *sql.DB, logger *logging.Logger) *Log {
	if logger == nil {
		logger = logging.Default()
	}
	return &Log{db: db, logger: logger.WithComponent("notify")}
}

// Record stores the confirmation text for a booked appointment.
// The appointment is already committed when this runs, so callers
// treat failures as log-and-continue.
func (l *Log) Record(ctx context.Context, appt *appointments.Appointment) error {
	if appt == nil {
		return fmt.Errorf("notify: appointment is nil")
	}

	body := confirmationBody(appt)

	query := `
		INSERT INTO notifications (
			id, appointment_id, recipient_phone, channel, body, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := l.db.ExecContext(ctx, query,
		uuid.NewString(),
		appt.ID,
		appt.PatientPhone,
		"whatsapp",
		body,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("notify: failed to record notification: %w", err)
	}
	return nil
}

func confirmationBody(appt *appointments.Appointment) string {
	return fmt.Sprintf("Appointment confirmed for %s with %s on %s at %s.",
		appt.PatientName,
		appt.DoctorName,
		appt.VisitDate.Format("02/01/2006"),
		appt.VisitTime,
	)
}
