// Package appointments persists confirmed bookings. The partial unique
// index on (doctor_id, visit_date, visit_time) is the authoritative
// guard against double booking; callers treat a violation as a
// recoverable conflict, never as a crash.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrSlotTaken signals the unique (doctor, date, time) constraint fired.
var ErrSlotTaken = errors.New("appointments: slot already booked")

const uniqueViolationCode = "23505"

// Appointment is a persisted confirmed booking.
type Appointment struct {
	ID              uuid.UUID
	PatientName     string
	PatientPhone    string
	PatientEmail    string
	DoctorID        uuid.UUID
	DoctorName      string
	DoctorSpecialty string
	VisitDate       time.Time
	VisitTime       string
	Status          string
	CreatedAt       time.Time
}

// DB is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository provides persistence helpers for appointments.
type Repository struct {
	db DB
}

// NewRepository creates a repository backed by pgx.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("appointments: db required")
	}
	return &Repository{db: db}
}

// CreateConfirmed inserts a confirmed appointment row. Returns
// ErrSlotTaken when another confirmed booking already holds the
// (doctor, date, time) slot.
func (r *Repository) CreateConfirmed(ctx context.Context, appt *Appointment) (*Appointment, error) {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	appt.Status = "confirmed"

	query := `
		INSERT INTO appointments (
			id, patient_name, patient_phone, patient_email,
			doctor_id, doctor_name, doctor_specialty,
			visit_date, visit_time, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		appt.ID,
		appt.PatientName,
		appt.PatientPhone,
		appt.PatientEmail,
		appt.DoctorID,
		appt.DoctorName,
		appt.DoctorSpecialty,
		appt.VisitDate,
		appt.VisitTime,
		appt.Status,
	).Scan(&appt.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("appointments: insert failed: %w", err)
	}
	return appt, nil
}

// SlotCounts returns the confirmed booking count per slot time for the
// given date, across all doctors.
func (r *Repository) SlotCounts(ctx context.Context, date time.Time) (map[string]int, error) {
	query := `
		SELECT visit_time, COUNT(*)
		FROM appointments
		WHERE visit_date = $1 AND status = 'confirmed'
		GROUP BY visit_time
	`
	rows, err := r.db.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("appointments: count slots failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var slot string
		var n int
		if err := rows.Scan(&slot, &n); err != nil {
			return nil, fmt.Errorf("appointments: scan slot count failed: %w", err)
		}
		counts[slot] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: read slot counts failed: %w", err)
	}
	return counts, nil
}

// CountForSlot returns the confirmed booking count at date+time across
// all doctors.
func (r *Repository) CountForSlot(ctx context.Context, date time.Time, slotTime string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM appointments
		WHERE visit_date = $1 AND visit_time = $2 AND status = 'confirmed'
	`
	var n int
	if err := r.db.QueryRow(ctx, query, date, slotTime).Scan(&n); err != nil {
		return 0, fmt.Errorf("appointments: count for slot failed: %w", err)
	}
	return n, nil
}

// BookedDoctorIDs returns the doctors that already hold a confirmed
// appointment at date+time.
func (r *Repository) BookedDoctorIDs(ctx context.Context, date time.Time, slotTime string) (map[uuid.UUID]struct{}, error) {
	query := `
		SELECT doctor_id
		FROM appointments
		WHERE visit_date = $1 AND visit_time = $2 AND status = 'confirmed'
	`
	rows, err := r.db.Query(ctx, query, date, slotTime)
	if err != nil {
		return nil, fmt.Errorf("appointments: select booked doctors failed: %w", err)
	}
	defer rows.Close()

	booked := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("appointments: scan booked doctor failed: %w", err)
		}
		booked[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: read booked doctors failed: %w", err)
	}
	return booked, nil
}

// ExistsForPatient reports whether the patient phone already holds a
// confirmed appointment at date+time with any doctor.
func (r *Repository) ExistsForPatient(ctx context.Context, phone string, date time.Time, slotTime string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_phone = $1 AND visit_date = $2 AND visit_time = $3 AND status = 'confirmed'
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, phone, date, slotTime).Scan(&exists); err != nil {
		return false, fmt.Errorf("appointments: patient booking check failed: %w", err)
	}
	return exists, nil
}
