// Package directory exposes read-only doctor and schedule-template data.
// The rows are owned by the surrounding admin system; the engine only
// ever reads them.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDoctorNotFound is returned when a doctor id no longer resolves.
var ErrDoctorNotFound = errors.New("directory: doctor not found")

// Doctor is reference data shown to the patient when picking a slot.
type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty string
}

// DB is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository reads doctors and weekly schedule templates.
type Repository struct {
	db DB
}

// NewRepository initializes the read-only directory repository.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("directory: db required")
	}
	return &Repository{db: db}
}

// GetDoctor fetches a single doctor by id.
func (r *Repository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	query := `
		SELECT id, name, specialty
		FROM doctors
		WHERE id = $1
	`
	var doc Doctor
	if err := r.db.QueryRow(ctx, query, id).Scan(&doc.ID, &doc.Name, &doc.Specialty); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("directory: select doctor failed: %w", err)
	}
	return &doc, nil
}

// TemplateSlots returns the distinct scheduled slot times any doctor
// offers on the given weekday, ascending. These are candidates only;
// the availability resolver subtracts booked times.
func (r *Repository) TemplateSlots(ctx context.Context, weekday time.Weekday) ([]string, error) {
	query := `
		SELECT DISTINCT slot_time
		FROM schedule_slots
		WHERE day_of_week = $1 AND slot_type = 'scheduled'
		ORDER BY slot_time ASC
	`
	rows, err := r.db.Query(ctx, query, int(weekday))
	if err != nil {
		return nil, fmt.Errorf("directory: select template slots failed: %w", err)
	}
	defer rows.Close()

	var slots []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("directory: scan template slot failed: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: read template slots failed: %w", err)
	}
	return slots, nil
}

// DoctorsForSlot returns doctors whose weekly template includes the
// given weekday and time, in stable display order.
func (r *Repository) DoctorsForSlot(ctx context.Context, weekday time.Weekday, slotTime string) ([]Doctor, error) {
	query := `
		SELECT d.id, d.name, d.specialty
		FROM doctors d
		JOIN schedule_slots s ON s.doctor_id = d.id
		WHERE s.day_of_week = $1 AND s.slot_time = $2 AND s.slot_type = 'scheduled'
		ORDER BY d.display_order ASC, d.name ASC
	`
	rows, err := r.db.Query(ctx, query, int(weekday), slotTime)
	if err != nil {
		return nil, fmt.Errorf("directory: select doctors for slot failed: %w", err)
	}
	defer rows.Close()

	var doctors []Doctor
	for rows.Next() {
		var doc Doctor
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.Specialty); err != nil {
			return nil, fmt.Errorf("directory: scan doctor failed: %w", err)
		}
		doctors = append(doctors, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: read doctors failed: %w", err)
	}
	return doctors, nil
}
