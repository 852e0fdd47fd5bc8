// Package availability computes bookable slots by combining the weekly
// schedule template with already-confirmed appointments. Results are
// read-time snapshots; the appointment unique index, not the resolver,
// is what prevents double booking.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/booking-engine/internal/directory"
)

// ScheduleSource supplies the weekly template.
type ScheduleSource interface {
	TemplateSlots(ctx context.Context, weekday time.Weekday) ([]string, error)
	DoctorsForSlot(ctx context.Context, weekday time.Weekday, slotTime string) ([]directory.Doctor, error)
}

// Ledger supplies confirmed-appointment occupancy.
type Ledger interface {
	SlotCounts(ctx context.Context, date time.Time) (map[string]int, error)
	BookedDoctorIDs(ctx context.Context, date time.Time, slotTime string) (map[uuid.UUID]struct{}, error)
}

// Resolver answers "what can still be booked" questions.
type Resolver struct {
	schedule ScheduleSource
	ledger   Ledger
	capacity int
}

// NewResolver creates a resolver with the given per-slot capacity
// (bookings allowed per slot time per day, across doctors).
func NewResolver(schedule ScheduleSource, ledger Ledger, capacity int) *Resolver {
	if schedule == nil || ledger == nil {
		panic("availability: schedule and ledger required")
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Resolver{schedule: schedule, ledger: ledger, capacity: capacity}
}

// AvailableSlots returns the slot times still open on date, ascending.
// A slot is open while its confirmed booking count for that exact date
// is below capacity. Template order is preserved so the numbered list
// shown to the user stays stable between queries.
func (r *Resolver) AvailableSlots(ctx context.Context, date time.Time) ([]string, error) {
	template, err := r.schedule.TemplateSlots(ctx, date.Weekday())
	if err != nil {
		return nil, fmt.Errorf("availability: load template: %w", err)
	}
	if len(template) == 0 {
		return nil, nil
	}

	counts, err := r.ledger.SlotCounts(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("availability: load occupancy: %w", err)
	}

	open := make([]string, 0, len(template))
	for _, slot := range template {
		if counts[slot] < r.capacity {
			open = append(open, slot)
		}
	}
	return open, nil
}

// AvailableDoctors returns the doctors free at date+time, in the
// directory's stable display order.
func (r *Resolver) AvailableDoctors(ctx context.Context, date time.Time, slotTime string) ([]directory.Doctor, error) {
	candidates, err := r.schedule.DoctorsForSlot(ctx, date.Weekday(), slotTime)
	if err != nil {
		return nil, fmt.Errorf("availability: load doctors: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	booked, err := r.ledger.BookedDoctorIDs(ctx, date, slotTime)
	if err != nil {
		return nil, fmt.Errorf("availability: load booked doctors: %w", err)
	}

	free := make([]directory.Doctor, 0, len(candidates))
	for _, doc := range candidates {
		if _, taken := booked[doc.ID]; !taken {
			free = append(free, doc)
		}
	}
	return free, nil
}
