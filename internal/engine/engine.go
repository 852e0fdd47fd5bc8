// Package engine implements the conversational booking state machine.
// Each inbound message is one turn: load the session, dispatch on its
// step, mutate or delete the session, and produce the reply text. No
// state survives a turn outside the session store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/booking-engine/internal/appointments"
	"github.com/clinicflow/booking-engine/internal/directory"
	"github.com/clinicflow/booking-engine/internal/session"
	"github.com/clinicflow/booking-engine/internal/validate"
	"github.com/clinicflow/booking-engine/pkg/logging"
)

const visitDateLayout = "2006-01-02"

// SessionStore is the persistence boundary for conversation state.
type SessionStore interface {
	Get(ctx context.Context, sender string) (*session.Session, error)
	Create(ctx context.Context, sender string) (*session.Session, error)
	Save(ctx context.Context, sess *session.Session) error
	Delete(ctx context.Context, sender string) error
}

// Availability answers slot and doctor queries.
type Availability interface {
	AvailableSlots(ctx context.Context, date time.Time) ([]string, error)
	AvailableDoctors(ctx context.Context, date time.Time, slotTime string) ([]directory.Doctor, error)
}

// Ledger is the appointment write/check boundary.
type Ledger interface {
	CreateConfirmed(ctx context.Context, appt *appointments.Appointment) (*appointments.Appointment, error)
	CountForSlot(ctx context.Context, date time.Time, slotTime string) (int, error)
	ExistsForPatient(ctx context.Context, phone string, date time.Time, slotTime string) (bool, error)
}

// DoctorDirectory resolves doctor ids to display records.
type DoctorDirectory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error)
}

// NotificationLog records confirmation messages for audit display.
// Failures are logged and never block a booking.
type NotificationLog interface {
	Record(ctx context.Context, appt *appointments.Appointment) error
}

// Options carries the policy knobs the engine does not invent itself.
type Options struct {
	HospitalName    string
	HospitalAddress string
	SessionTimeout  time.Duration
	SlotCapacity    int
}

// Engine drives one conversation turn at a time.
type Engine struct {
	sessions SessionStore
	resolver Availability
	ledger   Ledger
	doctors  DoctorDirectory
	notifier NotificationLog
	logger   *logging.Logger

	hospitalName    string
	hospitalAddress string
	sessionTimeout  time.Duration
	slotCapacity    int

	now func() time.Time
}

// New creates the engine. notifier may be nil.
func New(sessions SessionStore, resolver Availability, ledger Ledger, doctors DoctorDirectory, notifier NotificationLog, opts Options, logger *logging.Logger) *Engine {
	if sessions == nil || resolver == nil || ledger == nil || doctors == nil {
		panic("engine: sessions, resolver, ledger and doctors are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	timeout := opts.SessionTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	capacity := opts.SlotCapacity
	if capacity < 1 {
		capacity = 1
	}
	return &Engine{
		sessions:        sessions,
		resolver:        resolver,
		ledger:          ledger,
		doctors:         doctors,
		notifier:        notifier,
		logger:          logger.WithComponent("engine"),
		hospitalName:    opts.HospitalName,
		hospitalAddress: opts.HospitalAddress,
		sessionTimeout:  timeout,
		slotCapacity:    capacity,
		now:             time.Now,
	}
}

// Handle processes one inbound message and returns the reply text.
// The reply is always usable; a non-nil error only reports what went
// wrong internally so the caller can log and count it.
func (e *Engine) Handle(ctx context.Context, sender, rawText string) (string, error) {
	input := Normalize(rawText)
	lower := strings.ToLower(input)

	sess, err := e.sessions.Get(ctx, sender)
	if err != nil {
		e.logger.Error("failed to load session", "error", err, "sender", sender)
		return systemErrorReply(), err
	}

	fresh := false
	if sess != nil && sess.Expired(e.now(), e.sessionTimeout) {
		if err := e.sessions.Delete(ctx, sender); err != nil {
			e.logger.Error("failed to discard expired session", "error", err, "sender", sender)
			return systemErrorReply(), err
		}
		sess = nil
	}
	if sess == nil {
		sess, err = e.sessions.Create(ctx, sender)
		if err != nil {
			e.logger.Error("failed to create session", "error", err, "sender", sender)
			return systemErrorReply(), err
		}
		fresh = true
	}

	if lower == "reset" {
		if _, err := e.sessions.Create(ctx, sender); err != nil {
			e.logger.Error("failed to reset session", "error", err, "sender", sender)
			return systemErrorReply(), err
		}
		return e.menuReply(), nil
	}
	if lower == "back" {
		return e.handleBack(ctx, sess)
	}

	switch sess.Step {
	case session.StepInitial:
		return e.handleInitial(ctx, sess, lower, fresh)
	case session.StepPatientDetails:
		return e.handlePatientDetails(ctx, sess, input)
	case session.StepAwaitingEmail:
		return e.handleAwaitingEmail(ctx, sess, input)
	case session.StepDateSelection:
		return e.handleDateSelection(ctx, sess, input)
	case session.StepTimeSelection:
		return e.handleTimeSelection(ctx, sess, input)
	case session.StepDoctorSelection:
		return e.handleDoctorSelection(ctx, sess, input)
	case session.StepConfirmation:
		return e.handleConfirmation(ctx, sess, lower)
	case session.StepLearnAboutUs:
		return e.aboutReply(), nil
	default:
		// Corrupted session: reply generically, mutate nothing.
		err := fmt.Errorf("engine: unknown step %q", sess.Step)
		e.logger.Error("unknown session step", "step", string(sess.Step), "sender", sender)
		return systemErrorReply(), err
	}
}

func (e *Engine) handleInitial(ctx context.Context, sess *session.Session, lower string, fresh bool) (string, error) {
	switch {
	case lower == "1" || strings.Contains(lower, "appointment"):
		sess.Step = session.StepPatientDetails
		sess.Patient = session.PatientDetails{}
		if err := e.save(ctx, sess); err != nil {
			return systemErrorReply(), err
		}
		return askNameReply(), nil
	case lower == "2" || strings.Contains(lower, "about"):
		sess.Step = session.StepLearnAboutUs
		if err := e.save(ctx, sess); err != nil {
			return systemErrorReply(), err
		}
		return e.aboutReply(), nil
	default:
		if fresh {
			return e.menuReply(), nil
		}
		return e.invalidOptionReply(), e.countAttempt(ctx, sess)
	}
}

func (e *Engine) handlePatientDetails(ctx context.Context, sess *session.Session, input string) (string, error) {
	if sess.Patient.Name == "" {
		name, err := validate.Name(input)
		if err != nil {
			return invalidNameReply(), e.countAttempt(ctx, sess)
		}
		sess.Patient.Name = name
		if err := e.save(ctx, sess); err != nil {
			return systemErrorReply(), err
		}
		return askPhoneReply(), nil
	}

	phone, err := validate.Phone(input)
	if err != nil {
		return invalidPhoneReply(), e.countAttempt(ctx, sess)
	}
	sess.Patient.Phone = phone
	sess.Step = session.StepAwaitingEmail
	if err := e.save(ctx, sess); err != nil {
		return systemErrorReply(), err
	}
	return askEmailReply(), nil
}

func (e *Engine) handleAwaitingEmail(ctx context.Context, sess *session.Session, input string) (string, error) {
	email, err := validate.Email(input)
	if err != nil {
		return invalidEmailReply(), e.countAttempt(ctx, sess)
	}
	sess.Patient.Email = email
	sess.Step = session.StepDateSelection
	if err := e.save(ctx, sess); err != nil {
		return systemErrorReply(), err
	}
	return askDateReply(), nil
}

func (e *Engine) handleDateSelection(ctx context.Context, sess *session.Session, input string) (string, error) {
	date, err := validate.Date(input, e.now())
	if err != nil {
		saveErr := e.countAttempt(ctx, sess)
		if errors.Is(err, validate.ErrPastDate) {
			return pastDateReply(), saveErr
		}
		return invalidDateReply(), saveErr
	}

	slots, err := e.resolver.AvailableSlots(ctx, date)
	if err != nil {
		e.logger.Error("failed to resolve slots", "error", err, "sender", sess.Sender)
		return systemErrorReply(), err
	}
	if len(slots) == 0 {
		return noSlotsReply(date), nil
	}

	sess.VisitDate = date.Format(visitDateLayout)
	sess.Step = session.StepTimeSelection
	if err := e.save(ctx, sess); err != nil {
		return systemErrorReply(), err
	}
	return slotListReply(date, slots), nil
}

func (e *Engine) handleTimeSelection(ctx context.Context, sess *session.Session, input string) (string, error) {
	date, err := e.visitDate(sess)
	if err != nil {
		return systemErrorReply(), err
	}

	slots, err := e.resolver.AvailableSlots(ctx, date)
	if err != nil {
		e.logger.Error("failed to resolve slots", "error", err, "sender", sess.Sender)
		return systemErrorReply(), err
	}

	idx, ok := parseIndex(input, len(slots))
	if !ok {
		return invalidSlotReply(), e.countAttempt(ctx, sess)
	}
	chosen := slots[idx]

	// The listing above is a snapshot; re-check occupancy in case the
	// slot filled between queries.
	count, err := e.ledger.CountForSlot(ctx, date, chosen)
	if err != nil {
		e.logger.Error("failed to check slot occupancy", "error", err, "sender", sess.Sender)
		return systemErrorReply(), err
	}
	if count >= e.slotCapacity {
		return slotFullReply(), e.countAttempt(ctx, sess)
	}

	doctors, err := e.resolver.AvailableDoctors(ctx, date, chosen)
	if err != nil {
		e.logger.Error("failed to resolve doctors", "error", err, "sender", sess.Sender)
		return systemErrorReply(), err
	}
	if len(doctors) == 0 {
		return slotFullReply(), e.countAttempt(ctx, sess)
	}

	sess.VisitTime = chosen
	sess.Step = session.StepDoctorSelection
	if err := e.save(ctx, sess); err != nil {
		return systemErrorReply(), err
	}
	return doctorListReply(chosen, doctors), nil
}

func (e *Engine) handleDoctorSelection(ctx context.Context, sess *session.Session, input string) (string, error) {
	date, err := e.visitDate(sess)
	if err != nil {
		return systemErrorReply(), err
	}

	doctors, err := e.resolver.AvailableDoctors(ctx, date, sess.VisitTime)
	if err != nil {
		e.logger.Error("failed to resolve doctors", "error", err, "sender", sess.Sender)
		return systemErrorReply(), err
	}
	if len(doctors) == 0 {
		// The slot vanished between turns; recover to time selection.
		return e.recoverToTimeSelection(ctx, sess, date)
	}

	idx, ok := parseIndex(input, len(doctors))
	if !ok {
		return invalidDoctorReply(), e.countAttempt(ctx, sess)
	}
	chosen := doctors[idx]

	sess.DoctorID = chosen.ID.String()
	sess.Step = session.StepConfirmation
	if err := e.save(ctx, sess); err != nil {
		return systemErrorReply(), err
	}
	return confirmSummaryReply(sess.Patient.Name, date, sess.VisitTime, &chosen), nil
}

func (e *Engine) handleConfirmation(ctx context.Context, sess *session.Session, lower string) (string, error) {
	switch lower {
	case "yes", "y":
		return e.confirmBooking(ctx, sess)
	case "no", "n":
		// A voluntary decline is not a conflict: re-present the slot
		// list without the "slot was taken" framing.
		date, err := e.visitDate(sess)
		if err != nil {
			return systemErrorReply(), err
		}
		reply, _, err := e.reselectTime(ctx, sess, date)
		return reply, err
	default:
		return yesNoReply(), nil
	}
}

func (e *Engine) confirmBooking(ctx context.Context, sess *session.Session) (string, error) {
	date, err := e.visitDate(sess)
	if err != nil {
		return systemErrorReply(), err
	}
	doctorID, err := uuid.Parse(sess.DoctorID)
	if err != nil {
		e.logger.Error("corrupt doctor id in session", "error", err, "sender", sess.Sender)
		return systemErrorReply(), err
	}

	exists, err := e.ledger.ExistsForPatient(ctx, sess.Patient.Phone, date, sess.VisitTime)
	if err != nil {
		e.logger.Error("failed to check patient bookings", "error", err, "sender", sess.Sender)
		return systemErrorReply(), err
	}
	if exists {
		return duplicateBookingReply(), nil
	}

	doc, err := e.doctors.GetDoctor(ctx, doctorID)
	if err != nil {
		if errors.Is(err, directory.ErrDoctorNotFound) {
			return e.recoverToTimeSelection(ctx, sess, date)
		}
		e.logger.Error("failed to load doctor", "error", err, "sender", sess.Sender)
		return systemErrorReply(), err
	}

	appt := &appointments.Appointment{
		PatientName:     sess.Patient.Name,
		PatientPhone:    sess.Patient.Phone,
		PatientEmail:    sess.Patient.Email,
		DoctorID:        doc.ID,
		DoctorName:      doc.Name,
		DoctorSpecialty: doc.Specialty,
		VisitDate:       date,
		VisitTime:       sess.VisitTime,
	}
	created, err := e.ledger.CreateConfirmed(ctx, appt)
	if err != nil {
		if errors.Is(err, appointments.ErrSlotTaken) {
			// Lost the race: the unique index is the authoritative
			// guard. Recover rather than leaving the user confirming
			// a slot that no longer exists.
			return e.recoverToTimeSelection(ctx, sess, date)
		}
		e.logger.Error("failed to persist appointment", "error", err, "sender", sess.Sender)
		return systemErrorReply(), err
	}

	if e.notifier != nil {
		if err := e.notifier.Record(ctx, created); err != nil {
			e.logger.Warn("failed to record confirmation notification", "error", err, "appointment_id", created.ID)
		}
	}

	if err := e.sessions.Delete(ctx, sess.Sender); err != nil {
		e.logger.Error("failed to delete completed session", "error", err, "sender", sess.Sender)
	}
	e.logger.Info("appointment booked",
		"sender", sess.Sender,
		"appointment_id", created.ID,
		"doctor_id", doc.ID,
		"visit_date", sess.VisitDate,
		"visit_time", sess.VisitTime,
	)
	return e.bookedReply(date, sess.VisitTime, doc), nil
}

// recoverToTimeSelection is the single conflict-recovery transition:
// clear the contested selections and re-present the slot list with a
// note that the chosen slot was lost.
func (e *Engine) recoverToTimeSelection(ctx context.Context, sess *session.Session, date time.Time) (string, error) {
	reply, slotsLeft, err := e.reselectTime(ctx, sess, date)
	if err != nil || !slotsLeft {
		return reply, err
	}
	return slotTakenReply() + "\n\n" + reply, nil
}

// reselectTime puts the session back into time selection and returns
// the fresh slot list. If nothing is left for the date it steps back to
// date selection instead and reports slotsLeft false.
func (e *Engine) reselectTime(ctx context.Context, sess *session.Session, date time.Time) (string, bool, error) {
	sess.VisitTime = ""
	sess.DoctorID = ""
	sess.Step = session.StepTimeSelection

	slots, err := e.resolver.AvailableSlots(ctx, date)
	if err != nil {
		e.logger.Error("failed to refresh slots", "error", err, "sender", sess.Sender)
		return systemErrorReply(), false, err
	}
	if len(slots) == 0 {
		sess.VisitDate = ""
		sess.Step = session.StepDateSelection
		if err := e.save(ctx, sess); err != nil {
			return systemErrorReply(), false, err
		}
		return noSlotsReply(date), false, nil
	}
	if err := e.save(ctx, sess); err != nil {
		return systemErrorReply(), false, err
	}
	return slotListReply(date, slots), true, nil
}

// backTransitions defines the predecessor of each step.
var backTransitions = map[session.Step]session.Step{
	session.StepPatientDetails:  session.StepInitial,
	session.StepAwaitingEmail:   session.StepPatientDetails,
	session.StepDateSelection:   session.StepAwaitingEmail,
	session.StepTimeSelection:   session.StepDateSelection,
	session.StepDoctorSelection: session.StepTimeSelection,
	session.StepConfirmation:    session.StepDoctorSelection,
	session.StepLearnAboutUs:    session.StepInitial,
}

func (e *Engine) handleBack(ctx context.Context, sess *session.Session) (string, error) {
	prev, ok := backTransitions[sess.Step]
	if !ok {
		return cannotGoBackReply(), nil
	}

	// Clear the fields that belong only to the steps being undone.
	switch sess.Step {
	case session.StepPatientDetails:
		sess.Patient = session.PatientDetails{}
	case session.StepAwaitingEmail:
		sess.Patient.Phone = ""
	case session.StepDateSelection:
		sess.Patient.Email = ""
		sess.VisitDate = ""
	case session.StepTimeSelection:
		sess.VisitDate = ""
		sess.VisitTime = ""
	case session.StepDoctorSelection:
		sess.VisitTime = ""
		sess.DoctorID = ""
	case session.StepConfirmation:
		sess.DoctorID = ""
	}
	sess.Step = prev

	if err := e.save(ctx, sess); err != nil {
		return systemErrorReply(), err
	}
	return e.promptFor(ctx, sess)
}

// promptFor re-issues the question for the session's current step after
// a backward transition.
func (e *Engine) promptFor(ctx context.Context, sess *session.Session) (string, error) {
	switch sess.Step {
	case session.StepInitial:
		return e.menuReply(), nil
	case session.StepPatientDetails:
		if sess.Patient.Name == "" {
			return askNameReply(), nil
		}
		return askPhoneReply(), nil
	case session.StepAwaitingEmail:
		return askEmailReply(), nil
	case session.StepDateSelection:
		return askDateReply(), nil
	case session.StepTimeSelection:
		date, err := e.visitDate(sess)
		if err != nil {
			return systemErrorReply(), err
		}
		slots, err := e.resolver.AvailableSlots(ctx, date)
		if err != nil {
			e.logger.Error("failed to refresh slots", "error", err, "sender", sess.Sender)
			return systemErrorReply(), err
		}
		if len(slots) == 0 {
			sess.VisitDate = ""
			sess.Step = session.StepDateSelection
			if err := e.save(ctx, sess); err != nil {
				return systemErrorReply(), err
			}
			return noSlotsReply(date), nil
		}
		return slotListReply(date, slots), nil
	case session.StepDoctorSelection:
		date, err := e.visitDate(sess)
		if err != nil {
			return systemErrorReply(), err
		}
		doctors, err := e.resolver.AvailableDoctors(ctx, date, sess.VisitTime)
		if err != nil {
			e.logger.Error("failed to refresh doctors", "error", err, "sender", sess.Sender)
			return systemErrorReply(), err
		}
		if len(doctors) == 0 {
			return e.recoverToTimeSelection(ctx, sess, date)
		}
		return doctorListReply(sess.VisitTime, doctors), nil
	default:
		return e.menuReply(), nil
	}
}

func (e *Engine) visitDate(sess *session.Session) (time.Time, error) {
	date, err := time.Parse(visitDateLayout, sess.VisitDate)
	if err != nil {
		e.logger.Error("corrupt visit date in session", "error", err, "sender", sess.Sender, "visit_date", sess.VisitDate)
		return time.Time{}, fmt.Errorf("engine: corrupt visit date %q: %w", sess.VisitDate, err)
	}
	return date, nil
}

func (e *Engine) save(ctx context.Context, sess *session.Session) error {
	if err := e.sessions.Save(ctx, sess); err != nil {
		e.logger.Error("failed to save session", "error", err, "sender", sess.Sender)
		return err
	}
	return nil
}

// countAttempt bumps the invalid-input counter. The reply for the turn
// is already decided; this only refreshes the stored session.
func (e *Engine) countAttempt(ctx context.Context, sess *session.Session) error {
	sess.Attempts++
	return e.save(ctx, sess)
}

func parseIndex(input string, length int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 || n > length {
		return 0, false
	}
	return n - 1, true
}
