package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/clinicflow/booking-engine/internal/directory"
)

// All user-visible text lives here. Every error path is a short,
// emoji-prefixed message; raw error text never reaches the sender.

func (e *Engine) menuReply() string {
	return fmt.Sprintf(
		"👋 Welcome to %s!\n\n"+
			"1️⃣ Book an appointment\n"+
			"2️⃣ Learn about us\n\n"+
			"Reply with a number to continue. You can type *reset* at any time to start over.",
		e.hospitalName)
}

func (e *Engine) invalidOptionReply() string {
	return "❌ Invalid option.\n\n" + e.menuReply()
}

func (e *Engine) aboutReply() string {
	return fmt.Sprintf(
		"🏥 %s\n📍 %s\n\n"+
			"We offer scheduled consultations across our specialties, bookable right here in this chat.\n\n"+
			"Type *back* to return to the menu.",
		e.hospitalName, e.hospitalAddress)
}

func askNameReply() string {
	return "📝 Great, let's book your appointment!\n\nPlease enter the patient's full name:"
}

func askPhoneReply() string {
	return "📞 Thanks! Now enter a contact phone number:"
}

func askEmailReply() string {
	return "📧 Almost there. Please enter a contact email address:"
}

func askDateReply() string {
	return "📅 On what date would you like to come in? Reply in DD/MM format (e.g. 25/12):"
}

func invalidNameReply() string {
	return "❌ That doesn't look like a valid name. Please enter the patient's full name (letters only):"
}

func invalidPhoneReply() string {
	return "❌ That doesn't look like a valid phone number. Please enter digits only, e.g. +15551234567:"
}

func invalidEmailReply() string {
	return "❌ That doesn't look like a valid email address. Please try again, e.g. jane@example.com:"
}

func invalidDateReply() string {
	return "❌ That date doesn't look right. Please reply in DD/MM format with a real calendar date (e.g. 25/12):"
}

func pastDateReply() string {
	return "❌ That date has already passed. Please choose today or a future date (DD/MM):"
}

func noSlotsReply(date time.Time) string {
	return fmt.Sprintf("😔 Sorry, there are no available slots on %s. Please choose another date (DD/MM):",
		date.Format("02/01"))
}

func slotListReply(date time.Time, slots []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🕐 Available slots on %s:\n\n", date.Format("02/01"))
	for i, slot := range slots {
		fmt.Fprintf(&b, "%d. %s\n", i+1, slot)
	}
	b.WriteString("\nReply with the number of your preferred slot:")
	return b.String()
}

func invalidSlotReply() string {
	return "❌ That's not one of the listed slots. Please reply with a number from the list:"
}

func slotFullReply() string {
	return "😔 Sorry, that slot just filled up. Please pick another one from the list:"
}

func doctorListReply(slotTime string, doctors []directory.Doctor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👨‍⚕️ Doctors available at %s:\n\n", slotTime)
	for i, doc := range doctors {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, doc.Name, doc.Specialty)
	}
	b.WriteString("\nReply with the number of your preferred doctor:")
	return b.String()
}

func invalidDoctorReply() string {
	return "❌ That's not one of the listed doctors. Please reply with a number from the list:"
}

func slotTakenReply() string {
	return "😔 Sorry, that time was just taken. Here are the slots still open:"
}

func confirmSummaryReply(name string, date time.Time, slotTime string, doc *directory.Doctor) string {
	return fmt.Sprintf(
		"📋 Please confirm your appointment:\n\n"+
			"👤 Patient: %s\n"+
			"📅 Date: %s\n"+
			"🕐 Time: %s\n"+
			"👨‍⚕️ Doctor: %s (%s)\n\n"+
			"Reply *yes* to confirm or *no* to pick a different time.",
		name, date.Format("02/01/2006"), slotTime, doc.Name, doc.Specialty)
}

func (e *Engine) bookedReply(date time.Time, slotTime string, doc *directory.Doctor) string {
	return fmt.Sprintf(
		"✅ Your appointment is confirmed!\n\n"+
			"📅 %s at %s\n"+
			"👨‍⚕️ %s (%s)\n"+
			"📍 %s, %s\n\n"+
			"See you then! 👋",
		date.Format("02/01/2006"), slotTime, doc.Name, doc.Specialty,
		e.hospitalName, e.hospitalAddress)
}

func duplicateBookingReply() string {
	return "❌ You already have an appointment booked at that date and time. Reply *no* to pick a different time, or type *reset* to start over."
}

func yesNoReply() string {
	return "🤔 Please reply *yes* to confirm or *no* to pick a different time."
}

func cannotGoBackReply() string {
	return "🤷 There's nothing to go back to here. Type *reset* to start over."
}

func systemErrorReply() string {
	return "😓 Sorry, something went wrong on our side. Please try again in a moment."
}
