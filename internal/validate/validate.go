// Package validate holds the pure input parsers for user-supplied text.
// Every function is deterministic and returns a typed value or a sentinel
// error; nothing here touches storage or the clock beyond the reference
// time passed in.
package validate

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const maxNameLength = 60

var (
	ErrEmptyName    = errors.New("validate: name is empty")
	ErrInvalidName  = errors.New("validate: name contains digits or is too long")
	ErrInvalidPhone = errors.New("validate: phone must be at least 7 digits")
	ErrInvalidEmail = errors.New("validate: email must contain @ and a dotted domain")
	ErrInvalidDate  = errors.New("validate: date must be a real DD/MM calendar date")
	ErrPastDate     = errors.New("validate: date is in the past")
)

var (
	dateRe  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})$`)
	digitRe = regexp.MustCompile(`\d`)
	phoneRe = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

// Name validates a patient name. Empty, digit-bearing, and overlong
// values are rejected.
func Name(text string) (string, error) {
	name := strings.TrimSpace(text)
	if name == "" {
		return "", ErrEmptyName
	}
	if len(name) > maxNameLength || digitRe.MatchString(name) {
		return "", ErrInvalidName
	}
	return name, nil
}

// Phone validates a contact number: digits only, optional leading +,
// 7 to 15 digits.
func Phone(text string) (string, error) {
	phone := strings.TrimSpace(text)
	phone = strings.ReplaceAll(phone, " ", "")
	phone = strings.ReplaceAll(phone, "-", "")
	if !phoneRe.MatchString(phone) {
		return "", ErrInvalidPhone
	}
	return phone, nil
}

// Email validates a contact email: exactly one @, and a dot somewhere
// after it.
func Email(text string) (string, error) {
	email := strings.TrimSpace(text)
	if strings.Count(email, "@") != 1 {
		return "", ErrInvalidEmail
	}
	at := strings.Index(email, "@")
	domain := email[at+1:]
	if at == 0 || domain == "" || !strings.Contains(domain, ".") ||
		strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Date parses strict DD/MM input against the reference time. The year is
// inferred as the reference year; dates before today (date-only
// comparison) are rejected with ErrPastDate.
func Date(text string, now time.Time) (time.Time, error) {
	m := dateRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return time.Time{}, ErrInvalidDate
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return time.Time{}, ErrInvalidDate
	}
	if day < 1 || day > daysInMonth(month, now.Year()) {
		return time.Time{}, ErrInvalidDate
	}

	resolved := time.Date(now.Year(), time.Month(month), day, 0, 0, 0, 0, now.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if resolved.Before(today) {
		return time.Time{}, ErrPastDate
	}
	return resolved, nil
}

func daysInMonth(month, year int) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
