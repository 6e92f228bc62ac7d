package appointment

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// SlotDuration is the fixed length of every appointment.
	SlotDuration = 60 * time.Minute

	// MinLeadTime is how far ahead of now an appointment must start.
	MinLeadTime = 12 * time.Hour

	minutesPerDay = 24 * 60
)

var clockPattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

// ValidClock reports whether s is a 24-hour "HH:MM" time of day. A single-digit hour is accepted.
func ValidClock(s string) bool {
	return clockPattern.MatchString(s)
}

// NormalizeClock returns s zero-padded to "HH:MM".
func NormalizeClock(s string) (string, error) {
	m, err := clockMinutes(s)
	if err != nil {
		return "", err
	}
	return formatClock(m), nil
}

// DeriveEndTime returns the time of day one slot after start, wrapping past midnight.
func DeriveEndTime(start string) (string, error) {
	m, err := clockMinutes(start)
	if err != nil {
		return "", err
	}
	return formatClock((m + int(SlotDuration/time.Minute)) % minutesPerDay), nil
}

// Slot is the [Start, End) interval booked on one calendar day.
type Slot struct {
	Date  time.Time
	Start string
	End   string
}

// NewSlot normalizes start, derives the end time and pins date to midnight UTC of its
// calendar day. Slots that would run past midnight are rejected.
func NewSlot(date time.Time, start string) (Slot, error) {
	if date.IsZero() {
		return Slot{}, ErrDateRequired
	}
	start, err := NormalizeClock(start)
	if err != nil {
		return Slot{}, err
	}
	end, err := DeriveEndTime(start)
	if err != nil {
		return Slot{}, err
	}
	if end <= start {
		return Slot{}, ErrSlotCrossesMidnight
	}
	return Slot{Date: DayStart(date), Start: start, End: end}, nil
}

// Overlaps applies the half-open interval test; touching endpoints do not overlap.
func (s Slot) Overlaps(o Slot) bool {
	return s.Date.Equal(o.Date) && s.Start < o.End && s.End > o.Start
}

func (s Slot) String() string {
	return fmt.Sprintf("%s %s-%s", s.Date.Format(time.DateOnly), s.Start, s.End)
}

// StartsAt is the absolute instant the slot begins when its wall-clock time is read in loc.
func (s Slot) StartsAt(loc *time.Location) time.Time {
	m, _ := clockMinutes(s.Start)
	y, mo, d := s.Date.Date()
	return time.Date(y, mo, d, m/60, m%60, 0, 0, loc)
}

// ValidateLeadTime fails with ErrInsufficientLeadTime unless the slot starts strictly
// later than now plus MinLeadTime.
func ValidateLeadTime(s Slot, now time.Time, loc *time.Location) error {
	if !s.StartsAt(loc).After(now.Add(MinLeadTime)) {
		return ErrInsufficientLeadTime
	}
	return nil
}

// DayStart drops the time of day, keeping the calendar day as written in t's own zone.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func clockMinutes(s string) (int, error) {
	if !ValidClock(s) {
		return 0, ErrInvalidTimeFormat
	}
	hh, mm, _ := strings.Cut(s, ":")
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	return h*60 + m, nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
