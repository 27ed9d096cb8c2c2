package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FullDayLabel is the legacy time_slot value stored for full-day reservations.
const FullDayLabel = "Full Day"

// FullDayHours is the billable length of a full-day reservation.
const FullDayHours = 8

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

const endOfDay Clock = 24 * 60

// ParseClock parses "HH:MM". "24:00" is accepted as the end of the day.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format: %q", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour: %w", err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute: %w", err)
	}
	if hour < 0 || minute < 0 || minute > 59 || hour > 24 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return Clock(hour*60 + minute), nil
}

// MustClock is ParseClock for literals known to be valid.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the clock time placed on the given date.
func (c Clock) On(date time.Time) time.Time {
	d := DateOf(date)
	return d.Add(time.Duration(c) * time.Minute)
}

// Slot is either a full day or a bounded same-day [Start, End) window.
// The zero Slot is invalid and stands for an unparseable legacy value.
type Slot struct {
	FullDay bool
	Start   Clock
	End     Clock
}

// FullDaySlot returns the full-day variant.
func FullDaySlot() Slot {
	return Slot{FullDay: true}
}

// BoundedSlot returns a bounded window. Use Valid to check start < end.
func BoundedSlot(start, end Clock) Slot {
	return Slot{Start: start, End: end}
}

// Valid reports whether the slot is a full day or a non-empty bounded window.
func (s Slot) Valid() bool {
	if s.FullDay {
		return true
	}
	return s.Start >= 0 && s.End <= endOfDay && s.Start < s.End
}

// Minutes returns the length of a bounded slot, 0 for invalid slots.
// Full-day slots report FullDayHours.
func (s Slot) Minutes() int {
	if s.FullDay {
		return FullDayHours * 60
	}
	if !s.Valid() {
		return 0
	}
	return int(s.End - s.Start)
}

// Overlaps reports a half-open interval overlap between two bounded slots.
// A full-day slot overlaps any valid slot.
func (s Slot) Overlaps(other Slot) bool {
	if !s.Valid() || !other.Valid() {
		return false
	}
	if s.FullDay || other.FullDay {
		return true
	}
	return s.Start < other.End && other.Start < s.End
}

// String renders the legacy encoding: "09:00 - 12:00" or "Full Day".
func (s Slot) String() string {
	if s.FullDay {
		return FullDayLabel
	}
	return s.Start.String() + " - " + s.End.String()
}

// ParseSlot converts a legacy time_slot string into a Slot.
// The boolean is false when the value cannot be parsed; the returned Slot is then the zero value.
func ParseSlot(raw string) (Slot, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Slot{}, false
	}
	if strings.EqualFold(raw, FullDayLabel) {
		return FullDaySlot(), true
	}

	raw = strings.ReplaceAll(raw, "–", "-")
	parts := strings.Split(raw, "-")
	if len(parts) != 2 {
		return Slot{}, false
	}
	start, err := ParseClock(parts[0])
	if err != nil {
		return Slot{}, false
	}
	end, err := ParseClock(parts[1])
	if err != nil {
		return Slot{}, false
	}
	s := BoundedSlot(start, end)
	if !s.Valid() {
		return Slot{}, false
	}
	return s, true
}
