package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used on the wire and in storage.
const DateLayout = "2006-01-02"

var (
	// ErrSlotTaken is returned by repositories when a reservation would overlap an active one.
	ErrSlotTaken = errors.New("slot already taken")
	// ErrNotFound is returned when a space, add-on or reservation does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConcurrentModification is returned when a reservation changed since it was read.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// DateOf truncates t to a location-naive calendar date (UTC midnight).
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

// Status is the reservation workflow state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Active reports whether reservations in this status block the slot.
func (s Status) Active() bool {
	return s != StatusCancelled
}

// ParseStatus accepts both spellings of cancelled.
func ParseStatus(s string) (Status, error) {
	switch s {
	case string(StatusPending), "":
		return StatusPending, nil
	case string(StatusConfirmed):
		return StatusConfirmed, nil
	case string(StatusCancelled), "canceled":
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// TimeWindow is a requested window on a calendar date.
type TimeWindow struct {
	Date time.Time
	Slot Slot
}

// AllDay reports whether the window covers the whole day.
func (w TimeWindow) AllDay() bool {
	return w.Slot.FullDay
}

// ReservationRecord is the minimal view of an existing reservation used for conflict checks.
type ReservationRecord struct {
	ID      int64
	SpaceID int64
	Date    time.Time
	Slot    Slot
	Status  Status
}

// BookingRequest is the engine input: a space, a window and add-on quantities keyed by add-on ID.
type BookingRequest struct {
	SpaceID int64
	Window  TimeWindow
	AddOns  map[int64]int
}

// Contact is the customer contact data captured with a reservation.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Extras is stored as a free-form JSON blob next to the reservation.
type Extras struct {
	AddOns  map[int64]int `json:"add_ons,omitempty"`
	Contact Contact       `json:"contact"`
	Notes   string        `json:"notes,omitempty"`
}

// Reservation is a persisted booking.
type Reservation struct {
	ID             int64           `json:"id"`
	Reference      string          `json:"reference"`
	UserID         int64           `json:"user_id"`
	SpaceID        int64           `json:"space_id"`
	CoworkingSpace string          `json:"coworking_space,omitempty"`
	Date           time.Time       `json:"date"`
	Slot           Slot            `json:"-"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	Extras         Extras          `json:"extras"`
	Status         Status          `json:"status"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Record returns the conflict-check view of the reservation.
func (r *Reservation) Record() ReservationRecord {
	return ReservationRecord{
		ID:      r.ID,
		SpaceID: r.SpaceID,
		Date:    r.Date,
		Slot:    r.Slot,
		Status:  r.Status,
	}
}

// Window returns the reserved time window.
func (r *Reservation) Window() TimeWindow {
	return TimeWindow{Date: r.Date, Slot: r.Slot}
}

// ReservationFilter narrows reservation listings. Zero fields match everything;
// From and To are inclusive calendar dates.
type ReservationFilter struct {
	SpaceID int64
	UserID  int64
	From    time.Time
	To      time.Time
	Status  Status
}
