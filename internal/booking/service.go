// Package booking ties the pricing engine, the reservation store and the side effects
// (locking, events, metrics) into the reservation workflow.
package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"cowork/internal/audit"
	"cowork/internal/engine"
	"cowork/internal/events"
	"cowork/internal/lock"
	"cowork/internal/metrics"
	"cowork/internal/model"
	"cowork/internal/slots"

	"github.com/rs/zerolog"
)

// Repository is the reservation store. Both the SQLite database and the CMS client satisfy it.
type Repository interface {
	GetSpace(ctx context.Context, id int64) (*model.Space, error)
	ListAddOns(ctx context.Context) ([]model.AddOnItem, error)
	ListActiveReservations(ctx context.Context, spaceID int64, date time.Time) ([]model.ReservationRecord, error)
	CreateReservation(ctx context.Context, r *model.Reservation) error
	GetReservation(ctx context.Context, id int64) (*model.Reservation, error)
	UpdateReservationStatus(ctx context.Context, id int64, status model.Status, version int64) error
	ListReservations(ctx context.Context, filter model.ReservationFilter) ([]model.Reservation, error)
}

// Locker serializes writers of one (space, date).
type Locker interface {
	Acquire(ctx context.Context, spaceID int64, date time.Time) (func(), error)
}

// HolidayChecker reports days the spaces are closed.
type HolidayChecker interface {
	IsHoliday(date time.Time) (bool, string)
}

// userStore is implemented by repositories that keep a customer table.
type userStore interface {
	EnsureUser(ctx context.Context, c model.Contact) (int64, error)
}

// Rules are the booking horizon and grid settings.
type Rules struct {
	MinAdvance time.Duration
	MaxAdvance time.Duration
	SlotStep   time.Duration
	Location   *time.Location
}

// Details is the customer side of a reservation.
type Details struct {
	UserID  int64
	Contact model.Contact
	Notes   string
}

// Quote is the dry-run answer for a booking request.
type Quote struct {
	Space     *model.Space
	Available bool
	Conflicts []model.ReservationRecord
	Breakdown engine.Breakdown
}

// Day is the availability grid of one space on one date.
type Day struct {
	Space  *model.Space
	Date   time.Time
	Closed bool
	Reason string
	Slots  []slots.Slot
}

// allowed lists the statuses a reservation may move from, per target status.
var allowed = map[model.Status][]model.Status{
	model.StatusConfirmed: {model.StatusPending},
	model.StatusCancelled: {model.StatusPending, model.StatusConfirmed},
}

type Service struct {
	repo   Repository
	locker Locker
	bus    *events.Bus
	rules  Rules
	now    func() time.Time
	logger *zerolog.Logger

	mu       sync.RWMutex
	holidays HolidayChecker
}

type Option func(*Service)

func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithEventBus(b *events.Bus) Option {
	return func(s *Service) { s.bus = b }
}

func WithHolidays(h HolidayChecker) Option {
	return func(s *Service) { s.holidays = h }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, rules Rules, logger *zerolog.Logger, opts ...Option) *Service {
	if rules.Location == nil {
		rules.Location = time.UTC
	}
	s := &Service{repo: repo, rules: rules, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetHolidays swaps the holiday calendar after a catalog reload.
func (s *Service) SetHolidays(h HolidayChecker) {
	s.mu.Lock()
	s.holidays = h
	s.mu.Unlock()
}

func (s *Service) isHoliday(date time.Time) (bool, string) {
	s.mu.RLock()
	h := s.holidays
	s.mu.RUnlock()
	if h == nil {
		return false, ""
	}
	return h.IsHoliday(date)
}

// wallNow returns the current wall-clock time of the spaces as a location-naive value,
// comparable with Clock.On.
func (s *Service) wallNow() time.Time {
	n := s.now().In(s.rules.Location)
	return time.Date(n.Year(), n.Month(), n.Day(), n.Hour(), n.Minute(), n.Second(), n.Nanosecond(), time.UTC)
}

// Quote prices req and reports whether it could be booked right now. Nothing is written.
func (s *Service) Quote(ctx context.Context, req model.BookingRequest) (*Quote, error) {
	metrics.IncQuote()

	space, addOns, err := s.validate(ctx, &req)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.ListActiveReservations(ctx, req.SpaceID, req.Window.Date)
	if err != nil {
		return nil, ioErr("list reservations", err)
	}
	conflicts := engine.Conflicts(req.Window, existing)

	return &Quote{
		Space:     space,
		Available: len(conflicts) == 0,
		Conflicts: conflicts,
		Breakdown: engine.Quote(req, space.Pricing, addOns),
	}, nil
}

// Reserve books req as a pending reservation.
func (s *Service) Reserve(ctx context.Context, req model.BookingRequest, details Details) (*model.Reservation, error) {
	space, addOns, err := s.validate(ctx, &req)
	if err != nil {
		metrics.IncReservationRejected("validation")
		return nil, err
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, req.SpaceID, req.Window.Date)
		if errors.Is(err, lock.ErrLocked) {
			metrics.IncReservationRejected("locked")
			return nil, fmt.Errorf("%w: another booking for this day is in progress", ErrUnavailable)
		}
		if err != nil {
			return nil, ioErr("acquire lock", err)
		}
		defer release()
	}

	existing, err := s.repo.ListActiveReservations(ctx, req.SpaceID, req.Window.Date)
	if err != nil {
		return nil, ioErr("list reservations", err)
	}
	if engine.HasConflict(req.Window, existing) {
		metrics.IncReservationRejected("conflict")
		return nil, ErrUnavailable
	}

	userID := details.UserID
	if us, ok := s.repo.(userStore); ok && userID == 0 && details.Contact.Name != "" {
		if userID, err = us.EnsureUser(ctx, details.Contact); err != nil {
			return nil, ioErr("ensure user", err)
		}
	}

	r := &model.Reservation{
		UserID:         userID,
		SpaceID:        space.ID,
		CoworkingSpace: space.CoworkingSpace,
		Date:           req.Window.Date,
		Slot:           req.Window.Slot,
		TotalPrice:     engine.ComputeTotal(req, space.Pricing, addOns),
		Extras: model.Extras{
			AddOns:  selected(req.AddOns),
			Contact: details.Contact,
			Notes:   details.Notes,
		},
		Status: model.StatusPending,
	}
	if err := s.repo.CreateReservation(ctx, r); err != nil {
		if errors.Is(err, model.ErrSlotTaken) {
			metrics.IncReservationRejected("conflict")
			return nil, ErrUnavailable
		}
		return nil, ioErr("create reservation", err)
	}

	metrics.IncReservationCreated(r.Slot.FullDay)
	s.logger.Info().
		Int64("reservation_id", r.ID).
		Int64("space_id", r.SpaceID).
		Str("date", r.Date.Format(model.DateLayout)).
		Str("slot", r.Slot.String()).
		Str("total", r.TotalPrice.StringFixed(2)).
		Msg("reservation created")
	s.publish(events.ReservationCreated, r, space.Name)
	return r, nil
}

// Get returns one reservation.
func (s *Service) Get(ctx context.Context, id int64) (*model.Reservation, error) {
	r, err := s.repo.GetReservation(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("reservation %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, ioErr("get reservation", err)
	}
	return r, nil
}

func (s *Service) Confirm(ctx context.Context, id int64) (*model.Reservation, error) {
	return s.transition(ctx, id, model.StatusConfirmed, events.ReservationConfirmed)
}

func (s *Service) Cancel(ctx context.Context, id int64) (*model.Reservation, error) {
	return s.transition(ctx, id, model.StatusCancelled, events.ReservationCancelled)
}

func (s *Service) transition(ctx context.Context, id int64, target model.Status, eventType string) (*model.Reservation, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(allowed[target], r.Status) {
		return nil, invalid("status", "cannot move reservation %d from %s to %s", id, r.Status, target)
	}

	err = s.repo.UpdateReservationStatus(ctx, id, target, r.Version)
	switch {
	case errors.Is(err, model.ErrConcurrentModification), errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("reservation %d: %w", id, err)
	case err != nil:
		return nil, ioErr("update reservation", err)
	}

	r.Status = target
	r.Version++
	r.UpdatedAt = s.now()

	metrics.IncReservationTransition(string(target))
	s.logger.Info().
		Int64("reservation_id", id).
		Int64("space_id", r.SpaceID).
		Str("status", string(target)).
		Msg("reservation status changed")

	var spaceName string
	if space, err := s.repo.GetSpace(ctx, r.SpaceID); err == nil {
		spaceName = space.Name
	}
	s.publish(eventType, r, spaceName)
	return r, nil
}

// Availability returns the slot grid of a space for date.
func (s *Service) Availability(ctx context.Context, spaceID int64, date time.Time) (*Day, error) {
	space, err := s.space(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	date = model.DateOf(date)
	day := &Day{Space: space, Date: date}

	if closed, reason := s.isHoliday(date); closed {
		day.Closed, day.Reason = true, reason
		return day, nil
	}

	existing, err := s.repo.ListActiveReservations(ctx, spaceID, date)
	if err != nil {
		return nil, ioErr("list reservations", err)
	}
	day.Slots = slots.NewGenerator(s.wallNow).Grid(date, hoursOf(space), s.rules.SlotStep, existing)
	return day, nil
}

// Calendar returns the booked events of a space between from and to inclusive.
func (s *Service) Calendar(ctx context.Context, spaceID int64, from, to time.Time) ([]slots.Event, error) {
	if to.Before(from) {
		return nil, invalid("to", "must not be before from")
	}
	space, err := s.space(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	reservations, err := s.repo.ListReservations(ctx, model.ReservationFilter{
		SpaceID: spaceID,
		From:    model.DateOf(from),
		To:      model.DateOf(to),
	})
	if err != nil {
		return nil, ioErr("list reservations", err)
	}
	return slots.Events(reservations, hoursOf(space)), nil
}

// Export writes the reservations dated between from and to as an xlsx workbook.
func (s *Service) Export(ctx context.Context, from, to time.Time, w io.Writer) (int, error) {
	if to.Before(from) {
		return 0, invalid("to", "must not be before from")
	}
	reservations, err := s.repo.ListReservations(ctx, model.ReservationFilter{From: model.DateOf(from), To: model.DateOf(to)})
	if err != nil {
		return 0, ioErr("list reservations", err)
	}

	names := make(map[int64]string)
	for i := range reservations {
		id := reservations[i].SpaceID
		if _, ok := names[id]; ok {
			continue
		}
		if space, err := s.repo.GetSpace(ctx, id); err == nil {
			names[id] = space.Name
		} else {
			s.logger.Warn().Err(err).Int64("space_id", id).Msg("export: space name unavailable")
			names[id] = fmt.Sprintf("%d", id)
		}
	}

	if err := audit.WriteReservations(w, reservations, names); err != nil {
		return 0, ioErr("write workbook", err)
	}
	return len(reservations), nil
}

func (s *Service) space(ctx context.Context, id int64) (*model.Space, error) {
	space, err := s.repo.GetSpace(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("space %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, ioErr("get space", err)
	}
	return space, nil
}

// validate normalizes req in place and loads what pricing needs.
func (s *Service) validate(ctx context.Context, req *model.BookingRequest) (*model.Space, []model.AddOnItem, error) {
	if req.SpaceID <= 0 {
		return nil, nil, invalid("space_id", "must be positive")
	}
	if req.Window.Date.IsZero() {
		return nil, nil, invalid("date", "is required")
	}
	if !req.Window.Slot.Valid() {
		return nil, nil, invalid("end_time", "must be after start_time")
	}
	req.Window.Date = model.DateOf(req.Window.Date)

	space, err := s.repo.GetSpace(ctx, req.SpaceID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil, invalid("space_id", "space %d does not exist", req.SpaceID)
	}
	if err != nil {
		return nil, nil, ioErr("get space", err)
	}
	if !space.IsActive {
		return nil, nil, invalid("space_id", "space %d is not bookable", req.SpaceID)
	}

	hours := hoursOf(space)
	if slot := req.Window.Slot; !slot.FullDay && (slot.Start < hours.Open || slot.End > hours.Close) {
		return nil, nil, invalid("start_time", "outside opening hours %s - %s", hours.Open, hours.Close)
	}
	if closed, reason := s.isHoliday(req.Window.Date); closed {
		if reason == "" {
			reason = "holiday"
		}
		return nil, nil, invalid("date", "closed (%s)", reason)
	}
	if err := s.checkHorizon(req.Window, hours); err != nil {
		return nil, nil, err
	}

	addOns, err := s.checkAddOns(ctx, req.AddOns)
	if err != nil {
		return nil, nil, err
	}
	return space, addOns, nil
}

func (s *Service) checkHorizon(w model.TimeWindow, hours model.OpeningHours) error {
	now := s.wallNow()

	// A full day stays bookable until closing time.
	start := w.Slot.Start.On(w.Date)
	if w.Slot.FullDay {
		start = hours.Close.On(w.Date)
	}
	if start.Before(now.Add(s.rules.MinAdvance)) {
		if s.rules.MinAdvance <= 0 {
			return invalid("date", "is in the past")
		}
		return invalid("date", "must be booked at least %s in advance", s.rules.MinAdvance)
	}
	if s.rules.MaxAdvance > 0 && w.Date.After(model.DateOf(now).Add(s.rules.MaxAdvance)) {
		return invalid("date", "cannot be booked more than %d days ahead", int(s.rules.MaxAdvance.Hours()/24))
	}
	return nil
}

// checkAddOns rejects negative quantities and unknown ids. The catalog is only loaded
// when something is selected.
func (s *Service) checkAddOns(ctx context.Context, selection map[int64]int) ([]model.AddOnItem, error) {
	var wanted int
	for id, qty := range selection {
		if qty < 0 {
			return nil, invalid("add_ons", "negative quantity for add-on %d", id)
		}
		if qty > 0 {
			wanted++
		}
	}
	if wanted == 0 {
		return nil, nil
	}

	items, err := s.repo.ListAddOns(ctx)
	if err != nil {
		return nil, ioErr("list add-ons", err)
	}
	known := make(map[int64]bool, len(items))
	for _, item := range items {
		known[item.ID] = true
	}
	for id, qty := range selection {
		if qty > 0 && !known[id] {
			return nil, invalid("add_ons", "unknown add-on %d", id)
		}
	}
	return items, nil
}

func (s *Service) publish(eventType string, r *model.Reservation, spaceName string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Type:        eventType,
		Reservation: *r,
		SpaceName:   spaceName,
		CreatedAt:   s.now(),
	})
}

func hoursOf(space *model.Space) model.OpeningHours {
	if space.Hours.Close <= space.Hours.Open {
		return model.DefaultOpeningHours
	}
	return space.Hours
}

// selected drops zero quantities before the selection is stored.
func selected(addOns map[int64]int) map[int64]int {
	out := make(map[int64]int, len(addOns))
	for id, qty := range addOns {
		if qty > 0 {
			out[id] = qty
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
