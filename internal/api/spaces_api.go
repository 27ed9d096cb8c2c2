package api

import (
	"net/http"
	"time"

	"cowork/internal/model"
	"cowork/internal/slots"
)

// AvailabilityResponse is the response for GET /api/spaces/{id}/availability.
type AvailabilityResponse struct {
	SpaceID int64            `json:"space_id"`
	Space   string           `json:"space"`
	Date    string           `json:"date"`
	Closed  bool             `json:"closed"`
	Reason  string           `json:"reason,omitempty"`
	Slots   []slots.SlotInfo `json:"slots"`
	// Free runs of consecutive slots, e.g. "12:00 - 18:00".
	FreeRanges []string `json:"free_ranges"`
	// Bookable lengths in minutes from the start query parameter.
	Durations []int `json:"durations,omitempty"`
}

// CalendarEvent is a reserved block on the calendar.
type CalendarEvent struct {
	ReservationID int64     `json:"reservation_id"`
	Title         string    `json:"title"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	AllDay        bool      `json:"all_day"`
	Status        string    `json:"status"`
}

// handleAvailability returns the slot grid of one day. With start=HH:MM it also lists
// the lengths that can be booked from that time.
// GET /api/spaces/{id}/availability?date=YYYY-MM-DD[&start=HH:MM]
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	date, err := model.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	var start model.Clock
	hasStart := r.URL.Query().Get("start") != ""
	if hasStart {
		if start, err = model.ParseClock(r.URL.Query().Get("start")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid start format; expected HH:MM")
			return
		}
	}

	day, err := s.svc.Availability(r.Context(), id, date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := AvailabilityResponse{
		SpaceID: day.Space.ID,
		Space:   day.Space.Name,
		Date:    day.Date.Format(model.DateLayout),
		Closed:  day.Closed,
		Reason:  day.Reason,
		Slots:   slots.ToSlotInfo(day.Slots),

		FreeRanges: []string{},
	}
	if resp.Slots == nil {
		resp.Slots = []slots.SlotInfo{}
	}
	for _, run := range slots.FindConsecutive(day.Slots) {
		if window, ok := slots.Merge(run); ok {
			resp.FreeRanges = append(resp.FreeRanges, window.String())
		}
	}
	if hasStart {
		resp.Durations = slots.DurationOptions(day.Slots, start)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCalendar lists reserved blocks between two dates.
// GET /api/spaces/{id}/calendar?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	from, to, ok := s.dateRange(w, r)
	if !ok {
		return
	}

	evs, err := s.svc.Calendar(r.Context(), id, from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	out := make([]CalendarEvent, 0, len(evs))
	for _, e := range evs {
		out = append(out, CalendarEvent{
			ReservationID: e.ReservationID,
			Title:         e.Title,
			Start:         e.Start,
			End:           e.End,
			AllDay:        e.AllDay,
			Status:        string(e.Status),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
