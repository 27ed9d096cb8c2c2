package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"cowork/internal/audit"
	"cowork/internal/booking"
	"cowork/internal/engine"
	"cowork/internal/model"
)

// ReservationRequest is the body of POST /api/quote and POST /api/reservations.
// The window is either time_slot ("HH:MM - HH:MM" or "Full Day"), all_day, or
// start_time with end_time.
type ReservationRequest struct {
	SpaceID   int64         `json:"space_id"`
	Date      string        `json:"date"`                 // Format: YYYY-MM-DD
	StartTime string        `json:"start_time,omitempty"` // Format: HH:MM
	EndTime   string        `json:"end_time,omitempty"`   // Format: HH:MM
	AllDay    bool          `json:"all_day,omitempty"`
	TimeSlot  string        `json:"time_slot,omitempty"`
	AddOns    map[int64]int `json:"add_ons,omitempty"` // add-on id -> quantity
	UserID    int64         `json:"user_id,omitempty"`
	Contact   model.Contact `json:"contact"`
	Notes     string        `json:"notes,omitempty"`
}

// ConflictResponse is an existing reservation overlapping a quoted window.
type ConflictResponse struct {
	ID       int64  `json:"id"`
	TimeSlot string `json:"time_slot"`
	Status   string `json:"status"`
}

// QuoteResponse is the response for POST /api/quote.
type QuoteResponse struct {
	Available bool               `json:"available"`
	Conflicts []ConflictResponse `json:"conflicts"`
	Total     string             `json:"total"`
	Breakdown engine.Breakdown   `json:"breakdown"`
}

// ReservationResponse is a reservation on the wire.
type ReservationResponse struct {
	ID             int64         `json:"id"`
	Reference      string        `json:"reference"`
	Status         string        `json:"status"`
	SpaceID        int64         `json:"space_id"`
	CoworkingSpace string        `json:"coworking_space,omitempty"`
	Date           string        `json:"date"`
	TimeSlot       string        `json:"time_slot"`
	AllDay         bool          `json:"all_day"`
	Total          string        `json:"total"`
	UserID         int64         `json:"user_id,omitempty"`
	Contact        model.Contact `json:"contact"`
	AddOns         map[int64]int `json:"add_ons,omitempty"`
	Notes          string        `json:"notes,omitempty"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`
}

func (req *ReservationRequest) bookingRequest() (model.BookingRequest, error) {
	if req.Date == "" {
		return model.BookingRequest{}, errors.New("date is required")
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		return model.BookingRequest{}, err
	}

	var slot model.Slot
	switch {
	case req.AllDay:
		slot = model.FullDaySlot()
	case req.TimeSlot != "":
		var ok bool
		if slot, ok = model.ParseSlot(req.TimeSlot); !ok {
			return model.BookingRequest{}, fmt.Errorf("invalid time_slot %q", req.TimeSlot)
		}
	default:
		if req.StartTime == "" || req.EndTime == "" {
			return model.BookingRequest{}, errors.New("start_time and end_time are required unless all_day is set")
		}
		start, err := model.ParseClock(req.StartTime)
		if err != nil {
			return model.BookingRequest{}, fmt.Errorf("start_time: %w", err)
		}
		end, err := model.ParseClock(req.EndTime)
		if err != nil {
			return model.BookingRequest{}, fmt.Errorf("end_time: %w", err)
		}
		slot = model.BoundedSlot(start, end)
	}

	return model.BookingRequest{
		SpaceID: req.SpaceID,
		Window:  model.TimeWindow{Date: date, Slot: slot},
		AddOns:  req.AddOns,
	}, nil
}

func decodeReservationRequest(w http.ResponseWriter, r *http.Request) (*ReservationRequest, model.BookingRequest, error) {
	var req ReservationRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return nil, model.BookingRequest{}, errors.New("invalid JSON body")
	}
	br, err := req.bookingRequest()
	return &req, br, err
}

// handleQuote prices a request and reports conflicts without booking.
// POST /api/quote
func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	_, req, err := decodeReservationRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.svc.Quote(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := QuoteResponse{
		Available: q.Available,
		Conflicts: make([]ConflictResponse, 0, len(q.Conflicts)),
		Total:     q.Breakdown.Total.StringFixed(2),
		Breakdown: q.Breakdown,
	}
	for _, c := range q.Conflicts {
		resp.Conflicts = append(resp.Conflicts, ConflictResponse{ID: c.ID, TimeSlot: c.Slot.String(), Status: string(c.Status)})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCreateReservation books a window.
// POST /api/reservations
func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	body, req, err := decodeReservationRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.svc.Reserve(r.Context(), req, booking.Details{
		UserID:  body.UserID,
		Contact: body.Contact,
		Notes:   body.Notes,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationResponse(res))
}

// GET /api/reservations/{id}
func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponse(res))
}

// POST /api/reservations/{id}/confirm
func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Confirm(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponse(res))
}

// POST /api/reservations/{id}/cancel
func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Cancel(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponse(res))
}

// handleExport streams reservations dated in [from, to] as an xlsx workbook.
// GET /api/reservations/export?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.dateRange(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if _, err := s.svc.Export(r.Context(), from, to, &buf); err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", audit.Filename(from, to)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func toReservationResponse(r *model.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:             r.ID,
		Reference:      r.Reference,
		Status:         string(r.Status),
		SpaceID:        r.SpaceID,
		CoworkingSpace: r.CoworkingSpace,
		Date:           r.Date.Format(model.DateLayout),
		TimeSlot:       r.Slot.String(),
		AllDay:         r.Slot.FullDay,
		Total:          r.TotalPrice.StringFixed(2),
		UserID:         r.UserID,
		Contact:        r.Extras.Contact,
		AddOns:         r.Extras.AddOns,
		Notes:          r.Extras.Notes,
		Version:        r.Version,
		CreatedAt:      r.CreatedAt,
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// dateRange reads the from/to query parameters. Both are required.
func (s *HTTPServer) dateRange(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	q := r.URL.Query()
	if q.Get("from") == "" || q.Get("to") == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return from, to, false
	}
	from, err := model.ParseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from format; expected YYYY-MM-DD")
		return from, to, false
	}
	to, err = model.ParseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to format; expected YYYY-MM-DD")
		return from, to, false
	}
	if from.After(to) {
		writeError(w, http.StatusBadRequest, "from must be before or equal to to")
		return from, to, false
	}
	if days := int(to.Sub(from).Hours() / 24); days > s.opts.MaxRangeDays {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("date range exceeds maximum of %d days", s.opts.MaxRangeDays))
		return from, to, false
	}
	return from, to, true
}
