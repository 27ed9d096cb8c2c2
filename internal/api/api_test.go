package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"cowork/internal/booking"
	"cowork/internal/config"
	"cowork/internal/db"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const testAPIKey = "valid-key"

type ErrorResponse struct {
	Error string `json:"error"`
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	store, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.SyncCatalogFromConfig(context.Background(), &config.CatalogConfig{
		Spaces: []config.SpaceConfig{
			{ID: 1, Name: "Desk A", IsActive: true, Capacity: 1,
				Pricing: config.PricingConfig{Hourly: "10", Daily: "60"},
				Hours:   &config.HoursConfig{Open: "09:00", Close: "18:00"}},
		},
		AddOns: []config.AddOnConfig{
			{ID: 10, Kind: "equipment", Name: "Projector", Price: "5", PriceType: "hourly"},
		},
	}))
	return store
}

func newTestServer(t *testing.T, opts Options) http.Handler {
	t.Helper()
	logger := zerolog.New(io.Discard)
	now := time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)
	svc := booking.NewService(newTestDB(t), booking.Rules{SlotStep: time.Hour}, &logger,
		booking.WithClock(func() time.Time { return now }))
	if opts.APIKeys == nil {
		opts.APIKeys = []string{testAPIKey}
	}
	return NewHTTPServer(opts, svc, &logger).Handler()
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", testAPIKey)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestQuote(t *testing.T) {
	h := newTestServer(t, Options{})

	w := do(t, h, http.MethodPost, "/api/quote", map[string]any{
		"space_id": 1, "date": "2026-06-01", "start_time": "09:00", "end_time": "11:00",
		"add_ons": map[string]int{"10": 1},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[QuoteResponse](t, w)
	assert.True(t, resp.Available)
	assert.Empty(t, resp.Conflicts)
	assert.Equal(t, "30.00", resp.Total)
	require.Len(t, resp.Breakdown.AddOns, 1)
	assert.Equal(t, "Projector", resp.Breakdown.AddOns[0].Name)
}

func TestReservationLifecycle(t *testing.T) {
	h := newTestServer(t, Options{})

	w := do(t, h, http.MethodPost, "/api/reservations", map[string]any{
		"space_id": 1, "date": "2026-06-01", "time_slot": "10:00 - 12:00",
		"contact": map[string]string{"name": "Ann", "email": "ann@example.com"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[ReservationResponse](t, w)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "20.00", created.Total)
	assert.NotEmpty(t, created.Reference)
	assert.NotZero(t, created.UserID)

	// Overlapping window is refused, the quote shows the conflict.
	w = do(t, h, http.MethodPost, "/api/reservations", map[string]any{
		"space_id": 1, "date": "2026-06-01", "start_time": "11:00", "end_time": "13:00",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = do(t, h, http.MethodPost, "/api/quote", map[string]any{"space_id": 1, "date": "2026-06-01", "all_day": true})
	require.Equal(t, http.StatusOK, w.Code)
	quote := decode[QuoteResponse](t, w)
	assert.False(t, quote.Available)
	require.Len(t, quote.Conflicts, 1)
	assert.Equal(t, created.ID, quote.Conflicts[0].ID)

	path := "/api/reservations/" + strconv.FormatInt(created.ID, 10)
	w = do(t, h, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10:00 - 12:00", decode[ReservationResponse](t, w).TimeSlot)

	w = do(t, h, http.MethodPost, path+"/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "confirmed", decode[ReservationResponse](t, w).Status)

	w = do(t, h, http.MethodPost, path+"/confirm", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, path+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", decode[ReservationResponse](t, w).Status)

	// The slot is free again.
	w = do(t, h, http.MethodPost, "/api/reservations", map[string]any{
		"space_id": 1, "date": "2026-06-01", "start_time": "11:00", "end_time": "13:00",
	})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestCreateReservation_BadRequests(t *testing.T) {
	h := newTestServer(t, Options{})

	tests := []struct {
		name      string
		body      any
		wantError string
	}{
		{"invalid JSON", "not json", "invalid JSON body"},
		{"unknown field", map[string]any{"space_id": 1, "room": 3}, "invalid JSON body"},
		{"missing date", map[string]any{"space_id": 1, "all_day": true}, "date is required"},
		{"bad date", map[string]any{"space_id": 1, "date": "01-06-2026", "all_day": true},
			`invalid date "01-06-2026", expected YYYY-MM-DD`},
		{"missing times", map[string]any{"space_id": 1, "date": "2026-06-01"},
			"start_time and end_time are required unless all_day is set"},
		{"bad slot", map[string]any{"space_id": 1, "date": "2026-06-01", "time_slot": "morning"},
			`invalid time_slot "morning"`},
		{"outside hours", map[string]any{"space_id": 1, "date": "2026-06-01", "start_time": "07:00", "end_time": "09:00"},
			"start_time: outside opening hours 09:00 - 18:00"},
		{"unknown space", map[string]any{"space_id": 5, "date": "2026-06-01", "all_day": true},
			"space_id: space 5 does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/reservations", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantError, decode[ErrorResponse](t, w).Error)
		})
	}
}

func TestGetReservation_Errors(t *testing.T) {
	h := newTestServer(t, Options{})

	w := do(t, h, http.MethodGet, "/api/reservations/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/api/reservations/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid id", decode[ErrorResponse](t, w).Error)

	w = do(t, h, http.MethodDelete, "/api/reservations/1", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAvailabilityAndCalendar(t *testing.T) {
	h := newTestServer(t, Options{})

	w := do(t, h, http.MethodPost, "/api/reservations", map[string]any{
		"space_id": 1, "date": "2026-06-01", "time_slot": "10:00 - 12:00",
		"contact": map[string]string{"name": "Ann"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, h, http.MethodGet, "/api/spaces/1/availability?date=2026-06-01", nil)
	require.Equal(t, http.StatusOK, w.Code)
	day := decode[AvailabilityResponse](t, w)
	assert.Equal(t, "Desk A", day.Space)
	require.Len(t, day.Slots, 9)
	assert.True(t, day.Slots[0].Available)
	assert.False(t, day.Slots[1].Available)
	assert.False(t, day.Slots[2].Available)
	assert.Equal(t, "10:00", day.Slots[1].Start)
	assert.Equal(t, []string{"09:00 - 10:00", "12:00 - 18:00"}, day.FreeRanges)
	assert.Empty(t, day.Durations)

	w = do(t, h, http.MethodGet, "/api/spaces/1/availability?date=2026-06-01&start=16:00", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{60, 120}, decode[AvailabilityResponse](t, w).Durations)

	w = do(t, h, http.MethodGet, "/api/spaces/1/availability?date=2026-06-01&start=4pm", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/spaces/1/availability?date=tomorrow", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/spaces/9/availability?date=2026-06-01", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/api/spaces/1/calendar?from=2026-06-01&to=2026-06-07", nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := decode[[]CalendarEvent](t, w)
	require.Len(t, events, 1)
	assert.Equal(t, "Ann (10:00 - 12:00)", events[0].Title)
	assert.Equal(t, 10, events[0].Start.Hour())

	w = do(t, h, http.MethodGet, "/api/spaces/1/calendar?from=2026-06-01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "from and to are required", decode[ErrorResponse](t, w).Error)

	w = do(t, h, http.MethodGet, "/api/spaces/1/calendar?from=2026-01-01&to=2026-12-31", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExport(t *testing.T) {
	h := newTestServer(t, Options{})

	w := do(t, h, http.MethodPost, "/api/reservations", map[string]any{
		"space_id": 1, "date": "2026-06-01", "all_day": true,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, h, http.MethodGet, "/api/reservations/export?from=2026-06-01&to=2026-06-30", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "reservations_2026-06-01_2026-06-30.xlsx")

	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Reservations")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Full Day", rows[1][3])
	assert.Equal(t, "Desk A", rows[1][4])
}

func TestAPIKey(t *testing.T) {
	h := newTestServer(t, Options{})

	for _, key := range []string{"", "wrong"} {
		req := httptest.NewRequest(http.MethodGet, "/api/spaces/1/availability?date=2026-06-01", nil)
		if key != "" {
			req.Header.Set("X-Api-Key", key)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, Options{RateLimit: 1, RateBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, h, http.MethodGet, "/api/spaces/1/availability?date=2026-06-01", nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestClientLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newClientLimiter(1, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"))

	now = now.Add(time.Second)
	assert.True(t, l.allow("a"))

	now = now.Add(clientIdleTTL + time.Minute)
	l.mu.Lock()
	pruned := l.prune(now)
	l.mu.Unlock()
	assert.Equal(t, 2, pruned)
}
