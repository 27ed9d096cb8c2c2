// Package api exposes the booking service over HTTP/JSON.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"cowork/internal/booking"
	"cowork/internal/metrics"
	"cowork/internal/model"
	"cowork/internal/slots"

	"github.com/rs/zerolog"
)

// BookingService is what the handlers need from the booking layer.
type BookingService interface {
	Quote(ctx context.Context, req model.BookingRequest) (*booking.Quote, error)
	Reserve(ctx context.Context, req model.BookingRequest, details booking.Details) (*model.Reservation, error)
	Get(ctx context.Context, id int64) (*model.Reservation, error)
	Confirm(ctx context.Context, id int64) (*model.Reservation, error)
	Cancel(ctx context.Context, id int64) (*model.Reservation, error)
	Availability(ctx context.Context, spaceID int64, date time.Time) (*booking.Day, error)
	Calendar(ctx context.Context, spaceID int64, from, to time.Time) ([]slots.Event, error)
	Export(ctx context.Context, from, to time.Time, w io.Writer) (int, error)
}

// Options configure the HTTP server.
type Options struct {
	Address        string
	APIKeys        []string
	RateLimit      float64 // requests per second per client; 0 disables limiting
	RateBurst      int
	MaxRangeDays   int
	RequestTimeout time.Duration
}

// HTTPServer serves the booking API.
type HTTPServer struct {
	server  *http.Server
	svc     BookingService
	keys    [][]byte
	limiter *clientLimiter
	opts    Options
	logger  *zerolog.Logger
}

func NewHTTPServer(opts Options, svc BookingService, logger *zerolog.Logger) *HTTPServer {
	if opts.MaxRangeDays <= 0 {
		opts.MaxRangeDays = 92
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}

	s := &HTTPServer{svc: svc, opts: opts, logger: logger}
	for _, k := range opts.APIKeys {
		if k != "" {
			s.keys = append(s.keys, []byte(k))
		}
	}
	if opts.RateLimit > 0 {
		s.limiter = newClientLimiter(opts.RateLimit, opts.RateBurst)
	}

	mux := http.NewServeMux()
	s.handle(mux, "POST /api/quote", s.handleQuote)
	s.handle(mux, "POST /api/reservations", s.handleCreateReservation)
	s.handle(mux, "GET /api/reservations/export", s.handleExport)
	s.handle(mux, "GET /api/reservations/{id}", s.handleGetReservation)
	s.handle(mux, "POST /api/reservations/{id}/confirm", s.handleConfirm)
	s.handle(mux, "POST /api/reservations/{id}/cancel", s.handleCancel)
	s.handle(mux, "GET /api/spaces/{id}/availability", s.handleAvailability)
	s.handle(mux, "GET /api/spaces/{id}/calendar", s.handleCalendar)

	s.server = &http.Server{
		Addr:              opts.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      opts.RequestTimeout + 5*time.Second,
	}
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("address", s.opts.Address).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handle registers h behind auth, rate limiting and instrumentation. The pattern is
// used as the metrics route label.
func (s *HTTPServer) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			metrics.ObserveHTTP(pattern, strconv.Itoa(rec.status), time.Since(start))
			s.logger.Debug().
				Str("route", pattern).
				Int("status", rec.status).
				Dur("took", time.Since(start)).
				Msg("http request")
		}()

		if !s.authorized(r) {
			writeError(rec, http.StatusUnauthorized, "missing or invalid API key")
			return
		}
		if s.limiter != nil && !s.limiter.allow(clientKey(r)) {
			rec.Header().Set("Retry-After", "1")
			writeError(rec, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
		defer cancel()
		h(rec, r.WithContext(ctx))
	})
}

func (s *HTTPServer) authorized(r *http.Request) bool {
	if len(s.keys) == 0 {
		return true
	}
	got := []byte(r.Header.Get("X-Api-Key"))
	for _, k := range s.keys {
		if subtle.ConstantTimeCompare(got, k) == 1 {
			return true
		}
	}
	return false
}

// clientKey identifies the caller for rate limiting: the API key when present,
// the remote IP otherwise.
func clientKey(r *http.Request) string {
	if k := r.Header.Get("X-Api-Key"); k != "" {
		return "key:" + k
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// writeServiceError maps booking errors to HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var verr *booking.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, booking.ErrUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "reservation was modified concurrently; retry")
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
