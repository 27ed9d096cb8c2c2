package events

import (
	"context"
	"sync"
	"time"

	"cowork/internal/model"

	"github.com/rs/zerolog"
)

// Reservation lifecycle event types.
const (
	ReservationCreated   = "reservation.created"
	ReservationConfirmed = "reservation.confirmed"
	ReservationCancelled = "reservation.cancelled"
)

// Event is a reservation lifecycle change.
type Event struct {
	Type        string
	Reservation model.Reservation
	SpaceName   string
	CreatedAt   time.Time
}

// Handler reacts to an event.
type Handler func(ctx context.Context, event Event) error

// Bus is an in-process pub/sub for reservation events. Handlers run in the background
// so a slow subscriber never delays the request that published the event.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
	wg          sync.WaitGroup
	logger      *zerolog.Logger
}

// NewBus constructs an empty bus.
func NewBus(logger *zerolog.Logger) *Bus {
	return &Bus{subscribers: make(map[string][]Handler), logger: logger}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish hands the event to every subscriber of its type. Handler errors are logged.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for _, handler := range handlers {
			if err := handler(ctx, event); err != nil {
				b.logger.Error().Err(err).
					Str("event", event.Type).
					Int64("reservation_id", event.Reservation.ID).
					Msg("event handler failed")
			}
		}
	}()
}

// Wait blocks until all published events have been handled.
func (b *Bus) Wait() {
	b.wg.Wait()
}
