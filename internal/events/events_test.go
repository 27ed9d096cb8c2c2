package events

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"cowork/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishToSubscribers(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	bus := NewBus(&logger)

	var (
		mu  sync.Mutex
		got []string
	)
	bus.Subscribe(ReservationCreated, func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "first:"+e.Reservation.Reference)
		return nil
	})
	bus.Subscribe(ReservationCreated, func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "second")
		return errors.New("telegram down")
	})
	bus.Subscribe(ReservationCancelled, func(context.Context, Event) error {
		t.Error("cancelled handler must not run")
		return nil
	})

	bus.Publish(Event{Type: ReservationCreated, Reservation: model.Reservation{ID: 5, Reference: "ref-1"}})
	bus.Publish(Event{Type: ReservationConfirmed})
	bus.Wait()

	require.Equal(t, []string{"first:ref-1", "second"}, got)
	assert.Contains(t, buf.String(), "telegram down")
	assert.Contains(t, buf.String(), `"reservation_id":5`)
}
