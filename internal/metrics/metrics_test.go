package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(reservationCreated.WithLabelValues("full_day"))
	IncReservationCreated(true)
	assert.Equal(t, before+1, testutil.ToFloat64(reservationCreated.WithLabelValues("full_day")))

	before = testutil.ToFloat64(reservationRejected.WithLabelValues("conflict"))
	IncReservationRejected("conflict")
	assert.Equal(t, before+1, testutil.ToFloat64(reservationRejected.WithLabelValues("conflict")))

	IncReservationTransition("confirmed")
	IncQuote()
	ObserveHTTP("/api/quote", "200", 15*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(httpDuration))
}
