package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cowork",
			Name:      "reservation_created_total",
			Help:      "Count of reservations created by slot kind.",
		},
		[]string{"kind"},
	)

	reservationTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cowork",
			Name:      "reservation_transition_total",
			Help:      "Count of reservation status changes by target status.",
		},
		[]string{"status"},
	)

	reservationRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cowork",
			Name:      "reservation_rejected_total",
			Help:      "Count of reservation attempts rejected by reason.",
		},
		[]string{"reason"},
	)

	quoteRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cowork",
			Name:      "quote_requests_total",
			Help:      "Count of price quotes served.",
		},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cowork",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "code"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(reservationCreated, reservationTransition, reservationRejected, quoteRequests, httpDuration)
	})
}

func IncReservationCreated(fullDay bool) {
	kind := "bounded"
	if fullDay {
		kind = "full_day"
	}
	reservationCreated.WithLabelValues(kind).Inc()
}

func IncReservationTransition(status string) {
	reservationTransition.WithLabelValues(status).Inc()
}

func IncReservationRejected(reason string) {
	reservationRejected.WithLabelValues(reason).Inc()
}

func IncQuote() {
	quoteRequests.Inc()
}

func ObserveHTTP(route, code string, d time.Duration) {
	httpDuration.WithLabelValues(route, code).Observe(d.Seconds())
}
