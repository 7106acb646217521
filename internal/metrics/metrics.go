// Package metrics declares the Prometheus collectors the service exports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "campusride"

var (
	RideTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Ride status transitions by target status"},
		[]string{"to"},
	)
	SeatContention = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "seat_lock_contention_total", Help: "Seat lock acquisitions that found the ride locked"})

	BookingOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "booking_outcomes_total", Help: "Booking requests and resolutions by outcome"},
		[]string{"outcome"},
	)

	LedgerTransfers = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ledger_transfers_total", Help: "Ledger operations by kind and result"},
		[]string{"kind", "result"},
	)
	LedgerAmount = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "ledger_fare_amount_total", Help: "Sum of settled fares"})

	RatingsSubmitted = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "ratings_submitted_total", Help: "Accepted ratings"})

	EventsForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "events_forwarded_total", Help: "Events written to Kafka"},
		[]string{"type"},
	)
	EventsForwardFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "events_forward_failed_total", Help: "Events that could not be written to Kafka"},
		[]string{"type"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
