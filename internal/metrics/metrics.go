package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives allocation events from the booking and auction services
type Recorder interface {
	BookingRequested(outcome string)
	BookingCancelled(penalized bool)
	AuctionOpened()
	AuctionClosed(trigger string, bids int, hasWinner bool)
}

// Booking request outcomes
const (
	OutcomeGranted  = "granted"
	OutcomeAuction  = "auction"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
)

// Auction close triggers
const (
	TriggerManual = "manual"
	TriggerExpiry = "expiry"
)

// NopRecorder discards every event
type NopRecorder struct{}

func (NopRecorder) BookingRequested(string)         {}
func (NopRecorder) BookingCancelled(bool)           {}
func (NopRecorder) AuctionOpened()                  {}
func (NopRecorder) AuctionClosed(string, int, bool) {}

// PromRecorder records allocation events as Prometheus metrics
type PromRecorder struct {
	requests      *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	opened        prometheus.Counter
	closed        *prometheus.CounterVec
	bidsPerClose  prometheus.Histogram
}

// NewPromRecorder registers allocation metrics on reg.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromRecorder(reg prometheus.Registerer) (*PromRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rental_booking_requests_total",
		Help: "Booking requests by outcome",
	}, []string{"outcome"})
	cancellations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rental_booking_cancellations_total",
		Help: "Booking cancellations, split by whether a late-cancel penalty applied",
	}, []string{"penalized"})
	opened := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rental_auctions_opened_total",
		Help: "Auctions created after a booking conflict",
	})
	closed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rental_auctions_closed_total",
		Help: "Auctions closed by trigger and whether a winner was chosen",
	}, []string{"trigger", "has_winner"})
	bidsPerClose := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rental_auction_bids",
		Help:    "Number of bids in an auction at close",
		Buckets: []float64{1, 2, 3, 5, 8, 13},
	})

	var err error
	if requests, err = register(reg, requests); err != nil {
		return nil, err
	}
	if cancellations, err = register(reg, cancellations); err != nil {
		return nil, err
	}
	if opened, err = register(reg, opened); err != nil {
		return nil, err
	}
	if closed, err = register(reg, closed); err != nil {
		return nil, err
	}
	if bidsPerClose, err = register(reg, bidsPerClose); err != nil {
		return nil, err
	}

	return &PromRecorder{
		requests:      requests,
		cancellations: cancellations,
		opened:        opened,
		closed:        closed,
		bidsPerClose:  bidsPerClose,
	}, nil
}

// register reuses an already registered collector of the same type
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (r *PromRecorder) BookingRequested(outcome string) {
	r.requests.WithLabelValues(outcome).Inc()
}

func (r *PromRecorder) BookingCancelled(penalized bool) {
	r.cancellations.WithLabelValues(strconv.FormatBool(penalized)).Inc()
}

func (r *PromRecorder) AuctionOpened() {
	r.opened.Inc()
}

func (r *PromRecorder) AuctionClosed(trigger string, bids int, hasWinner bool) {
	r.closed.WithLabelValues(trigger, strconv.FormatBool(hasWinner)).Inc()
	r.bidsPerClose.Observe(float64(bids))
}
