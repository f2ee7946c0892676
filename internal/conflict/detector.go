// Package conflict finds bookings that compete for the same car over overlapping time.
package conflict

import (
	"fmt"

	model "rental-auction/internal/models"
	"rental-auction/internal/repository"
)

// Overlaps reports whether two half-open intervals intersect: a.Start < b.End && a.End > b.Start.
func Overlaps(a, b model.Interval) bool {
	return a.Overlaps(b)
}

// contestable lists the statuses that can still be folded into an auction
func contestable(s model.BookingStatus) bool {
	return s == model.BookingPending || s == model.BookingCompeting
}

// FindOverlapping returns the pending and competing bookings of carID that overlap interval.
// A non-empty excludingID drops the booking with that ID from the result.
func FindOverlapping(tx repository.Tx, carID string, interval model.Interval, excludingID string) ([]model.Booking, error) {
	bookings, err := tx.ListBookingsByCar(carID)
	if err != nil {
		return nil, fmt.Errorf("conflict: list bookings for car %s: %w", carID, err)
	}

	overlapping := make([]model.Booking, 0)
	for _, b := range bookings {
		if b.BookingID == excludingID || !contestable(b.Status) {
			continue
		}
		if Overlaps(b.Interval, interval) {
			overlapping = append(overlapping, b)
		}
	}
	return overlapping, nil
}

// FindConfirmedOverlap returns a confirmed booking of carID that overlaps interval, if any.
// Confirmed bookings cannot be outbid, so a hit means the interval is hard-blocked.
func FindConfirmedOverlap(tx repository.Tx, carID string, interval model.Interval, excludingID string) (model.Booking, bool, error) {
	bookings, err := tx.ListBookingsByCar(carID)
	if err != nil {
		return model.Booking{}, false, fmt.Errorf("conflict: list bookings for car %s: %w", carID, err)
	}

	for _, b := range bookings {
		if b.BookingID == excludingID || b.Status != model.BookingConfirmed {
			continue
		}
		if Overlaps(b.Interval, interval) {
			return b, true, nil
		}
	}
	return model.Booking{}, false, nil
}
