package rentalerrors

import "errors"

// Repository-level errors
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrCarNotFound     = errors.New("car not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrAuctionNotFound = errors.New("auction not found")
	ErrBidNotFound     = errors.New("bid not found")
)

// validation errors, rejected before any state mutation
var (
	ErrInvalidInterval = errors.New("interval end must be after start")
	ErrInvalidPrice    = errors.New("offer price must be positive")
	ErrInvalidRating   = errors.New("driving rating must be between 1 and 5")
	ErrInvalidRequest  = errors.New("invalid request")
)

// eligibility errors
var (
	ErrNotEligible     = errors.New("account is not eligible for bookings at this time")
	ErrCarUnavailable  = errors.New("car not found or not available")
	ErrForbidden       = errors.New("operation not permitted for this user")
	ErrAlreadyRated    = errors.New("booking has already been rated")
	ErrAuctionInactive = errors.New("auction is no longer active")
)

// conflict errors
var (
	ErrHardConflict      = errors.New("car is already booked for this time period")
	ErrInvalidTransition = errors.New("booking status does not allow this action")
)

// invariant violations, fatal to the unit of work
var (
	ErrDuplicateBid  = errors.New("user already holds a bid in this auction")
	ErrAuctionClosed = errors.New("auction is already closed")
)
