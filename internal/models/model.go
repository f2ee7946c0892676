package models

import "time"

// User represents a renter together with the fields that feed the trust score
type User struct {
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	TotalRides  int     `json:"total_rides"`
	AvgRating   float64 `json:"avg_rating"`
	DamageCount int     `json:"damage_count"`
	RashCount   int     `json:"rash_count"`
	TrustScore  float64 `json:"trust_score"`
	IsBlocked   bool    `json:"is_blocked"`
	IsAdmin     bool    `json:"is_admin"`
}

// Car represents the rentable resource
type Car struct {
	CarID       string  `json:"car_id"`
	Model       string  `json:"model"`
	NumberPlate string  `json:"number_plate"`
	DailyPrice  float64 `json:"daily_price"`
	IsActive    bool    `json:"is_active"`
}

// Interval is a half-open time range [Start, End)
type Interval struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
}

// Valid reports whether the interval starts strictly before it ends
func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

// Overlaps reports whether two half-open intervals share at least one instant
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && i.End.After(other.Start)
}

// Booking is a reservation request for a car over an interval
type Booking struct {
	BookingID  string        `json:"booking_id"`
	UserID     string        `json:"user_id"`
	CarID      string        `json:"car_id"`
	Interval   Interval      `json:"interval"`
	OfferPrice float64       `json:"offer_price"`
	Status     BookingStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Auction groups overlapping bookings for one car into a single contest
type Auction struct {
	AuctionID    string        `json:"auction_id"`
	CarID        string        `json:"car_id"`
	Interval     Interval      `json:"interval"`
	Status       AuctionStatus `json:"status"`
	AuctionStart time.Time     `json:"auction_start"`
	AuctionEnd   time.Time     `json:"auction_end"`
	WinnerID     string        `json:"winner_id,omitempty"`
	MergedInto   string        `json:"merged_into,omitempty"`
	ClosedAt     *time.Time    `json:"closed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Bid is a user's stake in an auction, backed by exactly one booking
type Bid struct {
	BidID              string    `json:"bid_id"`
	AuctionID          string    `json:"auction_id"`
	UserID             string    `json:"user_id"`
	BookingID          string    `json:"booking_id"`
	OfferPrice         float64   `json:"offer_price"`
	TrustScoreSnapshot float64   `json:"trust_score_snapshot"`
	FinalScore         *float64  `json:"final_score,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Rating is the driving assessment recorded after a completed booking
type Rating struct {
	RatingID      string    `json:"rating_id"`
	BookingID     string    `json:"booking_id"`
	UserID        string    `json:"user_id"`
	DrivingRating int       `json:"driving_rating"`
	DamageFlag    bool      `json:"damage_flag"`
	RashFlag      bool      `json:"rash_flag"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
