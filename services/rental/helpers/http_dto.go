package helpers

import (
	"time"

	"rental-auction/internal/auction"
	model "rental-auction/internal/models"
)

// Request/Response DTOs
type BookingRequest struct {
	CarID      string    `json:"car_id" binding:"required"`
	StartTime  time.Time `json:"start_time" binding:"required"`
	EndTime    time.Time `json:"end_time" binding:"required"`
	OfferPrice float64   `json:"offer_price" binding:"required,gt=0"`
}

type BidRequest struct {
	OfferPrice float64 `json:"offer_price" binding:"required,gt=0"`
}

type RatingRequest struct {
	DrivingRating int    `json:"driving_rating" binding:"required,min=1,max=5"`
	DamageFlag    bool   `json:"damage_flag"`
	RashFlag      bool   `json:"rash_flag"`
	Notes         string `json:"notes" binding:"max=500"`
}

type BookingResponse struct {
	BookingID  string  `json:"booking_id"`
	UserID     string  `json:"user_id"`
	CarID      string  `json:"car_id"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	OfferPrice float64 `json:"offer_price"`
	Status     string  `json:"status"`
	AuctionID  string  `json:"auction_id,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

type BidResponse struct {
	BidID              string   `json:"bid_id"`
	AuctionID          string   `json:"auction_id"`
	UserID             string   `json:"user_id"`
	BookingID          string   `json:"booking_id"`
	OfferPrice         float64  `json:"offer_price"`
	TrustScoreSnapshot float64  `json:"trust_score_snapshot"`
	FinalScore         *float64 `json:"final_score,omitempty"`
	CreatedAt          string   `json:"created_at"`
}

type AuctionResponse struct {
	AuctionID    string        `json:"auction_id"`
	CarID        string        `json:"car_id"`
	StartTime    string        `json:"start_time"`
	EndTime      string        `json:"end_time"`
	Status       string        `json:"status"`
	AuctionEnd   string        `json:"auction_end"`
	WinnerID     string        `json:"winner_id,omitempty"`
	BidCount     int           `json:"bid_count"`
	HighestOffer float64       `json:"highest_offer"`
	Bids         []BidResponse `json:"bids,omitempty"`
}

type CloseAuctionResponse struct {
	AuctionID string       `json:"auction_id"`
	WinnerID  string       `json:"winner_id,omitempty"`
	Winner    *BidResponse `json:"winning_bid,omitempty"`
	BidCount  int          `json:"bid_count"`
}

type UserResponse struct {
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	TotalRides  int     `json:"total_rides"`
	AvgRating   float64 `json:"avg_rating"`
	DamageCount int     `json:"damage_count"`
	RashCount   int     `json:"rash_count"`
	TrustScore  float64 `json:"trust_score"`
	IsBlocked   bool    `json:"is_blocked"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ToBookingResponse converts a booking to its wire shape
func ToBookingResponse(b model.Booking) BookingResponse {
	return BookingResponse{
		BookingID:  b.BookingID,
		UserID:     b.UserID,
		CarID:      b.CarID,
		StartTime:  formatTime(b.Interval.Start),
		EndTime:    formatTime(b.Interval.End),
		OfferPrice: b.OfferPrice,
		Status:     string(b.Status),
		CreatedAt:  formatTime(b.CreatedAt),
	}
}

// ToBookingResponses converts a list of bookings, never returning nil
func ToBookingResponses(bookings []model.Booking) []BookingResponse {
	out := make([]BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, ToBookingResponse(b))
	}
	return out
}

// ToBidResponse converts a bid to its wire shape
func ToBidResponse(b model.Bid) BidResponse {
	return BidResponse{
		BidID:              b.BidID,
		AuctionID:          b.AuctionID,
		UserID:             b.UserID,
		BookingID:          b.BookingID,
		OfferPrice:         b.OfferPrice,
		TrustScoreSnapshot: b.TrustScoreSnapshot,
		FinalScore:         b.FinalScore,
		CreatedAt:          formatTime(b.CreatedAt),
	}
}

// ToAuctionResponse converts auction details; bids are included only when withBids is set
func ToAuctionResponse(d auction.Details, withBids bool) AuctionResponse {
	resp := AuctionResponse{
		AuctionID:    d.AuctionID,
		CarID:        d.CarID,
		StartTime:    formatTime(d.Interval.Start),
		EndTime:      formatTime(d.Interval.End),
		Status:       string(d.Status),
		AuctionEnd:   formatTime(d.AuctionEnd),
		WinnerID:     d.WinnerID,
		BidCount:     d.BidCount,
		HighestOffer: d.HighestOffer,
	}
	if withBids {
		resp.Bids = make([]BidResponse, 0, len(d.Bids))
		for _, b := range d.Bids {
			resp.Bids = append(resp.Bids, ToBidResponse(b))
		}
	}
	return resp
}

// ToCloseAuctionResponse summarizes the result of closing an auction
func ToCloseAuctionResponse(r auction.CloseResult) CloseAuctionResponse {
	resp := CloseAuctionResponse{
		AuctionID: r.Auction.AuctionID,
		WinnerID:  r.Auction.WinnerID,
		BidCount:  len(r.Bids),
	}
	if r.Winner != nil {
		w := ToBidResponse(*r.Winner)
		resp.Winner = &w
	}
	return resp
}

// ToUserResponse converts a user to its public wire shape
func ToUserResponse(u model.User) UserResponse {
	return UserResponse{
		UserID:      u.UserID,
		Username:    u.Username,
		TotalRides:  u.TotalRides,
		AvgRating:   u.AvgRating,
		DamageCount: u.DamageCount,
		RashCount:   u.RashCount,
		TrustScore:  u.TrustScore,
		IsBlocked:   u.IsBlocked,
	}
}
