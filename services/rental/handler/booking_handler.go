package handler

import (
	"context"
	"net/http"
	"strconv"

	booking "rental-auction/internal/bookingService"
	model "rental-auction/internal/models"
	"rental-auction/internal/rentalerrors"
	"rental-auction/services/rental/helpers"
	"rental-auction/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -destination=mock_services.go -package=handler rental-auction/services/rental/handler BookingServiceInterface,AuctionServiceInterface

type BookingServiceInterface interface {
	RequestBooking(ctx context.Context, userID, carID string, interval model.Interval, offerPrice float64) (booking.Outcome, error)
	CancelBooking(ctx context.Context, bookingID, userID string) (model.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (model.Booking, error)
	ListUserBookings(ctx context.Context, userID string, status model.BookingStatus) ([]model.Booking, error)
	Leaderboard(ctx context.Context, limit int) ([]model.User, error)
	GetUser(ctx context.Context, userID string) (model.User, error)

	ApproveBooking(ctx context.Context, bookingID string) (model.Booking, error)
	RejectBooking(ctx context.Context, bookingID string) (model.Booking, error)
	CompleteBooking(ctx context.Context, bookingID string) (model.Booking, error)
	RateBooking(ctx context.Context, bookingID string, input booking.RatingInput) (model.User, error)

	ResyncUserTrust(ctx context.Context, userID string) (model.User, error)
	BlockUser(ctx context.Context, userID string) (model.User, error)
	UnblockUser(ctx context.Context, userID string) (model.User, error)
}

type BookingHandler struct {
	service BookingServiceInterface
}

func NewBookingHandler(service BookingServiceInterface) *BookingHandler {
	return &BookingHandler{service: service}
}

// RequestBookingHandler handles POST /bookings
func (h *BookingHandler) RequestBookingHandler(c *gin.Context) {
	callerID, ok := helpers.CallerID(c, "RequestBookingHandler")
	if !ok {
		return
	}

	var req helpers.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RequestBookingHandler", err)
		return
	}

	interval := model.Interval{Start: req.StartTime, End: req.EndTime}
	outcome, err := h.service.RequestBooking(c.Request.Context(), callerID, req.CarID, interval, req.OfferPrice)
	if err != nil {
		helpers.HandleServiceError(c, "RequestBookingHandler", err, map[string]any{
			"user_id": callerID,
			"car_id":  req.CarID,
		})
		return
	}

	resp := helpers.ToBookingResponse(outcome.Booking)
	resp.AuctionID = outcome.AuctionID

	message := "booking request received"
	if outcome.Advisory != "" {
		message = outcome.Advisory
	}
	utils.JSONResponse(c, http.StatusCreated, resp, message)
	helpers.LogSuccess("RequestBookingHandler", "booking requested", map[string]any{
		"booking_id": resp.BookingID,
		"user_id":    callerID,
		"car_id":     req.CarID,
		"status":     resp.Status,
		"auction_id": outcome.AuctionID,
	})
}

// GetBookingHandler handles GET /bookings/:booking_id
func (h *BookingHandler) GetBookingHandler(c *gin.Context) {
	callerID, ok := helpers.CallerID(c, "GetBookingHandler")
	if !ok {
		return
	}

	bookingID := c.Param("booking_id")
	b, err := h.service.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		helpers.HandleServiceError(c, "GetBookingHandler", err, map[string]any{"booking_id": bookingID})
		return
	}

	if b.UserID != callerID {
		caller, err := h.service.GetUser(c.Request.Context(), callerID)
		if err != nil || !caller.IsAdmin {
			helpers.HandleServiceError(c, "GetBookingHandler", rentalerrors.ErrForbidden, map[string]any{
				"booking_id": bookingID,
				"user_id":    callerID,
			})
			return
		}
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBookingResponse(b), "booking retrieved successfully")
}

// CancelBookingHandler handles POST /bookings/:booking_id/cancel
func (h *BookingHandler) CancelBookingHandler(c *gin.Context) {
	callerID, ok := helpers.CallerID(c, "CancelBookingHandler")
	if !ok {
		return
	}

	bookingID := c.Param("booking_id")
	b, err := h.service.CancelBooking(c.Request.Context(), bookingID, callerID)
	if err != nil {
		helpers.HandleServiceError(c, "CancelBookingHandler", err, map[string]any{
			"booking_id": bookingID,
			"user_id":    callerID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBookingResponse(b), "booking cancelled successfully")
	helpers.LogSuccess("CancelBookingHandler", "booking cancelled", map[string]any{
		"booking_id": bookingID,
		"user_id":    callerID,
	})
}

// ListUserBookingsHandler handles GET /users/:user_id/bookings
func (h *BookingHandler) ListUserBookingsHandler(c *gin.Context) {
	userID := c.Param("user_id")
	status := model.BookingStatus(c.Query("status"))

	bookings, err := h.service.ListUserBookings(c.Request.Context(), userID, status)
	if err != nil {
		helpers.HandleServiceError(c, "ListUserBookingsHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBookingResponses(bookings), "bookings retrieved successfully")
	helpers.LogSuccess("ListUserBookingsHandler", "bookings retrieved successfully", map[string]any{
		"user_id": userID,
		"count":   len(bookings),
	})
}

// LeaderboardHandler handles GET /users/leaderboard
func (h *BookingHandler) LeaderboardHandler(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			helpers.HandleBindError(c, "LeaderboardHandler", rentalerrors.ErrInvalidRequest)
			return
		}
		limit = n
	}

	users, err := h.service.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		helpers.HandleServiceError(c, "LeaderboardHandler", err, nil)
		return
	}

	resp := make([]helpers.UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, helpers.ToUserResponse(u))
	}
	utils.JSONResponse(c, http.StatusOK, resp, "leaderboard retrieved successfully")
}

// ApproveBookingHandler handles POST /admin/bookings/:booking_id/approve
func (h *BookingHandler) ApproveBookingHandler(c *gin.Context) {
	h.moderate(c, "ApproveBookingHandler", h.service.ApproveBooking, "booking approved")
}

// RejectBookingHandler handles POST /admin/bookings/:booking_id/reject
func (h *BookingHandler) RejectBookingHandler(c *gin.Context) {
	h.moderate(c, "RejectBookingHandler", h.service.RejectBooking, "booking rejected")
}

// CompleteBookingHandler handles POST /admin/bookings/:booking_id/complete
func (h *BookingHandler) CompleteBookingHandler(c *gin.Context) {
	h.moderate(c, "CompleteBookingHandler", h.service.CompleteBooking, "ride completed")
}

func (h *BookingHandler) moderate(c *gin.Context, handlerName string, action func(context.Context, string) (model.Booking, error), message string) {
	bookingID := c.Param("booking_id")
	b, err := action(c.Request.Context(), bookingID)
	if err != nil {
		helpers.HandleServiceError(c, handlerName, err, map[string]any{"booking_id": bookingID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBookingResponse(b), message)
	helpers.LogSuccess(handlerName, message, map[string]any{
		"booking_id": bookingID,
		"status":     b.Status,
	})
}

// RateBookingHandler handles POST /admin/bookings/:booking_id/rate
func (h *BookingHandler) RateBookingHandler(c *gin.Context) {
	var req helpers.RatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RateBookingHandler", err)
		return
	}

	bookingID := c.Param("booking_id")
	user, err := h.service.RateBooking(c.Request.Context(), bookingID, booking.RatingInput{
		DrivingRating: req.DrivingRating,
		DamageFlag:    req.DamageFlag,
		RashFlag:      req.RashFlag,
		Notes:         req.Notes,
	})
	if err != nil {
		helpers.HandleServiceError(c, "RateBookingHandler", err, map[string]any{"booking_id": bookingID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToUserResponse(user), "rating recorded successfully")
	helpers.LogSuccess("RateBookingHandler", "rating recorded", map[string]any{
		"booking_id":  bookingID,
		"user_id":     user.UserID,
		"trust_score": user.TrustScore,
	})
}

// BlockUserHandler handles POST /admin/users/:user_id/block
func (h *BookingHandler) BlockUserHandler(c *gin.Context) {
	h.updateUser(c, "BlockUserHandler", h.service.BlockUser, "user blocked")
}

// UnblockUserHandler handles POST /admin/users/:user_id/unblock
func (h *BookingHandler) UnblockUserHandler(c *gin.Context) {
	h.updateUser(c, "UnblockUserHandler", h.service.UnblockUser, "user unblocked")
}

// ResyncUserTrustHandler handles POST /admin/users/:user_id/resync
func (h *BookingHandler) ResyncUserTrustHandler(c *gin.Context) {
	h.updateUser(c, "ResyncUserTrustHandler", h.service.ResyncUserTrust, "trust score recomputed")
}

func (h *BookingHandler) updateUser(c *gin.Context, handlerName string, action func(context.Context, string) (model.User, error), message string) {
	userID := c.Param("user_id")
	user, err := action(c.Request.Context(), userID)
	if err != nil {
		helpers.HandleServiceError(c, handlerName, err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToUserResponse(user), message)
	helpers.LogSuccess(handlerName, message, map[string]any{
		"user_id":     userID,
		"trust_score": user.TrustScore,
		"is_blocked":  user.IsBlocked,
	})
}
