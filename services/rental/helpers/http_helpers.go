package helpers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"rental-auction/internal/rentalerrors"
	"rental-auction/utils"

	"github.com/gin-gonic/gin"
)

// UserIDHeader carries the caller identity; authentication happens upstream
const UserIDHeader = "X-User-ID"

// ErrMissingCaller is returned when a request carries no caller identity
var ErrMissingCaller = errors.New("missing " + UserIDHeader + " header")

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// HandleServiceError maps err to an HTTP response and logs it with the given fields
func HandleServiceError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// CallerID returns the caller identity from the request header.
// When absent it writes a 401 response and returns false.
func CallerID(c *gin.Context, handlerName string) (string, bool) {
	id := strings.TrimSpace(c.GetHeader(UserIDHeader))
	if id == "" {
		utils.JSONError(c, http.StatusUnauthorized, ErrMissingCaller, "caller identity required")
		utils.Warn(handlerName+": missing caller identity", map[string]any{"path": c.Request.URL.Path})
		return "", false
	}
	return id, true
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, ErrMissingCaller):
		return http.StatusUnauthorized, "caller identity required"

	// validation
	case errors.Is(err, rentalerrors.ErrInvalidInterval):
		return http.StatusBadRequest, "invalid booking interval"
	case errors.Is(err, rentalerrors.ErrInvalidPrice):
		return http.StatusBadRequest, "invalid offer price"
	case errors.Is(err, rentalerrors.ErrInvalidRating):
		return http.StatusBadRequest, "invalid driving rating"
	case errors.Is(err, rentalerrors.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid request details"

	// eligibility and permission
	case errors.Is(err, rentalerrors.ErrNotEligible):
		return http.StatusForbidden, "account is not eligible for bookings at this time"
	case errors.Is(err, rentalerrors.ErrForbidden):
		return http.StatusForbidden, "operation not permitted"
	case errors.Is(err, rentalerrors.ErrCarUnavailable):
		return http.StatusConflict, "car not found or not available"

	// conflicts and invariants
	case errors.Is(err, rentalerrors.ErrHardConflict):
		return http.StatusConflict, "car is already booked for this time period"
	case errors.Is(err, rentalerrors.ErrInvalidTransition):
		return http.StatusConflict, "booking status does not allow this action"
	case errors.Is(err, rentalerrors.ErrAlreadyRated):
		return http.StatusConflict, "booking already rated"
	case errors.Is(err, rentalerrors.ErrAuctionInactive):
		return http.StatusConflict, "auction is no longer active"
	case errors.Is(err, rentalerrors.ErrAuctionClosed):
		return http.StatusConflict, "auction already closed"
	case errors.Is(err, rentalerrors.ErrDuplicateBid):
		return http.StatusConflict, "duplicate bid"

	// not found
	case errors.Is(err, rentalerrors.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, rentalerrors.ErrCarNotFound):
		return http.StatusNotFound, "car not found"
	case errors.Is(err, rentalerrors.ErrBookingNotFound):
		return http.StatusNotFound, "booking not found"
	case errors.Is(err, rentalerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, rentalerrors.ErrBidNotFound):
		return http.StatusNotFound, "bid not found"

	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
