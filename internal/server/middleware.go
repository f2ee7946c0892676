package server

import (
	"context"
	"net/http"
	"time"

	model "rental-auction/internal/models"
	"rental-auction/internal/rentalerrors"
	"rental-auction/services/rental/helpers"
	"rental-auction/utils"

	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	utils.Info("HTTP Request", map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"caller":  c.GetHeader(helpers.UserIDHeader),
		"latency": time.Since(start).String(),
	})
}

// UserLookup resolves the caller of an admin request
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (model.User, error)
}

// RequireAdmin aborts requests whose caller is missing or not an administrator
func RequireAdmin(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID, ok := helpers.CallerID(c, "RequireAdmin")
		if !ok {
			c.Abort()
			return
		}

		user, err := users.GetUser(c.Request.Context(), callerID)
		if err != nil || !user.IsAdmin {
			utils.JSONError(c, http.StatusForbidden, rentalerrors.ErrForbidden, "operation not permitted")
			utils.Warn("RequireAdmin: admin access denied", map[string]any{
				"user_id": callerID,
				"path":    c.Request.URL.Path,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
