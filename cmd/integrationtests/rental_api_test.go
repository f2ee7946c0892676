package integrationtests

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// RequestBookingHandler Tests
func TestRequestBooking(t *testing.T) {
	tests := []struct {
		name       string
		callerID   string
		request    any
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "Valid_Booking",
			callerID:   "alice",
			request:    bookingBody("car1", 48, 50, 100),
			wantStatus: http.StatusCreated,
			wantMsg:    "booking request received",
		},
		{
			name:       "Invalid_JSON",
			callerID:   "alice",
			request:    []byte("{car_id: 'missing quotes'}"),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid request payload",
		},
		{
			name:       "Reversed_Interval",
			callerID:   "alice",
			request:    bookingBody("car1", 50, 48, 100),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid booking interval",
		},
		{
			name:       "Missing_Caller",
			request:    bookingBody("car1", 48, 50, 100),
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "caller identity required",
		},
		{
			name:       "Unknown_User",
			callerID:   "ghost",
			request:    bookingBody("car1", 48, 50, 100),
			wantStatus: http.StatusNotFound,
			wantMsg:    "user not found",
		},
		{
			name:       "Low_Trust_User",
			callerID:   "mallory",
			request:    bookingBody("car1", 48, 50, 100),
			wantStatus: http.StatusForbidden,
			wantMsg:    "not eligible",
		},
		{
			name:       "Inactive_Car",
			callerID:   "alice",
			request:    bookingBody("retired", 48, 50, 100),
			wantStatus: http.StatusConflict,
			wantMsg:    "car not found or not available",
		},
		{
			name:       "Unknown_Car",
			callerID:   "alice",
			request:    bookingBody("nope", 48, 50, 100),
			wantStatus: http.StatusConflict,
			wantMsg:    "car not found or not available",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := SetupTestRouter(t)
			resp, w := ExecuteRequestAndParse(t, env.router, http.MethodPost, "/bookings", tt.callerID, tt.request)
			require.Equal(t, tt.wantStatus, w.Code)
			require.Contains(t, resp["message"], tt.wantMsg)

			if tt.wantStatus == http.StatusCreated {
				d := data(t, resp)
				require.NotEmpty(t, d["booking_id"])
				require.Equal(t, "pending", d["status"])
				require.Equal(t, tt.callerID, d["user_id"])

				_, err := time.Parse(time.RFC3339, d["created_at"].(string))
				require.NoError(t, err)
			}
		})
	}
}

// Full lifecycle of an uncontested booking
func TestBookingLifecycle(t *testing.T) {
	env := SetupTestRouter(t)

	resp, w := ExecuteRequestAndParse(t, env.router, http.MethodPost, "/bookings", "alice", bookingBody("car1", 48, 50, 100))
	require.Equal(t, http.StatusCreated, w.Code)
	bookingID := data(t, resp)["booking_id"].(string)

	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/admin/bookings/"+bookingID+"/approve", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "confirmed", data(t, resp)["status"])

	// rating before the ride is over is refused
	_, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/admin/bookings/"+bookingID+"/rate", "admin", map[string]any{"driving_rating": 5})
	require.Equal(t, http.StatusConflict, w.Code)

	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/admin/bookings/"+bookingID+"/complete", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "completed", data(t, resp)["status"])

	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/admin/bookings/"+bookingID+"/rate", "admin", map[string]any{"driving_rating": 5})
	require.Equal(t, http.StatusCreated, w.Code)
	user := data(t, resp)
	require.Equal(t, 11.0, user["total_rides"])
	require.Greater(t, user["trust_score"].(float64), 85.0)

	_, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/admin/bookings/"+bookingID+"/rate", "admin", map[string]any{"driving_rating": 1})
	require.Equal(t, http.StatusConflict, w.Code)

	// the owner sees the booking, a stranger does not
	_, w = ExecuteRequestAndParse(t, env.router, http.MethodGet, "/bookings/"+bookingID, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, w = ExecuteRequestAndParse(t, env.router, http.MethodGet, "/bookings/"+bookingID, "bob", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	_, w = ExecuteRequestAndParse(t, env.router, http.MethodGet, "/bookings/"+bookingID, "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodGet, "/users/alice/bookings?status=completed", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp["data"], 1)
}

// Overlapping requests are folded into an auction that the highest combined score wins
func TestCompetingBookingsAuction(t *testing.T) {
	env := SetupTestRouter(t)

	resp, w := ExecuteRequestAndParse(t, env.router, http.MethodPost, "/bookings", "alice", bookingBody("car1", 48, 50, 100))
	require.Equal(t, http.StatusCreated, w.Code)
	aliceBooking := data(t, resp)["booking_id"].(string)

	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/bookings", "bob", bookingBody("car1", 49, 51, 120))
	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, resp["message"], "Competition detected!")
	bob := data(t, resp)
	require.Equal(t, "competing", bob["status"])
	auctionID := bob["auction_id"].(string)
	require.NotEmpty(t, auctionID)

	// the earlier booking joined the auction too
	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodGet, "/bookings/"+aliceBooking, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "competing", data(t, resp)["status"])

	// a third renter joins through the bid endpoint
	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/auctions/"+auctionID+"/bids", "carol", map[string]any{"offer_price": 200})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, auctionID, data(t, resp)["auction_id"])

	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodGet, "/auctions/"+auctionID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	details := data(t, resp)
	require.Equal(t, "active", details["status"])
	require.Equal(t, 3.0, details["bid_count"])
	require.Equal(t, 200.0, details["highest_offer"])

	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodGet, "/auctions?status=active", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp["data"], 1)

	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodGet, "/users/alice/auctions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp["data"], 1)

	// only administrators close auctions
	_, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/admin/auctions/"+auctionID+"/close", "alice", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/admin/auctions/"+auctionID+"/close", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "auction closed", resp["message"])
	closed := data(t, resp)
	require.Equal(t, "bob", closed["winner_id"])
	require.Equal(t, 3.0, closed["bid_count"])

	_, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/admin/auctions/"+auctionID+"/close", "admin", nil)
	require.Equal(t, http.StatusConflict, w.Code)

	// exactly one booking won the car
	confirmed := 0
	for _, user := range []string{"alice", "bob", "carol"} {
		resp, w = ExecuteRequestAndParse(t, env.router, http.MethodGet, "/users/"+user+"/bookings", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		for _, b := range resp["data"].([]any) {
			switch status := b.(map[string]any)["status"]; status {
			case "confirmed":
				confirmed++
				require.Equal(t, "bob", user)
			default:
				require.Equal(t, "rejected", status)
			}
		}
	}
	require.Equal(t, 1, confirmed)

	// the won slot now blocks new requests outright
	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/bookings", "carol", bookingBody("car1", 50, 52, 500))
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, resp["message"], "already booked")
}

// A hard conflict leaves nothing behind
func TestHardConflict(t *testing.T) {
	env := SetupTestRouter(t)

	resp, w := ExecuteRequestAndParse(t, env.router, http.MethodPost, "/bookings", "alice", bookingBody("car1", 11, 13, 100))
	require.Equal(t, http.StatusCreated, w.Code)
	bookingID := data(t, resp)["booking_id"].(string)

	_, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/admin/bookings/"+bookingID+"/approve", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/bookings", "bob", bookingBody("car1", 10, 12, 300))
	require.Equal(t, http.StatusConflict, w.Code)

	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodGet, "/users/bob/bookings", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, resp["data"])

	// the same car on a different day is free
	_, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/bookings", "bob", bookingBody("car1", 13, 15, 300))
	require.Equal(t, http.StatusCreated, w.Code)
}

// Cancelling a confirmed booking close to its start costs trust
func TestLateCancellation(t *testing.T) {
	tests := []struct {
		name      string
		from, to  int
		wantTrust float64
	}{
		{name: "Within_Window", from: 2, to: 4, wantTrust: 80},
		{name: "Outside_Window", from: 48, to: 50, wantTrust: 85},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := SetupTestRouter(t)

			resp, w := ExecuteRequestAndParse(t, env.router, http.MethodPost, "/bookings", "alice", bookingBody("car2", tt.from, tt.to, 100))
			require.Equal(t, http.StatusCreated, w.Code)
			bookingID := data(t, resp)["booking_id"].(string)

			_, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/admin/bookings/"+bookingID+"/approve", "admin", nil)
			require.Equal(t, http.StatusOK, w.Code)

			_, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/bookings/"+bookingID+"/cancel", "bob", nil)
			require.Equal(t, http.StatusForbidden, w.Code)

			resp, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/bookings/"+bookingID+"/cancel", "alice", nil)
			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, "cancelled", data(t, resp)["status"])

			require.Equal(t, tt.wantTrust, trustOf(t, env, "alice"))
		})
	}
}

// Expired auctions are closed by the sweeper path
func TestAuctionExpiry(t *testing.T) {
	env := SetupTestRouter(t)

	_, w := ExecuteRequestAndParse(t, env.router, http.MethodPost, "/bookings", "alice", bookingBody("car1", 48, 50, 100))
	require.Equal(t, http.StatusCreated, w.Code)
	resp, w := ExecuteRequestAndParse(t, env.router, http.MethodPost, "/bookings", "carol", bookingBody("car1", 48, 50, 90))
	require.Equal(t, http.StatusCreated, w.Code)
	auctionID := data(t, resp)["auction_id"].(string)

	n, err := env.app.Auctions.CloseExpired(t.Context())
	require.NoError(t, err)
	require.Zero(t, n)

	env.clock.Advance(25 * time.Hour)
	n, err = env.app.Auctions.CloseExpired(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodGet, "/auctions/"+auctionID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	details := data(t, resp)
	require.Equal(t, "closed", details["status"])
	require.Equal(t, "alice", details["winner_id"])
}

// Admin endpoints check the caller
func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := SetupTestRouter(t)

	tests := []struct {
		name       string
		callerID   string
		wantStatus int
	}{
		{name: "Missing_Caller", wantStatus: http.StatusUnauthorized},
		{name: "Unknown_Caller", callerID: "ghost", wantStatus: http.StatusForbidden},
		{name: "Regular_User", callerID: "bob", wantStatus: http.StatusForbidden},
		{name: "Admin", callerID: "admin", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, w := ExecuteRequestAndParse(t, env.router, http.MethodPost, "/admin/users/carol/resync", tt.callerID, nil)
			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

// Blocking a user stops new requests until unblocked
func TestBlockAndUnblock(t *testing.T) {
	env := SetupTestRouter(t)

	resp, w := ExecuteRequestAndParse(t, env.router, http.MethodPost, "/admin/users/bob/block", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, data(t, resp)["is_blocked"])

	_, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/bookings", "bob", bookingBody("car1", 48, 50, 100))
	require.Equal(t, http.StatusForbidden, w.Code)

	_, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/admin/users/bob/unblock", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/bookings", "bob", bookingBody("car1", 48, 50, 100))
	require.Equal(t, http.StatusCreated, w.Code)
}

// Leaderboard ranks users by trust score
func TestLeaderboard(t *testing.T) {
	env := SetupTestRouter(t)

	resp, w := ExecuteRequestAndParse(t, env.router, http.MethodGet, "/users/leaderboard?limit=3", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var ids []string
	for _, u := range resp["data"].([]any) {
		ids = append(ids, u.(map[string]any)["user_id"].(string))
	}
	require.Equal(t, []string{"admin", "alice", "bob"}, ids)

	_, w = ExecuteRequestAndParse(t, env.router, http.MethodGet, "/users/leaderboard?limit=-1", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

// Metrics are exposed in the Prometheus text format
func TestMetricsEndpoint(t *testing.T) {
	env := SetupTestRouter(t)

	_, w := ExecuteRequestAndParse(t, env.router, http.MethodPost, "/bookings", "alice", bookingBody("car1", 48, 50, 100))
	require.Equal(t, http.StatusCreated, w.Code)
	_, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/bookings", "bob", bookingBody("car1", 48, 50, 100))
	require.Equal(t, http.StatusCreated, w.Code)

	w = ExecuteRequest(t, env.router, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.True(t, strings.Contains(body, `rental_booking_requests_total{outcome="granted"} 1`), body)
	require.True(t, strings.Contains(body, `rental_booking_requests_total{outcome="auction"} 1`), body)
	require.Contains(t, body, "rental_auctions_opened_total 1")
}

func trustOf(t *testing.T, env *testEnv, userID string) float64 {
	t.Helper()
	resp, w := ExecuteRequestAndParse(t, env.router, http.MethodGet, fmt.Sprintf("/users/leaderboard?limit=%d", 50), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	for _, u := range resp["data"].([]any) {
		user := u.(map[string]any)
		if user["user_id"] == userID {
			return user["trust_score"].(float64)
		}
	}
	t.Fatalf("user %s not on leaderboard", userID)
	return 0
}
