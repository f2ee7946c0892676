package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"rental-auction/internal/config"
	model "rental-auction/internal/models"
	"rental-auction/internal/repository"
	"rental-auction/internal/server"
	"rental-auction/internal/trust"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// testClock is a clock the tests can move forward
type testClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

type testEnv struct {
	app    *server.App
	router *gin.Engine
	clock  *testClock
}

// SetupTestRouter wires the full application over a seeded in-memory repository.
func SetupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	repo.AddCar(model.Car{CarID: "car1", Model: "Corolla", IsActive: true})
	repo.AddCar(model.Car{CarID: "car2", Model: "City", IsActive: true})
	repo.AddCar(model.Car{CarID: "retired", Model: "Swift", IsActive: false})

	users := []model.User{
		{UserID: "admin", IsAdmin: true, AvgRating: 5, TotalRides: 10},
		{UserID: "alice", AvgRating: 4, TotalRides: 10},
		{UserID: "bob", AvgRating: 3, TotalRides: 40},
		{UserID: "carol", AvgRating: 2.5, TotalRides: 2},
		{UserID: "mallory"},
	}
	for _, u := range users {
		u.Username = u.UserID
		u.TrustScore = trust.Score(u.AvgRating, u.TotalRides, u.DamageCount, u.RashCount)
		repo.AddUser(u)
	}

	clock := &testClock{at: now}
	app, err := server.NewApp(config.Default(), repo, clock, prometheus.NewRegistry())
	require.NoError(t, err)

	return &testEnv{app: app, router: app.Router, clock: clock}
}

// ExecuteRequest executes an HTTP request as callerID and returns the response recorder.
func ExecuteRequest(t *testing.T, router *gin.Engine, method, url, callerID string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if callerID != "" {
		req.Header.Set("X-User-ID", callerID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response envelope
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url, callerID string, body any) (map[string]any, *httptest.ResponseRecorder) {
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := ExecuteRequest(t, router, method, url, callerID, reqBody)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

// data returns the envelope payload as an object
func data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	d, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response data should be an object: %v", resp)
	return d
}

func hours(h int) time.Time {
	return now.Add(time.Duration(h) * time.Hour)
}

func bookingBody(carID string, from, to, offer int) map[string]any {
	return map[string]any{
		"car_id":      carID,
		"start_time":  hours(from),
		"end_time":    hours(to),
		"offer_price": offer,
	}
}
