package booking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"rental-auction/internal/auction"
	"rental-auction/internal/conflict"
	"rental-auction/internal/metrics"
	model "rental-auction/internal/models"
	"rental-auction/internal/rentalerrors"
	"rental-auction/internal/repository"
	"rental-auction/internal/trust"
	"rental-auction/utils"
)

// Leaderboard size bounds
const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 50
)

// Coordinator is the entry point for booking requests and cancellations.
// It decides between plain pending bookings, auctions and hard rejection.
type Coordinator struct {
	store    repository.Store
	trust    *trust.Engine
	auctions *auction.Engine
	clock    utils.Clock
	metrics  metrics.Recorder
}

// NewCoordinator creates a new booking Coordinator instance
func NewCoordinator(store repository.Store, trustEngine *trust.Engine, auctions *auction.Engine, clock utils.Clock, rec metrics.Recorder) *Coordinator {
	if rec == nil {
		rec = metrics.NopRecorder{}
	}
	return &Coordinator{
		store:    store,
		trust:    trustEngine,
		auctions: auctions,
		clock:    clock,
		metrics:  rec,
	}
}

// Outcome is the result of a booking request
type Outcome struct {
	Booking   model.Booking `json:"booking"`
	AuctionID string        `json:"auction_id,omitempty"`
	Advisory  string        `json:"advisory,omitempty"`
}

// RatingInput carries the post-ride assessment of a renter
type RatingInput struct {
	DrivingRating int    `json:"driving_rating"`
	DamageFlag    bool   `json:"damage_flag"`
	RashFlag      bool   `json:"rash_flag"`
	Notes         string `json:"notes"`
}

// RequestBooking records a booking request. Requests that overlap other pending or competing
// bookings for the car are folded, together with those bookings, into an auction; the
// advisory message then tells the caller which auction they joined.
func (c *Coordinator) RequestBooking(ctx context.Context, userID, carID string, interval model.Interval, offerPrice float64) (Outcome, error) {
	if err := validateRequest(userID, carID, interval, offerPrice); err != nil {
		c.metrics.BookingRequested(metrics.OutcomeInvalid)
		return Outcome{}, err
	}

	var (
		outcome        Outcome
		auctionCreated bool
	)
	err := c.store.Atomically(ctx, func(tx repository.Tx) error {
		user, err := tx.GetUser(userID)
		if err != nil {
			return err
		}
		if c.trust.ShouldAutoReject(user) {
			return rentalerrors.ErrNotEligible
		}

		car, err := tx.GetCar(carID)
		if err != nil {
			if errors.Is(err, rentalerrors.ErrCarNotFound) {
				return fmt.Errorf("%w: %w", rentalerrors.ErrCarUnavailable, err)
			}
			return err
		}
		if !car.IsActive {
			return rentalerrors.ErrCarUnavailable
		}

		if blocking, found, err := conflict.FindConfirmedOverlap(tx, carID, interval, ""); err != nil {
			return err
		} else if found {
			return fmt.Errorf("%w - held by booking %s", rentalerrors.ErrHardConflict, blocking.BookingID)
		}

		now := c.clock.Now()
		booking := model.Booking{
			BookingID:  utils.GenerateID(),
			UserID:     userID,
			CarID:      carID,
			Interval:   interval,
			OfferPrice: offerPrice,
			Status:     model.BookingPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.SaveBooking(booking); err != nil {
			return err
		}

		conflicts, err := conflict.FindOverlapping(tx, carID, interval, booking.BookingID)
		if err != nil {
			return err
		}
		if len(conflicts) == 0 {
			outcome.Booking = booking
			return nil
		}

		a, created, err := c.auctions.AuctionForConflicts(tx, carID, interval, conflicts)
		if err != nil {
			return err
		}
		auctionCreated = created

		for _, other := range conflicts {
			// a booking superseded earlier in this loop is no longer contestable
			current, err := tx.GetBooking(other.BookingID)
			if err != nil {
				return err
			}
			if current.Status != model.BookingPending && current.Status != model.BookingCompeting {
				continue
			}
			owner, err := tx.GetUser(current.UserID)
			if err != nil {
				return err
			}
			if _, err := c.auctions.PlaceOrUpdateBid(tx, a, current, owner); err != nil {
				return err
			}
		}
		if _, err := c.auctions.PlaceOrUpdateBid(tx, a, booking, user); err != nil {
			return err
		}

		folded, err := tx.GetBooking(booking.BookingID)
		if err != nil {
			return err
		}
		outcome.Booking = folded
		outcome.AuctionID = a.AuctionID
		outcome.Advisory = fmt.Sprintf("Competition detected! Your booking is now in auction %s. Highest trust and offer wins.", a.AuctionID)
		return nil
	})
	if err != nil {
		c.metrics.BookingRequested(outcomeFor(err))
		return Outcome{}, fmt.Errorf("service: failed to request booking of car %s by user %s: %w", carID, userID, err)
	}

	if outcome.AuctionID == "" {
		c.metrics.BookingRequested(metrics.OutcomeGranted)
	} else {
		c.metrics.BookingRequested(metrics.OutcomeAuction)
	}
	if auctionCreated {
		c.metrics.AuctionOpened()
		utils.Info("service: auction opened", map[string]any{
			"auction_id": outcome.AuctionID,
			"car_id":     carID,
		})
	}
	utils.Info("service: booking requested", map[string]any{
		"booking_id": outcome.Booking.BookingID,
		"user_id":    userID,
		"car_id":     carID,
		"status":     outcome.Booking.Status,
		"auction_id": outcome.AuctionID,
	})
	return outcome, nil
}

func validateRequest(userID, carID string, interval model.Interval, offerPrice float64) error {
	if userID == "" || carID == "" {
		return fmt.Errorf("service: %w - missing userID or carID", rentalerrors.ErrInvalidRequest)
	}
	if !interval.Valid() {
		return fmt.Errorf("service: %w", rentalerrors.ErrInvalidInterval)
	}
	if offerPrice <= 0 || math.IsNaN(offerPrice) || math.IsInf(offerPrice, 0) {
		return fmt.Errorf("service: %w", rentalerrors.ErrInvalidPrice)
	}
	return nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, rentalerrors.ErrHardConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, rentalerrors.ErrNotEligible), errors.Is(err, rentalerrors.ErrCarUnavailable):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeInvalid
	}
}

// CancelBooking cancels a booking on behalf of its owner. Cancelling a confirmed booking
// less than the late-cancel window before its start lowers the owner's trust score in the
// same unit of work.
func (c *Coordinator) CancelBooking(ctx context.Context, bookingID, userID string) (model.Booking, error) {
	if bookingID == "" || userID == "" {
		return model.Booking{}, fmt.Errorf("service: %w - missing bookingID or userID", rentalerrors.ErrInvalidRequest)
	}

	cfg := c.trust.Config()
	var (
		cancelled model.Booking
		penalized bool
		score     float64
	)
	err := c.store.Atomically(ctx, func(tx repository.Tx) error {
		b, err := tx.GetBooking(bookingID)
		if err != nil {
			return err
		}
		if b.UserID != userID {
			return rentalerrors.ErrForbidden
		}
		next, ok := model.NextBookingStatus(b.Status, model.ActionCancel)
		if !ok {
			return fmt.Errorf("%w - booking is %s", rentalerrors.ErrInvalidTransition, b.Status)
		}

		now := c.clock.Now()
		if b.Status == model.BookingConfirmed && b.Interval.Start.Sub(now) < cfg.LateCancelWindow() {
			user, err := tx.GetUser(userID)
			if err != nil {
				return err
			}
			c.trust.ApplyCancellationPenalty(&user, cfg.LateCancelPenalty)
			if err := tx.SaveUser(user); err != nil {
				return err
			}
			penalized = true
			score = user.TrustScore
		}

		b.Status = next
		b.UpdatedAt = now
		if err := tx.SaveBooking(b); err != nil {
			return err
		}
		cancelled = b
		return nil
	})
	if err != nil {
		return model.Booking{}, fmt.Errorf("service: failed to cancel booking %s: %w", bookingID, err)
	}

	c.metrics.BookingCancelled(penalized)
	fields := map[string]any{
		"booking_id": bookingID,
		"user_id":    userID,
		"penalized":  penalized,
	}
	if penalized {
		fields["trust_score"] = score
		utils.Warn("service: late cancellation penalized", fields)
	} else {
		utils.Info("service: booking cancelled", fields)
	}
	return cancelled, nil
}

// ApproveBooking confirms a pending booking after re-checking that no confirmed booking overlaps it
func (c *Coordinator) ApproveBooking(ctx context.Context, bookingID string) (model.Booking, error) {
	return c.moderate(ctx, bookingID, model.ActionApprove, func(tx repository.Tx, b model.Booking) error {
		if _, found, err := conflict.FindConfirmedOverlap(tx, b.CarID, b.Interval, b.BookingID); err != nil {
			return err
		} else if found {
			return rentalerrors.ErrHardConflict
		}
		return nil
	})
}

// RejectBooking rejects a pending booking
func (c *Coordinator) RejectBooking(ctx context.Context, bookingID string) (model.Booking, error) {
	return c.moderate(ctx, bookingID, model.ActionReject, nil)
}

// CompleteBooking marks a confirmed booking as ridden
func (c *Coordinator) CompleteBooking(ctx context.Context, bookingID string) (model.Booking, error) {
	return c.moderate(ctx, bookingID, model.ActionComplete, nil)
}

// moderate applies an admin action to a booking, running check first when given
func (c *Coordinator) moderate(ctx context.Context, bookingID string, action model.BookingAction, check func(repository.Tx, model.Booking) error) (model.Booking, error) {
	if bookingID == "" {
		return model.Booking{}, fmt.Errorf("service: %w - empty booking ID", rentalerrors.ErrInvalidRequest)
	}

	var updated model.Booking
	err := c.store.Atomically(ctx, func(tx repository.Tx) error {
		b, err := tx.GetBooking(bookingID)
		if err != nil {
			return err
		}
		next, ok := model.NextBookingStatus(b.Status, action)
		if !ok {
			return fmt.Errorf("%w - cannot %s a %s booking", rentalerrors.ErrInvalidTransition, action, b.Status)
		}
		if check != nil {
			if err := check(tx, b); err != nil {
				return err
			}
		}
		b.Status = next
		b.UpdatedAt = c.clock.Now()
		if err := tx.SaveBooking(b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return model.Booking{}, fmt.Errorf("service: failed to %s booking %s: %w", action, bookingID, err)
	}

	utils.Info("service: booking moderated", map[string]any{
		"booking_id": bookingID,
		"action":     action,
		"status":     updated.Status,
	})
	return updated, nil
}

// RateBooking records the post-ride rating of a completed booking and folds it into the
// renter's trust score. Each booking can be rated once.
func (c *Coordinator) RateBooking(ctx context.Context, bookingID string, input RatingInput) (model.User, error) {
	if bookingID == "" {
		return model.User{}, fmt.Errorf("service: %w - empty booking ID", rentalerrors.ErrInvalidRequest)
	}

	var rated model.User
	err := c.store.Atomically(ctx, func(tx repository.Tx) error {
		b, err := tx.GetBooking(bookingID)
		if err != nil {
			return err
		}
		if b.Status != model.BookingCompleted {
			return fmt.Errorf("%w - only completed bookings can be rated, booking is %s", rentalerrors.ErrInvalidTransition, b.Status)
		}

		rating := model.Rating{
			RatingID:      utils.GenerateID(),
			BookingID:     b.BookingID,
			UserID:        b.UserID,
			DrivingRating: input.DrivingRating,
			DamageFlag:    input.DamageFlag,
			RashFlag:      input.RashFlag,
			Notes:         input.Notes,
			CreatedAt:     c.clock.Now(),
		}

		user, err := tx.GetUser(b.UserID)
		if err != nil {
			return err
		}
		if err := c.trust.ApplyIncrementalRating(&user, rating); err != nil {
			return err
		}
		if err := tx.InsertRating(rating); err != nil {
			return err
		}
		if err := tx.SaveUser(user); err != nil {
			return err
		}
		rated = user
		return nil
	})
	if err != nil {
		return model.User{}, fmt.Errorf("service: failed to rate booking %s: %w", bookingID, err)
	}

	utils.Info("service: booking rated", map[string]any{
		"booking_id":  bookingID,
		"user_id":     rated.UserID,
		"rating":      input.DrivingRating,
		"trust_score": rated.TrustScore,
	})
	return rated, nil
}

// ResyncUserTrust rebuilds a user's trust components from every stored rating
func (c *Coordinator) ResyncUserTrust(ctx context.Context, userID string) (model.User, error) {
	return c.updateUser(ctx, userID, "resync", func(tx repository.Tx, user *model.User) error {
		ratings, err := tx.ListRatingsByUser(user.UserID)
		if err != nil {
			return err
		}
		return c.trust.RecomputeFromHistory(user, ratings)
	})
}

// BlockUser bars a user from new bookings
func (c *Coordinator) BlockUser(ctx context.Context, userID string) (model.User, error) {
	return c.updateUser(ctx, userID, "block", func(_ repository.Tx, user *model.User) error {
		user.IsBlocked = true
		return nil
	})
}

// UnblockUser clears the blocked flag, including one latched by the trust engine
func (c *Coordinator) UnblockUser(ctx context.Context, userID string) (model.User, error) {
	return c.updateUser(ctx, userID, "unblock", func(_ repository.Tx, user *model.User) error {
		user.IsBlocked = false
		return nil
	})
}

func (c *Coordinator) updateUser(ctx context.Context, userID, op string, mutate func(repository.Tx, *model.User) error) (model.User, error) {
	if userID == "" {
		return model.User{}, fmt.Errorf("service: %w - empty user ID", rentalerrors.ErrInvalidRequest)
	}

	var updated model.User
	err := c.store.Atomically(ctx, func(tx repository.Tx) error {
		user, err := tx.GetUser(userID)
		if err != nil {
			return err
		}
		if err := mutate(tx, &user); err != nil {
			return err
		}
		if err := tx.SaveUser(user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return model.User{}, fmt.Errorf("service: failed to %s user %s: %w", op, userID, err)
	}

	utils.Info("service: user updated", map[string]any{
		"user_id":     userID,
		"op":          op,
		"trust_score": updated.TrustScore,
		"is_blocked":  updated.IsBlocked,
	})
	return updated, nil
}

// GetUser returns a user by ID
func (c *Coordinator) GetUser(ctx context.Context, userID string) (model.User, error) {
	if userID == "" {
		return model.User{}, fmt.Errorf("service: %w - empty user ID", rentalerrors.ErrInvalidRequest)
	}

	var user model.User
	err := c.store.View(ctx, func(tx repository.Tx) error {
		var err error
		user, err = tx.GetUser(userID)
		return err
	})
	if err != nil {
		return model.User{}, fmt.Errorf("service: failed to get user %s: %w", userID, err)
	}
	return user, nil
}

// GetBooking returns a booking by ID
func (c *Coordinator) GetBooking(ctx context.Context, bookingID string) (model.Booking, error) {
	if bookingID == "" {
		return model.Booking{}, fmt.Errorf("service: %w - empty booking ID", rentalerrors.ErrInvalidRequest)
	}

	var booking model.Booking
	err := c.store.View(ctx, func(tx repository.Tx) error {
		var err error
		booking, err = tx.GetBooking(bookingID)
		return err
	})
	if err != nil {
		return model.Booking{}, fmt.Errorf("service: failed to get booking %s: %w", bookingID, err)
	}
	return booking, nil
}

// ListUserBookings returns a user's bookings, newest first, optionally filtered by status
func (c *Coordinator) ListUserBookings(ctx context.Context, userID string, status model.BookingStatus) ([]model.Booking, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", rentalerrors.ErrInvalidRequest)
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("service: %w - unknown status %q", rentalerrors.ErrInvalidRequest, status)
	}

	out := make([]model.Booking, 0)
	err := c.store.View(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetUser(userID); err != nil {
			return err
		}
		bookings, err := tx.ListBookingsByUser(userID)
		if err != nil {
			return err
		}
		for i := len(bookings) - 1; i >= 0; i-- {
			if status == "" || bookings[i].Status == status {
				out = append(out, bookings[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service: failed to list bookings for user %s: %w", userID, err)
	}
	return out, nil
}

// Leaderboard returns up to limit users ordered by trust score, highest first.
// A non-positive limit falls back to DefaultLeaderboardLimit.
func (c *Coordinator) Leaderboard(ctx context.Context, limit int) ([]model.User, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}

	var users []model.User
	err := c.store.View(ctx, func(tx repository.Tx) error {
		var err error
		users, err = tx.ListUsers()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service: failed to build leaderboard: %w", err)
	}

	sort.SliceStable(users, func(i, j int) bool {
		return users[i].TrustScore > users[j].TrustScore
	})
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}
