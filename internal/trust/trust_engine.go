package trust

import (
	"fmt"
	"math"

	"rental-auction/internal/config"
	model "rental-auction/internal/models"
	"rental-auction/internal/rentalerrors"
	"rental-auction/utils"
)

// Score weights applied to the user history components
const (
	ratingWeight = 20.0
	rideWeight   = 0.5
	damageWeight = 15.0
	rashWeight   = 10.0
)

// ratingSumTolerance bounds the float error of avg×rides against the integer rating total
const ratingSumTolerance = 1e-6

// Engine computes trust scores and applies the eligibility and blocking policy
type Engine struct {
	cfg config.TrustConfig
}

// NewEngine creates a trust engine using the given thresholds
func NewEngine(cfg config.TrustConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the thresholds the engine was built with
func (e *Engine) Config() config.TrustConfig {
	return e.cfg
}

// Score returns max(0, avg×20 + rides×0.5 − damage×15 − rash×10) rounded to two decimals
func Score(avgRating float64, totalRides, damageCount, rashCount int) float64 {
	raw := avgRating*ratingWeight +
		float64(totalRides)*rideWeight -
		float64(damageCount)*damageWeight -
		float64(rashCount)*rashWeight
	return round2(math.Max(0, raw))
}

// RecomputeFromHistory rebuilds every trust component of user from the full rating set.
// An empty history leaves the stored components untouched and only refreshes the score.
func (e *Engine) RecomputeFromHistory(user *model.User, ratings []model.Rating) error {
	for _, r := range ratings {
		if err := validateRating(r); err != nil {
			return err
		}
	}

	if len(ratings) > 0 {
		sum, damage, rash := 0, 0, 0
		for _, r := range ratings {
			sum += r.DrivingRating
			if r.DamageFlag {
				damage++
			}
			if r.RashFlag {
				rash++
			}
		}
		user.TotalRides = len(ratings)
		user.AvgRating = float64(sum) / float64(len(ratings))
		user.DamageCount = damage
		user.RashCount = rash
	}

	user.TrustScore = Score(user.AvgRating, user.TotalRides, user.DamageCount, user.RashCount)
	e.latchBlock(user, "recompute")
	return nil
}

// ApplyIncrementalRating folds one new rating into the running components and re-derives the score
func (e *Engine) ApplyIncrementalRating(user *model.User, rating model.Rating) error {
	if err := validateRating(rating); err != nil {
		return err
	}

	// Ratings are whole numbers, so the running total is recovered exactly before adding the new one.
	// This keeps the mean bit-identical to float64(sum)/n and the rounded score equal to a full recompute.
	sum := user.AvgRating * float64(user.TotalRides)
	if whole := math.Round(sum); math.Abs(sum-whole) < ratingSumTolerance {
		sum = whole
	}
	user.AvgRating = (sum + float64(rating.DrivingRating)) / float64(user.TotalRides+1)
	user.TotalRides++
	if rating.DamageFlag {
		user.DamageCount++
	}
	if rating.RashFlag {
		user.RashCount++
	}

	user.TrustScore = Score(user.AvgRating, user.TotalRides, user.DamageCount, user.RashCount)
	e.latchBlock(user, "rating")
	return nil
}

// ApplyCancellationPenalty lowers the score directly without touching the history components.
// The next recompute or rating derives the score from the components again.
func (e *Engine) ApplyCancellationPenalty(user *model.User, penalty float64) {
	user.TrustScore = round2(math.Max(0, user.TrustScore-penalty))
	e.latchBlock(user, "cancellation_penalty")
}

// IsEligibleForAuction reports whether the user's current score qualifies for trust-weighted scoring
func (e *Engine) IsEligibleForAuction(user model.User) bool {
	return e.IsEligibleSnapshot(user.TrustScore)
}

// IsEligibleSnapshot applies the auction eligibility threshold to a captured score
func (e *Engine) IsEligibleSnapshot(score float64) bool {
	return score >= e.cfg.TrustThreshold
}

// ShouldAutoReject reports whether booking requests from user are refused outright
func (e *Engine) ShouldAutoReject(user model.User) bool {
	return user.IsBlocked || user.TrustScore < e.cfg.AutoRejectThreshold
}

// latchBlock sets IsBlocked once the score drops below the auto-block threshold. Never clears it.
func (e *Engine) latchBlock(user *model.User, cause string) {
	if user.IsBlocked || user.TrustScore >= e.cfg.AutoBlockThreshold {
		return
	}
	user.IsBlocked = true
	utils.Warn("trust: user auto-blocked", map[string]any{
		"user_id":     user.UserID,
		"trust_score": user.TrustScore,
		"threshold":   e.cfg.AutoBlockThreshold,
		"cause":       cause,
	})
}

func validateRating(r model.Rating) error {
	if r.DrivingRating < 1 || r.DrivingRating > 5 {
		return fmt.Errorf("trust: %w - got %d", rentalerrors.ErrInvalidRating, r.DrivingRating)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
