package trust

import (
	"errors"
	"math/rand"
	"testing"

	"rental-auction/internal/config"
	model "rental-auction/internal/models"
	"rental-auction/internal/rentalerrors"

	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(config.Default().Trust)
}

func rating(value int, damage, rash bool) model.Rating {
	return model.Rating{DrivingRating: value, DamageFlag: damage, RashFlag: rash}
}

// Tests Score
func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		avg    float64
		rides  int
		damage int
		rash   int
		want   float64
	}{
		{name: "new_user", avg: 0, rides: 0, want: 0},
		{name: "perfect_driver", avg: 5, rides: 20, want: 110},
		{name: "average_with_incidents", avg: 4, rides: 10, damage: 1, rash: 1, want: 60},
		{name: "floored_at_zero", avg: 1, rides: 2, damage: 3, rash: 2, want: 0},
		{name: "fractional_average", avg: 10.0 / 3.0, rides: 3, want: 68.17},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Score(tc.avg, tc.rides, tc.damage, tc.rash))
		})
	}
}

// Score never goes negative for any component combination
func TestScore_NeverNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		avg := rng.Float64() * 5
		score := Score(avg, rng.Intn(200), rng.Intn(20), rng.Intn(20))
		require.GreaterOrEqual(t, score, 0.0)
	}
}

func TestEngine_RecomputeFromHistory(t *testing.T) {
	engine := newTestEngine()

	t.Run("rebuilds_components", func(t *testing.T) {
		user := model.User{UserID: "u1", TotalRides: 99, AvgRating: 1}
		ratings := []model.Rating{rating(5, false, false), rating(4, true, false), rating(3, false, true)}

		require.NoError(t, engine.RecomputeFromHistory(&user, ratings))
		require.Equal(t, 3, user.TotalRides)
		require.InDelta(t, 4.0, user.AvgRating, 1e-9)
		require.Equal(t, 1, user.DamageCount)
		require.Equal(t, 1, user.RashCount)
		require.Equal(t, 80+1.5-15-10, user.TrustScore)
		require.False(t, user.IsBlocked)
	})

	t.Run("empty_history_keeps_components", func(t *testing.T) {
		user := model.User{UserID: "u2", TotalRides: 4, AvgRating: 4.5, TrustScore: 1}
		require.NoError(t, engine.RecomputeFromHistory(&user, nil))
		require.Equal(t, 4, user.TotalRides)
		require.Equal(t, 92.0, user.TrustScore)
	})

	t.Run("invalid_rating", func(t *testing.T) {
		user := model.User{UserID: "u3", TrustScore: 50}
		err := engine.RecomputeFromHistory(&user, []model.Rating{rating(6, false, false)})
		require.True(t, errors.Is(err, rentalerrors.ErrInvalidRating))
		require.Equal(t, 50.0, user.TrustScore)
	})
}

func TestEngine_ApplyIncrementalRating(t *testing.T) {
	engine := newTestEngine()

	user := model.User{UserID: "u1", TotalRides: 2, AvgRating: 4, TrustScore: Score(4, 2, 0, 0)}
	require.NoError(t, engine.ApplyIncrementalRating(&user, rating(1, true, false)))

	require.Equal(t, 3, user.TotalRides)
	require.InDelta(t, 3.0, user.AvgRating, 1e-9)
	require.Equal(t, 1, user.DamageCount)
	require.Equal(t, 0, user.RashCount)
	require.Equal(t, 60+1.5-15, user.TrustScore)

	err := engine.ApplyIncrementalRating(&user, rating(0, false, false))
	require.True(t, errors.Is(err, rentalerrors.ErrInvalidRating))
	require.Equal(t, 3, user.TotalRides)
}

// repeat returns n copies of a clean rating of value
func repeat(value, n int) []model.Rating {
	out := make([]model.Rating, n)
	for i := range out {
		out[i] = rating(value, false, false)
	}
	return out
}

// Applying ratings one at a time in any order must match a full recompute
func TestEngine_IncrementalMatchesRecompute(t *testing.T) {
	engine := newTestEngine()

	histories := [][]model.Rating{
		{rating(5, false, false)},
		{rating(5, false, false), rating(3, false, false), rating(4, false, true), rating(1, true, false), rating(2, false, false), rating(5, false, false)},
		{rating(4, false, false), rating(4, true, true), rating(2, false, false), rating(5, false, false), rating(3, false, false), rating(1, false, true), rating(4, false, false)},
		{rating(1, true, true), rating(1, true, true), rating(2, true, false)},
		// 32 ratings summing to 99: the mean 3.09375 puts the score exactly on a half cent
		append(repeat(3, 29), repeat(4, 3)...),
		append(repeat(5, 40), repeat(2, 24)...),
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		history := make([]model.Rating, 1+rng.Intn(64))
		for j := range history {
			history[j] = rating(1+rng.Intn(5), rng.Intn(10) == 0, rng.Intn(10) == 0)
		}
		histories = append(histories, history)
	}

	for hi, history := range histories {
		full := model.User{UserID: "full"}
		require.NoError(t, engine.RecomputeFromHistory(&full, history))

		for perm := 0; perm < 3; perm++ {
			ordered := append([]model.Rating(nil), history...)
			rng.Shuffle(len(ordered), func(i, j int) { ordered[i], ordered[j] = ordered[j], ordered[i] })

			inc := model.User{UserID: "inc"}
			for _, r := range ordered {
				require.NoError(t, engine.ApplyIncrementalRating(&inc, r))
			}

			require.Equal(t, full.TotalRides, inc.TotalRides, "history %d", hi)
			require.Equal(t, full.DamageCount, inc.DamageCount, "history %d", hi)
			require.Equal(t, full.RashCount, inc.RashCount, "history %d", hi)
			require.Equal(t, full.AvgRating, inc.AvgRating, "history %d", hi)
			require.Equal(t, full.TrustScore, inc.TrustScore, "history %d", hi)
			require.Equal(t, full.IsBlocked, inc.IsBlocked, "history %d", hi)
		}
	}
}

func TestEngine_IncrementalHalfCentBoundary(t *testing.T) {
	engine := newTestEngine()

	user := model.User{UserID: "u1"}
	for _, r := range append(repeat(3, 29), repeat(4, 3)...) {
		require.NoError(t, engine.ApplyIncrementalRating(&user, r))
	}
	require.Equal(t, 3.09375, user.AvgRating)
	require.Equal(t, 77.88, user.TrustScore)
}

func TestEngine_ApplyCancellationPenalty(t *testing.T) {
	engine := newTestEngine()

	user := model.User{UserID: "u1", AvgRating: 2.5, TotalRides: 0, TrustScore: 50}
	engine.ApplyCancellationPenalty(&user, 5)
	require.Equal(t, 45.0, user.TrustScore)
	// components are untouched by the penalty path
	require.Equal(t, 2.5, user.AvgRating)

	user.TrustScore = 3
	engine.ApplyCancellationPenalty(&user, 5)
	require.Equal(t, 0.0, user.TrustScore)
}

func TestEngine_AutoBlockLatch(t *testing.T) {
	cfg := config.Default().Trust
	cfg.AutoBlockThreshold = 20
	cfg.AutoRejectThreshold = 25
	engine := NewEngine(cfg)

	user := model.User{UserID: "u1", TrustScore: 22}
	engine.ApplyCancellationPenalty(&user, 5)
	require.True(t, user.IsBlocked)

	// a good rating restores the score but never clears the latch
	require.NoError(t, engine.ApplyIncrementalRating(&user, rating(5, false, false)))
	require.Greater(t, user.TrustScore, cfg.AutoBlockThreshold)
	require.True(t, user.IsBlocked)

	clean := model.User{UserID: "u2"}
	require.NoError(t, engine.RecomputeFromHistory(&clean, []model.Rating{rating(1, true, true)}))
	require.Equal(t, 0.0, clean.TrustScore)
	require.True(t, clean.IsBlocked)
}

func TestEngine_Eligibility(t *testing.T) {
	engine := newTestEngine()

	tests := []struct {
		name         string
		user         model.User
		wantEligible bool
		wantReject   bool
	}{
		{name: "high_trust", user: model.User{TrustScore: 80}, wantEligible: true, wantReject: false},
		{name: "at_threshold", user: model.User{TrustScore: 30}, wantEligible: true, wantReject: false},
		{name: "low_trust", user: model.User{TrustScore: 15}, wantEligible: false, wantReject: false},
		{name: "below_reject", user: model.User{TrustScore: 9.99}, wantEligible: false, wantReject: true},
		{name: "blocked", user: model.User{TrustScore: 90, IsBlocked: true}, wantEligible: true, wantReject: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.wantEligible, engine.IsEligibleForAuction(tc.user))
			require.Equal(t, tc.wantReject, engine.ShouldAutoReject(tc.user))
		})
	}
}
