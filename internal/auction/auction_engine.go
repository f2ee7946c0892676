package auction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"rental-auction/internal/config"
	"rental-auction/internal/conflict"
	"rental-auction/internal/metrics"
	model "rental-auction/internal/models"
	"rental-auction/internal/rentalerrors"
	"rental-auction/internal/repository"
	"rental-auction/internal/trust"
	"rental-auction/utils"
)

// Final score weights; they sum to 1.
const (
	trustWeight = 0.5
	ridesWeight = 0.3
	priceWeight = 0.2
)

// Engine owns the auction lifecycle: creation on conflict, bid accumulation, scoring and close
type Engine struct {
	store   repository.Store
	trust   *trust.Engine
	clock   utils.Clock
	cfg     config.AuctionConfig
	metrics metrics.Recorder
}

// NewEngine creates a new auction Engine instance
func NewEngine(store repository.Store, trustEngine *trust.Engine, clock utils.Clock, cfg config.AuctionConfig, rec metrics.Recorder) *Engine {
	if rec == nil {
		rec = metrics.NopRecorder{}
	}
	return &Engine{
		store:   store,
		trust:   trustEngine,
		clock:   clock,
		cfg:     cfg,
		metrics: rec,
	}
}

// Details is an auction together with its bids, as shown to presentation layers
type Details struct {
	model.Auction
	Bids         []model.Bid `json:"bids"`
	BidCount     int         `json:"bid_count"`
	HighestOffer float64     `json:"highest_offer"`
}

// CloseResult reports the outcome of closing an auction
type CloseResult struct {
	Auction model.Auction `json:"auction"`
	Winner  *model.Bid    `json:"winner,omitempty"`
	Bids    []model.Bid   `json:"bids"`
}

// GetOrCreateAuction reuses the oldest active auction of carID overlapping interval,
// or creates a new one accepting bids for the configured duration.
// The boolean reports whether a new auction was created.
func (e *Engine) GetOrCreateAuction(tx repository.Tx, carID string, interval model.Interval) (model.Auction, bool, error) {
	auctions, err := tx.ListAuctionsByCar(carID)
	if err != nil {
		return model.Auction{}, false, fmt.Errorf("auction: list auctions for car %s: %w", carID, err)
	}
	for _, a := range auctions {
		if a.Status == model.AuctionActive && conflict.Overlaps(a.Interval, interval) {
			return a, false, nil
		}
	}

	now := e.clock.Now()
	a := model.Auction{
		AuctionID:    utils.GenerateID(),
		CarID:        carID,
		Interval:     interval,
		Status:       model.AuctionActive,
		AuctionStart: now,
		AuctionEnd:   now.Add(e.cfg.Duration()),
		CreatedAt:    now,
	}
	if err := tx.SaveAuction(a); err != nil {
		return model.Auction{}, false, fmt.Errorf("auction: create auction for car %s: %w", carID, err)
	}
	return a, true, nil
}

// AuctionForConflicts picks the auction that a request over interval and its conflicting
// bookings should be folded into. When the conflicts already compete in active auctions the
// oldest of them is kept and the others are merged into it, so that every booking stays in a
// single auction. Otherwise it falls back to GetOrCreateAuction.
func (e *Engine) AuctionForConflicts(tx repository.Tx, carID string, interval model.Interval, conflicts []model.Booking) (model.Auction, bool, error) {
	touched, err := activeAuctionsOf(tx, carID, conflicts)
	if err != nil {
		return model.Auction{}, false, err
	}
	if len(touched) == 0 {
		return e.GetOrCreateAuction(tx, carID, interval)
	}

	target := touched[0]
	for _, other := range touched[1:] {
		if target, err = e.merge(tx, target, other); err != nil {
			return model.Auction{}, false, err
		}
	}
	return target, false, nil
}

// activeAuctionsOf returns the distinct active auctions of carID that hold a bid backed by one
// of the competing bookings, oldest first
func activeAuctionsOf(tx repository.Tx, carID string, bookings []model.Booking) ([]model.Auction, error) {
	seen := make(map[string]bool)
	var out []model.Auction
	for _, c := range bookings {
		if c.Status != model.BookingCompeting {
			continue
		}
		bids, err := tx.ListBidsByUser(c.UserID)
		if err != nil {
			return nil, fmt.Errorf("auction: list bids of user %s: %w", c.UserID, err)
		}
		for _, b := range bids {
			if b.BookingID != c.BookingID || seen[b.AuctionID] {
				continue
			}
			a, err := tx.GetAuction(b.AuctionID)
			if err != nil {
				return nil, fmt.Errorf("auction: load auction of booking %s: %w", c.BookingID, err)
			}
			if a.Status == model.AuctionActive && a.CarID == carID {
				seen[a.AuctionID] = true
				out = append(out, a)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].AuctionID < out[j].AuctionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// merge moves every bid of from into target and retires from as closed without a winner.
// A bidder already present in target keeps that bid; the booking behind their moved bid is
// superseded. target's interval grows to cover from's.
func (e *Engine) merge(tx repository.Tx, target, from model.Auction) (model.Auction, error) {
	now := e.clock.Now()
	bids, err := tx.ListBidsByAuction(from.AuctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("auction: list bids of %s: %w", from.AuctionID, err)
	}

	for _, b := range bids {
		if err := tx.DeleteBid(from.AuctionID, b.UserID); err != nil {
			return model.Auction{}, fmt.Errorf("auction: detach bid %s: %w", b.BidID, err)
		}
		_, err := tx.GetBid(target.AuctionID, b.UserID)
		switch {
		case err == nil:
			if err := e.supersede(tx, b.BookingID, now); err != nil {
				return model.Auction{}, err
			}
			continue
		case !errors.Is(err, rentalerrors.ErrBidNotFound):
			return model.Auction{}, fmt.Errorf("auction: look up bid for user %s: %w", b.UserID, err)
		}
		b.AuctionID = target.AuctionID
		b.UpdatedAt = now
		if err := tx.InsertBid(b); err != nil {
			return model.Auction{}, fmt.Errorf("auction: move bid %s: %w", b.BidID, err)
		}
	}

	from.Status = model.AuctionClosed
	from.MergedInto = target.AuctionID
	from.AuctionEnd = now
	from.ClosedAt = &now
	if err := tx.SaveAuction(from); err != nil {
		return model.Auction{}, fmt.Errorf("auction: retire merged auction %s: %w", from.AuctionID, err)
	}

	if from.Interval.Start.Before(target.Interval.Start) {
		target.Interval.Start = from.Interval.Start
	}
	if from.Interval.End.After(target.Interval.End) {
		target.Interval.End = from.Interval.End
	}
	if err := tx.SaveAuction(target); err != nil {
		return model.Auction{}, fmt.Errorf("auction: save merged auction %s: %w", target.AuctionID, err)
	}

	utils.Info("auction: merged", map[string]any{
		"auction_id":  target.AuctionID,
		"merged_from": from.AuctionID,
		"car_id":      target.CarID,
		"moved_bids":  len(bids),
	})
	return target, nil
}

// PlaceOrUpdateBid folds booking into auction on behalf of user. A user holds at most one
// bid per auction: an existing bid is updated in place with the booking's offer and a fresh
// trust snapshot. If the existing bid was backed by another booking, that booking is
// superseded (rejected) and the bid is re-pointed to the new one.
func (e *Engine) PlaceOrUpdateBid(tx repository.Tx, auction model.Auction, booking model.Booking, user model.User) (model.Bid, error) {
	if auction.Status != model.AuctionActive {
		return model.Bid{}, fmt.Errorf("auction: bid on %s: %w", auction.AuctionID, rentalerrors.ErrAuctionInactive)
	}
	if booking.UserID != user.UserID {
		return model.Bid{}, fmt.Errorf("auction: booking %s not owned by user %s: %w", booking.BookingID, user.UserID, rentalerrors.ErrForbidden)
	}

	now := e.clock.Now()
	existing, err := tx.GetBid(auction.AuctionID, user.UserID)
	switch {
	case err == nil:
		if existing.BookingID != booking.BookingID {
			if err := e.supersede(tx, existing.BookingID, now); err != nil {
				return model.Bid{}, err
			}
			existing.BookingID = booking.BookingID
		}
		existing.OfferPrice = booking.OfferPrice
		existing.TrustScoreSnapshot = user.TrustScore
		existing.UpdatedAt = now
		if err := tx.UpdateBid(existing); err != nil {
			return model.Bid{}, fmt.Errorf("auction: update bid %s: %w", existing.BidID, err)
		}
		if err := foldBooking(tx, booking, now); err != nil {
			return model.Bid{}, err
		}
		return existing, nil

	case errors.Is(err, rentalerrors.ErrBidNotFound):
		bid := model.Bid{
			BidID:              utils.GenerateID(),
			AuctionID:          auction.AuctionID,
			UserID:             user.UserID,
			BookingID:          booking.BookingID,
			OfferPrice:         booking.OfferPrice,
			TrustScoreSnapshot: user.TrustScore,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.InsertBid(bid); err != nil {
			return model.Bid{}, fmt.Errorf("auction: insert bid for user %s: %w", user.UserID, err)
		}
		if err := foldBooking(tx, booking, now); err != nil {
			return model.Bid{}, err
		}
		return bid, nil

	default:
		return model.Bid{}, fmt.Errorf("auction: look up bid for user %s: %w", user.UserID, err)
	}
}

// supersede rejects the booking that previously backed a user's bid
func (e *Engine) supersede(tx repository.Tx, bookingID string, now time.Time) error {
	old, err := tx.GetBooking(bookingID)
	if err != nil {
		return fmt.Errorf("auction: load superseded booking: %w", err)
	}
	if old.Status != model.BookingCompeting {
		return nil
	}
	old.Status = model.BookingRejected
	old.UpdatedAt = now
	if err := tx.SaveBooking(old); err != nil {
		return fmt.Errorf("auction: reject superseded booking %s: %w", old.BookingID, err)
	}
	utils.Info("auction: booking superseded by newer request", map[string]any{
		"booking_id": old.BookingID,
		"user_id":    old.UserID,
	})
	return nil
}

func foldBooking(tx repository.Tx, booking model.Booking, now time.Time) error {
	return transition(tx, booking, model.ActionFold, now)
}

// transition applies action to the stored booking using the legality table
func transition(tx repository.Tx, booking model.Booking, action model.BookingAction, now time.Time) error {
	current, err := tx.GetBooking(booking.BookingID)
	if err != nil {
		return fmt.Errorf("auction: load booking %s: %w", booking.BookingID, err)
	}
	next, ok := model.NextBookingStatus(current.Status, action)
	if !ok {
		return fmt.Errorf("auction: %s booking %s from %s: %w", action, current.BookingID, current.Status, rentalerrors.ErrInvalidTransition)
	}
	current.Status = next
	current.UpdatedAt = now
	if err := tx.SaveBooking(current); err != nil {
		return fmt.Errorf("auction: save booking %s: %w", current.BookingID, err)
	}
	return nil
}

// ComputeFinalScores returns bids with FinalScore set to
// 0.5·trust/maxTrust + 0.3·rides/maxRides + 0.2·price/maxPrice, rounded to 4 decimals.
// rides maps user IDs to their ride counts; each maximum is floored at 1.
func ComputeFinalScores(bids []model.Bid, rides map[string]int) []model.Bid {
	if len(bids) == 0 {
		return bids
	}

	trusts := make([]float64, len(bids))
	counts := make([]float64, len(bids))
	prices := make([]float64, len(bids))
	for i, b := range bids {
		trusts[i] = b.TrustScoreSnapshot
		counts[i] = float64(rides[b.UserID])
		prices[i] = b.OfferPrice
	}
	maxTrust := math.Max(1, floats.Max(trusts))
	maxRides := math.Max(1, floats.Max(counts))
	maxPrice := math.Max(1, floats.Max(prices))

	scored := make([]model.Bid, len(bids))
	for i, b := range bids {
		score := trustWeight*(trusts[i]/maxTrust) +
			ridesWeight*(counts[i]/maxRides) +
			priceWeight*(prices[i]/maxPrice)
		score = math.Round(score*1e4) / 1e4
		b.FinalScore = &score
		scored[i] = b
	}
	return scored
}

// DetermineWinner picks the eligible bid (snapshot >= trust threshold) with the highest final
// score. When no bid is eligible, the highest raw offer among all bids wins so that auctions of
// low-trust bidders still resolve. Ties go to the earliest placed bid, then the lowest bid ID.
// bids must already carry final scores.
func (e *Engine) DetermineWinner(bids []model.Bid) (model.Bid, bool) {
	if len(bids) == 0 {
		return model.Bid{}, false
	}

	eligible := make([]model.Bid, 0, len(bids))
	for _, b := range bids {
		if e.trust.IsEligibleSnapshot(b.TrustScoreSnapshot) {
			eligible = append(eligible, b)
		}
	}

	if len(eligible) > 0 {
		return best(eligible, func(b model.Bid) float64 {
			if b.FinalScore == nil {
				return 0
			}
			return *b.FinalScore
		}), true
	}
	return best(bids, func(b model.Bid) float64 { return b.OfferPrice }), true
}

func best(bids []model.Bid, key func(model.Bid) float64) model.Bid {
	ranked := append([]model.Bid(nil), bids...)
	sort.SliceStable(ranked, func(i, j int) bool {
		ki, kj := key(ranked[i]), key(ranked[j])
		if ki != kj {
			return ki > kj
		}
		if !ranked[i].CreatedAt.Equal(ranked[j].CreatedAt) {
			return ranked[i].CreatedAt.Before(ranked[j].CreatedAt)
		}
		return ranked[i].BidID < ranked[j].BidID
	})
	return ranked[0]
}

// Close scores the auction, confirms the winning booking and rejects every other competing one,
// all in one unit of work. Closing an already closed auction fails with ErrAuctionClosed.
// Bids whose booking was withdrawn by its owner take no part; bids that would overlap a confirmed
// booking are rejected without contending.
func (e *Engine) Close(ctx context.Context, auctionID, trigger string) (CloseResult, error) {
	var result CloseResult

	err := e.store.Atomically(ctx, func(tx repository.Tx) error {
		a, err := tx.GetAuction(auctionID)
		if err != nil {
			return err
		}
		if a.Status == model.AuctionClosed {
			return fmt.Errorf("auction %s: %w", auctionID, rentalerrors.ErrAuctionClosed)
		}

		bids, err := tx.ListBidsByAuction(auctionID)
		if err != nil {
			return fmt.Errorf("list bids: %w", err)
		}

		now := e.clock.Now()
		candidates := make([]model.Bid, 0, len(bids))
		rides := make(map[string]int, len(bids))
		for _, b := range bids {
			booking, err := tx.GetBooking(b.BookingID)
			if err != nil {
				return fmt.Errorf("load booking for bid %s: %w", b.BidID, err)
			}
			if booking.Status != model.BookingCompeting {
				continue
			}
			if _, blocked, err := conflict.FindConfirmedOverlap(tx, a.CarID, booking.Interval, booking.BookingID); err != nil {
				return err
			} else if blocked {
				if err := transition(tx, booking, model.ActionLose, now); err != nil {
					return err
				}
				continue
			}
			user, err := tx.GetUser(b.UserID)
			if err != nil {
				return fmt.Errorf("load bidder %s: %w", b.UserID, err)
			}
			rides[b.UserID] = user.TotalRides
			candidates = append(candidates, b)
		}

		scored := ComputeFinalScores(candidates, rides)
		winner, hasWinner := e.DetermineWinner(scored)

		for _, b := range scored {
			action := model.ActionLose
			if hasWinner && b.BidID == winner.BidID {
				action = model.ActionWin
			}
			booking, err := tx.GetBooking(b.BookingID)
			if err != nil {
				return err
			}
			if err := transition(tx, booking, action, now); err != nil {
				return err
			}
			if err := tx.UpdateBid(b); err != nil {
				return fmt.Errorf("store final score for bid %s: %w", b.BidID, err)
			}
		}

		a.Status = model.AuctionClosed
		a.AuctionEnd = now
		a.ClosedAt = &now
		if hasWinner {
			a.WinnerID = winner.UserID
			w := winner
			result.Winner = &w
		}
		if err := tx.SaveAuction(a); err != nil {
			return fmt.Errorf("save auction: %w", err)
		}

		result.Auction = a
		result.Bids = scored
		return nil
	})
	if err != nil {
		return CloseResult{}, fmt.Errorf("auction: close %s: %w", auctionID, err)
	}

	e.metrics.AuctionClosed(trigger, len(result.Bids), result.Winner != nil)
	fields := map[string]any{
		"auction_id": auctionID,
		"car_id":     result.Auction.CarID,
		"trigger":    trigger,
		"bids":       len(result.Bids),
	}
	if result.Winner != nil {
		fields["winner_id"] = result.Winner.UserID
		fields["winning_bid_id"] = result.Winner.BidID
	}
	utils.Info("auction: closed", fields)
	return result, nil
}

// CloseExpired closes every active auction whose deadline has passed and returns how many it closed.
// An auction closed concurrently by another caller is skipped.
func (e *Engine) CloseExpired(ctx context.Context) (int, error) {
	now := e.clock.Now()
	var due []string
	err := e.store.View(ctx, func(tx repository.Tx) error {
		auctions, err := tx.ListAuctions()
		if err != nil {
			return err
		}
		for _, a := range auctions {
			if a.Status == model.AuctionActive && !a.AuctionEnd.After(now) {
				due = append(due, a.AuctionID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("auction: list expired auctions: %w", err)
	}

	closed := 0
	var errs []error
	for _, id := range due {
		if _, err := e.Close(ctx, id, metrics.TriggerExpiry); err != nil {
			if errors.Is(err, rentalerrors.ErrAuctionClosed) {
				continue
			}
			utils.Error("auction: failed to close expired auction", map[string]any{
				"auction_id": id,
				"error":      err.Error(),
			})
			errs = append(errs, err)
			continue
		}
		closed++
	}
	return closed, errors.Join(errs...)
}

// PlaceBid lets a user join or raise their stake in an active auction. An existing bid and its
// booking take the new offer; otherwise a competing booking over the auction interval is created.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, userID string, offerPrice float64) (model.Bid, error) {
	if auctionID == "" || userID == "" {
		return model.Bid{}, fmt.Errorf("auction: %w - missing auction or user ID", rentalerrors.ErrInvalidRequest)
	}
	if offerPrice <= 0 || math.IsNaN(offerPrice) || math.IsInf(offerPrice, 0) {
		return model.Bid{}, fmt.Errorf("auction: %w", rentalerrors.ErrInvalidPrice)
	}

	var bid model.Bid
	err := e.store.Atomically(ctx, func(tx repository.Tx) error {
		a, err := tx.GetAuction(auctionID)
		if err != nil {
			return err
		}
		if a.Status != model.AuctionActive {
			return rentalerrors.ErrAuctionInactive
		}
		user, err := tx.GetUser(userID)
		if err != nil {
			return err
		}
		if e.trust.ShouldAutoReject(user) {
			return rentalerrors.ErrNotEligible
		}

		now := e.clock.Now()
		existing, err := tx.GetBid(auctionID, userID)
		if err == nil {
			booking, err := tx.GetBooking(existing.BookingID)
			if err != nil {
				return err
			}
			if booking.Status != model.BookingCompeting {
				return fmt.Errorf("booking %s is %s: %w", booking.BookingID, booking.Status, rentalerrors.ErrInvalidTransition)
			}
			booking.OfferPrice = offerPrice
			booking.UpdatedAt = now
			if err := tx.SaveBooking(booking); err != nil {
				return err
			}
			bid, err = e.PlaceOrUpdateBid(tx, a, booking, user)
			return err
		}
		if !errors.Is(err, rentalerrors.ErrBidNotFound) {
			return err
		}

		car, err := tx.GetCar(a.CarID)
		if err != nil {
			if errors.Is(err, rentalerrors.ErrCarNotFound) {
				return fmt.Errorf("%w: %w", rentalerrors.ErrCarUnavailable, err)
			}
			return err
		}
		if !car.IsActive {
			return rentalerrors.ErrCarUnavailable
		}

		if _, blocked, err := conflict.FindConfirmedOverlap(tx, a.CarID, a.Interval, ""); err != nil {
			return err
		} else if blocked {
			return rentalerrors.ErrHardConflict
		}

		booking := model.Booking{
			BookingID:  utils.GenerateID(),
			UserID:     userID,
			CarID:      a.CarID,
			Interval:   a.Interval,
			OfferPrice: offerPrice,
			Status:     model.BookingPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.SaveBooking(booking); err != nil {
			return err
		}
		bid, err = e.PlaceOrUpdateBid(tx, a, booking, user)
		return err
	})
	if err != nil {
		return model.Bid{}, fmt.Errorf("auction: place bid on %s by user %s: %w", auctionID, userID, err)
	}

	utils.Info("auction: bid placed", map[string]any{
		"auction_id":  auctionID,
		"user_id":     userID,
		"bid_id":      bid.BidID,
		"offer_price": bid.OfferPrice,
		"trust":       bid.TrustScoreSnapshot,
	})
	return bid, nil
}

// GetAuction returns an auction with its bids
func (e *Engine) GetAuction(ctx context.Context, auctionID string) (Details, error) {
	var details Details
	err := e.store.View(ctx, func(tx repository.Tx) error {
		a, err := tx.GetAuction(auctionID)
		if err != nil {
			return err
		}
		bids, err := tx.ListBidsByAuction(auctionID)
		if err != nil {
			return err
		}
		details = newDetails(a, bids)
		return nil
	})
	if err != nil {
		return Details{}, fmt.Errorf("auction: get %s: %w", auctionID, err)
	}
	return details, nil
}

// ListAuctions returns all auctions, optionally filtered by status, with bid summaries
func (e *Engine) ListAuctions(ctx context.Context, status model.AuctionStatus) ([]Details, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("auction: %w - unknown status %q", rentalerrors.ErrInvalidRequest, status)
	}

	out := make([]Details, 0)
	err := e.store.View(ctx, func(tx repository.Tx) error {
		auctions, err := tx.ListAuctions()
		if err != nil {
			return err
		}
		for _, a := range auctions {
			if status != "" && a.Status != status {
				continue
			}
			bids, err := tx.ListBidsByAuction(a.AuctionID)
			if err != nil {
				return err
			}
			out = append(out, newDetails(a, bids))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("auction: list auctions: %w", err)
	}
	return out, nil
}

// ListUserActiveAuctions returns the active auctions a user holds a bid in
func (e *Engine) ListUserActiveAuctions(ctx context.Context, userID string) ([]model.Auction, error) {
	out := make([]model.Auction, 0)
	err := e.store.View(ctx, func(tx repository.Tx) error {
		bids, err := tx.ListBidsByUser(userID)
		if err != nil {
			return err
		}
		for _, b := range bids {
			a, err := tx.GetAuction(b.AuctionID)
			if err != nil {
				return err
			}
			if a.Status == model.AuctionActive {
				out = append(out, a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("auction: list active auctions for user %s: %w", userID, err)
	}
	return out, nil
}

func newDetails(a model.Auction, bids []model.Bid) Details {
	d := Details{Auction: a, Bids: bids, BidCount: len(bids)}
	for _, b := range bids {
		if b.OfferPrice > d.HighestOffer {
			d.HighestOffer = b.OfferPrice
		}
	}
	return d
}

// ListBids returns the bids of an auction in placement order
func (e *Engine) ListBids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	var bids []model.Bid
	err := e.store.View(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetAuction(auctionID); err != nil {
			return err
		}
		var err error
		bids, err = tx.ListBidsByAuction(auctionID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("auction: list bids of %s: %w", auctionID, err)
	}
	return bids, nil
}
