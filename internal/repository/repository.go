package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	model "rental-auction/internal/models"
	"rental-auction/internal/rentalerrors"
)

// Tx is a unit of work over users, cars, bookings, auctions, bids and ratings.
// Reads observe the writes already made through the same Tx.
type Tx interface {
	GetUser(userID string) (model.User, error)
	SaveUser(user model.User) error
	ListUsers() ([]model.User, error)

	GetCar(carID string) (model.Car, error)
	SaveCar(car model.Car) error

	GetBooking(bookingID string) (model.Booking, error)
	SaveBooking(booking model.Booking) error
	ListBookingsByCar(carID string) ([]model.Booking, error)
	ListBookingsByUser(userID string) ([]model.Booking, error)

	GetAuction(auctionID string) (model.Auction, error)
	SaveAuction(auction model.Auction) error
	ListAuctions() ([]model.Auction, error)
	ListAuctionsByCar(carID string) ([]model.Auction, error)

	GetBid(auctionID, userID string) (model.Bid, error)
	InsertBid(bid model.Bid) error
	UpdateBid(bid model.Bid) error
	DeleteBid(auctionID, userID string) error
	ListBidsByAuction(auctionID string) ([]model.Bid, error)
	ListBidsByUser(userID string) ([]model.Bid, error)

	InsertRating(rating model.Rating) error
	GetRatingByBooking(bookingID string) (model.Rating, error)
	ListRatingsByUser(userID string) ([]model.Rating, error)
}

//go:generate mockgen -destination=mock_store.go -package=repository rental-auction/internal/repository Store

// Store defines the transactional storage interface for the rental system
type Store interface {
	// Atomically runs fn as a single read-write unit of work. Writes become
	// visible only when fn returns nil; any error discards all of them.
	Atomically(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(tx Tx) error) error
}

type tables struct {
	users    map[string]model.User
	cars     map[string]model.Car
	bookings map[string]model.Booking
	auctions map[string]model.Auction
	bids     map[string]model.Bid // key: auctionID/userID
	ratings  map[string]model.Rating
}

func newTables() *tables {
	return &tables{
		users:    make(map[string]model.User),
		cars:     make(map[string]model.Car),
		bookings: make(map[string]model.Booking),
		auctions: make(map[string]model.Auction),
		bids:     make(map[string]model.Bid),
		ratings:  make(map[string]model.Rating),
	}
}

// MemoryRepo is a concurrency-safe in-memory implementation of Store.
// Writers are serialized by a single lock, so every unit of work observes
// the fully committed state of the previous one.
type MemoryRepo struct {
	mu   sync.RWMutex
	data *tables
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: newTables()}
}

// Atomically executes fn with exclusive access and commits its staged writes on success
func (r *MemoryRepo) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("repository: begin unit of work: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTx{base: r.data, staged: newTables(), removedBids: make(map[string]struct{})}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// View executes fn with shared read access
func (r *MemoryRepo) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("repository: begin view: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return fn(&memTx{base: r.data, readOnly: true})
}

// AddUser stores a user outside of any unit of work. Intended for seeding and tests.
func (r *MemoryRepo) AddUser(user model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.users[user.UserID] = user
}

// AddCar stores a car outside of any unit of work. Intended for seeding and tests.
func (r *MemoryRepo) AddCar(car model.Car) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.cars[car.CarID] = car
}

// AddBooking stores a booking outside of any unit of work. Intended for tests only.
func (r *MemoryRepo) AddBooking(booking model.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.bookings[booking.BookingID] = booking
}

var errReadOnly = errors.New("repository: write attempted in read-only view")

type memTx struct {
	base        *tables
	staged      *tables
	removedBids map[string]struct{}
	readOnly    bool
}

func (t *memTx) commit() {
	for key := range t.removedBids {
		delete(t.base.bids, key)
	}
	apply(t.base.users, t.staged.users)
	apply(t.base.cars, t.staged.cars)
	apply(t.base.bookings, t.staged.bookings)
	apply(t.base.auctions, t.staged.auctions)
	apply(t.base.bids, t.staged.bids)
	apply(t.base.ratings, t.staged.ratings)
}

func apply[T any](dst, src map[string]T) {
	for k, v := range src {
		dst[k] = v
	}
}

// lookup reads the staged row first, then the committed one
func lookup[T any](base, staged map[string]T, key string) (T, bool) {
	if staged != nil {
		if v, ok := staged[key]; ok {
			return v, true
		}
	}
	v, ok := base[key]
	return v, ok
}

// scan returns the merged view of base and staged rows accepted by keep
func scan[T any](base, staged map[string]T, keep func(T) bool) []T {
	out := make([]T, 0)
	for k, v := range base {
		if s, ok := staged[k]; ok {
			v = s
		}
		if keep(v) {
			out = append(out, v)
		}
	}
	for k, v := range staged {
		if _, seen := base[k]; seen {
			continue
		}
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func (t *memTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *memTx) stagedOrNil() *tables {
	if t.staged == nil {
		return &tables{}
	}
	return t.staged
}

func bidKey(auctionID, userID string) string {
	return auctionID + "/" + userID
}

// GetUser returns a user by ID
func (t *memTx) GetUser(userID string) (model.User, error) {
	u, ok := lookup(t.base.users, t.stagedOrNil().users, userID)
	if !ok {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, rentalerrors.ErrUserNotFound)
	}
	return u, nil
}

// SaveUser inserts or replaces a user
func (t *memTx) SaveUser(user model.User) error {
	if err := t.writable(); err != nil {
		return err
	}
	if user.UserID == "" {
		return fmt.Errorf("save user: %w - empty user ID", rentalerrors.ErrInvalidRequest)
	}
	t.staged.users[user.UserID] = user
	return nil
}

// ListUsers returns all users ordered by ID
func (t *memTx) ListUsers() ([]model.User, error) {
	users := scan(t.base.users, t.stagedOrNil().users, func(model.User) bool { return true })
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users, nil
}

// GetCar returns a car by ID
func (t *memTx) GetCar(carID string) (model.Car, error) {
	c, ok := lookup(t.base.cars, t.stagedOrNil().cars, carID)
	if !ok {
		return model.Car{}, fmt.Errorf("get car %s: %w", carID, rentalerrors.ErrCarNotFound)
	}
	return c, nil
}

// SaveCar inserts or replaces a car
func (t *memTx) SaveCar(car model.Car) error {
	if err := t.writable(); err != nil {
		return err
	}
	if car.CarID == "" {
		return fmt.Errorf("save car: %w - empty car ID", rentalerrors.ErrInvalidRequest)
	}
	t.staged.cars[car.CarID] = car
	return nil
}

// GetBooking returns a booking by ID
func (t *memTx) GetBooking(bookingID string) (model.Booking, error) {
	b, ok := lookup(t.base.bookings, t.stagedOrNil().bookings, bookingID)
	if !ok {
		return model.Booking{}, fmt.Errorf("get booking %s: %w", bookingID, rentalerrors.ErrBookingNotFound)
	}
	return b, nil
}

// SaveBooking inserts or replaces a booking
func (t *memTx) SaveBooking(booking model.Booking) error {
	if err := t.writable(); err != nil {
		return err
	}
	if booking.BookingID == "" {
		return fmt.Errorf("save booking: %w - empty booking ID", rentalerrors.ErrInvalidRequest)
	}
	t.staged.bookings[booking.BookingID] = booking
	return nil
}

// ListBookingsByCar returns all bookings for a car, oldest first
func (t *memTx) ListBookingsByCar(carID string) ([]model.Booking, error) {
	bookings := scan(t.base.bookings, t.stagedOrNil().bookings, func(b model.Booking) bool { return b.CarID == carID })
	sortBookings(bookings)
	return bookings, nil
}

// ListBookingsByUser returns all bookings owned by a user, oldest first
func (t *memTx) ListBookingsByUser(userID string) ([]model.Booking, error) {
	bookings := scan(t.base.bookings, t.stagedOrNil().bookings, func(b model.Booking) bool { return b.UserID == userID })
	sortBookings(bookings)
	return bookings, nil
}

// GetAuction returns an auction by ID
func (t *memTx) GetAuction(auctionID string) (model.Auction, error) {
	a, ok := lookup(t.base.auctions, t.stagedOrNil().auctions, auctionID)
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, rentalerrors.ErrAuctionNotFound)
	}
	return a, nil
}

// SaveAuction inserts or replaces an auction
func (t *memTx) SaveAuction(auction model.Auction) error {
	if err := t.writable(); err != nil {
		return err
	}
	if auction.AuctionID == "" {
		return fmt.Errorf("save auction: %w - empty auction ID", rentalerrors.ErrInvalidRequest)
	}
	t.staged.auctions[auction.AuctionID] = auction
	return nil
}

// ListAuctions returns all auctions, oldest first
func (t *memTx) ListAuctions() ([]model.Auction, error) {
	auctions := scan(t.base.auctions, t.stagedOrNil().auctions, func(model.Auction) bool { return true })
	sortAuctions(auctions)
	return auctions, nil
}

// ListAuctionsByCar returns all auctions for a car, oldest first
func (t *memTx) ListAuctionsByCar(carID string) ([]model.Auction, error) {
	auctions := scan(t.base.auctions, t.stagedOrNil().auctions, func(a model.Auction) bool { return a.CarID == carID })
	sortAuctions(auctions)
	return auctions, nil
}

// lookupBid hides bids deleted earlier in the same unit of work
func (t *memTx) lookupBid(key string) (model.Bid, bool) {
	if _, gone := t.removedBids[key]; gone {
		return model.Bid{}, false
	}
	return lookup(t.base.bids, t.stagedOrNil().bids, key)
}

func (t *memTx) scanBids(keep func(model.Bid) bool) []model.Bid {
	return scan(t.base.bids, t.stagedOrNil().bids, func(b model.Bid) bool {
		if _, gone := t.removedBids[bidKey(b.AuctionID, b.UserID)]; gone {
			return false
		}
		return keep(b)
	})
}

// GetBid returns the bid a user holds in an auction
func (t *memTx) GetBid(auctionID, userID string) (model.Bid, error) {
	b, ok := t.lookupBid(bidKey(auctionID, userID))
	if !ok {
		return model.Bid{}, fmt.Errorf("get bid for auction %s user %s: %w", auctionID, userID, rentalerrors.ErrBidNotFound)
	}
	return b, nil
}

// InsertBid adds a new bid; a second bid for the same (auction, user) pair is rejected
func (t *memTx) InsertBid(bid model.Bid) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := bidKey(bid.AuctionID, bid.UserID)
	if _, exists := t.lookupBid(key); exists {
		return fmt.Errorf("insert bid for auction %s user %s: %w", bid.AuctionID, bid.UserID, rentalerrors.ErrDuplicateBid)
	}
	delete(t.removedBids, key)
	t.staged.bids[key] = bid
	return nil
}

// UpdateBid replaces an existing bid in place
func (t *memTx) UpdateBid(bid model.Bid) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := bidKey(bid.AuctionID, bid.UserID)
	existing, exists := t.lookupBid(key)
	if !exists {
		return fmt.Errorf("update bid for auction %s user %s: %w", bid.AuctionID, bid.UserID, rentalerrors.ErrBidNotFound)
	}
	if existing.BidID != bid.BidID {
		return fmt.Errorf("update bid %s: %w", bid.BidID, rentalerrors.ErrDuplicateBid)
	}
	t.staged.bids[key] = bid
	return nil
}

// DeleteBid removes the bid a user holds in an auction
func (t *memTx) DeleteBid(auctionID, userID string) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := bidKey(auctionID, userID)
	if _, exists := t.lookupBid(key); !exists {
		return fmt.Errorf("delete bid for auction %s user %s: %w", auctionID, userID, rentalerrors.ErrBidNotFound)
	}
	delete(t.staged.bids, key)
	t.removedBids[key] = struct{}{}
	return nil
}

// ListBidsByAuction returns the bids of an auction in placement order
func (t *memTx) ListBidsByAuction(auctionID string) ([]model.Bid, error) {
	bids := t.scanBids(func(b model.Bid) bool { return b.AuctionID == auctionID })
	sortBids(bids)
	return bids, nil
}

// ListBidsByUser returns every bid placed by a user in placement order
func (t *memTx) ListBidsByUser(userID string) ([]model.Bid, error) {
	bids := t.scanBids(func(b model.Bid) bool { return b.UserID == userID })
	sortBids(bids)
	return bids, nil
}

// InsertRating records a rating; each booking can be rated once
func (t *memTx) InsertRating(rating model.Rating) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, exists := lookup(t.base.ratings, t.staged.ratings, rating.BookingID); exists {
		return fmt.Errorf("insert rating for booking %s: %w", rating.BookingID, rentalerrors.ErrAlreadyRated)
	}
	t.staged.ratings[rating.BookingID] = rating
	return nil
}

// GetRatingByBooking returns the rating recorded for a booking
func (t *memTx) GetRatingByBooking(bookingID string) (model.Rating, error) {
	r, ok := lookup(t.base.ratings, t.stagedOrNil().ratings, bookingID)
	if !ok {
		return model.Rating{}, fmt.Errorf("get rating for booking %s: %w", bookingID, rentalerrors.ErrBookingNotFound)
	}
	return r, nil
}

// ListRatingsByUser returns all ratings recorded for a user, oldest first
func (t *memTx) ListRatingsByUser(userID string) ([]model.Rating, error) {
	ratings := scan(t.base.ratings, t.stagedOrNil().ratings, func(r model.Rating) bool { return r.UserID == userID })
	sort.Slice(ratings, func(i, j int) bool {
		if ratings[i].CreatedAt.Equal(ratings[j].CreatedAt) {
			return ratings[i].RatingID < ratings[j].RatingID
		}
		return ratings[i].CreatedAt.Before(ratings[j].CreatedAt)
	})
	return ratings, nil
}

func sortBookings(bookings []model.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		if bookings[i].CreatedAt.Equal(bookings[j].CreatedAt) {
			return bookings[i].BookingID < bookings[j].BookingID
		}
		return bookings[i].CreatedAt.Before(bookings[j].CreatedAt)
	})
}

func sortAuctions(auctions []model.Auction) {
	sort.Slice(auctions, func(i, j int) bool {
		if auctions[i].CreatedAt.Equal(auctions[j].CreatedAt) {
			return auctions[i].AuctionID < auctions[j].AuctionID
		}
		return auctions[i].CreatedAt.Before(auctions[j].CreatedAt)
	})
}

func sortBids(bids []model.Bid) {
	sort.Slice(bids, func(i, j int) bool {
		if bids[i].CreatedAt.Equal(bids[j].CreatedAt) {
			return bids[i].BidID < bids[j].BidID
		}
		return bids[i].CreatedAt.Before(bids[j].CreatedAt)
	})
}
