package perftests

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"rental-auction/internal/auction"
	booking "rental-auction/internal/bookingService"
	"rental-auction/internal/config"
	model "rental-auction/internal/models"
	"rental-auction/internal/repository"
	"rental-auction/internal/trust"
	"rental-auction/utils"
)

var epoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

// setupServices creates the repository and services with numCars cars and numUsers renters
func setupServices(numCars, numUsers int) (*repository.MemoryRepo, *booking.Coordinator, *auction.Engine) {
	repo := repository.NewMemoryRepo()
	for i := 0; i < numCars; i++ {
		repo.AddCar(model.Car{CarID: fmt.Sprintf("car_%d", i), Model: "Load test car", IsActive: true})
	}
	for i := 0; i < numUsers; i++ {
		u := model.User{
			UserID:     fmt.Sprintf("user_%d", i),
			AvgRating:  float64(1 + i%5),
			TotalRides: i % 60,
		}
		if i%7 == 0 {
			u.RashCount = 1
		}
		u.TrustScore = trust.Score(u.AvgRating, u.TotalRides, u.DamageCount, u.RashCount)
		repo.AddUser(u)
	}

	cfg := config.Default()
	clock := utils.FixedClock{At: epoch}
	trustEngine := trust.NewEngine(cfg.Trust)
	auctions := auction.NewEngine(repo, trustEngine, clock, cfg.Auction, nil)
	return repo, booking.NewCoordinator(repo, trustEngine, auctions, clock, nil), auctions
}

func slot(offsetHours, lengthHours int) model.Interval {
	start := epoch.Add(time.Duration(48+offsetHours) * time.Hour)
	return model.Interval{Start: start, End: start.Add(time.Duration(lengthHours) * time.Hour)}
}

// Benchmark 1: RequestBooking - Isolated Cars (Low Contention - Micro Benchmark)
func Benchmark_RequestBooking_Isolated(b *testing.B) {
	_, svc, _ := setupServices(b.N, 100)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		userID := fmt.Sprintf("user_%d", 20+i%80)
		carID := fmt.Sprintf("car_%d", i)
		if _, err := svc.RequestBooking(ctx, userID, carID, slot(0, 4), float64(50+rand.Intn(100))); err != nil {
			b.Fatalf("failed to request booking: %v", err)
		}
	}
}

// Benchmark 2: RequestBooking - Shared Car (High Contention - Concurrency Benchmark)
func Benchmark_RequestBooking_ConcurrentSharedCar(b *testing.B) {
	_, svc, _ := setupServices(1, 1000)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			userID := fmt.Sprintf("user_%d", rnd.Intn(1000))
			// conflicts, rejections and hard blocks are all expected outcomes here
			_, _ = svc.RequestBooking(ctx, userID, "car_0", slot(rnd.Intn(72), 1+rnd.Intn(6)), float64(50+rnd.Intn(200)))
		}
	})
}

// Benchmark 3: Close - one auction of ten bidders per iteration
func Benchmark_CloseAuction(b *testing.B) {
	_, svc, auctions := setupServices(b.N, 100)
	ctx := context.Background()

	auctionIDs := make([]string, b.N)
	for i := 0; i < b.N; i++ {
		carID := fmt.Sprintf("car_%d", i)
		for j := 0; j < 10; j++ {
			out, err := svc.RequestBooking(ctx, fmt.Sprintf("user_%d", 20+j*7), carID, slot(j%3, 4), float64(50+j*10))
			if err != nil {
				b.Fatalf("failed to seed booking: %v", err)
			}
			if out.AuctionID != "" {
				auctionIDs[i] = out.AuctionID
			}
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := auctions.Close(ctx, auctionIDs[i], "benchmark"); err != nil {
			b.Fatalf("failed to close auction: %v", err)
		}
	}
}

// Benchmark 4: ComputeFinalScores - pure scoring of a large auction
func Benchmark_ComputeFinalScores(b *testing.B) {
	bids := make([]model.Bid, 200)
	rides := make(map[string]int, len(bids))
	for i := range bids {
		userID := fmt.Sprintf("user_%d", i)
		bids[i] = model.Bid{
			BidID:              fmt.Sprintf("bid_%d", i),
			UserID:             userID,
			OfferPrice:         float64(50 + i),
			TrustScoreSnapshot: float64(i % 100),
			CreatedAt:          epoch.Add(time.Duration(i) * time.Second),
		}
		rides[userID] = i % 60
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = auction.ComputeFinalScores(bids, rides)
	}
}

// Benchmark 5: Mixed Workload (readers + writers on a small fleet)
func Benchmark_MixedWorkload_SmallFleet(b *testing.B) {
	_, svc, auctions := setupServices(5, 500)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	// Ratio: 70% readers, 30% writers
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			switch op := rnd.Intn(10); {
			case op < 3:
				carID := fmt.Sprintf("car_%d", rnd.Intn(5))
				userID := fmt.Sprintf("user_%d", rnd.Intn(500))
				_, _ = svc.RequestBooking(ctx, userID, carID, slot(rnd.Intn(48), 2), float64(50+rnd.Intn(100)))
			case op < 6:
				_, _ = auctions.ListAuctions(ctx, model.AuctionActive)
			default:
				_, _ = svc.Leaderboard(ctx, booking.DefaultLeaderboardLimit)
			}
		}
	})
}
