package server

import (
	"fmt"

	"rental-auction/internal/auction"
	booking "rental-auction/internal/bookingService"
	"rental-auction/internal/config"
	"rental-auction/internal/metrics"
	"rental-auction/internal/repository"
	"rental-auction/internal/trust"
	"rental-auction/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// App bundles the wired services behind the HTTP router
type App struct {
	Bookings *booking.Coordinator
	Auctions *auction.Engine
	Sweeper  *auction.ExpirySweeper
	Router   *gin.Engine
}

// NewApp wires the trust, auction and booking services over store.
// Metrics are registered on reg and exposed on /metrics; a nil reg disables both.
func NewApp(cfg config.Config, store repository.Store, clock utils.Clock, reg *prometheus.Registry) (*App, error) {
	var rec metrics.Recorder = metrics.NopRecorder{}
	var gatherer prometheus.Gatherer
	if reg != nil {
		prom, err := metrics.NewPromRecorder(reg)
		if err != nil {
			return nil, fmt.Errorf("server: register metrics: %w", err)
		}
		rec = prom
		gatherer = reg
	}

	trustEngine := trust.NewEngine(cfg.Trust)
	auctions := auction.NewEngine(store, trustEngine, clock, cfg.Auction, rec)
	bookings := booking.NewCoordinator(store, trustEngine, auctions, clock, rec)

	return &App{
		Bookings: bookings,
		Auctions: auctions,
		Sweeper:  auction.NewExpirySweeper(auctions, cfg.Auction.SweepInterval()),
		Router:   SetupRouter(bookings, auctions, gatherer),
	}, nil
}
