package server

import (
	handler "rental-auction/services/rental/handler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures all Gin routes for the application.
// A nil gatherer leaves /metrics unregistered.
func SetupRouter(bookings handler.BookingServiceInterface, auctions handler.AuctionServiceInterface, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	bookingHandler := handler.NewBookingHandler(bookings)
	auctionHandler := handler.NewAuctionHandler(auctions)

	bookingRoutes := router.Group("/bookings")
	{
		bookingRoutes.POST("", bookingHandler.RequestBookingHandler)
		bookingRoutes.GET("/:booking_id", bookingHandler.GetBookingHandler)
		bookingRoutes.POST("/:booking_id/cancel", bookingHandler.CancelBookingHandler)
	}

	auctionRoutes := router.Group("/auctions")
	{
		auctionRoutes.GET("", auctionHandler.ListAuctionsHandler)
		auctionRoutes.GET("/:auction_id", auctionHandler.GetAuctionHandler)
		auctionRoutes.POST("/:auction_id/bids", auctionHandler.PlaceBidHandler)
	}

	users := router.Group("/users")
	{
		users.GET("/leaderboard", bookingHandler.LeaderboardHandler)
		users.GET("/:user_id/bookings", bookingHandler.ListUserBookingsHandler)
		users.GET("/:user_id/auctions", auctionHandler.ListUserAuctionsHandler)
	}

	admin := router.Group("/admin", RequireAdmin(bookings))
	{
		admin.POST("/bookings/:booking_id/approve", bookingHandler.ApproveBookingHandler)
		admin.POST("/bookings/:booking_id/reject", bookingHandler.RejectBookingHandler)
		admin.POST("/bookings/:booking_id/complete", bookingHandler.CompleteBookingHandler)
		admin.POST("/bookings/:booking_id/rate", bookingHandler.RateBookingHandler)
		admin.POST("/auctions/:auction_id/close", auctionHandler.CloseAuctionHandler)
		admin.POST("/users/:user_id/block", bookingHandler.BlockUserHandler)
		admin.POST("/users/:user_id/unblock", bookingHandler.UnblockUserHandler)
		admin.POST("/users/:user_id/resync", bookingHandler.ResyncUserTrustHandler)
	}

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return router
}
