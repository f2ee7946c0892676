package handler

import (
	"context"
	"net/http"

	"rental-auction/internal/auction"
	"rental-auction/internal/metrics"
	model "rental-auction/internal/models"
	"rental-auction/services/rental/helpers"
	"rental-auction/utils"

	"github.com/gin-gonic/gin"
)

type AuctionServiceInterface interface {
	GetAuction(ctx context.Context, auctionID string) (auction.Details, error)
	ListAuctions(ctx context.Context, status model.AuctionStatus) ([]auction.Details, error)
	PlaceBid(ctx context.Context, auctionID, userID string, offerPrice float64) (model.Bid, error)
	Close(ctx context.Context, auctionID, trigger string) (auction.CloseResult, error)
	ListUserActiveAuctions(ctx context.Context, userID string) ([]model.Auction, error)
}

type AuctionHandler struct {
	service AuctionServiceInterface
}

func NewAuctionHandler(service AuctionServiceInterface) *AuctionHandler {
	return &AuctionHandler{service: service}
}

// ListAuctionsHandler handles GET /auctions
func (h *AuctionHandler) ListAuctionsHandler(c *gin.Context) {
	status := model.AuctionStatus(c.Query("status"))

	auctions, err := h.service.ListAuctions(c.Request.Context(), status)
	if err != nil {
		helpers.HandleServiceError(c, "ListAuctionsHandler", err, map[string]any{"status": status})
		return
	}

	resp := make([]helpers.AuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		resp = append(resp, helpers.ToAuctionResponse(a, false))
	}
	utils.JSONResponse(c, http.StatusOK, resp, "auctions retrieved successfully")
	helpers.LogSuccess("ListAuctionsHandler", "auctions retrieved successfully", map[string]any{
		"status": status,
		"count":  len(resp),
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	details, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.HandleServiceError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(details, true), "auction retrieved successfully")
}

// ListUserAuctionsHandler handles GET /users/:user_id/auctions
func (h *AuctionHandler) ListUserAuctionsHandler(c *gin.Context) {
	userID := c.Param("user_id")
	auctions, err := h.service.ListUserActiveAuctions(c.Request.Context(), userID)
	if err != nil {
		helpers.HandleServiceError(c, "ListUserAuctionsHandler", err, map[string]any{"user_id": userID})
		return
	}

	resp := make([]helpers.AuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		resp = append(resp, helpers.ToAuctionResponse(auction.Details{Auction: a}, false))
	}
	utils.JSONResponse(c, http.StatusOK, resp, "auctions retrieved successfully")
}

// PlaceBidHandler handles POST /auctions/:auction_id/bids
func (h *AuctionHandler) PlaceBidHandler(c *gin.Context) {
	callerID, ok := helpers.CallerID(c, "PlaceBidHandler")
	if !ok {
		return
	}

	var req helpers.BidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	auctionID := c.Param("auction_id")
	bid, err := h.service.PlaceBid(c.Request.Context(), auctionID, callerID, req.OfferPrice)
	if err != nil {
		helpers.HandleServiceError(c, "PlaceBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    callerID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToBidResponse(bid), "bid placed successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid placed successfully", map[string]any{
		"bid_id":      bid.BidID,
		"auction_id":  auctionID,
		"user_id":     callerID,
		"offer_price": bid.OfferPrice,
	})
}

// CloseAuctionHandler handles POST /admin/auctions/:auction_id/close
func (h *AuctionHandler) CloseAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	result, err := h.service.Close(c.Request.Context(), auctionID, metrics.TriggerManual)
	if err != nil {
		helpers.HandleServiceError(c, "CloseAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	message := "auction closed"
	if result.Winner == nil {
		message = "auction closed with no winner"
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToCloseAuctionResponse(result), message)
	helpers.LogSuccess("CloseAuctionHandler", message, map[string]any{
		"auction_id": auctionID,
		"winner_id":  result.Auction.WinnerID,
	})
}
