// internal/handlers/marketplace.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/iagallery/iag-backend/internal/services"
	"github.com/iagallery/iag-backend/internal/utils"
)

type MarketplaceHandler struct {
	marketplace *services.MarketplaceService
}

func NewMarketplaceHandler(marketplace *services.MarketplaceService) *MarketplaceHandler {
	return &MarketplaceHandler{marketplace: marketplace}
}

// Browse handles GET /api/v1/marketplace/listings
func (h *MarketplaceHandler) Browse(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	listings, total, err := h.marketplace.Browse(params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(listings, total, params))
}

// Get handles GET /api/v1/marketplace/listings/:id
func (h *MarketplaceHandler) Get(c *gin.Context) {
	listingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	listing, err := h.marketplace.Get(listingID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, listing)
}

// Create handles POST /api/v1/marketplace/listings
func (h *MarketplaceHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateListingRequest
	if !bindAndValidate(c, &req) {
		return
	}

	listing, err := h.marketplace.CreateListing(userID, &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, listing)
}

// Buy handles POST /api/v1/marketplace/listings/:id/buy
func (h *MarketplaceHandler) Buy(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	txn, err := h.marketplace.Buy(userID, listingID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, txn)
}

// Cancel handles DELETE /api/v1/marketplace/listings/:id
func (h *MarketplaceHandler) Cancel(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.marketplace.CancelListing(userID, listingID); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"cancelled": true})
}
