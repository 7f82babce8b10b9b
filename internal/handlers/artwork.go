// internal/handlers/artwork.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/iagallery/iag-backend/internal/models"
	"github.com/iagallery/iag-backend/internal/services"
	"github.com/iagallery/iag-backend/internal/utils"
)

type ArtworkHandler struct {
	artworks *services.ArtworkService
	license  *services.LicenseService
}

func NewArtworkHandler(artworks *services.ArtworkService, license *services.LicenseService) *ArtworkHandler {
	return &ArtworkHandler{artworks: artworks, license: license}
}

// List handles GET /api/v1/artworks
func (h *ArtworkHandler) List(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	availableOnly := c.Query("available") == "true"

	artworks, total, err := h.artworks.Browse(params, availableOnly)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	admin := isAdmin(c)
	views := make([]models.ArtworkView, 0, len(artworks))
	for i := range artworks {
		views = append(views, artworks[i].View(admin))
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(views, total, params))
}

// Get handles GET /api/v1/artworks/:id
func (h *ArtworkHandler) Get(c *gin.Context) {
	artworkID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	artwork, err := h.artworks.Get(artworkID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	reveal := isAdmin(c)
	if !reveal {
		if callerStr, ok := utils.GetUserIDFromContext(c); ok {
			reveal = artwork.OwnerID != nil && artwork.OwnerID.String() == callerStr
		}
	}

	utils.SuccessResponse(c, artwork.View(reveal))
}

type purchaseRequest struct {
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"required,oneof=balance"`
}

// Purchase handles POST /api/v1/artworks/:id/purchase. Only balance
// purchases settle here; card goes through the payment intent endpoints and
// bank transfer through payment orders.
func (h *ArtworkHandler) Purchase(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	artworkID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req purchaseRequest
	if !bindAndValidate(c, &req) {
		return
	}

	txn, err := h.license.Purchase(userID, artworkID, models.PaymentMethodBalance, "")
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, txn)
}

// Download handles POST /api/v1/artworks/:id/download. The first download
// consumes the license.
func (h *ArtworkHandler) Download(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	artworkID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	url, err := h.license.Download(userID, artworkID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"download_url": url})
}

// Refund handles POST /api/v1/artworks/:id/refund
func (h *ArtworkHandler) Refund(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	artworkID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	txn, err := h.license.Refund(userID, artworkID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, txn)
}

// MyCollection handles GET /api/v1/my/artworks
func (h *ArtworkHandler) MyCollection(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	artworks, total, err := h.artworks.OwnedBy(userID, params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	views := make([]models.ArtworkView, 0, len(artworks))
	for i := range artworks {
		views = append(views, artworks[i].View(true))
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(views, total, params))
}
