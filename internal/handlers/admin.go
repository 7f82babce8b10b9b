// internal/handlers/admin.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/iagallery/iag-backend/internal/models"
	"github.com/iagallery/iag-backend/internal/services"
	"github.com/iagallery/iag-backend/internal/utils"
)

// AdminHandler groups the operator console: bank transaction ingestion and
// the unmatched queue, order confirmation and refunds, manual license
// overrides, audit access and notifications.
type AdminHandler struct {
	payments      *services.PaymentService
	license       *services.LicenseService
	artworks      *services.ArtworkService
	audit         *services.AuditService
	notifications *services.NotificationService
	storage       *services.StorageService
}

func NewAdminHandler(payments *services.PaymentService, license *services.LicenseService, artworks *services.ArtworkService, audit *services.AuditService, notifications *services.NotificationService, storage *services.StorageService) *AdminHandler {
	return &AdminHandler{
		payments:      payments,
		license:       license,
		artworks:      artworks,
		audit:         audit,
		notifications: notifications,
		storage:       storage,
	}
}

// CreateArtwork handles POST /api/v1/admin/artworks
func (h *AdminHandler) CreateArtwork(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateArtworkRequest
	if !bindAndValidate(c, &req) {
		return
	}

	artwork, err := h.artworks.Create(adminID, &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, artwork)
}

// UploadAsset handles POST /api/v1/admin/artworks/:id/asset
func (h *AdminHandler) UploadAsset(c *gin.Context) {
	artworkID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, "file is required", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.BadRequestResponse(c, "could not read file", nil)
		return
	}
	defer file.Close()

	key, err := h.storage.UploadMaster(file, fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	if err := h.artworks.SetAsset(artworkID, key); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"asset_key": key})
}

// Provenance handles GET /api/v1/admin/artworks/:id/provenance
func (h *AdminHandler) Provenance(c *gin.Context) {
	artworkID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	records, err := h.artworks.Provenance(artworkID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, records)
}

// RecordBankTransaction handles POST /api/v1/admin/bank-transactions
func (h *AdminHandler) RecordBankTransaction(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.RecordBankTransactionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	bankTx, err := h.payments.RecordBankTransaction(adminID, &req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, bankTx)
}

// ListBankTransactions handles GET /api/v1/admin/bank-transactions
func (h *AdminHandler) ListBankTransactions(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	status := models.BankTransactionStatus(c.Query("status"))

	txs, total, err := h.payments.ListBankTransactions(status, params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(txs, total, params))
}

type resolveBankTxRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
}

// ResolveBankTransaction handles POST /api/v1/admin/bank-transactions/:id/resolve
func (h *AdminHandler) ResolveBankTransaction(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	bankTxID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req resolveBankTxRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.payments.ResolveBankTransaction(adminID, bankTxID, req.OrderID); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"resolved": true})
}

// ListOrders handles GET /api/v1/admin/orders
func (h *AdminHandler) ListOrders(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	status := models.OrderStatus(c.Query("status"))

	orders, total, err := h.payments.ListOrders(nil, status, params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(orders, total, params))
}

// ConfirmOrder handles POST /api/v1/admin/orders/:id/confirm
func (h *AdminHandler) ConfirmOrder(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	orderID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	order, err := h.payments.ConfirmOrder(adminID, orderID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, order)
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required,min=3"`
}

// RefundOrder handles POST /api/v1/admin/orders/:id/refund
func (h *AdminHandler) RefundOrder(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	orderID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req reasonRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.payments.RefundOrder(adminID, orderID, req.Reason); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"refunded": true})
}

// ManualRefund handles POST /api/v1/admin/artworks/:id/refund
func (h *AdminHandler) ManualRefund(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	artworkID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req reasonRequest
	if !bindAndValidate(c, &req) {
		return
	}

	txn, err := h.license.AdminRefund(adminID, artworkID, req.Reason)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, txn)
}

type manualTransferRequest struct {
	ToUserID uuid.UUID `json:"to_user_id" validate:"required"`
	Reason   string    `json:"reason" validate:"required,min=3"`
}

// ManualTransfer handles POST /api/v1/admin/artworks/:id/transfer
func (h *AdminHandler) ManualTransfer(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	artworkID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req manualTransferRequest
	if !bindAndValidate(c, &req) {
		return
	}

	txn, err := h.license.AdminTransfer(adminID, artworkID, req.ToUserID, req.Reason)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, txn)
}

// AuditLogs handles GET /api/v1/admin/audit-logs
func (h *AdminHandler) AuditLogs(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	action := c.Query("action")

	var artworkID, actorID *uuid.UUID
	if v := c.Query("artwork_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			utils.BadRequestResponse(c, "invalid artwork_id", nil)
			return
		}
		artworkID = &id
	}
	if v := c.Query("actor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			utils.BadRequestResponse(c, "invalid actor_id", nil)
			return
		}
		actorID = &id
	}

	logs, total, err := h.audit.Query(params, action, artworkID, actorID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(logs, total, params))
}

// AuditStats handles GET /api/v1/admin/audit-logs/stats
func (h *AdminHandler) AuditStats(c *gin.Context) {
	stats, err := h.audit.Stats()
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, stats)
}

// Notifications handles GET /api/v1/admin/notifications
func (h *AdminHandler) Notifications(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	unreadOnly := c.Query("unread") == "true"

	notifications, total, err := h.notifications.List(params, unreadOnly)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(notifications, total, params))
}

// MarkNotificationRead handles POST /api/v1/admin/notifications/:id/read
func (h *AdminHandler) MarkNotificationRead(c *gin.Context) {
	notificationID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.notifications.MarkRead(notificationID); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"read": true})
}
