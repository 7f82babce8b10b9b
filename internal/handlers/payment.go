// internal/handlers/payment.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iagallery/iag-backend/internal/models"
	"github.com/iagallery/iag-backend/internal/services"
	"github.com/iagallery/iag-backend/internal/utils"
)

type PaymentHandler struct {
	payments *services.PaymentService
	ledger   *services.LedgerService
	stripe   *services.StripeService
}

func NewPaymentHandler(payments *services.PaymentService, ledger *services.LedgerService, stripe *services.StripeService) *PaymentHandler {
	return &PaymentHandler{payments: payments, ledger: ledger, stripe: stripe}
}

type createOrderRequest struct {
	ArtworkID uuid.UUID `json:"artwork_id" validate:"required"`
}

// CreateOrder handles POST /api/v1/orders
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req createOrderRequest
	if !bindAndValidate(c, &req) {
		return
	}

	order, err := h.payments.CreateOrder(userID, req.ArtworkID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, order)
}

// GetOrder handles GET /api/v1/orders/:id
func (h *PaymentHandler) GetOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	orderID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	order, err := h.payments.GetOrder(userID, isAdmin(c), orderID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, order)
}

// ListOrders handles GET /api/v1/orders
func (h *PaymentHandler) ListOrders(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	status := models.OrderStatus(c.Query("status"))

	orders, total, err := h.payments.ListOrders(&userID, status, params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(orders, total, params))
}

// CancelOrder handles POST /api/v1/orders/:id/cancel
func (h *PaymentHandler) CancelOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	orderID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.payments.CancelOrder(userID, orderID); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"cancelled": true})
}

// Balance handles GET /api/v1/balance
func (h *PaymentHandler) Balance(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	balance, err := h.ledger.Balance(userID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"balance": balance})
}

// BalanceHistory handles GET /api/v1/balance/history
func (h *PaymentHandler) BalanceHistory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	entries, total, err := h.ledger.History(userID, params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(entries, total, params))
}

type withdrawRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

// Withdraw handles POST /api/v1/withdrawals
func (h *PaymentHandler) Withdraw(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req withdrawRequest
	if !bindAndValidate(c, &req) {
		return
	}

	txn, err := h.payments.RequestWithdrawal(userID, req.Amount)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, txn)
}

// Transactions handles GET /api/v1/transactions
func (h *PaymentHandler) Transactions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	txns, total, err := h.payments.ListTransactions(userID, params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(txns, total, params))
}

type cardIntentRequest struct {
	ArtworkID uuid.UUID `json:"artwork_id" validate:"required"`
}

// CreateCardIntent handles POST /api/v1/payments/card/intent
func (h *PaymentHandler) CreateCardIntent(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req cardIntentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pi, err := h.stripe.CreatePaymentIntent(userID, req.ArtworkID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"payment_intent_id": pi.ID,
		"client_secret":     pi.ClientSecret,
	})
}

type cardConfirmRequest struct {
	ArtworkID       uuid.UUID `json:"artwork_id" validate:"required"`
	PaymentIntentID string    `json:"payment_intent_id" validate:"required"`
}

// ConfirmCardPurchase handles POST /api/v1/payments/card/confirm
func (h *PaymentHandler) ConfirmCardPurchase(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req cardConfirmRequest
	if !bindAndValidate(c, &req) {
		return
	}

	txn, err := h.stripe.ConfirmCardPurchase(userID, req.ArtworkID, req.PaymentIntentID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, txn)
}
