// internal/services/payment_service.go
package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/iagallery/iag-backend/internal/apperrors"
	"github.com/iagallery/iag-backend/internal/config"
	"github.com/iagallery/iag-backend/internal/fees"
	"github.com/iagallery/iag-backend/internal/keylock"
	"github.com/iagallery/iag-backend/internal/models"
	"github.com/iagallery/iag-backend/internal/utils"
)

// PaymentService runs the bank-transfer side of the shop: payment orders,
// incoming bank transaction reconciliation, admin confirmation and refunds,
// and balance withdrawals.
//
// Order status moves through conditional updates (UPDATE ... WHERE status =
// old), so a replayed or raced transition fails on row count instead of
// silently double-applying.
type PaymentService struct {
	db *gorm.DB
	lockManager
	ledger        *LedgerService
	audit         *AuditService
	notifications *NotificationService
	license       *LicenseService
	cfg           config.PaymentConfig
}

func NewPaymentService(db *gorm.DB, locks *keylock.Locker, ledger *LedgerService, audit *AuditService, notifications *NotificationService, license *LicenseService, cfg *config.Config) *PaymentService {
	return &PaymentService{
		db:            db,
		lockManager:   newLockManager(locks, cfg),
		ledger:        ledger,
		audit:         audit,
		notifications: notifications,
		license:       license,
		cfg:           cfg.Payment,
	}
}

// CreateOrder opens a bank-transfer purchase intent: the buyer gets a
// unique reference code to put in the transfer text and a deadline to pay.
func (s *PaymentService) CreateOrder(buyerID, artworkID uuid.UUID) (*models.PaymentOrder, error) {
	release, err := s.lockArtwork(artworkID)
	if err != nil {
		return nil, err
	}
	defer release()

	var order *models.PaymentOrder
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var artwork models.Artwork
		if err := tx.First(&artwork, "id = ?", artworkID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("artwork")
			}
			return fmt.Errorf("failed to load artwork: %w", err)
		}
		if artwork.LicenseState != models.LicenseStateAvailable {
			return apperrors.InvalidState("artwork is not available for purchase")
		}

		var buyer models.User
		if err := tx.First(&buyer, "id = ?", buyerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("buyer")
			}
			return fmt.Errorf("failed to load buyer: %w", err)
		}
		if buyer.Status != models.UserStatusActive {
			return apperrors.Authorization("buyer account is not active")
		}

		var open int64
		err := tx.Model(&models.PaymentOrder{}).
			Where("artwork_id = ? AND buyer_id = ? AND status IN ?", artworkID, buyerID,
				[]models.OrderStatus{models.OrderStatusPendingPayment, models.OrderStatusPaymentReceived}).
			Count(&open).Error
		if err != nil {
			return fmt.Errorf("failed to check open orders: %w", err)
		}
		if open > 0 {
			return apperrors.Conflict("an open payment order for this artwork already exists")
		}

		now := time.Now()
		reference, err := s.uniqueReference(tx, now)
		if err != nil {
			return err
		}

		order = &models.PaymentOrder{
			ArtworkID:   artworkID,
			BuyerID:     buyerID,
			Reference:   reference,
			TotalAmount: fees.PurchaseTotal(artwork.Price),
			Status:      models.OrderStatusPendingPayment,
			ExpiresAt:   now.Add(time.Duration(s.cfg.OrderTTLHours) * time.Hour),
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create payment order: %w", err)
		}

		return s.audit.RecordTx(tx, models.AuditOrderCreated, &buyerID, &artworkID, &order.ID, models.JSONB{
			"reference":    order.Reference,
			"total_amount": order.TotalAmount.StringFixed(2),
			"expires_at":   order.ExpiresAt.Format(time.RFC3339),
		})
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (s *PaymentService) uniqueReference(tx *gorm.DB, now time.Time) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		reference, err := utils.GenerateReferenceCode(s.cfg.ReferencePrefix, now)
		if err != nil {
			return "", fmt.Errorf("failed to generate reference: %w", err)
		}

		var count int64
		if err := tx.Model(&models.PaymentOrder{}).Where("reference = ?", reference).Count(&count).Error; err != nil {
			return "", fmt.Errorf("failed to check reference uniqueness: %w", err)
		}
		if count == 0 {
			return reference, nil
		}
	}

	return "", fmt.Errorf("failed to find a unique payment reference")
}

func (s *PaymentService) GetOrder(callerID uuid.UUID, isAdmin bool, orderID uuid.UUID) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	if err := s.db.Preload("Artwork").First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("payment order")
		}
		return nil, fmt.Errorf("failed to load payment order: %w", err)
	}

	if !isAdmin && order.BuyerID != callerID {
		return nil, apperrors.Authorization("not your order")
	}

	return &order, nil
}

func (s *PaymentService) ListOrders(buyerID *uuid.UUID, status models.OrderStatus, params utils.PaginationParams) ([]models.PaymentOrder, int64, error) {
	query := s.db.Model(&models.PaymentOrder{})
	if buyerID != nil {
		query = query.Where("buyer_id = ?", *buyerID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payment orders: %w", err)
	}

	allowedSortFields := []string{"created_at", "expires_at", "total_amount"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var orders []models.PaymentOrder
	if err := query.Preload("Artwork").Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch payment orders: %w", err)
	}

	return orders, total, nil
}

// CancelOrder lets the buyer abandon an order that has not been paid yet.
func (s *PaymentService) CancelOrder(buyerID, orderID uuid.UUID) error {
	release, err := s.lockOrder(orderID)
	if err != nil {
		return err
	}
	defer release()

	return s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.findOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.BuyerID != buyerID {
			return apperrors.Authorization("not your order")
		}
		if order.Status != models.OrderStatusPendingPayment {
			return apperrors.InvalidState("only unpaid orders can be cancelled")
		}

		now := time.Now()
		if err := s.transitionOrder(tx, order.ID, models.OrderStatusPendingPayment, map[string]interface{}{
			"status":       models.OrderStatusCancelled,
			"cancelled_at": now,
		}); err != nil {
			return err
		}

		return s.audit.RecordTx(tx, models.AuditOrderCancelled, &buyerID, &order.ArtworkID, &order.ID, nil)
	})
}

type RecordBankTransactionRequest struct {
	ExternalID      string          `json:"external_id" validate:"required,max=128"`
	Amount          decimal.Decimal `json:"amount" validate:"required"`
	Currency        string          `json:"currency" validate:"omitempty,len=3"`
	SenderName      string          `json:"sender_name" validate:"max=255"`
	SenderIBAN      string          `json:"sender_iban" validate:"max=34"`
	Reference       string          `json:"reference"`
	TransactionDate time.Time       `json:"transaction_date"`
}

// RecordBankTransaction ingests one bank ledger row and tries to match it
// to an open order by reference text and exact amount. Replays of the same
// ExternalID return the stored row without side effects.
func (s *PaymentService) RecordBankTransaction(adminID uuid.UUID, req *RecordBankTransactionRequest) (*models.BankTransaction, error) {
	if !req.Amount.IsPositive() {
		return nil, apperrors.Validation("amount must be positive")
	}

	var bankTx *models.BankTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.BankTransaction
		err := tx.First(&existing, "external_id = ?", req.ExternalID).Error
		if err == nil {
			bankTx = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check existing bank transaction: %w", err)
		}

		currency := req.Currency
		if currency == "" {
			currency = s.cfg.Currency
		}
		txDate := req.TransactionDate
		if txDate.IsZero() {
			txDate = time.Now()
		}

		bankTx = &models.BankTransaction{
			ExternalID:      req.ExternalID,
			Amount:          req.Amount.Round(2),
			Currency:        strings.ToUpper(currency),
			SenderName:      req.SenderName,
			SenderIBAN:      req.SenderIBAN,
			Reference:       req.Reference,
			TransactionDate: txDate,
			Status:          models.BankTransactionStatusUnmatched,
			RecordedBy:      adminID,
		}
		if err := tx.Create(bankTx).Error; err != nil {
			return fmt.Errorf("failed to record bank transaction: %w", err)
		}

		if err := s.audit.RecordTx(tx, models.AuditBankTxRecorded, &adminID, nil, nil, models.JSONB{
			"external_id": bankTx.ExternalID,
			"amount":      bankTx.Amount.StringFixed(2),
			"reference":   bankTx.Reference,
		}); err != nil {
			return err
		}

		return s.matchTx(tx, adminID, bankTx)
	})
	if err != nil {
		return nil, err
	}

	return bankTx, nil
}

// matchTx pairs the bank transaction with the oldest open order whose
// reference appears in the transfer text and whose amount matches to the
// cent. Anything else lands on the unmatched queue for manual resolution.
func (s *PaymentService) matchTx(tx *gorm.DB, adminID uuid.UUID, bankTx *models.BankTransaction) error {
	now := time.Now()

	var candidates []models.PaymentOrder
	err := tx.Where("status IN ? AND expires_at > ?",
		[]models.OrderStatus{models.OrderStatusPendingPayment, models.OrderStatusPaymentReceived}, now).
		Order("created_at asc").
		Find(&candidates).Error
	if err != nil {
		return fmt.Errorf("failed to load candidate orders: %w", err)
	}

	text := normalizeReference(bankTx.Reference)
	for i := range candidates {
		order := &candidates[i]
		if !strings.Contains(text, normalizeReference(order.Reference)) {
			continue
		}
		if !bankTx.Amount.Equal(order.TotalAmount) {
			continue
		}

		// A duplicate transfer for an already-paid order still links to it;
		// the order keeps its first matched transaction.
		if order.Status == models.OrderStatusPendingPayment {
			if err := s.transitionOrder(tx, order.ID, models.OrderStatusPendingPayment, map[string]interface{}{
				"status":                      models.OrderStatusPaymentReceived,
				"matched_bank_transaction_id": bankTx.ID,
			}); err != nil {
				return err
			}
		}

		err := tx.Model(&models.BankTransaction{}).
			Where("id = ?", bankTx.ID).
			Updates(map[string]interface{}{
				"status":           models.BankTransactionStatusMatched,
				"matched_order_id": order.ID,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to mark bank transaction matched: %w", err)
		}
		bankTx.Status = models.BankTransactionStatusMatched
		bankTx.MatchedOrderID = &order.ID

		return s.audit.RecordTx(tx, models.AuditBankTxMatched, &adminID, &order.ArtworkID, &order.ID, models.JSONB{
			"external_id": bankTx.ExternalID,
			"reference":   order.Reference,
			"amount":      bankTx.Amount.StringFixed(2),
		})
	}

	return s.notifications.NotifyUnmatchedTransactionTx(tx, bankTx)
}

// normalizeReference strips everything but letters and digits and
// uppercases, so "iag 2026 abc123" still matches "IAG-2026-ABC123".
func normalizeReference(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 32)
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResolveBankTransaction manually assigns an unmatched bank transaction to
// an order, at the admin's discretion even when amounts differ.
func (s *PaymentService) ResolveBankTransaction(adminID, bankTxID, orderID uuid.UUID) error {
	release, err := s.lockOrder(orderID)
	if err != nil {
		return err
	}
	defer release()

	return s.db.Transaction(func(tx *gorm.DB) error {
		var bankTx models.BankTransaction
		if err := tx.First(&bankTx, "id = ?", bankTxID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("bank transaction")
			}
			return fmt.Errorf("failed to load bank transaction: %w", err)
		}
		if bankTx.Status != models.BankTransactionStatusUnmatched {
			return apperrors.InvalidState("bank transaction is already matched")
		}

		order, err := s.findOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPendingPayment {
			return apperrors.InvalidState("order is not awaiting payment")
		}

		if err := s.transitionOrder(tx, order.ID, models.OrderStatusPendingPayment, map[string]interface{}{
			"status":                      models.OrderStatusPaymentReceived,
			"matched_bank_transaction_id": bankTx.ID,
		}); err != nil {
			return err
		}

		err = tx.Model(&models.BankTransaction{}).
			Where("id = ?", bankTx.ID).
			Updates(map[string]interface{}{
				"status":           models.BankTransactionStatusManuallyResolved,
				"matched_order_id": order.ID,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to resolve bank transaction: %w", err)
		}

		return s.audit.RecordTx(tx, models.AuditBankTxResolved, &adminID, &order.ArtworkID, &order.ID, models.JSONB{
			"external_id":  bankTx.ExternalID,
			"bank_amount":  bankTx.Amount.StringFixed(2),
			"order_amount": order.TotalAmount.StringFixed(2),
		})
	})
}

func (s *PaymentService) ListBankTransactions(status models.BankTransactionStatus, params utils.PaginationParams) ([]models.BankTransaction, int64, error) {
	query := s.db.Model(&models.BankTransaction{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bank transactions: %w", err)
	}

	allowedSortFields := []string{"created_at", "transaction_date", "amount"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var txs []models.BankTransaction
	if err := query.Find(&txs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch bank transactions: %w", err)
	}

	return txs, total, nil
}

// ConfirmOrder is the admin's commit of a paid order. Confirmation and
// delivery are a single transaction around the license purchase: either the
// buyer ends up owning the license and the order DELIVERED, or nothing
// changes.
func (s *PaymentService) ConfirmOrder(adminID, orderID uuid.UUID) (*models.PaymentOrder, error) {
	releaseOrder, err := s.lockOrder(orderID)
	if err != nil {
		return nil, err
	}
	defer releaseOrder()

	var current models.PaymentOrder
	if err := s.db.First(&current, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("payment order")
		}
		return nil, fmt.Errorf("failed to load payment order: %w", err)
	}

	releaseArtwork, err := s.lockArtwork(current.ArtworkID)
	if err != nil {
		return nil, err
	}
	defer releaseArtwork()

	var order *models.PaymentOrder
	err = s.db.Transaction(func(tx *gorm.DB) error {
		o, err := s.findOrder(tx, orderID)
		if err != nil {
			return err
		}
		// An admin may confirm an order whose payment was verified outside
		// the matching flow, so PENDING_PAYMENT is accepted alongside
		// PAYMENT_RECEIVED. Terminal orders are not.
		if o.Status != models.OrderStatusPaymentReceived && o.Status != models.OrderStatusPendingPayment {
			return apperrors.InvalidState("order can no longer be confirmed")
		}

		if err := s.transitionOrder(tx, o.ID, o.Status, map[string]interface{}{
			"status":       models.OrderStatusConfirmed,
			"confirmed_by": adminID,
		}); err != nil {
			return err
		}

		if _, err := s.license.PurchaseInTx(tx, o.BuyerID, o.ArtworkID, models.PaymentMethodBankTransfer, o.Reference); err != nil {
			return err
		}

		now := time.Now()
		if err := s.transitionOrder(tx, o.ID, models.OrderStatusConfirmed, map[string]interface{}{
			"status":       models.OrderStatusDelivered,
			"delivered_at": now,
		}); err != nil {
			return err
		}

		if err := s.audit.RecordTx(tx, models.AuditOrderConfirmed, &adminID, &o.ArtworkID, &o.ID, models.JSONB{
			"reference": o.Reference,
			"buyer_id":  o.BuyerID.String(),
		}); err != nil {
			return err
		}

		order, err = s.findOrder(tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// RefundOrder reverses a delivered order: the license goes back through the
// refund transition and the buyer is credited. Fails if the license has
// already been used. A reason is mandatory.
func (s *PaymentService) RefundOrder(adminID, orderID uuid.UUID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return apperrors.Validation("a reason is required for order refunds")
	}

	releaseOrder, err := s.lockOrder(orderID)
	if err != nil {
		return err
	}
	defer releaseOrder()

	var current models.PaymentOrder
	if err := s.db.First(&current, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("payment order")
		}
		return fmt.Errorf("failed to load payment order: %w", err)
	}

	releaseArtwork, err := s.lockArtwork(current.ArtworkID)
	if err != nil {
		return err
	}
	defer releaseArtwork()

	return s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.findOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusDelivered {
			return apperrors.InvalidState("only delivered orders can be refunded")
		}

		if err := s.transitionOrder(tx, order.ID, models.OrderStatusDelivered, map[string]interface{}{
			"status":        models.OrderStatusRefunded,
			"refund_reason": reason,
		}); err != nil {
			return err
		}

		if _, err := s.license.RefundInTx(tx, adminID, order.ArtworkID, reason, &order.ID); err != nil {
			return err
		}

		return s.audit.RecordTx(tx, models.AuditOrderRefunded, &adminID, &order.ArtworkID, &order.ID, models.JSONB{
			"reference": order.Reference,
			"reason":    reason,
		})
	})
}

// ExpireOrders moves overdue unpaid orders to EXPIRED. A terminal order is
// never resurrected: late bank transactions for it go to the unmatched
// queue instead.
func (s *PaymentService) ExpireOrders(now time.Time) (int64, error) {
	var expired int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var overdue []models.PaymentOrder
		err := tx.Where("status = ? AND expires_at <= ?", models.OrderStatusPendingPayment, now).
			Find(&overdue).Error
		if err != nil {
			return fmt.Errorf("failed to load overdue orders: %w", err)
		}

		for i := range overdue {
			order := &overdue[i]
			if err := s.transitionOrder(tx, order.ID, models.OrderStatusPendingPayment, map[string]interface{}{
				"status": models.OrderStatusExpired,
			}); err != nil {
				return err
			}

			if err := s.audit.RecordTx(tx, models.AuditOrderExpired, nil, &order.ArtworkID, &order.ID, models.JSONB{
				"reference": order.Reference,
			}); err != nil {
				return err
			}

			if err := s.notifications.NotifyOrderExpiredTx(tx, order); err != nil {
				return err
			}

			expired++
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return expired, nil
}

// RequestWithdrawal debits the user's balance for a payout. The 1% fee is
// taken out of the withdrawn amount; the transaction stays pending until
// the payout is executed outside the system.
func (s *PaymentService) RequestWithdrawal(userID uuid.UUID, amount decimal.Decimal) (*models.Transaction, error) {
	minimum := decimal.NewFromFloat(s.cfg.MinimumWithdrawal)
	if amount.LessThan(minimum) {
		return nil, apperrors.Validation("minimum withdrawal is %s", minimum.StringFixed(2))
	}

	release, err := s.lockLedger(userID)
	if err != nil {
		return nil, err
	}
	defer release()

	var txn *models.Transaction
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.DebitTx(tx, userID, amount, models.LedgerKindWithdrawal, "withdrawal", nil, nil); err != nil {
			return err
		}

		fee := fees.WithdrawalFee(amount)
		now := time.Now()
		txn = &models.Transaction{
			TransactionType: models.TransactionTypeWithdrawal,
			SellerID:        &userID,
			Amount:          amount,
			Fee:             fee,
			PaymentMethod:   models.PaymentMethodBankTransfer,
			Status:          models.TransactionStatusPending,
			ProcessedAt:     &now,
			Details: models.JSONB{
				"payout_amount": amount.Sub(fee).StringFixed(2),
			},
		}
		if err := tx.Create(txn).Error; err != nil {
			return fmt.Errorf("failed to create withdrawal transaction: %w", err)
		}

		return s.audit.RecordTx(tx, models.AuditWithdrawalRequested, &userID, nil, nil, models.JSONB{
			"amount": amount.StringFixed(2),
			"fee":    fee.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}

	return txn, nil
}

func (s *PaymentService) ListTransactions(userID uuid.UUID, params utils.PaginationParams) ([]models.Transaction, int64, error) {
	query := s.db.Model(&models.Transaction{}).
		Where("buyer_id = ? OR seller_id = ?", userID, userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	allowedSortFields := []string{"created_at", "amount"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var txns []models.Transaction
	if err := query.Find(&txns).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	return txns, total, nil
}

func (s *PaymentService) findOrder(tx *gorm.DB, id uuid.UUID) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	if err := tx.First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("payment order")
		}
		return nil, fmt.Errorf("failed to load payment order: %w", err)
	}

	return &order, nil
}

func (s *PaymentService) transitionOrder(tx *gorm.DB, id uuid.UUID, from models.OrderStatus, updates map[string]interface{}) error {
	result := tx.Model(&models.PaymentOrder{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update order status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Conflict("order status changed concurrently")
	}

	return nil
}
