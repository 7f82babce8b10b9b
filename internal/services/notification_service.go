// internal/services/notification_service.go
package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/iagallery/iag-backend/internal/apperrors"
	"github.com/iagallery/iag-backend/internal/models"
	"github.com/iagallery/iag-backend/internal/utils"
)

// NotificationService surfaces events that need an admin's attention,
// primarily bank transfers that could not be matched automatically.
type NotificationService struct {
	db *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

func (s *NotificationService) NotifyUnmatchedTransactionTx(tx *gorm.DB, bankTx *models.BankTransaction) error {
	notification := &models.AdminNotification{
		Type:                models.NotificationUnmatchedTransaction,
		Title:               "Unmatched bank transfer",
		Message:             fmt.Sprintf("Incoming transfer %s of %s %s could not be matched to any open order", bankTx.ExternalID, bankTx.Amount.StringFixed(2), bankTx.Currency),
		Priority:            models.NotificationPriorityHigh,
		RelatedResourceType: "bank_transaction",
		RelatedResourceID:   &bankTx.ID,
	}

	if err := tx.Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create admin notification: %w", err)
	}

	return nil
}

func (s *NotificationService) NotifyOrderExpiredTx(tx *gorm.DB, order *models.PaymentOrder) error {
	notification := &models.AdminNotification{
		Type:                models.NotificationOrderExpired,
		Title:               "Payment order expired",
		Message:             fmt.Sprintf("Order %s expired without a confirmed payment", order.Reference),
		Priority:            models.NotificationPriorityMedium,
		RelatedResourceType: "payment_order",
		RelatedResourceID:   &order.ID,
	}

	if err := tx.Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create admin notification: %w", err)
	}

	return nil
}

func (s *NotificationService) List(params utils.PaginationParams, unreadOnly bool) ([]models.AdminNotification, int64, error) {
	query := s.db.Model(&models.AdminNotification{})
	if unreadOnly {
		query = query.Where("status = ?", models.NotificationStatusUnread)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	allowedSortFields := []string{"created_at", "priority"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var notifications []models.AdminNotification
	if err := query.Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch notifications: %w", err)
	}

	return notifications, total, nil
}

func (s *NotificationService) MarkRead(id uuid.UUID) error {
	now := time.Now()
	result := s.db.Model(&models.AdminNotification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":  models.NotificationStatusRead,
			"read_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("notification")
	}

	return nil
}
