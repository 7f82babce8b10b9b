// internal/services/audit_service.go
package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/iagallery/iag-backend/internal/config"
	"github.com/iagallery/iag-backend/internal/models"
	"github.com/iagallery/iag-backend/internal/utils"
)

// AuditService writes the append-only audit trail. Entries live forever by
// default; refunding an artwork stamps its history with an expiry so the
// retention sweep can hard-delete it later.
type AuditService struct {
	db        *gorm.DB
	retention time.Duration
}

func NewAuditService(db *gorm.DB, cfg *config.Config) *AuditService {
	return &AuditService{
		db:        db,
		retention: time.Duration(cfg.Audit.RetentionHours) * time.Hour,
	}
}

func (s *AuditService) Record(action string, actorID, artworkID, orderID *uuid.UUID, details models.JSONB) {
	if err := s.RecordTx(s.db, action, actorID, artworkID, orderID, details); err != nil {
		logrus.WithError(err).WithField("action", action).Error("Failed to record audit log")
	}
}

func (s *AuditService) RecordTx(tx *gorm.DB, action string, actorID, artworkID, orderID *uuid.UUID, details models.JSONB) error {
	entry := &models.AuditLog{
		Action:    action,
		ActorID:   actorID,
		ArtworkID: artworkID,
		OrderID:   orderID,
		Details:   details,
	}

	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	return nil
}

// ScheduleExpiryTx stamps every audit entry of the artwork that has no
// expiry yet with refund time plus the retention window.
func (s *AuditService) ScheduleExpiryTx(tx *gorm.DB, artworkID uuid.UUID, refundedAt time.Time) error {
	expiresAt := refundedAt.Add(s.retention)

	err := tx.Model(&models.AuditLog{}).
		Where("artwork_id = ? AND expires_at IS NULL", artworkID).
		Update("expires_at", expiresAt).Error
	if err != nil {
		return fmt.Errorf("failed to schedule audit expiry: %w", err)
	}

	return nil
}

// SweepExpired hard-deletes audit entries whose expiry has passed and
// returns how many were removed.
func (s *AuditService) SweepExpired(now time.Time) (int64, error) {
	result := s.db.Where("expires_at IS NOT NULL AND expires_at <= ?", now).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to sweep expired audit logs: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func (s *AuditService) Query(params utils.PaginationParams, action string, artworkID, actorID *uuid.UUID) ([]models.AuditLog, int64, error) {
	query := s.db.Model(&models.AuditLog{})

	if action != "" {
		query = query.Where("action = ?", action)
	}
	if artworkID != nil {
		query = query.Where("artwork_id = ?", *artworkID)
	}
	if actorID != nil {
		query = query.Where("actor_id = ?", *actorID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	allowedSortFields := []string{"created_at", "action"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var logs []models.AuditLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	return logs, total, nil
}

func (s *AuditService) Stats() (map[string]interface{}, error) {
	var total int64
	if err := s.db.Model(&models.AuditLog{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count audit logs: %w", err)
	}

	var pendingDeletion int64
	err := s.db.Model(&models.AuditLog{}).
		Where("expires_at IS NOT NULL").
		Count(&pendingDeletion).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count expiring audit logs: %w", err)
	}

	type actionCount struct {
		Action string
		Count  int64
	}
	var rows []actionCount
	err = s.db.Model(&models.AuditLog{}).
		Select("action, COUNT(*) as count").
		Group("action").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit actions: %w", err)
	}

	byAction := make(map[string]int64, len(rows))
	for _, row := range rows {
		byAction[row.Action] = row.Count
	}

	return map[string]interface{}{
		"total_entries":          total,
		"scheduled_for_deletion": pendingDeletion,
		"by_action":              byAction,
		"retention_hours":        int(s.retention.Hours()),
	}, nil
}
