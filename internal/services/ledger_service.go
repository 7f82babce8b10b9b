// internal/services/ledger_service.go
package services

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/iagallery/iag-backend/internal/apperrors"
	"github.com/iagallery/iag-backend/internal/models"
	"github.com/iagallery/iag-backend/internal/utils"
)

// LedgerService manages user balances as append-only debit/credit entries.
// A balance is always derived, never stored, so monetary effects commit in
// the same database transaction as the state transition that causes them.
type LedgerService struct {
	db *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{db: db}
}

func (s *LedgerService) Balance(userID uuid.UUID) (decimal.Decimal, error) {
	return s.BalanceTx(s.db, userID)
}

func (s *LedgerService) BalanceTx(tx *gorm.DB, userID uuid.UUID) (decimal.Decimal, error) {
	var sum float64
	err := tx.Model(&models.LedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE -amount END), 0)").
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to compute balance: %w", err)
	}

	return decimal.NewFromFloat(sum).Round(2), nil
}

// CreditTx appends a credit entry. Credits are commutative and never fail
// on balance grounds.
func (s *LedgerService) CreditTx(tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, kind models.LedgerKind, refType string, refID *uuid.UUID, idempotencyKey *string) error {
	if amount.IsNegative() {
		return apperrors.Validation("credit amount must not be negative")
	}

	entry := &models.LedgerEntry{
		UserID:         userID,
		Direction:      models.LedgerDirectionCredit,
		Amount:         amount,
		Kind:           kind,
		ReferenceType:  refType,
		ReferenceID:    refID,
		IdempotencyKey: idempotencyKey,
	}

	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create ledger credit: %w", err)
	}

	return nil
}

// DebitTx appends a debit entry after verifying the derived balance covers
// it. The caller is expected to hold the user's ledger lock so the check
// and insert are not raced by a concurrent debit.
func (s *LedgerService) DebitTx(tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, kind models.LedgerKind, refType string, refID *uuid.UUID, idempotencyKey *string) error {
	if amount.IsNegative() {
		return apperrors.Validation("debit amount must not be negative")
	}

	balance, err := s.BalanceTx(tx, userID)
	if err != nil {
		return err
	}

	if balance.LessThan(amount) {
		return apperrors.Validation("insufficient balance: have %s, need %s", balance.StringFixed(2), amount.StringFixed(2))
	}

	entry := &models.LedgerEntry{
		UserID:         userID,
		Direction:      models.LedgerDirectionDebit,
		Amount:         amount,
		Kind:           kind,
		ReferenceType:  refType,
		ReferenceID:    refID,
		IdempotencyKey: idempotencyKey,
	}

	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create ledger debit: %w", err)
	}

	return nil
}

func (s *LedgerService) History(userID uuid.UUID, params utils.PaginationParams) ([]models.LedgerEntry, int64, error) {
	query := s.db.Model(&models.LedgerEntry{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	allowedSortFields := []string{"created_at", "amount"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var entries []models.LedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch ledger entries: %w", err)
	}

	return entries, total, nil
}
