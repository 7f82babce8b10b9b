// internal/models/ledger.go
package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntry is an append-only debit/credit row. There is no mutable
// balance column anywhere; a user's balance is always derived as
// SUM(credits) - SUM(debits), which makes concurrent monetary updates
// commutative and leaves a full audit trail.
type LedgerEntry struct {
	ImmutableModel
	UserID    uuid.UUID       `json:"user_id" gorm:"type:uuid;not null;index"`
	Direction LedgerDirection `json:"direction" gorm:"type:varchar(10);not null"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Kind      LedgerKind      `json:"kind" gorm:"type:varchar(20);not null;index"`

	// ReferenceType/ReferenceID point at the transaction, artwork or order
	// that caused the entry.
	ReferenceType string     `json:"reference_type,omitempty" gorm:"size:50"`
	ReferenceID   *uuid.UUID `json:"reference_id,omitempty" gorm:"type:uuid;index"`

	// IdempotencyKey prevents the same monetary effect from being applied
	// twice (e.g. a refund replay).
	IdempotencyKey *string `json:"-" gorm:"size:128;uniqueIndex"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
