// internal/models/payment.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentOrder is a bank-transfer purchase intent. The buyer wires
// TotalAmount with Reference in the transfer text; the reconciliation
// engine matches incoming bank records against it. Orders reach a terminal
// status but are never physically deleted.
type PaymentOrder struct {
	BaseModel
	ArtworkID   uuid.UUID       `json:"artwork_id" gorm:"type:uuid;not null;index"`
	BuyerID     uuid.UUID       `json:"buyer_id" gorm:"type:uuid;not null;index"`
	Reference   string          `json:"reference" gorm:"size:32;not null;uniqueIndex"`
	TotalAmount decimal.Decimal `json:"total_amount" gorm:"type:decimal(12,2);not null"`
	Status      OrderStatus     `json:"status" gorm:"type:varchar(20);not null;default:'PENDING_PAYMENT';index"`
	ExpiresAt   time.Time       `json:"expires_at" gorm:"not null;index"`

	MatchedBankTransactionID *uuid.UUID `json:"matched_bank_transaction_id,omitempty" gorm:"type:uuid"`
	ConfirmedBy              *uuid.UUID `json:"confirmed_by,omitempty" gorm:"type:uuid"`
	DeliveredAt              *time.Time `json:"delivered_at,omitempty"`
	CancelledAt              *time.Time `json:"cancelled_at,omitempty"`
	RefundReason             string     `json:"refund_reason,omitempty" gorm:"type:text"`

	// Relationships
	Artwork Artwork `json:"artwork,omitempty" gorm:"foreignKey:ArtworkID"`
	Buyer   User    `json:"buyer,omitempty" gorm:"foreignKey:BuyerID"`
}

// BankTransaction is an externally reported bank ledger entry, recorded by
// an admin standing in for a bank feed. Immutable once matched; ExternalID
// is the idempotency key for replays.
type BankTransaction struct {
	ImmutableModel
	ExternalID      string                `json:"external_id" gorm:"size:128;not null;uniqueIndex"`
	Amount          decimal.Decimal       `json:"amount" gorm:"type:decimal(12,2);not null"`
	Currency        string                `json:"currency" gorm:"size:3;not null;default:'EUR'"`
	SenderName      string                `json:"sender_name" gorm:"size:255"`
	SenderIBAN      string                `json:"sender_iban" gorm:"size:34"`
	Reference       string                `json:"reference" gorm:"type:text"`
	TransactionDate time.Time             `json:"transaction_date"`
	Status          BankTransactionStatus `json:"status" gorm:"type:varchar(20);not null;default:'unmatched';index"`
	MatchedOrderID  *uuid.UUID            `json:"matched_order_id,omitempty" gorm:"type:uuid;index"`
	RecordedBy      uuid.UUID             `json:"recorded_by" gorm:"type:uuid;not null"`

	// Relationships
	MatchedOrder *PaymentOrder `json:"matched_order,omitempty" gorm:"foreignKey:MatchedOrderID"`
}
