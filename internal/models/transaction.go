// internal/models/transaction.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is the immutable record of a committed state transition with
// monetary effect. Rows are never mutated after completion.
type Transaction struct {
	ImmutableModel
	TransactionType  TransactionType   `json:"transaction_type" gorm:"type:varchar(20);not null;index"`
	BuyerID          *uuid.UUID        `json:"buyer_id" gorm:"type:uuid;index"`
	SellerID         *uuid.UUID        `json:"seller_id" gorm:"type:uuid;index"`
	ArtworkID        *uuid.UUID        `json:"artwork_id" gorm:"type:uuid;index"`
	Amount           decimal.Decimal   `json:"amount" gorm:"type:decimal(12,2);not null"`
	Fee              decimal.Decimal   `json:"fee" gorm:"type:decimal(12,2);not null;default:0"`
	PaymentMethod    PaymentMethod     `json:"payment_method" gorm:"size:50"`
	PaymentReference string            `json:"payment_reference,omitempty" gorm:"size:255"`
	Status           TransactionStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	ProcessedAt      *time.Time        `json:"processed_at"`
	Details          JSONB             `json:"details,omitempty" gorm:"type:jsonb"`

	// Relationships
	Buyer   *User    `json:"buyer,omitempty" gorm:"foreignKey:BuyerID"`
	Seller  *User    `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
	Artwork *Artwork `json:"artwork,omitempty" gorm:"foreignKey:ArtworkID"`
}
