// internal/models/listing.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Listing is a peer-to-peer resale offer for an owned, unused license.
type Listing struct {
	BaseModel
	ArtworkID          uuid.UUID       `json:"artwork_id" gorm:"type:uuid;not null;index"`
	SellerID           uuid.UUID       `json:"seller_id" gorm:"type:uuid;not null;index"`
	SalePrice          decimal.Decimal `json:"sale_price" gorm:"type:decimal(12,2);not null"`
	PlatformCommission decimal.Decimal `json:"platform_commission" gorm:"type:decimal(12,2);not null"`
	Status             ListingStatus   `json:"status" gorm:"type:varchar(20);not null;default:'active';index"`
	SoldTo             *uuid.UUID      `json:"sold_to,omitempty" gorm:"type:uuid"`
	SoldAt             *time.Time      `json:"sold_at,omitempty"`

	// Relationships
	Artwork Artwork `json:"artwork,omitempty" gorm:"foreignKey:ArtworkID"`
	Seller  User    `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
}
