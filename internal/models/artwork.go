// internal/models/artwork.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Artwork carries the exclusive license for one unique digital work. The
// license lifecycle is a single explicit state; once `used` it is terminal
// for the artwork's whole lifetime, while refund/resale eligibility resets
// per ownership episode on transfer.
type Artwork struct {
	BaseModel
	Title       string          `json:"title" gorm:"size:255;not null"`
	Description string          `json:"description" gorm:"type:text"`
	Category    string          `json:"category" gorm:"size:100;index"`
	Tags        pq.StringArray  `json:"tags" gorm:"type:text[]"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	AssetKey    string          `json:"-" gorm:"size:512"`
	CreatedBy   uuid.UUID       `json:"created_by" gorm:"type:uuid;not null;index"`

	OwnerID      *uuid.UUID   `json:"-" gorm:"type:uuid;index"`
	LicenseState LicenseState `json:"license_state" gorm:"type:varchar(20);not null;default:'available';index"`

	// Version guards mutating transitions with an optimistic compare-and-swap
	// on top of the per-artwork lock.
	Version int `json:"-" gorm:"not null;default:0"`

	// PurchasePrice is the current ownership episode's cost basis; refund
	// credits and the minimum resale price are computed from it.
	PurchasePrice decimal.Decimal `json:"purchase_price,omitempty" gorm:"type:decimal(12,2);default:0"`

	TransferCount int        `json:"transfer_count" gorm:"not null;default:0"`
	RefundCount   int        `json:"refund_count" gorm:"not null;default:0"`
	PurchasedAt   *time.Time `json:"purchased_at,omitempty"`
	DownloadedAt  *time.Time `json:"downloaded_at,omitempty"`
	RefundedAt    *time.Time `json:"refunded_at,omitempty"`

	// Relationships
	Owner *User `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
}

// Derived legacy flags. The gallery UI still reads the four booleans.

func (a *Artwork) IsPurchased() bool {
	return a.LicenseState == LicenseStateOwned || a.LicenseState == LicenseStateUsed
}

func (a *Artwork) IsUsed() bool {
	return a.LicenseState == LicenseStateUsed
}

func (a *Artwork) IsTransferred() bool {
	return a.TransferCount > 0
}

func (a *Artwork) IsRefunded() bool {
	return a.LicenseState == LicenseStateRefunded || a.RefundCount > 0
}

// OwnedBy reports whether userID holds the current license.
func (a *Artwork) OwnedBy(userID uuid.UUID) bool {
	return a.OwnerID != nil && *a.OwnerID == userID
}

// ArtworkView is the API shape. Owner identity is masked unless the caller
// is the owner or an admin.
type ArtworkView struct {
	ID            uuid.UUID       `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Tags          []string        `json:"tags"`
	Price         decimal.Decimal `json:"price"`
	LicenseState  LicenseState    `json:"license_state"`
	IsPurchased   bool            `json:"is_purchased"`
	IsUsed        bool            `json:"is_used"`
	IsTransferred bool            `json:"is_transferred"`
	IsRefunded    bool            `json:"is_refunded"`
	TransferCount int             `json:"transfer_count"`
	OwnerID       *uuid.UUID      `json:"owner_id,omitempty"`
	PurchasePrice decimal.Decimal `json:"purchase_price,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (a *Artwork) View(revealOwner bool) ArtworkView {
	view := ArtworkView{
		ID:            a.ID,
		Title:         a.Title,
		Description:   a.Description,
		Category:      a.Category,
		Tags:          a.Tags,
		Price:         a.Price,
		LicenseState:  a.LicenseState,
		IsPurchased:   a.IsPurchased(),
		IsUsed:        a.IsUsed(),
		IsTransferred: a.IsTransferred(),
		IsRefunded:    a.IsRefunded(),
		TransferCount: a.TransferCount,
		CreatedAt:     a.CreatedAt,
	}

	if revealOwner {
		view.OwnerID = a.OwnerID
		view.PurchasePrice = a.PurchasePrice
	}

	return view
}

// OwnershipRecord is one row of the artwork's provenance chain: a single
// ownership episode from acquisition to release.
type OwnershipRecord struct {
	ImmutableModel
	ArtworkID     uuid.UUID         `json:"artwork_id" gorm:"type:uuid;not null;index"`
	OwnerID       uuid.UUID         `json:"owner_id" gorm:"type:uuid;not null;index"`
	AcquiredAt    time.Time         `json:"acquired_at" gorm:"not null"`
	AcquiredVia   AcquisitionMethod `json:"acquired_via" gorm:"type:varchar(20);not null"`
	PurchasePrice decimal.Decimal   `json:"purchase_price" gorm:"type:decimal(12,2);not null"`
	ReleasedAt    *time.Time        `json:"released_at"`
	ReleasedVia   ReleaseMethod     `json:"released_via,omitempty" gorm:"type:varchar(20)"`

	// Relationships
	Artwork Artwork `json:"artwork,omitempty" gorm:"foreignKey:ArtworkID"`
	Owner   User    `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
}
