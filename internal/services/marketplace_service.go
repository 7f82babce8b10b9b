// internal/services/marketplace_service.go
package services

import (
	"errors"
	"fmt"
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

// MarketplaceService runs peer-to-peer license resales. A sale settles
// from the buyer's balance: the seller gets the price minus the platform
// commission, and the license transfers in the same transaction.
type MarketplaceService struct {
	db *gorm.DB
	lockManager
	ledger  *LedgerService
	audit   *AuditService
	license *LicenseService
}

func NewMarketplaceService(db *gorm.DB, locks *keylock.Locker, ledger *LedgerService, audit *AuditService, license *LicenseService, cfg *config.Config) *MarketplaceService {
	return &MarketplaceService{
		db:          db,
		lockManager: newLockManager(locks, cfg),
		ledger:      ledger,
		audit:       audit,
		license:     license,
	}
}

type CreateListingRequest struct {
	ArtworkID uuid.UUID       `json:"artwork_id" validate:"required"`
	SalePrice decimal.Decimal `json:"sale_price" validate:"required"`
}

// CreateListing puts an owned, unused license up for resale. The price must
// be at least the owner's purchase price plus 1%.
func (s *MarketplaceService) CreateListing(sellerID uuid.UUID, req *CreateListingRequest) (*models.Listing, error) {
	if !req.SalePrice.IsPositive() {
		return nil, apperrors.Validation("sale price must be positive")
	}
	salePrice := req.SalePrice.Round(2)

	release, err := s.lockArtwork(req.ArtworkID)
	if err != nil {
		return nil, err
	}
	defer release()

	var listing *models.Listing
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var artwork models.Artwork
		if err := tx.First(&artwork, "id = ?", req.ArtworkID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("artwork")
			}
			return fmt.Errorf("failed to load artwork: %w", err)
		}

		switch artwork.LicenseState {
		case models.LicenseStateOwned:
		case models.LicenseStateUsed:
			return apperrors.InvalidState("used licenses cannot be resold")
		default:
			return apperrors.InvalidState("artwork is not owned")
		}
		if !artwork.OwnedBy(sellerID) {
			return apperrors.Authorization("caller does not hold this license")
		}

		minPrice := fees.MinResalePrice(artwork.PurchasePrice)
		if salePrice.LessThan(minPrice) {
			return apperrors.Validation("sale price must be at least %s", minPrice.StringFixed(2))
		}

		var active int64
		err := tx.Model(&models.Listing{}).
			Where("artwork_id = ? AND status = ?", artwork.ID, models.ListingStatusActive).
			Count(&active).Error
		if err != nil {
			return fmt.Errorf("failed to check active listings: %w", err)
		}
		if active > 0 {
			return apperrors.Conflict("artwork is already listed")
		}

		listing = &models.Listing{
			ArtworkID:          artwork.ID,
			SellerID:           sellerID,
			SalePrice:          salePrice,
			PlatformCommission: fees.P2PCommission(salePrice),
			Status:             models.ListingStatusActive,
		}
		if err := tx.Create(listing).Error; err != nil {
			return fmt.Errorf("failed to create listing: %w", err)
		}

		return s.audit.RecordTx(tx, models.AuditListingCreated, &sellerID, &artwork.ID, nil, models.JSONB{
			"listing_id": listing.ID.String(),
			"sale_price": salePrice.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}

	return listing, nil
}

// Buy settles a listing: buyer's balance is debited, seller is credited net
// of commission, and the license transfers. All of it commits atomically or
// not at all.
func (s *MarketplaceService) Buy(buyerID, listingID uuid.UUID) (*models.Transaction, error) {
	var current models.Listing
	if err := s.db.First(&current, "id = ?", listingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("listing")
		}
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}

	releaseArtwork, err := s.lockArtwork(current.ArtworkID)
	if err != nil {
		return nil, err
	}
	defer releaseArtwork()

	releaseLedger, err := s.lockLedger(buyerID)
	if err != nil {
		return nil, err
	}
	defer releaseLedger()

	var txn *models.Transaction
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var listing models.Listing
		if err := tx.First(&listing, "id = ?", listingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("listing")
			}
			return fmt.Errorf("failed to load listing: %w", err)
		}
		if listing.Status != models.ListingStatusActive {
			return apperrors.InvalidState("listing is no longer active")
		}
		if listing.SellerID == buyerID {
			return apperrors.Validation("cannot buy your own listing")
		}

		var artwork models.Artwork
		if err := tx.First(&artwork, "id = ?", listing.ArtworkID).Error; err != nil {
			return fmt.Errorf("failed to load artwork: %w", err)
		}

		commission := listing.PlatformCommission
		proceeds := listing.SalePrice.Sub(commission)

		if err := s.ledger.DebitTx(tx, buyerID, listing.SalePrice, models.LedgerKindPurchase, "listing", &listing.ID, nil); err != nil {
			return err
		}
		if err := s.ledger.CreditTx(tx, listing.SellerID, proceeds, models.LedgerKindSaleProceeds, "listing", &listing.ID, nil); err != nil {
			return err
		}

		if err := s.license.TransferInTx(tx, &artwork, listing.SellerID, buyerID, models.AcquisitionP2PSale, listing.SalePrice); err != nil {
			return err
		}

		now := time.Now()
		result := tx.Model(&models.Listing{}).
			Where("id = ? AND status = ?", listing.ID, models.ListingStatusActive).
			Updates(map[string]interface{}{
				"status":  models.ListingStatusSold,
				"sold_to": buyerID,
				"sold_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to close listing: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.Conflict("listing was sold concurrently")
		}

		txn = &models.Transaction{
			TransactionType: models.TransactionTypeP2PSale,
			BuyerID:         &buyerID,
			SellerID:        &listing.SellerID,
			ArtworkID:       &listing.ArtworkID,
			Amount:          listing.SalePrice,
			Fee:             commission,
			PaymentMethod:   models.PaymentMethodBalance,
			Status:          models.TransactionStatusCompleted,
			ProcessedAt:     &now,
			Details: models.JSONB{
				"seller_proceeds": proceeds.StringFixed(2),
			},
		}
		if err := tx.Create(txn).Error; err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}

		return s.audit.RecordTx(tx, models.AuditListingSold, &buyerID, &listing.ArtworkID, nil, models.JSONB{
			"listing_id": listing.ID.String(),
			"sale_price": listing.SalePrice.StringFixed(2),
			"commission": commission.StringFixed(2),
			"seller_id":  listing.SellerID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	return txn, nil
}

func (s *MarketplaceService) CancelListing(sellerID, listingID uuid.UUID) error {
	var current models.Listing
	if err := s.db.First(&current, "id = ?", listingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("listing")
		}
		return fmt.Errorf("failed to load listing: %w", err)
	}

	release, err := s.lockArtwork(current.ArtworkID)
	if err != nil {
		return err
	}
	defer release()

	return s.db.Transaction(func(tx *gorm.DB) error {
		var listing models.Listing
		if err := tx.First(&listing, "id = ?", listingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("listing")
			}
			return fmt.Errorf("failed to load listing: %w", err)
		}
		if listing.SellerID != sellerID {
			return apperrors.Authorization("not your listing")
		}
		if listing.Status != models.ListingStatusActive {
			return apperrors.InvalidState("listing is not active")
		}

		result := tx.Model(&models.Listing{}).
			Where("id = ? AND status = ?", listing.ID, models.ListingStatusActive).
			Update("status", models.ListingStatusCancelled)
		if result.Error != nil {
			return fmt.Errorf("failed to cancel listing: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.Conflict("listing changed concurrently")
		}

		return s.audit.RecordTx(tx, models.AuditListingCancelled, &sellerID, &listing.ArtworkID, nil, models.JSONB{
			"listing_id": listing.ID.String(),
		})
	})
}

func (s *MarketplaceService) Browse(params utils.PaginationParams) ([]models.Listing, int64, error) {
	query := s.db.Model(&models.Listing{}).Where("status = ?", models.ListingStatusActive)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count listings: %w", err)
	}

	allowedSortFields := []string{"created_at", "sale_price"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var listings []models.Listing
	if err := query.Preload("Artwork").Find(&listings).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch listings: %w", err)
	}

	return listings, total, nil
}

func (s *MarketplaceService) Get(listingID uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := s.db.Preload("Artwork").First(&listing, "id = ?", listingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("listing")
		}
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}

	return &listing, nil
}
