// internal/services/license_service.go
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
)

// LicenseService owns the license lifecycle: purchase, download (use),
// refund and transfer. Every transition runs under the artwork's keyed lock
// and an optimistic version check, and commits together with its monetary
// effects in one database transaction.
type LicenseService struct {
	db *gorm.DB
	lockManager
	ledger  *LedgerService
	audit   *AuditService
	storage *StorageService
}

func NewLicenseService(db *gorm.DB, locks *keylock.Locker, ledger *LedgerService, audit *AuditService, storage *StorageService, cfg *config.Config) *LicenseService {
	return &LicenseService{
		db:          db,
		lockManager: newLockManager(locks, cfg),
		ledger:      ledger,
		audit:       audit,
		storage:     storage,
	}
}

// Purchase buys the exclusive license for the buyer. For balance payments
// the buyer's ledger is debited in the same transaction; card and bank
// transfer purchases settle the money outside the ledger.
func (s *LicenseService) Purchase(buyerID, artworkID uuid.UUID, method models.PaymentMethod, paymentRef string) (*models.Transaction, error) {
	releaseArtwork, err := s.lockArtwork(artworkID)
	if err != nil {
		return nil, err
	}
	defer releaseArtwork()

	if method == models.PaymentMethodBalance {
		releaseLedger, err := s.lockLedger(buyerID)
		if err != nil {
			return nil, err
		}
		defer releaseLedger()
	}

	var txn *models.Transaction
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		txn, txErr = s.purchaseTx(tx, buyerID, artworkID, method, paymentRef)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	return txn, nil
}

// PurchaseInTx runs the purchase transition inside the caller's transaction.
// The caller must hold the artwork lock.
func (s *LicenseService) PurchaseInTx(tx *gorm.DB, buyerID, artworkID uuid.UUID, method models.PaymentMethod, paymentRef string) (*models.Transaction, error) {
	return s.purchaseTx(tx, buyerID, artworkID, method, paymentRef)
}

func (s *LicenseService) purchaseTx(tx *gorm.DB, buyerID, artworkID uuid.UUID, method models.PaymentMethod, paymentRef string) (*models.Transaction, error) {
	artwork, err := s.findArtwork(tx, artworkID)
	if err != nil {
		return nil, err
	}

	switch artwork.LicenseState {
	case models.LicenseStateAvailable:
	case models.LicenseStateOwned:
		return nil, apperrors.Conflict("artwork is already owned")
	case models.LicenseStateUsed:
		return nil, apperrors.InvalidState("artwork license has been used and is permanently off the market")
	case models.LicenseStateRefunded:
		return nil, apperrors.InvalidState("artwork was refunded after a transfer and is no longer for sale")
	default:
		return nil, apperrors.InvalidState("artwork is in unexpected state %s", artwork.LicenseState)
	}

	var buyer models.User
	if err := tx.First(&buyer, "id = ?", buyerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("buyer")
		}
		return nil, fmt.Errorf("failed to load buyer: %w", err)
	}
	if buyer.Status != models.UserStatusActive {
		return nil, apperrors.Authorization("buyer account is not active")
	}

	fee := fees.LicenseProtectionFee(artwork.Price)
	total := artwork.Price.Add(fee)

	if method == models.PaymentMethodBalance {
		if err := s.ledger.DebitTx(tx, buyerID, total, models.LedgerKindPurchase, "artwork", &artwork.ID, nil); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	updates := map[string]interface{}{
		"owner_id":       buyerID,
		"license_state":  models.LicenseStateOwned,
		"purchase_price": artwork.Price,
		"purchased_at":   now,
		"refunded_at":    nil,
	}
	if err := s.applyTransition(tx, artwork, updates); err != nil {
		return nil, err
	}

	record := &models.OwnershipRecord{
		ArtworkID:     artwork.ID,
		OwnerID:       buyerID,
		AcquiredAt:    now,
		AcquiredVia:   models.AcquisitionPurchase,
		PurchasePrice: artwork.Price,
	}
	if err := tx.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to create ownership record: %w", err)
	}

	txn := &models.Transaction{
		TransactionType:  models.TransactionTypePurchase,
		BuyerID:          &buyerID,
		ArtworkID:        &artwork.ID,
		Amount:           total,
		Fee:              fee,
		PaymentMethod:    method,
		PaymentReference: paymentRef,
		Status:           models.TransactionStatusCompleted,
		ProcessedAt:      &now,
	}
	if err := tx.Create(txn).Error; err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	details := models.JSONB{
		"price":          artwork.Price.StringFixed(2),
		"protection_fee": fee.StringFixed(2),
		"total":          total.StringFixed(2),
		"payment_method": string(method),
	}
	if err := s.audit.RecordTx(tx, models.AuditArtworkPurchased, &buyerID, &artwork.ID, nil, details); err != nil {
		return nil, err
	}

	return txn, nil
}

// Download delivers the master asset to the license holder. The first
// download flips the license to used, which permanently closes refund and
// resale for this artwork. Repeat downloads by the owner are served without
// a new transition.
func (s *LicenseService) Download(ownerID, artworkID uuid.UUID) (string, error) {
	release, err := s.lockArtwork(artworkID)
	if err != nil {
		return "", err
	}
	defer release()

	var assetKey string
	err = s.db.Transaction(func(tx *gorm.DB) error {
		artwork, err := s.findArtwork(tx, artworkID)
		if err != nil {
			return err
		}

		switch artwork.LicenseState {
		case models.LicenseStateOwned:
			if !artwork.OwnedBy(ownerID) {
				return apperrors.Authorization("caller does not hold this license")
			}

			now := time.Now()
			if err := s.applyTransition(tx, artwork, map[string]interface{}{
				"license_state": models.LicenseStateUsed,
				"downloaded_at": now,
			}); err != nil {
				return err
			}

			assetKey = artwork.AssetKey
			return s.audit.RecordTx(tx, models.AuditArtworkDownloaded, &ownerID, &artwork.ID, nil, nil)

		case models.LicenseStateUsed:
			if !artwork.OwnedBy(ownerID) {
				return apperrors.Authorization("caller does not hold this license")
			}
			assetKey = artwork.AssetKey
			return nil

		default:
			return apperrors.InvalidState("artwork is not owned")
		}
	})
	if err != nil {
		return "", err
	}

	return s.storage.PresignedDownloadURL(assetKey)
}

// Refund returns the license holder's purchase price to their balance. Only
// an unused license can be refunded, and only by its holder. The protection
// fee is not returned.
func (s *LicenseService) Refund(ownerID, artworkID uuid.UUID) (*models.Transaction, error) {
	release, err := s.lockArtwork(artworkID)
	if err != nil {
		return nil, err
	}
	defer release()

	var txn *models.Transaction
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		txn, txErr = s.refundTx(tx, ownerID, artworkID, refundOptions{
			txnType: models.TransactionTypeRefund,
		})
		return txErr
	})
	if err != nil {
		return nil, err
	}

	return txn, nil
}

// AdminRefund is the privileged variant: the admin acts on the holder's
// behalf and a reason is mandatory. The used-license invariant still holds;
// override never resurrects a consumed license.
func (s *LicenseService) AdminRefund(adminID, artworkID uuid.UUID, reason string) (*models.Transaction, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.Validation("a reason is required for manual refunds")
	}

	release, err := s.lockArtwork(artworkID)
	if err != nil {
		return nil, err
	}
	defer release()

	var txn *models.Transaction
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		txn, txErr = s.refundTx(tx, adminID, artworkID, refundOptions{
			override: true,
			reason:   reason,
			txnType:  models.TransactionTypeManualRefund,
		})
		return txErr
	})
	if err != nil {
		return nil, err
	}

	return txn, nil
}

// RefundInTx runs the refund transition inside the caller's transaction,
// used by the payment order refund flow. The caller must hold the artwork
// lock and supply a reason.
func (s *LicenseService) RefundInTx(tx *gorm.DB, actorID, artworkID uuid.UUID, reason string, orderID *uuid.UUID) (*models.Transaction, error) {
	return s.refundTx(tx, actorID, artworkID, refundOptions{
		override: true,
		reason:   reason,
		txnType:  models.TransactionTypeRefund,
		orderID:  orderID,
	})
}

type refundOptions struct {
	// override skips the caller-is-owner check for admin-initiated refunds.
	// It does not bypass the used-license invariant.
	override bool
	reason   string
	txnType  models.TransactionType
	orderID  *uuid.UUID
}

func (s *LicenseService) refundTx(tx *gorm.DB, actorID, artworkID uuid.UUID, opts refundOptions) (*models.Transaction, error) {
	artwork, err := s.findArtwork(tx, artworkID)
	if err != nil {
		return nil, err
	}

	switch artwork.LicenseState {
	case models.LicenseStateOwned:
	case models.LicenseStateUsed:
		return nil, apperrors.InvalidState("license has been used; the refund window is closed")
	default:
		return nil, apperrors.InvalidState("artwork is not owned")
	}

	if !opts.override && !artwork.OwnedBy(actorID) {
		return nil, apperrors.Authorization("caller does not hold this license")
	}

	var activeListings int64
	err = tx.Model(&models.Listing{}).
		Where("artwork_id = ? AND status = ?", artwork.ID, models.ListingStatusActive).
		Count(&activeListings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check listings: %w", err)
	}
	if activeListings > 0 {
		if !opts.override {
			return nil, apperrors.Conflict("artwork has an active marketplace listing, cancel it first")
		}
		err = tx.Model(&models.Listing{}).
			Where("artwork_id = ? AND status = ?", artwork.ID, models.ListingStatusActive).
			Update("status", models.ListingStatusCancelled).Error
		if err != nil {
			return nil, fmt.Errorf("failed to cancel listings: %w", err)
		}
	}

	owner := *artwork.OwnerID
	amount := artwork.PurchasePrice
	now := time.Now()

	idem := fmt.Sprintf("refund:%s:%d", artwork.ID, artwork.Version)
	if err := s.ledger.CreditTx(tx, owner, amount, models.LedgerKindRefund, "artwork", &artwork.ID, &idem); err != nil {
		return nil, err
	}

	err = tx.Model(&models.OwnershipRecord{}).
		Where("artwork_id = ? AND owner_id = ? AND released_at IS NULL", artwork.ID, owner).
		Updates(map[string]interface{}{
			"released_at":  now,
			"released_via": models.ReleaseRefund,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to close ownership record: %w", err)
	}

	// A never-transferred license goes back to the open pool; a transferred
	// one freezes, since its provenance is no longer clean enough to resell.
	updates := map[string]interface{}{
		"owner_id":      nil,
		"license_state": models.LicenseStateRefunded,
		"refund_count":  artwork.RefundCount + 1,
		"refunded_at":   now,
	}
	if artwork.TransferCount == 0 {
		updates["license_state"] = models.LicenseStateAvailable
		updates["purchase_price"] = decimal.Zero
		updates["purchased_at"] = nil
	}
	if err := s.applyTransition(tx, artwork, updates); err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		TransactionType: opts.txnType,
		BuyerID:         &owner,
		ArtworkID:       &artwork.ID,
		Amount:          amount,
		Fee:             decimal.Zero,
		PaymentMethod:   models.PaymentMethodBalance,
		Status:          models.TransactionStatusCompleted,
		ProcessedAt:     &now,
	}
	if opts.reason != "" {
		txn.Details = models.JSONB{"reason": opts.reason}
	}
	if err := tx.Create(txn).Error; err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	details := models.JSONB{
		"amount":        amount.StringFixed(2),
		"refunded_user": owner.String(),
	}
	if opts.reason != "" {
		details["reason"] = opts.reason
	}
	if err := s.audit.RecordTx(tx, models.AuditRefundProcessed, &actorID, &artwork.ID, opts.orderID, details); err != nil {
		return nil, err
	}

	if opts.txnType == models.TransactionTypeManualRefund {
		err = s.audit.RecordTx(tx, models.AuditAdminOverride, &actorID, &artwork.ID, nil, models.JSONB{
			"operation": "manual_refund",
			"reason":    opts.reason,
		})
		if err != nil {
			return nil, err
		}
	}

	// Stamp the artwork's audit trail with the retention deadline last, so
	// the refund entries themselves are covered.
	if err := s.audit.ScheduleExpiryTx(tx, artwork.ID, now); err != nil {
		return nil, err
	}

	return txn, nil
}

// TransferInTx moves the license between users inside the caller's
// transaction. The caller holds the artwork lock and has settled pricing
// and payment; this handles provenance, counters and the state row.
func (s *LicenseService) TransferInTx(tx *gorm.DB, artwork *models.Artwork, fromID, toID uuid.UUID, via models.AcquisitionMethod, price decimal.Decimal) error {
	switch artwork.LicenseState {
	case models.LicenseStateOwned:
	case models.LicenseStateUsed:
		return apperrors.InvalidState("used licenses cannot be transferred")
	default:
		return apperrors.InvalidState("artwork is not owned")
	}

	if !artwork.OwnedBy(fromID) {
		return apperrors.Conflict("seller no longer holds this license")
	}
	if fromID == toID {
		return apperrors.Validation("cannot transfer a license to its current owner")
	}

	now := time.Now()
	err := tx.Model(&models.OwnershipRecord{}).
		Where("artwork_id = ? AND owner_id = ? AND released_at IS NULL", artwork.ID, fromID).
		Updates(map[string]interface{}{
			"released_at":  now,
			"released_via": releaseFor(via),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to close ownership record: %w", err)
	}

	record := &models.OwnershipRecord{
		ArtworkID:     artwork.ID,
		OwnerID:       toID,
		AcquiredAt:    now,
		AcquiredVia:   via,
		PurchasePrice: price,
	}
	if err := tx.Create(record).Error; err != nil {
		return fmt.Errorf("failed to create ownership record: %w", err)
	}

	updates := map[string]interface{}{
		"owner_id":       toID,
		"purchase_price": price,
		"purchased_at":   now,
		"transfer_count": artwork.TransferCount + 1,
		"refunded_at":    nil,
	}
	if err := s.applyTransition(tx, artwork, updates); err != nil {
		return err
	}

	return s.audit.RecordTx(tx, models.AuditArtworkTransferred, &fromID, &artwork.ID, nil, models.JSONB{
		"from":  fromID.String(),
		"to":    toID.String(),
		"via":   string(via),
		"price": price.StringFixed(2),
	})
}

// AdminTransfer reassigns a license between accounts without payment, for
// support cases. A reason is mandatory and the move is audited as an
// override. Used licenses stay untransferable even here.
func (s *LicenseService) AdminTransfer(adminID, artworkID, toID uuid.UUID, reason string) (*models.Transaction, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.Validation("a reason is required for manual transfers")
	}

	release, err := s.lockArtwork(artworkID)
	if err != nil {
		return nil, err
	}
	defer release()

	var txn *models.Transaction
	err = s.db.Transaction(func(tx *gorm.DB) error {
		artwork, err := s.findArtwork(tx, artworkID)
		if err != nil {
			return err
		}
		if artwork.OwnerID == nil {
			return apperrors.InvalidState("artwork has no owner to transfer from")
		}
		fromID := *artwork.OwnerID

		var recipient models.User
		if err := tx.First(&recipient, "id = ?", toID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("recipient")
			}
			return fmt.Errorf("failed to load recipient: %w", err)
		}
		if recipient.Status != models.UserStatusActive {
			return apperrors.Validation("recipient account is not active")
		}

		// The new owner did not consent to an open resale offer.
		err = tx.Model(&models.Listing{}).
			Where("artwork_id = ? AND status = ?", artwork.ID, models.ListingStatusActive).
			Update("status", models.ListingStatusCancelled).Error
		if err != nil {
			return fmt.Errorf("failed to cancel listings: %w", err)
		}

		if err := s.TransferInTx(tx, artwork, fromID, toID, models.AcquisitionAdminTransfer, artwork.PurchasePrice); err != nil {
			return err
		}

		now := time.Now()
		txn = &models.Transaction{
			TransactionType: models.TransactionTypeManualTransfer,
			BuyerID:         &toID,
			SellerID:        &fromID,
			ArtworkID:       &artwork.ID,
			Amount:          decimal.Zero,
			Fee:             decimal.Zero,
			Status:          models.TransactionStatusCompleted,
			ProcessedAt:     &now,
			Details:         models.JSONB{"reason": reason},
		}
		if err := tx.Create(txn).Error; err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}

		return s.audit.RecordTx(tx, models.AuditAdminOverride, &adminID, &artwork.ID, nil, models.JSONB{
			"operation": "manual_transfer",
			"reason":    reason,
			"from":      fromID.String(),
			"to":        toID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	return txn, nil
}

func (s *LicenseService) findArtwork(tx *gorm.DB, id uuid.UUID) (*models.Artwork, error) {
	var artwork models.Artwork
	if err := tx.First(&artwork, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("artwork")
		}
		return nil, fmt.Errorf("failed to load artwork: %w", err)
	}

	return &artwork, nil
}

// applyTransition writes the state change with an optimistic version check.
// A zero row count means someone committed a competing transition between
// our read and write, which surfaces as a conflict.
func (s *LicenseService) applyTransition(tx *gorm.DB, artwork *models.Artwork, updates map[string]interface{}) error {
	updates["version"] = artwork.Version + 1

	result := tx.Model(&models.Artwork{}).
		Where("id = ? AND version = ?", artwork.ID, artwork.Version).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update artwork: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Conflict("artwork was modified concurrently")
	}

	return nil
}

func releaseFor(via models.AcquisitionMethod) models.ReleaseMethod {
	if via == models.AcquisitionAdminTransfer {
		return models.ReleaseAdminTransfer
	}
	return models.ReleaseTransfer
}
