// internal/services/marketplace_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iagallery/iag-backend/internal/apperrors"
	"github.com/iagallery/iag-backend/internal/models"
)

func TestListingPriceFloor(t *testing.T) {
	e := newTestEnv(t)
	seller := e.createUser(t, "alice")
	artwork := e.createArtwork(t, "100.00")
	e.fund(t, seller.ID, "105.00")

	_, err := e.license.Purchase(seller.ID, artwork.ID, models.PaymentMethodBalance, "")
	require.NoError(t, err)

	// Floor is purchase price plus 1%: 101.00.
	_, err = e.marketplace.CreateListing(seller.ID, &CreateListingRequest{
		ArtworkID: artwork.ID,
		SalePrice: dec("100.50"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	listing, err := e.marketplace.CreateListing(seller.ID, &CreateListingRequest{
		ArtworkID: artwork.ID,
		SalePrice: dec("101.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusActive, listing.Status)
	assert.Equal(t, "1.01", listing.PlatformCommission.StringFixed(2))

	// No second active listing for the same artwork.
	_, err = e.marketplace.CreateListing(seller.ID, &CreateListingRequest{
		ArtworkID: artwork.ID,
		SalePrice: dec("150.00"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
}

func TestListingByNonOwnerFails(t *testing.T) {
	e := newTestEnv(t)
	owner := e.createUser(t, "alice")
	mallory := e.createUser(t, "mallory")
	artwork := e.createArtwork(t, "100.00")
	e.fund(t, owner.ID, "105.00")

	_, err := e.license.Purchase(owner.ID, artwork.ID, models.PaymentMethodBalance, "")
	require.NoError(t, err)

	_, err = e.marketplace.CreateListing(mallory.ID, &CreateListingRequest{
		ArtworkID: artwork.ID,
		SalePrice: dec("101.00"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindAuthorization))
}

func TestBuySettlesMoneyAndTransfersLicense(t *testing.T) {
	e := newTestEnv(t)
	seller := e.createUser(t, "alice")
	buyer := e.createUser(t, "bob")
	artwork := e.createArtwork(t, "100.00")
	e.fund(t, seller.ID, "105.00")
	e.fund(t, buyer.ID, "101.00")

	_, err := e.license.Purchase(seller.ID, artwork.ID, models.PaymentMethodBalance, "")
	require.NoError(t, err)

	listing, err := e.marketplace.CreateListing(seller.ID, &CreateListingRequest{
		ArtworkID: artwork.ID,
		SalePrice: dec("101.00"),
	})
	require.NoError(t, err)

	txn, err := e.marketplace.Buy(buyer.ID, listing.ID)
	require.NoError(t, err)

	assert.Equal(t, models.TransactionTypeP2PSale, txn.TransactionType)
	assert.Equal(t, "101.00", txn.Amount.StringFixed(2))
	assert.Equal(t, "1.01", txn.Fee.StringFixed(2))

	// Buyer pays the sale price; seller nets price minus 1% commission.
	assert.Equal(t, "0.00", e.balance(t, buyer.ID))
	assert.Equal(t, "99.99", e.balance(t, seller.ID))

	art := e.reloadArtwork(t, artwork.ID)
	assert.True(t, art.OwnedBy(buyer.ID))
	assert.Equal(t, models.LicenseStateOwned, art.LicenseState)
	assert.Equal(t, 1, art.TransferCount)
	assert.Equal(t, "101.00", art.PurchasePrice.StringFixed(2))

	var sold models.Listing
	require.NoError(t, e.db.First(&sold, "id = ?", listing.ID).Error)
	assert.Equal(t, models.ListingStatusSold, sold.Status)
	require.NotNil(t, sold.SoldTo)
	assert.Equal(t, buyer.ID, *sold.SoldTo)

	// The provenance chain has both episodes.
	records, err := e.artworks.Provenance(artwork.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, seller.ID, records[0].OwnerID)
	require.NotNil(t, records[0].ReleasedAt)
	assert.Equal(t, models.ReleaseTransfer, records[0].ReleasedVia)
	assert.Equal(t, buyer.ID, records[1].OwnerID)
	assert.Nil(t, records[1].ReleasedAt)
}

func TestBuyOwnListingFails(t *testing.T) {
	e := newTestEnv(t)
	seller := e.createUser(t, "alice")
	artwork := e.createArtwork(t, "100.00")
	e.fund(t, seller.ID, "300.00")

	_, err := e.license.Purchase(seller.ID, artwork.ID, models.PaymentMethodBalance, "")
	require.NoError(t, err)

	listing, err := e.marketplace.CreateListing(seller.ID, &CreateListingRequest{
		ArtworkID: artwork.ID,
		SalePrice: dec("101.00"),
	})
	require.NoError(t, err)

	_, err = e.marketplace.Buy(seller.ID, listing.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestBuyWithInsufficientBalanceLeavesEverythingIntact(t *testing.T) {
	e := newTestEnv(t)
	seller := e.createUser(t, "alice")
	buyer := e.createUser(t, "bob")
	artwork := e.createArtwork(t, "100.00")
	e.fund(t, seller.ID, "105.00")
	e.fund(t, buyer.ID, "50.00")

	_, err := e.license.Purchase(seller.ID, artwork.ID, models.PaymentMethodBalance, "")
	require.NoError(t, err)

	listing, err := e.marketplace.CreateListing(seller.ID, &CreateListingRequest{
		ArtworkID: artwork.ID,
		SalePrice: dec("101.00"),
	})
	require.NoError(t, err)

	_, err = e.marketplace.Buy(buyer.ID, listing.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	// Nothing moved.
	assert.Equal(t, "50.00", e.balance(t, buyer.ID))
	assert.Equal(t, "0.00", e.balance(t, seller.ID))

	art := e.reloadArtwork(t, artwork.ID)
	assert.True(t, art.OwnedBy(seller.ID))

	var got models.Listing
	require.NoError(t, e.db.First(&got, "id = ?", listing.ID).Error)
	assert.Equal(t, models.ListingStatusActive, got.Status)
}

func TestCancelListing(t *testing.T) {
	e := newTestEnv(t)
	seller := e.createUser(t, "alice")
	buyer := e.createUser(t, "bob")
	artwork := e.createArtwork(t, "100.00")
	e.fund(t, seller.ID, "105.00")
	e.fund(t, buyer.ID, "200.00")

	_, err := e.license.Purchase(seller.ID, artwork.ID, models.PaymentMethodBalance, "")
	require.NoError(t, err)

	listing, err := e.marketplace.CreateListing(seller.ID, &CreateListingRequest{
		ArtworkID: artwork.ID,
		SalePrice: dec("101.00"),
	})
	require.NoError(t, err)

	err = e.marketplace.CancelListing(buyer.ID, listing.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindAuthorization))

	require.NoError(t, e.marketplace.CancelListing(seller.ID, listing.ID))

	_, err = e.marketplace.Buy(buyer.ID, listing.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidState))
}

func TestResaleChainEnforcesNewFloor(t *testing.T) {
	e := newTestEnv(t)
	alice := e.createUser(t, "alice")
	bob := e.createUser(t, "bob")
	artwork := e.createArtwork(t, "100.00")
	e.fund(t, alice.ID, "105.00")
	e.fund(t, bob.ID, "101.00")

	_, err := e.license.Purchase(alice.ID, artwork.ID, models.PaymentMethodBalance, "")
	require.NoError(t, err)

	listing, err := e.marketplace.CreateListing(alice.ID, &CreateListingRequest{
		ArtworkID: artwork.ID,
		SalePrice: dec("101.00"),
	})
	require.NoError(t, err)
	_, err = e.marketplace.Buy(bob.ID, listing.ID)
	require.NoError(t, err)

	// Bob's cost basis is 101.00, so his floor is 102.01.
	_, err = e.marketplace.CreateListing(bob.ID, &CreateListingRequest{
		ArtworkID: artwork.ID,
		SalePrice: dec("102.00"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	_, err = e.marketplace.CreateListing(bob.ID, &CreateListingRequest{
		ArtworkID: artwork.ID,
		SalePrice: dec("102.01"),
	})
	require.NoError(t, err)
}
