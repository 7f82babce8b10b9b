// internal/services/payment_service_test.go
package services

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iagallery/iag-backend/internal/apperrors"
	"github.com/iagallery/iag-backend/internal/models"
)

func TestCreateOrderReferenceAndTotal(t *testing.T) {
	e := newTestEnv(t)
	buyer := e.createUser(t, "alice")
	artwork := e.createArtwork(t, "200.00")

	order, err := e.payments.CreateOrder(buyer.ID, artwork.ID)
	require.NoError(t, err)

	assert.Equal(t, "210.00", order.TotalAmount.StringFixed(2))
	assert.Equal(t, models.OrderStatusPendingPayment, order.Status)
	assert.True(t, strings.HasPrefix(order.Reference, "IAG-"))
	assert.True(t, order.ExpiresAt.After(time.Now().Add(71*time.Hour)))

	// No ambiguous characters in the random part.
	for _, forbidden := range []string{"0", "O", "1", "I"} {
		parts := strings.SplitN(order.Reference, "-", 3)
		require.Len(t, parts, 3)
		assert.NotContains(t, parts[2], forbidden)
	}

	// One open order per buyer and artwork.
	_, err = e.payments.CreateOrder(buyer.ID, artwork.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
}

func TestBankTransferMatchAndConfirm(t *testing.T) {
	e := newTestEnv(t)
	admin := e.createAdmin(t, "root")
	buyer := e.createUser(t, "alice")
	artwork := e.createArtwork(t, "200.00")

	order, err := e.payments.CreateOrder(buyer.ID, artwork.ID)
	require.NoError(t, err)

	// The transfer text has extra words and lowercase, but carries the code.
	bankTx, err := e.payments.RecordBankTransaction(admin.ID, &RecordBankTransactionRequest{
		ExternalID: "bank-001",
		Amount:     dec("210.00"),
		Reference:  "payment for artwork " + strings.ToLower(order.Reference),
		SenderName: "Alice Artlover",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BankTransactionStatusMatched, bankTx.Status)
	require.NotNil(t, bankTx.MatchedOrderID)
	assert.Equal(t, order.ID, *bankTx.MatchedOrderID)

	got := e.reloadOrder(t, order.ID)
	assert.Equal(t, models.OrderStatusPaymentReceived, got.Status)

	// Admin confirms: delivery and license purchase are one atomic step.
	confirmed, err := e.payments.ConfirmOrder(admin.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, confirmed.Status)
	require.NotNil(t, confirmed.DeliveredAt)

	art := e.reloadArtwork(t, artwork.ID)
	assert.True(t, art.OwnedBy(buyer.ID))
	assert.Equal(t, models.LicenseStateOwned, art.LicenseState)

	// Confirming twice fails cleanly.
	_, err = e.payments.ConfirmOrder(admin.ID, order.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidState))
}

func TestConfirmBeforeMatchedPayment(t *testing.T) {
	e := newTestEnv(t)
	admin := e.createAdmin(t, "root")
	buyer := e.createUser(t, "alice")
	artwork := e.createArtwork(t, "200.00")

	order, err := e.payments.CreateOrder(buyer.ID, artwork.ID)
	require.NoError(t, err)

	// An admin who verified the payment out of band can confirm a
	// PENDING_PAYMENT order directly.
	confirmed, err := e.payments.ConfirmOrder(admin.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, confirmed.Status)

	art := e.reloadArtwork(t, artwork.ID)
	assert.True(t, art.OwnedBy(buyer.ID))
}

func TestBankTransactionReplayIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	admin := e.createAdmin(t, "root")
	buyer := e.createUser(t, "alice")
	artwork := e.createArtwork(t, "200.00")

	order, err := e.payments.CreateOrder(buyer.ID, artwork.ID)
	require.NoError(t, err)

	req := &RecordBankTransactionRequest{
		ExternalID: "bank-002",
		Amount:     dec("210.00"),
		Reference:  order.Reference,
	}

	first, err := e.payments.RecordBankTransaction(admin.ID, req)
	require.NoError(t, err)
	second, err := e.payments.RecordBankTransaction(admin.ID, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, e.db.Model(&models.BankTransaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDuplicateTransferLinksToPaidOrder(t *testing.T) {
	e := newTestEnv(t)
	admin := e.createAdmin(t, "root")
	buyer := e.createUser(t, "alice")
	artwork := e.createArtwork(t, "200.00")

	order, err := e.payments.CreateOrder(buyer.ID, artwork.ID)
	require.NoError(t, err)

	first, err := e.payments.RecordBankTransaction(admin.ID, &RecordBankTransactionRequest{
		ExternalID: "bank-dup-1",
		Amount:     dec("210.00"),
		Reference:  order.Reference,
	})
	require.NoError(t, err)
	require.Equal(t, models.BankTransactionStatusMatched, first.Status)

	// The buyer pays twice; the second transfer attaches to the same order
	// but does not replace the first match.
	second, err := e.payments.RecordBankTransaction(admin.ID, &RecordBankTransactionRequest{
		ExternalID: "bank-dup-2",
		Amount:     dec("210.00"),
		Reference:  order.Reference,
	})
	require.NoError(t, err)
	assert.Equal(t, models.BankTransactionStatusMatched, second.Status)
	require.NotNil(t, second.MatchedOrderID)
	assert.Equal(t, order.ID, *second.MatchedOrderID)

	got := e.reloadOrder(t, order.ID)
	assert.Equal(t, models.OrderStatusPaymentReceived, got.Status)
	require.NotNil(t, got.MatchedBankTransactionID)
	assert.Equal(t, first.ID, *got.MatchedBankTransactionID)
}

func TestAmountMismatchGoesToUnmatchedQueue(t *testing.T) {
	e := newTestEnv(t)
	admin := e.createAdmin(t, "root")
	buyer := e.createUser(t, "alice")
	artwork := e.createArtwork(t, "200.00")

	order, err := e.payments.CreateOrder(buyer.ID, artwork.ID)
	require.NoError(t, err)

	bankTx, err := e.payments.RecordBankTransaction(admin.ID, &RecordBankTransactionRequest{
		ExternalID: "bank-003",
		Amount:     dec("200.00"), // paid the price but forgot the fee
		Reference:  order.Reference,
	})
	require.NoError(t, err)
	assert.Equal(t, models.BankTransactionStatusUnmatched, bankTx.Status)

	got := e.reloadOrder(t, order.ID)
	assert.Equal(t, models.OrderStatusPendingPayment, got.Status)

	var notifications []models.AdminNotification
	require.NoError(t, e.db.Find(&notifications).Error)
	require.Len(t, notifications, 1)
	assert.Equal(t, models.NotificationUnmatchedTransaction, notifications[0].Type)

	// Manual resolution pairs them anyway.
	require.NoError(t, e.payments.ResolveBankTransaction(admin.ID, bankTx.ID, order.ID))

	got = e.reloadOrder(t, order.ID)
	assert.Equal(t, models.OrderStatusPaymentReceived, got.Status)

	var resolved models.BankTransaction
	require.NoError(t, e.db.First(&resolved, "id = ?", bankTx.ID).Error)
	assert.Equal(t, models.BankTransactionStatusManuallyResolved, resolved.Status)
}

func TestLatePaymentDoesNotResurrectExpiredOrder(t *testing.T) {
	e := newTestEnv(t)
	admin := e.createAdmin(t, "root")
	buyer := e.createUser(t, "alice")
	artwork := e.createArtwork(t, "200.00")

	order, err := e.payments.CreateOrder(buyer.ID, artwork.ID)
	require.NoError(t, err)

	expired, err := e.payments.ExpireOrders(time.Now().Add(73 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	got := e.reloadOrder(t, order.ID)
	require.Equal(t, models.OrderStatusExpired, got.Status)

	// The late transfer lands on the unmatched queue, not on the order.
	bankTx, err := e.payments.RecordBankTransaction(admin.ID, &RecordBankTransactionRequest{
		ExternalID: "bank-late",
		Amount:     dec("210.00"),
		Reference:  order.Reference,
	})
	require.NoError(t, err)
	assert.Equal(t, models.BankTransactionStatusUnmatched, bankTx.Status)

	got = e.reloadOrder(t, order.ID)
	assert.Equal(t, models.OrderStatusExpired, got.Status)

	// And the artwork is still for sale.
	art := e.reloadArtwork(t, artwork.ID)
	assert.Equal(t, models.LicenseStateAvailable, art.LicenseState)
}

func TestRefundOrderRequiresReasonAndDelivery(t *testing.T) {
	e := newTestEnv(t)
	admin := e.createAdmin(t, "root")
	buyer := e.createUser(t, "alice")
	artwork := e.createArtwork(t, "200.00")

	order, err := e.payments.CreateOrder(buyer.ID, artwork.ID)
	require.NoError(t, err)

	err = e.payments.RefundOrder(admin.ID, order.ID, "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	err = e.payments.RefundOrder(admin.ID, order.ID, "buyer asked")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidState))

	_, err = e.payments.RecordBankTransaction(admin.ID, &RecordBankTransactionRequest{
		ExternalID: "bank-004",
		Amount:     dec("210.00"),
		Reference:  order.Reference,
	})
	require.NoError(t, err)
	_, err = e.payments.ConfirmOrder(admin.ID, order.ID)
	require.NoError(t, err)

	require.NoError(t, e.payments.RefundOrder(admin.ID, order.ID, "duplicate payment"))

	got := e.reloadOrder(t, order.ID)
	assert.Equal(t, models.OrderStatusRefunded, got.Status)
	assert.Equal(t, "duplicate payment", got.RefundReason)

	// Buyer gets the purchase price back as balance; the fee stays.
	assert.Equal(t, "200.00", e.balance(t, buyer.ID))

	art := e.reloadArtwork(t, artwork.ID)
	assert.Equal(t, models.LicenseStateAvailable, art.LicenseState)
	assert.Nil(t, art.OwnerID)
}

func TestCancelOrder(t *testing.T) {
	e := newTestEnv(t)
	buyer := e.createUser(t, "alice")
	mallory := e.createUser(t, "mallory")
	artwork := e.createArtwork(t, "200.00")

	order, err := e.payments.CreateOrder(buyer.ID, artwork.ID)
	require.NoError(t, err)

	err = e.payments.CancelOrder(mallory.ID, order.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindAuthorization))

	require.NoError(t, e.payments.CancelOrder(buyer.ID, order.ID))

	got := e.reloadOrder(t, order.ID)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)

	// Cancelling again is an invalid transition.
	err = e.payments.CancelOrder(buyer.ID, order.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidState))
}

func TestWithdrawal(t *testing.T) {
	e := newTestEnv(t)
	user := e.createUser(t, "alice")
	e.fund(t, user.ID, "50.00")

	_, err := e.payments.RequestWithdrawal(user.ID, dec("5.00"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	txn, err := e.payments.RequestWithdrawal(user.ID, dec("50.00"))
	require.NoError(t, err)
	assert.Equal(t, "50.00", txn.Amount.StringFixed(2))
	assert.Equal(t, "0.50", txn.Fee.StringFixed(2))
	assert.Equal(t, "49.50", txn.Details["payout_amount"])
	assert.Equal(t, "0.00", e.balance(t, user.ID))

	_, err = e.payments.RequestWithdrawal(user.ID, dec("10.00"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}
