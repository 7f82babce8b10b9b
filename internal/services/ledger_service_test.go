// internal/services/ledger_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iagallery/iag-backend/internal/apperrors"
	"github.com/iagallery/iag-backend/internal/models"
)

func TestBalanceIsDerivedFromEntries(t *testing.T) {
	e := newTestEnv(t)
	user := e.createUser(t, "alice")

	assert.Equal(t, "0.00", e.balance(t, user.ID))

	e.fund(t, user.ID, "100.00")
	e.fund(t, user.ID, "0.01")
	require.NoError(t, e.ledger.DebitTx(e.db, user.ID, dec("30.00"), models.LedgerKindWithdrawal, "test", nil, nil))

	assert.Equal(t, "70.01", e.balance(t, user.ID))
}

func TestDebitRejectsOverdraft(t *testing.T) {
	e := newTestEnv(t)
	user := e.createUser(t, "alice")
	e.fund(t, user.ID, "10.00")

	err := e.ledger.DebitTx(e.db, user.ID, dec("10.01"), models.LedgerKindPurchase, "test", nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
	assert.Equal(t, "10.00", e.balance(t, user.ID))
}

func TestNegativeAmountsRejected(t *testing.T) {
	e := newTestEnv(t)
	user := e.createUser(t, "alice")

	err := e.ledger.CreditTx(e.db, user.ID, dec("-1.00"), models.LedgerKindDeposit, "test", nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	err = e.ledger.DebitTx(e.db, user.ID, dec("-1.00"), models.LedgerKindPurchase, "test", nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestIdempotencyKeyBlocksDuplicateCredit(t *testing.T) {
	e := newTestEnv(t)
	user := e.createUser(t, "alice")

	key := "refund:once"
	require.NoError(t, e.ledger.CreditTx(e.db, user.ID, dec("50.00"), models.LedgerKindRefund, "test", nil, &key))

	err := e.ledger.CreditTx(e.db, user.ID, dec("50.00"), models.LedgerKindRefund, "test", nil, &key)
	require.Error(t, err, "the unique index must reject a replayed credit")

	assert.Equal(t, "50.00", e.balance(t, user.ID))
}
